// Copyright 2025 PolyCrypt GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package test contains helpers for testing the adjudicator.
package test

import (
	"context"
	"math/big"
	"math/rand"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	pkgtest "polycry.pt/poly-go/test"

	"perun.network/perun-nitro-backend/channel"
	"perun.network/perun-nitro-backend/channel/types"
	"perun.network/perun-nitro-backend/ledger"
	"perun.network/perun-nitro-backend/wallet"
)

const (
	DefaultTestTimeout       = 10 * time.Second
	DefaultChallengeDuration = 100
	// GenesisTime is the ledger time a test setup starts at.
	GenesisTime = 1_000
)

// ChainID is the chain id of all test channels.
var ChainID = big.NewInt(1337)

// Setup is a group of funded participants with an adjudicator on a fresh
// in-memory ledger.
type Setup struct {
	t        *testing.T
	Rng      *rand.Rand
	Accounts []*wallet.Account
	Bank     *channel.Balances
	Clock    *channel.ManualClock
	Store    ledger.Store
	Adj      *channel.Adjudicator
}

// NewSetup creates numParts accounts, each minted initialBalance of the native
// asset.
func NewSetup(t *testing.T, numParts int, initialBalance int64) *Setup {
	t.Helper()
	return NewSetupWithStore(t, numParts, initialBalance, ledger.NewMemStore())
}

// NewSetupWithStore is NewSetup on the given custody store.
func NewSetupWithStore(t *testing.T, numParts int, initialBalance int64, store ledger.Store) *Setup {
	t.Helper()
	rng := pkgtest.Prng(t)
	s := &Setup{
		t:     t,
		Rng:   rng,
		Bank:  channel.NewBalances(),
		Clock: channel.NewManualClock(GenesisTime),
		Store: store,
	}
	for i := 0; i < numParts; i++ {
		acc, err := wallet.NewRandomAccount(rng)
		require.NoError(t, err)
		s.Accounts = append(s.Accounts, acc)
		s.Bank.Mint(types.NativeAsset, acc.Address(), big.NewInt(initialBalance))
	}
	s.Adj = channel.NewAdjudicator(store, s.Bank, s.Clock)
	t.Cleanup(func() { store.Close() })
	return s
}

// NewCtx returns a context that is cancelled after DefaultTestTimeout or when
// the test ends.
func (s *Setup) NewCtx() context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultTestTimeout)
	s.t.Cleanup(cancel)
	return ctx
}

// Addresses returns the addresses of the accounts at the given indices, or of
// all accounts if none are given.
func (s *Setup) Addresses(idx ...int) []common.Address {
	if len(idx) == 0 {
		for i := range s.Accounts {
			idx = append(idx, i)
		}
	}
	addrs := make([]common.Address, len(idx))
	for i, j := range idx {
		addrs[i] = s.Accounts[j].Address()
	}
	return addrs
}

// Balance returns the external native balance of account i.
func (s *Setup) Balance(i int) *big.Int {
	return s.Bank.Balance(types.NativeAsset, s.Accounts[i].Address())
}

// NewChannel returns a channel between the accounts at the given indices.
func (s *Setup) NewChannel(nonce uint64, idx ...int) types.Channel {
	ch, err := types.NewChannel(ChainID, s.Addresses(idx...), nonce)
	require.NoError(s.t, err)
	return ch
}

// NewState returns a state of ch without app.
func NewState(ch types.Channel, turnNum uint64, isFinal bool, outcome types.Outcome) *types.State {
	return &types.State{
		Channel:           ch,
		TurnNum:           turnNum,
		IsFinal:           isFinal,
		Outcome:           outcome,
		ChallengeDuration: DefaultChallengeDuration,
	}
}

// Pay returns an allocation item paying amount to addr.
func Pay(addr common.Address, amount int64) types.AllocationItem {
	return types.AllocationItem{Destination: types.AddressDestination(addr), Amount: big.NewInt(amount)}
}

// Guarantee returns an allocation item guaranteeing amount to the channel id.
func Guarantee(id types.ID, amount int64) types.AllocationItem {
	return types.AllocationItem{Destination: types.ChannelDestination(id), Amount: big.NewInt(amount)}
}

// NativeOutcome returns an outcome of the native asset.
func NativeOutcome(items ...types.AllocationItem) types.Outcome {
	return types.Outcome{{Asset: types.NativeAsset, Items: items}}
}

// Signers returns the accounts of the channel participants in order.
func (s *Setup) Signers(ch types.Channel) []channel.Signer {
	signers := make([]channel.Signer, ch.NumParts())
	for i, p := range ch.Participants {
		for _, acc := range s.Accounts {
			if acc.Address() == p {
				signers[i] = acc
			}
		}
		require.NotNil(s.t, signers[i], "participant %d has no account", i)
	}
	return signers
}

// SignAll returns a bundle of the given states in which every participant
// signed the latest one.
func (s *Setup) SignAll(states ...*types.State) channel.SignedStates {
	latest := len(states) - 1
	who := make([]uint8, states[latest].NumParts())
	for i := range who {
		who[i] = uint8(latest)
	}
	return s.Sign(states, who)
}

// Sign returns a bundle of the given states signed according to
// whoSignedWhat.
func (s *Setup) Sign(states []*types.State, whoSignedWhat []uint8) channel.SignedStates {
	sigs, err := channel.SignStates(s.NewCtx(), states, s.Signers(states[0].Channel), whoSignedWhat)
	require.NoError(s.t, err)
	return channel.SignedStates{States: states, Sigs: sigs, WhoSignedWhat: whoSignedWhat}
}

// ChallengeSig returns the challenge signature of the latest state of the
// bundle by participant idx.
func (s *Setup) ChallengeSig(bundle channel.SignedStates, idx int) []byte {
	latest := bundle.Latest()
	sig, err := channel.SignChallenge(latest, s.Signers(latest.Channel)[idx])
	require.NoError(s.t, err)
	return sig
}

// Deposit deposits amount for account i, expecting the channel to hold
// expectedHeld.
func (s *Setup) Deposit(i int, id types.ID, expectedHeld, amount int64) {
	_, err := s.Adj.Deposit(s.NewCtx(), s.Accounts[i].Address(), id, types.NativeAsset, big.NewInt(expectedHeld), big.NewInt(amount))
	require.NoError(s.t, err)
}

// FundAll runs all funding requests concurrently.
func FundAll(ctx context.Context, funders []*channel.Funder, reqs []channel.FundingReq) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := range funders {
		i := i
		g.Go(func() error {
			return funders[i].Fund(ctx, reqs[i])
		})
	}
	return g.Wait()
}
