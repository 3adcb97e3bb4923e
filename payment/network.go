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

// Package payment runs a payment between two parties that share no funded
// channel. Both hold a ledger channel with an intermediary, the ledger
// channels guarantee a virtual channel of all three, and the virtual channel
// guarantees the bilateral channel in which the payment happens.
package payment

import (
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"perun.network/go-perun/log"

	"perun.network/perun-nitro-backend/channel"
	"perun.network/perun-nitro-backend/channel/types"
	"perun.network/perun-nitro-backend/client"
	"perun.network/perun-nitro-backend/ledger"
	"perun.network/perun-nitro-backend/wallet"
)

// GenesisTime is the ledger time a network starts at.
const GenesisTime = 1

// Params are the amounts and channel parameters of a payment.
type Params struct {
	ChainID           *big.Int
	ChallengeDuration uint64
	// InitialBalance is minted to every party.
	InitialBalance *big.Int
	// LedgerDeposit is deposited by each side of a ledger channel.
	LedgerDeposit *big.Int
	// VirtualDeposit is committed by each payment party to the virtual
	// channel. The intermediary matches the sum of both.
	VirtualDeposit *big.Int
	// Payment is the amount the payer sends to the payee.
	Payment *big.Int
}

// DefaultParams returns the parameters of the reference scenario.
func DefaultParams() Params {
	return Params{
		ChainID:           big.NewInt(0x1234),
		ChallengeDuration: 1,
		InitialBalance:    big.NewInt(10_000),
		LedgerDeposit:     big.NewInt(1_000),
		VirtualDeposit:    big.NewInt(100),
		Payment:           big.NewInt(90),
	}
}

// Validate checks that the amounts fit into each other.
func (p Params) Validate() error {
	for name, v := range map[string]*big.Int{
		"chain id":        p.ChainID,
		"initial balance": p.InitialBalance,
		"ledger deposit":  p.LedgerDeposit,
		"virtual deposit": p.VirtualDeposit,
		"payment":         p.Payment,
	} {
		if v == nil || v.Sign() < 0 {
			return errors.Errorf("%s must be set and non-negative", name)
		}
	}
	if p.ChallengeDuration == 0 {
		return errors.New("challenge duration must be positive")
	}
	if p.LedgerDeposit.Cmp(p.InitialBalance) > 0 {
		return errors.New("ledger deposit exceeds initial balance")
	}
	if p.VirtualDeposit.Cmp(p.LedgerDeposit) > 0 {
		return errors.New("virtual deposit exceeds ledger deposit")
	}
	if p.Payment.Cmp(p.VirtualDeposit) > 0 {
		return errors.New("payment exceeds virtual deposit")
	}
	return nil
}

// Party is a named client of the network.
type Party struct {
	Name string
	*client.Client
}

// Network is a simulated ledger with the three parties of a payment and their
// channels. Bob pays Alice through Irene.
type Network struct {
	// Wallet holds the accounts of all parties.
	Wallet *wallet.EphemeralWallet
	Adj    *channel.Adjudicator
	Bank   *channel.Balances
	Clock  *channel.ManualClock

	Irene, Bob, Alice Party

	BobLedger   types.Channel
	AliceLedger types.Channel
	Virtual     types.Channel
	BobAlice    types.Channel

	params Params
	log    log.Embedding
}

// NewNetwork creates the parties with keys from rng, mints their initial
// balances and sets up an adjudicator keeping custody in store.
func NewNetwork(store ledger.Store, params Params, rng io.Reader, opts ...channel.AdjudicatorOption) (*Network, error) {
	if err := params.Validate(); err != nil {
		return nil, errors.WithMessage(err, "invalid params")
	}
	n := &Network{
		Wallet: wallet.NewEphemeralWallet(),
		Bank:   channel.NewBalances(),
		Clock:  channel.NewManualClock(GenesisTime),
		params: params,
		log:    log.MakeEmbedding(log.Default()),
	}
	n.Adj = channel.NewAdjudicator(store, n.Bank, n.Clock, opts...)

	for _, p := range []*Party{&n.Irene, &n.Bob, &n.Alice} {
		acc, err := n.Wallet.AddNewAccount(rng)
		if err != nil {
			return nil, errors.WithMessage(err, "creating account")
		}
		n.Bank.Mint(types.NativeAsset, acc.Address(), params.InitialBalance)
		p.Client = client.New(acc, n.Adj, channel.WithPolling(10*channel.MaxIterationsUntilAbort, channel.DefaultPollingInterval/100))
	}
	n.Irene.Name, n.Bob.Name, n.Alice.Name = "irene", "bob", "alice"

	var err error
	mk := func(parts ...Party) types.Channel {
		if err != nil {
			return types.Channel{}
		}
		addrs := make([]common.Address, len(parts))
		for i, p := range parts {
			addrs[i] = p.Address()
		}
		var ch types.Channel
		ch, err = types.NewChannel(params.ChainID, addrs, 0)
		return ch
	}
	n.BobLedger = mk(n.Irene, n.Bob)
	n.AliceLedger = mk(n.Irene, n.Alice)
	n.Virtual = mk(n.Irene, n.Bob, n.Alice)
	n.BobAlice = mk(n.Bob, n.Alice)
	if err != nil {
		return nil, errors.WithMessage(err, "creating channels")
	}
	return n, nil
}

// Parties returns the parties of the network.
func (n *Network) Parties() []Party {
	return []Party{n.Irene, n.Bob, n.Alice}
}

// Balance returns the external balance of p.
func (n *Network) Balance(p Party) *big.Int {
	return n.Bank.Balance(types.NativeAsset, p.Address())
}

// Deltas returns the change of every party's external balance since the
// network was created, by name.
func (n *Network) Deltas() map[string]*big.Int {
	deltas := make(map[string]*big.Int, 3)
	for _, p := range n.Parties() {
		deltas[p.Name] = new(big.Int).Sub(n.Balance(p), n.params.InitialBalance)
	}
	return deltas
}

// Name returns the name of the party with address addr.
func (n *Network) Name(addr common.Address) string {
	for _, p := range n.Parties() {
		if p.Address() == addr {
			return p.Name
		}
	}
	return addr.Hex()
}
