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

package payment

import (
	"context"
	"fmt"
	"math/big"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"perun.network/perun-nitro-backend/channel"
	"perun.network/perun-nitro-backend/channel/types"
)

// Mode selects how the channels are settled.
type Mode string

const (
	// ModeDispute settles every channel by challenge and transfer.
	ModeDispute Mode = "dispute"
	// ModeCooperative settles the ledger channels with final states only.
	ModeCooperative Mode = "cooperative"
)

// ParseMode parses a settlement mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeDispute, ModeCooperative:
		return m, nil
	default:
		return "", errors.Errorf("unknown mode %q", s)
	}
}

// Commitments are the off-chain states funding the payment channel, each
// supported by all participants of its channel.
type Commitments struct {
	BobLedger   channel.SignedStates
	AliceLedger channel.SignedStates
	Virtual     channel.SignedStates
	BobAlice    channel.SignedStates
}

// Report is the result of a run.
type Report struct {
	Mode    Mode
	Payouts []types.Payout
	Deltas  map[string]*big.Int
}

// Run opens the ledger channels, funds the payment channel virtually and
// settles everything in the given mode.
func (n *Network) Run(ctx context.Context, mode Mode) (*Report, error) {
	if err := n.Open(ctx); err != nil {
		return nil, errors.WithMessage(err, "opening ledger channels")
	}
	c, err := n.FundVirtual(ctx)
	if err != nil {
		return nil, errors.WithMessage(err, "funding virtual channel")
	}

	var payouts []types.Payout
	switch mode {
	case ModeDispute:
		if err := n.ChallengeAll(ctx, c); err != nil {
			return nil, errors.WithMessage(err, "challenging")
		}
		n.Clock.Advance(n.params.ChallengeDuration)
		payouts, err = n.TransferAll(ctx)
	case ModeCooperative:
		payouts, err = n.SettleCooperatively(ctx)
	default:
		err = errors.Errorf("unknown mode %q", mode)
	}
	if err != nil {
		return nil, err
	}
	return &Report{Mode: mode, Payouts: payouts, Deltas: n.Deltas()}, nil
}

func (n *Network) state(ch types.Channel, turnNum uint64, isFinal bool, items ...types.AllocationItem) *types.State {
	return &types.State{
		Channel:           ch,
		TurnNum:           turnNum,
		IsFinal:           isFinal,
		Outcome:           types.Outcome{{Asset: types.NativeAsset, Items: items}},
		ChallengeDuration: n.params.ChallengeDuration,
	}
}

func pay(p Party, amount *big.Int) types.AllocationItem {
	return types.AllocationItem{Destination: types.AddressDestination(p.Address()), Amount: new(big.Int).Set(amount)}
}

func guarantee(ch types.Channel, amount *big.Int) types.AllocationItem {
	return types.AllocationItem{Destination: types.ChannelDestination(ch.MustID()), Amount: new(big.Int).Set(amount)}
}

// round returns a bundle of one state per participant, turns from..from+n-1,
// where participant i signed state i. from must be a multiple of the number of
// parties, so that everyone signs its own move.
func (n *Network) round(ctx context.Context, ch types.Channel, from uint64, isFinal bool, parties []Party, items ...types.AllocationItem) (channel.SignedStates, error) {
	states := make([]*types.State, len(parties))
	who := make([]uint8, len(parties))
	signers := make([]channel.Signer, len(parties))
	for i := range parties {
		states[i] = n.state(ch, from+uint64(i), isFinal, items...)
		who[i] = uint8(i)
		signers[i] = parties[i]
	}
	sigs, err := channel.SignStates(ctx, states, signers, who)
	if err != nil {
		return channel.SignedStates{}, err
	}
	bundle := channel.SignedStates{States: states, Sigs: sigs, WhoSignedWhat: who}
	// Every party checks the round before relying on it.
	if _, err := channel.AggregateSupportProof(bundle, nil); err != nil {
		return channel.SignedStates{}, errors.WithMessagef(err, "round at turn %d", from)
	}
	return bundle, nil
}

// Open funds both ledger channels. Irene deposits first, then the other
// party.
func (n *Network) Open(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, l := range []struct {
		ch    types.Channel
		other Party
	}{{n.BobLedger, n.Bob}, {n.AliceLedger, n.Alice}} {
		st := n.state(l.ch, 0, false, pay(n.Irene, n.params.LedgerDeposit), pay(l.other, n.params.LedgerDeposit))
		for _, p := range []Party{n.Irene, l.other} {
			p := p
			g.Go(func() error { return p.Fund(ctx, st) })
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}
	n.log.Log().Infof("ledger channels funded with %v per party", n.params.LedgerDeposit)
	return nil
}

// FundVirtual signs the states that fund the payment channel and the payment
// itself:
//   - each ledger channel guarantees twice the virtual deposit to the virtual
//     channel,
//   - the virtual channel pays Irene back and guarantees the rest to the
//     payment channel,
//   - the payment channel pays Bob and Alice after the payment.
func (n *Network) FundVirtual(ctx context.Context) (*Commitments, error) {
	v, d := n.params.VirtualDeposit, n.params.LedgerDeposit
	twoV := new(big.Int).Lsh(v, 1)
	rest := new(big.Int).Sub(d, v)
	zero := new(big.Int)

	var (
		c   Commitments
		err error
	)
	if c.BobLedger, err = n.round(ctx, n.BobLedger, 2, false, []Party{n.Irene, n.Bob},
		pay(n.Irene, rest), pay(n.Bob, rest), guarantee(n.Virtual, twoV)); err != nil {
		return nil, err
	}
	if c.AliceLedger, err = n.round(ctx, n.AliceLedger, 2, false, []Party{n.Irene, n.Alice},
		pay(n.Irene, rest), pay(n.Alice, rest), guarantee(n.Virtual, twoV)); err != nil {
		return nil, err
	}
	if c.Virtual, err = n.round(ctx, n.Virtual, 3, false, []Party{n.Irene, n.Bob, n.Alice},
		pay(n.Irene, twoV), pay(n.Bob, zero), pay(n.Alice, zero), guarantee(n.BobAlice, twoV)); err != nil {
		return nil, err
	}
	if c.BobAlice, err = n.round(ctx, n.BobAlice, 2, false, []Party{n.Bob, n.Alice},
		pay(n.Bob, n.bobShare()), pay(n.Alice, n.aliceShare())); err != nil {
		return nil, err
	}
	n.log.Log().Infof("payment channel funded virtually, bob pays alice %v", n.params.Payment)
	return &c, nil
}

func (n *Network) bobShare() *big.Int {
	return new(big.Int).Sub(n.params.VirtualDeposit, n.params.Payment)
}

func (n *Network) aliceShare() *big.Int {
	return new(big.Int).Add(n.params.VirtualDeposit, n.params.Payment)
}

// ChallengeAll registers every commitment on the ledger.
func (n *Network) ChallengeAll(ctx context.Context, c *Commitments) error {
	for _, ch := range []struct {
		by     Party
		bundle channel.SignedStates
	}{
		{n.Bob, c.BobLedger},
		{n.Alice, c.AliceLedger},
		{n.Irene, c.Virtual},
		{n.Alice, c.BobAlice},
	} {
		if err := ch.by.Challenge(ctx, ch.bundle); err != nil {
			return errors.WithMessagef(err, "%s challenging", ch.by.Name)
		}
	}
	return nil
}

// TransferAll waits for the challenges to finalize and transfers the channels
// from the ledger channels down to the payment channel. Channels that were
// already transferred along with a guaranteed channel contribute no payouts.
func (n *Network) TransferAll(ctx context.Context) ([]types.Payout, error) {
	var payouts []types.Payout
	for _, ch := range []struct {
		by Party
		ch types.Channel
	}{
		{n.Bob, n.BobLedger},
		{n.Alice, n.AliceLedger},
		{n.Irene, n.Virtual},
		{n.Alice, n.BobAlice},
	} {
		p, err := ch.by.Watch(ctx, ch.ch.MustID())
		if err != nil {
			return nil, errors.WithMessagef(err, "%s transferring", ch.by.Name)
		}
		for _, po := range p {
			n.log.Log().Infof("paid %v to %s", po.Amount, n.Name(po.To))
		}
		payouts = append(payouts, p...)
	}
	return payouts, nil
}

// SettleCooperatively agrees on the final states of the payment and the
// virtual channel off-chain, moves the result into the ledger channels and
// concludes them. The virtual and payment channels never touch the ledger.
func (n *Network) SettleCooperatively(ctx context.Context) ([]types.Payout, error) {
	if _, err := n.round(ctx, n.BobAlice, 4, true, []Party{n.Bob, n.Alice},
		pay(n.Bob, n.bobShare()), pay(n.Alice, n.aliceShare())); err != nil {
		return nil, errors.WithMessage(err, "finalizing payment channel")
	}
	twoV := new(big.Int).Lsh(n.params.VirtualDeposit, 1)
	if _, err := n.round(ctx, n.Virtual, 6, true, []Party{n.Irene, n.Bob, n.Alice},
		pay(n.Irene, twoV), pay(n.Bob, n.bobShare()), pay(n.Alice, n.aliceShare())); err != nil {
		return nil, errors.WithMessage(err, "finalizing virtual channel")
	}

	// Irene receives what Bob lost and pays what Alice won.
	d := n.params.LedgerDeposit
	var payouts []types.Payout
	for _, l := range []struct {
		ch    types.Channel
		other Party
		share *big.Int
	}{
		{n.BobLedger, n.Bob, n.bobShare()},
		{n.AliceLedger, n.Alice, n.aliceShare()},
	} {
		delta := new(big.Int).Sub(l.share, n.params.VirtualDeposit)
		final, err := n.round(ctx, l.ch, 4, true, []Party{n.Irene, l.other},
			pay(n.Irene, new(big.Int).Sub(d, delta)), pay(l.other, new(big.Int).Add(d, delta)))
		if err != nil {
			return nil, errors.WithMessagef(err, "finalizing %s ledger channel", l.other.Name)
		}
		p, err := n.Irene.ConcludeAndTransfer(ctx, final)
		if err != nil {
			return nil, errors.WithMessagef(err, "concluding %s ledger channel", l.other.Name)
		}
		payouts = append(payouts, p...)
	}
	return payouts, nil
}

func (r *Report) String() string {
	return fmt.Sprintf("%s: %d payouts, deltas irene %v bob %v alice %v",
		r.Mode, len(r.Payouts), r.Deltas["irene"], r.Deltas["bob"], r.Deltas["alice"])
}
