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

package channel_test

import (
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"perun.network/perun-nitro-backend/channel"
	chtest "perun.network/perun-nitro-backend/channel/test"
	"perun.network/perun-nitro-backend/channel/types"
	"perun.network/perun-nitro-backend/event"
)

func TestDeposit(t *testing.T) {
	s := chtest.NewSetup(t, 2, 1000)
	ctx := s.NewCtx()
	id := s.NewChannel(1).MustID()
	alice := s.Accounts[0].Address()
	native := types.NativeAsset

	held, err := s.Adj.Deposit(ctx, alice, id, native, big.NewInt(0), big.NewInt(300))
	require.NoError(t, err)
	require.Equal(t, int64(300), held.Int64())
	require.Equal(t, int64(700), s.Balance(0).Int64())

	// Stale guard.
	_, err = s.Adj.Deposit(ctx, alice, id, native, big.NewInt(0), big.NewInt(300))
	require.ErrorIs(t, err, channel.ErrDepositRaceDetected)
	require.Equal(t, int64(700), s.Balance(0).Int64())

	_, err = s.Adj.Deposit(ctx, alice, id, native, big.NewInt(300), big.NewInt(0))
	require.ErrorIs(t, err, channel.ErrInvalidAmount)

	// The depositor cannot pay.
	_, err = s.Adj.Deposit(ctx, alice, id, native, big.NewInt(300), big.NewInt(701))
	require.ErrorIs(t, err, channel.ErrInsufficientFunds)
	held, err = s.Adj.Holdings(ctx, id, native)
	require.NoError(t, err)
	require.Equal(t, int64(300), held.Int64())
	require.Equal(t, int64(700), s.Balance(0).Int64())

	held, err = s.Adj.Deposit(ctx, s.Accounts[1].Address(), id, native, big.NewInt(300), big.NewInt(200))
	require.NoError(t, err)
	require.Equal(t, int64(500), held.Int64())
}

func TestChallengeMonotonicity(t *testing.T) {
	s := chtest.NewSetup(t, 2, 0)
	ctx := s.NewCtx()
	ch := s.NewChannel(1)
	id := ch.MustID()
	outcome := chtest.NativeOutcome(chtest.Pay(s.Accounts[0].Address(), 1))

	challenge := func(turn uint64, challenger int) error {
		b := s.SignAll(chtest.NewState(ch, turn, false, outcome))
		return s.Adj.Challenge(ctx, b, s.ChallengeSig(b, challenger))
	}

	status, err := s.Adj.Status(ctx, id)
	require.NoError(t, err)
	require.Equal(t, channel.StatusOpen, status)

	require.NoError(t, challenge(5, 0))
	rec, err := s.Adj.Record(ctx, id)
	require.NoError(t, err)
	require.Equal(t, uint64(5), rec.TurnNumRecord)
	require.Equal(t, uint64(chtest.GenesisTime+chtest.DefaultChallengeDuration), rec.FinalizesAt)
	status, err = s.Adj.Status(ctx, id)
	require.NoError(t, err)
	require.Equal(t, channel.StatusChallenged, status)

	require.ErrorIs(t, challenge(5, 1), channel.ErrStaleChallenge)
	require.ErrorIs(t, challenge(4, 1), channel.ErrStaleChallenge)

	s.Clock.Advance(10)
	require.NoError(t, challenge(6, 1))
	rec, err = s.Adj.Record(ctx, id)
	require.NoError(t, err)
	require.Equal(t, uint64(6), rec.TurnNumRecord)
	require.Equal(t, uint64(chtest.GenesisTime+10+chtest.DefaultChallengeDuration), rec.FinalizesAt)

	// Finalization exclusivity.
	s.Clock.Advance(chtest.DefaultChallengeDuration)
	status, err = s.Adj.Status(ctx, id)
	require.NoError(t, err)
	require.Equal(t, channel.StatusFinalized, status)
	require.ErrorIs(t, challenge(7, 0), channel.ErrAlreadyFinalized)
	require.ErrorIs(t, challenge(3, 0), channel.ErrAlreadyFinalized)
	require.ErrorIs(t, s.Adj.Checkpoint(ctx, s.SignAll(chtest.NewState(ch, 8, false, outcome))), channel.ErrAlreadyFinalized)
	require.ErrorIs(t, s.Adj.Conclude(ctx, s.SignAll(chtest.NewState(ch, 9, true, outcome))), channel.ErrAlreadyFinalized)
}

func TestChallengeRejects(t *testing.T) {
	s := chtest.NewSetup(t, 3, 0)
	ctx := s.NewCtx()
	ch := s.NewChannel(1, 0, 1)
	outcome := chtest.NativeOutcome(chtest.Pay(s.Accounts[0].Address(), 1))
	b := s.SignAll(chtest.NewState(ch, 2, false, outcome))

	t.Run("outsider challenger", func(t *testing.T) {
		sig, err := channel.SignChallenge(b.Latest(), s.Accounts[2])
		require.NoError(t, err)
		require.ErrorIs(t, s.Adj.Challenge(ctx, b, sig), channel.ErrSignatureMismatch)
	})
	t.Run("state signature as challenge signature", func(t *testing.T) {
		require.ErrorIs(t, s.Adj.Challenge(ctx, b, b.Sigs[0]), channel.ErrSignatureMismatch)
	})
	t.Run("incomplete support", func(t *testing.T) {
		partial := b
		partial.Sigs = [][]byte{b.Sigs[0], b.Sigs[0]}
		err := s.Adj.Challenge(ctx, partial, s.ChallengeSig(b, 0))
		require.ErrorIs(t, err, channel.ErrUnsupported)
		require.ErrorIs(t, err, channel.ErrSignatureMismatch)
	})
	t.Run("zero challenge duration", func(t *testing.T) {
		st := chtest.NewState(ch, 2, false, outcome)
		st.ChallengeDuration = 0
		zb := s.SignAll(st)
		require.ErrorIs(t, s.Adj.Challenge(ctx, zb, s.ChallengeSig(zb, 0)), channel.ErrInvalidChallengeDuration)
	})
	t.Run("deadline overflow", func(t *testing.T) {
		st := chtest.NewState(ch, 2, false, outcome)
		st.ChallengeDuration = math.MaxUint64
		ob := s.SignAll(st)
		require.ErrorIs(t, s.Adj.Challenge(ctx, ob, s.ChallengeSig(ob, 0)), channel.ErrInvalidChallengeDuration)

		st.ChallengeDuration = math.MaxUint64 - s.Clock.Now() + 1
		ob = s.SignAll(st)
		require.ErrorIs(t, s.Adj.Challenge(ctx, ob, s.ChallengeSig(ob, 0)), channel.ErrInvalidChallengeDuration)
	})

	_, err := s.Adj.Record(ctx, ch.MustID())
	require.ErrorIs(t, err, channel.ErrRecordNotFound)
}

func TestCheckpoint(t *testing.T) {
	s := chtest.NewSetup(t, 2, 0)
	ctx := s.NewCtx()
	ch := s.NewChannel(1)
	id := ch.MustID()
	outcome := chtest.NativeOutcome(chtest.Pay(s.Accounts[0].Address(), 1))

	b := s.SignAll(chtest.NewState(ch, 4, false, outcome))
	require.NoError(t, s.Adj.Challenge(ctx, b, s.ChallengeSig(b, 0)))

	require.ErrorIs(t, s.Adj.Checkpoint(ctx, b), channel.ErrStaleChallenge)
	require.NoError(t, s.Adj.Checkpoint(ctx, s.SignAll(chtest.NewState(ch, 5, false, outcome))))

	status, err := s.Adj.Status(ctx, id)
	require.NoError(t, err)
	require.Equal(t, channel.StatusOpen, status)

	// The cleared challenge never finalizes.
	s.Clock.Advance(10 * chtest.DefaultChallengeDuration)
	_, err = s.Adj.Transfer(ctx, id)
	require.ErrorIs(t, err, channel.ErrNotFinalized)

	// A new challenge must beat the checkpoint.
	require.ErrorIs(t, s.Adj.Challenge(ctx, b, s.ChallengeSig(b, 0)), channel.ErrStaleChallenge)
	b6 := s.SignAll(chtest.NewState(ch, 6, false, outcome))
	require.NoError(t, s.Adj.Challenge(ctx, b6, s.ChallengeSig(b6, 1)))
}

func TestConclude(t *testing.T) {
	s := chtest.NewSetup(t, 2, 1000)
	ctx := s.NewCtx()
	ch := s.NewChannel(1)
	id := ch.MustID()
	alice, bob := s.Accounts[0].Address(), s.Accounts[1].Address()
	s.Deposit(0, id, 0, 100)
	s.Deposit(1, id, 100, 100)

	outcome := chtest.NativeOutcome(chtest.Pay(alice, 30), chtest.Pay(bob, 170))
	require.ErrorIs(t, s.Adj.Conclude(ctx, s.SignAll(chtest.NewState(ch, 3, false, outcome))), channel.ErrUnsupported)

	// A running challenge does not prevent a conclusion.
	cb := s.SignAll(chtest.NewState(ch, 9, false, outcome))
	require.NoError(t, s.Adj.Challenge(ctx, cb, s.ChallengeSig(cb, 0)))

	require.NoError(t, s.Adj.Conclude(ctx, s.SignAll(chtest.NewState(ch, 3, true, outcome))))
	status, err := s.Adj.Status(ctx, id)
	require.NoError(t, err)
	require.Equal(t, channel.StatusFinalized, status)

	payouts, err := s.Adj.Transfer(ctx, id)
	require.NoError(t, err)
	require.Len(t, payouts, 2)
	require.Equal(t, int64(930), s.Balance(0).Int64())
	require.Equal(t, int64(1070), s.Balance(1).Int64())
}

func TestTransferIdempotence(t *testing.T) {
	s := chtest.NewSetup(t, 2, 1000)
	ctx := s.NewCtx()
	ch := s.NewChannel(1)
	id := ch.MustID()
	alice, bob := s.Accounts[0].Address(), s.Accounts[1].Address()
	s.Deposit(0, id, 0, 500)

	_, err := s.Adj.Transfer(ctx, id)
	require.ErrorIs(t, err, channel.ErrNotFinalized)

	b := s.SignAll(chtest.NewState(ch, 4, false, chtest.NativeOutcome(chtest.Pay(alice, 200), chtest.Pay(bob, 300))))
	require.NoError(t, s.Adj.Challenge(ctx, b, s.ChallengeSig(b, 1)))
	_, err = s.Adj.Transfer(ctx, id)
	require.ErrorIs(t, err, channel.ErrNotFinalized)

	s.Clock.Advance(chtest.DefaultChallengeDuration)
	payouts, err := s.Adj.Transfer(ctx, id)
	require.NoError(t, err)
	require.Equal(t, []types.Payout{
		{Asset: types.NativeAsset, To: alice, Amount: big.NewInt(200)},
		{Asset: types.NativeAsset, To: bob, Amount: big.NewInt(300)},
	}, payouts)
	require.Equal(t, int64(700), s.Balance(0).Int64())
	require.Equal(t, int64(1300), s.Balance(1).Int64())

	payouts, err = s.Adj.Transfer(ctx, id)
	require.ErrorIs(t, err, channel.ErrAlreadySettled)
	require.Empty(t, payouts)
	require.Equal(t, int64(700), s.Balance(0).Int64())
	require.Equal(t, int64(1300), s.Balance(1).Int64())

	held, err := s.Adj.Holdings(ctx, id, types.NativeAsset)
	require.NoError(t, err)
	require.Zero(t, held.Sign())

	rec, err := s.Adj.Record(ctx, id)
	require.NoError(t, err)
	require.True(t, rec.Settled)

	// Settled channels accept no deposits.
	_, err = s.Adj.Deposit(ctx, alice, id, types.NativeAsset, big.NewInt(0), big.NewInt(1))
	require.ErrorIs(t, err, channel.ErrAlreadyFinalized)
}

func TestTransferShortfall(t *testing.T) {
	s := chtest.NewSetup(t, 3, 1000)
	ctx := s.NewCtx()
	ch := s.NewChannel(1, 0, 1)
	id := ch.MustID()
	alice, bob, carol := s.Addresses()[0], s.Addresses()[1], s.Addresses()[2]
	s.Deposit(0, id, 0, 100)

	// Items are paid in list order. Bob is paid partially and carol not at all.
	outcome := chtest.NativeOutcome(chtest.Pay(alice, 70), chtest.Pay(bob, 50), chtest.Pay(carol, 10))
	b := s.SignAll(chtest.NewState(ch, 3, true, outcome))
	payouts, err := s.Adj.ConcludeAndTransfer(ctx, b)
	require.NoError(t, err)
	require.Equal(t, []types.Payout{
		{Asset: types.NativeAsset, To: alice, Amount: big.NewInt(70)},
		{Asset: types.NativeAsset, To: bob, Amount: big.NewInt(30)},
	}, payouts)
	require.Equal(t, int64(970), s.Balance(0).Int64())
	require.Equal(t, int64(1030), s.Balance(1).Int64())
	require.Equal(t, int64(1000), s.Balance(2).Int64())

	rec, err := s.Adj.Record(ctx, id)
	require.NoError(t, err)
	for _, item := range rec.Outcome[0].Items {
		require.Zero(t, item.Amount.Sign())
	}
}

func TestTransferWithoutDeposits(t *testing.T) {
	s := chtest.NewSetup(t, 2, 0)
	ctx := s.NewCtx()
	ch := s.NewChannel(1)
	b := s.SignAll(chtest.NewState(ch, 0, true, chtest.NativeOutcome(chtest.Pay(s.Addresses()[0], 10))))
	payouts, err := s.Adj.ConcludeAndTransfer(ctx, b)
	require.NoError(t, err)
	require.Empty(t, payouts)
	_, err = s.Adj.Transfer(ctx, ch.MustID())
	require.ErrorIs(t, err, channel.ErrAlreadySettled)
}

func TestConcludeAndTransferAtomic(t *testing.T) {
	s := chtest.NewSetup(t, 2, 1000)
	ctx := s.NewCtx()
	ch := s.NewChannel(1)
	id := ch.MustID()

	// Not final: nothing is recorded.
	b := s.SignAll(chtest.NewState(ch, 1, false, chtest.NativeOutcome(chtest.Pay(s.Addresses()[0], 10))))
	_, err := s.Adj.ConcludeAndTransfer(ctx, b)
	require.ErrorIs(t, err, channel.ErrUnsupported)
	_, err = s.Adj.Record(ctx, id)
	require.ErrorIs(t, err, channel.ErrRecordNotFound)
}

func TestGuaranteeNoDoubleSpend(t *testing.T) {
	s := chtest.NewSetup(t, 2, 1000)
	ctx := s.NewCtx()
	alice, bob := s.Addresses()[0], s.Addresses()[1]
	ledgerCh := s.NewChannel(1)
	v1, v2 := s.NewChannel(2), s.NewChannel(3)
	s.Deposit(0, ledgerCh.MustID(), 0, 150)

	// The ledger channel guarantees 100 to each virtual channel but holds only
	// 150. The second guarantee is reserved partially.
	lb := s.SignAll(chtest.NewState(ledgerCh, 0, true, chtest.NativeOutcome(
		chtest.Guarantee(v1.MustID(), 100),
		chtest.Guarantee(v2.MustID(), 100),
	)))
	payouts, err := s.Adj.ConcludeAndTransfer(ctx, lb)
	require.NoError(t, err)
	require.Empty(t, payouts)
	rec, err := s.Adj.Record(ctx, ledgerCh.MustID())
	require.NoError(t, err)
	require.Equal(t, int64(100), rec.Outcome[0].Items[0].Amount.Int64())
	require.Equal(t, int64(50), rec.Outcome[0].Items[1].Amount.Int64())

	// Each virtual channel claims more than it was guaranteed.
	for _, v := range []types.Channel{v1, v2} {
		vb := s.SignAll(chtest.NewState(v, 0, true, chtest.NativeOutcome(chtest.Pay(bob, 80), chtest.Pay(alice, 80))))
		_, err := s.Adj.ConcludeAndTransfer(ctx, vb)
		require.NoError(t, err)
	}

	// v1 paid bob 80 and alice 20. v2 paid bob 50.
	require.Equal(t, int64(1000-150+20), s.Balance(0).Int64())
	require.Equal(t, int64(1000+80+50), s.Balance(1).Int64())
	held, err := s.Adj.Holdings(ctx, ledgerCh.MustID(), types.NativeAsset)
	require.NoError(t, err)
	require.Zero(t, held.Sign())
}

func TestGuaranteeTargetFirst(t *testing.T) {
	s := chtest.NewSetup(t, 2, 1000)
	ctx := s.NewCtx()
	alice, bob := s.Addresses()[0], s.Addresses()[1]
	l, v := s.NewChannel(1), s.NewChannel(2)
	s.Deposit(0, l.MustID(), 0, 150)

	lb := s.SignAll(chtest.NewState(l, 4, false, chtest.NativeOutcome(chtest.Pay(alice, 50), chtest.Guarantee(v.MustID(), 100))))
	require.NoError(t, s.Adj.Challenge(ctx, lb, s.ChallengeSig(lb, 0)))
	require.NoError(t, s.Adj.Conclude(ctx, s.SignAll(chtest.NewState(v, 2, true, chtest.NativeOutcome(chtest.Pay(bob, 100))))))

	// The guarantee is not final yet and the target stays unsettled.
	_, err := s.Adj.Transfer(ctx, v.MustID())
	require.ErrorIs(t, err, channel.ErrGuarantorNotFinalized)
	rec, err := s.Adj.Record(ctx, v.MustID())
	require.NoError(t, err)
	require.False(t, rec.Settled)

	// Transferring the target settles its guarantor along the way.
	s.Clock.Advance(chtest.DefaultChallengeDuration)
	payouts, err := s.Adj.Transfer(ctx, v.MustID())
	require.NoError(t, err)
	require.Equal(t, []types.Payout{
		{Asset: types.NativeAsset, To: alice, Amount: big.NewInt(50)},
		{Asset: types.NativeAsset, To: bob, Amount: big.NewInt(100)},
	}, payouts)
	require.Equal(t, int64(1000-150+50), s.Balance(0).Int64())
	require.Equal(t, int64(1100), s.Balance(1).Int64())
	held, err := s.Adj.Holdings(ctx, l.MustID(), types.NativeAsset)
	require.NoError(t, err)
	require.Zero(t, held.Sign())

	for _, ch := range []types.Channel{l, v} {
		_, err = s.Adj.Transfer(ctx, ch.MustID())
		require.ErrorIs(t, err, channel.ErrAlreadySettled)
	}
}

func TestGuaranteeCycle(t *testing.T) {
	s := chtest.NewSetup(t, 2, 1000)
	ctx := s.NewCtx()
	alice := s.Addresses()[0]
	a, b, c := s.NewChannel(1), s.NewChannel(2), s.NewChannel(3)
	s.Deposit(0, a.MustID(), 0, 10)

	conclude := func(ch types.Channel, items ...types.AllocationItem) []types.Payout {
		bundle := s.SignAll(chtest.NewState(ch, 0, true, chtest.NativeOutcome(items...)))
		payouts, err := s.Adj.ConcludeAndTransfer(ctx, bundle)
		require.NoError(t, err)
		return payouts
	}

	// a and b guarantee each other, b also guarantees c.
	require.Empty(t, conclude(a, chtest.Guarantee(b.MustID(), 10)))
	require.Empty(t, conclude(b, chtest.Guarantee(a.MustID(), 5), chtest.Guarantee(c.MustID(), 20)))
	rec, err := s.Adj.Record(ctx, b.MustID())
	require.NoError(t, err)
	require.Equal(t, int64(5), rec.Outcome[0].Items[0].Amount.Int64())
	require.Equal(t, int64(5), rec.Outcome[0].Items[1].Amount.Int64())

	payouts := conclude(c, chtest.Pay(alice, 100))
	require.Equal(t, []types.Payout{{Asset: types.NativeAsset, To: alice, Amount: big.NewInt(5)}}, payouts)
	require.Equal(t, int64(995), s.Balance(0).Int64())
	held, err := s.Adj.Holdings(ctx, a.MustID(), types.NativeAsset)
	require.NoError(t, err)
	require.Equal(t, int64(5), held.Int64())
}

func TestSubscribe(t *testing.T) {
	s := chtest.NewSetup(t, 2, 1000)
	ctx := s.NewCtx()
	ch := s.NewChannel(1)
	id := ch.MustID()
	sub, err := s.Adj.Subscribe(ctx, id)
	require.NoError(t, err)
	other, err := s.Adj.Subscribe(ctx, s.NewChannel(2).MustID())
	require.NoError(t, err)
	defer other.Close()

	s.Deposit(0, id, 0, 100)
	b := s.SignAll(chtest.NewState(ch, 4, false, chtest.NativeOutcome(chtest.Pay(s.Addresses()[1], 100))))
	require.NoError(t, s.Adj.Challenge(ctx, b, s.ChallengeSig(b, 0)))
	s.Clock.Advance(chtest.DefaultChallengeDuration)
	_, err = s.Adj.Transfer(ctx, id)
	require.NoError(t, err)

	dep, ok := sub.Next().(*event.Deposited)
	require.True(t, ok)
	require.Equal(t, id, dep.ID())
	require.Equal(t, int64(100), dep.Holdings.Int64())

	reg, ok := sub.Next().(*event.ChallengeRegistered)
	require.True(t, ok)
	require.Equal(t, uint64(4), reg.Version())
	require.True(t, reg.Timeout.IsElapsed(ctx))

	upd, ok := sub.Next().(*event.AllocationUpdated)
	require.True(t, ok)
	require.Len(t, upd.Payouts, 1)

	require.NoError(t, sub.Close())
	require.Nil(t, sub.Next())
	require.NoError(t, sub.Err())
	require.Empty(t, other.Events())
}
