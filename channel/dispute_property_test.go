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
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"perun.network/perun-nitro-backend/channel"
	chtest "perun.network/perun-nitro-backend/channel/test"
	"perun.network/perun-nitro-backend/channel/types"
)

func TestDisputeProperties(t *testing.T) {
	rapid.Check(t, rapid.Run(&disputeModel{outer: t}))
}

// disputeModel tracks the dispute record of one channel and compares it with
// the adjudicator after every step.
type disputeModel struct {
	outer *testing.T
	s     *chtest.Setup
	ctx   context.Context
	ch    types.Channel
	id    types.ID

	hasRecord     bool
	turnNumRecord uint64
	finalizesAt   uint64
	settled       bool
	held          int64
}

func (m *disputeModel) Init(t *rapid.T) {
	*m = disputeModel{outer: m.outer}
	m.s = chtest.NewSetup(m.outer, 2, 1_000_000)
	m.ctx = m.s.NewCtx()
	m.ch = m.s.NewChannel(1)
	m.id = m.ch.MustID()
}

func (m *disputeModel) finalized() bool {
	return m.finalizesAt != 0 && m.s.Clock.Now() >= m.finalizesAt
}

func (m *disputeModel) bundle(turn uint64, final bool) channel.SignedStates {
	outcome := chtest.NativeOutcome(chtest.Pay(m.s.Addresses()[0], 1_000_000))
	return m.s.SignAll(chtest.NewState(m.ch, turn, final, outcome))
}

func (m *disputeModel) Challenge(t *rapid.T) {
	turn := rapid.Uint64Range(0, 20).Draw(t, "turn").(uint64)
	challenger := rapid.IntRange(0, 1).Draw(t, "challenger").(int)
	b := m.bundle(turn, false)
	err := m.s.Adj.Challenge(m.ctx, b, m.s.ChallengeSig(b, challenger))
	switch {
	case m.finalized():
		require.ErrorIs(t, err, channel.ErrAlreadyFinalized)
	case m.hasRecord && turn <= m.turnNumRecord:
		require.ErrorIs(t, err, channel.ErrStaleChallenge)
	default:
		require.NoError(t, err)
		m.hasRecord = true
		m.turnNumRecord = turn
		m.finalizesAt = m.s.Clock.Now() + chtest.DefaultChallengeDuration
	}
}

func (m *disputeModel) Checkpoint(t *rapid.T) {
	turn := rapid.Uint64Range(0, 20).Draw(t, "turn").(uint64)
	err := m.s.Adj.Checkpoint(m.ctx, m.bundle(turn, false))
	switch {
	case m.finalized():
		require.ErrorIs(t, err, channel.ErrAlreadyFinalized)
	case m.hasRecord && turn <= m.turnNumRecord:
		require.ErrorIs(t, err, channel.ErrStaleChallenge)
	default:
		require.NoError(t, err)
		m.hasRecord = true
		m.turnNumRecord = turn
		m.finalizesAt = 0
	}
}

func (m *disputeModel) Conclude(t *rapid.T) {
	turn := rapid.Uint64Range(0, 20).Draw(t, "turn").(uint64)
	err := m.s.Adj.Conclude(m.ctx, m.bundle(turn, true))
	if m.finalized() {
		require.ErrorIs(t, err, channel.ErrAlreadyFinalized)
		return
	}
	require.NoError(t, err)
	m.hasRecord = true
	m.turnNumRecord = turn
	m.finalizesAt = m.s.Clock.Now()
}

func (m *disputeModel) Deposit(t *rapid.T) {
	amount := rapid.Int64Range(1, 100).Draw(t, "amount").(int64)
	_, err := m.s.Adj.Deposit(m.ctx, m.s.Addresses()[1], m.id, types.NativeAsset, big.NewInt(m.held), big.NewInt(amount))
	if m.finalized() {
		require.ErrorIs(t, err, channel.ErrAlreadyFinalized)
		return
	}
	require.NoError(t, err)
	m.held += amount
}

func (m *disputeModel) Transfer(t *rapid.T) {
	_, err := m.s.Adj.Transfer(m.ctx, m.id)
	switch {
	case !m.finalized():
		require.ErrorIs(t, err, channel.ErrNotFinalized)
	case m.settled:
		require.ErrorIs(t, err, channel.ErrAlreadySettled)
	default:
		require.NoError(t, err)
		m.settled = true
		m.held = 0
	}
}

func (m *disputeModel) Advance(t *rapid.T) {
	m.s.Clock.Advance(rapid.Uint64Range(0, 2*chtest.DefaultChallengeDuration).Draw(t, "seconds").(uint64))
}

func (m *disputeModel) Check(t *rapid.T) {
	status, err := m.s.Adj.Status(m.ctx, m.id)
	require.NoError(t, err)
	switch {
	case m.finalized():
		require.Equal(t, channel.StatusFinalized, status)
	case m.finalizesAt != 0:
		require.Equal(t, channel.StatusChallenged, status)
	default:
		require.Equal(t, channel.StatusOpen, status)
	}

	held, err := m.s.Adj.Holdings(m.ctx, m.id, types.NativeAsset)
	require.NoError(t, err)
	require.Equal(t, m.held, held.Int64())
	// Paid out funds reach alice, the rest stays with bob or the channel.
	total := new(big.Int).Add(m.s.Balance(0), m.s.Balance(1))
	require.Equal(t, int64(2_000_000), total.Int64()+m.held)

	rec, err := m.s.Adj.Record(m.ctx, m.id)
	if !m.hasRecord {
		require.ErrorIs(t, err, channel.ErrRecordNotFound)
		return
	}
	require.NoError(t, err)
	require.Equal(t, m.turnNumRecord, rec.TurnNumRecord)
	require.Equal(t, m.finalizesAt, rec.FinalizesAt)
	require.Equal(t, m.settled, rec.Settled)
}
