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

package ledger_test

import (
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	pkgtest "polycry.pt/poly-go/test"

	"perun.network/perun-nitro-backend/channel/types"
	"perun.network/perun-nitro-backend/ledger"
)

func forEachStore(t *testing.T, test func(t *testing.T, s ledger.Store)) {
	t.Helper()
	t.Run("mem", func(t *testing.T) {
		test(t, ledger.NewMemStore())
	})
	t.Run("bolt", func(t *testing.T) {
		s, err := ledger.OpenBoltStore(filepath.Join(t.TempDir(), "ledger.db"))
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		test(t, s)
	})
}

func randomID(t *testing.T) types.ID {
	t.Helper()
	var id types.ID
	_, err := pkgtest.Prng(t).Read(id[:])
	require.NoError(t, err)
	return id
}

func requireHoldings(t *testing.T, s ledger.Store, id types.ID, asset types.Asset, want int64) {
	t.Helper()
	held, err := s.Holdings(id, asset)
	require.NoError(t, err)
	require.Zero(t, held.Cmp(big.NewInt(want)), "holdings %v, want %d", held, want)
}

func TestDeposit(t *testing.T) {
	forEachStore(t, func(t *testing.T, s ledger.Store) {
		id := randomID(t)
		asset := types.NativeAsset

		requireHoldings(t, s, id, asset, 0)

		held, err := s.Deposit(id, asset, big.NewInt(0), big.NewInt(1000))
		require.NoError(t, err)
		require.Zero(t, held.Cmp(big.NewInt(1000)))

		// Stale expectation.
		_, err = s.Deposit(id, asset, big.NewInt(0), big.NewInt(1000))
		require.ErrorIs(t, err, ledger.ErrDepositRaceDetected)
		// Expectations above the holdings are rejected as well.
		_, err = s.Deposit(id, asset, big.NewInt(2000), big.NewInt(1))
		require.ErrorIs(t, err, ledger.ErrDepositRaceDetected)

		_, err = s.Deposit(id, asset, big.NewInt(1000), big.NewInt(0))
		require.ErrorIs(t, err, ledger.ErrInvalidAmount)
		_, err = s.Deposit(id, asset, big.NewInt(1000), big.NewInt(-5))
		require.ErrorIs(t, err, ledger.ErrInvalidAmount)

		held, err = s.Deposit(id, asset, big.NewInt(1000), big.NewInt(1000))
		require.NoError(t, err)
		require.Zero(t, held.Cmp(big.NewInt(2000)))
		requireHoldings(t, s, id, asset, 2000)

		// Holdings are kept per asset.
		token := types.NewAsset(common.HexToAddress("0xc0ffee"))
		requireHoldings(t, s, id, token, 0)
	})
}

func TestDebit(t *testing.T) {
	forEachStore(t, func(t *testing.T, s ledger.Store) {
		id := randomID(t)
		asset := types.NativeAsset
		_, err := s.Deposit(id, asset, big.NewInt(0), big.NewInt(100))
		require.NoError(t, err)

		require.ErrorIs(t, s.Debit(id, asset, big.NewInt(101)), ledger.ErrInsufficientFunds)
		requireHoldings(t, s, id, asset, 100)

		require.NoError(t, s.Debit(id, asset, big.NewInt(60)))
		requireHoldings(t, s, id, asset, 40)
		require.NoError(t, s.Debit(id, asset, big.NewInt(40)))
		requireHoldings(t, s, id, asset, 0)
	})
}

func TestCommitAtomic(t *testing.T) {
	forEachStore(t, func(t *testing.T, s ledger.Store) {
		a, b := randomID(t), randomID(t)
		b[0] ^= 0xff
		asset := types.NativeAsset
		_, err := s.Deposit(a, asset, big.NewInt(0), big.NewInt(100))
		require.NoError(t, err)

		require.True(t, ledger.NewBatch().Empty())
		require.NoError(t, s.Commit(ledger.NewBatch()))

		rec := &types.DisputeRecord{TurnNumRecord: 5, FinalizesAt: 10}
		// Two debits that together overdraw a.
		batch := ledger.NewBatch().
			Debit(a, asset, big.NewInt(60)).
			Debit(a, asset, big.NewInt(60)).
			PutRecord(a, rec).
			AddGuarantor(b, a)
		require.False(t, batch.Empty())
		require.ErrorIs(t, s.Commit(batch), ledger.ErrInsufficientFunds)

		requireHoldings(t, s, a, asset, 100)
		_, err = s.Record(a)
		require.ErrorIs(t, err, ledger.ErrRecordNotFound)
		gs, err := s.Guarantors(b)
		require.NoError(t, err)
		require.Empty(t, gs)

		batch = ledger.NewBatch().
			Debit(a, asset, big.NewInt(60)).
			PutRecord(a, rec).
			AddGuarantor(b, a)
		require.NoError(t, s.Commit(batch))

		requireHoldings(t, s, a, asset, 40)
		got, err := s.Record(a)
		require.NoError(t, err)
		require.Equal(t, uint64(5), got.TurnNumRecord)
		require.Equal(t, uint64(10), got.FinalizesAt)
		gs, err = s.Guarantors(b)
		require.NoError(t, err)
		require.Equal(t, []types.ID{a}, gs)
	})
}

func TestGuarantorsOrder(t *testing.T) {
	forEachStore(t, func(t *testing.T, s ledger.Store) {
		target := randomID(t)
		g1, g2 := target, target
		g1[0]++
		g2[0] += 2

		require.NoError(t, s.Commit(ledger.NewBatch().AddGuarantor(target, g2)))
		require.NoError(t, s.Commit(ledger.NewBatch().AddGuarantor(target, g1).AddGuarantor(target, g2)))

		gs, err := s.Guarantors(target)
		require.NoError(t, err)
		require.Equal(t, []types.ID{g2, g1}, gs)
	})
}

func TestRecordIsolation(t *testing.T) {
	forEachStore(t, func(t *testing.T, s ledger.Store) {
		id := randomID(t)
		rec := &types.DisputeRecord{
			TurnNumRecord: 1,
			Outcome: types.Outcome{{
				Asset: types.NativeAsset,
				Items: []types.AllocationItem{{
					Destination: types.AddressDestination(common.HexToAddress("0x01")),
					Amount:      big.NewInt(7),
				}},
			}},
		}
		require.NoError(t, s.Commit(ledger.NewBatch().PutRecord(id, rec)))
		rec.Outcome[0].Items[0].Amount.SetInt64(99)

		got, err := s.Record(id)
		require.NoError(t, err)
		require.Zero(t, got.Outcome[0].Items[0].Amount.Cmp(big.NewInt(7)))

		got.Outcome[0].Items[0].Amount.SetInt64(42)
		again, err := s.Record(id)
		require.NoError(t, err)
		require.Zero(t, again.Outcome[0].Items[0].Amount.Cmp(big.NewInt(7)))
	})
}

func TestUint256Amounts(t *testing.T) {
	forEachStore(t, func(t *testing.T, s ledger.Store) {
		id := randomID(t)
		large := new(big.Int).Lsh(big.NewInt(1), 200)
		rec := &types.DisputeRecord{
			TurnNumRecord: 4,
			FinalizesAt:   10,
			Outcome: types.Outcome{{
				Asset: types.NativeAsset,
				Items: []types.AllocationItem{
					{Destination: types.AddressDestination(common.HexToAddress("0x01")), Amount: large},
					{Destination: types.ChannelDestination(randomID(t)), Amount: new(big.Int).Set(types.MaxAmount)},
				},
			}},
		}
		require.NoError(t, s.Commit(ledger.NewBatch().PutRecord(id, rec)))
		got, err := s.Record(id)
		require.NoError(t, err)
		require.True(t, rec.Outcome.Equal(got.Outcome))

		half := new(big.Int).Lsh(big.NewInt(1), 255)
		held, err := s.Deposit(id, types.NativeAsset, big.NewInt(0), half)
		require.NoError(t, err)
		require.Zero(t, held.Cmp(half))
		// Holdings stay within uint256.
		_, err = s.Deposit(id, types.NativeAsset, half, half)
		require.ErrorIs(t, err, ledger.ErrInvalidAmount)
		held, err = s.Holdings(id, types.NativeAsset)
		require.NoError(t, err)
		require.Zero(t, held.Cmp(half))
	})
}

func TestBoltStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	s, err := ledger.OpenBoltStore(path)
	require.NoError(t, err)
	id := randomID(t)
	_, err = s.Deposit(id, types.NativeAsset, big.NewInt(0), big.NewInt(1000))
	require.NoError(t, err)
	require.NoError(t, s.Commit(ledger.NewBatch().PutRecord(id, &types.DisputeRecord{TurnNumRecord: 3, Settled: true})))
	require.NoError(t, s.Close())

	s, err = ledger.OpenBoltStore(path)
	require.NoError(t, err)
	defer s.Close()
	requireHoldings(t, s, id, types.NativeAsset, 1000)
	rec, err := s.Record(id)
	require.NoError(t, err)
	require.Equal(t, uint64(3), rec.TurnNumRecord)
	require.True(t, rec.Settled)
}
