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

package wire_test

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"perun.network/perun-nitro-backend/channel/types"
	"perun.network/perun-nitro-backend/wire"
)

func testRecord() types.DisputeRecord {
	var target types.ID
	copy(target[:], crypto.Keccak256([]byte("target")))
	return types.DisputeRecord{
		TurnNumRecord: 17,
		FinalizesAt:   1_700_000_000,
		StateHash:     crypto.Keccak256Hash([]byte("state")),
		Outcome: types.Outcome{
			{
				Asset: types.NativeAsset,
				Items: []types.AllocationItem{
					{Destination: types.AddressDestination(common.HexToAddress("0x01")), Amount: big.NewInt(900)},
					{Destination: types.ChannelDestination(target), Amount: new(big.Int).Set(wire.MaxBalance)},
				},
			},
			{
				Asset: types.NewAsset(common.HexToAddress("0xbeef")),
				Items: []types.AllocationItem{
					{Destination: types.AddressDestination(common.HexToAddress("0x02")), Amount: big.NewInt(0)},
				},
			},
		},
		Settled: true,
	}
}

func TestRecordRoundTrip(t *testing.T) {
	rec := testRecord()
	x, err := wire.MakeRecord(rec)
	require.NoError(t, err)
	data, err := x.MarshalBinary()
	require.NoError(t, err)

	var decoded wire.Record
	require.NoError(t, decoded.UnmarshalBinary(data))
	got, err := wire.ToRecord(decoded)
	require.NoError(t, err)

	require.Equal(t, rec.TurnNumRecord, got.TurnNumRecord)
	require.Equal(t, rec.FinalizesAt, got.FinalizesAt)
	require.Equal(t, rec.StateHash, got.StateHash)
	require.Equal(t, rec.Settled, got.Settled)
	require.True(t, rec.Outcome.Equal(got.Outcome))

	dest, ok := got.Outcome[0].Items[1].Destination.Channel()
	require.True(t, ok)
	want, _ := rec.Outcome[0].Items[1].Destination.Channel()
	require.Equal(t, want, dest)

	// Re-encoding yields the same bytes.
	again, err := decoded.MarshalBinary()
	require.NoError(t, err)
	require.Equal(t, data, again)
}

func TestRecordEmptyOutcome(t *testing.T) {
	x, err := wire.MakeRecord(types.DisputeRecord{TurnNumRecord: 3})
	require.NoError(t, err)
	data, err := x.MarshalBinary()
	require.NoError(t, err)

	var decoded wire.Record
	require.NoError(t, decoded.UnmarshalBinary(data))
	got, err := wire.ToRecord(decoded)
	require.NoError(t, err)
	require.Equal(t, uint64(3), got.TurnNumRecord)
	require.Empty(t, got.Outcome)
	require.False(t, got.Settled)
}

func TestRecordRejectsLargeAmount(t *testing.T) {
	rec := testRecord()
	rec.Outcome[0].Items[0].Amount = new(big.Int).Add(wire.MaxBalance, big.NewInt(1))
	_, err := wire.MakeRecord(rec)
	require.Error(t, err)

	rec.Outcome[0].Items[0].Amount = big.NewInt(-1)
	_, err = wire.MakeRecord(rec)
	require.Error(t, err)
}

func TestRecordUnmarshalGarbage(t *testing.T) {
	var r wire.Record
	require.Error(t, r.UnmarshalBinary([]byte{0, 0, 0, 17, 1}))

	// A well-formed value of the wrong shape is rejected as well.
	amount, err := wire.MarshalAmount(big.NewInt(5))
	require.NoError(t, err)
	require.Error(t, r.UnmarshalBinary(amount))
}

func TestAmountRoundTrip(t *testing.T) {
	for _, a := range []*big.Int{big.NewInt(0), big.NewInt(1), new(big.Int).Lsh(big.NewInt(1), 100), new(big.Int).Lsh(big.NewInt(1), 200), wire.MaxBalance} {
		data, err := wire.MarshalAmount(a)
		require.NoError(t, err)
		got, err := wire.UnmarshalAmount(data)
		require.NoError(t, err)
		require.Zero(t, a.Cmp(got), "amount %v", a)
	}
}

func TestIDsRoundTrip(t *testing.T) {
	var a, b types.ID
	copy(a[:], crypto.Keccak256([]byte("a")))
	copy(b[:], crypto.Keccak256([]byte("b")))

	data, err := wire.MarshalIDs([]types.ID{a, b})
	require.NoError(t, err)
	ids, err := wire.UnmarshalIDs(data)
	require.NoError(t, err)
	require.Equal(t, []types.ID{a, b}, ids)

	data, err = wire.MarshalIDs(nil)
	require.NoError(t, err)
	ids, err = wire.UnmarshalIDs(data)
	require.NoError(t, err)
	require.Empty(t, ids)
}
