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

// Package wire contains the XDR encoding of persisted ledger values.
package wire

import (
	"encoding/binary"
	"errors"
	"math/big"

	"github.com/stellar/go/xdr"

	"perun.network/perun-nitro-backend/channel/types"
	"perun.network/perun-nitro-backend/wire/scval"
)

// MaxBalance is the largest amount that can be persisted.
var MaxBalance = types.MaxAmount

// MakeUInt256Parts converts a non-negative big.Int to xdr.UInt256Parts.
func MakeUInt256Parts(i *big.Int) (xdr.UInt256Parts, error) {
	if i == nil {
		return xdr.UInt256Parts{}, errors.New("nil amount")
	}
	if i.Sign() < 0 {
		return xdr.UInt256Parts{}, errors.New("expected non-negative amount")
	}
	if i.Cmp(MaxBalance) > 0 {
		return xdr.UInt256Parts{}, errors.New("amount too large")
	}
	b := make([]byte, 32) //nolint:gomnd
	b = i.FillBytes(b)
	return xdr.UInt256Parts{
		HiHi: xdr.Uint64(binary.BigEndian.Uint64(b[0:8])),
		HiLo: xdr.Uint64(binary.BigEndian.Uint64(b[8:16])),
		LoHi: xdr.Uint64(binary.BigEndian.Uint64(b[16:24])),
		LoLo: xdr.Uint64(binary.BigEndian.Uint64(b[24:32])),
	}, nil
}

// ToBigInt converts xdr.UInt256Parts to a big.Int.
//
//nolint:gomnd
func ToBigInt(i xdr.UInt256Parts) *big.Int {
	b := make([]byte, 32)
	binary.BigEndian.PutUint64(b[0:8], uint64(i.HiHi))
	binary.BigEndian.PutUint64(b[8:16], uint64(i.HiLo))
	binary.BigEndian.PutUint64(b[16:24], uint64(i.LoHi))
	binary.BigEndian.PutUint64(b[24:32], uint64(i.LoLo))
	return new(big.Int).SetBytes(b)
}

// AmountToScVal wraps an amount as a u256 value.
func AmountToScVal(amount *big.Int) (xdr.ScVal, error) {
	parts, err := MakeUInt256Parts(amount)
	if err != nil {
		return xdr.ScVal{}, err
	}
	return scval.WrapUInt256Parts(parts)
}

// AmountFromScVal decodes a u256 value.
func AmountFromScVal(v xdr.ScVal) (*big.Int, error) {
	parts, ok := v.GetU256()
	if !ok {
		return nil, errors.New("expected u256")
	}
	return ToBigInt(parts), nil
}

// MarshalAmount encodes amount as XDR.
func MarshalAmount(amount *big.Int) ([]byte, error) {
	v, err := AmountToScVal(amount)
	if err != nil {
		return nil, err
	}
	return marshalScVal(v)
}

// UnmarshalAmount decodes an amount encoded by MarshalAmount.
func UnmarshalAmount(data []byte) (*big.Int, error) {
	v, err := unmarshalScVal(data)
	if err != nil {
		return nil, err
	}
	return AmountFromScVal(v)
}
