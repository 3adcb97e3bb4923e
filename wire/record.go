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

package wire

import (
	"bytes"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	xdr3 "github.com/stellar/go-xdr/xdr3"
	"github.com/stellar/go/xdr"

	"perun.network/perun-nitro-backend/channel/types"
	"perun.network/perun-nitro-backend/wire/scval"
)

const (
	SymbolRecordTurnNumRecord xdr.ScSymbol = "turn_num_record"
	SymbolRecordFinalizesAt   xdr.ScSymbol = "finalizes_at"
	SymbolRecordStateHash     xdr.ScSymbol = "state_hash"
	SymbolRecordOutcome       xdr.ScSymbol = "outcome"
	SymbolRecordSettled       xdr.ScSymbol = "settled"
)

// Record is the XDR form of a types.DisputeRecord.
type Record struct {
	TurnNumRecord xdr.Uint64
	FinalizesAt   xdr.Uint64
	StateHash     xdr.ScBytes
	Outcome       xdr.ScVec
	Settled       bool
}

// ToScVal encodes the record as a symbol map.
func (r Record) ToScVal() (xdr.ScVal, error) {
	turnNum, err := scval.WrapUint64(r.TurnNumRecord)
	if err != nil {
		return xdr.ScVal{}, err
	}
	finalizesAt, err := scval.WrapUint64(r.FinalizesAt)
	if err != nil {
		return xdr.ScVal{}, err
	}
	stateHash, err := scval.WrapScBytes(r.StateHash)
	if err != nil {
		return xdr.ScVal{}, err
	}
	outcome, err := scval.WrapScVec(r.Outcome)
	if err != nil {
		return xdr.ScVal{}, err
	}
	settled, err := scval.WrapBool(r.Settled)
	if err != nil {
		return xdr.ScVal{}, err
	}
	m, err := MakeSymbolScMap(
		[]xdr.ScSymbol{
			SymbolRecordTurnNumRecord,
			SymbolRecordFinalizesAt,
			SymbolRecordStateHash,
			SymbolRecordOutcome,
			SymbolRecordSettled,
		},
		[]xdr.ScVal{turnNum, finalizesAt, stateHash, outcome, settled},
	)
	if err != nil {
		return xdr.ScVal{}, err
	}
	return scval.WrapScMap(m)
}

// FromScVal decodes a record from a symbol map.
func (r *Record) FromScVal(v xdr.ScVal) error {
	m, err := symbolMap(v,
		SymbolRecordTurnNumRecord,
		SymbolRecordFinalizesAt,
		SymbolRecordStateHash,
		SymbolRecordOutcome,
		SymbolRecordSettled,
	)
	if err != nil {
		return err
	}
	turnNumVal, err := GetScMapValueFromSymbol(SymbolRecordTurnNumRecord, m)
	if err != nil {
		return err
	}
	turnNum, ok := turnNumVal.GetU64()
	if !ok {
		return errors.New("expected uint64 turn_num_record")
	}
	finalizesAtVal, err := GetScMapValueFromSymbol(SymbolRecordFinalizesAt, m)
	if err != nil {
		return err
	}
	finalizesAt, ok := finalizesAtVal.GetU64()
	if !ok {
		return errors.New("expected uint64 finalizes_at")
	}
	stateHashVal, err := GetScMapValueFromSymbol(SymbolRecordStateHash, m)
	if err != nil {
		return err
	}
	stateHash, ok := stateHashVal.GetBytes()
	if !ok || len(stateHash) != common.HashLength {
		return errors.New("expected 32 byte state_hash")
	}
	outcomeVal, err := GetScMapValueFromSymbol(SymbolRecordOutcome, m)
	if err != nil {
		return err
	}
	outcome, ok := outcomeVal.GetVec()
	if !ok || outcome == nil {
		return errors.New("expected vec outcome")
	}
	settledVal, err := GetScMapValueFromSymbol(SymbolRecordSettled, m)
	if err != nil {
		return err
	}
	settled, ok := settledVal.GetB()
	if !ok {
		return errors.New("expected bool settled")
	}
	r.TurnNumRecord = turnNum
	r.FinalizesAt = finalizesAt
	r.StateHash = stateHash
	r.Outcome = *outcome
	r.Settled = settled
	return nil
}

// EncodeTo encodes the record to an xdr.Encoder.
func (r Record) EncodeTo(e *xdr3.Encoder) error {
	v, err := r.ToScVal()
	if err != nil {
		return err
	}
	return v.EncodeTo(e)
}

// DecodeFrom decodes the record from an xdr.Decoder.
func (r *Record) DecodeFrom(d *xdr3.Decoder) (int, error) {
	var v xdr.ScVal
	i, err := d.Decode(&v)
	if err != nil {
		return i, err
	}
	return i, r.FromScVal(v)
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (r Record) MarshalBinary() ([]byte, error) {
	buf := bytes.Buffer{}
	e := xdr3.NewEncoder(&buf)
	err := r.EncodeTo(e)
	return buf.Bytes(), err
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (r *Record) UnmarshalBinary(data []byte) error {
	d := xdr3.NewDecoder(bytes.NewReader(data))
	_, err := r.DecodeFrom(d)
	return err
}

// MakeRecord converts a dispute record to its XDR form.
func MakeRecord(rec types.DisputeRecord) (Record, error) {
	outcome, err := MakeOutcome(rec.Outcome)
	if err != nil {
		return Record{}, err
	}
	return Record{
		TurnNumRecord: xdr.Uint64(rec.TurnNumRecord),
		FinalizesAt:   xdr.Uint64(rec.FinalizesAt),
		StateHash:     rec.StateHash.Bytes(),
		Outcome:       outcome,
		Settled:       rec.Settled,
	}, nil
}

// ToRecord converts the XDR form back to a dispute record.
func ToRecord(r Record) (types.DisputeRecord, error) {
	outcome, err := ToOutcome(r.Outcome)
	if err != nil {
		return types.DisputeRecord{}, err
	}
	return types.DisputeRecord{
		TurnNumRecord: uint64(r.TurnNumRecord),
		FinalizesAt:   uint64(r.FinalizesAt),
		StateHash:     common.BytesToHash(r.StateHash),
		Outcome:       outcome,
		Settled:       r.Settled,
	}, nil
}

// MarshalIDs encodes a list of channel IDs as a vector of bytes.
func MarshalIDs(ids []types.ID) ([]byte, error) {
	vec := make(xdr.ScVec, 0, len(ids))
	for _, id := range ids {
		v, err := scval.WrapScBytes(id.Bytes())
		if err != nil {
			return nil, err
		}
		vec = append(vec, v)
	}
	v, err := scval.WrapScVec(vec)
	if err != nil {
		return nil, err
	}
	return marshalScVal(v)
}

// UnmarshalIDs decodes a list encoded by MarshalIDs.
func UnmarshalIDs(data []byte) ([]types.ID, error) {
	v, err := unmarshalScVal(data)
	if err != nil {
		return nil, err
	}
	vec, ok := v.GetVec()
	if !ok || vec == nil {
		return nil, errors.New("expected vec of ids")
	}
	ids := make([]types.ID, 0, len(*vec))
	for _, e := range *vec {
		b, ok := e.GetBytes()
		if !ok || len(b) != types.IDLength {
			return nil, errors.New("expected 32 byte id")
		}
		var id types.ID
		copy(id[:], b)
		ids = append(ids, id)
	}
	return ids, nil
}
