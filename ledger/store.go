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

// Package ledger implements the custody store of the adjudicator: asset
// holdings per channel, dispute records and the guarantee index.
package ledger

import (
	"errors"
	"fmt"
	"math/big"

	"perun.network/perun-nitro-backend/channel/types"
)

var (
	ErrDepositRaceDetected = errors.New("deposit race detected")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrRecordNotFound      = errors.New("dispute record not found")
)

// Store is the custody store. All methods are safe for concurrent use. Every
// mutating call is atomic: on error nothing is applied.
type Store interface {
	// Holdings returns the amount of asset held for the channel. It is zero
	// when nothing was ever deposited.
	Holdings(id types.ID, asset types.Asset) (*big.Int, error)
	// Deposit adds amount to the holdings if they equal expectedHeld and
	// returns the new holdings.
	Deposit(id types.ID, asset types.Asset, expectedHeld, amount *big.Int) (*big.Int, error)
	// Debit removes amount from the holdings.
	Debit(id types.ID, asset types.Asset, amount *big.Int) error
	// Record returns the dispute record of the channel or ErrRecordNotFound.
	Record(id types.ID) (*types.DisputeRecord, error)
	// Guarantors returns the channels holding a guarantee for id in
	// registration order.
	Guarantors(id types.ID) ([]types.ID, error)
	// Commit applies the batch atomically.
	Commit(batch *Batch) error
	Close() error
}

type debit struct {
	id     types.ID
	asset  types.Asset
	amount *big.Int
}

type recordPut struct {
	id     types.ID
	record *types.DisputeRecord
}

type guarantee struct {
	target    types.ID
	guarantor types.ID
}

// Batch collects ledger mutations that are committed together.
type Batch struct {
	debits     []debit
	records    []recordPut
	guarantees []guarantee
}

// NewBatch returns an empty batch.
func NewBatch() *Batch {
	return &Batch{}
}

// Debit schedules a debit of amount from the channel's holdings.
func (b *Batch) Debit(id types.ID, asset types.Asset, amount *big.Int) *Batch {
	if amount != nil {
		amount = new(big.Int).Set(amount)
	}
	b.debits = append(b.debits, debit{id: id, asset: asset, amount: amount})
	return b
}

// PutRecord schedules a write of the dispute record.
func (b *Batch) PutRecord(id types.ID, rec *types.DisputeRecord) *Batch {
	b.records = append(b.records, recordPut{id: id, record: rec.Clone()})
	return b
}

// AddGuarantor schedules registering guarantor as a funding source of target.
// Registering the same pair twice has no effect.
func (b *Batch) AddGuarantor(target, guarantor types.ID) *Batch {
	b.guarantees = append(b.guarantees, guarantee{target: target, guarantor: guarantor})
	return b
}

// Empty reports whether the batch contains no mutation.
func (b *Batch) Empty() bool {
	return len(b.debits) == 0 && len(b.records) == 0 && len(b.guarantees) == 0
}

// validDebits checks that every scheduled debit is non-negative and that the
// summed debits per holding do not exceed the current holdings.
func (b *Batch) validDebits(holdings func(types.ID, types.Asset) (*big.Int, error)) error {
	type key struct {
		id    types.ID
		asset types.Asset
	}
	sums := make(map[key]*big.Int)
	for _, d := range b.debits {
		if d.amount == nil || d.amount.Sign() < 0 {
			return ErrInvalidAmount
		}
		k := key{d.id, d.asset}
		if _, ok := sums[k]; !ok {
			sums[k] = new(big.Int)
		}
		sums[k].Add(sums[k], d.amount)
		held, err := holdings(d.id, d.asset)
		if err != nil {
			return err
		}
		if sums[k].Cmp(held) > 0 {
			return ErrInsufficientFunds
		}
	}
	return nil
}

func validDeposit(held, expectedHeld, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if expectedHeld == nil || held.Cmp(expectedHeld) != 0 {
		return ErrDepositRaceDetected
	}
	if new(big.Int).Add(held, amount).Cmp(types.MaxAmount) > 0 {
		return fmt.Errorf("%w: holdings would exceed uint256", ErrInvalidAmount)
	}
	return nil
}

func containsID(ids []types.ID, id types.ID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
