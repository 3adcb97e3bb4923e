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

package ledger

import (
	"math/big"

	"polycry.pt/poly-go/sync"

	"perun.network/perun-nitro-backend/channel/types"
)

type holdingKey struct {
	id    types.ID
	asset types.Asset
}

// MemStore is an in-process Store.
type MemStore struct {
	mu         sync.Mutex
	holdings   map[holdingKey]*big.Int
	records    map[types.ID]*types.DisputeRecord
	guarantors map[types.ID][]types.ID
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		holdings:   make(map[holdingKey]*big.Int),
		records:    make(map[types.ID]*types.DisputeRecord),
		guarantors: make(map[types.ID][]types.ID),
	}
}

func (s *MemStore) holdingsLocked(id types.ID, asset types.Asset) (*big.Int, error) {
	if h, ok := s.holdings[holdingKey{id, asset}]; ok {
		return new(big.Int).Set(h), nil
	}
	return new(big.Int), nil
}

// Holdings returns the amount of asset held for the channel.
func (s *MemStore) Holdings(id types.ID, asset types.Asset) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.holdingsLocked(id, asset)
}

// Deposit adds amount to the holdings if they equal expectedHeld.
func (s *MemStore) Deposit(id types.ID, asset types.Asset, expectedHeld, amount *big.Int) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	held, _ := s.holdingsLocked(id, asset)
	if err := validDeposit(held, expectedHeld, amount); err != nil {
		return nil, err
	}
	held.Add(held, amount)
	s.holdings[holdingKey{id, asset}] = held
	return new(big.Int).Set(held), nil
}

// Debit removes amount from the holdings.
func (s *MemStore) Debit(id types.ID, asset types.Asset, amount *big.Int) error {
	return s.Commit(NewBatch().Debit(id, asset, amount))
}

// Record returns the dispute record of the channel.
func (s *MemStore) Record(id types.ID) (*types.DisputeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return rec.Clone(), nil
}

// Guarantors returns the channels holding a guarantee for id.
func (s *MemStore) Guarantors(id types.ID) ([]types.ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.ID(nil), s.guarantors[id]...), nil
}

// Commit applies the batch atomically.
func (s *MemStore) Commit(batch *Batch) error {
	if batch.Empty() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := batch.validDebits(s.holdingsLocked); err != nil {
		return err
	}
	for _, d := range batch.debits {
		held, _ := s.holdingsLocked(d.id, d.asset)
		s.holdings[holdingKey{d.id, d.asset}] = held.Sub(held, d.amount)
	}
	for _, r := range batch.records {
		s.records[r.id] = r.record.Clone()
	}
	for _, g := range batch.guarantees {
		if !containsID(s.guarantors[g.target], g.guarantor) {
			s.guarantors[g.target] = append(s.guarantors[g.target], g.guarantor)
		}
	}
	return nil
}

// Close is a no-op.
func (s *MemStore) Close() error {
	return nil
}
