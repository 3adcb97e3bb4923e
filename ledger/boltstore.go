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
	"fmt"
	"math/big"
	"os"
	"path/filepath"

	"go.etcd.io/bbolt"

	"perun.network/perun-nitro-backend/channel/types"
	"perun.network/perun-nitro-backend/wire"
)

var (
	bucketHoldings   = []byte("holdings")
	bucketRecords    = []byte("records")
	bucketGuarantors = []byte("guarantors")
)

// BoltStore is a Store persisted in a bbolt database.
type BoltStore struct {
	db *bbolt.DB
}

var _ Store = (*BoltStore)(nil)

// OpenBoltStore opens or creates the bbolt database at dbPath.
// The parent directory is created if it does not exist.
func OpenBoltStore(dbPath string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("ledger: create directory: %w", err)
	}
	db, err := bbolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("ledger: open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketHoldings, bucketRecords, bucketGuarantors} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %q: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ledger: create buckets: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error { return s.db.Close() }

// boltHoldingKey encodes the channel id followed by the asset address.
func boltHoldingKey(id types.ID, asset types.Asset) []byte {
	k := make([]byte, 0, types.IDLength+types.AssetLength)
	k = append(k, id[:]...)
	return append(k, asset[:]...)
}

func getHoldings(tx *bbolt.Tx, id types.ID, asset types.Asset) (*big.Int, error) {
	data := tx.Bucket(bucketHoldings).Get(boltHoldingKey(id, asset))
	if data == nil {
		return new(big.Int), nil
	}
	amount, err := wire.UnmarshalAmount(data)
	if err != nil {
		return nil, fmt.Errorf("decode holdings: %w", err)
	}
	return amount, nil
}

func putHoldings(tx *bbolt.Tx, id types.ID, asset types.Asset, amount *big.Int) error {
	data, err := wire.MarshalAmount(amount)
	if err != nil {
		return fmt.Errorf("encode holdings: %w", err)
	}
	return tx.Bucket(bucketHoldings).Put(boltHoldingKey(id, asset), data)
}

func getGuarantors(tx *bbolt.Tx, id types.ID) ([]types.ID, error) {
	data := tx.Bucket(bucketGuarantors).Get(id[:])
	if data == nil {
		return nil, nil
	}
	ids, err := wire.UnmarshalIDs(data)
	if err != nil {
		return nil, fmt.Errorf("decode guarantors: %w", err)
	}
	return ids, nil
}

// Holdings returns the amount of asset held for the channel.
func (s *BoltStore) Holdings(id types.ID, asset types.Asset) (*big.Int, error) {
	var held *big.Int
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		held, err = getHoldings(tx, id, asset)
		return err
	})
	return held, err
}

// Deposit adds amount to the holdings if they equal expectedHeld.
func (s *BoltStore) Deposit(id types.ID, asset types.Asset, expectedHeld, amount *big.Int) (*big.Int, error) {
	var held *big.Int
	err := s.db.Update(func(tx *bbolt.Tx) error {
		var err error
		held, err = getHoldings(tx, id, asset)
		if err != nil {
			return err
		}
		if err := validDeposit(held, expectedHeld, amount); err != nil {
			return err
		}
		held.Add(held, amount)
		return putHoldings(tx, id, asset, held)
	})
	if err != nil {
		return nil, err
	}
	return held, nil
}

// Debit removes amount from the holdings.
func (s *BoltStore) Debit(id types.ID, asset types.Asset, amount *big.Int) error {
	return s.Commit(NewBatch().Debit(id, asset, amount))
}

// Record returns the dispute record of the channel.
func (s *BoltStore) Record(id types.ID) (*types.DisputeRecord, error) {
	var rec *types.DisputeRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketRecords).Get(id[:])
		if data == nil {
			return ErrRecordNotFound
		}
		var x wire.Record
		if err := x.UnmarshalBinary(data); err != nil {
			return fmt.Errorf("decode record: %w", err)
		}
		r, err := wire.ToRecord(x)
		if err != nil {
			return fmt.Errorf("decode record: %w", err)
		}
		rec = &r
		return nil
	})
	return rec, err
}

// Guarantors returns the channels holding a guarantee for id.
func (s *BoltStore) Guarantors(id types.ID) ([]types.ID, error) {
	var ids []types.ID
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		ids, err = getGuarantors(tx, id)
		return err
	})
	return ids, err
}

// Commit applies the batch in a single bbolt transaction.
func (s *BoltStore) Commit(batch *Batch) error {
	if batch.Empty() {
		return nil
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		holdings := func(id types.ID, asset types.Asset) (*big.Int, error) {
			return getHoldings(tx, id, asset)
		}
		if err := batch.validDebits(holdings); err != nil {
			return err
		}
		for _, d := range batch.debits {
			held, err := getHoldings(tx, d.id, d.asset)
			if err != nil {
				return err
			}
			if err := putHoldings(tx, d.id, d.asset, held.Sub(held, d.amount)); err != nil {
				return err
			}
		}
		for _, r := range batch.records {
			x, err := wire.MakeRecord(*r.record)
			if err != nil {
				return fmt.Errorf("encode record: %w", err)
			}
			data, err := x.MarshalBinary()
			if err != nil {
				return fmt.Errorf("encode record: %w", err)
			}
			if err := tx.Bucket(bucketRecords).Put(r.id[:], data); err != nil {
				return fmt.Errorf("put record: %w", err)
			}
		}
		for _, g := range batch.guarantees {
			ids, err := getGuarantors(tx, g.target)
			if err != nil {
				return err
			}
			if containsID(ids, g.guarantor) {
				continue
			}
			data, err := wire.MarshalIDs(append(ids, g.guarantor))
			if err != nil {
				return fmt.Errorf("encode guarantors: %w", err)
			}
			if err := tx.Bucket(bucketGuarantors).Put(g.target[:], data); err != nil {
				return fmt.Errorf("put guarantors: %w", err)
			}
		}
		return nil
	})
}
