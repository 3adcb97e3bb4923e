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

package channel

import (
	"fmt"
	"math/big"

	"perun.network/perun-nitro-backend/channel/types"
	"perun.network/perun-nitro-backend/ledger"
)

type holdingKey struct {
	id    types.ID
	asset types.Asset
}

// ledgerView buffers reads and writes of one operation on top of the store.
// Its writes are committed together by batch.
type ledgerView struct {
	store      ledger.Store
	holdings   map[holdingKey]*big.Int
	records    map[types.ID]*types.DisputeRecord
	guarantors map[types.ID][]types.ID

	// dirty lists modified records in modification order.
	dirty   []types.ID
	b       *ledger.Batch
	payouts []types.Payout

	// settling marks the channels whose transfer is in progress.
	settling    map[types.ID]bool
	settlements []settlement
}

// settlement is the transfer of one channel within an operation.
type settlement struct {
	id      types.ID
	rec     *types.DisputeRecord
	payouts []types.Payout
}

func newLedgerView(store ledger.Store) *ledgerView {
	return &ledgerView{
		store:      store,
		holdings:   make(map[holdingKey]*big.Int),
		records:    make(map[types.ID]*types.DisputeRecord),
		guarantors: make(map[types.ID][]types.ID),
		b:          ledger.NewBatch(),
		settling:   make(map[types.ID]bool),
	}
}

func (v *ledgerView) holding(id types.ID, asset types.Asset) (*big.Int, error) {
	k := holdingKey{id, asset}
	if h, ok := v.holdings[k]; ok {
		return h, nil
	}
	h, err := v.store.Holdings(id, asset)
	if err != nil {
		return nil, err
	}
	v.holdings[k] = h
	return h, nil
}

func (v *ledgerView) debit(id types.ID, asset types.Asset, amount *big.Int) error {
	h, err := v.holding(id, asset)
	if err != nil {
		return err
	}
	if h.Cmp(amount) < 0 {
		return fmt.Errorf("%w: channel %s", ErrInsufficientFunds, id)
	}
	h.Sub(h, amount)
	v.b.Debit(id, asset, amount)
	return nil
}

// record returns the buffered record of id, or nil if there is none. The
// returned record may be modified and must then be marked with putRecord.
func (v *ledgerView) record(id types.ID) (*types.DisputeRecord, error) {
	if rec, ok := v.records[id]; ok {
		return rec, nil
	}
	rec, err := loadRecord(v.store, id)
	if err != nil {
		return nil, err
	}
	v.records[id] = rec
	return rec, nil
}

func (v *ledgerView) putRecord(id types.ID, rec *types.DisputeRecord) {
	v.records[id] = rec
	for _, d := range v.dirty {
		if d == id {
			return
		}
	}
	v.dirty = append(v.dirty, id)
}

func (v *ledgerView) guarantorsOf(id types.ID) ([]types.ID, error) {
	if gs, ok := v.guarantors[id]; ok {
		return gs, nil
	}
	gs, err := v.store.Guarantors(id)
	if err != nil {
		return nil, err
	}
	v.guarantors[id] = gs
	return gs, nil
}

func (v *ledgerView) addGuarantor(target, guarantor types.ID) error {
	gs, err := v.guarantorsOf(target)
	if err != nil {
		return err
	}
	for _, g := range gs {
		if g == guarantor {
			return nil
		}
	}
	v.guarantors[target] = append(gs, guarantor)
	v.b.AddGuarantor(target, guarantor)
	return nil
}

// guaranteeTargets returns the channels that o guarantees a positive amount
// to, in order of first appearance.
func guaranteeTargets(o types.Outcome) []types.ID {
	var targets []types.ID
	for _, alloc := range o {
		for _, item := range alloc.Items {
			ch, ok := item.Destination.Channel()
			if ok && item.Amount.Sign() > 0 && !containsID(targets, ch) {
				targets = append(targets, ch)
			}
		}
	}
	return targets
}

func containsID(ids []types.ID, id types.ID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

// indexGuarantees registers id as guarantor of every channel its outcome
// guarantees funds to.
func (v *ledgerView) indexGuarantees(id types.ID, o types.Outcome) error {
	for _, target := range guaranteeTargets(o) {
		if err := v.addGuarantor(target, id); err != nil {
			return err
		}
	}
	return nil
}

// settleGuarantors transfers the finalized guarantors of id that have not
// been transferred yet, so that their guarantees become claimable. A
// guarantor whose guarantee towards id is still challenged fails with
// ErrGuarantorNotFinalized.
func (v *ledgerView) settleGuarantors(id types.ID, now uint64) error {
	gs, err := v.guarantorsOf(id)
	if err != nil {
		return err
	}
	for _, g := range gs {
		if v.settling[g] {
			continue
		}
		rec, err := v.record(g)
		if err != nil {
			return err
		}
		if rec == nil || rec.Settled || !containsID(guaranteeTargets(rec.Outcome), id) {
			continue
		}
		if StatusOf(rec, now) != StatusFinalized {
			return fmt.Errorf("%w: guarantor %s finalizes at %d", ErrGuarantorNotFinalized, g, rec.FinalizesAt)
		}
		if _, err := v.transfer(g, now); err != nil {
			return err
		}
	}
	return nil
}

// batch returns all buffered writes.
func (v *ledgerView) batch() *ledger.Batch {
	for _, id := range v.dirty {
		v.b.PutRecord(id, v.records[id])
	}
	v.dirty = nil
	return v.b
}

// guaranteeItems returns the remaining guarantee items of guarantor towards
// target. Only settled guarantors hold claimable guarantees.
func (v *ledgerView) guaranteeItems(guarantor, target types.ID, asset types.Asset) ([]*types.AllocationItem, error) {
	rec, err := v.record(guarantor)
	if err != nil || rec == nil || !rec.Settled {
		return nil, err
	}
	alloc, ok := rec.Outcome.Allocation(asset)
	if !ok {
		return nil, nil
	}
	var items []*types.AllocationItem
	for i := range alloc.Items {
		if ch, ok := alloc.Items[i].Destination.Channel(); ok && ch == target {
			items = append(items, &alloc.Items[i])
		}
	}
	return items, nil
}

func sumItems(items []*types.AllocationItem) *big.Int {
	sum := new(big.Int)
	for _, it := range items {
		sum.Add(sum, it.Amount)
	}
	return sum
}

func minInt(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// available returns the funds id can draw: its direct holdings plus what its
// guarantors can still provide. path holds the channels on the current chain
// of guarantees and breaks cycles.
func (v *ledgerView) available(id types.ID, asset types.Asset, path map[types.ID]bool) (*big.Int, error) {
	h, err := v.holding(id, asset)
	if err != nil {
		return nil, err
	}
	total := new(big.Int).Set(h)
	path[id] = true
	defer delete(path, id)

	gs, err := v.guarantorsOf(id)
	if err != nil {
		return nil, err
	}
	for _, g := range gs {
		if path[g] {
			continue
		}
		items, err := v.guaranteeItems(g, id, asset)
		if err != nil {
			return nil, err
		}
		claim := sumItems(items)
		if claim.Sign() == 0 {
			continue
		}
		pool, err := v.available(g, asset, path)
		if err != nil {
			return nil, err
		}
		total.Add(total, minInt(claim, pool))
	}
	return total, nil
}

// draw takes up to amount from the funds of id: its direct holdings first,
// then its guarantors in registration order. Drawing from a guarantor reduces
// its guarantee towards id by the drawn amount. It returns the amount drawn.
func (v *ledgerView) draw(id types.ID, asset types.Asset, amount *big.Int, path map[types.ID]bool) (*big.Int, error) {
	remaining := new(big.Int).Set(amount)
	h, err := v.holding(id, asset)
	if err != nil {
		return nil, err
	}
	if direct := minInt(h, remaining); direct.Sign() > 0 {
		if err := v.debit(id, asset, direct); err != nil {
			return nil, err
		}
		remaining.Sub(remaining, direct)
	}
	if remaining.Sign() == 0 {
		return new(big.Int).Set(amount), nil
	}

	path[id] = true
	defer delete(path, id)
	gs, err := v.guarantorsOf(id)
	if err != nil {
		return nil, err
	}
	for _, g := range gs {
		if remaining.Sign() == 0 {
			break
		}
		if path[g] {
			continue
		}
		items, err := v.guaranteeItems(g, id, asset)
		if err != nil {
			return nil, err
		}
		want := minInt(sumItems(items), remaining)
		if want.Sign() == 0 {
			continue
		}
		got, err := v.draw(g, asset, want, path)
		if err != nil {
			return nil, err
		}
		if got.Sign() == 0 {
			continue
		}
		// Release the claimed part of the guarantee in item order.
		left := new(big.Int).Set(got)
		for _, it := range items {
			take := minInt(it.Amount, left)
			it.Amount.Sub(it.Amount, take)
			left.Sub(left, take)
		}
		rec, _ := v.record(g)
		v.putRecord(g, rec)
		remaining.Sub(remaining, got)
	}
	return new(big.Int).Sub(amount, remaining), nil
}

// transfer pays out the finalized outcome of id. Finalized guarantors of id
// are transferred first. Address items are then paid in list order from the
// funds available to the channel, and any shortfall is dropped. Guarantee
// items reserve the funds that remain for their target channel, which claims
// them on its own transfer.
func (v *ledgerView) transfer(id types.ID, now uint64) (*types.DisputeRecord, error) {
	rec, err := v.record(id)
	if err != nil {
		return nil, err
	}
	if StatusOf(rec, now) != StatusFinalized {
		return nil, ErrNotFinalized
	}
	if rec.Settled {
		return nil, ErrAlreadySettled
	}

	v.settling[id] = true
	defer delete(v.settling, id)
	if err := v.settleGuarantors(id, now); err != nil {
		return nil, err
	}
	start := len(v.payouts)

	rec = rec.Clone()
	for ai := range rec.Outcome {
		alloc := &rec.Outcome[ai]
		avail, err := v.available(id, alloc.Asset, make(map[types.ID]bool))
		if err != nil {
			return nil, err
		}
		reserved := new(big.Int)
		for ii := range alloc.Items {
			item := &alloc.Items[ii]
			free := new(big.Int).Sub(avail, reserved)
			if free.Sign() < 0 {
				free.SetInt64(0)
			}
			amount := minInt(item.Amount, free)

			if target, ok := item.Destination.Channel(); ok {
				item.Amount = amount
				reserved.Add(reserved, amount)
				if amount.Sign() > 0 {
					if err := v.addGuarantor(target, id); err != nil {
						return nil, err
					}
				}
				continue
			}

			to, _ := item.Destination.Address()
			item.Amount = new(big.Int)
			if amount.Sign() == 0 {
				continue
			}
			got, err := v.draw(id, alloc.Asset, amount, make(map[types.ID]bool))
			if err != nil {
				return nil, err
			}
			avail.Sub(avail, got)
			if got.Sign() > 0 {
				v.payouts = append(v.payouts, types.Payout{Asset: alloc.Asset, To: to, Amount: got})
			}
		}
	}
	rec.Settled = true
	v.putRecord(id, rec)
	v.settlements = append(v.settlements, settlement{
		id:      id,
		rec:     rec,
		payouts: append([]types.Payout(nil), v.payouts[start:]...),
	})
	return rec, nil
}
