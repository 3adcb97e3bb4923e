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
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"perun.network/go-perun/log"
	"polycry.pt/poly-go/sync"

	"perun.network/perun-nitro-backend/channel/types"
	"perun.network/perun-nitro-backend/event"
	"perun.network/perun-nitro-backend/ledger"
)

// Adjudicator is the on-ledger part of the protocol. It sequences deposits,
// challenges, checkpoints, conclusions and transfers: every operation runs
// atomically and either applies completely or not at all.
type Adjudicator struct {
	log     log.Embedding
	mu      sync.Mutex
	store   ledger.Store
	bank    Bank
	clock   Clock
	apps    *AppRegistry
	metrics *Metrics

	subsMu sync.Mutex
	subs   map[types.ID]map[*AdjEventSub]struct{}
}

// AdjudicatorOption configures an Adjudicator.
type AdjudicatorOption func(*Adjudicator)

// WithApps sets the registry resolving app validators.
func WithApps(apps *AppRegistry) AdjudicatorOption {
	return func(a *Adjudicator) { a.apps = apps }
}

// WithMetrics sets the metrics of the adjudicator.
func WithMetrics(m *Metrics) AdjudicatorOption {
	return func(a *Adjudicator) { a.metrics = m }
}

// NewAdjudicator returns an adjudicator keeping custody in store, paying out
// through bank and reading ledger time from clock.
func NewAdjudicator(store ledger.Store, bank Bank, clock Clock, opts ...AdjudicatorOption) *Adjudicator {
	a := &Adjudicator{
		log:     log.MakeEmbedding(log.Default()),
		store:   store,
		bank:    bank,
		clock:   clock,
		apps:    NewAppRegistry(),
		metrics: NopMetrics(),
		subs:    make(map[types.ID]map[*AdjEventSub]struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Clock returns the ledger clock of the adjudicator.
func (a *Adjudicator) Clock() Clock {
	return a.clock
}

func (a *Adjudicator) lock(ctx context.Context) error {
	if !a.mu.TryLockCtx(ctx) {
		return errors.WithMessage(ctx.Err(), "acquiring adjudicator lock")
	}
	return nil
}

// observe counts the operation and logs failures.
func (a *Adjudicator) observe(op string, id types.ID, err error) {
	result := "ok"
	if err != nil {
		result = "error"
		a.log.Log().WithField("op", op).WithField("channel", id).Debugf("operation rejected: %v", err)
	}
	a.metrics.Operations.With("op", op, "result", result).Add(1)
}

// Deposit escrows amount of asset for the channel id, taken from the external
// balance of from. It succeeds only if the channel currently holds exactly
// expectedHeld and returns the new holdings.
func (a *Adjudicator) Deposit(ctx context.Context, from common.Address, id types.ID, asset types.Asset, expectedHeld, amount *big.Int) (held *big.Int, err error) {
	if err := a.lock(ctx); err != nil {
		return nil, err
	}
	defer a.mu.Unlock()
	defer func() { a.observe("deposit", id, err) }()

	rec, err := loadRecord(a.store, id)
	if err != nil {
		return nil, err
	}
	if StatusOf(rec, a.clock.Now()) == StatusFinalized {
		return nil, ErrAlreadyFinalized
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	current, err := a.store.Holdings(id, asset)
	if err != nil {
		return nil, err
	}
	if expectedHeld == nil || current.Cmp(expectedHeld) != 0 {
		return nil, errors.WithMessagef(ErrDepositRaceDetected, "holdings %v, expected %v", current, expectedHeld)
	}

	if err := a.bank.Debit(asset, from, amount); err != nil {
		return nil, errors.WithMessage(err, "taking deposit")
	}
	held, err = a.store.Deposit(id, asset, expectedHeld, amount)
	if err != nil {
		if rerr := a.bank.Credit(asset, from, amount); rerr != nil {
			a.log.Log().WithError(rerr).Error("refunding failed deposit")
		}
		return nil, err
	}

	a.log.Log().WithField("channel", id).Infof("deposited %v %s, holdings %v", amount, asset, held)
	a.emit(&event.Deposited{
		Base:     event.Base{IDV: id},
		Asset:    asset,
		Amount:   new(big.Int).Set(amount),
		Holdings: new(big.Int).Set(held),
	})
	return held, nil
}

// Challenge registers the latest state of the bundle as the pending outcome
// of its channel. The bundle must be supported by all participants and
// challengerSig must be a participant's signature of the challenge message of
// that state. A running challenge is superseded only by a larger turn number.
func (a *Adjudicator) Challenge(ctx context.Context, bundle SignedStates, challengerSig []byte) (err error) {
	if err := a.lock(ctx); err != nil {
		return err
	}
	defer a.mu.Unlock()
	var id types.ID
	defer func() { a.observe("challenge", id, err) }()

	now, err := a.now()
	if err != nil {
		return err
	}
	proof, rec, err := a.challenge(bundle, challengerSig, now)
	if err != nil {
		return err
	}
	id = proof.ID
	if err := a.store.Commit(recordBatch(id, rec)); err != nil {
		return err
	}

	a.log.Log().WithField("channel", id).Infof("challenge registered at turn %d, finalizes at %d", rec.TurnNumRecord, rec.FinalizesAt)
	a.emit(&event.ChallengeRegistered{
		Base:    event.Base{IDV: id, VersionV: rec.TurnNumRecord},
		State:   proof.State.Clone(),
		Timeout: event.NewTimeout(a.clock, rec.FinalizesAt),
	})
	return nil
}

// Checkpoint records a supported state with a larger turn number than the
// record and clears a running challenge.
func (a *Adjudicator) Checkpoint(ctx context.Context, bundle SignedStates) (err error) {
	if err := a.lock(ctx); err != nil {
		return err
	}
	defer a.mu.Unlock()
	var id types.ID
	defer func() { a.observe("checkpoint", id, err) }()

	now, err := a.now()
	if err != nil {
		return err
	}
	proof, rec, err := a.checkpoint(bundle, now)
	if err != nil {
		return err
	}
	id = proof.ID
	if err := a.store.Commit(ledger.NewBatch().PutRecord(id, rec)); err != nil {
		return err
	}

	a.log.Log().WithField("channel", id).Infof("checkpoint at turn %d", rec.TurnNumRecord)
	a.emit(&event.Checkpointed{Base: event.Base{IDV: id, VersionV: rec.TurnNumRecord}})
	return nil
}

// Conclude finalizes the channel immediately with the outcome of a final state
// supported by all participants.
func (a *Adjudicator) Conclude(ctx context.Context, bundle SignedStates) (err error) {
	if err := a.lock(ctx); err != nil {
		return err
	}
	defer a.mu.Unlock()
	var id types.ID
	defer func() { a.observe("conclude", id, err) }()

	now, err := a.now()
	if err != nil {
		return err
	}
	proof, rec, err := a.conclude(bundle, now)
	if err != nil {
		return err
	}
	id = proof.ID
	if err := a.store.Commit(recordBatch(id, rec)); err != nil {
		return err
	}
	a.emitConcluded(id, rec)
	return nil
}

// Transfer pays out the finalized outcome of the channel id and returns the
// payouts. Finalized guarantors of the channel that were not transferred yet
// are transferred along with it and their payouts are included. A channel is
// transferred once. Later calls return ErrAlreadySettled.
// ErrGuarantorNotFinalized is returned while a guarantee towards the channel
// is still challenged.
func (a *Adjudicator) Transfer(ctx context.Context, id types.ID) (payouts []types.Payout, err error) {
	if err := a.lock(ctx); err != nil {
		return nil, err
	}
	defer a.mu.Unlock()
	defer func() { a.observe("transfer", id, err) }()

	v := newLedgerView(a.store)
	if _, err := v.transfer(id, a.clock.Now()); err != nil {
		return nil, err
	}
	if err := a.settle(v); err != nil {
		return nil, err
	}
	a.emitTransferred(v)
	return v.payouts, nil
}

// ConcludeAndTransfer concludes the channel and transfers its outcome in one
// atomic operation.
func (a *Adjudicator) ConcludeAndTransfer(ctx context.Context, bundle SignedStates) (payouts []types.Payout, err error) {
	if err := a.lock(ctx); err != nil {
		return nil, err
	}
	defer a.mu.Unlock()
	var id types.ID
	defer func() { a.observe("conclude_and_transfer", id, err) }()

	now, err := a.now()
	if err != nil {
		return nil, err
	}
	proof, concluded, err := a.conclude(bundle, now)
	if err != nil {
		return nil, err
	}
	id = proof.ID

	v := newLedgerView(a.store)
	v.putRecord(id, concluded)
	if err := v.indexGuarantees(id, concluded.Outcome); err != nil {
		return nil, err
	}
	if _, err := v.transfer(id, now); err != nil {
		return nil, err
	}
	if err := a.settle(v); err != nil {
		return nil, err
	}
	a.emitConcluded(id, concluded)
	a.emitTransferred(v)
	return v.payouts, nil
}

// settle credits the payouts of the view and commits its writes. Credits are
// reverted if a later step fails.
func (a *Adjudicator) settle(v *ledgerView) error {
	credited := 0
	revert := func() {
		for _, p := range v.payouts[:credited] {
			if err := a.bank.Debit(p.Asset, p.To, p.Amount); err != nil {
				a.log.Log().WithError(err).Errorf("reverting payout %v", p)
			}
		}
	}
	for _, p := range v.payouts {
		if err := a.bank.Credit(p.Asset, p.To, p.Amount); err != nil {
			revert()
			return errors.WithMessagef(err, "paying out %v", p)
		}
		credited++
	}
	if err := a.store.Commit(v.batch()); err != nil {
		revert()
		return errors.WithMessage(err, "committing transfer")
	}
	for _, p := range v.payouts {
		amount, _ := new(big.Float).SetInt(p.Amount).Float64()
		a.metrics.PaidOut.Add(amount)
	}
	return nil
}

func (a *Adjudicator) emitConcluded(id types.ID, rec *types.DisputeRecord) {
	a.log.Log().WithField("channel", id).Infof("concluded at turn %d", rec.TurnNumRecord)
	a.emit(&event.Concluded{Base: event.Base{IDV: id, VersionV: rec.TurnNumRecord}, FinalizesAt: rec.FinalizesAt})
}

// emitTransferred emits one event per channel transferred by v.
func (a *Adjudicator) emitTransferred(v *ledgerView) {
	for _, st := range v.settlements {
		a.log.Log().WithField("channel", st.id).Infof("transferred outcome, %d payouts", len(st.payouts))
		a.emit(&event.AllocationUpdated{
			Base:      event.Base{IDV: st.id, VersionV: st.rec.TurnNumRecord},
			Payouts:   st.payouts,
			Remaining: st.rec.Outcome.Clone(),
		})
	}
}

// recordBatch writes rec and registers id as guarantor of the channels its
// outcome guarantees funds to.
func recordBatch(id types.ID, rec *types.DisputeRecord) *ledger.Batch {
	b := ledger.NewBatch().PutRecord(id, rec)
	for _, target := range guaranteeTargets(rec.Outcome) {
		b.AddGuarantor(target, id)
	}
	return b
}

// Holdings returns the amount of asset held for the channel.
func (a *Adjudicator) Holdings(ctx context.Context, id types.ID, asset types.Asset) (*big.Int, error) {
	if err := a.lock(ctx); err != nil {
		return nil, err
	}
	defer a.mu.Unlock()
	return a.store.Holdings(id, asset)
}

// Record returns the dispute record of the channel or ErrRecordNotFound.
func (a *Adjudicator) Record(ctx context.Context, id types.ID) (*types.DisputeRecord, error) {
	if err := a.lock(ctx); err != nil {
		return nil, err
	}
	defer a.mu.Unlock()
	return a.store.Record(id)
}

// Status returns the dispute status of the channel at the current ledger time.
func (a *Adjudicator) Status(ctx context.Context, id types.ID) (Status, error) {
	if err := a.lock(ctx); err != nil {
		return StatusOpen, err
	}
	defer a.mu.Unlock()
	rec, err := loadRecord(a.store, id)
	if err != nil {
		return StatusOpen, err
	}
	return StatusOf(rec, a.clock.Now()), nil
}
