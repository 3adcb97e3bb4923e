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
	"errors"
	"fmt"
	"math"

	"perun.network/perun-nitro-backend/channel/types"
	"perun.network/perun-nitro-backend/ledger"
)

// Status is the dispute status of a channel at a given ledger time.
type Status int

const (
	// StatusOpen means no challenge is running.
	StatusOpen Status = iota
	// StatusChallenged means a challenge is running and has not timed out.
	StatusChallenged
	// StatusFinalized means the recorded outcome is final.
	StatusFinalized
)

func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusChallenged:
		return "challenged"
	case StatusFinalized:
		return "finalized"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// StatusOf derives the status of rec at ledger time now. A nil record is open.
func StatusOf(rec *types.DisputeRecord, now uint64) Status {
	switch {
	case rec == nil || rec.FinalizesAt == 0:
		return StatusOpen
	case now < rec.FinalizesAt:
		return StatusChallenged
	default:
		return StatusFinalized
	}
}

var errClockNotStarted = errors.New("ledger clock not started")

// now returns the ledger time. Time zero marks an unset deadline in the
// dispute record and is therefore never a valid ledger time.
func (a *Adjudicator) now() (uint64, error) {
	now := a.clock.Now()
	if now == 0 {
		return 0, errClockNotStarted
	}
	return now, nil
}

// loadRecord returns the dispute record of id, or nil if there is none.
func loadRecord(store ledger.Store, id types.ID) (*types.DisputeRecord, error) {
	rec, err := store.Record(id)
	if errors.Is(err, ledger.ErrRecordNotFound) {
		return nil, nil
	}
	return rec, err
}

// requireNotFinalized looks up the channel of the bundle and fails with
// ErrAlreadyFinalized if its outcome is final. It returns the current record.
func (a *Adjudicator) requireNotFinalized(bundle SignedStates, now uint64) (*types.DisputeRecord, error) {
	latest := bundle.Latest()
	if latest == nil {
		return nil, nil
	}
	id, err := latest.ID()
	if err != nil {
		// Reported by the support check.
		return nil, nil
	}
	rec, err := loadRecord(a.store, id)
	if err != nil {
		return nil, err
	}
	if StatusOf(rec, now) == StatusFinalized {
		return nil, ErrAlreadyFinalized
	}
	return rec, nil
}

// supported aggregates the support proof of the bundle. Every failure is
// reported as ErrUnsupported wrapping the cause.
func (a *Adjudicator) supported(bundle SignedStates) (*SupportProof, error) {
	proof, err := AggregateSupportProof(bundle, a.apps)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupported, err)
	}
	return proof, nil
}

// challenge validates a challenge and returns the record it registers.
func (a *Adjudicator) challenge(bundle SignedStates, challengerSig []byte, now uint64) (*SupportProof, *types.DisputeRecord, error) {
	rec, err := a.requireNotFinalized(bundle, now)
	if err != nil {
		return nil, nil, err
	}
	proof, err := a.supported(bundle)
	if err != nil {
		return nil, nil, err
	}
	// The deadline must be representable.
	if d := proof.State.ChallengeDuration; d == 0 || d > math.MaxUint64-now {
		return nil, nil, fmt.Errorf("%w: %d at ledger time %d", ErrInvalidChallengeDuration, d, now)
	}
	if rec != nil && proof.State.TurnNum <= rec.TurnNumRecord {
		return nil, nil, fmt.Errorf("%w: turn %d, recorded %d", ErrStaleChallenge, proof.State.TurnNum, rec.TurnNumRecord)
	}

	ch, err := types.ChallengeHash(proof.StateHash)
	if err != nil {
		return nil, nil, err
	}
	challenger, err := RecoverSigner(ch, challengerSig)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: challenger: %v", ErrSignatureMismatch, err)
	}
	if proof.State.Channel.Index(challenger) < 0 {
		return nil, nil, fmt.Errorf("%w: challenger %s is not a participant", ErrSignatureMismatch, challenger.Hex())
	}

	return proof, &types.DisputeRecord{
		TurnNumRecord: proof.State.TurnNum,
		FinalizesAt:   now + proof.State.ChallengeDuration,
		StateHash:     proof.StateHash,
		Outcome:       proof.State.Outcome.Clone(),
	}, nil
}

// checkpoint validates a checkpoint and returns the record it registers. The
// record clears any running challenge.
func (a *Adjudicator) checkpoint(bundle SignedStates, now uint64) (*SupportProof, *types.DisputeRecord, error) {
	rec, err := a.requireNotFinalized(bundle, now)
	if err != nil {
		return nil, nil, err
	}
	proof, err := a.supported(bundle)
	if err != nil {
		return nil, nil, err
	}
	if rec != nil && proof.State.TurnNum <= rec.TurnNumRecord {
		return nil, nil, fmt.Errorf("%w: turn %d, recorded %d", ErrStaleChallenge, proof.State.TurnNum, rec.TurnNumRecord)
	}
	return proof, &types.DisputeRecord{TurnNumRecord: proof.State.TurnNum}, nil
}

// conclude validates a conclusion and returns the record finalizing the
// channel at now.
func (a *Adjudicator) conclude(bundle SignedStates, now uint64) (*SupportProof, *types.DisputeRecord, error) {
	if _, err := a.requireNotFinalized(bundle, now); err != nil {
		return nil, nil, err
	}
	proof, err := a.supported(bundle)
	if err != nil {
		return nil, nil, err
	}
	if !proof.State.IsFinal {
		return nil, nil, fmt.Errorf("%w: turn %d is not final", ErrUnsupported, proof.State.TurnNum)
	}
	return proof, &types.DisputeRecord{
		TurnNumRecord: proof.State.TurnNum,
		FinalizesAt:   now,
		StateHash:     proof.StateHash,
		Outcome:       proof.State.Outcome.Clone(),
	}, nil
}
