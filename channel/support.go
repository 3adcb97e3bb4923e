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

	"github.com/ethereum/go-ethereum/common"

	"perun.network/perun-nitro-backend/channel/types"
)

// SignedStates is a bundle of consecutive states of one channel together with
// one signature per participant. WhoSignedWhat[i] is the index of the state
// in States that participant i signed.
type SignedStates struct {
	States        []*types.State
	Sigs          [][]byte
	WhoSignedWhat []uint8
}

// Latest returns the state with the largest turn number, or nil.
func (s SignedStates) Latest() *types.State {
	if len(s.States) == 0 {
		return nil
	}
	return s.States[len(s.States)-1]
}

// SupportProof attests that the latest state of a bundle is supported by all
// participants.
type SupportProof struct {
	ID        types.ID
	State     *types.State
	StateHash common.Hash
}

// AggregateSupportProof checks that the bundle supports its latest state:
// the states are consecutive and valid transitions of the same channel, every
// participant signed a state at least as recent as its own latest move and all
// signatures recover to the claimed participants. App transitions are resolved
// through apps, which may be nil.
func AggregateSupportProof(bundle SignedStates, apps *AppRegistry) (*SupportProof, error) {
	states := bundle.States
	if len(states) == 0 {
		return nil, fmt.Errorf("%w: empty bundle", ErrInconsistentTurnSequence)
	}
	first := states[0]
	if err := first.Valid(); err != nil {
		return nil, err
	}
	n := first.NumParts()
	if len(states) > n {
		return nil, fmt.Errorf("%w: %d states for %d participants", ErrInconsistentTurnSequence, len(states), n)
	}

	hashes := make([]common.Hash, len(states))
	for i, s := range states {
		if i > 0 {
			if !s.SameFixedPart(first) {
				return nil, fmt.Errorf("%w: state %d has a different fixed part", ErrInconsistentTurnSequence, i)
			}
			if err := s.Outcome.Valid(); err != nil {
				return nil, err
			}
			if err := validTransition(states[i-1], s, apps); err != nil {
				return nil, err
			}
		}
		h, err := s.Hash()
		if err != nil {
			return nil, err
		}
		hashes[i] = h
	}

	latest := states[len(states)-1]
	if err := checkWhoSignedWhat(bundle.WhoSignedWhat, len(bundle.Sigs), latest.Mover(), n, len(states)); err != nil {
		return nil, err
	}

	participants := first.Channel.Participants
	for i, sig := range bundle.Sigs {
		signer, err := RecoverSigner(hashes[bundle.WhoSignedWhat[i]], sig)
		if err != nil {
			return nil, fmt.Errorf("%w: participant %d: %v", ErrSignatureMismatch, i, err)
		}
		if signer != participants[i] {
			return nil, fmt.Errorf("%w: participant %d signature recovers to %s", ErrSignatureMismatch, i, signer.Hex())
		}
	}

	id, err := first.ID()
	if err != nil {
		return nil, err
	}
	return &SupportProof{ID: id, State: latest, StateHash: hashes[len(hashes)-1]}, nil
}

// checkWhoSignedWhat requires that participant i signed a state no older than
// its own latest move, which is offset_i = (mover - i) mod n turns before the
// latest state, mover being the participant that moved last.
func checkWhoSignedWhat(whoSignedWhat []uint8, numSigs int, mover, n, numStates int) error {
	if len(whoSignedWhat) != n || numSigs != n {
		return fmt.Errorf("%w: %d signatures and %d signer indices for %d participants",
			ErrIncompleteSupport, numSigs, len(whoSignedWhat), n)
	}
	for i, idx := range whoSignedWhat {
		if int(idx) >= numStates {
			return fmt.Errorf("%w: participant %d signed unknown state %d", ErrIncompleteSupport, i, idx)
		}
		offset := (n + mover - i) % n
		if int(idx)+offset+1 < numStates {
			return fmt.Errorf("%w: participant %d signed state %d, which is older than its last move",
				ErrIncompleteSupport, i, idx)
		}
	}
	return nil
}
