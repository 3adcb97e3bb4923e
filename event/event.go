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

// Package event defines the events emitted by the adjudicator.
package event

import (
	"fmt"
	"math/big"

	"perun.network/perun-nitro-backend/channel/types"
)

// Version is the turn number an event refers to.
type Version = uint64

// Type is the kind of an adjudicator event.
type Type int

const (
	TypeDeposited Type = iota
	TypeChallengeRegistered
	TypeCheckpointed
	TypeConcluded
	TypeAllocationUpdated
)

func (t Type) String() string {
	switch t {
	case TypeDeposited:
		return "deposited"
	case TypeChallengeRegistered:
		return "challenge_registered"
	case TypeCheckpointed:
		return "checkpointed"
	case TypeConcluded:
		return "concluded"
	case TypeAllocationUpdated:
		return "allocation_updated"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

type (
	// AdjudicatorEvent is an event on a single channel.
	AdjudicatorEvent interface {
		ID() types.ID
		Type() Type
		Version() Version
	}

	// Base holds the fields shared by all events.
	Base struct {
		IDV      types.ID
		VersionV Version
	}

	// Deposited is emitted when funds are escrowed for a channel.
	Deposited struct {
		Base
		Asset    types.Asset
		Amount   *big.Int
		Holdings *big.Int
	}

	// ChallengeRegistered is emitted when a challenge is registered or
	// superseded by a fresher one.
	ChallengeRegistered struct {
		Base
		State   *types.State
		Timeout *Timeout
	}

	// Checkpointed is emitted when a checkpoint clears a running challenge.
	Checkpointed struct {
		Base
	}

	// Concluded is emitted when a channel is finalized by a unanimously
	// supported final state.
	Concluded struct {
		Base
		FinalizesAt uint64
	}

	// AllocationUpdated is emitted when a finalized outcome was transferred.
	AllocationUpdated struct {
		Base
		Payouts []types.Payout
		// Remaining is the outcome after the transfer. It holds the open
		// guarantees.
		Remaining types.Outcome
	}
)

func (b Base) ID() types.ID { return b.IDV }
func (b Base) Version() Version { return b.VersionV }
func (Deposited) Type() Type { return TypeDeposited }
func (Checkpointed) Type() Type { return TypeCheckpointed }
func (Concluded) Type() Type { return TypeConcluded }
func (ChallengeRegistered) Type() Type { return TypeChallengeRegistered }
func (AllocationUpdated) Type() Type { return TypeAllocationUpdated }
