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

package types

import "github.com/ethereum/go-ethereum/common"

// DisputeRecord is the on-ledger record of a channel that has been
// challenged, checkpointed or concluded.
type DisputeRecord struct {
	// TurnNumRecord is the largest supported turn number seen on-ledger.
	TurnNumRecord uint64
	// FinalizesAt is the ledger time at which the outcome becomes final. Zero
	// means no challenge is running.
	FinalizesAt uint64
	// StateHash is the hash of the state whose outcome is recorded.
	StateHash common.Hash
	// Outcome is the pending or finalized outcome. After a transfer it holds the
	// amounts that are still owed, which are the open guarantees.
	Outcome Outcome
	// Settled is set once the finalized outcome has been transferred.
	Settled bool
}

// IsFinalizedAt reports whether the record is final at ledger time now.
func (r *DisputeRecord) IsFinalizedAt(now uint64) bool {
	return r.FinalizesAt != 0 && now >= r.FinalizesAt
}

// Clone returns a deep copy of the record.
func (r *DisputeRecord) Clone() *DisputeRecord {
	clone := *r
	clone.Outcome = r.Outcome.Clone()
	return &clone
}
