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
	"sync/atomic"

	"perun.network/perun-nitro-backend/event"
)

// Clock reads the ledger time in seconds.
type Clock = event.Clock

// ManualClock is a ledger clock that only moves when told to.
type ManualClock struct {
	now atomic.Uint64
}

var _ Clock = (*ManualClock)(nil)

// NewManualClock returns a clock starting at now.
func NewManualClock(now uint64) *ManualClock {
	c := new(ManualClock)
	c.now.Store(now)
	return c
}

// Now returns the current ledger time.
func (c *ManualClock) Now() uint64 {
	return c.now.Load()
}

// Advance moves the clock forward by d seconds and returns the new time.
func (c *ManualClock) Advance(d uint64) uint64 {
	return c.now.Add(d)
}

// Set moves the clock to t. Moving it backwards is ignored.
func (c *ManualClock) Set(t uint64) {
	for {
		cur := c.now.Load()
		if t <= cur || c.now.CompareAndSwap(cur, t) {
			return
		}
	}
}
