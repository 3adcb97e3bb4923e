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

package event

import (
	"context"
	"time"
)

// DefaultTimeoutPollInterval default value for the PollInterval of a Timeout.
const DefaultTimeoutPollInterval = 100 * time.Millisecond

// Clock reads the current ledger time in seconds.
type Clock interface {
	Now() uint64
}

// Timeout expires once the ledger clock reaches a deadline.
type Timeout struct {
	When         uint64
	Clock        Clock
	PollInterval time.Duration
}

// NewTimeout returns a Timeout which expires at ledger time when.
func NewTimeout(clock Clock, when uint64) *Timeout {
	return &Timeout{When: when, Clock: clock, PollInterval: DefaultTimeoutPollInterval}
}

// IsElapsed reports whether the deadline has been reached.
func (t *Timeout) IsElapsed(context.Context) bool {
	return t.Clock.Now() >= t.When
}

// Wait polls the ledger clock until the deadline is reached or the context is
// done.
func (t *Timeout) Wait(ctx context.Context) error {
	if t.IsElapsed(ctx) {
		return nil
	}
	ticker := time.NewTicker(t.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if t.IsElapsed(ctx) {
				return nil
			}
		}
	}
}
