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
	"errors"
	"time"

	"perun.network/go-perun/log"

	"perun.network/perun-nitro-backend/channel/types"
	"perun.network/perun-nitro-backend/event"
)

// Watcher waits for the outcome of a channel to become final and transfers it.
type Watcher struct {
	adj          *Adjudicator
	pollInterval time.Duration
	log          log.Embedding
}

// NewWatcher returns a watcher on adj polling the ledger clock every
// pollInterval while a challenge runs.
func NewWatcher(adj *Adjudicator, pollInterval time.Duration) *Watcher {
	return &Watcher{adj: adj, pollInterval: pollInterval, log: log.MakeEmbedding(log.Default())}
}

// Watch blocks until the channel id is finalized, either by a timed out
// challenge or by a conclusion, then transfers its outcome and returns the
// payouts. If another party transferred first, it returns no payouts and no
// error. While a guarantor of the channel is still challenged, it keeps
// waiting.
func (w *Watcher) Watch(ctx context.Context, id types.ID) ([]types.Payout, error) {
	sub, err := w.adj.Subscribe(ctx, id)
	if err != nil {
		return nil, err
	}
	defer sub.Close()

	for {
		status, err := w.adj.Status(ctx, id)
		if err != nil {
			return nil, err
		}
		var deadline uint64
		switch status {
		case StatusFinalized:
			payouts, err := w.adj.Transfer(ctx, id)
			switch {
			case errors.Is(err, ErrAlreadySettled):
				return nil, nil
			case errors.Is(err, ErrGuarantorNotFinalized):
				// Retry once ledger time moved on.
				deadline = w.adj.Clock().Now() + 1
				w.log.Log().WithField("channel", id).Debugf("waiting for guarantors: %v", err)
			default:
				return payouts, err
			}
		case StatusChallenged:
			rec, err := w.adj.Record(ctx, id)
			if err != nil {
				return nil, err
			}
			deadline = rec.FinalizesAt
			w.log.Log().WithField("channel", id).Debugf("waiting for challenge timeout at %d", deadline)
		}
		if err := w.wait(ctx, sub, deadline); err != nil {
			return nil, err
		}
	}
}

// wait returns when an event arrives on sub or the ledger clock reaches
// deadline. A zero deadline only waits for events.
func (w *Watcher) wait(ctx context.Context, sub *AdjEventSub, deadline uint64) error {
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	elapsed := make(chan error, 1)
	if deadline != 0 {
		timeout := event.NewTimeout(w.adj.Clock(), deadline)
		timeout.PollInterval = w.pollInterval
		go func() { elapsed <- timeout.Wait(wctx) }()
	}
	select {
	case <-elapsed:
		return nil
	case ev := <-sub.Events():
		w.log.Log().WithField("channel", ev.ID()).Debugf("observed %s event", ev.Type())
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
