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

	"perun.network/go-perun/log"
	pkgsync "polycry.pt/poly-go/sync"

	"perun.network/perun-nitro-backend/channel/types"
	"perun.network/perun-nitro-backend/event"
)

const DefaultBufferSize = 1024

// ErrSubscriptionOverflow is reported when a subscriber falls too far behind.
var ErrSubscriptionOverflow = errors.New("subscription buffer overflow")

// AdjEventSub delivers the adjudicator events of one channel.
type AdjEventSub struct {
	cid    types.ID
	adj    *Adjudicator
	events chan event.AdjudicatorEvent
	err    error
	closer *pkgsync.Closer
	log    log.Embedding
}

// Subscribe returns a subscription to the events of the channel id. The
// subscription is closed when ctx is done or Close is called.
func (a *Adjudicator) Subscribe(ctx context.Context, id types.ID) (*AdjEventSub, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sub := &AdjEventSub{
		cid:    id,
		adj:    a,
		events: make(chan event.AdjudicatorEvent, DefaultBufferSize),
		closer: new(pkgsync.Closer),
		log:    log.MakeEmbedding(log.Default().WithField("channel", id)),
	}

	a.subsMu.Lock()
	if a.subs[id] == nil {
		a.subs[id] = make(map[*AdjEventSub]struct{})
	}
	a.subs[id][sub] = struct{}{}
	a.subsMu.Unlock()

	sub.closer.OnCloseAlways(func() { a.unsubscribe(sub) })
	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.closer.Closed():
		}
	}()
	return sub, nil
}

func (a *Adjudicator) unsubscribe(sub *AdjEventSub) {
	a.subsMu.Lock()
	defer a.subsMu.Unlock()
	delete(a.subs[sub.cid], sub)
	if len(a.subs[sub.cid]) == 0 {
		delete(a.subs, sub.cid)
	}
}

// emit delivers ev to all subscribers of its channel without blocking.
func (a *Adjudicator) emit(ev event.AdjudicatorEvent) {
	a.subsMu.Lock()
	defer a.subsMu.Unlock()
	for sub := range a.subs[ev.ID()] {
		select {
		case sub.events <- ev:
		default:
			sub.log.Log().Warnf("dropping subscriber, %s event lost", ev.Type())
			sub.err = ErrSubscriptionOverflow
			go sub.Close()
		}
	}
}

// Next blocks until the next event arrives and returns it. It returns nil once
// the subscription is closed.
func (s *AdjEventSub) Next() event.AdjudicatorEvent {
	if s.closer.IsClosed() {
		return nil
	}
	select {
	case ev := <-s.events:
		return ev
	case <-s.closer.Closed():
		return nil
	}
}

// Events returns the event channel of the subscription.
func (s *AdjEventSub) Events() <-chan event.AdjudicatorEvent {
	return s.events
}

// Close closes the subscription.
func (s *AdjEventSub) Close() error {
	if err := s.closer.Close(); err != nil && !pkgsync.IsAlreadyClosedError(err) {
		return err
	}
	return nil
}

// Err returns the error that closed the subscription, if any.
func (s *AdjEventSub) Err() error {
	s.adj.subsMu.Lock()
	defer s.adj.subsMu.Unlock()
	return s.err
}
