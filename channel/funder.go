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
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"perun.network/go-perun/log"

	"perun.network/perun-nitro-backend/channel/types"
)

const MaxIterationsUntilAbort = 20
const DefaultPollingInterval = time.Duration(1) * time.Second

// ErrFundingTimeout is returned when a participant could not deposit its share
// because the participants before it did not deposit theirs.
var ErrFundingTimeout = errors.New("funding timed out")

// FundingReq asks to deposit the share of participant Idx in the outcome of
// State.
type FundingReq struct {
	State *types.State
	Idx   int
	// From is the external account paying the deposit. It defaults to the
	// participant's address.
	From common.Address
}

// Funder deposits a participant's share of a channel once all participants
// before it in the outcome have deposited theirs.
type Funder struct {
	adj             *Adjudicator
	maxIters        int
	pollingInterval time.Duration
	log             log.Embedding
}

// FunderOption configures a Funder.
type FunderOption func(*Funder)

// WithPolling sets the number of polls and the interval between them.
func WithPolling(maxIters int, interval time.Duration) FunderOption {
	return func(f *Funder) {
		f.maxIters = maxIters
		f.pollingInterval = interval
	}
}

// NewFunder returns a funder depositing at adj.
func NewFunder(adj *Adjudicator, opts ...FunderOption) *Funder {
	f := &Funder{
		adj:             adj,
		maxIters:        MaxIterationsUntilAbort,
		pollingInterval: DefaultPollingInterval,
		log:             log.MakeEmbedding(log.Default()),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fund deposits the share of the requesting participant for every asset of the
// outcome. The share of an asset is the first item paying to the participant,
// and it is deposited once the holdings reach the sum of the items before it.
func (f *Funder) Fund(ctx context.Context, req FundingReq) error {
	if err := req.State.Valid(); err != nil {
		return err
	}
	if req.Idx < 0 || req.Idx >= req.State.NumParts() {
		return errors.Errorf("participant index %d out of range", req.Idx)
	}
	id, err := req.State.ID()
	if err != nil {
		return err
	}
	addr := req.State.Channel.Participants[req.Idx]
	from := req.From
	if from == (common.Address{}) {
		from = addr
	}

	for _, alloc := range req.State.Outcome {
		prefix, share := fundingShare(alloc, addr)
		if share.Sign() == 0 {
			continue
		}
		if err := f.fundAsset(ctx, id, alloc.Asset, from, prefix, share); err != nil {
			return errors.WithMessagef(err, "funding %s", alloc.Asset)
		}
	}
	return nil
}

func (f *Funder) fundAsset(ctx context.Context, id types.ID, asset types.Asset, from common.Address, prefix, share *big.Int) error {
	target := new(big.Int).Add(prefix, share)
	for i := 0; i < f.maxIters; i++ {
		held, err := f.adj.Holdings(ctx, id, asset)
		if err != nil {
			return err
		}
		if held.Cmp(target) >= 0 {
			return nil
		}
		if held.Cmp(prefix) >= 0 {
			_, err := f.adj.Deposit(ctx, from, id, asset, held, new(big.Int).Sub(target, held))
			if errors.Is(err, ErrDepositRaceDetected) {
				f.log.Log().WithField("channel", id).Debug("deposit raced, re-reading holdings")
				continue
			}
			return err
		}

		f.log.Log().WithField("channel", id).Debugf("waiting for holdings %v to reach %v", held, prefix)
		select {
		case <-ctx.Done():
			return errors.WithMessage(ErrFundingTimeout, ctx.Err().Error())
		case <-time.After(f.pollingInterval):
		}
	}
	return ErrFundingTimeout
}

// fundingShare returns the sum of the items before the first item paying to
// addr, and that item's amount.
func fundingShare(alloc types.AssetAllocation, addr common.Address) (prefix, share *big.Int) {
	prefix = new(big.Int)
	for _, item := range alloc.Items {
		if a, ok := item.Destination.Address(); ok && a == addr {
			return prefix, new(big.Int).Set(item.Amount)
		}
		prefix.Add(prefix, item.Amount)
	}
	return prefix, new(big.Int)
}
