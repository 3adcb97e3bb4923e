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

// Package client provides the participant side of the adjudicator: a client
// holds an account, signs states and challenge messages with it and submits
// them to the adjudicator.
package client

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	perrors "github.com/pkg/errors"
	"perun.network/go-perun/log"

	"perun.network/perun-nitro-backend/channel"
	"perun.network/perun-nitro-backend/channel/types"
	"perun.network/perun-nitro-backend/wallet"
)

// ErrNotParticipant is returned when the client's account is not a
// participant of the channel it acts on.
var ErrNotParticipant = errors.New("account is not a channel participant")

// Client is a channel participant.
type Client struct {
	account *wallet.Account
	backend Backend
	funder  *channel.Funder
	watcher *channel.Watcher
	log     log.Embedding
}

var _ channel.Signer = (*Client)(nil)

// New returns a client acting with acc on adj. The funder and watcher of the
// client use adj directly.
func New(acc *wallet.Account, adj *channel.Adjudicator, funderOpts ...channel.FunderOption) *Client {
	return &Client{
		account: acc,
		backend: adj,
		funder:  channel.NewFunder(adj, funderOpts...),
		watcher: channel.NewWatcher(adj, channel.DefaultPollingInterval/10),
		log:     log.MakeEmbedding(log.Default().WithField("account", acc.Address().Hex())),
	}
}

// Address returns the address of the client's account.
func (c *Client) Address() common.Address {
	return c.account.Address()
}

// SignHash signs hash with the client's account.
func (c *Client) SignHash(hash common.Hash) ([]byte, error) {
	return c.account.SignHash(hash)
}

// SignState signs st after checking that the client participates in it.
func (c *Client) SignState(st *types.State) ([]byte, error) {
	if _, err := c.index(st.Channel); err != nil {
		return nil, err
	}
	return channel.SignState(st, c.account)
}

func (c *Client) index(ch types.Channel) (int, error) {
	idx := ch.Index(c.Address())
	if idx < 0 {
		return 0, ErrNotParticipant
	}
	return idx, nil
}

// Fund deposits the client's share of the outcome of st once the participants
// before it have deposited theirs.
func (c *Client) Fund(ctx context.Context, st *types.State) error {
	idx, err := c.index(st.Channel)
	if err != nil {
		return err
	}
	return c.funder.Fund(ctx, channel.FundingReq{State: st, Idx: idx})
}

// Deposit adds amount to the holdings of the channel id. It reads the
// current holdings as the expected amount and retries once if another
// deposit raced it.
func (c *Client) Deposit(ctx context.Context, id types.ID, asset types.Asset, amount *big.Int) (*big.Int, error) {
	for attempt := 0; ; attempt++ {
		held, err := c.backend.Holdings(ctx, id, asset)
		if err != nil {
			return nil, err
		}
		held, err = c.backend.Deposit(ctx, c.Address(), id, asset, held, amount)
		if errors.Is(err, channel.ErrDepositRaceDetected) && attempt == 0 {
			continue
		}
		return held, err
	}
}

// Challenge registers the latest state of bundle as the pending outcome of its
// channel. The client signs the challenge message itself. A challenge that
// lost against an identical registered state is not an error.
func (c *Client) Challenge(ctx context.Context, bundle channel.SignedStates) error {
	latest := bundle.Latest()
	if latest == nil {
		return perrors.WithMessage(channel.ErrInconsistentTurnSequence, "empty bundle")
	}
	if _, err := c.index(latest.Channel); err != nil {
		return err
	}
	sig, err := channel.SignChallenge(latest, c.account)
	if err != nil {
		return perrors.WithMessage(err, "signing challenge")
	}

	err = c.backend.Challenge(ctx, bundle, sig)
	if errors.Is(err, channel.ErrStaleChallenge) {
		if registered, rerr := c.registered(ctx, latest); rerr == nil && registered {
			c.log.Log().Debug("state already registered")
			return nil
		}
	}
	return err
}

// Checkpoint records the latest state of bundle and clears a running
// challenge.
func (c *Client) Checkpoint(ctx context.Context, bundle channel.SignedStates) error {
	return c.backend.Checkpoint(ctx, bundle)
}

// Conclude finalizes the channel of bundle with its final latest state. It is
// not an error if that state was concluded already.
func (c *Client) Conclude(ctx context.Context, bundle channel.SignedStates) error {
	err := c.backend.Conclude(ctx, bundle)
	if errors.Is(err, channel.ErrAlreadyFinalized) {
		if registered, rerr := c.registered(ctx, bundle.Latest()); rerr == nil && registered {
			c.log.Log().Debug("state already concluded")
			return nil
		}
	}
	return err
}

// registered reports whether st is the state recorded for its channel.
func (c *Client) registered(ctx context.Context, st *types.State) (bool, error) {
	id, err := st.ID()
	if err != nil {
		return false, err
	}
	h, err := st.Hash()
	if err != nil {
		return false, err
	}
	rec, err := c.backend.Record(ctx, id)
	if err != nil {
		return false, err
	}
	return rec.StateHash == h, nil
}

// Transfer pays out the finalized outcome of the channel id.
func (c *Client) Transfer(ctx context.Context, id types.ID) ([]types.Payout, error) {
	return c.backend.Transfer(ctx, id)
}

// ConcludeAndTransfer concludes the channel of bundle and pays out its outcome.
func (c *Client) ConcludeAndTransfer(ctx context.Context, bundle channel.SignedStates) ([]types.Payout, error) {
	return c.backend.ConcludeAndTransfer(ctx, bundle)
}

// Watch waits until the channel id is finalized and transfers its outcome.
func (c *Client) Watch(ctx context.Context, id types.ID) ([]types.Payout, error) {
	return c.watcher.Watch(ctx, id)
}

// ChannelInfo is the on-ledger view of a channel.
type ChannelInfo struct {
	Status   channel.Status
	Holdings *big.Int
	// Record is nil if nothing was recorded for the channel.
	Record *types.DisputeRecord
}

// ChannelInfo returns the on-ledger view of the channel id for asset.
func (c *Client) ChannelInfo(ctx context.Context, id types.ID, asset types.Asset) (ChannelInfo, error) {
	status, err := c.backend.Status(ctx, id)
	if err != nil {
		return ChannelInfo{}, err
	}
	held, err := c.backend.Holdings(ctx, id, asset)
	if err != nil {
		return ChannelInfo{}, err
	}
	rec, err := c.backend.Record(ctx, id)
	if err != nil && !errors.Is(err, channel.ErrRecordNotFound) {
		return ChannelInfo{}, err
	}
	return ChannelInfo{Status: status, Holdings: held, Record: rec}, nil
}
