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

package client

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"perun.network/perun-nitro-backend/channel"
	"perun.network/perun-nitro-backend/channel/types"
)

// Backend is the adjudicator a client submits its transactions to.
type Backend interface {
	Deposit(ctx context.Context, from common.Address, id types.ID, asset types.Asset, expectedHeld, amount *big.Int) (*big.Int, error)
	Challenge(ctx context.Context, bundle channel.SignedStates, challengerSig []byte) error
	Checkpoint(ctx context.Context, bundle channel.SignedStates) error
	Conclude(ctx context.Context, bundle channel.SignedStates) error
	Transfer(ctx context.Context, id types.ID) ([]types.Payout, error)
	ConcludeAndTransfer(ctx context.Context, bundle channel.SignedStates) ([]types.Payout, error)
	Holdings(ctx context.Context, id types.ID, asset types.Asset) (*big.Int, error)
	Record(ctx context.Context, id types.ID) (*types.DisputeRecord, error)
	Status(ctx context.Context, id types.ID) (channel.Status, error)
}

var _ Backend = (*channel.Adjudicator)(nil)
