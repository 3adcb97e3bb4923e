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
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"polycry.pt/poly-go/sync"

	"perun.network/perun-nitro-backend/channel/types"
)

// Bank moves assets between external accounts and the adjudicator.
type Bank interface {
	// Debit takes amount from the external balance of from.
	Debit(asset types.Asset, from common.Address, amount *big.Int) error
	// Credit pays amount to the external balance of to.
	Credit(asset types.Asset, to common.Address, amount *big.Int) error
}

type balanceKey struct {
	asset types.Asset
	addr  common.Address
}

// Balances is an in-memory Bank.
type Balances struct {
	mu       sync.Mutex
	balances map[balanceKey]*big.Int
}

var _ Bank = (*Balances)(nil)

// NewBalances returns an empty bank.
func NewBalances() *Balances {
	return &Balances{balances: make(map[balanceKey]*big.Int)}
}

// Mint credits new funds to addr.
func (b *Balances) Mint(asset types.Asset, to common.Address, amount *big.Int) {
	if err := b.Credit(asset, to, amount); err != nil {
		panic(err)
	}
}

// Balance returns the external balance of addr.
func (b *Balances) Balance(asset types.Asset, addr common.Address) *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if bal, ok := b.balances[balanceKey{asset, addr}]; ok {
		return new(big.Int).Set(bal)
	}
	return new(big.Int)
}

// Debit takes amount from the external balance of from.
func (b *Balances) Debit(asset types.Asset, from common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	k := balanceKey{asset, from}
	bal, ok := b.balances[k]
	if !ok || bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %v of %s", ErrInsufficientFunds, from.Hex(), bal, asset)
	}
	bal.Sub(bal, amount)
	return nil
}

// Credit pays amount to the external balance of to.
func (b *Balances) Credit(asset types.Asset, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	k := balanceKey{asset, to}
	if _, ok := b.balances[k]; !ok {
		b.balances[k] = new(big.Int)
	}
	b.balances[k].Add(b.balances[k], amount)
	return nil
}
