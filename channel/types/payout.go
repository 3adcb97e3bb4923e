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

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Payout is an amount of an asset paid out of custody to an external address.
type Payout struct {
	Asset  Asset
	To     common.Address
	Amount *big.Int
}

func (p Payout) String() string {
	return fmt.Sprintf("%v %s -> %s", p.Amount, p.Asset, p.To.Hex())
}
