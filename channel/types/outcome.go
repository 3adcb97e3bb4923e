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
	"github.com/ethereum/go-ethereum/crypto"
)

// MaxAmount is the largest amount an allocation or a holding can take, the
// range of an ABI uint256.
var MaxAmount = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// DestinationKind tells whether a Destination is a participant address or a
// channel that is guaranteed funds.
type DestinationKind uint8

const (
	// DestinationAddress pays out to an external address.
	DestinationAddress DestinationKind = iota
	// DestinationChannel guarantees funds to another channel.
	DestinationChannel
)

// Destination is the receiver of an allocation item. It is either an external
// address or a channel reference.
type Destination struct {
	kind    DestinationKind
	addr    common.Address
	channel ID
}

// AddressDestination returns a destination paying out to addr.
func AddressDestination(addr common.Address) Destination {
	return Destination{kind: DestinationAddress, addr: addr}
}

// ChannelDestination returns a destination guaranteeing funds to the channel id.
func ChannelDestination(id ID) Destination {
	return Destination{kind: DestinationChannel, channel: id}
}

// Kind returns the kind of the destination.
func (d Destination) Kind() DestinationKind {
	return d.kind
}

// IsChannel reports whether d references a channel.
func (d Destination) IsChannel() bool {
	return d.kind == DestinationChannel
}

// Address returns the external address, if d is an address destination.
func (d Destination) Address() (common.Address, bool) {
	return d.addr, d.kind == DestinationAddress
}

// Channel returns the referenced channel, if d is a channel destination.
func (d Destination) Channel() (ID, bool) {
	return d.channel, d.kind == DestinationChannel
}

// Bytes32 returns the 32 byte value of the destination. Addresses are left
// padded with zeros.
func (d Destination) Bytes32() [32]byte {
	if d.kind == DestinationChannel {
		return d.channel
	}
	return common.BytesToHash(d.addr.Bytes())
}

// String returns a readable representation of the destination.
func (d Destination) String() string {
	if d.kind == DestinationChannel {
		return "channel:" + d.channel.String()
	}
	return d.addr.Hex()
}

// AllocationItem assigns an amount of an asset to a destination.
type AllocationItem struct {
	Destination Destination
	Amount      *big.Int
}

// AssetAllocation is the ordered allocation of one asset. The order of the
// items is their payout priority.
type AssetAllocation struct {
	Asset Asset
	Items []AllocationItem
}

// Outcome is the list of per-asset allocations carried by a state.
type Outcome []AssetAllocation

// Valid checks that all amounts are set and non-negative and that no asset
// appears twice.
func (o Outcome) Valid() error {
	seen := make(map[Asset]struct{}, len(o))
	for i, alloc := range o {
		if _, ok := seen[alloc.Asset]; ok {
			return fmt.Errorf("%w: asset %v allocated twice", ErrInvalidOutcome, alloc.Asset)
		}
		seen[alloc.Asset] = struct{}{}
		for j, item := range alloc.Items {
			if item.Amount == nil {
				return fmt.Errorf("%w: nil amount at [%d][%d]", ErrInvalidOutcome, i, j)
			}
			if item.Amount.Sign() < 0 {
				return fmt.Errorf("%w: negative amount at [%d][%d]", ErrInvalidOutcome, i, j)
			}
			if item.Amount.Cmp(MaxAmount) > 0 {
				return fmt.Errorf("%w: amount at [%d][%d] exceeds uint256", ErrInvalidOutcome, i, j)
			}
		}
	}
	return nil
}

// Allocation returns the allocation of the given asset.
func (o Outcome) Allocation(asset Asset) (*AssetAllocation, bool) {
	for i := range o {
		if o[i].Asset == asset {
			return &o[i], true
		}
	}
	return nil, false
}

// Total returns the sum of all amounts allocated for the given asset.
func (o Outcome) Total(asset Asset) *big.Int {
	sum := new(big.Int)
	alloc, ok := o.Allocation(asset)
	if !ok {
		return sum
	}
	for _, item := range alloc.Items {
		sum.Add(sum, item.Amount)
	}
	return sum
}

// Clone returns a deep copy of the outcome.
func (o Outcome) Clone() Outcome {
	if o == nil {
		return nil
	}
	clone := make(Outcome, len(o))
	for i, alloc := range o {
		items := make([]AllocationItem, len(alloc.Items))
		for j, item := range alloc.Items {
			items[j] = AllocationItem{Destination: item.Destination}
			if item.Amount != nil {
				items[j].Amount = new(big.Int).Set(item.Amount)
			}
		}
		clone[i] = AssetAllocation{Asset: alloc.Asset, Items: items}
	}
	return clone
}

// Equal reports whether both outcomes allocate the same amounts to the same
// destinations in the same order.
func (o Outcome) Equal(other Outcome) bool {
	if len(o) != len(other) {
		return false
	}
	for i := range o {
		if o[i].Asset != other[i].Asset || len(o[i].Items) != len(other[i].Items) {
			return false
		}
		for j := range o[i].Items {
			a, b := o[i].Items[j], other[i].Items[j]
			if a.Destination != b.Destination {
				return false
			}
			if (a.Amount == nil) != (b.Amount == nil) {
				return false
			}
			if a.Amount != nil && a.Amount.Cmp(b.Amount) != 0 {
				return false
			}
		}
	}
	return true
}

// Encode returns the canonical ABI encoding of the outcome.
func (o Outcome) Encode() ([]byte, error) {
	if err := o.Valid(); err != nil {
		return nil, err
	}
	return outcomeArgs.Pack(toABIOutcome(o))
}

// Hash returns keccak256 of the canonical encoding.
func (o Outcome) Hash() (common.Hash, error) {
	data, err := o.Encode()
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(data), nil
}
