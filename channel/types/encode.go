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
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// This part of the package encodes channels, states and outcomes the same way
// abi.encode() does in the adjudicator contracts.

var (
	channelArgs = abi.Arguments{
		{Type: mustNewType("uint256", nil)},
		{Type: mustNewType("address[]", nil)},
		{Type: mustNewType("uint64", nil)},
	}

	appPartArgs = abi.Arguments{
		{Type: mustNewType("uint64", nil)},
		{Type: mustNewType("address", nil)},
		{Type: mustNewType("bytes", nil)},
	}

	stateArgs = abi.Arguments{
		{Type: mustNewType("uint64", nil)},
		{Type: mustNewType("bool", nil)},
		{Type: mustNewType("bytes32", nil)},
		{Type: mustNewType("bytes32", nil)},
		{Type: mustNewType("bytes32", nil)},
	}

	outcomeArgs = abi.Arguments{
		{Type: mustNewType("tuple[]", []abi.ArgumentMarshaling{
			{Name: "asset", Type: "address"},
			{Name: "items", Type: "tuple[]", Components: []abi.ArgumentMarshaling{
				{Name: "kind", Type: "uint8"},
				{Name: "destination", Type: "bytes32"},
				{Name: "amount", Type: "uint256"},
			}},
		})},
	}

	challengeArgs = abi.Arguments{
		{Type: mustNewType("bytes32", nil)},
		{Type: mustNewType("string", nil)},
	}
)

// abiAllocationItem is the low-level Go binding of an allocation item.
type abiAllocationItem struct {
	Kind        uint8
	Destination [32]byte
	Amount      *big.Int
}

// abiAssetAllocation is the low-level Go binding of an asset allocation.
type abiAssetAllocation struct {
	Asset common.Address
	Items []abiAllocationItem
}

func toABIOutcome(o Outcome) []abiAssetAllocation {
	allocs := make([]abiAssetAllocation, len(o))
	for i, alloc := range o {
		items := make([]abiAllocationItem, len(alloc.Items))
		for j, item := range alloc.Items {
			items[j] = abiAllocationItem{
				Kind:        uint8(item.Destination.Kind()),
				Destination: item.Destination.Bytes32(),
				Amount:      item.Amount,
			}
		}
		allocs[i] = abiAssetAllocation{Asset: alloc.Asset.Address(), Items: items}
	}
	return allocs
}

// EncodeChallengeMessage encodes the message a challenger signs to register a
// challenge for the state with the given hash.
func EncodeChallengeMessage(stateHash common.Hash) ([]byte, error) {
	return challengeArgs.Pack([32]byte(stateHash), ChallengeTag)
}

// ChallengeHash returns keccak256 of the challenge message for stateHash.
func ChallengeHash(stateHash common.Hash) (common.Hash, error) {
	msg, err := EncodeChallengeMessage(stateHash)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(msg), nil
}

// ChallengeTag domain-separates challenge messages from state signatures.
const ChallengeTag = "challenge"

func mustNewType(t string, components []abi.ArgumentMarshaling) abi.Type {
	typ, err := abi.NewType(t, "", components)
	if err != nil {
		panic(err)
	}
	return typ
}
