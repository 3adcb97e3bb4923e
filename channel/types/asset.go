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

	"github.com/ethereum/go-ethereum/common"
)

// AssetLength is the length of the binary representation of an Asset.
const AssetLength = common.AddressLength

// Asset identifies a fungible asset by the address of its token holder. The
// zero address denotes the native asset of the ledger.
type Asset common.Address

// NativeAsset is the native currency of the ledger.
var NativeAsset = Asset{}

// NewAsset creates an asset for the given token address.
func NewAsset(token common.Address) Asset {
	return Asset(token)
}

// Address returns the token address of the asset.
func (a Asset) Address() common.Address {
	return common.Address(a)
}

// IsNative reports whether a is the native asset.
func (a Asset) IsNative() bool {
	return a == NativeAsset
}

// MarshalBinary marshals the asset into its binary representation.
func (a Asset) MarshalBinary() ([]byte, error) {
	return common.Address(a).Bytes(), nil
}

// UnmarshalBinary unmarshals the asset from its binary representation.
func (a *Asset) UnmarshalBinary(data []byte) error {
	if len(data) != AssetLength {
		return fmt.Errorf("unexpected asset length %d, want %d", len(data), AssetLength)
	}
	copy(a[:], data)
	return nil
}

// String returns the checksummed hex address of the asset.
func (a Asset) String() string {
	if a.IsNative() {
		return "native"
	}
	return common.Address(a).Hex()
}
