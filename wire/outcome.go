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

package wire

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stellar/go/xdr"

	"perun.network/perun-nitro-backend/channel/types"
	"perun.network/perun-nitro-backend/wire/scval"
)

const (
	SymbolAssetAllocationAsset xdr.ScSymbol = "asset"
	SymbolAssetAllocationItems xdr.ScSymbol = "items"

	SymbolAllocationItemKind        xdr.ScSymbol = "kind"
	SymbolAllocationItemDestination xdr.ScSymbol = "destination"
	SymbolAllocationItemAmount      xdr.ScSymbol = "amount"
)

// MakeOutcome encodes an outcome as a vector of asset allocation maps.
func MakeOutcome(o types.Outcome) (xdr.ScVec, error) {
	vec := make(xdr.ScVec, 0, len(o))
	for _, alloc := range o {
		items := make(xdr.ScVec, 0, len(alloc.Items))
		for _, item := range alloc.Items {
			v, err := makeAllocationItem(item)
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		}
		itemsVal, err := scval.WrapScVec(items)
		if err != nil {
			return nil, err
		}
		asset, err := scval.WrapScBytes(alloc.Asset.Address().Bytes())
		if err != nil {
			return nil, err
		}
		m, err := MakeSymbolScMap(
			[]xdr.ScSymbol{SymbolAssetAllocationAsset, SymbolAssetAllocationItems},
			[]xdr.ScVal{asset, itemsVal},
		)
		if err != nil {
			return nil, err
		}
		v, err := scval.WrapScMap(m)
		if err != nil {
			return nil, err
		}
		vec = append(vec, v)
	}
	return vec, nil
}

func makeAllocationItem(item types.AllocationItem) (xdr.ScVal, error) {
	kind, err := scval.WrapUint32(xdr.Uint32(item.Destination.Kind()))
	if err != nil {
		return xdr.ScVal{}, err
	}
	dest := item.Destination.Bytes32()
	destVal, err := scval.WrapScBytes(dest[:])
	if err != nil {
		return xdr.ScVal{}, err
	}
	amount, err := AmountToScVal(item.Amount)
	if err != nil {
		return xdr.ScVal{}, err
	}
	m, err := MakeSymbolScMap(
		[]xdr.ScSymbol{SymbolAllocationItemKind, SymbolAllocationItemDestination, SymbolAllocationItemAmount},
		[]xdr.ScVal{kind, destVal, amount},
	)
	if err != nil {
		return xdr.ScVal{}, err
	}
	return scval.WrapScMap(m)
}

// ToOutcome decodes an outcome encoded by MakeOutcome.
func ToOutcome(vec xdr.ScVec) (types.Outcome, error) {
	if len(vec) == 0 {
		return nil, nil
	}
	o := make(types.Outcome, 0, len(vec))
	for _, v := range vec {
		m, err := symbolMap(v, SymbolAssetAllocationAsset, SymbolAssetAllocationItems)
		if err != nil {
			return nil, err
		}
		assetVal, err := GetScMapValueFromSymbol(SymbolAssetAllocationAsset, m)
		if err != nil {
			return nil, err
		}
		assetBytes, ok := assetVal.GetBytes()
		if !ok || len(assetBytes) != common.AddressLength {
			return nil, errors.New("expected asset address bytes")
		}
		itemsVal, err := GetScMapValueFromSymbol(SymbolAssetAllocationItems, m)
		if err != nil {
			return nil, err
		}
		itemsVec, ok := itemsVal.GetVec()
		if !ok || itemsVec == nil {
			return nil, errors.New("expected vec of allocation items")
		}
		alloc := types.AssetAllocation{
			Asset: types.NewAsset(common.BytesToAddress(assetBytes)),
			Items: make([]types.AllocationItem, 0, len(*itemsVec)),
		}
		for _, iv := range *itemsVec {
			item, err := toAllocationItem(iv)
			if err != nil {
				return nil, err
			}
			alloc.Items = append(alloc.Items, item)
		}
		o = append(o, alloc)
	}
	return o, nil
}

func toAllocationItem(v xdr.ScVal) (types.AllocationItem, error) {
	m, err := symbolMap(v, SymbolAllocationItemKind, SymbolAllocationItemDestination, SymbolAllocationItemAmount)
	if err != nil {
		return types.AllocationItem{}, err
	}
	kindVal, err := GetScMapValueFromSymbol(SymbolAllocationItemKind, m)
	if err != nil {
		return types.AllocationItem{}, err
	}
	kind, ok := kindVal.GetU32()
	if !ok {
		return types.AllocationItem{}, errors.New("expected u32 destination kind")
	}
	destVal, err := GetScMapValueFromSymbol(SymbolAllocationItemDestination, m)
	if err != nil {
		return types.AllocationItem{}, err
	}
	destBytes, ok := destVal.GetBytes()
	if !ok || len(destBytes) != types.IDLength {
		return types.AllocationItem{}, errors.New("expected 32 destination bytes")
	}
	amountVal, err := GetScMapValueFromSymbol(SymbolAllocationItemAmount, m)
	if err != nil {
		return types.AllocationItem{}, err
	}
	amount, err := AmountFromScVal(amountVal)
	if err != nil {
		return types.AllocationItem{}, err
	}

	var dest types.Destination
	switch types.DestinationKind(kind) {
	case types.DestinationAddress:
		dest = types.AddressDestination(common.BytesToAddress(destBytes))
	case types.DestinationChannel:
		var id types.ID
		copy(id[:], destBytes)
		dest = types.ChannelDestination(id)
	default:
		return types.AllocationItem{}, fmt.Errorf("unknown destination kind %d", kind)
	}
	return types.AllocationItem{Destination: dest, Amount: amount}, nil
}
