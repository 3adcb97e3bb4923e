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
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	// IDLength is the length of a channel id in bytes.
	IDLength = 32
	// MinParticipants is the minimal number of participants of a channel.
	MinParticipants = 2
	// MaxParticipants is the maximal number of participants of a channel. Signer
	// indices are encoded as uint8.
	MaxParticipants = 255
)

var (
	ErrInvalidChannelConfiguration = errors.New("invalid channel configuration")
	ErrInvalidOutcome              = errors.New("invalid outcome")
)

// ID uniquely identifies a channel.
type ID [IDLength]byte

// String returns the hex representation of the id.
func (id ID) String() string {
	return common.Hash(id).Hex()
}

// Bytes returns the id as byte slice.
func (id ID) Bytes() []byte {
	return id[:]
}

// Channel is the fixed identity of a channel. Two channels with equal fields are
// the same channel.
type Channel struct {
	ChainID      *big.Int
	Participants []common.Address
	Nonce        uint64
}

// NewChannel creates a channel and checks its configuration.
func NewChannel(chainID *big.Int, participants []common.Address, nonce uint64) (Channel, error) {
	c := Channel{
		ChainID:      chainID,
		Participants: participants,
		Nonce:        nonce,
	}
	c = c.Clone()
	return c, c.Valid()
}

// Valid checks the channel configuration.
func (c Channel) Valid() error {
	if c.ChainID == nil || c.ChainID.Sign() < 0 {
		return fmt.Errorf("%w: chain id must be non-negative", ErrInvalidChannelConfiguration)
	}
	n := len(c.Participants)
	if n < MinParticipants || n > MaxParticipants {
		return fmt.Errorf("%w: %d participants, want between %d and %d",
			ErrInvalidChannelConfiguration, n, MinParticipants, MaxParticipants)
	}
	seen := make(map[common.Address]struct{}, n)
	for i, p := range c.Participants {
		if _, ok := seen[p]; ok {
			return fmt.Errorf("%w: duplicate participant %s at index %d", ErrInvalidChannelConfiguration, p, i)
		}
		seen[p] = struct{}{}
	}
	return nil
}

// NumParts returns the number of participants.
func (c Channel) NumParts() int {
	return len(c.Participants)
}

// Index returns the index of the given participant in the channel, or -1.
func (c Channel) Index(addr common.Address) int {
	for i, p := range c.Participants {
		if p == addr {
			return i
		}
	}
	return -1
}

// ID calculates the channel id as keccak256(abi.encode(chainId, participants, nonce)).
func (c Channel) ID() (ID, error) {
	if err := c.Valid(); err != nil {
		return ID{}, err
	}
	data, err := channelArgs.Pack(c.ChainID, c.Participants, c.Nonce)
	if err != nil {
		return ID{}, err
	}
	return ID(crypto.Keccak256Hash(data)), nil
}

// MustID is like ID but panics on an invalid configuration.
func (c Channel) MustID() ID {
	id, err := c.ID()
	if err != nil {
		panic(err)
	}
	return id
}

// Equal reports whether both channels have the same identity.
func (c Channel) Equal(other Channel) bool {
	if c.Nonce != other.Nonce || len(c.Participants) != len(other.Participants) {
		return false
	}
	if (c.ChainID == nil) != (other.ChainID == nil) {
		return false
	}
	if c.ChainID != nil && c.ChainID.Cmp(other.ChainID) != 0 {
		return false
	}
	for i := range c.Participants {
		if c.Participants[i] != other.Participants[i] {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the channel.
func (c Channel) Clone() Channel {
	clone := Channel{
		Participants: append([]common.Address(nil), c.Participants...),
		Nonce:        c.Nonce,
	}
	if c.ChainID != nil {
		clone.ChainID = new(big.Int).Set(c.ChainID)
	}
	return clone
}
