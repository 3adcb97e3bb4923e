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
	"bytes"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// State is a snapshot of the execution of a channel.
type State struct {
	Channel           Channel
	TurnNum           uint64
	IsFinal           bool
	Outcome           Outcome
	AppDefinition     common.Address
	AppData           []byte
	ChallengeDuration uint64
}

// Valid checks the channel configuration and the outcome of the state.
func (s *State) Valid() error {
	if err := s.Channel.Valid(); err != nil {
		return err
	}
	return s.Outcome.Valid()
}

// ID returns the id of the channel the state belongs to.
func (s *State) ID() (ID, error) {
	return s.Channel.ID()
}

// NumParts returns the number of channel participants.
func (s *State) NumParts() int {
	return s.Channel.NumParts()
}

// Mover returns the index of the participant whose turn produced s.
func (s *State) Mover() int {
	return int(s.TurnNum % uint64(s.NumParts()))
}

// AppPartHash returns keccak256(abi.encode(challengeDuration, appDefinition, appData)).
func (s *State) AppPartHash() (common.Hash, error) {
	data, err := appPartArgs.Pack(s.ChallengeDuration, s.AppDefinition, s.appData())
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(data), nil
}

// Hash returns the commitment signed by the participants:
// keccak256(abi.encode(turnNum, isFinal, channelId, appPartHash, outcomeHash)).
func (s *State) Hash() (common.Hash, error) {
	id, err := s.ID()
	if err != nil {
		return common.Hash{}, err
	}
	appPart, err := s.AppPartHash()
	if err != nil {
		return common.Hash{}, err
	}
	outcome, err := s.Outcome.Hash()
	if err != nil {
		return common.Hash{}, err
	}
	data, err := stateArgs.Pack(s.TurnNum, s.IsFinal, [32]byte(id), [32]byte(appPart), [32]byte(outcome))
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(data), nil
}

// SameFixedPart reports whether both states belong to the same channel, app
// and challenge duration.
func (s *State) SameFixedPart(other *State) bool {
	return s.Channel.Equal(other.Channel) &&
		s.AppDefinition == other.AppDefinition &&
		s.ChallengeDuration == other.ChallengeDuration
}

// SameAppData reports whether both states carry the same app data.
func (s *State) SameAppData(other *State) bool {
	return bytes.Equal(s.appData(), other.appData())
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	clone := *s
	clone.Channel = s.Channel.Clone()
	clone.Outcome = s.Outcome.Clone()
	clone.AppData = append([]byte(nil), s.AppData...)
	return &clone
}

func (s *State) appData() []byte {
	if s.AppData == nil {
		return []byte{}
	}
	return s.AppData
}
