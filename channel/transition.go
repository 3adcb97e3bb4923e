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

	"perun.network/perun-nitro-backend/channel/types"
)

// validTransition applies the framework rules to the transition from -> to and
// defers to the channel's app once the setup phase is over.
func validTransition(from, to *types.State, apps *AppRegistry) error {
	if to.TurnNum != from.TurnNum+1 {
		return fmt.Errorf("%w: turn %d follows turn %d", ErrInconsistentTurnSequence, to.TurnNum, from.TurnNum)
	}
	if from.IsFinal && !to.IsFinal {
		return fmt.Errorf("%w: turn %d leaves a final state", ErrInvalidTransition, to.TurnNum)
	}
	if to.IsFinal {
		if !from.Outcome.Equal(to.Outcome) {
			return fmt.Errorf("%w: final turn %d changes the outcome", ErrInvalidTransition, to.TurnNum)
		}
		return nil
	}
	n := uint64(to.NumParts())
	if to.TurnNum < 2*n {
		if !from.Outcome.Equal(to.Outcome) || !from.SameAppData(to) {
			return fmt.Errorf("%w: setup turn %d changes the state", ErrInvalidTransition, to.TurnNum)
		}
		return nil
	}
	if err := apps.Resolve(to.AppDefinition).ValidTransition(from, to, int(n)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTransition, err)
	}
	return nil
}
