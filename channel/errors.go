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
	"errors"

	"perun.network/perun-nitro-backend/channel/types"
	"perun.network/perun-nitro-backend/ledger"
)

var (
	ErrInvalidChannelConfiguration = types.ErrInvalidChannelConfiguration
	ErrInvalidOutcome              = types.ErrInvalidOutcome

	ErrSignatureMismatch        = errors.New("signature mismatch")
	ErrIncompleteSupport        = errors.New("incomplete support")
	ErrInconsistentTurnSequence = errors.New("inconsistent turn sequence")
	ErrInvalidTransition        = errors.New("invalid transition")

	ErrDepositRaceDetected = ledger.ErrDepositRaceDetected
	ErrInsufficientFunds   = ledger.ErrInsufficientFunds
	ErrInvalidAmount       = ledger.ErrInvalidAmount
	ErrRecordNotFound      = ledger.ErrRecordNotFound

	ErrStaleChallenge           = errors.New("stale challenge")
	ErrInvalidChallengeDuration = errors.New("invalid challenge duration")
	ErrAlreadyFinalized         = errors.New("channel already finalized")
	ErrUnsupported              = errors.New("state not supported")
	ErrAlreadySettled           = errors.New("channel already settled")
	ErrNotFinalized             = errors.New("channel not finalized")
	ErrGuarantorNotFinalized    = errors.New("guarantor not finalized")
)
