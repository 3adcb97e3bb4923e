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
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"perun.network/perun-nitro-backend/channel/types"
	"perun.network/perun-nitro-backend/wallet"
)

// Signer produces signatures over 32 byte commitments.
type Signer interface {
	Address() common.Address
	SignHash(hash common.Hash) ([]byte, error)
}

var _ Signer = (*wallet.Account)(nil)

// SignState signs the Ethereum signed-message digest of the state hash.
func SignState(state *types.State, signer Signer) ([]byte, error) {
	h, err := state.Hash()
	if err != nil {
		return nil, err
	}
	return signer.SignHash(h)
}

// SignChallenge signs the challenge message of the state, which binds the
// signature to the intent of registering a challenge.
func SignChallenge(state *types.State, signer Signer) ([]byte, error) {
	h, err := state.Hash()
	if err != nil {
		return nil, err
	}
	ch, err := types.ChallengeHash(h)
	if err != nil {
		return nil, err
	}
	return signer.SignHash(ch)
}

// VerifySignature checks that sig over stateHash was produced by expected.
func VerifySignature(stateHash common.Hash, sig []byte, expected common.Address) (bool, error) {
	return wallet.Backend.VerifySignature(stateHash.Bytes(), sig, expected)
}

// RecoverSigner returns the address that produced sig over stateHash.
func RecoverSigner(stateHash common.Hash, sig []byte) (common.Address, error) {
	return wallet.Backend.RecoverSigner(stateHash.Bytes(), sig)
}

// SignStates lets every participant sign the state it is assigned by
// whoSignedWhat. The signatures are produced concurrently and returned in
// participant order.
func SignStates(ctx context.Context, states []*types.State, signers []Signer, whoSignedWhat []uint8) ([][]byte, error) {
	if len(signers) != len(whoSignedWhat) {
		return nil, fmt.Errorf("%w: %d signers for %d participants", ErrIncompleteSupport, len(signers), len(whoSignedWhat))
	}
	sigs := make([][]byte, len(signers))
	g, ctx := errgroup.WithContext(ctx)
	for i := range signers {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			idx := int(whoSignedWhat[i])
			if idx >= len(states) {
				return fmt.Errorf("%w: participant %d assigned state %d of %d", ErrIncompleteSupport, i, idx, len(states))
			}
			sig, err := SignState(states[idx], signers[i])
			if err != nil {
				return fmt.Errorf("participant %d: %w", i, err)
			}
			sigs[i] = sig
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sigs, nil
}
