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

package wallet

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// SignatureLength is the length of a signature in bytes.
const SignatureLength = crypto.SignatureLength

var ErrInvalidSignature = errors.New("invalid signature")

type backend struct{}

// Backend verifies signatures produced by Account.
var Backend = backend{}

// RecoverSigner returns the address that produced sig over msg.
func (b backend) RecoverSigner(msg []byte, sig []byte) (common.Address, error) {
	if len(sig) != SignatureLength {
		return common.Address{}, fmt.Errorf("%w: length %d", ErrInvalidSignature, len(sig))
	}
	pub, err := crypto.SigToPub(accounts.TextHash(msg), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifySignature checks that sig over msg was produced by addr.
func (b backend) VerifySignature(msg []byte, sig []byte, addr common.Address) (bool, error) {
	signer, err := b.RecoverSigner(msg, sig)
	if err != nil {
		return false, err
	}
	return signer == addr, nil
}
