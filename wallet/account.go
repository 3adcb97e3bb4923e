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
	"crypto/ecdsa"
	"errors"
	"io"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// maxKeyAttempts bounds the number of candidate scalars drawn for a new key.
const maxKeyAttempts = 16

// Account is used for signing channel states and challenge messages.
type Account struct {
	// privateKey is the secp256k1 private key of the account.
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewAccount wraps the given private key.
func NewAccount(key *ecdsa.PrivateKey) *Account {
	return &Account{privateKey: key, address: crypto.PubkeyToAddress(key.PublicKey)}
}

// NewRandomAccount creates a new account with a private key read from rng.
func NewRandomAccount(rng io.Reader) (*Account, error) {
	var seed [32]byte
	for i := 0; i < maxKeyAttempts; i++ {
		if _, err := io.ReadFull(rng, seed[:]); err != nil {
			return nil, err
		}
		key, err := crypto.ToECDSA(seed[:])
		if err != nil {
			// Scalar out of range, draw again.
			continue
		}
		return NewAccount(key), nil
	}
	return nil, errors.New("could not derive private key")
}

// Address returns the on-ledger address of the account.
func (a Account) Address() common.Address {
	return a.address
}

// SignData signs the Ethereum signed-message digest of data with the account's
// private key. The signature is 65 bytes [R || S || V] with V in {0, 1}.
func (a Account) SignData(data []byte) ([]byte, error) {
	if a.privateKey == nil {
		return nil, errors.New("account has no private key")
	}
	return crypto.Sign(accounts.TextHash(data), a.privateKey)
}

// SignHash signs a 32 byte commitment.
func (a Account) SignHash(hash common.Hash) ([]byte, error) {
	return a.SignData(hash.Bytes())
}
