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
	"github.com/ethereum/go-ethereum/common"
	"polycry.pt/poly-go/sync"

	"perun.network/perun-nitro-backend/channel/types"
)

// App validates application specific state transitions.
type App interface {
	// ValidTransition returns an error if the transition from -> to is not
	// allowed by the application.
	ValidTransition(from, to *types.State, numParts int) error
}

// AppFunc adapts a function to the App interface.
type AppFunc func(from, to *types.State, numParts int) error

// ValidTransition calls f.
func (f AppFunc) ValidTransition(from, to *types.State, numParts int) error {
	return f(from, to, numParts)
}

// NoApp accepts every transition.
type NoApp struct{}

// ValidTransition always returns nil.
func (NoApp) ValidTransition(*types.State, *types.State, int) error { return nil }

// AppRegistry resolves app definitions to validators. Unknown definitions
// resolve to NoApp.
type AppRegistry struct {
	mu   sync.Mutex
	apps map[common.Address]App
}

// NewAppRegistry returns an empty registry.
func NewAppRegistry() *AppRegistry {
	return &AppRegistry{apps: make(map[common.Address]App)}
}

// Register installs app for the given definition, replacing any previous one.
func (r *AppRegistry) Register(def common.Address, app App) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.apps[def] = app
}

// Resolve returns the validator of def.
func (r *AppRegistry) Resolve(def common.Address) App {
	if r == nil {
		return NoApp{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if app, ok := r.apps[def]; ok {
		return app
	}
	return NoApp{}
}
