// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
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

// Package backend implements pubsub.Adapter backends: a dependency-free
// in-memory adapter for demos and tests, and a Redis-backed adapter for
// sharing node values across server instances.
package backend

import (
	"sync"

	"pushbus/internal/metrics"
	"pushbus/pkg/jsonval"
	"pushbus/pkg/pubsub"
)

// MockAdapter is an in-process pubsub.Adapter: every node name is valid,
// every subscriber is authorized, and a node's initial value is whatever
// was last Put into the adapter (or an empty object if never set). It
// requires no external infrastructure, mirroring the demo-friendly defaults
// the rest of this codebase favors.
type MockAdapter struct {
	mu     sync.Mutex
	values map[string]jsonval.Value
}

// NewMockAdapter returns a ready-to-use MockAdapter.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{values: make(map[string]jsonval.Value)}
}

// Put sets the value NodeInit will hand out for name. It does not push
// anything to a node that already exists; live changes go through
// pubsub.Root.UpdateNode. Put only affects values not yet initialized.
func (a *MockAdapter) Put(name pubsub.Name, value jsonval.Value) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.values[name.CanonicalKey()] = value
}

// ValidateNode implements pubsub.Adapter: every name is valid.
func (a *MockAdapter) ValidateNode(name pubsub.Name, cb *pubsub.ValidateCallback) {
	metrics.ObserveAdapterOutcome("validate", "valid")
	cb.IsValid()
}

// Authorize implements pubsub.Adapter: every subscriber is authorized.
func (a *MockAdapter) Authorize(sink pubsub.Subscriber, name pubsub.Name, cb *pubsub.AuthorizeCallback) {
	metrics.ObserveAdapterOutcome("authorize", "authorized")
	cb.IsAuthorized()
}

// NodeInit implements pubsub.Adapter, handing out the value last set via
// Put, or an empty JSON object for a node nobody ever Put a value for.
func (a *MockAdapter) NodeInit(name pubsub.Name, cb *pubsub.InitCallback) {
	a.mu.Lock()
	v, ok := a.values[name.CanonicalKey()]
	a.mu.Unlock()
	if !ok {
		v = jsonval.NewObject()
	}
	metrics.ObserveAdapterOutcome("init", "ok")
	cb.InitialValue(v)
}
