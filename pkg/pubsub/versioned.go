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

package pubsub

import (
	"math"
	"sync"

	"pushbus/pkg/delta"
	"pushbus/pkg/jsonval"
)

// historyEntry records, for the version it is keyed by, the script that
// reverses the very next update back to this value.
type historyEntry struct {
	version uint64
	script  jsonval.Value
	size    int
}

// Versioned holds the live value of one node plus a byte-bounded window of
// history sufficient to serve get_update_from for recently-subscribed
// clients without forcing a full re-initialization.
type Versioned struct {
	mu      sync.Mutex
	current jsonval.Value
	version uint64
	history []historyEntry
	bytes   int
	budget  int
}

// NewVersioned creates a versioned node seeded at version 0 with initial,
// retaining up to historyBudget bytes of reverse edit scripts.
func NewVersioned(initial jsonval.Value, historyBudget int) *Versioned {
	return &Versioned{current: initial, budget: historyBudget}
}

// Current returns the node's current value and version.
func (v *Versioned) Current() (jsonval.Value, uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current, v.version
}

// Update installs newValue as the node's current value if it differs from
// the current one, bumping the version and recording a reverse script in
// history. The reverse script is recorded whatever its size; history is then
// pruned oldest-first until its total size fits the budget passed to
// NewVersioned. Returns whether the value actually changed.
func (v *Versioned) Update(newValue jsonval.Value) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.current.Equal(newValue) {
		return false
	}

	// The reverse script (new -> old) is for internal history only, so it is
	// computed with no size ceiling: Delta only fails to find a script when
	// the budget is too small, and there is no smaller value than "whatever
	// fits in memory" to worry about here.
	_, reverseScript := delta.Delta(newValue, v.current, math.MaxInt)

	oldVersion := v.version
	entry := historyEntry{version: oldVersion, script: reverseScript, size: reverseScript.Size()}
	v.history = append(v.history, entry)
	v.bytes += entry.size

	v.current = newValue
	v.version++

	for v.bytes > v.budget && len(v.history) > 0 {
		dropped := v.history[0]
		v.history = v.history[1:]
		v.bytes -= dropped.size
	}

	return true
}

// GetUpdateFrom returns either a forward edit script that turns the value
// the caller last saw at version v into the current value, or signals a
// miss by returning (false, currentValue) when v falls outside the retained
// history window (or the reconstructed script would not fit maxUpdateSize),
// meaning the caller should treat this as a full re-initialization.
func (v *Versioned) GetUpdateFrom(ver uint64, maxUpdateSize int) (isUpdate bool, valueOrScript jsonval.Value) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if ver == v.version {
		return true, jsonval.NewArray()
	}
	if len(v.history) == 0 || ver < v.history[0].version {
		return false, v.current
	}

	reconstructed, ok := v.reconstructLocked(ver)
	if !ok {
		return false, v.current
	}

	okDelta, script := delta.Delta(reconstructed, v.current, maxUpdateSize)
	if !okDelta {
		return false, v.current
	}
	return true, script
}

// reconstructLocked walks history backward from the current value, applying
// each reverse script in turn, until it reaches the entry keyed by ver. Must
// be called with v.mu held.
func (v *Versioned) reconstructLocked(ver uint64) (jsonval.Value, bool) {
	val := v.current
	for i := len(v.history) - 1; i >= 0; i-- {
		entry := v.history[i]
		if entry.version < ver {
			return jsonval.NullValue, false
		}
		applied, err := delta.Apply(val, entry.script)
		if err != nil {
			return jsonval.NullValue, false
		}
		val = applied
		if entry.version == ver {
			return val, true
		}
	}
	return jsonval.NullValue, false
}

// OldestVersion returns the oldest version still reconstructable from
// history, which equals the current version when no history is retained.
func (v *Versioned) OldestVersion() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.history) == 0 {
		return v.version
	}
	return v.history[0].version
}
