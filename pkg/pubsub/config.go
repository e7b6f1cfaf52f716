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

import "time"

// Configuration bundles the update policy and timeouts that apply to one
// group of nodes or sessions.
type Configuration struct {
	NodeTimeout              time.Duration
	MinUpdatePeriod          time.Duration
	MaxUpdateSize            int
	AuthorizationRequired    bool
	MaxMessagesPerClient     int
	MaxMessagesSizePerClient int
	SessionTimeout           time.Duration
	LongPollingTimeout       time.Duration
}

// DefaultConfiguration returns sane defaults matching the values this system
// has always shipped with.
func DefaultConfiguration() Configuration {
	return Configuration{
		NodeTimeout:              10 * time.Second,
		MinUpdatePeriod:          0,
		MaxUpdateSize:            512,
		AuthorizationRequired:    false,
		MaxMessagesPerClient:     100,
		MaxMessagesSizePerClient: 1 << 16,
		SessionTimeout:           30 * time.Second,
		LongPollingTimeout:       30 * time.Second,
	}
}

// configEntry pairs a Group with the Configuration that applies to names it
// matches.
type configEntry struct {
	group Group
	cfg   Configuration
}

// ConfigRegistry is an ordered, first-match list of (Group, Configuration)
// pairs, falling back to a default Configuration when nothing matches.
type ConfigRegistry struct {
	entries []configEntry
	def     Configuration
}

// NewConfigRegistry builds a registry that returns def for any name that
// matches none of the groups added later via Add.
func NewConfigRegistry(def Configuration) *ConfigRegistry {
	return &ConfigRegistry{def: def}
}

// Add appends a (group, cfg) entry. Entries are tried in the order they were
// added; the first whose group matches a name wins.
func (r *ConfigRegistry) Add(group Group, cfg Configuration) {
	r.entries = append(r.entries, configEntry{group: group, cfg: cfg})
}

// Remove drops every entry whose group is identical in shape to group. Nodes
// that already resolved to that configuration keep it; only future lookups
// are affected.
func (r *ConfigRegistry) Remove(group Group) {
	kept := r.entries[:0]
	for _, e := range r.entries {
		if !sameGroup(e.group, group) {
			kept = append(kept, e)
		}
	}
	r.entries = kept
}

// Resolve returns the configuration for name: the first matching group's
// configuration, or the registry default.
func (r *ConfigRegistry) Resolve(name Name) Configuration {
	for _, e := range r.entries {
		if e.group.Matches(name) {
			return e.cfg
		}
	}
	return r.def
}

func sameGroup(a, b Group) bool {
	if len(a.requireDomains) != len(b.requireDomains) || len(a.requireKeys) != len(b.requireKeys) {
		return false
	}
	for i := range a.requireDomains {
		if a.requireDomains[i] != b.requireDomains[i] {
			return false
		}
	}
	for i := range a.requireKeys {
		if a.requireKeys[i] != b.requireKeys[i] {
			return false
		}
	}
	return true
}
