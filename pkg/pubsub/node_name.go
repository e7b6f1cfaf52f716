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

// Package pubsub implements the node store: the keyed registry of versioned,
// subscribable data nodes and the root that fronts it.
package pubsub

import (
	"hash/fnv"
	"sort"
	"strings"
)

// Key is one (domain, value) pair of a node name. Domain is a short
// identifier ("p1", "customer", ...); value is its string payload.
type Key struct {
	Domain string
	Value  string
}

// Name is an ordered set of Keys identifying a node. Two names are equal iff
// they carry exactly the same keys, regardless of insertion order; domains
// are unique within a single Name.
type Name struct {
	keys []Key
}

// NewName builds a Name from the given keys, preserving the order they were
// given in for Keys; String renders them sorted by domain regardless.
func NewName(keys ...Key) Name {
	cp := make([]Key, len(keys))
	copy(cp, keys)
	return Name{keys: cp}
}

// Keys returns the name's keys in the order they were supplied.
func (n Name) Keys() []Key {
	return n.keys
}

// Get returns the value bound to domain, if any.
func (n Name) Get(domain string) (string, bool) {
	for _, k := range n.keys {
		if k.Domain == domain {
			return k.Value, true
		}
	}
	return "", false
}

// Equal reports whether n and other name exactly the same set of keys,
// independent of order.
func (n Name) Equal(other Name) bool {
	if len(n.keys) != len(other.keys) {
		return false
	}
	for _, k := range n.keys {
		v, ok := other.Get(k.Domain)
		if !ok || v != k.Value {
			return false
		}
	}
	return true
}

// sortedKeys returns a copy of n's keys ordered by domain, used wherever a
// canonical form is required (string rendering, hashing, map keys).
func (n Name) sortedKeys() []Key {
	cp := append([]Key{}, n.keys...)
	sort.Slice(cp, func(i, j int) bool { return cp[i].Domain < cp[j].Domain })
	return cp
}

// String renders the canonical form of n: keys ordered by domain, joined as
// "domain=value" pairs separated by "&". Two equal names always render
// identically, which makes this safe to use as a map key or log field.
func (n Name) String() string {
	sorted := n.sortedKeys()
	parts := make([]string, len(sorted))
	for i, k := range sorted {
		parts[i] = k.Domain + "=" + k.Value
	}
	return strings.Join(parts, "&")
}

// CanonicalKey returns a value suitable for use as a Go map key that
// compares equal for any two equal Names, regardless of insertion order.
func (n Name) CanonicalKey() string {
	return n.String()
}

// Group is a predicate over node names: "must carry all of these domains"
// plus "must carry exactly these keys". A Group with no requirements matches
// every name, which makes it usable as a catch-all default entry in a
// Configuration registry.
type Group struct {
	requireDomains []string
	requireKeys    []Key
}

// NewGroup builds a Group requiring every one of domains to be present
// (with any value) and every one of keys to be present with an exact value
// match.
func NewGroup(domains []string, keys []Key) Group {
	return Group{
		requireDomains: append([]string{}, domains...),
		requireKeys:    append([]Key{}, keys...),
	}
}

// Matches reports whether name satisfies the group's domain and key
// requirements.
func (g Group) Matches(name Name) bool {
	for _, d := range g.requireDomains {
		if _, ok := name.Get(d); !ok {
			return false
		}
	}
	for _, k := range g.requireKeys {
		v, ok := name.Get(k.Domain)
		if !ok || v != k.Value {
			return false
		}
	}
	return true
}

// PartitionIndex deterministically assigns name to one of n equidistributed
// buckets, hashing its canonical string form. n ≤ 0 always yields bucket 0.
func PartitionIndex(name Name, n int) int {
	if n <= 0 {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(name.CanonicalKey()))
	return int(h.Sum64() % uint64(n))
}
