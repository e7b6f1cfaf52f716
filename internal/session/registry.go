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

package session

import (
	"crypto/rand"
	"encoding/hex"
	"sync"

	"pushbus/pkg/pubsub"
)

// IDGenerator produces a new session id for a connection arriving from
// endpoint (the remote address or other per-connection identifier the
// transport layer knows about). Swappable for deterministic ids in tests.
type IDGenerator func(endpoint string) string

// RandomIDGenerator returns fresh random hex-encoded session ids, ignoring
// endpoint: randomness alone is enough to avoid collisions.
func RandomIDGenerator(endpoint string) string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	dst := make([]byte, 16)
	hex.Encode(dst, b[:])
	return string(dst)
}

// SequentialIDGenerator returns a deterministic "prefix/N" generator for
// tests; endpoint is accepted to satisfy IDGenerator but not incorporated,
// since tests want predictable ids regardless of the caller's address.
func SequentialIDGenerator(prefix string) IDGenerator {
	var n int
	var mu sync.Mutex
	return func(endpoint string) string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return prefix + "/" + itoa(n)
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// Registry owns the set of live sessions, keyed by id. It is the single
// place that creates Session values, arms idle timers, and tears sessions
// down once they've been idle past the configured session timeout.
type Registry struct {
	root  *pubsub.Root
	cfg   pubsub.Configuration
	clock pubsub.Clock
	genID IDGenerator
	byID  sync.Map // string -> *Session
}

// NewRegistry creates a registry that hands out sessions bound to root. A nil
// genID defaults to RandomIDGenerator and a nil clock to pubsub.RealClock{}.
func NewRegistry(root *pubsub.Root, cfg pubsub.Configuration, clock pubsub.Clock, genID IDGenerator) *Registry {
	if genID == nil {
		genID = RandomIDGenerator
	}
	if clock == nil {
		clock = pubsub.RealClock{}
	}
	return &Registry{root: root, cfg: cfg, clock: clock, genID: genID}
}

// Create allocates a brand new session with a fresh id and marks it in-use
// (the caller is expected to be about to issue a request against it).
// endpoint identifies the connection asking for a session (its remote
// address, typically) and is handed to the id generator.
func (reg *Registry) Create(endpoint string) *Session {
	for {
		id := reg.genID(endpoint)
		s := New(id, reg.root, reg.cfg, reg.clock)
		if _, loaded := reg.byID.LoadOrStore(id, s); !loaded {
			s.MarkInUse()
			return s
		}
		// id collision against a live session: shut down the redundant
		// registration attempt and regenerate.
		reg.root.Unregister(s.SubscriberID())
	}
}

// Count returns the number of sessions currently held, mainly for metrics
// reporting.
func (reg *Registry) Count() int {
	n := 0
	reg.byID.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Find looks up a session by id without affecting its use-count.
func (reg *Registry) Find(id string) (*Session, bool) {
	v, ok := reg.byID.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Session), true
}

// FindOrCreate looks up an existing session by id, or creates a new one if id
// is empty, unknown, or already in use by a concurrent exchange. Either way
// the returned session has its use-count incremented; the caller must call
// Idle when the request completes. endpoint is forwarded to Create and
// ignored on the lookup path, matching find_or_create(session_id,
// client_endpoint_name): the endpoint only matters for ids this call mints.
func (reg *Registry) FindOrCreate(id, endpoint string) *Session {
	if id != "" {
		if s, ok := reg.Find(id); ok && s.TryMarkInUse() {
			return s
		}
	}
	return reg.Create(endpoint)
}

// Idle decrements a session's use-count and, once it drops to zero, arms the
// configured session timeout; on expiry the session is shut down and removed
// from the registry.
func (reg *Registry) Idle(s *Session) {
	s.MarkIdle(reg.cfg.SessionTimeout, func() {
		reg.remove(s)
	})
}

// Drop immediately shuts down and deregisters s, e.g. on an explicit
// /meta/disconnect rather than an idle-timeout expiry.
func (reg *Registry) Drop(s *Session) {
	reg.remove(s)
}

func (reg *Registry) remove(s *Session) {
	reg.byID.Delete(s.ID())
	s.ShutDown()
}

// ShutDown tears down every session currently held by the registry, e.g. on
// server shutdown.
func (reg *Registry) ShutDown() {
	reg.byID.Range(func(key, value any) bool {
		reg.byID.Delete(key)
		value.(*Session).ShutDown()
		return true
	})
}
