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
	"sync"
	"sync/atomic"

	"pushbus/pkg/jsonval"
)

// Root owns the configuration registry and the node index, and is the only
// strong holder of Subscriber values: sessions address themselves to it by
// SubscriberID, never by a direct reference, which is what breaks the
// subscriber/session/node ownership cycle (see the SubscriberID doc comment
// in subscribed.go).
type Root struct {
	adapter  Adapter
	executor Executor
	clock    Clock

	configMu sync.Mutex
	configs  *ConfigRegistry

	indexMu sync.Mutex
	index   map[string]*SubscribedNode
	timers  map[string]Timer

	subMu   sync.Mutex
	nextID  uint64
	sinks   map[SubscriberID]Subscriber

	onCleanup func()
}

// SetCleanupObserver registers f to be called once per node actually removed
// by the node_timeout garbage collector. f is a plain func(), not a
// dependency on any particular metrics package, so Root stays usable as a
// library independent of how (or whether) its host wires up telemetry.
func (r *Root) SetCleanupObserver(f func()) {
	r.indexMu.Lock()
	defer r.indexMu.Unlock()
	r.onCleanup = f
}

// NewRoot creates a root with the given default configuration, adapter, and
// executor. clock may be nil, in which case RealClock{} is used.
func NewRoot(def Configuration, adapter Adapter, executor Executor, clock Clock) *Root {
	if clock == nil {
		clock = RealClock{}
	}
	return &Root{
		adapter:  adapter,
		executor: executor,
		clock:    clock,
		configs:  NewConfigRegistry(def),
		index:    make(map[string]*SubscribedNode),
		timers:   make(map[string]Timer),
		sinks:    make(map[SubscriberID]Subscriber),
	}
}

// Register issues a fresh SubscriberID bound to sink and returns it. The
// root holds sink strongly until Unregister is called.
func (r *Root) Register(sink Subscriber) SubscriberID {
	id := SubscriberID(atomic.AddUint64(&r.nextID, 1))
	r.subMu.Lock()
	r.sinks[id] = sink
	r.subMu.Unlock()
	return id
}

// Unregister forgets sink. It does not unsubscribe it from any node; callers
// normally call UnsubscribeAll first.
func (r *Root) Unregister(id SubscriberID) {
	r.subMu.Lock()
	delete(r.sinks, id)
	r.subMu.Unlock()
}

// AddConfiguration registers cfg for names matching group, taking precedence
// over later-registered and default configurations. Existing nodes keep the
// configuration they were created with.
func (r *Root) AddConfiguration(group Group, cfg Configuration) {
	r.configMu.Lock()
	defer r.configMu.Unlock()
	r.configs.Add(group, cfg)
}

// RemoveConfiguration drops a previously added (group, cfg) entry.
func (r *Root) RemoveConfiguration(group Group) {
	r.configMu.Lock()
	defer r.configMu.Unlock()
	r.configs.Remove(group)
}

func (r *Root) resolveConfig(name Name) Configuration {
	r.configMu.Lock()
	defer r.configMu.Unlock()
	return r.configs.Resolve(name)
}

// Subscribe adds the subscriber identified by id to name's node, creating
// the node (unvalidated) first if this is the first subscription to it. A
// freshly created node's validation is fired only after add_subscriber has
// run and the index lock has been dropped, matching the lock ordering
// contract (responder → registry → session → root → node).
func (r *Root) Subscribe(id SubscriberID, name Name) {
	sink := r.lookupSink(id)
	if sink == nil {
		return
	}

	key := name.CanonicalKey()
	r.indexMu.Lock()
	node, exists := r.index[key]
	if !exists {
		cfg := r.resolveConfig(name)
		node = NewSubscribedNode(name, cfg, r.adapter, r.executor, r.clock)
		r.index[key] = node
		r.cancelCleanupLocked(key)
	}
	node.AddSubscriber(id, sink)
	r.indexMu.Unlock()

	if !exists {
		node.StartValidation()
	}
}

// Unsubscribe removes id from name's node, if present, and schedules the
// node for cleanup once it has been empty for node_timeout.
func (r *Root) Unsubscribe(id SubscriberID, name Name) bool {
	key := name.CanonicalKey()
	r.indexMu.Lock()
	defer r.indexMu.Unlock()

	node, ok := r.index[key]
	if !ok {
		return false
	}
	removed := node.RemoveSubscriber(id)
	if node.SubscriberCount() == 0 {
		r.scheduleCleanupLocked(key, node)
	}
	return removed
}

// UnsubscribeAll removes id from every node it is currently subscribed to.
// The session layer calls this at session teardown to break the
// subscriber/session/node cycle without relying on weak references.
func (r *Root) UnsubscribeAll(id SubscriberID) {
	r.indexMu.Lock()
	var empties []string
	for key, node := range r.index {
		if node.RemoveSubscriber(id) && node.SubscriberCount() == 0 {
			empties = append(empties, key)
		}
	}
	for _, key := range empties {
		r.scheduleCleanupLocked(key, r.index[key])
	}
	r.indexMu.Unlock()
	r.Unregister(id)
}

// UpdateNode publishes a new value for name. Authorization is not checked
// here; gating writes is the application's responsibility.
func (r *Root) UpdateNode(name Name, value jsonval.Value) {
	r.indexMu.Lock()
	node, ok := r.index[name.CanonicalKey()]
	r.indexMu.Unlock()
	if !ok {
		return
	}
	node.ChangeData(value)
}

// Lookup returns the node currently registered for name, if any. Mainly for
// the protocol layer to read current state without going through
// Subscribe/Unsubscribe.
func (r *Root) Lookup(name Name) (*SubscribedNode, bool) {
	r.indexMu.Lock()
	defer r.indexMu.Unlock()
	node, ok := r.index[name.CanonicalKey()]
	return node, ok
}

// NodeCount returns the number of subscribed nodes currently in the index,
// mainly for metrics reporting.
func (r *Root) NodeCount() int {
	r.indexMu.Lock()
	defer r.indexMu.Unlock()
	return len(r.index)
}

func (r *Root) lookupSink(id SubscriberID) Subscriber {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	return r.sinks[id]
}

// scheduleCleanupLocked arms a timer that removes the node from the index
// if it is still empty when the timer fires. Must be called with indexMu
// held.
func (r *Root) scheduleCleanupLocked(key string, node *SubscribedNode) {
	r.cancelCleanupLocked(key)
	timeout := node.cfg.NodeTimeout
	r.timers[key] = r.clock.AfterFunc(timeout, func() {
		r.indexMu.Lock()
		defer r.indexMu.Unlock()
		current, ok := r.index[key]
		if !ok || current != node {
			return
		}
		if current.SubscriberCount() == 0 {
			delete(r.index, key)
			if r.onCleanup != nil {
				r.onCleanup()
			}
		}
		delete(r.timers, key)
	})
}

func (r *Root) cancelCleanupLocked(key string) {
	if t, ok := r.timers[key]; ok {
		t.Stop()
		delete(r.timers, key)
	}
}
