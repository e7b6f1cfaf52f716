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
	"time"

	"pushbus/pkg/jsonval"
)

// SubscriberID is an opaque handle a session uses to refer to itself when
// talking to the root, instead of holding a strong reference to a
// Subscriber. This breaks the subscriber/session/node ownership cycle the
// source worked around with weak back-pointers: the root is the only thing
// that holds a strong Subscriber reference, keyed by SubscriberID, and it is
// responsible for tearing that mapping down when a session ends.
type SubscriberID uint64

// Subscriber is the sink a session registers with the root to receive node
// updates and subscription-outcome notifications.
type Subscriber interface {
	OnUpdate(name Name, node *Versioned)
	OnInvalidNodeSubscription(name Name)
	OnUnauthorizedNodeSubscription(name Name)
	OnFailedNodeSubscription(name Name)
}

type nodeState int

const (
	stateUnvalidated nodeState = iota
	stateUninitialized
	stateInitializing
	stateLive
	stateInvalid
	stateInitFailed
)

func (s nodeState) String() string {
	switch s {
	case stateUnvalidated:
		return "unvalidated"
	case stateUninitialized:
		return "uninitialized"
	case stateInitializing:
		return "initializing"
	case stateLive:
		return "live"
	case stateInvalid:
		return "invalid"
	case stateInitFailed:
		return "init-failed"
	default:
		return "unknown"
	}
}

// historyBudgetFactor sets the versioned node's history byte budget as a
// multiple of the configured max update size, per spec default "proportional
// to max_update_size".
const historyBudgetFactor = 4

// SubscribedNode is the per-name record combining a node's lifecycle state,
// its versioned value once live, and the two subscriber sets (authorized,
// pending authorization).
type SubscribedNode struct {
	mu       sync.Mutex
	name     Name
	cfg      Configuration
	adapter  Adapter
	executor Executor
	clock    Clock

	state     nodeState
	versioned *Versioned

	authorized          map[SubscriberID]Subscriber
	pendingUnauthorized map[SubscriberID]Subscriber

	lastPushAt    time.Time
	pushScheduled bool
}

// NewSubscribedNode creates a node in the unvalidated state. The caller
// (the root) is responsible for kicking off validation via StartValidation
// exactly once, immediately after adding the node's first subscriber. clock
// drives min_update_period spacing between successive pushes; a nil clock
// defaults to RealClock{}.
func NewSubscribedNode(name Name, cfg Configuration, adapter Adapter, executor Executor, clock Clock) *SubscribedNode {
	if clock == nil {
		clock = RealClock{}
	}
	return &SubscribedNode{
		name:                name,
		cfg:                 cfg,
		adapter:             adapter,
		executor:            executor,
		clock:               clock,
		state:               stateUnvalidated,
		authorized:          make(map[SubscriberID]Subscriber),
		pendingUnauthorized: make(map[SubscriberID]Subscriber),
	}
}

// Name returns the node's identifier.
func (n *SubscribedNode) Name() Name { return n.name }

// State returns the current lifecycle state, mainly for tests and metrics.
func (n *SubscribedNode) State() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state.String()
}

// SubscriberCount returns the number of subscribers in either set, used by
// the root to decide whether a node is empty and eligible for cleanup.
func (n *SubscribedNode) SubscriberCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.authorized) + len(n.pendingUnauthorized)
}

// StartValidation constructs a validator and hands it to the adapter via the
// executor. Must be called by the root exactly once, right after the node's
// creation.
func (n *SubscribedNode) StartValidation() {
	cb := newValidateCallback(n)
	n.executor(func() { n.adapter.ValidateNode(n.name, cb) })
}

// AddSubscriber stages sink into the appropriate set (pending-unauthorized
// if the node requires authorization, authorized otherwise) and delivers
// whatever immediate notification the node's current state calls for.
func (n *SubscribedNode) AddSubscriber(id SubscriberID, sink Subscriber) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.cfg.AuthorizationRequired {
		n.pendingUnauthorized[id] = sink
		if n.state == stateInvalid {
			sink.OnInvalidNodeSubscription(n.name)
		}
		return
	}

	n.authorized[id] = sink
	switch n.state {
	case stateLive:
		sink.OnUpdate(n.name, n.versioned)
	case stateInvalid:
		sink.OnInvalidNodeSubscription(n.name)
	}
}

// RemoveSubscriber erases id from both sets and reports whether it was
// present in either.
func (n *SubscribedNode) RemoveSubscriber(id SubscriberID) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	_, inAuth := n.authorized[id]
	_, inPending := n.pendingUnauthorized[id]
	delete(n.authorized, id)
	delete(n.pendingUnauthorized, id)
	return inAuth || inPending
}

// ChangeData does nothing unless the node is live (a value passed earlier is
// discarded, not staged). On a live node it updates the versioned value and,
// if it actually changed, pushes it out subject to min_update_period: the push
// happens synchronously under the node's mutex (so per-subscriber delivery
// order matches update order) when enough time has passed since the last
// push, or is deferred to a single coalescing timer otherwise.
func (n *SubscribedNode) ChangeData(newValue jsonval.Value) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state != stateLive {
		return
	}
	if !n.versioned.Update(newValue) {
		return
	}
	n.pushLocked()
}

// pushLocked delivers the node's current value to every authorized
// subscriber, or — if min_update_period hasn't yet elapsed since the last
// push — arms a single timer to deliver the (by-then latest) value once it
// has, coalescing any further ChangeData calls that land before it fires.
// Must be called with n.mu held.
func (n *SubscribedNode) pushLocked() {
	if n.cfg.MinUpdatePeriod > 0 && !n.lastPushAt.IsZero() {
		if elapsed := n.clock.Now().Sub(n.lastPushAt); elapsed < n.cfg.MinUpdatePeriod {
			if !n.pushScheduled {
				n.pushScheduled = true
				n.clock.AfterFunc(n.cfg.MinUpdatePeriod-elapsed, n.firePendingPush)
			}
			return
		}
	}
	n.lastPushAt = n.clock.Now()
	for _, sink := range n.authorized {
		sink.OnUpdate(n.name, n.versioned)
	}
}

// firePendingPush is the deferred half of pushLocked's min_update_period
// coalescing: it delivers whatever value is current when the timer fires,
// not the one that triggered the deferral.
func (n *SubscribedNode) firePendingPush() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pushScheduled = false
	if n.state != stateLive {
		return
	}
	n.lastPushAt = n.clock.Now()
	for _, sink := range n.authorized {
		sink.OnUpdate(n.name, n.versioned)
	}
}

// onValidated runs when the adapter confirms the node name is valid. Moves
// to uninitialized (if authorization is required, firing one authorize
// request per already-pending subscriber) or straight to initializing
// (firing a single node_init request).
func (n *SubscribedNode) onValidated() {
	n.mu.Lock()
	if n.state != stateUnvalidated {
		n.mu.Unlock()
		return
	}

	if n.cfg.AuthorizationRequired {
		n.state = stateUninitialized
		pending := make(map[SubscriberID]Subscriber, len(n.pendingUnauthorized))
		for id, sink := range n.pendingUnauthorized {
			pending[id] = sink
		}
		n.mu.Unlock()

		for id, sink := range pending {
			id, sink := id, sink
			cb := newAuthorizeCallback(n, id, sink)
			n.executor(func() { n.adapter.Authorize(sink, n.name, cb) })
		}
		return
	}

	n.state = stateInitializing
	n.mu.Unlock()
	cb := newInitCallback(n)
	n.executor(func() { n.adapter.NodeInit(n.name, cb) })
}

// onNotValidated runs when the adapter rejects the node name, or a validator
// is dropped unanswered. Terminal: every pending subscriber is notified and
// removed.
func (n *SubscribedNode) onNotValidated() {
	n.mu.Lock()
	if n.state != stateUnvalidated {
		n.mu.Unlock()
		return
	}
	n.state = stateInvalid
	subs := n.drainAllLocked()
	n.mu.Unlock()

	for _, sink := range subs {
		sink.OnInvalidNodeSubscription(n.name)
	}
}

// onAuthorizedSubscriber moves one subscriber from pending-unauthorized to
// authorized. The first time this happens while uninitialized, it also
// kicks off the single node_init request; if the node is already live, the
// newly authorized subscriber is caught up immediately.
func (n *SubscribedNode) onAuthorizedSubscriber(id SubscriberID, sink Subscriber) {
	n.mu.Lock()
	if _, ok := n.pendingUnauthorized[id]; !ok {
		n.mu.Unlock()
		return
	}
	delete(n.pendingUnauthorized, id)
	n.authorized[id] = sink

	triggerInit := n.state == stateUninitialized
	if triggerInit {
		n.state = stateInitializing
	}
	deliverLive := n.state == stateLive
	var versioned *Versioned
	if deliverLive {
		versioned = n.versioned
	}
	n.mu.Unlock()

	if triggerInit {
		cb := newInitCallback(n)
		n.executor(func() { n.adapter.NodeInit(n.name, cb) })
	}
	if deliverLive {
		sink.OnUpdate(n.name, versioned)
	}
}

// onUnauthorizedSubscriber removes one subscriber from pending-unauthorized
// and delivers the rejection notification.
func (n *SubscribedNode) onUnauthorizedSubscriber(id SubscriberID) {
	n.mu.Lock()
	sink, ok := n.pendingUnauthorized[id]
	if !ok {
		n.mu.Unlock()
		return
	}
	delete(n.pendingUnauthorized, id)
	n.mu.Unlock()

	sink.OnUnauthorizedNodeSubscription(n.name)
}

// onInitialData seeds the node's value, moves it to live, and delivers
// on_update to every subscriber already authorized at that point.
func (n *SubscribedNode) onInitialData(value jsonval.Value) {
	n.mu.Lock()
	if n.state != stateInitializing {
		n.mu.Unlock()
		return
	}
	budget := n.cfg.MaxUpdateSize * historyBudgetFactor
	n.versioned = NewVersioned(value, budget)
	n.state = stateLive

	subs := make(map[SubscriberID]Subscriber, len(n.authorized))
	for id, sink := range n.authorized {
		subs[id] = sink
	}
	versioned := n.versioned
	n.mu.Unlock()

	for _, sink := range subs {
		sink.OnUpdate(n.name, versioned)
	}
}

// onInitialDataFailed moves the node to the terminal init-failed state,
// notifying and clearing every subscriber in either set.
func (n *SubscribedNode) onInitialDataFailed() {
	n.mu.Lock()
	if n.state != stateInitializing {
		n.mu.Unlock()
		return
	}
	n.state = stateInitFailed
	subs := n.drainAllLocked()
	n.mu.Unlock()

	for _, sink := range subs {
		sink.OnFailedNodeSubscription(n.name)
	}
}

// drainAllLocked empties both subscriber sets and returns their union. Must
// be called with n.mu held.
func (n *SubscribedNode) drainAllLocked() []Subscriber {
	subs := make([]Subscriber, 0, len(n.authorized)+len(n.pendingUnauthorized))
	for _, sink := range n.authorized {
		subs = append(subs, sink)
	}
	for _, sink := range n.pendingUnauthorized {
		subs = append(subs, sink)
	}
	n.authorized = make(map[SubscriberID]Subscriber)
	n.pendingUnauthorized = make(map[SubscriberID]Subscriber)
	return subs
}
