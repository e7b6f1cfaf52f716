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
	"runtime"
	"sync"

	"pushbus/pkg/jsonval"
)

// Adapter is the application-supplied hook for the three asynchronous
// decisions the node store needs answered before a node becomes live: is
// the name valid, is a given subscriber authorized, and what is the node's
// initial value. Every method may complete its callback inline (before
// returning) or from any other goroutine, at any later time.
type Adapter interface {
	ValidateNode(name Name, cb *ValidateCallback)
	Authorize(sink Subscriber, name Name, cb *AuthorizeCallback)
	NodeInit(name Name, cb *InitCallback)
}

// Executor posts work to run asynchronously. Production wires this to a
// goroutine pool or a plain `go func()`; tests can wire it to something that
// runs synchronously and deterministically.
type Executor func(func())

// oneShot guards a callback against being answered twice and, if it is
// garbage collected without ever being answered, synthesizes the negative
// outcome the way a dropped coordinator object would in a reference-counted
// implementation. This is the idiomatic-Go rendering of "destructor runs the
// fallback": a finalizer stands in for the destructor, cleared as soon as
// the callback is answered explicitly.
type oneShot struct {
	mu       sync.Mutex
	done     bool
	fallback func()
}

func newOneShot(fallback func()) *oneShot {
	o := &oneShot{fallback: fallback}
	runtime.SetFinalizer(o, func(o *oneShot) { o.fire() })
	return o
}

func (o *oneShot) fire() {
	o.mu.Lock()
	if o.done {
		o.mu.Unlock()
		return
	}
	o.done = true
	f := o.fallback
	o.mu.Unlock()
	if f != nil {
		f()
	}
}

// answer marks the callback as explicitly resolved and disarms the
// finalizer, then runs action if this call is the one that won the race
// against a concurrent fire/answer.
func (o *oneShot) answer(action func()) {
	o.mu.Lock()
	if o.done {
		o.mu.Unlock()
		return
	}
	o.done = true
	o.mu.Unlock()
	runtime.SetFinalizer(o, nil)
	if action != nil {
		action()
	}
}

// ValidateCallback is handed to Adapter.ValidateNode. Exactly one of
// IsValid/NotValid should be called; if neither is called and the callback
// is dropped, NotValid's effect is synthesized.
type ValidateCallback struct {
	shot *oneShot
	node *SubscribedNode
}

func newValidateCallback(node *SubscribedNode) *ValidateCallback {
	cb := &ValidateCallback{node: node}
	cb.shot = newOneShot(node.onNotValidated)
	return cb
}

// IsValid reports the node name as valid.
func (cb *ValidateCallback) IsValid() {
	cb.shot.answer(cb.node.onValidated)
}

// NotValid reports the node name as invalid.
func (cb *ValidateCallback) NotValid() {
	cb.shot.answer(cb.node.onNotValidated)
}

// AuthorizeCallback is handed to Adapter.Authorize, one instance per pending
// subscriber. Exactly one of IsAuthorized/NotAuthorized should be called; a
// dropped callback synthesizes NotAuthorized.
type AuthorizeCallback struct {
	shot *oneShot
	node *SubscribedNode
	id   SubscriberID
	sink Subscriber
}

func newAuthorizeCallback(node *SubscribedNode, id SubscriberID, sink Subscriber) *AuthorizeCallback {
	cb := &AuthorizeCallback{node: node, id: id, sink: sink}
	cb.shot = newOneShot(func() { node.onUnauthorizedSubscriber(id) })
	return cb
}

// IsAuthorized admits the subscriber.
func (cb *AuthorizeCallback) IsAuthorized() {
	cb.shot.answer(func() { cb.node.onAuthorizedSubscriber(cb.id, cb.sink) })
}

// NotAuthorized rejects the subscriber.
func (cb *AuthorizeCallback) NotAuthorized() {
	cb.shot.answer(func() { cb.node.onUnauthorizedSubscriber(cb.id) })
}

// InitCallback is handed to Adapter.NodeInit. Exactly one of
// InitialValue/InitFailed should be called; a dropped callback synthesizes
// InitFailed.
type InitCallback struct {
	shot *oneShot
	node *SubscribedNode
}

func newInitCallback(node *SubscribedNode) *InitCallback {
	cb := &InitCallback{node: node}
	cb.shot = newOneShot(node.onInitialDataFailed)
	return cb
}

// InitialValue seeds the node's current value and moves it to live.
func (cb *InitCallback) InitialValue(v jsonval.Value) {
	cb.shot.answer(func() { cb.node.onInitialData(v) })
}

// InitFailed moves the node to the terminal init-failed state.
func (cb *InitCallback) InitFailed() {
	cb.shot.answer(cb.node.onInitialDataFailed)
}
