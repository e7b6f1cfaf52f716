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
	"errors"
	"sync"
	"time"

	"pushbus/internal/metrics"
	"pushbus/pkg/jsonval"
	"pushbus/pkg/pubsub"
)

// ErrShutDown is returned by operations attempted on a session that has
// already been shut down.
var ErrShutDown = errors.New("session: shut down")

// Responder is the long-poll holder a Session parks itself against. Deliver
// is called at most once per park with the drained buffer (nil when the
// session shuts down); SecondConnectionDetected is called if another responder
// parks on the same session before this one was woken.
type Responder interface {
	Deliver(messages []Message)
	SecondConnectionDetected()
}

type subscriptionState struct {
	name        pubsub.Name
	pendingID   jsonval.Value
	lastVersion *uint64
}

// Session is the per-client record described by the pub/sub root's session
// layer: a message buffer, at most one parked responder, and the set of
// nodes this client is currently subscribed to. It implements
// pubsub.Subscriber so the root can address it directly via a
// pubsub.SubscriberID.
type Session struct {
	mu sync.Mutex

	id           string
	root         *pubsub.Root
	subscriberID pubsub.SubscriberID
	cfg          pubsub.Configuration
	clock        pubsub.Clock

	buffer      []Message
	bufferBytes int
	parked      Responder

	subs map[string]subscriptionState

	useCount  int
	idleTimer pubsub.Timer
	shutDown  bool
}

// New creates a session bound to root, registering it as a subscriber. The
// caller owns id generation (see RandomIDGenerator and the registry).
func New(id string, root *pubsub.Root, cfg pubsub.Configuration, clock pubsub.Clock) *Session {
	s := &Session{
		id:    id,
		root:  root,
		cfg:   cfg,
		clock: clock,
		subs:  make(map[string]subscriptionState),
	}
	s.subscriberID = root.Register(s)
	return s
}

// ID returns the session's id.
func (s *Session) ID() string { return s.id }

// SubscriberID returns the pubsub.SubscriberID this session registered as.
func (s *Session) SubscriberID() pubsub.SubscriberID { return s.subscriberID }

// WaitForEvents drains the buffer and returns it immediately if non-empty;
// otherwise it parks r (evicting any prior parked responder first via
// SecondConnectionDetected, called outside the lock) and returns parked=true,
// meaning the caller should expect Deliver to be called later.
func (s *Session) WaitForEvents(r Responder) (events []Message, parked bool) {
	s.mu.Lock()
	if len(s.buffer) > 0 {
		drained := s.buffer
		s.buffer = nil
		s.bufferBytes = 0
		s.mu.Unlock()
		return drained, false
	}
	old := s.parked
	s.parked = r
	s.mu.Unlock()

	if old != nil {
		old.SecondConnectionDetected()
	}
	return nil, true
}

// Events drains the buffer without parking a responder.
func (s *Session) Events() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	drained := s.buffer
	s.buffer = nil
	s.bufferBytes = 0
	return drained
}

// Subscribe records name (keyed by its canonical key, with pendingID kept
// alongside for the eventual ack) and
// forwards the subscription to the root, then acknowledges it. If
// knownVersion is non-nil, it seeds the version this session already holds
// for name (the native protocol's optional "version" field), letting the
// very first on_update after subscribing arrive as a delta rather than a
// full snapshot.
func (s *Session) Subscribe(name pubsub.Name, pendingID jsonval.Value, knownVersion *uint64) error {
	s.mu.Lock()
	if s.shutDown {
		s.mu.Unlock()
		return ErrShutDown
	}
	key := name.CanonicalKey()
	s.subs[key] = subscriptionState{name: name, pendingID: pendingID, lastVersion: knownVersion}
	s.mu.Unlock()

	s.root.Subscribe(s.subscriberID, name)
	s.appendAndWake(Message{Kind: KindSubscribeAck, NodeName: key, PendingID: pendingID, Success: true})
	return nil
}

// Unsubscribe forwards to the root if name is currently subscribed,
// otherwise immediately acknowledges failure.
func (s *Session) Unsubscribe(name pubsub.Name, pendingID jsonval.Value) {
	key := name.CanonicalKey()
	s.mu.Lock()
	_, ok := s.subs[key]
	if ok {
		delete(s.subs, key)
	}
	s.mu.Unlock()

	if !ok {
		s.appendAndWake(Message{Kind: KindUnsubscribeAck, NodeName: key, PendingID: pendingID, Success: false, ErrorText: "not subscribed"})
		return
	}
	s.root.Unsubscribe(s.subscriberID, name)
	s.appendAndWake(Message{Kind: KindUnsubscribeAck, NodeName: key, PendingID: pendingID, Success: true})
}

// ShutDown cancels any idle timer, flushes a parked responder with an empty
// array, and unsubscribes the session from every node it held.
func (s *Session) ShutDown() {
	s.mu.Lock()
	if s.shutDown {
		s.mu.Unlock()
		return
	}
	s.shutDown = true
	if s.idleTimer != nil {
		s.idleTimer.Stop()
		s.idleTimer = nil
	}
	parked := s.parked
	s.parked = nil
	s.mu.Unlock()

	if parked != nil {
		parked.Deliver(nil)
	}
	s.root.UnsubscribeAll(s.subscriberID)
}

// MarkInUse increments the session's use-count and cancels any armed idle
// timer, called by the registry whenever a request resolves to this session.
func (s *Session) MarkInUse() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.useCount++
	if s.idleTimer != nil {
		s.idleTimer.Stop()
		s.idleTimer = nil
	}
}

// TryMarkInUse acquires the session for a new exchange if it is not already
// in use by another concurrent exchange, reporting whether it succeeded.
func (s *Session) TryMarkInUse() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.useCount > 0 {
		return false
	}
	s.useCount++
	if s.idleTimer != nil {
		s.idleTimer.Stop()
		s.idleTimer = nil
	}
	return true
}

// MarkIdle decrements the use-count; once it reaches zero, arms a timer that
// calls onExpire after timeout unless the use-count rose again in the
// meantime (re-checked under lock at fire time).
func (s *Session) MarkIdle(timeout time.Duration, onExpire func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.useCount > 0 {
		s.useCount--
	}
	if s.useCount > 0 {
		return
	}
	s.idleTimer = s.clock.AfterFunc(timeout, func() {
		s.mu.Lock()
		stillIdle := s.useCount == 0
		s.mu.Unlock()
		if stillIdle {
			onExpire()
		}
	})
}

// appendAndWake appends entries to the buffer, trims it to the configured
// caps, and if a responder is parked, drains the buffer to it.
func (s *Session) appendAndWake(entries ...Message) {
	for _, m := range entries {
		if m.Kind == KindUpdate {
			metrics.ObserveUpdate(m.IsDelta, m.Size())
		}
	}

	s.mu.Lock()
	for _, m := range entries {
		s.buffer = append(s.buffer, m)
		s.bufferBytes += m.Size()
	}
	s.trimLocked()

	var woken Responder
	var drained []Message
	if s.parked != nil {
		woken = s.parked
		s.parked = nil
		drained = s.buffer
		s.buffer = nil
		s.bufferBytes = 0
	}
	s.mu.Unlock()

	if woken != nil {
		woken.Deliver(drained)
	}
}

// trimLocked drops messages from the front of the buffer until both the
// count and byte-size caps hold. Must be called with s.mu held.
func (s *Session) trimLocked() {
	maxCount := s.cfg.MaxMessagesPerClient
	maxBytes := s.cfg.MaxMessagesSizePerClient
	for (maxCount > 0 && len(s.buffer) > maxCount) || (maxBytes > 0 && s.bufferBytes > maxBytes) {
		if len(s.buffer) == 0 {
			break
		}
		s.bufferBytes -= s.buffer[0].Size()
		s.buffer = s.buffer[1:]
	}
}

// OnUpdate implements pubsub.Subscriber. It sends a delta against the last
// version this session observed for name when one fits the configured
// budget, otherwise a full snapshot.
func (s *Session) OnUpdate(name pubsub.Name, node *pubsub.Versioned) {
	value, version := node.Current()
	key := name.CanonicalKey()

	s.mu.Lock()
	state, ok := s.subs[key]
	if !ok {
		s.mu.Unlock()
		return
	}
	var msg Message
	if state.lastVersion != nil {
		isUpdate, script := node.GetUpdateFrom(*state.lastVersion, s.cfg.MaxUpdateSize)
		if isUpdate {
			msg = Message{Kind: KindUpdate, NodeName: key, IsDelta: true, Script: script, From: *state.lastVersion, Version: version}
		} else {
			msg = Message{Kind: KindUpdate, NodeName: key, IsDelta: false, Value: value, Version: version}
		}
	} else {
		msg = Message{Kind: KindUpdate, NodeName: key, IsDelta: false, Value: value, Version: version}
	}
	lv := version
	state.lastVersion = &lv
	s.subs[key] = state
	s.mu.Unlock()

	s.appendAndWake(msg)
}

// OnInvalidNodeSubscription implements pubsub.Subscriber.
func (s *Session) OnInvalidNodeSubscription(name pubsub.Name) {
	s.notifyNegative(name, KindInvalid, "invalid node")
}

// OnUnauthorizedNodeSubscription implements pubsub.Subscriber.
func (s *Session) OnUnauthorizedNodeSubscription(name pubsub.Name) {
	s.notifyNegative(name, KindUnauthorized, "not authorized")
}

// OnFailedNodeSubscription implements pubsub.Subscriber.
func (s *Session) OnFailedNodeSubscription(name pubsub.Name) {
	s.notifyNegative(name, KindFailed, "initialization failed")
}

func (s *Session) notifyNegative(name pubsub.Name, kind Kind, errText string) {
	key := name.CanonicalKey()
	s.mu.Lock()
	pendingID := jsonval.NullValue
	if state, ok := s.subs[key]; ok {
		pendingID = state.pendingID
		delete(s.subs, key)
	}
	s.mu.Unlock()

	s.appendAndWake(Message{Kind: kind, NodeName: key, PendingID: pendingID, Success: false, ErrorText: errText})
}
