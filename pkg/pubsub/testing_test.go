// testing_test.go
package pubsub

import (
	"sync"

	"pushbus/pkg/jsonval"
)

// syncExecutor runs posted work immediately on the calling goroutine, making
// adapter-driven state transitions deterministic in tests.
func syncExecutor(f func()) { f() }

// fakeAdapter answers validate/authorize/init from pre-programmed results,
// or defers to a hook per call when present.
type fakeAdapter struct {
	mu          sync.Mutex
	validateFn  func(name Name, cb *ValidateCallback)
	authorizeFn func(sink Subscriber, name Name, cb *AuthorizeCallback)
	initFn      func(name Name, cb *InitCallback)

	validateCalls  int
	authorizeCalls int
	initCalls      int
}

func (a *fakeAdapter) ValidateNode(name Name, cb *ValidateCallback) {
	a.mu.Lock()
	a.validateCalls++
	a.mu.Unlock()
	if a.validateFn != nil {
		a.validateFn(name, cb)
		return
	}
	cb.IsValid()
}

func (a *fakeAdapter) Authorize(sink Subscriber, name Name, cb *AuthorizeCallback) {
	a.mu.Lock()
	a.authorizeCalls++
	a.mu.Unlock()
	if a.authorizeFn != nil {
		a.authorizeFn(sink, name, cb)
		return
	}
	cb.IsAuthorized()
}

func (a *fakeAdapter) NodeInit(name Name, cb *InitCallback) {
	a.mu.Lock()
	a.initCalls++
	a.mu.Unlock()
	if a.initFn != nil {
		a.initFn(name, cb)
		return
	}
	cb.InitialValue(jsonval.NewInt(0))
}

// fakeSubscriber records every callback invocation it receives, in order.
type fakeSubscriber struct {
	mu     sync.Mutex
	events []string
	values []jsonval.Value
}

func (s *fakeSubscriber) OnUpdate(name Name, node *Versioned) {
	v, _ := node.Current()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, "update")
	s.values = append(s.values, v)
}

func (s *fakeSubscriber) OnInvalidNodeSubscription(name Name) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, "invalid")
}

func (s *fakeSubscriber) OnUnauthorizedNodeSubscription(name Name) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, "unauthorized")
}

func (s *fakeSubscriber) OnFailedNodeSubscription(name Name) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, "failed")
}

func (s *fakeSubscriber) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.events...)
}

func testName(v string) Name {
	return NewName(Key{Domain: "p1", Value: v})
}
