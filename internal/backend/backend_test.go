package backend

import (
	"context"
	"sync"
	"testing"

	"pushbus/pkg/jsonval"
	"pushbus/pkg/pubsub"
)

func testName(v string) pubsub.Name {
	return pubsub.NewName(pubsub.Key{Domain: "p1", Value: v})
}

func syncExecutor(f func()) { f() }

// recordingSubscriber captures the value an adapter hands back through a
// real subscribe flow, exercising the adapter the way pushbus actually does
// rather than poking its unexported callback types directly.
type recordingSubscriber struct {
	mu     sync.Mutex
	values []jsonval.Value
	denied bool
	failed bool
}

func (s *recordingSubscriber) OnUpdate(name pubsub.Name, node *pubsub.Versioned) {
	v, _ := node.Current()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = append(s.values, v)
}

func (s *recordingSubscriber) OnInvalidNodeSubscription(pubsub.Name) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.denied = true
}

func (s *recordingSubscriber) OnUnauthorizedNodeSubscription(pubsub.Name) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.denied = true
}

func (s *recordingSubscriber) OnFailedNodeSubscription(pubsub.Name) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = true
}

func (s *recordingSubscriber) first() (jsonval.Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.values) == 0 {
		return jsonval.NullValue, false
	}
	return s.values[0], true
}

func subscribeThrough(t *testing.T, adapter pubsub.Adapter, name pubsub.Name) (*recordingSubscriber, bool) {
	t.Helper()
	root := pubsub.NewRoot(pubsub.DefaultConfiguration(), adapter, syncExecutor, pubsub.RealClock{})
	sub := &recordingSubscriber{}
	id := root.Register(sub)
	root.Subscribe(id, name)
	_, ok := sub.first()
	return sub, ok && !sub.denied && !sub.failed
}

func TestMockAdapter_NodeInitDefaultsToEmptyObject(t *testing.T) {
	a := NewMockAdapter()
	sub, ok := subscribeThrough(t, a, testName("untouched"))
	if !ok {
		t.Fatalf("subscribe did not deliver an initial value: denied=%v failed=%v", sub.denied, sub.failed)
	}
	v, _ := sub.first()
	if v.Kind() != jsonval.Object || v.Len() != 0 {
		t.Fatalf("initial value = %v, want empty object", v)
	}
}

func TestMockAdapter_NodeInitReturnsPutValue(t *testing.T) {
	a := NewMockAdapter()
	a.Put(testName("greeting"), jsonval.NewString("hi"))
	sub, ok := subscribeThrough(t, a, testName("greeting"))
	if !ok {
		t.Fatalf("subscribe did not deliver an initial value")
	}
	v, _ := sub.first()
	if s, ok := v.Str(); !ok || s != "hi" {
		t.Fatalf("initial value = %v, want \"hi\"", v)
	}
}

type fakeKV struct {
	values map[string]string
}

func (f *fakeKV) Get(ctx context.Context, key string) (string, bool, error) {
	v, ok := f.values[key]
	return v, ok, nil
}

func TestRedisAdapter_NodeInitParsesStoredValue(t *testing.T) {
	store := &fakeKV{values: map[string]string{
		nodeKey(testName("counter")): `{"n":3}`,
	}}
	a := NewRedisAdapter(store)

	sub, ok := subscribeThrough(t, a, testName("counter"))
	if !ok {
		t.Fatalf("subscribe did not deliver an initial value")
	}
	got, _ := sub.first()
	n, ok := got.Get("n")
	if !ok {
		t.Fatalf("got = %v, want member n", got)
	}
	if i, ok := n.Int(); !ok || i != 3 {
		t.Fatalf("n = %v, want 3", n)
	}
}

func TestRedisAdapter_NodeInitMissingKeyDefaultsEmpty(t *testing.T) {
	a := NewRedisAdapter(&fakeKV{values: map[string]string{}})
	sub, ok := subscribeThrough(t, a, testName("missing"))
	if !ok {
		t.Fatalf("subscribe did not deliver an initial value")
	}
	v, _ := sub.first()
	if v.Kind() != jsonval.Object || v.Len() != 0 {
		t.Fatalf("got = %v, want empty object", v)
	}
}

func TestRedisAdapter_NodeInitMalformedValueDefaultsEmpty(t *testing.T) {
	store := &fakeKV{values: map[string]string{
		nodeKey(testName("broken")): `not json`,
	}}
	a := NewRedisAdapter(store)
	sub, ok := subscribeThrough(t, a, testName("broken"))
	if !ok {
		t.Fatalf("subscribe did not deliver an initial value")
	}
	v, _ := sub.first()
	if v.Kind() != jsonval.Object || v.Len() != 0 {
		t.Fatalf("got = %v, want empty object on malformed payload", v)
	}
}

func TestBuildAdapter_Selector(t *testing.T) {
	if _, err := BuildAdapter("", Options{}); err != nil {
		t.Errorf("default selector: %v", err)
	}
	if _, err := BuildAdapter("mock", Options{}); err != nil {
		t.Errorf("mock selector: %v", err)
	}
	if _, err := BuildAdapter("redis", Options{}); err != nil {
		t.Errorf("redis selector (no addr): %v", err)
	}
	if _, err := BuildAdapter("redis", Options{RedisAddr: "127.0.0.1:6379"}); err != nil {
		t.Errorf("redis selector (with addr): %v", err)
	}
	if _, err := BuildAdapter("bogus", Options{}); err == nil {
		t.Errorf("expected error for unknown adapter selector")
	}
}
