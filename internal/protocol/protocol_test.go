package protocol

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pushbus/internal/backend"
	"pushbus/internal/session"
	"pushbus/pkg/jsonval"
	"pushbus/pkg/pubsub"
)

func testServer(t *testing.T, longPoll time.Duration) (*Server, *pubsub.Root, *backend.MockAdapter) {
	t.Helper()
	srv, root, adapter, _ := testServerWithClock(t, longPoll, pubsub.RealClock{})
	return srv, root, adapter
}

func testServerWithClock(t *testing.T, longPoll time.Duration, clock pubsub.Clock) (*Server, *pubsub.Root, *backend.MockAdapter, pubsub.Clock) {
	t.Helper()
	adapter := backend.NewMockAdapter()
	cfg := pubsub.DefaultConfiguration()
	cfg.LongPollingTimeout = longPoll
	cfg.SessionTimeout = time.Minute
	root := pubsub.NewRoot(cfg, adapter, func(f func()) { f() }, clock)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer(root, cfg, clock, session.SequentialIDGenerator("test"), logger)
	return srv, root, adapter, clock
}

func postJSON(t *testing.T, handler http.HandlerFunc, body string) jsonval.Value {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	v, err := jsonval.Parse(rec.Body.Bytes())
	if err != nil {
		t.Fatalf("response not valid JSON: %v (%s)", err, rec.Body.String())
	}
	return v
}

func mustMarshal(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}

// S1: handshake establishes a session and acknowledges long-polling support.
func TestBayeux_Handshake(t *testing.T) {
	srv, _, _ := testServer(t, 50*time.Millisecond)
	body := mustMarshal(t, []map[string]any{{
		"channel":                  "/meta/handshake",
		"supportedConnectionTypes": []string{"long-polling"},
		"id":                       "1",
	}})
	resp := postJSON(t, srv.handleBayeux, body)
	if resp.Kind() != jsonval.Array || resp.Len() != 1 {
		t.Fatalf("resp = %v, want single-element array", resp)
	}
	msg := resp.At(0)
	ok, _ := msg.Get("successful")
	if b, _ := ok.Bool(); !b {
		t.Fatalf("handshake not successful: %v", msg)
	}
	if _, ok := msg.Get("clientId"); !ok {
		t.Errorf("handshake reply missing clientId")
	}
}

// S2: a handshake without long-polling among supportedConnectionTypes fails.
func TestBayeux_HandshakeRejectsUnsupportedTransport(t *testing.T) {
	srv, _, _ := testServer(t, 50*time.Millisecond)
	body := mustMarshal(t, []map[string]any{{
		"channel":                  "/meta/handshake",
		"supportedConnectionTypes": []string{"callback-polling"},
		"id":                       "1",
	}})
	resp := postJSON(t, srv.handleBayeux, body)
	msg := resp.At(0)
	ok, _ := msg.Get("successful")
	if b, _ := ok.Bool(); b {
		t.Fatalf("expected handshake to fail for unsupported transport")
	}
}

// S3: subscribe delivers an initial snapshot, then a later update arrives on
// a subsequent long-poll connect.
func TestBayeux_SubscribeThenUpdateViaConnect(t *testing.T) {
	srv, root, adapter := testServer(t, 200*time.Millisecond)
	adapter.Put(mustName("news"), jsonval.NewString("hello"))

	handshake := mustMarshal(t, []map[string]any{{
		"channel":                  "/meta/handshake",
		"supportedConnectionTypes": []string{"long-polling"},
	}})
	hsResp := postJSON(t, srv.handleBayeux, handshake)
	clientID := strVal(t, hsResp.At(0), "clientId")

	sub := mustMarshal(t, []map[string]any{{
		"channel":      "/meta/subscribe",
		"clientId":     clientID,
		"subscription": "/news",
	}})
	subResp := postJSON(t, srv.handleBayeux, sub)
	okVal, _ := subResp.At(0).Get("successful")
	if b, _ := okVal.Bool(); !b {
		t.Fatalf("subscribe failed: %v", subResp)
	}

	root.UpdateNode(mustName("news"), jsonval.NewString("updated"))

	connect := mustMarshal(t, []map[string]any{{
		"channel":        "/meta/connect",
		"clientId":       clientID,
		"connectionType": "long-polling",
	}})
	connResp := postJSON(t, srv.handleBayeux, connect)

	var sawUpdate bool
	for _, m := range connResp.Elements() {
		if ch, ok := m.Get("channel"); ok {
			if s, _ := ch.Str(); s == "/news" {
				sawUpdate = true
			}
		}
	}
	if !sawUpdate {
		t.Fatalf("expected an update on /news in connect response: %v", connResp)
	}
}

// S4: unsubscribing from a node never subscribed to fails immediately.
func TestNative_UnsubscribeFromNonSubscribedNode(t *testing.T) {
	srv, _, _ := testServer(t, 50*time.Millisecond)
	body := mustMarshal(t, map[string]any{
		"cmd": []map[string]any{{
			"unsubscribe": map[string]any{"p1": "never"},
		}},
	})
	resp := postJSON(t, srv.handleNative, body)
	respArr, ok := resp.Get("resp")
	if !ok || respArr.Len() != 1 {
		t.Fatalf("resp = %v, want one entry", resp)
	}
	succ, _ := respArr.At(0).Get("successful")
	if b, _ := succ.Bool(); b {
		t.Fatalf("expected unsubscribe of unknown node to fail")
	}
}

// S5: a long poll with no pending events times out and returns an empty
// envelope rather than hanging. Driven by a ManualClock, advanced only after
// the handler has had a chance to park, so the timeout fires deterministically
// instead of racing the real wall clock.
func TestNative_LongPollTimesOut(t *testing.T) {
	clock := pubsub.NewManualClock(time.Unix(0, 0))
	srv, _, _, _ := testServerWithClock(t, 30*time.Second, clock)

	first := postJSON(t, srv.handleNative, mustMarshal(t, map[string]any{
		"cmd": []map[string]any{{"subscribe": map[string]any{"p1": "quiet"}}},
	}))
	sessionID := strVal(t, first, "id")

	body := mustMarshal(t, map[string]any{"id": sessionID})
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		srv.handleNative(rec, req)
		close(done)
	}()

	waitForTimer(t, clock)
	clock.Advance(30 * time.Second)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("long poll did not return after the clock advanced past its timeout")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	resp, err := jsonval.Parse(rec.Body.Bytes())
	if err != nil {
		t.Fatalf("response not valid JSON: %v (%s)", err, rec.Body.String())
	}
	if _, ok := resp.Get("update"); ok {
		t.Fatalf("expected no update on a timed-out long poll: %v", resp)
	}
}

// waitForTimer polls until the handler goroutine has armed its long-poll
// timeout on clock, so the test can advance it deterministically instead of
// racing the real wall clock.
func waitForTimer(t *testing.T, clock *pubsub.ManualClock) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if clock.Pending() > 0 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("handler never armed its long-poll timeout")
}

func mustName(v string) pubsub.Name {
	return pubsub.NewName(pubsub.Key{Domain: "p1", Value: v})
}

func strVal(t *testing.T, v jsonval.Value, key string) string {
	t.Helper()
	m, ok := v.Get(key)
	if !ok {
		t.Fatalf("missing field %q in %v", key, v)
	}
	s, ok := m.Str()
	if !ok {
		t.Fatalf("field %q not a string in %v", key, v)
	}
	return s
}
