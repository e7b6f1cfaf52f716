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

package protocol

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"pushbus/internal/session"
	"pushbus/pkg/jsonval"
	"pushbus/pkg/pubsub"
)

// registry bundles the session registry with the knobs the protocol layer
// needs but the session layer itself has no business knowing about (here,
// the long-poll timeout).
type registry struct {
	sessions        *session.Registry
	clock           pubsub.Clock
	longPollTimeout time.Duration
}

// Server hosts the Bayeux and native long-polling endpoints over a shared
// pub/sub root.
type Server struct {
	root *pubsub.Root
	reg  *registry
	log  *slog.Logger
}

// NewServer builds a Server. cfg supplies the long-poll timeout and
// session-layer caps; genID is forwarded to the session registry (nil
// defaults to a random id generator).
func NewServer(root *pubsub.Root, cfg pubsub.Configuration, clock pubsub.Clock, genID session.IDGenerator, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	if clock == nil {
		clock = pubsub.RealClock{}
	}
	return &Server{
		root: root,
		reg: &registry{
			sessions:        session.NewRegistry(root, cfg, clock, genID),
			clock:           clock,
			longPollTimeout: cfg.LongPollingTimeout,
		},
		log: log,
	}
}

// RegisterRoutes wires the Bayeux and native endpoints onto mux. A panic
// inside either handler is recovered, logged, and answered with HTTP 500.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	recovering := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if p := recover(); p != nil {
					s.log.Error("protocol: internal error", "path", r.URL.Path, "panic", p)
					http.Error(w, "", http.StatusInternalServerError)
				}
			}()
			h(w, r)
		}
	}
	mux.HandleFunc("/bayeux", recovering(s.handleBayeux))
	mux.HandleFunc("/native", recovering(s.handleNative))
}

// ShutDown tears down every live session, flushing any parked long-poll.
func (s *Server) ShutDown() {
	s.reg.sessions.ShutDown()
}

// SessionCount returns the number of sessions currently held by the
// registry, mainly for metrics reporting.
func (s *Server) SessionCount() int {
	return s.reg.sessions.Count()
}

func (s *Server) handleBayeux(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := readBody(r)
	if err != nil {
		http.Error(w, "", http.StatusBadRequest)
		return
	}
	val, err := jsonval.Parse(body)
	if err != nil {
		http.Error(w, "", http.StatusBadRequest)
		return
	}
	msgs, err := parseBayeuxEnvelope(val)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var sess *session.Session
	if cid := firstClientID(msgs); cid != "" {
		if found, ok := s.reg.sessions.Find(cid); ok && found.TryMarkInUse() {
			sess = found
		}
	}
	sess, replies := processBayeux(s.reg, msgs, sess, r.RemoteAddr)
	if sess != nil {
		defer s.reg.sessions.Idle(sess)
	}
	wantsConnect := shouldBayeuxConnect(msgs)

	if sess != nil && wantsConnect {
		events := s.longPollEvents(sess, s.reg.longPollTimeout)
		replies = append(replies, renderBayeuxUpdates(events)...)
		// An empty-update long poll still succeeds; Bayeux connect acks were
		// already appended by processBayeux.
	}

	writeJSON(w, jsonval.NewArray(replies...))
}

func (s *Server) handleNative(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := readBody(r)
	if err != nil {
		http.Error(w, "", http.StatusBadRequest)
		return
	}
	val, err := jsonval.Parse(body)
	if err != nil {
		http.Error(w, "", http.StatusBadRequest)
		return
	}
	sessionID, cmds, err := parseNativeEnvelope(val)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sess := s.reg.sessions.FindOrCreate(sessionID, r.RemoteAddr)
	defer s.reg.sessions.Idle(sess)

	for _, c := range cmds {
		switch c.kind {
		case nativeCmdSubscribe:
			sess.Subscribe(c.name, jsonval.NullValue, c.knownVersion)
		case nativeCmdUnsubscribe:
			sess.Unsubscribe(c.name, jsonval.NullValue)
		}
	}

	messages := sess.Events()
	if len(cmds) == 0 || len(messages) == 0 {
		messages = append(messages, s.longPollEvents(sess, s.reg.longPollTimeout)...)
	}

	writeJSON(w, renderNativeReply(sess.ID(), messages))
}

func (s *Server) longPollEvents(sess *session.Session, timeout time.Duration) []session.Message {
	return longPoll(s.reg.clock, sess, timeout)
}

func firstClientID(msgs []bayeuxMessage) string {
	for _, m := range msgs {
		if cid, ok := m.raw.Get("clientId"); ok {
			if s, ok := cid.Str(); ok {
				return s
			}
		}
	}
	return ""
}

func shouldBayeuxConnect(msgs []bayeuxMessage) bool {
	if len(msgs) == 0 {
		return false
	}
	return msgs[len(msgs)-1].channel == "/meta/connect"
}

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(io.LimitReader(r.Body, 16<<20))
}

func writeJSON(w http.ResponseWriter, v jsonval.Value) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(v.ToJSON())
}
