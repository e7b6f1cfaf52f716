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
	"fmt"

	"pushbus/internal/session"
	"pushbus/pkg/jsonval"
)

const bayeuxVersion = "1.0"

// bayeuxMessage is one parsed client -> server Bayeux message.
type bayeuxMessage struct {
	channel string
	id      jsonval.Value // echoed back verbatim if the client supplied it
	raw     jsonval.Value
}

// parseBayeuxEnvelope accepts either a single message object or an array of
// them, per the Bayeux transport binding.
func parseBayeuxEnvelope(body jsonval.Value) ([]bayeuxMessage, error) {
	var raws []jsonval.Value
	switch body.Kind() {
	case jsonval.Array:
		raws = body.Elements()
	case jsonval.Object:
		raws = []jsonval.Value{body}
	default:
		return nil, fmt.Errorf("protocol: bayeux body must be an object or array")
	}
	if len(raws) == 0 {
		return nil, fmt.Errorf("protocol: bayeux body must not be empty")
	}
	msgs := make([]bayeuxMessage, len(raws))
	for i, r := range raws {
		if r.Kind() != jsonval.Object {
			return nil, fmt.Errorf("protocol: bayeux message %d must be an object", i)
		}
		chVal, ok := r.Get("channel")
		if !ok {
			return nil, fmt.Errorf("protocol: bayeux message %d missing channel", i)
		}
		ch, ok := chVal.Str()
		if !ok {
			return nil, fmt.Errorf("protocol: bayeux message %d channel must be a string", i)
		}
		id, _ := r.Get("id")
		msgs[i] = bayeuxMessage{channel: ch, id: id, raw: r}
	}
	return msgs, nil
}

// bayeuxExchange accumulates the replies produced while processing one
// request's worth of messages, tracking whether the last message was a
// /meta/connect (the long-poll trigger).
type bayeuxExchange struct {
	replies       []jsonval.Value
	shouldConnect bool
	clientID      string
}

func (e *bayeuxExchange) reply(channel string, successful bool, errText string, extra ...jsonval.Member) {
	members := []jsonval.Member{
		{Key: "channel", Value: jsonval.NewString(channel)},
		{Key: "successful", Value: jsonval.NewBool(successful)},
	}
	if e.clientID != "" {
		members = append(members, jsonval.Member{Key: "clientId", Value: jsonval.NewString(e.clientID)})
	}
	if !successful && errText != "" {
		members = append(members, jsonval.Member{Key: "error", Value: jsonval.NewString(errText)})
	}
	members = append(members, extra...)
	e.replies = append(e.replies, jsonval.NewObject(members...))
}

func (e *bayeuxExchange) replyWithID(channel string, successful bool, errText string, id jsonval.Value, extra ...jsonval.Member) {
	if id.Kind() != jsonval.Null {
		extra = append(extra, jsonval.Member{Key: "id", Value: id})
	}
	e.reply(channel, successful, errText, extra...)
}

// processBayeux dispatches every message in msgs against sess (sess is nil
// until the handshake, since handshake is the only channel allowed without a
// prior session) and returns the session in effect after the batch (the one
// a handshake created, if any) together with the accumulated reply messages.
// clientEndpoint identifies the connection this request arrived on and is
// only consulted by the handshake path, where it seeds a freshly minted
// session's id.
func processBayeux(reg *registry, msgs []bayeuxMessage, sess *session.Session, clientEndpoint string) (*session.Session, []jsonval.Value) {
	ex := &bayeuxExchange{}
	if sess != nil {
		ex.clientID = sess.ID()
	}

	for i, m := range msgs {
		ex.shouldConnect = false
		switch m.channel {
		case "/meta/handshake":
			sess = handleHandshake(reg, ex, m, clientEndpoint)
		case "/meta/connect":
			handleConnect(ex, sess, m)
			if i == len(msgs)-1 {
				ex.shouldConnect = true
			}
		case "/meta/subscribe":
			handleSubscribe(ex, sess, m)
		case "/meta/unsubscribe":
			handleUnsubscribe(ex, sess, m)
		case "/meta/disconnect":
			handleDisconnect(reg, ex, sess, m)
		default:
			handlePublish(ex, sess, m)
		}
	}
	return sess, ex.replies
}

func handleHandshake(reg *registry, ex *bayeuxExchange, m bayeuxMessage, clientEndpoint string) *session.Session {
	types, ok := m.raw.Get("supportedConnectionTypes")
	supportsLongPolling := false
	if ok && types.Kind() == jsonval.Array {
		for _, t := range types.Elements() {
			if s, ok := t.Str(); ok && s == "long-polling" {
				supportsLongPolling = true
			}
		}
	}
	if !supportsLongPolling {
		ex.replyWithID("/meta/handshake", false, "long-polling not supported", m.id)
		return nil
	}
	sess := reg.sessions.Create(clientEndpoint)
	ex.clientID = sess.ID()
	ex.replyWithID("/meta/handshake", true, "", m.id,
		jsonval.Member{Key: "version", Value: jsonval.NewString(bayeuxVersion)},
		jsonval.Member{Key: "supportedConnectionTypes", Value: jsonval.NewArray(jsonval.NewString("long-polling"))},
	)
	return sess
}

func handleConnect(ex *bayeuxExchange, sess *session.Session, m bayeuxMessage) {
	if sess == nil {
		ex.replyWithID("/meta/connect", false, "no session", m.id)
		return
	}
	connType, _ := m.raw.Get("connectionType")
	if s, ok := connType.Str(); !ok || s != "long-polling" {
		ex.replyWithID("/meta/connect", false, "unsupported connectionType", m.id)
		return
	}
	ex.replyWithID("/meta/connect", true, "", m.id)
}

func handleSubscribe(ex *bayeuxExchange, sess *session.Session, m bayeuxMessage) {
	if sess == nil {
		ex.replyWithID("/meta/subscribe", false, "no session", m.id)
		return
	}
	subVal, ok := m.raw.Get("subscription")
	channel, _ := subVal.Str()
	if !ok || channel == "" {
		ex.replyWithID("/meta/subscribe", false, "missing subscription", m.id)
		return
	}
	name, err := ChannelToName(channel)
	if err != nil {
		ex.replyWithID("/meta/subscribe", false, err.Error(), m.id,
			jsonval.Member{Key: "subscription", Value: subVal})
		return
	}
	sess.Subscribe(name, m.id, nil)
	ex.replyWithID("/meta/subscribe", true, "", m.id,
		jsonval.Member{Key: "subscription", Value: subVal})
}

func handleUnsubscribe(ex *bayeuxExchange, sess *session.Session, m bayeuxMessage) {
	if sess == nil {
		ex.replyWithID("/meta/unsubscribe", false, "no session", m.id)
		return
	}
	subVal, ok := m.raw.Get("subscription")
	channel, _ := subVal.Str()
	if !ok || channel == "" {
		ex.replyWithID("/meta/unsubscribe", false, "missing subscription", m.id)
		return
	}
	name, err := ChannelToName(channel)
	if err != nil {
		ex.replyWithID("/meta/unsubscribe", false, err.Error(), m.id,
			jsonval.Member{Key: "subscription", Value: subVal})
		return
	}
	sess.Unsubscribe(name, m.id)
	ex.replyWithID("/meta/unsubscribe", true, "", m.id,
		jsonval.Member{Key: "subscription", Value: subVal})
}

func handleDisconnect(reg *registry, ex *bayeuxExchange, sess *session.Session, m bayeuxMessage) {
	if sess == nil {
		ex.replyWithID("/meta/disconnect", false, "no session", m.id)
		return
	}
	reg.sessions.Drop(sess)
	ex.replyWithID("/meta/disconnect", true, "", m.id)
}

func handlePublish(ex *bayeuxExchange, sess *session.Session, m bayeuxMessage) {
	// Publication to application channels is acknowledged but otherwise a
	// no-op: pushbus exposes node updates through the adapter, not through
	// arbitrary client publishes.
	ex.replyWithID(m.channel, sess != nil, "", m.id)
}

// renderBayeuxUpdates turns buffered on_update messages into Bayeux
// publish-envelope shapes ({ channel, data }), appended alongside the
// control-channel replies already produced by processBayeux.
func renderBayeuxUpdates(messages []session.Message) []jsonval.Value {
	var out []jsonval.Value
	for _, m := range messages {
		if m.Kind != session.KindUpdate {
			continue
		}
		channel := channelFromCanonicalKey(m.NodeName)
		data := m.Value
		if m.IsDelta {
			data = m.Script
		}
		out = append(out, jsonval.NewObject(
			jsonval.Member{Key: "channel", Value: jsonval.NewString(channel)},
			jsonval.Member{Key: "data", Value: data},
		))
	}
	return out
}

func channelFromCanonicalKey(key string) string {
	keys := ParseCanonicalKey(key)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k.Value
	}
	ch := ""
	for _, p := range parts {
		ch += "/" + p
	}
	return ch
}
