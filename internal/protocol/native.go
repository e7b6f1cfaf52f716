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
	"pushbus/pkg/pubsub"
)

type nativeCmdKind int

const (
	nativeCmdSubscribe nativeCmdKind = iota
	nativeCmdUnsubscribe
)

type nativeCommand struct {
	kind         nativeCmdKind
	name         pubsub.Name
	knownVersion *uint64
}

// nameFromObject turns a node-name-object ({"p1":"a","p2":"b"}) into a
// pubsub.Name, one key per member.
func nameFromObject(v jsonval.Value) (pubsub.Name, error) {
	if v.Kind() != jsonval.Object {
		return pubsub.Name{}, fmt.Errorf("protocol: node name must be an object, got %s", v.Kind())
	}
	members := v.Members()
	if len(members) == 0 {
		return pubsub.Name{}, fmt.Errorf("protocol: node name object must not be empty")
	}
	keys := make([]pubsub.Key, len(members))
	for i, m := range members {
		s, ok := m.Value.Str()
		if !ok {
			return pubsub.Name{}, fmt.Errorf("protocol: node name member %q must be a string", m.Key)
		}
		keys[i] = pubsub.Key{Domain: m.Key, Value: s}
	}
	return pubsub.NewName(keys...), nil
}

// parseNativeEnvelope decodes a client -> server native envelope:
// { "id": <session-id>?, "cmd": [ <command>, ... ]? }
func parseNativeEnvelope(body jsonval.Value) (sessionID string, cmds []nativeCommand, err error) {
	if body.Kind() != jsonval.Object {
		return "", nil, fmt.Errorf("protocol: native envelope must be an object")
	}
	if idVal, ok := body.Get("id"); ok {
		sessionID, _ = idVal.Str()
	}
	cmdList, ok := body.Get("cmd")
	if !ok {
		if sessionID == "" {
			return "", nil, fmt.Errorf("protocol: native envelope must carry an id or at least one command")
		}
		return sessionID, nil, nil
	}
	if cmdList.Kind() != jsonval.Array {
		return "", nil, fmt.Errorf("protocol: native envelope's cmd must be an array")
	}
	for _, c := range cmdList.Elements() {
		cmd, err := parseNativeCommand(c)
		if err != nil {
			return "", nil, err
		}
		cmds = append(cmds, cmd)
	}
	return sessionID, cmds, nil
}

func parseNativeCommand(c jsonval.Value) (nativeCommand, error) {
	if c.Kind() != jsonval.Object {
		return nativeCommand{}, fmt.Errorf("protocol: command must be an object")
	}
	if nameVal, ok := c.Get("subscribe"); ok {
		name, err := nameFromObject(nameVal)
		if err != nil {
			return nativeCommand{}, err
		}
		var known *uint64
		if verVal, ok := c.Get("version"); ok && verVal.Kind() != jsonval.Null {
			if n, ok := verVal.Int(); ok {
				v := uint64(n)
				known = &v
			}
		}
		return nativeCommand{kind: nativeCmdSubscribe, name: name, knownVersion: known}, nil
	}
	if nameVal, ok := c.Get("unsubscribe"); ok {
		name, err := nameFromObject(nameVal)
		if err != nil {
			return nativeCommand{}, err
		}
		return nativeCommand{kind: nativeCmdUnsubscribe, name: name}, nil
	}
	return nativeCommand{}, fmt.Errorf("protocol: command must contain subscribe or unsubscribe")
}

// renderNativeReply builds the server -> client envelope:
// { "id": ..., "resp": [...]?, "update": [...]? }
func renderNativeReply(sessionID string, messages []session.Message) jsonval.Value {
	var resp, updates []jsonval.Value
	for _, m := range messages {
		switch m.Kind {
		case session.KindUpdate:
			updates = append(updates, renderNativeUpdate(m))
		case session.KindSubscribeAck:
			resp = append(resp, renderNativeAck("subscribe", m))
		case session.KindUnsubscribeAck:
			resp = append(resp, renderNativeAck("unsubscribe", m))
		case session.KindInvalid, session.KindUnauthorized, session.KindFailed:
			resp = append(resp, renderNativeFailure(m))
		}
	}
	members := []jsonval.Member{{Key: "id", Value: jsonval.NewString(sessionID)}}
	if len(resp) > 0 {
		members = append(members, jsonval.Member{Key: "resp", Value: jsonval.NewArray(resp...)})
	}
	if len(updates) > 0 {
		members = append(members, jsonval.Member{Key: "update", Value: jsonval.NewArray(updates...)})
	}
	return jsonval.NewObject(members...)
}

func renderNativeUpdate(m session.Message) jsonval.Value {
	members := []jsonval.Member{
		{Key: "key", Value: nodeNameMember(m.NodeName)},
		{Key: "version", Value: jsonval.NewInt(int64(m.Version))},
	}
	if m.IsDelta {
		members = append(members,
			jsonval.Member{Key: "update", Value: m.Script},
			jsonval.Member{Key: "from", Value: jsonval.NewInt(int64(m.From))},
		)
	} else {
		members = append(members, jsonval.Member{Key: "data", Value: m.Value})
	}
	return jsonval.NewObject(members...)
}

func renderNativeAck(cmdName string, m session.Message) jsonval.Value {
	members := []jsonval.Member{
		{Key: cmdName, Value: nodeNameMember(m.NodeName)},
		{Key: "successful", Value: jsonval.NewBool(m.Success)},
	}
	if !m.Success && m.ErrorText != "" {
		members = append(members, jsonval.Member{Key: "error", Value: jsonval.NewString(m.ErrorText)})
	}
	return jsonval.NewObject(members...)
}

func renderNativeFailure(m session.Message) jsonval.Value {
	return jsonval.NewObject(
		jsonval.Member{Key: "key", Value: nodeNameMember(m.NodeName)},
		jsonval.Member{Key: "successful", Value: jsonval.NewBool(false)},
		jsonval.Member{Key: "error", Value: jsonval.NewString(m.ErrorText)},
	)
}

// nodeNameMember renders a canonical node-name key string (as carried by
// session.Message.NodeName) back into the node-name-object shape clients
// sent on subscribe.
func nodeNameMember(canonicalKey string) jsonval.Value {
	keys := ParseCanonicalKey(canonicalKey)
	members := make([]jsonval.Member, len(keys))
	for i, k := range keys {
		members[i] = jsonval.Member{Key: k.Domain, Value: jsonval.NewString(k.Value)}
	}
	return jsonval.NewObject(members...)
}
