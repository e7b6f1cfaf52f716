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

// Package protocol implements the two wire formats pushbus speaks over HTTP
// long-polling: a Bayeux subset and a leaner native JSON envelope. Both sit
// on top of internal/session, translating its protocol-agnostic Message
// buffer into the shape each wire format expects.
package protocol

import (
	"fmt"
	"strconv"
	"strings"

	"pushbus/pkg/pubsub"
)

// ChannelToName maps a Bayeux publish/subscribe channel of the form
// "/a/b/c" to the node name { p1: a, p2: b, p3: c }, key domains assigned
// by position.
func ChannelToName(channel string) (pubsub.Name, error) {
	trimmed := strings.Trim(channel, "/")
	if trimmed == "" {
		return pubsub.Name{}, fmt.Errorf("protocol: empty channel %q", channel)
	}
	parts := strings.Split(trimmed, "/")
	keys := make([]pubsub.Key, len(parts))
	for i, p := range parts {
		if p == "" {
			return pubsub.Name{}, fmt.Errorf("protocol: malformed channel %q", channel)
		}
		keys[i] = pubsub.Key{Domain: "p" + strconv.Itoa(i+1), Value: p}
	}
	return pubsub.NewName(keys...), nil
}

// ParseCanonicalKey reverses pubsub.Name.CanonicalKey()'s "domain=value&..."
// rendering back into the ordered keys it was built from. Used by the
// protocol layer to recover the structure of a node name carried through a
// session.Message as an opaque canonical string.
func ParseCanonicalKey(key string) []pubsub.Key {
	if key == "" {
		return nil
	}
	parts := strings.Split(key, "&")
	keys := make([]pubsub.Key, 0, len(parts))
	for _, p := range parts {
		eq := strings.IndexByte(p, '=')
		if eq < 0 {
			continue
		}
		keys = append(keys, pubsub.Key{Domain: p[:eq], Value: p[eq+1:]})
	}
	return keys
}

// NameToChannel is the inverse of ChannelToName, used to render update
// envelopes on the channel subscribers expect. It only produces a
// meaningful channel for names whose keys are exactly p1..pN with no gaps;
// names built outside this convention (e.g. via the native protocol) render
// as an empty string.
func NameToChannel(name pubsub.Name) string {
	keys := name.Keys()
	ordered := make([]string, len(keys))
	for _, k := range keys {
		if !strings.HasPrefix(k.Domain, "p") {
			return ""
		}
		idx, err := strconv.Atoi(k.Domain[1:])
		if err != nil || idx < 1 || idx > len(keys) {
			return ""
		}
		ordered[idx-1] = k.Value
	}
	for _, v := range ordered {
		if v == "" {
			return ""
		}
	}
	return "/" + strings.Join(ordered, "/")
}
