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

package backend

import (
	"fmt"

	"pushbus/pkg/pubsub"
)

// Options configures BuildAdapter.
type Options struct {
	RedisAddr string // empty selects LoggingKVStore for the "redis" adapter
}

// BuildAdapter constructs a pubsub.Adapter for the given selector:
//   - "" or "mock": in-process MockAdapter (default)
//   - "redis": RedisAdapter; uses a real go-redis client when opts.RedisAddr
//     is set, otherwise a logging stand-in for infrastructure-free demos
func BuildAdapter(adapter string, opts Options) (pubsub.Adapter, error) {
	switch adapter {
	case "", "mock":
		return NewMockAdapter(), nil
	case "redis":
		var store KVStore
		if opts.RedisAddr != "" {
			store = NewGoRedisKVStore(opts.RedisAddr)
		} else {
			store = LoggingKVStore{}
		}
		return NewRedisAdapter(store), nil
	default:
		return nil, fmt.Errorf("backend: unknown adapter %q", adapter)
	}
}
