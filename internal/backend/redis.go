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
	"context"
	"fmt"

	redis "github.com/redis/go-redis/v9"

	"pushbus/internal/metrics"
	"pushbus/pkg/jsonval"
	"pushbus/pkg/pubsub"
)

// KVStore abstracts the minimal key/value surface RedisAdapter needs: get a
// node's serialized initial value, or report it is unset.
type KVStore interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
}

// LoggingKVStore is a dependency-free stand-in that logs lookups and always
// reports a miss, letting "redis" be selected as the adapter without a real
// Redis instance.
type LoggingKVStore struct{}

func (LoggingKVStore) Get(ctx context.Context, key string) (string, bool, error) {
	fmt.Printf("[redis-adapter-demo] GET %s\n", key)
	return "", false, nil
}

// GoRedisKVStore wraps github.com/redis/go-redis/v9 as a KVStore.
type GoRedisKVStore struct{ c *redis.Client }

// NewGoRedisKVStore dials addr (e.g. "127.0.0.1:6379").
func NewGoRedisKVStore(addr string) *GoRedisKVStore {
	return &GoRedisKVStore{c: redis.NewClient(&redis.Options{Addr: addr})}
}

func (g *GoRedisKVStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := g.c.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// nodeKey is the Redis key under which a node's serialized initial value is
// looked up: "pushbus:node:<canonical node name>".
func nodeKey(name pubsub.Name) string {
	return "pushbus:node:" + name.CanonicalKey()
}

// RedisAdapter is a pubsub.Adapter that sources a node's initial value from
// Redis, falling back to an empty object when the key is unset. Validation
// and authorization are unconditional, same as MockAdapter — this adapter's
// contribution is sharing node state across server instances, not access
// control.
type RedisAdapter struct {
	store KVStore
}

// NewRedisAdapter builds an adapter backed by store.
func NewRedisAdapter(store KVStore) *RedisAdapter {
	return &RedisAdapter{store: store}
}

// ValidateNode implements pubsub.Adapter: every name is valid.
func (a *RedisAdapter) ValidateNode(name pubsub.Name, cb *pubsub.ValidateCallback) {
	metrics.ObserveAdapterOutcome("validate", "valid")
	cb.IsValid()
}

// Authorize implements pubsub.Adapter: every subscriber is authorized.
func (a *RedisAdapter) Authorize(sink pubsub.Subscriber, name pubsub.Name, cb *pubsub.AuthorizeCallback) {
	metrics.ObserveAdapterOutcome("authorize", "authorized")
	cb.IsAuthorized()
}

// NodeInit implements pubsub.Adapter, reading the node's serialized value
// from Redis. A missing key or a malformed payload both initialize the node
// to an empty object rather than failing the subscription outright — a
// backend hiccup shouldn't cut off every subscriber of a node that simply
// hasn't been written yet.
func (a *RedisAdapter) NodeInit(name pubsub.Name, cb *pubsub.InitCallback) {
	raw, found, err := a.store.Get(context.Background(), nodeKey(name))
	if err != nil || !found {
		metrics.ObserveAdapterOutcome("init", "empty")
		cb.InitialValue(jsonval.NewObject())
		return
	}
	v, err := jsonval.Parse([]byte(raw))
	if err != nil {
		metrics.ObserveAdapterOutcome("init", "malformed")
		cb.InitialValue(jsonval.NewObject())
		return
	}
	metrics.ObserveAdapterOutcome("init", "ok")
	cb.InitialValue(v)
}
