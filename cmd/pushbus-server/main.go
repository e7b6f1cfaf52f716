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

// Package main is the entry point for the pushbus server: it fronts a
// pub/sub root with both the Bayeux and native long-polling HTTP protocols,
// backed by a pluggable adapter (in-process mock or Redis).
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pushbus/internal/backend"
	"pushbus/internal/metrics"
	"pushbus/internal/protocol"
	"pushbus/internal/session"
	"pushbus/pkg/pubsub"
)

func main() {
	nodeTimeout := flag.Duration("node_timeout", 10*time.Second, "Delay before empty subscribed-nodes are garbage collected")
	minUpdatePeriod := flag.Duration("min_update_period", 0, "Minimum wall-clock spacing between successive pushes of the same node")
	maxUpdateSize := flag.Int("max_update_size", 512, "Byte budget for delta scripts; above this, push the full value")
	authRequired := flag.Bool("authorization_required", false, "Whether authorize is called before node_init by default")
	maxMessagesPerClient := flag.Int("max_messages_per_client", 100, "Count cap on a session's message buffer")
	maxMessagesSizePerClient := flag.Int("max_messages_size_per_client", 1<<16, "Byte cap on a session's message buffer")
	sessionTimeout := flag.Duration("session_timeout", 30*time.Second, "Idle session TTL")
	longPollTimeout := flag.Duration("long_polling_timeout", 30*time.Second, "Max park time for /meta/connect and native long-poll")

	httpAddr := flag.String("http_addr", ":8080", "HTTP listen address for the Bayeux and native endpoints")
	adapterKind := flag.String("adapter", "mock", "Adapter backend: mock or redis")
	redisAddr := flag.String("redis_addr", "", "Redis address for the redis adapter (empty uses a logging stand-in)")
	metricsAddr := flag.String("metrics_addr", "", "If non-empty, expose Prometheus /metrics on this address")
	flag.Parse()

	cfg := pubsub.Configuration{
		NodeTimeout:              *nodeTimeout,
		MinUpdatePeriod:          *minUpdatePeriod,
		MaxUpdateSize:            *maxUpdateSize,
		AuthorizationRequired:    *authRequired,
		MaxMessagesPerClient:     *maxMessagesPerClient,
		MaxMessagesSizePerClient: *maxMessagesSizePerClient,
		SessionTimeout:           *sessionTimeout,
		LongPollingTimeout:       *longPollTimeout,
	}

	adapter, err := backend.BuildAdapter(*adapterKind, backend.Options{RedisAddr: *redisAddr})
	if err != nil {
		log.Fatalf("building adapter: %v", err)
	}

	executor := pubsub.Executor(func(f func()) { go f() })
	root := pubsub.NewRoot(cfg, adapter, executor, pubsub.RealClock{})
	root.SetCleanupObserver(metrics.ObserveNodeCleanup)

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	srv := protocol.NewServer(root, cfg, pubsub.RealClock{}, session.RandomIDGenerator, logger)

	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	httpServer := &http.Server{Addr: *httpAddr, Handler: mux}

	if *metricsAddr != "" {
		metrics.StartEndpoint(*metricsAddr)
	}
	stopGauges := startGaugeReporter(root, srv)
	defer stopGauges()

	go func() {
		fmt.Printf("pushbus server listening on %s (adapter=%s)\n", *httpAddr, *adapterKind)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("could not listen on %s: %v", *httpAddr, err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	fmt.Println("\nShutting down pushbus server...")
	srv.ShutDown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Fatalf("server shutdown failed: %v", err)
	}
	fmt.Println("pushbus server stopped.")
}

// startGaugeReporter periodically samples the root's node count and the
// registry's session count into their Prometheus gauges; returns a func that
// stops the ticker.
func startGaugeReporter(root *pubsub.Root, srv *protocol.Server) func() {
	ticker := time.NewTicker(5 * time.Second)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				metrics.NodesActive.Set(float64(root.NodeCount()))
				metrics.SessionsActive.Set(float64(srv.SessionCount()))
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
	return func() { close(done) }
}
