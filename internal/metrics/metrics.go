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

// Package metrics exposes Prometheus counters and gauges for the pub/sub
// server: session and node population, parked long-polls, message
// throughput, and how much bandwidth delta updates save over full
// snapshots.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pushbus_sessions_active",
		Help: "Number of sessions currently held by the registry",
	})
	NodesActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pushbus_nodes_active",
		Help: "Number of subscribed nodes currently in the root's index",
	})
	RespondersParked = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pushbus_responders_parked",
		Help: "Number of HTTP exchanges currently parked in a long poll",
	})
	MessagesPushedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pushbus_messages_pushed_total",
		Help: "Total update messages pushed to sessions (acks are not counted)",
	})
	DeltaBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pushbus_delta_bytes_total",
		Help: "Total bytes sent as delta edit scripts",
	})
	FullValueBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pushbus_full_value_bytes_total",
		Help: "Total bytes sent as full value snapshots",
	})
	NodeCleanupsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pushbus_node_cleanups_total",
		Help: "Total subscribed nodes removed after node_timeout of emptiness",
	})
	AdapterOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pushbus_adapter_outcomes_total",
		Help: "Adapter decisions by stage and outcome",
	}, []string{"stage", "outcome"})
)

func init() {
	prometheus.MustRegister(
		SessionsActive,
		NodesActive,
		RespondersParked,
		MessagesPushedTotal,
		DeltaBytesTotal,
		FullValueBytesTotal,
		NodeCleanupsTotal,
		AdapterOutcomesTotal,
	)
}

// ObserveUpdate records one message push, attributing its byte cost to
// either the delta or full-value counter — the ratio between the two is the
// bandwidth a subscriber's delta codec is saving over always sending full
// snapshots.
func ObserveUpdate(isDelta bool, size int) {
	MessagesPushedTotal.Inc()
	if isDelta {
		DeltaBytesTotal.Add(float64(size))
	} else {
		FullValueBytesTotal.Add(float64(size))
	}
}

// ObserveAdapterOutcome records a validate/authorize/init decision.
func ObserveAdapterOutcome(stage, outcome string) {
	AdapterOutcomesTotal.WithLabelValues(stage, outcome).Inc()
}

// ObserveNodeCleanup records one empty-node GC.
func ObserveNodeCleanup() {
	NodeCleanupsTotal.Inc()
}

// StartEndpoint exposes /metrics on addr in a background goroutine.
func StartEndpoint(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		_ = server.ListenAndServe()
	}()
}
