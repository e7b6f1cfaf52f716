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
	"time"

	"pushbus/internal/metrics"
	"pushbus/internal/session"
	"pushbus/pkg/pubsub"
)

// chanResponder is the HTTP-handler-goroutine rendering of a parked
// responder: the handler already suspends for the lifetime of the request,
// so parking just means blocking on a channel instead of running a separate
// callback. Deliver and SecondConnectionDetected both feed the same
// channel — from the handler's point of view, either one means "stop
// waiting, render what you have."
type chanResponder struct {
	ch chan []session.Message
}

func newChanResponder() *chanResponder {
	return &chanResponder{ch: make(chan []session.Message, 1)}
}

func (r *chanResponder) Deliver(messages []session.Message) {
	select {
	case r.ch <- messages:
	default:
	}
}

func (r *chanResponder) SecondConnectionDetected() {
	select {
	case r.ch <- nil:
	default:
	}
}

// longPoll blocks the calling handler goroutine until sess has events to
// report or timeout elapses, mirroring the responder contract's "wait for
// events, or yield an empty array on timeout" step. The wait is driven by
// clock rather than the wall clock directly so it advances deterministically
// under a ManualClock in tests, the same way session idle timeouts and node
// cleanup do.
func longPoll(clock pubsub.Clock, sess *session.Session, timeout time.Duration) []session.Message {
	r := newChanResponder()
	events, parked := sess.WaitForEvents(r)
	if !parked {
		return events
	}
	metrics.RespondersParked.Inc()
	defer metrics.RespondersParked.Dec()

	timedOut := make(chan struct{}, 1)
	timer := clock.AfterFunc(timeout, func() {
		select {
		case timedOut <- struct{}{}:
		default:
		}
	})
	select {
	case events = <-r.ch:
		timer.Stop()
		return events
	case <-timedOut:
		return nil
	}
}
