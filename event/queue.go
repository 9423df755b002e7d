// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/agentvault/a2a"
	"github.com/agentvault/a2a/internal/telemetry"
)

// DefaultQueueSize is the default capacity of one listener queue.
const DefaultQueueSize = 64

// Handle is one listener attached to a subscription.
//
// Events are read from [Handle.Events] in wire order. The channel is closed when the
// subscription ends or the handle is closed.
type Handle struct {
	sub *subscription
	ch  chan a2a.Event

	dropped   atomic.Int64
	closed    bool // guarded by sub.mu
	closeOnce sync.Once
}

func newHandle(sub *subscription, size int) *Handle {
	return &Handle{sub: sub, ch: make(chan a2a.Event, size)}
}

// Events returns the delivery queue of this listener.
func (h *Handle) Events() <-chan a2a.Event {
	return h.ch
}

// TaskID returns the task this handle follows.
func (h *Handle) TaskID() string {
	return h.sub.key.taskID
}

// AgentURL returns the endpoint of the agent this handle follows.
func (h *Handle) AgentURL() string {
	return h.sub.key.agentURL
}

// State returns the task state derived from the status updates received so far.
func (h *Handle) State() a2a.TaskState {
	return h.sub.view.State()
}

// Lossy reports whether events were dropped because this listener fell behind.
func (h *Handle) Lossy() bool {
	return h.dropped.Load() > 0
}

// Dropped returns how many events were dropped from this listener's queue.
func (h *Handle) Dropped() int64 {
	return h.dropped.Load()
}

// Close detaches the listener and closes its queue. It is safe to call more than once.
func (h *Handle) Close() error {
	h.closeOnce.Do(func() {
		h.sub.detach(h)
	})
	return nil
}

// push enqueues ev without blocking, evicting the oldest queued event when full.
// The caller holds sub.mu, which makes it the only sender.
func (h *Handle) push(ev a2a.Event) {
	for {
		select {
		case h.ch <- ev:
			return
		default:
		}
		select {
		case <-h.ch:
			if h.dropped.Add(1) == 1 {
				h.sub.logger.Warn("a2a listener fell behind; dropping oldest events")
			}
			telemetry.EventsDropped(context.Background(), 1)
		default:
			// The listener drained the queue in between.
		}
	}
}

// closeQueue closes the delivery channel once. The caller holds sub.mu.
func (h *Handle) closeQueue() {
	if h.closed {
		return
	}
	h.closed = true
	close(h.ch)
}
