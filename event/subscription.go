// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/agentvault/a2a"
	"github.com/agentvault/a2a/internal/telemetry"
)

type subKey struct {
	agentURL string
	taskID   string
}

// subscription owns the stream of one (agent, task id) pair and its listeners.
type subscription struct {
	d      *Dispatcher
	key    subKey
	agent  *a2a.AgentCard
	logger *slog.Logger
	view   *a2a.StateView

	ctx    context.Context
	cancel context.CancelFunc

	// ready is closed once the first handshake finished; err is its outcome.
	ready chan struct{}
	err   error

	mu        sync.Mutex
	listeners []*Handle
	stream    Stream
	grace     *time.Timer
	graceGen  int
	ended     bool
}

// attach registers a new listener and cancels a pending grace period. The caller holds d.mu.
func (s *subscription) attach(queueSize int) *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.grace != nil {
		s.grace.Stop()
		s.grace = nil
		s.graceGen++
	}
	h := newHandle(s, queueSize)
	if s.ended {
		h.closeQueue()
		return h
	}
	s.listeners = append(s.listeners, h)
	return h
}

// detach removes h and arms the grace timer when it was the last listener.
func (s *subscription) detach(h *Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := slices.Index(s.listeners, h); i >= 0 {
		s.listeners = slices.Delete(s.listeners, i, i+1)
	}
	h.closeQueue()

	if len(s.listeners) > 0 || s.ended || s.grace != nil {
		return
	}
	s.graceGen++
	gen := s.graceGen
	s.grace = time.AfterFunc(s.d.grace, func() { s.expire(gen) })
}

// expire closes the stream if no listener came back during the grace period.
func (s *subscription) expire(gen int) {
	s.d.mu.Lock()
	s.mu.Lock()
	if gen != s.graceGen || len(s.listeners) > 0 || s.ended {
		s.mu.Unlock()
		s.d.mu.Unlock()
		return
	}
	s.ended = true
	s.grace = nil
	if s.d.subs[s.key] == s {
		delete(s.d.subs, s.key)
	}
	s.mu.Unlock()
	s.d.mu.Unlock()

	s.logger.Debug("a2a stream closed after grace period")
	s.cancel()
}

// broadcast pushes ev to every listener in attach order.
func (s *subscription) broadcast(ev a2a.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.listeners {
		h.push(ev)
	}
}

// finish delivers final, if any, closes every listener queue and releases the stream.
func (s *subscription) finish(final a2a.Event) {
	s.d.remove(s)

	s.mu.Lock()
	for _, h := range s.listeners {
		if final != nil {
			h.push(final)
		}
		h.closeQueue()
	}
	s.listeners = nil
	s.ended = true
	if s.grace != nil {
		s.grace.Stop()
		s.grace = nil
	}
	s.mu.Unlock()

	s.cancel()
}

func (s *subscription) setStream(st Stream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stream = st
}

func (s *subscription) closeStream() {
	s.mu.Lock()
	st := s.stream
	s.mu.Unlock()
	if st != nil {
		st.Close()
	}
}

// run is the single reader of the subscription's stream.
func (s *subscription) run() {
	defer s.d.wg.Done()

	stop := context.AfterFunc(s.ctx, s.closeStream)
	defer stop()

	stream, err := s.d.opener.OpenStream(s.ctx, s.agent, a2a.MethodTasksSendSubscribe, s.key.taskID)
	if err != nil {
		s.logger.Warn("a2a stream handshake failed", slog.Any("error", err))
		s.err = err
		s.finish(nil)
		close(s.ready)
		return
	}
	s.setStream(stream)
	if s.ctx.Err() != nil {
		// Cancelled during the handshake; AfterFunc may have run before the stream was set.
		stream.Close()
	}
	close(s.ready)

	telemetry.SubscriptionsChanged(s.ctx, 1)
	defer telemetry.SubscriptionsChanged(context.Background(), -1)
	s.logger.Info("a2a stream opened")

	// reconnected is true while the last reconnect has not been followed by any event.
	reconnected := false
	for {
		received, readErr := s.pump(stream)
		stream.Close()
		if received {
			reconnected = false
		}

		switch {
		case s.ctx.Err() != nil:
			s.finish(nil)
			return
		case s.view.State().Terminal():
			s.logger.Debug("a2a stream ended after terminal state", slog.String("state", string(s.view.State())))
			s.finish(nil)
			return
		case reconnected:
			s.fail("stream dropped again after reconnect", connectionError(s.agent, "read stream", readErr))
			return
		}

		s.logger.Warn("a2a stream dropped; reconnecting", slog.Any("error", readErr))
		s.broadcast(&a2a.StreamError{
			Code:    a2a.StreamCodeDisconnected,
			Message: "stream dropped; reconnecting",
			Err:     readErr,
		})

		if !s.sleep(s.d.newBackOff().NextBackOff()) {
			if s.ctx.Err() != nil {
				s.finish(nil)
			} else {
				s.fail("reconnect disabled", connectionError(s.agent, "read stream", readErr))
			}
			return
		}

		stream, err = s.d.opener.OpenStream(s.ctx, s.agent, a2a.MethodTasksResubscribe, s.key.taskID)
		telemetry.StreamReconnected(s.ctx, err)
		if err != nil {
			if s.ctx.Err() != nil {
				s.finish(nil)
				return
			}
			s.fail("reconnect failed", connectionError(s.agent, a2a.MethodTasksResubscribe, err))
			return
		}
		s.setStream(stream)
		if s.ctx.Err() != nil {
			stream.Close()
		}
		reconnected = true
		s.logger.Info("a2a stream reconnected")
	}
}

// pump reads stream until it ends and reports whether any event was received.
func (s *subscription) pump(stream Stream) (bool, error) {
	received := false
	for {
		ev, err := stream.Next()
		if err != nil {
			var perr *a2a.ProtocolError
			if errors.As(err, &perr) {
				s.logger.Warn("a2a malformed frame", slog.Any("error", err))
				s.broadcast(&a2a.StreamError{
					Code:    a2a.StreamCodeMalformedFrame,
					Message: perr.Error(),
					Err:     err,
				})
				continue
			}
			return received, err
		}
		received = true
		s.deliver(ev)
	}
}

// deliver folds status updates into the state view and fans ev out. A rejected transition is
// delivered as received, followed by a warning.
func (s *subscription) deliver(ev a2a.Event) {
	su, ok := ev.(*a2a.TaskStatusUpdate)
	if !ok {
		s.broadcast(ev)
		return
	}
	_, err := s.view.Apply(su)
	s.broadcast(ev)
	if err != nil {
		s.broadcast(&a2a.StreamError{
			Code:    a2a.StreamCodeInvalidTransition,
			Message: err.Error(),
			Err:     err,
		})
	}
}

// fail ends the subscription with a fatal [a2a.StreamCodeReconnectFailed] event.
func (s *subscription) fail(msg string, cerr *a2a.ConnectionError) {
	s.logger.Error("a2a subscription failed", slog.String("reason", msg), slog.Any("error", cerr))
	s.finish(&a2a.StreamError{
		Code:    a2a.StreamCodeReconnectFailed,
		Message: msg,
		Err:     cerr,
	})
}

// sleep waits for d unless the subscription ends first. It reports false for [backoff.Stop]
// or cancellation.
func (s *subscription) sleep(d time.Duration) bool {
	if d == backoff.Stop {
		return false
	}
	if d <= 0 {
		return s.ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-s.ctx.Done():
		return false
	}
}
