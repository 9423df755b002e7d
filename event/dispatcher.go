// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package event fans out the event stream of a remote task to any number of listeners.
//
// A [Dispatcher] keeps at most one network stream per (agent, task id) pair. Every listener
// gets its own bounded queue: a slow listener loses its oldest events and never delays the
// others or the network read loop. A stream dropped by the agent before the task reaches a
// terminal state is reopened once with tasks/resubscribe.
package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/agentvault/a2a"
)

// DefaultGracePeriod is how long a stream without listeners stays open.
const DefaultGracePeriod = 2 * time.Second

// ErrDispatcherClosed is returned by [Dispatcher.Subscribe] after [Dispatcher.Close].
var ErrDispatcherClosed = errors.New("event: dispatcher closed")

// Stream is an open event stream. [*transport.Stream] implements it.
type Stream interface {
	// Next blocks for the next event. A [*a2a.ProtocolError] reports one bad frame and
	// leaves the stream usable; any other error ends the stream.
	Next() (a2a.Event, error)
	// Close releases the stream and unblocks a pending Next.
	Close() error
}

// Opener opens the stream of taskID on agent with method, which is either
// [a2a.MethodTasksSendSubscribe] or [a2a.MethodTasksResubscribe].
//
// The stream must stop when ctx is cancelled.
type Opener interface {
	OpenStream(ctx context.Context, agent *a2a.AgentCard, method, taskID string) (Stream, error)
}

// OpenerFunc adapts a function to [Opener].
type OpenerFunc func(ctx context.Context, agent *a2a.AgentCard, method, taskID string) (Stream, error)

// OpenStream implements [Opener].
func (f OpenerFunc) OpenStream(ctx context.Context, agent *a2a.AgentCard, method, taskID string) (Stream, error) {
	return f(ctx, agent, method, taskID)
}

// Dispatcher owns the subscriptions of one client. It is safe for concurrent use.
type Dispatcher struct {
	opener     Opener
	logger     *slog.Logger
	queueSize  int
	grace      time.Duration
	newBackOff func() backoff.BackOff

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	subs   map[subKey]*subscription
	closed bool
}

// Option configures a [Dispatcher].
type Option func(*Dispatcher)

// WithLogger sets the [*slog.Logger] for the [Dispatcher].
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithQueueSize sets the capacity of every listener queue.
func WithQueueSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queueSize = n
		}
	}
}

// WithGracePeriod sets how long a stream stays open after its last listener left.
func WithGracePeriod(grace time.Duration) Option {
	return func(d *Dispatcher) {
		d.grace = grace
	}
}

// WithReconnectBackOff sets the policy for the delay before the reconnect of a dropped
// stream. Only the first delay of each policy is used. A policy returning [backoff.Stop]
// disables reconnects.
func WithReconnectBackOff(fn func() backoff.BackOff) Option {
	return func(d *Dispatcher) {
		d.newBackOff = fn
	}
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 0
	return b
}

// New returns a [Dispatcher] that opens streams with opener.
func New(opener Opener, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		opener:     opener,
		logger:     slog.New(slog.DiscardHandler),
		queueSize:  DefaultQueueSize,
		grace:      DefaultGracePeriod,
		newBackOff: defaultBackOff,
		subs:       make(map[subKey]*subscription),
	}
	for _, o := range opts {
		o(d)
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d
}

// Subscribe attaches a listener to the stream of taskID on agent.
//
// The first listener of a pair opens the stream with tasks/sendSubscribe; later listeners share
// it and see events from their attach point onward. Subscribe returns once the handshake
// completed. A failed handshake is returned to every listener waiting on it.
func (d *Dispatcher) Subscribe(ctx context.Context, agent *a2a.AgentCard, taskID string) (*Handle, error) {
	if agent == nil || agent.URL == "" {
		return nil, errors.New("event: agent has no url")
	}
	if taskID == "" {
		return nil, errors.New("event: empty task id")
	}
	k := subKey{agentURL: agent.URL, taskID: taskID}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, ErrDispatcherClosed
	}
	sub, ok := d.subs[k]
	if !ok {
		sub = d.newSubscription(k, agent)
		d.subs[k] = sub
	}
	// The opening listener is attached before the read loop can deliver anything.
	h := sub.attach(d.queueSize)
	if !ok {
		d.wg.Add(1)
		go sub.run()
	}
	d.mu.Unlock()

	select {
	case <-sub.ready:
	case <-ctx.Done():
		h.Close()
		return nil, ctx.Err()
	}
	if sub.err != nil {
		h.Close()
		return nil, sub.err
	}
	return h, nil
}

// Unsubscribe detaches h. It is equivalent to h.Close.
func (d *Dispatcher) Unsubscribe(h *Handle) error {
	return h.Close()
}

// Streams returns the number of subscriptions that currently own a stream or are opening one.
func (d *Dispatcher) Streams() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.subs)
}

// Close ends every subscription, closing every listener queue, and waits for the read loops.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()
	return nil
}

// remove drops sub from the registry if it is still the registered subscription of its key.
func (d *Dispatcher) remove(sub *subscription) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.subs[sub.key] == sub {
		delete(d.subs, sub.key)
	}
}

func (d *Dispatcher) newSubscription(k subKey, agent *a2a.AgentCard) *subscription {
	logger := d.logger.With(slog.String("task_id", k.taskID), slog.String("agent_url", k.agentURL))
	ctx, cancel := context.WithCancel(d.ctx)
	return &subscription{
		d:      d,
		key:    k,
		agent:  agent,
		logger: logger,
		view:   a2a.NewStateView(k.taskID, d.logger.With(slog.String("agent_url", k.agentURL))),
		ctx:    ctx,
		cancel: cancel,
		ready:  make(chan struct{}),
	}
}

// connectionError returns err as the [*a2a.ConnectionError] that ends a subscription.
func connectionError(agent *a2a.AgentCard, op string, err error) *a2a.ConnectionError {
	var cerr *a2a.ConnectionError
	if errors.As(err, &cerr) {
		return cerr
	}
	if err == nil {
		return &a2a.ConnectionError{Op: op, URL: agent.URL, Err: errors.New("stream ended")}
	}
	return &a2a.ConnectionError{Op: op, URL: agent.URL, Err: fmt.Errorf("stream ended: %w", err)}
}
