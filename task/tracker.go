// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/agentvault/a2a"
)

// Tracker folds task events into cached tasks.
type Tracker struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// TrackerOption configures a [Tracker].
type TrackerOption func(*Tracker)

// WithLogger sets the [*slog.Logger] for the [Tracker].
func WithLogger(logger *slog.Logger) TrackerOption {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// WithClock replaces [time.Now] for events that carry no timestamp.
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) {
		t.now = now
	}
}

// NewTracker returns a [Tracker] that caches tasks in store.
func NewTracker(store Store, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		store:  store,
		logger: slog.New(slog.DiscardHandler),
		now:    time.Now,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Record caches a task fetched with tasks/get, replacing the cached copy.
func (t *Tracker) Record(ctx context.Context, agentURL string, task *a2a.Task) error {
	return t.store.Save(ctx, Key{AgentURL: agentURL, TaskID: task.ID}, task)
}

// Apply folds ev into the cached task of k and returns the result. A task seen for the first
// time starts empty.
//
// A status update that the task state machine rejects leaves the cache unchanged and returns
// the [*a2a.StateError]. A status update timestamped before the last applied one is ignored.
// Stream errors carry no task data and are skipped.
func (t *Tracker) Apply(ctx context.Context, k Key, ev a2a.Event) (*a2a.Task, error) {
	cur, err := t.store.Get(ctx, k)
	switch {
	case errors.Is(err, ErrNotFound):
		cur = &a2a.Task{ID: k.TaskID}
	case err != nil:
		return nil, err
	}

	changed, err := t.fold(cur, ev)
	if err != nil || !changed {
		return cur, err
	}
	if err := t.store.Save(ctx, k, cur); err != nil {
		return nil, err
	}
	return cur, nil
}

func (t *Tracker) fold(task *a2a.Task, ev a2a.Event) (bool, error) {
	stamp := func(ts time.Time) {
		if ts.IsZero() {
			ts = t.now().UTC()
		}
		if task.CreatedAt.IsZero() {
			task.CreatedAt = ts
		}
		task.UpdatedAt = ts
	}

	switch ev := ev.(type) {
	case *a2a.TaskStatusUpdate:
		// Only agent timestamps of status updates are compared. UpdatedAt may come from
		// another event kind or from the local clock.
		if !ev.Timestamp.IsZero() && ev.Timestamp.Before(task.StatusTimestamp) {
			t.logger.Debug("ignoring stale status update",
				slog.String("task_id", task.ID),
				slog.String("state", string(ev.State)),
				slog.Time("last", task.StatusTimestamp),
				slog.Time("got", ev.Timestamp),
			)
			return false, nil
		}
		next, err := a2a.ApplyStatusEvent(task.State, ev.State)
		if err != nil {
			var serr *a2a.StateError
			if errors.As(err, &serr) {
				serr.TaskID = task.ID
			}
			return false, err
		}
		task.State = next
		if !ev.Timestamp.IsZero() {
			task.StatusTimestamp = ev.Timestamp
		}
		if ev.Message != nil {
			task.AppendMessage(*ev.Message)
		}
		stamp(ev.Timestamp)
		return true, nil

	case *a2a.TaskMessageEvent:
		task.AppendMessage(ev.Message)
		stamp(ev.Timestamp)
		return true, nil

	case *a2a.TaskArtifactEvent:
		if !task.AddArtifact(ev.Artifact) {
			return false, nil
		}
		stamp(ev.Timestamp)
		return true, nil
	}
	return false, nil
}

// Follow applies every event from events to the cached task of k until events is closed or
// ctx is done. A fatal stream error ends Follow with that error; a rejected transition is
// logged and skipped.
func (t *Tracker) Follow(ctx context.Context, k Key, events <-chan a2a.Event) (*a2a.Task, error) {
	var last *a2a.Task
	for {
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return last, nil
			}
			if serr, ok := ev.(*a2a.StreamError); ok && serr.Fatal() {
				return last, serr
			}
			task, err := t.Apply(ctx, k, ev)
			if err != nil && !errors.Is(err, a2a.ErrInvalidTransition) {
				return last, err
			}
			if err != nil {
				t.logger.Warn("cached task kept its state", slog.Any("error", err))
			}
			last = task
		}
	}
}
