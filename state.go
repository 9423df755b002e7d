// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package a2a

import (
	"log/slog"
	"sync"
	"time"
)

// ApplyStatusEvent returns the state that results from applying next to current.
//
// Terminal states accept only a repeat of themselves, which is a no-op. Any other move out of a
// terminal state fails with a [*StateError]. Every other ordering is accepted, because the agent
// is the authority over state and the network may deliver updates out of order.
func ApplyStatusEvent(current, next TaskState) (TaskState, error) {
	if current.Terminal() {
		if next == current {
			return current, nil
		}
		return current, &StateError{From: current, To: next}
	}
	return next, nil
}

// StateView is a race-free view of one task's state derived from ordered status updates.
type StateView struct {
	taskID string
	logger *slog.Logger

	mu      sync.Mutex
	state   TaskState
	updated time.Time
}

// NewStateView returns a view for taskID starting in the zero (unknown) state.
func NewStateView(taskID string, logger *slog.Logger) *StateView {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &StateView{taskID: taskID, logger: logger}
}

// State returns the current state.
func (v *StateView) State() TaskState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// UpdatedAt returns the timestamp of the last applied update.
func (v *StateView) UpdatedAt() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.updated
}

// Apply folds ev into the view and returns the resulting state.
//
// An update older than the last applied one is logged and ignored, so the latest-timestamped
// state wins. A rejected transition leaves the view unchanged and returns a [*StateError].
func (v *StateView) Apply(ev *TaskStatusUpdate) (TaskState, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !ev.Timestamp.IsZero() && !v.updated.IsZero() && ev.Timestamp.Before(v.updated) {
		v.logger.Warn("status update timestamp regressed; keeping latest state",
			slog.String("task_id", v.taskID),
			slog.String("state", string(v.state)),
			slog.String("stale_state", string(ev.State)),
			slog.Time("last", v.updated),
			slog.Time("got", ev.Timestamp),
		)
		return v.state, nil
	}

	next, err := ApplyStatusEvent(v.state, ev.State)
	if err != nil {
		if serr, ok := err.(*StateError); ok {
			serr.TaskID = v.taskID
		}
		v.logger.Warn("rejected status update",
			slog.String("task_id", v.taskID),
			slog.Any("error", err),
		)
		return v.state, err
	}

	v.state = next
	if !ev.Timestamp.IsZero() {
		v.updated = ev.Timestamp
	}
	return next, nil
}
