// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package task keeps the caller's local copy of remote tasks.
//
// The agent owns every task. A [Store] only caches what the caller learned from unary results
// and subscription events so that tools can show the last known state without a round trip.
package task

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/agentvault/a2a"
)

// ErrNotFound is returned when a store has no copy of the requested task.
var ErrNotFound = errors.New("task: not found")

// Key identifies a task across agents. Task ids are only unique per agent.
type Key struct {
	AgentURL string
	TaskID   string
}

func (k Key) validate() error {
	if k.AgentURL == "" {
		return errors.New("task: empty agent url")
	}
	if k.TaskID == "" {
		return errors.New("task: empty task id")
	}
	return nil
}

// Store persists cached tasks.
type Store interface {
	// Get returns the cached task of k, or an error matching [ErrNotFound].
	Get(ctx context.Context, k Key) (*a2a.Task, error)

	// Save creates or replaces the cached task of k.
	Save(ctx context.Context, k Key, task *a2a.Task) error

	// List returns the cached tasks of agentURL, most recently updated first.
	// An empty agentURL lists every agent.
	List(ctx context.Context, agentURL string) ([]*a2a.Task, error)
}

// StoreError reports a failed store operation.
type StoreError struct {
	Op  string
	Key Key
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("task: %s %s@%s: %v", e.Op, e.Key.TaskID, e.Key.AgentURL, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// clone returns a copy of t that shares no slices or maps with it.
func clone(t *a2a.Task) *a2a.Task {
	c := *t
	c.Messages = slices.Clone(t.Messages)
	c.Artifacts = slices.Clone(t.Artifacts)
	c.Metadata = maps.Clone(t.Metadata)
	return &c
}

// byRecency orders tasks most recently updated first, then by id. A task never updated
// counts as updated when it was created.
func byRecency(a, b *a2a.Task) int {
	if ua, ub := updatedNanos(a), updatedNanos(b); ua != ub {
		if ua > ub {
			return -1
		}
		return 1
	}
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	}
	return 0
}
