// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"slices"
	"sync"

	"github.com/agentvault/a2a"
)

// MemoryStore is a [Store] that lives as long as the process.
// All operations are safe for concurrent use.
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[Key]*a2a.Task
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty [MemoryStore].
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks: make(map[Key]*a2a.Task),
	}
}

// Get implements [Store].
func (s *MemoryStore) Get(_ context.Context, k Key) (*a2a.Task, error) {
	if err := k.validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[k]
	if !ok {
		return nil, &StoreError{Op: "get", Key: k, Err: ErrNotFound}
	}
	return clone(t), nil
}

// Save implements [Store].
func (s *MemoryStore) Save(_ context.Context, k Key, task *a2a.Task) error {
	if err := k.validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[k] = clone(task)
	return nil
}

// List implements [Store].
func (s *MemoryStore) List(_ context.Context, agentURL string) ([]*a2a.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*a2a.Task
	for k, t := range s.tasks {
		if agentURL == "" || k.AgentURL == agentURL {
			out = append(out, clone(t))
		}
	}
	slices.SortFunc(out, byRecency)
	return out, nil
}
