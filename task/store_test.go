// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package task_test

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	gocmp "github.com/google/go-cmp/cmp"

	"github.com/agentvault/a2a"
	"github.com/agentvault/a2a/task"
)

const (
	searchAgent  = "https://search.example/a2a"
	billingAgent = "https://billing.example/a2a"
)

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func stores(t *testing.T) map[string]task.Store {
	t.Helper()

	mem, err := task.OpenSQLite(t.Context(), ":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite(:memory:) error = %v", err)
	}
	t.Cleanup(func() { mem.Close() })

	file, err := task.OpenSQLite(t.Context(), filepath.Join(t.TempDir(), "tasks.db"))
	if err != nil {
		t.Fatalf("OpenSQLite(file) error = %v", err)
	}
	t.Cleanup(func() { file.Close() })

	return map[string]task.Store{
		"memory":        task.NewMemoryStore(),
		"sqlite memory": mem,
		"sqlite file":   file,
	}
}

func TestStore(t *testing.T) {
	t.Parallel()

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ctx := t.Context()
			k := task.Key{AgentURL: searchAgent, TaskID: "t1"}

			if _, err := s.Get(ctx, k); !errors.Is(err, task.ErrNotFound) {
				t.Fatalf("Get() on empty store error = %v, want ErrNotFound", err)
			}

			want := &a2a.Task{
				ID:        "t1",
				State:     a2a.TaskStateWorking,
				CreatedAt: base,
				UpdatedAt: base.Add(time.Minute),
				Messages:  []a2a.Message{a2a.NewTextMessage(a2a.RoleUser, "find flights")},
				Artifacts: []a2a.Artifact{{ID: "a1", Type: "text", Content: "draft"}},
				Metadata:  map[string]any{"origin": "cli"},
			}
			if err := s.Save(ctx, k, want); err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			got, err := s.Get(ctx, k)
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if diff := gocmp.Diff(want, got); diff != "" {
				t.Errorf("Get() mismatch (-want +got):\n%s", diff)
			}

			got.Messages = append(got.Messages, a2a.NewTextMessage(a2a.RoleAssistant, "mutated"))
			again, _ := s.Get(ctx, k)
			if len(again.Messages) != 1 {
				t.Errorf("mutating a returned task changed the store: %d messages", len(again.Messages))
			}

			want.State = a2a.TaskStateCompleted
			want.UpdatedAt = base.Add(2 * time.Minute)
			if err := s.Save(ctx, k, want); err != nil {
				t.Fatalf("second Save() error = %v", err)
			}
			if got, _ := s.Get(ctx, k); got.State != a2a.TaskStateCompleted {
				t.Errorf("State after replace = %q, want %q", got.State, a2a.TaskStateCompleted)
			}

			if _, err := s.Get(ctx, task.Key{AgentURL: billingAgent, TaskID: "t1"}); !errors.Is(err, task.ErrNotFound) {
				t.Errorf("Get(same id, other agent) error = %v, want ErrNotFound", err)
			}
			if err := s.Save(ctx, task.Key{TaskID: "t1"}, want); err == nil {
				t.Error("Save(key without agent) error = nil")
			}
		})
	}
}

func TestStoreList(t *testing.T) {
	t.Parallel()

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ctx := t.Context()
			seed := []struct {
				agent string
				task  a2a.Task
			}{
				{searchAgent, a2a.Task{ID: "old", State: a2a.TaskStateCompleted, UpdatedAt: base}},
				{searchAgent, a2a.Task{ID: "new", State: a2a.TaskStateWorking, UpdatedAt: base.Add(time.Hour)}},
				{searchAgent, a2a.Task{ID: "created-only", State: a2a.TaskStateSubmitted, CreatedAt: base.Add(time.Minute)}},
				{billingAgent, a2a.Task{ID: "invoice", State: a2a.TaskStateFailed, UpdatedAt: base.Add(2 * time.Hour)}},
			}
			for _, r := range seed {
				if err := s.Save(ctx, task.Key{AgentURL: r.agent, TaskID: r.task.ID}, &r.task); err != nil {
					t.Fatalf("Save(%s) error = %v", r.task.ID, err)
				}
			}

			ids := func(tasks []*a2a.Task) []string {
				var out []string
				for _, tk := range tasks {
					out = append(out, tk.ID)
				}
				return out
			}

			got, err := s.List(ctx, searchAgent)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if diff := gocmp.Diff([]string{"new", "created-only", "old"}, ids(got)); diff != "" {
				t.Errorf("List(search) (-want +got):\n%s", diff)
			}

			all, err := s.List(ctx, "")
			if err != nil {
				t.Fatalf("List(all) error = %v", err)
			}
			if diff := gocmp.Diff([]string{"invoice", "new", "created-only", "old"}, ids(all)); diff != "" {
				t.Errorf("List(all) (-want +got):\n%s", diff)
			}
		})
	}
}
