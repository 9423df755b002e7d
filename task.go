// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package a2a

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// TaskState is the lifecycle state of a [Task].
type TaskState string

const (
	TaskStateSubmitted     TaskState = "SUBMITTED"
	TaskStateWorking       TaskState = "WORKING"
	TaskStateInputRequired TaskState = "INPUT_REQUIRED"
	TaskStateCompleted     TaskState = "COMPLETED"
	TaskStateFailed        TaskState = "FAILED"
	TaskStateCanceled      TaskState = "CANCELED"
)

// Valid reports whether s is a known state.
func (s TaskState) Valid() bool {
	switch s {
	case TaskStateSubmitted, TaskStateWorking, TaskStateInputRequired,
		TaskStateCompleted, TaskStateFailed, TaskStateCanceled:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are accepted from s.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateFailed, TaskStateCanceled:
		return true
	}
	return false
}

// ParseTaskState parses a wire state name case-insensitively.
//
// Dashes are treated as underscores and the British "CANCELLED" spelling is accepted.
func ParseTaskState(s string) (TaskState, error) {
	norm := TaskState(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_")))
	if norm == "CANCELLED" {
		norm = TaskStateCanceled
	}
	if !norm.Valid() {
		return "", fmt.Errorf("unknown task state %q", s)
	}
	return norm, nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
//
// An empty string decodes to the zero state so that callers can detect a missing state.
func (s *TaskState) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*s = ""
		return nil
	}
	st, err := ParseTaskState(string(b))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// Task is the unit of work tracked between a client and a remote agent.
type Task struct {
	ID        string         `json:"id"`
	State     TaskState      `json:"state"`
	CreatedAt time.Time      `json:"createdAt,omitzero"`
	UpdatedAt time.Time      `json:"updatedAt,omitzero"`
	Messages  []Message      `json:"messages,omitzero"`
	Artifacts []Artifact     `json:"artifacts,omitzero"`
	Metadata  map[string]any `json:"metadata,omitzero"`
	// StatusTimestamp is the agent timestamp of the last applied status update.
	StatusTimestamp time.Time `json:"statusTimestamp,omitzero"`
}

// Artifact returns the artifact with the given id.
func (t *Task) Artifact(id string) (Artifact, bool) {
	i := slices.IndexFunc(t.Artifacts, func(a Artifact) bool { return a.ID == id })
	if i < 0 {
		return Artifact{}, false
	}
	return t.Artifacts[i], true
}

// AddArtifact appends a unless an artifact with the same id was already delivered.
// It reports whether a was added.
func (t *Task) AddArtifact(a Artifact) bool {
	if _, ok := t.Artifact(a.ID); ok {
		return false
	}
	t.Artifacts = append(t.Artifacts, a)
	return true
}

// AppendMessage appends m to the conversation.
func (t *Task) AppendMessage(m Message) {
	t.Messages = append(t.Messages, m)
}

// SendParams are the params of tasks/send.
type SendParams struct {
	// ID is empty when initiating a new task.
	ID         string  `json:"id,omitzero"`
	Message    Message `json:"message"`
	WebhookURL string  `json:"webhookUrl,omitzero"`
}

// SendResult is the result of tasks/send.
type SendResult struct {
	ID string `json:"id"`
}

// TaskIDParams carries only a task id. It is used by tasks/get, tasks/cancel,
// tasks/sendSubscribe and tasks/resubscribe.
type TaskIDParams struct {
	ID string `json:"id"`
}

// CancelResult is the result of tasks/cancel.
type CancelResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitzero"`
}
