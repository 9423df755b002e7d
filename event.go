// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package a2a

import (
	"errors"
	"fmt"
	"time"
)

// EventKind is the SSE "event:" name of an [Event].
type EventKind string

const (
	EventKindStatus   EventKind = "task_status"
	EventKindMessage  EventKind = "task_message"
	EventKindArtifact EventKind = "task_artifact"
	EventKindError    EventKind = "error"
)

// Event is a payload pushed by a remote agent over a subscription stream.
//
// The set of implementations is closed: [*TaskStatusUpdate], [*TaskMessageEvent],
// [*TaskArtifactEvent] and [*StreamError].
type Event interface {
	Kind() EventKind

	isEvent()
}

// TaskStatusUpdate reports a task state change.
type TaskStatusUpdate struct {
	TaskID    string    `json:"taskId"`
	State     TaskState `json:"state"`
	Timestamp time.Time `json:"timestamp,omitzero"`
	Message   *Message  `json:"message,omitzero"`
}

var _ Event = (*TaskStatusUpdate)(nil)

// Kind implements [Event].
func (*TaskStatusUpdate) Kind() EventKind { return EventKindStatus }
func (*TaskStatusUpdate) isEvent()        {}

func (e *TaskStatusUpdate) validate() error {
	if e.State == "" {
		return errors.New("status update has no state")
	}
	if e.Message != nil {
		return e.Message.Validate()
	}
	return nil
}

// TaskMessageEvent delivers a new message in the task conversation.
type TaskMessageEvent struct {
	TaskID    string    `json:"taskId"`
	Message   Message   `json:"message"`
	Timestamp time.Time `json:"timestamp,omitzero"`
}

var _ Event = (*TaskMessageEvent)(nil)

// Kind implements [Event].
func (*TaskMessageEvent) Kind() EventKind { return EventKindMessage }
func (*TaskMessageEvent) isEvent()        {}

func (e *TaskMessageEvent) validate() error {
	return e.Message.Validate()
}

// TaskArtifactEvent delivers a new artifact.
type TaskArtifactEvent struct {
	TaskID    string    `json:"taskId"`
	Artifact  Artifact  `json:"artifact"`
	Timestamp time.Time `json:"timestamp,omitzero"`
}

var _ Event = (*TaskArtifactEvent)(nil)

// Kind implements [Event].
func (*TaskArtifactEvent) Kind() EventKind { return EventKindArtifact }
func (*TaskArtifactEvent) isEvent()        {}

func (e *TaskArtifactEvent) validate() error {
	return e.Artifact.Validate()
}

// Stream error codes produced locally by the codec and the event dispatcher.
// They sit outside the JSON-RPC reserved range so they never collide with codes sent by an agent.
const (
	// StreamCodeMalformedFrame marks a frame whose payload could not be decoded.
	StreamCodeMalformedFrame = -33001
	// StreamCodeUnknownEvent marks a frame with an unrecognized "event:" name.
	StreamCodeUnknownEvent = -33002
	// StreamCodeDisconnected marks the boundary where the stream dropped and a reconnect was attempted.
	StreamCodeDisconnected = -33003
	// StreamCodeReconnectFailed is the final event of a subscription whose reconnect failed.
	StreamCodeReconnectFailed = -33004
	// StreamCodeInvalidTransition warns that the preceding status update was rejected by the state machine.
	StreamCodeInvalidTransition = -33005
)

// StreamError is an error delivered in-band on a subscription.
//
// It is sent by the agent as an "error" event, or synthesized locally for malformed frames,
// unknown event names, disconnects and state machine warnings. Err holds the local cause, if any.
type StreamError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitzero"`

	Err error `json:"-"`
}

var (
	_ Event = (*StreamError)(nil)
	_ error = (*StreamError)(nil)
)

// Kind implements [Event].
func (*StreamError) Kind() EventKind { return EventKindError }
func (*StreamError) isEvent()        {}

// Error implements error.
func (e *StreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("a2a: stream error %d: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("a2a: stream error %d: %s", e.Code, e.Message)
}

// Unwrap returns the local cause.
func (e *StreamError) Unwrap() error {
	return e.Err
}

// Fatal reports whether e ends the subscription.
func (e *StreamError) Fatal() bool {
	return e.Code == StreamCodeReconnectFailed
}

// EventTaskID returns the task id carried by ev, or "" for events without one.
func EventTaskID(ev Event) string {
	switch ev := ev.(type) {
	case *TaskStatusUpdate:
		return ev.TaskID
	case *TaskMessageEvent:
		return ev.TaskID
	case *TaskArtifactEvent:
		return ev.TaskID
	}
	return ""
}
