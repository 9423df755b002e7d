// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package a2a

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors matched with [errors.Is] against the typed errors below.
var (
	// ErrMalformed matches a [*ProtocolError] for an envelope or frame that could not be decoded.
	ErrMalformed = errors.New("a2a: malformed message")
	// ErrUnknownMethod matches a [*ProtocolError] for a method that is not registered.
	ErrUnknownMethod = errors.New("a2a: unknown method")
	// ErrMissingCredential matches an [*AuthenticationError] for a credential the resolver does not have.
	ErrMissingCredential = errors.New("a2a: missing credential")
	// ErrInvalidCredential matches an [*AuthenticationError] for a credential the agent rejected.
	ErrInvalidCredential = errors.New("a2a: invalid credential")
	// ErrTokenExchangeFailed matches an [*AuthenticationError] for a failed OAuth2 token exchange.
	ErrTokenExchangeFailed = errors.New("a2a: token exchange failed")
	// ErrInvalidTransition matches a [*StateError].
	ErrInvalidTransition = errors.New("a2a: invalid state transition")
	// ErrEmptyFrame is returned by [DecodeSSEEvent] for a frame without fields, such as a keep-alive comment.
	ErrEmptyFrame = errors.New("a2a: empty sse frame")
)

// ProtocolErrorKind classifies a [ProtocolError].
type ProtocolErrorKind int

const (
	ProtocolMalformed ProtocolErrorKind = iota + 1
	ProtocolUnknownMethod
)

func (k ProtocolErrorKind) String() string {
	switch k {
	case ProtocolMalformed:
		return "malformed"
	case ProtocolUnknownMethod:
		return "unknown method"
	}
	return fmt.Sprintf("ProtocolErrorKind(%d)", int(k))
}

// ProtocolError reports a malformed envelope or an unknown method.
//
// It indicates a programming or version mismatch and is never retried.
type ProtocolError struct {
	Kind   ProtocolErrorKind
	Detail string
	Err    error
}

func (e *ProtocolError) Error() string {
	var sb strings.Builder
	sb.WriteString("a2a: protocol error: ")
	sb.WriteString(e.Kind.String())
	if e.Detail != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Detail)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// Is matches [ErrMalformed] and [ErrUnknownMethod] by kind.
func (e *ProtocolError) Is(target error) bool {
	switch target {
	case ErrMalformed:
		return e.Kind == ProtocolMalformed
	case ErrUnknownMethod:
		return e.Kind == ProtocolUnknownMethod
	}
	return false
}

func malformed(detail string, err error) *ProtocolError {
	return &ProtocolError{Kind: ProtocolMalformed, Detail: detail, Err: err}
}

// NewMalformedError returns a [*ProtocolError] of kind [ProtocolMalformed].
func NewMalformedError(detail string, err error) error {
	return malformed(detail, err)
}

// ConnectionError reports a network failure, a failed stream handshake, or an
// unexpected HTTP status without a JSON-RPC error body.
//
// Caller-level retry with backoff is appropriate.
type ConnectionError struct {
	Op  string
	URL string
	// StatusCode is the HTTP status when a response was received, otherwise zero.
	StatusCode int
	Err        error
}

func (e *ConnectionError) Error() string {
	var sb strings.Builder
	sb.WriteString("a2a: connection error")
	if e.Op != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Op)
	}
	if e.URL != "" {
		sb.WriteString(" ")
		sb.WriteString(e.URL)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&sb, ": http status %d", e.StatusCode)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// TimeoutError reports that a call did not complete within its deadline.
//
// It is a subtype of [ConnectionError]: [errors.As] with a *ConnectionError target succeeds.
type TimeoutError struct {
	Conn  *ConnectionError
	After time.Duration
}

func (e *TimeoutError) Error() string {
	if e.After > 0 {
		return fmt.Sprintf("a2a: timeout after %s: %v", e.After, e.Conn)
	}
	return fmt.Sprintf("a2a: timeout: %v", e.Conn)
}

func (e *TimeoutError) Unwrap() error { return e.Conn }

// Timeout reports true, matching the net.Error convention.
func (e *TimeoutError) Timeout() bool { return true }

// AuthErrorKind classifies an [AuthenticationError].
type AuthErrorKind int

const (
	AuthMissingCredential AuthErrorKind = iota + 1
	AuthInvalidCredential
	AuthTokenExchangeFailed
)

func (k AuthErrorKind) String() string {
	switch k {
	case AuthMissingCredential:
		return "missing credential"
	case AuthInvalidCredential:
		return "invalid credential"
	case AuthTokenExchangeFailed:
		return "token exchange failed"
	}
	return fmt.Sprintf("AuthErrorKind(%d)", int(k))
}

// AuthenticationError reports a credential problem. It is never retried automatically.
type AuthenticationError struct {
	Kind      AuthErrorKind
	ServiceID string
	// StatusCode is the HTTP status that revealed the problem, if any.
	StatusCode int
	Err        error
}

func (e *AuthenticationError) Error() string {
	var sb strings.Builder
	sb.WriteString("a2a: authentication error: ")
	sb.WriteString(e.Kind.String())
	if e.ServiceID != "" {
		fmt.Fprintf(&sb, " for service %q", e.ServiceID)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&sb, ": http status %d", e.StatusCode)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// Is matches the authentication sentinels by kind.
func (e *AuthenticationError) Is(target error) bool {
	switch target {
	case ErrMissingCredential:
		return e.Kind == AuthMissingCredential
	case ErrInvalidCredential:
		return e.Kind == AuthInvalidCredential
	case ErrTokenExchangeFailed:
		return e.Kind == AuthTokenExchangeFailed
	}
	return false
}

// RemoteAgentError is a JSON-RPC error object returned by the agent.
type RemoteAgentError struct {
	Code    int
	Message string
	Data    any
	// StatusCode is the HTTP status of the response that carried the error.
	StatusCode int
}

func (e *RemoteAgentError) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("a2a: remote agent error: code = %d, message = %s, data = %v", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("a2a: remote agent error: code = %d, message = %s", e.Code, e.Message)
}

// Transient reports whether the code marks a condition that may clear on its own.
func (e *RemoteAgentError) Transient() bool {
	return e.Code == CodeAgentError || e.Code == CodeInternalError
}

// StateError reports a status update rejected by the task state machine.
type StateError struct {
	TaskID string
	From   TaskState
	To     TaskState
}

func (e *StateError) Error() string {
	if e.TaskID != "" {
		return fmt.Sprintf("a2a: invalid state transition for task %q: %s -> %s", e.TaskID, e.From, e.To)
	}
	return fmt.Sprintf("a2a: invalid state transition: %s -> %s", e.From, e.To)
}

// Is matches [ErrInvalidTransition].
func (e *StateError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// IsRemoteCode reports whether err is a [*RemoteAgentError] with the given code.
func IsRemoteCode(err error, code int) bool {
	var rerr *RemoteAgentError
	return errors.As(err, &rerr) && rerr.Code == code
}

// IsTaskNotFound reports whether the agent said the task does not exist.
func IsTaskNotFound(err error) bool {
	return IsRemoteCode(err, CodeTaskNotFound)
}

// IsRetryable reports whether retrying the whole operation later may succeed.
//
// Connection failures, including timeouts, and transient [RemoteAgentError] codes are
// retryable. A credential problem anywhere in the chain is not.
func IsRetryable(err error) bool {
	var aerr *AuthenticationError
	if errors.As(err, &aerr) {
		return false
	}
	var rerr *RemoteAgentError
	if errors.As(err, &rerr) {
		return rerr.Transient()
	}
	var cerr *ConnectionError
	return errors.As(err, &cerr)
}

// IsCredentialProblem reports whether the caller should fix its credentials rather than retry.
func IsCredentialProblem(err error) bool {
	var aerr *AuthenticationError
	if errors.As(err, &aerr) {
		return true
	}
	return IsRemoteCode(err, CodeAuthentication) || IsRemoteCode(err, CodeAuthorization)
}
