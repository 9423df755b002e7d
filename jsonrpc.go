// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package a2a

import (
	"github.com/go-json-experiment/json/jsontext"
	"github.com/google/uuid"
)

// JSONRPCVersion is the only accepted value of the "jsonrpc" envelope member.
const JSONRPCVersion = "2.0"

// A2A RPC method names.
const (
	// MethodTasksSend creates a task, or continues it when params carry an id.
	MethodTasksSend = "tasks/send"
	// MethodTasksGet fetches the current task.
	MethodTasksGet = "tasks/get"
	// MethodTasksCancel asks the agent to stop work on a task.
	MethodTasksCancel = "tasks/cancel"
	// MethodTasksSendSubscribe opens the event stream of a task.
	MethodTasksSendSubscribe = "tasks/sendSubscribe"
	// MethodTasksResubscribe reopens the event stream of a task after a drop.
	MethodTasksResubscribe = "tasks/resubscribe"
)

// MethodInfo describes a registered method.
type MethodInfo struct {
	Name string
	// Streaming methods answer with a text/event-stream body instead of a JSON-RPC result.
	Streaming bool
}

var methods = map[string]MethodInfo{
	MethodTasksSend:          {Name: MethodTasksSend},
	MethodTasksGet:           {Name: MethodTasksGet},
	MethodTasksCancel:        {Name: MethodTasksCancel},
	MethodTasksSendSubscribe: {Name: MethodTasksSendSubscribe, Streaming: true},
	MethodTasksResubscribe:   {Name: MethodTasksResubscribe, Streaming: true},
}

// LookupMethod returns the registry entry for name.
func LookupMethod(name string) (MethodInfo, bool) {
	m, ok := methods[name]
	return m, ok
}

// Standard JSON-RPC 2.0 error codes.
const (
	// CodeParseError is returned when the server could not parse the request (-32700).
	CodeParseError = -32700
	// CodeInvalidRequest is returned when the request is not a valid envelope (-32600).
	CodeInvalidRequest = -32600
	// CodeMethodNotFound is returned when the method does not exist (-32601).
	CodeMethodNotFound = -32601
	// CodeInvalidParams is returned when the params are invalid (-32602).
	CodeInvalidParams = -32602
	// CodeInternalError is returned on an internal server error (-32603).
	CodeInternalError = -32603
)

// A2A application error codes.
const (
	// CodeAgentError is a generic, possibly transient, agent error (-32000).
	CodeAgentError = -32000
	// CodeTaskNotFound is returned when the task id is unknown (-32001).
	CodeTaskNotFound = -32001
	// CodeAuthentication is returned when the request carries no valid credential (-32002).
	CodeAuthentication = -32002
	// CodeAuthorization is returned when the credential is not allowed to act on the task (-32003).
	CodeAuthorization = -32003
	// CodeInvalidStateTransition is returned when the task cannot move to the requested state (-32004).
	CodeInvalidStateTransition = -32004
)

// Request is a JSON-RPC 2.0 request envelope.
type Request struct {
	JSONRPC string         `json:"jsonrpc"`
	Method  string         `json:"method"`
	Params  jsontext.Value `json:"params,omitzero"`
	ID      jsontext.Value `json:"id,omitzero"`
}

// Response is a decoded successful JSON-RPC 2.0 response.
type Response struct {
	ID     jsontext.Value
	Result jsontext.Value
}

// ErrorObject is the JSON-RPC 2.0 error member.
type ErrorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitzero"`
}

// NewRequestID returns a fresh request id, unique per in-flight request.
func NewRequestID() string {
	return uuid.NewString()
}
