// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package a2a

import (
	"bytes"
	"fmt"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
)

var nullValue = jsontext.Value("null")

// EncodeRequest encodes a JSON-RPC request for a registered method.
//
// An unregistered method fails with a [*ProtocolError] of kind [ProtocolUnknownMethod]
// before anything is sent. A nil params omits the "params" member.
func EncodeRequest(method string, params any, id string) ([]byte, error) {
	if _, ok := LookupMethod(method); !ok {
		return nil, &ProtocolError{Kind: ProtocolUnknownMethod, Detail: method}
	}
	if id == "" {
		return nil, malformed("empty request id", nil)
	}
	rawID, err := json.Marshal(id)
	if err != nil {
		return nil, malformed("encode id", err)
	}
	req := Request{
		JSONRPC: JSONRPCVersion,
		Method:  method,
		ID:      rawID,
	}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, malformed("encode params", err)
		}
		req.Params = raw
	}
	return json.Marshal(req)
}

// DecodeRequest decodes a JSON-RPC request envelope. It does not consult the method registry.
func DecodeRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, malformed("decode request", err)
	}
	if req.JSONRPC != JSONRPCVersion {
		return nil, malformed(fmt.Sprintf("jsonrpc version %q", req.JSONRPC), nil)
	}
	if req.Method == "" {
		return nil, malformed("request has no method", nil)
	}
	return &req, nil
}

// DecodeResponse decodes a JSON-RPC response envelope.
//
// It fails with a [*ProtocolError] of kind [ProtocolMalformed] when "jsonrpc" is not "2.0" or when
// "result" and "error" are both absent or both present. An "error" member yields a [*RemoteAgentError].
func DecodeResponse(data []byte) (*Response, error) {
	var env map[string]jsontext.Value
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, malformed("decode response", err)
	}

	var version string
	if raw, ok := env["jsonrpc"]; ok {
		if err := json.Unmarshal(raw, &version); err != nil {
			return nil, malformed("decode jsonrpc member", err)
		}
	}
	if version != JSONRPCVersion {
		return nil, malformed(fmt.Sprintf("jsonrpc version %q", version), nil)
	}

	result, hasResult := env["result"]
	rawErr, hasErr := env["error"]
	switch {
	case hasResult && hasErr:
		return nil, malformed("response has both result and error", nil)
	case !hasResult && !hasErr:
		return nil, malformed("response has neither result nor error", nil)
	case hasErr:
		var obj ErrorObject
		if err := json.Unmarshal(rawErr, &obj); err != nil {
			return nil, malformed("decode error member", err)
		}
		return nil, &RemoteAgentError{Code: obj.Code, Message: obj.Message, Data: obj.Data}
	}

	return &Response{ID: env["id"], Result: result}, nil
}

type wireResponse struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      jsontext.Value `json:"id"`
	Result  jsontext.Value `json:"result,omitzero"`
	Error   *ErrorObject   `json:"error,omitzero"`
}

// EncodeResponse encodes a successful JSON-RPC response. A nil result encodes as null.
func EncodeResponse(id jsontext.Value, result any) ([]byte, error) {
	raw := nullValue
	if result != nil {
		var err error
		if raw, err = json.Marshal(result); err != nil {
			return nil, fmt.Errorf("encode result: %w", err)
		}
	}
	return json.Marshal(wireResponse{JSONRPC: JSONRPCVersion, ID: idOrNull(id), Result: raw})
}

// EncodeErrorResponse encodes a JSON-RPC error response.
func EncodeErrorResponse(id jsontext.Value, obj *ErrorObject) ([]byte, error) {
	return json.Marshal(wireResponse{JSONRPC: JSONRPCVersion, ID: idOrNull(id), Error: obj})
}

func idOrNull(id jsontext.Value) jsontext.Value {
	if len(id) == 0 {
		return nullValue
	}
	return id
}

// parseSSEFrame extracts the event name and the joined data lines of one frame.
// ok is false when the frame holds no event or data field.
func parseSSEFrame(frame []byte) (name string, data []byte, ok bool) {
	var lines [][]byte
	for line := range bytes.Lines(frame) {
		line = bytes.TrimRight(line, "\r\n")
		if len(line) == 0 || line[0] == ':' {
			continue
		}
		field, value, _ := bytes.Cut(line, []byte(":"))
		value = bytes.TrimPrefix(value, []byte(" "))
		switch string(field) {
		case "event":
			name = string(value)
			ok = true
		case "data":
			lines = append(lines, value)
			ok = true
		}
	}
	return name, bytes.Join(lines, []byte("\n")), ok
}

type eventPayload[T any] interface {
	*T
	Event
	validate() error
}

func decodeEvent[T any, P eventPayload[T]](name string, data []byte) (Event, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, malformed(fmt.Sprintf("decode %s event", name), err)
	}
	ev := P(&v)
	if err := ev.validate(); err != nil {
		return nil, malformed(fmt.Sprintf("invalid %s event", name), err)
	}
	return ev, nil
}

// DecodeSSEEvent decodes one Server-Sent-Event frame into an [Event].
//
// Unknown event names produce a [*StreamError] event rather than an error so that one
// misbehaving event does not end a subscription. A payload that is not valid JSON for its
// event fails with a [*ProtocolError]. A frame without fields returns [ErrEmptyFrame].
func DecodeSSEEvent(frame []byte) (Event, error) {
	name, data, ok := parseSSEFrame(frame)
	if !ok {
		return nil, ErrEmptyFrame
	}

	switch EventKind(name) {
	case EventKindStatus:
		return decodeEvent[TaskStatusUpdate](name, data)
	case EventKindMessage:
		return decodeEvent[TaskMessageEvent](name, data)
	case EventKindArtifact:
		return decodeEvent[TaskArtifactEvent](name, data)
	case EventKindError:
		var se StreamError
		if err := json.Unmarshal(data, &se); err != nil {
			return nil, malformed("decode error event", err)
		}
		return &se, nil
	default:
		return &StreamError{
			Code:    StreamCodeUnknownEvent,
			Message: fmt.Sprintf("unknown event type %q", name),
			Data:    string(data),
		}, nil
	}
}

// EncodeSSEEvent encodes ev as one Server-Sent-Event frame, including the terminating blank line.
func EncodeSSEEvent(ev Event) ([]byte, error) {
	if ev == nil {
		return nil, fmt.Errorf("encode sse event: nil event")
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", ev.Kind(), err)
	}
	var buf bytes.Buffer
	buf.Grow(len(data) + 32)
	buf.WriteString("event: ")
	buf.WriteString(string(ev.Kind()))
	buf.WriteString("\ndata: ")
	buf.Write(data)
	buf.WriteString("\n\n")
	return buf.Bytes(), nil
}
