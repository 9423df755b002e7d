// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/r3labs/sse/v2"
	"go.opentelemetry.io/otel/attribute"

	"github.com/agentvault/a2a"
	"github.com/agentvault/a2a/internal/telemetry"
)

// ErrStreamClosed is returned by [Stream.Next] after [Stream.Close].
var ErrStreamClosed = errors.New("transport: stream closed")

// Stream is an open Server-Sent-Events subscription.
//
// Next must be called from a single goroutine. Close may be called from any goroutine and
// unblocks a pending Next.
type Stream struct {
	method string
	url    string
	body   io.ReadCloser
	reader *sse.EventStreamReader

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// OpenStream posts a streaming call and waits for the handshake.
//
// The handshake must answer 200 with a text/event-stream body. Anything else fails with a
// [*a2a.ConnectionError] carrying the HTTP status. When the rejected response carries a JSON-RPC
// error body, the [*a2a.RemoteAgentError] is the wrapped cause; a 401 or 403 without one wraps an
// [*a2a.AuthenticationError].
//
// The stream is bound to ctx: cancelling ctx ends it.
func (t *Transport) OpenStream(ctx context.Context, method string, params any, headers http.Header) (_ *Stream, err error) {
	if info, ok := a2a.LookupMethod(method); ok && !info.Streaming {
		return nil, a2a.NewMalformedError(fmt.Sprintf("%s is not a streaming method", method), nil)
	}
	body, err := a2a.EncodeRequest(method, params, a2a.NewRequestID())
	if err != nil {
		return nil, err
	}

	spanCtx, span := telemetry.StartSpan(ctx, "a2a.OpenStream",
		attribute.String("rpc.method", method),
		attribute.String("server.address", t.url),
	)
	defer func() {
		telemetry.StreamOpened(spanCtx, method, err)
		telemetry.EndSpan(span, err)
	}()

	req, err := t.newRequest(ctx, body, headers, a2a.ContentTypeEventStream)
	if err != nil {
		return nil, err
	}
	resp, err := t.invoke(ctx, req)
	if err != nil {
		return nil, t.connError(method, err, 0)
	}

	if resp.StatusCode != http.StatusOK || !isEventStream(resp.Header.Get("Content-Type")) {
		return nil, t.handshakeError(method, resp)
	}

	t.logger.DebugContext(ctx, "a2a stream opened", slog.String("method", method), slog.String("url", t.url))

	return &Stream{
		method: method,
		url:    t.url,
		body:   resp.Body,
		reader: sse.NewEventStreamReader(resp.Body, t.maxFrameSize),
	}, nil
}

func (t *Transport) handshakeError(method string, resp *http.Response) error {
	body := readErrorBody(resp)
	cerr := &a2a.ConnectionError{Op: method, URL: t.url, StatusCode: resp.StatusCode}

	_, err := a2a.DecodeResponse(body)
	var rerr *a2a.RemoteAgentError
	switch {
	case errors.As(err, &rerr):
		rerr.StatusCode = resp.StatusCode
		cerr.Err = rerr
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		cerr.Err = &a2a.AuthenticationError{
			Kind:       a2a.AuthInvalidCredential,
			StatusCode: resp.StatusCode,
			Err:        bodyError(body),
		}
	case resp.StatusCode == http.StatusOK:
		cerr.Err = fmt.Errorf("unexpected content type %q", resp.Header.Get("Content-Type"))
	default:
		cerr.Err = bodyError(body)
	}
	return cerr
}

// Next returns the next event.
//
// Keep-alive frames are skipped. A frame that cannot be decoded returns a [*a2a.ProtocolError]
// and the stream stays usable. A clean end of stream returns [io.EOF]; a broken connection
// returns a [*a2a.ConnectionError].
func (s *Stream) Next() (a2a.Event, error) {
	for {
		frame, err := s.reader.ReadEvent()
		if err != nil {
			if s.closed.Load() {
				return nil, ErrStreamClosed
			}
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, &a2a.ConnectionError{Op: "read " + s.method, URL: s.url, Err: err}
		}

		ev, err := a2a.DecodeSSEEvent(frame)
		if errors.Is(err, a2a.ErrEmptyFrame) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return ev, nil
	}
}

// Close releases the connection. It is safe to call more than once.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}
