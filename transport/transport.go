// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport performs A2A JSON-RPC exchanges over HTTP.
//
// A [Transport] is bound to one agent endpoint. [Transport.SendUnary] performs a single
// request/response call and [Transport.OpenStream] opens a Server-Sent-Events subscription.
// Every failure is returned as one of the typed errors of package a2a; no call is retried.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/go-json-experiment/json/jsontext"
	"go.opentelemetry.io/otel/attribute"

	"github.com/agentvault/a2a"
	"github.com/agentvault/a2a/internal/pool"
	"github.com/agentvault/a2a/internal/telemetry"
)

// DefaultMaxFrameSize bounds one SSE frame.
const DefaultMaxFrameSize = 1 << 20

// DefaultMaxResponseSize bounds the body of one unary response.
const DefaultMaxResponseSize = 8 << 20

// maxErrorBody bounds how much of an unexpected response body is kept in an error.
const maxErrorBody = 512

// Transport sends JSON-RPC calls to one agent endpoint. It is safe for concurrent use.
type Transport struct {
	url          string
	httpClient   *http.Client
	logger       *slog.Logger
	interceptors []Interceptor
	timeout      time.Duration
	maxFrameSize int
	maxBodySize  int64

	invoke Invoker
}

// Option configures a [Transport].
type Option func(*Transport)

// WithHTTPClient sets the [*http.Client] used for every call.
func WithHTTPClient(hc *http.Client) Option {
	return func(t *Transport) {
		t.httpClient = hc
	}
}

// WithLogger sets the [*slog.Logger] for the [Transport].
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) {
		t.logger = logger
	}
}

// WithInterceptors appends interceptors to the round trip chain.
func WithInterceptors(interceptors ...Interceptor) Option {
	return func(t *Transport) {
		t.interceptors = append(t.interceptors, interceptors...)
	}
}

// WithDefaultTimeout bounds every unary call that does not pass [WithTimeout]. Zero means no bound.
func WithDefaultTimeout(d time.Duration) Option {
	return func(t *Transport) {
		t.timeout = d
	}
}

// WithMaxFrameSize bounds one SSE frame. Larger frames end the stream with a [*a2a.ConnectionError].
func WithMaxFrameSize(n int) Option {
	return func(t *Transport) {
		t.maxFrameSize = n
	}
}

// WithMaxResponseSize bounds the body of one unary response. Larger bodies fail the call with
// a [*a2a.ProtocolError].
func WithMaxResponseSize(n int64) Option {
	return func(t *Transport) {
		t.maxBodySize = n
	}
}

// New returns a [Transport] for the agent endpoint rawURL.
func New(rawURL string, opts ...Option) (*Transport, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse agent url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("agent url %q: scheme must be http or https", rawURL)
	}

	t := &Transport{
		url:          u.String(),
		httpClient:   http.DefaultClient,
		logger:       slog.New(slog.DiscardHandler),
		maxFrameSize: DefaultMaxFrameSize,
		maxBodySize:  DefaultMaxResponseSize,
	}
	for _, o := range opts {
		o(t)
	}
	t.invoke = chainInterceptors(t.interceptors, func(_ context.Context, req *http.Request) (*http.Response, error) {
		return t.httpClient.Do(req)
	})

	return t, nil
}

// URL returns the agent endpoint.
func (t *Transport) URL() string {
	return t.url
}

// CallOption configures one call.
type CallOption func(*callOptions)

type callOptions struct {
	timeout time.Duration
	id      string
}

// WithTimeout bounds one unary call. Exceeding it fails with a [*a2a.TimeoutError].
func WithTimeout(d time.Duration) CallOption {
	return func(o *callOptions) {
		o.timeout = d
	}
}

// WithRequestID sets the JSON-RPC request id instead of a generated one.
func WithRequestID(id string) CallOption {
	return func(o *callOptions) {
		o.id = id
	}
}

func (t *Transport) callOptions(opts []CallOption) callOptions {
	co := callOptions{timeout: t.timeout}
	for _, o := range opts {
		o(&co)
	}
	if co.id == "" {
		co.id = a2a.NewRequestID()
	}
	return co
}

// SendUnary performs one JSON-RPC call and returns the raw "result" member.
//
// Errors:
//   - [*a2a.ProtocolError] for an unknown or streaming method, or a malformed 2xx body.
//   - [*a2a.ConnectionError] for network failures and unexpected HTTP statuses.
//   - [*a2a.TimeoutError] when the call deadline passes.
//   - [*a2a.RemoteAgentError] when the body carries a JSON-RPC error, whatever the HTTP status.
//   - [*a2a.AuthenticationError] of kind [a2a.AuthInvalidCredential] for 401 and 403
//     responses without a JSON-RPC error body.
func (t *Transport) SendUnary(ctx context.Context, method string, params any, headers http.Header, opts ...CallOption) (result jsontext.Value, err error) {
	if info, ok := a2a.LookupMethod(method); ok && info.Streaming {
		return nil, a2a.NewMalformedError(fmt.Sprintf("%s answers with a stream", method), nil)
	}
	co := t.callOptions(opts)
	body, err := a2a.EncodeRequest(method, params, co.id)
	if err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartSpan(ctx, "a2a.SendUnary",
		attribute.String("rpc.method", method),
		attribute.String("server.address", t.url),
	)
	start := time.Now()
	defer func() {
		telemetry.RecordRPC(ctx, method, time.Since(start), err)
		telemetry.EndSpan(span, err)
	}()

	if co.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, co.timeout)
		defer cancel()
	}

	req, err := t.newRequest(ctx, body, headers, a2a.ContentTypeJSON)
	if err != nil {
		return nil, err
	}
	resp, err := t.invoke(ctx, req)
	if err != nil {
		return nil, t.connError(method, err, co.timeout)
	}
	defer resp.Body.Close()

	buf := pool.Bytes.Get()
	defer pool.Bytes.Put(buf)
	n, err := buf.ReadFrom(io.LimitReader(resp.Body, t.maxBodySize+1))
	if err != nil {
		return nil, t.connError(method, err, co.timeout)
	}
	if n > t.maxBodySize {
		return nil, a2a.NewMalformedError(fmt.Sprintf("%s response exceeds %d bytes", method, t.maxBodySize), nil)
	}

	return t.decodeUnary(method, resp.StatusCode, buf.Bytes())
}

func (t *Transport) decodeUnary(method string, status int, body []byte) (jsontext.Value, error) {
	r, err := a2a.DecodeResponse(body)
	var rerr *a2a.RemoteAgentError
	if errors.As(err, &rerr) {
		rerr.StatusCode = status
		return nil, rerr
	}

	if status < 200 || status > 299 {
		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			return nil, &a2a.AuthenticationError{
				Kind:       a2a.AuthInvalidCredential,
				StatusCode: status,
				Err:        bodyError(body),
			}
		}
		return nil, &a2a.ConnectionError{Op: method, URL: t.url, StatusCode: status, Err: bodyError(body)}
	}
	if err != nil {
		return nil, err
	}

	// The body buffer goes back to the pool.
	return bytes.Clone(r.Result), nil
}

func (t *Transport) newRequest(ctx context.Context, body []byte, headers http.Header, accept string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return nil, &a2a.ConnectionError{Op: "build request", URL: t.url, Err: err}
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", a2a.ContentTypeJSON)
	req.Header.Set("Accept", accept)
	return req, nil
}

// connError wraps a transport-level failure, promoting deadline errors to [*a2a.TimeoutError].
func (t *Transport) connError(op string, err error, timeout time.Duration) error {
	cerr := &a2a.ConnectionError{Op: op, URL: t.url, Err: err}
	var nerr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &nerr) && nerr.Timeout()) {
		return &a2a.TimeoutError{Conn: cerr, After: timeout}
	}
	return cerr
}

// bodyError summarizes an unexpected response body.
func bodyError(body []byte) error {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return errors.New("empty response body")
	}
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return fmt.Errorf("response body: %q", body)
}

func isEventStream(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && mt == a2a.ContentTypeEventStream
}

// readErrorBody reads at most maxErrorBody bytes from an unexpected response and closes it.
func readErrorBody(resp *http.Response) []byte {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return body
}
