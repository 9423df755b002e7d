// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package client talks to remote A2A agents.
//
// A [Client] owns one [auth.Authenticator] (and so one OAuth2 token cache), one
// [transport.Transport] per agent endpoint and one [event.Dispatcher]. Every call resolves the
// agent's preferred auth scheme, asks the authenticator for headers and only then touches the
// network: a failed token exchange never reaches the agent.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-json-experiment/json"

	"github.com/agentvault/a2a"
	"github.com/agentvault/a2a/auth"
	"github.com/agentvault/a2a/event"
	"github.com/agentvault/a2a/transport"
)

// DefaultTimeout bounds every unary call that does not set its own deadline.
const DefaultTimeout = 30 * time.Second

// ErrClosed is returned by calls made after [Client.Close].
var ErrClosed = errors.New("client: closed")

// Client is an A2A client. It is safe for concurrent use.
type Client struct {
	logger       *slog.Logger
	httpClient   *http.Client
	resolver     auth.Resolver
	authOpts     []auth.Option
	eventOpts    []event.Option
	interceptors []transport.Interceptor
	timeout      time.Duration

	auth       *auth.Authenticator
	dispatcher *event.Dispatcher

	mu         sync.Mutex
	transports map[string]*transport.Transport
	closed     bool
}

// Option configures a [Client].
type Option func(*Client)

// WithHTTPClient sets the [*http.Client] used for agent calls and token exchanges.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the [*slog.Logger] for the [Client] and the components it creates.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithResolver sets where credentials are looked up.
func WithResolver(r auth.Resolver) Option {
	return func(c *Client) {
		c.resolver = r
	}
}

// WithBearerToken configures an out-of-band token for the bearer scheme of serviceID.
func WithBearerToken(serviceID, token string) Option {
	return func(c *Client) {
		c.authOpts = append(c.authOpts, auth.WithBearerToken(serviceID, token))
	}
}

// WithAuthOptions passes opts to the [auth.Authenticator].
func WithAuthOptions(opts ...auth.Option) Option {
	return func(c *Client) {
		c.authOpts = append(c.authOpts, opts...)
	}
}

// WithEventOptions passes opts to the [event.Dispatcher].
func WithEventOptions(opts ...event.Option) Option {
	return func(c *Client) {
		c.eventOpts = append(c.eventOpts, opts...)
	}
}

// WithInterceptors adds interceptors to every agent transport.
func WithInterceptors(interceptors ...transport.Interceptor) Option {
	return func(c *Client) {
		c.interceptors = append(c.interceptors, interceptors...)
	}
}

// WithTimeout sets the default deadline of unary calls. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// New returns a [Client].
func New(opts ...Option) (*Client, error) {
	c := &Client{
		logger:     slog.New(slog.DiscardHandler),
		httpClient: http.DefaultClient,
		timeout:    DefaultTimeout,
		transports: make(map[string]*transport.Transport),
	}
	for _, o := range opts {
		o(c)
	}

	authOpts := append([]auth.Option{
		auth.WithHTTPClient(c.httpClient),
		auth.WithLogger(c.logger),
	}, c.authOpts...)
	authn, err := auth.New(c.resolver, authOpts...)
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}
	c.auth = authn

	eventOpts := append([]event.Option{event.WithLogger(c.logger)}, c.eventOpts...)
	c.dispatcher = event.New(event.OpenerFunc(c.openStream), eventOpts...)

	return c, nil
}

// Authenticator returns the authenticator shared by every call of c.
func (c *Client) Authenticator() *auth.Authenticator {
	return c.auth
}

// Close ends every subscription. Calls made afterwards fail with [ErrClosed].
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	clear(c.transports)
	c.mu.Unlock()

	return c.dispatcher.Close()
}

// transport returns the transport of agent's endpoint, creating it on first use.
func (c *Client) transport(agent *a2a.AgentCard) (*transport.Transport, error) {
	if err := agent.Validate(); err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if tr, ok := c.transports[agent.URL]; ok {
		return tr, nil
	}
	tr, err := transport.New(agent.URL,
		transport.WithHTTPClient(c.httpClient),
		transport.WithLogger(c.logger),
		transport.WithInterceptors(c.interceptors...),
		transport.WithDefaultTimeout(c.timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}
	c.transports[agent.URL] = tr
	return tr, nil
}

// prepare resolves the transport, the auth scheme and the auth headers for a call to agent.
func (c *Client) prepare(ctx context.Context, agent *a2a.AgentCard) (*transport.Transport, a2a.AuthScheme, http.Header, error) {
	tr, err := c.transport(agent)
	if err != nil {
		return nil, a2a.AuthScheme{}, nil, err
	}
	scheme := agent.PreferredAuthScheme(func(s a2a.AuthScheme) bool {
		return c.auth.CanSatisfy(ctx, s)
	})
	headers, err := c.auth.Headers(ctx, scheme)
	if err != nil {
		return nil, scheme, nil, err
	}
	return tr, scheme, headers, nil
}

// call performs one unary request and decodes its result into result.
func (c *Client) call(ctx context.Context, agent *a2a.AgentCard, method string, params, result any) error {
	tr, scheme, headers, err := c.prepare(ctx, agent)
	if err != nil {
		return err
	}
	raw, err := tr.SendUnary(ctx, method, params, headers)
	if err != nil {
		return c.rejected(scheme, err)
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return a2a.NewMalformedError("decode "+method+" result", err)
	}
	return nil
}

// openStream implements [event.Opener] for the client's dispatcher.
func (c *Client) openStream(ctx context.Context, agent *a2a.AgentCard, method, taskID string) (event.Stream, error) {
	tr, scheme, headers, err := c.prepare(ctx, agent)
	if err != nil {
		return nil, err
	}
	s, err := tr.OpenStream(ctx, method, a2a.TaskIDParams{ID: taskID}, headers)
	if err != nil {
		return nil, c.rejected(scheme, err)
	}
	return s, nil
}

// rejected tags a credential rejection with the service identifier of scheme. A rejected
// OAuth2 token is dropped from the cache so the next call exchanges a fresh one.
func (c *Client) rejected(scheme a2a.AuthScheme, err error) error {
	var aerr *a2a.AuthenticationError
	if errors.As(err, &aerr) && aerr.ServiceID == "" {
		aerr.ServiceID = scheme.ServiceIdentifier
	}
	if scheme.Scheme == a2a.AuthSchemeOAuth2 && a2a.IsCredentialProblem(err) {
		c.logger.Warn("a2a agent rejected oauth2 token; dropping it from the cache",
			slog.String("service", scheme.ServiceIdentifier),
			slog.Any("error", err),
		)
		c.auth.Invalidate(scheme.ServiceIdentifier)
	}
	return err
}
