// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package auth turns an agent's declared [a2a.AuthScheme] into request headers.
//
// Credentials come from a [Resolver]. OAuth2 access tokens obtained with the client-credentials
// grant are cached per service identifier until [SafetyMargin] before they expire.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/agentvault/a2a"
	"github.com/agentvault/a2a/internal/telemetry"
)

// Authenticator produces the authentication headers for a request.
//
// It is safe for concurrent use. Concurrent refreshes for the same service may both perform a
// token exchange; the last one to finish wins the cache slot.
type Authenticator struct {
	resolver   Resolver
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
	cacheSize  int

	tokens *lru.Cache[string, cachedToken]

	mu     sync.RWMutex
	bearer map[string]string
}

// Option configures an [Authenticator].
type Option func(*Authenticator)

// WithHTTPClient sets the [*http.Client] used for token exchanges.
func WithHTTPClient(hc *http.Client) Option {
	return func(a *Authenticator) {
		a.httpClient = hc
	}
}

// WithLogger sets the [*slog.Logger] for the [Authenticator].
func WithLogger(logger *slog.Logger) Option {
	return func(a *Authenticator) {
		a.logger = logger
	}
}

// WithClock replaces [time.Now] for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) {
		a.now = now
	}
}

// WithCacheSize bounds the number of cached OAuth2 tokens.
func WithCacheSize(n int) Option {
	return func(a *Authenticator) {
		a.cacheSize = n
	}
}

// WithBearerToken configures an out-of-band token for the bearer scheme of serviceID.
// An empty serviceID matches bearer schemes that declare no service identifier.
func WithBearerToken(serviceID, token string) Option {
	return func(a *Authenticator) {
		a.bearer[serviceID] = token
	}
}

// New returns an [Authenticator] backed by resolver. A nil resolver resolves nothing.
func New(resolver Resolver, opts ...Option) (*Authenticator, error) {
	if resolver == nil {
		resolver = &StaticResolver{}
	}
	a := &Authenticator{
		resolver:   resolver,
		httpClient: http.DefaultClient,
		logger:     slog.New(slog.DiscardHandler),
		now:        time.Now,
		cacheSize:  DefaultCacheSize,
		bearer:     make(map[string]string),
	}
	for _, o := range opts {
		o(a)
	}

	tokens, err := lru.New[string, cachedToken](a.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create token cache: %w", err)
	}
	a.tokens = tokens

	return a, nil
}

// SetBearerToken replaces the out-of-band bearer token for serviceID.
func (a *Authenticator) SetBearerToken(serviceID, token string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.bearer[serviceID] = token
}

// Invalidate drops the cached OAuth2 token of serviceID, forcing the next call to exchange again.
func (a *Authenticator) Invalidate(serviceID string) {
	a.tokens.Remove(serviceID)
}

// Headers returns the headers that authenticate a request under scheme.
//
// Missing credentials fail with an [*a2a.AuthenticationError] of kind
// [a2a.AuthMissingCredential]. A failed OAuth2 exchange fails with kind
// [a2a.AuthTokenExchangeFailed] and is not retried.
func (a *Authenticator) Headers(ctx context.Context, scheme a2a.AuthScheme) (http.Header, error) {
	h := make(http.Header)

	switch scheme.Scheme {
	case "", a2a.AuthSchemeNone:
		return h, nil

	case a2a.AuthSchemeAPIKey:
		key, ok := a.resolver.ResolveAPIKey(ctx, scheme.ServiceIdentifier)
		if !ok {
			return nil, missing(scheme.ServiceIdentifier, "no api key configured")
		}
		h.Set(a2a.HeaderAPIKey, key)
		return h, nil

	case a2a.AuthSchemeOAuth2:
		tok, err := a.oauthToken(ctx, scheme)
		if err != nil {
			return nil, err
		}
		h.Set(a2a.HeaderAuthorization, "Bearer "+tok)
		return h, nil

	case a2a.AuthSchemeBearer:
		tok, err := a.bearerToken(ctx, scheme.ServiceIdentifier)
		if err != nil {
			return nil, err
		}
		h.Set(a2a.HeaderAuthorization, "Bearer "+tok)
		return h, nil

	default:
		return nil, fmt.Errorf("auth: unsupported scheme %q", scheme.Scheme)
	}
}

// CanSatisfy reports whether credentials for scheme are configured. It performs no network I/O.
func (a *Authenticator) CanSatisfy(ctx context.Context, scheme a2a.AuthScheme) bool {
	switch scheme.Scheme {
	case "", a2a.AuthSchemeNone:
		return true
	case a2a.AuthSchemeAPIKey:
		_, ok := a.resolver.ResolveAPIKey(ctx, scheme.ServiceIdentifier)
		return ok
	case a2a.AuthSchemeOAuth2:
		creds, ok := a.resolver.ResolveOAuthCredentials(ctx, scheme.ServiceIdentifier)
		return ok && creds.complete()
	case a2a.AuthSchemeBearer:
		_, ok := a.lookupBearer(ctx, scheme.ServiceIdentifier)
		return ok
	}
	return false
}

func missing(serviceID, detail string) *a2a.AuthenticationError {
	return &a2a.AuthenticationError{
		Kind:      a2a.AuthMissingCredential,
		ServiceID: serviceID,
		Err:       errors.New(detail),
	}
}

func (a *Authenticator) lookupBearer(ctx context.Context, serviceID string) (string, bool) {
	a.mu.RLock()
	tok, ok := a.bearer[serviceID]
	a.mu.RUnlock()
	if ok && tok != "" {
		return tok, true
	}
	if br, ok := a.resolver.(BearerResolver); ok {
		return br.ResolveBearerToken(ctx, serviceID)
	}
	return "", false
}

func (a *Authenticator) bearerToken(ctx context.Context, serviceID string) (string, error) {
	tok, ok := a.lookupBearer(ctx, serviceID)
	if !ok {
		return "", missing(serviceID, "no bearer token configured")
	}
	if exp, ok := jwtExpiry(tok); ok && !a.now().Before(exp) {
		return "", &a2a.AuthenticationError{
			Kind:      a2a.AuthInvalidCredential,
			ServiceID: serviceID,
			Err:       fmt.Errorf("bearer token expired at %s", exp.Format(time.RFC3339)),
		}
	}
	return tok, nil
}

func (a *Authenticator) oauthToken(ctx context.Context, scheme a2a.AuthScheme) (string, error) {
	id := scheme.ServiceIdentifier

	creds, ok := a.resolver.ResolveOAuthCredentials(ctx, id)
	if !ok || !creds.complete() {
		return "", missing(id, "no oauth2 client credentials configured")
	}

	if cached, ok := a.tokens.Get(id); ok && cached.usable(a.now()) {
		return cached.AccessToken, nil
	}

	tok, err := a.exchange(ctx, scheme, creds)
	telemetry.TokenExchanged(ctx, err)
	if err != nil {
		a.logger.WarnContext(ctx, "oauth2 token exchange failed",
			slog.String("service_id", id),
			slog.String("token_url", scheme.TokenURL),
			slog.Any("error", err),
		)
		return "", err
	}
	a.tokens.Add(id, tok)
	a.logger.DebugContext(ctx, "oauth2 token cached",
		slog.String("service_id", id),
		slog.Time("expires_at", tok.ExpiresAt),
	)
	return tok.AccessToken, nil
}

// exchange performs one client-credentials grant against scheme.TokenURL.
func (a *Authenticator) exchange(ctx context.Context, scheme a2a.AuthScheme, creds OAuthCredentials) (cachedToken, error) {
	fail := func(status int, err error) (cachedToken, error) {
		return cachedToken{}, &a2a.AuthenticationError{
			Kind:       a2a.AuthTokenExchangeFailed,
			ServiceID:  scheme.ServiceIdentifier,
			StatusCode: status,
			Err:        err,
		}
	}

	cfg := clientcredentials.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     scheme.TokenURL,
		Scopes:       scheme.Scopes,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	tok, err := cfg.Token(context.WithValue(ctx, oauth2.HTTPClient, a.httpClient))
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) && rerr.Response != nil {
			return fail(rerr.Response.StatusCode, err)
		}
		return fail(0, err)
	}
	if !strings.EqualFold(tok.Type(), "Bearer") {
		return fail(0, fmt.Errorf("unsupported token_type %q", tok.TokenType))
	}

	now := a.now()
	var expiresAt time.Time
	switch {
	case !tok.Expiry.IsZero():
		// Expiry is computed by the oauth2 package against the wall clock.
		expiresAt = now.Add(time.Until(tok.Expiry))
	default:
		if exp, ok := jwtExpiry(tok.AccessToken); ok {
			expiresAt = exp
		} else {
			expiresAt = now.Add(DefaultTokenLifetime)
		}
	}

	return cachedToken{AccessToken: tok.AccessToken, ExpiresAt: expiresAt}, nil
}
