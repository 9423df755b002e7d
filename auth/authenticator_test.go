// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package auth_test

import (
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	gocmp "github.com/google/go-cmp/cmp"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwt"

	"github.com/agentvault/a2a"
	"github.com/agentvault/a2a/a2atest"
	"github.com/agentvault/a2a/auth"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{t: time.Now()} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func signedJWT(t *testing.T, exp time.Time) string {
	t.Helper()

	tok, err := jwt.NewBuilder().Subject("svc").Expiration(exp).Build()
	if err != nil {
		t.Fatal(err)
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256(), []byte("test-secret")))
	if err != nil {
		t.Fatal(err)
	}
	return string(signed)
}

func oauthScheme(tokenURL string) a2a.AuthScheme {
	return a2a.AuthScheme{
		Scheme:            a2a.AuthSchemeOAuth2,
		ServiceIdentifier: "billing",
		TokenURL:          tokenURL,
		Scopes:            []string{"tasks.read", "tasks.write"},
	}
}

var billingCreds = &auth.StaticResolver{
	OAuth: map[string]auth.OAuthCredentials{
		"billing": {ClientID: "billing-client", ClientSecret: "s3cret"},
	},
}

func TestHeadersStaticSchemes(t *testing.T) {
	t.Parallel()

	resolver := &auth.StaticResolver{
		APIKeys:      map[string]string{"weather": "sk-123"},
		BearerTokens: map[string]string{"search": "resolved-token"},
	}

	tests := map[string]struct {
		opts      []auth.Option
		scheme    a2a.AuthScheme
		want      http.Header
		wantErrIs error
	}{
		"none": {
			scheme: a2a.AuthScheme{Scheme: a2a.AuthSchemeNone},
			want:   http.Header{},
		},
		"zero scheme": {
			scheme: a2a.AuthScheme{},
			want:   http.Header{},
		},
		"api key": {
			scheme: a2a.AuthScheme{Scheme: a2a.AuthSchemeAPIKey, ServiceIdentifier: "weather"},
			want:   http.Header{"X-Api-Key": {"sk-123"}},
		},
		"api key missing": {
			scheme:    a2a.AuthScheme{Scheme: a2a.AuthSchemeAPIKey, ServiceIdentifier: "unknown"},
			wantErrIs: a2a.ErrMissingCredential,
		},
		"bearer from option": {
			opts:   []auth.Option{auth.WithBearerToken("", "configured-token")},
			scheme: a2a.AuthScheme{Scheme: a2a.AuthSchemeBearer},
			want:   http.Header{"Authorization": {"Bearer configured-token"}},
		},
		"bearer from resolver": {
			scheme: a2a.AuthScheme{Scheme: a2a.AuthSchemeBearer, ServiceIdentifier: "search"},
			want:   http.Header{"Authorization": {"Bearer resolved-token"}},
		},
		"bearer missing": {
			scheme:    a2a.AuthScheme{Scheme: a2a.AuthSchemeBearer, ServiceIdentifier: "other"},
			wantErrIs: a2a.ErrMissingCredential,
		},
		"oauth2 missing credentials": {
			scheme:    oauthScheme("http://127.0.0.1:1/token"),
			wantErrIs: a2a.ErrMissingCredential,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			a, err := auth.New(resolver, tt.opts...)
			if err != nil {
				t.Fatal(err)
			}
			got, err := a.Headers(t.Context(), tt.scheme)
			if tt.wantErrIs != nil {
				if !errors.Is(err, tt.wantErrIs) {
					t.Fatalf("Headers() error = %v, want %v", err, tt.wantErrIs)
				}
				return
			}
			if err != nil {
				t.Fatalf("Headers() error = %v", err)
			}
			if diff := gocmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Headers() (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBearerTokenExpiredJWT(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	expired := signedJWT(t, clock.Now().Add(-time.Minute))
	a, err := auth.New(nil, auth.WithBearerToken("svc", expired), auth.WithClock(clock.Now))
	if err != nil {
		t.Fatal(err)
	}

	_, err = a.Headers(t.Context(), a2a.AuthScheme{Scheme: a2a.AuthSchemeBearer, ServiceIdentifier: "svc"})
	if !errors.Is(err, a2a.ErrInvalidCredential) {
		t.Fatalf("Headers() error = %v, want ErrInvalidCredential", err)
	}

	valid := signedJWT(t, clock.Now().Add(time.Hour))
	a.SetBearerToken("svc", valid)
	h, err := a.Headers(t.Context(), a2a.AuthScheme{Scheme: a2a.AuthSchemeBearer, ServiceIdentifier: "svc"})
	if err != nil {
		t.Fatalf("Headers() error = %v", err)
	}
	if got, want := h.Get("Authorization"), "Bearer "+valid; got != want {
		t.Errorf("Authorization = %q, want %q", got, want)
	}
}

func TestOAuth2TokenCaching(t *testing.T) {
	t.Parallel()

	ts := a2atest.NewTokenServer(t, a2atest.TokenExpiresIn(3600), a2atest.TokenCredentials("billing-client", "s3cret"))
	clock := newFakeClock()
	a, err := auth.New(billingCreds, auth.WithClock(clock.Now))
	if err != nil {
		t.Fatal(err)
	}
	scheme := oauthScheme(ts.URL())

	headerFor := func() string {
		t.Helper()
		h, err := a.Headers(t.Context(), scheme)
		if err != nil {
			t.Fatalf("Headers() error = %v", err)
		}
		return h.Get("Authorization")
	}

	if got, want := headerFor(), "Bearer token-1"; got != want {
		t.Fatalf("first Authorization = %q, want %q", got, want)
	}
	clock.Advance(30 * time.Minute)
	if got, want := headerFor(), "Bearer token-1"; got != want {
		t.Fatalf("cached Authorization = %q, want %q", got, want)
	}
	if got := ts.Exchanges(); got != 1 {
		t.Fatalf("Exchanges() within validity = %d, want 1", got)
	}

	// Inside the safety margin the token is no longer reused.
	clock.Advance(30*time.Minute - 20*time.Second)
	if got, want := headerFor(), "Bearer token-2"; got != want {
		t.Fatalf("refreshed Authorization = %q, want %q", got, want)
	}
	if got := ts.Exchanges(); got != 2 {
		t.Fatalf("Exchanges() after expiry = %d, want 2", got)
	}
	if diff := gocmp.Diff([]string{"tasks.read", "tasks.write"}, ts.LastScope()); diff != "" {
		t.Errorf("scopes (-want +got):\n%s", diff)
	}
}

func TestOAuth2Invalidate(t *testing.T) {
	t.Parallel()

	ts := a2atest.NewTokenServer(t)
	a, err := auth.New(billingCreds)
	if err != nil {
		t.Fatal(err)
	}
	scheme := oauthScheme(ts.URL())

	for range 2 {
		if _, err := a.Headers(t.Context(), scheme); err != nil {
			t.Fatal(err)
		}
	}
	a.Invalidate("billing")
	h, err := a.Headers(t.Context(), scheme)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := h.Get("Authorization"), "Bearer token-2"; got != want {
		t.Errorf("Authorization after Invalidate = %q, want %q", got, want)
	}
	if got := ts.Exchanges(); got != 2 {
		t.Errorf("Exchanges() = %d, want 2", got)
	}
}

func TestOAuth2ExpiryFallbacks(t *testing.T) {
	t.Parallel()

	t.Run("jwt exp claim", func(t *testing.T) {
		t.Parallel()

		clock := newFakeClock()
		exp := clock.Now().Add(10 * time.Minute)
		ts := a2atest.NewTokenServer(t,
			a2atest.TokenExpiresIn(0),
			a2atest.TokenValues(func(int) string { return signedJWT(t, exp) }),
		)
		a, err := auth.New(billingCreds, auth.WithClock(clock.Now))
		if err != nil {
			t.Fatal(err)
		}
		scheme := oauthScheme(ts.URL())

		for _, step := range []time.Duration{0, 9 * time.Minute} {
			clock.Advance(step)
			if _, err := a.Headers(t.Context(), scheme); err != nil {
				t.Fatal(err)
			}
		}
		if got := ts.Exchanges(); got != 1 {
			t.Fatalf("Exchanges() before exp = %d, want 1", got)
		}
		clock.Advance(45 * time.Second)
		if _, err := a.Headers(t.Context(), scheme); err != nil {
			t.Fatal(err)
		}
		if got := ts.Exchanges(); got != 2 {
			t.Errorf("Exchanges() near exp = %d, want 2", got)
		}
	})

	t.Run("default lifetime", func(t *testing.T) {
		t.Parallel()

		clock := newFakeClock()
		ts := a2atest.NewTokenServer(t, a2atest.TokenExpiresIn(0))
		a, err := auth.New(billingCreds, auth.WithClock(clock.Now))
		if err != nil {
			t.Fatal(err)
		}
		scheme := oauthScheme(ts.URL())

		if _, err := a.Headers(t.Context(), scheme); err != nil {
			t.Fatal(err)
		}
		clock.Advance(auth.DefaultTokenLifetime - auth.SafetyMargin - time.Second)
		if _, err := a.Headers(t.Context(), scheme); err != nil {
			t.Fatal(err)
		}
		if got := ts.Exchanges(); got != 1 {
			t.Fatalf("Exchanges() = %d, want 1", got)
		}
		clock.Advance(2 * time.Second)
		if _, err := a.Headers(t.Context(), scheme); err != nil {
			t.Fatal(err)
		}
		if got := ts.Exchanges(); got != 2 {
			t.Errorf("Exchanges() = %d, want 2", got)
		}
	})
}

func TestOAuth2ExchangeFailures(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		opts       []a2atest.TokenOption
		creds      *auth.StaticResolver
		wantStatus int
	}{
		"http 400": {
			opts:       []a2atest.TokenOption{a2atest.TokenStatus(http.StatusBadRequest)},
			wantStatus: http.StatusBadRequest,
		},
		"http 500": {
			opts:       []a2atest.TokenOption{a2atest.TokenStatus(http.StatusInternalServerError)},
			wantStatus: http.StatusInternalServerError,
		},
		"wrong client secret": {
			opts:       []a2atest.TokenOption{a2atest.TokenCredentials("billing-client", "other")},
			wantStatus: http.StatusUnauthorized,
		},
		"malformed body": {
			opts: []a2atest.TokenOption{a2atest.TokenBody(`{"access_token":`)},
		},
		"missing access token": {
			opts: []a2atest.TokenOption{a2atest.TokenBody(`{"token_type":"Bearer","expires_in":60}`)},
		},
		"non bearer token type": {
			opts: []a2atest.TokenOption{a2atest.TokenType("mac")},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ts := a2atest.NewTokenServer(t, tt.opts...)
			a, err := auth.New(billingCreds)
			if err != nil {
				t.Fatal(err)
			}

			_, err = a.Headers(t.Context(), oauthScheme(ts.URL()))
			if !errors.Is(err, a2a.ErrTokenExchangeFailed) {
				t.Fatalf("Headers() error = %v, want ErrTokenExchangeFailed", err)
			}
			var aerr *a2a.AuthenticationError
			if !errors.As(err, &aerr) {
				t.Fatalf("Headers() error = %T, want *a2a.AuthenticationError", err)
			}
			if aerr.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", aerr.StatusCode, tt.wantStatus)
			}
			if aerr.ServiceID != "billing" {
				t.Errorf("ServiceID = %q, want %q", aerr.ServiceID, "billing")
			}
			if got := ts.Exchanges(); got != 1 {
				t.Errorf("Exchanges() = %d, want exactly 1 attempt", got)
			}
		})
	}
}

func TestOAuth2EmptyTokenTypeIsBearer(t *testing.T) {
	t.Parallel()

	ts := a2atest.NewTokenServer(t, a2atest.TokenType(""))
	a, err := auth.New(billingCreds)
	if err != nil {
		t.Fatal(err)
	}
	h, err := a.Headers(t.Context(), oauthScheme(ts.URL()))
	if err != nil {
		t.Fatalf("Headers() error = %v", err)
	}
	if got, want := h.Get("Authorization"), "Bearer token-1"; got != want {
		t.Errorf("Authorization = %q, want %q", got, want)
	}
}

func TestOAuth2ConcurrentCallers(t *testing.T) {
	t.Parallel()

	ts := a2atest.NewTokenServer(t)
	a, err := auth.New(billingCreds)
	if err != nil {
		t.Fatal(err)
	}
	scheme := oauthScheme(ts.URL())

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := a.Headers(t.Context(), scheme); err != nil {
				t.Errorf("Headers() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if got := ts.Exchanges(); got < 1 || got > 16 {
		t.Errorf("Exchanges() = %d, want between 1 and 16", got)
	}
	before := ts.Exchanges()
	if _, err := a.Headers(t.Context(), scheme); err != nil {
		t.Fatal(err)
	}
	if got := ts.Exchanges(); got != before {
		t.Errorf("Exchanges() after warm cache = %d, want %d", got, before)
	}
}

func TestCanSatisfy(t *testing.T) {
	t.Parallel()

	a, err := auth.New(&auth.StaticResolver{
		APIKeys: map[string]string{"weather": "sk"},
		OAuth:   map[string]auth.OAuthCredentials{"half": {ClientID: "id"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	tests := map[string]struct {
		scheme a2a.AuthScheme
		want   bool
	}{
		"none":              {scheme: a2a.AuthScheme{Scheme: a2a.AuthSchemeNone}, want: true},
		"api key":           {scheme: a2a.AuthScheme{Scheme: a2a.AuthSchemeAPIKey, ServiceIdentifier: "weather"}, want: true},
		"api key missing":   {scheme: a2a.AuthScheme{Scheme: a2a.AuthSchemeAPIKey, ServiceIdentifier: "other"}},
		"oauth2 incomplete": {scheme: a2a.AuthScheme{Scheme: a2a.AuthSchemeOAuth2, ServiceIdentifier: "half"}},
		"bearer missing":    {scheme: a2a.AuthScheme{Scheme: a2a.AuthSchemeBearer}},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			if got := a.CanSatisfy(t.Context(), tt.scheme); got != tt.want {
				t.Errorf("CanSatisfy() = %v, want %v", got, tt.want)
			}
		})
	}
}
