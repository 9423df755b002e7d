// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package a2atest

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/go-json-experiment/json"
)

// TokenServer is a mock OAuth2 token endpoint for the client-credentials grant.
type TokenServer struct {
	srv *httptest.Server

	status       int
	body         string
	tokenType    string
	expiresIn    int
	tokens       func(n int) string
	clientID     string
	clientSecret string

	mu        sync.Mutex
	exchanges int
	scopes    []string
}

// TokenOption configures a [TokenServer].
type TokenOption func(*TokenServer)

// TokenStatus answers every exchange with status and an OAuth2 error body.
func TokenStatus(status int) TokenOption {
	return func(s *TokenServer) {
		s.status = status
	}
}

// TokenBody answers every exchange with HTTP 200 and the given raw JSON body.
func TokenBody(body string) TokenOption {
	return func(s *TokenServer) {
		s.body = body
	}
}

// TokenType sets the token_type of issued tokens. The default is "Bearer".
func TokenType(tt string) TokenOption {
	return func(s *TokenServer) {
		s.tokenType = tt
	}
}

// TokenExpiresIn sets expires_in in seconds. Zero omits the field.
func TokenExpiresIn(sec int) TokenOption {
	return func(s *TokenServer) {
		s.expiresIn = sec
	}
}

// TokenValues sets the function producing the n-th issued access token (1-based).
func TokenValues(fn func(n int) string) TokenOption {
	return func(s *TokenServer) {
		s.tokens = fn
	}
}

// TokenCredentials rejects exchanges that do not present this client id and secret.
func TokenCredentials(clientID, clientSecret string) TokenOption {
	return func(s *TokenServer) {
		s.clientID = clientID
		s.clientSecret = clientSecret
	}
}

// NewTokenServer starts a token endpoint that is closed when the test ends.
func NewTokenServer(tb testing.TB, opts ...TokenOption) *TokenServer {
	tb.Helper()

	s := &TokenServer{
		tokenType: "Bearer",
		expiresIn: 3600,
		tokens:    func(n int) string { return "token-" + strconv.Itoa(n) },
	}
	for _, o := range opts {
		o(s)
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.serveToken))
	tb.Cleanup(s.srv.Close)
	return s
}

// URL returns the token endpoint.
func (s *TokenServer) URL() string {
	return s.srv.URL + "/oauth/token"
}

// Exchanges returns how many token requests were received.
func (s *TokenServer) Exchanges() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exchanges
}

// LastScope returns the scopes of the most recent exchange.
func (s *TokenServer) LastScope() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scopes
}

func (s *TokenServer) serveToken(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.exchanges++
	n := s.exchanges
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "client_credentials" {
		writeOAuthError(w, http.StatusBadRequest, "unsupported_grant_type")
		return
	}
	if s.clientID != "" && (r.PostForm.Get("client_id") != s.clientID || r.PostForm.Get("client_secret") != s.clientSecret) {
		writeOAuthError(w, http.StatusUnauthorized, "invalid_client")
		return
	}
	if scope := r.PostForm.Get("scope"); scope != "" {
		s.mu.Lock()
		s.scopes = strings.Fields(scope)
		s.mu.Unlock()
	}

	switch {
	case s.status != 0:
		writeOAuthError(w, s.status, "invalid_request")
		return
	case s.body != "":
		w.Write([]byte(s.body))
		return
	}

	resp := map[string]any{
		"access_token": s.tokens(n),
		"token_type":   s.tokenType,
	}
	if s.expiresIn > 0 {
		resp["expires_in"] = s.expiresIn
	}
	data, _ := json.Marshal(resp)
	w.Write(data)
}

func writeOAuthError(w http.ResponseWriter, status int, code string) {
	w.WriteHeader(status)
	data, _ := json.Marshal(map[string]string{"error": code})
	w.Write(data)
}
