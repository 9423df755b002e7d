// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package auth_test

import (
	"os"
	"path/filepath"
	"testing"

	gocmp "github.com/google/go-cmp/cmp"

	"github.com/agentvault/a2a/auth"
)

func TestEnvResolver(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		"A2A_KEY_WEATHER_AGENT":           "sk-weather",
		"A2A_OAUTH_BILLING_CLIENT_ID":     "billing",
		"A2A_OAUTH_BILLING_CLIENT_SECRET": "s3cret",
		"A2A_OAUTH_HALF_CLIENT_ID":        "only-id",
		"A2A_TOKEN_SEARCH":                "bearer-1",
		"A2A_KEY_EMPTY":                   "",
	}
	r := &auth.EnvResolver{
		Prefix: "A2A",
		LookupEnv: func(key string) (string, bool) {
			v, ok := env[key]
			return v, ok
		},
	}
	ctx := t.Context()

	if key, ok := r.ResolveAPIKey(ctx, "weather-agent"); !ok || key != "sk-weather" {
		t.Errorf("ResolveAPIKey(weather-agent) = %q, %v", key, ok)
	}
	if _, ok := r.ResolveAPIKey(ctx, "empty"); ok {
		t.Error("ResolveAPIKey(empty) resolved an empty value")
	}
	creds, ok := r.ResolveOAuthCredentials(ctx, "billing")
	if !ok {
		t.Fatal("ResolveOAuthCredentials(billing) not found")
	}
	if diff := gocmp.Diff(auth.OAuthCredentials{ClientID: "billing", ClientSecret: "s3cret"}, creds); diff != "" {
		t.Errorf("ResolveOAuthCredentials(billing) (-want +got):\n%s", diff)
	}
	if _, ok := r.ResolveOAuthCredentials(ctx, "half"); ok {
		t.Error("ResolveOAuthCredentials(half) resolved without a client secret")
	}
	if tok, ok := r.ResolveBearerToken(ctx, "search"); !ok || tok != "bearer-1" {
		t.Errorf("ResolveBearerToken(search) = %q, %v", tok, ok)
	}
}

func TestEnvName(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		prefix    string
		kind      string
		serviceID string
		want      string
	}{
		"default prefix": {kind: "KEY", serviceID: "weather", want: "AGENTVAULT_KEY_WEATHER"},
		"punctuation":    {prefix: "X", kind: "TOKEN", serviceID: "acme.io/search-v2", want: "X_TOKEN_ACME_IO_SEARCH_V2"},
		"non ascii":      {prefix: "X", kind: "KEY", serviceID: "café", want: "X_KEY_CAF_"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			r := &auth.EnvResolver{Prefix: tt.prefix}
			if got := r.EnvName(tt.kind, tt.serviceID); got != tt.want {
				t.Errorf("EnvName() = %q, want %q", got, tt.want)
			}
		})
	}
}

const credentialsYAML = `
services:
  weather-agent:
    api_key: sk-123
  billing-agent:
    oauth:
      client_id: billing
      client_secret: s3cret
  search-agent:
    bearer_token: tok-abc
`

func TestFileResolver(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "credentials.yaml")
	if err := os.WriteFile(path, []byte(credentialsYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	r, err := auth.LoadFileResolver(path)
	if err != nil {
		t.Fatalf("LoadFileResolver() error = %v", err)
	}
	ctx := t.Context()

	if key, ok := r.ResolveAPIKey(ctx, "weather-agent"); !ok || key != "sk-123" {
		t.Errorf("ResolveAPIKey() = %q, %v", key, ok)
	}
	if _, ok := r.ResolveAPIKey(ctx, "billing-agent"); ok {
		t.Error("ResolveAPIKey(billing-agent) resolved a key that is not configured")
	}
	creds, ok := r.ResolveOAuthCredentials(ctx, "billing-agent")
	if !ok {
		t.Fatal("ResolveOAuthCredentials() not found")
	}
	if diff := gocmp.Diff(auth.OAuthCredentials{ClientID: "billing", ClientSecret: "s3cret"}, creds); diff != "" {
		t.Errorf("ResolveOAuthCredentials() (-want +got):\n%s", diff)
	}
	if _, ok := r.ResolveOAuthCredentials(ctx, "weather-agent"); ok {
		t.Error("ResolveOAuthCredentials(weather-agent) resolved credentials that are not configured")
	}
	if tok, ok := r.ResolveBearerToken(ctx, "search-agent"); !ok || tok != "tok-abc" {
		t.Errorf("ResolveBearerToken() = %q, %v", tok, ok)
	}
}

func TestFileResolverErrors(t *testing.T) {
	t.Parallel()

	if _, err := auth.LoadFileResolver(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadFileResolver(missing) error = nil")
	}
	if _, err := auth.ParseFileResolver([]byte("services: [")); err == nil {
		t.Error("ParseFileResolver(invalid) error = nil")
	}
}

func TestChainResolver(t *testing.T) {
	t.Parallel()

	first := &auth.StaticResolver{APIKeys: map[string]string{"a": "first-a"}}
	second := &auth.StaticResolver{
		APIKeys:      map[string]string{"a": "second-a", "b": "second-b"},
		OAuth:        map[string]auth.OAuthCredentials{"c": {ClientID: "id", ClientSecret: "secret"}},
		BearerTokens: map[string]string{"d": "tok"},
	}
	chain := auth.ChainResolver{first, second}
	ctx := t.Context()

	tests := map[string]struct {
		resolve func() (string, bool)
		want    string
		wantOK  bool
	}{
		"first wins": {
			resolve: func() (string, bool) { return chain.ResolveAPIKey(ctx, "a") },
			want:    "first-a",
			wantOK:  true,
		},
		"falls through": {
			resolve: func() (string, bool) { return chain.ResolveAPIKey(ctx, "b") },
			want:    "second-b",
			wantOK:  true,
		},
		"oauth": {
			resolve: func() (string, bool) {
				c, ok := chain.ResolveOAuthCredentials(ctx, "c")
				return c.ClientID, ok
			},
			want:   "id",
			wantOK: true,
		},
		"bearer": {
			resolve: func() (string, bool) { return chain.ResolveBearerToken(ctx, "d") },
			want:    "tok",
			wantOK:  true,
		},
		"nowhere": {
			resolve: func() (string, bool) { return chain.ResolveAPIKey(ctx, "z") },
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			got, ok := tt.resolve()
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("resolve = %q, %v; want %q, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
