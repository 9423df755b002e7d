// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// OAuthCredentials is a client id and secret pair for the OAuth2 client-credentials grant.
type OAuthCredentials struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

func (c OAuthCredentials) complete() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// Resolver looks up credentials by service identifier.
//
// A false result means the credential is not configured. Whether a configured credential is
// valid is only discovered by the agent rejecting a request.
type Resolver interface {
	ResolveAPIKey(ctx context.Context, serviceID string) (string, bool)
	ResolveOAuthCredentials(ctx context.Context, serviceID string) (OAuthCredentials, bool)
}

// BearerResolver is implemented by resolvers that can also supply out-of-band bearer tokens.
type BearerResolver interface {
	ResolveBearerToken(ctx context.Context, serviceID string) (string, bool)
}

// StaticResolver resolves credentials from in-memory maps.
type StaticResolver struct {
	APIKeys      map[string]string
	OAuth        map[string]OAuthCredentials
	BearerTokens map[string]string
}

var (
	_ Resolver       = (*StaticResolver)(nil)
	_ BearerResolver = (*StaticResolver)(nil)
)

// ResolveAPIKey implements [Resolver].
func (r *StaticResolver) ResolveAPIKey(_ context.Context, serviceID string) (string, bool) {
	key, ok := r.APIKeys[serviceID]
	return key, ok && key != ""
}

// ResolveOAuthCredentials implements [Resolver].
func (r *StaticResolver) ResolveOAuthCredentials(_ context.Context, serviceID string) (OAuthCredentials, bool) {
	creds, ok := r.OAuth[serviceID]
	return creds, ok
}

// ResolveBearerToken implements [BearerResolver].
func (r *StaticResolver) ResolveBearerToken(_ context.Context, serviceID string) (string, bool) {
	tok, ok := r.BearerTokens[serviceID]
	return tok, ok && tok != ""
}

// DefaultEnvPrefix is the environment variable prefix used by [EnvResolver] when Prefix is empty.
const DefaultEnvPrefix = "AGENTVAULT"

// EnvResolver resolves credentials from environment variables:
//
//	<PREFIX>_KEY_<SERVICE>                  API key
//	<PREFIX>_OAUTH_<SERVICE>_CLIENT_ID      OAuth2 client id
//	<PREFIX>_OAUTH_<SERVICE>_CLIENT_SECRET  OAuth2 client secret
//	<PREFIX>_TOKEN_<SERVICE>                bearer token
//
// SERVICE is the service identifier upper-cased with every character that is not a letter or a
// digit replaced by an underscore.
type EnvResolver struct {
	Prefix string
	// LookupEnv defaults to [os.LookupEnv].
	LookupEnv func(key string) (string, bool)
}

var (
	_ Resolver       = (*EnvResolver)(nil)
	_ BearerResolver = (*EnvResolver)(nil)
)

// EnvName returns the variable name EnvResolver reads for kind ("KEY", "TOKEN", "OAUTH") and serviceID.
func (r *EnvResolver) EnvName(kind, serviceID string) string {
	prefix := r.Prefix
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	id := strings.Map(func(c rune) rune {
		if c < unicode.MaxASCII && (unicode.IsLetter(c) || unicode.IsDigit(c)) {
			return unicode.ToUpper(c)
		}
		return '_'
	}, serviceID)
	return prefix + "_" + kind + "_" + id
}

func (r *EnvResolver) lookup(key string) (string, bool) {
	lookup := r.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	v, ok := lookup(key)
	return v, ok && v != ""
}

// ResolveAPIKey implements [Resolver].
func (r *EnvResolver) ResolveAPIKey(_ context.Context, serviceID string) (string, bool) {
	return r.lookup(r.EnvName("KEY", serviceID))
}

// ResolveOAuthCredentials implements [Resolver].
func (r *EnvResolver) ResolveOAuthCredentials(_ context.Context, serviceID string) (OAuthCredentials, bool) {
	base := r.EnvName("OAUTH", serviceID)
	id, ok := r.lookup(base + "_CLIENT_ID")
	if !ok {
		return OAuthCredentials{}, false
	}
	secret, ok := r.lookup(base + "_CLIENT_SECRET")
	if !ok {
		return OAuthCredentials{}, false
	}
	return OAuthCredentials{ClientID: id, ClientSecret: secret}, true
}

// ResolveBearerToken implements [BearerResolver].
func (r *EnvResolver) ResolveBearerToken(_ context.Context, serviceID string) (string, bool) {
	return r.lookup(r.EnvName("TOKEN", serviceID))
}

// FileResolver resolves credentials from a YAML document of the form:
//
//	services:
//	  weather-agent:
//	    api_key: sk-123
//	  billing-agent:
//	    oauth:
//	      client_id: billing
//	      client_secret: s3cret
//	  search-agent:
//	    bearer_token: eyJ...
type FileResolver struct {
	Services map[string]ServiceCredentials `yaml:"services"`
}

// ServiceCredentials are the credentials stored for one service identifier.
type ServiceCredentials struct {
	APIKey      string            `yaml:"api_key,omitempty"`
	OAuth       *OAuthCredentials `yaml:"oauth,omitempty"`
	BearerToken string            `yaml:"bearer_token,omitempty"`
}

var (
	_ Resolver       = (*FileResolver)(nil)
	_ BearerResolver = (*FileResolver)(nil)
)

// ParseFileResolver parses a YAML credentials document.
func ParseFileResolver(data []byte) (*FileResolver, error) {
	var r FileResolver
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	return &r, nil
}

// LoadFileResolver reads and parses the YAML credentials file at path.
func LoadFileResolver(path string) (*FileResolver, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}
	return ParseFileResolver(data)
}

// ResolveAPIKey implements [Resolver].
func (r *FileResolver) ResolveAPIKey(_ context.Context, serviceID string) (string, bool) {
	s, ok := r.Services[serviceID]
	return s.APIKey, ok && s.APIKey != ""
}

// ResolveOAuthCredentials implements [Resolver].
func (r *FileResolver) ResolveOAuthCredentials(_ context.Context, serviceID string) (OAuthCredentials, bool) {
	s, ok := r.Services[serviceID]
	if !ok || s.OAuth == nil {
		return OAuthCredentials{}, false
	}
	return *s.OAuth, true
}

// ResolveBearerToken implements [BearerResolver].
func (r *FileResolver) ResolveBearerToken(_ context.Context, serviceID string) (string, bool) {
	s, ok := r.Services[serviceID]
	return s.BearerToken, ok && s.BearerToken != ""
}

// ChainResolver consults each resolver in order and returns the first hit.
type ChainResolver []Resolver

var (
	_ Resolver       = ChainResolver(nil)
	_ BearerResolver = ChainResolver(nil)
)

// ResolveAPIKey implements [Resolver].
func (c ChainResolver) ResolveAPIKey(ctx context.Context, serviceID string) (string, bool) {
	for _, r := range c {
		if key, ok := r.ResolveAPIKey(ctx, serviceID); ok {
			return key, true
		}
	}
	return "", false
}

// ResolveOAuthCredentials implements [Resolver].
func (c ChainResolver) ResolveOAuthCredentials(ctx context.Context, serviceID string) (OAuthCredentials, bool) {
	for _, r := range c {
		if creds, ok := r.ResolveOAuthCredentials(ctx, serviceID); ok {
			return creds, true
		}
	}
	return OAuthCredentials{}, false
}

// ResolveBearerToken implements [BearerResolver]. Resolvers that cannot supply bearer tokens are skipped.
func (c ChainResolver) ResolveBearerToken(ctx context.Context, serviceID string) (string, bool) {
	for _, r := range c {
		br, ok := r.(BearerResolver)
		if !ok {
			continue
		}
		if tok, ok := br.ResolveBearerToken(ctx, serviceID); ok {
			return tok, true
		}
	}
	return "", false
}
