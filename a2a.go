// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package a2a implements the wire model of the Agent-to-Agent (A2A) protocol: JSON-RPC 2.0 envelopes,
// Server-Sent-Event frames, the task lifecycle state machine and the typed error taxonomy shared by the
// transport, event and client packages.
package a2a

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Version is the current version of the A2A protocol profile implemented by this module.
const Version = "0.2.0"

// AuthSchemeType names how a client authenticates to an agent endpoint.
type AuthSchemeType string

const (
	// AuthSchemeNone sends no credentials.
	AuthSchemeNone AuthSchemeType = "none"
	// AuthSchemeAPIKey sends a static key in the X-Api-Key header.
	AuthSchemeAPIKey AuthSchemeType = "apiKey"
	// AuthSchemeOAuth2 exchanges client credentials for a bearer token.
	AuthSchemeOAuth2 AuthSchemeType = "oauth2"
	// AuthSchemeBearer sends a token supplied out-of-band.
	AuthSchemeBearer AuthSchemeType = "bearer"
)

// UnmarshalText implements [encoding.TextUnmarshaler].
//
// Scheme names are matched case-insensitively and "api_key" is accepted as an alias of "apiKey".
func (t *AuthSchemeType) UnmarshalText(b []byte) error {
	switch strings.ToLower(strings.ReplaceAll(string(b), "_", "")) {
	case "", "none":
		*t = AuthSchemeNone
	case "apikey":
		*t = AuthSchemeAPIKey
	case "oauth2":
		*t = AuthSchemeOAuth2
	case "bearer":
		*t = AuthSchemeBearer
	default:
		return fmt.Errorf("unknown auth scheme %q", string(b))
	}
	return nil
}

// AuthScheme declares how to authenticate to a given task endpoint.
//
// It is read from the agent card once and does not change during a session.
type AuthScheme struct {
	Scheme AuthSchemeType `json:"scheme"`
	// ServiceIdentifier is the caller-chosen key used to look up credentials.
	ServiceIdentifier string `json:"service_identifier,omitzero"`
	// TokenURL is the OAuth2 token endpoint. Only used by [AuthSchemeOAuth2].
	TokenURL string `json:"tokenUrl,omitzero"`
	// Scopes requested during the OAuth2 client-credentials exchange.
	Scopes []string `json:"scopes,omitzero"`
}

// Validate checks that s carries the fields its scheme needs.
func (s AuthScheme) Validate() error {
	switch s.Scheme {
	case "", AuthSchemeNone, AuthSchemeBearer:
		return nil
	case AuthSchemeAPIKey:
		if s.ServiceIdentifier == "" {
			return errors.New("apiKey scheme requires a service_identifier")
		}
	case AuthSchemeOAuth2:
		if s.ServiceIdentifier == "" {
			return errors.New("oauth2 scheme requires a service_identifier")
		}
		if s.TokenURL == "" {
			return errors.New("oauth2 scheme requires a tokenUrl")
		}
		if _, err := url.Parse(s.TokenURL); err != nil {
			return fmt.Errorf("oauth2 scheme has invalid tokenUrl: %w", err)
		}
	default:
		return fmt.Errorf("unknown auth scheme %q", s.Scheme)
	}
	return nil
}

// AgentCapabilities lists the optional protocol features an agent supports.
type AgentCapabilities struct {
	Streaming bool `json:"streaming"`
}

// AgentCard describes an agent's endpoint, capabilities and accepted auth schemes.
type AgentCard struct {
	Name        string `json:"name"`
	Description string `json:"description,omitzero"`
	// URL is the single JSON-RPC endpoint of the agent.
	URL          string            `json:"url"`
	Version      string            `json:"version,omitzero"`
	Capabilities AgentCapabilities `json:"capabilities,omitzero"`
	AuthSchemes  []AuthScheme      `json:"authSchemes,omitzero"`
}

// Validate checks the fields a client needs before talking to the agent.
func (c *AgentCard) Validate() error {
	if c == nil {
		return errors.New("agent card is nil")
	}
	if c.URL == "" {
		return errors.New("agent card has no url")
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("agent card has invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("agent card url must be http or https, got %q", u.Scheme)
	}
	for i, s := range c.AuthSchemes {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("authSchemes[%d]: %w", i, err)
		}
	}
	return nil
}

// PreferredAuthScheme returns the first scheme for which usable reports true.
//
// When usable is nil or accepts nothing, the first declared scheme is returned so that the caller
// surfaces a missing-credential error for it. A card without schemes yields [AuthSchemeNone].
func (c *AgentCard) PreferredAuthScheme(usable func(AuthScheme) bool) AuthScheme {
	if len(c.AuthSchemes) == 0 {
		return AuthScheme{Scheme: AuthSchemeNone}
	}
	if usable != nil {
		for _, s := range c.AuthSchemes {
			if usable(s) {
				return s
			}
		}
	}
	return c.AuthSchemes[0]
}
