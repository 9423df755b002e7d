// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package a2a_test

import (
	"testing"

	"github.com/go-json-experiment/json"
	gocmp "github.com/google/go-cmp/cmp"

	"github.com/agentvault/a2a"
)

func TestAgentCardDecode(t *testing.T) {
	t.Parallel()

	data := `{
		"name": "echo",
		"url": "https://agent.example.com/a2a",
		"version": "1.0.0",
		"capabilities": {"streaming": true},
		"authSchemes": [
			{"scheme": "api_key", "service_identifier": "echo-key"},
			{"scheme": "oauth2", "service_identifier": "echo-oauth", "tokenUrl": "https://auth.example.com/token", "scopes": ["tasks"]}
		]
	}`

	var card a2a.AgentCard
	if err := json.Unmarshal([]byte(data), &card); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	want := a2a.AgentCard{
		Name:         "echo",
		URL:          "https://agent.example.com/a2a",
		Version:      "1.0.0",
		Capabilities: a2a.AgentCapabilities{Streaming: true},
		AuthSchemes: []a2a.AuthScheme{
			{Scheme: a2a.AuthSchemeAPIKey, ServiceIdentifier: "echo-key"},
			{Scheme: a2a.AuthSchemeOAuth2, ServiceIdentifier: "echo-oauth", TokenURL: "https://auth.example.com/token", Scopes: []string{"tasks"}},
		},
	}
	if diff := gocmp.Diff(want, card); diff != "" {
		t.Errorf("AgentCard (-want +got):\n%s", diff)
	}
	if err := card.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestAgentCardValidate(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		card    *a2a.AgentCard
		wantErr bool
	}{
		"minimal": {
			card: &a2a.AgentCard{Name: "a", URL: "http://localhost:8080/a2a"},
		},
		"nil": {
			card:    nil,
			wantErr: true,
		},
		"no url": {
			card:    &a2a.AgentCard{Name: "a"},
			wantErr: true,
		},
		"non http url": {
			card:    &a2a.AgentCard{Name: "a", URL: "ftp://agent.example.com"},
			wantErr: true,
		},
		"api key without service": {
			card:    &a2a.AgentCard{URL: "https://a.example", AuthSchemes: []a2a.AuthScheme{{Scheme: a2a.AuthSchemeAPIKey}}},
			wantErr: true,
		},
		"oauth2 without token url": {
			card:    &a2a.AgentCard{URL: "https://a.example", AuthSchemes: []a2a.AuthScheme{{Scheme: a2a.AuthSchemeOAuth2, ServiceIdentifier: "s"}}},
			wantErr: true,
		},
		"bearer without service": {
			card: &a2a.AgentCard{URL: "https://a.example", AuthSchemes: []a2a.AuthScheme{{Scheme: a2a.AuthSchemeBearer}}},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			if err := tt.card.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPreferredAuthScheme(t *testing.T) {
	t.Parallel()

	apiKey := a2a.AuthScheme{Scheme: a2a.AuthSchemeAPIKey, ServiceIdentifier: "k"}
	oauth := a2a.AuthScheme{Scheme: a2a.AuthSchemeOAuth2, ServiceIdentifier: "o", TokenURL: "https://t.example"}
	card := &a2a.AgentCard{URL: "https://a.example", AuthSchemes: []a2a.AuthScheme{apiKey, oauth}}

	tests := map[string]struct {
		card   *a2a.AgentCard
		usable func(a2a.AuthScheme) bool
		want   a2a.AuthScheme
	}{
		"no schemes": {
			card: &a2a.AgentCard{URL: "https://a.example"},
			want: a2a.AuthScheme{Scheme: a2a.AuthSchemeNone},
		},
		"first usable": {
			card:   card,
			usable: func(s a2a.AuthScheme) bool { return s.Scheme == a2a.AuthSchemeOAuth2 },
			want:   oauth,
		},
		"none usable falls back to first": {
			card:   card,
			usable: func(a2a.AuthScheme) bool { return false },
			want:   apiKey,
		},
		"nil predicate": {
			card: card,
			want: apiKey,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got := tt.card.PreferredAuthScheme(tt.usable)
			if diff := gocmp.Diff(tt.want, got); diff != "" {
				t.Errorf("PreferredAuthScheme() (-want +got):\n%s", diff)
			}
		})
	}
}
