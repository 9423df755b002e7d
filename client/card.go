// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"gopkg.in/yaml.v3"

	"github.com/agentvault/a2a"
)

// FetchAgentCard fetches the card published by the agent at baseURL under
// [a2a.AgentCardWellKnownPath].
func (c *Client) FetchAgentCard(ctx context.Context, baseURL string) (*a2a.AgentCard, error) {
	targetURL := strings.TrimRight(baseURL, "/") + a2a.AgentCardWellKnownPath

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("client: fetch agent card: %w", err)
	}
	req.Header.Set("Accept", a2a.ContentTypeJSON)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &a2a.ConnectionError{Op: "fetch agent card", URL: targetURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &a2a.ConnectionError{Op: "fetch agent card", URL: targetURL, StatusCode: resp.StatusCode}
	}

	var card a2a.AgentCard
	dec := jsontext.NewDecoder(resp.Body)
	if err := json.UnmarshalDecode(dec, &card); err != nil {
		return nil, a2a.NewMalformedError("decode agent card", err)
	}
	if err := card.Validate(); err != nil {
		return nil, fmt.Errorf("client: agent card from %s: %w", targetURL, err)
	}
	return &card, nil
}

// LoadAgentCard reads an agent card from a local JSON or YAML file. YAML files use the same
// member names as the JSON form.
func LoadAgentCard(path string) (*a2a.AgentCard, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("client: load agent card: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc map[string]any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("client: parse agent card %s: %w", path, err)
		}
		if data, err = json.Marshal(doc); err != nil {
			return nil, fmt.Errorf("client: parse agent card %s: %w", path, err)
		}
	}

	var card a2a.AgentCard
	if err := json.Unmarshal(data, &card); err != nil {
		return nil, fmt.Errorf("client: parse agent card %s: %w", path, err)
	}
	if err := card.Validate(); err != nil {
		return nil, fmt.Errorf("client: agent card %s: %w", path, err)
	}
	return &card, nil
}
