// Copyright 2025 The Go A2A Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package a2a

// Well-known paths and header names of the A2A HTTP binding.
const (
	// AgentCardWellKnownPath is the standard path for retrieving an agent's public AgentCard.
	//
	// Example usage: https://agent.example.com/.well-known/agent.json
	AgentCardWellKnownPath = "/.well-known/agent.json"

	// DefaultRPCPath is the path the mock agent serves its JSON-RPC endpoint on.
	DefaultRPCPath = "/a2a"

	// HeaderAPIKey carries the key of the apiKey scheme.
	HeaderAPIKey = "X-Api-Key"

	// HeaderAuthorization carries the token of the oauth2 and bearer schemes.
	HeaderAuthorization = "Authorization"

	// ContentTypeJSON is the content type of unary JSON-RPC requests and responses.
	ContentTypeJSON = "application/json"

	// ContentTypeEventStream is the content type a streaming handshake must answer with.
	ContentTypeEventStream = "text/event-stream"
)
