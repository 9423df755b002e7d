// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package a2a_test

import (
	"testing"

	"github.com/go-json-experiment/json"
	gocmp "github.com/google/go-cmp/cmp"

	"github.com/agentvault/a2a"
)

func TestArtifactValidate(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		artifact   a2a.Artifact
		wantErr    bool
		wantInline bool
	}{
		"inline content": {
			artifact:   a2a.Artifact{ID: "a1", Type: "text", Content: "summary"},
			wantInline: true,
		},
		"structured content": {
			artifact:   a2a.Artifact{ID: "a1", Content: map[string]any{"rows": 3.0}},
			wantInline: true,
		},
		"external url": {
			artifact: a2a.Artifact{ID: "a2", URL: "https://files.example/report.pdf", MediaType: "application/pdf"},
		},
		"no id": {
			artifact: a2a.Artifact{Content: "orphan"},
			wantErr:  true,
		},
		"no payload": {
			artifact: a2a.Artifact{ID: "a3"},
			wantErr:  true,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			err := tt.artifact.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got := tt.artifact.Inline(); got != tt.wantInline {
				t.Errorf("Inline() = %v, want %v", got, tt.wantInline)
			}
		})
	}
}

func TestArtifactWireFormat(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		data string
		want a2a.Artifact
	}{
		"inline": {
			data: `{"id":"a1","type":"table","content":{"rows":2},"metadata":{"source":"crawler"}}`,
			want: a2a.Artifact{
				ID:       "a1",
				Type:     "table",
				Content:  map[string]any{"rows": 2.0},
				Metadata: map[string]any{"source": "crawler"},
			},
		},
		"pointer": {
			data: `{"id":"a2","url":"https://files.example/a2","mediaType":"image/png"}`,
			want: a2a.Artifact{ID: "a2", URL: "https://files.example/a2", MediaType: "image/png"},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var got a2a.Artifact
			if err := json.Unmarshal([]byte(tt.data), &got); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if diff := gocmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Artifact (-want +got):\n%s", diff)
			}

			out, err := json.Marshal(got)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			var again map[string]any
			if err := json.Unmarshal(out, &again); err != nil {
				t.Fatalf("Unmarshal(Marshal()) error = %v", err)
			}
			var orig map[string]any
			if err := json.Unmarshal([]byte(tt.data), &orig); err != nil {
				t.Fatal(err)
			}
			if diff := gocmp.Diff(orig, again); diff != "" {
				t.Errorf("re-encoded members (-want +got):\n%s", diff)
			}
		})
	}
}
