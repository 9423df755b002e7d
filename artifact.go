// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package a2a

import (
	"errors"
)

// Artifact is a named output produced during task execution.
//
// The content is either inline (Content) or a pointer to external storage (URL).
// An artifact is immutable once delivered; later artifacts carry different ids.
type Artifact struct {
	ID        string         `json:"id"`
	Type      string         `json:"type,omitzero"`
	Content   any            `json:"content,omitzero"`
	URL       string         `json:"url,omitzero"`
	MediaType string         `json:"mediaType,omitzero"`
	Metadata  map[string]any `json:"metadata,omitzero"`
}

// Validate reports whether a carries an id and a payload.
func (a Artifact) Validate() error {
	if a.ID == "" {
		return errors.New("artifact has no id")
	}
	if a.Content == nil && a.URL == "" {
		return errors.New("artifact needs either content or url")
	}
	return nil
}

// Inline reports whether the artifact content is carried inline.
func (a Artifact) Inline() bool {
	return a.Content != nil
}
