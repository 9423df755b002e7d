// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package a2a

import (
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
)

// Role identifies the author of a [Message].
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Valid reports whether r is one of the protocol roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// Part types as they appear in the "type" field on the wire.
const (
	PartTypeText = "text"
	PartTypeFile = "file"
	PartTypeData = "data"
)

// Part is one typed piece of message content.
//
// The set of implementations is closed: [TextPart], [FilePart] and [DataPart].
type Part interface {
	// PartType returns the wire tag of the part.
	PartType() string
	// Validate reports whether the part is well formed.
	Validate() error

	isPart()
}

// TextPart carries plain text.
type TextPart struct {
	Text     string
	Metadata map[string]any
}

var _ Part = TextPart{}

func (TextPart) PartType() string { return PartTypeText }
func (TextPart) isPart()          {}

// Validate implements [Part].
func (p TextPart) Validate() error {
	if p.Text == "" {
		return errors.New("text part has empty text")
	}
	return nil
}

// FilePart references a file either inline (Bytes) or by URI.
type FilePart struct {
	Name      string
	MediaType string
	URI       string
	Bytes     []byte
	Metadata  map[string]any
}

var _ Part = FilePart{}

func (FilePart) PartType() string { return PartTypeFile }
func (FilePart) isPart()          {}

// Validate implements [Part].
func (p FilePart) Validate() error {
	switch {
	case p.URI == "" && len(p.Bytes) == 0:
		return errors.New("file part needs either uri or bytes")
	case p.URI != "" && len(p.Bytes) > 0:
		return errors.New("file part cannot have both uri and bytes")
	}
	return nil
}

// DataPart carries structured JSON data.
type DataPart struct {
	Data     map[string]any
	Metadata map[string]any
}

var _ Part = DataPart{}

func (DataPart) PartType() string { return PartTypeData }
func (DataPart) isPart()          {}

// Validate implements [Part].
func (p DataPart) Validate() error {
	if p.Data == nil {
		return errors.New("data part has no data")
	}
	return nil
}

// wirePart is the flattened JSON shape shared by every part variant.
type wirePart struct {
	Type      string         `json:"type"`
	Text      string         `json:"text,omitzero"`
	Name      string         `json:"name,omitzero"`
	MediaType string         `json:"mediaType,omitzero"`
	URI       string         `json:"uri,omitzero"`
	Bytes     []byte         `json:"bytes,omitzero"`
	Data      map[string]any `json:"data,omitzero"`
	Metadata  map[string]any `json:"metadata,omitzero"`
}

func partToWire(p Part) (wirePart, error) {
	switch p := p.(type) {
	case TextPart:
		return wirePart{Type: PartTypeText, Text: p.Text, Metadata: p.Metadata}, nil
	case *TextPart:
		return partToWire(*p)
	case FilePart:
		return wirePart{Type: PartTypeFile, Name: p.Name, MediaType: p.MediaType, URI: p.URI, Bytes: p.Bytes, Metadata: p.Metadata}, nil
	case *FilePart:
		return partToWire(*p)
	case DataPart:
		return wirePart{Type: PartTypeData, Data: p.Data, Metadata: p.Metadata}, nil
	case *DataPart:
		return partToWire(*p)
	default:
		return wirePart{}, fmt.Errorf("unknown part type %T", p)
	}
}

func (w wirePart) part() (Part, error) {
	switch w.Type {
	case PartTypeText:
		return TextPart{Text: w.Text, Metadata: w.Metadata}, nil
	case PartTypeFile:
		return FilePart{Name: w.Name, MediaType: w.MediaType, URI: w.URI, Bytes: w.Bytes, Metadata: w.Metadata}, nil
	case PartTypeData:
		return DataPart{Data: w.Data, Metadata: w.Metadata}, nil
	case "":
		return nil, errors.New("part has no type")
	default:
		return nil, fmt.Errorf("unknown part type %q", w.Type)
	}
}

// Parts is an ordered list of message parts that encodes each part with its "type" tag.
type Parts []Part

// MarshalJSON implements [json.Marshaler].
func (ps Parts) MarshalJSON() ([]byte, error) {
	wire := make([]wirePart, 0, len(ps))
	for i, p := range ps {
		w, err := partToWire(p)
		if err != nil {
			return nil, fmt.Errorf("parts[%d]: %w", i, err)
		}
		wire = append(wire, w)
	}
	return json.Marshal(wire)
}

// UnmarshalJSON implements [json.Unmarshaler].
func (ps *Parts) UnmarshalJSON(data []byte) error {
	var raws []jsontext.Value
	if err := json.Unmarshal(data, &raws); err != nil {
		return err
	}
	out := make(Parts, 0, len(raws))
	for i, raw := range raws {
		var w wirePart
		if err := json.Unmarshal(raw, &w); err != nil {
			return fmt.Errorf("parts[%d]: %w", i, err)
		}
		p, err := w.part()
		if err != nil {
			return fmt.Errorf("parts[%d]: %w", i, err)
		}
		out = append(out, p)
	}
	*ps = out
	return nil
}

// MetadataContextKey is the metadata key that carries an embedded context payload.
const MetadataContextKey = "mcp_context"

// Message is a single turn in a task conversation. It is immutable once sent.
type Message struct {
	Role     Role           `json:"role"`
	Parts    Parts          `json:"parts"`
	Metadata map[string]any `json:"metadata,omitzero"`
}

// NewTextMessage returns a message with a single [TextPart].
func NewTextMessage(role Role, text string) Message {
	return Message{
		Role:  role,
		Parts: Parts{TextPart{Text: text}},
	}
}

// Validate checks the role and every part of m.
func (m Message) Validate() error {
	if !m.Role.Valid() {
		return fmt.Errorf("invalid message role %q", m.Role)
	}
	if len(m.Parts) == 0 {
		return errors.New("message has no parts")
	}
	for i, p := range m.Parts {
		if p == nil {
			return fmt.Errorf("parts[%d] is nil", i)
		}
		if err := p.Validate(); err != nil {
			return fmt.Errorf("parts[%d]: %w", i, err)
		}
	}
	return nil
}

// Text joins the text of every [TextPart] in m with newlines.
func (m Message) Text() string {
	var texts []string
	for _, p := range m.Parts {
		if tp, ok := p.(TextPart); ok {
			texts = append(texts, tp.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// ContextPayload returns the embedded context payload stored under [MetadataContextKey].
func (m Message) ContextPayload() (any, bool) {
	v, ok := m.Metadata[MetadataContextKey]
	return v, ok
}

// WithContextPayload returns a copy of m whose metadata carries payload under [MetadataContextKey].
func (m Message) WithContextPayload(payload any) Message {
	md := make(map[string]any, len(m.Metadata)+1)
	maps.Copy(md, m.Metadata)
	md[MetadataContextKey] = payload
	m.Metadata = md
	return m
}
