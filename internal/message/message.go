// Package message defines the logical message content the chunker splits:
// a tagged sum of plain text and file payloads.
package message

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Kind discriminates the Content union.
type Kind string

const (
	KindText Kind = "Text"
	KindFile Kind = "File"
)

// FileContent carries a filename, raw bytes, and an optional identifier
// minted once the receiver has stored the file.
type FileContent struct {
	Filename string     `json:"filename"`
	Data     []byte     `json:"data,omitempty"`
	ID       *uuid.UUID `json:"id,omitempty"`
}

// Content is the complete logical message the chunker fragments. Exactly
// one of Text/File is meaningful, selected by Kind.
type Content struct {
	Kind Kind
	Text string
	File FileContent
}

// NewText builds a Text-kind Content.
func NewText(text string) Content {
	return Content{Kind: KindText, Text: text}
}

// NewFile builds a File-kind Content.
func NewFile(filename string, data []byte) Content {
	return Content{Kind: KindFile, File: FileContent{Filename: filename, Data: data}}
}

type wireContent struct {
	Type    Kind            `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// MarshalJSON renders Content as {"type": "...", "payload": ...}, the tagged
// shape the wire format and the chunker both rely on.
func (c Content) MarshalJSON() ([]byte, error) {
	var payload []byte
	var err error
	switch c.Kind {
	case KindText:
		payload, err = json.Marshal(c.Text)
	case KindFile:
		payload, err = json.Marshal(c.File)
	default:
		return nil, fmt.Errorf("message: unknown content kind %q", c.Kind)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireContent{Type: c.Kind, Payload: payload})
}

// UnmarshalJSON parses the tagged wire shape back into Content.
func (c *Content) UnmarshalJSON(data []byte) error {
	var w wireContent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Type {
	case KindText:
		var text string
		if err := json.Unmarshal(w.Payload, &text); err != nil {
			return fmt.Errorf("message: decoding text payload: %w", err)
		}
		*c = Content{Kind: KindText, Text: text}
	case KindFile:
		var file FileContent
		if err := json.Unmarshal(w.Payload, &file); err != nil {
			return fmt.Errorf("message: decoding file payload: %w", err)
		}
		*c = Content{Kind: KindFile, File: file}
	default:
		return fmt.Errorf("message: unknown content kind %q", w.Type)
	}
	return nil
}
