// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export renders conversation transcripts as markdown, HTML or JSON.
package export

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeranaias/devgenius/internal/session"
)

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter converts a transcript to one format.
type Exporter interface {
	Export(t *Transcript) ([]byte, error)

	// FileExtension includes the dot (".md", ".html").
	FileExtension() string

	MimeType() string
}

// ErrEmptyTranscript is returned for conversations with no entries.
var ErrEmptyTranscript = errors.New("transcript has no entries")

// ErrUnknownFormat is returned by ForFormat.
var ErrUnknownFormat = errors.New("unknown export format")

// Entry is one titled section of a transcript.
type Entry struct {
	Type    string    `json:"type"`
	Details string    `json:"details"`
	At      time.Time `json:"at"`
}

// Transcript is the exportable view of a conversation.
type Transcript struct {
	ConversationID string            `json:"conversation_id"`
	UserName       string            `json:"user_name,omitempty"`
	Model          string            `json:"model,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	Entries        []Entry           `json:"entries"`
	Artifacts      map[string]string `json:"artifacts,omitempty"`
}

// FromSession snapshots sess. model is recorded in the header.
func FromSession(sess *session.Session, model string) *Transcript {
	interactions := sess.Interactions()
	entries := make([]Entry, len(interactions))
	for i, in := range interactions {
		entries[i] = Entry{Type: in.Type, Details: in.Details, At: in.At}
	}
	return &Transcript{
		ConversationID: sess.ID,
		UserName:       sess.UserName,
		Model:          model,
		CreatedAt:      sess.CreatedAt,
		Entries:        entries,
		Artifacts:      sess.Artifacts(),
	}
}

func (t *Transcript) validate() error {
	if t == nil {
		return fmt.Errorf("transcript is nil")
	}
	if len(t.Entries) == 0 {
		return ErrEmptyTranscript
	}
	return nil
}

// =============================================================================
// OPTIONS
// =============================================================================

// Options configures exporters.
type Options struct {
	// IncludeMetadata adds the conversation header.
	IncludeMetadata bool

	// IncludeTimestamps adds a time to each entry.
	IncludeTimestamps bool

	// Theme for HTML export ("light" or "dark").
	Theme string
}

// DefaultOptions returns default export options.
func DefaultOptions() *Options {
	return &Options{
		IncludeMetadata:   true,
		IncludeTimestamps: true,
		Theme:             "light",
	}
}

// ForFormat returns the exporter for "md", "markdown", "html" or "json".
func ForFormat(format string, opts *Options) (Exporter, error) {
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "md", "markdown":
		return NewMarkdownExporter(opts), nil
	case "html", "htm", "":
		return NewHTMLExporter(opts), nil
	case "json":
		return NewJSONExporter(opts), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// ForPath picks the exporter from a file name's extension.
func ForPath(path string, opts *Options) (Exporter, error) {
	return ForFormat(filepath.Ext(path), opts)
}

func formatTimestamp(t time.Time) string {
	return t.Format("January 2, 2006 at 3:04 PM")
}

func formatShortTimestamp(t time.Time) string {
	return t.Format("15:04:05")
}
