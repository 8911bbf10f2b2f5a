// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package markdown

import (
	"io"
	"strings"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/glamour"
)

// DefaultWordWrap is the wrap width for terminal rendering.
const DefaultWordWrap = 80

// Renderer renders markdown for a terminal.
type Renderer struct {
	term *glamour.TermRenderer
}

// NewRenderer creates a renderer. style is a glamour style name ("dark",
// "light", "notty", ...); empty selects one from the terminal background.
// A renderer that failed to initialise passes text through unchanged.
func NewRenderer(style string, wordWrap int) *Renderer {
	if wordWrap <= 0 {
		wordWrap = DefaultWordWrap
	}
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(wordWrap)}
	if style == "" {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStandardStyle(style))
	}

	term, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return &Renderer{}
	}
	return &Renderer{term: term}
}

// Render returns the styled text, or the input if rendering fails.
func (r *Renderer) Render(source string) string {
	if r == nil || r.term == nil {
		return source
	}
	out, err := r.term.Render(source)
	if err != nil {
		return source
	}
	return out
}

// HighlightStyle is the chroma style used for code output.
const HighlightStyle = "monokai"

// Highlight writes code with terminal syntax highlighting. Unknown languages
// fall back to chroma's plain lexer.
func Highlight(w io.Writer, code, lang string) error {
	if !strings.HasSuffix(code, "\n") {
		code += "\n"
	}
	return quick.Highlight(w, code, lang, "terminal256", HighlightStyle)
}
