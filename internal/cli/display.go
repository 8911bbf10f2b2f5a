// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/mattn/go-runewidth"
	"github.com/muesli/termenv"

	"github.com/jeranaias/devgenius/internal/markdown"
)

// liveDisplay is an llm.Sink that shows a reply while it streams.
//
// On a terminal the raw text is written as it grows; when the stream
// restarts (a retried attempt) the shown text is erased first, and Finish
// replaces the raw text with the glamour rendering. Without a terminal
// nothing is written until Finish prints the final text once.
type liveDisplay struct {
	mu       sync.Mutex
	w        io.Writer
	out      *termenv.Output
	tty      bool
	width    int
	renderer *markdown.Renderer
	shown    string
}

func newLiveDisplay(w io.Writer, tty bool, width int, style string) *liveDisplay {
	if width <= 0 {
		width = DefaultTerminalWidth
	}
	return &liveDisplay{
		w:        w,
		out:      termenv.NewOutput(w, termenv.WithProfile(GetColorProfile())),
		tty:      tty,
		width:    width,
		renderer: markdown.NewRenderer(style, min(width, markdown.DefaultWordWrap)),
	}
}

// Update implements llm.Sink.
func (d *liveDisplay) Update(text string) {
	if !d.tty {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if !strings.HasPrefix(text, d.shown) {
		d.clear()
	}
	io.WriteString(d.w, text[len(d.shown):])
	d.shown = text
}

// Finish shows the final text.
func (d *liveDisplay) Finish(final string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.tty {
		fmt.Fprintln(d.w, final)
		return
	}
	d.clear()
	rendered := d.renderer.Render(final)
	io.WriteString(d.w, rendered)
	if !strings.HasSuffix(rendered, "\n") {
		io.WriteString(d.w, "\n")
	}
}

// Abort leaves whatever was shown and moves to a fresh line.
func (d *liveDisplay) Abort() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.tty && d.shown != "" {
		io.WriteString(d.w, "\n")
	}
	d.shown = ""
}

// clear erases the lines occupied by the shown text. Callers hold mu.
func (d *liveDisplay) clear() {
	if d.shown == "" {
		return
	}
	d.out.ClearLines(visualLines(d.shown, d.width) - 1)
	io.WriteString(d.w, "\r")
	d.shown = ""
}

// visualLines counts terminal rows used by s at the given width.
func visualLines(s string, width int) int {
	if width <= 0 {
		width = DefaultTerminalWidth
	}
	n := 0
	for _, line := range strings.Split(s, "\n") {
		w := runewidth.StringWidth(line)
		if w == 0 {
			n++
			continue
		}
		n += (w + width - 1) / width
	}
	return n
}
