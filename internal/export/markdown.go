// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"sort"
	"strings"
)

// MarkdownExporter writes a transcript as markdown.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// Export implements Exporter.
func (e *MarkdownExporter) Export(t *Transcript) ([]byte, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString("# Transcript\n")

	if e.options.IncludeMetadata {
		sb.WriteString("\n")
		fmt.Fprintf(&sb, "- **Conversation:** `%s`\n", t.ConversationID)
		if t.UserName != "" {
			fmt.Fprintf(&sb, "- **User:** %s\n", t.UserName)
		}
		if t.Model != "" {
			fmt.Fprintf(&sb, "- **Model:** %s\n", t.Model)
		}
		fmt.Fprintf(&sb, "- **Created:** %s\n", formatTimestamp(t.CreatedAt))
	}

	for _, entry := range t.Entries {
		sb.WriteString("\n## ")
		sb.WriteString(entry.Type)
		if e.options.IncludeTimestamps && !entry.At.IsZero() {
			fmt.Fprintf(&sb, " (%s)", formatShortTimestamp(entry.At))
		}
		sb.WriteString("\n\n")
		sb.WriteString(strings.TrimSpace(entry.Details))
		sb.WriteString("\n")
	}

	if e.options.IncludeMetadata && len(t.Artifacts) > 0 {
		sb.WriteString("\n## Artifacts\n\n")
		kinds := make([]string, 0, len(t.Artifacts))
		for k := range t.Artifacts {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			fmt.Fprintf(&sb, "- %s: `%s`\n", k, t.Artifacts[k])
		}
	}
	return []byte(sb.String()), nil
}

// FileExtension implements Exporter.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// MimeType implements Exporter.
func (e *MarkdownExporter) MimeType() string {
	return "text/markdown; charset=utf-8"
}
