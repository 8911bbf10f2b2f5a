// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"github.com/jeranaias/devgenius/internal/markdown"
)

// =============================================================================
// HTML EXPORTER
// =============================================================================

// HTMLExporter writes a standalone HTML page with embedded CSS. Entry
// bodies are rendered from markdown; raw HTML in them is not passed through.
type HTMLExporter struct {
	options *Options
	now     func() time.Time
}

// NewHTMLExporter creates an HTML exporter.
func NewHTMLExporter(opts *Options) *HTMLExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &HTMLExporter{options: opts, now: time.Now}
}

// Export implements Exporter.
func (e *HTMLExporter) Export(t *Transcript) ([]byte, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}

	theme := e.options.Theme
	if theme != "dark" {
		theme = "light"
	}
	title := "Conversation " + t.ConversationID

	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n")
	sb.WriteString("<html lang=\"en\">\n")
	sb.WriteString("<head>\n")
	sb.WriteString("    <meta charset=\"UTF-8\">\n")
	sb.WriteString("    <meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	fmt.Fprintf(&sb, "    <title>%s</title>\n", html.EscapeString(title))
	sb.WriteString("    <meta name=\"generator\" content=\"devgenius\">\n")
	fmt.Fprintf(&sb, "    <meta name=\"date\" content=\"%s\">\n", t.CreatedAt.Format(time.RFC3339))
	sb.WriteString(transcriptCSS)
	sb.WriteString("</head>\n")
	fmt.Fprintf(&sb, "<body class=\"%s-theme\">\n", theme)
	sb.WriteString("    <div class=\"container\">\n")

	if e.options.IncludeMetadata {
		e.renderHeader(&sb, t, title)
	}

	sb.WriteString("        <main class=\"conversation\">\n")
	for _, entry := range t.Entries {
		if err := e.renderEntry(&sb, entry); err != nil {
			return nil, err
		}
	}
	sb.WriteString("        </main>\n")

	sb.WriteString("        <footer class=\"footer\">\n")
	fmt.Fprintf(&sb, "            <p>Exported from <strong>DevGenius</strong> on %s</p>\n",
		html.EscapeString(formatTimestamp(e.now())))
	sb.WriteString("        </footer>\n")
	sb.WriteString("    </div>\n")
	sb.WriteString("</body>\n")
	sb.WriteString("</html>\n")
	return []byte(sb.String()), nil
}

// FileExtension implements Exporter.
func (e *HTMLExporter) FileExtension() string {
	return ".html"
}

// MimeType implements Exporter.
func (e *HTMLExporter) MimeType() string {
	return "text/html; charset=utf-8"
}

func (e *HTMLExporter) renderHeader(sb *strings.Builder, t *Transcript, title string) {
	sb.WriteString("        <header class=\"header\">\n")
	fmt.Fprintf(sb, "            <h1>%s</h1>\n", html.EscapeString(title))
	sb.WriteString("            <div class=\"metadata\">\n")
	if t.UserName != "" {
		fmt.Fprintf(sb, "                <span class=\"meta-item\"><strong>User:</strong> %s</span>\n", html.EscapeString(t.UserName))
	}
	if t.Model != "" {
		fmt.Fprintf(sb, "                <span class=\"meta-item\"><strong>Model:</strong> %s</span>\n", html.EscapeString(t.Model))
	}
	fmt.Fprintf(sb, "                <span class=\"meta-item\"><strong>Created:</strong> %s</span>\n", html.EscapeString(formatTimestamp(t.CreatedAt)))
	fmt.Fprintf(sb, "                <span class=\"meta-item\"><strong>Entries:</strong> %d</span>\n", len(t.Entries))
	sb.WriteString("            </div>\n")

	if len(t.Artifacts) > 0 {
		kinds := make([]string, 0, len(t.Artifacts))
		for k := range t.Artifacts {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		sb.WriteString("            <ul class=\"artifacts\">\n")
		for _, k := range kinds {
			fmt.Fprintf(sb, "                <li><strong>%s</strong> <code>%s</code></li>\n",
				html.EscapeString(k), html.EscapeString(t.Artifacts[k]))
		}
		sb.WriteString("            </ul>\n")
	}
	sb.WriteString("        </header>\n")
}

func (e *HTMLExporter) renderEntry(sb *strings.Builder, entry Entry) error {
	body, err := markdown.ToHTML(entry.Details)
	if err != nil {
		return fmt.Errorf("render %s: %w", entry.Type, err)
	}

	class := "entry"
	if entry.Type == "Details" {
		class += " dialogue"
	}
	fmt.Fprintf(sb, "            <section class=\"%s\">\n", class)
	sb.WriteString("                <div class=\"entry-header\">\n")
	fmt.Fprintf(sb, "                    <h2>%s</h2>\n", html.EscapeString(entry.Type))
	if e.options.IncludeTimestamps && !entry.At.IsZero() {
		fmt.Fprintf(sb, "                    <time datetime=\"%s\">%s</time>\n",
			entry.At.Format(time.RFC3339), formatShortTimestamp(entry.At))
	}
	sb.WriteString("                </div>\n")
	sb.WriteString("                <div class=\"entry-content\">\n")
	sb.WriteString(body)
	sb.WriteString("                </div>\n")
	sb.WriteString("            </section>\n")
	return nil
}

const transcriptCSS = `    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }

        .light-theme {
            --bg-primary: #ffffff;
            --bg-secondary: #f7f8fa;
            --bg-tertiary: #e1e4e8;
            --text-primary: #24292e;
            --text-muted: #6a737d;
            --border-color: #e1e4e8;
            --code-bg: #f6f8fa;
            --accent: #ff9900;
        }

        .dark-theme {
            --bg-primary: #1a1b26;
            --bg-secondary: #24283b;
            --bg-tertiary: #414868;
            --text-primary: #c0caf5;
            --text-muted: #565f89;
            --border-color: #414868;
            --code-bg: #1a1b26;
            --accent: #ff9900;
        }

        body {
            font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Arial, sans-serif;
            line-height: 1.6;
            color: var(--text-primary);
            background: var(--bg-primary);
            padding: 20px;
        }

        .container { max-width: 960px; margin: 0 auto; background: var(--bg-secondary); border-radius: 12px; overflow: hidden; }
        .header { padding: 32px; background: var(--bg-tertiary); border-bottom: 3px solid var(--accent); }
        .header h1 { font-size: 26px; margin-bottom: 12px; }
        .metadata { display: flex; flex-wrap: wrap; gap: 16px; font-size: 14px; color: var(--text-muted); }
        .artifacts { margin-top: 12px; padding-left: 20px; font-size: 14px; }
        .conversation { padding: 24px 32px; }
        .entry { padding: 20px 0; border-bottom: 1px solid var(--border-color); }
        .entry-header { display: flex; justify-content: space-between; align-items: baseline; margin-bottom: 12px; }
        .entry-header h2 { font-size: 20px; }
        .entry-header time { font-size: 12px; color: var(--text-muted); }
        .entry-content p, .entry-content ul, .entry-content ol, .entry-content table { margin-bottom: 12px; }
        .entry-content ul, .entry-content ol { padding-left: 24px; }
        .entry-content pre { background: var(--code-bg); padding: 12px; border-radius: 6px; overflow-x: auto; }
        .entry-content code { font-family: "SF Mono", Monaco, Consolas, monospace; font-size: 13px; }
        .entry-content table { border-collapse: collapse; }
        .entry-content th, .entry-content td { border: 1px solid var(--border-color); padding: 6px 10px; }
        .footer { padding: 16px 32px; font-size: 12px; color: var(--text-muted); text-align: center; }
    </style>
`
