// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package markdown

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// EXTRACTION TESTS
// =============================================================================

func TestExtractCodeBlock(t *testing.T) {
	src := "Here is the diagram:\n\n```xml\n<a/>\n```\n\nDone."

	got, err := ExtractCodeBlock(src, "xml")
	require.NoError(t, err)
	assert.Equal(t, "<a/>\n", got)
}

func TestExtractCodeBlock_FirstMatchWins(t *testing.T) {
	src := "```yaml\nfirst: 1\n```\n\n```xml\n<x/>\n```\n\n```yaml\nsecond: 2\n```\n"

	got, err := ExtractCodeBlock(src, "yaml")
	require.NoError(t, err)
	assert.Equal(t, "first: 1\n", got)

	blocks, err := ExtractCodeBlocks(src, "yaml")
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.Equal(t, "second: 2\n", blocks[1].Content)
}

func TestExtractCodeBlock_NotFound(t *testing.T) {
	_, err := ExtractCodeBlock("no code here", "xml")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = ExtractCodeBlock("```python\nprint(1)\n```", "xml")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExtractCodeBlock_IgnoresInlineAndIndented(t *testing.T) {
	src := "Use `xml` inline.\n\n    <indented/>\n"
	_, err := ExtractCodeBlock(src, "xml")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExtractCodeBlock_CaseInsensitiveTagAndInfo(t *testing.T) {
	src := "~~~YAML title=template\nResources: {}\n~~~\n"
	got, err := ExtractCodeBlock(src, "yaml")
	require.NoError(t, err)
	assert.Equal(t, "Resources: {}\n", got)
}

func TestExtractCodeBlock_PreservesContent(t *testing.T) {
	body := "Resources:\n  Bucket:\n    Type: AWS::S3::Bucket\n\n    # comment\n"
	src := "```yaml\n" + body + "```\n"
	got, err := ExtractCodeBlock(src, "yaml")
	require.NoError(t, err)
	assert.Equal(t, body, got)
}

func TestExtractCodeBlocks_AnyLanguage(t *testing.T) {
	src := "```\nplain\n```\n```go\nfunc main() {}\n```\n"
	blocks, err := ExtractCodeBlocks(src, "")
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.Equal(t, "", blocks[0].Language)
	assert.Equal(t, "go", blocks[1].Language)
}

// =============================================================================
// RENDERING TESTS
// =============================================================================

func TestToHTML(t *testing.T) {
	out, err := ToHTML("# Cost\n\n| a | b |\n|---|---|\n| 1 | 2 |\n\n<script>x</script>\n")
	require.NoError(t, err)
	assert.Contains(t, out, "<h1>Cost</h1>")
	assert.Contains(t, out, "<table>")
	assert.NotContains(t, out, "<script>")
}

func TestRenderer_NotTTYStyle(t *testing.T) {
	r := NewRenderer("notty", 40)
	out := r.Render("# Title\n\nbody")
	assert.Contains(t, out, "Title")
	assert.Contains(t, out, "body")
}

func TestRenderer_NilPassesThrough(t *testing.T) {
	var r *Renderer
	assert.Equal(t, "raw", r.Render("raw"))
}

func TestHighlight(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Highlight(&buf, "Resources: {}", "yaml"))
	assert.True(t, strings.Contains(buf.String(), "Resources"))
}
