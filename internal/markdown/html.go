// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package markdown

import (
	"bytes"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// htmlConverter renders GitHub-flavoured markdown (tables matter for cost
// estimates). Raw HTML in the source is escaped, not passed through.
var htmlConverter = goldmark.New(goldmark.WithExtensions(extension.GFM))

// ToHTML converts markdown to an HTML fragment.
func ToHTML(source string) (string, error) {
	var buf bytes.Buffer
	if err := htmlConverter.Convert([]byte(source), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
