// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package diagram turns model-generated draw.io XML into an embeddable
// viewer snippet. The XML is untrusted: it is parsed with entity expansion
// disabled and re-serialised before being placed inside an HTML attribute.
package diagram

import (
	"log"
	"strings"
)

const xmlPlaceholder = "{{XML}}"

// viewerTemplate is the draw.io viewer embed. The diagram XML goes inside the
// JSON "xml" value of the data-mxgraph attribute.
const viewerTemplate = `
<div class="mxgraph" style="max-width:100%;border:1px solid transparent;" data-mxgraph="{&quot;highlight&quot;:&quot;#0000ff&quot;,&quot;nav&quot;:true,&quot;resize&quot;:true,&quot;toolbar&quot;:&quot;zoom layers tags lightbox&quot;,&quot;edit&quot;:&quot;_blank&quot;,&quot;xml&quot;:&quot;{{XML}}\n&quot;}"></div>
<script type="text/javascript" src="https://www.draw.io/js/viewer.min.js"></script>
`

// escapeOrder is applied in sequence; & must come first so later
// replacements are not escaped twice.
var escapeOrder = [][2]string{
	{"&", "&amp;"},
	{"<", "&lt;"},
	{">", "&gt;"},
	{`"`, `\&quot;`},
	{"\n", `\n`},
}

// Escape prepares canonical XML for the JSON-in-attribute slot.
func Escape(s string) string {
	for _, r := range escapeOrder {
		s = strings.ReplaceAll(s, r[0], r[1])
	}
	return s
}

// Render sanitises xmlText and substitutes it into the viewer template.
// Malformed or hostile input yields a *ParseError.
func Render(xmlText string) (string, error) {
	canonical, err := Sanitize(xmlText)
	if err != nil {
		if pe, ok := err.(*ParseError); ok {
			log.Printf("DIAGRAM_REJECTED | reason=%s", pe.Detail())
		}
		return "", err
	}
	return strings.Replace(viewerTemplate, xmlPlaceholder, Escape(canonical), 1), nil
}
