// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package diagram

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// SANITIZE TESTS
// =============================================================================

func TestSanitize_Canonical(t *testing.T) {
	got, err := Sanitize("<mxGraphModel><root/></mxGraphModel>")
	require.NoError(t, err)
	assert.Equal(t, "<mxGraphModel><root /></mxGraphModel>", got)
}

func TestSanitize_DropsDeclarationCommentsAndWhitespace(t *testing.T) {
	input := `<?xml version="1.0" encoding="UTF-8"?>
<!-- generated -->
<mxfile host="app">
  <diagram name="Page-1">
    <mxGraphModel dx="1">
      <root>
        <mxCell id="0" />
      </root>
    </mxGraphModel>
  </diagram>
</mxfile>
`
	got, err := Sanitize(input)
	require.NoError(t, err)
	assert.Equal(t,
		`<mxfile host="app"><diagram name="Page-1"><mxGraphModel dx="1"><root><mxCell id="0" /></root></mxGraphModel></diagram></mxfile>`,
		got)
}

func TestSanitize_EscapesAttributes(t *testing.T) {
	got, err := Sanitize(`<mxCell value="a &amp; &lt;b&gt; &quot;c&quot;" style="x;&#10;y" />`)
	require.NoError(t, err)
	assert.Equal(t, `<mxCell value="a &amp; &lt;b&gt; &quot;c&quot;" style="x;&#10;y" />`, got)
}

func TestSanitize_KeepsText(t *testing.T) {
	got, err := Sanitize("<a>x &amp; y</a>")
	require.NoError(t, err)
	assert.Equal(t, "<a>x &amp; y</a>", got)
}

func TestSanitize_PrefixedNames(t *testing.T) {
	got, err := Sanitize(`<a xmlns:d="urn:x"><d:b d:k="v"/></a>`)
	require.NoError(t, err)
	assert.Equal(t, `<a xmlns:d="urn:x"><d:b d:k="v" /></a>`, got)
}

func TestSanitize_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"entity expansion", `<?xml version="1.0"?><!DOCTYPE foo [<!ENTITY xxe SYSTEM "file:///etc/passwd">]><foo>&xxe;</foo>`},
		{"billion laughs", `<!DOCTYPE lolz [<!ENTITY lol "lol"><!ENTITY lol2 "&lol;&lol;">]><lolz>&lol2;</lolz>`},
		{"external dtd", `<!DOCTYPE foo SYSTEM "http://evil.example/foo.dtd"><foo/>`},
		{"public dtd", `<!DOCTYPE foo PUBLIC "-//x//y" "http://evil.example/foo.dtd"><foo/>`},
		{"lowercase system dtd", `<!DOCTYPE foo system "http://evil.example/foo.dtd"><foo/>`},
		{"entity in subset after system", `<!DOCTYPE foo SYSTEM "x.dtd" [<!ENTITY a "b">]><foo/>`},
		{"undefined entity", `<foo>&undefined;</foo>`},
		{"unclosed", `<a><b></a>`},
		{"truncated", `<mxGraphModel><root>`},
		{"two roots", `<a/><b/>`},
		{"text outside root", `hello<a/>`},
		{"empty", ``},
		{"not xml", `this is not xml`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Sanitize(tt.input)
			require.Error(t, err)
			var pe *ParseError
			assert.True(t, errors.As(err, &pe))
			assert.Equal(t, "internal error, please retry", err.Error())
		})
	}
}

func TestSanitize_AllowsPlainDoctype(t *testing.T) {
	got, err := Sanitize(`<!DOCTYPE html><a/>`)
	require.NoError(t, err)
	assert.Equal(t, "<a />", got)

	got, err = Sanitize(`<!DOCTYPE entityModel><entityModel/>`)
	require.NoError(t, err)
	assert.Equal(t, "<entityModel />", got)

	got, err = Sanitize(`<!DOCTYPE systemPublic [<!ELEMENT systemPublic ANY>]><systemPublic/>`)
	require.NoError(t, err)
	assert.Equal(t, "<systemPublic />", got)
}

// =============================================================================
// RENDER TESTS
// =============================================================================

func TestEscape(t *testing.T) {
	assert.Equal(t, `&amp;amp;&lt;a&gt;\&quot;x\&quot;\n`, Escape("&amp;<a>\"x\"\n"))
}

func TestRender(t *testing.T) {
	out, err := Render("<mxGraphModel><root/></mxGraphModel>")
	require.NoError(t, err)

	assert.Contains(t, out, `&quot;xml&quot;:&quot;&lt;mxGraphModel&gt;&lt;root /&gt;&lt;/mxGraphModel&gt;\n&quot;}`)
	assert.Contains(t, out, `src="https://www.draw.io/js/viewer.min.js"`)
	assert.Contains(t, out, "max-width:100%")
	assert.NotContains(t, out, xmlPlaceholder)
}

func TestRender_InterpolatedSegmentIsInert(t *testing.T) {
	out, err := Render(`<a v="&quot;&gt;&lt;script&gt;alert(1)&lt;/script&gt;">t</a>`)
	require.NoError(t, err)

	start := strings.Index(out, "&quot;xml&quot;:&quot;") + len("&quot;xml&quot;:&quot;")
	end := strings.LastIndex(out, `\n&quot;}"`)
	require.Greater(t, end, start)
	segment := out[start:end]

	assert.NotContains(t, segment, "<")
	assert.NotContains(t, segment, ">")
	assert.NotContains(t, segment, `"`)
	assert.NotContains(t, out, "<script>alert")
}

func TestRender_RejectsHostileInput(t *testing.T) {
	_, err := Render(`<!DOCTYPE x [<!ENTITY e SYSTEM "file:///etc/passwd">]><x>&e;</x>`)
	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.NotEmpty(t, pe.Detail())
}
