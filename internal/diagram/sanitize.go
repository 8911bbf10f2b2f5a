// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package diagram

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ParseError reports XML the sanitizer refused. Error() is deliberately
// generic; the cause is available through Unwrap for logs.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	return "internal error, please retry"
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Detail returns the reason and cause for logging.
func (e *ParseError) Detail() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func parseErr(reason string, err error) *ParseError {
	return &ParseError{Reason: reason, Err: err}
}

// element is the minimal tree kept after sanitising. Children are either
// *element or string (character data).
type element struct {
	name     string
	attrs    []xml.Attr
	children []any
}

// Sanitize parses untrusted XML and re-serialises it canonically. Entity
// declarations and external DTD references are rejected. Comments,
// processing instructions, the XML declaration and whitespace-only text are
// dropped. Childless elements are written as <name />.
func Sanitize(input string) (string, error) {
	root, err := parse(input)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	root.write(&b)
	return b.String(), nil
}

func parse(input string) (*element, error) {
	dec := xml.NewDecoder(strings.NewReader(input))
	dec.Strict = true

	var root *element
	var stack []*element

	for {
		tok, err := dec.RawToken()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, parseErr("malformed xml", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if root != nil && len(stack) == 0 {
				return nil, parseErr("multiple root elements", nil)
			}
			el := &element{name: qualified(t.Name), attrs: make([]xml.Attr, 0, len(t.Attr))}
			for _, a := range t.Attr {
				el.attrs = append(el.attrs, xml.Attr{Name: xml.Name{Local: qualified(a.Name)}, Value: a.Value})
			}
			if len(stack) == 0 {
				root = el
			} else {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, el)
			}
			stack = append(stack, el)

		case xml.EndElement:
			if len(stack) == 0 {
				return nil, parseErr("unexpected end element", fmt.Errorf("</%s>", qualified(t.Name)))
			}
			top := stack[len(stack)-1]
			if top.name != qualified(t.Name) {
				return nil, parseErr("mismatched end element",
					fmt.Errorf("<%s> closed by </%s>", top.name, qualified(t.Name)))
			}
			stack = stack[:len(stack)-1]

		case xml.CharData:
			if len(bytes.TrimSpace(t)) == 0 {
				continue
			}
			if len(stack) == 0 {
				return nil, parseErr("text outside root element", nil)
			}
			parent := stack[len(stack)-1]
			parent.children = append(parent.children, string(t))

		case xml.Directive:
			if err := checkDirective(t); err != nil {
				return nil, err
			}

		case xml.Comment, xml.ProcInst:
			// dropped
		}
	}

	if len(stack) != 0 {
		return nil, parseErr("unclosed element", fmt.Errorf("<%s>", stack[len(stack)-1].name))
	}
	if root == nil {
		return nil, parseErr("empty document", nil)
	}
	return root, nil
}

// checkDirective rejects entity declarations and external DTDs. Only the
// declaration tokens count; names that merely contain the keywords pass.
func checkDirective(d xml.Directive) error {
	upper := bytes.ToUpper(bytes.TrimSpace(d))
	if bytes.HasPrefix(upper, []byte("ENTITY")) || bytes.Contains(upper, []byte("<!ENTITY")) {
		return parseErr("entity declarations are forbidden", nil)
	}
	rest, ok := bytes.CutPrefix(upper, []byte("DOCTYPE"))
	if !ok {
		return nil
	}
	// DOCTYPE name [SYSTEM|PUBLIC ...] [internal subset]
	head, _, _ := bytes.Cut(rest, []byte("["))
	fields := bytes.Fields(head)
	if len(fields) > 1 && (bytes.Equal(fields[1], []byte("SYSTEM")) || bytes.Equal(fields[1], []byte("PUBLIC"))) {
		return parseErr("external DTD references are forbidden", nil)
	}
	return nil
}

// qualified folds a namespace prefix back into the name as written.
func qualified(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}

var (
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	attrEscaper = strings.NewReplacer(
		"&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;",
		"\n", "&#10;", "\r", "&#13;", "\t", "&#09;",
	)
)

func (e *element) write(b *strings.Builder) {
	b.WriteByte('<')
	b.WriteString(e.name)
	for _, a := range e.attrs {
		b.WriteByte(' ')
		b.WriteString(a.Name.Local)
		b.WriteString(`="`)
		b.WriteString(attrEscaper.Replace(a.Value))
		b.WriteByte('"')
	}
	if len(e.children) == 0 {
		b.WriteString(" />")
		return
	}
	b.WriteByte('>')
	for _, child := range e.children {
		switch c := child.(type) {
		case *element:
			c.write(b)
		case string:
			b.WriteString(textEscaper.Replace(c))
		}
	}
	b.WriteString("</")
	b.WriteString(e.name)
	b.WriteByte('>')
}
