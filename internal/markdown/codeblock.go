// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package markdown parses and renders the model's markdown answers: fenced
// code block extraction, HTML conversion and terminal rendering.
package markdown

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// ErrNotFound is returned when no fenced block carries the requested tag.
var ErrNotFound = errors.New("no fenced code block found")

// CodeBlock is one fenced block.
type CodeBlock struct {
	Language string
	Content  string
}

// ExtractCodeBlocks returns every fenced block tagged lang, in document
// order. The tag comparison is case-insensitive; an empty lang matches
// blocks with any tag, including none.
func ExtractCodeBlocks(source, lang string) ([]CodeBlock, error) {
	src := []byte(source)
	doc := goldmark.DefaultParser().Parse(text.NewReader(src))

	var blocks []CodeBlock
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		fenced, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}

		tag := string(fenced.Language(src))
		if lang != "" && !strings.EqualFold(tag, lang) {
			return ast.WalkSkipChildren, nil
		}

		var buf bytes.Buffer
		lines := fenced.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(seg.Value(src))
		}
		blocks = append(blocks, CodeBlock{Language: tag, Content: buf.String()})
		return ast.WalkSkipChildren, nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk markdown: %w", err)
	}
	if len(blocks) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, lang)
	}
	return blocks, nil
}

// ExtractCodeBlock returns the content of the first block tagged lang.
func ExtractCodeBlock(source, lang string) (string, error) {
	blocks, err := ExtractCodeBlocks(source, lang)
	if err != nil {
		return "", err
	}
	return blocks[0].Content, nil
}
