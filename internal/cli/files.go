// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// files.go - Offline commands that work on saved model output.
//
//	devgenius render diagram.xml -o diagram.html
//	devgenius extract --lang yaml cfn-20250304-050607.md > template.yaml

package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/jeranaias/devgenius/internal/diagram"
	"github.com/jeranaias/devgenius/internal/markdown"
	"github.com/jeranaias/devgenius/internal/util"
)

// MaxInputSize bounds files read by render and extract.
const MaxInputSize = 10 * 1024 * 1024

// readInput reads path, or stdin for "-".
func readInput(path string) (string, error) {
	var r io.Reader
	if path == "-" {
		r = stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return "", err
		}
		defer f.Close()
		r = f
	}
	data, err := io.ReadAll(io.LimitReader(r, MaxInputSize+1))
	if err != nil {
		return "", err
	}
	if len(data) > MaxInputSize {
		return "", fmt.Errorf("%s exceeds %d bytes", path, MaxInputSize)
	}
	return string(data), nil
}

// HandleRender renders draw.io XML to a standalone HTML page. The input may
// be the XML itself or markdown containing an ```xml block.
func HandleRender(args Args) error {
	src, err := readInput(args.File)
	if err != nil {
		return commandError("render", "read", err)
	}
	xmlText := src
	if code, err := markdown.ExtractCodeBlock(src, "xml"); err == nil {
		xmlText = code
	}

	page, err := diagram.Render(xmlText)
	if err != nil {
		return commandError("render", "sanitize diagram", err)
	}

	if args.Output == "" {
		_, err := io.WriteString(stdout, page)
		return err
	}
	if err := util.AtomicWriteFile(args.Output, []byte(page), 0644); err != nil {
		return commandError("render", "write", err)
	}
	if !args.Quiet {
		fmt.Fprintln(stderr, SuccessStyle.Render("Wrote ")+args.Output)
	}
	return nil
}

// HandleExtract prints the first (or, with --all, every) fenced block
// tagged --lang. Output is highlighted when stdout is a terminal.
func HandleExtract(args Args) error {
	src, err := readInput(args.File)
	if err != nil {
		return commandError("extract", "read", err)
	}

	var blocks []markdown.CodeBlock
	if args.All {
		blocks, err = markdown.ExtractCodeBlocks(src, args.Lang)
	} else {
		var code string
		code, err = markdown.ExtractCodeBlock(src, args.Lang)
		blocks = []markdown.CodeBlock{{Language: args.Lang, Content: code}}
	}
	if err != nil {
		return commandError("extract", "find code block", err)
	}

	highlight := IsStdoutTTY() && ColorsEnabled()
	for i, b := range blocks {
		if i > 0 {
			fmt.Fprintln(stdout)
		}
		if highlight {
			lang := b.Language
			if lang == "" {
				lang = args.Lang
			}
			if err := markdown.Highlight(stdout, b.Content, lang); err == nil {
				continue
			}
		}
		io.WriteString(stdout, b.Content)
		if len(b.Content) > 0 && b.Content[len(b.Content)-1] != '\n' {
			fmt.Fprintln(stdout)
		}
	}
	return nil
}
