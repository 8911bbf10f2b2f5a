// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the devgenius command line.
//
// # Commands
//
//   - chat: interactive design conversation (default)
//   - ask: single prompt, optionally followed by artifact generation
//   - serve: HTTP API with config hot reload
//   - render: draw.io XML to sanitized HTML
//   - extract: print fenced code blocks from saved answers
//   - version, help
//
// # Usage
//
//	cmd, args, err := cli.Parse()
//	switch cmd {
//	case cli.CmdAsk:
//	    err = cli.HandleAsk(args)
//	case cli.CmdChat:
//	    err = cli.HandleChat(args)
//	// ...
//	}
//
// Handlers return errors; main prints them with DisplayError and exits
// with ExitCode.
package cli
