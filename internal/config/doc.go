// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads and validates the devgenius configuration.
//
// # Configuration Precedence
//
//   - Environment variables (DEVGENIUS_*, ANTHROPIC_API_KEY, AWS_REGION)
//   - ~/.devgenius/config.toml (or the --config path)
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Model.ID)
//
// A running server can follow edits to the file with Watch.
package config
