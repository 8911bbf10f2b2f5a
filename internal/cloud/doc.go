// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cloud implements llm.Transport over the Anthropic Messages API
// using plain HTTP and Server-Sent Events.
//
// # Usage
//
//	client := cloud.NewClient(apiKey).
//	    WithModel("claude-3-7-sonnet-20250219").
//	    WithReadTimeout(1000 * time.Second)
//	stream, err := client.Stream(ctx, llm.Request{
//	    Messages:  []llm.Message{llm.NewUserMessage("Hello")},
//	    MaxTokens: 1024,
//	})
//
// The endpoint is compatible with gateways that front Bedrock, so throttling
// codes such as ThrottlingException are recognised alongside HTTP 429.
//
// # Security
//
// API keys are never logged. Only a SHA-256 fingerprint is written to logs
// and the Authorization material is stripped from the request once sent.
package cloud
