// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server exposes the design assistant over HTTP.
//
// # Endpoints
//
//   - POST /v1/conversations                          - Start a conversation
//   - GET  /v1/conversations/{id}                     - Conversation state
//   - POST /v1/conversations/{id}/messages            - One dialogue turn (JSON or SSE)
//   - POST /v1/conversations/{id}/analysis            - Analyze an uploaded architecture diagram
//   - POST /v1/conversations/{id}/artifacts/{kind}    - Generate an artifact
//   - POST /v1/conversations/{id}/feedback            - Rate a reply or artifact
//   - GET  /v1/conversations/{id}/bundle              - Zip of transcript and artifacts
//   - GET  /v1/conversations/{id}/transcript          - Transcript as html, md or json
//   - GET  /v1/conversations/{id}/ledger              - Stored session, history and feedback
//   - GET  /v1/topics                                 - Preset conversation topics
//   - GET  /health                                    - Health check
//   - GET  /stats                                     - Usage counters
//
// # Middleware
//
//   - Panic recovery
//   - Security headers
//   - Request logging
//   - Per-IP rate limiting (golang.org/x/time/rate)
//   - Optional bearer token authentication with constant-time comparison
//
// # Usage
//
//	srv := server.New(svc, sessions, server.Options{Port: 8787})
//	if err := srv.Run(ctx); err != nil {
//		log.Fatal(err)
//	}
package server
