// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package llm holds the provider-neutral streaming pipeline used to talk to
// the model: the event and message types, the chunk accumulator, the
// rate-limit retry loop and the continuation planner that stitches answers
// cut off by the output token limit.
//
// Transports (see internal/cloud and internal/claude) turn a provider's wire
// format into a sequence of StreamEvents. Everything above them works only on
// those events.
package llm
