// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session holds per-conversation state: the dialogue history sent to
// the model, the interaction log that becomes the transcript, and the keys of
// generated artifacts.
//
// # Key Types
//
//   - Session: one conversation, safe for concurrent use
//   - Manager: registry of live sessions with idle expiry
//
// # Usage
//
//	mgr := session.NewManager(session.DefaultConfig())
//	go mgr.Run(ctx)
//
//	sess := mgr.Create("Ada", "ada@example.com")
//	if err := sess.Begin(ctx); err != nil {
//	    return err
//	}
//	defer sess.End()
//
// Begin/End serialise model operations on a session so two turns never
// interleave their history updates.
package session
