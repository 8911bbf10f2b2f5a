// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists everything a design session produces.
//
// # Key Types
//
//   - ArtifactStore: key/value object store on the local filesystem; keys
//     look like "{conversation}/{kind}-{YYYYMMDD-HHMMSS}.md"
//   - Ledger: SQLite record of prompts, responses, feedback and sessions
//
// # Usage
//
//	store, err := storage.NewArtifactStore(filepath.Join(dataDir, "artifacts"))
//	key := storage.ArtifactKey(conversationID, "cost", time.Now())
//	err = store.Put(key, []byte(markdown))
//
//	ledger, err := storage.OpenLedger(filepath.Join(dataDir, "ledger.db"))
//	defer ledger.Close()
//	id, err := ledger.SaveConversation(ctx, conversationID, prompt, response)
//
// Bundle zips a conversation's markdown artifacts together with its
// transcript for download.
package storage
