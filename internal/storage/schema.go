// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

// schemaVersion is stored in the metadata table.
const schemaVersion = "1"

const schema = `
CREATE TABLE IF NOT EXISTS metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
) WITHOUT ROWID;

-- One row per prompt/response exchange
CREATE TABLE IF NOT EXISTS conversations (
    uuid TEXT PRIMARY KEY,
    conversation_id TEXT NOT NULL,
    user_response TEXT NOT NULL,
    assistant_response TEXT NOT NULL,
    conversation_time TEXT NOT NULL  -- "YYYY-MM-DD HH:MM:SS" UTC
);

CREATE INDEX IF NOT EXISTS idx_conversations_conversation_id ON conversations(conversation_id);

CREATE TABLE IF NOT EXISTS feedback (
    uuid TEXT PRIMARY KEY,
    conversation_id TEXT NOT NULL,
    feedback INTEGER NOT NULL,       -- 1 thumbs up, 0 thumbs down
    feedback_explanation TEXT NOT NULL,
    response TEXT NOT NULL,
    model TEXT NOT NULL,
    use_case TEXT NOT NULL,
    conversation_time TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_feedback_conversation_id ON feedback(conversation_id);

CREATE TABLE IF NOT EXISTS sessions (
    conversation_id TEXT PRIMARY KEY,
    user_name TEXT NOT NULL DEFAULT '',
    user_email TEXT NOT NULL DEFAULT '',
    presigned_url TEXT NOT NULL DEFAULT '',
    session_start_time TEXT NOT NULL,
    session_update_time TEXT NOT NULL
);
`
