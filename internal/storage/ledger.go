// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// LedgerTimeLayout is the timestamp format stored in the ledger.
const LedgerTimeLayout = "2006-01-02 15:04:05"

var (
	// ErrExplanationRequired is returned when feedback has no explanation.
	ErrExplanationRequired = errors.New("feedback explanation is required")

	// ErrSessionNotFound is returned when updating an unknown session.
	ErrSessionNotFound = errors.New("session not found")
)

// ConversationRecord is one stored prompt/response exchange.
type ConversationRecord struct {
	UUID              string `json:"uuid"`
	ConversationID    string `json:"conversation_id"`
	UserInput         string `json:"user_input"`
	AssistantResponse string `json:"assistant_response"`
	CreatedAt         string `json:"created_at"`
}

// FeedbackRecord is a rating on an assistant response.
type FeedbackRecord struct {
	UUID           string `json:"uuid"`
	ConversationID string `json:"conversation_id"`
	Positive       bool   `json:"positive"`
	Explanation    string `json:"explanation"`
	Response       string `json:"response"`
	Model          string `json:"model"`
	UseCase        string `json:"use_case"`
	CreatedAt      string `json:"created_at"`
}

// SessionRecord tracks who ran a conversation and where its bundle lives.
type SessionRecord struct {
	ConversationID string `json:"conversation_id"`
	UserName       string `json:"user_name"`
	UserEmail      string `json:"user_email"`
	BundleURL      string `json:"bundle_url"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

// Ledger is the SQLite-backed record of conversations, feedback and sessions.
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// OpenLedger opens (creating if needed) the database at path.
func OpenLedger(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	if _, err := db.Exec(`INSERT OR REPLACE INTO metadata(key, value) VALUES ('schema_version', ?)`, schemaVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to write schema version: %w", err)
	}

	return &Ledger{db: db, now: time.Now}, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

func (l *Ledger) timestamp() string {
	return l.now().UTC().Format(LedgerTimeLayout)
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

// SaveConversation records one exchange and returns its generated UUID.
func (l *Ledger) SaveConversation(ctx context.Context, conversationID, userInput, response string) (string, error) {
	id := uuid.NewString()
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO conversations(uuid, conversation_id, user_response, assistant_response, conversation_time)
		 VALUES (?, ?, ?, ?, ?)`,
		id, conversationID, userInput, response, l.timestamp())
	if err != nil {
		return "", fmt.Errorf("save conversation: %w", err)
	}
	return id, nil
}

// History returns a conversation's exchanges in insertion order.
func (l *Ledger) History(ctx context.Context, conversationID string) ([]ConversationRecord, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT uuid, conversation_id, user_response, assistant_response, conversation_time
		 FROM conversations WHERE conversation_id = ? ORDER BY rowid`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []ConversationRecord
	for rows.Next() {
		var r ConversationRecord
		if err := rows.Scan(&r.UUID, &r.ConversationID, &r.UserInput, &r.AssistantResponse, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// =============================================================================
// FEEDBACK
// =============================================================================

// SaveFeedback records a rating. An explanation is mandatory.
func (l *Ledger) SaveFeedback(ctx context.Context, fb FeedbackRecord) (string, error) {
	if strings.TrimSpace(fb.Explanation) == "" {
		return "", ErrExplanationRequired
	}
	if fb.UUID == "" {
		fb.UUID = uuid.NewString()
	}
	score := 0
	if fb.Positive {
		score = 1
	}

	_, err := l.db.ExecContext(ctx,
		`INSERT INTO feedback(uuid, conversation_id, feedback, feedback_explanation, response, model, use_case, conversation_time)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		fb.UUID, fb.ConversationID, score, fb.Explanation, fb.Response, fb.Model, fb.UseCase, l.timestamp())
	if err != nil {
		return "", fmt.Errorf("save feedback: %w", err)
	}
	log.Printf("FEEDBACK_SAVED | conversation=%s positive=%t", fb.ConversationID, fb.Positive)
	return fb.UUID, nil
}

// Feedback returns the feedback recorded for a conversation.
func (l *Ledger) Feedback(ctx context.Context, conversationID string) ([]FeedbackRecord, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT uuid, conversation_id, feedback, feedback_explanation, response, model, use_case, conversation_time
		 FROM feedback WHERE conversation_id = ? ORDER BY rowid`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query feedback: %w", err)
	}
	defer rows.Close()

	var out []FeedbackRecord
	for rows.Next() {
		var r FeedbackRecord
		var score int
		if err := rows.Scan(&r.UUID, &r.ConversationID, &score, &r.Explanation, &r.Response, &r.Model, &r.UseCase, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan feedback: %w", err)
		}
		r.Positive = score == 1
		out = append(out, r)
	}
	return out, rows.Err()
}

// =============================================================================
// SESSIONS
// =============================================================================

// SaveSession records the start of a conversation. Saving an existing
// session refreshes the user details.
func (l *Ledger) SaveSession(ctx context.Context, conversationID, userName, userEmail string) error {
	now := l.timestamp()
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO sessions(conversation_id, user_name, user_email, session_start_time, session_update_time)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(conversation_id) DO UPDATE SET
		     user_name = excluded.user_name,
		     user_email = excluded.user_email,
		     session_update_time = excluded.session_update_time`,
		conversationID, userName, userEmail, now, now)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// UpdateSession stores the bundle location for a conversation.
func (l *Ledger) UpdateSession(ctx context.Context, conversationID, bundleURL string) error {
	res, err := l.db.ExecContext(ctx,
		`UPDATE sessions SET presigned_url = ?, session_update_time = ? WHERE conversation_id = ?`,
		bundleURL, l.timestamp(), conversationID)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, conversationID)
	}
	return nil
}

// Session returns a stored session.
func (l *Ledger) Session(ctx context.Context, conversationID string) (*SessionRecord, error) {
	var r SessionRecord
	err := l.db.QueryRowContext(ctx,
		`SELECT conversation_id, user_name, user_email, presigned_url, session_start_time, session_update_time
		 FROM sessions WHERE conversation_id = ?`, conversationID).
		Scan(&r.ConversationID, &r.UserName, &r.UserEmail, &r.BundleURL, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, conversationID)
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return &r, nil
}
