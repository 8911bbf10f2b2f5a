// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/devgenius/internal/llm"
)

// Interaction is one titled entry of the transcript.
type Interaction struct {
	Type    string    `json:"type"`
	Details string    `json:"details"`
	At      time.Time `json:"at"`
}

// Session is one design conversation.
type Session struct {
	ID        string
	UserName  string
	UserEmail string
	CreatedAt time.Time

	busy chan struct{}

	mu           sync.Mutex
	messages     []llm.Message
	interactions []Interaction
	artifacts    map[string]string
	lastActivity time.Time
}

// New creates a session with a fresh UUID.
func New(userName, userEmail string) *Session {
	now := time.Now()
	return &Session{
		ID:           uuid.NewString(),
		UserName:     userName,
		UserEmail:    userEmail,
		CreatedAt:    now,
		busy:         make(chan struct{}, 1),
		artifacts:    make(map[string]string),
		lastActivity: now,
	}
}

// Begin reserves the session for one model operation, waiting for any
// operation already in flight.
func (s *Session) Begin(ctx context.Context) error {
	select {
	case s.busy <- struct{}{}:
		s.Touch()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryBegin is Begin without waiting.
func (s *Session) TryBegin() bool {
	select {
	case s.busy <- struct{}{}:
		s.Touch()
		return true
	default:
		return false
	}
}

// End releases a reservation taken by Begin or TryBegin.
func (s *Session) End() {
	select {
	case <-s.busy:
	default:
	}
	s.Touch()
}

// Touch records activity.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// LastActivity returns the time of the last recorded activity.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// =============================================================================
// HISTORY
// =============================================================================

// Messages returns a copy of the dialogue history.
func (s *Session) Messages() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]llm.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Append adds turns to the dialogue history.
func (s *Session) Append(msgs ...llm.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msgs...)
	s.lastActivity = time.Now()
}

// HasAssistantReply reports whether the model has answered at least once.
func (s *Session) HasAssistantReply() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.Role == llm.RoleAssistant {
			return true
		}
	}
	return false
}

// AssistantText joins all assistant turns with blank lines.
func (s *Session) AssistantText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var parts []string
	for _, m := range s.messages {
		if m.Role == llm.RoleAssistant {
			parts = append(parts, m.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}

// =============================================================================
// TRANSCRIPT AND ARTIFACTS
// =============================================================================

// RecordInteraction appends a transcript entry.
func (s *Session) RecordInteraction(kind, details string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interactions = append(s.interactions, Interaction{Type: kind, Details: details, At: time.Now()})
}

// Interactions returns a copy of the transcript entries.
func (s *Session) Interactions() []Interaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Interaction, len(s.interactions))
	copy(out, s.interactions)
	return out
}

// Transcript renders the interactions as markdown.
func (s *Session) Transcript() string {
	var b strings.Builder
	b.WriteString("# Transcript\n")
	for _, in := range s.Interactions() {
		b.WriteString("\n## ")
		b.WriteString(in.Type)
		b.WriteString("\n\n")
		b.WriteString(strings.TrimSpace(in.Details))
		b.WriteString("\n")
	}
	return b.String()
}

// RecordArtifact remembers the storage key of the latest artifact of kind.
func (s *Session) RecordArtifact(kind, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts[kind] = key
}

// Artifacts returns kind → storage key for generated artifacts.
func (s *Session) Artifacts() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.artifacts))
	for k, v := range s.artifacts {
		out[k] = v
	}
	return out
}
