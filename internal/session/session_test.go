// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/devgenius/internal/llm"
)

// =============================================================================
// SESSION TESTS
// =============================================================================

func TestSession_History(t *testing.T) {
	s := New("Ada", "ada@example.com")
	assert.NotEmpty(t, s.ID)
	assert.False(t, s.HasAssistantReply())

	s.Append(llm.NewUserMessage("I need an API"), llm.NewAssistantMessage("Use API Gateway"))
	s.Append(llm.NewUserMessage("cheaper?"), llm.NewAssistantMessage("Use Lambda URLs"))

	assert.True(t, s.HasAssistantReply())
	assert.Len(t, s.Messages(), 4)
	assert.Equal(t, "Use API Gateway\n\nUse Lambda URLs", s.AssistantText())

	// Messages returns a copy.
	msgs := s.Messages()
	msgs[0].Content = "changed"
	assert.Equal(t, "I need an API", s.Messages()[0].Content)
}

func TestSession_Transcript(t *testing.T) {
	s := New("", "")
	s.RecordInteraction("Details", "Use S3\n")
	s.RecordInteraction("Cost Analysis", "USD 5")

	got := s.Transcript()
	assert.True(t, strings.HasPrefix(got, "# Transcript\n"))
	assert.Contains(t, got, "## Details\n\nUse S3\n")
	assert.Less(t, strings.Index(got, "Details"), strings.Index(got, "Cost Analysis"))
}

func TestSession_Artifacts(t *testing.T) {
	s := New("", "")
	s.RecordArtifact("cost", "c/cost-1.md")
	s.RecordArtifact("cost", "c/cost-2.md")
	assert.Equal(t, map[string]string{"cost": "c/cost-2.md"}, s.Artifacts())
}

func TestSession_BeginSerialises(t *testing.T) {
	s := New("", "")
	require.NoError(t, s.Begin(context.Background()))
	assert.False(t, s.TryBegin())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Begin(ctx), context.DeadlineExceeded)

	s.End()
	assert.True(t, s.TryBegin())
	s.End()
}

func TestSession_ConcurrentAppend(t *testing.T) {
	s := New("", "")
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Append(llm.NewUserMessage("x"))
			_ = s.Messages()
			s.RecordInteraction("Details", "x")
		}()
	}
	wg.Wait()
	assert.Len(t, s.Messages(), 50)
	assert.Len(t, s.Interactions(), 50)
}

// =============================================================================
// MANAGER TESTS
// =============================================================================

func TestManager_CreateGetDelete(t *testing.T) {
	m := NewManager(DefaultConfig())
	s := m.Create("Ada", "")

	got, err := m.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)
	assert.Equal(t, 1, m.Len())

	m.Delete(s.ID)
	_, err = m.Get(s.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestManager_Expire(t *testing.T) {
	m := NewManager(Config{IdleTimeout: time.Minute})
	idle := m.Create("", "")
	active := m.Create("", "")
	busy := m.Create("", "")
	require.True(t, busy.TryBegin())

	var expired []string
	m.SetExpireCallback(func(s *Session) { expired = append(expired, s.ID) })

	m.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	active.mu.Lock()
	active.lastActivity = time.Now().Add(2 * time.Minute)
	active.mu.Unlock()

	n := m.Expire()
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{idle.ID}, expired)

	_, err := m.Get(active.ID)
	assert.NoError(t, err)
	_, err = m.Get(busy.ID)
	assert.NoError(t, err, "sessions with an operation in flight are kept")
}

func TestManager_RunStopsOnCancel(t *testing.T) {
	m := NewManager(Config{IdleTimeout: time.Minute, SweepInterval: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
