// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// ErrNotFound is returned for unknown or expired session IDs.
var ErrNotFound = errors.New("session not found")

// Config holds configuration for the session manager.
type Config struct {
	// IdleTimeout removes sessions without activity (default: 30 minutes).
	IdleTimeout time.Duration

	// SweepInterval is how often Run checks for idle sessions (default: 1 minute).
	SweepInterval time.Duration
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		IdleTimeout:   30 * time.Minute,
		SweepInterval: time.Minute,
	}
}

// Manager tracks live sessions.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	cfg      Config
	onExpire func(*Session)
	now      func() time.Time
}

// NewManager creates a new session manager.
func NewManager(cfg Config) *Manager {
	def := DefaultConfig()
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = def.IdleTimeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	return &Manager{
		sessions: make(map[string]*Session),
		cfg:      cfg,
		now:      time.Now,
	}
}

// SetExpireCallback sets a function called for each session removed by Expire.
func (m *Manager) SetExpireCallback(fn func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = fn
}

// SetIdleTimeout updates the idle timeout.
func (m *Manager) SetIdleTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.IdleTimeout = d
}

// Create registers a new session.
func (m *Manager) Create(userName, userEmail string) *Session {
	s := New(userName, userEmail)
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	log.Printf("SESSION_CREATED | id=%s", s.ID)
	return s
}

// Get returns a live session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Delete removes a session.
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Expire removes idle sessions that are not in the middle of an operation
// and returns how many were removed.
func (m *Manager) Expire() int {
	m.mu.Lock()
	cutoff := m.now().Add(-m.cfg.IdleTimeout)
	var expired []*Session
	for id, s := range m.sessions {
		if !s.LastActivity().Before(cutoff) {
			continue
		}
		if !s.TryBegin() {
			continue
		}
		delete(m.sessions, id)
		expired = append(expired, s)
	}
	onExpire := m.onExpire
	m.mu.Unlock()

	for _, s := range expired {
		log.Printf("SESSION_EXPIRED | id=%s", s.ID)
		if onExpire != nil {
			onExpire(s)
		}
		s.End()
	}
	return len(expired)
}

// Run sweeps idle sessions until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Expire()
		}
	}
}
