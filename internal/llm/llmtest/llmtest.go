// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package llmtest provides a scripted llm.Transport for tests.
package llmtest

import (
	"context"
	"io"
	"sync"

	"github.com/jeranaias/devgenius/internal/llm"
)

// Step scripts one call to Transport.Stream.
type Step struct {
	// OpenErr is returned by Stream itself.
	OpenErr error
	// Events are yielded in order, then StreamErr (or io.EOF when nil).
	Events    []llm.StreamEvent
	StreamErr error
}

// Reply is a step that streams text in one delta and then stops.
func Reply(text string, stop llm.StopReason) Step {
	events := []llm.StreamEvent{llm.ContentDelta(text)}
	if stop.IsSet() {
		events = append(events, llm.StopEvent(stop))
	}
	return Step{Events: events}
}

// Fail is a step whose Stream call fails with err.
func Fail(err error) Step {
	return Step{OpenErr: err}
}

// Transport replays Steps, one per Stream call. The last step repeats once
// the script runs out.
type Transport struct {
	mu       sync.Mutex
	steps    []Step
	requests []llm.Request
}

// New creates a Transport that plays steps in order.
func New(steps ...Step) *Transport {
	return &Transport{steps: steps}
}

// Stream records req and plays the next step.
func (t *Transport) Stream(ctx context.Context, req llm.Request) (llm.EventStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	idx := len(t.requests)
	t.requests = append(t.requests, req)
	if len(t.steps) == 0 {
		return NewStream(nil, nil), nil
	}
	if idx >= len(t.steps) {
		idx = len(t.steps) - 1
	}
	step := t.steps[idx]
	if step.OpenErr != nil {
		return nil, step.OpenErr
	}
	return NewStream(step.Events, step.StreamErr), nil
}

// Calls returns how many times Stream was called.
func (t *Transport) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.requests)
}

// Requests returns a copy of every request received.
func (t *Transport) Requests() []llm.Request {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]llm.Request, len(t.requests))
	copy(out, t.requests)
	return out
}

// Stream is an llm.EventStream over a fixed slice.
type Stream struct {
	events []llm.StreamEvent
	err    error
	pos    int
	closed bool
}

// NewStream yields events, then err (io.EOF when nil).
func NewStream(events []llm.StreamEvent, err error) *Stream {
	return &Stream{events: events, err: err}
}

// Next returns the next scripted event.
func (s *Stream) Next() (llm.StreamEvent, error) {
	if s.closed {
		return llm.StreamEvent{}, io.ErrClosedPipe
	}
	if s.pos < len(s.events) {
		ev := s.events[s.pos]
		s.pos++
		return ev, nil
	}
	if s.err != nil {
		return llm.StreamEvent{}, s.err
	}
	return llm.StreamEvent{}, io.EOF
}

// Close marks the stream closed.
func (s *Stream) Close() error {
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *Stream) Closed() bool {
	return s.closed
}
