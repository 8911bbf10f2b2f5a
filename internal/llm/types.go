// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import "context"

// =============================================================================
// MESSAGES
// =============================================================================

// Role identifies who authored a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Image is an inline picture attached to a user turn.
type Image struct {
	MediaType string `json:"media_type"` // image/png, image/jpeg, image/gif, image/webp
	Data      []byte `json:"data"`
}

// Message is a single conversation turn.
type Message struct {
	Role    Role    `json:"role"`
	Content string  `json:"content"`
	Images  []Image `json:"images,omitempty"`
}

// NewUserMessage creates a user turn.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewImageMessage creates a user turn whose images precede the text.
func NewImageMessage(content string, images ...Image) Message {
	return Message{Role: RoleUser, Content: content, Images: images}
}

// NewAssistantMessage creates an assistant turn.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// =============================================================================
// STREAM EVENTS
// =============================================================================

// StopReason is the model's reason for ending a response.
type StopReason string

const (
	StopReasonUnset        StopReason = ""
	StopReasonEndTurn      StopReason = "end_turn"
	StopReasonMaxTokens    StopReason = "max_tokens"
	StopReasonStopSequence StopReason = "stop_sequence"
	StopReasonToolUse      StopReason = "tool_use"
)

// IsSet reports whether a stop reason was observed.
func (r StopReason) IsSet() bool {
	return r != StopReasonUnset
}

// Truncated reports whether the response was cut off by the output token limit.
func (r StopReason) Truncated() bool {
	return r == StopReasonMaxTokens
}

// EventKind distinguishes the two stream events the pipeline cares about.
type EventKind int

const (
	// EventContentDelta carries a text fragment.
	EventContentDelta EventKind = iota
	// EventStopReason carries the stop reason of the message.
	EventStopReason
)

// String returns the kind name used in logs.
func (k EventKind) String() string {
	switch k {
	case EventContentDelta:
		return "content_delta"
	case EventStopReason:
		return "stop_reason"
	default:
		return "unknown"
	}
}

// StreamEvent is one decoded event from a model stream.
type StreamEvent struct {
	Kind       EventKind
	Text       string
	StopReason StopReason
}

// ContentDelta builds a text fragment event.
func ContentDelta(text string) StreamEvent {
	return StreamEvent{Kind: EventContentDelta, Text: text}
}

// StopEvent builds a stop reason event.
func StopEvent(reason StopReason) StreamEvent {
	return StreamEvent{Kind: EventStopReason, StopReason: reason}
}

// StreamResult is the folded outcome of one stream.
type StreamResult struct {
	Text       string     `json:"text"`
	StopReason StopReason `json:"stop_reason,omitempty"`
}

// =============================================================================
// TRANSPORT
// =============================================================================

// Request describes a single model invocation.
type Request struct {
	Messages []Message
	System   string

	MaxTokens   int
	Temperature float64

	// Reasoning enables extended thinking with ReasoningBudget tokens.
	// Providers force the temperature to 1 when it is on.
	Reasoning       bool
	ReasoningBudget int
}

// EventStream yields decoded events until it returns io.EOF.
// Any other error terminates the stream.
type EventStream interface {
	Next() (StreamEvent, error)
	Close() error
}

// Transport opens a streaming model invocation.
type Transport interface {
	Stream(ctx context.Context, req Request) (EventStream, error)
}

// Sink receives the full accumulated text after every content delta.
type Sink interface {
	Update(text string)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(text string)

// Update calls f(text).
func (f SinkFunc) Update(text string) {
	f(text)
}
