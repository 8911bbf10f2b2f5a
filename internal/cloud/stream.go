// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/jeranaias/devgenius/internal/llm"
)

// MaxEventSize is the maximum size of a single SSE event payload.
const MaxEventSize = 1024 * 1024

// ErrEventTooLarge is returned when an SSE event exceeds MaxEventSize.
var ErrEventTooLarge = errors.New("stream event exceeds maximum size")

// =============================================================================
// SSE READER
// =============================================================================

// SSEReader parses Server-Sent Events from a stream.
type SSEReader struct {
	reader *bufio.Reader
}

// NewSSEReader creates a new SSE reader from an io.Reader.
func NewSSEReader(r io.Reader) *SSEReader {
	return &SSEReader{reader: bufio.NewReader(r)}
}

// ReadEvent reads the next event and returns its name and data.
// Multiple data lines are joined with "\n". Returns io.EOF when the stream
// ends with no pending event.
func (s *SSEReader) ReadEvent() (string, []byte, error) {
	var eventType string
	var data []byte
	hasData := false

	for {
		line, err := s.reader.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", nil, err
		}
		eof := errors.Is(err, io.EOF)

		line = bytes.TrimRight(line, "\r\n")
		switch {
		case len(line) == 0:
			if hasData {
				return eventType, data, nil
			}
		case bytes.HasPrefix(line, []byte("event:")):
			eventType = string(bytes.TrimSpace(line[len("event:"):]))
		case bytes.HasPrefix(line, []byte("data:")):
			value := bytes.TrimPrefix(line[len("data:"):], []byte(" "))
			if hasData {
				data = append(data, '\n')
			}
			data = append(data, value...)
			hasData = true
			if len(data) > MaxEventSize {
				return "", nil, ErrEventTooLarge
			}
		}
		// id:, retry: and ":" comments are ignored.

		if eof {
			if hasData {
				return eventType, data, nil
			}
			return "", nil, io.EOF
		}
	}
}

// =============================================================================
// EVENT DECODING
// =============================================================================

type streamPayload struct {
	Type  string `json:"type"`
	Delta struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// eventStream adapts an SSE body to llm.EventStream.
type eventStream struct {
	body   io.ReadCloser
	reader *SSEReader
	done   bool
}

func newEventStream(body io.ReadCloser) *eventStream {
	return &eventStream{body: body, reader: NewSSEReader(body)}
}

// Next returns the next text delta or stop reason. Events the pipeline does
// not use (ping, message_start, content_block_start/stop, thinking deltas)
// are skipped.
func (s *eventStream) Next() (llm.StreamEvent, error) {
	for {
		if s.done {
			return llm.StreamEvent{}, io.EOF
		}

		name, data, err := s.reader.ReadEvent()
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.done = true
				return llm.StreamEvent{}, io.EOF
			}
			return llm.StreamEvent{}, &llm.TransportError{Message: "stream read failed", Err: err}
		}
		if bytes.Equal(data, []byte("[DONE]")) {
			s.done = true
			continue
		}

		var payload streamPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return llm.StreamEvent{}, &llm.TransportError{Message: fmt.Sprintf("malformed %q event", name), Err: err}
		}
		if name == "" {
			name = payload.Type
		}

		switch name {
		case "content_block_delta":
			if payload.Delta.Type == "text_delta" && payload.Delta.Text != "" {
				return llm.ContentDelta(payload.Delta.Text), nil
			}
		case "message_delta":
			if payload.Delta.StopReason != "" {
				return llm.StopEvent(llm.StopReason(payload.Delta.StopReason)), nil
			}
		case "message_stop":
			s.done = true
		case "error":
			return llm.StreamEvent{}, &llm.TransportError{Code: payload.Error.Type, Message: payload.Error.Message}
		}
	}
}

// Close releases the response body.
func (s *eventStream) Close() error {
	s.done = true
	return s.body.Close()
}
