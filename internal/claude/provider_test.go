// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package claude

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/devgenius/internal/llm"
)

const sdkStream = `event: message_start
data: {"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","model":"claude-3-7-sonnet-20250219","content":[],"stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":5,"output_tokens":1}}}

event: content_block_start
data: {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}

event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hello"}}

event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":" world"}}

event: content_block_stop
data: {"type":"content_block_stop","index":0}

event: message_delta
data: {"type":"message_delta","delta":{"stop_reason":"end_turn","stop_sequence":null},"usage":{"output_tokens":2}}

event: message_stop
data: {"type":"message_stop"}

`

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(Config{APIKey: "sk-ant-test", BaseURL: server.URL, Model: "claude-test"})
}

func TestProvider_Stream(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, sdkStream)
	})

	stream, err := p.Stream(context.Background(), llm.Request{
		Messages: []llm.Message{llm.NewUserMessage("hi")},
	})
	require.NoError(t, err)
	defer stream.Close()

	result, err := llm.Accumulate(stream, nil)
	require.NoError(t, err)
	assert.Equal(t, "Hello world", result.Text)
	assert.Equal(t, llm.StopReasonEndTurn, result.StopReason)
}

func TestProvider_RateLimited(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`)
	})

	stream, err := p.Stream(context.Background(), llm.Request{
		Messages: []llm.Message{llm.NewUserMessage("hi")},
	})
	require.NoError(t, err)
	defer stream.Close()

	_, err = llm.Accumulate(stream, nil)
	require.Error(t, err)
	assert.True(t, llm.IsRateLimited(err))
}

func TestProvider_MidStreamErrors(t *testing.T) {
	tests := []struct {
		name        string
		data        string
		code        string
		rateLimited bool
	}{
		{"envelope", `{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`, "rate_limit_error", true},
		{"bare type", `{"type":"rate_limit_error"}`, "rate_limit_error", true},
		{"overloaded", `{"type":"error","error":{"type":"overloaded_error","message":"busy"}}`, "overloaded_error", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/event-stream")
				io.WriteString(w, "event: message_start\n"+
					`data: {"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","model":"claude-test","content":[],"stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":5,"output_tokens":1}}}`+"\n\n"+
					"event: error\ndata: "+tt.data+"\n\n")
			})

			stream, err := p.Stream(context.Background(), llm.Request{
				Messages: []llm.Message{llm.NewUserMessage("hi")},
			})
			require.NoError(t, err)
			defer stream.Close()

			_, err = llm.Accumulate(stream, nil)
			require.Error(t, err)
			var terr *llm.TransportError
			require.ErrorAs(t, err, &terr)
			assert.Equal(t, tt.code, terr.Code)
			assert.Equal(t, tt.rateLimited, llm.IsRateLimited(err))
		})
	}
}

func TestProvider_GatewayThrottlingBody(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"__type":"ThrottlingException","message":"Rate exceeded"}`)
	})

	stream, err := p.Stream(context.Background(), llm.Request{
		Messages: []llm.Message{llm.NewUserMessage("hi")},
	})
	require.NoError(t, err)
	defer stream.Close()

	_, err = llm.Accumulate(stream, nil)
	require.Error(t, err)
	var terr *llm.TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, http.StatusBadRequest, terr.Status)
	assert.Equal(t, "ThrottlingException", terr.Code)
	assert.True(t, llm.IsRateLimited(err))
}

func TestParseErrorBody(t *testing.T) {
	code, msg := parseErrorBody(`{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`)
	assert.Equal(t, "invalid_request_error", code)
	assert.Equal(t, "bad", msg)

	code, msg = parseErrorBody("not json")
	assert.Empty(t, code)
	assert.Empty(t, msg)
}

func TestProvider_NotConfigured(t *testing.T) {
	_, err := New(Config{}).Stream(context.Background(), llm.Request{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestProvider_Params(t *testing.T) {
	p := New(Config{APIKey: "k", Model: "claude-test"})

	params := p.params(llm.Request{
		Messages: []llm.Message{
			llm.NewUserMessage("a"),
			llm.NewAssistantMessage("b"),
		},
		System:          "be brief",
		Reasoning:       true,
		ReasoningBudget: 1024,
	})

	assert.Equal(t, "claude-test", p.Model())
	assert.Equal(t, int64(DefaultMaxTokens), params.MaxTokens)
	require.Len(t, params.Messages, 2)
	assert.Equal(t, "user", string(params.Messages[0].Role))
	assert.Equal(t, "assistant", string(params.Messages[1].Role))
	require.Len(t, params.System, 1)
	assert.Equal(t, "be brief", params.System[0].Text)
	assert.Equal(t, 1.0, params.Temperature.Value)
}

func TestProvider_ParamsWithImage(t *testing.T) {
	p := New(Config{APIKey: "k", Model: "claude-test"})

	params := p.params(llm.Request{
		Messages: []llm.Message{
			llm.NewImageMessage("explain", llm.Image{MediaType: "image/jpeg", Data: []byte("jpg")}),
		},
	})

	require.Len(t, params.Messages, 1)
	content := params.Messages[0].Content
	require.Len(t, content, 2)
	require.NotNil(t, content[0].OfImage)
	require.NotNil(t, content[0].OfImage.Source.OfBase64)
	assert.Equal(t, "anBn", content[0].OfImage.Source.OfBase64.Data)
	assert.Equal(t, "image/jpeg", string(content[0].OfImage.Source.OfBase64.MediaType))
	require.NotNil(t, content[1].OfText)
	assert.Equal(t, "explain", content[1].OfText.Text)
}
