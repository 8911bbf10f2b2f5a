// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package claude implements llm.Transport on top of the official Anthropic
// Go SDK. It is the default provider; internal/cloud offers the same wire
// protocol over plain HTTP for gateways the SDK cannot reach.
package claude

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/jeranaias/devgenius/internal/llm"
)

// DefaultMaxTokens is used when a request does not set MaxTokens.
const DefaultMaxTokens = 64000

// ErrNotConfigured indicates the API key is not set.
var ErrNotConfigured = errors.New("anthropic API key not configured")

// Config holds the provider settings.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	ReadTimeout time.Duration
	HTTPClient  *http.Client
}

// Provider streams messages through the SDK.
type Provider struct {
	client anthropic.Client
	model  anthropic.Model
	ready  bool
}

// New builds a provider. SDK-level retries are disabled; rate limiting is
// handled by llm.InvokeWithRetry.
func New(cfg Config) *Provider {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.ReadTimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.ReadTimeout))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	model := anthropic.Model(cfg.Model)
	if model == "" {
		model = anthropic.ModelClaude3_7SonnetLatest
	}

	return &Provider{
		client: anthropic.NewClient(opts...),
		model:  model,
		ready:  cfg.APIKey != "",
	}
}

// Model returns the configured model identifier.
func (p *Provider) Model() string {
	return string(p.model)
}

func (p *Provider) params(req llm.Request) anthropic.MessageNewParams {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	messages := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(m.Images)+1)
		for _, img := range m.Images {
			blocks = append(blocks, anthropic.NewImageBlockBase64(img.MediaType, base64.StdEncoding.EncodeToString(img.Data)))
		}
		if m.Content != "" || len(blocks) == 0 {
			blocks = append(blocks, anthropic.NewTextBlock(m.Content))
		}
		if m.Role == llm.RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(blocks...))
		} else {
			messages = append(messages, anthropic.NewUserMessage(blocks...))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: int64(maxTokens),
		Messages:  messages,
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Reasoning {
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(int64(req.ReasoningBudget))
		params.Temperature = anthropic.Float(1)
	} else {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	return params
}

// Stream opens a streaming request.
func (p *Provider) Stream(ctx context.Context, req llm.Request) (llm.EventStream, error) {
	if !p.ready {
		return nil, ErrNotConfigured
	}
	log.Printf("MODEL_REQUEST | provider=anthropic model=%s messages=%d reasoning=%t",
		p.model, len(req.Messages), req.Reasoning)
	return &eventStream{stream: p.client.Messages.NewStreaming(ctx, p.params(req))}, nil
}

type eventStream struct {
	stream *ssestream.Stream[anthropic.MessageStreamEventUnion]
}

func (s *eventStream) Next() (llm.StreamEvent, error) {
	for s.stream.Next() {
		switch ev := s.stream.Current().AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			if delta, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok && delta.Text != "" {
				return llm.ContentDelta(delta.Text), nil
			}
		case anthropic.MessageDeltaEvent:
			if ev.Delta.StopReason != "" {
				return llm.StopEvent(llm.StopReason(ev.Delta.StopReason)), nil
			}
		}
	}
	if err := s.stream.Err(); err != nil {
		return llm.StreamEvent{}, mapError(err)
	}
	return llm.StreamEvent{}, io.EOF
}

func (s *eventStream) Close() error {
	return s.stream.Close()
}

// streamErrorPrefix is how the SDK reports an SSE "error" event; the event
// data follows it verbatim.
const streamErrorPrefix = "received error while streaming: "

// errorBody covers the Anthropic error envelope, the bare event shape and
// the flat Bedrock gateway shape.
type errorBody struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
	Message  string `json:"message"`
	AmznType string `json:"__type"`
}

// parseErrorBody extracts the provider error code and message.
func parseErrorBody(raw string) (code, message string) {
	var body errorBody
	if err := json.Unmarshal([]byte(raw), &body); err != nil {
		return "", ""
	}
	code = body.Error.Type
	if code == "" {
		code = body.AmznType
	}
	if code == "" && body.Type != "error" {
		code = body.Type
	}
	message = body.Error.Message
	if message == "" {
		message = body.Message
	}
	return code, message
}

// mapError converts SDK errors into the llm error taxonomy.
func mapError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		terr := &llm.TransportError{Status: apiErr.StatusCode, Err: err}
		terr.Code, terr.Message = parseErrorBody(apiErr.RawJSON())
		if terr.Code == "" && apiErr.Response != nil {
			terr.Code, _, _ = strings.Cut(apiErr.Response.Header.Get("x-amzn-ErrorType"), ":")
		}
		if terr.Message == "" {
			terr.Message = http.StatusText(apiErr.StatusCode)
		}
		log.Printf("MODEL_ERROR | provider=anthropic status=%d code=%s", apiErr.StatusCode, terr.Code)
		if apiErr.StatusCode == http.StatusTooManyRequests {
			return &llm.RateLimitError{Err: terr}
		}
		return terr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if data, ok := strings.CutPrefix(err.Error(), streamErrorPrefix); ok {
		terr := &llm.TransportError{Message: "stream failed", Err: err}
		if code, msg := parseErrorBody(data); code != "" {
			terr.Code = code
			if msg != "" {
				terr.Message = msg
			}
		}
		log.Printf("MODEL_ERROR | provider=anthropic status=stream code=%s", terr.Code)
		return terr
	}
	return &llm.TransportError{Message: "stream failed", Err: err}
}
