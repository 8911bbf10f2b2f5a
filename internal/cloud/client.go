// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jeranaias/devgenius/internal/llm"
)

// Configuration constants for the Messages API.
const (
	// DefaultBaseURL is the public Anthropic API endpoint.
	DefaultBaseURL = "https://api.anthropic.com"

	// DefaultAPIVersion is sent as the anthropic-version header.
	DefaultAPIVersion = "2023-06-01"

	// DefaultModel is used when no model is configured.
	DefaultModel = "claude-3-7-sonnet-20250219"

	// DefaultReadTimeout bounds a whole streaming request. Long generations
	// with extended thinking can run for many minutes.
	DefaultReadTimeout = 1000 * time.Second

	// DefaultMaxTokens is used when a request does not set MaxTokens.
	DefaultMaxTokens = 64000

	// MaxResponseSize caps how much of an error body is read.
	MaxResponseSize = 10 * 1024 * 1024
)

// ErrNotConfigured indicates the API key is not set.
var ErrNotConfigured = errors.New("model API key not configured")

// sharedTransport pools connections across clients.
var sharedTransport = &http.Transport{
	MaxIdleConns:        100,
	MaxIdleConnsPerHost: 10,
	IdleConnTimeout:     90 * time.Second,
	TLSHandshakeTimeout: 10 * time.Second,
	TLSClientConfig: &tls.Config{
		MinVersion: tls.VersionTLS12,
	},
}

// Client streams completions from the Messages API.
type Client struct {
	apiKey     string
	baseURL    string
	apiVersion string
	model      string
	httpClient *http.Client
}

// NewClient creates a client with the default endpoint, model and timeout.
// An empty key yields a client whose Stream calls fail with ErrNotConfigured.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    DefaultBaseURL,
		apiVersion: DefaultAPIVersion,
		model:      DefaultModel,
		httpClient: &http.Client{
			Transport: sharedTransport,
			Timeout:   DefaultReadTimeout,
		},
	}
}

// WithBaseURL sets a custom base URL, e.g. a gateway in front of Bedrock.
func (c *Client) WithBaseURL(url string) *Client {
	if url != "" {
		c.baseURL = strings.TrimRight(url, "/")
	}
	return c
}

// WithModel sets the model identifier.
func (c *Client) WithModel(model string) *Client {
	if model != "" {
		c.model = model
	}
	return c
}

// WithAPIVersion overrides the anthropic-version header.
func (c *Client) WithAPIVersion(version string) *Client {
	if version != "" {
		c.apiVersion = version
	}
	return c
}

// WithReadTimeout bounds each streaming request.
func (c *Client) WithReadTimeout(timeout time.Duration) *Client {
	if timeout > 0 {
		c.httpClient.Timeout = timeout
	}
	return c
}

// WithHTTPClient replaces the HTTP client (tests use httptest clients).
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc != nil {
		c.httpClient = hc
	}
	return c
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

// IsConfigured reports whether an API key is present.
func (c *Client) IsConfigured() bool {
	return c.apiKey != ""
}

// KeyFingerprint returns the first 8 hex chars of the key's SHA-256, for logs.
func (c *Client) KeyFingerprint() string {
	if c.apiKey == "" {
		return "none"
	}
	h := sha256.Sum256([]byte(c.apiKey))
	return hex.EncodeToString(h[:4])
}

// =============================================================================
// REQUEST
// =============================================================================

type thinkingConfig struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens"`
}

// apiMessage carries either a plain string or a list of content blocks.
type apiMessage struct {
	Role    llm.Role `json:"role"`
	Content any      `json:"content"`
}

type contentBlock struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *imageSource `json:"source,omitempty"`
}

type imageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

func toAPIMessages(msgs []llm.Message) []apiMessage {
	out := make([]apiMessage, len(msgs))
	for i, m := range msgs {
		if len(m.Images) == 0 {
			out[i] = apiMessage{Role: m.Role, Content: m.Content}
			continue
		}
		blocks := make([]contentBlock, 0, len(m.Images)+1)
		for _, img := range m.Images {
			blocks = append(blocks, contentBlock{Type: "image", Source: &imageSource{
				Type:      "base64",
				MediaType: img.MediaType,
				Data:      base64.StdEncoding.EncodeToString(img.Data),
			}})
		}
		if m.Content != "" {
			blocks = append(blocks, contentBlock{Type: "text", Text: m.Content})
		}
		out[i] = apiMessage{Role: m.Role, Content: blocks}
	}
	return out
}

type messagesRequest struct {
	Model       string          `json:"model"`
	MaxTokens   int             `json:"max_tokens"`
	System      string          `json:"system,omitempty"`
	Messages    []apiMessage    `json:"messages"`
	Temperature *float64        `json:"temperature,omitempty"`
	Thinking    *thinkingConfig `json:"thinking,omitempty"`
	Stream      bool            `json:"stream"`
}

func (c *Client) buildRequest(req llm.Request) messagesRequest {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	body := messagesRequest{
		Model:     c.model,
		MaxTokens: maxTokens,
		System:    req.System,
		Messages:  toAPIMessages(req.Messages),
		Stream:    true,
	}

	temperature := req.Temperature
	if req.Reasoning {
		temperature = 1
		body.Thinking = &thinkingConfig{Type: "enabled", BudgetTokens: req.ReasoningBudget}
	}
	body.Temperature = &temperature
	return body
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", c.apiVersion)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("User-Agent", "devgenius/1.0")
}

// Stream opens a streaming Messages request. Non-2xx responses are mapped to
// *llm.TransportError (wrapped in *llm.RateLimitError for 429).
func (c *Client) Stream(ctx context.Context, req llm.Request) (llm.EventStream, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	bodyBytes, err := json.Marshal(c.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq)

	log.Printf("MODEL_REQUEST | model=%s messages=%d reasoning=%t key=%s",
		c.model, len(req.Messages), req.Reasoning, c.KeyFingerprint())

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	httpReq.Header.Del("x-api-key")
	if err != nil {
		return nil, &llm.TransportError{Message: "request failed", Err: err}
	}
	log.Printf("MODEL_RESPONSE | status=%d latency=%v", resp.StatusCode, time.Since(start).Round(time.Millisecond))

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := readResponse(resp)
		return nil, handleErrorResponse(resp, body)
	}

	return newEventStream(resp.Body), nil
}

// =============================================================================
// ERRORS
// =============================================================================

// apiErrorResponse covers both the Anthropic error envelope and the flat
// Bedrock shape.
type apiErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
	Message  string `json:"message"`
	AmznType string `json:"__type"`
}

// readResponse reads an error body with a size limit.
func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}

// handleErrorResponse converts an HTTP error response into a typed error.
func handleErrorResponse(resp *http.Response, body []byte) error {
	terr := &llm.TransportError{Status: resp.StatusCode}

	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil {
		terr.Code = apiErr.Error.Type
		terr.Message = apiErr.Error.Message
		if terr.Code == "" {
			terr.Code = apiErr.AmznType
		}
		if terr.Message == "" {
			terr.Message = apiErr.Message
		}
	}
	if terr.Code == "" {
		// x-amzn-ErrorType: ThrottlingException:http://internal.amazon.com/...
		terr.Code, _, _ = strings.Cut(resp.Header.Get("x-amzn-ErrorType"), ":")
	}
	if terr.Message == "" {
		terr.Message = strings.TrimSpace(string(body))
		if terr.Message == "" {
			terr.Message = http.StatusText(resp.StatusCode)
		}
	}

	log.Printf("MODEL_ERROR | status=%d code=%s", terr.Status, terr.Code)

	if resp.StatusCode == http.StatusTooManyRequests {
		return &llm.RateLimitError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")), Err: terr}
	}
	return terr
}

// parseRetryAfter accepts either delta-seconds or an HTTP date.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
