// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/devgenius/internal/llm"
	"github.com/jeranaias/devgenius/internal/llm/llmtest"
)

// recordSleeps returns a Sleeper that records delays without waiting.
func recordSleeps(delays *[]time.Duration) llm.Sleeper {
	return func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func throttled() error {
	return &llm.TransportError{Code: "ThrottlingException", Message: "slow down"}
}

// =============================================================================
// CLASSIFICATION TESTS
// =============================================================================

func TestIsRateLimited(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"throttling code", &llm.TransportError{Code: "ThrottlingException"}, true},
		{"too many requests code", &llm.TransportError{Code: "TooManyRequestsException"}, true},
		{"anthropic code", &llm.TransportError{Code: "rate_limit_error"}, true},
		{"status 429", &llm.TransportError{Status: http.StatusTooManyRequests}, true},
		{"rate limit error", &llm.RateLimitError{RetryAfter: time.Second}, true},
		{"wrapped", errors.Join(errors.New("ctx"), &llm.TransportError{Status: 429}), true},
		{"server error", &llm.TransportError{Status: 500, Code: "api_error"}, false},
		{"overloaded", &llm.TransportError{Status: 529, Code: "overloaded_error"}, false},
		{"plain", errors.New("boom"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, llm.IsRateLimited(tt.err))
		})
	}
}

// =============================================================================
// RETRY TESTS
// =============================================================================

func TestInvokeWithRetry_SucceedsFirstTime(t *testing.T) {
	transport := llmtest.New(llmtest.Reply("ok", llm.StopReasonEndTurn))
	var delays []time.Duration

	result, err := llm.InvokeWithRetry(context.Background(), transport, llm.Request{}, llm.InvokeOptions{
		Retry: llm.DefaultRetryPolicy(),
		Sleep: recordSleeps(&delays),
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Text)
	assert.Equal(t, 1, transport.Calls())
	assert.Empty(t, delays)
}

func TestInvokeWithRetry_RecoversAfterThrottling(t *testing.T) {
	transport := llmtest.New(
		llmtest.Fail(throttled()),
		llmtest.Reply("ok", llm.StopReasonEndTurn),
	)
	var delays []time.Duration

	result, err := llm.InvokeWithRetry(context.Background(), transport, llm.Request{}, llm.InvokeOptions{
		Retry: llm.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second},
		Sleep: recordSleeps(&delays),
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Text)
	assert.Equal(t, 2, transport.Calls())
	assert.Equal(t, []time.Duration{time.Second}, delays)
}

func TestInvokeWithRetry_ExponentialDelays(t *testing.T) {
	// k = 3 throttled attempts followed by success, within budget.
	transport := llmtest.New(
		llmtest.Fail(throttled()),
		llmtest.Fail(throttled()),
		llmtest.Fail(throttled()),
		llmtest.Reply("done", llm.StopReasonEndTurn),
	)
	var delays []time.Duration

	_, err := llm.InvokeWithRetry(context.Background(), transport, llm.Request{}, llm.InvokeOptions{
		Retry: llm.RetryPolicy{MaxAttempts: 5, BaseDelay: 100 * time.Millisecond},
		Sleep: recordSleeps(&delays),
	})
	require.NoError(t, err)
	assert.Equal(t, 4, transport.Calls())
	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
	}, delays)
}

func TestInvokeWithRetry_GivesUpAfterMaxAttempts(t *testing.T) {
	transport := llmtest.New(llmtest.Fail(throttled()))
	var delays []time.Duration

	_, err := llm.InvokeWithRetry(context.Background(), transport, llm.Request{}, llm.InvokeOptions{
		Retry: llm.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second},
		Sleep: recordSleeps(&delays),
	})
	require.Error(t, err)
	assert.True(t, llm.IsRateLimited(err))
	assert.Equal(t, 3, transport.Calls())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, delays)
}

func TestInvokeWithRetry_NonRateLimitedFailsImmediately(t *testing.T) {
	boom := &llm.TransportError{Status: 500, Code: "api_error", Message: "internal"}
	transport := llmtest.New(llmtest.Fail(boom))
	var delays []time.Duration

	_, err := llm.InvokeWithRetry(context.Background(), transport, llm.Request{}, llm.InvokeOptions{
		Retry: llm.DefaultRetryPolicy(),
		Sleep: recordSleeps(&delays),
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, transport.Calls())
	assert.Empty(t, delays)
}

func TestInvokeWithRetry_MidStreamThrottlingRestartsStream(t *testing.T) {
	transport := llmtest.New(
		llmtest.Step{Events: []llm.StreamEvent{llm.ContentDelta("dup")}, StreamErr: throttled()},
		llmtest.Reply("fresh", llm.StopReasonEndTurn),
	)
	var delays []time.Duration

	result, err := llm.InvokeWithRetry(context.Background(), transport, llm.Request{}, llm.InvokeOptions{
		Retry: llm.DefaultRetryPolicy(),
		Sleep: recordSleeps(&delays),
	})
	require.NoError(t, err)
	// Partial text from the failed attempt is discarded.
	assert.Equal(t, "fresh", result.Text)
}

func TestInvokeWithRetry_ContextCancelledDuringBackoff(t *testing.T) {
	transport := llmtest.New(llmtest.Fail(throttled()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := llm.InvokeWithRetry(context.Background(), transport, llm.Request{}, llm.InvokeOptions{
		Retry: llm.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Hour},
		Sleep: func(context.Context, time.Duration) error { return ctx.Err() },
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, transport.Calls())
}

func TestRetryPolicy_Delay(t *testing.T) {
	p := llm.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second}
	assert.Equal(t, time.Second, p.Delay(0))
	assert.Equal(t, 2*time.Second, p.Delay(1))
	assert.Equal(t, 4*time.Second, p.Delay(2))
}

func TestContextSleep_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, llm.ContextSleep(ctx, time.Hour), context.Canceled)
}
