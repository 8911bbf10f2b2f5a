// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"context"
	"fmt"
	"log"
	"time"
)

// RetryPolicy bounds the rate-limit retry loop.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryPolicy allows three attempts starting at one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second}
}

// Delay returns the sleep before the retry that follows a failed attempt
// (0-based): BaseDelay * 2^attempt.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	return p.BaseDelay * time.Duration(int64(1)<<uint(attempt))
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	return p
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// ContextSleep is the default Sleeper.
func ContextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// InvokeOptions configure InvokeWithRetry.
type InvokeOptions struct {
	Retry RetryPolicy
	Sink  Sink
	Sleep Sleeper
}

// InvokeWithRetry runs one streaming request to completion. Rate-limited
// failures restart the whole stream after an exponential delay until the
// attempts are used up; every other error is returned immediately.
func InvokeWithRetry(ctx context.Context, t Transport, req Request, opts InvokeOptions) (StreamResult, error) {
	policy := opts.Retry.normalized()
	sleep := opts.Sleep
	if sleep == nil {
		sleep = ContextSleep
	}

	for attempt := 0; ; attempt++ {
		result, err := invokeOnce(ctx, t, req, opts.Sink)
		if err == nil {
			return result, nil
		}
		if !IsRateLimited(err) {
			return StreamResult{}, err
		}
		if attempt >= policy.MaxAttempts-1 {
			log.Printf("RATE_LIMIT_EXHAUSTED | attempts=%d", policy.MaxAttempts)
			return StreamResult{}, fmt.Errorf("giving up after %d attempts: %w", policy.MaxAttempts, err)
		}

		delay := policy.Delay(attempt)
		log.Printf("RATE_LIMITED | attempt=%d/%d delay=%v", attempt+1, policy.MaxAttempts, delay)
		if err := sleep(ctx, delay); err != nil {
			return StreamResult{}, err
		}
	}
}

func invokeOnce(ctx context.Context, t Transport, req Request, sink Sink) (StreamResult, error) {
	stream, err := t.Stream(ctx, req)
	if err != nil {
		return StreamResult{}, err
	}
	defer stream.Close()

	acc := NewAccumulator(sink)
	result, err := drain(stream, acc)
	if err != nil {
		return StreamResult{}, err
	}

	stats := acc.Stats()
	log.Printf("STREAM_DONE | deltas=%d first_delta=%v total=%v stop=%s",
		stats.DeltaCount, stats.FirstDeltaTime.Round(time.Millisecond),
		stats.TotalTime.Round(time.Millisecond), result.StopReason)
	return result, nil
}
