// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrRateLimited matches every error the provider uses to signal throttling.
var ErrRateLimited = errors.New("rate limited")

// throttlingCodes are provider error codes treated as rate limiting.
var throttlingCodes = map[string]bool{
	"ThrottlingException":      true,
	"TooManyRequestsException": true,
	"rate_limit_error":         true,
}

// TransportError is a failure reported by the provider or the connection to it.
type TransportError struct {
	Status  int    // HTTP status, 0 when the failure happened mid-stream
	Code    string // provider error code, e.g. "overloaded_error"
	Message string
	Err     error
}

func (e *TransportError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	switch {
	case e.Status != 0 && e.Code != "":
		return fmt.Sprintf("model request failed (status %d, %s): %s", e.Status, e.Code, msg)
	case e.Status != 0:
		return fmt.Sprintf("model request failed (status %d): %s", e.Status, msg)
	case e.Code != "":
		return fmt.Sprintf("model request failed (%s): %s", e.Code, msg)
	default:
		return "model request failed: " + msg
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RateLimited reports whether the error is in the throttling class.
func (e *TransportError) RateLimited() bool {
	return e.Status == http.StatusTooManyRequests || throttlingCodes[e.Code]
}

// Is lets errors.Is(err, ErrRateLimited) match throttling failures.
func (e *TransportError) Is(target error) bool {
	return target == ErrRateLimited && e.RateLimited()
}

// RateLimitError is returned when the provider answered 429 and carries the
// advertised Retry-After, if any.
type RateLimitError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited: retry after %v", e.RetryAfter)
	}
	if e.Err != nil {
		return "rate limited: " + e.Err.Error()
	}
	return "rate limited"
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// IsRateLimited reports whether err belongs to the rate-limited class.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}
