// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package solution

import "errors"

// GenericFailure is the only failure text shown to users.
const GenericFailure = "Internal error occurred. Please try again."

// IncompleteWarning accompanies artifacts whose continuation budget ran out.
const IncompleteWarning = "Reached maximum number of attempts. Final result is incomplete. Please try again."

// TruncatedWarning accompanies replies cut off by the output token limit.
const TruncatedWarning = "The response reached the output limit and is incomplete. Ask for the rest or try again."

var (
	// ErrUnknownKind is returned for unsupported artifact kinds.
	ErrUnknownKind = errors.New("unknown artifact kind")

	// ErrNoSolution is returned when an artifact is requested before the
	// model has proposed anything.
	ErrNoSolution = errors.New("no solution has been discussed yet")

	// ErrEmptyPrompt is returned for blank user input.
	ErrEmptyPrompt = errors.New("prompt is empty")

	// ErrUnknownTopic is returned for topic presets that do not exist.
	ErrUnknownTopic = errors.New("unknown topic")

	// ErrInvalidImage is returned for uploads that are not PNG, JPEG, GIF
	// or WebP images.
	ErrInvalidImage = errors.New("unsupported image")

	// ErrImageTooLarge is returned for uploads over MaxImageSize.
	ErrImageTooLarge = errors.New("image too large")

	// ErrConversationStarted is returned when an architecture image is
	// uploaded into a conversation that already has turns.
	ErrConversationStarted = errors.New("conversation already started")
)

// GenerationError is a post-processing failure (no code block, rejected
// diagram XML). Message is safe to show; Err carries the cause.
type GenerationError struct {
	Kind      Kind
	Message   string
	Retryable bool
	Err       error
}

func (e *GenerationError) Error() string {
	return e.Message
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

func newGenerationError(kind Kind, err error) *GenerationError {
	return &GenerationError{Kind: kind, Message: GenericFailure, Retryable: true, Err: err}
}
