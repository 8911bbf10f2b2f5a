// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Error types and exit codes for CLI commands.
//
// Handlers always return errors; main prints them with DisplayError and
// exits with ExitCode.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jeranaias/devgenius/internal/config"
	"github.com/jeranaias/devgenius/internal/llm"
	"github.com/jeranaias/devgenius/internal/markdown"
	"github.com/jeranaias/devgenius/internal/solution"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	ExitUsageError   = 2
	ExitConfigError  = 3
	ExitNetworkError = 5
	ExitNotFound     = 7
	ExitTimeout      = 8
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// UsageError reports invalid command-line usage.
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string {
	return e.Message
}

func usageErrorf(format string, args ...any) error {
	return &UsageError{Message: fmt.Sprintf(format, args...)}
}

// UnknownCommandError is returned for an unrecognised command name.
type UnknownCommandError struct {
	Name       string
	Suggestion string
}

func (e *UnknownCommandError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("unknown command %q (did you mean %q?)", e.Name, e.Suggestion)
	}
	return fmt.Sprintf("unknown command %q", e.Name)
}

// CommandError wraps a failure with the command that produced it.
type CommandError struct {
	Command string
	Action  string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Command, e.Action, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

func commandError(command, action string, err error) error {
	if err == nil {
		return nil
	}
	return &CommandError{Command: command, Action: action, Err: err}
}

// =============================================================================
// DISPLAY
// =============================================================================

// ExitCode maps an error to a process exit code.
func ExitCode(err error) int {
	var usage *UsageError
	var unknown *UnknownCommandError
	var cfgErrs config.ValidateErrors
	switch {
	case err == nil:
		return ExitSuccess
	case errors.As(err, &usage), errors.As(err, &unknown),
		errors.Is(err, solution.ErrUnknownKind), errors.Is(err, solution.ErrEmptyPrompt),
		errors.Is(err, solution.ErrUnknownTopic), errors.Is(err, solution.ErrInvalidImage),
		errors.Is(err, solution.ErrImageTooLarge):
		return ExitUsageError
	case errors.As(err, &cfgErrs), errors.Is(err, errConfig):
		return ExitConfigError
	case errors.Is(err, markdown.ErrNotFound), errors.Is(err, solution.ErrNoSolution):
		return ExitNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return ExitTimeout
	case llm.IsRateLimited(err):
		return ExitNetworkError
	}
	var te *llm.TransportError
	if errors.As(err, &te) {
		return ExitNetworkError
	}
	return ExitGeneralError
}

// DisplayError writes err to w in the error style.
func DisplayError(w io.Writer, err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(w, ErrorStyle.Render("Error: ")+err.Error())
	var unknown *UnknownCommandError
	if errors.As(err, &unknown) {
		fmt.Fprintln(w, DimStyle.Render("Run 'devgenius help' for usage."))
	}
}
