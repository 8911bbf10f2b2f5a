// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/devgenius/internal/llm"
	"github.com/jeranaias/devgenius/internal/llm/llmtest"
)

// =============================================================================
// ACCUMULATOR TESTS
// =============================================================================

func TestAccumulate_ConcatenatesInOrder(t *testing.T) {
	events := []llm.StreamEvent{
		llm.ContentDelta("Hel"),
		llm.ContentDelta("lo"),
		llm.StopEvent(llm.StopReasonEndTurn),
	}

	var updates []string
	result, err := llm.Accumulate(llmtest.NewStream(events, nil), llm.SinkFunc(func(text string) {
		updates = append(updates, text)
	}))
	require.NoError(t, err)

	assert.Equal(t, "Hello", result.Text)
	assert.Equal(t, llm.StopReasonEndTurn, result.StopReason)
	assert.Equal(t, []string{"Hel", "Hello"}, updates)
}

func TestAccumulate_TruncatedResponse(t *testing.T) {
	events := []llm.StreamEvent{
		llm.ContentDelta("A"),
		llm.StopEvent(llm.StopReasonMaxTokens),
	}

	result, err := llm.Accumulate(llmtest.NewStream(events, nil), nil)
	require.NoError(t, err)
	assert.Equal(t, "A", result.Text)
	assert.True(t, result.StopReason.Truncated())
}

func TestAccumulate_EmptyStream(t *testing.T) {
	result, err := llm.Accumulate(llmtest.NewStream(nil, nil), nil)
	require.NoError(t, err)
	assert.Equal(t, "", result.Text)
	assert.False(t, result.StopReason.IsSet())
}

func TestAccumulate_LastStopReasonWins(t *testing.T) {
	events := []llm.StreamEvent{
		llm.StopEvent(llm.StopReasonMaxTokens),
		llm.ContentDelta("x"),
		llm.StopEvent(llm.StopReasonEndTurn),
		// an event without a reason does not clear the previous one
		llm.StopEvent(llm.StopReasonUnset),
	}

	result, err := llm.Accumulate(llmtest.NewStream(events, nil), nil)
	require.NoError(t, err)
	assert.Equal(t, llm.StopReasonEndTurn, result.StopReason)
}

func TestAccumulate_EmptyDeltaDoesNotNotifySink(t *testing.T) {
	calls := 0
	sink := llm.SinkFunc(func(string) { calls++ })

	_, err := llm.Accumulate(llmtest.NewStream([]llm.StreamEvent{llm.ContentDelta("")}, nil), sink)
	require.NoError(t, err)
	assert.Zero(t, calls)
}

func TestAccumulate_StreamErrorReturnsPartial(t *testing.T) {
	boom := errors.New("connection reset")
	stream := llmtest.NewStream([]llm.StreamEvent{llm.ContentDelta("partial")}, boom)

	result, err := llm.Accumulate(stream, nil)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, "partial", result.Text)
}

func TestAccumulator_Stats(t *testing.T) {
	acc := llm.NewAccumulator(nil)
	acc.Add(llm.ContentDelta("a"))
	acc.Add(llm.ContentDelta("b"))
	acc.Add(llm.StopEvent(llm.StopReasonEndTurn))

	stats := acc.Stats()
	assert.Equal(t, 2, stats.DeltaCount)
	assert.GreaterOrEqual(t, stats.TotalTime, stats.FirstDeltaTime)
}
