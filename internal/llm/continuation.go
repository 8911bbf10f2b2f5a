// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// DefaultMaxRounds bounds how many times a truncated answer is continued,
// counting the first request.
const DefaultMaxRounds = 4

const continuationTemplate = `Please analyze the prompt and initial answer below. The initial answer was cut off by the output token limit.
Continue the answer so that it stays relevant to the prompt, starting exactly where the initial answer stops. Do not repeat any of the initial answer.

<PROMPT>
%s
</PROMPT>

<INITIAL ANSWER>
%s
</INITIAL ANSWER>
`

// ContinuationPrompt builds the single-message request that asks the model to
// resume partial, an answer to originalPrompt that hit the token limit.
func ContinuationPrompt(originalPrompt, partial string) []Message {
	return []Message{NewUserMessage(fmt.Sprintf(continuationTemplate, originalPrompt, partial))}
}

// ContinuationOptions configure GenerateWithContinuation.
type ContinuationOptions struct {
	InvokeOptions
	MaxRounds int
}

// Generation is the stitched result of one or more continuation rounds.
type Generation struct {
	Text       string
	StopReason StopReason
	Rounds     int
	// Incomplete is set when the round budget ran out while the last round
	// was still truncated.
	Incomplete bool
}

// GenerateWithContinuation sends req and, while the answer stops on the token
// limit, asks for a continuation of everything produced so far. Round outputs
// are concatenated in order. Running out of rounds is not an error; the
// result is flagged Incomplete instead.
func GenerateWithContinuation(ctx context.Context, t Transport, req Request, originalPrompt string, opts ContinuationOptions) (Generation, error) {
	rounds := opts.MaxRounds
	if rounds < 1 {
		rounds = DefaultMaxRounds
	}

	var text strings.Builder
	current := req
	userSink := opts.Sink

	for round := 0; round < rounds; round++ {
		invoke := opts.InvokeOptions
		if userSink != nil {
			prefix := text.String()
			invoke.Sink = SinkFunc(func(partial string) {
				userSink.Update(prefix + partial)
			})
		}

		res, err := InvokeWithRetry(ctx, t, current, invoke)
		if err != nil {
			return Generation{Text: text.String(), Rounds: round}, err
		}
		text.WriteString(res.Text)

		if !res.StopReason.Truncated() {
			return Generation{Text: text.String(), StopReason: res.StopReason, Rounds: round + 1}, nil
		}

		log.Printf("CONTINUATION | round=%d/%d chars=%d", round+1, rounds, text.Len())
		next := current
		next.Messages = ContinuationPrompt(originalPrompt, text.String())
		current = next
	}

	log.Printf("CONTINUATION_EXHAUSTED | rounds=%d chars=%d", rounds, text.Len())
	return Generation{
		Text:       text.String(),
		StopReason: StopReasonMaxTokens,
		Rounds:     rounds,
		Incomplete: true,
	}, nil
}
