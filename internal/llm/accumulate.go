// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"errors"
	"io"
	"strings"
	"time"
)

// Accumulator folds stream events into a StreamResult.
// The zero value is not ready for use; call NewAccumulator.
type Accumulator struct {
	content    strings.Builder
	stopReason StopReason
	sink       Sink

	deltas       int
	startTime    time.Time
	firstDeltaAt time.Time
}

// StreamStats describes the timing of a finished stream.
type StreamStats struct {
	FirstDeltaTime time.Duration
	TotalTime      time.Duration
	DeltaCount     int
}

// NewAccumulator creates an accumulator that reports to sink (may be nil).
func NewAccumulator(sink Sink) *Accumulator {
	return &Accumulator{sink: sink, startTime: time.Now()}
}

// Add applies one event. Text is appended in arrival order; the last stop
// reason seen wins.
func (a *Accumulator) Add(ev StreamEvent) {
	switch ev.Kind {
	case EventContentDelta:
		if ev.Text == "" {
			return
		}
		a.deltas++
		if a.firstDeltaAt.IsZero() {
			a.firstDeltaAt = time.Now()
		}
		a.content.WriteString(ev.Text)
		if a.sink != nil {
			a.sink.Update(a.content.String())
		}
	case EventStopReason:
		if ev.StopReason.IsSet() {
			a.stopReason = ev.StopReason
		}
	}
}

// Result returns what has been accumulated so far.
func (a *Accumulator) Result() StreamResult {
	return StreamResult{Text: a.content.String(), StopReason: a.stopReason}
}

// Stats returns timing statistics.
func (a *Accumulator) Stats() StreamStats {
	var first time.Duration
	if !a.firstDeltaAt.IsZero() {
		first = a.firstDeltaAt.Sub(a.startTime)
	}
	return StreamStats{
		FirstDeltaTime: first,
		TotalTime:      time.Since(a.startTime),
		DeltaCount:     a.deltas,
	}
}

// Accumulate drains events into a StreamResult, reporting the growing text to
// sink after every delta. On a stream error the partial result is returned
// together with the error.
func Accumulate(events EventStream, sink Sink) (StreamResult, error) {
	return drain(events, NewAccumulator(sink))
}

func drain(events EventStream, acc *Accumulator) (StreamResult, error) {
	for {
		ev, err := events.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return acc.Result(), nil
			}
			return acc.Result(), err
		}
		acc.Add(ev)
	}
}
