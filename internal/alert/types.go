// TotemWatch - Protocol-Level Totem Automation Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/totemwatch

// Package alert implements escalation fan-out to external sinks. Each sink
// runs behind its own bounded queue and delivery goroutine so a slow or
// failing collaborator can never stall the detection path; overflow sheds
// the oldest pending alert, and exhausted retries land in an inspectable
// dead-letter log.
package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/totemwatch/internal/ledger"
)

// Event is an immutable escalation notification produced by the pipeline
// when a violation score crosses a threshold. The ledger never retries
// delivery; the dispatcher owns delivery semantics.
type Event struct {
	ID        uuid.UUID    `json:"id"`
	PlayerID  uuid.UUID    `json:"player_id"`
	Check     string       `json:"check"`
	Severity  float64      `json:"severity"`
	Score     float64      `json:"score"`
	Level     ledger.Level `json:"level"`
	Reason    string       `json:"reason"`
	Timestamp time.Time    `json:"timestamp"`
}

// Summary returns the human-readable one-liner used for staff display.
func (e *Event) Summary() string {
	return fmt.Sprintf("[%s] player %s escalated to %s (score %.1f): %s",
		e.Check, e.PlayerID, e.Level, e.Score, e.Reason)
}

// Sink delivers alert events to one external collaborator. Deliver is
// called from the sink's dedicated delivery goroutine, never from the
// detection path, and may block or fail freely.
type Sink interface {
	// Name returns the sink name used in logs and metrics.
	Name() string

	// Enabled reports whether the sink should receive alerts.
	Enabled() bool

	// Deliver sends one alert. An error triggers the dispatcher's retry
	// policy for this sink.
	Deliver(ctx context.Context, ev *Event) error
}

// RetryPolicy bounds redelivery attempts for one sink.
type RetryPolicy struct {
	// Attempts is the total number of delivery attempts (first try
	// included). Minimum 1.
	Attempts int

	// Delay is the pause between attempts.
	Delay time.Duration
}

// DefaultRetryPolicy returns the default per-sink retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Delay: 2 * time.Second}
}
