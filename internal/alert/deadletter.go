// TotemWatch - Protocol-Level Totem Automation Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/totemwatch

package alert

import (
	"sync"
	"time"

	"github.com/tomtom215/totemwatch/internal/logging"
	"github.com/tomtom215/totemwatch/internal/metrics"
)

// DeadLetter records one alert that a sink failed to deliver. The log
// makes "violation occurred but undelivered" operationally distinguishable
// from "no violation occurred": a missed external alert always leaves a
// trace here.
type DeadLetter struct {
	Event     *Event    `json:"event"`
	Sink      string    `json:"sink"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error"`
	DroppedAt time.Time `json:"dropped_at"`
}

// DeadLetterLog is a bounded in-memory record of undeliverable alerts.
// Oldest entries are evicted when full.
type DeadLetterLog struct {
	mu      sync.Mutex
	entries []DeadLetter
	head    int
	size    int
}

// NewDeadLetterLog creates a log holding up to capacity entries.
func NewDeadLetterLog(capacity int) *DeadLetterLog {
	if capacity <= 0 {
		capacity = 256
	}
	return &DeadLetterLog{entries: make([]DeadLetter, capacity)}
}

// Record adds a dead letter and emits the corresponding log entry and
// metric.
func (l *DeadLetterLog) Record(ev *Event, sink string, attempts int, lastErr error) {
	errText := ""
	if lastErr != nil {
		errText = lastErr.Error()
	}

	entry := DeadLetter{
		Event:     ev,
		Sink:      sink,
		Attempts:  attempts,
		LastError: errText,
		DroppedAt: time.Now(),
	}

	l.mu.Lock()
	if l.size < len(l.entries) {
		l.entries[(l.head+l.size)%len(l.entries)] = entry
		l.size++
	} else {
		l.entries[l.head] = entry
		l.head = (l.head + 1) % len(l.entries)
	}
	l.mu.Unlock()

	metrics.DeadLetters.WithLabelValues(sink).Inc()
	logging.Error().
		Str("sink", sink).
		Str("player", ev.PlayerID.String()).
		Str("check", ev.Check).
		Int("attempts", attempts).
		Str("last_error", errText).
		Msg("alert dead-lettered")
}

// Snapshot returns the logged entries, oldest first.
func (l *DeadLetterLog) Snapshot() []DeadLetter {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]DeadLetter, l.size)
	for i := 0; i < l.size; i++ {
		out[i] = l.entries[(l.head+i)%len(l.entries)]
	}
	return out
}

// Len returns the number of logged entries.
func (l *DeadLetterLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}
