// TotemWatch - Protocol-Level Totem Automation Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/totemwatch

package session

import (
	"github.com/tomtom215/totemwatch/internal/protocol"
)

// Ring is a fixed-capacity ring buffer of player events. Pushing beyond
// capacity evicts the oldest entry, bounding per-player memory regardless
// of session length.
type Ring struct {
	buf  []protocol.PlayerEvent
	head int // index of the oldest entry
	size int
}

// NewRing creates a ring with the given capacity. Capacity must be > 0.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring{buf: make([]protocol.PlayerEvent, capacity)}
}

// Push appends an event, evicting the oldest when full.
func (r *Ring) Push(ev protocol.PlayerEvent) {
	if r.size < len(r.buf) {
		r.buf[(r.head+r.size)%len(r.buf)] = ev
		r.size++
		return
	}
	r.buf[r.head] = ev
	r.head = (r.head + 1) % len(r.buf)
}

// Len returns the number of buffered events.
func (r *Ring) Len() int {
	return r.size
}

// Cap returns the buffer capacity.
func (r *Ring) Cap() int {
	return len(r.buf)
}

// At returns the i-th event, oldest first. i must be in [0, Len()).
func (r *Ring) At(i int) protocol.PlayerEvent {
	return r.buf[(r.head+i)%len(r.buf)]
}

// Last returns the newest event, or false when empty.
func (r *Ring) Last() (protocol.PlayerEvent, bool) {
	if r.size == 0 {
		return protocol.PlayerEvent{}, false
	}
	return r.At(r.size - 1), true
}

// Intervals returns the nanosecond gaps between consecutive buffered
// events, oldest first. A ring with fewer than two events yields nil.
func (r *Ring) Intervals() []int64 {
	if r.size < 2 {
		return nil
	}
	out := make([]int64, 0, r.size-1)
	for i := 1; i < r.size; i++ {
		out = append(out, r.At(i).ServerTimestamp-r.At(i-1).ServerTimestamp)
	}
	return out
}
