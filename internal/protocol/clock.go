// TotemWatch - Protocol-Level Totem Automation Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/totemwatch

package protocol

import "time"

// Clock is the single monotonic time source shared across the process.
// Every ServerTimestamp the pipeline assigns comes from one Clock, which
// keeps timing deltas meaningful across events and immune to wall-clock
// adjustments.
type Clock interface {
	// Now returns nanoseconds elapsed on the monotonic clock.
	Now() int64
}

// systemClock reads the Go runtime's monotonic clock.
type systemClock struct {
	base time.Time
}

// NewSystemClock returns a Clock backed by the runtime monotonic clock.
// Timestamps start near zero at process start; only differences matter.
func NewSystemClock() Clock {
	return &systemClock{base: time.Now()}
}

func (c *systemClock) Now() int64 {
	// time.Since uses the monotonic reading of base.
	return int64(time.Since(c.base))
}
