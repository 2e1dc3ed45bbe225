// TotemWatch - Protocol-Level Totem Automation Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/totemwatch

package check

import (
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/totemwatch/internal/protocol"
	"github.com/tomtom215/totemwatch/internal/session"
)

// TimingCheck flags resurrections that answer a status-effect removal
// faster than a human can react. The observed delta is corrected by a
// fraction of the player's smoothed connection latency before comparison,
// and severity grows the further below the floor the corrected delta lies.
type TimingCheck struct {
	mu      sync.RWMutex
	config  TimingConfig
	enabled bool
}

// NewTimingCheck creates the check with the given configuration.
func NewTimingCheck(cfg TimingConfig) *TimingCheck {
	return &TimingCheck{config: cfg, enabled: cfg.Enabled}
}

// Name returns the check identifier.
func (c *TimingCheck) Name() string { return NameTiming }

// Interests declares the consumed event kinds. The effect-removal history
// is read from the shared ring buffer, so only resurrections are routed.
func (c *TimingCheck) Interests() []protocol.EventKind {
	return []protocol.EventKind{protocol.KindResurrection}
}

// OnEvent evaluates a resurrection against the most recent status-effect
// removal. With no prior removal observed there is no verdict.
func (c *TimingCheck) OnEvent(st *session.PlayerState, ev protocol.PlayerEvent) (*Verdict, error) {
	c.mu.RLock()
	cfg := c.config
	c.mu.RUnlock()

	removed, ok := st.LastEvent(protocol.KindEffectRemoved)
	if !ok {
		return nil, nil
	}

	delta := ev.ServerTimestamp - removed.ServerTimestamp
	if delta < 0 {
		// Reordered beyond the buffer's view; not evaluable.
		return nil, nil
	}

	corrected := delta - int64(cfg.LatencyFraction*st.LatencyMs()*float64(time.Millisecond))
	if corrected < 0 {
		corrected = 0
	}

	floor := int64(cfg.ReactionFloor)
	if corrected >= floor {
		return nil, nil
	}

	// Severity is inversely proportional to the corrected delta: an
	// instant response scores the full weight.
	severity := cfg.Weight * (1 - float64(corrected)/float64(floor))

	return &Verdict{
		Severity: severity,
		Reason: fmt.Sprintf(
			"resurrection %.1fms after effect removal (floor %.0fms, latency %.1fms)",
			float64(delta)/float64(time.Millisecond),
			float64(cfg.ReactionFloor)/float64(time.Millisecond),
			st.LatencyMs(),
		),
		Event: ev,
	}, nil
}

// Configure replaces the check configuration.
func (c *TimingCheck) Configure(cfg TimingConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.config = cfg
	c.enabled = cfg.Enabled
}

// Enabled reports whether the check is active.
func (c *TimingCheck) Enabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled
}

// SetEnabled toggles the check.
func (c *TimingCheck) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = enabled
}
