// TotemWatch - Protocol-Level Totem Automation Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/totemwatch

package check

import (
	"fmt"
	"sync"

	"github.com/tomtom215/totemwatch/internal/protocol"
	"github.com/tomtom215/totemwatch/internal/session"
)

// RegularityCheck flags abnormally constant spacing between resurrections.
// Scripted input repeats on a timer; human-driven totem pops are paced by
// combat and carry jitter. The check computes the coefficient of variation
// over the rolling window of inter-resurrection intervals and flags when
// it falls below the threshold, requiring a minimum sample count so short
// windows never produce a verdict.
type RegularityCheck struct {
	mu      sync.RWMutex
	config  RegularityConfig
	enabled bool
}

// NewRegularityCheck creates the check with the given configuration.
func NewRegularityCheck(cfg RegularityConfig) *RegularityCheck {
	return &RegularityCheck{config: cfg, enabled: cfg.Enabled}
}

// Name returns the check identifier.
func (c *RegularityCheck) Name() string { return NameRegularity }

// Interests declares the consumed event kinds.
func (c *RegularityCheck) Interests() []protocol.EventKind {
	return []protocol.EventKind{protocol.KindResurrection}
}

// OnEvent evaluates the interval window including the current event.
func (c *RegularityCheck) OnEvent(st *session.PlayerState, ev protocol.PlayerEvent) (*Verdict, error) {
	c.mu.RLock()
	cfg := c.config
	c.mu.RUnlock()

	intervals := st.History(protocol.KindResurrection).Intervals()
	if len(intervals) < cfg.MinSamples {
		return nil, nil
	}

	cov := coefficientOfVariation(intervals)
	if cov >= cfg.CoVThreshold {
		return nil, nil
	}

	return &Verdict{
		Severity: cfg.Weight * (1 - cov/cfg.CoVThreshold),
		Reason: fmt.Sprintf(
			"resurrection intervals suspiciously constant: CoV %.4f over %d samples (threshold %.2f)",
			cov, len(intervals), cfg.CoVThreshold,
		),
		Event: ev,
	}, nil
}

// Configure replaces the check configuration.
func (c *RegularityCheck) Configure(cfg RegularityConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.config = cfg
	c.enabled = cfg.Enabled
}

// Enabled reports whether the check is active.
func (c *RegularityCheck) Enabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled
}

// SetEnabled toggles the check.
func (c *RegularityCheck) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = enabled
}
