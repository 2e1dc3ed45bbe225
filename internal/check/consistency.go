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

// consistencyState is the per-player working memory for the re-equip
// consistency check.
type consistencyState struct {
	useTimes     []int64
	reEquipTimes []int64
	awaiting     bool
	violations   int
	confidence   float64
}

// pushBounded appends a timestamp, keeping only the newest limit entries.
func pushBounded(buf []int64, ts int64, limit int) []int64 {
	buf = append(buf, ts)
	if len(buf) > limit {
		buf = buf[len(buf)-limit:]
	}
	return buf
}

// ConsistencyCheck flags players whose totem use to re-equip intervals are
// too consistent across resurrections. A macro re-equips with near-equal
// delay every time; human intervals spread. The check keeps the recent
// use and re-equip timestamps, measures the standard deviation of the
// paired intervals against an adaptive cutoff that loosens with fewer
// samples, and accumulates an exponentially smoothed confidence; the
// verdict fires when confidence exceeds the threshold, resetting the
// internal counter.
type ConsistencyCheck struct {
	mu      sync.RWMutex
	config  ConsistencyConfig
	enabled bool
}

// NewConsistencyCheck creates the check with the given configuration.
func NewConsistencyCheck(cfg ConsistencyConfig) *ConsistencyCheck {
	return &ConsistencyCheck{config: cfg, enabled: cfg.Enabled}
}

// Name returns the check identifier.
func (c *ConsistencyCheck) Name() string { return NameConsistency }

// Interests declares the consumed event kinds.
func (c *ConsistencyCheck) Interests() []protocol.EventKind {
	return []protocol.EventKind{
		protocol.KindResurrection,
		protocol.KindSlotChanged,
		protocol.KindHandSwap,
	}
}

// OnEvent records totem uses and re-equips and evaluates consistency on
// each completed pair.
func (c *ConsistencyCheck) OnEvent(st *session.PlayerState, ev protocol.PlayerEvent) (*Verdict, error) {
	c.mu.RLock()
	cfg := c.config
	c.mu.RUnlock()

	state, _ := st.CheckState(NameConsistency).(*consistencyState)
	if state == nil {
		state = &consistencyState{}
		st.SetCheckState(NameConsistency, state)
	}

	if ev.Kind == protocol.KindResurrection {
		state.useTimes = pushBounded(state.useTimes, ev.ServerTimestamp, cfg.HistorySize)
		state.awaiting = true
		return nil, nil
	}

	if !ev.IsTotem() || !state.awaiting {
		return nil, nil
	}

	state.reEquipTimes = pushBounded(state.reEquipTimes, ev.ServerTimestamp, cfg.HistorySize)
	state.awaiting = false

	return c.evaluate(state, cfg, ev), nil
}

func (c *ConsistencyCheck) evaluate(state *consistencyState, cfg ConsistencyConfig, ev protocol.PlayerEvent) *Verdict {
	n := len(state.useTimes)
	if len(state.reEquipTimes) < n {
		n = len(state.reEquipTimes)
	}
	if n < cfg.MinPairs {
		return nil
	}

	// Pair the most recent n uses with the most recent n re-equips.
	uses := state.useTimes[len(state.useTimes)-n:]
	reEquips := state.reEquipTimes[len(state.reEquipTimes)-n:]

	intervals := make([]int64, n)
	for i := 0; i < n; i++ {
		intervals[i] = reEquips[i] - uses[i]
	}

	m := mean(intervals)
	sd := stdDev(intervals, m)

	base := float64(cfg.StdDevThreshold)
	// Fewer samples get a looser cutoff so sparse data does not flag.
	adaptive := base * (1 + float64(cfg.HistorySize-n)*0.1)

	if sd >= adaptive {
		if state.violations > 0 {
			state.violations--
		}
		return nil
	}

	weight := 1
	if sd < base/2 {
		weight = 2
	}
	state.violations += weight

	current := float64(state.violations) / float64(n)
	state.confidence = cfg.SmoothingAlpha*current + (1-cfg.SmoothingAlpha)*state.confidence

	if state.confidence <= cfg.ConfidenceThreshold {
		return nil
	}

	verdict := &Verdict{
		Severity: cfg.Weight,
		Reason: fmt.Sprintf(
			"re-equip intervals too consistent: stddev %.2fms (mean %.2fms, confidence %.2f)",
			sd/float64(time.Millisecond),
			m/float64(time.Millisecond),
			state.confidence,
		),
		Event: ev,
	}
	state.violations = 0
	return verdict
}

// Configure replaces the check configuration.
func (c *ConsistencyCheck) Configure(cfg ConsistencyConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.config = cfg
	c.enabled = cfg.Enabled
}

// Enabled reports whether the check is active.
func (c *ConsistencyCheck) Enabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled
}

// SetEnabled toggles the check.
func (c *ConsistencyCheck) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = enabled
}
