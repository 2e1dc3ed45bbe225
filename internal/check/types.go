// TotemWatch - Protocol-Level Totem Automation Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/totemwatch

// Package check implements the heuristic checks and the engine that routes
// player events through them.
//
// Checks are independent: each owns an opaque per-player state blob keyed
// by its name inside the session state, and no check may depend on another
// check's internals — only on the shared event history. A check with fewer
// samples than it needs emits no verdict; cold state is never a false
// positive.
package check

import (
	"time"

	"github.com/tomtom215/totemwatch/internal/protocol"
	"github.com/tomtom215/totemwatch/internal/session"
)

// Check names. These key per-check working memory, violation records,
// metrics labels, and configuration.
const (
	NameTiming      = "totem_timing"
	NameInventory   = "inventory_move"
	NameRegularity  = "pattern_regularity"
	NameConsistency = "reequip_consistency"
)

// Verdict is one check's assessment that a single observed event is
// suspicious.
type Verdict struct {
	// Severity is the non-negative suspicion weight fed to the ledger.
	Severity float64

	// Reason is a human-readable explanation for staff alerts.
	Reason string

	// Event is the triggering event.
	Event protocol.PlayerEvent
}

// Check is one heuristic unit. OnEvent is called with the owning player's
// entry lock held and must neither block nor retain the state past the
// call.
type Check interface {
	// Name returns the stable check identifier.
	Name() string

	// Interests declares which event kinds the check consumes.
	Interests() []protocol.EventKind

	// OnEvent evaluates one event against the player's history. A nil
	// verdict means nothing suspicious (including insufficient data).
	OnEvent(st *session.PlayerState, ev protocol.PlayerEvent) (*Verdict, error)

	// Enabled reports whether the check is currently active.
	Enabled() bool

	// SetEnabled toggles the check.
	SetEnabled(enabled bool)
}

// TimingConfig configures the timing-consistency check.
type TimingConfig struct {
	Enabled bool `koanf:"enabled" json:"enabled"`

	// ReactionFloor is the minimum plausible human reaction time between a
	// status-effect removal and the resurrection that answers it.
	ReactionFloor time.Duration `koanf:"reaction_floor" json:"reaction_floor" validate:"gt=0"`

	// LatencyFraction scales how much of the player's smoothed connection
	// latency is subtracted from the observed delta before comparison,
	// so laggy connections do not read as superhuman.
	LatencyFraction float64 `koanf:"latency_fraction" json:"latency_fraction" validate:"gte=0,lte=1"`

	// Weight scales verdict severity.
	Weight float64 `koanf:"weight" json:"weight" validate:"gt=0"`
}

// DefaultTimingConfig returns tuning defaults.
func DefaultTimingConfig() TimingConfig {
	return TimingConfig{
		Enabled:         true,
		ReactionFloor:   50 * time.Millisecond,
		LatencyFraction: 0.5,
		Weight:          10,
	}
}

// InventoryConfig configures the inventory-move check.
type InventoryConfig struct {
	Enabled bool `koanf:"enabled" json:"enabled"`

	// ClientTickRate is the declared client tick rate in ticks per second.
	ClientTickRate int `koanf:"client_tick_rate" json:"client_tick_rate" validate:"gt=0"`

	// MinActions is the minimum number of client actions a totem re-equip
	// requires (pick up, place). The reachable completion time is
	// MinActions client ticks.
	MinActions int `koanf:"min_actions" json:"min_actions" validate:"gt=0"`

	// Weight scales verdict severity.
	Weight float64 `koanf:"weight" json:"weight" validate:"gt=0"`
}

// DefaultInventoryConfig returns tuning defaults.
func DefaultInventoryConfig() InventoryConfig {
	return InventoryConfig{
		Enabled:        true,
		ClientTickRate: 20,
		MinActions:     2,
		Weight:         6,
	}
}

// RegularityConfig configures the pattern-regularity check.
type RegularityConfig struct {
	Enabled bool `koanf:"enabled" json:"enabled"`

	// MinSamples is the minimum number of inter-event intervals before the
	// check evaluates at all; short windows produce no verdict.
	MinSamples int `koanf:"min_samples" json:"min_samples" validate:"gte=2"`

	// CoVThreshold is the coefficient-of-variation cutoff; interval sets
	// with variation below it are suspiciously constant.
	CoVThreshold float64 `koanf:"cov_threshold" json:"cov_threshold" validate:"gt=0,lt=1"`

	// Weight scales verdict severity.
	Weight float64 `koanf:"weight" json:"weight" validate:"gt=0"`
}

// DefaultRegularityConfig returns tuning defaults.
func DefaultRegularityConfig() RegularityConfig {
	return RegularityConfig{
		Enabled:      true,
		MinSamples:   4,
		CoVThreshold: 0.1,
		Weight:       8,
	}
}

// ConsistencyConfig configures the re-equip consistency check.
type ConsistencyConfig struct {
	Enabled bool `koanf:"enabled" json:"enabled"`

	// MinPairs is the minimum number of use/re-equip pairs required.
	MinPairs int `koanf:"min_pairs" json:"min_pairs" validate:"gte=2"`

	// HistorySize bounds the tracked use and re-equip timestamps.
	HistorySize int `koanf:"history_size" json:"history_size" validate:"gt=0"`

	// StdDevThreshold is the base standard-deviation cutoff for use-to-
	// re-equip intervals; the effective cutoff loosens with fewer samples.
	StdDevThreshold time.Duration `koanf:"stddev_threshold" json:"stddev_threshold" validate:"gt=0"`

	// ConfidenceThreshold is the smoothed-confidence level above which the
	// check emits a verdict.
	ConfidenceThreshold float64 `koanf:"confidence_threshold" json:"confidence_threshold" validate:"gt=0,lte=1"`

	// SmoothingAlpha is the exponential smoothing factor for confidence.
	SmoothingAlpha float64 `koanf:"smoothing_alpha" json:"smoothing_alpha" validate:"gt=0,lte=1"`

	// Weight scales verdict severity.
	Weight float64 `koanf:"weight" json:"weight" validate:"gt=0"`
}

// DefaultConsistencyConfig returns tuning defaults.
func DefaultConsistencyConfig() ConsistencyConfig {
	return ConsistencyConfig{
		Enabled:             true,
		MinPairs:            3,
		HistorySize:         10,
		StdDevThreshold:     30 * time.Millisecond,
		ConfidenceThreshold: 0.5,
		SmoothingAlpha:      0.7,
		Weight:              8,
	}
}
