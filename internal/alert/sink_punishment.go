// TotemWatch - Protocol-Level Totem Automation Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/totemwatch

package alert

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/tomtom215/totemwatch/internal/ledger"
	"github.com/tomtom215/totemwatch/internal/logging"
)

// PunishmentExecutor is the host-side system that decides and applies
// in-game consequences. The detection core only reports escalations; it
// never disciplines a player itself.
type PunishmentExecutor interface {
	Punish(ctx context.Context, playerID uuid.UUID, check string, level ledger.Level) error
}

// LogExecutor is the default executor. It records the decision and does
// nothing else; hosts wire a real executor through their integration layer.
type LogExecutor struct{}

// Punish logs the escalation that would have been enforced.
func (LogExecutor) Punish(_ context.Context, playerID uuid.UUID, check string, level ledger.Level) error {
	logging.Warn().
		Str("player", playerID.String()).
		Str("check", check).
		Str("level", level.String()).
		Msg("punishment requested, no executor configured")
	return nil
}

// PunishmentSink forwards escalations at or above a minimum level to the
// punishment executor.
type PunishmentSink struct {
	executor PunishmentExecutor
	minLevel ledger.Level
	enabled  bool
	mu       sync.RWMutex
}

// PunishmentConfig configures the punishment sink.
type PunishmentConfig struct {
	Enabled bool `koanf:"enabled" json:"enabled"`

	// MinLevel is the lowest escalation level forwarded to the executor.
	MinLevel string `koanf:"min_level" json:"min_level" validate:"oneof=warn flag punish"`
}

// DefaultPunishmentConfig returns the defaults: only punish-level
// escalations reach the executor.
func DefaultPunishmentConfig() PunishmentConfig {
	return PunishmentConfig{Enabled: true, MinLevel: "punish"}
}

// NewPunishmentSink creates a punishment sink.
func NewPunishmentSink(executor PunishmentExecutor, cfg PunishmentConfig) *PunishmentSink {
	return &PunishmentSink{
		executor: executor,
		minLevel: parseLevel(cfg.MinLevel),
		enabled:  cfg.Enabled,
	}
}

func parseLevel(s string) ledger.Level {
	switch s {
	case "warn":
		return ledger.LevelWarn
	case "flag":
		return ledger.LevelFlag
	default:
		return ledger.LevelPunish
	}
}

// Name returns the sink name.
func (s *PunishmentSink) Name() string { return "punishment" }

// Enabled reports whether the sink is active.
func (s *PunishmentSink) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled && s.executor != nil
}

// SetEnabled toggles the sink.
func (s *PunishmentSink) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
}

// Deliver forwards the escalation to the executor when it meets the
// minimum level.
func (s *PunishmentSink) Deliver(ctx context.Context, ev *Event) error {
	s.mu.RLock()
	minLevel := s.minLevel
	s.mu.RUnlock()

	if ev.Level < minLevel {
		return nil
	}
	return s.executor.Punish(ctx, ev.PlayerID, ev.Check, ev.Level)
}
