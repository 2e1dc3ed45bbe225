// TotemWatch - Protocol-Level Totem Automation Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/totemwatch

// Package ledger implements violation-score accumulation, decay, and the
// escalation ladder for one (player, check) pair.
//
// Scores only increase through verdicts and only decrease through sweep
// decay. Escalation level is monotonic non-decreasing inside the cool-down
// window; after the window expires a decayed score may lower the level
// again. A threshold crossing fires exactly once: a score already above a
// threshold from a previous update never re-fires.
package ledger

import (
	"time"
)

// Level is the escalation stage for a (player, check) pair.
type Level uint8

const (
	LevelNone Level = iota
	LevelWarn
	LevelFlag
	LevelPunish
)

// String returns the level name used in alerts, logs, and metrics labels.
func (l Level) String() string {
	switch l {
	case LevelWarn:
		return "warn"
	case LevelFlag:
		return "flag"
	case LevelPunish:
		return "punish"
	default:
		return "none"
	}
}

// Record is the violation state for one (player, check) pair. Records live
// inside the owning player's session state and are only touched under that
// entry's lock, so they need no internal synchronization.
type Record struct {
	// Score is the accumulated, decaying suspicion measure. Always >= 0.
	Score float64

	// UpdatedAt is the monotonic timestamp of the last score change.
	UpdatedAt int64

	// Level is the current escalation stage.
	Level Level

	// EscalatedAt is the monotonic timestamp of the last escalation firing.
	// Zero if the record has never escalated.
	EscalatedAt int64

	// ZeroSince is the monotonic timestamp at which the score reached zero
	// with no escalation level, for retention-based removal. Zero while the
	// record is active.
	ZeroSince int64
}

// Outcome reports the result of recording one verdict.
type Outcome struct {
	// Score is the post-update accumulated score.
	Score float64

	// Level is the escalation level after the update.
	Level Level

	// Crossed is true when this update fired an escalation: the level rose
	// and the cool-down window allowed it.
	Crossed bool
}

// Policy holds the escalation ladder and decay parameters. A Policy value
// is an immutable snapshot; configuration reloads swap in a new value and
// never mutate one mid-evaluation.
type Policy struct {
	// WarnThreshold, FlagThreshold, PunishThreshold form the ordered
	// escalation ladder. Crossing a threshold raises the level.
	WarnThreshold   float64
	FlagThreshold   float64
	PunishThreshold float64

	// Cooldown is the minimum interval between escalation firings for one
	// pair, bounding alert volume under verdict bursts.
	Cooldown time.Duration

	// DecayFactor multiplies the score once per sweep. Must be in [0, 1).
	DecayFactor float64

	// Retention is how long a fully decayed, unescalated record is kept
	// before removal.
	Retention time.Duration
}

// DefaultPolicy returns the tuning defaults. The exact numbers are policy
// values exposed through configuration, not structural constants.
func DefaultPolicy() Policy {
	return Policy{
		WarnThreshold:   10,
		FlagThreshold:   25,
		PunishThreshold: 50,
		Cooldown:        30 * time.Second,
		DecayFactor:     0.5,
		Retention:       10 * time.Minute,
	}
}

// scoreFloor is the score below which decay snaps to exactly zero, so
// retention accounting does not wait on an asymptote.
const scoreFloor = 1e-6

// LevelFor returns the escalation level the ladder assigns to a score.
func (p Policy) LevelFor(score float64) Level {
	switch {
	case score >= p.PunishThreshold:
		return LevelPunish
	case score >= p.FlagThreshold:
		return LevelFlag
	case score >= p.WarnThreshold:
		return LevelWarn
	default:
		return LevelNone
	}
}

// Record adds a verdict's severity to the record and evaluates the ladder.
// now is a monotonic timestamp. The caller holds the owning entry's lock.
func (p Policy) Record(rec *Record, severity float64, now int64) Outcome {
	if severity < 0 {
		severity = 0
	}

	rec.Score += severity
	rec.UpdatedAt = now
	rec.ZeroSince = 0

	candidate := p.LevelFor(rec.Score)
	out := Outcome{Score: rec.Score, Level: rec.Level}

	if candidate > rec.Level && p.cooldownExpired(rec, now) {
		rec.Level = candidate
		rec.EscalatedAt = now
		out.Level = candidate
		out.Crossed = true
	}

	return out
}

// Decay applies one sweep's multiplicative decay. It returns true when the
// record is fully aged out and should be removed. The caller holds the
// owning entry's lock.
//
// Decay is idempotent in the monotone sense: repeated sweeps with no
// intervening verdicts only ever lower the score toward zero.
func (p Policy) Decay(rec *Record, now int64) (remove bool) {
	if rec.Score > 0 {
		rec.Score *= p.DecayFactor
		if rec.Score < scoreFloor {
			rec.Score = 0
		}
		rec.UpdatedAt = now
	}

	// Past the cool-down the level is eligible to fall back to whatever the
	// decayed score supports.
	if rec.Level > LevelNone && p.cooldownExpired(rec, now) {
		if supported := p.LevelFor(rec.Score); supported < rec.Level {
			rec.Level = supported
		}
	}

	if rec.Score == 0 && rec.Level == LevelNone {
		if rec.ZeroSince == 0 {
			rec.ZeroSince = now
		}
		if now-rec.ZeroSince >= int64(p.Retention) {
			return true
		}
	}

	return false
}

func (p Policy) cooldownExpired(rec *Record, now int64) bool {
	return rec.EscalatedAt == 0 || now-rec.EscalatedAt >= int64(p.Cooldown)
}
