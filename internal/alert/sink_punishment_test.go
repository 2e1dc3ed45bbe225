// TotemWatch - Protocol-Level Totem Automation Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/totemwatch

package alert

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/tomtom215/totemwatch/internal/ledger"
)

type recordingExecutor struct {
	calls  int
	player uuid.UUID
	check  string
	level  ledger.Level
}

func (e *recordingExecutor) Punish(_ context.Context, playerID uuid.UUID, check string, level ledger.Level) error {
	e.calls++
	e.player = playerID
	e.check = check
	e.level = level
	return nil
}

func TestPunishmentSink_FiltersBelowMinLevel(t *testing.T) {
	tests := []struct {
		name     string
		minLevel string
		level    ledger.Level
		want     int
	}{
		{"warn below punish threshold", "punish", ledger.LevelWarn, 0},
		{"flag below punish threshold", "punish", ledger.LevelFlag, 0},
		{"punish meets punish threshold", "punish", ledger.LevelPunish, 1},
		{"flag meets flag threshold", "flag", ledger.LevelFlag, 1},
		{"warn meets warn threshold", "warn", ledger.LevelWarn, 1},
		{"punish exceeds warn threshold", "warn", ledger.LevelPunish, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &recordingExecutor{}
			sink := NewPunishmentSink(exec, PunishmentConfig{Enabled: true, MinLevel: tt.minLevel})

			ev := testEvent("timing")
			ev.Level = tt.level
			if err := sink.Deliver(context.Background(), ev); err != nil {
				t.Fatalf("Deliver: %v", err)
			}
			if exec.calls != tt.want {
				t.Errorf("executor calls = %d, want %d", exec.calls, tt.want)
			}
		})
	}
}

func TestPunishmentSink_ForwardsEscalationDetails(t *testing.T) {
	exec := &recordingExecutor{}
	sink := NewPunishmentSink(exec, DefaultPunishmentConfig())

	ev := testEvent("consistency")
	ev.Level = ledger.LevelPunish
	if err := sink.Deliver(context.Background(), ev); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	if exec.player != ev.PlayerID {
		t.Errorf("player = %s, want %s", exec.player, ev.PlayerID)
	}
	if exec.check != "consistency" {
		t.Errorf("check = %q, want %q", exec.check, "consistency")
	}
	if exec.level != ledger.LevelPunish {
		t.Errorf("level = %v, want %v", exec.level, ledger.LevelPunish)
	}
}

func TestPunishmentSink_DisabledWithoutExecutor(t *testing.T) {
	sink := NewPunishmentSink(nil, DefaultPunishmentConfig())
	if sink.Enabled() {
		t.Error("sink without executor should report disabled")
	}
}

func TestPunishmentSink_SetEnabled(t *testing.T) {
	sink := NewPunishmentSink(&recordingExecutor{}, DefaultPunishmentConfig())
	if !sink.Enabled() {
		t.Fatal("sink should start enabled")
	}
	sink.SetEnabled(false)
	if sink.Enabled() {
		t.Error("sink should report disabled after SetEnabled(false)")
	}
}
