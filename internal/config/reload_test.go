// TotemWatch - Protocol-Level Totem Automation Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/totemwatch

package config

import (
	"errors"
	"testing"
)

func TestManager_ReloadSwapsSnapshotAndApplies(t *testing.T) {
	initial := defaultConfig()
	next := defaultConfig()
	next.Logging.Level = "debug"
	next.Ledger.WarnThreshold = 5

	m := NewManager(initial, func() (*Config, error) { return next, nil })

	var applied []*Config
	m.OnApply(func(cfg *Config) { applied = append(applied, cfg) })

	if m.Current() != initial {
		t.Fatal("Current() should start at the initial snapshot")
	}
	if err := m.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if m.Current() != next {
		t.Error("Current() should be the new snapshot after reload")
	}
	if len(applied) != 1 || applied[0] != next {
		t.Errorf("applied = %v, want exactly the new snapshot", applied)
	}
}

func TestManager_FailedReloadKeepsPreviousSnapshot(t *testing.T) {
	initial := defaultConfig()
	m := NewManager(initial, func() (*Config, error) {
		return nil, errors.New("yaml: unmarshal error")
	})

	calls := 0
	m.OnApply(func(cfg *Config) { calls++ })

	if err := m.Reload(); err == nil {
		t.Fatal("Reload should surface the load error")
	}
	if m.Current() != initial {
		t.Error("Current() must stay on the previous snapshot after a failed reload")
	}
	if calls != 0 {
		t.Errorf("appliers ran %d times on a failed reload, want 0", calls)
	}
}

func TestManager_AppliersRunInRegistrationOrder(t *testing.T) {
	next := defaultConfig()
	m := NewManager(defaultConfig(), func() (*Config, error) { return next, nil })

	var order []string
	m.OnApply(func(cfg *Config) { order = append(order, "checks") })
	m.OnApply(func(cfg *Config) { order = append(order, "pipeline") })
	m.OnApply(func(cfg *Config) { order = append(order, "sinks") })

	if err := m.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	want := []string{"checks", "pipeline", "sinks"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("applier order = %v, want %v", order, want)
		}
	}
}

func TestManager_ReloadRejectsInvalidConfig(t *testing.T) {
	// The standard loader validates before returning; a manager built on
	// it never swaps in an unordered ladder.
	chdirTemp(t)
	t.Setenv("TOTEMWATCH_LEDGER_WARN_THRESHOLD", "90")

	initial := defaultConfig()
	m := NewManager(initial, nil)

	if err := m.Reload(); err == nil {
		t.Fatal("Reload should reject thresholds out of order")
	}
	if m.Current() != initial {
		t.Error("invalid reload must not replace the snapshot")
	}
}
