// TotemWatch - Protocol-Level Totem Automation Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/totemwatch

package config

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/tomtom215/totemwatch/internal/logging"
)

// Manager holds the live configuration snapshot and performs reloads.
// Snapshots are immutable: a reload builds and validates a complete new
// Config before anything sees it, and a failed reload leaves the current
// snapshot untouched with no callback run.
type Manager struct {
	current atomic.Pointer[Config]
	load    func() (*Config, error)

	mu       sync.Mutex
	appliers []func(*Config)
}

// NewManager creates a manager around an initial snapshot. load supplies
// subsequent reloads; nil means the standard layered Load.
func NewManager(initial *Config, load func() (*Config, error)) *Manager {
	if load == nil {
		load = Load
	}
	m := &Manager{load: load}
	m.current.Store(initial)
	return m
}

// Current returns the live snapshot.
func (m *Manager) Current() *Config {
	return m.current.Load()
}

// OnApply registers a callback run with each new snapshot after a
// successful reload. Callbacks run in registration order.
func (m *Manager) OnApply(fn func(*Config)) {
	m.mu.Lock()
	m.appliers = append(m.appliers, fn)
	m.mu.Unlock()
}

// Reload loads and validates a fresh configuration. On success the new
// snapshot is swapped in atomically and every registered callback runs
// with it; on any error the previous snapshot stays live.
func (m *Manager) Reload() error {
	cfg, err := m.load()
	if err != nil {
		return fmt.Errorf("reload configuration: %w", err)
	}

	m.current.Store(cfg)

	m.mu.Lock()
	appliers := make([]func(*Config), len(m.appliers))
	copy(appliers, m.appliers)
	m.mu.Unlock()

	for _, fn := range appliers {
		fn(cfg)
	}

	logging.Info().Msg("configuration reloaded")
	return nil
}
