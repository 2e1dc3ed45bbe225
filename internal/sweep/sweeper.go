// TotemWatch - Protocol-Level Totem Automation Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/totemwatch

// Package sweep runs the periodic maintenance pass over the session store:
// violation-score decay, retention-based record removal, and idle session
// eviction. One sweeper serves the whole store; per-entry locking in the
// store keeps a long sweep from stalling event processing.
package sweep

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/totemwatch/internal/ledger"
	"github.com/tomtom215/totemwatch/internal/logging"
	"github.com/tomtom215/totemwatch/internal/metrics"
	"github.com/tomtom215/totemwatch/internal/protocol"
	"github.com/tomtom215/totemwatch/internal/session"
)

// Config tunes the sweep cadence.
type Config struct {
	// Interval is the time between sweep passes.
	Interval time.Duration `koanf:"interval" json:"interval" validate:"gt=0"`

	// IdleTimeout evicts sessions with no observed events for this long.
	// Zero disables idle eviction.
	IdleTimeout time.Duration `koanf:"idle_timeout" json:"idle_timeout" validate:"gte=0"`
}

// DefaultConfig returns the sweep defaults.
func DefaultConfig() Config {
	return Config{
		Interval:    30 * time.Second,
		IdleTimeout: 15 * time.Minute,
	}
}

// Sweeper periodically decays violation scores and evicts idle sessions.
// It implements suture.Service.
type Sweeper struct {
	store *session.Store
	clock protocol.Clock

	mu     sync.RWMutex
	cfg    Config
	policy ledger.Policy
}

// NewSweeper creates a sweeper over the given store.
func NewSweeper(store *session.Store, clock protocol.Clock, cfg Config, policy ledger.Policy) *Sweeper {
	return &Sweeper{
		store:  store,
		clock:  clock,
		cfg:    cfg,
		policy: policy,
	}
}

// Configure swaps in new cadence and policy snapshots. Takes effect on the
// next pass; a pass in flight finishes with the snapshot it started with.
func (s *Sweeper) Configure(cfg Config, policy ledger.Policy) {
	s.mu.Lock()
	s.cfg = cfg
	s.policy = policy
	s.mu.Unlock()
}

func (s *Sweeper) snapshot() (Config, ledger.Policy) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg, s.policy
}

// Serve implements suture.Service. It runs sweep passes on the configured
// interval until the context is canceled.
func (s *Sweeper) Serve(ctx context.Context) error {
	cfg, _ := s.snapshot()
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	logging.Info().
		Dur("interval", cfg.Interval).
		Dur("idle_timeout", cfg.IdleTimeout).
		Msg("sweep scheduler started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.RunOnce()
			// Pick up a reconfigured interval between passes.
			next, _ := s.snapshot()
			if next.Interval != cfg.Interval {
				cfg = next
				ticker.Reset(cfg.Interval)
			}
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (s *Sweeper) String() string {
	return "sweep-scheduler"
}

// RunOnce executes a single sweep pass. Exposed for tests and for the ops
// surface; the scheduler calls it on every tick.
func (s *Sweeper) RunOnce() {
	cfg, policy := s.snapshot()
	now := s.clock.Now()
	start := time.Now()

	var swept, evicted int

	s.store.ForEach(func(st *session.PlayerState) (evict bool) {
		st.SweepViolations(func(check string, rec *ledger.Record) bool {
			swept++
			return policy.Decay(rec, now)
		})

		if cfg.IdleTimeout > 0 && now-st.LastActive() >= int64(cfg.IdleTimeout) {
			evicted++
			return true
		}
		return false
	})

	metrics.ObserveSweep(time.Since(start))
	if evicted > 0 {
		metrics.SweepEvictions.Add(float64(evicted))
	}
	metrics.LiveSessions.Set(float64(s.store.Len()))

	logging.Debug().
		Int("records_swept", swept).
		Int("sessions_evicted", evicted).
		Dur("elapsed", time.Since(start)).
		Msg("sweep pass complete")
}
