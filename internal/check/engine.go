// TotemWatch - Protocol-Level Totem Automation Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/totemwatch

package check

import (
	"fmt"

	"github.com/tomtom215/totemwatch/internal/logging"
	"github.com/tomtom215/totemwatch/internal/metrics"
	"github.com/tomtom215/totemwatch/internal/protocol"
	"github.com/tomtom215/totemwatch/internal/session"
)

// Result pairs a check name with the verdict it produced.
type Result struct {
	Check   string
	Verdict Verdict
}

// Engine routes player events through the registered checks. The registry
// is fixed at construction and read-only afterwards, so evaluation needs
// no synchronization of its own; per-player serialization is the caller's
// contract.
//
// Routing order is registration order, deterministic across runs.
type Engine struct {
	checks []Check
	byKind map[protocol.EventKind][]Check
}

// NewEngine creates an engine with the given checks, routed in the order
// given.
func NewEngine(checks ...Check) *Engine {
	e := &Engine{
		checks: checks,
		byKind: make(map[protocol.EventKind][]Check),
	}
	for _, c := range checks {
		for _, kind := range c.Interests() {
			e.byKind[kind] = append(e.byKind[kind], c)
		}
		logging.Info().Str("check", c.Name()).Msg("registered check")
	}
	return e
}

// Checks returns the registered checks in routing order.
func (e *Engine) Checks() []Check {
	return e.checks
}

// Evaluate runs every interested, enabled check against the event and
// collects verdicts. Each check call is isolated: an internal error or
// panic in one check is logged and skipped for this event only, and never
// prevents the remaining checks from running.
//
// The caller holds the player's entry lock and has already observed the
// event into the state's history.
func (e *Engine) Evaluate(st *session.PlayerState, ev protocol.PlayerEvent) []Result {
	interested := e.byKind[ev.Kind]
	if len(interested) == 0 {
		return nil
	}

	var results []Result
	for _, c := range interested {
		if !c.Enabled() {
			continue
		}
		verdict, err := e.evaluateOne(c, st, ev)
		if err != nil {
			metrics.CheckErrors.WithLabelValues(c.Name()).Inc()
			logging.Error().
				Err(err).
				Str("check", c.Name()).
				Str("player", ev.PlayerID.String()).
				Str("kind", ev.Kind.String()).
				Msg("check evaluation failed")
			continue
		}
		if verdict != nil {
			results = append(results, Result{Check: c.Name(), Verdict: *verdict})
		}
	}
	return results
}

// evaluateOne calls a single check, converting panics into errors so a bug
// in one heuristic cannot take down the pipeline worker.
func (e *Engine) evaluateOne(c Check, st *session.PlayerState, ev protocol.PlayerEvent) (verdict *Verdict, err error) {
	defer func() {
		if r := recover(); r != nil {
			verdict = nil
			err = fmt.Errorf("check %s panicked: %v", c.Name(), r)
		}
	}()
	return c.OnEvent(st, ev)
}
