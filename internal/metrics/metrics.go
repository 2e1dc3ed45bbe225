// TotemWatch - Protocol-Level Totem Automation Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/totemwatch

// Package metrics provides Prometheus instrumentation for the detection
// pipeline. Metrics are exposed on the ops server at /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsIngested counts raw protocol notifications received, labeled
	// by outcome (normalized, ignored, no_session, reordered).
	EventsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "totemwatch_events_ingested_total",
		Help: "Raw protocol notifications received by outcome",
	}, []string{"outcome"})

	// EventsProcessed counts canonical events routed through the engine,
	// labeled by event kind.
	EventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "totemwatch_events_processed_total",
		Help: "Canonical player events processed by kind",
	}, []string{"kind"})

	// Verdicts counts verdicts emitted per check.
	Verdicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "totemwatch_verdicts_total",
		Help: "Verdicts emitted per check",
	}, []string{"check"})

	// Escalations counts escalation firings per check and level.
	Escalations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "totemwatch_escalations_total",
		Help: "Escalation threshold crossings per check and level",
	}, []string{"check", "level"})

	// CheckErrors counts isolated check evaluation faults.
	CheckErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "totemwatch_check_errors_total",
		Help: "Check evaluation faults caught and skipped",
	}, []string{"check"})

	// LiveSessions tracks the number of connected player sessions.
	LiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "totemwatch_live_sessions",
		Help: "Currently tracked player sessions",
	})

	// SinkDeliveries counts sink delivery attempts by sink and result
	// (delivered, retried, failed).
	SinkDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "totemwatch_sink_deliveries_total",
		Help: "Alert sink delivery attempts by result",
	}, []string{"sink", "result"})

	// SinkDrops counts alerts shed from full sink queues.
	SinkDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "totemwatch_sink_drops_total",
		Help: "Alerts shed because a sink queue was full",
	}, []string{"sink"})

	// DeadLetters counts alerts abandoned after retry exhaustion.
	DeadLetters = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "totemwatch_dead_letters_total",
		Help: "Alerts dead-lettered after exhausting retries",
	}, []string{"sink"})

	// SweepDuration observes full decay/eviction sweep durations.
	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "totemwatch_sweep_duration_seconds",
		Help:    "Duration of full decay and eviction sweeps",
		Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
	})

	// SweepEvictions counts idle sessions evicted by the sweeper.
	SweepEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "totemwatch_sweep_evictions_total",
		Help: "Idle sessions evicted by the sweeper",
	})
)

// ObserveSweep records one sweep duration.
func ObserveSweep(d time.Duration) {
	SweepDuration.Observe(d.Seconds())
}
