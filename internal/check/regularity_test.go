// TotemWatch - Protocol-Level Totem Automation Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/totemwatch

package check

import (
	"math"
	"testing"
	"time"

	"github.com/tomtom215/totemwatch/internal/session"
)

// feedResurrections observes resurrections at the given offsets and
// returns the verdict (if any) for the final one.
func feedResurrections(t *testing.T, c *RegularityCheck, offsets []time.Duration) *Verdict {
	t.Helper()
	var verdict *Verdict
	withState(t, func(st *session.PlayerState) {
		for i, off := range offsets {
			ev := resurrectionAt(off)
			st.Observe(ev)
			v, err := c.OnEvent(st, ev)
			if err != nil {
				t.Fatalf("OnEvent() error = %v", err)
			}
			if i == len(offsets)-1 {
				verdict = v
			}
		}
	})
	return verdict
}

func TestRegularityCheck_FlagsConstantIntervals(t *testing.T) {
	c := NewRegularityCheck(DefaultRegularityConfig())
	offsets := []time.Duration{
		0,
		100 * time.Millisecond,
		200 * time.Millisecond,
		300 * time.Millisecond,
		400 * time.Millisecond,
	}
	verdict := feedResurrections(t, c, offsets)
	if verdict == nil {
		t.Fatal("perfectly constant 100ms intervals produced no verdict")
	}
	if verdict.Severity <= 0 {
		t.Errorf("severity = %v, want > 0", verdict.Severity)
	}
}

func TestRegularityCheck_AcceptsJitteredIntervals(t *testing.T) {
	c := NewRegularityCheck(DefaultRegularityConfig())
	offsets := []time.Duration{
		0,
		80 * time.Millisecond,
		210 * time.Millisecond,
		305 * time.Millisecond,
		445 * time.Millisecond,
		535 * time.Millisecond,
	}
	if verdict := feedResurrections(t, c, offsets); verdict != nil {
		t.Errorf("human-like jitter flagged: %+v", verdict)
	}
}

func TestRegularityCheck_ColdStateNoVerdict(t *testing.T) {
	c := NewRegularityCheck(DefaultRegularityConfig())
	// Three events give only two intervals, below the four required.
	offsets := []time.Duration{0, 100 * time.Millisecond, 200 * time.Millisecond}
	if verdict := feedResurrections(t, c, offsets); verdict != nil {
		t.Errorf("short window flagged: %+v", verdict)
	}
}

func TestCoefficientOfVariation(t *testing.T) {
	tests := []struct {
		name      string
		intervals []int64
		want      float64
	}{
		{"empty", nil, 0},
		{"constant", []int64{100, 100, 100}, 0},
		{"zero mean zero spread", []int64{0, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := coefficientOfVariation(tt.intervals); got != tt.want {
				t.Errorf("coefficientOfVariation(%v) = %v, want %v", tt.intervals, got, tt.want)
			}
		})
	}

	if got := coefficientOfVariation([]int64{-100, 100}); !math.IsInf(got, 1) {
		t.Errorf("zero mean with spread = %v, want +Inf", got)
	}

	got := coefficientOfVariation([]int64{90, 110})
	want := 10.0 / 100.0
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("coefficientOfVariation = %v, want %v", got, want)
	}
}
