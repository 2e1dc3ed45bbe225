// TotemWatch - Protocol-Level Totem Automation Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/totemwatch

package session

import (
	"sync"

	"github.com/google/uuid"

	"github.com/tomtom215/totemwatch/internal/ledger"
	"github.com/tomtom215/totemwatch/internal/protocol"
)

// latencyAlpha is the exponential smoothing factor for connection latency.
const latencyAlpha = 0.25

// PlayerState holds everything the engine tracks for one connected player:
// bounded per-kind event history, per-check working memory, and the
// violation records. It is exclusively owned by the Store; the event path
// and the sweep path both reach it only through the Store's accessors,
// which serialize on the entry lock. All methods below assume that lock is
// held.
type PlayerState struct {
	mu   sync.Mutex
	gone bool // set on quit; in-flight accessor calls become no-ops

	id          uuid.UUID
	joinedAt    int64
	lastSeen    int64 // newest admitted event timestamp
	lastActive  int64 // last time any event was observed
	latencyMs   float64
	historySize int

	buffers    map[protocol.EventKind]*Ring
	checkState map[string]any
	violations map[string]*ledger.Record
}

func newPlayerState(id uuid.UUID, now int64, historySize int) *PlayerState {
	return &PlayerState{
		id:          id,
		joinedAt:    now,
		lastActive:  now,
		historySize: historySize,
		buffers:     make(map[protocol.EventKind]*Ring, len(protocol.Kinds())),
		checkState:  make(map[string]any),
		violations:  make(map[string]*ledger.Record),
	}
}

// ID returns the player identity.
func (p *PlayerState) ID() uuid.UUID {
	return p.id
}

// JoinedAt returns the monotonic timestamp of session creation.
func (p *PlayerState) JoinedAt() int64 {
	return p.joinedAt
}

// Admit decides whether an event timestamp is processable given the
// reordering slack. Events older than the newest admitted timestamp by
// more than the slack are ignored; anything newer advances the watermark.
func (p *PlayerState) Admit(ts, slack int64) bool {
	if ts+slack < p.lastSeen {
		return false
	}
	if ts > p.lastSeen {
		p.lastSeen = ts
	}
	return true
}

// Observe records an event into the player's history. Latency samples feed
// the smoothed latency estimate instead of a ring buffer; tick acks update
// activity only.
func (p *PlayerState) Observe(ev protocol.PlayerEvent) {
	p.lastActive = ev.ServerTimestamp

	switch ev.Kind {
	case protocol.KindLatencySample:
		if p.latencyMs == 0 {
			p.latencyMs = ev.Payload.LatencyMs
		} else {
			p.latencyMs = latencyAlpha*ev.Payload.LatencyMs + (1-latencyAlpha)*p.latencyMs
		}
		return
	case protocol.KindTickAck:
		return
	}

	buf, ok := p.buffers[ev.Kind]
	if !ok {
		buf = NewRing(p.historySize)
		p.buffers[ev.Kind] = buf
	}
	buf.Push(ev)
}

// History returns the ring buffer for one event kind. The returned ring is
// empty (never nil) when nothing of that kind has been observed.
func (p *PlayerState) History(kind protocol.EventKind) *Ring {
	if buf, ok := p.buffers[kind]; ok {
		return buf
	}
	buf := NewRing(p.historySize)
	p.buffers[kind] = buf
	return buf
}

// LastEvent returns the newest observed event of one kind.
func (p *PlayerState) LastEvent(kind protocol.EventKind) (protocol.PlayerEvent, bool) {
	buf, ok := p.buffers[kind]
	if !ok {
		return protocol.PlayerEvent{}, false
	}
	return buf.Last()
}

// LatencyMs returns the smoothed connection latency, or 0 when no samples
// have arrived yet.
func (p *PlayerState) LatencyMs() float64 {
	return p.latencyMs
}

// LastActive returns the monotonic timestamp of the last observed event.
func (p *PlayerState) LastActive() int64 {
	return p.lastActive
}

// CheckState returns the opaque working memory a check stored under its
// name, or nil.
func (p *PlayerState) CheckState(name string) any {
	return p.checkState[name]
}

// SetCheckState stores a check's opaque working memory under its name.
func (p *PlayerState) SetCheckState(name string, v any) {
	p.checkState[name] = v
}

// Violation returns the violation record for a check, creating it on first
// use.
func (p *PlayerState) Violation(check string) *ledger.Record {
	rec, ok := p.violations[check]
	if !ok {
		rec = &ledger.Record{}
		p.violations[check] = rec
	}
	return rec
}

// SweepViolations visits every violation record, removing those for which
// fn returns true. Used by the decay sweeper.
func (p *PlayerState) SweepViolations(fn func(check string, rec *ledger.Record) (remove bool)) {
	for name, rec := range p.violations {
		if fn(name, rec) {
			delete(p.violations, name)
		}
	}
}
