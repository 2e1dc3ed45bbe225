// TotemWatch - Protocol-Level Totem Automation Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/totemwatch

// Package protocol defines the canonical player event model and the
// normalizer that converts raw protocol-layer notifications into it.
//
// Events are immutable once produced: every check consumes the same
// PlayerEvent values from a player's ring buffers and nothing mutates them
// after normalization.
package protocol

import (
	"github.com/google/uuid"
)

// EventKind identifies the kind of a canonical player event.
type EventKind uint8

const (
	// KindUnknown marks events outside the recognized set. The normalizer
	// never emits it; it exists as the zero value.
	KindUnknown EventKind = iota

	// KindResurrection is an emergency resurrection (totem pop) for the player.
	KindResurrection

	// KindEffectRemoved is the removal of a status effect from the player.
	KindEffectRemoved

	// KindSlotChanged is a change to an inventory slot's content.
	KindSlotChanged

	// KindHandSwap is an off-hand item swap.
	KindHandSwap

	// KindTickAck is a client tick acknowledgement.
	KindTickAck

	// KindLatencySample is a round-trip latency measurement for the connection.
	KindLatencySample
)

// String returns the event kind name used in logs and metrics labels.
func (k EventKind) String() string {
	switch k {
	case KindResurrection:
		return "resurrection"
	case KindEffectRemoved:
		return "effect_removed"
	case KindSlotChanged:
		return "slot_changed"
	case KindHandSwap:
		return "hand_swap"
	case KindTickAck:
		return "tick_ack"
	case KindLatencySample:
		return "latency_sample"
	default:
		return "unknown"
	}
}

// Kinds lists every recognized event kind in a fixed order. Used to size
// per-kind history buffers and metrics.
func Kinds() []EventKind {
	return []EventKind{
		KindResurrection,
		KindEffectRemoved,
		KindSlotChanged,
		KindHandSwap,
		KindTickAck,
		KindLatencySample,
	}
}

// Payload carries the kind-specific fields of a PlayerEvent. Unused fields
// are zero; which fields are meaningful is determined by the event kind.
type Payload struct {
	// Slot is the inventory slot index for slot-changed events.
	Slot int

	// Item identifies the item now occupying the slot (or swapped to the
	// off hand), e.g. "totem_of_undying".
	Item string

	// Effect is the removed status effect type for effect-removed events,
	// e.g. "regeneration", "absorption".
	Effect string

	// TickID is the acknowledged tick for tick-ack events.
	TickID uint32

	// LatencyMs is the measured round-trip time for latency-sample events.
	LatencyMs float64
}

// PlayerEvent is the canonical, immutable detection event. ServerTimestamp
// comes from the process-wide monotonic clock, never from client data, so
// timing checks are immune to client clock manipulation.
type PlayerEvent struct {
	PlayerID        uuid.UUID
	Kind            EventKind
	ServerTimestamp int64 // nanoseconds on the process monotonic clock
	Payload         Payload
}

// TotemItem is the item identity that marks a totem in slot-changed and
// hand-swap payloads.
const TotemItem = "totem_of_undying"

// IsTotem reports whether the event moves a totem (slot change or hand swap).
func (e PlayerEvent) IsTotem() bool {
	return e.Payload.Item == TotemItem
}
