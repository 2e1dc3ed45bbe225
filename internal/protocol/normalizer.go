// TotemWatch - Protocol-Level Totem Automation Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/totemwatch

package protocol

import (
	"github.com/google/uuid"
)

// Raw protocol notification types delivered by the host integration layer.
// These mirror the wire-level packets relevant to totem detection.
const (
	PacketEntityStatus = "entity_status"
	PacketRemoveEffect = "remove_mob_effect"
	PacketSetSlot      = "set_slot"
	PacketClickWindow  = "click_window"
	PacketSwapHands    = "swap_hands"
	PacketTickAck      = "tick_ack"
	PacketKeepAlive    = "keep_alive"
)

// EntityStatusTotem is the entity status code signalling a totem-triggered
// resurrection on the wire.
const EntityStatusTotem = 35

// RawEvent is a decoded protocol notification as delivered by the host.
// The integration layer tags each notification with the owning player and
// preserves per-connection ordering; everything else is packet fields.
type RawEvent struct {
	PlayerID   uuid.UUID `json:"player_id"`
	PacketType string    `json:"packet_type"`

	// Packet fields; which are set depends on PacketType.
	Status    int     `json:"status,omitempty"`
	Slot      int     `json:"slot,omitempty"`
	Item      string  `json:"item,omitempty"`
	Effect    string  `json:"effect,omitempty"`
	TickID    uint32  `json:"tick_id,omitempty"`
	LatencyMs float64 `json:"latency_ms,omitempty"`
}

// Normalizer converts raw protocol notifications into canonical PlayerEvents,
// assigning timestamps from the shared monotonic clock. It has no side
// effects beyond construction and never blocks.
type Normalizer struct {
	clock Clock
}

// NewNormalizer creates a normalizer using the given clock.
func NewNormalizer(clock Clock) *Normalizer {
	return &Normalizer{clock: clock}
}

// Normalize converts a raw notification into a PlayerEvent. The second
// return value is false for notifications outside the recognized set;
// those are ignored by the pipeline, not treated as errors.
func (n *Normalizer) Normalize(raw RawEvent) (PlayerEvent, bool) {
	kind, payload, ok := classify(raw)
	if !ok {
		return PlayerEvent{}, false
	}

	return PlayerEvent{
		PlayerID:        raw.PlayerID,
		Kind:            kind,
		ServerTimestamp: n.clock.Now(),
		Payload:         payload,
	}, true
}

func classify(raw RawEvent) (EventKind, Payload, bool) {
	switch raw.PacketType {
	case PacketEntityStatus:
		if raw.Status != EntityStatusTotem {
			return KindUnknown, Payload{}, false
		}
		return KindResurrection, Payload{}, true

	case PacketRemoveEffect:
		return KindEffectRemoved, Payload{Effect: raw.Effect}, true

	case PacketSetSlot, PacketClickWindow:
		return KindSlotChanged, Payload{Slot: raw.Slot, Item: raw.Item}, true

	case PacketSwapHands:
		return KindHandSwap, Payload{Item: raw.Item}, true

	case PacketTickAck:
		return KindTickAck, Payload{TickID: raw.TickID}, true

	case PacketKeepAlive:
		return KindLatencySample, Payload{LatencyMs: raw.LatencyMs}, true

	default:
		return KindUnknown, Payload{}, false
	}
}
