// TotemWatch - Protocol-Level Totem Automation Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/totemwatch

package check

import (
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/totemwatch/internal/protocol"
	"github.com/tomtom215/totemwatch/internal/session"
)

// inventoryState is the per-player working memory for the inventory check.
type inventoryState struct {
	awaitingReEquip bool
	resurrectionTS  int64
	lastTotemMoveTS int64
}

// InventoryCheck flags totem re-equips completing faster than the declared
// client tick rate allows. A re-equip needs at least MinActions client
// actions, one per tick, so anything quicker than MinActions tick
// intervals after the resurrection is unreachable by manual input. Totem
// moves paced inside a single tick interval are flagged the same way.
type InventoryCheck struct {
	mu      sync.RWMutex
	config  InventoryConfig
	enabled bool
}

// NewInventoryCheck creates the check with the given configuration.
func NewInventoryCheck(cfg InventoryConfig) *InventoryCheck {
	return &InventoryCheck{config: cfg, enabled: cfg.Enabled}
}

// Name returns the check identifier.
func (c *InventoryCheck) Name() string { return NameInventory }

// Interests declares the consumed event kinds.
func (c *InventoryCheck) Interests() []protocol.EventKind {
	return []protocol.EventKind{
		protocol.KindResurrection,
		protocol.KindSlotChanged,
		protocol.KindHandSwap,
	}
}

// OnEvent advances the per-player re-equip state machine.
func (c *InventoryCheck) OnEvent(st *session.PlayerState, ev protocol.PlayerEvent) (*Verdict, error) {
	c.mu.RLock()
	cfg := c.config
	c.mu.RUnlock()

	state, _ := st.CheckState(NameInventory).(*inventoryState)
	if state == nil {
		state = &inventoryState{}
		st.SetCheckState(NameInventory, state)
	}

	if ev.Kind == protocol.KindResurrection {
		state.awaitingReEquip = true
		state.resurrectionTS = ev.ServerTimestamp
		return nil, nil
	}

	// Slot change or hand swap from here on.
	if !ev.IsTotem() {
		return nil, nil
	}

	tickInterval := int64(time.Second) / int64(cfg.ClientTickRate)

	if state.awaitingReEquip {
		state.awaitingReEquip = false
		interval := ev.ServerTimestamp - state.resurrectionTS
		reachable := int64(cfg.MinActions) * tickInterval
		if interval >= 0 && interval < reachable {
			state.lastTotemMoveTS = ev.ServerTimestamp
			return &Verdict{
				Severity: cfg.Weight * (1 - float64(interval)/float64(reachable)),
				Reason: fmt.Sprintf(
					"totem re-equip in %.1fms, below the %.0fms reachable at %d tps",
					float64(interval)/float64(time.Millisecond),
					float64(reachable)/float64(time.Millisecond),
					cfg.ClientTickRate,
				),
				Event: ev,
			}, nil
		}
	} else if state.lastTotemMoveTS > 0 {
		gap := ev.ServerTimestamp - state.lastTotemMoveTS
		if gap >= 0 && gap < tickInterval {
			state.lastTotemMoveTS = ev.ServerTimestamp
			return &Verdict{
				Severity: cfg.Weight * 0.5 * (1 - float64(gap)/float64(tickInterval)),
				Reason: fmt.Sprintf(
					"consecutive totem moves %.1fms apart, inside one %d tps tick",
					float64(gap)/float64(time.Millisecond),
					cfg.ClientTickRate,
				),
				Event: ev,
			}, nil
		}
	}

	state.lastTotemMoveTS = ev.ServerTimestamp
	return nil, nil
}

// Configure replaces the check configuration.
func (c *InventoryCheck) Configure(cfg InventoryConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.config = cfg
	c.enabled = cfg.Enabled
}

// Enabled reports whether the check is active.
func (c *InventoryCheck) Enabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled
}

// SetEnabled toggles the check.
func (c *InventoryCheck) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = enabled
}
