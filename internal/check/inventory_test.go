// TotemWatch - Protocol-Level Totem Automation Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/totemwatch

package check

import (
	"testing"
	"time"

	"github.com/tomtom215/totemwatch/internal/protocol"
	"github.com/tomtom215/totemwatch/internal/session"
)

func TestInventoryCheck_FlagsUnreachableReEquip(t *testing.T) {
	withState(t, func(st *session.PlayerState) {
		c := NewInventoryCheck(DefaultInventoryConfig())

		res := resurrectionAt(1000 * time.Millisecond)
		st.Observe(res)
		if v, _ := c.OnEvent(st, res); v != nil {
			t.Fatal("resurrection alone produced a verdict")
		}

		// 2 actions at 20 tps need at least 100ms; 40ms is unreachable.
		move := totemMoveAt(1040 * time.Millisecond)
		st.Observe(move)
		verdict, err := c.OnEvent(st, move)
		if err != nil {
			t.Fatalf("OnEvent() error = %v", err)
		}
		if verdict == nil {
			t.Fatal("40ms re-equip produced no verdict")
		}
	})
}

func TestInventoryCheck_AcceptsPlausibleReEquip(t *testing.T) {
	withState(t, func(st *session.PlayerState) {
		c := NewInventoryCheck(DefaultInventoryConfig())

		res := resurrectionAt(1000 * time.Millisecond)
		st.Observe(res)
		_, _ = c.OnEvent(st, res)

		move := totemMoveAt(1250 * time.Millisecond)
		st.Observe(move)
		verdict, _ := c.OnEvent(st, move)
		if verdict != nil {
			t.Errorf("250ms re-equip flagged: %+v", verdict)
		}
	})
}

func TestInventoryCheck_IgnoresNonTotemMoves(t *testing.T) {
	withState(t, func(st *session.PlayerState) {
		c := NewInventoryCheck(DefaultInventoryConfig())

		res := resurrectionAt(0)
		st.Observe(res)
		_, _ = c.OnEvent(st, res)

		move := protocol.PlayerEvent{
			Kind:            protocol.KindSlotChanged,
			ServerTimestamp: int64(10 * time.Millisecond),
			Payload:         protocol.Payload{Slot: 45, Item: "golden_apple"},
		}
		st.Observe(move)
		if v, _ := c.OnEvent(st, move); v != nil {
			t.Errorf("non-totem move flagged: %+v", v)
		}
	})
}

func TestInventoryCheck_FlagsSubTickMovePacing(t *testing.T) {
	withState(t, func(st *session.PlayerState) {
		c := NewInventoryCheck(DefaultInventoryConfig())

		// Two totem moves 30ms apart with no pending re-equip: inside one
		// 50ms tick at 20 tps.
		first := totemMoveAt(1000 * time.Millisecond)
		st.Observe(first)
		if v, _ := c.OnEvent(st, first); v != nil {
			t.Fatal("first totem move flagged")
		}

		second := totemMoveAt(1030 * time.Millisecond)
		st.Observe(second)
		verdict, _ := c.OnEvent(st, second)
		if verdict == nil {
			t.Fatal("30ms move pacing produced no verdict")
		}

		// Paced moves are fine.
		third := totemMoveAt(1300 * time.Millisecond)
		st.Observe(third)
		if v, _ := c.OnEvent(st, third); v != nil {
			t.Errorf("270ms move pacing flagged: %+v", v)
		}
	})
}

func TestInventoryCheck_HandSwapCountsAsReEquip(t *testing.T) {
	withState(t, func(st *session.PlayerState) {
		c := NewInventoryCheck(DefaultInventoryConfig())

		res := resurrectionAt(0)
		st.Observe(res)
		_, _ = c.OnEvent(st, res)

		swap := protocol.PlayerEvent{
			Kind:            protocol.KindHandSwap,
			ServerTimestamp: int64(20 * time.Millisecond),
			Payload:         protocol.Payload{Item: protocol.TotemItem},
		}
		st.Observe(swap)
		verdict, _ := c.OnEvent(st, swap)
		if verdict == nil {
			t.Error("20ms hand-swap re-equip produced no verdict")
		}
	})
}
