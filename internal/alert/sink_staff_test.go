// TotemWatch - Protocol-Level Totem Automation Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/totemwatch

package alert

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

func dialStaff(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial staff console: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitClientCount(t *testing.T, sink *StaffSink, want int) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for sink.ClientCount() != want {
		select {
		case <-deadline:
			t.Fatalf("ClientCount() = %d, want %d", sink.ClientCount(), want)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestStaffSink_BroadcastReachesConsole(t *testing.T) {
	sink := NewStaffSink(DefaultStaffConfig())
	srv := httptest.NewServer(http.HandlerFunc(sink.ServeHTTP))
	defer srv.Close()

	conn := dialStaff(t, srv)
	waitClientCount(t, sink, 1)

	ev := testEvent("timing")
	if err := sink.Deliver(context.Background(), ev); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read broadcast: %v", err)
	}

	var msg staffMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("decode broadcast: %v", err)
	}
	if msg.Type != staffMessageType {
		t.Errorf("message type = %q, want %q", msg.Type, staffMessageType)
	}
	if msg.Alert == nil || msg.Alert.Check != "timing" {
		t.Errorf("broadcast alert = %+v, want check %q", msg.Alert, "timing")
	}
}

func TestStaffSink_ClosedConsoleIsRemoved(t *testing.T) {
	sink := NewStaffSink(DefaultStaffConfig())
	srv := httptest.NewServer(http.HandlerFunc(sink.ServeHTTP))
	defer srv.Close()

	conn := dialStaff(t, srv)
	waitClientCount(t, sink, 1)

	// A clean close frame must release the client without any alert
	// traffic driving the write path.
	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)

	waitClientCount(t, sink, 0)
}

func TestStaffSink_DroppedConnectionIsRemoved(t *testing.T) {
	sink := NewStaffSink(DefaultStaffConfig())
	srv := httptest.NewServer(http.HandlerFunc(sink.ServeHTTP))
	defer srv.Close()

	conn := dialStaff(t, srv)
	waitClientCount(t, sink, 1)

	// Tear the TCP connection down without a close handshake.
	_ = conn.UnderlyingConn().Close()

	waitClientCount(t, sink, 0)
}
