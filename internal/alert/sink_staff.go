// TotemWatch - Protocol-Level Totem Automation Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/totemwatch

package alert

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/totemwatch/internal/logging"
)

// staffMessage is the frame broadcast to connected staff consoles.
type staffMessage struct {
	Type    string `json:"type"`
	Summary string `json:"summary"`
	Alert   *Event `json:"alert"`
}

const staffMessageType = "detection_alert"

const (
	staffWriteWait  = 10 * time.Second
	staffPongWait   = 60 * time.Second
	staffPingPeriod = (staffPongWait * 9) / 10

	// Consoles only listen; anything beyond a control frame is oversized.
	staffMaxMessageSize = 512
)

// staffClient is one connected staff console.
type staffClient struct {
	conn *websocket.Conn
	send chan []byte
}

// StaffSink broadcasts human-readable alert summaries to connected staff
// consoles over WebSocket. Delivery is best effort: a console that cannot
// keep up is disconnected rather than buffered without bound.
type StaffSink struct {
	mu        sync.RWMutex
	clients   map[*staffClient]struct{}
	enabled   bool
	queueSize int
	upgrader  websocket.Upgrader
}

// StaffConfig configures the staff broadcast sink.
type StaffConfig struct {
	Enabled   bool `koanf:"enabled" json:"enabled"`
	QueueSize int  `koanf:"queue_size" json:"queue_size" validate:"gte=0"`
}

// DefaultStaffConfig returns the defaults.
func DefaultStaffConfig() StaffConfig {
	return StaffConfig{Enabled: true, QueueSize: 64}
}

// NewStaffSink creates a staff broadcast sink.
func NewStaffSink(cfg StaffConfig) *StaffSink {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 64
	}
	return &StaffSink{
		clients:   make(map[*staffClient]struct{}),
		enabled:   cfg.Enabled,
		queueSize: queueSize,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Name returns the sink name.
func (s *StaffSink) Name() string { return "staff" }

// Enabled reports whether the sink is active.
func (s *StaffSink) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled
}

// SetEnabled toggles the sink.
func (s *StaffSink) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
}

// Deliver broadcasts the alert summary to every connected console.
// A console whose outbound buffer is full is dropped.
func (s *StaffSink) Deliver(_ context.Context, ev *Event) error {
	payload, err := json.Marshal(staffMessage{
		Type:    staffMessageType,
		Summary: ev.Summary(),
		Alert:   ev,
	})
	if err != nil {
		return err
	}

	// Sends happen under the read lock so no channel is closed mid-send;
	// disconnect closes under the write lock.
	s.mu.RLock()
	var slow []*staffClient
	for c := range s.clients {
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	s.mu.RUnlock()

	for _, c := range slow {
		s.disconnect(c)
		logging.Warn().Msg("staff console too slow, disconnected")
	}
	return nil
}

// ServeHTTP upgrades an incoming staff console connection and starts its
// read and write pumps. Mounted on the ops router.
func (s *StaffSink) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn().Err(err).Msg("staff console upgrade failed")
		return
	}

	client := &staffClient{conn: conn, send: make(chan []byte, s.queueSize)}

	s.mu.Lock()
	s.clients[client] = struct{}{}
	total := len(s.clients)
	s.mu.Unlock()

	logging.Info().Int("total_clients", total).Msg("staff console connected")
	go s.writePump(client)
	go s.readPump(client)
}

// readPump drains inbound frames so close frames and pong replies are
// processed. A console that stops answering pings misses the read deadline
// and is disconnected.
func (s *StaffSink) readPump(c *staffClient) {
	defer s.disconnect(c)

	c.conn.SetReadLimit(staffMaxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(staffPongWait)); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(staffPongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logging.Warn().Err(err).Msg("staff console read failed")
			}
			return
		}
	}
}

func (s *StaffSink) writePump(c *staffClient) {
	ticker := time.NewTicker(staffPingPeriod)
	defer func() {
		ticker.Stop()
		s.disconnect(c)
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(staffWriteWait)); err != nil {
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(staffWriteWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *StaffSink) disconnect(c *staffClient) {
	s.mu.Lock()
	if _, ok := s.clients[c]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.clients, c)
	close(c.send)
	s.mu.Unlock()

	_ = c.conn.Close()
}

// ClientCount returns the number of connected consoles.
func (s *StaffSink) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}
