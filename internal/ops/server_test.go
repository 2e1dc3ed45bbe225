// TotemWatch - Protocol-Level Totem Automation Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/totemwatch

package ops

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/totemwatch/internal/alert"
	"github.com/tomtom215/totemwatch/internal/protocol"
	"github.com/tomtom215/totemwatch/internal/session"
)

type stubIntake struct {
	ingested []protocol.RawEvent
	joined   []uuid.UUID
	quit     []uuid.UUID

	// fail makes Ingest error once failAfter events have been accepted.
	fail      bool
	failAfter int
}

func (s *stubIntake) Ingest(raw protocol.RawEvent) error {
	if s.fail && len(s.ingested) >= s.failAfter {
		return errors.New("bus closed")
	}
	s.ingested = append(s.ingested, raw)
	return nil
}

func (s *stubIntake) OnJoin(id uuid.UUID) { s.joined = append(s.joined, id) }
func (s *stubIntake) OnQuit(id uuid.UUID) { s.quit = append(s.quit, id) }

type tickClock struct{ now int64 }

func (c *tickClock) Now() int64 { return c.now }

func newTestRouter(intake Intake, store *session.Store, dead *alert.DeadLetterLog) http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", handleHealth(store))
	r.Get("/deadletters", handleDeadLetters(dead))
	mountIntake(r, intake)
	return r
}

func TestHealthz_ReportsSessionCount(t *testing.T) {
	store := session.NewStore(&tickClock{}, 8)
	store.OnJoin(uuid.New())
	store.OnJoin(uuid.New())
	router := newTestRouter(&stubIntake{}, store, alert.NewDeadLetterLog(8))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Status   string `json:"status"`
		Sessions int    `json:"sessions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want %q", body.Status, "ok")
	}
	if body.Sessions != 2 {
		t.Errorf("sessions = %d, want 2", body.Sessions)
	}
}

func TestDeadLetters_ReturnsLoggedEntries(t *testing.T) {
	dead := alert.NewDeadLetterLog(8)
	ev := &alert.Event{ID: uuid.New(), PlayerID: uuid.New(), Check: "timing"}
	dead.Record(ev, "discord", 3, errors.New("unreachable"))

	store := session.NewStore(&tickClock{}, 8)
	router := newTestRouter(&stubIntake{}, store, dead)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/deadletters", nil))

	var body struct {
		Count       int                `json:"count"`
		DeadLetters []alert.DeadLetter `json:"dead_letters"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Count != 1 {
		t.Fatalf("count = %d, want 1", body.Count)
	}
	if body.DeadLetters[0].Sink != "discord" {
		t.Errorf("sink = %q, want %q", body.DeadLetters[0].Sink, "discord")
	}
}

func TestIntakeEvents_AcceptsBatch(t *testing.T) {
	intake := &stubIntake{}
	store := session.NewStore(&tickClock{}, 8)
	router := newTestRouter(intake, store, alert.NewDeadLetterLog(8))

	id := uuid.New()
	batch := []protocol.RawEvent{
		{PlayerID: id, PacketType: protocol.PacketEntityStatus, Status: protocol.EntityStatusTotem},
		{PlayerID: id, PacketType: protocol.PacketSetSlot, Slot: 3, Item: "minecraft:totem_of_undying"},
	}
	payload, err := json.Marshal(batch)
	if err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/intake/events", bytes.NewReader(payload)))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	var body struct {
		Accepted int `json:"accepted"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Accepted != 2 {
		t.Errorf("accepted = %d, want 2", body.Accepted)
	}
	if len(intake.ingested) != 2 {
		t.Fatalf("ingested = %d, want 2", len(intake.ingested))
	}
	if intake.ingested[1].Item != "minecraft:totem_of_undying" {
		t.Errorf("second event item = %q", intake.ingested[1].Item)
	}
}

func TestIntakeEvents_MalformedBodyRejected(t *testing.T) {
	router := newTestRouter(&stubIntake{}, session.NewStore(&tickClock{}, 8), alert.NewDeadLetterLog(8))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/intake/events", bytes.NewReader([]byte("{not json"))))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestIntakeEvents_IngestFailure(t *testing.T) {
	intake := &stubIntake{fail: true}
	router := newTestRouter(intake, session.NewStore(&tickClock{}, 8), alert.NewDeadLetterLog(8))

	payload, _ := json.Marshal([]protocol.RawEvent{{PlayerID: uuid.New(), PacketType: protocol.PacketEntityStatus, Status: protocol.EntityStatusTotem}})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/intake/events", bytes.NewReader(payload)))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestIntakeEvents_MidBatchFailureReportsAcceptedCount(t *testing.T) {
	intake := &stubIntake{fail: true, failAfter: 2}
	router := newTestRouter(intake, session.NewStore(&tickClock{}, 8), alert.NewDeadLetterLog(8))

	id := uuid.New()
	batch := []protocol.RawEvent{
		{PlayerID: id, PacketType: protocol.PacketRemoveEffect, Effect: "minecraft:absorption"},
		{PlayerID: id, PacketType: protocol.PacketEntityStatus, Status: protocol.EntityStatusTotem},
		{PlayerID: id, PacketType: protocol.PacketSetSlot, Slot: 3, Item: "minecraft:totem_of_undying"},
	}
	payload, _ := json.Marshal(batch)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/intake/events", bytes.NewReader(payload)))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var body struct {
		Error    string `json:"error"`
		Accepted int    `json:"accepted"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Accepted != 2 {
		t.Errorf("accepted = %d, want 2", body.Accepted)
	}
	if len(intake.ingested) != 2 {
		t.Errorf("ingested = %d, want 2", len(intake.ingested))
	}
}

func TestIntakeJoinQuit(t *testing.T) {
	intake := &stubIntake{}
	router := newTestRouter(intake, session.NewStore(&tickClock{}, 8), alert.NewDeadLetterLog(8))

	id := uuid.New()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, fmt.Sprintf("/intake/join/%s", id), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("join status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, fmt.Sprintf("/intake/quit/%s", id), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("quit status = %d, want 200", rec.Code)
	}

	if len(intake.joined) != 1 || intake.joined[0] != id {
		t.Errorf("joined = %v, want [%s]", intake.joined, id)
	}
	if len(intake.quit) != 1 || intake.quit[0] != id {
		t.Errorf("quit = %v, want [%s]", intake.quit, id)
	}
}

func TestIntakeJoin_InvalidUUID(t *testing.T) {
	router := newTestRouter(&stubIntake{}, session.NewStore(&tickClock{}, 8), alert.NewDeadLetterLog(8))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/intake/join/not-a-uuid", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestServer_ServeStopsOnCancel(t *testing.T) {
	store := session.NewStore(&tickClock{}, 8)
	srv := NewServer("127.0.0.1:0", 5*time.Second, &stubIntake{}, store, alert.NewDeadLetterLog(8), nil)
	if got := srv.String(); got != "ops-server" {
		t.Errorf("String() = %q, want %q", got, "ops-server")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not stop after cancellation")
	}
}
