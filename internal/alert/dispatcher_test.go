// TotemWatch - Protocol-Level Totem Automation Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/totemwatch

package alert

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/totemwatch/internal/ledger"
)

// stubSink records delivered events and fails a configurable number of
// times before succeeding.
type stubSink struct {
	mu        sync.Mutex
	name      string
	enabled   bool
	failFirst int
	calls     int
	delivered []*Event
}

func (s *stubSink) Name() string  { return s.name }
func (s *stubSink) Enabled() bool { return s.enabled }

func (s *stubSink) Deliver(_ context.Context, ev *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failFirst {
		return errors.New("delivery refused")
	}
	s.delivered = append(s.delivered, ev)
	return nil
}

func (s *stubSink) deliveredCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.delivered)
}

func testEvent(check string) *Event {
	return &Event{
		ID:        uuid.New(),
		PlayerID:  uuid.New(),
		Check:     check,
		Severity:  2.0,
		Score:     12.0,
		Level:     ledger.LevelWarn,
		Reason:    "test alert",
		Timestamp: time.Now(),
	}
}

func TestDispatch_SkipsDisabledSinks(t *testing.T) {
	d := NewDispatcher(NewDeadLetterLog(8))
	on := &stubSink{name: "on", enabled: true}
	off := &stubSink{name: "off", enabled: false}
	d.Register(on, 4, DefaultRetryPolicy())
	d.Register(off, 4, DefaultRetryPolicy())

	d.Dispatch(testEvent("timing"))

	if got := len(d.workers[0].queue); got != 1 {
		t.Fatalf("enabled sink queue length = %d, want 1", got)
	}
	if got := len(d.workers[1].queue); got != 0 {
		t.Fatalf("disabled sink queue length = %d, want 0", got)
	}
}

func TestDispatch_ShedsOldestWhenQueueFull(t *testing.T) {
	d := NewDispatcher(NewDeadLetterLog(8))
	sink := &stubSink{name: "slow", enabled: true}
	d.Register(sink, 2, DefaultRetryPolicy())

	first := testEvent("first")
	second := testEvent("second")
	third := testEvent("third")

	// No worker running, so the queue fills and the third dispatch must
	// shed the first event.
	d.Dispatch(first)
	d.Dispatch(second)
	d.Dispatch(third)

	queue := d.workers[0].queue
	if got := len(queue); got != 2 {
		t.Fatalf("queue length = %d, want 2", got)
	}
	if ev := <-queue; ev.Check != "second" {
		t.Errorf("oldest surviving alert = %q, want %q", ev.Check, "second")
	}
	if ev := <-queue; ev.Check != "third" {
		t.Errorf("newest surviving alert = %q, want %q", ev.Check, "third")
	}
}

func TestDeliver_RetriesThenSucceeds(t *testing.T) {
	dead := NewDeadLetterLog(8)
	d := NewDispatcher(dead)
	sink := &stubSink{name: "flaky", enabled: true, failFirst: 1}
	d.Register(sink, 4, RetryPolicy{Attempts: 3, Delay: time.Millisecond})

	d.workers[0].deliver(context.Background(), testEvent("timing"))

	if sink.calls != 2 {
		t.Errorf("delivery attempts = %d, want 2", sink.calls)
	}
	if got := sink.deliveredCount(); got != 1 {
		t.Errorf("delivered = %d, want 1", got)
	}
	if dead.Len() != 0 {
		t.Errorf("dead letters = %d, want 0", dead.Len())
	}
}

func TestDeliver_ExhaustedRetriesDeadLetter(t *testing.T) {
	dead := NewDeadLetterLog(8)
	d := NewDispatcher(dead)
	sink := &stubSink{name: "broken", enabled: true, failFirst: 10}
	d.Register(sink, 4, RetryPolicy{Attempts: 3, Delay: time.Millisecond})

	ev := testEvent("inventory")
	d.workers[0].deliver(context.Background(), ev)

	if sink.calls != 3 {
		t.Errorf("delivery attempts = %d, want 3", sink.calls)
	}
	if dead.Len() != 1 {
		t.Fatalf("dead letters = %d, want 1", dead.Len())
	}
	entry := dead.Snapshot()[0]
	if entry.Sink != "broken" {
		t.Errorf("dead letter sink = %q, want %q", entry.Sink, "broken")
	}
	if entry.Attempts != 3 {
		t.Errorf("dead letter attempts = %d, want 3", entry.Attempts)
	}
	if entry.Event.ID != ev.ID {
		t.Errorf("dead letter event ID = %s, want %s", entry.Event.ID, ev.ID)
	}
	if entry.LastError == "" {
		t.Error("dead letter should carry the last delivery error")
	}
}

func TestServe_FailingSinkDoesNotStarveHealthySink(t *testing.T) {
	dead := NewDeadLetterLog(8)
	d := NewDispatcher(dead)
	healthy := &stubSink{name: "healthy", enabled: true}
	broken := &stubSink{name: "broken", enabled: true, failFirst: 1 << 30}
	d.Register(healthy, 4, RetryPolicy{Attempts: 2, Delay: time.Millisecond})
	d.Register(broken, 4, RetryPolicy{Attempts: 2, Delay: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(w *sinkWorker) {
			defer wg.Done()
			_ = w.Serve(ctx)
		}(w)
	}

	d.Dispatch(testEvent("regularity"))

	deadline := time.After(2 * time.Second)
	for healthy.deliveredCount() < 1 || dead.Len() < 1 {
		select {
		case <-deadline:
			t.Fatalf("timed out: healthy delivered=%d, dead letters=%d",
				healthy.deliveredCount(), dead.Len())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	wg.Wait()

	if got := healthy.deliveredCount(); got != 1 {
		t.Errorf("healthy sink delivered = %d, want 1", got)
	}
	if dead.Snapshot()[0].Sink != "broken" {
		t.Errorf("dead letter sink = %q, want %q", dead.Snapshot()[0].Sink, "broken")
	}
}

func TestServices_OnePerRegisteredSink(t *testing.T) {
	d := NewDispatcher(nil)
	for i := 0; i < 3; i++ {
		d.Register(&stubSink{name: fmt.Sprintf("sink-%d", i), enabled: true}, 4, DefaultRetryPolicy())
	}

	services := d.Services()
	if len(services) != 3 {
		t.Fatalf("services = %d, want 3", len(services))
	}
	if got := services[1].(*sinkWorker).String(); got != "sink-sink-1" {
		t.Errorf("service name = %q, want %q", got, "sink-sink-1")
	}
}

func TestRegister_ClampsQueueAndRetry(t *testing.T) {
	d := NewDispatcher(nil)
	d.Register(&stubSink{name: "s", enabled: true}, 0, RetryPolicy{Attempts: 0})

	w := d.workers[0]
	if cap(w.queue) != DefaultQueueSize {
		t.Errorf("queue capacity = %d, want %d", cap(w.queue), DefaultQueueSize)
	}
	if w.retry.Attempts != 1 {
		t.Errorf("retry attempts = %d, want 1", w.retry.Attempts)
	}
}
