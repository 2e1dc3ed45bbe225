// TotemWatch - Protocol-Level Totem Automation Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/totemwatch

package alert

import (
	"context"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/totemwatch/internal/logging"
	"github.com/tomtom215/totemwatch/internal/metrics"
)

// DefaultQueueSize bounds each sink's pending-alert queue.
const DefaultQueueSize = 128

// sinkWorker couples one sink with its bounded queue, retry policy, and
// delivery goroutine. It implements suture.Service.
type sinkWorker struct {
	sink  Sink
	queue chan *Event
	retry RetryPolicy
	dead  *DeadLetterLog
}

// Dispatcher fans alert events out to the registered sinks. Dispatch never
// blocks: when a sink's queue is full the oldest pending alert for that
// sink is shed. Per (player, check) ordering follows dispatch order
// because each sink drains a single FIFO queue.
type Dispatcher struct {
	workers []*sinkWorker
	dead    *DeadLetterLog
}

// NewDispatcher creates a dispatcher with an empty sink set and a shared
// dead-letter log.
func NewDispatcher(dead *DeadLetterLog) *Dispatcher {
	if dead == nil {
		dead = NewDeadLetterLog(0)
	}
	return &Dispatcher{dead: dead}
}

// Register adds a sink with its queue size and retry policy. Must be
// called before the workers are started; the sink set is immutable while
// serving.
func (d *Dispatcher) Register(sink Sink, queueSize int, retry RetryPolicy) {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if retry.Attempts < 1 {
		retry.Attempts = 1
	}
	d.workers = append(d.workers, &sinkWorker{
		sink:  sink,
		queue: make(chan *Event, queueSize),
		retry: retry,
		dead:  d.dead,
	})
	logging.Info().Str("sink", sink.Name()).Int("queue", queueSize).Msg("registered alert sink")
}

// Services returns one suture service per registered sink, for adding to
// the delivery supervisor.
func (d *Dispatcher) Services() []suture.Service {
	services := make([]suture.Service, len(d.workers))
	for i, w := range d.workers {
		services[i] = w
	}
	return services
}

// DeadLetters returns the shared dead-letter log.
func (d *Dispatcher) DeadLetters() *DeadLetterLog {
	return d.dead
}

// Dispatch enqueues the event for every enabled sink. Called from the
// detection path; never blocks.
func (d *Dispatcher) Dispatch(ev *Event) {
	for _, w := range d.workers {
		if !w.sink.Enabled() {
			continue
		}
		w.enqueue(ev)
	}
}

// enqueue adds the event to the worker queue, shedding the oldest pending
// alert when full.
func (w *sinkWorker) enqueue(ev *Event) {
	for {
		select {
		case w.queue <- ev:
			return
		default:
		}

		select {
		case old := <-w.queue:
			metrics.SinkDrops.WithLabelValues(w.sink.Name()).Inc()
			logging.Warn().
				Str("sink", w.sink.Name()).
				Str("player", old.PlayerID.String()).
				Str("check", old.Check).
				Msg("sink queue full, shedding oldest alert")
		default:
		}
	}
}

// Serve drains the queue until the context is canceled, delivering each
// alert with the retry policy. Implements suture.Service.
func (w *sinkWorker) Serve(ctx context.Context) error {
	logging.Info().Str("sink", w.sink.Name()).Msg("sink delivery worker started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-w.queue:
			w.deliver(ctx, ev)
		}
	}
}

func (w *sinkWorker) deliver(ctx context.Context, ev *Event) {
	name := w.sink.Name()

	var lastErr error
	for attempt := 1; attempt <= w.retry.Attempts; attempt++ {
		lastErr = w.sink.Deliver(ctx, ev)
		if lastErr == nil {
			metrics.SinkDeliveries.WithLabelValues(name, "delivered").Inc()
			return
		}
		if ctx.Err() != nil {
			break
		}

		metrics.SinkDeliveries.WithLabelValues(name, "retried").Inc()
		logging.Warn().
			Err(lastErr).
			Str("sink", name).
			Int("attempt", attempt).
			Msg("alert delivery failed")

		if attempt < w.retry.Attempts {
			select {
			case <-ctx.Done():
				w.dead.Record(ev, name, attempt, lastErr)
				return
			case <-time.After(w.retry.Delay):
			}
		}
	}

	metrics.SinkDeliveries.WithLabelValues(name, "failed").Inc()
	w.dead.Record(ev, name, w.retry.Attempts, lastErr)
}

// String names the worker for suture supervision logs.
func (w *sinkWorker) String() string {
	return "sink-" + w.sink.Name()
}
