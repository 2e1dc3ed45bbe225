// TotemWatch - Protocol-Level Totem Automation Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/totemwatch

// Package pipeline wires ingestion to detection. Raw protocol notifications
// enter through an in-process message bus, are normalized into canonical
// events, and are routed to a fixed pool of workers hashed on player
// identity. Hashing gives each player a single worker, which is what makes
// evaluation per player strictly sequential while different players proceed
// in parallel.
package pipeline

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/totemwatch/internal/alert"
	"github.com/tomtom215/totemwatch/internal/check"
	"github.com/tomtom215/totemwatch/internal/ledger"
	"github.com/tomtom215/totemwatch/internal/logging"
	"github.com/tomtom215/totemwatch/internal/metrics"
	"github.com/tomtom215/totemwatch/internal/protocol"
	"github.com/tomtom215/totemwatch/internal/session"
)

// TopicRawEvents is the bus topic carrying raw protocol notifications.
const TopicRawEvents = "totemwatch.events.raw"

// Config tunes the ingestion pipeline.
type Config struct {
	// Workers is the size of the hashed worker pool. Each player maps to
	// exactly one worker.
	Workers int `koanf:"workers" json:"workers" validate:"gt=0"`

	// QueueSize bounds each worker's event queue.
	QueueSize int `koanf:"queue_size" json:"queue_size" validate:"gt=0"`

	// BusBuffer bounds the in-process bus output channel.
	BusBuffer int64 `koanf:"bus_buffer" json:"bus_buffer" validate:"gte=0"`

	// ReorderSlack is how far behind the per-player watermark an event
	// timestamp may fall and still be admitted.
	ReorderSlack time.Duration `koanf:"reorder_slack" json:"reorder_slack" validate:"gte=0"`
}

// DefaultConfig returns the pipeline defaults.
func DefaultConfig() Config {
	return Config{
		Workers:      8,
		QueueSize:    256,
		BusBuffer:    1024,
		ReorderSlack: 50 * time.Millisecond,
	}
}

// Pipeline owns the full event path from raw notification to alert
// dispatch. It implements suture.Service; Serve runs the bus consumer and
// the worker pool until the context is canceled.
type Pipeline struct {
	cfg        Config
	store      *session.Store
	norm       *protocol.Normalizer
	engine     *check.Engine
	dispatcher *alert.Dispatcher
	clock      protocol.Clock

	mu     sync.RWMutex
	policy ledger.Policy
	slack  int64

	bus    *gochannel.GoChannel
	queues []chan protocol.PlayerEvent
}

// New creates a pipeline. The engine's check registry and the worker count
// are fixed for the pipeline's lifetime; the ledger policy and reorder
// slack may be swapped at runtime via Configure.
func New(cfg Config, store *session.Store, norm *protocol.Normalizer, engine *check.Engine, dispatcher *alert.Dispatcher, clock protocol.Clock, policy ledger.Policy) *Pipeline {
	p := &Pipeline{
		cfg:        cfg,
		store:      store,
		norm:       norm,
		engine:     engine,
		dispatcher: dispatcher,
		clock:      clock,
		policy:     policy,
		slack:      int64(cfg.ReorderSlack),
		bus: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: cfg.BusBuffer,
		}, newWatermillLogger()),
		queues: make([]chan protocol.PlayerEvent, cfg.Workers),
	}
	for i := range p.queues {
		p.queues[i] = make(chan protocol.PlayerEvent, cfg.QueueSize)
	}
	return p
}

// Configure swaps in a new ledger policy and reorder slack. Events already
// queued are evaluated under the new snapshot; an event mid-processing
// finishes with the one it started with.
func (p *Pipeline) Configure(policy ledger.Policy, slack time.Duration) {
	p.mu.Lock()
	p.policy = policy
	p.slack = int64(slack)
	p.mu.Unlock()
}

func (p *Pipeline) snapshot() (ledger.Policy, int64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.policy, p.slack
}

// OnJoin registers a player session.
func (p *Pipeline) OnJoin(id uuid.UUID) {
	p.store.OnJoin(id)
	metrics.LiveSessions.Set(float64(p.store.Len()))
}

// OnQuit releases a player session.
func (p *Pipeline) OnQuit(id uuid.UUID) {
	p.store.OnQuit(id)
	metrics.LiveSessions.Set(float64(p.store.Len()))
}

// Ingest publishes one raw protocol notification onto the bus. It is safe
// to call from any goroutine; per-player ordering is preserved as long as
// each player's notifications are ingested from one goroutine, which is
// the host integration's contract.
func (p *Pipeline) Ingest(raw protocol.RawEvent) error {
	body, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("marshal raw event: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), body)
	if err := p.bus.Publish(TopicRawEvents, msg); err != nil {
		return fmt.Errorf("publish raw event: %w", err)
	}
	return nil
}

// Serve implements suture.Service. It consumes the raw-event topic,
// normalizes notifications, and fans events out to the hashed worker pool.
func (p *Pipeline) Serve(ctx context.Context) error {
	msgs, err := p.bus.Subscribe(ctx, TopicRawEvents)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", TopicRawEvents, err)
	}

	var wg sync.WaitGroup
	for i := range p.queues {
		wg.Add(1)
		go func(queue <-chan protocol.PlayerEvent) {
			defer wg.Done()
			p.worker(ctx, queue)
		}(p.queues[i])
	}

	logging.Info().
		Int("workers", p.cfg.Workers).
		Int("queue_size", p.cfg.QueueSize).
		Msg("detection pipeline started")

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				wg.Wait()
				return nil
			}
			p.consume(ctx, msg)
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (p *Pipeline) String() string {
	return "detection-pipeline"
}

func (p *Pipeline) consume(ctx context.Context, msg *message.Message) {
	// Always ack: the bus carries fire-and-forget telemetry, and redelivery
	// of a stale notification is worse than losing it.
	defer msg.Ack()

	var raw protocol.RawEvent
	if err := json.Unmarshal(msg.Payload, &raw); err != nil {
		metrics.EventsIngested.WithLabelValues("malformed").Inc()
		logging.Warn().Err(err).Str("message", msg.UUID).Msg("malformed raw event")
		return
	}

	ev, ok := p.norm.Normalize(raw)
	if !ok {
		metrics.EventsIngested.WithLabelValues("ignored").Inc()
		return
	}
	metrics.EventsIngested.WithLabelValues("normalized").Inc()

	select {
	case p.queueFor(ev.PlayerID) <- ev:
	case <-ctx.Done():
	}
}

func (p *Pipeline) queueFor(id uuid.UUID) chan protocol.PlayerEvent {
	h := fnv.New32a()
	h.Write(id[:])
	return p.queues[h.Sum32()%uint32(len(p.queues))]
}

func (p *Pipeline) worker(ctx context.Context, queue <-chan protocol.PlayerEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-queue:
			p.process(ev)
		}
	}
}

// process runs one event through admission, observation, evaluation, and
// the violation ledger. Alerts are collected under the entry lock and
// dispatched after it is released.
func (p *Pipeline) process(ev protocol.PlayerEvent) {
	policy, slack := p.snapshot()

	var alerts []*alert.Event
	ok := p.store.Process(ev.PlayerID, func(st *session.PlayerState) {
		if !st.Admit(ev.ServerTimestamp, slack) {
			metrics.EventsIngested.WithLabelValues("reordered").Inc()
			return
		}

		st.Observe(ev)
		metrics.EventsProcessed.WithLabelValues(ev.Kind.String()).Inc()

		for _, res := range p.engine.Evaluate(st, ev) {
			metrics.Verdicts.WithLabelValues(res.Check).Inc()

			rec := st.Violation(res.Check)
			out := policy.Record(rec, res.Verdict.Severity, ev.ServerTimestamp)

			logging.Debug().
				Str("player", ev.PlayerID.String()).
				Str("check", res.Check).
				Float64("severity", res.Verdict.Severity).
				Float64("score", out.Score).
				Str("reason", res.Verdict.Reason).
				Msg("verdict recorded")

			if !out.Crossed {
				continue
			}
			metrics.Escalations.WithLabelValues(res.Check, out.Level.String()).Inc()
			alerts = append(alerts, &alert.Event{
				ID:        uuid.New(),
				PlayerID:  ev.PlayerID,
				Check:     res.Check,
				Severity:  res.Verdict.Severity,
				Score:     out.Score,
				Level:     out.Level,
				Reason:    res.Verdict.Reason,
				Timestamp: time.Now(),
			})
		}
	})

	if !ok {
		metrics.EventsIngested.WithLabelValues("no_session").Inc()
		return
	}

	for _, a := range alerts {
		logging.Info().
			Str("player", a.PlayerID.String()).
			Str("check", a.Check).
			Str("level", a.Level.String()).
			Float64("score", a.Score).
			Msg("escalation fired")
		p.dispatcher.Dispatch(a)
	}
}

// Close shuts the bus down. Call after the supervisor has stopped Serve.
func (p *Pipeline) Close() error {
	return p.bus.Close()
}
