// TotemWatch - Protocol-Level Totem Automation Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/totemwatch

// Package main is the entry point for the TotemWatch detection server.
//
// TotemWatch watches wire-level protocol notifications from a Minecraft
// server and flags players whose totem re-equip behavior is too fast, too
// regular, or too consistent to be human. It never inspects client
// internals; everything it knows arrives as packets the server already
// sees.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: layered settings via Koanf v2 (defaults, YAML, env)
//  2. Session store: sharded per-player state registry
//  3. Check engine: timing, inventory, regularity, and consistency checks
//  4. Alert dispatcher: one supervised worker per enabled sink
//  5. Pipeline: in-process bus plus hashed worker pool
//  6. Sweeper: periodic score decay and idle-session eviction
//  7. Ops server: health, metrics, dead letters, staff websocket
//
// All long-running components run under a suture supervision tree with
// three failure domains (detection, delivery, ops), so a crashing alert
// sink restarts without touching event processing.
//
// # Configuration
//
// Configuration layers with highest priority last:
//   - Built-in defaults
//   - Config file (config.yaml, or TOTEMWATCH_CONFIG)
//   - TOTEMWATCH_* environment variables
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger graceful shutdown: the pipeline drains, sink
// queues flush within the supervisor timeout, and the ops server stops
// accepting connections. SIGHUP reloads the configuration: a complete new
// snapshot is loaded and validated, then applied atomically to the checks,
// the ledger policy, the sweeper, and the sink gates; an invalid reload is
// logged and the previous snapshot stays in effect.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/totemwatch/internal/alert"
	"github.com/tomtom215/totemwatch/internal/check"
	"github.com/tomtom215/totemwatch/internal/config"
	"github.com/tomtom215/totemwatch/internal/logging"
	"github.com/tomtom215/totemwatch/internal/ops"
	"github.com/tomtom215/totemwatch/internal/pipeline"
	"github.com/tomtom215/totemwatch/internal/protocol"
	"github.com/tomtom215/totemwatch/internal/session"
	"github.com/tomtom215/totemwatch/internal/supervisor"
	"github.com/tomtom215/totemwatch/internal/sweep"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Int("ops_port", cfg.Ops.Port).
		Int("pipeline_workers", cfg.Pipeline.Workers).
		Msg("Starting TotemWatch")

	clock := protocol.NewSystemClock()
	store := session.NewStore(clock, cfg.Session.HistorySize)
	norm := protocol.NewNormalizer(clock)

	timing := check.NewTimingCheck(cfg.Detection.Timing)
	inventory := check.NewInventoryCheck(cfg.Detection.Inventory)
	regularity := check.NewRegularityCheck(cfg.Detection.Regularity)
	consistency := check.NewConsistencyCheck(cfg.Detection.Consistency)
	engine := check.NewEngine(timing, inventory, regularity, consistency)

	// Alert fan-out. Every sink registers up front so a reload can enable
	// one later; Dispatch skips sinks whose Enabled gate is off.
	dead := alert.NewDeadLetterLog(cfg.Alerts.DeadLetterCap)
	dispatcher := alert.NewDispatcher(dead)
	retry := cfg.Alerts.RetryPolicy()

	staff := alert.NewStaffSink(cfg.Alerts.Staff)
	discord := alert.NewDiscordSink(cfg.Alerts.Discord)
	webhook := alert.NewWebhookSink(cfg.Alerts.Webhook)
	punishment := alert.NewPunishmentSink(alert.LogExecutor{}, cfg.Alerts.Punishment)
	dispatcher.Register(staff, cfg.Alerts.QueueSize, retry)
	dispatcher.Register(discord, cfg.Alerts.QueueSize, retry)
	dispatcher.Register(webhook, cfg.Alerts.QueueSize, retry)
	dispatcher.Register(punishment, cfg.Alerts.QueueSize, retry)

	policy := cfg.Ledger.Policy()
	pipe := pipeline.New(cfg.Pipeline, store, norm, engine, dispatcher, clock, policy)
	defer func() {
		if err := pipe.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing pipeline bus")
		}
	}()

	sweeper := sweep.NewSweeper(store, clock, cfg.Sweep, policy)

	opsAddr := fmt.Sprintf("%s:%d", cfg.Ops.Host, cfg.Ops.Port)
	opsServer := ops.NewServer(opsAddr, cfg.Ops.Timeout, pipe, store, dead, staff)

	// Runtime reconfiguration. A SIGHUP rebuilds the full snapshot through
	// the layered loader; only a snapshot that validates end to end is
	// applied, through the same Configure surfaces used at startup.
	manager := config.NewManager(cfg, nil)
	manager.OnApply(func(next *config.Config) {
		timing.Configure(next.Detection.Timing)
		inventory.Configure(next.Detection.Inventory)
		regularity.Configure(next.Detection.Regularity)
		consistency.Configure(next.Detection.Consistency)

		policy := next.Ledger.Policy()
		pipe.Configure(policy, next.Pipeline.ReorderSlack)
		sweeper.Configure(next.Sweep, policy)

		staff.SetEnabled(next.Alerts.Staff.Enabled)
		discord.SetEnabled(next.Alerts.Discord.Enabled)
		discord.SetWebhookURL(next.Alerts.Discord.WebhookURL)
		webhook.SetEnabled(next.Alerts.Webhook.Enabled)
		webhook.SetURL(next.Alerts.Webhook.URL)
		punishment.SetEnabled(next.Alerts.Punishment.Enabled)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddDetectionService(pipe)
	tree.AddDetectionService(sweeper)
	for _, svc := range dispatcher.Services() {
		tree.AddDeliveryService(svc)
	}
	tree.AddOpsService(opsServer)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		for sig := range sigCh {
			if sig == syscall.SIGHUP {
				logging.Info().Msg("Received SIGHUP, reloading configuration")
				if err := manager.Reload(); err != nil {
					logging.Error().Err(err).Msg("Configuration reload failed, keeping previous configuration")
				}
				continue
			}
			logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
			cancel()
			return
		}
	}()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("TotemWatch stopped gracefully")
}
