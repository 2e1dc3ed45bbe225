// TotemWatch - Protocol-Level Totem Automation Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/totemwatch

// Package config loads and validates the process configuration. Settings
// layer in strict precedence: struct defaults, then an optional YAML file,
// then environment variables. A reload produces a complete validated
// snapshot or no change at all; consumers never observe a half-applied
// configuration.
package config

import (
	"fmt"
	"time"

	"github.com/tomtom215/totemwatch/internal/alert"
	"github.com/tomtom215/totemwatch/internal/check"
	"github.com/tomtom215/totemwatch/internal/ledger"
	"github.com/tomtom215/totemwatch/internal/pipeline"
	"github.com/tomtom215/totemwatch/internal/sweep"
)

// Config is the complete process configuration.
type Config struct {
	Logging   LoggingConfig   `koanf:"logging" json:"logging"`
	Ops       OpsConfig       `koanf:"ops" json:"ops"`
	Pipeline  pipeline.Config `koanf:"pipeline" json:"pipeline"`
	Session   SessionConfig   `koanf:"session" json:"session"`
	Detection DetectionConfig `koanf:"detection" json:"detection"`
	Ledger    LedgerConfig    `koanf:"ledger" json:"ledger"`
	Sweep     sweep.Config    `koanf:"sweep" json:"sweep"`
	Alerts    AlertsConfig    `koanf:"alerts" json:"alerts"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	Level string `koanf:"level" json:"level" validate:"oneof=trace debug info warn error"`

	// Format is the output format: json or console.
	Format string `koanf:"format" json:"format" validate:"oneof=json console"`

	// Caller includes caller file and line in log lines.
	Caller bool `koanf:"caller" json:"caller"`
}

// OpsConfig configures the operational HTTP server (health, metrics, staff
// console websocket).
type OpsConfig struct {
	Host    string        `koanf:"host" json:"host"`
	Port    int           `koanf:"port" json:"port" validate:"gt=0,lte=65535"`
	Timeout time.Duration `koanf:"timeout" json:"timeout" validate:"gt=0"`
}

// SessionConfig configures the per-player session store.
type SessionConfig struct {
	// HistorySize bounds each per-kind event ring buffer.
	HistorySize int `koanf:"history_size" json:"history_size" validate:"gt=0"`
}

// DetectionConfig holds the per-check configurations.
type DetectionConfig struct {
	Timing      check.TimingConfig      `koanf:"timing" json:"timing"`
	Inventory   check.InventoryConfig   `koanf:"inventory" json:"inventory"`
	Regularity  check.RegularityConfig  `koanf:"regularity" json:"regularity"`
	Consistency check.ConsistencyConfig `koanf:"consistency" json:"consistency"`
}

// LedgerConfig holds the escalation ladder and decay parameters.
type LedgerConfig struct {
	WarnThreshold   float64       `koanf:"warn_threshold" json:"warn_threshold" validate:"gt=0"`
	FlagThreshold   float64       `koanf:"flag_threshold" json:"flag_threshold" validate:"gt=0"`
	PunishThreshold float64       `koanf:"punish_threshold" json:"punish_threshold" validate:"gt=0"`
	Cooldown        time.Duration `koanf:"cooldown" json:"cooldown" validate:"gte=0"`
	DecayFactor     float64       `koanf:"decay_factor" json:"decay_factor" validate:"gte=0,lt=1"`
	Retention       time.Duration `koanf:"retention" json:"retention" validate:"gt=0"`
}

// Policy converts the configured ladder into an immutable policy snapshot.
func (c LedgerConfig) Policy() ledger.Policy {
	return ledger.Policy{
		WarnThreshold:   c.WarnThreshold,
		FlagThreshold:   c.FlagThreshold,
		PunishThreshold: c.PunishThreshold,
		Cooldown:        c.Cooldown,
		DecayFactor:     c.DecayFactor,
		Retention:       c.Retention,
	}
}

// AlertsConfig configures alert fan-out.
type AlertsConfig struct {
	// QueueSize bounds each sink's pending-alert queue.
	QueueSize int `koanf:"queue_size" json:"queue_size" validate:"gt=0"`

	// RetryAttempts is the total delivery attempts per alert per sink.
	RetryAttempts int `koanf:"retry_attempts" json:"retry_attempts" validate:"gte=1"`

	// RetryDelay is the pause between delivery attempts.
	RetryDelay time.Duration `koanf:"retry_delay" json:"retry_delay" validate:"gte=0"`

	// DeadLetterCap bounds the in-memory dead-letter log.
	DeadLetterCap int `koanf:"dead_letter_cap" json:"dead_letter_cap" validate:"gt=0"`

	Discord    alert.DiscordConfig    `koanf:"discord" json:"discord"`
	Webhook    alert.WebhookConfig    `koanf:"webhook" json:"webhook"`
	Staff      alert.StaffConfig      `koanf:"staff" json:"staff"`
	Punishment alert.PunishmentConfig `koanf:"punishment" json:"punishment"`
}

// RetryPolicy converts the configured retry settings for the dispatcher.
func (c AlertsConfig) RetryPolicy() alert.RetryPolicy {
	return alert.RetryPolicy{Attempts: c.RetryAttempts, Delay: c.RetryDelay}
}

// defaultConfig returns a Config with all defaults applied. File and
// environment layers override these.
func defaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Ops: OpsConfig{
			Host:    "0.0.0.0",
			Port:    9640,
			Timeout: 30 * time.Second,
		},
		Pipeline: pipeline.DefaultConfig(),
		Session: SessionConfig{
			HistorySize: 32,
		},
		Detection: DetectionConfig{
			Timing:      check.DefaultTimingConfig(),
			Inventory:   check.DefaultInventoryConfig(),
			Regularity:  check.DefaultRegularityConfig(),
			Consistency: check.DefaultConsistencyConfig(),
		},
		Ledger: LedgerConfig{
			WarnThreshold:   10,
			FlagThreshold:   25,
			PunishThreshold: 50,
			Cooldown:        30 * time.Second,
			DecayFactor:     0.5,
			Retention:       10 * time.Minute,
		},
		Sweep:  sweep.DefaultConfig(),
		Alerts: defaultAlertsConfig(),
	}
}

func defaultAlertsConfig() AlertsConfig {
	retry := alert.DefaultRetryPolicy()
	return AlertsConfig{
		QueueSize:     alert.DefaultQueueSize,
		RetryAttempts: retry.Attempts,
		RetryDelay:    retry.Delay,
		DeadLetterCap: 256,
		Discord:       alert.DefaultDiscordConfig(),
		Webhook:       alert.DefaultWebhookConfig(),
		Staff:         alert.DefaultStaffConfig(),
		Punishment:    alert.DefaultPunishmentConfig(),
	}
}

// Validate checks cross-field constraints the struct tags cannot express.
func (c *Config) Validate() error {
	if err := validateStruct(c); err != nil {
		return err
	}

	if !(c.Ledger.WarnThreshold < c.Ledger.FlagThreshold && c.Ledger.FlagThreshold < c.Ledger.PunishThreshold) {
		return fmt.Errorf("ledger thresholds must be strictly ordered: warn %.1f < flag %.1f < punish %.1f",
			c.Ledger.WarnThreshold, c.Ledger.FlagThreshold, c.Ledger.PunishThreshold)
	}

	if c.Alerts.Webhook.Enabled && c.Alerts.Webhook.URL == "" {
		return fmt.Errorf("alerts.webhook.url is required when the webhook sink is enabled")
	}
	if c.Alerts.Discord.Enabled && c.Alerts.Discord.WebhookURL == "" {
		return fmt.Errorf("alerts.discord.webhook_url is required when the discord sink is enabled")
	}

	if c.Sweep.Interval < time.Second {
		return fmt.Errorf("sweep.interval %s is below the 1s minimum", c.Sweep.Interval)
	}

	return nil
}
