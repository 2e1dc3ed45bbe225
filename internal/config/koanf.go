// TotemWatch - Protocol-Level Totem Automation Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/totemwatch

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, first hit wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/totemwatch/config.yaml",
	"/etc/totemwatch/config.yml",
}

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "TOTEMWATCH_CONFIG"

// envPrefix namespaces the override environment variables.
const envPrefix = "TOTEMWATCH_"

// Load builds the configuration with layered precedence:
//
//  1. Struct defaults
//  2. Optional YAML config file
//  3. TOTEMWATCH_* environment variables (highest)
//
// The returned Config is fully validated; an error from any layer leaves
// no partial state behind.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first existing config file path, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps TOTEMWATCH_* environment variables to config paths.
//
// Examples:
//
//	TOTEMWATCH_LOGGING_LEVEL            -> logging.level
//	TOTEMWATCH_OPS_PORT                 -> ops.port
//	TOTEMWATCH_LEDGER_WARN_THRESHOLD    -> ledger.warn_threshold
//	TOTEMWATCH_ALERTS_DISCORD_ENABLED   -> alerts.discord.enabled
//
// Key names below the section level contain underscores themselves, so the
// translation uses an explicit table rather than a blind split.
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))

	if path, ok := envMappings[key]; ok {
		return path
	}
	return ""
}

var envMappings = map[string]string{
	"logging_level":  "logging.level",
	"logging_format": "logging.format",
	"logging_caller": "logging.caller",

	"ops_host":    "ops.host",
	"ops_port":    "ops.port",
	"ops_timeout": "ops.timeout",

	"pipeline_workers":       "pipeline.workers",
	"pipeline_queue_size":    "pipeline.queue_size",
	"pipeline_bus_buffer":    "pipeline.bus_buffer",
	"pipeline_reorder_slack": "pipeline.reorder_slack",

	"session_history_size": "session.history_size",

	"detection_timing_enabled":          "detection.timing.enabled",
	"detection_timing_reaction_floor":   "detection.timing.reaction_floor",
	"detection_timing_latency_fraction": "detection.timing.latency_fraction",
	"detection_timing_weight":           "detection.timing.weight",

	"detection_inventory_enabled":          "detection.inventory.enabled",
	"detection_inventory_client_tick_rate": "detection.inventory.client_tick_rate",
	"detection_inventory_min_actions":      "detection.inventory.min_actions",
	"detection_inventory_weight":           "detection.inventory.weight",

	"detection_regularity_enabled":       "detection.regularity.enabled",
	"detection_regularity_min_samples":   "detection.regularity.min_samples",
	"detection_regularity_cov_threshold": "detection.regularity.cov_threshold",
	"detection_regularity_weight":        "detection.regularity.weight",

	"detection_consistency_enabled":              "detection.consistency.enabled",
	"detection_consistency_min_pairs":            "detection.consistency.min_pairs",
	"detection_consistency_history_size":         "detection.consistency.history_size",
	"detection_consistency_stddev_threshold":     "detection.consistency.stddev_threshold",
	"detection_consistency_confidence_threshold": "detection.consistency.confidence_threshold",
	"detection_consistency_smoothing_alpha":      "detection.consistency.smoothing_alpha",
	"detection_consistency_weight":               "detection.consistency.weight",

	"ledger_warn_threshold":   "ledger.warn_threshold",
	"ledger_flag_threshold":   "ledger.flag_threshold",
	"ledger_punish_threshold": "ledger.punish_threshold",
	"ledger_cooldown":         "ledger.cooldown",
	"ledger_decay_factor":     "ledger.decay_factor",
	"ledger_retention":        "ledger.retention",

	"sweep_interval":     "sweep.interval",
	"sweep_idle_timeout": "sweep.idle_timeout",

	"alerts_queue_size":      "alerts.queue_size",
	"alerts_retry_attempts":  "alerts.retry_attempts",
	"alerts_retry_delay":     "alerts.retry_delay",
	"alerts_dead_letter_cap": "alerts.dead_letter_cap",

	"alerts_discord_enabled":               "alerts.discord.enabled",
	"alerts_discord_webhook_url":           "alerts.discord.webhook_url",
	"alerts_discord_rate_limit_per_second": "alerts.discord.rate_limit_per_second",
	"alerts_discord_timeout":               "alerts.discord.timeout",

	"alerts_webhook_enabled":               "alerts.webhook.enabled",
	"alerts_webhook_url":                   "alerts.webhook.url",
	"alerts_webhook_rate_limit_per_second": "alerts.webhook.rate_limit_per_second",
	"alerts_webhook_timeout":               "alerts.webhook.timeout",
	"alerts_webhook_breaker_failures":      "alerts.webhook.breaker_failures",
	"alerts_webhook_breaker_timeout":       "alerts.webhook.breaker_timeout",

	"alerts_staff_enabled":    "alerts.staff.enabled",
	"alerts_staff_queue_size": "alerts.staff.queue_size",

	"alerts_punishment_enabled":   "alerts.punishment.enabled",
	"alerts_punishment_min_level": "alerts.punishment.min_level",
}
