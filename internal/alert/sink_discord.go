// TotemWatch - Protocol-Level Totem Automation Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/totemwatch

package alert

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/totemwatch/internal/ledger"
)

// DiscordConfig configures the Discord sink.
type DiscordConfig struct {
	Enabled    bool   `koanf:"enabled" json:"enabled"`
	WebhookURL string `koanf:"webhook_url" json:"webhook_url" validate:"omitempty,url"`

	// RateLimitPerSecond caps outbound webhook calls. Discord enforces
	// its own limits server-side; staying under them locally avoids 429s.
	RateLimitPerSecond float64 `koanf:"rate_limit_per_second" json:"rate_limit_per_second" validate:"gt=0"`

	Timeout time.Duration `koanf:"timeout" json:"timeout" validate:"gt=0"`
}

// DefaultDiscordConfig returns the defaults (disabled until a URL is set).
func DefaultDiscordConfig() DiscordConfig {
	return DiscordConfig{
		Enabled:            false,
		RateLimitPerSecond: 1,
		Timeout:            10 * time.Second,
	}
}

// DiscordSink sends alerts to a Discord channel via webhooks.
type DiscordSink struct {
	mu         sync.RWMutex
	webhookURL string
	enabled    bool

	client  *http.Client
	limiter *rate.Limiter
}

// NewDiscordSink creates a Discord sink.
func NewDiscordSink(cfg DiscordConfig) *DiscordSink {
	return &DiscordSink{
		webhookURL: cfg.WebhookURL,
		enabled:    cfg.Enabled,
		client:     &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimitPerSecond), 1),
	}
}

// Name returns the sink name.
func (s *DiscordSink) Name() string { return "discord" }

// Enabled reports whether the sink is active.
func (s *DiscordSink) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled && s.webhookURL != ""
}

// SetEnabled toggles the sink.
func (s *DiscordSink) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
}

// SetWebhookURL updates the webhook URL.
func (s *DiscordSink) SetWebhookURL(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.webhookURL = url
}

// Deliver sends one alert as a Discord embed.
func (s *DiscordSink) Deliver(ctx context.Context, ev *Event) error {
	s.mu.RLock()
	webhookURL := s.webhookURL
	s.mu.RUnlock()

	if webhookURL == "" {
		return nil
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	payload := discordWebhookPayload{
		Embeds: []discordEmbed{buildEmbed(ev)},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal Discord payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create Discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send Discord webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("discord webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// buildEmbed creates a Discord embed from an alert.
func buildEmbed(ev *Event) discordEmbed {
	fields := []discordEmbedField{
		{Name: "Player", Value: ev.PlayerID.String(), Inline: true},
		{Name: "Check", Value: ev.Check, Inline: true},
		{Name: "Level", Value: ev.Level.String(), Inline: true},
		{Name: "Score", Value: fmt.Sprintf("%.1f", ev.Score), Inline: true},
		{Name: "Severity", Value: fmt.Sprintf("%.2f", ev.Severity), Inline: true},
	}

	return discordEmbed{
		Title:       fmt.Sprintf("Totem automation: %s", ev.Check),
		Description: ev.Reason,
		Color:       levelColor(ev.Level),
		Timestamp:   ev.Timestamp.Format(time.RFC3339),
		Fields:      fields,
		Footer: discordEmbedFooter{
			Text: "TotemWatch Detection Engine",
		},
	}
}

// levelColor returns the Discord embed color for an escalation level.
func levelColor(level ledger.Level) int {
	switch level {
	case ledger.LevelPunish:
		return 0xFF0000 // Red
	case ledger.LevelFlag:
		return 0xFFA500 // Orange
	case ledger.LevelWarn:
		return 0x3498DB // Blue
	default:
		return 0x95A5A6 // Gray
	}
}

// Discord webhook structures
type discordWebhookPayload struct {
	Content string         `json:"content,omitempty"`
	Embeds  []discordEmbed `json:"embeds,omitempty"`
}

type discordEmbed struct {
	Title       string              `json:"title,omitempty"`
	Description string              `json:"description,omitempty"`
	Color       int                 `json:"color,omitempty"`
	Timestamp   string              `json:"timestamp,omitempty"`
	Fields      []discordEmbedField `json:"fields,omitempty"`
	Footer      discordEmbedFooter  `json:"footer,omitempty"`
}

type discordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type discordEmbedFooter struct {
	Text string `json:"text,omitempty"`
}
