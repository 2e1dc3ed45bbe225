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
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

// WebhookPayload is the JSON body sent to a generic webhook endpoint.
type WebhookPayload struct {
	Alert     *Event    `json:"alert"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
}

// WebhookConfig configures the generic webhook sink.
type WebhookConfig struct {
	Enabled bool              `koanf:"enabled" json:"enabled"`
	URL     string            `koanf:"url" json:"url" validate:"omitempty,url"`
	Headers map[string]string `koanf:"headers" json:"headers,omitempty"`

	// RateLimitPerSecond caps outbound requests; bursts of one.
	RateLimitPerSecond float64 `koanf:"rate_limit_per_second" json:"rate_limit_per_second" validate:"gt=0"`

	// Timeout bounds one HTTP request.
	Timeout time.Duration `koanf:"timeout" json:"timeout" validate:"gt=0"`

	// BreakerFailures is the consecutive-failure count that opens the
	// circuit breaker; BreakerTimeout is how long it stays open.
	BreakerFailures uint32        `koanf:"breaker_failures" json:"breaker_failures" validate:"gt=0"`
	BreakerTimeout  time.Duration `koanf:"breaker_timeout" json:"breaker_timeout" validate:"gt=0"`
}

// DefaultWebhookConfig returns the defaults (disabled until a URL is set).
func DefaultWebhookConfig() WebhookConfig {
	return WebhookConfig{
		Enabled:            false,
		RateLimitPerSecond: 2,
		Timeout:            10 * time.Second,
		BreakerFailures:    5,
		BreakerTimeout:     30 * time.Second,
	}
}

// WebhookSink posts structured alert payloads to an external endpoint.
// The endpoint is treated as unreliable: requests run behind a circuit
// breaker so a dead endpoint fails fast instead of burning the full
// timeout per alert, and a rate limiter keeps bursts polite.
type WebhookSink struct {
	mu      sync.RWMutex
	url     string
	headers map[string]string
	enabled bool

	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[struct{}]
}

// NewWebhookSink creates a webhook sink.
func NewWebhookSink(cfg WebhookConfig) *WebhookSink {
	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[k] = v
	}

	settings := gobreaker.Settings{
		Name:    "webhook",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
	}

	return &WebhookSink{
		url:     cfg.URL,
		headers: headers,
		enabled: cfg.Enabled,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimitPerSecond), 1),
		breaker: gobreaker.NewCircuitBreaker[struct{}](settings),
	}
}

// Name returns the sink name.
func (s *WebhookSink) Name() string { return "webhook" }

// Enabled reports whether the sink is active.
func (s *WebhookSink) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled && s.url != ""
}

// SetEnabled toggles the sink.
func (s *WebhookSink) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
}

// SetURL updates the endpoint.
func (s *WebhookSink) SetURL(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.url = url
}

// Deliver posts one alert payload.
func (s *WebhookSink) Deliver(ctx context.Context, ev *Event) error {
	s.mu.RLock()
	url := s.url
	headers := make(map[string]string, len(s.headers))
	for k, v := range s.headers {
		headers[k] = v
	}
	s.mu.RUnlock()

	if url == "" {
		return nil
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(WebhookPayload{
		Alert:     ev,
		EventType: "detection_alert",
		Timestamp: time.Now(),
		Source:    "totemwatch",
	})
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	_, err = s.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, s.post(ctx, url, headers, body)
	})
	return err
}

func (s *WebhookSink) post(ctx context.Context, url string, headers map[string]string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
