// TotemWatch - Protocol-Level Totem Automation Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/totemwatch

// Package ops exposes the HTTP surface: liveness and readiness probes,
// Prometheus metrics, the staff console websocket, dead-letter inspection,
// and the intake routes the host integration pushes raw events through.
package ops

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/totemwatch/internal/alert"
	"github.com/tomtom215/totemwatch/internal/session"
)

// Server is the operational HTTP server. It implements suture.Service.
type Server struct {
	server          *http.Server
	shutdownTimeout time.Duration
}

// NewServer builds the ops server. staff may be nil when the staff console
// is disabled; its route is simply not mounted.
func NewServer(addr string, timeout time.Duration, intake Intake, store *session.Store, dead *alert.DeadLetterLog, staff *alert.StaffSink) *Server {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", handleHealth(store))
	r.Get("/readyz", handleHealth(store))
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/deadletters", handleDeadLetters(dead))
	mountIntake(r, intake)

	if staff != nil {
		r.Get("/staff/ws", staff.ServeHTTP)
	}

	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       timeout,
			WriteTimeout:      timeout,
		},
		shutdownTimeout: timeout,
	}
}

func handleHealth(store *session.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"sessions": store.Len(),
		})
	}
}

func handleDeadLetters(dead *alert.DeadLetterLog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"count":        dead.Len(),
			"dead_letters": dead.Snapshot(),
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Serve implements suture.Service. ListenAndServe blocks, so it runs in a
// goroutine while Serve waits for cancellation and then drains gracefully.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ops server failed: %w", err)
		}
		return nil

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("ops server shutdown failed: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

// String implements fmt.Stringer for supervisor logging.
func (s *Server) String() string {
	return "ops-server"
}
