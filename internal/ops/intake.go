// TotemWatch - Protocol-Level Totem Automation Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/totemwatch

package ops

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/totemwatch/internal/logging"
	"github.com/tomtom215/totemwatch/internal/protocol"
)

// Intake is the event entry point the HTTP intake routes feed.
//
// Satisfied by *pipeline.Pipeline.
type Intake interface {
	Ingest(raw protocol.RawEvent) error
	OnJoin(id uuid.UUID)
	OnQuit(id uuid.UUID)
}

// maxIntakeBody bounds one intake request body.
const maxIntakeBody = 1 << 20

func mountIntake(r chi.Router, intake Intake) {
	r.Route("/intake", func(r chi.Router) {
		r.Post("/events", handleIntakeEvents(intake))
		r.Post("/join/{playerID}", handleIntakeJoin(intake))
		r.Post("/quit/{playerID}", handleIntakeQuit(intake))
	})
}

// handleIntakeEvents accepts a JSON array of raw protocol notifications.
// The host integration batches per connection, which preserves per-player
// ordering across the request boundary.
func handleIntakeEvents(intake Intake) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var raws []protocol.RawEvent
		decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxIntakeBody))
		if err := decoder.Decode(&raws); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "malformed event batch"})
			return
		}

		for i, raw := range raws {
			if err := intake.Ingest(raw); err != nil {
				// Earlier events in the batch are already on the bus; tell
				// the host how far it got so it can resume from there.
				logging.Error().Err(err).Int("accepted", i).Msg("event intake failed")
				writeJSON(w, http.StatusInternalServerError, map[string]any{
					"error":    "ingest failed",
					"accepted": i,
				})
				return
			}
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"accepted": len(raws)})
	}
}

func handleIntakeJoin(intake Intake) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "playerID"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid player id"})
			return
		}
		intake.OnJoin(id)
		writeJSON(w, http.StatusOK, map[string]any{"status": "joined"})
	}
}

func handleIntakeQuit(intake Intake) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "playerID"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid player id"})
			return
		}
		intake.OnQuit(id)
		writeJSON(w, http.StatusOK, map[string]any{"status": "quit"})
	}
}
