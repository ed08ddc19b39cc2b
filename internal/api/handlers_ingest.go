// UAScope - HTTP Traffic Threat Monitoring
// Copyright 2026 UAScope Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/uascope/uascope

package api

import (
	"errors"
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/uascope/uascope/internal/models"
	"github.com/uascope/uascope/internal/pipeline"
)

// maxIngestBodyBytes bounds the request body; ingest payloads are small.
const maxIngestBodyBytes = 64 * 1024

// Ingest accepts one traffic observation, runs it through the scoring
// pipeline and returns the verdict with the assigned event ID.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req models.IngestRequest

	r.Body = http.MaxBytesReader(w, r.Body, maxIngestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "malformed request body", err)
		return
	}

	result, err := h.pipeline.Ingest(r.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrValidation):
			respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		case errors.Is(err, pipeline.ErrStorage):
			respondError(w, http.StatusServiceUnavailable, "STORAGE_ERROR", "event store unavailable", err)
		default:
			respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "ingestion failed", err)
		}
		return
	}

	respondSuccess(w, http.StatusCreated, result, 0)
}
