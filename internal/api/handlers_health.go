// UAScope - HTTP Traffic Threat Monitoring
// Copyright 2026 UAScope Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/uascope/uascope

package api

import (
	"net/http"
	"time"

	"github.com/uascope/uascope/internal/models"
)

// Health returns overall service health: database connectivity, journal
// status and the current number of connected dashboard viewers.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	dbConnected := h.db != nil && h.db.Ping(r.Context()) == nil

	status := "healthy"
	if !dbConnected {
		status = "degraded"
	}

	viewers := 0
	if h.wsHub != nil {
		viewers = h.wsHub.GetClientCount()
	}

	health := models.HealthStatus{
		Status:            status,
		Version:           Version,
		DatabaseConnected: dbConnected,
		WALEnabled:        h.journal != nil,
		ConnectedViewers:  viewers,
		Uptime:            time.Since(h.startTime).Seconds(),
	}

	respondSuccess(w, http.StatusOK, health, 0)
}

// HealthLive is the Kubernetes-style liveness probe. It returns 200 as
// long as the process is alive, regardless of dependencies.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, http.StatusOK, map[string]interface{}{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	}, 0)
}

// HealthReady is the readiness probe. It returns 200 only when the
// event store can accept writes; 503 otherwise.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	dbConnected := h.db != nil && h.db.Ping(r.Context()) == nil

	statusCode := http.StatusOK
	status := "ready"
	if !dbConnected {
		statusCode = http.StatusServiceUnavailable
		status = "not_ready"
	}

	respondJSON(w, statusCode, &models.APIResponse{
		Status: status,
		Data: map[string]interface{}{
			"database_connected": dbConnected,
			"ready_to_serve":     dbConnected,
			"uptime":             time.Since(h.startTime).Seconds(),
		},
		Metadata: models.Metadata{
			Timestamp: time.Now(),
		},
	})
}

// JournalStats exposes write-ahead journal counters for operators.
func (h *Handler) JournalStats(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "journal is disabled", nil)
		return
	}

	respondSuccess(w, http.StatusOK, h.journal.Stats(), 0)
}
