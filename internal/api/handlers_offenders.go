// UAScope - HTTP Traffic Threat Monitoring
// Copyright 2026 UAScope Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/uascope/uascope

package api

import (
	"net/http"
	"time"

	"github.com/uascope/uascope/internal/database"
)

// offendersRequest carries the validated query parameters.
type offendersRequest struct {
	Limit int `validate:"min=0,max=1000"`
}

// TopOffenders returns the user-agents with the highest risk ever seen,
// occurrence count breaking ties. Limit defaults to 10, capped at 100.
func (h *Handler) TopOffenders(w http.ResponseWriter, r *http.Request) {
	req := offendersRequest{
		Limit: getIntParam(r, "limit", database.DefaultTopOffendersLimit),
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	start := time.Now()
	offenders, err := h.db.TopOffenders(r.Context(), req.Limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "failed to query offenders", err)
		return
	}

	respondSuccess(w, http.StatusOK, offenders, time.Since(start))
}

// RecentEvents returns the latest persisted events for dashboard backfill.
func (h *Handler) RecentEvents(w http.ResponseWriter, r *http.Request) {
	req := offendersRequest{
		Limit: getIntParam(r, "limit", database.DefaultTopOffendersLimit),
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	start := time.Now()
	events, err := h.db.RecentEvents(r.Context(), req.Limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "failed to query events", err)
		return
	}

	respondSuccess(w, http.StatusOK, events, time.Since(start))
}
