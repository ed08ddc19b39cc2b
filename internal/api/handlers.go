// UAScope - HTTP Traffic Threat Monitoring
// Copyright 2026 UAScope Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/uascope/uascope

// Package api provides the HTTP surface: ingestion, the live WebSocket
// feed, the offenders query endpoint and health reporting, routed with
// chi and instrumented with Prometheus.
package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/uascope/uascope/internal/config"
	"github.com/uascope/uascope/internal/database"
	"github.com/uascope/uascope/internal/logging"
	"github.com/uascope/uascope/internal/pipeline"
	"github.com/uascope/uascope/internal/wal"
	ws "github.com/uascope/uascope/internal/websocket"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Handler holds the dependencies for all HTTP handlers.
type Handler struct {
	db        *database.DB
	pipeline  *pipeline.Pipeline
	wsHub     *ws.Hub
	journal   wal.Journal // nil when the journal is disabled
	config    *config.Config
	startTime time.Time
}

// NewHandler creates the handler set. journal may be nil.
func NewHandler(db *database.DB, p *pipeline.Pipeline, hub *ws.Hub, journal wal.Journal, cfg *config.Config) *Handler {
	return &Handler{
		db:        db,
		pipeline:  p,
		wsHub:     hub,
		journal:   journal,
		config:    cfg,
		startTime: time.Now(),
	}
}

// getUpgrader creates a WebSocket upgrader with origin checking and a
// handshake timeout against slow clients.
func (h *Handler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin validates browser origins against the configured
// allowlist. Collector processes are not browsers and send no Origin
// header; those connections are allowed through.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if h.config == nil {
		return true
	}

	for _, allowedOrigin := range h.config.Security.CORSOrigins {
		if allowedOrigin == "*" || allowedOrigin == origin {
			return true
		}
	}

	logging.Warn().Str("origin", sanitizeLogValue(origin)).Msg("WebSocket connection rejected from unauthorized origin")
	return false
}

// WebSocket upgrades the connection and attaches the client to the hub.
// The same connection serves both viewers and collectors: broadcasts go
// out, and inline ua_data submissions come in through the pipeline.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if h.wsHub == nil {
		logging.Warn().Msg("WebSocket connection rejected: hub not initialized")
		respondError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "WebSocket service unavailable", nil)
		return
	}

	upgrader := h.getUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error().Err(err).Msg("WebSocket upgrade error")
		return
	}

	client := ws.NewClient(h.wsHub, conn, h.pipeline)
	h.wsHub.Register <- client
	client.Start()
}
