// UAScope - HTTP Traffic Threat Monitoring
// Copyright 2026 UAScope Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/uascope/uascope

// Package models defines the shared data types exchanged between the
// ingestion pipeline, storage layer, broadcast hub, and HTTP API.
package models

// MaxUserAgentLength is the boundary truncation limit for user-agent strings.
// Anything longer is cut before scoring and storage.
const MaxUserAgentLength = 1024

// IngestRequest is the wire payload accepted from the traffic collector.
// URL is required; an absent user-agent is legal and scores at the baseline.
// TimestampMillis defaults to the server clock when zero.
type IngestRequest struct {
	UserAgent       string `json:"ua" validate:"max=1024"`
	URL             string `json:"url" validate:"required,max=4096"`
	IsHTTP          bool   `json:"is_http"`
	TimestampMillis int64  `json:"ts" validate:"min=0"`
}

// ScoredEvent is one scored, persisted traffic observation. Events are
// append-only: once recorded they are never updated or deleted. ID is
// assigned by the recorder from a persisted sequence and is strictly
// increasing across restarts.
type ScoredEvent struct {
	ID               int64    `json:"id"`
	UserAgent        string   `json:"ua"`
	URL              string   `json:"url"`
	IsHTTP           bool     `json:"is_http"`
	RiskScore        int      `json:"risk_score"`
	ThreatCategories []string `json:"threat_categories,omitempty"`
	TimestampSeconds int64    `json:"ts"`
}

// LiveEvent is the server-to-client message body on the "scanner" topic.
// It carries milliseconds on the wire while storage keeps seconds.
type LiveEvent struct {
	ID              int64  `json:"id"`
	UserAgent       string `json:"ua"`
	IsHTTP          bool   `json:"is_http"`
	RiskScore       int    `json:"risk_score"`
	TimestampMillis int64  `json:"ts"`
}

// LiveEventFrom converts a persisted event to its live-feed representation.
func LiveEventFrom(event *ScoredEvent) LiveEvent {
	return LiveEvent{
		ID:              event.ID,
		UserAgent:       event.UserAgent,
		IsHTTP:          event.IsHTTP,
		RiskScore:       event.RiskScore,
		TimestampMillis: event.TimestampSeconds * 1000,
	}
}

// TopOffender is one row of the aggregate query surface: a raw user-agent
// grouped with the highest risk ever seen for it and its occurrence count.
type TopOffender struct {
	UserAgent       string `json:"ua"`
	MaxRiskSeen     int    `json:"max_risk"`
	OccurrenceCount int64  `json:"count"`
}

// IngestResult is returned to the collector after a successful ingest.
type IngestResult struct {
	ID               int64    `json:"id"`
	RiskScore        int      `json:"risk_score"`
	ThreatCategories []string `json:"threat_categories,omitempty"`
}
