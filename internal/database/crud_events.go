// UAScope - HTTP Traffic Threat Monitoring
// Copyright 2026 UAScope Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/uascope/uascope

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	json "github.com/goccy/go-json"

	"github.com/uascope/uascope/internal/logging"
	"github.com/uascope/uascope/internal/metrics"
	"github.com/uascope/uascope/internal/models"
)

// MaxTopOffendersLimit caps the offenders query regardless of what the
// caller asks for.
const MaxTopOffendersLimit = 100

// DefaultTopOffendersLimit applies when the caller passes limit <= 0.
const DefaultTopOffendersLimit = 10

// InsertScoredEvent persists one scored event and fills in its assigned ID.
// Categories are stored as a JSON array string; NULL when empty.
func (db *DB) InsertScoredEvent(ctx context.Context, event *models.ScoredEvent) error {
	start := time.Now()

	var categories interface{}
	if len(event.ThreatCategories) > 0 {
		encoded, err := json.Marshal(event.ThreatCategories)
		if err != nil {
			return fmt.Errorf("failed to encode threat categories: %w", err)
		}
		categories = string(encoded)
	}

	db.writeMu.Lock()
	err := db.conn.QueryRowContext(ctx,
		`INSERT INTO ua_events (user_agent, url, is_http, risk_score, threat_categories, event_ts)
		 VALUES (?, ?, ?, ?, ?, ?)
		 RETURNING id`,
		event.UserAgent, event.URL, event.IsHTTP, event.RiskScore, categories, event.TimestampSeconds,
	).Scan(&event.ID)
	db.writeMu.Unlock()

	metrics.RecordDBQuery("insert", "ua_events", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// TopOffenders returns up to limit user-agents ordered by the highest risk
// ever recorded for them, occurrence count breaking ties. The user-agent is
// returned raw; display-side escaping is the consumer's job.
func (db *DB) TopOffenders(ctx context.Context, limit int) ([]models.TopOffender, error) {
	if limit <= 0 {
		limit = DefaultTopOffendersLimit
	}
	if limit > MaxTopOffendersLimit {
		limit = MaxTopOffendersLimit
	}

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx,
		`SELECT user_agent, MAX(risk_score) AS max_risk, COUNT(*) AS hits
		 FROM ua_events
		 GROUP BY user_agent
		 ORDER BY max_risk DESC, hits DESC
		 LIMIT ?`,
		limit,
	)
	metrics.RecordDBQuery("select", "ua_events", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query top offenders: %w", err)
	}
	defer closeRows(rows)

	offenders := make([]models.TopOffender, 0, limit)
	for rows.Next() {
		var o models.TopOffender
		if err := rows.Scan(&o.UserAgent, &o.MaxRiskSeen, &o.OccurrenceCount); err != nil {
			return nil, fmt.Errorf("failed to scan offender row: %w", err)
		}
		offenders = append(offenders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("offender row iteration failed: %w", err)
	}

	return offenders, nil
}

// RecentEvents returns the latest events in descending ID order, for the
// dashboard's initial backfill.
func (db *DB) RecentEvents(ctx context.Context, limit int) ([]models.ScoredEvent, error) {
	if limit <= 0 {
		limit = DefaultTopOffendersLimit
	}
	if limit > MaxTopOffendersLimit {
		limit = MaxTopOffendersLimit
	}

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, user_agent, url, is_http, risk_score, threat_categories, event_ts
		 FROM ua_events
		 ORDER BY id DESC
		 LIMIT ?`,
		limit,
	)
	metrics.RecordDBQuery("select", "ua_events", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent events: %w", err)
	}
	defer closeRows(rows)

	events := make([]models.ScoredEvent, 0, limit)
	for rows.Next() {
		var event models.ScoredEvent
		var categories sql.NullString
		if err := rows.Scan(&event.ID, &event.UserAgent, &event.URL, &event.IsHTTP,
			&event.RiskScore, &categories, &event.TimestampSeconds); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		if categories.Valid && categories.String != "" {
			if err := json.Unmarshal([]byte(categories.String), &event.ThreatCategories); err != nil {
				return nil, fmt.Errorf("failed to decode threat categories for event %d: %w", event.ID, err)
			}
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("event row iteration failed: %w", err)
	}

	return events, nil
}

// CountEvents returns the total number of persisted events.
func (db *DB) CountEvents(ctx context.Context) (int64, error) {
	start := time.Now()
	var count int64
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM ua_events`).Scan(&count)
	metrics.RecordDBQuery("select", "ua_events", time.Since(start), err)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		logging.Warn().Err(err).Msg("Failed to close result rows")
	}
}
