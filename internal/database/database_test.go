// UAScope - HTTP Traffic Threat Monitoring
// Copyright 2026 UAScope Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/uascope/uascope

package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/uascope/uascope/internal/config"
	"github.com/uascope/uascope/internal/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	cfg := &config.DatabaseConfig{
		Path:      filepath.Join(t.TempDir(), "events.duckdb"),
		MaxMemory: "256MB",
		Threads:   2,
	}
	db, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("failed to close test database: %v", err)
		}
	})
	return db
}

func insertEvent(t *testing.T, db *DB, ua string, score int, categories ...string) *models.ScoredEvent {
	t.Helper()

	event := &models.ScoredEvent{
		UserAgent:        ua,
		URL:              "/probe",
		RiskScore:        score,
		ThreatCategories: categories,
		TimestampSeconds: time.Now().Unix(),
	}
	if err := db.InsertScoredEvent(context.Background(), event); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	return event
}

func TestNewWithDefaultsOnly(t *testing.T) {
	db, err := New(&config.DatabaseConfig{
		Path: filepath.Join(t.TempDir(), "events.duckdb"),
	})
	if err != nil {
		t.Fatalf("open with zero-value tuning failed: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("failed to close database: %v", err)
		}
	})

	insertEvent(t, db, "curl/8.0", 10)
	count, err := db.CountEvents(context.Background())
	if err != nil {
		t.Fatalf("CountEvents failed: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestInsertAssignsIncreasingIDs(t *testing.T) {
	db := newTestDB(t)

	first := insertEvent(t, db, "curl/8.0", 50)
	second := insertEvent(t, db, "sqlmap/1.7", 100, "scanner")

	if first.ID <= 0 {
		t.Fatalf("first ID = %d, want positive", first.ID)
	}
	if second.ID <= first.ID {
		t.Errorf("IDs not increasing: %d then %d", first.ID, second.ID)
	}
}

func TestInsertRoundTripsCategories(t *testing.T) {
	db := newTestDB(t)
	insertEvent(t, db, "sqlmap/1.7", 100, "scanner", "sqli")

	events, err := db.RecentEvents(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentEvents failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	got := events[0].ThreatCategories
	if len(got) != 2 || got[0] != "scanner" || got[1] != "sqli" {
		t.Errorf("categories = %v, want [scanner sqli]", got)
	}
}

func TestTopOffendersOrdering(t *testing.T) {
	db := newTestDB(t)

	// Three UAs: one seen twice at medium risk, one critical once, one baseline.
	insertEvent(t, db, "curl/8.0", 50)
	insertEvent(t, db, "curl/8.0", 50)
	insertEvent(t, db, "sqlmap/1.7", 100, "scanner")
	insertEvent(t, db, "Mozilla/5.0", 10)

	offenders, err := db.TopOffenders(context.Background(), 10)
	if err != nil {
		t.Fatalf("TopOffenders failed: %v", err)
	}
	if len(offenders) != 3 {
		t.Fatalf("got %d offenders, want 3", len(offenders))
	}
	if offenders[0].UserAgent != "sqlmap/1.7" || offenders[0].MaxRiskSeen != 100 {
		t.Errorf("first offender = %+v, want sqlmap at 100", offenders[0])
	}
	if offenders[1].UserAgent != "curl/8.0" || offenders[1].OccurrenceCount != 2 {
		t.Errorf("second offender = %+v, want curl with 2 hits", offenders[1])
	}
}

func TestTopOffendersLimitClamp(t *testing.T) {
	db := newTestDB(t)
	insertEvent(t, db, "curl/8.0", 50)

	// A limit beyond the cap must not error; it just clamps.
	if _, err := db.TopOffenders(context.Background(), MaxTopOffendersLimit+500); err != nil {
		t.Fatalf("TopOffenders with oversized limit failed: %v", err)
	}
	// Zero falls back to the default.
	offenders, err := db.TopOffenders(context.Background(), 0)
	if err != nil {
		t.Fatalf("TopOffenders with zero limit failed: %v", err)
	}
	if len(offenders) != 1 {
		t.Errorf("got %d offenders, want 1", len(offenders))
	}
}

func TestCountEvents(t *testing.T) {
	db := newTestDB(t)

	count, err := db.CountEvents(context.Background())
	if err != nil {
		t.Fatalf("CountEvents failed: %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}

	insertEvent(t, db, "curl/8.0", 50)
	count, err = db.CountEvents(context.Background())
	if err != nil {
		t.Fatalf("CountEvents failed: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestIDsSurviveReopen(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.DatabaseConfig{
		Path:      filepath.Join(dir, "events.duckdb"),
		MaxMemory: "256MB",
		Threads:   2,
	}

	db, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	first := insertEvent(t, db, "curl/8.0", 50)
	if err := db.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	reopened, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to reopen database: %v", err)
	}
	defer func() {
		if err := reopened.Close(); err != nil {
			t.Errorf("close failed: %v", err)
		}
	}()

	second := insertEvent(t, reopened, "wget/1.21", 50)
	if second.ID <= first.ID {
		t.Errorf("ID %d after reopen not greater than %d", second.ID, first.ID)
	}
}

func TestPing(t *testing.T) {
	db := newTestDB(t)
	if err := db.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}
