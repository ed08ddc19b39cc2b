// UAScope - HTTP Traffic Threat Monitoring
// Copyright 2026 UAScope Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/uascope/uascope

// Package pipeline runs each traffic observation through the fixed
// sequence: validate, score, journal, persist, confirm, broadcast. The
// ordering is the core guarantee: nothing reaches viewers that is not
// already durable in the event store.
package pipeline

import (
	"context"
	"time"
	"unicode/utf8"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/uascope/uascope/internal/logging"
	"github.com/uascope/uascope/internal/metrics"
	"github.com/uascope/uascope/internal/models"
	"github.com/uascope/uascope/internal/scoring"
	"github.com/uascope/uascope/internal/validation"
	"github.com/uascope/uascope/internal/wal"
)

// Recorder is the slice of the event store the pipeline needs.
type Recorder interface {
	InsertScoredEvent(ctx context.Context, event *models.ScoredEvent) error
}

// Publisher is the slice of the hub the pipeline needs.
type Publisher interface {
	Publish(event models.LiveEvent) bool
}

// Options configures optional pipeline behavior.
type Options struct {
	// DedupWindow suppresses repeat (user-agent, URL) pairs within the
	// last N submissions. 0 disables deduplication.
	DedupWindow int

	// BreakerFailureThreshold is the consecutive insert failures before
	// the storage breaker opens.
	BreakerFailureThreshold uint32

	// BreakerTimeout is how long the breaker stays open before probing.
	BreakerTimeout time.Duration
}

// Pipeline wires the scorer, journal, event store and hub together.
// Safe for concurrent use.
type Pipeline struct {
	scorer   *scoring.Scorer
	journal  wal.Journal // nil when the journal is disabled
	recorder Recorder
	hub      Publisher
	dedup    *dedupWindow // nil when deduplication is disabled
	breaker  *gobreaker.CircuitBreaker[any]
}

// New creates a pipeline. journal may be nil to skip write-ahead
// journaling; hub may be nil for ingest-only operation (tests, backfill).
func New(scorer *scoring.Scorer, journal wal.Journal, recorder Recorder, hub Publisher, opts Options) *Pipeline {
	if opts.BreakerFailureThreshold == 0 {
		opts.BreakerFailureThreshold = 5
	}
	if opts.BreakerTimeout == 0 {
		opts.BreakerTimeout = 30 * time.Second
	}

	var dedup *dedupWindow
	if opts.DedupWindow > 0 {
		dedup = newDedupWindow(opts.DedupWindow)
	}

	breaker := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:    "event-store",
		Timeout: opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.BreakerFailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	})

	return &Pipeline{
		scorer:   scorer,
		journal:  journal,
		recorder: recorder,
		hub:      hub,
		dedup:    dedup,
		breaker:  breaker,
	}
}

// Ingest validates, scores, persists and broadcasts one observation.
//
// The returned result carries the assigned event ID and the verdict. A
// deduplicated submission returns the verdict with ID zero: it was scored
// but neither persisted nor broadcast.
func (p *Pipeline) Ingest(ctx context.Context, req *models.IngestRequest) (*models.IngestResult, error) {
	start := time.Now()
	defer func() {
		metrics.PipelineDuration.Observe(time.Since(start).Seconds())
	}()

	if req == nil {
		metrics.EventsRejected.WithLabelValues("validation").Inc()
		return nil, validationError("nil request")
	}

	// Boundary truncation happens before validation so an oversized
	// user-agent degrades instead of being rejected. The cut backs off to
	// a rune boundary so the stored value stays valid UTF-8.
	if len(req.UserAgent) > models.MaxUserAgentLength {
		cut := models.MaxUserAgentLength
		for cut > 0 && !utf8.RuneStart(req.UserAgent[cut]) {
			cut--
		}
		req.UserAgent = req.UserAgent[:cut]
	}

	if verr := validation.ValidateStruct(req); verr != nil {
		metrics.EventsRejected.WithLabelValues("validation").Inc()
		return nil, validationError(verr.Error())
	}

	tsMillis := req.TimestampMillis
	if tsMillis == 0 {
		tsMillis = time.Now().UnixMilli()
	}

	verdict := p.scorer.Score(scoring.Input{
		UserAgent: req.UserAgent,
		URL:       req.URL,
		IsHTTP:    req.IsHTTP,
	})
	metrics.RecordScoredEvent(string(verdict.Severity))

	result := &models.IngestResult{
		RiskScore:        verdict.RiskScore,
		ThreatCategories: verdict.Categories,
	}

	if p.dedup != nil && p.dedup.observe(req.UserAgent, req.URL) {
		metrics.EventsRejected.WithLabelValues("dedup").Inc()
		return result, nil
	}

	event := &models.ScoredEvent{
		UserAgent:        req.UserAgent,
		URL:              req.URL,
		IsHTTP:           req.IsHTTP,
		RiskScore:        verdict.RiskScore,
		ThreatCategories: verdict.Categories,
		TimestampSeconds: tsMillis / 1000,
	}

	if err := p.persist(ctx, event); err != nil {
		return nil, err
	}

	result.ID = event.ID

	if p.hub != nil {
		p.hub.Publish(models.LiveEventFrom(event))
	}

	if verdict.RiskScore >= scoring.ScoreHigh {
		logging.Warn().
			Int("risk_score", verdict.RiskScore).
			Strs("categories", verdict.Categories).
			Str("url", req.URL).
			Msg("high-risk traffic recorded")
	}

	return result, nil
}

// persist journals the event, inserts it through the storage breaker,
// then confirms the journal entry. A crash between journal and insert is
// repaired by ReplayPending on the next startup.
func (p *Pipeline) persist(ctx context.Context, event *models.ScoredEvent) error {
	var entryID string
	if p.journal != nil {
		var err error
		entryID, err = p.journal.Write(ctx, event)
		if err != nil {
			metrics.EventsRejected.WithLabelValues("storage").Inc()
			return storageError(err)
		}
	}

	_, err := p.breaker.Execute(func() (any, error) {
		return nil, p.recorder.InsertScoredEvent(ctx, event)
	})
	if err != nil {
		metrics.CircuitBreakerRequests.WithLabelValues("event-store", "failure").Inc()
		metrics.EventsRejected.WithLabelValues("storage").Inc()
		return storageError(err)
	}
	metrics.CircuitBreakerRequests.WithLabelValues("event-store", "success").Inc()

	if p.journal != nil {
		if err := p.journal.Confirm(ctx, entryID); err != nil {
			// The insert committed; a stale journal entry only costs a
			// duplicate-tolerant replay on next startup.
			logging.Warn().Err(err).Str("entry_id", entryID).Msg("failed to confirm journal entry")
		}
	}

	return nil
}

// ReplayPending drains unconfirmed journal entries into the event store.
// Called once on startup before the listener accepts traffic. Replayed
// events are not re-broadcast; viewers connected after a restart anyway.
func (p *Pipeline) ReplayPending(ctx context.Context) error {
	if p.journal == nil {
		return nil
	}

	entries, err := p.journal.GetPending(ctx)
	if err != nil {
		return storageError(err)
	}
	if len(entries) == 0 {
		return nil
	}

	logging.Info().Int("entries", len(entries)).Msg("replaying pending journal entries")

	for _, entry := range entries {
		var event models.ScoredEvent
		if err := entry.UnmarshalPayload(&event); err != nil {
			logging.Warn().Err(err).Str("entry_id", entry.ID).Msg("skipping malformed journal entry")
			if cerr := p.journal.Confirm(ctx, entry.ID); cerr != nil {
				logging.Warn().Err(cerr).Str("entry_id", entry.ID).Msg("failed to discard malformed journal entry")
			}
			continue
		}

		// Reset the stale ID; the insert assigns a fresh one.
		event.ID = 0
		if err := p.recorder.InsertScoredEvent(ctx, &event); err != nil {
			return storageError(err)
		}
		if err := p.journal.Confirm(ctx, entry.ID); err != nil {
			logging.Warn().Err(err).Str("entry_id", entry.ID).Msg("failed to confirm replayed entry")
		}
	}

	return nil
}
