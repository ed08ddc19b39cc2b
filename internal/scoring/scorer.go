// UAScope - HTTP Traffic Threat Monitoring
// Copyright 2026 UAScope Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/uascope/uascope

// Package scoring maps a request's observable fields to a risk score.
//
// The scorer is a pure function over the immutable pattern database: the
// same input always yields the same score and category set, and there is
// no error path. Severity tiers aggregate by max rather than addition so
// one strong signal dominates without dilution by weak ones; a CRITICAL
// match short-circuits to 100 because a confirmed attack-tool signature
// needs no further evidence.
//
// HTTP and HTTPS traffic score identically for the same signatures; the
// transport flag is carried through for display and aggregation only.
package scoring

import (
	"strings"
	"unicode"

	"github.com/uascope/uascope/internal/threatdb"
)

// Score bounds and tier values.
const (
	ScoreMax        = 100
	ScoreHigh       = 75
	ScoreMedium     = 50
	ScoreSuspicious = 40
	ScoreLongUA     = 30

	// DefaultBaseline is the score for traffic with no matched signals.
	DefaultBaseline = 10

	// LongUAThreshold is the user-agent length above which the oversized
	// heuristic fires.
	LongUAThreshold = 256
)

// Input carries the observable request fields the scorer evaluates.
type Input struct {
	UserAgent string
	URL       string
	IsHTTP    bool
}

// Result is the scorer's verdict for one input.
type Result struct {
	RiskScore  int
	Categories []string
	// Severity is the highest tier that contributed to the score, or
	// empty when only the baseline applied.
	Severity threatdb.Severity
}

// Scorer evaluates inputs against a pattern database. Safe for concurrent
// use: both the scorer and the database are immutable after construction.
type Scorer struct {
	db       *threatdb.Database
	baseline int
}

// New creates a scorer over the given pattern database. A baseline
// outside [0,100] falls back to DefaultBaseline.
func New(db *threatdb.Database, baseline int) *Scorer {
	if baseline < 0 || baseline > ScoreMax {
		baseline = DefaultBaseline
	}
	return &Scorer{db: db, baseline: baseline}
}

// Score computes the risk score and matched category labels for the input.
//
// An empty user-agent returns the baseline immediately. CRITICAL rules are
// matched against both the user-agent and the URL and short-circuit to 100.
// HIGH and MEDIUM rules match the user-agent only and raise the score via
// max-aggregation. The SUSPICIOUS heuristics (non-printable characters,
// oversized user-agent) run last.
func (s *Scorer) Score(in Input) Result {
	if in.UserAgent == "" {
		return Result{RiskScore: s.baseline}
	}

	loweredUA := strings.ToLower(in.UserAgent)
	loweredURL := strings.ToLower(in.URL)

	score := s.baseline
	var categories []string
	var severity threatdb.Severity

	for _, tier := range s.db.Tiers() {
		for _, rule := range tier.Rules {
			matched := rule.Matches(in.UserAgent, loweredUA)
			if !matched && tier.Severity == threatdb.SeverityCritical && in.URL != "" {
				matched = rule.Matches(in.URL, loweredURL)
			}
			if !matched {
				continue
			}

			categories = appendCategory(categories, rule.Category)
			if severity == "" {
				severity = tier.Severity
			}

			if tier.Severity == threatdb.SeverityCritical {
				return Result{RiskScore: ScoreMax, Categories: categories, Severity: severity}
			}
			score = max(score, tierScore(tier.Severity))
		}
	}

	if hasNonPrintable(in.UserAgent) {
		categories = appendCategory(categories, threatdb.CategoryNonPrintable)
		if severity == "" {
			severity = threatdb.SeveritySuspicious
		}
		score = max(score, ScoreSuspicious)
	}
	if len(in.UserAgent) > LongUAThreshold {
		categories = appendCategory(categories, threatdb.CategoryOversized)
		if severity == "" {
			severity = threatdb.SeveritySuspicious
		}
		score = max(score, ScoreLongUA)
	}

	return Result{RiskScore: clamp(score), Categories: categories, Severity: severity}
}

// tierScore maps a severity tier to its score contribution.
func tierScore(severity threatdb.Severity) int {
	switch severity {
	case threatdb.SeverityCritical:
		return ScoreMax
	case threatdb.SeverityHigh:
		return ScoreHigh
	case threatdb.SeverityMedium:
		return ScoreMedium
	default:
		return 0
	}
}

// appendCategory adds a category if not already collected, preserving
// first-match order.
func appendCategory(categories []string, category string) []string {
	for _, existing := range categories {
		if existing == category {
			return categories
		}
	}
	return append(categories, category)
}

// hasNonPrintable reports whether the string contains control or otherwise
// non-printable runes. Space is printable.
func hasNonPrintable(s string) bool {
	for _, r := range s {
		if r != ' ' && !unicode.IsPrint(r) {
			return true
		}
	}
	return false
}

func clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > ScoreMax {
		return ScoreMax
	}
	return score
}
