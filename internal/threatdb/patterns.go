// UAScope - HTTP Traffic Threat Monitoring
// Copyright 2026 UAScope Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/uascope/uascope

// Package threatdb holds the static threat-pattern database.
//
// The database is an immutable table of severity tiers, each holding an
// ordered list of literal or regex rules tagged with a category label.
// It is built once at startup and shared by reference; nothing mutates it
// after construction. Tier scan order is pinned (CRITICAL, HIGH, MEDIUM)
// and rules within a tier evaluate in declaration order, so the category
// labels collected for a given input are deterministic.
package threatdb

import (
	"fmt"
	"regexp"
	"strings"
)

// Severity identifies a rule tier. Higher severities dominate: the scorer
// takes the maximum tier score, and any CRITICAL match short-circuits.
type Severity string

const (
	SeverityCritical   Severity = "CRITICAL"
	SeverityHigh       Severity = "HIGH"
	SeverityMedium     Severity = "MEDIUM"
	SeveritySuspicious Severity = "SUSPICIOUS"
)

// Category labels attached to matched rules and heuristics.
const (
	CategorySQLi         = "sqli"
	CategoryXSS          = "xss"
	CategoryTraversal    = "traversal"
	CategoryCmdInjection = "cmd_injection"
	CategoryScanner      = "scanner"
	CategoryBruteforce   = "bruteforce"
	CategoryAutomation   = "automation"
	CategoryCLITool      = "cli_tool"
	CategoryBot          = "bot"
	CategoryNonPrintable = "non_printable"
	CategoryOversized    = "oversized"
)

// Rule is a single threat signature: either a literal substring or a
// compiled regular expression, never both.
//
// Literal patterns are stored lowercase and matched against the lowercased
// input. Regex patterns run against the original-case input; authors embed
// (?i) where case folding is wanted.
type Rule struct {
	Literal  string
	Regex    *regexp.Regexp
	Category string
}

// Matches reports whether the rule matches the input. The caller supplies
// both the original input and its lowercased form so the lowering is done
// once per scan, not once per rule.
func (r Rule) Matches(original, lowered string) bool {
	if r.Regex != nil {
		return r.Regex.MatchString(original)
	}
	return strings.Contains(lowered, r.Literal)
}

// String describes the rule for logging.
func (r Rule) String() string {
	if r.Regex != nil {
		return fmt.Sprintf("regex(%s)[%s]", r.Regex.String(), r.Category)
	}
	return fmt.Sprintf("literal(%s)[%s]", r.Literal, r.Category)
}

// Tier groups the rules of one severity level.
type Tier struct {
	Severity Severity
	Rules    []Rule
}

// Database is the immutable pattern table. Tiers are stored in pinned
// scan order: CRITICAL first, then HIGH, then MEDIUM. The SUSPICIOUS
// tier has no rules here; its heuristics (non-printable characters,
// oversized user-agents) live in the scorer.
type Database struct {
	tiers []Tier
}

// Tiers returns the tiers in scan order. Callers must not modify the
// returned slices.
func (db *Database) Tiers() []Tier {
	return db.tiers
}

// RuleCount returns the total number of rules across all tiers.
func (db *Database) RuleCount() int {
	n := 0
	for _, tier := range db.tiers {
		n += len(tier.Rules)
	}
	return n
}

func literal(pattern, category string) Rule {
	return Rule{Literal: strings.ToLower(pattern), Category: category}
}

func regex(pattern, category string) Rule {
	return Rule{Regex: regexp.MustCompile(pattern), Category: category}
}

// Default builds the built-in pattern database. Regex compilation panics
// on malformed patterns, which is intentional: a broken signature table
// is a programming error, not a runtime condition.
func Default() *Database {
	return &Database{
		tiers: []Tier{
			{
				Severity: SeverityCritical,
				Rules: []Rule{
					// Attack-tool signatures. Any of these in a user-agent is
					// treated as ground truth, no further evidence needed.
					literal("sqlmap", CategoryScanner),
					literal("havij", CategoryScanner),
					literal("nikto", CategoryScanner),
					literal("acunetix", CategoryScanner),
					literal("nessus", CategoryScanner),
					literal("metasploit", CategoryScanner),
					literal("w3af", CategoryScanner),
					literal("masscan", CategoryScanner),
					literal("zgrab", CategoryScanner),
					literal("hydra", CategoryBruteforce),

					// Payload signatures, matched against user-agent and URL.
					regex(`(?i)<script[^>]*>`, CategoryXSS),
					regex(`(?i)javascript:`, CategoryXSS),
					regex(`(?i)union[\s+]+select`, CategorySQLi),
					regex(`(?i)'\s*or\s+'?1'?\s*=\s*'?1`, CategorySQLi),
					regex(`\.\./\.\./`, CategoryTraversal),
					regex(`(?i)%2e%2e%2f`, CategoryTraversal),
					regex(`(?i);\s*(wget|curl|nc|bash|sh)\b`, CategoryCmdInjection),
					regex(`(?i)\$\((wget|curl|nc|bash)\b`, CategoryCmdInjection),
				},
			},
			{
				Severity: SeverityHigh,
				Rules: []Rule{
					literal("dirbuster", CategoryScanner),
					literal("gobuster", CategoryScanner),
					literal("wfuzz", CategoryScanner),
					literal("ffuf", CategoryScanner),
					literal("wpscan", CategoryScanner),
					literal("python-requests", CategoryAutomation),
					literal("python-urllib", CategoryAutomation),
					literal("go-http-client", CategoryAutomation),
					literal("libwww-perl", CategoryAutomation),
					literal("scrapy", CategoryAutomation),
					literal("java/", CategoryAutomation),
				},
			},
			{
				Severity: SeverityMedium,
				Rules: []Rule{
					literal("curl/", CategoryCLITool),
					literal("wget/", CategoryCLITool),
					literal("httpie", CategoryCLITool),
					literal("postmanruntime", CategoryCLITool),
					literal("headlesschrome", CategoryBot),
					literal("phantomjs", CategoryBot),
					literal("selenium", CategoryBot),
					literal("puppeteer", CategoryBot),
				},
			},
		},
	}
}
