// UAScope - HTTP Traffic Threat Monitoring
// Copyright 2026 UAScope Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/uascope/uascope

// Package config holds the application configuration structures and the
// layered loader (defaults, optional YAML file, environment overrides).
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the monitoring service.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	WAL       WALConfig       `koanf:"wal"`
	Scoring   ScoringConfig   `koanf:"scoring"`
	Broadcast BroadcastConfig `koanf:"broadcast"`
	Security  SecurityConfig  `koanf:"security"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"` // read/write timeout for plain HTTP requests
}

// DatabaseConfig controls the DuckDB event store.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"` // 0 = use runtime.NumCPU()
}

// WALConfig controls the BadgerDB write-ahead journal that sits in front
// of the event store.
type WALConfig struct {
	Enabled    bool   `koanf:"enabled"`
	Path       string `koanf:"path"`
	SyncWrites bool   `koanf:"sync_writes"`
}

// ScoringConfig controls the risk scorer.
type ScoringConfig struct {
	BaselineScore int `koanf:"baseline_score"` // score for traffic with no matched signals
}

// BroadcastConfig controls the live-feed hub.
type BroadcastConfig struct {
	BufferSize   int  `koanf:"buffer_size"`    // per-viewer send queue depth
	RatePerSec   int  `koanf:"rate_per_sec"`   // global broadcast throttle; 0 = unlimited
	DedupEnabled bool `koanf:"dedup_enabled"`  // suppress repeat events within the window
	DedupWindow  int  `koanf:"dedup_window"`   // number of recent event hashes remembered
}

// SecurityConfig controls rate limiting and CORS for the ingest surface.
type SecurityConfig struct {
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	CORSOrigins       []string      `koanf:"cors_origins"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks the configuration for values that would misbehave at
// runtime. Called after all layers are merged.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in [1,65535], got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server.timeout must be positive, got %s", c.Server.Timeout)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.WAL.Enabled && c.WAL.Path == "" {
		return fmt.Errorf("wal.path is required when wal.enabled is true")
	}
	if c.Scoring.BaselineScore < 0 || c.Scoring.BaselineScore > 100 {
		return fmt.Errorf("scoring.baseline_score must be in [0,100], got %d", c.Scoring.BaselineScore)
	}
	if c.Broadcast.BufferSize < 1 {
		return fmt.Errorf("broadcast.buffer_size must be positive, got %d", c.Broadcast.BufferSize)
	}
	if c.Broadcast.RatePerSec < 0 {
		return fmt.Errorf("broadcast.rate_per_sec must not be negative, got %d", c.Broadcast.RatePerSec)
	}
	if c.Broadcast.DedupEnabled && c.Broadcast.DedupWindow < 1 {
		return fmt.Errorf("broadcast.dedup_window must be positive when dedup is enabled, got %d", c.Broadcast.DedupWindow)
	}
	if !c.Security.RateLimitDisabled {
		if c.Security.RateLimitReqs < 1 {
			return fmt.Errorf("security.rate_limit_reqs must be positive, got %d", c.Security.RateLimitReqs)
		}
		if c.Security.RateLimitWindow <= 0 {
			return fmt.Errorf("security.rate_limit_window must be positive, got %s", c.Security.RateLimitWindow)
		}
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}
