// UAScope - HTTP Traffic Threat Monitoring
// Copyright 2026 UAScope Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/uascope/uascope

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config failed validation: %v", err)
	}
	if cfg.Broadcast.RatePerSec != 50 {
		t.Errorf("broadcast.rate_per_sec default = %d, want 50", cfg.Broadcast.RatePerSec)
	}
	if cfg.Broadcast.DedupEnabled {
		t.Error("broadcast dedup must be off by default")
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port out of range", func(c *Config) { c.Server.Port = 0 }},
		{"zero timeout", func(c *Config) { c.Server.Timeout = 0 }},
		{"empty database path", func(c *Config) { c.Database.Path = "" }},
		{"wal enabled without path", func(c *Config) { c.WAL.Path = "" }},
		{"baseline over 100", func(c *Config) { c.Scoring.BaselineScore = 101 }},
		{"zero buffer size", func(c *Config) { c.Broadcast.BufferSize = 0 }},
		{"negative broadcast rate", func(c *Config) { c.Broadcast.RatePerSec = -1 }},
		{"dedup with zero window", func(c *Config) { c.Broadcast.DedupEnabled = true; c.Broadcast.DedupWindow = 0 }},
		{"rate limit zero requests", func(c *Config) { c.Security.RateLimitReqs = 0 }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestRateLimitDisabledSkipsLimitChecks(t *testing.T) {
	cfg := defaultConfig()
	cfg.Security.RateLimitDisabled = true
	cfg.Security.RateLimitReqs = 0
	cfg.Security.RateLimitWindow = 0
	if err := cfg.Validate(); err != nil {
		t.Errorf("disabled rate limiter must not be validated: %v", err)
	}
}

func TestLoadWithKoanfDefaults(t *testing.T) {
	// Run from a directory without a config file so only defaults apply.
	restore := chdirTemp(t)
	defer restore()

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error: %v", err)
	}
	if cfg.Server.Port != 8787 {
		t.Errorf("server.port = %d, want 8787", cfg.Server.Port)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("logging.format = %q, want json", cfg.Logging.Format)
	}
}

func TestLoadWithKoanfEnvOverride(t *testing.T) {
	restore := chdirTemp(t)
	defer restore()

	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("BROADCAST_RATE", "10")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("server.port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("logging.level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Broadcast.RatePerSec != 10 {
		t.Errorf("broadcast.rate_per_sec = %d, want 10", cfg.Broadcast.RatePerSec)
	}
	if len(cfg.Security.CORSOrigins) != 2 || cfg.Security.CORSOrigins[0] != "https://a.example" {
		t.Errorf("cors_origins = %v, want two trimmed origins", cfg.Security.CORSOrigins)
	}
}

func TestLoadWithKoanfFileLayer(t *testing.T) {
	restore := chdirTemp(t)
	defer restore()

	content := []byte("server:\n  port: 4000\nscoring:\n  baseline_score: 20\n")
	path := filepath.Join(".", "config.yaml")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}

	// Env beats file for the same key.
	t.Setenv("HTTP_PORT", "4001")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error: %v", err)
	}
	if cfg.Server.Port != 4001 {
		t.Errorf("server.port = %d, env must win over file", cfg.Server.Port)
	}
	if cfg.Scoring.BaselineScore != 20 {
		t.Errorf("scoring.baseline_score = %d, want 20 from file", cfg.Scoring.BaselineScore)
	}
	if cfg.Server.Timeout != 30*time.Second {
		t.Errorf("server.timeout = %s, want default 30s", cfg.Server.Timeout)
	}
}

func TestEnvTransformFuncSkipsUnknownKeys(t *testing.T) {
	if got := envTransformFunc("RANDOM_ENV_VAR"); got != "" {
		t.Errorf("unknown env var mapped to %q, want empty", got)
	}
	if got := envTransformFunc("DUCKDB_PATH"); got != "database.path" {
		t.Errorf("DUCKDB_PATH mapped to %q", got)
	}
}

// chdirTemp moves the process into a fresh temp dir and returns a restore func.
func chdirTemp(t *testing.T) func() {
	t.Helper()
	orig, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	return func() {
		if err := os.Chdir(orig); err != nil {
			t.Fatal(err)
		}
	}
}
