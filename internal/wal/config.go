// UAScope - HTTP Traffic Threat Monitoring
// Copyright 2026 UAScope Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/uascope/uascope

package wal

import (
	"fmt"
	"time"
)

// Config holds the tuning knobs for the BadgerDB-backed journal.
type Config struct {
	// Path is the directory for the BadgerDB files.
	Path string

	// SyncWrites forces an fsync on every write. Durable but slow; the
	// default trades a small crash window for throughput.
	SyncWrites bool

	// EntryTTL is how long entries live before BadgerDB expires them.
	// Confirmed entries become garbage immediately; this bounds the
	// lifetime of orphaned pending entries. Zero disables expiry.
	EntryTTL time.Duration

	// GCInterval is how often the maintenance loop runs value-log GC.
	GCInterval time.Duration

	// GCRatio is the BadgerDB value-log rewrite threshold.
	GCRatio float64

	// MemTableSize is the BadgerDB memtable size in bytes.
	MemTableSize int64
}

// DefaultConfig returns production defaults sized for a single-node
// monitoring service.
func DefaultConfig(path string) *Config {
	return &Config{
		Path:         path,
		SyncWrites:   false,
		EntryTTL:     24 * time.Hour,
		GCInterval:   10 * time.Minute,
		GCRatio:      0.5,
		MemTableSize: 16 << 20, // 16MB
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("wal path is required")
	}
	if c.GCInterval < time.Minute {
		return fmt.Errorf("gc interval must be at least 1m, got %s", c.GCInterval)
	}
	if c.GCRatio <= 0 || c.GCRatio > 1 {
		return fmt.Errorf("gc ratio must be in (0,1], got %f", c.GCRatio)
	}
	if c.MemTableSize < 1<<20 {
		return fmt.Errorf("memtable size must be at least 1MB, got %d", c.MemTableSize)
	}
	return nil
}
