// UAScope - HTTP Traffic Threat Monitoring
// Copyright 2026 UAScope Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/uascope/uascope

// Package wal provides a durable write-ahead journal in front of the
// event store. Scored events land here before the DuckDB insert; a
// confirmed entry means the insert committed. On startup the pipeline
// replays whatever is still pending, so a crash between journal write
// and insert loses nothing.
package wal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/uascope/uascope/internal/logging"
	"github.com/uascope/uascope/internal/metrics"
)

// Journal is the write-ahead contract the pipeline depends on.
type Journal interface {
	// Write persists an event before the database insert. Returns an
	// entry ID for later confirmation.
	Write(ctx context.Context, event interface{}) (entryID string, err error)

	// Confirm marks an entry as durably inserted into the event store.
	Confirm(ctx context.Context, entryID string) error

	// GetPending returns all unconfirmed entries, for startup replay.
	GetPending(ctx context.Context) ([]*Entry, error)

	// Stats returns journal counters.
	Stats() Stats

	// Close gracefully shuts down the journal.
	Close() error
}

// Entry is a single journal record.
type Entry struct {
	ID        string          `json:"id"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	Confirmed bool            `json:"confirmed"`
}

// UnmarshalPayload deserializes the payload into the given type.
func (e *Entry) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// Stats contains journal counters for health reporting.
type Stats struct {
	PendingCount  int64
	TotalWrites   int64
	TotalConfirms int64
}

// Journal errors.
var (
	ErrJournalClosed = errors.New("wal: journal is closed")
	ErrNilEvent      = errors.New("wal: nil event")
	ErrEmptyEntryID  = errors.New("wal: empty entry ID")
	ErrEntryNotFound = errors.New("wal: entry not found")
)

const prefixPending = "pending:"

// BadgerJournal implements Journal on BadgerDB.
type BadgerJournal struct {
	db     *badger.DB
	config Config

	totalWrites   atomic.Int64
	totalConfirms atomic.Int64
	pending       atomic.Int64

	mu     sync.RWMutex
	closed bool
}

// Open creates a BadgerJournal at the configured path.
func Open(cfg *Config) (*BadgerJournal, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid journal config: %w", err)
	}

	opts := badger.DefaultOptions(cfg.Path)
	opts.SyncWrites = cfg.SyncWrites
	opts.MemTableSize = cfg.MemTableSize
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	j := &BadgerJournal{
		db:     db,
		config: *cfg,
	}

	// Seed the pending gauge from whatever survived the last run.
	if entries, err := j.GetPending(context.Background()); err == nil {
		j.pending.Store(int64(len(entries)))
		metrics.WALPendingEntries.Set(float64(len(entries)))
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("sync_writes", cfg.SyncWrites).
		Msg("Write-ahead journal opened")

	return j, nil
}

// Write persists an event to the journal and returns its entry ID.
func (j *BadgerJournal) Write(ctx context.Context, event interface{}) (string, error) {
	j.mu.RLock()
	if j.closed {
		j.mu.RUnlock()
		return "", ErrJournalClosed
	}
	j.mu.RUnlock()

	if event == nil {
		return "", ErrNilEvent
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	entryID := uuid.New().String()
	entry := &Entry{
		ID:        entryID,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("marshal entry: %w", err)
	}

	key := []byte(prefixPending + entryID)
	err = j.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(key, data)
		if j.config.EntryTTL > 0 {
			e = e.WithTTL(j.config.EntryTTL)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		return "", fmt.Errorf("write to BadgerDB: %w", err)
	}

	j.totalWrites.Add(1)
	metrics.WALWrites.Inc()
	metrics.WALPendingEntries.Set(float64(j.pending.Add(1)))

	return entryID, nil
}

// Confirm deletes the pending entry: the event is now durable downstream.
func (j *BadgerJournal) Confirm(ctx context.Context, entryID string) error {
	j.mu.RLock()
	if j.closed {
		j.mu.RUnlock()
		return ErrJournalClosed
	}
	j.mu.RUnlock()

	if entryID == "" {
		return ErrEmptyEntryID
	}

	key := []byte(prefixPending + entryID)
	err := j.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrEntryNotFound
		}
		if err != nil {
			return fmt.Errorf("get pending entry: %w", err)
		}
		return txn.Delete(key)
	})
	if err != nil {
		return err
	}

	j.totalConfirms.Add(1)
	metrics.WALConfirms.Inc()
	metrics.WALPendingEntries.Set(float64(j.pending.Add(-1)))

	return nil
}

// GetPending returns all unconfirmed entries from a consistent snapshot.
func (j *BadgerJournal) GetPending(ctx context.Context) ([]*Entry, error) {
	j.mu.RLock()
	if j.closed {
		j.mu.RUnlock()
		return nil, ErrJournalClosed
	}
	j.mu.RUnlock()

	var entries []*Entry

	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixPending)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			item := it.Item()
			var entry Entry
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			})
			if err != nil {
				logging.Warn().Err(err).Str("key", string(item.Key())).Msg("Journal failed to unmarshal entry")
				continue
			}

			entries = append(entries, &entry)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate pending entries: %w", err)
	}

	return entries, nil
}

// Stats returns journal counters.
func (j *BadgerJournal) Stats() Stats {
	return Stats{
		PendingCount:  j.pending.Load(),
		TotalWrites:   j.totalWrites.Load(),
		TotalConfirms: j.totalConfirms.Load(),
	}
}

// RunMaintenance runs value-log garbage collection on the configured
// interval until the context is canceled. Intended to run under the
// supervision tree.
func (j *BadgerJournal) RunMaintenance(ctx context.Context) error {
	ticker := time.NewTicker(j.config.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			// ErrNoRewrite just means there was nothing worth collecting.
			err := j.db.RunValueLogGC(j.config.GCRatio)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				logging.Warn().Err(err).Msg("Journal value-log GC failed")
			}
		}
	}
}

// Close flushes and closes the underlying BadgerDB.
func (j *BadgerJournal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	j.mu.Unlock()

	return j.db.Close()
}
