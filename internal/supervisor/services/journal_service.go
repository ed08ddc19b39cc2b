// UAScope - HTTP Traffic Threat Monitoring
// Copyright 2026 UAScope Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/uascope/uascope

package services

import (
	"context"
)

// JournalMaintainer matches *wal.BadgerJournal's RunMaintenance method
// without importing the wal package.
type JournalMaintainer interface {
	RunMaintenance(ctx context.Context) error
}

// JournalMaintenanceService wraps the write-ahead journal's value log
// garbage collection loop as a supervised service.
type JournalMaintenanceService struct {
	journal JournalMaintainer
	name    string
}

// NewJournalMaintenanceService creates a new journal maintenance wrapper.
func NewJournalMaintenanceService(journal JournalMaintainer) *JournalMaintenanceService {
	return &JournalMaintenanceService{
		journal: journal,
		name:    "journal-maintenance",
	}
}

// Serve implements suture.Service.
func (s *JournalMaintenanceService) Serve(ctx context.Context) error {
	return s.journal.RunMaintenance(ctx)
}

// String implements fmt.Stringer; suture uses it in log messages.
func (s *JournalMaintenanceService) String() string {
	return s.name
}
