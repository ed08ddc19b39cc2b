// UAScope - HTTP Traffic Threat Monitoring
// Copyright 2026 UAScope Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/uascope/uascope

package pipeline

import (
	"errors"
	"fmt"
)

// Error kinds for the ingest path. All are recoverable at request scope:
// the pipeline rejects or degrades the single event and keeps serving.
var (
	// ErrValidation marks a malformed or incomplete submission.
	ErrValidation = errors.New("validation error")

	// ErrStorage marks a persistence failure; the journal entry stays
	// pending for replay.
	ErrStorage = errors.New("storage error")
)

// validationError wraps a cause as an ErrValidation.
func validationError(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

// storageError wraps a cause as an ErrStorage.
func storageError(err error) error {
	return fmt.Errorf("%w: %v", ErrStorage, err)
}
