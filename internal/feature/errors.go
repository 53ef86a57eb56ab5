// TidyMatch - Cleaner Matching and Recommendation Engine
// Copyright 2026 TidyMatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tidymatch/tidymatch

package feature

import (
	"errors"
	"fmt"
)

// ExtractionError indicates a structurally invalid job or cleaner record,
// such as a missing property reference. It is never raised for merely
// sparse or cold-start data.
type ExtractionError struct {
	// JobID is the job being extracted.
	JobID int64

	// CleanerID is the candidate cleaner.
	CleanerID int64

	// Reason describes the structural problem.
	Reason string

	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extract job %d cleaner %d: %s: %v", e.JobID, e.CleanerID, e.Reason, e.Err)
	}
	return fmt.Sprintf("extract job %d cleaner %d: %s", e.JobID, e.CleanerID, e.Reason)
}

// Unwrap returns the underlying error.
func (e *ExtractionError) Unwrap() error { return e.Err }

// IsExtractionError reports whether err is an ExtractionError.
func IsExtractionError(err error) bool {
	var ee *ExtractionError
	return errors.As(err, &ee)
}
