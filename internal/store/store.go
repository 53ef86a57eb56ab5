// TidyMatch - Cleaner Matching and Recommendation Engine
// Copyright 2026 TidyMatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tidymatch/tidymatch

// Package store provides read-only access to marketplace snapshots:
// jobs, cleaners, properties, and reviews.
//
// The matching core owns no domain persistence. The snapshot store reads
// records the web application layer has already written; the DuckDB
// implementation attaches to an exported snapshot database, and the
// in-memory implementation backs tests and the trainer's fixture mode.
package store

import (
	"context"
	"errors"

	"github.com/tidymatch/tidymatch/internal/domain"
)

// ErrNotFound indicates the requested record does not exist in the
// snapshot.
var ErrNotFound = errors.New("record not found")

// SnapshotStore is the read-only lookup surface the core depends on.
// All implementations must be safe for concurrent use.
type SnapshotStore interface {
	// GetJob returns a job by ID, or ErrNotFound.
	GetJob(ctx context.Context, id int64) (*domain.Job, error)

	// GetCleaner returns a cleaner by ID, or ErrNotFound.
	GetCleaner(ctx context.Context, id int64) (*domain.Cleaner, error)

	// GetProperty returns a property by ID, or ErrNotFound.
	GetProperty(ctx context.Context, id int64) (*domain.Property, error)

	// GetReviewStats returns aggregated review signals for a cleaner.
	// A cleaner with no reviews yields zero-valued stats.
	GetReviewStats(ctx context.Context, cleanerID int64) (domain.ReviewStats, error)

	// GetReviewComments returns up to limit recent non-empty review
	// comments for a cleaner, newest first.
	GetReviewComments(ctx context.Context, cleanerID int64, limit int) ([]string, error)

	// ListCompletedJobs returns historical completed jobs with a known
	// rating, the raw material for dataset building.
	ListCompletedJobs(ctx context.Context) ([]domain.CompletedJob, error)

	// ListCleanerIDs returns up to limit candidate cleaner IDs.
	ListCleanerIDs(ctx context.Context, limit int) ([]int64, error)

	// ListOpenJobIDs returns up to limit open (unassigned) job IDs.
	ListOpenJobIDs(ctx context.Context, limit int) ([]int64, error)
}
