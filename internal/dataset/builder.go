// TidyMatch - Cleaner Matching and Recommendation Engine
// Copyright 2026 TidyMatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tidymatch/tidymatch

// Package dataset assembles the labeled training table from historical
// completed jobs. It is the offline counterpart of the feature
// extractor: the same Extractor that serves online requests fills every
// row here, so offline and online feature values cannot drift.
package dataset

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/tidymatch/tidymatch/internal/domain"
	"github.com/tidymatch/tidymatch/internal/feature"
	"github.com/tidymatch/tidymatch/internal/store"
)

// Column naming convention shared with the preprocessing pipeline.
// Metadata columns carry the MetaPrefix so downstream splitting keys on
// names, never on positions.
const (
	MetaPrefix  = "meta_"
	ColJobID    = MetaPrefix + "job_id"
	ColReviewID = MetaPrefix + "review_id"
	ColTarget   = "target"
)

// Header returns the full dataset header: metadata, target, then the
// feature columns in schema order.
func Header() []string {
	cols := make([]string, 0, 3+feature.VectorLen)
	cols = append(cols, ColJobID, ColReviewID, ColTarget)
	cols = append(cols, feature.ColumnNames()...)
	return cols
}

// CollectMaps builds the frozen identifier maps for a training corpus.
// Client and cleaner vocabularies come from the completed jobs; the
// property-type vocabulary is the closed domain enumeration.
func CollectMaps(completed []domain.CompletedJob) feature.Maps {
	clientIDs := make([]int64, 0, len(completed))
	cleanerIDs := make([]int64, 0, len(completed))
	for _, cj := range completed {
		clientIDs = append(clientIDs, cj.Job.ClientID)
		cleanerIDs = append(cleanerIDs, cj.CleanerID)
	}

	typeIDs := make([]int64, 0, len(domain.AllPropertyTypes))
	for _, pt := range domain.AllPropertyTypes {
		typeIDs = append(typeIDs, int64(pt.OneHotIndex()))
	}

	return feature.Maps{
		Clients:       feature.NewIdentifierMap(clientIDs),
		Cleaners:      feature.NewIdentifierMap(cleanerIDs),
		PropertyTypes: feature.NewIdentifierMap(typeIDs),
	}
}

// BuildResult summarizes one dataset build.
type BuildResult struct {
	// Rows is the number of labeled rows written.
	Rows int

	// Skipped is the number of completed jobs dropped because feature
	// extraction or a cleaner lookup failed.
	Skipped int
}

// Builder writes the labeled dataset.
type Builder struct {
	store     store.SnapshotStore
	extractor *feature.Extractor
	logger    zerolog.Logger
}

// NewBuilder creates a dataset builder around an extractor whose
// identifier maps were built from the same corpus (see CollectMaps).
func NewBuilder(st store.SnapshotStore, extractor *feature.Extractor, logger zerolog.Logger) *Builder {
	return &Builder{
		store:     st,
		extractor: extractor,
		logger:    logger.With().Str("component", "dataset").Logger(),
	}
}

// Build extracts features for every completed job and writes the CSV
// dataset to w. Rows that fail extraction are skipped and counted; an
// I/O failure aborts the build.
func (b *Builder) Build(ctx context.Context, completed []domain.CompletedJob, w io.Writer) (BuildResult, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header()); err != nil {
		return BuildResult{}, fmt.Errorf("write dataset header: %w", err)
	}

	var res BuildResult
	record := make([]string, 3+feature.VectorLen)

	for _, cj := range completed {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		cleaner, err := b.store.GetCleaner(ctx, cj.CleanerID)
		if err != nil {
			b.logger.Warn().Err(err).
				Int64("job_id", cj.Job.ID).
				Int64("cleaner_id", cj.CleanerID).
				Msg("Skipping row: cleaner lookup failed")
			res.Skipped++
			continue
		}

		vec, err := b.extractor.Extract(ctx, &cj.Job, cleaner)
		if err != nil {
			b.logger.Warn().Err(err).
				Int64("job_id", cj.Job.ID).
				Int64("cleaner_id", cj.CleanerID).
				Msg("Skipping row: feature extraction failed")
			res.Skipped++
			continue
		}

		record[0] = strconv.FormatInt(cj.Job.ID, 10)
		record[1] = strconv.FormatInt(cj.Review.ID, 10)
		record[2] = strconv.FormatFloat(cj.Review.Rating, 'g', -1, 64)
		for i, x := range vec {
			record[3+i] = strconv.FormatFloat(x, 'g', -1, 64)
		}
		if err := cw.Write(record); err != nil {
			return res, fmt.Errorf("write dataset row for job %d: %w", cj.Job.ID, err)
		}
		res.Rows++
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return res, fmt.Errorf("flush dataset: %w", err)
	}

	b.logger.Info().
		Int("rows", res.Rows).
		Int("skipped", res.Skipped).
		Msg("Dataset build complete")
	return res, nil
}

// BuildFile lists completed jobs from the snapshot store and writes the
// dataset to path.
func (b *Builder) BuildFile(ctx context.Context, path string) (BuildResult, error) {
	completed, err := b.store.ListCompletedJobs(ctx)
	if err != nil {
		return BuildResult{}, fmt.Errorf("list completed jobs: %w", err)
	}
	if len(completed) == 0 {
		return BuildResult{}, fmt.Errorf("no completed jobs with outcomes in snapshot")
	}

	f, err := os.Create(path)
	if err != nil {
		return BuildResult{}, fmt.Errorf("create dataset file: %w", err)
	}

	res, err := b.Build(ctx, completed, f)
	if err != nil {
		_ = f.Close() //nolint:errcheck // build error takes precedence
		return res, err
	}
	if err := f.Close(); err != nil {
		return res, fmt.Errorf("close dataset file: %w", err)
	}
	return res, nil
}
