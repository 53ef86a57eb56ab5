// TidyMatch - Cleaner Matching and Recommendation Engine
// Copyright 2026 TidyMatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tidymatch/tidymatch

// Package main is the offline training entry point.
//
// One run goes end to end: list the completed jobs from the snapshot
// store, freeze the identifier maps, extract features into a labeled
// CSV, preprocess it into train/validation/test partitions, fit the
// hybrid model, and persist the result as a new verified artifact
// version. The serving reloader picks the new version up on its next
// poll, so training never requires a server restart.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tidymatch/tidymatch/internal/artifact"
	"github.com/tidymatch/tidymatch/internal/cache"
	"github.com/tidymatch/tidymatch/internal/config"
	"github.com/tidymatch/tidymatch/internal/dataset"
	"github.com/tidymatch/tidymatch/internal/domain"
	"github.com/tidymatch/tidymatch/internal/feature"
	"github.com/tidymatch/tidymatch/internal/logging"
	"github.com/tidymatch/tidymatch/internal/model"
	"github.com/tidymatch/tidymatch/internal/preprocess"
	"github.com/tidymatch/tidymatch/internal/store"
	"github.com/tidymatch/tidymatch/internal/training"
)

func main() {
	configPath := flag.String("config", "", "path to config file (overrides the default search)")
	datasetPath := flag.String("dataset", "", "write the labeled dataset CSV here and keep it (default: a temp file, removed)")
	epochs := flag.Int("epochs", 0, "override training.epochs")
	seed := flag.Int64("seed", -1, "override training.seed")
	keep := flag.Int("keep", -1, "override artifacts.keep_versions")
	dryRun := flag.Bool("dry-run", false, "train and report but do not persist an artifact")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}
	if *epochs > 0 {
		cfg.Training.Epochs = *epochs
	}
	if *seed >= 0 {
		cfg.Training.Seed = *seed
	}
	if *keep >= 0 {
		cfg.Artifacts.KeepVersions = *keep
	}

	logging.Init(cfg.Logging.ToLogging())

	// Failures return out of run so the deferred cleanups (snapshot
	// store, cache, temp CSV) unwind before the process exits.
	if err := run(cfg, *datasetPath, *dryRun); err != nil {
		logging.Error().Err(err).Msg("Training run failed")
		os.Exit(1)
	}
}

func run(cfg *config.Config, datasetPath string, dryRun bool) error {
	log := logging.With().Str("component", "trainer").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	snapshots, err := store.NewDuckDBStore(cfg.Database.ToDuckDB())
	if err != nil {
		return fmt.Errorf("open snapshot database %s: %w", cfg.Database.Path, err)
	}
	defer func() {
		if err := snapshots.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close snapshot database")
		}
	}()

	encoder, closeEncoder, err := buildEncoder(cfg)
	if err != nil {
		return fmt.Errorf("build encoder: %w", err)
	}
	defer closeEncoder()

	completed, err := snapshots.ListCompletedJobs(ctx)
	if err != nil {
		return fmt.Errorf("list completed jobs: %w", err)
	}
	if len(completed) == 0 {
		return fmt.Errorf("no completed jobs in the snapshot store; nothing to train on")
	}

	maps := dataset.CollectMaps(completed)
	log.Info().
		Int("completed_jobs", len(completed)).
		Int("clients", maps.Clients.Size()).
		Int("cleaners", maps.Cleaners.Size()).
		Msg("Training corpus loaded")

	extractor := feature.NewExtractor(snapshots, encoder, maps, logging.Logger())
	builder := dataset.NewBuilder(snapshots, extractor, logging.Logger())

	csvPath, cleanupCSV, err := datasetFile(datasetPath)
	if err != nil {
		return fmt.Errorf("create dataset file: %w", err)
	}
	defer cleanupCSV()

	if err := writeDataset(ctx, builder, completed, csvPath, log); err != nil {
		return fmt.Errorf("build dataset %s: %w", csvPath, err)
	}

	pipeline := preprocess.NewPipeline(cfg.Preprocess.ToPreprocess(), logging.Logger())
	result, err := pipeline.RunFile(csvPath)
	if err != nil {
		return fmt.Errorf("preprocess dataset: %w", err)
	}

	m, err := model.New(cfg.Model.ToModel(maps.Clients.Size(), maps.Cleaners.Size(), maps.PropertyTypes.Size()))
	if err != nil {
		return fmt.Errorf("build model: %w", err)
	}

	trainer := training.NewTrainer(cfg.Training.ToTraining(), logging.Logger())
	trainedAt := time.Now()
	report, err := trainer.Train(ctx, m, result)
	if err != nil {
		return fmt.Errorf("train model: %w", err)
	}

	if result.Test.Len() > 0 {
		testLoss, err := training.Evaluate(m, result.Test, cfg.Training.BatchSize)
		if err != nil {
			log.Warn().Err(err).Msg("Test evaluation failed")
		} else {
			log.Info().Float64("test_loss", testLoss).Msg("Held-out evaluation complete")
		}
	}

	if dryRun {
		log.Info().
			Int("epochs_run", report.EpochsRun).
			Int("best_epoch", report.BestEpoch).
			Float64("best_val_loss", report.BestValLoss).
			Dur("duration", report.Duration).
			Msg("Dry run complete; artifact not persisted")
		return nil
	}

	artifacts, err := artifact.NewStore(cfg.Artifacts.Dir)
	if err != nil {
		return fmt.Errorf("open artifact store %s: %w", cfg.Artifacts.Dir, err)
	}

	bundle := &artifact.ModelArtifact{
		Weights:       m.Snapshot(),
		Clients:       maps.Clients,
		Cleaners:      maps.Cleaners,
		PropertyTypes: maps.PropertyTypes,
		Standardizer:  result.Standardizer,
		Bounds:        result.Bounds,
		Preprocess:    result.Config,
	}
	meta := artifact.Metadata{
		RunID:              uuid.NewString(),
		TrainedAt:          trainedAt,
		TrainRows:          result.Train.Len(),
		ValRows:            result.Val.Len(),
		TestRows:           result.Test.Len(),
		Epochs:             report.EpochsRun,
		LearningRate:       cfg.Training.LearningRate,
		BestValLoss:        report.BestValLoss,
		TrainingDurationMS: report.Duration.Milliseconds(),
	}

	version, err := training.PersistVerified(artifacts, cfg.Artifacts.Name, bundle, meta, logging.Logger())
	if err != nil {
		return fmt.Errorf("persist artifact: %w", err)
	}
	if cfg.Artifacts.KeepVersions > 0 {
		if err := artifacts.Prune(cfg.Artifacts.Name, cfg.Artifacts.KeepVersions); err != nil {
			log.Warn().Err(err).Msg("Failed to prune old artifact versions")
		}
	}

	log.Info().
		Str("name", cfg.Artifacts.Name).
		Int("version", version).
		Str("run_id", meta.RunID).
		Int("epochs_run", report.EpochsRun).
		Float64("best_val_loss", report.BestValLoss).
		Dur("duration", report.Duration).
		Msg("Training run complete")
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// buildEncoder assembles the review-text encoder the same way the
// server does, so offline rows carry the same embeddings the online
// extractor would produce.
func buildEncoder(cfg *config.Config) (feature.Encoder, func(), error) {
	noop := func() {}
	if !cfg.Encoder.Enabled {
		return feature.ZeroEncoder{}, noop, nil
	}

	var enc feature.Encoder = feature.NewHTTPEncoder(cfg.Encoder.ToHTTPEncoder(), logging.Logger())
	if !cfg.Cache.Enabled {
		return enc, noop, nil
	}

	embCache, err := cache.Open(cfg.Cache.ToCache(), logging.Logger())
	if err != nil {
		return nil, noop, fmt.Errorf("open embedding cache: %w", err)
	}
	closeCache := func() {
		if err := embCache.Close(); err != nil {
			logging.Error().Err(err).Msg("Failed to close embedding cache")
		}
	}
	return cache.NewCachedEncoder(enc, embCache, logging.Logger()), closeCache, nil
}

// datasetFile resolves where the labeled CSV goes. An explicit path is
// kept for inspection; otherwise a temp file is used and removed.
func datasetFile(path string) (string, func(), error) {
	if path != "" {
		return path, func() {}, nil
	}
	f, err := os.CreateTemp("", "tidymatch-dataset-*.csv")
	if err != nil {
		return "", func() {}, fmt.Errorf("create temp dataset: %w", err)
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		return "", func() {}, fmt.Errorf("close temp dataset: %w", err)
	}
	cleanup := func() {
		_ = os.Remove(name) //nolint:errcheck // best-effort temp cleanup
	}
	return name, cleanup, nil
}

// writeDataset extracts features for every completed job into a CSV at
// path. The completed slice is passed in so the identifier maps and the
// dataset come from the same snapshot listing.
func writeDataset(ctx context.Context, builder *dataset.Builder, completed []domain.CompletedJob, path string, log zerolog.Logger) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil { //nolint:gosec // 0750 is acceptable for dataset output
		return fmt.Errorf("create dataset directory: %w", err)
	}
	f, err := os.Create(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return fmt.Errorf("create dataset file: %w", err)
	}

	res, err := builder.Build(ctx, completed, f)
	if err != nil {
		_ = f.Close() //nolint:errcheck // build error takes precedence
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close dataset file: %w", err)
	}

	log.Info().
		Int("rows", res.Rows).
		Int("skipped", res.Skipped).
		Str("path", path).
		Msg("Dataset written")
	return nil
}
