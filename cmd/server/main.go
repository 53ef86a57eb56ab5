// TidyMatch - Cleaner Matching and Recommendation Engine
// Copyright 2026 TidyMatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tidymatch/tidymatch

// Package main is the entry point for the TidyMatch scoring server.
//
// The server ranks cleaner candidates for cleaning jobs (and open jobs
// for cleaners) using a hybrid neural model with a deterministic
// rule-based fallback. Startup order:
//
//  1. Configuration: Koanf v2 layered sources (defaults, YAML file,
//     environment variables)
//  2. Snapshot store: read-only DuckDB export of the marketplace data
//  3. Artifact store: versioned model artifacts on disk
//  4. Predictor: loads the latest artifact; a missing artifact is not
//     fatal because ranking degrades to the rule-based scorer
//  5. Encoder: optional external sentence encoder with a BadgerDB
//     embedding cache
//  6. HTTP API and the artifact reloader, supervised by a suture tree
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger graceful shutdown: the HTTP server stops
// accepting connections and waits for in-flight requests, then the
// supervision tree unwinds.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tidymatch/tidymatch/internal/api"
	"github.com/tidymatch/tidymatch/internal/artifact"
	"github.com/tidymatch/tidymatch/internal/cache"
	"github.com/tidymatch/tidymatch/internal/config"
	"github.com/tidymatch/tidymatch/internal/feature"
	"github.com/tidymatch/tidymatch/internal/logging"
	"github.com/tidymatch/tidymatch/internal/recommend"
	"github.com/tidymatch/tidymatch/internal/serving"
	"github.com/tidymatch/tidymatch/internal/store"
	"github.com/tidymatch/tidymatch/internal/supervisor"
)

func main() {
	configPath := flag.String("config", "", "path to config file (overrides the default search)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logging.Init(cfg.Logging.ToLogging())
	log := logging.With().Str("component", "server").Logger()

	snapshots, err := store.NewDuckDBStore(cfg.Database.ToDuckDB())
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Database.Path).Msg("Failed to open snapshot database")
	}
	defer func() {
		if err := snapshots.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close snapshot database")
		}
	}()

	artifacts, err := artifact.NewStore(cfg.Artifacts.Dir)
	if err != nil {
		log.Fatal().Err(err).Str("dir", cfg.Artifacts.Dir).Msg("Failed to open artifact store")
	}

	predictor := serving.NewPredictor(logging.Logger())
	if err := predictor.LoadFromStore(artifacts, cfg.Artifacts.Name, 0); err != nil {
		log.Warn().Err(err).
			Str("name", cfg.Artifacts.Name).
			Msg("No model artifact loaded; serving rule-based fallback until one appears")
	}

	encoder, closeEncoder, err := buildEncoder(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build encoder")
	}
	defer closeEncoder()

	orchestrator, err := recommend.NewOrchestrator(cfg.Recommend.ToRecommend(), snapshots, predictor, encoder, logging.Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build orchestrator")
	}

	handler := api.NewHandler(snapshots, predictor, orchestrator, logging.Logger())
	router := api.NewRouter(api.RouterConfig{
		CORSOrigins:     cfg.Server.CORSOrigins,
		RateLimitReqs:   cfg.Server.RateLimitReqs,
		RateLimitWindow: cfg.Server.RateLimitWindow,
		Timeout:         cfg.Server.Timeout,
	}, handler)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddAPIService(supervisor.NewHTTPService(srv, 10*time.Second))
	if cfg.Serving.ReloadInterval > 0 {
		tree.AddBackgroundService(serving.NewReloader(artifacts, predictor, cfg.Artifacts.Name, cfg.Serving.ReloadInterval, logging.Logger()))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("addr", srv.Addr).
		Bool("model_loaded", predictor.Health().Loaded).
		Msg("TidyMatch server starting")

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("Supervision tree failed")
	}
	log.Info().Msg("TidyMatch server stopped")
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// buildEncoder assembles the review-text encoder: the external HTTP
// encoder when enabled (wrapped in the embedding cache when that is
// enabled too), ZeroEncoder otherwise.
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
