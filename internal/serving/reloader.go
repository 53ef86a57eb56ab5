// TidyMatch - Cleaner Matching and Recommendation Engine
// Copyright 2026 TidyMatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tidymatch/tidymatch

package serving

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tidymatch/tidymatch/internal/artifact"
	"github.com/tidymatch/tidymatch/internal/metrics"
)

// Reloader polls the artifact store and hot-swaps the predictor to a
// newer version when one appears. It implements suture.Service.
type Reloader struct {
	store     *artifact.Store
	predictor *Predictor
	name      string
	interval  time.Duration
	logger    zerolog.Logger
}

// NewReloader creates a reloader. A non-positive interval defaults to
// 30 seconds.
func NewReloader(store *artifact.Store, predictor *Predictor, name string, interval time.Duration, logger zerolog.Logger) *Reloader {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Reloader{
		store:     store,
		predictor: predictor,
		name:      name,
		interval:  interval,
		logger:    logger.With().Str("component", "reloader").Logger(),
	}
}

// Serve polls until the context is cancelled. A failed reload keeps the
// current artifact serving and retries on the next tick.
func (r *Reloader) Serve(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.checkOnce()
		}
	}
}

// checkOnce swaps to the latest store version when it is newer than the
// one serving. The store is rescanned first: new versions come from the
// trainer, a separate process this store instance never sees Save from.
func (r *Reloader) checkOnce() {
	if err := r.store.Rescan(); err != nil {
		r.logger.Warn().Err(err).Msg("Artifact directory rescan failed, keeping current version")
		return
	}
	latest, ok := r.store.LatestVersion(r.name)
	if !ok {
		return
	}
	current, loaded := r.predictor.Version()
	if loaded && latest <= current {
		return
	}

	if err := r.predictor.LoadFromStore(r.store, r.name, latest); err != nil {
		metrics.ArtifactReloads.WithLabelValues("error").Inc()
		r.logger.Error().Err(err).
			Int("version", latest).
			Msg("Artifact reload failed, keeping current version")
		return
	}
	metrics.ArtifactReloads.WithLabelValues("ok").Inc()
	r.logger.Info().
		Int("from_version", current).
		Int("to_version", latest).
		Msg("Artifact hot reload complete")
}

// String names the service for the supervisor.
func (r *Reloader) String() string { return "artifact-reloader" }
