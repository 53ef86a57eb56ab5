// TidyMatch - Cleaner Matching and Recommendation Engine
// Copyright 2026 TidyMatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tidymatch/tidymatch

// Package serving runs inference over a loaded model artifact. The
// artifact is held behind an atomic pointer: requests in flight keep
// scoring against the version they started with while a reload swaps in
// a newer one, and a process that never managed to load an artifact
// stays up and reports itself unhealthy instead of crashing.
package serving

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tidymatch/tidymatch/internal/artifact"
	"github.com/tidymatch/tidymatch/internal/feature"
	"github.com/tidymatch/tidymatch/internal/metrics"
	"github.com/tidymatch/tidymatch/internal/model"
)

// ErrModelUnavailable indicates no artifact is loaded.
var ErrModelUnavailable = errors.New("model artifact not loaded")

// ScoringError reports a malformed scoring request.
type ScoringError struct {
	Reason string
}

// Error implements the error interface.
func (e *ScoringError) Error() string {
	return "scoring request rejected: " + e.Reason
}

// Prediction is one scored request.
type Prediction struct {
	// Score is the raw model output in [0,1].
	Score float64 `json:"match_score"`

	// Rating is the score denormalized to the original rating scale
	// using the artifact's target bounds.
	Rating float64 `json:"denormalized_rating"`

	// LatencyMS is the wall-clock inference time.
	LatencyMS float64 `json:"inference_time_ms"`
}

// Health reports the predictor's load state.
type Health struct {
	Loaded          bool      `json:"loaded"`
	ArtifactVersion int       `json:"artifact_version,omitempty"`
	LoadedAt        time.Time `json:"loaded_at,omitempty"`
	UptimeSeconds   float64   `json:"uptime_seconds"`
}

// loaded pairs a rebuilt model with the artifact it came from.
type loaded struct {
	model    *model.Model
	bundle   *artifact.ModelArtifact
	meta     *artifact.Metadata
	loadedAt time.Time
}

// Predictor serves predictions from the current artifact.
type Predictor struct {
	current   atomic.Pointer[loaded]
	startedAt time.Time
	logger    zerolog.Logger
}

// NewPredictor creates an empty predictor. Until an artifact is loaded,
// PredictOne fails with ErrModelUnavailable.
func NewPredictor(logger zerolog.Logger) *Predictor {
	return &Predictor{
		startedAt: time.Now(),
		logger:    logger.With().Str("component", "serving").Logger(),
	}
}

// LoadFromStore loads an artifact version (0 for latest) and atomically
// swaps it in. On failure the previous artifact, if any, keeps serving.
func (p *Predictor) LoadFromStore(store *artifact.Store, name string, version int) error {
	bundle, meta, err := store.Load(name, version)
	if err != nil {
		return fmt.Errorf("load artifact: %w", err)
	}
	return p.install(bundle, meta)
}

// install rebuilds the model from a bundle and swaps it in.
func (p *Predictor) install(bundle *artifact.ModelArtifact, meta *artifact.Metadata) error {
	m, err := model.FromWeights(bundle.Weights)
	if err != nil {
		return fmt.Errorf("rebuild model: %w", err)
	}

	p.current.Store(&loaded{
		model:    m,
		bundle:   bundle,
		meta:     meta,
		loadedAt: time.Now(),
	})
	metrics.ArtifactVersion.Set(float64(meta.Version))
	p.logger.Info().
		Int("version", meta.Version).
		Str("run_id", meta.RunID).
		Msg("Model artifact loaded")
	return nil
}

// PredictOne scores a single raw feature vector. The vector is
// standardized with the artifact's fitted transform before it reaches
// the model; the caller passes extractor output unchanged.
func (p *Predictor) PredictOne(vec feature.FeatureVector) (Prediction, error) {
	cur := p.current.Load()
	if cur == nil {
		metrics.PredictionsTotal.WithLabelValues("unavailable").Inc()
		return Prediction{}, ErrModelUnavailable
	}
	if len(vec) != feature.VectorLen {
		metrics.PredictionsTotal.WithLabelValues("rejected").Inc()
		return Prediction{}, &ScoringError{
			Reason: fmt.Sprintf("feature vector length %d, want %d", len(vec), feature.VectorLen),
		}
	}

	start := time.Now()

	row := make([]float64, len(vec))
	copy(row, vec)
	if err := cur.bundle.Standardizer.TransformVector(row); err != nil {
		metrics.PredictionsTotal.WithLabelValues("rejected").Inc()
		return Prediction{}, &ScoringError{Reason: err.Error()}
	}

	score, err := cur.model.Predict(row)
	if err != nil {
		metrics.PredictionsTotal.WithLabelValues("error").Inc()
		return Prediction{}, fmt.Errorf("predict: %w", err)
	}

	elapsed := time.Since(start)
	metrics.InferenceLatency.Observe(elapsed.Seconds())
	metrics.PredictionsTotal.WithLabelValues("ok").Inc()

	return Prediction{
		Score:     score,
		Rating:    cur.bundle.Bounds.Denormalize(score),
		LatencyMS: float64(elapsed.Microseconds()) / 1000,
	}, nil
}

// BatchItem is one result in a batch prediction. Requests fail
// independently: a malformed vector sets Err without affecting its
// neighbors.
type BatchItem struct {
	Prediction Prediction
	Err        error
}

// PredictBatch scores each vector independently. It fails as a whole
// only when no artifact is loaded.
func (p *Predictor) PredictBatch(vecs []feature.FeatureVector) ([]BatchItem, error) {
	if p.current.Load() == nil {
		return nil, ErrModelUnavailable
	}
	items := make([]BatchItem, len(vecs))
	for i, vec := range vecs {
		items[i].Prediction, items[i].Err = p.PredictOne(vec)
	}
	return items, nil
}

// Health reports load state, artifact version, and uptime.
func (p *Predictor) Health() Health {
	h := Health{UptimeSeconds: time.Since(p.startedAt).Seconds()}
	if cur := p.current.Load(); cur != nil {
		h.Loaded = true
		h.ArtifactVersion = cur.meta.Version
		h.LoadedAt = cur.loadedAt
	}
	return h
}

// Version returns the loaded artifact version.
func (p *Predictor) Version() (int, bool) {
	cur := p.current.Load()
	if cur == nil {
		return 0, false
	}
	return cur.meta.Version, true
}

// Maps returns the loaded artifact's identifier maps. The orchestrator
// builds its extractor around these so online identity resolution
// matches the training vocabulary.
func (p *Predictor) Maps() (feature.Maps, bool) {
	cur := p.current.Load()
	if cur == nil {
		return feature.Maps{}, false
	}
	return cur.bundle.Maps(), true
}
