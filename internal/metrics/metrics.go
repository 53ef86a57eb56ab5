// TidyMatch - Cleaner Matching and Recommendation Engine
// Copyright 2026 TidyMatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tidymatch/tidymatch

// Package metrics defines the Prometheus instrumentation for the
// scoring service. All collectors are registered on the default
// registry and exposed via the /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// InferenceLatency observes per-prediction wall-clock latency.
	InferenceLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tidymatch",
		Subsystem: "serving",
		Name:      "inference_latency_seconds",
		Help:      "Wall-clock latency of single predictions.",
		Buckets:   []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .025, .05, .1, .25},
	})

	// PredictionsTotal counts predictions by outcome.
	PredictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tidymatch",
		Subsystem: "serving",
		Name:      "predictions_total",
		Help:      "Predictions served, labeled by outcome.",
	}, []string{"outcome"})

	// ArtifactVersion reports the currently loaded artifact version.
	ArtifactVersion = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tidymatch",
		Subsystem: "serving",
		Name:      "artifact_version",
		Help:      "Version of the model artifact currently serving.",
	})

	// ArtifactReloads counts hot reload attempts by outcome.
	ArtifactReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tidymatch",
		Subsystem: "serving",
		Name:      "artifact_reloads_total",
		Help:      "Artifact hot reload attempts, labeled by outcome.",
	}, []string{"outcome"})

	// RecommendRequests counts orchestrator rankings by scoring method.
	RecommendRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tidymatch",
		Subsystem: "recommend",
		Name:      "requests_total",
		Help:      "Ranking requests, labeled by scoring method used.",
	}, []string{"method"})

	// FallbackTotal counts per-candidate rule-based fallbacks by reason.
	FallbackTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tidymatch",
		Subsystem: "recommend",
		Name:      "fallback_total",
		Help:      "Candidates scored by the rule-based fallback, labeled by reason.",
	}, []string{"reason"})

	// ExtractionFailures counts feature extraction failures during
	// candidate ranking.
	ExtractionFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tidymatch",
		Subsystem: "recommend",
		Name:      "extraction_failures_total",
		Help:      "Feature extraction failures during candidate ranking.",
	})

	// EncoderCacheLookups counts embedding cache lookups by result.
	EncoderCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tidymatch",
		Subsystem: "cache",
		Name:      "encoder_lookups_total",
		Help:      "Embedding cache lookups, labeled hit or miss.",
	}, []string{"result"})
)
