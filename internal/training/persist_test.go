// TidyMatch - Cleaner Matching and Recommendation Engine
// Copyright 2026 TidyMatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tidymatch/tidymatch

package training

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/tidymatch/tidymatch/internal/artifact"
	"github.com/tidymatch/tidymatch/internal/feature"
	"github.com/tidymatch/tidymatch/internal/model"
	"github.com/tidymatch/tidymatch/internal/preprocess"
)

func TestPersistVerified(t *testing.T) {
	t.Parallel()

	store, err := artifact.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	m, err := model.New(tinyModelConfig())
	if err != nil {
		t.Fatalf("model.New() error = %v", err)
	}
	std, err := preprocess.FitStandardizer([][]float64{{1, 2}, {3, 4}}, nil)
	if err != nil {
		t.Fatalf("FitStandardizer() error = %v", err)
	}

	a := &artifact.ModelArtifact{
		Weights:       m.Snapshot(),
		Clients:       feature.NewIdentifierMap([]int64{1}),
		Cleaners:      feature.NewIdentifierMap([]int64{2}),
		PropertyTypes: feature.NewIdentifierMap([]int64{0}),
		Standardizer:  std,
		Bounds:        preprocess.TargetBounds{Min: 0, Max: 5},
		Preprocess:    preprocess.DefaultConfig(),
	}

	version, err := PersistVerified(store, artifact.DefaultName, a, artifact.Metadata{Epochs: 3}, zerolog.Nop())
	if err != nil {
		t.Fatalf("PersistVerified() error = %v", err)
	}
	if version != 1 {
		t.Errorf("version = %d, want 1", version)
	}

	loaded, meta, err := store.Load(artifact.DefaultName, version)
	if err != nil {
		t.Fatalf("Load() after persist error = %v", err)
	}
	if meta.Epochs != 3 {
		t.Errorf("meta.Epochs = %d, want 3", meta.Epochs)
	}
	if _, err := model.FromWeights(loaded.Weights); err != nil {
		t.Errorf("FromWeights() error = %v", err)
	}
}

func TestPersistVerifiedRejectsIncomplete(t *testing.T) {
	t.Parallel()

	store, err := artifact.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	a := &artifact.ModelArtifact{}
	if _, err := PersistVerified(store, artifact.DefaultName, a, artifact.Metadata{}, zerolog.Nop()); err == nil {
		t.Error("PersistVerified() accepted incomplete artifact")
	}
	if _, ok := store.LatestVersion(artifact.DefaultName); ok {
		t.Error("incomplete artifact left a version behind")
	}
}
