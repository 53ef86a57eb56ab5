// TidyMatch - Cleaner Matching and Recommendation Engine
// Copyright 2026 TidyMatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tidymatch/tidymatch

package serving

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/tidymatch/tidymatch/internal/artifact"
	"github.com/tidymatch/tidymatch/internal/feature"
	"github.com/tidymatch/tidymatch/internal/model"
	"github.com/tidymatch/tidymatch/internal/preprocess"
)

// seedStore writes one artifact version into a fresh store.
func seedStore(t *testing.T) *artifact.Store {
	t.Helper()

	store, err := artifact.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	saveVersion(t, store)
	return store
}

func saveVersion(t *testing.T, store *artifact.Store) {
	t.Helper()

	cfg := model.Config{
		NumClients:           4,
		NumCleaners:          4,
		NumPropertyTypes:     3,
		EmbeddingDim:         2,
		PropertyEmbeddingDim: 2,
		CollabHidden:         []int{3},
		ContentHidden:        []int{3},
		Seed:                 11,
	}
	m, err := model.New(cfg)
	if err != nil {
		t.Fatalf("model.New() error = %v", err)
	}

	// Identity standardizer over the full vector width.
	std, err := preprocess.FitStandardizer([][]float64{
		make([]float64, feature.VectorLen),
		make([]float64, feature.VectorLen),
	}, nil)
	if err != nil {
		t.Fatalf("FitStandardizer() error = %v", err)
	}

	a := &artifact.ModelArtifact{
		Weights:       m.Snapshot(),
		Clients:       feature.NewIdentifierMap([]int64{1, 2, 3}),
		Cleaners:      feature.NewIdentifierMap([]int64{5, 6, 7}),
		PropertyTypes: feature.NewIdentifierMap([]int64{0, 1}),
		Standardizer:  std,
		Bounds:        preprocess.TargetBounds{Min: 1, Max: 5},
		Preprocess:    preprocess.DefaultConfig(),
	}
	if _, err := store.Save(artifact.DefaultName, a, artifact.Metadata{RunID: "test"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
}

func validVector() feature.FeatureVector {
	v := feature.NewFeatureVector()
	v[feature.IdxClient] = 1
	v[feature.IdxCleaner] = 2
	v[feature.IdxPropertyType] = 1
	for i := feature.OffContinuous; i < feature.OffPropertyType; i++ {
		v[i] = 0.5
	}
	return v
}

func TestPredictOneUnavailable(t *testing.T) {
	t.Parallel()

	p := NewPredictor(zerolog.Nop())
	_, err := p.PredictOne(validVector())
	if !errors.Is(err, ErrModelUnavailable) {
		t.Errorf("PredictOne() error = %v, want ErrModelUnavailable", err)
	}

	h := p.Health()
	if h.Loaded {
		t.Error("Health().Loaded = true with no artifact")
	}
}

func TestPredictOne(t *testing.T) {
	t.Parallel()

	store := seedStore(t)
	p := NewPredictor(zerolog.Nop())
	if err := p.LoadFromStore(store, artifact.DefaultName, 0); err != nil {
		t.Fatalf("LoadFromStore() error = %v", err)
	}

	pred, err := p.PredictOne(validVector())
	if err != nil {
		t.Fatalf("PredictOne() error = %v", err)
	}
	if pred.Score < 0 || pred.Score > 1 {
		t.Errorf("Score = %g, want in [0,1]", pred.Score)
	}
	if pred.Rating < 1 || pred.Rating > 5 {
		t.Errorf("Rating = %g, want in target bounds [1,5]", pred.Rating)
	}
	if pred.LatencyMS < 0 {
		t.Errorf("LatencyMS = %g, want >= 0", pred.LatencyMS)
	}

	h := p.Health()
	if !h.Loaded || h.ArtifactVersion != 1 {
		t.Errorf("Health() = %+v, want loaded v1", h)
	}
}

func TestPredictOneDoesNotMutateInput(t *testing.T) {
	t.Parallel()

	store := seedStore(t)
	p := NewPredictor(zerolog.Nop())
	if err := p.LoadFromStore(store, artifact.DefaultName, 0); err != nil {
		t.Fatalf("LoadFromStore() error = %v", err)
	}

	vec := validVector()
	want := make([]float64, len(vec))
	copy(want, vec)

	if _, err := p.PredictOne(vec); err != nil {
		t.Fatalf("PredictOne() error = %v", err)
	}
	for i := range vec {
		if vec[i] != want[i] {
			t.Fatalf("input vector mutated at %d: %g -> %g", i, want[i], vec[i])
		}
	}
}

func TestPredictOneWrongLength(t *testing.T) {
	t.Parallel()

	store := seedStore(t)
	p := NewPredictor(zerolog.Nop())
	if err := p.LoadFromStore(store, artifact.DefaultName, 0); err != nil {
		t.Fatalf("LoadFromStore() error = %v", err)
	}

	_, err := p.PredictOne(make(feature.FeatureVector, 12))
	var scErr *ScoringError
	if !errors.As(err, &scErr) {
		t.Errorf("PredictOne() error = %v, want *ScoringError", err)
	}
}

func TestPredictBatchIndependentFailures(t *testing.T) {
	t.Parallel()

	store := seedStore(t)
	p := NewPredictor(zerolog.Nop())
	if err := p.LoadFromStore(store, artifact.DefaultName, 0); err != nil {
		t.Fatalf("LoadFromStore() error = %v", err)
	}

	items, err := p.PredictBatch([]feature.FeatureVector{
		validVector(),
		make(feature.FeatureVector, 3),
		validVector(),
	})
	if err != nil {
		t.Fatalf("PredictBatch() error = %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("len(items) = %d, want 3", len(items))
	}
	if items[0].Err != nil || items[2].Err != nil {
		t.Errorf("valid items errored: %v, %v", items[0].Err, items[2].Err)
	}
	var scErr *ScoringError
	if !errors.As(items[1].Err, &scErr) {
		t.Errorf("items[1].Err = %v, want *ScoringError", items[1].Err)
	}
}

func TestPredictBatchUnavailable(t *testing.T) {
	t.Parallel()

	p := NewPredictor(zerolog.Nop())
	if _, err := p.PredictBatch([]feature.FeatureVector{validVector()}); !errors.Is(err, ErrModelUnavailable) {
		t.Errorf("PredictBatch() error = %v, want ErrModelUnavailable", err)
	}
}

func TestHotSwap(t *testing.T) {
	t.Parallel()

	store := seedStore(t)
	p := NewPredictor(zerolog.Nop())
	if err := p.LoadFromStore(store, artifact.DefaultName, 0); err != nil {
		t.Fatalf("LoadFromStore() error = %v", err)
	}
	if v, _ := p.Version(); v != 1 {
		t.Fatalf("Version() = %d, want 1", v)
	}

	saveVersion(t, store)
	if err := p.LoadFromStore(store, artifact.DefaultName, 0); err != nil {
		t.Fatalf("LoadFromStore() v2 error = %v", err)
	}
	if v, _ := p.Version(); v != 2 {
		t.Errorf("Version() after swap = %d, want 2", v)
	}

	if _, err := p.PredictOne(validVector()); err != nil {
		t.Errorf("PredictOne() after swap error = %v", err)
	}
}

func TestReloaderPicksUpNewVersion(t *testing.T) {
	t.Parallel()

	store := seedStore(t)
	p := NewPredictor(zerolog.Nop())
	r := NewReloader(store, p, artifact.DefaultName, 0, zerolog.Nop())

	// First check loads the initial version into an empty predictor.
	r.checkOnce()
	if v, ok := p.Version(); !ok || v != 1 {
		t.Fatalf("Version() after first check = %d, %v, want 1, true", v, ok)
	}

	// No new version: nothing changes.
	r.checkOnce()
	if v, _ := p.Version(); v != 1 {
		t.Fatalf("Version() = %d, want 1", v)
	}

	saveVersion(t, store)
	r.checkOnce()
	if v, _ := p.Version(); v != 2 {
		t.Errorf("Version() after new save = %d, want 2", v)
	}
}

// The trainer writes artifacts through its own store instance in a
// separate process; the reloader must still observe them.
func TestReloaderSeesExternalWrites(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	trainerStore, err := artifact.NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	saveVersion(t, trainerStore)

	serverStore, err := artifact.NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	p := NewPredictor(zerolog.Nop())
	r := NewReloader(serverStore, p, artifact.DefaultName, 0, zerolog.Nop())

	r.checkOnce()
	if v, ok := p.Version(); !ok || v != 1 {
		t.Fatalf("Version() after first check = %d, %v, want 1, true", v, ok)
	}

	// v2 written through the other store instance only.
	saveVersion(t, trainerStore)
	r.checkOnce()
	if v, _ := p.Version(); v != 2 {
		t.Errorf("Version() after external save = %d, want 2", v)
	}
}

func TestMaps(t *testing.T) {
	t.Parallel()

	p := NewPredictor(zerolog.Nop())
	if _, ok := p.Maps(); ok {
		t.Error("Maps() ok with no artifact")
	}

	store := seedStore(t)
	if err := p.LoadFromStore(store, artifact.DefaultName, 0); err != nil {
		t.Fatalf("LoadFromStore() error = %v", err)
	}
	maps, ok := p.Maps()
	if !ok {
		t.Fatal("Maps() not ok after load")
	}
	if !maps.Cleaners.Contains(6) {
		t.Error("loaded maps missing cleaner 6")
	}
}
