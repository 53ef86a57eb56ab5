// TidyMatch - Cleaner Matching and Recommendation Engine
// Copyright 2026 TidyMatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tidymatch/tidymatch

package recommend

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tidymatch/tidymatch/internal/artifact"
	"github.com/tidymatch/tidymatch/internal/domain"
	"github.com/tidymatch/tidymatch/internal/feature"
	"github.com/tidymatch/tidymatch/internal/model"
	"github.com/tidymatch/tidymatch/internal/preprocess"
	"github.com/tidymatch/tidymatch/internal/serving"
	"github.com/tidymatch/tidymatch/internal/store"
)

var testOrigin = domain.Location{Latitude: 40.7, Longitude: -74.0}

// fixtureStore builds a job at testOrigin with three cleaners roughly
// 2, 8, and 20 miles away (IDs 1, 2, 3).
func fixtureStore() *store.MemoryStore {
	m := store.NewMemoryStore()
	m.AddProperty(domain.Property{
		ID:       100,
		Type:     domain.PropertyTypeHouse,
		SizeSqft: 1500,
		Location: testOrigin,
	})
	m.AddOpenJob(domain.Job{
		ID:            7,
		ClientID:      900, // not in any training vocabulary
		PropertyID:    100,
		ScheduledAt:   time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
		DurationHours: 2,
		Budget:        100,
	})
	for i, latOffset := range []float64{0.03, 0.12, 0.30} {
		m.AddCleaner(domain.Cleaner{
			ID:                 int64(i + 1),
			HourlyRate:         25,
			ServiceRadiusMiles: 30,
			BaseLocation:       domain.Location{Latitude: testOrigin.Latitude + latOffset, Longitude: testOrigin.Longitude},
			JoinedAt:           time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		})
	}
	return m
}

// loadedPredictor returns a predictor serving a small trained-shape
// artifact whose vocabularies cover the given client and cleaner IDs.
func loadedPredictor(t *testing.T, clientIDs, cleanerIDs []int64) *serving.Predictor {
	t.Helper()

	cfg := model.Config{
		NumClients:           8,
		NumCleaners:          8,
		NumPropertyTypes:     len(domain.AllPropertyTypes) + 1,
		EmbeddingDim:         2,
		PropertyEmbeddingDim: 2,
		CollabHidden:         []int{3},
		ContentHidden:        []int{3},
		Seed:                 23,
	}
	m, err := model.New(cfg)
	if err != nil {
		t.Fatalf("model.New() error = %v", err)
	}
	std, err := preprocess.FitStandardizer([][]float64{
		make([]float64, feature.VectorLen),
		make([]float64, feature.VectorLen),
	}, nil)
	if err != nil {
		t.Fatalf("FitStandardizer() error = %v", err)
	}

	typeIDs := make([]int64, 0, len(domain.AllPropertyTypes))
	for _, pt := range domain.AllPropertyTypes {
		typeIDs = append(typeIDs, int64(pt.OneHotIndex()))
	}

	st, err := artifact.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	a := &artifact.ModelArtifact{
		Weights:       m.Snapshot(),
		Clients:       feature.NewIdentifierMap(clientIDs),
		Cleaners:      feature.NewIdentifierMap(cleanerIDs),
		PropertyTypes: feature.NewIdentifierMap(typeIDs),
		Standardizer:  std,
		Bounds:        preprocess.TargetBounds{Min: 1, Max: 5},
		Preprocess:    preprocess.DefaultConfig(),
	}
	if _, err := st.Save(artifact.DefaultName, a, artifact.Metadata{}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	p := serving.NewPredictor(zerolog.Nop())
	if err := p.LoadFromStore(st, artifact.DefaultName, 0); err != nil {
		t.Fatalf("LoadFromStore() error = %v", err)
	}
	return p
}

func newTestOrchestrator(t *testing.T, cfg Config, st store.SnapshotStore, p *serving.Predictor) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(cfg, st, p, feature.ZeroEncoder{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewOrchestrator() error = %v", err)
	}
	return o
}

// Cold-start scenario: candidates with no collaborative history and no
// review text all fall back to rule-based scoring, ordered by
// increasing distance.
func TestRankCleanersColdStartFallback(t *testing.T) {
	t.Parallel()

	st := fixtureStore()
	// Vocabularies cover other identifiers, not these candidates.
	p := loadedPredictor(t, []int64{500}, []int64{600})
	o := newTestOrchestrator(t, DefaultConfig(), st, p)

	results, err := o.RankCleanersForJob(context.Background(), 7, []int64{3, 1, 2})
	if err != nil {
		t.Fatalf("RankCleanersForJob() error = %v", err)
	}

	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}
	for i, r := range results {
		if r.Method != MethodRuleBased {
			t.Errorf("results[%d].Method = %q, want %q", i, r.Method, MethodRuleBased)
		}
	}
	// Nearest first: cleaner 1 (~2mi), 2 (~8mi), 3 (~20mi).
	for i, wantID := range []int64{1, 2, 3} {
		if results[i].CandidateID != wantID {
			t.Errorf("results[%d].CandidateID = %d, want %d", i, results[i].CandidateID, wantID)
		}
	}
}

func TestRankCleanersModelUnavailable(t *testing.T) {
	t.Parallel()

	st := fixtureStore()
	o := newTestOrchestrator(t, DefaultConfig(), st, serving.NewPredictor(zerolog.Nop()))

	results, err := o.RankCleanersForJob(context.Background(), 7, []int64{1, 2, 3})
	if err != nil {
		t.Fatalf("RankCleanersForJob() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}
	for i, r := range results {
		if r.Method != MethodRuleBased {
			t.Errorf("results[%d].Method = %q, want %q", i, r.Method, MethodRuleBased)
		}
	}
}

func TestRankCleanersNeural(t *testing.T) {
	t.Parallel()

	st := fixtureStore()
	// Vocabularies cover the job's client and every candidate.
	p := loadedPredictor(t, []int64{900}, []int64{1, 2, 3})
	o := newTestOrchestrator(t, DefaultConfig(), st, p)

	results, err := o.RankCleanersForJob(context.Background(), 7, []int64{1, 2, 3})
	if err != nil {
		t.Fatalf("RankCleanersForJob() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}
	for i, r := range results {
		if r.Method != MethodNeural {
			t.Errorf("results[%d].Method = %q, want %q", i, r.Method, MethodNeural)
		}
		if r.Score < 0 || r.Score > 1 {
			t.Errorf("results[%d].Score = %g, want in [0,1]", i, r.Score)
		}
		if r.Rating < 1 || r.Rating > 5 {
			t.Errorf("results[%d].Rating = %g, want in [1,5]", i, r.Rating)
		}
	}
}

func TestRankDeterministicWithTies(t *testing.T) {
	t.Parallel()

	st := store.NewMemoryStore()
	st.AddProperty(domain.Property{ID: 100, Type: domain.PropertyTypeHouse, Location: testOrigin})
	st.AddOpenJob(domain.Job{
		ID: 7, ClientID: 900, PropertyID: 100,
		ScheduledAt: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC), DurationHours: 2, Budget: 100,
	})
	// Identical cleaners: every score ties, so ordering falls back to
	// candidate ID ascending.
	for _, id := range []int64{9, 4, 6} {
		st.AddCleaner(domain.Cleaner{ID: id, HourlyRate: 25, BaseLocation: testOrigin})
	}

	o := newTestOrchestrator(t, DefaultConfig(), st, serving.NewPredictor(zerolog.Nop()))

	first, err := o.RankCleanersForJob(context.Background(), 7, []int64{9, 4, 6})
	if err != nil {
		t.Fatalf("RankCleanersForJob() error = %v", err)
	}
	for i, wantID := range []int64{4, 6, 9} {
		if first[i].CandidateID != wantID {
			t.Errorf("first[%d].CandidateID = %d, want %d", i, first[i].CandidateID, wantID)
		}
	}

	for run := 0; run < 3; run++ {
		again, err := o.RankCleanersForJob(context.Background(), 7, []int64{9, 4, 6})
		if err != nil {
			t.Fatalf("RankCleanersForJob() error = %v", err)
		}
		for i := range first {
			if again[i] != first[i] {
				t.Fatalf("run %d result %d = %+v, want %+v", run, i, again[i], first[i])
			}
		}
	}
}

func TestRankTopKAndMinScore(t *testing.T) {
	t.Parallel()

	st := fixtureStore()
	p := serving.NewPredictor(zerolog.Nop())

	cfg := DefaultConfig()
	cfg.TopK = 2
	o := newTestOrchestrator(t, cfg, st, p)
	results, err := o.RankCleanersForJob(context.Background(), 7, []int64{1, 2, 3})
	if err != nil {
		t.Fatalf("RankCleanersForJob() error = %v", err)
	}
	if len(results) != 2 {
		t.Errorf("len(results) with TopK=2 = %d, want 2", len(results))
	}

	cfg = DefaultConfig()
	cfg.MinScore = 0.99
	o = newTestOrchestrator(t, cfg, st, p)
	results, err = o.RankCleanersForJob(context.Background(), 7, []int64{1, 2, 3})
	if err != nil {
		t.Fatalf("RankCleanersForJob() error = %v", err)
	}
	if len(results) != 0 {
		t.Errorf("len(results) with MinScore=0.99 = %d, want 0 (empty list, not an error)", len(results))
	}
}

// Direct pair scoring bypasses the ranking filters: a valid pair gets
// its score back even when MinScore would drop it from a ranked list.
func TestScoreCleanerForJobIgnoresMinScore(t *testing.T) {
	t.Parallel()

	st := fixtureStore()
	p := serving.NewPredictor(zerolog.Nop())

	cfg := DefaultConfig()
	cfg.MinScore = 0.99
	o := newTestOrchestrator(t, cfg, st, p)

	res, err := o.ScoreCleanerForJob(context.Background(), 7, 1)
	if err != nil {
		t.Fatalf("ScoreCleanerForJob() error = %v", err)
	}
	if res.Score >= cfg.MinScore {
		t.Fatalf("Score = %g, expected a score below MinScore %g for this fixture", res.Score, cfg.MinScore)
	}
	if res.Method != MethodRuleBased {
		t.Errorf("Method = %q, want %q", res.Method, MethodRuleBased)
	}

	// The same pair is filtered out of a ranked list.
	results, err := o.RankCleanersForJob(context.Background(), 7, []int64{1})
	if err != nil {
		t.Fatalf("RankCleanersForJob() error = %v", err)
	}
	if len(results) != 0 {
		t.Errorf("len(results) = %d, want 0 under MinScore=0.99", len(results))
	}
}

func TestScoreCleanerForJobUnknownIDs(t *testing.T) {
	t.Parallel()

	st := fixtureStore()
	o := newTestOrchestrator(t, DefaultConfig(), st, serving.NewPredictor(zerolog.Nop()))

	if _, err := o.ScoreCleanerForJob(context.Background(), 404, 1); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("unknown job error = %v, want store.ErrNotFound", err)
	}
	if _, err := o.ScoreCleanerForJob(context.Background(), 7, 404); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("unknown cleaner error = %v, want store.ErrNotFound", err)
	}
}

func TestRankSkipsUnknownCandidates(t *testing.T) {
	t.Parallel()

	st := fixtureStore()
	o := newTestOrchestrator(t, DefaultConfig(), st, serving.NewPredictor(zerolog.Nop()))

	results, err := o.RankCleanersForJob(context.Background(), 7, []int64{1, 404})
	if err != nil {
		t.Fatalf("RankCleanersForJob() error = %v", err)
	}
	if len(results) != 1 || results[0].CandidateID != 1 {
		t.Errorf("results = %+v, want only cleaner 1", results)
	}
}

func TestRankUnknownJob(t *testing.T) {
	t.Parallel()

	st := fixtureStore()
	o := newTestOrchestrator(t, DefaultConfig(), st, serving.NewPredictor(zerolog.Nop()))

	if _, err := o.RankCleanersForJob(context.Background(), 404, []int64{1}); err == nil {
		t.Error("RankCleanersForJob() accepted unknown job")
	}
}

func TestRankJobsForCleaner(t *testing.T) {
	t.Parallel()

	st := fixtureStore()
	st.AddOpenJob(domain.Job{
		ID: 8, ClientID: 901, PropertyID: 100,
		ScheduledAt: time.Date(2026, 3, 3, 14, 0, 0, 0, time.UTC), DurationHours: 3, Budget: 150,
	})

	o := newTestOrchestrator(t, DefaultConfig(), st, serving.NewPredictor(zerolog.Nop()))

	results, err := o.RankJobsForCleaner(context.Background(), 1, []int64{7, 8})
	if err != nil {
		t.Fatalf("RankJobsForCleaner() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	for i, r := range results {
		if r.Method != MethodRuleBased {
			t.Errorf("results[%d].Method = %q, want %q", i, r.Method, MethodRuleBased)
		}
	}

	if _, err := o.RankJobsForCleaner(context.Background(), 404, []int64{7}); err == nil {
		t.Error("RankJobsForCleaner() accepted unknown cleaner")
	}
}
