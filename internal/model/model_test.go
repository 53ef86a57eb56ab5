// TidyMatch - Cleaner Matching and Recommendation Engine
// Copyright 2026 TidyMatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tidymatch/tidymatch

package model

import (
	"math"
	"math/rand"
	"testing"

	"github.com/tidymatch/tidymatch/internal/feature"
)

// tinyConfig returns a small architecture for fast tests.
func tinyConfig() Config {
	return Config{
		NumClients:           4,
		NumCleaners:          4,
		NumPropertyTypes:     3,
		EmbeddingDim:         2,
		PropertyEmbeddingDim: 2,
		CollabHidden:         []int{3},
		ContentHidden:        []int{3},
		Dropout:              0,
		Seed:                 7,
	}
}

// randomRow builds a feature row with valid identity indices and random
// continuous values.
func randomRow(rng *rand.Rand, cfg Config, scale float64) []float64 {
	row := make([]float64, feature.VectorLen)
	row[feature.IdxClient] = float64(rng.Intn(cfg.NumClients))
	row[feature.IdxCleaner] = float64(rng.Intn(cfg.NumCleaners))
	row[feature.IdxPropertyType] = float64(rng.Intn(cfg.NumPropertyTypes))
	for i := feature.NumIdentity; i < feature.VectorLen; i++ {
		row[i] = (rng.Float64()*2 - 1) * scale
	}
	return row
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"zero clients", func(c *Config) { c.NumClients = 0 }, true},
		{"zero cleaners", func(c *Config) { c.NumCleaners = 0 }, true},
		{"zero property types", func(c *Config) { c.NumPropertyTypes = 0 }, true},
		{"zero embedding dim", func(c *Config) { c.EmbeddingDim = 0 }, true},
		{"no collab layers", func(c *Config) { c.CollabHidden = nil }, true},
		{"no content layers", func(c *Config) { c.ContentHidden = nil }, true},
		{"bad layer width", func(c *Config) { c.CollabHidden = []int{4, 0} }, true},
		{"dropout one", func(c *Config) { c.Dropout = 1 }, true},
		{"negative dropout", func(c *Config) { c.Dropout = -0.1 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := tinyConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEnsembleWeightAlwaysOpenUnitInterval(t *testing.T) {
	t.Parallel()

	m, err := New(tinyConfig())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	for _, raw := range []float64{-1e6, -50, -1, 0, 1, 50, 1e6} {
		m.ensemble.Data[0] = raw
		w := m.EnsembleWeight()
		if !(w > 0 && w < 1) {
			t.Errorf("EnsembleWeight() with raw %g = %g, want in (0,1)", raw, w)
		}
	}
}

func TestPredictBounded(t *testing.T) {
	t.Parallel()

	cfg := tinyConfig()
	m, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	rng := rand.New(rand.NewSource(99)) //nolint:gosec // test data
	for _, scale := range []float64{1, 100, 1e6} {
		for i := 0; i < 50; i++ {
			row := randomRow(rng, cfg, scale)
			score, err := m.Predict(row)
			if err != nil {
				t.Fatalf("Predict() error = %v", err)
			}
			if math.IsNaN(score) || score < 0 || score > 1 {
				t.Fatalf("Predict() = %g at scale %g, want in [0,1]", score, scale)
			}
		}
	}
}

func TestPredictWrongLength(t *testing.T) {
	t.Parallel()

	m, err := New(tinyConfig())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := m.Predict(make([]float64, 10)); err == nil {
		t.Error("Predict() accepted wrong-length row")
	}
}

func TestPredictDeterministic(t *testing.T) {
	t.Parallel()

	cfg := tinyConfig()
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	b, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	rng := rand.New(rand.NewSource(1)) //nolint:gosec // test data
	row := randomRow(rng, cfg, 1)

	sa, _ := a.Predict(row)
	sb, _ := b.Predict(row)
	if sa != sb {
		t.Errorf("same seed, same input: %g vs %g", sa, sb)
	}

	again, _ := a.Predict(row)
	if sa != again {
		t.Errorf("repeated Predict() differs: %g vs %g", sa, again)
	}
}

func TestForwardBatchMatchesPredictAtEval(t *testing.T) {
	t.Parallel()

	cfg := tinyConfig()
	m, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	rng := rand.New(rand.NewSource(5)) //nolint:gosec // test data
	rows := [][]float64{randomRow(rng, cfg, 1), randomRow(rng, cfg, 1)}

	scores, _, err := m.ForwardBatch(rows, false)
	if err != nil {
		t.Fatalf("ForwardBatch() error = %v", err)
	}
	for s, row := range rows {
		want, _ := m.Predict(row)
		if math.Abs(scores[s]-want) > 1e-12 {
			t.Errorf("batch score %d = %g, Predict = %g", s, scores[s], want)
		}
	}
}

func TestSnapshotRestore(t *testing.T) {
	t.Parallel()

	cfg := tinyConfig()
	m, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	rng := rand.New(rand.NewSource(2)) //nolint:gosec // test data
	row := randomRow(rng, cfg, 1)
	want, _ := m.Predict(row)

	snap := m.Snapshot()

	// A model rebuilt from the snapshot scores identically.
	restored, err := FromWeights(snap)
	if err != nil {
		t.Fatalf("FromWeights() error = %v", err)
	}
	got, _ := restored.Predict(row)
	if got != want {
		t.Errorf("restored Predict() = %g, want %g", got, want)
	}

	// Snapshots are standalone: mutating the source model afterwards
	// does not affect them.
	m.ensemble.Data[0] = 40
	fresh, err := FromWeights(snap)
	if err != nil {
		t.Fatalf("FromWeights() error = %v", err)
	}
	if got, _ := fresh.Predict(row); got != want {
		t.Errorf("snapshot mutated by source model: %g, want %g", got, want)
	}
}

func TestRestoreMismatch(t *testing.T) {
	t.Parallel()

	m, err := New(tinyConfig())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	snap := m.Snapshot()
	snap.Params = snap.Params[:len(snap.Params)-1]

	other, err := New(tinyConfig())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := other.Restore(snap); err == nil {
		t.Error("Restore() accepted truncated snapshot")
	}
}

// TestGradients checks every analytic gradient against a central
// finite difference of the batch MSE loss.
func TestGradients(t *testing.T) {
	t.Parallel()

	cfg := tinyConfig()
	m, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	rng := rand.New(rand.NewSource(17)) //nolint:gosec // test data
	rows := make([][]float64, 4)
	targets := make([]float64, 4)
	for s := range rows {
		rows[s] = randomRow(rng, cfg, 1)
		targets[s] = rng.Float64()
	}

	loss := func() float64 {
		scores, _, err := m.ForwardBatch(rows, true)
		if err != nil {
			t.Fatalf("ForwardBatch() error = %v", err)
		}
		var sum float64
		for s, sc := range scores {
			d := sc - targets[s]
			sum += d * d
		}
		return sum / float64(len(scores))
	}

	// Analytic pass.
	m.ZeroGrad()
	scores, cache, err := m.ForwardBatch(rows, true)
	if err != nil {
		t.Fatalf("ForwardBatch() error = %v", err)
	}
	dscores := make([]float64, len(scores))
	for s, sc := range scores {
		dscores[s] = 2 * (sc - targets[s]) / float64(len(scores))
	}
	if err := m.BackwardBatch(cache, dscores); err != nil {
		t.Fatalf("BackwardBatch() error = %v", err)
	}

	const eps = 1e-5
	for pi, p := range m.Parameters() {
		for i := range p.Data {
			orig := p.Data[i]
			p.Data[i] = orig + eps
			up := loss()
			p.Data[i] = orig - eps
			down := loss()
			p.Data[i] = orig

			numeric := (up - down) / (2 * eps)
			analytic := p.Grad[i]
			diff := math.Abs(numeric - analytic)
			if diff > 1e-4*math.Max(1, math.Abs(numeric)+math.Abs(analytic)) {
				t.Fatalf("tensor %d index %d: analytic %g, numeric %g", pi, i, analytic, numeric)
			}
		}
	}
}
