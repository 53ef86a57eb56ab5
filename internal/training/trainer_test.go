// TidyMatch - Cleaner Matching and Recommendation Engine
// Copyright 2026 TidyMatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tidymatch/tidymatch

package training

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/rs/zerolog"

	"github.com/tidymatch/tidymatch/internal/feature"
	"github.com/tidymatch/tidymatch/internal/model"
	"github.com/tidymatch/tidymatch/internal/preprocess"
)

func tinyModelConfig() model.Config {
	return model.Config{
		NumClients:           5,
		NumCleaners:          5,
		NumPropertyTypes:     3,
		EmbeddingDim:         2,
		PropertyEmbeddingDim: 2,
		CollabHidden:         []int{4},
		ContentHidden:        []int{4},
		Dropout:              0,
		Seed:                 3,
	}
}

// syntheticData builds partitions where the target depends on one
// continuous feature, so the model has signal to fit.
func syntheticData(nTrain, nVal int, seed int64) *preprocess.Result {
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // test data

	build := func(n int) *preprocess.Table {
		t := &preprocess.Table{}
		for i := 0; i < n; i++ {
			row := make([]float64, feature.VectorLen)
			row[feature.IdxClient] = float64(rng.Intn(5))
			row[feature.IdxCleaner] = float64(rng.Intn(5))
			row[feature.IdxPropertyType] = float64(rng.Intn(3))
			signal := rng.Float64()
			row[feature.NumIdentity] = signal
			for j := feature.NumIdentity + 1; j < feature.VectorLen; j++ {
				row[j] = rng.NormFloat64() * 0.1
			}
			t.Features = append(t.Features, row)
			t.Target = append(t.Target, 0.2+0.6*signal)
			t.Meta = append(t.Meta, nil)
		}
		return t
	}

	return &preprocess.Result{
		Train: build(nTrain),
		Val:   build(nVal),
		Test:  &preprocess.Table{},
	}
}

func TestTrainingConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"zero epochs", func(c *Config) { c.Epochs = 0 }, true},
		{"zero batch", func(c *Config) { c.BatchSize = 0 }, true},
		{"zero lr", func(c *Config) { c.LearningRate = 0 }, true},
		{"negative lr", func(c *Config) { c.LearningRate = -1 }, true},
		{"zero patience", func(c *Config) { c.Patience = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAdamMinimizesQuadratic(t *testing.T) {
	t.Parallel()

	// Minimize (x-3)^2 with hand-fed gradients.
	p := &model.Tensor{Data: []float64{0}, Grad: []float64{0}}
	params := []*model.Tensor{p}
	opt := NewAdam(params, 0.1)

	for i := 0; i < 500; i++ {
		p.Grad[0] = 2 * (p.Data[0] - 3)
		if err := opt.Step(params); err != nil {
			t.Fatalf("Step() error = %v", err)
		}
	}
	if math.Abs(p.Data[0]-3) > 0.01 {
		t.Errorf("x = %g after optimization, want ~3", p.Data[0])
	}
}

func TestAdamBoundMismatch(t *testing.T) {
	t.Parallel()

	p := &model.Tensor{Data: []float64{0}, Grad: []float64{0}}
	opt := NewAdam([]*model.Tensor{p}, 0.1)
	if err := opt.Step(nil); err == nil {
		t.Error("Step() accepted wrong parameter list")
	}
}

func TestTrainReducesLoss(t *testing.T) {
	t.Parallel()

	m, err := model.New(tinyModelConfig())
	if err != nil {
		t.Fatalf("model.New() error = %v", err)
	}
	data := syntheticData(120, 30, 21)

	initial, err := Evaluate(m, data.Train, 32)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	cfg := Config{Epochs: 25, BatchSize: 32, LearningRate: 0.01, Patience: 25, Seed: 4}
	report, err := NewTrainer(cfg, zerolog.Nop()).Train(context.Background(), m, data)
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}

	if report.EpochsRun < 1 || report.EpochsRun > cfg.Epochs {
		t.Errorf("EpochsRun = %d, want in [1,%d]", report.EpochsRun, cfg.Epochs)
	}
	if len(report.History) != report.EpochsRun {
		t.Errorf("History length = %d, want %d", len(report.History), report.EpochsRun)
	}
	if report.BestValLoss > report.History[0].ValLoss {
		t.Errorf("BestValLoss = %g, worse than first epoch %g", report.BestValLoss, report.History[0].ValLoss)
	}

	final, err := Evaluate(m, data.Train, 32)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if final >= initial {
		t.Errorf("train loss did not improve: initial %g, final %g", initial, final)
	}
}

func TestTrainRestoresBestWeights(t *testing.T) {
	t.Parallel()

	m, err := model.New(tinyModelConfig())
	if err != nil {
		t.Fatalf("model.New() error = %v", err)
	}
	data := syntheticData(80, 40, 13)

	cfg := Config{Epochs: 15, BatchSize: 16, LearningRate: 0.01, Patience: 3, Seed: 5}
	report, err := NewTrainer(cfg, zerolog.Nop()).Train(context.Background(), m, data)
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}

	// The returned model carries the best-epoch weights, so evaluating
	// the validation partition reproduces the reported best loss.
	got, err := Evaluate(m, data.Val, 16)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if math.Abs(got-report.BestValLoss) > 1e-9 {
		t.Errorf("val loss after restore = %g, report.BestValLoss = %g", got, report.BestValLoss)
	}
}

func TestTrainCancelled(t *testing.T) {
	t.Parallel()

	m, err := model.New(tinyModelConfig())
	if err != nil {
		t.Fatalf("model.New() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = NewTrainer(DefaultConfig(), zerolog.Nop()).Train(ctx, m, syntheticData(20, 5, 1))
	if err == nil {
		t.Error("Train() ignored cancelled context")
	}
}

func TestTrainEmptyPartition(t *testing.T) {
	t.Parallel()

	m, err := model.New(tinyModelConfig())
	if err != nil {
		t.Fatalf("model.New() error = %v", err)
	}
	data := &preprocess.Result{Train: &preprocess.Table{}, Val: &preprocess.Table{}}
	if _, err := NewTrainer(DefaultConfig(), zerolog.Nop()).Train(context.Background(), m, data); err == nil {
		t.Error("Train() accepted empty training partition")
	}
}
