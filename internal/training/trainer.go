// TidyMatch - Cleaner Matching and Recommendation Engine
// Copyright 2026 TidyMatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tidymatch/tidymatch

// Package training fits the hybrid scoring model against preprocessed
// partitions: mini-batch MSE with Adam, per-epoch validation, early
// stopping with patience, and best-weights restore.
package training

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/tidymatch/tidymatch/internal/model"
	"github.com/tidymatch/tidymatch/internal/preprocess"
)

// Config controls a training run.
type Config struct {
	// Epochs is the maximum number of passes over the training
	// partition. Default: 100.
	Epochs int

	// BatchSize is the mini-batch size. Default: 64.
	BatchSize int

	// LearningRate is the Adam learning rate. Default: 0.001.
	LearningRate float64

	// Patience is the number of epochs validation loss may fail to
	// improve before training stops. Default: 8.
	Patience int

	// Seed fixes the epoch shuffle order. Default: 1.
	Seed int64
}

// DefaultConfig returns the default training configuration.
func DefaultConfig() Config {
	return Config{
		Epochs:       100,
		BatchSize:    64,
		LearningRate: 0.001,
		Patience:     8,
		Seed:         1,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Epochs < 1 {
		return fmt.Errorf("epochs must be >= 1, got %d", c.Epochs)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch_size must be >= 1, got %d", c.BatchSize)
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("learning_rate must be > 0, got %g", c.LearningRate)
	}
	if c.Patience < 1 {
		return fmt.Errorf("patience must be >= 1, got %d", c.Patience)
	}
	return nil
}

// EpochStats records one epoch's losses.
type EpochStats struct {
	Epoch     int
	TrainLoss float64
	ValLoss   float64
}

// Report summarizes a completed run. The model holds the best weights
// observed, not the last ones.
type Report struct {
	EpochsRun   int
	BestEpoch   int
	BestValLoss float64
	History     []EpochStats
	Duration    time.Duration
}

// Trainer fits a model.
type Trainer struct {
	cfg    Config
	logger zerolog.Logger
}

// NewTrainer creates a trainer.
func NewTrainer(cfg Config, logger zerolog.Logger) *Trainer {
	return &Trainer{
		cfg:    cfg,
		logger: logger.With().Str("component", "training").Logger(),
	}
}

// Train fits m against the train partition, evaluating on the
// validation partition each epoch. When validation loss fails to
// improve for the patience window, training stops and the best weights
// are restored. With an empty validation partition the training loss
// drives the stopping decision instead.
func (t *Trainer) Train(ctx context.Context, m *model.Model, data *preprocess.Result) (*Report, error) {
	if err := t.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("training config: %w", err)
	}
	if data.Train.Len() == 0 {
		return nil, fmt.Errorf("empty training partition")
	}

	start := time.Now()
	rng := rand.New(rand.NewSource(t.cfg.Seed)) //nolint:gosec // reproducible shuffle, not cryptographic
	opt := NewAdam(m.Parameters(), t.cfg.LearningRate)

	report := &Report{BestValLoss: -1}
	var best *model.Weights
	sinceBest := 0

	order := make([]int, data.Train.Len())
	for i := range order {
		order[i] = i
	}

	for epoch := 1; epoch <= t.cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		trainLoss, err := t.runEpoch(m, opt, data.Train, order)
		if err != nil {
			return nil, fmt.Errorf("epoch %d: %w", epoch, err)
		}

		valLoss := trainLoss
		if data.Val.Len() > 0 {
			valLoss, err = Evaluate(m, data.Val, t.cfg.BatchSize)
			if err != nil {
				return nil, fmt.Errorf("epoch %d validation: %w", epoch, err)
			}
		}

		report.EpochsRun = epoch
		report.History = append(report.History, EpochStats{Epoch: epoch, TrainLoss: trainLoss, ValLoss: valLoss})
		t.logger.Debug().
			Int("epoch", epoch).
			Float64("train_loss", trainLoss).
			Float64("val_loss", valLoss).
			Msg("Epoch complete")

		if report.BestValLoss < 0 || valLoss < report.BestValLoss {
			report.BestValLoss = valLoss
			report.BestEpoch = epoch
			best = m.Snapshot()
			sinceBest = 0
			continue
		}

		sinceBest++
		if sinceBest >= t.cfg.Patience {
			t.logger.Info().
				Int("epoch", epoch).
				Int("best_epoch", report.BestEpoch).
				Float64("best_val_loss", report.BestValLoss).
				Msg("Early stopping")
			break
		}
	}

	if best != nil {
		if err := m.Restore(best); err != nil {
			return nil, fmt.Errorf("restore best weights: %w", err)
		}
	}

	report.Duration = time.Since(start)
	t.logger.Info().
		Int("epochs_run", report.EpochsRun).
		Int("best_epoch", report.BestEpoch).
		Float64("best_val_loss", report.BestValLoss).
		Dur("duration", report.Duration).
		Msg("Training complete")
	return report, nil
}

// runEpoch performs one shuffled pass and returns the mean train loss.
func (t *Trainer) runEpoch(m *model.Model, opt *Adam, train *preprocess.Table, order []int) (float64, error) {
	var lossSum float64
	var count int

	for lo := 0; lo < len(order); lo += t.cfg.BatchSize {
		hi := min(lo+t.cfg.BatchSize, len(order))
		rows := make([][]float64, hi-lo)
		targets := make([]float64, hi-lo)
		for i, idx := range order[lo:hi] {
			rows[i] = train.Features[idx]
			targets[i] = train.Target[idx]
		}

		m.ZeroGrad()
		scores, cache, err := m.ForwardBatch(rows, true)
		if err != nil {
			return 0, err
		}

		n := float64(len(scores))
		dscores := make([]float64, len(scores))
		for s, sc := range scores {
			d := sc - targets[s]
			lossSum += d * d
			dscores[s] = 2 * d / n
		}
		count += len(scores)

		if err := m.BackwardBatch(cache, dscores); err != nil {
			return 0, err
		}
		if err := opt.Step(m.Parameters()); err != nil {
			return 0, err
		}
	}

	return lossSum / float64(count), nil
}

// Evaluate computes the MSE of m over a partition without touching any
// model state.
func Evaluate(m *model.Model, part *preprocess.Table, batchSize int) (float64, error) {
	if part.Len() == 0 {
		return 0, fmt.Errorf("empty partition")
	}
	if batchSize < 1 {
		batchSize = 64
	}

	var lossSum float64
	for lo := 0; lo < part.Len(); lo += batchSize {
		hi := min(lo+batchSize, part.Len())
		scores, _, err := m.ForwardBatch(part.Features[lo:hi], false)
		if err != nil {
			return 0, err
		}
		for s, sc := range scores {
			d := sc - part.Target[lo+s]
			lossSum += d * d
		}
	}
	return lossSum / float64(part.Len()), nil
}
