// TidyMatch - Cleaner Matching and Recommendation Engine
// Copyright 2026 TidyMatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tidymatch/tidymatch

// Package preprocess turns the labeled dataset into train/validation/
// test partitions ready for the trainer: optional IQR outlier removal
// on the target, min-max target normalization, a seeded shuffle split,
// and train-only feature standardization.
package preprocess

import (
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"math"
	"math/rand"
	"os"

	"github.com/rs/zerolog"

	"github.com/tidymatch/tidymatch/internal/feature"
)

// ConfigurationError reports an invalid pipeline configuration. It is
// raised before any data is loaded or written.
type ConfigurationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid preprocessing configuration: %s: %s", e.Field, e.Reason)
}

// Config controls the preprocessing pipeline.
type Config struct {
	// Seed fixes the shuffle order so a split is reproducible.
	// Default: 42.
	Seed int64

	// TestFraction is the share of all rows held out for test.
	// Default: 0.1.
	TestFraction float64

	// ValFraction is the share of all rows held out for validation,
	// recomputed as a fraction of the post-test remainder.
	// Default: 0.1.
	ValFraction float64

	// RemoveOutliers enables IQR-rule outlier removal on the target.
	// Default: true.
	RemoveOutliers bool
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() Config {
	return Config{
		Seed:           42,
		TestFraction:   0.1,
		ValFraction:    0.1,
		RemoveOutliers: true,
	}
}

// Validate checks the configuration. It runs before any I/O.
func (c Config) Validate() error {
	if c.TestFraction < 0 || c.TestFraction >= 1 {
		return &ConfigurationError{Field: "test_fraction", Reason: fmt.Sprintf("must be in [0,1), got %g", c.TestFraction)}
	}
	if c.ValFraction < 0 || c.ValFraction >= 1 {
		return &ConfigurationError{Field: "val_fraction", Reason: fmt.Sprintf("must be in [0,1), got %g", c.ValFraction)}
	}
	if c.ValFraction+c.TestFraction >= 1 {
		return &ConfigurationError{
			Field:  "val_fraction+test_fraction",
			Reason: fmt.Sprintf("must leave rows for training, got %g", c.ValFraction+c.TestFraction),
		}
	}
	return nil
}

// Result is the persisted output of one pipeline run: the three
// partitions, the fitted transforms, and the configuration needed to
// reproduce the split and invert predictions.
type Result struct {
	Train *Table
	Val   *Table
	Test  *Table

	Standardizer *Standardizer
	Bounds       TargetBounds
	Config       Config

	// OutliersRemoved is the number of rows dropped by the IQR rule.
	OutliersRemoved int
}

// Pipeline runs the preprocessing stages in order.
type Pipeline struct {
	cfg    Config
	logger zerolog.Logger
}

// NewPipeline creates a pipeline. The configuration is validated on
// first use, not here.
func NewPipeline(cfg Config, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		cfg:    cfg,
		logger: logger.With().Str("component", "preprocess").Logger(),
	}
}

// Run executes the pipeline over a loaded table. The table is consumed:
// its rows are filtered, normalized, and standardized in place.
func (p *Pipeline) Run(t *Table) (*Result, error) {
	if err := p.cfg.Validate(); err != nil {
		return nil, err
	}
	if t.Len() == 0 {
		return nil, fmt.Errorf("empty dataset")
	}

	res := &Result{Config: p.cfg}

	if p.cfg.RemoveOutliers {
		t, res.OutliersRemoved = filterOutliersIQR(t)
		if t.Len() == 0 {
			return nil, fmt.Errorf("outlier removal dropped every row")
		}
	}

	bounds, err := FitTargetBounds(t.Target)
	if err != nil {
		return nil, err
	}
	res.Bounds = bounds
	normalizeTarget(t, bounds)

	res.Train, res.Val, res.Test = split(t, p.cfg)
	if res.Train.Len() == 0 {
		return nil, fmt.Errorf("split left no training rows (%d total)", t.Len())
	}

	std, err := FitStandardizer(res.Train.Features, passthroughColumns(t.FeatureNames))
	if err != nil {
		return nil, fmt.Errorf("fit standardizer: %w", err)
	}
	if err := std.Transform(res.Train.Features); err != nil {
		return nil, fmt.Errorf("standardize train: %w", err)
	}
	if err := std.Transform(res.Val.Features); err != nil {
		return nil, fmt.Errorf("standardize validation: %w", err)
	}
	if err := std.Transform(res.Test.Features); err != nil {
		return nil, fmt.Errorf("standardize test: %w", err)
	}
	res.Standardizer = std

	p.logger.Info().
		Int("train", res.Train.Len()).
		Int("val", res.Val.Len()).
		Int("test", res.Test.Len()).
		Int("outliers_removed", res.OutliersRemoved).
		Float64("target_min", bounds.Min).
		Float64("target_max", bounds.Max).
		Msg("Preprocessing complete")

	return res, nil
}

// RunFile validates the configuration, loads the dataset from path, and
// runs the pipeline. Configuration errors surface before the file is
// opened.
func (p *Pipeline) RunFile(path string) (*Result, error) {
	if err := p.cfg.Validate(); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer func() { _ = f.Close() }() //nolint:errcheck // read-only file

	t, err := LoadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("load dataset %s: %w", path, err)
	}
	return p.Run(t)
}

// passthroughColumns resolves the identity index columns to positions
// within the feature matrix.
func passthroughColumns(featureNames []string) []int {
	identity := make(map[string]bool, feature.NumIdentity)
	for _, name := range feature.IdentityColumnNames() {
		identity[name] = true
	}
	var cols []int
	for i, name := range featureNames {
		if identity[name] {
			cols = append(cols, i)
		}
	}
	return cols
}

// split shuffles rows with the configured seed and carves off test,
// then validation, then train. The validation fraction applies to the
// original total but is taken from the post-test remainder.
func split(t *Table, cfg Config) (train, val, test *Table) {
	n := t.Len()
	perm := rand.New(rand.NewSource(cfg.Seed)).Perm(n) //nolint:gosec // reproducible shuffle, not cryptographic

	testN := int(math.Round(float64(n) * cfg.TestFraction))
	valN := int(math.Round(float64(n) * cfg.ValFraction))
	if testN+valN >= n {
		// Degenerate tiny datasets: keep at least one training row.
		valN = 0
		if testN >= n {
			testN = n - 1
		}
	}

	test = t.selectRows(perm[:testN])
	val = t.selectRows(perm[testN : testN+valN])
	train = t.selectRows(perm[testN+valN:])
	return train, val, test
}

// Save writes the result to path as a gzip-compressed gob stream.
func (r *Result) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create preprocess output: %w", err)
	}

	gz := gzip.NewWriter(f)
	if err := gob.NewEncoder(gz).Encode(r); err != nil {
		_ = gz.Close() //nolint:errcheck // encode error takes precedence
		_ = f.Close()  //nolint:errcheck
		return fmt.Errorf("encode preprocess result: %w", err)
	}
	if err := gz.Close(); err != nil {
		_ = f.Close() //nolint:errcheck
		return fmt.Errorf("finalize preprocess output: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close preprocess output: %w", err)
	}
	return nil
}

// LoadResult reads a result written by Save.
func LoadResult(path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open preprocess result: %w", err)
	}
	defer func() { _ = f.Close() }() //nolint:errcheck // read-only file

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("decompress preprocess result: %w", err)
	}
	defer func() { _ = gz.Close() }() //nolint:errcheck // read-only stream

	var r Result
	if err := gob.NewDecoder(gz).Decode(&r); err != nil {
		return nil, fmt.Errorf("decode preprocess result: %w", err)
	}
	return &r, nil
}
