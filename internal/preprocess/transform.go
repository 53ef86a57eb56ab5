// TidyMatch - Cleaner Matching and Recommendation Engine
// Copyright 2026 TidyMatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tidymatch/tidymatch

package preprocess

import (
	"fmt"
	"math"
	"sort"
)

// quantile returns the q-quantile (0..1) of values using linear
// interpolation between closest ranks. values must be non-empty.
func quantile(values []float64, q float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// filterOutliersIQR drops rows whose target lies outside
// [Q1 - 1.5*IQR, Q3 + 1.5*IQR]. Metadata and features are dropped in
// lockstep. Returns the filtered table and the number of rows removed.
func filterOutliersIQR(t *Table) (*Table, int) {
	if t.Len() == 0 {
		return t, 0
	}

	q1 := quantile(t.Target, 0.25)
	q3 := quantile(t.Target, 0.75)
	iqr := q3 - q1
	lower := q1 - 1.5*iqr
	upper := q3 + 1.5*iqr

	keep := make([]int, 0, t.Len())
	for i, v := range t.Target {
		if v >= lower && v <= upper {
			keep = append(keep, i)
		}
	}
	if len(keep) == t.Len() {
		return t, 0
	}
	return t.selectRows(keep), t.Len() - len(keep)
}

// TargetBounds holds the min-max bounds used to normalize the target to
// [0,1]. They are fitted once per training run and frozen into the
// artifact so predictions can be inverted back to the rating scale.
type TargetBounds struct {
	Min float64
	Max float64
}

// FitTargetBounds computes the observed target range.
func FitTargetBounds(target []float64) (TargetBounds, error) {
	if len(target) == 0 {
		return TargetBounds{}, fmt.Errorf("cannot fit target bounds on empty target")
	}
	b := TargetBounds{Min: target[0], Max: target[0]}
	for _, v := range target[1:] {
		if v < b.Min {
			b.Min = v
		}
		if v > b.Max {
			b.Max = v
		}
	}
	return b, nil
}

// Normalize maps t into [0,1]. A degenerate range maps everything to 0.
func (b TargetBounds) Normalize(t float64) float64 {
	span := b.Max - b.Min
	if span == 0 {
		return 0
	}
	return (t - b.Min) / span
}

// Denormalize inverts Normalize.
func (b TargetBounds) Denormalize(n float64) float64 {
	return b.Min + n*(b.Max-b.Min)
}

// normalizeTarget applies the bounds to every row in place.
func normalizeTarget(t *Table, b TargetBounds) {
	for i, v := range t.Target {
		t.Target[i] = b.Normalize(v)
	}
}

// Standardizer is a per-feature zero-mean unit-variance transform.
// It is fitted on the training partition only and then applied
// unchanged to validation and test, so no statistics leak across the
// split boundary.
type Standardizer struct {
	Mean []float64
	Std  []float64
}

// FitStandardizer computes per-feature mean and population standard
// deviation over rows. Constant features get a standard deviation of 1
// so they standardize to zero instead of dividing by zero. Columns
// listed in passthrough keep an identity transform; the identity
// embedding indices must reach the model unscaled.
func FitStandardizer(rows [][]float64, passthrough []int) (*Standardizer, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("cannot fit standardizer on empty partition")
	}
	width := len(rows[0])
	s := &Standardizer{
		Mean: make([]float64, width),
		Std:  make([]float64, width),
	}

	for _, row := range rows {
		if len(row) != width {
			return nil, fmt.Errorf("ragged feature matrix: row width %d, want %d", len(row), width)
		}
		for j, v := range row {
			s.Mean[j] += v
		}
	}
	n := float64(len(rows))
	for j := range s.Mean {
		s.Mean[j] /= n
	}

	for _, row := range rows {
		for j, v := range row {
			d := v - s.Mean[j]
			s.Std[j] += d * d
		}
	}
	for j := range s.Std {
		s.Std[j] = math.Sqrt(s.Std[j] / n)
		if s.Std[j] == 0 {
			s.Std[j] = 1
		}
	}

	for _, j := range passthrough {
		if j < 0 || j >= width {
			return nil, fmt.Errorf("passthrough column %d out of range [0,%d)", j, width)
		}
		s.Mean[j] = 0
		s.Std[j] = 1
	}
	return s, nil
}

// Transform standardizes rows in place.
func (s *Standardizer) Transform(rows [][]float64) error {
	for i, row := range rows {
		if len(row) != len(s.Mean) {
			return fmt.Errorf("row %d width %d, want %d", i, len(row), len(s.Mean))
		}
		for j, v := range row {
			row[j] = (v - s.Mean[j]) / s.Std[j]
		}
	}
	return nil
}

// TransformVector standardizes a single feature row in place. Used on
// the serving path, where the fitted transform ships inside the
// artifact.
func (s *Standardizer) TransformVector(row []float64) error {
	if len(row) != len(s.Mean) {
		return fmt.Errorf("vector width %d, want %d", len(row), len(s.Mean))
	}
	for j, v := range row {
		row[j] = (v - s.Mean[j]) / s.Std[j]
	}
	return nil
}
