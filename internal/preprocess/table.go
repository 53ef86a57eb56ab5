// TidyMatch - Cleaner Matching and Recommendation Engine
// Copyright 2026 TidyMatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tidymatch/tidymatch

package preprocess

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/tidymatch/tidymatch/internal/dataset"
)

// Table is a loaded labeled dataset, already separated into metadata,
// target, and feature columns by the naming convention the dataset
// builder writes. Row i of Meta, Target, and Features always refer to
// the same source record; every transform keeps them in lockstep.
type Table struct {
	// MetaNames are the metadata column names, prefix included.
	MetaNames []string

	// Meta holds the raw metadata cells per row, for traceability only.
	Meta [][]string

	// Target is the observed outcome per row.
	Target []float64

	// FeatureNames are the feature column names in file order.
	FeatureNames []string

	// Features is the per-row feature matrix.
	Features [][]float64
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Target) }

// LoadCSV reads a dataset written by the dataset builder and separates
// columns by name: the metadata prefix marks metadata, the target column
// is the label, everything else is a feature. Column order in the file
// is irrelevant.
func LoadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read dataset header: %w", err)
	}

	var (
		metaIdx    []int
		featureIdx []int
		targetIdx  = -1
	)
	t := &Table{}
	for i, name := range header {
		switch {
		case name == dataset.ColTarget:
			if targetIdx >= 0 {
				return nil, fmt.Errorf("duplicate target column at positions %d and %d", targetIdx, i)
			}
			targetIdx = i
		case strings.HasPrefix(name, dataset.MetaPrefix):
			metaIdx = append(metaIdx, i)
			t.MetaNames = append(t.MetaNames, name)
		default:
			featureIdx = append(featureIdx, i)
			t.FeatureNames = append(t.FeatureNames, name)
		}
	}
	if targetIdx < 0 {
		return nil, fmt.Errorf("dataset has no %q column", dataset.ColTarget)
	}
	if len(featureIdx) == 0 {
		return nil, fmt.Errorf("dataset has no feature columns")
	}

	for row := 1; ; row++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read dataset row %d: %w", row, err)
		}

		target, err := strconv.ParseFloat(record[targetIdx], 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: parse target %q: %w", row, record[targetIdx], err)
		}

		features := make([]float64, len(featureIdx))
		for j, col := range featureIdx {
			features[j], err = strconv.ParseFloat(record[col], 64)
			if err != nil {
				return nil, fmt.Errorf("row %d: parse feature %q=%q: %w", row, header[col], record[col], err)
			}
		}

		meta := make([]string, len(metaIdx))
		for j, col := range metaIdx {
			meta[j] = record[col]
		}

		t.Target = append(t.Target, target)
		t.Features = append(t.Features, features)
		t.Meta = append(t.Meta, meta)
	}

	return t, nil
}

// selectRows returns a new Table containing the given rows, in order.
func (t *Table) selectRows(rows []int) *Table {
	out := &Table{
		MetaNames:    t.MetaNames,
		FeatureNames: t.FeatureNames,
		Meta:         make([][]string, len(rows)),
		Target:       make([]float64, len(rows)),
		Features:     make([][]float64, len(rows)),
	}
	for i, r := range rows {
		out.Meta[i] = t.Meta[r]
		out.Target[i] = t.Target[r]
		out.Features[i] = t.Features[r]
	}
	return out
}
