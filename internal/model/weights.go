// TidyMatch - Cleaner Matching and Recommendation Engine
// Copyright 2026 TidyMatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tidymatch/tidymatch

package model

import "fmt"

// Weights is the serializable snapshot of a trained model: the
// architecture config, every parameter tensor in Parameters() order,
// and the batch norm running statistics. Gob-encodable as-is.
type Weights struct {
	Config Config

	// Params holds each tensor's data in Parameters() order.
	Params [][]float64

	// RunMean and RunVar are the content branch batch norm running
	// statistics, one pair per hidden layer.
	RunMean [][]float64
	RunVar  [][]float64
}

// Snapshot copies the current weights into a standalone snapshot.
func (m *Model) Snapshot() *Weights {
	w := &Weights{Config: m.cfg}
	for _, p := range m.Parameters() {
		data := make([]float64, len(p.Data))
		copy(data, p.Data)
		w.Params = append(w.Params, data)
	}
	for _, bn := range m.contentNorms {
		mean := make([]float64, len(bn.runMean))
		copy(mean, bn.runMean)
		variance := make([]float64, len(bn.runVar))
		copy(variance, bn.runVar)
		w.RunMean = append(w.RunMean, mean)
		w.RunVar = append(w.RunVar, variance)
	}
	return w
}

// Restore copies a snapshot's weights into the model. The snapshot must
// come from the same architecture.
func (m *Model) Restore(w *Weights) error {
	params := m.Parameters()
	if len(w.Params) != len(params) {
		return fmt.Errorf("snapshot has %d tensors, model has %d", len(w.Params), len(params))
	}
	for i, p := range params {
		if len(w.Params[i]) != len(p.Data) {
			return fmt.Errorf("snapshot tensor %d length %d, want %d", i, len(w.Params[i]), len(p.Data))
		}
	}
	if len(w.RunMean) != len(m.contentNorms) || len(w.RunVar) != len(m.contentNorms) {
		return fmt.Errorf("snapshot has %d/%d batch norm stats, model has %d",
			len(w.RunMean), len(w.RunVar), len(m.contentNorms))
	}

	for i, p := range params {
		copy(p.Data, w.Params[i])
	}
	for i, bn := range m.contentNorms {
		if len(w.RunMean[i]) != bn.dim || len(w.RunVar[i]) != bn.dim {
			return fmt.Errorf("snapshot batch norm %d width mismatch", i)
		}
		copy(bn.runMean, w.RunMean[i])
		copy(bn.runVar, w.RunVar[i])
	}
	return nil
}

// FromWeights reconstructs a model from a snapshot, e.g. when loading
// an artifact for serving.
func FromWeights(w *Weights) (*Model, error) {
	m, err := New(w.Config)
	if err != nil {
		return nil, fmt.Errorf("rebuild model from snapshot: %w", err)
	}
	if err := m.Restore(w); err != nil {
		return nil, err
	}
	return m, nil
}
