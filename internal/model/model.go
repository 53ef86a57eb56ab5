// TidyMatch - Cleaner Matching and Recommendation Engine
// Copyright 2026 TidyMatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tidymatch/tidymatch

// Package model implements the hybrid scoring network: a collaborative
// branch over client/cleaner embeddings and a content branch over the
// property-type embedding plus the engineered and text features, blended
// by a single learned ensemble weight. Forward and backward passes are
// hand-rolled over float64 slices; inference is a pure function of
// weights and input.
package model

import (
	"fmt"
	"math/rand"

	"github.com/tidymatch/tidymatch/internal/feature"
)

// Config holds the architecture hyperparameters. Vocabulary sizes come
// from the identifier maps (unknown slot included) and are frozen into
// the artifact with the weights.
type Config struct {
	// NumClients is the client vocabulary size.
	NumClients int

	// NumCleaners is the cleaner vocabulary size.
	NumCleaners int

	// NumPropertyTypes is the property-type vocabulary size.
	NumPropertyTypes int

	// EmbeddingDim is the client/cleaner embedding width. Default: 32.
	EmbeddingDim int

	// PropertyEmbeddingDim is the property-type embedding width.
	// Default: 8.
	PropertyEmbeddingDim int

	// CollabHidden are the collaborative branch hidden widths.
	// Default: [64, 32].
	CollabHidden []int

	// ContentHidden are the content branch hidden widths.
	// Default: [128, 64].
	ContentHidden []int

	// Dropout is the training-time dropout probability. Default: 0.2.
	Dropout float64

	// Seed fixes weight initialization and dropout masks. Default: 1.
	Seed int64
}

// DefaultConfig returns the default architecture for the given
// vocabulary sizes.
func DefaultConfig(numClients, numCleaners, numPropertyTypes int) Config {
	return Config{
		NumClients:           numClients,
		NumCleaners:          numCleaners,
		NumPropertyTypes:     numPropertyTypes,
		EmbeddingDim:         32,
		PropertyEmbeddingDim: 8,
		CollabHidden:         []int{64, 32},
		ContentHidden:        []int{128, 64},
		Dropout:              0.2,
		Seed:                 1,
	}
}

// Validate checks the hyperparameters.
func (c Config) Validate() error {
	if c.NumClients < 1 {
		return fmt.Errorf("num_clients must be >= 1, got %d", c.NumClients)
	}
	if c.NumCleaners < 1 {
		return fmt.Errorf("num_cleaners must be >= 1, got %d", c.NumCleaners)
	}
	if c.NumPropertyTypes < 1 {
		return fmt.Errorf("num_property_types must be >= 1, got %d", c.NumPropertyTypes)
	}
	if c.EmbeddingDim < 1 {
		return fmt.Errorf("embedding_dim must be >= 1, got %d", c.EmbeddingDim)
	}
	if c.PropertyEmbeddingDim < 1 {
		return fmt.Errorf("property_embedding_dim must be >= 1, got %d", c.PropertyEmbeddingDim)
	}
	if len(c.CollabHidden) == 0 {
		return fmt.Errorf("collab_hidden must name at least one layer")
	}
	if len(c.ContentHidden) == 0 {
		return fmt.Errorf("content_hidden must name at least one layer")
	}
	for i, w := range c.CollabHidden {
		if w < 1 {
			return fmt.Errorf("collab_hidden[%d] must be >= 1, got %d", i, w)
		}
	}
	for i, w := range c.ContentHidden {
		if w < 1 {
			return fmt.Errorf("content_hidden[%d] must be >= 1, got %d", i, w)
		}
	}
	if c.Dropout < 0 || c.Dropout >= 1 {
		return fmt.Errorf("dropout must be in [0,1), got %g", c.Dropout)
	}
	return nil
}

// contentInputWidth is the content branch input width: the property
// embedding plus every non-identity feature column.
func (c Config) contentInputWidth() int {
	return c.PropertyEmbeddingDim + feature.VectorLen - feature.NumIdentity
}

// Model is the hybrid scoring network.
type Model struct {
	cfg Config

	clientEmb  *embedding
	cleanerEmb *embedding
	ptypeEmb   *embedding

	collabLayers []*dense
	collabOut    *dense

	contentLayers []*dense
	contentNorms  []*batchNorm
	contentOut    *dense

	ensemble *Tensor

	rng *rand.Rand
}

// New builds a model with freshly initialized weights: variance-scaled
// embeddings, He-initialized dense layers, zero biases, and an ensemble
// parameter starting at 0 (an even 50/50 blend).
func New(cfg Config) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("model config: %w", err)
	}

	rng := rand.New(rand.NewSource(cfg.Seed)) //nolint:gosec // deterministic init, not cryptographic
	m := &Model{
		cfg:        cfg,
		clientEmb:  newEmbedding(cfg.NumClients, cfg.EmbeddingDim, rng),
		cleanerEmb: newEmbedding(cfg.NumCleaners, cfg.EmbeddingDim, rng),
		ptypeEmb:   newEmbedding(cfg.NumPropertyTypes, cfg.PropertyEmbeddingDim, rng),
		ensemble:   newTensor(1),
		rng:        rng,
	}

	in := 2 * cfg.EmbeddingDim
	for _, width := range cfg.CollabHidden {
		m.collabLayers = append(m.collabLayers, newDense(in, width, rng))
		in = width
	}
	m.collabOut = newDense(in, 1, rng)

	in = cfg.contentInputWidth()
	for _, width := range cfg.ContentHidden {
		m.contentLayers = append(m.contentLayers, newDense(in, width, rng))
		m.contentNorms = append(m.contentNorms, newBatchNorm(width))
		in = width
	}
	m.contentOut = newDense(in, 1, rng)

	return m, nil
}

// Config returns the architecture hyperparameters.
func (m *Model) Config() Config { return m.cfg }

// EnsembleWeight returns the blend weight sigma(w), always in (0,1).
func (m *Model) EnsembleWeight() float64 {
	return sigmoid(m.ensemble.Data[0])
}

// Predict scores one standardized feature row. It is a pure function of
// the weights: no dropout, batch norm uses running statistics, and no
// internal state changes.
func (m *Model) Predict(row []float64) (float64, error) {
	if len(row) != feature.VectorLen {
		return 0, fmt.Errorf("feature row length %d, want %d", len(row), feature.VectorLen)
	}

	collab := m.collabForward(int(row[feature.IdxClient]), int(row[feature.IdxCleaner]))
	content := m.contentForward(int(row[feature.IdxPropertyType]), row[feature.NumIdentity:])

	alpha := m.EnsembleWeight()
	return alpha*collab + (1-alpha)*content, nil
}

func (m *Model) collabForward(clientIdx, cleanerIdx int) float64 {
	x := make([]float64, 0, 2*m.cfg.EmbeddingDim)
	x = append(x, m.clientEmb.lookup(clientIdx)...)
	x = append(x, m.cleanerEmb.lookup(cleanerIdx)...)

	for _, layer := range m.collabLayers {
		x = layer.forward(x)
		reluInPlace(x)
	}
	return sigmoid(m.collabOut.forward(x)[0])
}

func (m *Model) contentForward(ptypeIdx int, content []float64) float64 {
	x := make([]float64, 0, m.cfg.contentInputWidth())
	x = append(x, m.ptypeEmb.lookup(ptypeIdx)...)
	x = append(x, content...)

	for i, layer := range m.contentLayers {
		x = layer.forward(x)
		x = m.contentNorms[i].inferOne(x)
		reluInPlace(x)
	}
	return sigmoid(m.contentOut.forward(x)[0])
}

// Parameters returns every trainable tensor, in a stable order.
func (m *Model) Parameters() []*Tensor {
	params := []*Tensor{m.clientEmb.t, m.cleanerEmb.t, m.ptypeEmb.t}
	for _, l := range m.collabLayers {
		params = append(params, l.w, l.b)
	}
	params = append(params, m.collabOut.w, m.collabOut.b)
	for i, l := range m.contentLayers {
		params = append(params, l.w, l.b, m.contentNorms[i].gamma, m.contentNorms[i].beta)
	}
	params = append(params, m.contentOut.w, m.contentOut.b, m.ensemble)
	return params
}

// ZeroGrad clears all gradient accumulators.
func (m *Model) ZeroGrad() {
	for _, p := range m.Parameters() {
		p.zeroGrad()
	}
}
