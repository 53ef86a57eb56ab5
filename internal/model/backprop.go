// TidyMatch - Cleaner Matching and Recommendation Engine
// Copyright 2026 TidyMatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tidymatch/tidymatch

package model

import (
	"fmt"

	"github.com/tidymatch/tidymatch/internal/feature"
)

// BatchCache holds every intermediate a backward pass needs. One cache
// belongs to exactly one forward pass; reuse is a bug.
type BatchCache struct {
	clientIdx  []int
	cleanerIdx []int
	ptypeIdx   []int

	collabIn    [][][]float64 // [layer][sample] dense input
	collabMask  [][][]bool    // [layer][sample] relu mask
	collabDrop  [][][]float64 // [layer][sample] dropout scale, nil at eval
	collabOutIn [][]float64   // [sample] input to the scalar head
	collabProb  []float64     // [sample] branch output after sigmoid

	contentIn    [][][]float64
	contentBN    []*bnCache
	contentMask  [][][]bool
	contentDrop  [][][]float64
	contentOutIn [][]float64
	contentProb  []float64

	scores []float64
}

// ForwardBatch scores a batch of standardized feature rows. With train
// set, dropout masks are sampled and batch norm consumes batch
// statistics (updating its running estimates); otherwise the pass is
// identical to Predict.
func (m *Model) ForwardBatch(rows [][]float64, train bool) ([]float64, *BatchCache, error) {
	n := len(rows)
	if n == 0 {
		return nil, nil, fmt.Errorf("empty batch")
	}
	for s, row := range rows {
		if len(row) != feature.VectorLen {
			return nil, nil, fmt.Errorf("batch row %d length %d, want %d", s, len(row), feature.VectorLen)
		}
	}

	cache := &BatchCache{
		clientIdx:  make([]int, n),
		cleanerIdx: make([]int, n),
		ptypeIdx:   make([]int, n),
	}
	for s, row := range rows {
		cache.clientIdx[s] = int(row[feature.IdxClient])
		cache.cleanerIdx[s] = int(row[feature.IdxCleaner])
		cache.ptypeIdx[s] = int(row[feature.IdxPropertyType])
	}

	m.collabForwardBatch(cache, train)
	m.contentForwardBatch(rows, cache, train)

	alpha := m.EnsembleWeight()
	cache.scores = make([]float64, n)
	for s := range rows {
		cache.scores[s] = alpha*cache.collabProb[s] + (1-alpha)*cache.contentProb[s]
	}
	return cache.scores, cache, nil
}

func (m *Model) collabForwardBatch(cache *BatchCache, train bool) {
	n := len(cache.clientIdx)
	xs := make([][]float64, n)
	for s := 0; s < n; s++ {
		x := make([]float64, 0, 2*m.cfg.EmbeddingDim)
		x = append(x, m.clientEmb.lookup(cache.clientIdx[s])...)
		x = append(x, m.cleanerEmb.lookup(cache.cleanerIdx[s])...)
		xs[s] = x
	}

	for _, layer := range m.collabLayers {
		layerIn := make([][]float64, n)
		masks := make([][]bool, n)
		var drops [][]float64
		if train && m.cfg.Dropout > 0 {
			drops = make([][]float64, n)
		}
		for s := range xs {
			layerIn[s] = xs[s]
			xs[s] = layer.forward(xs[s])
			masks[s] = reluInPlace(xs[s])
			if drops != nil {
				drops[s] = dropoutInPlace(xs[s], m.cfg.Dropout, m.rng)
			}
		}
		cache.collabIn = append(cache.collabIn, layerIn)
		cache.collabMask = append(cache.collabMask, masks)
		cache.collabDrop = append(cache.collabDrop, drops)
	}

	cache.collabOutIn = xs
	cache.collabProb = make([]float64, n)
	for s := range xs {
		cache.collabProb[s] = sigmoid(m.collabOut.forward(xs[s])[0])
	}
}

func (m *Model) contentForwardBatch(rows [][]float64, cache *BatchCache, train bool) {
	n := len(rows)
	xs := make([][]float64, n)
	for s, row := range rows {
		x := make([]float64, 0, m.cfg.contentInputWidth())
		x = append(x, m.ptypeEmb.lookup(cache.ptypeIdx[s])...)
		x = append(x, row[feature.NumIdentity:]...)
		xs[s] = x
	}

	for i, layer := range m.contentLayers {
		layerIn := make([][]float64, n)
		for s := range xs {
			layerIn[s] = xs[s]
			xs[s] = layer.forward(xs[s])
		}

		var bnc *bnCache
		if train {
			xs, bnc = m.contentNorms[i].forwardBatch(xs)
		} else {
			for s := range xs {
				xs[s] = m.contentNorms[i].inferOne(xs[s])
			}
		}

		masks := make([][]bool, n)
		var drops [][]float64
		if train && m.cfg.Dropout > 0 {
			drops = make([][]float64, n)
		}
		for s := range xs {
			masks[s] = reluInPlace(xs[s])
			if drops != nil {
				drops[s] = dropoutInPlace(xs[s], m.cfg.Dropout, m.rng)
			}
		}

		cache.contentIn = append(cache.contentIn, layerIn)
		cache.contentBN = append(cache.contentBN, bnc)
		cache.contentMask = append(cache.contentMask, masks)
		cache.contentDrop = append(cache.contentDrop, drops)
	}

	cache.contentOutIn = xs
	cache.contentProb = make([]float64, n)
	for s := range xs {
		cache.contentProb[s] = sigmoid(m.contentOut.forward(xs[s])[0])
	}
}

// BackwardBatch accumulates parameter gradients given dL/dscore per
// sample. The caller owns gradient zeroing and the optimizer step.
func (m *Model) BackwardBatch(cache *BatchCache, dscores []float64) error {
	if len(dscores) != len(cache.scores) {
		return fmt.Errorf("dscores length %d, want %d", len(dscores), len(cache.scores))
	}

	alpha := m.EnsembleWeight()

	// d(alpha)/d(w) = alpha*(1-alpha); the blend is linear in alpha.
	for s, ds := range dscores {
		m.ensemble.Grad[0] += ds * (cache.collabProb[s] - cache.contentProb[s]) * alpha * (1 - alpha)
	}

	m.collabBackwardBatch(cache, dscores, alpha)
	m.contentBackwardBatch(cache, dscores, alpha)
	return nil
}

func (m *Model) collabBackwardBatch(cache *BatchCache, dscores []float64, alpha float64) {
	n := len(dscores)

	dxs := make([][]float64, n)
	for s := 0; s < n; s++ {
		p := cache.collabProb[s]
		dlogit := dscores[s] * alpha * p * (1 - p)
		dxs[s] = m.collabOut.backward(cache.collabOutIn[s], []float64{dlogit})
	}

	for l := len(m.collabLayers) - 1; l >= 0; l-- {
		layer := m.collabLayers[l]
		for s := 0; s < n; s++ {
			dy := dxs[s]
			if cache.collabDrop[l] != nil {
				for j := range dy {
					dy[j] *= cache.collabDrop[l][s][j]
				}
			}
			for j := range dy {
				if !cache.collabMask[l][s][j] {
					dy[j] = 0
				}
			}
			dxs[s] = layer.backward(cache.collabIn[l][s], dy)
		}
	}

	e := m.cfg.EmbeddingDim
	for s := 0; s < n; s++ {
		m.clientEmb.accumulate(cache.clientIdx[s], dxs[s][:e])
		m.cleanerEmb.accumulate(cache.cleanerIdx[s], dxs[s][e:])
	}
}

func (m *Model) contentBackwardBatch(cache *BatchCache, dscores []float64, alpha float64) {
	n := len(dscores)

	dxs := make([][]float64, n)
	for s := 0; s < n; s++ {
		p := cache.contentProb[s]
		dlogit := dscores[s] * (1 - alpha) * p * (1 - p)
		dxs[s] = m.contentOut.backward(cache.contentOutIn[s], []float64{dlogit})
	}

	for l := len(m.contentLayers) - 1; l >= 0; l-- {
		layer := m.contentLayers[l]
		for s := 0; s < n; s++ {
			dy := dxs[s]
			if cache.contentDrop[l] != nil {
				for j := range dy {
					dy[j] *= cache.contentDrop[l][s][j]
				}
			}
			for j := range dy {
				if !cache.contentMask[l][s][j] {
					dy[j] = 0
				}
			}
			dxs[s] = dy
		}

		// Batch norm sits between the dense layer and the activation,
		// so its backward runs over the whole batch at once.
		if cache.contentBN[l] != nil {
			dxs = m.contentNorms[l].backwardBatch(cache.contentBN[l], dxs)
		}

		for s := 0; s < n; s++ {
			dxs[s] = layer.backward(cache.contentIn[l][s], dxs[s])
		}
	}

	pd := m.cfg.PropertyEmbeddingDim
	for s := 0; s < n; s++ {
		m.ptypeEmb.accumulate(cache.ptypeIdx[s], dxs[s][:pd])
	}
}
