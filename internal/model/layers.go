// TidyMatch - Cleaner Matching and Recommendation Engine
// Copyright 2026 TidyMatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tidymatch/tidymatch

package model

import (
	"math"
	"math/rand"
)

// Tensor is a flat parameter block with its gradient accumulator.
// Dense weights are stored row-major: W[out*in], index o*in+i.
type Tensor struct {
	Data []float64
	Grad []float64
}

func newTensor(n int) *Tensor {
	return &Tensor{Data: make([]float64, n), Grad: make([]float64, n)}
}

func (t *Tensor) zeroGrad() {
	for i := range t.Grad {
		t.Grad[i] = 0
	}
}

// heInit fills data with He-initialized values for ReLU layers:
// normal with std sqrt(2/fanIn).
func heInit(data []float64, fanIn int, rng *rand.Rand) {
	std := math.Sqrt(2.0 / float64(fanIn))
	for i := range data {
		data[i] = rng.NormFloat64() * std
	}
}

// varianceScalingInit fills an embedding table with fan-in scaled
// values: normal with std 1/sqrt(dim).
func varianceScalingInit(data []float64, dim int, rng *rand.Rand) {
	std := 1.0 / math.Sqrt(float64(dim))
	for i := range data {
		data[i] = rng.NormFloat64() * std
	}
}

// dense is a fully connected layer.
type dense struct {
	in, out int
	w       *Tensor
	b       *Tensor
}

func newDense(in, out int, rng *rand.Rand) *dense {
	d := &dense{in: in, out: out, w: newTensor(in * out), b: newTensor(out)}
	heInit(d.w.Data, in, rng)
	return d
}

// forward computes y = Wx + b into a fresh slice.
func (d *dense) forward(x []float64) []float64 {
	y := make([]float64, d.out)
	for o := 0; o < d.out; o++ {
		sum := d.b.Data[o]
		row := d.w.Data[o*d.in : (o+1)*d.in]
		for i, xi := range x {
			sum += row[i] * xi
		}
		y[o] = sum
	}
	return y
}

// backward accumulates weight/bias gradients for one sample and
// returns dL/dx.
func (d *dense) backward(x, dy []float64) []float64 {
	dx := make([]float64, d.in)
	for o := 0; o < d.out; o++ {
		g := dy[o]
		if g == 0 {
			continue
		}
		d.b.Grad[o] += g
		row := d.w.Data[o*d.in : (o+1)*d.in]
		grow := d.w.Grad[o*d.in : (o+1)*d.in]
		for i, xi := range x {
			grow[i] += g * xi
			dx[i] += g * row[i]
		}
	}
	return dx
}

// embedding is a lookup table of dim-wide rows.
type embedding struct {
	rows, dim int
	t         *Tensor
}

func newEmbedding(rows, dim int, rng *rand.Rand) *embedding {
	e := &embedding{rows: rows, dim: dim, t: newTensor(rows * dim)}
	varianceScalingInit(e.t.Data, dim, rng)
	return e
}

// lookup returns the row for idx. Out-of-range indices clamp to the
// reserved slot 0; the extractor maps unknown identifiers there already,
// so this only guards corrupt input.
func (e *embedding) lookup(idx int) []float64 {
	if idx < 0 || idx >= e.rows {
		idx = 0
	}
	return e.t.Data[idx*e.dim : (idx+1)*e.dim]
}

// accumulate adds dvec into the gradient row for idx.
func (e *embedding) accumulate(idx int, dvec []float64) {
	if idx < 0 || idx >= e.rows {
		idx = 0
	}
	grow := e.t.Grad[idx*e.dim : (idx+1)*e.dim]
	for i, g := range dvec {
		grow[i] += g
	}
}

// batchNorm normalizes activations per feature. Training uses batch
// statistics and updates the running estimates; inference uses the
// running estimates only.
type batchNorm struct {
	dim      int
	gamma    *Tensor
	beta     *Tensor
	runMean  []float64
	runVar   []float64
	momentum float64
	eps      float64
}

func newBatchNorm(dim int) *batchNorm {
	bn := &batchNorm{
		dim:      dim,
		gamma:    newTensor(dim),
		beta:     newTensor(dim),
		runMean:  make([]float64, dim),
		runVar:   make([]float64, dim),
		momentum: 0.1,
		eps:      1e-5,
	}
	for i := range bn.gamma.Data {
		bn.gamma.Data[i] = 1
		bn.runVar[i] = 1
	}
	return bn
}

// inferOne normalizes a single sample with the running statistics.
func (bn *batchNorm) inferOne(x []float64) []float64 {
	y := make([]float64, bn.dim)
	for j := range x {
		xhat := (x[j] - bn.runMean[j]) / math.Sqrt(bn.runVar[j]+bn.eps)
		y[j] = bn.gamma.Data[j]*xhat + bn.beta.Data[j]
	}
	return y
}

// bnCache holds the per-batch intermediates backprop needs.
type bnCache struct {
	x      [][]float64
	xhat   [][]float64
	mean   []float64
	invStd []float64
}

// forwardBatch normalizes a batch with batch statistics and updates the
// running estimates.
func (bn *batchNorm) forwardBatch(xs [][]float64) ([][]float64, *bnCache) {
	m := float64(len(xs))
	cache := &bnCache{
		x:      xs,
		xhat:   make([][]float64, len(xs)),
		mean:   make([]float64, bn.dim),
		invStd: make([]float64, bn.dim),
	}

	for _, x := range xs {
		for j, v := range x {
			cache.mean[j] += v
		}
	}
	for j := range cache.mean {
		cache.mean[j] /= m
	}

	variance := make([]float64, bn.dim)
	for _, x := range xs {
		for j, v := range x {
			d := v - cache.mean[j]
			variance[j] += d * d
		}
	}
	for j := range variance {
		variance[j] /= m
		cache.invStd[j] = 1 / math.Sqrt(variance[j]+bn.eps)
		bn.runMean[j] = (1-bn.momentum)*bn.runMean[j] + bn.momentum*cache.mean[j]
		bn.runVar[j] = (1-bn.momentum)*bn.runVar[j] + bn.momentum*variance[j]
	}

	out := make([][]float64, len(xs))
	for s, x := range xs {
		cache.xhat[s] = make([]float64, bn.dim)
		out[s] = make([]float64, bn.dim)
		for j, v := range x {
			xhat := (v - cache.mean[j]) * cache.invStd[j]
			cache.xhat[s][j] = xhat
			out[s][j] = bn.gamma.Data[j]*xhat + bn.beta.Data[j]
		}
	}
	return out, cache
}

// backwardBatch returns dL/dx for the batch and accumulates gamma/beta
// gradients.
func (bn *batchNorm) backwardBatch(cache *bnCache, dys [][]float64) [][]float64 {
	m := float64(len(dys))

	sumDxhat := make([]float64, bn.dim)
	sumDxhatXhat := make([]float64, bn.dim)
	dxhat := make([][]float64, len(dys))
	for s, dy := range dys {
		dxhat[s] = make([]float64, bn.dim)
		for j, g := range dy {
			bn.beta.Grad[j] += g
			bn.gamma.Grad[j] += g * cache.xhat[s][j]
			dxhat[s][j] = g * bn.gamma.Data[j]
			sumDxhat[j] += dxhat[s][j]
			sumDxhatXhat[j] += dxhat[s][j] * cache.xhat[s][j]
		}
	}

	dxs := make([][]float64, len(dys))
	for s := range dys {
		dxs[s] = make([]float64, bn.dim)
		for j := range dxs[s] {
			dxs[s][j] = cache.invStd[j] / m *
				(m*dxhat[s][j] - sumDxhat[j] - cache.xhat[s][j]*sumDxhatXhat[j])
		}
	}
	return dxs
}

// sigmoid is the logistic squashing function.
func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// reluInPlace applies max(0,x) and returns a mask of active units.
func reluInPlace(x []float64) []bool {
	mask := make([]bool, len(x))
	for i, v := range x {
		if v > 0 {
			mask[i] = true
		} else {
			x[i] = 0
		}
	}
	return mask
}

// dropoutInPlace applies inverted dropout with keep probability 1-p and
// returns the scale mask applied to each unit.
func dropoutInPlace(x []float64, p float64, rng *rand.Rand) []float64 {
	scale := make([]float64, len(x))
	keep := 1 - p
	for i := range x {
		if rng.Float64() < keep {
			scale[i] = 1 / keep
			x[i] *= scale[i]
		} else {
			x[i] = 0
		}
	}
	return scale
}
