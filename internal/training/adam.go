// TidyMatch - Cleaner Matching and Recommendation Engine
// Copyright 2026 TidyMatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tidymatch/tidymatch

package training

import (
	"fmt"
	"math"

	"github.com/tidymatch/tidymatch/internal/model"
)

// Adam is the Adam optimizer with bias-corrected first and second
// moment estimates. One instance is bound to one parameter list; the
// moment buffers are positional.
type Adam struct {
	lr    float64
	beta1 float64
	beta2 float64
	eps   float64

	step int
	m    [][]float64
	v    [][]float64
}

// NewAdam creates an optimizer for the given parameters.
func NewAdam(params []*model.Tensor, lr float64) *Adam {
	a := &Adam{
		lr:    lr,
		beta1: 0.9,
		beta2: 0.999,
		eps:   1e-8,
		m:     make([][]float64, len(params)),
		v:     make([][]float64, len(params)),
	}
	for i, p := range params {
		a.m[i] = make([]float64, len(p.Data))
		a.v[i] = make([]float64, len(p.Data))
	}
	return a
}

// Step applies one update from the accumulated gradients. params must
// be the same list, in the same order, the optimizer was built with.
func (a *Adam) Step(params []*model.Tensor) error {
	if len(params) != len(a.m) {
		return fmt.Errorf("optimizer bound to %d tensors, got %d", len(a.m), len(params))
	}

	a.step++
	c1 := 1 - math.Pow(a.beta1, float64(a.step))
	c2 := 1 - math.Pow(a.beta2, float64(a.step))

	for i, p := range params {
		if len(p.Data) != len(a.m[i]) {
			return fmt.Errorf("tensor %d length %d, optimizer has %d", i, len(p.Data), len(a.m[i]))
		}
		for j, g := range p.Grad {
			a.m[i][j] = a.beta1*a.m[i][j] + (1-a.beta1)*g
			a.v[i][j] = a.beta2*a.v[i][j] + (1-a.beta2)*g*g
			mhat := a.m[i][j] / c1
			vhat := a.v[i][j] / c2
			p.Data[j] -= a.lr * mhat / (math.Sqrt(vhat) + a.eps)
		}
	}
	return nil
}
