// TidyMatch - Cleaner Matching and Recommendation Engine
// Copyright 2026 TidyMatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tidymatch/tidymatch

package feature

import "context"

// Encoder produces a fixed-width dense vector for a text. The sentence
// encoder is a heavy external capability, so it sits behind this
// interface: production uses HTTPEncoder, tests and encoder outages use
// ZeroEncoder.
type Encoder interface {
	// Encode returns a vector of exactly Dim() values for the text.
	Encode(ctx context.Context, text string) ([]float64, error)

	// Dim returns the encoder's output width.
	Dim() int
}

// ZeroEncoder returns an all-zero vector for any input. It stands in for
// the sentence encoder when the dependency is unavailable and produces
// the same degradation as a cleaner with no review text.
type ZeroEncoder struct {
	// Width is the vector width; defaults to EmbeddingDim when zero.
	Width int
}

// Encode returns a zero vector.
func (z ZeroEncoder) Encode(_ context.Context, _ string) ([]float64, error) {
	return make([]float64, z.Dim()), nil
}

// Dim returns the configured width.
func (z ZeroEncoder) Dim() int {
	if z.Width <= 0 {
		return EmbeddingDim
	}
	return z.Width
}

var _ Encoder = ZeroEncoder{}
