// TidyMatch - Cleaner Matching and Recommendation Engine
// Copyright 2026 TidyMatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tidymatch/tidymatch

package recommend

import (
	"fmt"

	"github.com/tidymatch/tidymatch/internal/domain"
	"github.com/tidymatch/tidymatch/internal/feature"
)

// RuleConfig weights the components of the rule-based fallback score.
type RuleConfig struct {
	// DistanceWeight scales the proximity component. Default: 0.4.
	DistanceWeight float64

	// PriceWeight scales the budget-fit component. Default: 0.3.
	PriceWeight float64

	// AvailabilityWeight scales the schedule-overlap component.
	// Default: 0.3.
	AvailabilityWeight float64

	// MaxDistanceMiles is where the proximity component reaches zero.
	// Default: 50.
	MaxDistanceMiles float64
}

// DefaultRuleConfig returns the default fallback weights.
func DefaultRuleConfig() RuleConfig {
	return RuleConfig{
		DistanceWeight:     0.4,
		PriceWeight:        0.3,
		AvailabilityWeight: 0.3,
		MaxDistanceMiles:   50,
	}
}

// Validate checks the weights.
func (c RuleConfig) Validate() error {
	if c.DistanceWeight < 0 || c.PriceWeight < 0 || c.AvailabilityWeight < 0 {
		return fmt.Errorf("rule weights must be >= 0")
	}
	if c.DistanceWeight+c.PriceWeight+c.AvailabilityWeight <= 0 {
		return fmt.Errorf("rule weights must not all be zero")
	}
	if c.MaxDistanceMiles <= 0 {
		return fmt.Errorf("max_distance_miles must be > 0, got %g", c.MaxDistanceMiles)
	}
	return nil
}

// RuleScorer is the deterministic fallback used when the model cannot
// score a pair: a weighted blend of proximity, budget fit, and
// availability overlap, each in [0,1]. It has no learned state, so it
// works for brand-new cleaners and clients.
type RuleScorer struct {
	cfg RuleConfig
}

// NewRuleScorer creates a fallback scorer.
func NewRuleScorer(cfg RuleConfig) (*RuleScorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("rule config: %w", err)
	}
	return &RuleScorer{cfg: cfg}, nil
}

// Score rates a (job, cleaner) pair in [0,1]. Closer, better-priced,
// more-available cleaners score higher; score strictly decreases with
// distance when the other components are equal.
func (r *RuleScorer) Score(job *domain.Job, property *domain.Property, cleaner *domain.Cleaner) float64 {
	distance := feature.HaversineMiles(property.Location, cleaner.BaseLocation)
	proximity := 1 - distance/r.cfg.MaxDistanceMiles
	if proximity < 0 {
		proximity = 0
	}

	priceFit := feature.PriceFit(job.Budget, cleaner.HourlyRate, job.DurationHours)
	overlap := cleaner.Availability.Overlap(job.ScheduledAt, job.DurationHours)

	total := r.cfg.DistanceWeight + r.cfg.PriceWeight + r.cfg.AvailabilityWeight
	return (r.cfg.DistanceWeight*proximity + r.cfg.PriceWeight*priceFit + r.cfg.AvailabilityWeight*overlap) / total
}
