// TidyMatch - Cleaner Matching and Recommendation Engine
// Copyright 2026 TidyMatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tidymatch/tidymatch

package recommend

import (
	"testing"
	"time"

	"github.com/tidymatch/tidymatch/internal/domain"
)

func TestRuleConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*RuleConfig)
		wantErr bool
	}{
		{"defaults", func(*RuleConfig) {}, false},
		{"negative weight", func(c *RuleConfig) { c.DistanceWeight = -1 }, true},
		{"all zero", func(c *RuleConfig) { c.DistanceWeight, c.PriceWeight, c.AvailabilityWeight = 0, 0, 0 }, true},
		{"zero max distance", func(c *RuleConfig) { c.MaxDistanceMiles = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultRuleConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRuleScoreBounded(t *testing.T) {
	t.Parallel()

	r, err := NewRuleScorer(DefaultRuleConfig())
	if err != nil {
		t.Fatalf("NewRuleScorer() error = %v", err)
	}

	job := &domain.Job{Budget: 100, DurationHours: 2, ScheduledAt: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	property := &domain.Property{Location: domain.Location{Latitude: 40.7, Longitude: -74.0}}

	for _, latOffset := range []float64{0, 0.1, 1, 10} {
		cleaner := &domain.Cleaner{
			HourlyRate:   25,
			BaseLocation: domain.Location{Latitude: 40.7 + latOffset, Longitude: -74.0},
		}
		score := r.Score(job, property, cleaner)
		if score < 0 || score > 1 {
			t.Errorf("Score() at offset %g = %g, want in [0,1]", latOffset, score)
		}
	}
}

func TestRuleScoreDecreasesWithDistance(t *testing.T) {
	t.Parallel()

	r, err := NewRuleScorer(DefaultRuleConfig())
	if err != nil {
		t.Fatalf("NewRuleScorer() error = %v", err)
	}

	job := &domain.Job{Budget: 100, DurationHours: 2, ScheduledAt: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	property := &domain.Property{Location: domain.Location{Latitude: 40.7, Longitude: -74.0}}

	prev := 2.0
	for _, latOffset := range []float64{0.03, 0.12, 0.30} {
		cleaner := &domain.Cleaner{
			HourlyRate:   25,
			BaseLocation: domain.Location{Latitude: 40.7 + latOffset, Longitude: -74.0},
		}
		score := r.Score(job, property, cleaner)
		if score >= prev {
			t.Errorf("Score() at offset %g = %g, want < %g", latOffset, score, prev)
		}
		prev = score
	}
}

func TestRuleScoreRewardsAvailability(t *testing.T) {
	t.Parallel()

	r, err := NewRuleScorer(DefaultRuleConfig())
	if err != nil {
		t.Fatalf("NewRuleScorer() error = %v", err)
	}

	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC) // Monday 10:00
	job := &domain.Job{Budget: 100, DurationHours: 2, ScheduledAt: start}
	property := &domain.Property{Location: domain.Location{Latitude: 40.7, Longitude: -74.0}}

	var avail domain.WeeklyAvailability
	idx := int(start.Weekday())*24 + start.Hour()
	avail[idx] = true
	avail[idx+1] = true

	busy := &domain.Cleaner{HourlyRate: 25, BaseLocation: property.Location}
	free := &domain.Cleaner{HourlyRate: 25, BaseLocation: property.Location, Availability: avail}

	if r.Score(job, property, free) <= r.Score(job, property, busy) {
		t.Error("available cleaner did not outscore unavailable cleaner")
	}
}
