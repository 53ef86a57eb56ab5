// TidyMatch - Cleaner Matching and Recommendation Engine
// Copyright 2026 TidyMatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tidymatch/tidymatch

// Package feature builds fixed-length numeric feature vectors for
// (job, cleaner) pairs.
//
// The extractor is the single shared implementation used by both the
// offline Dataset Builder and the online Recommendation Orchestrator.
// Keeping one implementation is what guarantees identical feature
// semantics between training and serving.
//
// # Cold Start
//
// A cleaner or client absent from the identifier maps resolves to the
// reserved unknown index, and a cleaner with no review text produces an
// all-zero embedding block. Neither is an error.
package feature

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tidymatch/tidymatch/internal/domain"
)

// maxReviewComments bounds how many historical comments feed the encoder.
const maxReviewComments = 20

// DataProvider supplies the read-only lookups extraction needs. It is
// implemented by the snapshot store; the narrow interface keeps this
// package free of storage dependencies.
type DataProvider interface {
	// GetProperty returns the property record, or an error when the
	// reference is unknown.
	GetProperty(ctx context.Context, id int64) (*domain.Property, error)

	// GetReviewStats returns pre-aggregated review signals for a cleaner.
	// A cleaner with no reviews yields zero-valued stats, not an error.
	GetReviewStats(ctx context.Context, cleanerID int64) (domain.ReviewStats, error)

	// GetReviewComments returns up to limit recent review comments for a
	// cleaner, newest first. No reviews yields an empty slice.
	GetReviewComments(ctx context.Context, cleanerID int64, limit int) ([]string, error)
}

// Maps bundles the frozen identifier maps the extractor resolves
// identity features through.
type Maps struct {
	Clients       *IdentifierMap
	Cleaners      *IdentifierMap
	PropertyTypes *IdentifierMap
}

// Extractor builds feature vectors. It is deterministic, side-effect
// free, and safe for concurrent use.
type Extractor struct {
	provider DataProvider
	encoder  Encoder
	maps     Maps
	logger   zerolog.Logger
}

// NewExtractor creates an extractor over the given provider, encoder,
// and frozen identifier maps.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewExtractor(provider DataProvider, encoder Encoder, maps Maps, logger zerolog.Logger) *Extractor {
	return &Extractor{
		provider: provider,
		encoder:  encoder,
		maps:     maps,
		logger:   logger.With().Str("component", "feature").Logger(),
	}
}

// Extract builds the feature vector for a (job, cleaner) pair.
//
// It returns an *ExtractionError when the job or cleaner record is
// structurally invalid (missing property reference, zero identifiers).
// Sparse data never errors: unknown identifiers map to the reserved
// index and missing review text leaves the embedding block zeroed.
func (e *Extractor) Extract(ctx context.Context, job *domain.Job, cleaner *domain.Cleaner) (FeatureVector, error) {
	if job == nil || cleaner == nil {
		return nil, &ExtractionError{Reason: "nil job or cleaner record"}
	}
	if job.ClientID == 0 {
		return nil, &ExtractionError{JobID: job.ID, CleanerID: cleaner.ID, Reason: "job has no client reference"}
	}
	if job.PropertyID == 0 {
		return nil, &ExtractionError{JobID: job.ID, CleanerID: cleaner.ID, Reason: "job has no property reference"}
	}
	if cleaner.ID == 0 {
		return nil, &ExtractionError{JobID: job.ID, CleanerID: cleaner.ID, Reason: "cleaner has no identifier"}
	}

	property, err := e.provider.GetProperty(ctx, job.PropertyID)
	if err != nil {
		return nil, &ExtractionError{JobID: job.ID, CleanerID: cleaner.ID, Reason: "property lookup failed", Err: err}
	}

	stats, err := e.provider.GetReviewStats(ctx, cleaner.ID)
	if err != nil {
		return nil, fmt.Errorf("review stats for cleaner %d: %w", cleaner.ID, err)
	}

	v := NewFeatureVector()

	// Identity indices. Out-of-vocabulary identifiers resolve to the
	// reserved unknown slot.
	v[IdxClient] = float64(e.maps.Clients.Index(job.ClientID))
	v[IdxCleaner] = float64(e.maps.Cleaners.Index(cleaner.ID))
	v[IdxPropertyType] = float64(e.maps.PropertyTypes.Index(int64(property.Type.OneHotIndex())))

	e.fillContinuous(v, job, cleaner, property, stats)
	e.fillCategorical(v, job, property)

	if err := e.fillEmbedding(ctx, v, cleaner.ID); err != nil {
		// Encoder unavailability degrades to a zero block; scoring
		// continues with reduced signal.
		e.logger.Warn().
			Int64("cleaner_id", cleaner.ID).
			Err(err).
			Msg("review embedding unavailable, using zero block")
	}

	return v, nil
}

// fillContinuous populates the 18 core continuous features.
func (e *Extractor) fillContinuous(v FeatureVector, job *domain.Job, cleaner *domain.Cleaner, property *domain.Property, stats domain.ReviewStats) {
	c := v.Continuous()

	distance := HaversineMiles(cleaner.BaseLocation, property.Location)
	c[ContDistanceMiles] = distance
	if distance <= cleaner.ServiceRadiusMiles {
		c[ContWithinRadius] = 1
	}
	c[ContPriceFit] = PriceFit(job.Budget, cleaner.HourlyRate, job.DurationHours)
	c[ContHourlyRate] = cleaner.HourlyRate
	c[ContBudget] = job.Budget
	c[ContDurationHours] = job.DurationHours
	c[ContPropertySize] = property.SizeSqft / 1000.0
	c[ContBedrooms] = float64(property.Bedrooms)
	c[ContBathrooms] = float64(property.Bathrooms)
	c[ContMeanRating] = stats.MeanRating
	c[ContRatingStdDev] = stats.RatingStdDev
	c[ContReviewCount] = math.Log1p(float64(stats.Count))
	c[ContRecentReviews] = math.Log1p(float64(stats.Recent90DayCount))
	c[ContCompletedJobs] = math.Log1p(float64(stats.CompletedJobs))
	c[ContRepeatClients] = math.Log1p(float64(stats.RepeatClients))
	c[ContYearsExperience] = cleaner.YearsExperience
	if !cleaner.JoinedAt.IsZero() && job.ScheduledAt.After(cleaner.JoinedAt) {
		c[ContTenureDays] = math.Log1p(job.ScheduledAt.Sub(cleaner.JoinedAt).Hours() / 24.0)
	}
	c[ContAvailabilityOverlap] = cleaner.Availability.Overlap(job.ScheduledAt, job.DurationHours)
}

// fillCategorical populates the one-hot blocks.
func (e *Extractor) fillCategorical(v FeatureVector, job *domain.Job, property *domain.Property) {
	v[OffPropertyType+property.Type.OneHotIndex()] = 1
	v[OffWeekday+int(job.ScheduledAt.Weekday())] = 1
	v[OffTimeBucket+timeBucket(job.ScheduledAt.Hour())] = 1
}

// fillEmbedding encodes the cleaner's concatenated review comments into
// the trailing embedding block. No comments leaves the block zeroed.
func (e *Extractor) fillEmbedding(ctx context.Context, v FeatureVector, cleanerID int64) error {
	comments, err := e.provider.GetReviewComments(ctx, cleanerID, maxReviewComments)
	if err != nil {
		return fmt.Errorf("review comments: %w", err)
	}
	if len(comments) == 0 {
		return nil
	}

	vec, err := e.encoder.Encode(ctx, strings.Join(comments, " "))
	if err != nil {
		return fmt.Errorf("encode review text: %w", err)
	}

	copy(v.Embedding(), vec)
	return nil
}

// HaversineMiles returns the great-circle distance between two
// coordinates in miles.
func HaversineMiles(a, b domain.Location) float64 {
	const earthRadiusMiles = 3958.8

	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)

	return 2 * earthRadiusMiles * math.Asin(math.Sqrt(h))
}

// PriceFit scores how well a job budget covers the estimated cost
// (rate x duration), in [0,1]. 0.5 means the budget exactly covers the
// estimate; 1.0 means it covers at least double.
func PriceFit(budget, hourlyRate, durationHours float64) float64 {
	cost := hourlyRate * durationHours
	if cost <= 0 {
		return 0.5
	}
	ratio := budget / cost
	if ratio > 2 {
		ratio = 2
	}
	if ratio < 0 {
		ratio = 0
	}
	return ratio / 2
}
