// TidyMatch - Cleaner Matching and Recommendation Engine
// Copyright 2026 TidyMatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tidymatch/tidymatch

package feature

import "fmt"

// The feature schema is shared byte-for-byte between offline dataset
// building and online scoring. Any change to the layout below is a
// breaking schema change and requires a new artifact version.
const (
	// NumIdentity is the number of identity index features
	// (client, cleaner, property type).
	NumIdentity = 3

	// NumContinuous is the number of core continuous engineered features.
	NumContinuous = 18

	// NumPropertyTypes is the width of the property-type one-hot block.
	NumPropertyTypes = 8

	// NumWeekdays is the width of the day-of-week one-hot block.
	NumWeekdays = 7

	// NumTimeBuckets is the width of the time-of-day one-hot block.
	NumTimeBuckets = 7

	// NumEngineered is the total engineered feature count.
	NumEngineered = NumIdentity + NumContinuous + NumPropertyTypes + NumWeekdays + NumTimeBuckets

	// EmbeddingDim is the width of the review-text embedding block.
	EmbeddingDim = 384

	// VectorLen is the total feature vector length.
	VectorLen = NumEngineered + EmbeddingDim
)

// Offsets of the schema blocks within the vector.
const (
	IdxClient       = 0
	IdxCleaner      = 1
	IdxPropertyType = 2

	OffContinuous   = NumIdentity
	OffPropertyType = OffContinuous + NumContinuous
	OffWeekday      = OffPropertyType + NumPropertyTypes
	OffTimeBucket   = OffWeekday + NumWeekdays
	OffEmbedding    = NumEngineered
)

// Offsets of the named core continuous features, relative to OffContinuous.
const (
	ContDistanceMiles = iota
	ContWithinRadius
	ContPriceFit
	ContHourlyRate
	ContBudget
	ContDurationHours
	ContPropertySize
	ContBedrooms
	ContBathrooms
	ContMeanRating
	ContRatingStdDev
	ContReviewCount
	ContRecentReviews
	ContCompletedJobs
	ContRepeatClients
	ContYearsExperience
	ContTenureDays
	ContAvailabilityOverlap
)

// continuousNames are the dataset column names for the core continuous
// block, in schema order.
var continuousNames = [NumContinuous]string{
	"distance_miles",
	"within_radius",
	"price_fit",
	"hourly_rate",
	"budget",
	"duration_hours",
	"property_size",
	"bedrooms",
	"bathrooms",
	"mean_rating",
	"rating_stddev",
	"review_count",
	"recent_reviews",
	"completed_jobs",
	"repeat_clients",
	"years_experience",
	"tenure_days",
	"availability_overlap",
}

// FeatureVector is one fixed-length row of engineered plus embedding
// features. Vectors are ephemeral: built per request or per training
// row and discarded after scoring.
type FeatureVector []float64

// NewFeatureVector returns a zero-filled vector of the contracted length.
func NewFeatureVector() FeatureVector {
	return make(FeatureVector, VectorLen)
}

// ClientIndex returns the dense client embedding index.
func (v FeatureVector) ClientIndex() int { return int(v[IdxClient]) }

// CleanerIndex returns the dense cleaner embedding index.
func (v FeatureVector) CleanerIndex() int { return int(v[IdxCleaner]) }

// PropertyTypeIndex returns the dense property-type embedding index.
func (v FeatureVector) PropertyTypeIndex() int { return int(v[IdxPropertyType]) }

// Continuous returns the core continuous feature slice (18 values).
func (v FeatureVector) Continuous() []float64 {
	return v[OffContinuous : OffContinuous+NumContinuous]
}

// Content returns everything the content branch consumes: the continuous
// block, the categorical one-hots, and the embedding block.
func (v FeatureVector) Content() []float64 {
	return v[OffContinuous:]
}

// Embedding returns the review-text embedding block (384 values).
func (v FeatureVector) Embedding() []float64 {
	return v[OffEmbedding:]
}

// HasEmbedding reports whether the embedding block carries any signal.
// An all-zero block is the documented cold-start degradation.
func (v FeatureVector) HasEmbedding() bool {
	for _, x := range v.Embedding() {
		if x != 0 {
			return true
		}
	}
	return false
}

// ColumnNames returns the dataset column names in vector order. The
// Dataset Builder and the Preprocessing Pipeline both key on these names,
// never on positions.
func ColumnNames() []string {
	names := make([]string, 0, VectorLen)
	names = append(names, "client_idx", "cleaner_idx", "property_type_idx")
	names = append(names, continuousNames[:]...)
	for i := 0; i < NumPropertyTypes; i++ {
		names = append(names, fmt.Sprintf("ptype_%d", i))
	}
	for i := 0; i < NumWeekdays; i++ {
		names = append(names, fmt.Sprintf("weekday_%d", i))
	}
	for i := 0; i < NumTimeBuckets; i++ {
		names = append(names, fmt.Sprintf("timebucket_%d", i))
	}
	for i := 0; i < EmbeddingDim; i++ {
		names = append(names, fmt.Sprintf("emb_%d", i))
	}
	return names
}

// IdentityColumnNames returns the names of the identity index columns.
// These carry embedding lookup indices, not magnitudes, and must never
// be scaled by downstream transforms.
func IdentityColumnNames() []string {
	return []string{"client_idx", "cleaner_idx", "property_type_idx"}
}

// timeBucket maps an hour of day to one of the seven coarse buckets:
// night, early, morning, afternoon, late afternoon, evening, late.
func timeBucket(hour int) int {
	switch {
	case hour < 6:
		return 0
	case hour < 9:
		return 1
	case hour < 12:
		return 2
	case hour < 15:
		return 3
	case hour < 18:
		return 4
	case hour < 21:
		return 5
	default:
		return 6
	}
}
