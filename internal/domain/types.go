// TidyMatch - Cleaner Matching and Recommendation Engine
// Copyright 2026 TidyMatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tidymatch/tidymatch

// Package domain defines the read-only value objects the matching core
// consumes from the surrounding marketplace application.
//
// The core never persists or mutates these records; they are snapshots
// provided by the snapshot store (internal/store) at extraction time.
package domain

import "time"

// PropertyType classifies the property a job takes place in.
type PropertyType string

// Known property types. PropertyTypeUnknown is used when the upstream
// record carries a type this core has not seen.
const (
	PropertyTypeApartment  PropertyType = "apartment"
	PropertyTypeHouse      PropertyType = "house"
	PropertyTypeCondo      PropertyType = "condo"
	PropertyTypeTownhouse  PropertyType = "townhouse"
	PropertyTypeStudio     PropertyType = "studio"
	PropertyTypeOffice     PropertyType = "office"
	PropertyTypeRetail     PropertyType = "retail"
	PropertyTypeUnknown    PropertyType = "unknown"
)

// AllPropertyTypes lists the property types in one-hot encoding order.
// The order is part of the feature schema and must not change between
// training and serving.
var AllPropertyTypes = []PropertyType{
	PropertyTypeApartment,
	PropertyTypeHouse,
	PropertyTypeCondo,
	PropertyTypeTownhouse,
	PropertyTypeStudio,
	PropertyTypeOffice,
	PropertyTypeRetail,
	PropertyTypeUnknown,
}

// OneHotIndex returns the position of the property type in the one-hot
// encoding, falling back to the unknown slot.
func (p PropertyType) OneHotIndex() int {
	for i, t := range AllPropertyTypes {
		if t == p {
			return i
		}
	}
	return len(AllPropertyTypes) - 1
}

// Location is a WGS84 coordinate pair.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Property describes the property a job is scheduled at.
type Property struct {
	// ID is the unique property identifier.
	ID int64 `json:"id"`

	// Type classifies the property (apartment, house, ...).
	Type PropertyType `json:"type"`

	// SizeSqft is the property size in square feet.
	SizeSqft float64 `json:"size_sqft"`

	// Bedrooms is the bedroom count.
	Bedrooms int `json:"bedrooms"`

	// Bathrooms is the bathroom count.
	Bathrooms int `json:"bathrooms"`

	// Location is the property coordinate.
	Location Location `json:"location"`
}

// Job is a cleaning-service request.
type Job struct {
	// ID is the unique job identifier.
	ID int64 `json:"id"`

	// ClientID references the requesting client.
	ClientID int64 `json:"client_id"`

	// PropertyID references the property to clean.
	PropertyID int64 `json:"property_id"`

	// ScheduledAt is when the job is scheduled to start.
	ScheduledAt time.Time `json:"scheduled_at"`

	// DurationHours is the expected duration.
	DurationHours float64 `json:"duration_hours"`

	// Budget is the client's budget in dollars.
	Budget float64 `json:"budget"`

	// Description is the free-text job description.
	Description string `json:"description,omitempty"`

	// Recurring indicates a repeating engagement.
	Recurring bool `json:"recurring"`
}

// WeeklyAvailability records which hour-of-week slots a cleaner accepts
// work in. Index = day*24 + hour, length 168.
type WeeklyAvailability [168]bool

// Overlap returns the fraction of the job window covered by available
// slots, in [0,1]. Zero-duration jobs report full overlap when the start
// slot is available.
func (a WeeklyAvailability) Overlap(start time.Time, durationHours float64) float64 {
	slots := int(durationHours)
	if float64(slots) < durationHours {
		slots++
	}
	if slots <= 0 {
		slots = 1
	}

	available := 0
	for i := 0; i < slots; i++ {
		t := start.Add(time.Duration(i) * time.Hour)
		idx := int(t.Weekday())*24 + t.Hour()
		if a[idx] {
			available++
		}
	}
	return float64(available) / float64(slots)
}

// Cleaner is a candidate service provider.
type Cleaner struct {
	// ID is the unique cleaner identifier.
	ID int64 `json:"id"`

	// HourlyRate is the cleaner's rate in dollars per hour.
	HourlyRate float64 `json:"hourly_rate"`

	// ServiceRadiusMiles is how far the cleaner travels from base.
	ServiceRadiusMiles float64 `json:"service_radius_miles"`

	// BaseLocation is the cleaner's home base coordinate.
	BaseLocation Location `json:"base_location"`

	// YearsExperience is the cleaner's stated experience.
	YearsExperience float64 `json:"years_experience"`

	// Availability is the cleaner's weekly availability grid.
	Availability WeeklyAvailability `json:"availability"`

	// JoinedAt is when the cleaner joined the platform.
	JoinedAt time.Time `json:"joined_at"`
}

// Review is a client rating of a completed job.
type Review struct {
	// ID is the unique review identifier.
	ID int64 `json:"id"`

	// JobID references the reviewed job.
	JobID int64 `json:"job_id"`

	// CleanerID references the reviewed cleaner.
	CleanerID int64 `json:"cleaner_id"`

	// ClientID references the reviewing client.
	ClientID int64 `json:"client_id"`

	// Rating is the observed outcome on a 0-5 scale.
	Rating float64 `json:"rating"`

	// Comment is the free-text review body.
	Comment string `json:"comment,omitempty"`

	// CreatedAt is when the review was submitted.
	CreatedAt time.Time `json:"created_at"`
}

// ReviewStats are pre-aggregated review signals for a cleaner.
type ReviewStats struct {
	// Count is the number of reviews.
	Count int `json:"count"`

	// MeanRating is the average rating, 0 when Count is 0.
	MeanRating float64 `json:"mean_rating"`

	// RatingStdDev is the rating standard deviation.
	RatingStdDev float64 `json:"rating_stddev"`

	// Recent90DayCount is the number of reviews in the last 90 days.
	Recent90DayCount int `json:"recent_90day_count"`

	// CompletedJobs is the total completed job count.
	CompletedJobs int `json:"completed_jobs"`

	// RepeatClients is the number of clients with more than one booking.
	RepeatClients int `json:"repeat_clients"`
}

// CompletedJob pairs a historical job with its observed outcome. These
// rows are the raw material for dataset building.
type CompletedJob struct {
	Job       Job    `json:"job"`
	CleanerID int64  `json:"cleaner_id"`
	Review    Review `json:"review"`
}
