// TidyMatch - Cleaner Matching and Recommendation Engine
// Copyright 2026 TidyMatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tidymatch/tidymatch

package store

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/tidymatch/tidymatch/internal/domain"
)

func TestMemoryStoreLookups(t *testing.T) {
	t.Parallel()

	m := NewMemoryStore()
	m.AddJob(domain.Job{ID: 1, ClientID: 10, PropertyID: 100})
	m.AddCleaner(domain.Cleaner{ID: 5, HourlyRate: 25})
	m.AddProperty(domain.Property{ID: 100, Type: domain.PropertyTypeApartment})

	ctx := context.Background()

	j, err := m.GetJob(ctx, 1)
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if j.ClientID != 10 {
		t.Errorf("job.ClientID = %d, want 10", j.ClientID)
	}

	if _, err := m.GetJob(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetJob(999) error = %v, want ErrNotFound", err)
	}
	if _, err := m.GetCleaner(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetCleaner(999) error = %v, want ErrNotFound", err)
	}
	if _, err := m.GetProperty(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetProperty(999) error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreReviewStats(t *testing.T) {
	t.Parallel()

	m := NewMemoryStore()
	now := time.Now()
	m.AddReview(domain.Review{ID: 1, CleanerID: 5, ClientID: 1, Rating: 4, CreatedAt: now})
	m.AddReview(domain.Review{ID: 2, CleanerID: 5, ClientID: 1, Rating: 5, CreatedAt: now})
	m.AddReview(domain.Review{ID: 3, CleanerID: 5, ClientID: 2, Rating: 3, CreatedAt: now})
	m.AddReview(domain.Review{ID: 4, CleanerID: 7, ClientID: 1, Rating: 1, CreatedAt: now})

	stats, err := m.GetReviewStats(context.Background(), 5)
	if err != nil {
		t.Fatalf("GetReviewStats() error = %v", err)
	}

	if stats.Count != 3 {
		t.Errorf("Count = %d, want 3", stats.Count)
	}
	if got, want := stats.MeanRating, 4.0; math.Abs(got-want) > 1e-9 {
		t.Errorf("MeanRating = %f, want %f", got, want)
	}
	// Population stddev of {4, 5, 3} is sqrt(2/3).
	if got, want := stats.RatingStdDev, math.Sqrt(2.0/3.0); math.Abs(got-want) > 1e-9 {
		t.Errorf("RatingStdDev = %f, want %f", got, want)
	}
	if stats.RepeatClients != 1 {
		t.Errorf("RepeatClients = %d, want 1 (client 1 reviewed twice)", stats.RepeatClients)
	}
}

func TestMemoryStoreReviewStatsEmpty(t *testing.T) {
	t.Parallel()

	m := NewMemoryStore()
	stats, err := m.GetReviewStats(context.Background(), 42)
	if err != nil {
		t.Fatalf("GetReviewStats() error = %v", err)
	}
	if stats.Count != 0 || stats.MeanRating != 0 || stats.RatingStdDev != 0 {
		t.Errorf("stats = %+v, want zero values", stats)
	}
}

func TestMemoryStoreReviewComments(t *testing.T) {
	t.Parallel()

	m := NewMemoryStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.AddReview(domain.Review{ID: 1, CleanerID: 5, Comment: "oldest", CreatedAt: base})
	m.AddReview(domain.Review{ID: 2, CleanerID: 5, Comment: "", CreatedAt: base.Add(time.Hour)})
	m.AddReview(domain.Review{ID: 3, CleanerID: 5, Comment: "newest", CreatedAt: base.Add(2 * time.Hour)})
	m.AddReview(domain.Review{ID: 4, CleanerID: 9, Comment: "other cleaner", CreatedAt: base})

	comments, err := m.GetReviewComments(context.Background(), 5, 10)
	if err != nil {
		t.Fatalf("GetReviewComments() error = %v", err)
	}
	want := []string{"newest", "oldest"}
	if len(comments) != len(want) {
		t.Fatalf("len(comments) = %d, want %d", len(comments), len(want))
	}
	for i := range want {
		if comments[i] != want[i] {
			t.Errorf("comments[%d] = %q, want %q", i, comments[i], want[i])
		}
	}

	limited, err := m.GetReviewComments(context.Background(), 5, 1)
	if err != nil {
		t.Fatalf("GetReviewComments() error = %v", err)
	}
	if len(limited) != 1 || limited[0] != "newest" {
		t.Errorf("limited comments = %v, want [newest]", limited)
	}
}

func TestMemoryStoreListings(t *testing.T) {
	t.Parallel()

	m := NewMemoryStore()
	m.AddCleaner(domain.Cleaner{ID: 30})
	m.AddCleaner(domain.Cleaner{ID: 10})
	m.AddCleaner(domain.Cleaner{ID: 20})
	m.AddOpenJob(domain.Job{ID: 7})
	m.AddOpenJob(domain.Job{ID: 3})
	m.AddCompletedJob(domain.CompletedJob{
		Job:       domain.Job{ID: 1, ClientID: 2},
		CleanerID: 10,
		Review:    domain.Review{ID: 1, JobID: 1, CleanerID: 10, ClientID: 2, Rating: 5},
	})

	ctx := context.Background()

	ids, err := m.ListCleanerIDs(ctx, 0)
	if err != nil {
		t.Fatalf("ListCleanerIDs() error = %v", err)
	}
	wantIDs := []int64{10, 20, 30}
	if len(ids) != len(wantIDs) {
		t.Fatalf("len(ids) = %d, want %d", len(ids), len(wantIDs))
	}
	for i := range wantIDs {
		if ids[i] != wantIDs[i] {
			t.Errorf("ids[%d] = %d, want %d", i, ids[i], wantIDs[i])
		}
	}

	limited, err := m.ListCleanerIDs(ctx, 2)
	if err != nil {
		t.Fatalf("ListCleanerIDs() error = %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("len(limited) = %d, want 2", len(limited))
	}

	open, err := m.ListOpenJobIDs(ctx, 0)
	if err != nil {
		t.Fatalf("ListOpenJobIDs() error = %v", err)
	}
	if len(open) != 2 || open[0] != 3 || open[1] != 7 {
		t.Errorf("open = %v, want [3 7]", open)
	}

	completed, err := m.ListCompletedJobs(ctx)
	if err != nil {
		t.Fatalf("ListCompletedJobs() error = %v", err)
	}
	if len(completed) != 1 || completed[0].CleanerID != 10 {
		t.Errorf("completed = %+v, want one entry for cleaner 10", completed)
	}
}

func TestMemoryStoreAvailabilityRoundTrip(t *testing.T) {
	t.Parallel()

	var avail domain.WeeklyAvailability
	avail[9] = true // Sunday 09:00

	m := NewMemoryStore()
	m.AddCleaner(domain.Cleaner{ID: 1, Availability: avail})

	c, err := m.GetCleaner(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetCleaner() error = %v", err)
	}
	if !c.Availability[9] {
		t.Error("Availability[9] = false after round trip")
	}
}

func TestParseAvailability(t *testing.T) {
	t.Parallel()

	a := parseAvailability("0110")
	if a[0] || !a[1] || !a[2] || a[3] {
		t.Errorf("parseAvailability(0110) = %v %v %v %v, want false true true false", a[0], a[1], a[2], a[3])
	}

	empty := parseAvailability("")
	for i, slot := range empty {
		if slot {
			t.Fatalf("empty availability slot %d = true", i)
		}
	}
}
