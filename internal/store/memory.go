// TidyMatch - Cleaner Matching and Recommendation Engine
// Copyright 2026 TidyMatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tidymatch/tidymatch

package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/tidymatch/tidymatch/internal/domain"
)

// MemoryStore is an in-memory SnapshotStore. It backs unit tests and
// the trainer's fixture mode, and computes review aggregates on the fly
// so test fixtures only need raw records.
type MemoryStore struct {
	mu         sync.RWMutex
	jobs       map[int64]domain.Job
	cleaners   map[int64]domain.Cleaner
	properties map[int64]domain.Property
	reviews    []domain.Review
	completed  []domain.CompletedJob
	openJobs   []int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:       make(map[int64]domain.Job),
		cleaners:   make(map[int64]domain.Cleaner),
		properties: make(map[int64]domain.Property),
	}
}

// AddJob inserts or replaces a job.
func (m *MemoryStore) AddJob(j domain.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[j.ID] = j
}

// AddOpenJob inserts a job and marks it open for candidate listing.
func (m *MemoryStore) AddOpenJob(j domain.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[j.ID] = j
	m.openJobs = append(m.openJobs, j.ID)
}

// AddCleaner inserts or replaces a cleaner.
func (m *MemoryStore) AddCleaner(c domain.Cleaner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleaners[c.ID] = c
}

// AddProperty inserts or replaces a property.
func (m *MemoryStore) AddProperty(p domain.Property) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.properties[p.ID] = p
}

// AddReview appends a review.
func (m *MemoryStore) AddReview(r domain.Review) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reviews = append(m.reviews, r)
}

// AddCompletedJob appends a completed job with its outcome.
func (m *MemoryStore) AddCompletedJob(cj domain.CompletedJob) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed = append(m.completed, cj)
	m.jobs[cj.Job.ID] = cj.Job
	m.reviews = append(m.reviews, cj.Review)
}

// GetJob implements SnapshotStore.
func (m *MemoryStore) GetJob(_ context.Context, id int64) (*domain.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %d: %w", id, ErrNotFound)
	}
	return &j, nil
}

// GetCleaner implements SnapshotStore.
func (m *MemoryStore) GetCleaner(_ context.Context, id int64) (*domain.Cleaner, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.cleaners[id]
	if !ok {
		return nil, fmt.Errorf("cleaner %d: %w", id, ErrNotFound)
	}
	return &c, nil
}

// GetProperty implements SnapshotStore.
func (m *MemoryStore) GetProperty(_ context.Context, id int64) (*domain.Property, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.properties[id]
	if !ok {
		return nil, fmt.Errorf("property %d: %w", id, ErrNotFound)
	}
	return &p, nil
}

// GetReviewStats implements SnapshotStore.
func (m *MemoryStore) GetReviewStats(_ context.Context, cleanerID int64) (domain.ReviewStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ratings []float64
	clients := make(map[int64]int)
	newest := int64(0)
	for _, r := range m.reviews {
		if r.CleanerID != cleanerID {
			continue
		}
		ratings = append(ratings, r.Rating)
		clients[r.ClientID]++
		if r.CreatedAt.Unix() > newest {
			newest = r.CreatedAt.Unix()
		}
	}

	stats := domain.ReviewStats{Count: len(ratings), CompletedJobs: len(ratings)}
	if len(ratings) == 0 {
		return stats, nil
	}

	var sum float64
	for _, r := range ratings {
		sum += r
	}
	stats.MeanRating = sum / float64(len(ratings))

	var sq float64
	for _, r := range ratings {
		d := r - stats.MeanRating
		sq += d * d
	}
	stats.RatingStdDev = math.Sqrt(sq / float64(len(ratings)))

	for _, n := range clients {
		if n > 1 {
			stats.RepeatClients++
		}
	}

	// The in-memory store has no notion of "now"; treat every review as
	// recent so fixtures exercise the recent-review feature.
	stats.Recent90DayCount = stats.Count

	return stats, nil
}

// GetReviewComments implements SnapshotStore.
func (m *MemoryStore) GetReviewComments(_ context.Context, cleanerID int64, limit int) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []domain.Review
	for _, r := range m.reviews {
		if r.CleanerID == cleanerID && r.Comment != "" {
			matched = append(matched, r)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	comments := make([]string, len(matched))
	for i, r := range matched {
		comments[i] = r.Comment
	}
	return comments, nil
}

// ListCompletedJobs implements SnapshotStore.
func (m *MemoryStore) ListCompletedJobs(_ context.Context) ([]domain.CompletedJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.CompletedJob, len(m.completed))
	copy(out, m.completed)
	return out, nil
}

// ListCleanerIDs implements SnapshotStore.
func (m *MemoryStore) ListCleanerIDs(_ context.Context, limit int) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]int64, 0, len(m.cleaners))
	for id := range m.cleaners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// ListOpenJobIDs implements SnapshotStore.
func (m *MemoryStore) ListOpenJobIDs(_ context.Context, limit int) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]int64, len(m.openJobs))
	copy(ids, m.openJobs)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// Ensure interface compliance.
var _ SnapshotStore = (*MemoryStore)(nil)
