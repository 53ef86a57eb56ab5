// TidyMatch - Cleaner Matching and Recommendation Engine
// Copyright 2026 TidyMatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tidymatch/tidymatch

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2" // duckdb driver

	"github.com/tidymatch/tidymatch/internal/domain"
)

// DuckDBConfig configures the snapshot database connection.
type DuckDBConfig struct {
	// Path is the snapshot database file exported by the application
	// layer. The store opens it read-only.
	Path string

	// Threads is the DuckDB thread count; 0 uses runtime.NumCPU().
	Threads int

	// MaxMemory caps DuckDB memory usage, e.g. "1GB".
	// Default: "1GB".
	MaxMemory string
}

// DuckDBStore reads marketplace snapshots from a DuckDB database.
// Safe for concurrent use; database/sql manages the connection pool.
type DuckDBStore struct {
	conn *sql.DB
}

// NewDuckDBStore opens the snapshot database in read-only mode.
func NewDuckDBStore(cfg DuckDBConfig) (*DuckDBStore, error) {
	if cfg.Path == "" {
		return nil, errors.New("snapshot database path is required")
	}
	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	maxMemory := cfg.MaxMemory
	if maxMemory == "" {
		maxMemory = "1GB"
	}

	// Auto-install/auto-load disabled to prevent hangs in restricted
	// network environments.
	connStr := fmt.Sprintf("%s?access_mode=read_only&threads=%d&max_memory=%s&autoinstall_known_extensions=false&autoload_known_extensions=false",
		cfg.Path, threads, maxMemory)

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("open snapshot database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close() //nolint:errcheck // already failing, ping error is the one to report
		return nil, fmt.Errorf("ping snapshot database: %w", err)
	}

	return &DuckDBStore{conn: conn}, nil
}

// Close releases the database connection.
func (s *DuckDBStore) Close() error {
	return s.conn.Close()
}

// Ping verifies connectivity.
func (s *DuckDBStore) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

// GetJob implements SnapshotStore.
func (s *DuckDBStore) GetJob(ctx context.Context, id int64) (*domain.Job, error) {
	const q = `
		SELECT id, client_id, property_id, scheduled_at, duration_hours,
		       budget, COALESCE(description, ''), recurring
		FROM jobs WHERE id = ?`

	var j domain.Job
	err := s.conn.QueryRowContext(ctx, q, id).Scan(
		&j.ID, &j.ClientID, &j.PropertyID, &j.ScheduledAt,
		&j.DurationHours, &j.Budget, &j.Description, &j.Recurring,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query job %d: %w", id, err)
	}
	return &j, nil
}

// GetCleaner implements SnapshotStore.
func (s *DuckDBStore) GetCleaner(ctx context.Context, id int64) (*domain.Cleaner, error) {
	const q = `
		SELECT id, hourly_rate, service_radius_miles, base_lat, base_lon,
		       years_experience, COALESCE(availability, ''), joined_at
		FROM cleaners WHERE id = ?`

	var (
		c        domain.Cleaner
		availStr string
	)
	err := s.conn.QueryRowContext(ctx, q, id).Scan(
		&c.ID, &c.HourlyRate, &c.ServiceRadiusMiles,
		&c.BaseLocation.Latitude, &c.BaseLocation.Longitude,
		&c.YearsExperience, &availStr, &c.JoinedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("cleaner %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query cleaner %d: %w", id, err)
	}
	c.Availability = parseAvailability(availStr)
	return &c, nil
}

// parseAvailability decodes the 168-character '0'/'1' slot string the
// application layer stores. Short or empty strings leave the remaining
// slots unavailable.
func parseAvailability(s string) domain.WeeklyAvailability {
	var a domain.WeeklyAvailability
	for i := 0; i < len(s) && i < len(a); i++ {
		a[i] = s[i] == '1'
	}
	return a
}

// GetProperty implements SnapshotStore.
func (s *DuckDBStore) GetProperty(ctx context.Context, id int64) (*domain.Property, error) {
	const q = `
		SELECT id, type, size_sqft, bedrooms, bathrooms, lat, lon
		FROM properties WHERE id = ?`

	var (
		p       domain.Property
		typeStr string
	)
	err := s.conn.QueryRowContext(ctx, q, id).Scan(
		&p.ID, &typeStr, &p.SizeSqft, &p.Bedrooms, &p.Bathrooms,
		&p.Location.Latitude, &p.Location.Longitude,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("property %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query property %d: %w", id, err)
	}
	p.Type = domain.PropertyType(typeStr)
	return &p, nil
}

// GetReviewStats implements SnapshotStore.
func (s *DuckDBStore) GetReviewStats(ctx context.Context, cleanerID int64) (domain.ReviewStats, error) {
	const q = `
		SELECT COUNT(*),
		       COALESCE(AVG(rating), 0),
		       COALESCE(STDDEV_POP(rating), 0),
		       COALESCE(SUM(CASE WHEN created_at >= ? THEN 1 ELSE 0 END), 0)
		FROM reviews WHERE cleaner_id = ?`

	cutoff := time.Now().AddDate(0, 0, -90)

	var stats domain.ReviewStats
	err := s.conn.QueryRowContext(ctx, q, cutoff, cleanerID).Scan(
		&stats.Count, &stats.MeanRating, &stats.RatingStdDev, &stats.Recent90DayCount,
	)
	if err != nil {
		return domain.ReviewStats{}, fmt.Errorf("query review stats for cleaner %d: %w", cleanerID, err)
	}

	const qRepeat = `
		SELECT COUNT(*) FROM (
			SELECT client_id FROM reviews
			WHERE cleaner_id = ?
			GROUP BY client_id
			HAVING COUNT(*) > 1
		)`
	if err := s.conn.QueryRowContext(ctx, qRepeat, cleanerID).Scan(&stats.RepeatClients); err != nil {
		return domain.ReviewStats{}, fmt.Errorf("query repeat clients for cleaner %d: %w", cleanerID, err)
	}

	// Completed jobs equals reviewed jobs in the snapshot schema.
	stats.CompletedJobs = stats.Count

	return stats, nil
}

// GetReviewComments implements SnapshotStore.
func (s *DuckDBStore) GetReviewComments(ctx context.Context, cleanerID int64, limit int) ([]string, error) {
	const q = `
		SELECT comment FROM reviews
		WHERE cleaner_id = ? AND comment IS NOT NULL AND comment != ''
		ORDER BY created_at DESC
		LIMIT ?`

	rows, err := s.conn.QueryContext(ctx, q, cleanerID, limit)
	if err != nil {
		return nil, fmt.Errorf("query review comments for cleaner %d: %w", cleanerID, err)
	}
	defer func() { _ = rows.Close() }() //nolint:errcheck // error on close after read is not actionable

	var comments []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan review comment: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate review comments: %w", err)
	}
	return comments, nil
}

// ListCompletedJobs implements SnapshotStore.
func (s *DuckDBStore) ListCompletedJobs(ctx context.Context) ([]domain.CompletedJob, error) {
	const q = `
		SELECT j.id, j.client_id, j.property_id, j.scheduled_at,
		       j.duration_hours, j.budget, COALESCE(j.description, ''), j.recurring,
		       r.id, r.cleaner_id, r.rating, COALESCE(r.comment, ''), r.created_at
		FROM jobs j
		JOIN reviews r ON r.job_id = j.id
		WHERE j.status = 'completed'
		ORDER BY j.id`

	rows, err := s.conn.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query completed jobs: %w", err)
	}
	defer func() { _ = rows.Close() }() //nolint:errcheck // error on close after read is not actionable

	var out []domain.CompletedJob
	for rows.Next() {
		var cj domain.CompletedJob
		if err := rows.Scan(
			&cj.Job.ID, &cj.Job.ClientID, &cj.Job.PropertyID, &cj.Job.ScheduledAt,
			&cj.Job.DurationHours, &cj.Job.Budget, &cj.Job.Description, &cj.Job.Recurring,
			&cj.Review.ID, &cj.Review.CleanerID, &cj.Review.Rating, &cj.Review.Comment, &cj.Review.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan completed job: %w", err)
		}
		cj.Review.JobID = cj.Job.ID
		cj.Review.ClientID = cj.Job.ClientID
		cj.CleanerID = cj.Review.CleanerID
		out = append(out, cj)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate completed jobs: %w", err)
	}
	return out, nil
}

// ListCleanerIDs implements SnapshotStore.
func (s *DuckDBStore) ListCleanerIDs(ctx context.Context, limit int) ([]int64, error) {
	return s.listIDs(ctx, `SELECT id FROM cleaners ORDER BY id LIMIT ?`, limit)
}

// ListOpenJobIDs implements SnapshotStore.
func (s *DuckDBStore) ListOpenJobIDs(ctx context.Context, limit int) ([]int64, error) {
	return s.listIDs(ctx, `SELECT id FROM jobs WHERE status = 'open' ORDER BY id LIMIT ?`, limit)
}

// listIDs runs a single-column int64 query.
func (s *DuckDBStore) listIDs(ctx context.Context, q string, limit int) ([]int64, error) {
	rows, err := s.conn.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("query ids: %w", err)
	}
	defer func() { _ = rows.Close() }() //nolint:errcheck // error on close after read is not actionable

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ids: %w", err)
	}
	return ids, nil
}

// Ensure interface compliance.
var _ SnapshotStore = (*DuckDBStore)(nil)
