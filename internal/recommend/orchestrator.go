// TidyMatch - Cleaner Matching and Recommendation Engine
// Copyright 2026 TidyMatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tidymatch/tidymatch

// Package recommend ranks candidates for a job (or jobs for a cleaner).
// Each pair is scored by the neural model when it can say something
// useful, and by the deterministic rule-based scorer otherwise: cold
// starts with neither collaborative history nor review text, and any
// period where no model artifact is loaded. A ranking request always
// returns a (possibly empty) ordered list, never a model error.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tidymatch/tidymatch/internal/domain"
	"github.com/tidymatch/tidymatch/internal/feature"
	"github.com/tidymatch/tidymatch/internal/metrics"
	"github.com/tidymatch/tidymatch/internal/serving"
	"github.com/tidymatch/tidymatch/internal/store"
)

// Scoring method tags attached to each result.
const (
	MethodNeural    = "neural"
	MethodRuleBased = "rule_based"
)

// Config controls ranking behavior.
type Config struct {
	// TopK is the maximum number of results returned. Default: 10.
	TopK int

	// MinScore filters out candidates scoring below it. Default: 0.
	MinScore float64

	// MaxParallel bounds concurrent feature extractions. Default: 8.
	MaxParallel int

	// Rule configures the fallback scorer.
	Rule RuleConfig
}

// DefaultConfig returns the default ranking configuration.
func DefaultConfig() Config {
	return Config{
		TopK:        10,
		MinScore:    0,
		MaxParallel: 8,
		Rule:        DefaultRuleConfig(),
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.TopK < 1 {
		return fmt.Errorf("top_k must be >= 1, got %d", c.TopK)
	}
	if c.MinScore < 0 || c.MinScore > 1 {
		return fmt.Errorf("min_score must be in [0,1], got %g", c.MinScore)
	}
	if c.MaxParallel < 1 {
		return fmt.Errorf("max_parallel must be >= 1, got %d", c.MaxParallel)
	}
	return c.Rule.Validate()
}

// Result is one ranked candidate.
type Result struct {
	// CandidateID is the cleaner ID (RankCleanersForJob) or job ID
	// (RankJobsForCleaner).
	CandidateID int64 `json:"candidate_id"`

	// Score is the match score in [0,1].
	Score float64 `json:"score"`

	// Rating is the predicted rating on the original scale. Zero for
	// rule-based results, which have no calibrated rating.
	Rating float64 `json:"predicted_rating,omitempty"`

	// Method is MethodNeural or MethodRuleBased.
	Method string `json:"method_used"`
}

// Orchestrator coordinates extraction, scoring, and ranking.
type Orchestrator struct {
	cfg       Config
	store     store.SnapshotStore
	predictor *serving.Predictor
	encoder   feature.Encoder
	rule      *RuleScorer
	logger    zerolog.Logger
}

// NewOrchestrator creates an orchestrator. The encoder fills the review
// text embedding block during online extraction; pass a ZeroEncoder to
// run engineered-features-only.
func NewOrchestrator(cfg Config, st store.SnapshotStore, predictor *serving.Predictor, encoder feature.Encoder, logger zerolog.Logger) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("recommend config: %w", err)
	}
	rule, err := NewRuleScorer(cfg.Rule)
	if err != nil {
		return nil, err
	}
	return &Orchestrator{
		cfg:       cfg,
		store:     st,
		predictor: predictor,
		encoder:   encoder,
		rule:      rule,
		logger:    logger.With().Str("component", "recommend").Logger(),
	}, nil
}

// RankCleanersForJob scores each candidate cleaner against the job and
// returns the top-k above the minimum score, ordered by score
// descending with ties broken by candidate ID ascending.
func (o *Orchestrator) RankCleanersForJob(ctx context.Context, jobID int64, candidateIDs []int64) ([]Result, error) {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("job %d: %w", jobID, err)
	}
	property, err := o.store.GetProperty(ctx, job.PropertyID)
	if err != nil {
		return nil, fmt.Errorf("property %d: %w", job.PropertyID, err)
	}

	extractor, modelLoaded := o.extractor()

	results := make([]*Result, len(candidateIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.MaxParallel)
	for i, id := range candidateIDs {
		g.Go(func() error {
			cleaner, err := o.store.GetCleaner(gctx, id)
			if err != nil {
				o.logger.Warn().Err(err).Int64("cleaner_id", id).Msg("Skipping candidate: lookup failed")
				return nil
			}
			results[i] = o.scorePair(gctx, extractor, modelLoaded, job, property, cleaner, cleaner.ID)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ranked := o.rank(results)
	o.observe(ranked)
	return ranked, nil
}

// RankJobsForCleaner is the symmetric operation: it scores each
// candidate job against one cleaner.
func (o *Orchestrator) RankJobsForCleaner(ctx context.Context, cleanerID int64, candidateJobIDs []int64) ([]Result, error) {
	cleaner, err := o.store.GetCleaner(ctx, cleanerID)
	if err != nil {
		return nil, fmt.Errorf("cleaner %d: %w", cleanerID, err)
	}

	extractor, modelLoaded := o.extractor()

	results := make([]*Result, len(candidateJobIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.MaxParallel)
	for i, id := range candidateJobIDs {
		g.Go(func() error {
			job, err := o.store.GetJob(gctx, id)
			if err != nil {
				o.logger.Warn().Err(err).Int64("job_id", id).Msg("Skipping candidate: lookup failed")
				return nil
			}
			property, err := o.store.GetProperty(gctx, job.PropertyID)
			if err != nil {
				o.logger.Warn().Err(err).Int64("job_id", id).Msg("Skipping candidate: property lookup failed")
				return nil
			}
			results[i] = o.scorePair(gctx, extractor, modelLoaded, job, property, cleaner, job.ID)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ranked := o.rank(results)
	o.observe(ranked)
	return ranked, nil
}

// ErrNotScorable reports a pair that was dropped rather than scored,
// e.g. because feature extraction failed on it.
var ErrNotScorable = errors.New("pair could not be scored")

// ScoreCleanerForJob scores one pair directly. Unlike the ranking
// operations it applies no MinScore filter and no truncation: a
// structurally valid pair always yields a score, however low.
func (o *Orchestrator) ScoreCleanerForJob(ctx context.Context, jobID, cleanerID int64) (*Result, error) {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("job %d: %w", jobID, err)
	}
	property, err := o.store.GetProperty(ctx, job.PropertyID)
	if err != nil {
		return nil, fmt.Errorf("property %d: %w", job.PropertyID, err)
	}
	cleaner, err := o.store.GetCleaner(ctx, cleanerID)
	if err != nil {
		return nil, fmt.Errorf("cleaner %d: %w", cleanerID, err)
	}

	extractor, modelLoaded := o.extractor()
	res := o.scorePair(ctx, extractor, modelLoaded, job, property, cleaner, cleanerID)
	if res == nil {
		return nil, ErrNotScorable
	}
	o.observe([]Result{*res})
	return res, nil
}

// extractor builds a feature extractor around the loaded artifact's
// identifier maps. Without a loaded model there is nothing to extract
// for, so ranking runs entirely on the rule scorer.
func (o *Orchestrator) extractor() (*feature.Extractor, bool) {
	maps, ok := o.predictor.Maps()
	if !ok {
		return nil, false
	}
	return feature.NewExtractor(o.store, o.encoder, maps, o.logger), true
}

// scorePair scores one (job, cleaner) pair, choosing neural scoring or
// the rule-based fallback. It never fails: candidates that cannot be
// scored at all are dropped by returning nil.
func (o *Orchestrator) scorePair(ctx context.Context, extractor *feature.Extractor, modelLoaded bool, job *domain.Job, property *domain.Property, cleaner *domain.Cleaner, candidateID int64) *Result {
	if !modelLoaded {
		metrics.FallbackTotal.WithLabelValues("model_unavailable").Inc()
		return &Result{
			CandidateID: candidateID,
			Score:       o.rule.Score(job, property, cleaner),
			Method:      MethodRuleBased,
		}
	}

	vec, err := extractor.Extract(ctx, job, cleaner)
	if err != nil {
		metrics.ExtractionFailures.Inc()
		o.logger.Warn().Err(err).
			Int64("job_id", job.ID).
			Int64("cleaner_id", cleaner.ID).
			Msg("Skipping candidate: extraction failed")
		return nil
	}

	// Cold start: the model has never seen this pairing and there is no
	// review text to lean on, so its output would be noise.
	maps, _ := o.predictor.Maps()
	knownPair := maps.Clients.Contains(job.ClientID) && maps.Cleaners.Contains(cleaner.ID)
	if !knownPair && !vec.HasEmbedding() {
		metrics.FallbackTotal.WithLabelValues("cold_start").Inc()
		return &Result{
			CandidateID: candidateID,
			Score:       o.rule.Score(job, property, cleaner),
			Method:      MethodRuleBased,
		}
	}

	pred, err := o.predictor.PredictOne(vec)
	if err != nil {
		if !errors.Is(err, serving.ErrModelUnavailable) {
			o.logger.Warn().Err(err).
				Int64("cleaner_id", cleaner.ID).
				Msg("Neural scoring failed, using rule-based fallback")
		}
		metrics.FallbackTotal.WithLabelValues("model_unavailable").Inc()
		return &Result{
			CandidateID: candidateID,
			Score:       o.rule.Score(job, property, cleaner),
			Method:      MethodRuleBased,
		}
	}

	return &Result{
		CandidateID: candidateID,
		Score:       pred.Score,
		Rating:      pred.Rating,
		Method:      MethodNeural,
	}
}

// rank filters, orders, and truncates results. Ordering is fully
// deterministic: score descending, candidate ID ascending on ties.
func (o *Orchestrator) rank(results []*Result) []Result {
	ranked := make([]Result, 0, len(results))
	for _, r := range results {
		if r == nil || r.Score < o.cfg.MinScore {
			continue
		}
		ranked = append(ranked, *r)
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].CandidateID < ranked[j].CandidateID
	})

	if len(ranked) > o.cfg.TopK {
		ranked = ranked[:o.cfg.TopK]
	}
	return ranked
}

// observe records per-request method counts.
func (o *Orchestrator) observe(ranked []Result) {
	neural := 0
	for _, r := range ranked {
		if r.Method == MethodNeural {
			neural++
		}
	}
	if neural > 0 {
		metrics.RecommendRequests.WithLabelValues(MethodNeural).Inc()
	}
	if neural < len(ranked) {
		metrics.RecommendRequests.WithLabelValues(MethodRuleBased).Inc()
	}
}
