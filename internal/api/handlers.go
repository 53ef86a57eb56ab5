// TidyMatch - Cleaner Matching and Recommendation Engine
// Copyright 2026 TidyMatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tidymatch/tidymatch

package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/tidymatch/tidymatch/internal/recommend"
	"github.com/tidymatch/tidymatch/internal/serving"
	"github.com/tidymatch/tidymatch/internal/store"
)

// defaultCandidatePool bounds how many candidates are ranked when a
// request does not name them explicitly.
const defaultCandidatePool = 500

// Handler serves the scoring and ranking endpoints.
type Handler struct {
	store        store.SnapshotStore
	predictor    *serving.Predictor
	orchestrator *recommend.Orchestrator
	logger       zerolog.Logger
}

// NewHandler creates the endpoint handler.
func NewHandler(st store.SnapshotStore, predictor *serving.Predictor, orchestrator *recommend.Orchestrator, logger zerolog.Logger) *Handler {
	return &Handler{
		store:        st,
		predictor:    predictor,
		orchestrator: orchestrator,
		logger:       logger.With().Str("component", "api").Logger(),
	}
}

// scoreResponse is one scored pair.
type scoreResponse struct {
	JobID     int64   `json:"job_id"`
	CleanerID int64   `json:"cleaner_id"`
	Score     float64 `json:"score"`
	Rating    float64 `json:"predicted_rating,omitempty"`
	Method    string  `json:"method_used"`
}

// batchScoreItem is one entry of a batch scoring response. Failed pairs
// carry an error message instead of a score.
type batchScoreItem struct {
	JobID     int64   `json:"job_id"`
	CleanerID int64   `json:"cleaner_id"`
	Score     float64 `json:"score,omitempty"`
	Rating    float64 `json:"predicted_rating,omitempty"`
	Method    string  `json:"method_used,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// Score handles POST /api/v1/score.
func (h *Handler) Score(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r, h.logger)

	var req ScoreRequest
	if details, err := decodeAndValidate(r, &req); err != nil {
		rw.ValidationError(err.Error(), details)
		return
	}

	resp, err := h.scorePair(r.Context(), req.JobID, req.CleanerID)
	if err != nil {
		h.writeScoreError(rw, err)
		return
	}
	rw.Success(resp)
}

// ScoreBatch handles POST /api/v1/score/batch. Pairs fail and succeed
// independently.
func (h *Handler) ScoreBatch(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r, h.logger)

	var req BatchScoreRequest
	if details, err := decodeAndValidate(r, &req); err != nil {
		rw.ValidationError(err.Error(), details)
		return
	}

	items := make([]batchScoreItem, len(req.Pairs))
	for i, pair := range req.Pairs {
		item := batchScoreItem{JobID: pair.JobID, CleanerID: pair.CleanerID}
		resp, err := h.scorePair(r.Context(), pair.JobID, pair.CleanerID)
		if err != nil {
			item.Error = scoreErrorMessage(err)
		} else {
			item.Score = resp.Score
			item.Rating = resp.Rating
			item.Method = resp.Method
		}
		items[i] = item
	}
	rw.Success(items)
}

// scorePair scores one pair directly, sharing the orchestrator's
// fallback semantics but not its MinScore filter: a valid pair always
// gets a score back, however low.
func (h *Handler) scorePair(ctx context.Context, jobID, cleanerID int64) (*scoreResponse, error) {
	res, err := h.orchestrator.ScoreCleanerForJob(ctx, jobID, cleanerID)
	if err != nil {
		return nil, err
	}
	return &scoreResponse{
		JobID:     jobID,
		CleanerID: cleanerID,
		Score:     res.Score,
		Rating:    res.Rating,
		Method:    res.Method,
	}, nil
}

func (h *Handler) writeScoreError(rw *ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		rw.NotFound(err.Error())
	case errors.Is(err, recommend.ErrNotScorable):
		rw.NotFound(err.Error())
	default:
		rw.InternalError(err)
	}
}

func scoreErrorMessage(err error) string {
	if errors.Is(err, recommend.ErrNotScorable) || errors.Is(err, store.ErrNotFound) {
		return err.Error()
	}
	return "internal error"
}

// RecommendCleaners handles POST /api/v1/recommend/cleaners.
func (h *Handler) RecommendCleaners(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r, h.logger)

	var req RecommendCleanersRequest
	if details, err := decodeAndValidate(r, &req); err != nil {
		rw.ValidationError(err.Error(), details)
		return
	}

	candidates := req.CandidateIDs
	if len(candidates) == 0 {
		var err error
		candidates, err = h.store.ListCleanerIDs(r.Context(), defaultCandidatePool)
		if err != nil {
			rw.InternalError(err)
			return
		}
	}

	results, err := h.orchestrator.RankCleanersForJob(r.Context(), req.JobID, candidates)
	if err != nil {
		h.writeScoreError(rw, err)
		return
	}
	rw.Success(results)
}

// RecommendJobs handles POST /api/v1/recommend/jobs.
func (h *Handler) RecommendJobs(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r, h.logger)

	var req RecommendJobsRequest
	if details, err := decodeAndValidate(r, &req); err != nil {
		rw.ValidationError(err.Error(), details)
		return
	}

	candidates := req.CandidateJobIDs
	if len(candidates) == 0 {
		var err error
		candidates, err = h.store.ListOpenJobIDs(r.Context(), defaultCandidatePool)
		if err != nil {
			rw.InternalError(err)
			return
		}
	}

	results, err := h.orchestrator.RankJobsForCleaner(r.Context(), req.CleanerID, candidates)
	if err != nil {
		h.writeScoreError(rw, err)
		return
	}
	rw.Success(results)
}

// Health handles GET /api/v1/health with model and uptime detail.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r, h.logger)
	rw.Success(h.predictor.Health())
}

// HealthLive handles GET /api/v1/health/live. It answers as long as the
// process serves requests.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r, h.logger)
	rw.Success(map[string]string{"status": "alive"})
}

// HealthReady handles GET /api/v1/health/ready. Readiness requires the
// snapshot store; a missing model is not fatal because ranking degrades
// to the rule-based scorer.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r, h.logger)

	if _, err := h.store.ListCleanerIDs(r.Context(), 1); err != nil {
		h.logger.Warn().Err(err).Msg("Readiness probe failed: snapshot store unavailable")
		rw.ServiceUnavailable("snapshot store unavailable")
		return
	}

	rw.Success(map[string]interface{}{
		"status":       "ready",
		"model_loaded": h.predictor.Health().Loaded,
	})
}
