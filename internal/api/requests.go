// TidyMatch - Cleaner Matching and Recommendation Engine
// Copyright 2026 TidyMatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tidymatch/tidymatch

package api

import (
	"errors"
	"fmt"
	"net/http"

	validator "github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

// maxRequestBody bounds request payload size (1 MiB).
const maxRequestBody = 1 << 20

// ScoreRequest asks for one (job, cleaner) compatibility score.
type ScoreRequest struct {
	JobID     int64 `json:"job_id" validate:"required,gt=0"`
	CleanerID int64 `json:"cleaner_id" validate:"required,gt=0"`
}

// BatchScoreRequest asks for up to 100 pair scores in one call.
type BatchScoreRequest struct {
	Pairs []ScoreRequest `json:"pairs" validate:"required,min=1,max=100,dive"`
}

// RecommendCleanersRequest asks for a ranked cleaner list for a job.
// When CandidateIDs is empty, the service ranks the known cleaner pool.
type RecommendCleanersRequest struct {
	JobID        int64   `json:"job_id" validate:"required,gt=0"`
	CandidateIDs []int64 `json:"candidate_ids" validate:"omitempty,max=500,dive,gt=0"`
}

// RecommendJobsRequest asks for a ranked open-job list for a cleaner.
type RecommendJobsRequest struct {
	CleanerID       int64   `json:"cleaner_id" validate:"required,gt=0"`
	CandidateJobIDs []int64 `json:"candidate_job_ids" validate:"omitempty,max=500,dive,gt=0"`
}

// validate is the shared validator instance; it caches struct metadata.
var validate = validator.New(validator.WithRequiredStructEnabled())

// fieldError is one validation failure in an error response.
type fieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// decodeAndValidate parses the JSON body into dst and validates it.
// The returned details are per-field failures suitable for the error
// envelope; they are nil for malformed JSON.
func decodeAndValidate(r *http.Request, dst interface{}) (details []fieldError, err error) {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return nil, fmt.Errorf("malformed request body: %w", err)
	}

	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, err
		}
		details = make([]fieldError, 0, len(verrs))
		for _, fe := range verrs {
			details = append(details, fieldError{
				Field:  fe.Namespace(),
				Reason: fmt.Sprintf("failed %q constraint", fe.Tag()),
			})
		}
		return details, errors.New("request validation failed")
	}

	return nil, nil
}
