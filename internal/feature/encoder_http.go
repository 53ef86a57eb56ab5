// TidyMatch - Cleaner Matching and Recommendation Engine
// Copyright 2026 TidyMatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tidymatch/tidymatch

package feature

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

// HTTPEncoderConfig configures the sentence-encoder HTTP client.
type HTTPEncoderConfig struct {
	// URL is the encoder service endpoint.
	URL string

	// Timeout is the per-request timeout.
	// Default: 5s.
	Timeout time.Duration

	// RequestsPerSecond rate-limits calls to the encoder service.
	// Default: 20.
	RequestsPerSecond float64

	// Dim is the expected vector width.
	// Default: EmbeddingDim.
	Dim int
}

// HTTPEncoder calls an external sentence-encoding service.
//
// The client is wrapped in a circuit breaker: when the encoder service
// is unavailable or slow, the breaker opens and calls fail fast instead
// of stalling feature extraction. Callers degrade to a zero embedding
// block on error, so an open breaker never fails a scoring request.
//
// DETERMINISM NOTE: the breaker uses real time for its interval and
// timeout calculations. The timing governs recovery from failures, not
// data integrity; unit tests should exercise the wrapped transport
// directly or use ZeroEncoder.
type HTTPEncoder struct {
	cfg     HTTPEncoderConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[[]float64]
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewHTTPEncoder creates an encoder client for the given service.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewHTTPEncoder(cfg HTTPEncoderConfig, logger zerolog.Logger) *HTTPEncoder {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 20
	}
	if cfg.Dim <= 0 {
		cfg.Dim = EmbeddingDim
	}

	log := logger.With().Str("component", "encoder").Logger()

	cb := gobreaker.NewCircuitBreaker[[]float64](gobreaker.Settings{
		Name:        "sentence-encoder",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,

		// Opens when failure rate >= 60% with minimum 10 requests.
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= 0.6
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("encoder circuit breaker state change")
		},
	})

	return &HTTPEncoder{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: cb,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		logger:  log,
	}
}

// Dim returns the expected vector width.
func (e *HTTPEncoder) Dim() int { return e.cfg.Dim }

// encodeRequest is the wire format for the encoder service.
type encodeRequest struct {
	Text string `json:"text"`
}

// encodeResponse is the encoder service response.
type encodeResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Encode sends the text to the encoder service and returns the vector.
// Errors include an open circuit breaker, transport failures, and a
// response vector of the wrong width.
func (e *HTTPEncoder) Encode(ctx context.Context, text string) ([]float64, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("encoder rate limit: %w", err)
	}

	return e.breaker.Execute(func() ([]float64, error) {
		return e.encode(ctx, text)
	})
}

// encode performs the actual HTTP round trip.
func (e *HTTPEncoder) encode(ctx context.Context, text string) ([]float64, error) {
	body, err := json.Marshal(encodeRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("marshal encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build encode request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("encoder request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }() //nolint:errcheck // error on close after read is not actionable

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("encoder returned status %d", resp.StatusCode)
	}

	var out encodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode encoder response: %w", err)
	}

	if len(out.Embedding) != e.cfg.Dim {
		return nil, fmt.Errorf("encoder returned %d dims, want %d", len(out.Embedding), e.cfg.Dim)
	}

	return out.Embedding, nil
}

var _ Encoder = (*HTTPEncoder)(nil)
