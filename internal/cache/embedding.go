// TidyMatch - Cleaner Matching and Recommendation Engine
// Copyright 2026 TidyMatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tidymatch/tidymatch

// Package cache provides a durable cache for sentence-encoder output.
// Review text changes rarely while candidate ranking re-extracts it on
// every request, so caching the encoded vectors removes most calls to
// the external encoder.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tidymatch/tidymatch/internal/feature"
	"github.com/tidymatch/tidymatch/internal/metrics"
)

const embeddingKeyPrefix = "embedding:"

// Config controls the embedding cache.
type Config struct {
	// Path is the BadgerDB directory. Empty runs the cache in memory.
	Path string

	// TTL is how long a cached vector stays valid. Default: 24h.
	TTL time.Duration
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{TTL: 24 * time.Hour}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.TTL <= 0 {
		return fmt.Errorf("ttl must be > 0, got %s", c.TTL)
	}
	return nil
}

// EmbeddingCache stores encoded vectors in BadgerDB, keyed by a hash of
// the input text and the vector width.
type EmbeddingCache struct {
	db     *badger.DB
	ttl    time.Duration
	logger zerolog.Logger
}

// Open opens (or creates) the cache at the configured path.
func Open(cfg Config, logger zerolog.Logger) (*EmbeddingCache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("cache config: %w", err)
	}

	opts := badger.DefaultOptions(cfg.Path).WithLogger(nil)
	if cfg.Path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open embedding cache: %w", err)
	}

	return &EmbeddingCache{
		db:     db,
		ttl:    cfg.TTL,
		logger: logger.With().Str("component", "embedding_cache").Logger(),
	}, nil
}

// Close closes the underlying database.
func (c *EmbeddingCache) Close() error {
	return c.db.Close()
}

// key hashes the text so arbitrary review content never appears in the
// key space; the width guards against schema changes across restarts.
func key(text string, dim int) []byte {
	sum := sha256.Sum256([]byte(text))
	return []byte(fmt.Sprintf("%s%s:%d", embeddingKeyPrefix, hex.EncodeToString(sum[:]), dim))
}

// Get returns the cached vector for the text, or ok=false on a miss.
func (c *EmbeddingCache) Get(text string, dim int) ([]float64, bool) {
	var vec []float64
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(text, dim))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &vec)
		})
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			c.logger.Warn().Err(err).Msg("Embedding cache read failed")
		}
		return nil, false
	}
	if len(vec) != dim {
		return nil, false
	}
	return vec, true
}

// Put stores a vector under the text's key with the configured TTL.
func (c *EmbeddingCache) Put(text string, vec []float64) error {
	data, err := json.Marshal(vec)
	if err != nil {
		return fmt.Errorf("marshal embedding: %w", err)
	}
	return c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(key(text, len(vec)), data).WithTTL(c.ttl)
		return txn.SetEntry(entry)
	})
}

// CachedEncoder wraps an Encoder with the cache. Cache failures never
// fail a request; they fall through to the inner encoder.
type CachedEncoder struct {
	inner  feature.Encoder
	cache  *EmbeddingCache
	logger zerolog.Logger
}

// NewCachedEncoder wraps the encoder.
func NewCachedEncoder(inner feature.Encoder, cache *EmbeddingCache, logger zerolog.Logger) *CachedEncoder {
	return &CachedEncoder{
		inner:  inner,
		cache:  cache,
		logger: logger.With().Str("component", "cached_encoder").Logger(),
	}
}

// Encode returns the cached vector when present, otherwise encodes and
// caches the result.
func (e *CachedEncoder) Encode(ctx context.Context, text string) ([]float64, error) {
	if vec, ok := e.cache.Get(text, e.inner.Dim()); ok {
		metrics.EncoderCacheLookups.WithLabelValues("hit").Inc()
		return vec, nil
	}
	metrics.EncoderCacheLookups.WithLabelValues("miss").Inc()

	vec, err := e.inner.Encode(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := e.cache.Put(text, vec); err != nil {
		e.logger.Warn().Err(err).Msg("Embedding cache write failed")
	}
	return vec, nil
}

// Dim returns the inner encoder's width.
func (e *CachedEncoder) Dim() int {
	return e.inner.Dim()
}

var _ feature.Encoder = (*CachedEncoder)(nil)
