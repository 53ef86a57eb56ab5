// TidyMatch - Cleaner Matching and Recommendation Engine
// Copyright 2026 TidyMatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tidymatch/tidymatch

// Package config loads and validates the TidyMatch configuration from
// layered sources: built-in defaults, an optional YAML file, and
// environment variables, in increasing priority.
package config

import (
	"fmt"
	"time"

	"github.com/tidymatch/tidymatch/internal/cache"
	"github.com/tidymatch/tidymatch/internal/feature"
	"github.com/tidymatch/tidymatch/internal/logging"
	"github.com/tidymatch/tidymatch/internal/model"
	"github.com/tidymatch/tidymatch/internal/preprocess"
	"github.com/tidymatch/tidymatch/internal/recommend"
	"github.com/tidymatch/tidymatch/internal/store"
	"github.com/tidymatch/tidymatch/internal/training"
)

// Config is the root configuration for both the server and the trainer.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	Encoder    EncoderConfig    `koanf:"encoder"`
	Cache      CacheConfig      `koanf:"cache"`
	Artifacts  ArtifactsConfig  `koanf:"artifacts"`
	Serving    ServingConfig    `koanf:"serving"`
	Recommend  RecommendConfig  `koanf:"recommend"`
	Training   TrainingConfig   `koanf:"training"`
	Preprocess PreprocessConfig `koanf:"preprocess"`
	Model      ModelConfig      `koanf:"model"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	// Host is the listen address. Default: "0.0.0.0".
	Host string `koanf:"host"`

	// Port is the listen port. Default: 8080.
	Port int `koanf:"port"`

	// Timeout bounds request handling. Default: 30s.
	Timeout time.Duration `koanf:"timeout"`

	// CORSOrigins lists allowed origins. Default: ["*"].
	CORSOrigins []string `koanf:"cors_origins"`

	// RateLimitReqs is the per-IP request budget per window. Default: 100.
	RateLimitReqs int `koanf:"rate_limit_reqs"`

	// RateLimitWindow is the rate limit window. Default: 1m.
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// DatabaseConfig configures the marketplace snapshot database.
type DatabaseConfig struct {
	// Path is the DuckDB snapshot file. Default: "/data/tidymatch.duckdb".
	Path string `koanf:"path"`

	// Threads is the DuckDB thread count; 0 uses all CPUs. Default: 0.
	Threads int `koanf:"threads"`

	// MaxMemory caps DuckDB memory usage. Default: "1GB".
	MaxMemory string `koanf:"max_memory"`
}

// EncoderConfig configures the sentence-encoder client.
type EncoderConfig struct {
	// Enabled turns the external encoder on. When false, review text
	// contributes a zero embedding block. Default: false.
	Enabled bool `koanf:"enabled"`

	// URL is the encoder service endpoint.
	URL string `koanf:"url"`

	// Timeout is the per-request timeout. Default: 5s.
	Timeout time.Duration `koanf:"timeout"`

	// RequestsPerSecond rate-limits encoder calls. Default: 20.
	RequestsPerSecond float64 `koanf:"requests_per_second"`
}

// CacheConfig configures the embedding cache.
type CacheConfig struct {
	// Enabled turns the durable embedding cache on. Default: true.
	Enabled bool `koanf:"enabled"`

	// Path is the cache directory; empty runs in memory.
	// Default: "/data/cache".
	Path string `koanf:"path"`

	// TTL is how long cached vectors stay valid. Default: 24h.
	TTL time.Duration `koanf:"ttl"`
}

// ArtifactsConfig configures the model artifact store.
type ArtifactsConfig struct {
	// Dir is the artifact directory. Default: "/data/models".
	Dir string `koanf:"dir"`

	// Name is the artifact family served. Default: "hybrid".
	Name string `koanf:"name"`

	// KeepVersions bounds retained versions per family; 0 keeps all.
	// Default: 5.
	KeepVersions int `koanf:"keep_versions"`
}

// ServingConfig configures the prediction service.
type ServingConfig struct {
	// ReloadInterval is how often the reloader polls for new artifact
	// versions; 0 disables hot reload. Default: 30s.
	ReloadInterval time.Duration `koanf:"reload_interval"`
}

// RecommendConfig configures candidate ranking.
type RecommendConfig struct {
	// TopK is the maximum results per ranking. Default: 10.
	TopK int `koanf:"top_k"`

	// MinScore filters candidates below it. Default: 0.
	MinScore float64 `koanf:"min_score"`

	// MaxParallel bounds concurrent extractions. Default: 8.
	MaxParallel int `koanf:"max_parallel"`

	// DistanceWeight scales the rule scorer's proximity component.
	// Default: 0.4.
	DistanceWeight float64 `koanf:"distance_weight"`

	// PriceWeight scales the rule scorer's budget-fit component.
	// Default: 0.3.
	PriceWeight float64 `koanf:"price_weight"`

	// AvailabilityWeight scales the rule scorer's schedule component.
	// Default: 0.3.
	AvailabilityWeight float64 `koanf:"availability_weight"`

	// MaxDistanceMiles is where proximity reaches zero. Default: 50.
	MaxDistanceMiles float64 `koanf:"max_distance_miles"`
}

// TrainingConfig configures the trainer.
type TrainingConfig struct {
	// Epochs is the maximum epoch count. Default: 100.
	Epochs int `koanf:"epochs"`

	// BatchSize is the mini-batch size. Default: 64.
	BatchSize int `koanf:"batch_size"`

	// LearningRate is the Adam learning rate. Default: 0.001.
	LearningRate float64 `koanf:"learning_rate"`

	// Patience is epochs without validation improvement before early
	// stop. Default: 8.
	Patience int `koanf:"patience"`

	// Seed fixes epoch shuffling. Default: 1.
	Seed int64 `koanf:"seed"`
}

// PreprocessConfig configures dataset preprocessing.
type PreprocessConfig struct {
	// Seed fixes the train/val/test split. Default: 42.
	Seed int64 `koanf:"seed"`

	// TestFraction is the test share of the dataset. Default: 0.1.
	TestFraction float64 `koanf:"test_fraction"`

	// ValFraction is the validation share. Default: 0.1.
	ValFraction float64 `koanf:"val_fraction"`

	// RemoveOutliers enables IQR outlier filtering. Default: true.
	RemoveOutliers bool `koanf:"remove_outliers"`
}

// ModelConfig configures the network architecture. Vocabulary sizes are
// not configured here; they come from the training data.
type ModelConfig struct {
	// EmbeddingDim is the client/cleaner embedding width. Default: 32.
	EmbeddingDim int `koanf:"embedding_dim"`

	// PropertyEmbeddingDim is the property-type embedding width.
	// Default: 8.
	PropertyEmbeddingDim int `koanf:"property_embedding_dim"`

	// CollabHidden are the collaborative branch widths. Default: [64, 32].
	CollabHidden []int `koanf:"collab_hidden"`

	// ContentHidden are the content branch widths. Default: [128, 64].
	ContentHidden []int `koanf:"content_hidden"`

	// Dropout is the training-time dropout probability. Default: 0.2.
	Dropout float64 `koanf:"dropout"`

	// Seed fixes weight initialization. Default: 1.
	Seed int64 `koanf:"seed"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	// Level is the minimum log level. Default: "info".
	Level string `koanf:"level"`

	// Format is "json" or "console". Default: "json".
	Format string `koanf:"format"`

	// Caller includes caller file:line in logs. Default: false.
	Caller bool `koanf:"caller"`
}

// defaultConfig returns the built-in defaults. File and environment
// layers override these.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			Timeout:         30 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Database: DatabaseConfig{
			Path:      "/data/tidymatch.duckdb",
			Threads:   0,
			MaxMemory: "1GB",
		},
		Encoder: EncoderConfig{
			Enabled:           false,
			URL:               "",
			Timeout:           5 * time.Second,
			RequestsPerSecond: 20,
		},
		Cache: CacheConfig{
			Enabled: true,
			Path:    "/data/cache",
			TTL:     24 * time.Hour,
		},
		Artifacts: ArtifactsConfig{
			Dir:          "/data/models",
			Name:         "hybrid",
			KeepVersions: 5,
		},
		Serving: ServingConfig{
			ReloadInterval: 30 * time.Second,
		},
		Recommend: RecommendConfig{
			TopK:               10,
			MinScore:           0,
			MaxParallel:        8,
			DistanceWeight:     0.4,
			PriceWeight:        0.3,
			AvailabilityWeight: 0.3,
			MaxDistanceMiles:   50,
		},
		Training: TrainingConfig{
			Epochs:       100,
			BatchSize:    64,
			LearningRate: 0.001,
			Patience:     8,
			Seed:         1,
		},
		Preprocess: PreprocessConfig{
			Seed:           42,
			TestFraction:   0.1,
			ValFraction:    0.1,
			RemoveOutliers: true,
		},
		Model: ModelConfig{
			EmbeddingDim:         32,
			PropertyEmbeddingDim: 8,
			CollabHidden:         []int{64, 32},
			ContentHidden:        []int{128, 64},
			Dropout:              0.2,
			Seed:                 1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Validate checks the whole configuration, delegating to the component
// validators where they exist.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in [1,65535], got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server.timeout must be > 0, got %s", c.Server.Timeout)
	}
	if c.Server.RateLimitReqs < 1 {
		return fmt.Errorf("server.rate_limit_reqs must be >= 1, got %d", c.Server.RateLimitReqs)
	}
	if c.Server.RateLimitWindow <= 0 {
		return fmt.Errorf("server.rate_limit_window must be > 0, got %s", c.Server.RateLimitWindow)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Encoder.Enabled && c.Encoder.URL == "" {
		return fmt.Errorf("encoder.url is required when the encoder is enabled")
	}
	if c.Cache.Enabled {
		if err := c.Cache.ToCache().Validate(); err != nil {
			return fmt.Errorf("cache: %w", err)
		}
	}
	if c.Artifacts.Dir == "" {
		return fmt.Errorf("artifacts.dir is required")
	}
	if c.Artifacts.Name == "" {
		return fmt.Errorf("artifacts.name is required")
	}
	if c.Artifacts.KeepVersions < 0 {
		return fmt.Errorf("artifacts.keep_versions must be >= 0, got %d", c.Artifacts.KeepVersions)
	}
	if c.Serving.ReloadInterval < 0 {
		return fmt.Errorf("serving.reload_interval must be >= 0, got %s", c.Serving.ReloadInterval)
	}
	if err := c.Recommend.ToRecommend().Validate(); err != nil {
		return fmt.Errorf("recommend: %w", err)
	}
	if err := c.Training.ToTraining().Validate(); err != nil {
		return fmt.Errorf("training: %w", err)
	}
	if err := c.Preprocess.ToPreprocess().Validate(); err != nil {
		return fmt.Errorf("preprocess: %w", err)
	}
	// Architecture fields are validated with placeholder vocabularies;
	// real sizes come from the training data.
	if err := c.Model.ToModel(1, 1, 1).Validate(); err != nil {
		return fmt.Errorf("model: %w", err)
	}
	return nil
}

// ToDuckDB converts to the store configuration.
func (c DatabaseConfig) ToDuckDB() store.DuckDBConfig {
	return store.DuckDBConfig{
		Path:      c.Path,
		Threads:   c.Threads,
		MaxMemory: c.MaxMemory,
	}
}

// ToHTTPEncoder converts to the encoder client configuration.
func (c EncoderConfig) ToHTTPEncoder() feature.HTTPEncoderConfig {
	return feature.HTTPEncoderConfig{
		URL:               c.URL,
		Timeout:           c.Timeout,
		RequestsPerSecond: c.RequestsPerSecond,
	}
}

// ToCache converts to the embedding cache configuration.
func (c CacheConfig) ToCache() cache.Config {
	return cache.Config{
		Path: c.Path,
		TTL:  c.TTL,
	}
}

// ToRecommend converts to the orchestrator configuration.
func (c RecommendConfig) ToRecommend() recommend.Config {
	return recommend.Config{
		TopK:        c.TopK,
		MinScore:    c.MinScore,
		MaxParallel: c.MaxParallel,
		Rule: recommend.RuleConfig{
			DistanceWeight:     c.DistanceWeight,
			PriceWeight:        c.PriceWeight,
			AvailabilityWeight: c.AvailabilityWeight,
			MaxDistanceMiles:   c.MaxDistanceMiles,
		},
	}
}

// ToTraining converts to the trainer configuration.
func (c TrainingConfig) ToTraining() training.Config {
	return training.Config{
		Epochs:       c.Epochs,
		BatchSize:    c.BatchSize,
		LearningRate: c.LearningRate,
		Patience:     c.Patience,
		Seed:         c.Seed,
	}
}

// ToPreprocess converts to the preprocessing configuration.
func (c PreprocessConfig) ToPreprocess() preprocess.Config {
	return preprocess.Config{
		Seed:           c.Seed,
		TestFraction:   c.TestFraction,
		ValFraction:    c.ValFraction,
		RemoveOutliers: c.RemoveOutliers,
	}
}

// ToModel converts to the architecture configuration for the given
// vocabulary sizes.
func (c ModelConfig) ToModel(numClients, numCleaners, numPropertyTypes int) model.Config {
	return model.Config{
		NumClients:           numClients,
		NumCleaners:          numCleaners,
		NumPropertyTypes:     numPropertyTypes,
		EmbeddingDim:         c.EmbeddingDim,
		PropertyEmbeddingDim: c.PropertyEmbeddingDim,
		CollabHidden:         c.CollabHidden,
		ContentHidden:        c.ContentHidden,
		Dropout:              c.Dropout,
		Seed:                 c.Seed,
	}
}

// ToLogging converts to the logging configuration.
func (c LoggingConfig) ToLogging() logging.Config {
	return logging.Config{
		Level:  c.Level,
		Format: c.Format,
		Caller: c.Caller,
	}
}
