// TidyMatch - Cleaner Matching and Recommendation Engine
// Copyright 2026 TidyMatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tidymatch/tidymatch

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the config file search order; the first file
// found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/tidymatch/config.yaml",
	"/etc/tidymatch/config.yml",
}

// ConfigPathEnvVar overrides the config file search entirely.
const ConfigPathEnvVar = "CONFIG_PATH"

// Load builds the configuration from layered sources:
//  1. Built-in defaults
//  2. Optional YAML config file
//  3. Environment variables (highest priority)
//
// The result is validated before being returned.
func Load() (*Config, error) {
	return loadFrom(findConfigFile())
}

// LoadFile builds the configuration from an explicit file path plus
// defaults and environment variables.
func LoadFile(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return loadFrom(path)
}

func loadFrom(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first existing config file, or "" when
// running on defaults and environment alone.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths names the string-slice fields that environment
// variables supply as comma-separated values.
var sliceConfigPaths = []string{
	"server.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names onto config paths.
// Unmapped variables are dropped so unrelated environment noise never
// reaches the configuration.
func envTransformFunc(key string) string {
	mappings := map[string]string{
		// Server
		"HTTP_HOST":         "server.host",
		"HTTP_PORT":         "server.port",
		"HTTP_TIMEOUT":      "server.timeout",
		"CORS_ORIGINS":      "server.cors_origins",
		"RATE_LIMIT_REQS":   "server.rate_limit_reqs",
		"RATE_LIMIT_WINDOW": "server.rate_limit_window",

		// Database
		"DUCKDB_PATH":       "database.path",
		"DUCKDB_THREADS":    "database.threads",
		"DUCKDB_MAX_MEMORY": "database.max_memory",

		// Sentence encoder
		"ENCODER_ENABLED":             "encoder.enabled",
		"ENCODER_URL":                 "encoder.url",
		"ENCODER_TIMEOUT":             "encoder.timeout",
		"ENCODER_REQUESTS_PER_SECOND": "encoder.requests_per_second",

		// Embedding cache
		"CACHE_ENABLED": "cache.enabled",
		"CACHE_PATH":    "cache.path",
		"CACHE_TTL":     "cache.ttl",

		// Artifacts
		"ARTIFACTS_DIR":           "artifacts.dir",
		"ARTIFACTS_NAME":          "artifacts.name",
		"ARTIFACTS_KEEP_VERSIONS": "artifacts.keep_versions",

		// Serving
		"SERVING_RELOAD_INTERVAL": "serving.reload_interval",

		// Ranking
		"RECOMMEND_TOP_K":               "recommend.top_k",
		"RECOMMEND_MIN_SCORE":           "recommend.min_score",
		"RECOMMEND_MAX_PARALLEL":        "recommend.max_parallel",
		"RECOMMEND_DISTANCE_WEIGHT":     "recommend.distance_weight",
		"RECOMMEND_PRICE_WEIGHT":        "recommend.price_weight",
		"RECOMMEND_AVAILABILITY_WEIGHT": "recommend.availability_weight",
		"RECOMMEND_MAX_DISTANCE_MILES":  "recommend.max_distance_miles",

		// Training
		"TRAINING_EPOCHS":        "training.epochs",
		"TRAINING_BATCH_SIZE":    "training.batch_size",
		"TRAINING_LEARNING_RATE": "training.learning_rate",
		"TRAINING_PATIENCE":      "training.patience",
		"TRAINING_SEED":          "training.seed",

		// Preprocessing
		"PREPROCESS_SEED":            "preprocess.seed",
		"PREPROCESS_TEST_FRACTION":   "preprocess.test_fraction",
		"PREPROCESS_VAL_FRACTION":    "preprocess.val_fraction",
		"PREPROCESS_REMOVE_OUTLIERS": "preprocess.remove_outliers",

		// Model architecture
		"MODEL_EMBEDDING_DIM":          "model.embedding_dim",
		"MODEL_PROPERTY_EMBEDDING_DIM": "model.property_embedding_dim",
		"MODEL_DROPOUT":                "model.dropout",
		"MODEL_SEED":                   "model.seed",

		// Logging
		"LOG_LEVEL":  "logging.level",
		"LOG_FORMAT": "logging.format",
		"LOG_CALLER": "logging.caller",
	}

	if mapped, ok := mappings[key]; ok {
		return mapped
	}
	return ""
}
