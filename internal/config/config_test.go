// TidyMatch - Cleaner Matching and Recommendation Engine
// Copyright 2026 TidyMatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tidymatch/tidymatch

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return path
}

func TestDefaultsValidate(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() on defaults error = %v", err)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: 9090
  cors_origins:
    - "https://app.tidymatch.example"
recommend:
  top_k: 25
training:
  learning_rate: 0.01
model:
  collab_hidden: [16, 8]
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if len(cfg.Server.CORSOrigins) != 1 || cfg.Server.CORSOrigins[0] != "https://app.tidymatch.example" {
		t.Errorf("Server.CORSOrigins = %v", cfg.Server.CORSOrigins)
	}
	if cfg.Recommend.TopK != 25 {
		t.Errorf("Recommend.TopK = %d, want 25", cfg.Recommend.TopK)
	}
	if cfg.Training.LearningRate != 0.01 {
		t.Errorf("Training.LearningRate = %g, want 0.01", cfg.Training.LearningRate)
	}
	if len(cfg.Model.CollabHidden) != 2 || cfg.Model.CollabHidden[0] != 16 {
		t.Errorf("Model.CollabHidden = %v, want [16 8]", cfg.Model.CollabHidden)
	}

	// Untouched sections keep their defaults.
	if cfg.Database.Path != "/data/tidymatch.duckdb" {
		t.Errorf("Database.Path = %q, want default", cfg.Database.Path)
	}
	if cfg.Serving.ReloadInterval != 30*time.Second {
		t.Errorf("Serving.ReloadInterval = %s, want 30s", cfg.Serving.ReloadInterval)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, "server:\n  port: 9090\n")

	t.Setenv("HTTP_PORT", "7070")
	t.Setenv("DUCKDB_PATH", "/tmp/snapshot.duckdb")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Server.Port = %d, want env override 7070", cfg.Server.Port)
	}
	if cfg.Database.Path != "/tmp/snapshot.duckdb" {
		t.Errorf("Database.Path = %q, want env override", cfg.Database.Path)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "https://b.example" {
		t.Errorf("Server.CORSOrigins = %v, want two trimmed origins", cfg.Server.CORSOrigins)
	}
}

func TestUnmappedEnvIgnored(t *testing.T) {
	t.Setenv("RANDOM_UNRELATED_VAR", "boom")

	cfg, err := LoadFile(writeConfigFile(t, "{}\n"))
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want default 8080", cfg.Server.Port)
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("LoadFile() accepted a missing file")
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"empty db path", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"encoder enabled without url", func(c *Config) { c.Encoder.Enabled = true }, "encoder.url"},
		{"zero cache ttl", func(c *Config) { c.Cache.TTL = 0 }, "cache"},
		{"empty artifact name", func(c *Config) { c.Artifacts.Name = "" }, "artifacts.name"},
		{"bad top_k", func(c *Config) { c.Recommend.TopK = 0 }, "recommend"},
		{"bad batch size", func(c *Config) { c.Training.BatchSize = 0 }, "training"},
		{"bad fractions", func(c *Config) { c.Preprocess.TestFraction = 0.6; c.Preprocess.ValFraction = 0.5 }, "preprocess"},
		{"bad dropout", func(c *Config) { c.Model.Dropout = 1.5 }, "model"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() accepted invalid config")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestConverters(t *testing.T) {
	cfg := defaultConfig()

	db := cfg.Database.ToDuckDB()
	if db.Path != cfg.Database.Path || db.MaxMemory != "1GB" {
		t.Errorf("ToDuckDB() = %+v", db)
	}

	rec := cfg.Recommend.ToRecommend()
	if rec.TopK != 10 || rec.Rule.MaxDistanceMiles != 50 {
		t.Errorf("ToRecommend() = %+v", rec)
	}

	m := cfg.Model.ToModel(100, 50, 9)
	if m.NumClients != 100 || m.NumCleaners != 50 || m.NumPropertyTypes != 9 {
		t.Errorf("ToModel() vocabularies = %d/%d/%d", m.NumClients, m.NumCleaners, m.NumPropertyTypes)
	}
	if m.EmbeddingDim != 32 || len(m.ContentHidden) != 2 {
		t.Errorf("ToModel() architecture = %+v", m)
	}

	lg := cfg.Logging.ToLogging()
	if lg.Level != "info" || lg.Format != "json" {
		t.Errorf("ToLogging() = %+v", lg)
	}
}
