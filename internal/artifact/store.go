// TidyMatch - Cleaner Matching and Recommendation Engine
// Copyright 2026 TidyMatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tidymatch/tidymatch

// Package artifact persists trained model bundles.
//
// An artifact is immutable once written: every training run saves a new
// monotonically increasing version under {name}_v{version}.gob.gz, and
// serving swaps between versions without rewriting any file. Files
// carry a SHA-256 checksum of the uncompressed payload; a corrupt file
// fails to load instead of producing a silently wrong model.
package artifact

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tidymatch/tidymatch/internal/feature"
	"github.com/tidymatch/tidymatch/internal/model"
	"github.com/tidymatch/tidymatch/internal/preprocess"
)

// DefaultName is the artifact name the trainer and server agree on.
const DefaultName = "hybrid"

// Metadata describes one stored artifact version.
type Metadata struct {
	// Name is the artifact name.
	Name string `json:"name"`

	// Version is monotonically increasing per name.
	Version int `json:"version"`

	// RunID identifies the training run that produced this version.
	RunID string `json:"run_id"`

	// TrainedAt is when training finished.
	TrainedAt time.Time `json:"trained_at"`

	// SavedAt is when the artifact was written.
	SavedAt time.Time `json:"saved_at"`

	// TrainRows, ValRows, and TestRows are the partition sizes.
	TrainRows int `json:"train_rows"`
	ValRows   int `json:"val_rows"`
	TestRows  int `json:"test_rows"`

	// Epochs is the number of epochs actually run.
	Epochs int `json:"epochs"`

	// LearningRate is the optimizer learning rate.
	LearningRate float64 `json:"learning_rate"`

	// BestValLoss is the best validation loss reached.
	BestValLoss float64 `json:"best_val_loss"`

	// TrainingDurationMS is how long training took.
	TrainingDurationMS int64 `json:"training_duration_ms"`

	// Checksum is the SHA-256 of the uncompressed payload.
	Checksum string `json:"checksum"`

	// SizeBytes is the compressed payload size.
	SizeBytes int64 `json:"size_bytes"`
}

// ModelArtifact is the complete bundle serving needs: trained weights,
// the frozen identifier maps, and the fitted preprocessing transforms.
// Treated as read-only after load.
type ModelArtifact struct {
	Weights *model.Weights

	Clients       *feature.IdentifierMap
	Cleaners      *feature.IdentifierMap
	PropertyTypes *feature.IdentifierMap

	Standardizer *preprocess.Standardizer
	Bounds       preprocess.TargetBounds
	Preprocess   preprocess.Config
}

// Maps returns the bundled identifier maps in extractor form.
func (a *ModelArtifact) Maps() feature.Maps {
	return feature.Maps{
		Clients:       a.Clients,
		Cleaners:      a.Cleaners,
		PropertyTypes: a.PropertyTypes,
	}
}

// validate rejects bundles missing a required part.
func (a *ModelArtifact) validate() error {
	if a.Weights == nil {
		return fmt.Errorf("artifact has no weights")
	}
	if a.Clients == nil || a.Cleaners == nil || a.PropertyTypes == nil {
		return fmt.Errorf("artifact is missing identifier maps")
	}
	if a.Standardizer == nil {
		return fmt.Errorf("artifact has no standardizer")
	}
	return nil
}

// storedFile is the on-disk format.
type storedFile struct {
	Metadata       Metadata
	CompressedData []byte
}

// Store manages versioned artifacts under one directory.
type Store struct {
	baseDir string

	mu       sync.RWMutex
	versions map[string]int
}

// NewStore opens (creating if needed) an artifact directory and indexes
// the versions already present.
func NewStore(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o750); err != nil { //nolint:gosec // 0750 is acceptable for artifact storage
		return nil, fmt.Errorf("create artifact directory: %w", err)
	}

	s := &Store{
		baseDir:  baseDir,
		versions: make(map[string]int),
	}
	if err := s.scan(); err != nil {
		return nil, fmt.Errorf("scan artifact directory: %w", err)
	}
	return s, nil
}

// scan rebuilds the version index from the directory. Callers hold the
// write lock (or own the store exclusively, as in NewStore).
func (s *Store) scan() error {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return err
	}
	versions := make(map[string]int)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name, version, ok := parseFilename(entry.Name())
		if !ok {
			continue
		}
		if current, exists := versions[name]; !exists || version > current {
			versions[name] = version
		}
	}
	s.versions = versions
	return nil
}

// Rescan re-indexes the directory so versions written by another
// process become visible. The trainer and the server each hold their
// own Store over the shared directory; the server's reloader rescans
// before every poll.
func (s *Store) Rescan() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.scan(); err != nil {
		return fmt.Errorf("rescan artifact directory: %w", err)
	}
	return nil
}

// parseFilename splits "{name}_v{version}.gob.gz" into its parts.
func parseFilename(filename string) (name string, version int, ok bool) {
	base, found := strings.CutSuffix(filename, ".gob.gz")
	if !found {
		return "", 0, false
	}
	idx := strings.LastIndex(base, "_v")
	if idx < 1 {
		return "", 0, false
	}
	version, err := strconv.Atoi(base[idx+2:])
	if err != nil || version < 1 {
		return "", 0, false
	}
	return base[:idx], version, true
}

func (s *Store) path(name string, version int) string {
	return filepath.Join(s.baseDir, fmt.Sprintf("%s_v%d.gob.gz", name, version))
}

// Save writes the artifact as the next version of name and returns the
// assigned version. Existing versions are never touched; a failed save
// leaves the previous good version in place.
func (s *Store) Save(name string, a *ModelArtifact, meta Metadata) (int, error) {
	if err := a.validate(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	version := s.versions[name] + 1

	var payload bytes.Buffer
	if err := gob.NewEncoder(&payload).Encode(a); err != nil {
		return 0, fmt.Errorf("encode artifact: %w", err)
	}
	raw := payload.Bytes()

	hash := sha256.Sum256(raw)
	meta.Checksum = hex.EncodeToString(hash[:])

	var compressed bytes.Buffer
	gzw := gzip.NewWriter(&compressed)
	if _, err := gzw.Write(raw); err != nil {
		return 0, fmt.Errorf("compress artifact: %w", err)
	}
	if err := gzw.Close(); err != nil {
		return 0, fmt.Errorf("finalize compression: %w", err)
	}

	meta.Name = name
	meta.Version = version
	meta.SavedAt = time.Now()
	meta.SizeBytes = int64(compressed.Len())
	if meta.RunID == "" {
		meta.RunID = uuid.NewString()
	}

	f, err := os.Create(s.path(name, version)) //nolint:gosec // path is built from the store directory and a trusted name
	if err != nil {
		return 0, fmt.Errorf("create artifact file: %w", err)
	}
	if err := gob.NewEncoder(f).Encode(storedFile{Metadata: meta, CompressedData: compressed.Bytes()}); err != nil {
		_ = f.Close() //nolint:errcheck // encode error takes precedence
		return 0, fmt.Errorf("write artifact file: %w", err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("close artifact file: %w", err)
	}

	s.versions[name] = version
	return version, nil
}

// Load reads an artifact. Version 0 loads the latest. The checksum is
// verified before the payload is decoded.
func (s *Store) Load(name string, version int) (*ModelArtifact, *Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if version == 0 {
		var ok bool
		version, ok = s.versions[name]
		if !ok {
			return nil, nil, fmt.Errorf("no artifact found for %q", name)
		}
	}

	f, err := os.Open(s.path(name, version)) //nolint:gosec // path is built from the store directory and a trusted name
	if err != nil {
		return nil, nil, fmt.Errorf("open artifact file: %w", err)
	}
	defer func() { _ = f.Close() }() //nolint:errcheck // read-only file

	var sf storedFile
	if err := gob.NewDecoder(f).Decode(&sf); err != nil {
		return nil, nil, fmt.Errorf("read artifact file: %w", err)
	}

	gzr, err := gzip.NewReader(bytes.NewReader(sf.CompressedData))
	if err != nil {
		return nil, nil, fmt.Errorf("decompress artifact: %w", err)
	}
	defer func() { _ = gzr.Close() }() //nolint:errcheck // read-only stream

	raw, err := io.ReadAll(gzr)
	if err != nil {
		return nil, nil, fmt.Errorf("read artifact payload: %w", err)
	}

	hash := sha256.Sum256(raw)
	if checksum := hex.EncodeToString(hash[:]); checksum != sf.Metadata.Checksum {
		return nil, nil, fmt.Errorf("artifact checksum mismatch: expected %s, got %s", sf.Metadata.Checksum, checksum)
	}

	var a ModelArtifact
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&a); err != nil {
		return nil, nil, fmt.Errorf("decode artifact: %w", err)
	}
	if err := a.validate(); err != nil {
		return nil, nil, fmt.Errorf("artifact %s v%d: %w", name, version, err)
	}

	return &a, &sf.Metadata, nil
}

// LatestVersion returns the newest version for name.
func (s *Store) LatestVersion(name string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	version, ok := s.versions[name]
	return version, ok
}

// List returns metadata for the latest version of every artifact name.
func (s *Store) List() ([]Metadata, error) {
	s.mu.RLock()
	names := make(map[string]int, len(s.versions))
	for name, version := range s.versions {
		names[name] = version
	}
	s.mu.RUnlock()

	var metas []Metadata
	for name, version := range names {
		_, meta, err := s.Load(name, version)
		if err != nil {
			continue
		}
		metas = append(metas, *meta)
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].Name < metas[j].Name })
	return metas, nil
}

// Delete removes one artifact version and reindexes the latest.
func (s *Store) Delete(name string, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(name, version)); err != nil {
		return fmt.Errorf("delete artifact: %w", err)
	}
	if s.versions[name] != version {
		return nil
	}

	delete(s.versions, name)
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return fmt.Errorf("read artifact directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		entryName, v, ok := parseFilename(entry.Name())
		if !ok || entryName != name {
			continue
		}
		if v > s.versions[name] {
			s.versions[name] = v
		}
	}
	if s.versions[name] == 0 {
		delete(s.versions, name)
	}
	return nil
}

// Prune deletes old versions of name, keeping the newest keep versions.
func (s *Store) Prune(name string, keep int) error {
	if keep < 1 {
		keep = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return fmt.Errorf("read artifact directory: %w", err)
	}

	var versions []int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		entryName, version, ok := parseFilename(entry.Name())
		if !ok || entryName != name {
			continue
		}
		versions = append(versions, version)
	}

	sort.Sort(sort.Reverse(sort.IntSlice(versions)))
	for _, version := range versions[min(keep, len(versions)):] {
		_ = os.Remove(s.path(name, version)) //nolint:errcheck // best-effort cleanup of old versions
	}
	return nil
}
