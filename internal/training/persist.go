// TidyMatch - Cleaner Matching and Recommendation Engine
// Copyright 2026 TidyMatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tidymatch/tidymatch

package training

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tidymatch/tidymatch/internal/artifact"
	"github.com/tidymatch/tidymatch/internal/model"
)

// PersistVerified saves the artifact as a new version and verifies it
// round-trips: the file is read back, checksum-checked, and its weights
// rebuilt into a model. A version that fails verification is removed,
// so the previous good version stays the latest.
func PersistVerified(store *artifact.Store, name string, a *artifact.ModelArtifact, meta artifact.Metadata, logger zerolog.Logger) (int, error) {
	log := logger.With().Str("component", "training").Logger()

	version, err := store.Save(name, a, meta)
	if err != nil {
		return 0, fmt.Errorf("save artifact: %w", err)
	}

	loaded, _, err := store.Load(name, version)
	if err != nil {
		log.Error().Err(err).Int("version", version).Msg("Artifact failed verification load, removing")
		if delErr := store.Delete(name, version); delErr != nil {
			log.Error().Err(delErr).Int("version", version).Msg("Failed to remove unverified artifact")
		}
		return 0, fmt.Errorf("verify artifact v%d: %w", version, err)
	}
	if _, err := model.FromWeights(loaded.Weights); err != nil {
		log.Error().Err(err).Int("version", version).Msg("Artifact weights failed to rebuild, removing")
		if delErr := store.Delete(name, version); delErr != nil {
			log.Error().Err(delErr).Int("version", version).Msg("Failed to remove unverified artifact")
		}
		return 0, fmt.Errorf("verify artifact v%d weights: %w", version, err)
	}

	log.Info().Int("version", version).Str("name", name).Msg("Artifact saved and verified")
	return version, nil
}
