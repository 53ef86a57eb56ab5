// TidyMatch - Cleaner Matching and Recommendation Engine
// Copyright 2026 TidyMatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tidymatch/tidymatch

package feature

import "sort"

// UnknownIndex is the reserved embedding index for identifiers absent
// from the training corpus. Out-of-vocabulary lookups at inference time
// resolve here instead of failing.
const UnknownIndex = 0

// IdentifierMap is a frozen bijection from a stable business identifier
// to a dense embedding index. Index 0 is reserved for unknowns; known
// identifiers occupy [1, Size()-1].
//
// Maps are built once per training run from the training corpus and
// serialized into the model artifact. They are never mutated in place.
type IdentifierMap struct {
	// ToIndex maps identifier to dense index. Exported for gob encoding.
	ToIndex map[int64]int

	// ToID maps dense index back to identifier; ToID[0] is unused.
	ToID []int64
}

// NewIdentifierMap builds a map from the given identifiers. Duplicates
// are collapsed; ordering is by identifier ascending so that the same
// corpus always produces the same map.
func NewIdentifierMap(ids []int64) *IdentifierMap {
	seen := make(map[int64]struct{}, len(ids))
	uniq := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		uniq = append(uniq, id)
	}
	sort.Slice(uniq, func(i, j int) bool { return uniq[i] < uniq[j] })

	m := &IdentifierMap{
		ToIndex: make(map[int64]int, len(uniq)),
		ToID:    make([]int64, len(uniq)+1),
	}
	for i, id := range uniq {
		m.ToIndex[id] = i + 1
		m.ToID[i+1] = id
	}
	return m
}

// Index resolves an identifier to its dense index, or UnknownIndex when
// the identifier was not in the training corpus.
func (m *IdentifierMap) Index(id int64) int {
	if m == nil {
		return UnknownIndex
	}
	if idx, ok := m.ToIndex[id]; ok {
		return idx
	}
	return UnknownIndex
}

// Contains reports whether the identifier was in the training corpus.
func (m *IdentifierMap) Contains(id int64) bool {
	if m == nil {
		return false
	}
	_, ok := m.ToIndex[id]
	return ok
}

// Size returns the embedding table size required for this map, including
// the reserved unknown slot.
func (m *IdentifierMap) Size() int {
	if m == nil {
		return 1
	}
	return len(m.ToID)
}
