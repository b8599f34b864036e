// Package session holds the per-visitor search state carried between requests.
package session

import (
	"slices"
	"time"
)

// State is the search context of one browser session. The zero value is an empty session.
type State struct {
	ID               string    `json:"id"`
	Fingerprint      string    `json:"fingerprint,omitempty"`
	Query            string    `json:"query,omitempty"`
	Params           string    `json:"params,omitempty"`
	ManifestationIDs []int64   `json:"manifestation_ids,omitempty"`
	UpdatedAt        time.Time `json:"updated_at,omitempty"`

	dirty     bool
	persisted bool
}

// New creates an empty state for a session id.
func New(id string) *State {
	return &State{ID: id}
}

// Clear discards the stored query and result snapshot.
func (s *State) Clear() {
	s.Fingerprint = ""
	s.Query = ""
	s.Params = ""
	s.ManifestationIDs = nil
	s.dirty = true
}

// Store records a new snapshot.
func (s *State) Store(fingerprint, query, params string, ids []int64, now time.Time) {
	s.Fingerprint = fingerprint
	s.Query = query
	s.Params = params
	s.ManifestationIDs = ids
	s.UpdatedAt = now
	s.dirty = true
}

// Dirty reports whether the state changed since it was loaded.
func (s *State) Dirty() bool { return s.dirty }

// MarkClean resets the dirty flag after a save or a successful load.
func (s *State) MarkClean() {
	s.dirty = false
	s.persisted = true
}

// Touch marks the state for saving even though nothing in it changed.
func (s *State) Touch() { s.dirty = true }

// Persisted reports whether the state came from, or was written to, the store.
func (s *State) Persisted() bool { return s.persisted }

// Neighbors returns the ids before and after id in the stored snapshot (0 when absent).
func (s *State) Neighbors(id int64) (prev, next int64, ok bool) {
	i := slices.Index(s.ManifestationIDs, id)
	if i < 0 {
		return 0, 0, false
	}
	if i > 0 {
		prev = s.ManifestationIDs[i-1]
	}
	if i+1 < len(s.ManifestationIDs) {
		next = s.ManifestationIDs[i+1]
	}
	return prev, next, true
}
