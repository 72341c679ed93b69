// Pitwall - RC Race Event Discovery and Import
// Copyright 2026 Pitwall contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pitwall-app/pitwall

package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/pitwall-app/pitwall/internal/metrics"
	"github.com/pitwall-app/pitwall/internal/models"
)

// Session is the per-client reconciliation state: the merged entry list, the
// live status overrides and progress records, and the generation counter that
// fences stale background discovery results.
//
// All mutation goes through Session methods under the session mutex. The
// entry list and the override/progress maps are never handed out by
// reference; Snapshot copies what the caller needs.
type Session struct {
	ID string

	mu sync.Mutex

	filters models.SearchFilters
	sort    models.SortMode

	// entries is the merged list for the current search. localEntries is
	// the local-database subset of the same search, kept separately so a
	// misbehaving merge can be detected and repaired.
	entries      []models.Entry
	localEntries []models.Entry

	overrides map[string]models.EventStatus
	failures  map[string]string
	progress  map[string]models.ImportProgress

	hasSearched      bool
	checkingProvider bool

	// generation fences background discovery: a result tagged with an
	// older generation than the current one is discarded.
	generation   uint64
	cancelSearch context.CancelFunc

	lastActive time.Time
}

func newSession(id string, now time.Time) *Session {
	return &Session{
		ID:         id,
		sort:       models.SortByDate,
		overrides:  make(map[string]models.EventStatus),
		failures:   make(map[string]string),
		progress:   make(map[string]models.ImportProgress),
		lastActive: now,
	}
}

// touch refreshes the idle clock.
func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastActive = now
	s.mu.Unlock()
}

// idleSince returns the last activity time.
func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// beginSearch starts a new search generation: the previous background
// discovery is cancelled, the list is reset, and a fresh context tied to the
// new generation is returned for the background work.
func (s *Session) beginSearch(parent context.Context, filters models.SearchFilters, now time.Time) (context.Context, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancelSearch != nil {
		s.cancelSearch()
	}

	s.generation++
	gen := s.generation
	ctx, cancel := context.WithCancel(parent)
	s.cancelSearch = cancel

	s.filters = filters
	s.entries = nil
	s.localEntries = nil
	s.hasSearched = false
	s.checkingProvider = false
	s.lastActive = now

	return ctx, gen
}

// setLocalResults installs the local-database result for a generation. The
// list is displayed immediately; hasSearched is set even for an empty result.
func (s *Session) setLocalResults(gen uint64, entries []models.Entry, checkingProvider bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		return
	}

	s.entries = append([]models.Entry(nil), entries...)
	s.localEntries = append([]models.Entry(nil), entries...)
	s.hasSearched = true
	s.checkingProvider = checkingProvider
}

// searchFailed clears the pending state for a failed local query.
func (s *Session) searchFailed(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return
	}
	s.hasSearched = true
	s.checkingProvider = false
}

// providerDone clears the "checking external provider" indicator without
// merging anything. Used when discovery returns benign-empty or the circuit
// is open.
func (s *Session) providerDone(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return
	}
	s.checkingProvider = false
}

// mergeDiscovered appends provider-discovered entries to the merged list.
//
// Deduplication: a provider-only entry is dropped when its source id matches
// a local-database row already present (the local copy wins, since it carries
// the real id and accurate depth), or when its id or source id is already in
// the list. Re-running with the same input is a no-op.
//
// A stale generation is discarded entirely. After the merge, if the list
// carries no local rows while the current search had fetched some, the local
// set is restored ahead of the surviving provider rows.
func (s *Session) mergeDiscovered(gen uint64, discovered []models.Entry) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		metrics.StaleDiscoveryDiscards.Inc()
		return 0
	}
	s.checkingProvider = false

	ids := make(map[string]struct{}, len(s.entries))
	localSources := make(map[string]struct{}, len(s.entries))
	sources := make(map[string]struct{}, len(s.entries))
	for i := range s.entries {
		ids[s.entries[i].ID()] = struct{}{}
		if src := s.entries[i].SourceID(); src != "" {
			sources[src] = struct{}{}
			if s.entries[i].IsLocal() {
				localSources[src] = struct{}{}
			}
		}
	}

	merged := 0
	for _, en := range discovered {
		src := en.SourceID()
		if !en.IsLocal() && src != "" {
			if _, ok := localSources[src]; ok {
				metrics.DiscoveryDroppedTotal.WithLabelValues("local_wins").Inc()
				continue
			}
		}
		if _, ok := ids[en.ID()]; ok {
			metrics.DiscoveryDroppedTotal.WithLabelValues("duplicate_id").Inc()
			continue
		}
		if src != "" {
			if _, ok := sources[src]; ok {
				metrics.DiscoveryDroppedTotal.WithLabelValues("duplicate_source").Inc()
				continue
			}
		}

		s.entries = append(s.entries, en)
		ids[en.ID()] = struct{}{}
		if src != "" {
			sources[src] = struct{}{}
		}
		merged++
	}

	s.repairLocalRows()

	if merged > 0 {
		metrics.DiscoveryMergedTotal.Add(float64(merged))
	}
	return merged
}

// repairLocalRows restores the local-database rows if a merge left none of
// them in the list. Local results, once fetched for the current search, stay
// visible until a newer search supersedes them. Caller holds s.mu.
func (s *Session) repairLocalRows() {
	if len(s.localEntries) == 0 {
		return
	}
	for i := range s.entries {
		if s.entries[i].IsLocal() {
			return
		}
	}

	restored := append([]models.Entry(nil), s.localEntries...)
	for _, en := range s.entries {
		seen := false
		for i := range restored {
			if restored[i].ID() == en.ID() {
				seen = true
				break
			}
			if src := en.SourceID(); src != "" && restored[i].SourceID() == src {
				seen = true
				break
			}
		}
		if !seen {
			restored = append(restored, en)
		}
	}
	s.entries = restored
}

// Filters returns the session's current filters.
func (s *Session) Filters() models.SearchFilters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filters
}

// SetSort selects the ordering of subsequent snapshots.
func (s *Session) SetSort(mode models.SortMode) {
	s.mu.Lock()
	s.sort = mode
	s.mu.Unlock()
}

// SetPage updates pagination without issuing a new search.
func (s *Session) SetPage(page, itemsPerPage int) {
	s.mu.Lock()
	s.filters.CurrentPage = page
	if itemsPerPage > 0 {
		s.filters.ItemsPerPage = itemsPerPage
	}
	s.mu.Unlock()
}

// Override returns the live status override for id, if set.
func (s *Session) Override(id string) (models.EventStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.overrides[id]
	return st, ok
}

// SetOverride installs a live status override for id.
func (s *Session) SetOverride(id string, status models.EventStatus) {
	s.mu.Lock()
	s.overrides[id] = status
	if status != models.StatusFailed {
		delete(s.failures, id)
	}
	s.mu.Unlock()
}

// SetFailure marks id failed with a human-readable message.
func (s *Session) SetFailure(id, message string) {
	s.mu.Lock()
	s.overrides[id] = models.StatusFailed
	s.failures[id] = message
	delete(s.progress, id)
	s.mu.Unlock()
}

// ClearOverride removes the override and failure message for id. Returns
// false when no override was present, which makes terminal-state handling
// idempotent: a second completion signal for the same id is a no-op.
func (s *Session) ClearOverride(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.overrides[id]; !ok {
		return false
	}
	delete(s.overrides, id)
	delete(s.failures, id)
	return true
}

// SetProgress installs or updates the progress record for id.
func (s *Session) SetProgress(p models.ImportProgress) {
	s.mu.Lock()
	s.progress[p.EventID] = p
	s.mu.Unlock()
}

// Progress returns the progress record for id, if present.
func (s *Session) Progress(id string) (models.ImportProgress, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.progress[id]
	return p, ok
}

// DeleteProgress removes the progress record for id.
func (s *Session) DeleteProgress(id string) {
	s.mu.Lock()
	delete(s.progress, id)
	s.mu.Unlock()
}

// PromoteIdentity replaces oldID with the promoted event row under one lock
// acquisition: the list row, the status override, the failure message and
// the progress record all move to the new id together, so no snapshot can
// observe both identities or neither.
func (s *Session) PromoteIdentity(oldID string, promoted models.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	newID := promoted.ID
	if newID == "" || newID == oldID {
		return
	}

	replaced := false
	kept := s.entries[:0]
	for _, en := range s.entries {
		if en.ID() == newID && replaced {
			continue // drop a pre-existing duplicate of the new identity
		}
		if en.ID() == oldID || (!replaced && en.ID() == newID) {
			if !replaced {
				kept = append(kept, models.EventEntry(promoted))
				replaced = true
			}
			continue
		}
		kept = append(kept, en)
	}
	if !replaced {
		kept = append(kept, models.EventEntry(promoted))
	}
	s.entries = kept

	if st, ok := s.overrides[oldID]; ok {
		delete(s.overrides, oldID)
		s.overrides[newID] = st
	}
	if msg, ok := s.failures[oldID]; ok {
		delete(s.failures, oldID)
		s.failures[newID] = msg
	}
	if p, ok := s.progress[oldID]; ok {
		delete(s.progress, oldID)
		p.EventID = newID
		s.progress[newID] = p
	}

	metrics.IdentityPromotionsTotal.Inc()
}

// ReplaceEntryDepth updates the ingest depth of the row with the given id.
// Used when polling observes a fresher authoritative depth.
func (s *Session) ReplaceEntryDepth(id, depth string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		if s.entries[i].ID() != id {
			continue
		}
		switch s.entries[i].Kind {
		case models.KindEvent:
			ev := *s.entries[i].Event
			ev.IngestDepth = depth
			s.entries[i] = models.EventEntry(ev)
		case models.KindPractice:
			p := *s.entries[i].Practice
			p.IngestDepth = depth
			s.entries[i] = models.PracticeEntry(p)
		}
		return
	}
}

// Entry returns the merged-list row with the given id.
func (s *Session) Entry(id string) (models.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		if s.entries[i].ID() == id {
			return s.entries[i], true
		}
	}
	return models.Entry{}, false
}

// RemoveEntry drops the row with the given id, e.g. after the backend
// reports the event no longer exists.
func (s *Session) RemoveEntry(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.entries[:0]
	for _, en := range s.entries {
		if en.ID() != id {
			kept = append(kept, en)
		}
	}
	s.entries = kept
}

// Close cancels any in-flight background discovery.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelSearch != nil {
		s.cancelSearch()
		s.cancelSearch = nil
	}
}
