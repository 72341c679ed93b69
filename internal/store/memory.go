// Pitwall - RC Race Event Discovery and Import
// Copyright 2026 Pitwall contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pitwall-app/pitwall

package store

import (
	"context"
	"sync"
	"time"

	"github.com/pitwall-app/pitwall/internal/models"
)

// MemoryStore implements Store in memory. Used in tests and when no cache
// directory is available.
type MemoryStore struct {
	ttl time.Duration
	cap int

	mu         sync.Mutex
	favourites []string
	filters    *models.SearchFilters
	known      []knownEntry
	index      map[string]struct{}
}

// NewMemoryStore creates an in-memory store with the given known-imported
// TTL and capacity.
func NewMemoryStore(ttl time.Duration, cap int) *MemoryStore {
	return &MemoryStore{
		ttl:   ttl,
		cap:   cap,
		index: make(map[string]struct{}),
	}
}

func (s *MemoryStore) Favourites(_ context.Context) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.favourites))
	copy(out, s.favourites)
	return out
}

func (s *MemoryStore) SaveFavourites(_ context.Context, trackIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.favourites = make([]string, len(trackIDs))
	copy(s.favourites, trackIDs)
	return nil
}

func (s *MemoryStore) LastFilters(_ context.Context) *models.SearchFilters {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.filters == nil {
		return nil
	}
	f := *s.filters
	return &f
}

func (s *MemoryStore) SaveFilters(_ context.Context, f *models.SearchFilters) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *f
	s.filters = &cp
	return nil
}

func (s *MemoryStore) ClearTrackSelection(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.filters != nil {
		s.filters.TrackID = ""
	}
	return nil
}

func (s *MemoryStore) MarkImported(_ context.Context, ids ...string) error {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := s.index[id]; dup {
			continue
		}
		s.known = append(s.known, knownEntry{ID: id, AddedAt: now})
		s.index[id] = struct{}{}
	}
	s.known = pruneKnown(s.known, now, s.ttl, s.cap)
	s.index = make(map[string]struct{}, len(s.known))
	for _, e := range s.known {
		s.index[e.ID] = struct{}{}
	}
	return nil
}

func (s *MemoryStore) IsKnownImported(_ context.Context, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.index[id]
	return ok
}

func (s *MemoryStore) ForgetImported(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.known[:0]
	for _, e := range s.known {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	s.known = kept
	delete(s.index, id)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
