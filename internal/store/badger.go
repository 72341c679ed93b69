// Pitwall - RC Race Event Discovery and Import
// Copyright 2026 Pitwall contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pitwall-app/pitwall

package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/pitwall-app/pitwall/internal/config"
	"github.com/pitwall-app/pitwall/internal/logging"
	"github.com/pitwall-app/pitwall/internal/metrics"
	"github.com/pitwall-app/pitwall/internal/models"
)

// BadgerDB keys. Each value is a single JSON document; the store is tiny
// (favourites, one filter set, at most a few hundred known-imported ids).
const (
	keyFavourites    = "cache:favourites"
	keyLastFilters   = "cache:filters:last"
	keyKnownImported = "cache:known_imported"
)

// BadgerStore implements Store on BadgerDB. The known-imported set is pruned
// once at open time and kept in memory; writes go through to disk.
type BadgerStore struct {
	db *badger.DB

	ttl time.Duration
	cap int

	mu    sync.Mutex
	known []knownEntry
	index map[string]struct{}
}

// Open opens (or creates) the badger-backed cache store.
func Open(cfg *config.CacheConfig) (*BadgerStore, error) {
	opts := badger.DefaultOptions(cfg.Path).WithLogger(nil)
	if cfg.InMemory {
		opts = opts.WithInMemory(true).WithDir("").WithValueDir("")
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open cache store: %w", err)
	}

	s := &BadgerStore{
		db:  db,
		ttl: cfg.KnownImportedTTL,
		cap: cfg.KnownImportedCap,
	}
	s.loadKnown()

	return s, nil
}

// loadKnown reads and prunes the known-imported set. Corrupt or missing data
// degrades to an empty set.
func (s *BadgerStore) loadKnown() {
	var entries []knownEntry
	if err := s.get(keyKnownImported, &entries); err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			logging.Warn().Err(err).Msg("Known-imported cache unreadable, starting empty")
		}
		entries = nil
	}

	pruned := pruneKnown(entries, time.Now(), s.ttl, s.cap)
	if len(pruned) != len(entries) {
		logging.Info().
			Int("before", len(entries)).
			Int("after", len(pruned)).
			Msg("Pruned known-imported cache")
		if err := s.set(keyKnownImported, pruned); err != nil {
			logging.Warn().Err(err).Msg("Failed to persist pruned known-imported cache")
		}
	}

	s.mu.Lock()
	s.known = pruned
	s.index = make(map[string]struct{}, len(pruned))
	for _, e := range pruned {
		s.index[e.ID] = struct{}{}
	}
	s.mu.Unlock()

	metrics.KnownImportedEntries.Set(float64(len(pruned)))
}

// Favourites returns the persisted favourite track ids.
func (s *BadgerStore) Favourites(_ context.Context) []string {
	var ids []string
	if err := s.get(keyFavourites, &ids); err != nil {
		return nil
	}
	return ids
}

// SaveFavourites persists the favourite track ids.
func (s *BadgerStore) SaveFavourites(_ context.Context, trackIDs []string) error {
	return s.set(keyFavourites, trackIDs)
}

// LastFilters returns the persisted search filters, or nil.
func (s *BadgerStore) LastFilters(_ context.Context) *models.SearchFilters {
	var f models.SearchFilters
	if err := s.get(keyLastFilters, &f); err != nil {
		return nil
	}
	if f.TrackID == "" && f.Preset == "" {
		return nil
	}
	return &f
}

// SaveFilters persists the filters of a successful search.
func (s *BadgerStore) SaveFilters(_ context.Context, f *models.SearchFilters) error {
	return s.set(keyLastFilters, f)
}

// ClearTrackSelection drops the persisted track id, keeping other filters.
func (s *BadgerStore) ClearTrackSelection(ctx context.Context) error {
	f := s.LastFilters(ctx)
	if f == nil {
		return nil
	}
	f.TrackID = ""
	return s.SaveFilters(ctx, f)
}

// MarkImported records ids in the known-imported set.
func (s *BadgerStore) MarkImported(_ context.Context, ids ...string) error {
	now := time.Now()

	s.mu.Lock()
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
	s.rebuildIndexLocked()
	snapshot := make([]knownEntry, len(s.known))
	copy(snapshot, s.known)
	s.mu.Unlock()

	metrics.KnownImportedEntries.Set(float64(len(snapshot)))
	return s.set(keyKnownImported, snapshot)
}

// IsKnownImported reports membership in the known-imported set.
func (s *BadgerStore) IsKnownImported(_ context.Context, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.index[id]
	return ok
}

// ForgetImported removes an id from the known-imported set.
func (s *BadgerStore) ForgetImported(_ context.Context, id string) error {
	s.mu.Lock()
	kept := s.known[:0]
	for _, e := range s.known {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	s.known = kept
	s.rebuildIndexLocked()
	snapshot := make([]knownEntry, len(s.known))
	copy(snapshot, s.known)
	s.mu.Unlock()

	return s.set(keyKnownImported, snapshot)
}

// rebuildIndexLocked recomputes the membership index. Caller holds mu.
func (s *BadgerStore) rebuildIndexLocked() {
	s.index = make(map[string]struct{}, len(s.known))
	for _, e := range s.known {
		s.index[e.ID] = struct{}{}
	}
}

// RunGC runs badger value-log garbage collection until ctx is canceled.
func (s *BadgerStore) RunGC(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// ErrNoRewrite just means there was nothing to collect.
			if err := s.db.RunValueLogGC(0.5); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				logging.Warn().Err(err).Msg("Cache store GC failed")
			}
		}
	}
}

// Close releases the badger database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func (s *BadgerStore) get(key string, out any) error {
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, out)
		})
	})
}

func (s *BadgerStore) set(key string, in any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}
