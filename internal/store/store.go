// Pitwall - RC Race Event Discovery and Import
// Copyright 2026 Pitwall contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pitwall-app/pitwall

// Package store provides the persisted local cache: favourite tracks, last
// search filters, and the TTL-bounded known-imported id set. Pure storage;
// all reads tolerate missing or corrupt data by falling back to defaults.
package store

import (
	"context"
	"time"

	"github.com/pitwall-app/pitwall/internal/models"
)

// Store is the local cache interface. Implemented by BadgerStore for
// production and MemoryStore for tests.
type Store interface {
	// Favourites returns the persisted favourite track ids.
	Favourites(ctx context.Context) []string

	// SaveFavourites persists the favourite track ids unconditionally.
	SaveFavourites(ctx context.Context, trackIDs []string) error

	// LastFilters returns the persisted search filters, or nil if none
	// were saved or the saved value is unreadable.
	LastFilters(ctx context.Context) *models.SearchFilters

	// SaveFilters persists the filters of a successful search.
	SaveFilters(ctx context.Context, f *models.SearchFilters) error

	// ClearTrackSelection drops the persisted track id, keeping the rest
	// of the filters. Called when the track no longer resolves against
	// the freshly loaded catalog.
	ClearTrackSelection(ctx context.Context) error

	// MarkImported records ids as fully imported. Both the real id and
	// the provider pseudo-id alias are recorded for one logical event.
	MarkImported(ctx context.Context, ids ...string) error

	// IsKnownImported reports whether id is in the known-imported set.
	// Advisory only: it must never override an explicit non-empty depth
	// signal from the backend.
	IsKnownImported(ctx context.Context, id string) bool

	// ForgetImported removes an id, e.g. after the backend reports the
	// event no longer exists.
	ForgetImported(ctx context.Context, id string) error

	// Close releases the underlying storage.
	Close() error
}

// knownEntry is one member of the persisted known-imported set.
type knownEntry struct {
	ID      string    `json:"id"`
	AddedAt time.Time `json:"addedAt"`
}

// pruneKnown drops entries older than ttl and truncates oldest-first to cap.
// Shared by both implementations so the policy cannot drift.
func pruneKnown(entries []knownEntry, now time.Time, ttl time.Duration, cap int) []knownEntry {
	kept := entries[:0]
	for _, e := range entries {
		if now.Sub(e.AddedAt) <= ttl {
			kept = append(kept, e)
		}
	}

	// Oldest-first truncation when over capacity. Entries are stored in
	// insertion order, so the front is the oldest.
	if len(kept) > cap {
		kept = kept[len(kept)-cap:]
	}
	return kept
}
