// Pitwall - RC Race Event Discovery and Import
// Copyright 2026 Pitwall contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pitwall-app/pitwall

package reconcile

import (
	"context"
	"time"

	"github.com/pitwall-app/pitwall/internal/models"
	"github.com/pitwall-app/pitwall/internal/store"
)

// StatusResolver derives the displayed status of a merged-list entry.
// Derivation precedence:
//
//  1. future event date: always scheduled, regardless of any other signal
//  2. live status override set by the import orchestrator
//  3. known-imported cache membership, advisory: applies only when the
//     entry's ingest depth is empty or already full, never against an
//     explicit partial depth from the backend
//  4. provider pseudo-id: not in the local database yet, so new
//  5. ingest depth: full means imported, anything else means new
type StatusResolver struct {
	store store.Store
}

// NewStatusResolver creates a resolver over the known-imported cache.
func NewStatusResolver(s store.Store) *StatusResolver {
	return &StatusResolver{store: s}
}

// Derive computes the status of one entry at the given time, with the live
// override for the entry's id (ok=false when no override is set).
func (r *StatusResolver) Derive(ctx context.Context, en *models.Entry, now time.Time, override models.EventStatus, hasOverride bool) models.EventStatus {
	if en.IsFuture(now) {
		return models.StatusScheduled
	}
	if hasOverride {
		return override
	}

	depth := en.IngestDepth()
	if depth == "" || depth == models.DepthLapsFull {
		if r.store.IsKnownImported(ctx, en.ID()) {
			return models.StatusImported
		}
		if src := en.SourceID(); src != "" && r.store.IsKnownImported(ctx, models.PseudoID(src)) {
			return models.StatusImported
		}
	}

	if models.IsPseudoID(en.ID()) {
		return models.StatusNew
	}
	if depth == models.DepthLapsFull {
		return models.StatusImported
	}
	return models.StatusNew
}

// IsImportable reports whether the import action applies to the entry:
// never for future events, otherwise only when the derived status is new.
func (r *StatusResolver) IsImportable(ctx context.Context, en *models.Entry, now time.Time, override models.EventStatus, hasOverride bool) bool {
	if en.IsFuture(now) {
		return false
	}
	return r.Derive(ctx, en, now, override, hasOverride) == models.StatusNew
}
