// Pitwall - RC Race Event Discovery and Import
// Copyright 2026 Pitwall contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pitwall-app/pitwall

package store

import (
	"context"
	"testing"
	"time"

	"github.com/pitwall-app/pitwall/internal/config"
	"github.com/pitwall-app/pitwall/internal/models"
)

func openTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	s, err := Open(&config.CacheConfig{
		InMemory:         true,
		KnownImportedTTL: time.Hour,
		KnownImportedCap: 100,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return s
}

func TestBadgerStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if err := s.SaveFavourites(ctx, []string{"track-1"}); err != nil {
		t.Fatalf("SaveFavourites: %v", err)
	}
	if got := s.Favourites(ctx); len(got) != 1 || got[0] != "track-1" {
		t.Errorf("unexpected favourites %v", got)
	}

	f := &models.SearchFilters{TrackID: "track-1", Preset: models.PresetLast6}
	if err := s.SaveFilters(ctx, f); err != nil {
		t.Fatalf("SaveFilters: %v", err)
	}
	got := s.LastFilters(ctx)
	if got == nil || got.TrackID != "track-1" || got.Preset != models.PresetLast6 {
		t.Errorf("unexpected filters %+v", got)
	}

	if err := s.ClearTrackSelection(ctx); err != nil {
		t.Fatalf("ClearTrackSelection: %v", err)
	}
	if s.LastFilters(ctx).TrackID != "" {
		t.Error("track id should be cleared")
	}
}

func TestBadgerStoreDurability(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	cfg := &config.CacheConfig{
		Path:             dir,
		KnownImportedTTL: time.Hour,
		KnownImportedCap: 100,
	}

	s, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.MarkImported(ctx, "evt-1", models.PseudoID("900")); err != nil {
		t.Fatalf("MarkImported: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopen and verify the known-imported set survived.
	s, err = Open(cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	if !s.IsKnownImported(ctx, "evt-1") {
		t.Error("known-imported id lost across reopen")
	}
	if !s.IsKnownImported(ctx, "liverc-900") {
		t.Error("pseudo-id alias lost across reopen")
	}
}

func TestBadgerStoreMissingDataDegrades(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if got := s.Favourites(ctx); got != nil {
		t.Errorf("expected nil favourites, got %v", got)
	}
	if got := s.LastFilters(ctx); got != nil {
		t.Errorf("expected nil filters, got %v", got)
	}
	if s.IsKnownImported(ctx, "anything") {
		t.Error("empty store should not know any id")
	}
}

func TestBadgerStoreForget(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if err := s.MarkImported(ctx, "evt-1", "evt-2"); err != nil {
		t.Fatalf("MarkImported: %v", err)
	}
	if err := s.ForgetImported(ctx, "evt-1"); err != nil {
		t.Fatalf("ForgetImported: %v", err)
	}
	if s.IsKnownImported(ctx, "evt-1") {
		t.Error("forgotten id still known")
	}
	if !s.IsKnownImported(ctx, "evt-2") {
		t.Error("unrelated id dropped")
	}
}
