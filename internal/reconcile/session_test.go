// Pitwall - RC Race Event Discovery and Import
// Copyright 2026 Pitwall contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pitwall-app/pitwall

package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/pitwall-app/pitwall/internal/models"
)

func datePtr(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func localEvent(id, name, sourceID, depth string) models.Entry {
	return models.EventEntry(models.Event{
		ID:            id,
		EventName:     name,
		SourceEventID: sourceID,
		IngestDepth:   depth,
	})
}

func providerEvent(sourceID, name string) models.Entry {
	return models.EventEntry(models.FromDiscovered(sourceID, name, nil))
}

func startSearch(t *testing.T, s *Session, entries ...models.Entry) uint64 {
	t.Helper()
	_, gen := s.beginSearch(context.Background(), models.SearchFilters{TrackID: "track-1"}, time.Now())
	s.setLocalResults(gen, entries, true)
	return gen
}

func entryIDs(s *Session) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.entries))
	for i := range s.entries {
		ids = append(ids, s.entries[i].ID())
	}
	return ids
}

func TestMergeDiscoveredDedup(t *testing.T) {
	t.Run("local row wins over provider copy", func(t *testing.T) {
		s := newSession("s1", time.Now())
		gen := startSearch(t, s, localEvent("evt-1", "Race A", "100", models.DepthResultsFull))

		merged := s.mergeDiscovered(gen, []models.Entry{providerEvent("100", "Race A")})
		if merged != 0 {
			t.Errorf("provider copy of a local row should be dropped, merged=%d", merged)
		}
		if ids := entryIDs(s); len(ids) != 1 || ids[0] != "evt-1" {
			t.Errorf("unexpected list %v", ids)
		}
	})

	t.Run("genuinely new provider events are appended", func(t *testing.T) {
		s := newSession("s1", time.Now())
		gen := startSearch(t, s, localEvent("evt-1", "Race A", "100", models.DepthResultsFull))

		merged := s.mergeDiscovered(gen, []models.Entry{
			providerEvent("100", "Race A"),
			providerEvent("200", "Race B"),
		})
		if merged != 1 {
			t.Errorf("expected 1 merge, got %d", merged)
		}
		if ids := entryIDs(s); len(ids) != 2 || ids[1] != "liverc-200" {
			t.Errorf("unexpected list %v", ids)
		}
	})

	t.Run("merge is idempotent", func(t *testing.T) {
		s := newSession("s1", time.Now())
		gen := startSearch(t, s, localEvent("evt-1", "Race A", "100", models.DepthResultsFull))

		discovered := []models.Entry{
			providerEvent("100", "Race A"),
			providerEvent("200", "Race B"),
			providerEvent("300", "Race C"),
		}
		first := s.mergeDiscovered(gen, discovered)
		second := s.mergeDiscovered(gen, discovered)
		if first != 2 || second != 0 {
			t.Errorf("expected 2 then 0 merges, got %d then %d", first, second)
		}
		if ids := entryIDs(s); len(ids) != 3 {
			t.Errorf("re-merge changed the list: %v", ids)
		}
	})

	t.Run("duplicate source ids within one batch collapse", func(t *testing.T) {
		s := newSession("s1", time.Now())
		gen := startSearch(t, s)

		merged := s.mergeDiscovered(gen, []models.Entry{
			providerEvent("100", "Race A"),
			providerEvent("100", "Race A again"),
		})
		if merged != 1 {
			t.Errorf("expected 1 merge, got %d", merged)
		}
	})

	t.Run("stale generation is discarded", func(t *testing.T) {
		s := newSession("s1", time.Now())
		oldGen := startSearch(t, s, localEvent("evt-1", "Race A", "100", ""))

		// A newer search supersedes the old one.
		startSearch(t, s, localEvent("evt-2", "Race B", "200", ""))

		if merged := s.mergeDiscovered(oldGen, []models.Entry{providerEvent("300", "Race C")}); merged != 0 {
			t.Errorf("stale merge should be discarded, merged=%d", merged)
		}
		if ids := entryIDs(s); len(ids) != 1 || ids[0] != "evt-2" {
			t.Errorf("stale merge leaked into the list: %v", ids)
		}
	})
}

func TestMergeRepairsLostLocalRows(t *testing.T) {
	s := newSession("s1", time.Now())
	gen := startSearch(t, s, localEvent("evt-1", "Race A", "100", ""))

	// Simulate a buggy mutation dropping the local rows.
	s.mu.Lock()
	s.entries = nil
	s.mu.Unlock()

	s.mergeDiscovered(gen, []models.Entry{providerEvent("200", "Race B")})

	ids := entryIDs(s)
	if len(ids) != 2 || ids[0] != "evt-1" || ids[1] != "liverc-200" {
		t.Errorf("local rows should be restored ahead of provider rows, got %v", ids)
	}
}

func TestEmptyLocalThenPopulatedDiscovery(t *testing.T) {
	s := newSession("s1", time.Now())
	gen := startSearch(t, s) // empty local result

	merged := s.mergeDiscovered(gen, []models.Entry{
		providerEvent("100", "Race A"),
		providerEvent("200", "Race B"),
	})
	if merged != 2 {
		t.Errorf("expected 2 merges into empty list, got %d", merged)
	}
	if ids := entryIDs(s); len(ids) != 2 {
		t.Errorf("unexpected list %v", ids)
	}
}

func TestPromoteIdentity(t *testing.T) {
	t.Run("row and live state move together", func(t *testing.T) {
		s := newSession("s1", time.Now())
		gen := startSearch(t, s)
		s.mergeDiscovered(gen, []models.Entry{providerEvent("900", "Race A")})

		oldID := models.PseudoID("900")
		s.SetOverride(oldID, models.StatusImporting)
		s.SetProgress(models.ImportProgress{EventID: oldID, Stage: "Fetching results"})

		s.PromoteIdentity(oldID, models.Event{
			ID:            "evt-55",
			EventName:     "Race A",
			SourceEventID: "900",
			IngestDepth:   models.DepthResultsFull,
		})

		ids := entryIDs(s)
		if len(ids) != 1 || ids[0] != "evt-55" {
			t.Fatalf("expected exactly the promoted row, got %v", ids)
		}
		if _, ok := s.Override(oldID); ok {
			t.Error("old id should have no override")
		}
		if st, ok := s.Override("evt-55"); !ok || st != models.StatusImporting {
			t.Error("override should follow the new id")
		}
		if p, ok := s.Progress("evt-55"); !ok || p.EventID != "evt-55" {
			t.Error("progress should follow the new id")
		}
		if _, ok := s.Progress(oldID); ok {
			t.Error("old id should have no progress")
		}
	})

	t.Run("pre-existing duplicate of new id collapses", func(t *testing.T) {
		s := newSession("s1", time.Now())
		gen := startSearch(t, s, localEvent("evt-55", "Race A", "900", models.DepthEventsOnly))
		s.mergeDiscovered(gen, []models.Entry{providerEvent("901", "Race B")})

		// Promotion targets an id already present in the list.
		s.PromoteIdentity(models.PseudoID("901"), models.Event{
			ID:            "evt-55",
			EventName:     "Race A",
			SourceEventID: "900",
		})

		ids := entryIDs(s)
		count := 0
		for _, id := range ids {
			if id == "evt-55" {
				count++
			}
		}
		if count != 1 {
			t.Errorf("expected exactly one row for evt-55, got list %v", ids)
		}
	})

	t.Run("no-op on same or empty id", func(t *testing.T) {
		s := newSession("s1", time.Now())
		gen := startSearch(t, s)
		s.mergeDiscovered(gen, []models.Entry{providerEvent("900", "Race A")})

		s.PromoteIdentity("liverc-900", models.Event{ID: ""})
		s.PromoteIdentity("liverc-900", models.Event{ID: "liverc-900"})

		if ids := entryIDs(s); len(ids) != 1 || ids[0] != "liverc-900" {
			t.Errorf("identity should be unchanged, got %v", ids)
		}
	})
}

func TestOverrideLifecycle(t *testing.T) {
	s := newSession("s1", time.Now())

	s.SetOverride("evt-1", models.StatusImporting)
	if st, ok := s.Override("evt-1"); !ok || st != models.StatusImporting {
		t.Error("override not installed")
	}

	s.SetFailure("evt-1", "backend exploded")
	if st, _ := s.Override("evt-1"); st != models.StatusFailed {
		t.Error("failure should set the failed override")
	}

	// Re-importing clears the failure message.
	s.SetOverride("evt-1", models.StatusImporting)
	s.mu.Lock()
	msg := s.failures["evt-1"]
	s.mu.Unlock()
	if msg != "" {
		t.Error("failure message should be cleared on re-import")
	}

	if !s.ClearOverride("evt-1") {
		t.Error("first clear should report true")
	}
	if s.ClearOverride("evt-1") {
		t.Error("second clear should report false")
	}
}

func TestReplaceEntryDepth(t *testing.T) {
	s := newSession("s1", time.Now())
	startSearch(t, s, localEvent("evt-1", "Race A", "100", models.DepthResultsFull))

	s.ReplaceEntryDepth("evt-1", models.DepthLapsFull)

	en, ok := s.Entry("evt-1")
	if !ok || en.IngestDepth() != models.DepthLapsFull {
		t.Errorf("depth not replaced: %+v", en)
	}
}

func TestBeginSearchCancelsPrevious(t *testing.T) {
	s := newSession("s1", time.Now())

	ctx1, _ := s.beginSearch(context.Background(), models.SearchFilters{TrackID: "track-1"}, time.Now())
	s.beginSearch(context.Background(), models.SearchFilters{TrackID: "track-2"}, time.Now())

	select {
	case <-ctx1.Done():
	default:
		t.Error("previous search context should be cancelled")
	}
}
