// Pitwall - RC Race Event Discovery and Import
// Copyright 2026 Pitwall contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pitwall-app/pitwall

package models

import (
	"testing"
	"time"
)

func TestPseudoID(t *testing.T) {
	id := PseudoID("4821")
	if id != "liverc-4821" {
		t.Errorf("expected liverc-4821, got %q", id)
	}
	if !IsPseudoID(id) {
		t.Error("PseudoID output should be recognized as a pseudo-id")
	}
	if IsPseudoID("evt-123") {
		t.Error("real ids must not be recognized as pseudo-ids")
	}
	if IsPseudoID("") {
		t.Error("empty id is not a pseudo-id")
	}
}

func TestEventIsLocal(t *testing.T) {
	local := Event{ID: "evt-1"}
	if !local.IsLocal() {
		t.Error("real id should be local")
	}

	provider := FromDiscovered("900", "Winter Series R3", nil)
	if provider.IsLocal() {
		t.Error("discovered event should not be local")
	}
	if provider.ID != "liverc-900" {
		t.Errorf("unexpected pseudo-id %q", provider.ID)
	}
	if provider.IngestDepth != DepthNone {
		t.Errorf("discovered event should carry depth none, got %q", provider.IngestDepth)
	}
}

func TestEventIsFuture(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	past := now.AddDate(0, 0, -1)
	future := now.AddDate(0, 0, 1)

	tests := []struct {
		name string
		date *time.Time
		want bool
	}{
		{"past date", &past, false},
		{"future date", &future, true},
		{"no date", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := Event{ID: "evt-1", EventDate: tt.date}
			if got := e.IsFuture(now); got != tt.want {
				t.Errorf("IsFuture = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEventIsFullyIngested(t *testing.T) {
	for _, depth := range []string{DepthNone, DepthEventsOnly, DepthResultsFull} {
		e := Event{ID: "evt-1", IngestDepth: depth}
		if e.IsFullyIngested() {
			t.Errorf("depth %q should not count as fully ingested", depth)
		}
	}
	e := Event{ID: "evt-1", IngestDepth: DepthLapsFull}
	if !e.IsFullyIngested() {
		t.Error("laps_full should count as fully ingested")
	}
}

func TestStatusRank(t *testing.T) {
	order := []EventStatus{StatusScheduled, StatusNew, StatusImporting, StatusFailed, StatusImported}
	for i := 1; i < len(order); i++ {
		if order[i-1].Rank() >= order[i].Rank() {
			t.Errorf("%s should rank before %s", order[i-1], order[i])
		}
	}
	if EventStatus("bogus").Rank() <= StatusImported.Rank() {
		t.Error("unknown status should rank last")
	}
}

func TestStatusTerminal(t *testing.T) {
	if !StatusImported.Terminal() || !StatusFailed.Terminal() {
		t.Error("imported and failed are terminal")
	}
	if StatusNew.Terminal() || StatusImporting.Terminal() || StatusScheduled.Terminal() {
		t.Error("non-terminal status reported terminal")
	}
}
