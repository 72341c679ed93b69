// Pitwall - RC Race Event Discovery and Import
// Copyright 2026 Pitwall contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pitwall-app/pitwall

package models

import "time"

// PracticeDay is a practice session day, the secondary entity type discovered
// and imported through the same reconciliation pattern as race events.
type PracticeDay struct {
	ID               string     `json:"id"`
	Label            string     `json:"label"`
	PracticeDate     *time.Time `json:"practiceDate,omitempty"`
	IngestDepth      string     `json:"ingestDepth,omitempty"`
	SourcePracticeID string     `json:"sourcePracticeId,omitempty"`
}

// IsLocal reports whether the practice day is backed by a local database row.
func (p *PracticeDay) IsLocal() bool {
	return !IsPseudoID(p.ID)
}

// EntryKind tags the variants of a merged-list row.
type EntryKind string

const (
	KindEvent    EntryKind = "event"
	KindPractice EntryKind = "practice"
)

// Entry is the tagged variant the merged list is built from. Exactly one of
// Event or Practice is set, matching Kind. A single sort/paginate path
// operates over entries regardless of kind.
type Entry struct {
	Kind     EntryKind    `json:"kind"`
	Event    *Event       `json:"event,omitempty"`
	Practice *PracticeDay `json:"practice,omitempty"`
}

// EventEntry wraps an event as a merged-list entry.
func EventEntry(e Event) Entry {
	return Entry{Kind: KindEvent, Event: &e}
}

// PracticeEntry wraps a practice day as a merged-list entry.
func PracticeEntry(p PracticeDay) Entry {
	return Entry{Kind: KindPractice, Practice: &p}
}

// ID returns the canonical identity of the entry.
func (en *Entry) ID() string {
	if en.Kind == KindPractice {
		return en.Practice.ID
	}
	return en.Event.ID
}

// SourceID returns the provider-namespace identifier, if any.
func (en *Entry) SourceID() string {
	if en.Kind == KindPractice {
		return en.Practice.SourcePracticeID
	}
	return en.Event.SourceEventID
}

// Name returns the display name used for lexicographic sorting and
// tie-breaking.
func (en *Entry) Name() string {
	if en.Kind == KindPractice {
		return en.Practice.Label
	}
	return en.Event.EventName
}

// Date returns the entry date, nil when unknown.
func (en *Entry) Date() *time.Time {
	if en.Kind == KindPractice {
		return en.Practice.PracticeDate
	}
	return en.Event.EventDate
}

// IngestDepth returns the backend's ingest depth marker.
func (en *Entry) IngestDepth() string {
	if en.Kind == KindPractice {
		return en.Practice.IngestDepth
	}
	return en.Event.IngestDepth
}

// IsLocal reports whether the entry is backed by a local database row.
func (en *Entry) IsLocal() bool {
	return !IsPseudoID(en.ID())
}

// IsFuture reports whether the entry date is after now.
func (en *Entry) IsFuture(now time.Time) bool {
	d := en.Date()
	return d != nil && d.After(now)
}
