// Pitwall - RC Race Event Discovery and Import
// Copyright 2026 Pitwall contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pitwall-app/pitwall

// Package models defines the canonical domain types shared across Pitwall.
// The gateway client normalizes the backend's mixed snake_case/camelCase
// payloads into these shapes; nothing above the gateway branches on casing.
package models

import (
	"strings"
	"time"
)

// PseudoIDPrefix namespaces client-synthesized identifiers for events that
// are known only to the external provider and have no local database row yet.
const PseudoIDPrefix = "liverc-"

// Ingest depth markers as reported by the backend.
const (
	// DepthNone means no ingestion has happened.
	DepthNone = "none"

	// DepthEventsOnly means the event shell was ingested without results.
	DepthEventsOnly = "events_only"

	// DepthResultsFull means races and results are ingested, laps pending.
	DepthResultsFull = "results_full"

	// DepthLapsFull means the event is fully imported, laps included.
	DepthLapsFull = "laps_full"
)

// Event is a race event row in the merged view. Its canonical identity is ID
// when it exists in the local database; before import it is identified by a
// provider-namespaced pseudo-id. Both identities may transiently co-refer to
// the same logical event during import.
type Event struct {
	ID            string     `json:"id"`
	EventName     string     `json:"eventName"`
	EventDate     *time.Time `json:"eventDate,omitempty"`
	IngestDepth   string     `json:"ingestDepth,omitempty"`
	SourceEventID string     `json:"sourceEventId,omitempty"`
}

// PseudoID builds the provider-namespaced identifier for a source event id.
func PseudoID(sourceEventID string) string {
	return PseudoIDPrefix + sourceEventID
}

// IsPseudoID reports whether id is a client-synthesized provider identifier.
func IsPseudoID(id string) bool {
	return strings.HasPrefix(id, PseudoIDPrefix)
}

// IsLocal reports whether the event is backed by a local database row.
// Provider-only events carry a pseudo-id.
func (e *Event) IsLocal() bool {
	return !IsPseudoID(e.ID)
}

// IsFullyIngested reports whether the backend has imported the event to full
// lap depth.
func (e *Event) IsFullyIngested() bool {
	return e.IngestDepth == DepthLapsFull
}

// IsFuture reports whether the event date is after now. Events with no date
// are never considered future.
func (e *Event) IsFuture(now time.Time) bool {
	return e.EventDate != nil && e.EventDate.After(now)
}

// FromDiscovered builds the provider-only event row for a discovery result.
func FromDiscovered(sourceEventID, name string, date *time.Time) Event {
	return Event{
		ID:            PseudoID(sourceEventID),
		EventName:     name,
		EventDate:     date,
		IngestDepth:   DepthNone,
		SourceEventID: sourceEventID,
	}
}
