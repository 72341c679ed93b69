// Pitwall - RC Race Event Discovery and Import
// Copyright 2026 Pitwall contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pitwall-app/pitwall

package models

// EventStatus is the derived, never-stored status of an event row.
type EventStatus string

const (
	// StatusScheduled means the event date is in the future. Wins over
	// every other signal.
	StatusScheduled EventStatus = "scheduled"

	// StatusNew means the event has not been imported yet.
	StatusNew EventStatus = "new"

	// StatusImporting means an import is in flight.
	StatusImporting EventStatus = "importing"

	// StatusImported means the event is fully imported.
	StatusImported EventStatus = "imported"

	// StatusFailed means the last import attempt errored.
	StatusFailed EventStatus = "failed"
)

// statusRank fixes the sort precedence for status ordering:
// scheduled < new < importing < failed < imported.
var statusRank = map[EventStatus]int{
	StatusScheduled: 0,
	StatusNew:       1,
	StatusImporting: 2,
	StatusFailed:    3,
	StatusImported:  4,
}

// Rank returns the fixed sort precedence of the status. Unknown statuses
// sort last.
func (s EventStatus) Rank() int {
	if r, ok := statusRank[s]; ok {
		return r
	}
	return len(statusRank)
}

// Terminal reports whether the status is an import end state.
func (s EventStatus) Terminal() bool {
	return s == StatusImported || s == StatusFailed
}
