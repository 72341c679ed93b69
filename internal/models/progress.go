// Pitwall - RC Race Event Discovery and Import
// Copyright 2026 Pitwall contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pitwall-app/pitwall

package models

import "time"

// ImportCounts holds the backend's running totals for one import.
type ImportCounts struct {
	Races   int `json:"races"`
	Results int `json:"results"`
	Laps    int `json:"laps"`
}

// ImportProgress is the progress record for one in-flight import, keyed by
// the event id currently displayed in the merged list. Created when the
// import starts, updated by polling, removed a few seconds after terminal
// success or immediately on terminal failure.
type ImportProgress struct {
	EventID   string        `json:"eventId"`
	Stage     string        `json:"stage"`
	Counts    *ImportCounts `json:"counts,omitempty"`
	StartedAt time.Time     `json:"startedAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// Elapsed returns the wall-clock time since the import started.
func (p *ImportProgress) Elapsed(now time.Time) time.Duration {
	return now.Sub(p.StartedAt)
}
