// Pitwall - RC Race Event Discovery and Import
// Copyright 2026 Pitwall contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pitwall-app/pitwall

package models

import "time"

// DatePreset selects a relative date range for event search.
type DatePreset string

const (
	PresetNone     DatePreset = "none"
	PresetLast3    DatePreset = "last3"
	PresetLast6    DatePreset = "last6"
	PresetLast12   DatePreset = "last12"
	PresetThisYear DatePreset = "thisYear"
	PresetCustom   DatePreset = "custom"
)

// SearchFilters is the filter state of one search session. It is persisted to
// the local cache store on every successful search and rehydrated on session
// attach.
type SearchFilters struct {
	TrackID         string     `json:"trackId"`
	Preset          DatePreset `json:"preset"`
	StartDate       *time.Time `json:"startDate,omitempty"`
	EndDate         *time.Time `json:"endDate,omitempty"`
	CurrentPage     int        `json:"currentPage"`
	ItemsPerPage    int        `json:"itemsPerPage"`
	IncludePractice bool       `json:"includePractice"`
}

// Resolve derives the concrete start/end dates for the preset. For
// PresetCustom the explicit StartDate/EndDate are returned as-is; for
// PresetNone both are nil (no date constraint).
func (f *SearchFilters) Resolve(now time.Time) (start, end *time.Time) {
	switch f.Preset {
	case PresetLast3:
		return monthsBack(now, 3)
	case PresetLast6:
		return monthsBack(now, 6)
	case PresetLast12:
		return monthsBack(now, 12)
	case PresetThisYear:
		s := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location())
		e := now
		return &s, &e
	case PresetCustom:
		return f.StartDate, f.EndDate
	default:
		return nil, nil
	}
}

func monthsBack(now time.Time, months int) (*time.Time, *time.Time) {
	s := now.AddDate(0, -months, 0)
	e := now
	return &s, &e
}

// SortMode selects the ordering of the merged list.
type SortMode string

const (
	// SortByDate orders by date descending, entries without a date last.
	SortByDate SortMode = "date"

	// SortByName orders lexicographically by display name.
	SortByName SortMode = "name"

	// SortByStatus orders by derived status precedence, ties broken by name.
	SortByStatus SortMode = "status"
)
