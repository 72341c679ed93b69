// Pitwall - RC Race Event Discovery and Import
// Copyright 2026 Pitwall contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pitwall-app/pitwall

package reconcile

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/pitwall-app/pitwall/internal/models"
)

// EntryView is one row of the rendered list: the entry plus its derived
// status, failure message and live progress.
type EntryView struct {
	models.Entry
	Status     models.EventStatus     `json:"status"`
	Importable bool                   `json:"importable"`
	Error      string                 `json:"error,omitempty"`
	Progress   *models.ImportProgress `json:"progress,omitempty"`
}

// View is the paginated, status-annotated state of one session.
type View struct {
	SessionID        string          `json:"sessionId"`
	Entries          []EntryView     `json:"entries"`
	TotalEntries     int             `json:"totalEntries"`
	TotalPages       int             `json:"totalPages"`
	CurrentPage      int             `json:"currentPage"`
	ItemsPerPage     int             `json:"itemsPerPage"`
	Sort             models.SortMode `json:"sort"`
	HasSearched      bool            `json:"hasSearched"`
	CheckingProvider bool            `json:"checkingProvider"`
}

// Snapshot renders the session's merged list: every entry annotated with its
// derived status, sorted by the session's sort mode, then paginated.
func (s *Session) Snapshot(ctx context.Context, resolver *StatusResolver, now time.Time) *View {
	s.mu.Lock()
	entries := append([]models.Entry(nil), s.entries...)
	mode := s.sort
	page := s.filters.CurrentPage
	perPage := s.filters.ItemsPerPage
	hasSearched := s.hasSearched
	checking := s.checkingProvider

	views := make([]EntryView, 0, len(entries))
	for i := range entries {
		id := entries[i].ID()
		override, hasOverride := s.overrides[id]
		v := EntryView{Entry: entries[i], Error: s.failures[id]}
		if p, ok := s.progress[id]; ok {
			cp := p
			v.Progress = &cp
		}
		v.Status = resolver.Derive(ctx, &entries[i], now, override, hasOverride)
		v.Importable = !entries[i].IsFuture(now) && v.Status == models.StatusNew
		views = append(views, v)
	}
	s.mu.Unlock()

	sortViews(views, mode)

	total := len(views)
	if perPage <= 0 {
		perPage = 20
	}
	totalPages := (total + perPage - 1) / perPage
	if page < 1 {
		page = 1
	}
	if totalPages > 0 && page > totalPages {
		page = totalPages
	}

	startIdx := (page - 1) * perPage
	endIdx := startIdx + perPage
	if startIdx > total {
		startIdx = total
	}
	if endIdx > total {
		endIdx = total
	}

	return &View{
		SessionID:        s.ID,
		Entries:          views[startIdx:endIdx],
		TotalEntries:     total,
		TotalPages:       totalPages,
		CurrentPage:      page,
		ItemsPerPage:     perPage,
		Sort:             mode,
		HasSearched:      hasSearched,
		CheckingProvider: checking,
	}
}

// sortViews orders the annotated rows. Date sorting is descending with
// missing dates last; status sorting uses the fixed precedence with name as
// the tie-break.
func sortViews(views []EntryView, mode models.SortMode) {
	switch mode {
	case models.SortByName:
		sort.SliceStable(views, func(i, j int) bool {
			return strings.ToLower(views[i].Name()) < strings.ToLower(views[j].Name())
		})
	case models.SortByStatus:
		sort.SliceStable(views, func(i, j int) bool {
			ri, rj := views[i].Status.Rank(), views[j].Status.Rank()
			if ri != rj {
				return ri < rj
			}
			return strings.ToLower(views[i].Name()) < strings.ToLower(views[j].Name())
		})
	default:
		sort.SliceStable(views, func(i, j int) bool {
			di, dj := views[i].Date(), views[j].Date()
			switch {
			case di == nil && dj == nil:
				return strings.ToLower(views[i].Name()) < strings.ToLower(views[j].Name())
			case di == nil:
				return false
			case dj == nil:
				return true
			default:
				return di.After(*dj)
			}
		})
	}
}
