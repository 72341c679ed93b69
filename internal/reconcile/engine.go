// Pitwall - RC Race Event Discovery and Import
// Copyright 2026 Pitwall contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pitwall-app/pitwall

// Package reconcile merges local-database events and provider-discovered
// events into one deduplicated, status-annotated view per search session.
//
// The local database answers first and its rows are displayed immediately;
// provider discovery runs in the background and appends only rows not
// already known. A generation counter per session fences stale discovery
// results so a search for track A can never be polluted by late results for
// track B.
package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/pitwall-app/pitwall/internal/apperr"
	"github.com/pitwall-app/pitwall/internal/catalog"
	"github.com/pitwall-app/pitwall/internal/config"
	"github.com/pitwall-app/pitwall/internal/gateway"
	"github.com/pitwall-app/pitwall/internal/logging"
	"github.com/pitwall-app/pitwall/internal/metrics"
	"github.com/pitwall-app/pitwall/internal/models"
	"github.com/pitwall-app/pitwall/internal/store"
)

// maxCustomRangeDays bounds a custom date range.
const maxCustomRangeDays = 90

// Engine coordinates searches across the backend, the track catalog and the
// local cache store.
type Engine struct {
	backend  gateway.Backend
	catalog  *catalog.Catalog
	store    store.Store
	resolver *StatusResolver

	discoveryTimeout time.Duration

	// onMerged, when set, is invoked after background discovery appends
	// rows to a session's view.
	onMerged func(sessionID string, merged int)
}

// NewEngine creates the reconciliation engine.
func NewEngine(backend gateway.Backend, cat *catalog.Catalog, st store.Store, cfg *config.DiscoveryConfig) *Engine {
	return &Engine{
		backend:          backend,
		catalog:          cat,
		store:            st,
		resolver:         NewStatusResolver(st),
		discoveryTimeout: cfg.Timeout,
	}
}

// Resolver exposes the status resolver shared with the orchestrator and the
// HTTP layer.
func (e *Engine) Resolver() *StatusResolver { return e.resolver }

// OnDiscoveryMerged registers a callback invoked whenever background
// discovery merges new rows into a session. Must be set before Search is
// first called.
func (e *Engine) OnDiscoveryMerged(fn func(sessionID string, merged int)) {
	e.onMerged = fn
}

// ValidateFilters checks the search filters before any network call.
// A custom date range must have both bounds, start before end, neither in
// the future, and a span of at most 90 days.
func (e *Engine) ValidateFilters(f *models.SearchFilters, now time.Time) error {
	if f.TrackID == "" {
		return apperr.NewValidation("trackId", "a track must be selected")
	}

	if f.Preset == models.PresetCustom {
		if f.StartDate == nil {
			return apperr.NewValidation("startDate", "required for a custom range")
		}
		if f.EndDate == nil {
			return apperr.NewValidation("endDate", "required for a custom range")
		}
		if f.StartDate.After(now) {
			return apperr.NewValidation("startDate", "cannot be in the future")
		}
		if f.EndDate.After(now) {
			return apperr.NewValidation("endDate", "cannot be in the future")
		}
		if f.StartDate.After(*f.EndDate) {
			return apperr.NewValidation("startDate", "must be on or before the end date")
		}
		if f.EndDate.Sub(*f.StartDate) > maxCustomRangeDays*24*time.Hour {
			return apperr.NewValidation("endDate", "range cannot exceed 90 days")
		}
	}

	if f.ItemsPerPage < 0 || f.ItemsPerPage > 200 {
		return apperr.NewValidation("itemsPerPage", "must be between 1 and 200")
	}
	return nil
}

// Search runs a new search for the session: validates the filters, queries
// the local database synchronously, then starts background provider
// discovery fenced by the session's new generation. Returns the immediate
// view; discovery results surface through later snapshots.
func (e *Engine) Search(ctx context.Context, s *Session, filters models.SearchFilters) (*View, error) {
	now := time.Now()

	if err := e.ValidateFilters(&filters, now); err != nil {
		metrics.SearchesTotal.WithLabelValues("validation_error").Inc()
		return nil, err
	}

	track, ok := e.catalog.TrackByID(filters.TrackID)
	if !ok && e.catalog.Loaded() {
		// The persisted selection no longer resolves. Clear it so the
		// next session attach does not repeat the failure.
		if err := e.store.ClearTrackSelection(ctx); err != nil {
			logging.Warn().Err(err).Msg("Failed to clear stale track selection")
		}
		metrics.SearchesTotal.WithLabelValues("validation_error").Inc()
		return nil, &apperr.NotFoundError{Kind: "track", ID: filters.TrackID}
	}

	start, end := filters.Resolve(now)
	bgCtx, gen := s.beginSearch(context.WithoutCancel(ctx), filters, now)

	searchStart := time.Now()
	result, err := e.backend.SearchEvents(ctx, filters.TrackID, start, end)
	metrics.SearchDuration.Observe(time.Since(searchStart).Seconds())
	if err != nil {
		s.searchFailed(gen)
		metrics.SearchesTotal.WithLabelValues("backend_error").Inc()
		return nil, apperr.NewServer(0, err)
	}

	entries := make([]models.Entry, 0, len(result.Events))
	for _, ev := range result.Events {
		entries = append(entries, models.EventEntry(ev))
	}

	if filters.IncludePractice {
		days, err := e.backend.SearchPracticeDays(ctx, filters.TrackID, start, end)
		if err != nil {
			logging.Warn().Err(err).Str("track_id", filters.TrackID).Msg("Practice day search failed")
		} else {
			for _, d := range days {
				entries = append(entries, models.PracticeEntry(d))
			}
		}
	}

	s.setLocalResults(gen, entries, true)
	metrics.SearchesTotal.WithLabelValues("ok").Inc()

	if err := e.store.SaveFilters(ctx, &filters); err != nil {
		logging.Warn().Err(err).Msg("Failed to persist search filters")
	}

	go e.discover(bgCtx, s, gen, track, filters, start, end, entries)

	return s.Snapshot(ctx, e.resolver, now), nil
}

// discover runs the background provider query for one search generation and
// merges whatever it returns. Circuit-open and timeouts are benign: the
// local list stays, the provider indicator clears.
func (e *Engine) discover(ctx context.Context, s *Session, gen uint64, track models.Track, filters models.SearchFilters, start, end *time.Time, local []models.Entry) {
	ctx, cancel := context.WithTimeout(ctx, e.discoveryTimeout)
	defer cancel()

	sourceIDs := make([]string, 0, len(local))
	for i := range local {
		if local[i].Kind == models.KindEvent {
			if src := local[i].SourceID(); src != "" {
				sourceIDs = append(sourceIDs, src)
			}
		}
	}

	req := gateway.DiscoverRequest{
		TrackID:           filters.TrackID,
		TrackSlug:         track.SourceTrackSlug,
		Start:             start,
		End:               end,
		ExistingSourceIDs: sourceIDs,
	}

	result, err := e.backend.DiscoverEvents(ctx, req)
	if err != nil {
		e.discoveryFailed(s, gen, filters.TrackID, err)
		return
	}

	discovered := make([]models.Entry, 0, len(result.NewEvents))
	for _, ev := range result.NewEvents {
		discovered = append(discovered, models.EventEntry(ev))
	}

	if filters.IncludePractice {
		practiceSourceIDs := make([]string, 0, len(local))
		for i := range local {
			if local[i].Kind == models.KindPractice {
				if src := local[i].SourceID(); src != "" {
					practiceSourceIDs = append(practiceSourceIDs, src)
				}
			}
		}
		preq := req
		preq.ExistingSourceIDs = practiceSourceIDs
		presult, err := e.backend.DiscoverPracticeDays(ctx, preq)
		if err != nil {
			logging.Debug().Err(err).Str("track_id", filters.TrackID).Msg("Practice discovery failed")
		} else {
			for _, d := range presult.NewPracticeDays {
				discovered = append(discovered, models.PracticeEntry(d))
			}
		}
	}

	merged := s.mergeDiscovered(gen, discovered)
	logging.Debug().
		Str("track_id", filters.TrackID).
		Int("discovered", len(discovered)).
		Int("merged", merged).
		Msg("Provider discovery merged")

	if merged > 0 && e.onMerged != nil {
		e.onMerged(s.ID, merged)
	}
}

func (e *Engine) discoveryFailed(s *Session, gen uint64, trackID string, err error) {
	s.providerDone(gen)

	switch {
	case errors.Is(err, apperr.ErrCircuitOpen):
		logging.Debug().Str("track_id", trackID).Msg("Discovery skipped, circuit open")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		logging.Debug().Str("track_id", trackID).Msg("Discovery cancelled or timed out")
	default:
		logging.Warn().Err(err).Str("track_id", trackID).Msg("Provider discovery failed")
	}
}

// Refresh re-runs the session's current search with its stored filters.
func (e *Engine) Refresh(ctx context.Context, s *Session) (*View, error) {
	return e.Search(ctx, s, s.Filters())
}
