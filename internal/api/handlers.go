// Pitwall - RC Race Event Discovery and Import
// Copyright 2026 Pitwall contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pitwall-app/pitwall

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/pitwall-app/pitwall/internal/logging"
	"github.com/pitwall-app/pitwall/internal/models"
	"github.com/pitwall-app/pitwall/internal/reconcile"
	"github.com/pitwall-app/pitwall/internal/store"
	"github.com/pitwall-app/pitwall/internal/validation"
)

// Searcher is the reconciliation surface the handlers consume.
type Searcher interface {
	Search(ctx context.Context, s *reconcile.Session, filters models.SearchFilters) (*reconcile.View, error)
	Refresh(ctx context.Context, s *reconcile.Session) (*reconcile.View, error)
	Resolver() *reconcile.StatusResolver
}

// Importer is the orchestration surface the handlers consume.
type Importer interface {
	StartImport(s *reconcile.Session, entry models.Entry, trackID string) error
}

// TrackCatalog is the track lookup surface the handlers consume.
type TrackCatalog interface {
	Tracks() []models.Track
	Loaded() bool
}

// Handlers holds the HTTP handlers for the session, search and import API.
type Handlers struct {
	sessions *reconcile.Registry
	engine   Searcher
	importer Importer
	catalog  TrackCatalog
	store    store.Store
}

// NewHandlers creates the handler set.
func NewHandlers(sessions *reconcile.Registry, engine Searcher, importer Importer, catalog TrackCatalog, st store.Store) *Handlers {
	return &Handlers{
		sessions: sessions,
		engine:   engine,
		importer: importer,
		catalog:  catalog,
		store:    st,
	}
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Error().Err(err).Msg("Failed to encode response")
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	status, body := toResponse(err)
	if status >= http.StatusInternalServerError {
		logging.Error().Err(err).Str("correlation_id", body.CorrelationID).Msg("Request failed")
	}
	h.writeJSON(w, status, body)
}

// SessionResponse is the body returned on session create and attach.
type SessionResponse struct {
	SessionID  string                `json:"sessionId"`
	Filters    *models.SearchFilters `json:"filters,omitempty"`
	Favourites []string              `json:"favourites"`
}

// HandleCreateSession handles POST /api/v1/sessions
//
// @Summary Create a search session
// @Description Creates a session and rehydrates persisted filters and favourite tracks
// @Tags sessions
// @Produce json
// @Success 201 {object} SessionResponse
// @Router /api/v1/sessions [post]
func (h *Handlers) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	s := h.sessions.Create()

	filters := h.store.LastFilters(r.Context())
	favourites := h.store.Favourites(r.Context())
	if favourites == nil {
		favourites = []string{}
	}

	h.writeJSON(w, http.StatusCreated, SessionResponse{
		SessionID:  s.ID,
		Filters:    filters,
		Favourites: favourites,
	})
}

// HandleCloseSession handles DELETE /api/v1/sessions/{id}
//
// @Summary Close a search session
// @Tags sessions
// @Success 204
// @Router /api/v1/sessions/{id} [delete]
func (h *Handlers) HandleCloseSession(w http.ResponseWriter, r *http.Request) {
	h.sessions.Remove(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

// HandleGetView handles GET /api/v1/sessions/{id}
//
// @Summary Current merged view of a session
// @Description The paginated, status-annotated event list, including live import progress
// @Tags sessions
// @Produce json
// @Success 200 {object} reconcile.View
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/sessions/{id} [get]
func (h *Handlers) HandleGetView(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, s.Snapshot(r.Context(), h.engine.Resolver(), time.Now()))
}

// SearchRequest is the body of a search call.
type SearchRequest struct {
	TrackID         string `json:"trackId" validate:"required"`
	Preset          string `json:"preset" validate:"datepreset"`
	StartDate       string `json:"startDate,omitempty"`
	EndDate         string `json:"endDate,omitempty"`
	Page            int    `json:"page" validate:"min=0"`
	ItemsPerPage    int    `json:"itemsPerPage" validate:"min=0,max=200"`
	IncludePractice bool   `json:"includePractice"`
	Sort            string `json:"sort" validate:"sortmode"`
}

// HandleSearch handles POST /api/v1/sessions/{id}/search
//
// @Summary Run an event search
// @Description Queries the local database immediately and starts background provider discovery
// @Tags search
// @Accept json
// @Produce json
// @Param request body SearchRequest true "Search filters"
// @Success 200 {object} reconcile.View
// @Failure 400 {object} ErrorResponse "Invalid filters"
// @Failure 404 {object} ErrorResponse "Unknown session or track"
// @Router /api/v1/sessions/{id}/search [post]
func (h *Handlers) HandleSearch(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: "bad_json"})
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		first := verr.First()
		h.writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: first.Message,
			Code:  "validation_error",
			Field: first.Field,
		})
		return
	}

	filters, err := req.toFilters()
	if err != nil {
		h.writeError(w, err)
		return
	}

	if req.Sort != "" {
		s.SetSort(models.SortMode(req.Sort))
	}

	view, err := h.engine.Search(r.Context(), s, filters)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

// toFilters converts the wire request to engine filters, parsing the custom
// date bounds.
func (req *SearchRequest) toFilters() (models.SearchFilters, error) {
	f := models.SearchFilters{
		TrackID:         req.TrackID,
		Preset:          models.DatePreset(req.Preset),
		CurrentPage:     req.Page,
		ItemsPerPage:    req.ItemsPerPage,
		IncludePractice: req.IncludePractice,
	}
	if f.Preset == "" {
		f.Preset = models.PresetNone
	}
	if f.CurrentPage == 0 {
		f.CurrentPage = 1
	}
	if f.ItemsPerPage == 0 {
		f.ItemsPerPage = 20
	}

	if f.Preset == models.PresetCustom {
		start, err := parseDateField("startDate", req.StartDate)
		if err != nil {
			return f, err
		}
		end, err := parseDateField("endDate", req.EndDate)
		if err != nil {
			return f, err
		}
		f.StartDate = start
		f.EndDate = end
	}
	return f, nil
}

// PageRequest is the body of a pagination change.
type PageRequest struct {
	Page         int    `json:"page" validate:"min=1"`
	ItemsPerPage int    `json:"itemsPerPage" validate:"min=0,max=200"`
	Sort         string `json:"sort" validate:"sortmode"`
}

// HandleSetPage handles POST /api/v1/sessions/{id}/page
//
// @Summary Change pagination or sorting without re-searching
// @Tags search
// @Accept json
// @Produce json
// @Param request body PageRequest true "Page settings"
// @Success 200 {object} reconcile.View
// @Router /api/v1/sessions/{id}/page [post]
func (h *Handlers) HandleSetPage(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req PageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: "bad_json"})
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		first := verr.First()
		h.writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: first.Message,
			Code:  "validation_error",
			Field: first.Field,
		})
		return
	}

	s.SetPage(req.Page, req.ItemsPerPage)
	if req.Sort != "" {
		s.SetSort(models.SortMode(req.Sort))
	}
	h.writeJSON(w, http.StatusOK, s.Snapshot(r.Context(), h.engine.Resolver(), time.Now()))
}

// HandleRefresh handles POST /api/v1/sessions/{id}/refresh
//
// @Summary Re-run the session's current search with its stored filters
// @Tags search
// @Produce json
// @Success 200 {object} reconcile.View
// @Failure 404 {object} ErrorResponse "Unknown session"
// @Router /api/v1/sessions/{id}/refresh [post]
func (h *Handlers) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	view, err := h.engine.Refresh(r.Context(), s)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

// ImportStartRequest is the body of an import start call.
type ImportStartRequest struct {
	EventID string `json:"eventId" validate:"required"`
}

// HandleStartImport handles POST /api/v1/sessions/{id}/imports
//
// @Summary Start importing an event
// @Description Begins an asynchronous import cycle; progress arrives over the session's WebSocket and in view snapshots
// @Tags imports
// @Accept json
// @Produce json
// @Param request body ImportStartRequest true "Event to import"
// @Success 202 {object} reconcile.View
// @Failure 404 {object} ErrorResponse "Unknown session or event"
// @Failure 409 {object} ErrorResponse "Event is scheduled in the future"
// @Router /api/v1/sessions/{id}/imports [post]
func (h *Handlers) HandleStartImport(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req ImportStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: "bad_json"})
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		first := verr.First()
		h.writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: first.Message,
			Code:  "validation_error",
			Field: first.Field,
		})
		return
	}

	entry, ok := s.Entry(req.EventID)
	if !ok {
		h.writeJSON(w, http.StatusNotFound, ErrorResponse{
			Error: "event is not in the current search results",
			Code:  "event_not_found",
		})
		return
	}

	if err := h.importer.StartImport(s, entry, s.Filters().TrackID); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, s.Snapshot(r.Context(), h.engine.Resolver(), time.Now()))
}

// HandleListTracks handles GET /api/v1/tracks
//
// @Summary List known tracks
// @Tags tracks
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/tracks [get]
func (h *Handlers) HandleListTracks(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"tracks": h.catalog.Tracks(),
		"loaded": h.catalog.Loaded(),
	})
}

// FavouritesRequest is the body of a favourites update.
type FavouritesRequest struct {
	TrackIDs []string `json:"trackIds" validate:"required,max=100"`
}

// HandleGetFavourites handles GET /api/v1/favourites
//
// @Summary Persisted favourite tracks
// @Tags favourites
// @Produce json
// @Success 200 {object} map[string][]string
// @Router /api/v1/favourites [get]
func (h *Handlers) HandleGetFavourites(w http.ResponseWriter, r *http.Request) {
	favourites := h.store.Favourites(r.Context())
	if favourites == nil {
		favourites = []string{}
	}
	h.writeJSON(w, http.StatusOK, map[string][]string{"trackIds": favourites})
}

// HandleSaveFavourites handles PUT /api/v1/favourites
//
// @Summary Replace the favourite track list
// @Tags favourites
// @Accept json
// @Success 204
// @Router /api/v1/favourites [put]
func (h *Handlers) HandleSaveFavourites(w http.ResponseWriter, r *http.Request) {
	var req FavouritesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: "bad_json"})
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		first := verr.First()
		h.writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: first.Message,
			Code:  "validation_error",
			Field: first.Field,
		})
		return
	}

	if err := h.store.SaveFavourites(r.Context(), req.TrackIDs); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleHealth handles GET /api/v1/health
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"catalog_loaded": h.catalog.Loaded(),
	})
}
