// Pitwall - RC Race Event Discovery and Import
// Copyright 2026 Pitwall contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pitwall-app/pitwall

package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/pitwall-app/pitwall/internal/apperr"
	"github.com/pitwall-app/pitwall/internal/config"
	"github.com/pitwall-app/pitwall/internal/models"
	"github.com/pitwall-app/pitwall/internal/reconcile"
	"github.com/pitwall-app/pitwall/internal/store"
	"github.com/pitwall-app/pitwall/internal/websocket"
)

type mockSearcher struct {
	mu         sync.Mutex
	resolver   *reconcile.StatusResolver
	searchView *reconcile.View
	searchErr  error
	refreshErr error
	lastFilter models.SearchFilters
	calls      int
}

func (m *mockSearcher) Search(ctx context.Context, s *reconcile.Session, filters models.SearchFilters) (*reconcile.View, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.lastFilter = filters
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	if m.searchView != nil {
		return m.searchView, nil
	}
	return s.Snapshot(ctx, m.resolver, time.Now()), nil
}

func (m *mockSearcher) Refresh(ctx context.Context, s *reconcile.Session) (*reconcile.View, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.refreshErr != nil {
		return nil, m.refreshErr
	}
	return s.Snapshot(ctx, m.resolver, time.Now()), nil
}

func (m *mockSearcher) Resolver() *reconcile.StatusResolver {
	return m.resolver
}

type mockImporter struct {
	mu      sync.Mutex
	err     error
	started []string
}

func (m *mockImporter) StartImport(s *reconcile.Session, entry models.Entry, trackID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.started = append(m.started, entry.ID())
	return nil
}

type mockCatalog struct {
	tracks []models.Track
	loaded bool
}

func (m *mockCatalog) Tracks() []models.Track { return m.tracks }
func (m *mockCatalog) Loaded() bool           { return m.loaded }

type apiFixture struct {
	server   *httptest.Server
	sessions *reconcile.Registry
	engine   *mockSearcher
	importer *mockImporter
	store    store.Store
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	st := store.NewMemoryStore(time.Hour, 100)
	sessions := reconcile.NewRegistry(&config.SessionsConfig{IdleTTL: time.Minute, ReapInterval: time.Minute})
	engine := &mockSearcher{resolver: reconcile.NewStatusResolver(st)}
	importer := &mockImporter{}
	catalog := &mockCatalog{
		tracks: []models.Track{{ID: "track-1", TrackName: "Thunder Alley"}},
		loaded: true,
	}

	handlers := NewHandlers(sessions, engine, importer, catalog, st)
	wsHandler := NewWSHandler(websocket.NewHub(), sessions)
	router := NewRouter(handlers, wsHandler, &config.ServerConfig{
		CORSOrigins:     []string{"*"},
		RateLimitReqs:   1000,
		RateLimitWindow: time.Minute,
	})

	srv := httptest.NewServer(router.Setup())
	t.Cleanup(srv.Close)

	return &apiFixture{server: srv, sessions: sessions, engine: engine, importer: importer, store: st}
}

func (f *apiFixture) do(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		rd = bytes.NewReader(payload)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, f.server.URL+path, rd)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

// seedSessionEntry installs an event row in the session's merged list.
// PromoteIdentity appends the promoted row when the old id has no match,
// which gives tests a way to populate a session without a backend.
func seedSessionEntry(t *testing.T, s *reconcile.Session, ev models.Event) {
	t.Helper()
	s.PromoteIdentity("seed-"+ev.ID, ev)
	if _, ok := s.Entry(ev.ID); !ok {
		t.Fatalf("failed to seed entry %s", ev.ID)
	}
}

func (f *apiFixture) createSession(t *testing.T) string {
	t.Helper()
	resp := f.do(t, http.MethodPost, "/api/v1/sessions", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create session status = %d", resp.StatusCode)
	}
	body := decodeBody[SessionResponse](t, resp)
	if body.SessionID == "" {
		t.Fatal("empty session id")
	}
	return body.SessionID
}

func TestCreateSessionRehydratesState(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	if err := f.store.SaveFilters(ctx, &models.SearchFilters{TrackID: "track-1", Preset: models.PresetLast3}); err != nil {
		t.Fatalf("seed filters: %v", err)
	}
	if err := f.store.SaveFavourites(ctx, []string{"track-1", "track-2"}); err != nil {
		t.Fatalf("seed favourites: %v", err)
	}

	resp := f.do(t, http.MethodPost, "/api/v1/sessions", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body := decodeBody[SessionResponse](t, resp)
	if body.Filters == nil || body.Filters.TrackID != "track-1" {
		t.Errorf("persisted filters not rehydrated: %+v", body.Filters)
	}
	if len(body.Favourites) != 2 {
		t.Errorf("favourites = %v", body.Favourites)
	}
}

func TestGetViewUnknownSession(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodGet, "/api/v1/sessions/nope", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	body := decodeBody[ErrorResponse](t, resp)
	if body.Code != "session_not_found" {
		t.Errorf("code = %q", body.Code)
	}
}

func TestSearchValidation(t *testing.T) {
	f := newAPIFixture(t)
	id := f.createSession(t)

	tests := []struct {
		name      string
		body      interface{}
		wantField string
	}{
		{"missing track", SearchRequest{Preset: "last3"}, "TrackID"},
		{"bad preset", SearchRequest{TrackID: "track-1", Preset: "lastCentury"}, "Preset"},
		{"bad sort", SearchRequest{TrackID: "track-1", Sort: "speed"}, "Sort"},
		{"oversized page", SearchRequest{TrackID: "track-1", ItemsPerPage: 500}, "ItemsPerPage"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/search", tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", resp.StatusCode)
			}
			body := decodeBody[ErrorResponse](t, resp)
			if body.Code != "validation_error" || body.Field != tt.wantField {
				t.Errorf("got %+v", body)
			}
		})
	}

	if f.engine.calls != 0 {
		t.Errorf("invalid requests must not reach the engine, saw %d calls", f.engine.calls)
	}
}

func TestSearchPassesFilters(t *testing.T) {
	f := newAPIFixture(t)
	id := f.createSession(t)

	resp := f.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/search", SearchRequest{
		TrackID:         "track-1",
		Preset:          "custom",
		StartDate:       "2026-01-01",
		EndDate:         "2026-03-31",
		IncludePractice: true,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	got := f.engine.lastFilter
	if got.TrackID != "track-1" || got.Preset != models.PresetCustom || !got.IncludePractice {
		t.Errorf("filters = %+v", got)
	}
	if got.StartDate == nil || got.StartDate.Format("2006-01-02") != "2026-01-01" {
		t.Errorf("start date = %v", got.StartDate)
	}
	// Zero-value paging resolves to the first page of twenty.
	if got.CurrentPage != 1 || got.ItemsPerPage != 20 {
		t.Errorf("paging defaults = %d/%d", got.CurrentPage, got.ItemsPerPage)
	}
}

func TestSearchCustomPresetRequiresDates(t *testing.T) {
	f := newAPIFixture(t)
	id := f.createSession(t)

	resp := f.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/search", SearchRequest{
		TrackID: "track-1",
		Preset:  "custom",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestSearchBackendUnavailable(t *testing.T) {
	f := newAPIFixture(t)
	id := f.createSession(t)
	f.engine.searchErr = apperr.NewServer(http.StatusBadGateway, context.DeadlineExceeded)

	resp := f.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/search", SearchRequest{TrackID: "track-1"})
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", resp.StatusCode)
	}
	body := decodeBody[ErrorResponse](t, resp)
	if body.Code != "backend_error" || !body.Retryable || body.CorrelationID == "" {
		t.Errorf("got %+v", body)
	}
}

func TestRefreshEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	id := f.createSession(t)

	resp := f.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/refresh", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if f.engine.calls != 1 {
		t.Errorf("engine calls = %d, want 1", f.engine.calls)
	}
}

func TestStartImportUnknownEvent(t *testing.T) {
	f := newAPIFixture(t)
	id := f.createSession(t)

	resp := f.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/imports", ImportStartRequest{EventID: "evt-404"})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	body := decodeBody[ErrorResponse](t, resp)
	if body.Code != "event_not_found" {
		t.Errorf("code = %q", body.Code)
	}
}

func TestStartImportScheduledEventConflict(t *testing.T) {
	f := newAPIFixture(t)
	id := f.createSession(t)
	f.importer.err = &apperr.ScheduledEventError{EventID: "evt-1", EventName: "Winter Cup"}

	// The entry must exist in the session's merged list before import is
	// attempted.
	s, err := f.sessions.Get(id)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	seedSessionEntry(t, s, models.Event{ID: "evt-1", EventName: "Winter Cup"})

	resp := f.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/imports", ImportStartRequest{EventID: "evt-1"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
	body := decodeBody[ErrorResponse](t, resp)
	if body.Code != "event_scheduled" {
		t.Errorf("code = %q", body.Code)
	}
}

func TestStartImportAccepted(t *testing.T) {
	f := newAPIFixture(t)
	id := f.createSession(t)

	s, err := f.sessions.Get(id)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	seedSessionEntry(t, s, models.Event{ID: "evt-1", EventName: "Spring Cup", SourceEventID: "100"})

	resp := f.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/imports", ImportStartRequest{EventID: "evt-1"})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	f.importer.mu.Lock()
	defer f.importer.mu.Unlock()
	if len(f.importer.started) != 1 || f.importer.started[0] != "evt-1" {
		t.Errorf("started imports = %v", f.importer.started)
	}
}

func TestListTracks(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodGet, "/api/v1/tracks", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body := decodeBody[map[string]json.RawMessage](t, resp)
	var tracks []models.Track
	if err := json.Unmarshal(body["tracks"], &tracks); err != nil {
		t.Fatalf("decode tracks: %v", err)
	}
	if len(tracks) != 1 || tracks[0].ID != "track-1" {
		t.Errorf("tracks = %+v", tracks)
	}
}

func TestFavouritesRoundTrip(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodPut, "/api/v1/favourites", FavouritesRequest{TrackIDs: []string{"track-1", "track-9"}})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("save status = %d", resp.StatusCode)
	}

	resp = f.do(t, http.MethodGet, "/api/v1/favourites", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	body := decodeBody[map[string][]string](t, resp)
	if got := body["trackIds"]; len(got) != 2 || got[1] != "track-9" {
		t.Errorf("favourites = %v", got)
	}
}

func TestHealthEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodGet, "/api/v1/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body := decodeBody[map[string]interface{}](t, resp)
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestRequestIDEchoed(t *testing.T) {
	f := newAPIFixture(t)

	req, err := http.NewRequest(http.MethodGet, f.server.URL+"/api/v1/health", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("X-Request-ID", "test-correlation-42")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("X-Request-ID"); got != "test-correlation-42" {
		t.Errorf("X-Request-ID = %q", got)
	}

	// A request without the header gets a generated id.
	resp2 := f.do(t, http.MethodGet, "/api/v1/health", nil)
	if resp2.Header.Get("X-Request-ID") == "" {
		t.Error("missing generated request id")
	}
}

func TestCloseSession(t *testing.T) {
	f := newAPIFixture(t)
	id := f.createSession(t)

	resp := f.do(t, http.MethodDelete, "/api/v1/sessions/"+id, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	resp = f.do(t, http.MethodGet, "/api/v1/sessions/"+id, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("closed session should be gone, status = %d", resp.StatusCode)
	}
}
