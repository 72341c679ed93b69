// Pitwall - RC Race Event Discovery and Import
// Copyright 2026 Pitwall contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pitwall-app/pitwall

package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pitwall-app/pitwall/internal/apperr"
	"github.com/pitwall-app/pitwall/internal/config"
)

func testBreakerClient(baseURL string) *BreakerClient {
	return NewBreakerClient(
		&config.BackendConfig{
			BaseURL:        baseURL,
			Timeout:        2 * time.Second,
			ImportTimeout:  2 * time.Second,
			MaxRetries:     0,
			RetryBaseDelay: time.Millisecond,
		},
		&config.DiscoveryConfig{
			Timeout:            time.Second,
			BreakerMaxRequests: 1,
			BreakerInterval:    time.Minute,
			BreakerTimeout:     time.Minute,
			BreakerMinRequests: 3,
			BreakerFailureRate: 0.6,
		},
	)
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	bc := testBreakerClient(srv.URL)
	ctx := context.Background()
	req := DiscoverRequest{TrackID: "track-1"}

	// Drive the breaker past its minimum request threshold.
	for i := 0; i < 3; i++ {
		if _, err := bc.DiscoverEvents(ctx, req); err == nil {
			t.Fatal("expected failure from backend")
		}
	}

	_, err := bc.DiscoverEvents(ctx, req)
	if !errors.Is(err, apperr.ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen once tripped, got %v", err)
	}
}

func TestBreakerPassesSuccessThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"new_events":[{"source_event_id":"5","event_name":"Discovered"}],"existing_events":[]}`))
	}))
	defer srv.Close()

	bc := testBreakerClient(srv.URL)
	res, err := bc.DiscoverEvents(context.Background(), DiscoverRequest{TrackID: "track-1"})
	if err != nil {
		t.Fatalf("DiscoverEvents: %v", err)
	}
	if len(res.NewEvents) != 1 || res.NewEvents[0].ID != "liverc-5" {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestBreakerDoesNotGateLocalCalls(t *testing.T) {
	var discoverCalls, searchCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/events/discover":
			discoverCalls.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
		case "/api/v1/events/search":
			searchCalls.Add(1)
			_, _ = w.Write([]byte(`{"events":[]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	bc := testBreakerClient(srv.URL)
	ctx := context.Background()

	// Trip the breaker on discovery.
	for i := 0; i < 4; i++ {
		_, _ = bc.DiscoverEvents(ctx, DiscoverRequest{TrackID: "track-1"})
	}

	// Local search must still reach the backend.
	if _, err := bc.SearchEvents(ctx, "track-1", nil, nil); err != nil {
		t.Fatalf("SearchEvents should bypass the breaker: %v", err)
	}
	if searchCalls.Load() != 1 {
		t.Errorf("expected search to hit backend, got %d calls", searchCalls.Load())
	}
}
