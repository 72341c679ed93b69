// Pitwall - RC Race Event Discovery and Import
// Copyright 2026 Pitwall contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pitwall-app/pitwall

package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pitwall-app/pitwall/internal/gateway"
	"github.com/pitwall-app/pitwall/internal/models"
)

// trackBackend is a minimal gateway.Backend double serving only ListTracks.
type trackBackend struct {
	mu     sync.Mutex
	tracks []models.Track
	err    error
	calls  int
}

func (b *trackBackend) ListTracks(_ context.Context) ([]models.Track, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.err != nil {
		return nil, b.err
	}
	return append([]models.Track(nil), b.tracks...), nil
}

func (b *trackBackend) SearchEvents(_ context.Context, _ string, _, _ *time.Time) (*gateway.EventSearchResult, error) {
	return nil, errors.New("not implemented")
}

func (b *trackBackend) DiscoverEvents(_ context.Context, _ gateway.DiscoverRequest) (*gateway.DiscoveryResult, error) {
	return nil, errors.New("not implemented")
}

func (b *trackBackend) GetEvent(_ context.Context, _ string) (*gateway.EventStatusRecord, error) {
	return nil, errors.New("not implemented")
}

func (b *trackBackend) SubmitImport(_ context.Context, _ gateway.ImportRequest) (*gateway.ImportSubmission, error) {
	return nil, errors.New("not implemented")
}

func (b *trackBackend) GetJob(_ context.Context, _ string) (*gateway.JobStatus, error) {
	return nil, errors.New("not implemented")
}

func (b *trackBackend) SearchPracticeDays(_ context.Context, _ string, _, _ *time.Time) ([]models.PracticeDay, error) {
	return nil, errors.New("not implemented")
}

func (b *trackBackend) DiscoverPracticeDays(_ context.Context, _ gateway.DiscoverRequest) (*gateway.PracticeDiscoveryResult, error) {
	return nil, errors.New("not implemented")
}

var _ gateway.Backend = (*trackBackend)(nil)

func TestCatalogRefresh(t *testing.T) {
	backend := &trackBackend{tracks: []models.Track{
		{ID: "t2", TrackName: "zulu raceway"},
		{ID: "t1", TrackName: "Alpha RC"},
	}}

	c := New(backend, time.Hour)
	if c.Loaded() {
		t.Error("catalog should not report loaded before first refresh")
	}

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if !c.Loaded() {
		t.Error("catalog should report loaded after refresh")
	}

	tracks := c.Tracks()
	if len(tracks) != 2 {
		t.Fatalf("expected 2 tracks, got %d", len(tracks))
	}
	if tracks[0].TrackName != "Alpha RC" {
		t.Errorf("tracks should sort case-insensitively by name, got %v", tracks)
	}

	got, ok := c.TrackByID("t2")
	if !ok || got.TrackName != "zulu raceway" {
		t.Errorf("TrackByID lookup failed: %+v", got)
	}
	if _, ok := c.TrackByID("missing"); ok {
		t.Error("unknown id should not resolve")
	}
}

func TestCatalogFailedRefreshKeepsPrevious(t *testing.T) {
	backend := &trackBackend{tracks: []models.Track{{ID: "t1", TrackName: "Alpha RC"}}}
	c := New(backend, time.Hour)

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	backend.mu.Lock()
	backend.err = errors.New("backend down")
	backend.mu.Unlock()

	if err := c.Refresh(context.Background()); err == nil {
		t.Fatal("expected refresh error")
	}

	if len(c.Tracks()) != 1 {
		t.Error("failed refresh must keep the previous catalog")
	}
	if !c.Loaded() {
		t.Error("loaded state must survive a failed refresh")
	}
}

func TestCatalogServeLifecycle(t *testing.T) {
	backend := &trackBackend{tracks: []models.Track{{ID: "t1", TrackName: "Alpha RC"}}}
	c := New(backend, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Serve(ctx) }()

	deadline := time.After(2 * time.Second)
	for {
		backend.mu.Lock()
		calls := backend.calls
		backend.mu.Unlock()
		if calls >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("periodic refresh did not run")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
}
