// Pitwall - RC Race Event Discovery and Import
// Copyright 2026 Pitwall contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pitwall-app/pitwall

// Package catalog maintains the in-memory track catalog, refreshed
// periodically from the backend. The catalog is the source of truth for
// track existence: a persisted track selection that no longer resolves is
// cleared rather than searched.
package catalog

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pitwall-app/pitwall/internal/gateway"
	"github.com/pitwall-app/pitwall/internal/logging"
	"github.com/pitwall-app/pitwall/internal/models"
)

// Catalog caches the track list and serves lookups by id.
//
// Thread Safety: all methods are safe for concurrent use.
type Catalog struct {
	backend gateway.Backend

	mu      sync.RWMutex
	tracks  []models.Track
	byID    map[string]models.Track
	loaded  bool
	refresh time.Duration

	runMu    sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New creates a track catalog backed by the given client.
func New(backend gateway.Backend, refreshInterval time.Duration) *Catalog {
	return &Catalog{
		backend: backend,
		byID:    make(map[string]models.Track),
		refresh: refreshInterval,
	}
}

// Refresh reloads the track list from the backend. A failed refresh keeps
// the previous catalog so transient backend trouble does not blank the UI.
func (c *Catalog) Refresh(ctx context.Context) error {
	tracks, err := c.backend.ListTracks(ctx)
	if err != nil {
		return err
	}

	sort.Slice(tracks, func(i, j int) bool {
		return strings.ToLower(tracks[i].TrackName) < strings.ToLower(tracks[j].TrackName)
	})

	byID := make(map[string]models.Track, len(tracks))
	for _, t := range tracks {
		byID[t.ID] = t
	}

	c.mu.Lock()
	c.tracks = tracks
	c.byID = byID
	c.loaded = true
	c.mu.Unlock()

	logging.Debug().Int("tracks", len(tracks)).Msg("Track catalog refreshed")
	return nil
}

// Tracks returns the cached track list sorted by name.
func (c *Catalog) Tracks() []models.Track {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.Track, len(c.tracks))
	copy(out, c.tracks)
	return out
}

// TrackByID resolves a track id against the cached catalog.
func (c *Catalog) TrackByID(id string) (models.Track, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.byID[id]
	return t, ok
}

// Loaded reports whether at least one refresh has succeeded. Before the
// first successful load, a missing track id is indeterminate and persisted
// selections are kept rather than cleared.
func (c *Catalog) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// Start launches the periodic refresh loop.
func (c *Catalog) Start(ctx context.Context) {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.running {
		return
	}
	c.running = true
	c.stopChan = make(chan struct{})

	c.wg.Add(1)
	go c.run(ctx)
}

// Stop terminates the refresh loop and waits for it to exit.
func (c *Catalog) Stop() {
	c.runMu.Lock()
	if !c.running {
		c.runMu.Unlock()
		return
	}
	c.running = false
	close(c.stopChan)
	c.runMu.Unlock()

	c.wg.Wait()
}

// Serve implements suture.Service.
func (c *Catalog) Serve(ctx context.Context) error {
	c.Start(ctx)
	<-ctx.Done()
	c.Stop()
	return ctx.Err()
}

func (c *Catalog) run(ctx context.Context) {
	defer c.wg.Done()

	if err := c.Refresh(ctx); err != nil {
		logging.Warn().Err(err).Msg("Initial track catalog load failed")
	}

	ticker := time.NewTicker(c.refresh)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				logging.Warn().Err(err).Msg("Track catalog refresh failed")
			}
		case <-c.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}
