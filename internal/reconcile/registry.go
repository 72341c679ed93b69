// Pitwall - RC Race Event Discovery and Import
// Copyright 2026 Pitwall contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pitwall-app/pitwall

package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pitwall-app/pitwall/internal/apperr"
	"github.com/pitwall-app/pitwall/internal/config"
	"github.com/pitwall-app/pitwall/internal/logging"
	"github.com/pitwall-app/pitwall/internal/metrics"
)

// SessionEvicted is called when a session is removed, before its background
// work is cancelled. The import orchestrator registers itself here to stop
// the session's poll loops.
type SessionEvicted func(sessionID string)

// Registry owns the live search sessions and evicts them after idle TTL.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	idleTTL      time.Duration
	reapInterval time.Duration
	onEvict      SessionEvicted

	runMu    sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewRegistry creates a session registry with the configured idle policy.
func NewRegistry(cfg *config.SessionsConfig) *Registry {
	return &Registry{
		sessions:     make(map[string]*Session),
		idleTTL:      cfg.IdleTTL,
		reapInterval: cfg.ReapInterval,
	}
}

// OnEvict registers the eviction callback. Must be called before Start.
func (r *Registry) OnEvict(fn SessionEvicted) {
	r.onEvict = fn
}

// Create makes a new session with a generated id.
func (r *Registry) Create() *Session {
	s := newSession(uuid.NewString(), time.Now())

	r.mu.Lock()
	r.sessions[s.ID] = s
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
	r.mu.Unlock()

	logging.Debug().Str("session_id", s.ID).Msg("Session created")
	return s
}

// Get returns the session with the given id and refreshes its idle clock.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, apperr.ErrSessionNotFound
	}
	s.touch(time.Now())
	return s, nil
}

// Remove evicts one session, cancelling its background work.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
	r.mu.Unlock()

	if !ok {
		return
	}
	if r.onEvict != nil {
		r.onEvict(id)
	}
	s.Close()
	logging.Debug().Str("session_id", id).Msg("Session removed")
}

// reap evicts sessions idle past the TTL.
func (r *Registry) reap(now time.Time) {
	r.mu.RLock()
	var expired []string
	for id, s := range r.sessions {
		if now.Sub(s.idleSince()) > r.idleTTL {
			expired = append(expired, id)
		}
	}
	r.mu.RUnlock()

	for _, id := range expired {
		logging.Info().Str("session_id", id).Msg("Evicting idle session")
		r.Remove(id)
	}
}

// Start launches the reaper loop.
func (r *Registry) Start(ctx context.Context) {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	if r.running {
		return
	}
	r.running = true
	r.stopChan = make(chan struct{})

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.reapInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.reap(time.Now())
			case <-r.stopChan:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop terminates the reaper and closes all sessions.
func (r *Registry) Stop() {
	r.runMu.Lock()
	if !r.running {
		r.runMu.Unlock()
		return
	}
	r.running = false
	close(r.stopChan)
	r.runMu.Unlock()

	r.wg.Wait()

	r.mu.Lock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	for _, id := range ids {
		r.Remove(id)
	}
}

// Serve implements suture.Service.
func (r *Registry) Serve(ctx context.Context) error {
	r.Start(ctx)
	<-ctx.Done()
	r.Stop()
	return ctx.Err()
}
