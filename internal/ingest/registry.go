// Pitwall - RC Race Event Discovery and Import
// Copyright 2026 Pitwall contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pitwall-app/pitwall

package ingest

import (
	"context"
	"strings"
	"sync"

	"github.com/pitwall-app/pitwall/internal/metrics"
)

// pollRegistry owns the cancellation handles of the live poll loops, keyed
// by session id plus event id. Each key has at most one live loop: Start
// replaces any existing handle before installing the new one, so two timers
// can never race on the same progress record.
//
// Start/Stop/StopAll are the only mutation surface.
type pollRegistry struct {
	mu      sync.Mutex
	handles map[string]*pollHandle
}

type pollHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func newPollRegistry() *pollRegistry {
	return &pollRegistry{handles: make(map[string]*pollHandle)}
}

func pollKey(sessionID, eventID string) string {
	return sessionID + "/" + eventID
}

// Start cancels any existing loop under key and registers a new one. The
// returned context governs the loop; the returned done func must be called
// when the loop exits.
func (r *pollRegistry) Start(parent context.Context, key string) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	h := &pollHandle{cancel: cancel, done: make(chan struct{})}

	r.mu.Lock()
	old := r.handles[key]
	r.handles[key] = h
	r.mu.Unlock()

	if old != nil {
		old.cancel()
		<-old.done
	}

	metrics.ActivePollers.Inc()

	var once sync.Once
	doneFn := func() {
		once.Do(func() {
			close(h.done)
			metrics.ActivePollers.Dec()
			r.mu.Lock()
			if r.handles[key] == h {
				delete(r.handles, key)
			}
			r.mu.Unlock()
		})
	}
	return ctx, doneFn
}

// Rekey moves a live handle to a new key, used during identity promotion so
// the loop keeps running under the promoted event id.
func (r *pollRegistry) Rekey(oldKey, newKey string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[oldKey]
	if !ok {
		return
	}
	delete(r.handles, oldKey)
	if prev, exists := r.handles[newKey]; exists {
		prev.cancel()
	}
	r.handles[newKey] = h
}

// Stop cancels the loop under key, if any. It does not wait for the loop to
// exit: Stop is called from inside the loops themselves on terminal states,
// and waiting there would deadlock.
func (r *pollRegistry) Stop(key string) {
	r.mu.Lock()
	h, ok := r.handles[key]
	if ok {
		delete(r.handles, key)
	}
	r.mu.Unlock()
	if ok {
		h.cancel()
	}
}

// StopSession cancels every loop belonging to a session.
func (r *pollRegistry) StopSession(sessionID string) {
	prefix := sessionID + "/"

	r.mu.Lock()
	var stopped []*pollHandle
	for key, h := range r.handles {
		if strings.HasPrefix(key, prefix) {
			delete(r.handles, key)
			stopped = append(stopped, h)
		}
	}
	r.mu.Unlock()

	for _, h := range stopped {
		h.cancel()
		<-h.done
	}
}

// StopAll cancels every live loop.
func (r *pollRegistry) StopAll() {
	r.mu.Lock()
	var stopped []*pollHandle
	for key, h := range r.handles {
		delete(r.handles, key)
		stopped = append(stopped, h)
	}
	r.mu.Unlock()

	for _, h := range stopped {
		h.cancel()
		<-h.done
	}
}
