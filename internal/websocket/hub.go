// Pitwall - RC Race Event Discovery and Import
// Copyright 2026 Pitwall contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pitwall-app/pitwall

// Package websocket pushes import progress to connected dashboards. Each
// client attaches to one search session; notifications published by the
// import orchestrator are routed only to that session's clients.
package websocket

import (
	"context"
	"sort"
	"sync"

	"github.com/pitwall-app/pitwall/internal/logging"
)

// Message types sent to clients.
const (
	MessageTypeImportProgress  = "import_progress"
	MessageTypeImportCompleted = "import_completed"
	MessageTypeImportFailed    = "import_failed"
	MessageTypeImportPromoted  = "import_promoted"
	MessageTypeDiscoveryMerged = "discovery_merged"
	MessageTypePing            = "ping"
	MessageTypePong            = "pong"
)

// Message is one WebSocket frame.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// routed pairs a message with the session it belongs to. An empty session id
// broadcasts to every client.
type routed struct {
	sessionID string
	message   Message
}

// Hub maintains the set of active clients and routes messages to them.
type Hub struct {
	clients    map[*Client]bool
	send       chan routed
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a hub.
func NewHub() *Hub {
	return &Hub{
		send:       make(chan routed, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// Send routes a message to the clients of one session. Non-blocking: when
// the hub's queue is full the message is dropped, since progress frames are
// superseded by the next poll anyway.
func (h *Hub) Send(sessionID string, msg Message) {
	select {
	case h.send <- routed{sessionID: sessionID, message: msg}:
	default:
		logging.Warn().Str("type", msg.Type).Msg("WebSocket queue full, dropping message")
	}
}

// GetClientCount returns the number of connected clients.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RunWithContext runs the hub until the context is cancelled, then closes
// every client. Lifecycle events are drained before messages so client
// state is consistent when a message is routed.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.addClient(client)
			continue
		case client := <-h.Unregister:
			h.removeClient(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.addClient(client)
		case client := <-h.Unregister:
			h.removeClient(client)
		case r := <-h.send:
			h.route(r)
		}
	}
}

// Serve implements suture.Service.
func (h *Hub) Serve(ctx context.Context) error {
	return h.RunWithContext(ctx)
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()
	logging.Info().Int("total_clients", total).Str("session_id", client.sessionID).Msg("WebSocket client connected")
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	total := len(h.clients)
	h.mu.Unlock()
	logging.Info().Int("total_clients", total).Msg("WebSocket client disconnected")
}

// route delivers a message to its session's clients in stable id order.
// A client with a full queue is dropped; it can reconnect and re-snapshot.
func (h *Hub) route(r routed) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		if r.sessionID == "" || client.sessionID == r.sessionID {
			clients = append(clients, client)
		}
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	var toRemove []*Client
	for _, client := range clients {
		select {
		case client.send <- r.message:
		default:
			toRemove = append(toRemove, client)
		}
	}
	for _, client := range toRemove {
		close(client.send)
		delete(h.clients, client)
	}
}

func (h *Hub) shutdown(ctx context.Context) {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})
	for _, client := range clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.mu.Unlock()

	reason := "context_canceled"
	if ctx.Err() == context.DeadlineExceeded {
		reason = "context_deadline"
	}
	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", reason).
		Int("clients_closed", len(clients)).
		Msg("WebSocket hub stopped")
}
