// Pitwall - RC Race Event Discovery and Import
// Copyright 2026 Pitwall contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pitwall-app/pitwall

package api

import (
	"net/http"

	gorilla "github.com/gorilla/websocket"

	"github.com/pitwall-app/pitwall/internal/logging"
	"github.com/pitwall-app/pitwall/internal/reconcile"
	"github.com/pitwall-app/pitwall/internal/websocket"
)

// WSHandler upgrades dashboard connections and binds them to a session.
type WSHandler struct {
	hub      *websocket.Hub
	sessions *reconcile.Registry
	upgrader gorilla.Upgrader
}

// NewWSHandler creates the WebSocket upgrade handler. Origin checking is
// delegated to the CORS layer; same-host browsers and non-browser clients
// are both accepted here.
func NewWSHandler(hub *websocket.Hub, sessions *reconcile.Registry) *WSHandler {
	return &WSHandler{
		hub:      hub,
		sessions: sessions,
		upgrader: gorilla.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// HandleWS handles GET /ws?session_id={id}
//
// @Summary Attach to a session's live import feed
// @Description Upgrades to WebSocket; import progress, completion and failure frames follow
// @Tags sessions
// @Param session_id query string true "Session id"
// @Router /ws [get]
func (h *WSHandler) HandleWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if _, err := h.sessions.Get(sessionID); err != nil {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := websocket.NewClient(h.hub, conn, sessionID)
	h.hub.Register <- client
	client.Start()
}
