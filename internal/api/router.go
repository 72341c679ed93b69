// Pitwall - RC Race Event Discovery and Import
// Copyright 2026 Pitwall contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pitwall-app/pitwall

// Package api provides HTTP routing for the Pitwall service using chi.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pitwall-app/pitwall/internal/config"
	"github.com/pitwall-app/pitwall/internal/logging"
)

// Router wires the handlers into the HTTP surface.
type Router struct {
	handlers *Handlers
	ws       *WSHandler
	cfg      *config.ServerConfig
}

// NewRouter creates the router.
func NewRouter(handlers *Handlers, ws *WSHandler, cfg *config.ServerConfig) *Router {
	return &Router{handlers: handlers, ws: ws, cfg: cfg}
}

// Setup builds the chi handler tree.
func (rt *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(httpMetrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   rt.cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/api/v1/health", rt.handlers.HandleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httprate.LimitByIP(rt.cfg.RateLimitReqs, rt.cfg.RateLimitWindow))

		r.Get("/tracks", rt.handlers.HandleListTracks)
		r.Get("/favourites", rt.handlers.HandleGetFavourites)
		r.Put("/favourites", rt.handlers.HandleSaveFavourites)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", rt.handlers.HandleCreateSession)
			r.Get("/{id}", rt.handlers.HandleGetView)
			r.Delete("/{id}", rt.handlers.HandleCloseSession)
			r.Post("/{id}/search", rt.handlers.HandleSearch)
			r.Post("/{id}/refresh", rt.handlers.HandleRefresh)
			r.Post("/{id}/page", rt.handlers.HandleSetPage)
			r.Post("/{id}/imports", rt.handlers.HandleStartImport)
		})
	})

	r.Get("/ws", rt.ws.HandleWS)

	return r
}

// requestID attaches a correlation id to the request context and echoes it
// in the X-Request-ID header.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = logging.GenerateCorrelationID()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := logging.ContextWithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
