// Waymark - GPS Tracking and Live Telemetry
// Copyright 2026 Waymark contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/waymark-gps/waymark

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/waymark-gps/waymark/internal/config"
	"github.com/waymark-gps/waymark/internal/middleware"
)

// Router wires the handlers and middleware into a chi mux.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
}

// NewRouter creates a Router from the application config.
func NewRouter(handler *Handler, cfg *config.Config) *Router {
	mwConfig := DefaultChiMiddlewareConfig()
	mwConfig.CORSAllowedOrigins = cfg.Security.CORSOrigins
	mwConfig.RateLimitRequests = cfg.Security.RateLimitReqs
	mwConfig.RateLimitWindow = cfg.Security.RateLimitWindow
	mwConfig.RateLimitDisabled = cfg.Security.RateLimitDisabled

	return &Router{
		handler:       handler,
		chiMiddleware: NewChiMiddleware(mwConfig),
	}
}

// Setup builds the route tree.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to all routes in order.
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS()) // global so OPTIONS preflight is handled

	// Report ingestion: permissive rate limit, trackers post frequently.
	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(router.chiMiddleware.RateLimitIngest())
			r.Use(middleware.PrometheusMetrics)
			r.Post("/locations", router.handler.SubmitPosition)
			r.Post("/alerts", router.handler.SubmitAlert)
		})

		// Read API.
		r.Group(func(r chi.Router) {
			r.Use(router.chiMiddleware.RateLimit())
			r.Use(middleware.PrometheusMetrics)
			r.Get("/devices", router.handler.Devices)
			r.Route("/devices/{deviceID}", func(r chi.Router) {
				r.Get("/position", router.handler.LatestPosition)
				r.Get("/track", router.handler.Track)
				r.Get("/alerts", router.handler.Alerts)
				r.Get("/stats", router.handler.Stats)
			})
		})

		// Live channel: no rate limit, one long-lived connection.
		r.Get("/ws", router.handler.WebSocket)

		// Health: unlimited, monitoring probes are frequent.
		r.Get("/health", router.handler.Health)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
