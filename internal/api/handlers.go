// Waymark - GPS Tracking and Live Telemetry
// Copyright 2026 Waymark contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/waymark-gps/waymark

// Package api provides the HTTP and WebSocket surface of Waymark:
// report submission, track and stats queries, the device list and the
// live-channel upgrade endpoint.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	gorillaws "github.com/gorilla/websocket"

	"github.com/waymark-gps/waymark/internal/config"
	"github.com/waymark-gps/waymark/internal/database"
	"github.com/waymark-gps/waymark/internal/ingest"
	"github.com/waymark-gps/waymark/internal/logging"
	"github.com/waymark-gps/waymark/internal/models"
	"github.com/waymark-gps/waymark/internal/validation"
	"github.com/waymark-gps/waymark/internal/websocket"
)

// Store is the read surface the handlers query.
type Store interface {
	LatestPosition(ctx context.Context, deviceID string) (*models.Position, error)
	PositionsInRange(ctx context.Context, deviceID string, startMillis int64) ([]models.Position, error)
	AlertsInRange(ctx context.Context, deviceID string, startMillis int64) ([]models.AlertEvent, error)
	DevicesWithLatestPosition(ctx context.Context) ([]models.DeviceSnapshot, error)
	AggregateStats(ctx context.Context, deviceID string, startMillis int64) (models.TrackStats, error)
	Ping(ctx context.Context) error
}

// Handler holds the dependencies for all HTTP handlers.
type Handler struct {
	store    Store
	ingest   *ingest.Service
	hub      *websocket.Hub
	cfg      *config.Config
	upgrader gorillaws.Upgrader
}

// NewHandler creates a Handler.
func NewHandler(store Store, ingestSvc *ingest.Service, hub *websocket.Hub, cfg *config.Config) *Handler {
	return &Handler{
		store:  store,
		ingest: ingestSvc,
		hub:    hub,
		cfg:    cfg,
		upgrader: gorillaws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.Security.CORSOrigins),
		},
	}
}

// originChecker builds the upgrade origin policy from the CORS origin
// list. A wildcard entry admits any origin.
func originChecker(origins []string) func(*http.Request) bool {
	allowed := make(map[string]struct{}, len(origins))
	wildcard := false
	for _, o := range origins {
		if o == "*" {
			wildcard = true
		}
		allowed[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		if wildcard {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // same-origin or non-browser client
		}
		_, ok := allowed[origin]
		return ok
	}
}

// SubmitPosition handles POST /api/v1/locations.
func (h *Handler) SubmitPosition(w http.ResponseWriter, r *http.Request) {
	var report ingest.PositionReport
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		respondError(w, http.StatusBadRequest, codeValidationError, "invalid JSON body", nil)
		return
	}

	position, err := h.ingest.SubmitPosition(r.Context(), &report)
	if err != nil {
		h.respondIngestError(w, err, "position")
		return
	}
	respondSuccess(w, http.StatusCreated, position, 0)
}

// SubmitAlert handles POST /api/v1/alerts.
func (h *Handler) SubmitAlert(w http.ResponseWriter, r *http.Request) {
	var report ingest.AlertReport
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		respondError(w, http.StatusBadRequest, codeValidationError, "invalid JSON body", nil)
		return
	}

	alert, err := h.ingest.SubmitAlert(r.Context(), &report)
	if err != nil {
		h.respondIngestError(w, err, "alert")
		return
	}
	respondSuccess(w, http.StatusCreated, alert, 0)
}

// respondIngestError maps ingestion failures onto status codes:
// validation problems are the client's fault, everything else is a
// store failure.
func (h *Handler) respondIngestError(w http.ResponseWriter, err error, reportType string) {
	var verr *validation.RequestValidationError
	if errors.As(err, &verr) {
		respondValidationError(w, verr)
		return
	}
	if errors.Is(err, ingest.ErrFutureTimestamp) {
		respondError(w, http.StatusBadRequest, codeValidationError, err.Error(), nil)
		return
	}
	logging.Error().Err(err).Str("report_type", reportType).Msg("ingest failed")
	respondError(w, http.StatusInternalServerError, codeDatabaseError, "failed to store report", nil)
}

// LatestPosition handles GET /api/v1/devices/{deviceID}/position.
func (h *Handler) LatestPosition(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	start := time.Now()
	position, err := h.store.LatestPosition(r.Context(), deviceID)
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, codeNotFound, "no position recorded for device", nil)
		return
	}
	if err != nil {
		logging.Error().Err(err).Str("device_id", sanitizeLogValue(deviceID)).Msg("latest position query failed")
		respondError(w, http.StatusInternalServerError, codeDatabaseError, "failed to query position", nil)
		return
	}
	respondSuccess(w, http.StatusOK, position, time.Since(start))
}

// TrackResponse is the payload of the track endpoint.
type TrackResponse struct {
	DeviceID  string            `json:"device_id"`
	Hours     int               `json:"hours"`
	Count     int               `json:"count"`
	Positions []models.Position `json:"positions"`
}

// Track handles GET /api/v1/devices/{deviceID}/track?hours=N.
// Samples are returned ascending by sample timestamp; the window is
// trailing from now and may be empty.
func (h *Handler) Track(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")
	hours := h.trackHours(r)

	start := time.Now()
	positions, err := h.store.PositionsInRange(r.Context(), deviceID, trailingWindowStart(hours))
	if err != nil {
		logging.Error().Err(err).Str("device_id", sanitizeLogValue(deviceID)).Msg("track query failed")
		respondError(w, http.StatusInternalServerError, codeDatabaseError, "failed to query track", nil)
		return
	}
	respondSuccess(w, http.StatusOK, &TrackResponse{
		DeviceID:  deviceID,
		Hours:     hours,
		Count:     len(positions),
		Positions: positions,
	}, time.Since(start))
}

// AlertsResponse is the payload of the alerts endpoint.
type AlertsResponse struct {
	DeviceID string              `json:"device_id"`
	Hours    int                 `json:"hours"`
	Count    int                 `json:"count"`
	Alerts   []models.AlertEvent `json:"alerts"`
}

// Alerts handles GET /api/v1/devices/{deviceID}/alerts?hours=N,
// newest first.
func (h *Handler) Alerts(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")
	hours := h.trackHours(r)

	start := time.Now()
	alerts, err := h.store.AlertsInRange(r.Context(), deviceID, trailingWindowStart(hours))
	if err != nil {
		logging.Error().Err(err).Str("device_id", sanitizeLogValue(deviceID)).Msg("alerts query failed")
		respondError(w, http.StatusInternalServerError, codeDatabaseError, "failed to query alerts", nil)
		return
	}
	respondSuccess(w, http.StatusOK, &AlertsResponse{
		DeviceID: deviceID,
		Hours:    hours,
		Count:    len(alerts),
		Alerts:   alerts,
	}, time.Since(start))
}

// Stats handles GET /api/v1/devices/{deviceID}/stats?hours=N.
// Numeric fields are null when the window is empty, distinguishing
// no-data from zero.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")
	hours := h.trackHours(r)

	start := time.Now()
	stats, err := h.store.AggregateStats(r.Context(), deviceID, trailingWindowStart(hours))
	if err != nil {
		logging.Error().Err(err).Str("device_id", sanitizeLogValue(deviceID)).Msg("stats query failed")
		respondError(w, http.StatusInternalServerError, codeDatabaseError, "failed to query stats", nil)
		return
	}
	respondSuccess(w, http.StatusOK, stats, time.Since(start))
}

// Devices handles GET /api/v1/devices: every registered device joined
// with its latest position fields.
func (h *Handler) Devices(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	devices, err := h.store.DevicesWithLatestPosition(r.Context())
	if err != nil {
		logging.Error().Err(err).Msg("devices query failed")
		respondError(w, http.StatusInternalServerError, codeDatabaseError, "failed to query devices", nil)
		return
	}
	respondSuccess(w, http.StatusOK, devices, time.Since(start))
}

// WebSocket handles GET /api/v1/ws: upgrades the connection and hands
// it to the live hub.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		logging.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := websocket.NewClient(h.hub, conn, &h.cfg.Live)
	h.hub.Register <- client
	client.Start()
}

// HealthResponse is the payload of the health endpoint.
type HealthResponse struct {
	Status      string `json:"status"`
	Database    string `json:"database"`
	LiveClients int    `json:"live_clients"`
}

// Health handles GET /api/v1/health: liveness plus a store ping.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := &HealthResponse{
		Status:      "ok",
		Database:    "ok",
		LiveClients: h.hub.ClientCount(),
	}
	status := http.StatusOK
	if err := h.store.Ping(ctx); err != nil {
		logging.Error().Err(err).Msg("health check database ping failed")
		resp.Status = "degraded"
		resp.Database = "unreachable"
		status = http.StatusServiceUnavailable
	}
	respondSuccess(w, status, resp, 0)
}

// trackHours resolves the hours query parameter against the configured
// default and cap.
func (h *Handler) trackHours(r *http.Request) int {
	hours := getIntParam(r, "hours", h.cfg.API.DefaultTrackHours)
	if hours < 1 {
		hours = h.cfg.API.DefaultTrackHours
	}
	if hours > h.cfg.API.MaxTrackHours {
		hours = h.cfg.API.MaxTrackHours
	}
	return hours
}

// trailingWindowStart converts a trailing-hours window to the epoch
// millisecond lower bound used by the store queries.
func trailingWindowStart(hours int) int64 {
	return time.Now().Add(-time.Duration(hours) * time.Hour).UnixMilli()
}
