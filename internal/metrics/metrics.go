// Waymark - GPS Tracking and Live Telemetry
// Copyright 2026 Waymark contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/waymark-gps/waymark

// Package metrics provides Prometheus instrumentation for the tracking
// pipeline: store query performance, ingestion throughput, API latency
// and live-channel connection counts.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Store metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "waymark_db_query_duration_seconds",
			Help:    "Duration of store queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waymark_db_query_errors_total",
			Help: "Total number of store query errors",
		},
		[]string{"operation", "table"},
	)

	// Ingestion metrics
	ReportsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waymark_reports_ingested_total",
			Help: "Total number of ingested reports by type and outcome",
		},
		[]string{"type", "outcome"}, // type: position|alert, outcome: accepted|rejected|failed
	)

	// Live channel metrics
	LiveClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "waymark_live_clients",
			Help: "Current number of connected live-channel clients",
		},
	)

	LiveEventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waymark_live_events_published_total",
			Help: "Total number of events published to the fan-out bus",
		},
		[]string{"event"},
	)

	LiveEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "waymark_live_events_dropped_total",
			Help: "Total number of events dropped due to full client buffers",
		},
	)

	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waymark_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "waymark_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "waymark_api_active_requests",
			Help: "Current number of active API requests",
		},
	)
)

// RecordQueryDuration records a successful store query.
func RecordQueryDuration(operation, table string, d time.Duration) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(d.Seconds())
}

// RecordQueryError records a failed store query.
func RecordQueryError(operation, table string) {
	DBQueryErrors.WithLabelValues(operation, table).Inc()
}

// RecordIngest records the outcome of one submitted report.
func RecordIngest(reportType, outcome string) {
	ReportsIngested.WithLabelValues(reportType, outcome).Inc()
}

// RecordAPIRequest records one completed API request.
func RecordAPIRequest(method, endpoint, statusCode string, d time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(d.Seconds())
}

// TrackActiveRequest adjusts the active-request gauge.
func TrackActiveRequest(start bool) {
	if start {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}
