// Waymark - GPS Tracking and Live Telemetry
// Copyright 2026 Waymark contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/waymark-gps/waymark

// Package models defines the core data types shared across Waymark:
// position samples, alert events, device records and derived statistics.
package models

import "time"

// Position is a single GPS fix reported by a tracked device.
// Positions are append-only: once stored they are never updated or deleted.
type Position struct {
	// ID is the auto-assigned sequence number, set at write time.
	ID int64 `json:"id"`

	// DeviceID identifies the reporting device. Never empty for stored samples.
	DeviceID string `json:"device_id"`

	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`

	// Speed in km/h as reported by the device. Defaults to 0.
	Speed float64 `json:"speed"`

	// Course is the heading in degrees. Defaults to 0.
	Course float64 `json:"course"`

	// Timestamp is the sample time in epoch milliseconds. Defaults to the
	// ingestion time when the device omits it.
	Timestamp int64 `json:"timestamp"`

	// CreatedAt is the ingestion time, set by the store.
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// AlertEvent is a discrete notable occurrence reported for a device.
type AlertEvent struct {
	ID       int64     `json:"id"`
	DeviceID string    `json:"device_id"`
	Kind     AlertKind `json:"alert_type"`

	// Distance in meters; meaning depends on the alert kind
	// (e.g. distance outside the allowed boundary). 0 when not reported.
	Distance  float64 `json:"distance"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`

	// Timestamp is the event time in epoch milliseconds.
	Timestamp int64     `json:"timestamp"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// Device is a known tracked device.
type Device struct {
	DeviceID string `json:"device_id"`

	// Name is an optional display name.
	Name string `json:"device_name,omitempty"`

	// Active defaults to true at creation. No code path deactivates a
	// device; the flag is stored and reported as-is.
	Active bool `json:"is_active"`

	LastSeen  time.Time `json:"last_seen,omitzero"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// DeviceSnapshot pairs a device record with the fields of its latest
// known position, for the device-list view.
type DeviceSnapshot struct {
	Device

	Latitude         *float64 `json:"latitude,omitempty"`
	Longitude        *float64 `json:"longitude,omitempty"`
	LastLocationTime *int64   `json:"last_location_time,omitempty"`
}

// TrackStats summarizes a device's position samples over a time window.
// All pointer fields are nil when the window contains no samples, to
// distinguish "no data" from "samples with speed 0".
type TrackStats struct {
	TotalPoints int64 `json:"total_points"`

	// StartTime and EndTime are the first and last sample timestamps in
	// epoch milliseconds.
	StartTime *int64 `json:"start_time"`
	EndTime   *int64 `json:"end_time"`

	// AvgSpeed is the arithmetic mean over samples with speed > 0.
	AvgSpeed *float64 `json:"avg_speed"`

	// MaxSpeed is the maximum over all sample speeds.
	MaxSpeed *float64 `json:"max_speed"`
}
