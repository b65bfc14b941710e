// Waymark - GPS Tracking and Live Telemetry
// Copyright 2026 Waymark contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/waymark-gps/waymark

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/waymark-gps/waymark/internal/metrics"
	"github.com/waymark-gps/waymark/internal/models"
)

// UpsertDeviceLastSeen records that a device reported at the given time,
// creating its registry row on first contact. Display name and active
// flag are preserved for existing rows. Last-write-wins on concurrent
// upserts for the same device is acceptable: there is no
// read-modify-write dependency here.
func (db *DB) UpsertDeviceLastSeen(ctx context.Context, deviceID string, seen time.Time) error {
	start := time.Now()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO devices (device_id, last_seen)
		 VALUES (?, ?)
		 ON CONFLICT (device_id) DO UPDATE SET last_seen = excluded.last_seen`,
		deviceID, seen,
	)
	if err != nil {
		metrics.RecordQueryError("upsert", "devices")
		return fmt.Errorf("failed to upsert device %s: %w", deviceID, err)
	}

	metrics.RecordQueryDuration("upsert", "devices", time.Since(start))
	return nil
}

// Device returns a single device record. Returns ErrNotFound when the
// device is unknown.
func (db *DB) Device(ctx context.Context, deviceID string) (*models.Device, error) {
	var d models.Device
	var name sql.NullString
	var lastSeen sql.NullTime

	err := db.conn.QueryRowContext(ctx,
		`SELECT device_id, device_name, is_active, last_seen, created_at
		 FROM devices WHERE device_id = ?`,
		deviceID,
	).Scan(&d.DeviceID, &name, &d.Active, &lastSeen, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		metrics.RecordQueryError("select", "devices")
		return nil, fmt.Errorf("failed to query device: %w", err)
	}

	d.Name = name.String
	if lastSeen.Valid {
		d.LastSeen = lastSeen.Time
	}
	return &d, nil
}

// DevicesWithLatestPosition returns every registered device joined with
// the fields of its latest position sample, newest registrations first.
// Devices that have not reported a position yet appear with nil
// position fields.
func (db *DB) DevicesWithLatestPosition(ctx context.Context) ([]models.DeviceSnapshot, error) {
	start := time.Now()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT d.device_id, d.device_name, d.is_active, d.last_seen, d.created_at,
		        l.latitude, l.longitude, l.ts
		 FROM devices d
		 LEFT JOIN (
		     SELECT device_id, latitude, longitude, ts,
		            row_number() OVER (PARTITION BY device_id ORDER BY ts DESC) AS rn
		     FROM positions
		 ) l ON l.device_id = d.device_id AND l.rn = 1
		 ORDER BY d.created_at DESC`,
	)
	if err != nil {
		metrics.RecordQueryError("select", "devices")
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer func() { _ = rows.Close() }()

	snapshots := make([]models.DeviceSnapshot, 0)
	for rows.Next() {
		var s models.DeviceSnapshot
		var name sql.NullString
		var lastSeen sql.NullTime
		var lat, lon sql.NullFloat64
		var ts sql.NullInt64

		if err := rows.Scan(&s.DeviceID, &name, &s.Active, &lastSeen, &s.CreatedAt, &lat, &lon, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan device row: %w", err)
		}

		s.Name = name.String
		if lastSeen.Valid {
			s.LastSeen = lastSeen.Time
		}
		if lat.Valid && lon.Valid {
			s.Latitude = &lat.Float64
			s.Longitude = &lon.Float64
		}
		if ts.Valid {
			s.LastLocationTime = &ts.Int64
		}
		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read devices: %w", err)
	}

	metrics.RecordQueryDuration("select", "devices", time.Since(start))
	return snapshots, nil
}
