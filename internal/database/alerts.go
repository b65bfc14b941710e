// Waymark - GPS Tracking and Live Telemetry
// Copyright 2026 Waymark contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/waymark-gps/waymark

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/waymark-gps/waymark/internal/metrics"
	"github.com/waymark-gps/waymark/internal/models"
)

// InsertAlert appends an alert event and returns its assigned ID.
// Alert kinds outside the known set are stored verbatim.
func (db *DB) InsertAlert(ctx context.Context, a *models.AlertEvent) (int64, error) {
	start := time.Now()

	var id int64
	err := db.conn.QueryRowContext(ctx,
		`INSERT INTO alerts (device_id, alert_type, distance, latitude, longitude, ts)
		 VALUES (?, ?, ?, ?, ?, ?) RETURNING id`,
		a.DeviceID, string(a.Kind), a.Distance, a.Latitude, a.Longitude, a.Timestamp,
	).Scan(&id)
	if err != nil {
		metrics.RecordQueryError("insert", "alerts")
		return 0, fmt.Errorf("failed to insert alert: %w", err)
	}

	metrics.RecordQueryDuration("insert", "alerts", time.Since(start))
	a.ID = id
	return id, nil
}

// AlertsInRange returns a device's alerts from startMillis onward,
// newest first.
func (db *DB) AlertsInRange(ctx context.Context, deviceID string, startMillis int64) ([]models.AlertEvent, error) {
	start := time.Now()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, device_id, alert_type, distance, latitude, longitude, ts, created_at
		 FROM alerts
		 WHERE device_id = ? AND ts >= ?
		 ORDER BY ts DESC`,
		deviceID, startMillis,
	)
	if err != nil {
		metrics.RecordQueryError("select", "alerts")
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	alerts := make([]models.AlertEvent, 0)
	for rows.Next() {
		var a models.AlertEvent
		var kind string
		if err := rows.Scan(&a.ID, &a.DeviceID, &kind, &a.Distance, &a.Latitude, &a.Longitude, &a.Timestamp, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan alert row: %w", err)
		}
		a.Kind = models.AlertKind(kind)
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read alerts: %w", err)
	}

	metrics.RecordQueryDuration("select", "alerts", time.Since(start))
	return alerts, nil
}
