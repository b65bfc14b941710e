// Waymark - GPS Tracking and Live Telemetry
// Copyright 2026 Waymark contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/waymark-gps/waymark

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/waymark-gps/waymark/internal/metrics"
	"github.com/waymark-gps/waymark/internal/models"
)

// InsertPosition appends a position sample and returns its assigned ID.
// The caller is responsible for validation and for defaulting absent
// fields; the store writes exactly what it is given.
func (db *DB) InsertPosition(ctx context.Context, p *models.Position) (int64, error) {
	start := time.Now()

	var id int64
	err := db.conn.QueryRowContext(ctx,
		`INSERT INTO positions (device_id, latitude, longitude, speed, course, ts)
		 VALUES (?, ?, ?, ?, ?, ?) RETURNING id`,
		p.DeviceID, p.Latitude, p.Longitude, p.Speed, p.Course, p.Timestamp,
	).Scan(&id)
	if err != nil {
		metrics.RecordQueryError("insert", "positions")
		return 0, fmt.Errorf("failed to insert position: %w", err)
	}

	metrics.RecordQueryDuration("insert", "positions", time.Since(start))
	p.ID = id
	return id, nil
}

// LatestPosition returns the most recent sample for a device, by sample
// timestamp. Returns ErrNotFound when the device has no samples.
func (db *DB) LatestPosition(ctx context.Context, deviceID string) (*models.Position, error) {
	start := time.Now()

	var p models.Position
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, device_id, latitude, longitude, speed, course, ts, created_at
		 FROM positions
		 WHERE device_id = ?
		 ORDER BY ts DESC
		 LIMIT 1`,
		deviceID,
	).Scan(&p.ID, &p.DeviceID, &p.Latitude, &p.Longitude, &p.Speed, &p.Course, &p.Timestamp, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		metrics.RecordQueryError("select", "positions")
		return nil, fmt.Errorf("failed to query latest position: %w", err)
	}

	metrics.RecordQueryDuration("select", "positions", time.Since(start))
	return &p, nil
}

// PositionsInRange returns a device's samples from startMillis onward,
// ordered by sample timestamp ascending. Samples inserted out of
// chronological order are still read back in chronological order.
func (db *DB) PositionsInRange(ctx context.Context, deviceID string, startMillis int64) ([]models.Position, error) {
	start := time.Now()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, device_id, latitude, longitude, speed, course, ts, created_at
		 FROM positions
		 WHERE device_id = ? AND ts >= ?
		 ORDER BY ts ASC`,
		deviceID, startMillis,
	)
	if err != nil {
		metrics.RecordQueryError("select", "positions")
		return nil, fmt.Errorf("failed to query track window: %w", err)
	}
	defer func() { _ = rows.Close() }()

	samples := make([]models.Position, 0)
	for rows.Next() {
		var p models.Position
		if err := rows.Scan(&p.ID, &p.DeviceID, &p.Latitude, &p.Longitude, &p.Speed, &p.Course, &p.Timestamp, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan position row: %w", err)
		}
		samples = append(samples, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read track window: %w", err)
	}

	metrics.RecordQueryDuration("select", "positions", time.Since(start))
	return samples, nil
}
