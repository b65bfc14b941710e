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

// AggregateStats computes summary statistics for a device's samples from
// startMillis onward, matching the track engine's semantics: average
// speed over samples with speed > 0, peak over all. All pointer fields
// are nil when no samples fall in the window.
func (db *DB) AggregateStats(ctx context.Context, deviceID string, startMillis int64) (models.TrackStats, error) {
	start := time.Now()

	var stats models.TrackStats
	var minTS, maxTS sql.NullInt64
	var avgSpeed, maxSpeed sql.NullFloat64

	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        MIN(ts),
		        MAX(ts),
		        AVG(CASE WHEN speed > 0 THEN speed END),
		        MAX(speed)
		 FROM positions
		 WHERE device_id = ? AND ts >= ?`,
		deviceID, startMillis,
	).Scan(&stats.TotalPoints, &minTS, &maxTS, &avgSpeed, &maxSpeed)
	if err != nil {
		metrics.RecordQueryError("select", "positions")
		return models.TrackStats{}, fmt.Errorf("failed to query aggregate stats: %w", err)
	}

	if stats.TotalPoints > 0 {
		stats.StartTime = &minTS.Int64
		stats.EndTime = &maxTS.Int64

		// AVG over an all-zero-speed window is NULL; report 0 so the
		// "samples exist but none moving" case stays distinct from
		// "no samples".
		avg := 0.0
		if avgSpeed.Valid {
			avg = avgSpeed.Float64
		}
		stats.AvgSpeed = &avg

		peak := 0.0
		if maxSpeed.Valid {
			peak = maxSpeed.Float64
		}
		stats.MaxSpeed = &peak
	}

	metrics.RecordQueryDuration("select", "positions", time.Since(start))
	return stats, nil
}
