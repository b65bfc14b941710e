// Waymark - GPS Tracking and Live Telemetry
// Copyright 2026 Waymark contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/waymark-gps/waymark

// Package track derives movement analytics from an ordered sequence of
// position samples: great-circle distance, speed statistics and track
// duration. Inputs are expected to be sorted by sample timestamp
// ascending, which is how the store returns track windows.
package track

import (
	"fmt"
	"math"

	"github.com/waymark-gps/waymark/internal/models"
)

// EarthRadiusMeters is the mean Earth radius used for the spherical
// great-circle approximation.
const EarthRadiusMeters = 6371000.0

// Stats computes summary statistics over a track window.
//
// For an empty window all pointer fields of the result are nil: "no
// samples" is reported distinctly from "samples with speed 0". Average
// speed is the arithmetic mean over samples with speed > 0 (0 when none
// qualify); peak speed is the maximum over all samples.
func Stats(samples []models.Position) models.TrackStats {
	stats := models.TrackStats{TotalPoints: int64(len(samples))}
	if len(samples) == 0 {
		return stats
	}

	start := samples[0].Timestamp
	end := samples[len(samples)-1].Timestamp

	var movingSum float64
	var movingCount int
	var maxSpeed float64
	for _, s := range samples {
		if s.Speed > 0 {
			movingSum += s.Speed
			movingCount++
		}
		if s.Speed > maxSpeed {
			maxSpeed = s.Speed
		}
	}

	avgSpeed := 0.0
	if movingCount > 0 {
		avgSpeed = movingSum / float64(movingCount)
	}

	stats.StartTime = &start
	stats.EndTime = &end
	stats.AvgSpeed = &avgSpeed
	stats.MaxSpeed = &maxSpeed
	return stats
}

// Distance returns the total great-circle distance in meters along the
// ordered sequence, summing the pairwise haversine distance between each
// consecutive pair. Sequences of length 0 or 1 have distance 0.
func Distance(samples []models.Position) float64 {
	var total float64
	for i := 1; i < len(samples); i++ {
		prev, curr := samples[i-1], samples[i]
		total += Haversine(prev.Latitude, prev.Longitude, curr.Latitude, curr.Longitude)
	}
	return total
}

// Haversine returns the great-circle distance in meters between two
// points given in degrees, using the spherical-earth approximation.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)

	a := sinLat*sinLat + math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*sinLon*sinLon

	// Clamp against floating-point error so the sqrt arguments stay in
	// range for antipodal and near-identical points.
	if a < 0 {
		a = 0
	}
	if a > 1 {
		a = 1
	}

	return 2 * EarthRadiusMeters * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// DurationMinutes returns the elapsed time of the window in minutes,
// from first to last sample timestamp. 0 for windows with fewer than
// two samples.
func DurationMinutes(samples []models.Position) float64 {
	if len(samples) < 2 {
		return 0
	}
	first := samples[0].Timestamp
	last := samples[len(samples)-1].Timestamp
	return float64(last-first) / 1000 / 60
}

// FormatDuration renders a duration given in minutes for display:
// whole minutes below an hour, rounded hours below a day, rounded days
// otherwise. Rounding near unit boundaries is intentionally lossy; this
// is a presentation convenience, not a precision measurement.
func FormatDuration(minutes float64) string {
	switch {
	case minutes < 60:
		return pluralize(int(math.Round(minutes)), "minute")
	case minutes < 1440:
		return pluralize(int(math.Round(minutes/60)), "hour")
	default:
		return pluralize(int(math.Round(minutes/1440)), "day")
	}
}

func pluralize(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

func toRadians(degrees float64) float64 {
	return degrees * math.Pi / 180
}
