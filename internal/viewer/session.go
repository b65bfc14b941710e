// Waymark - GPS Tracking and Live Telemetry
// Copyright 2026 Waymark contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/waymark-gps/waymark

// Package viewer maintains the state of one track viewer: which device
// it is following, the trailing window of samples for that device, and
// the analytics derived from the window.
//
// A viewer follows at most one device at a time. Selecting a device
// replaces the window wholesale; a history response that arrives after
// the viewer has moved on is discarded rather than merged.
package viewer

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/waymark-gps/waymark/internal/logging"
	"github.com/waymark-gps/waymark/internal/models"
	"github.com/waymark-gps/waymark/internal/track"
)

// HistoryReader loads a device's trailing sample window from the store.
type HistoryReader interface {
	PositionsInRange(ctx context.Context, deviceID string, startMillis int64) ([]models.Position, error)
}

// Snapshot is a point-in-time copy of the session's derived state.
type Snapshot struct {
	DeviceID string
	Window   []models.Position
	Stats    models.TrackStats
	Distance float64
}

// Session tracks one viewer's selected device and its sample window.
// Safe for concurrent use: live appends and device switches may arrive
// from different goroutines.
type Session struct {
	history HistoryReader
	now     func() time.Time

	mu         sync.Mutex
	deviceID   string
	generation uint64 // bumped on every selection; stale loads check it
	window     []models.Position
	stats      models.TrackStats
	distance   float64
}

// NewSession creates a session with no device selected.
func NewSession(history HistoryReader) *Session {
	return &Session{
		history: history,
		now:     time.Now,
	}
}

// SelectDevice switches the session to a device and loads its trailing
// window of the given duration. The previous window is kept when the
// load fails, and the load result is discarded when another selection
// supersedes it while the query is in flight.
func (s *Session) SelectDevice(ctx context.Context, deviceID string, window time.Duration) error {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.deviceID = deviceID
	s.mu.Unlock()

	return s.load(ctx, deviceID, window, gen)
}

// Refresh reloads the current device's window. No-op when no device is
// selected.
func (s *Session) Refresh(ctx context.Context, window time.Duration) error {
	s.mu.Lock()
	deviceID := s.deviceID
	gen := s.generation
	s.mu.Unlock()

	if deviceID == "" {
		return nil
	}
	return s.load(ctx, deviceID, window, gen)
}

func (s *Session) load(ctx context.Context, deviceID string, window time.Duration, gen uint64) error {
	startMillis := s.now().Add(-window).UnixMilli()
	samples, err := s.history.PositionsInRange(ctx, deviceID, startMillis)
	if err != nil {
		return fmt.Errorf("failed to load track window for %s: %w", deviceID, err)
	}

	// Defensive re-sort: the window must be chronological even if
	// samples were stored out of arrival order.
	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].Timestamp < samples[j].Timestamp
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		// A newer selection superseded this load.
		logging.Debug().
			Str("device_id", deviceID).
			Msg("discarding stale track window")
		return nil
	}
	s.window = samples
	s.recomputeLocked()
	return nil
}

// AppendLive folds a live sample into the window. Samples for other
// devices are ignored; analytics are recomputed over the whole window.
func (s *Session) AppendLive(p models.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.deviceID == "" || p.DeviceID != s.deviceID {
		return
	}
	s.window = append(s.window, p)
	s.recomputeLocked()
}

// Clear drops the selection and window.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.deviceID = ""
	s.window = nil
	s.stats = models.TrackStats{}
	s.distance = 0
}

// DeviceID returns the currently selected device, or "".
func (s *Session) DeviceID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deviceID
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	window := make([]models.Position, len(s.window))
	copy(window, s.window)
	return Snapshot{
		DeviceID: s.deviceID,
		Window:   window,
		Stats:    s.stats,
		Distance: s.distance,
	}
}

// recomputeLocked rebuilds stats and distance from the full window.
// Caller must hold s.mu.
func (s *Session) recomputeLocked() {
	s.stats = track.Stats(s.window)
	s.distance = track.Distance(s.window)
}
