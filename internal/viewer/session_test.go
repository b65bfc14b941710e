// Waymark - GPS Tracking and Live Telemetry
// Copyright 2026 Waymark contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/waymark-gps/waymark

package viewer

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/waymark-gps/waymark/internal/logging"
	"github.com/waymark-gps/waymark/internal/models"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{
		Level:  "info",
		Format: "console",
		Output: io.Discard,
	})
}

type fakeHistory struct {
	windows map[string][]models.Position
	err     error

	// onQuery runs inside PositionsInRange, letting tests interleave a
	// competing selection while a load is in flight.
	onQuery func(deviceID string)
}

func (f *fakeHistory) PositionsInRange(_ context.Context, deviceID string, _ int64) ([]models.Position, error) {
	if f.onQuery != nil {
		f.onQuery(deviceID)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.windows[deviceID], nil
}

func sample(deviceID string, ts int64, speed float64) models.Position {
	return models.Position{
		DeviceID:  deviceID,
		Latitude:  48.85,
		Longitude: 2.35,
		Speed:     speed,
		Timestamp: ts,
	}
}

func TestSessionSelectDevice(t *testing.T) {
	history := &fakeHistory{windows: map[string][]models.Position{
		"dev-1": {
			sample("dev-1", 1000, 0),
			sample("dev-1", 2000, 10),
			sample("dev-1", 3000, 20),
		},
	}}
	s := NewSession(history)

	if err := s.SelectDevice(context.Background(), "dev-1", 24*time.Hour); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := s.Snapshot()
	if snap.DeviceID != "dev-1" {
		t.Errorf("expected dev-1 selected, got %q", snap.DeviceID)
	}
	if len(snap.Window) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(snap.Window))
	}
	if *snap.Stats.AvgSpeed != 15 {
		t.Errorf("expected avg 15, got %f", *snap.Stats.AvgSpeed)
	}
	if *snap.Stats.MaxSpeed != 20 {
		t.Errorf("expected peak 20, got %f", *snap.Stats.MaxSpeed)
	}
}

func TestSessionSortsUnorderedHistory(t *testing.T) {
	history := &fakeHistory{windows: map[string][]models.Position{
		"dev-1": {
			sample("dev-1", 3000, 0),
			sample("dev-1", 1000, 0),
			sample("dev-1", 2000, 0),
		},
	}}
	s := NewSession(history)

	if err := s.SelectDevice(context.Background(), "dev-1", time.Hour); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := s.Snapshot()
	for i := 1; i < len(snap.Window); i++ {
		if snap.Window[i-1].Timestamp > snap.Window[i].Timestamp {
			t.Fatal("window not sorted by sample timestamp")
		}
	}
}

func TestSessionAppendLive(t *testing.T) {
	history := &fakeHistory{windows: map[string][]models.Position{
		"dev-1": {sample("dev-1", 1000, 10)},
	}}
	s := NewSession(history)
	if err := s.SelectDevice(context.Background(), "dev-1", time.Hour); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	t.Run("matching device extends window and recomputes", func(t *testing.T) {
		s.AppendLive(sample("dev-1", 2000, 30))

		snap := s.Snapshot()
		if len(snap.Window) != 2 {
			t.Fatalf("expected 2 samples, got %d", len(snap.Window))
		}
		if *snap.Stats.AvgSpeed != 20 {
			t.Errorf("expected recomputed avg 20, got %f", *snap.Stats.AvgSpeed)
		}
	})

	t.Run("foreign device is ignored", func(t *testing.T) {
		s.AppendLive(sample("dev-2", 3000, 99))

		snap := s.Snapshot()
		if len(snap.Window) != 2 {
			t.Errorf("foreign sample must not join the window, got %d samples", len(snap.Window))
		}
	})
}

func TestSessionSwitchReplacesWindow(t *testing.T) {
	history := &fakeHistory{windows: map[string][]models.Position{
		"dev-1": {sample("dev-1", 1000, 10), sample("dev-1", 2000, 10)},
		"dev-2": {sample("dev-2", 5000, 50)},
	}}
	s := NewSession(history)

	if err := s.SelectDevice(context.Background(), "dev-1", time.Hour); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.SelectDevice(context.Background(), "dev-2", time.Hour); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := s.Snapshot()
	if len(snap.Window) != 1 {
		t.Fatalf("expected wholesale replacement, got %d samples", len(snap.Window))
	}
	if snap.Window[0].DeviceID != "dev-2" {
		t.Error("window still holds previous device's samples")
	}
	if *snap.Stats.MaxSpeed != 50 {
		t.Errorf("stats not recomputed for new device, peak %f", *snap.Stats.MaxSpeed)
	}
}

func TestSessionFailedLoadKeepsPriorData(t *testing.T) {
	history := &fakeHistory{windows: map[string][]models.Position{
		"dev-1": {sample("dev-1", 1000, 10)},
	}}
	s := NewSession(history)
	if err := s.SelectDevice(context.Background(), "dev-1", time.Hour); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	history.err = errors.New("store unavailable")
	if err := s.Refresh(context.Background(), time.Hour); err == nil {
		t.Fatal("expected refresh error")
	}

	snap := s.Snapshot()
	if len(snap.Window) != 1 {
		t.Errorf("failed refresh must keep prior window, got %d samples", len(snap.Window))
	}
}

func TestSessionStaleLoadDiscarded(t *testing.T) {
	history := &fakeHistory{windows: map[string][]models.Position{
		"dev-1": {sample("dev-1", 1000, 10)},
		"dev-2": {sample("dev-2", 5000, 50)},
	}}
	s := NewSession(history)

	// While dev-1's history is loading, the viewer switches to dev-2.
	// The dev-1 response must be discarded, not applied.
	first := true
	history.onQuery = func(deviceID string) {
		if deviceID == "dev-1" && first {
			first = false
			history.onQuery = nil
			if err := s.SelectDevice(context.Background(), "dev-2", time.Hour); err != nil {
				t.Errorf("nested selection failed: %v", err)
			}
		}
	}

	if err := s.SelectDevice(context.Background(), "dev-1", time.Hour); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := s.Snapshot()
	if snap.DeviceID != "dev-2" {
		t.Fatalf("expected dev-2 selected, got %q", snap.DeviceID)
	}
	if len(snap.Window) != 1 || snap.Window[0].DeviceID != "dev-2" {
		t.Error("stale dev-1 window overwrote the dev-2 selection")
	}
}

func TestSessionClear(t *testing.T) {
	history := &fakeHistory{windows: map[string][]models.Position{
		"dev-1": {sample("dev-1", 1000, 10)},
	}}
	s := NewSession(history)
	if err := s.SelectDevice(context.Background(), "dev-1", time.Hour); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s.Clear()

	snap := s.Snapshot()
	if snap.DeviceID != "" || len(snap.Window) != 0 || snap.Distance != 0 {
		t.Error("expected empty session after Clear")
	}
	if snap.Stats.TotalPoints != 0 || snap.Stats.AvgSpeed != nil {
		t.Error("expected zeroed stats after Clear")
	}
}

func TestSessionRefreshWithoutSelection(t *testing.T) {
	s := NewSession(&fakeHistory{})
	if err := s.Refresh(context.Background(), time.Hour); err != nil {
		t.Errorf("refresh without selection should be a no-op, got %v", err)
	}
}
