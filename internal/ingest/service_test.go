// Waymark - GPS Tracking and Live Telemetry
// Copyright 2026 Waymark contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/waymark-gps/waymark

package ingest

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/waymark-gps/waymark/internal/config"
	"github.com/waymark-gps/waymark/internal/logging"
	"github.com/waymark-gps/waymark/internal/models"
	"github.com/waymark-gps/waymark/internal/validation"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{
		Level:  "info",
		Format: "console",
		Output: io.Discard,
	})
}

type fakeStore struct {
	positions []models.Position
	alerts    []models.AlertEvent
	upserts   []string

	insertPositionErr error
	insertAlertErr    error
	upsertErr         error
}

func (s *fakeStore) InsertPosition(_ context.Context, p *models.Position) (int64, error) {
	if s.insertPositionErr != nil {
		return 0, s.insertPositionErr
	}
	p.ID = int64(len(s.positions) + 1)
	s.positions = append(s.positions, *p)
	return p.ID, nil
}

func (s *fakeStore) InsertAlert(_ context.Context, a *models.AlertEvent) (int64, error) {
	if s.insertAlertErr != nil {
		return 0, s.insertAlertErr
	}
	a.ID = int64(len(s.alerts) + 1)
	s.alerts = append(s.alerts, *a)
	return a.ID, nil
}

func (s *fakeStore) UpsertDeviceLastSeen(_ context.Context, deviceID string, _ time.Time) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.upserts = append(s.upserts, deviceID)
	return nil
}

type fakePublisher struct {
	positions []*models.Position
	alerts    []*models.AlertEvent
}

func (p *fakePublisher) PublishPosition(pos *models.Position) {
	p.positions = append(p.positions, pos)
}

func (p *fakePublisher) PublishAlert(a *models.AlertEvent) {
	p.alerts = append(p.alerts, a)
}

func newTestService(store *fakeStore, pub *fakePublisher) *Service {
	return NewService(store, pub, &config.IngestConfig{})
}

func ptr(f float64) *float64 { return &f }

func TestSubmitPosition(t *testing.T) {
	t.Run("accepted report is stored then published exactly once", func(t *testing.T) {
		store := &fakeStore{}
		pub := &fakePublisher{}
		svc := newTestService(store, pub)

		report := &PositionReport{
			DeviceID:  "tracker-1",
			Latitude:  ptr(48.8566),
			Longitude: ptr(2.3522),
			Speed:     ptr(12.5),
			Timestamp: 1700000000000,
		}
		p, err := svc.SubmitPosition(context.Background(), report)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.ID != 1 {
			t.Errorf("expected assigned ID 1, got %d", p.ID)
		}
		if len(store.positions) != 1 {
			t.Fatalf("expected 1 stored position, got %d", len(store.positions))
		}
		if len(pub.positions) != 1 {
			t.Fatalf("expected exactly 1 publish, got %d", len(pub.positions))
		}
		if pub.positions[0].ID != 1 {
			t.Error("published sample should carry the assigned ID")
		}
		if len(store.upserts) != 1 || store.upserts[0] != "tracker-1" {
			t.Errorf("expected registry upsert for tracker-1, got %v", store.upserts)
		}
	})

	t.Run("zero coordinates are valid", func(t *testing.T) {
		store := &fakeStore{}
		pub := &fakePublisher{}
		svc := newTestService(store, pub)

		_, err := svc.SubmitPosition(context.Background(), &PositionReport{
			DeviceID:  "null-island",
			Latitude:  ptr(0),
			Longitude: ptr(0),
		})
		if err != nil {
			t.Fatalf("zero coordinates rejected: %v", err)
		}
	})

	t.Run("missing timestamp defaults to now", func(t *testing.T) {
		store := &fakeStore{}
		pub := &fakePublisher{}
		svc := newTestService(store, pub)
		fixed := time.UnixMilli(1700000000000)
		svc.now = func() time.Time { return fixed }

		p, err := svc.SubmitPosition(context.Background(), &PositionReport{
			DeviceID:  "tracker-1",
			Latitude:  ptr(1),
			Longitude: ptr(2),
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.Timestamp != fixed.UnixMilli() {
			t.Errorf("expected defaulted timestamp %d, got %d", fixed.UnixMilli(), p.Timestamp)
		}
	})

	t.Run("rejected report is neither stored nor published", func(t *testing.T) {
		tests := []struct {
			name   string
			report *PositionReport
		}{
			{"missing device_id", &PositionReport{Latitude: ptr(1), Longitude: ptr(2)}},
			{"missing latitude", &PositionReport{DeviceID: "d", Longitude: ptr(2)}},
			{"missing longitude", &PositionReport{DeviceID: "d", Latitude: ptr(1)}},
			{"latitude out of range", &PositionReport{DeviceID: "d", Latitude: ptr(91), Longitude: ptr(2)}},
			{"longitude out of range", &PositionReport{DeviceID: "d", Latitude: ptr(1), Longitude: ptr(181)}},
			{"negative speed", &PositionReport{DeviceID: "d", Latitude: ptr(1), Longitude: ptr(2), Speed: ptr(-1)}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				store := &fakeStore{}
				pub := &fakePublisher{}
				svc := newTestService(store, pub)

				_, err := svc.SubmitPosition(context.Background(), tt.report)
				if err == nil {
					t.Fatal("expected validation error")
				}
				var verr *validation.RequestValidationError
				if !errors.As(err, &verr) {
					t.Fatalf("expected RequestValidationError, got %T", err)
				}
				if len(store.positions) != 0 {
					t.Error("rejected report must not be stored")
				}
				if len(pub.positions) != 0 {
					t.Error("rejected report must not be published")
				}
			})
		}
	})

	t.Run("store failure means no publish and no upsert", func(t *testing.T) {
		store := &fakeStore{insertPositionErr: errors.New("disk full")}
		pub := &fakePublisher{}
		svc := newTestService(store, pub)

		_, err := svc.SubmitPosition(context.Background(), &PositionReport{
			DeviceID:  "tracker-1",
			Latitude:  ptr(1),
			Longitude: ptr(2),
		})
		if err == nil {
			t.Fatal("expected error")
		}
		if len(pub.positions) != 0 {
			t.Error("failed write must not publish")
		}
		if len(store.upserts) != 0 {
			t.Error("failed write must not touch the registry")
		}
	})

	t.Run("registry failure does not fail the submit", func(t *testing.T) {
		store := &fakeStore{upsertErr: errors.New("registry locked")}
		pub := &fakePublisher{}
		svc := newTestService(store, pub)

		_, err := svc.SubmitPosition(context.Background(), &PositionReport{
			DeviceID:  "tracker-1",
			Latitude:  ptr(1),
			Longitude: ptr(2),
		})
		if err != nil {
			t.Fatalf("registry failure should not fail submit: %v", err)
		}
		if len(pub.positions) != 1 {
			t.Error("sample should still be published")
		}
	})

	t.Run("future timestamp beyond skew is rejected", func(t *testing.T) {
		store := &fakeStore{}
		pub := &fakePublisher{}
		svc := NewService(store, pub, &config.IngestConfig{MaxTimestampSkew: time.Minute})
		fixed := time.UnixMilli(1700000000000)
		svc.now = func() time.Time { return fixed }

		_, err := svc.SubmitPosition(context.Background(), &PositionReport{
			DeviceID:  "tracker-1",
			Latitude:  ptr(1),
			Longitude: ptr(2),
			Timestamp: fixed.Add(2 * time.Minute).UnixMilli(),
		})
		if !errors.Is(err, ErrFutureTimestamp) {
			t.Fatalf("expected ErrFutureTimestamp, got %v", err)
		}
		if len(store.positions) != 0 || len(pub.positions) != 0 {
			t.Error("skewed report must not be stored or published")
		}
	})
}

func TestSubmitAlert(t *testing.T) {
	t.Run("accepted alert is stored then published without registry upsert", func(t *testing.T) {
		store := &fakeStore{}
		pub := &fakePublisher{}
		svc := newTestService(store, pub)

		a, err := svc.SubmitAlert(context.Background(), &AlertReport{
			DeviceID:  "tracker-1",
			AlertType: "boundary_breach",
			Distance:  ptr(120.5),
			Latitude:  ptr(48.85),
			Longitude: ptr(2.35),
			Timestamp: 1700000000000,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if a.Kind != models.AlertBoundaryBreach {
			t.Errorf("expected boundary_breach kind, got %s", a.Kind)
		}
		if len(store.alerts) != 1 || len(pub.alerts) != 1 {
			t.Fatalf("expected 1 stored and 1 published alert, got %d/%d", len(store.alerts), len(pub.alerts))
		}
		if len(store.upserts) != 0 {
			t.Error("alerts must not touch the device registry")
		}
	})

	t.Run("unknown alert type is stored verbatim", func(t *testing.T) {
		store := &fakeStore{}
		pub := &fakePublisher{}
		svc := newTestService(store, pub)

		a, err := svc.SubmitAlert(context.Background(), &AlertReport{
			DeviceID:  "tracker-1",
			AlertType: "low_battery",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(a.Kind) != "low_battery" {
			t.Errorf("expected verbatim kind, got %s", a.Kind)
		}
		if a.Kind.Known() {
			t.Error("low_battery should not be a known kind")
		}
	})

	t.Run("missing alert_type is rejected", func(t *testing.T) {
		store := &fakeStore{}
		pub := &fakePublisher{}
		svc := newTestService(store, pub)

		_, err := svc.SubmitAlert(context.Background(), &AlertReport{DeviceID: "tracker-1"})
		if err == nil {
			t.Fatal("expected validation error")
		}
		if len(store.alerts) != 0 || len(pub.alerts) != 0 {
			t.Error("rejected alert must not be stored or published")
		}
	})

	t.Run("store failure means no publish", func(t *testing.T) {
		store := &fakeStore{insertAlertErr: errors.New("disk full")}
		pub := &fakePublisher{}
		svc := newTestService(store, pub)

		_, err := svc.SubmitAlert(context.Background(), &AlertReport{
			DeviceID:  "tracker-1",
			AlertType: "gps_lost",
		})
		if err == nil {
			t.Fatal("expected error")
		}
		if len(pub.alerts) != 0 {
			t.Error("failed write must not publish")
		}
	})
}
