// Waymark - GPS Tracking and Live Telemetry
// Copyright 2026 Waymark contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/waymark-gps/waymark

// Package ingest accepts position and alert reports from devices,
// validates them, commits them to the store and fans them out on the
// live bus.
//
// The store insert is the commit point: the device registry is touched
// and the event published only after the insert succeeds, so a live
// subscriber never sees an event that is absent from history.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/waymark-gps/waymark/internal/config"
	"github.com/waymark-gps/waymark/internal/logging"
	"github.com/waymark-gps/waymark/internal/metrics"
	"github.com/waymark-gps/waymark/internal/models"
	"github.com/waymark-gps/waymark/internal/validation"
)

// ErrFutureTimestamp is returned when a report's timestamp lies beyond
// the configured skew bound. It is a client error, not a server one.
var ErrFutureTimestamp = errors.New("timestamp too far in the future")

// Store is the durable-write surface the service needs.
type Store interface {
	InsertPosition(ctx context.Context, p *models.Position) (int64, error)
	InsertAlert(ctx context.Context, a *models.AlertEvent) (int64, error)
	UpsertDeviceLastSeen(ctx context.Context, deviceID string, seen time.Time) error
}

// Publisher fans accepted events out to live subscribers. Publish
// calls must not block.
type Publisher interface {
	PublishPosition(p *models.Position)
	PublishAlert(a *models.AlertEvent)
}

// PositionReport is a device-submitted position sample. Coordinate
// fields are pointers so that zero values survive the
// present-or-missing distinction.
type PositionReport struct {
	DeviceID  string   `json:"device_id" validate:"required"`
	Latitude  *float64 `json:"latitude" validate:"required,latitude"`
	Longitude *float64 `json:"longitude" validate:"required,longitude"`
	Speed     *float64 `json:"speed" validate:"omitempty,gte=0"`
	Course    *float64 `json:"course" validate:"omitempty,gte=0,lt=360"`
	Timestamp int64    `json:"timestamp"`
}

// AlertReport is a device-submitted alert event.
type AlertReport struct {
	DeviceID  string   `json:"device_id" validate:"required"`
	AlertType string   `json:"alert_type" validate:"required"`
	Distance  *float64 `json:"distance" validate:"omitempty,gte=0"`
	Latitude  *float64 `json:"latitude" validate:"omitempty,latitude"`
	Longitude *float64 `json:"longitude" validate:"omitempty,longitude"`
	Timestamp int64    `json:"timestamp"`
}

// Service validates and commits incoming reports.
type Service struct {
	store     Store
	publisher Publisher
	cfg       *config.IngestConfig
	now       func() time.Time
}

// NewService creates an ingestion service.
func NewService(store Store, publisher Publisher, cfg *config.IngestConfig) *Service {
	return &Service{
		store:     store,
		publisher: publisher,
		cfg:       cfg,
		now:       time.Now,
	}
}

// SubmitPosition validates and commits one position report. On success
// the stored sample (with its assigned ID) has been published to live
// subscribers and the device registry reflects the report time.
func (s *Service) SubmitPosition(ctx context.Context, report *PositionReport) (*models.Position, error) {
	if err := s.validateReport("position", report, report.Timestamp); err != nil {
		return nil, err
	}

	now := s.now()
	p := &models.Position{
		DeviceID:  report.DeviceID,
		Latitude:  *report.Latitude,
		Longitude: *report.Longitude,
		Timestamp: report.Timestamp,
		CreatedAt: now,
	}
	if report.Speed != nil {
		p.Speed = *report.Speed
	}
	if report.Course != nil {
		p.Course = *report.Course
	}
	if p.Timestamp <= 0 {
		p.Timestamp = now.UnixMilli()
	}

	if _, err := s.store.InsertPosition(ctx, p); err != nil {
		metrics.RecordIngest("position", "failed")
		return nil, fmt.Errorf("failed to store position: %w", err)
	}

	// Registry upkeep is best-effort: the sample is already durable.
	if err := s.store.UpsertDeviceLastSeen(ctx, p.DeviceID, now); err != nil {
		logging.Warn().Err(err).Str("device_id", p.DeviceID).Msg("failed to update device registry")
	}

	s.publisher.PublishPosition(p)
	metrics.RecordIngest("position", "accepted")

	logging.Debug().
		Str("device_id", p.DeviceID).
		Int64("position_id", p.ID).
		Msg("position accepted")
	return p, nil
}

// SubmitAlert validates and commits one alert report. Alerts do not
// touch the device registry. Unknown alert types are stored and
// published verbatim.
func (s *Service) SubmitAlert(ctx context.Context, report *AlertReport) (*models.AlertEvent, error) {
	if err := s.validateReport("alert", report, report.Timestamp); err != nil {
		return nil, err
	}

	now := s.now()
	a := &models.AlertEvent{
		DeviceID:  report.DeviceID,
		Kind:      models.AlertKind(report.AlertType),
		Timestamp: report.Timestamp,
		CreatedAt: now,
	}
	if report.Distance != nil {
		a.Distance = *report.Distance
	}
	if report.Latitude != nil {
		a.Latitude = *report.Latitude
	}
	if report.Longitude != nil {
		a.Longitude = *report.Longitude
	}
	if a.Timestamp <= 0 {
		a.Timestamp = now.UnixMilli()
	}

	if !a.Kind.Known() {
		logging.Debug().
			Str("device_id", a.DeviceID).
			Str("alert_type", string(a.Kind)).
			Msg("unknown alert type stored verbatim")
	}

	if _, err := s.store.InsertAlert(ctx, a); err != nil {
		metrics.RecordIngest("alert", "failed")
		return nil, fmt.Errorf("failed to store alert: %w", err)
	}

	s.publisher.PublishAlert(a)
	metrics.RecordIngest("alert", "accepted")

	logging.Debug().
		Str("device_id", a.DeviceID).
		Str("alert_type", string(a.Kind)).
		Int64("alert_id", a.ID).
		Msg("alert accepted")
	return a, nil
}

// validateReport applies struct validation plus the timestamp skew
// bound. Validation failures are returned as
// *validation.RequestValidationError so the API layer can map them to
// a 400 response.
func (s *Service) validateReport(reportType string, report interface{}, timestamp int64) error {
	if err := validation.ValidateStruct(report); err != nil {
		metrics.RecordIngest(reportType, "rejected")
		return err
	}
	if s.cfg.MaxTimestampSkew > 0 && timestamp > 0 {
		limit := s.now().Add(s.cfg.MaxTimestampSkew).UnixMilli()
		if timestamp > limit {
			metrics.RecordIngest(reportType, "rejected")
			return fmt.Errorf("timestamp %d: %w", timestamp, ErrFutureTimestamp)
		}
	}
	return nil
}
