// Waymark - GPS Tracking and Live Telemetry
// Copyright 2026 Waymark contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/waymark-gps/waymark

package models

// AlertKind classifies an alert event. The known kinds are a closed set;
// any other non-empty string reported by a device is carried through
// verbatim so downstream consumers can render it generically instead of
// dropping it.
type AlertKind string

// Known alert kinds.
const (
	AlertBoundaryBreach AlertKind = "boundary_breach"
	AlertGPSLost        AlertKind = "gps_lost"
	AlertDeviceOffline  AlertKind = "device_offline"
)

// alertLabels maps known kinds to display labels.
var alertLabels = map[AlertKind]string{
	AlertBoundaryBreach: "Boundary breach",
	AlertGPSLost:        "GPS signal lost",
	AlertDeviceOffline:  "Device disconnected",
}

// Known reports whether the kind is one of the closed set of known kinds.
func (k AlertKind) Known() bool {
	_, ok := alertLabels[k]
	return ok
}

// Label returns a human-readable label for the kind. Unknown kinds are
// returned verbatim rather than mapped to an empty string.
func (k AlertKind) Label() string {
	if label, ok := alertLabels[k]; ok {
		return label
	}
	return string(k)
}

func (k AlertKind) String() string {
	return string(k)
}
