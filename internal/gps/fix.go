// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gps

// ProviderGPS is the host identifier of the GPS-class provider. Events for any
// other provider never cross the bridge.
const ProviderGPS = "gps"

// Fix represents a single location sample suitable for JSON and MQTT.
type Fix struct {
	Latitude  float64 `json:"lat"`       // decimal degrees
	Longitude float64 `json:"lon"`       // decimal degrees
	Accuracy  float64 `json:"accuracy"`  // horizontal, meters
	Timestamp float64 `json:"timestamp"` // seconds on the host monotonic clock
}

// NewFix builds a Fix from a host sample whose time is expressed in
// nanoseconds since an arbitrary monotonic epoch.
func NewFix(lat, lon, accuracy float64, elapsedNanos int64) Fix {
	return Fix{
		Latitude:  lat,
		Longitude: lon,
		Accuracy:  accuracy,
		Timestamp: SecondsFromElapsed(elapsedNanos),
	}
}

// SecondsFromElapsed converts monotonic nanoseconds to seconds.
// The result keeps ordering but has no wall-clock meaning.
func SecondsFromElapsed(ns int64) float64 {
	return float64(ns) / 1e9
}
