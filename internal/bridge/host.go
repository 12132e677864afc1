// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package bridge owns a single host location subscription and forwards its
// events, converted to the canonical gps vocabulary, to a native consumer.
//
// The package never starts goroutines. Registration runs on the host
// Executor, events arrive on whatever goroutine the host delivers them on,
// and each event is forwarded synchronously on that goroutine.
package bridge

import (
	"errors"
	"time"
)

// ErrAuthorizationDenied is returned by a LocationService when the process is
// not allowed to access location data. It is the only registration failure the
// bridge reports across the boundary.
var ErrAuthorizationDenied = errors.New("location authorization denied")

// Location is a raw sample as delivered by the host.
type Location struct {
	Latitude             float64
	Longitude            float64
	Accuracy             float64 // meters, non-negative
	ElapsedRealtimeNanos int64   // arbitrary monotonic epoch
}

// Listener receives host events. Implementations must tolerate being called on
// a goroutine they do not own.
type Listener interface {
	OnLocationChanged(loc Location)
	OnProviderEnabled(provider string)
	OnProviderDisabled(provider string)
	OnBatchFlushed(requestCode int)
}

// LocationService is the host location service.
type LocationService interface {
	// RequestLocationUpdates registers l for continuous updates from provider.
	// A zero minInterval and minDistance ask for every fix the host produces.
	RequestLocationUpdates(provider string, minInterval time.Duration, minDistance float64, l Listener) error
	// RemoveUpdates deregisters l. Removing an unknown listener is a no-op.
	RemoveUpdates(l Listener)
}

// Executor runs jobs on the context the host requires for service
// registration. Post must not block; it reports false if the job was rejected.
type Executor interface {
	Post(job func()) bool
}
