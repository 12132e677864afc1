// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package bridge

import (
	"github.com/rs/zerolog"

	"github.com/relabs-tech/location_bridge/internal/gps"
)

// Dispatcher converts host events to the canonical shape and invokes exactly
// one native entry point per accepted event, on the calling goroutine.
// It keeps no queue: a blocking consumer blocks host delivery.
type Dispatcher struct {
	native Native
	handle Handle
	log    zerolog.Logger
}

// NewDispatcher returns a Dispatcher forwarding to native under handle h.
func NewDispatcher(native Native, h Handle, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{native: native, handle: h, log: log}
}

// Location forwards a host sample as OnLocationUpdate.
func (d *Dispatcher) Location(loc Location) {
	fix := gps.NewFix(loc.Latitude, loc.Longitude, loc.Accuracy, loc.ElapsedRealtimeNanos)
	d.call(kindLocation, func() {
		d.native.OnLocationUpdate(d.handle, fix.Latitude, fix.Longitude, fix.Accuracy, fix.Timestamp)
	})
}

// Provider forwards a provider transition. Providers other than the GPS-class
// provider are dropped.
func (d *Dispatcher) Provider(provider string, state gps.ProviderState) {
	if provider != gps.ProviderGPS {
		EventsDropped.WithLabelValues(dropFilteredProvider).Inc()
		d.log.Debug().Str("provider", provider).Stringer("state", state).Msg("ignoring non-gps provider")
		return
	}
	switch state {
	case gps.ProviderEnabled:
		d.call(kindProviderEnabled, func() { d.native.OnProviderEnabled(d.handle) })
	case gps.ProviderDisabled:
		d.call(kindProviderDisabled, func() { d.native.OnProviderDisabled(d.handle) })
	}
}

// Permission forwards a permission outcome as a bare notification.
func (d *Dispatcher) Permission(outcome gps.PermissionOutcome) {
	switch outcome {
	case gps.PermissionDenied:
		d.call(kindPermissionDenied, func() { d.native.OnPermissionDenied(d.handle) })
	case gps.PermissionGranted:
		d.call(kindPermissionGrant, func() { d.native.OnPermissionGranted(d.handle) })
	}
}

// call invokes fn once. A panic in the consumer is logged and swallowed so the
// host delivery goroutine survives; the event is not retried.
func (d *Dispatcher) call(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			NativeFailures.WithLabelValues(kind).Inc()
			d.log.Error().Str("kind", kind).Interface("panic", r).Msg("native entry point failed")
		}
	}()
	fn()
	EventsForwarded.WithLabelValues(kind).Inc()
}
