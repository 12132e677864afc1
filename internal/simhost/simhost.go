// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package simhost is a host location service that synthesizes fixes, for
// running the bridge without a receiver attached.
package simhost

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/relabs-tech/location_bridge/internal/bridge"
	"github.com/relabs-tech/location_bridge/internal/gps"
)

// Options configures the synthetic track.
type Options struct {
	CenterLat float64
	CenterLon float64
	RadiusM   float64       // radius of the circular track, meters
	Period    time.Duration // time for one lap
	Interval  time.Duration // time between fixes
	Accuracy  float64       // reported accuracy, meters
}

// DefaultOptions circles the Munich Marienplatz once a minute.
func DefaultOptions() Options {
	return Options{
		CenterLat: 48.137154,
		CenterLon: 11.576124,
		RadiusM:   50,
		Period:    time.Minute,
		Interval:  time.Second,
		Accuracy:  4,
	}
}

// Service implements bridge.LocationService. Events are delivered on a
// goroutine owned by the service, never on the registering goroutine.
type Service struct {
	opts  Options
	start time.Time

	mu       sync.Mutex
	denied   bool
	listener bridge.Listener
	events   chan func(bridge.Listener)
	quit     chan struct{}
	done     chan struct{}
}

// New returns an idle Service.
func New(opts Options) *Service {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.Period <= 0 {
		opts.Period = time.Minute
	}
	done := make(chan struct{})
	close(done)
	return &Service{opts: opts, start: time.Now(), done: done}
}

// SetDenied makes later registrations fail with bridge.ErrAuthorizationDenied.
func (s *Service) SetDenied(denied bool) {
	s.mu.Lock()
	s.denied = denied
	s.mu.Unlock()
}

// SetProviderEnabled injects a GPS provider transition. A sibling "network"
// provider transition is emitted first, as real hosts report every provider.
func (s *Service) SetProviderEnabled(enabled bool) {
	s.inject(func(l bridge.Listener) {
		if enabled {
			l.OnProviderEnabled("network")
			l.OnProviderEnabled(gps.ProviderGPS)
		} else {
			l.OnProviderDisabled("network")
			l.OnProviderDisabled(gps.ProviderGPS)
		}
	})
}

// Flush reports a batch completion for requestCode.
func (s *Service) Flush(requestCode int) {
	s.inject(func(l bridge.Listener) { l.OnBatchFlushed(requestCode) })
}

func (s *Service) inject(ev func(bridge.Listener)) {
	s.mu.Lock()
	events := s.events
	s.mu.Unlock()
	if events == nil {
		return
	}
	select {
	case events <- ev:
	default:
	}
}

// RequestLocationUpdates starts the synthetic track for l.
func (s *Service) RequestLocationUpdates(provider string, _ time.Duration, _ float64, l bridge.Listener) error {
	if provider != gps.ProviderGPS {
		return fmt.Errorf("simhost: unsupported provider %q", provider)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.denied {
		return fmt.Errorf("simhost: %w", bridge.ErrAuthorizationDenied)
	}
	if s.listener != nil {
		return fmt.Errorf("simhost: listener already registered")
	}

	events := make(chan func(bridge.Listener), 16)
	quit := make(chan struct{})
	done := make(chan struct{})
	s.listener, s.events, s.quit, s.done = l, events, quit, done

	go s.run(l, events, quit, done)
	return nil
}

// RemoveUpdates stops the track for l.
func (s *Service) RemoveUpdates(l bridge.Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil || s.listener != l {
		return
	}
	close(s.quit)
	s.listener, s.events = nil, nil
}

// Done is closed when the delivery goroutine of the latest registration exits.
func (s *Service) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *Service) run(l bridge.Listener, events <-chan func(bridge.Listener), quit <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	l.OnProviderEnabled(gps.ProviderGPS)
	for {
		select {
		case <-quit:
			return
		case ev := <-events:
			ev(l)
		case <-ticker.C:
			l.OnLocationChanged(s.fixAt(time.Since(s.start)))
		}
	}
}

// fixAt returns the position on the circular track after elapsed.
func (s *Service) fixAt(elapsed time.Duration) bridge.Location {
	const metersPerDegLat = 111_320.0
	angle := 2 * math.Pi * elapsed.Seconds() / s.opts.Period.Seconds()
	dLat := s.opts.RadiusM * math.Sin(angle) / metersPerDegLat
	dLon := s.opts.RadiusM * math.Cos(angle) / (metersPerDegLat * math.Cos(s.opts.CenterLat*math.Pi/180))
	return bridge.Location{
		Latitude:             s.opts.CenterLat + dLat,
		Longitude:            s.opts.CenterLon + dLon,
		Accuracy:             s.opts.Accuracy,
		ElapsedRealtimeNanos: elapsed.Nanoseconds(),
	}
}
