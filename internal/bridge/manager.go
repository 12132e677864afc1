// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package bridge

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/relabs-tech/location_bridge/internal/gps"
)

// SubscriptionManager owns the single host location subscription.
//
// All mutation of the subscription slot happens under mu. Event delivery goes
// through a per-subscription listener and never takes mu, so a host that
// delivers synchronously during registration cannot deadlock the manager.
type SubscriptionManager struct {
	service  LocationService
	executor Executor
	dispatch *Dispatcher
	log      zerolog.Logger

	mu  sync.Mutex
	sub *subscription // pending or registered; nil when idle

	// regMu serializes host registrations so a registration that finishes
	// after Stop is removed before the next one is requested.
	regMu sync.Mutex
}

type subscription struct {
	id         string
	listener   *listener
	registered bool
}

// NewSubscriptionManager wires a manager to the host service, the executor the
// host requires for registration, and the dispatcher that receives events.
func NewSubscriptionManager(service LocationService, executor Executor, d *Dispatcher, log zerolog.Logger) *SubscriptionManager {
	return &SubscriptionManager{
		service:  service,
		executor: executor,
		dispatch: d,
		log:      log,
	}
}

// Start requests continuous updates from the GPS-class provider with no time or
// distance filter. It is safe from any goroutine and returns before the
// registration is confirmed. Start is a no-op while a subscription is pending
// or active.
func (m *SubscriptionManager) Start() {
	m.mu.Lock()
	if existing := m.sub; existing != nil {
		m.mu.Unlock()
		m.log.Debug().Str("subscription", existing.id).Msg("start ignored, subscription already exists")
		return
	}
	sub := &subscription{id: uuid.NewString()}
	sub.listener = &listener{dispatch: m.dispatch, log: m.log.With().Str("subscription", sub.id).Logger()}
	m.sub = sub
	m.mu.Unlock()

	m.log.Info().Str("subscription", sub.id).Msg("location updates requested")
	if !m.executor.Post(func() { m.register(sub) }) {
		m.mu.Lock()
		if m.sub == sub {
			m.sub = nil
		}
		m.mu.Unlock()
		RegistrationFailures.WithLabelValues("rejected").Inc()
		m.log.Error().Str("subscription", sub.id).Msg("host executor rejected registration")
	}
}

// register runs on the host executor. The host call is made without holding
// mu so a consumer may call Stop from inside a synchronously delivered event.
func (m *SubscriptionManager) register(sub *subscription) {
	if err := m.requestUpdates(sub); err != nil {
		m.registrationFailed(sub, err)
	}
}

func (m *SubscriptionManager) requestUpdates(sub *subscription) error {
	m.regMu.Lock()
	defer m.regMu.Unlock()

	m.mu.Lock()
	pending := m.sub == sub
	m.mu.Unlock()
	if !pending {
		// stopped before the executor got to us
		return nil
	}

	err := m.service.RequestLocationUpdates(gps.ProviderGPS, 0, 0, sub.listener)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		if m.sub == sub {
			m.sub = nil
		}
		sub.listener.detach()
		return err
	}
	if m.sub != sub {
		// Stop ran while the host was registering.
		m.service.RemoveUpdates(sub.listener)
		m.log.Info().Str("subscription", sub.id).Msg("registration completed after stop, removed")
		return nil
	}
	sub.registered = true
	SubscriptionActive.Set(1)
	m.log.Info().Str("subscription", sub.id).Msg("location updates registered")
	return nil
}

// registrationFailed converts a registration error. Authorization denial is
// reported once across the boundary; anything else is the host's problem.
func (m *SubscriptionManager) registrationFailed(sub *subscription, err error) {
	if errors.Is(err, ErrAuthorizationDenied) {
		RegistrationFailures.WithLabelValues("denied").Inc()
		m.log.Warn().Err(err).Str("subscription", sub.id).Msg("location permission denied")
		m.dispatch.Permission(gps.PermissionDenied)
		return
	}
	RegistrationFailures.WithLabelValues("error").Inc()
	m.log.Error().Err(err).Str("subscription", sub.id).Msg("location registration failed")
}

// Stop deregisters the subscription, if any. Events already in flight on the
// host goroutine may still be forwarded; later deliveries are dropped.
func (m *SubscriptionManager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub := m.sub
	if sub == nil {
		return
	}
	m.sub = nil
	sub.listener.detach()
	if sub.registered {
		m.service.RemoveUpdates(sub.listener)
		SubscriptionActive.Set(0)
	}
	m.log.Info().Str("subscription", sub.id).Bool("registered", sub.registered).Msg("location updates stopped")
}

// Active reports whether a subscription is pending or registered.
func (m *SubscriptionManager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sub != nil
}

// listener adapts host callbacks to the dispatcher.
type listener struct {
	dispatch *Dispatcher
	log      zerolog.Logger
	detached atomic.Bool
}

func (l *listener) detach() { l.detached.Store(true) }

func (l *listener) live() bool {
	if l.detached.Load() {
		EventsDropped.WithLabelValues(dropAfterStop).Inc()
		return false
	}
	return true
}

func (l *listener) OnLocationChanged(loc Location) {
	if l.live() {
		l.dispatch.Location(loc)
	}
}

func (l *listener) OnProviderEnabled(provider string) {
	if l.live() {
		l.dispatch.Provider(provider, gps.ProviderEnabled)
	}
}

func (l *listener) OnProviderDisabled(provider string) {
	if l.live() {
		l.dispatch.Provider(provider, gps.ProviderDisabled)
	}
}

func (l *listener) OnBatchFlushed(requestCode int) {
	BatchFlushes.Inc()
	l.log.Info().Int("request_code", requestCode).Msg("batch flush complete")
}
