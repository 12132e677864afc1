// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package publish forwards bridge events to MQTT as JSON.
package publish

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/mmcloughlin/geohash"
	"github.com/rs/zerolog"

	"github.com/relabs-tech/location_bridge/internal/bridge"
	"github.com/relabs-tech/location_bridge/internal/gps"
	"github.com/relabs-tech/location_bridge/internal/logging"
)

// Status event names carried in Status.Event.
const (
	EventProviderEnabled  = "provider_enabled"
	EventProviderDisabled = "provider_disabled"
	EventPermissionDenied = "permission_denied"
	EventPermissionGrant  = "permission_granted"
)

// FixMessage is the payload published on the fix topic.
type FixMessage struct {
	gps.Fix
	Geohash string `json:"geohash"`
}

// Status is the payload published on the status topic.
type Status struct {
	Event    string `json:"event"`
	Provider string `json:"provider,omitempty"`
	Handle   uint64 `json:"handle"`
	Time     string `json:"time"` // RFC3339, wall clock of the bridge host
}

// Publisher is the subset of mqtt.Client used here.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Options configures MQTT.
type Options struct {
	FixTopic         string
	StatusTopic      string
	Timeout          time.Duration // per publish; zero waits forever
	GeohashPrecision uint          // characters, 0 disables
}

// MQTT implements bridge.Native by publishing every event. Publishing runs on
// the host delivery goroutine, so a slow broker slows delivery down.
type MQTT struct {
	client Publisher
	opts   Options
	log    zerolog.Logger
	now    func() time.Time
}

// NewMQTT returns a consumer publishing through client.
func NewMQTT(client Publisher, opts Options) *MQTT {
	return &MQTT{
		client: client,
		opts:   opts,
		log:    logging.WithComponent("publish"),
		now:    time.Now,
	}
}

func (m *MQTT) OnLocationUpdate(_ bridge.Handle, latitude, longitude, accuracy, timestampSeconds float64) {
	msg := FixMessage{Fix: gps.Fix{
		Latitude:  latitude,
		Longitude: longitude,
		Accuracy:  accuracy,
		Timestamp: timestampSeconds,
	}}
	if m.opts.GeohashPrecision > 0 {
		msg.Geohash = geohash.EncodeWithPrecision(latitude, longitude, m.opts.GeohashPrecision)
	}
	if err := m.publish(m.opts.FixTopic, false, msg); err != nil {
		m.log.Warn().Err(err).Msg("gps fix publish")
		return
	}
	m.log.Debug().Float64("lat", latitude).Float64("lon", longitude).Float64("accuracy", accuracy).Msg("published gps fix")
}

func (m *MQTT) OnPermissionDenied(h bridge.Handle) {
	m.status(h, EventPermissionDenied, "")
}

func (m *MQTT) OnPermissionGranted(h bridge.Handle) {
	m.status(h, EventPermissionGrant, "")
}

func (m *MQTT) OnProviderEnabled(h bridge.Handle) {
	m.status(h, EventProviderEnabled, gps.ProviderGPS)
}

func (m *MQTT) OnProviderDisabled(h bridge.Handle) {
	m.status(h, EventProviderDisabled, gps.ProviderGPS)
}

func (m *MQTT) status(h bridge.Handle, event, provider string) {
	st := Status{
		Event:    event,
		Provider: provider,
		Handle:   uint64(h),
		Time:     m.now().UTC().Format(time.RFC3339),
	}
	// retained so late subscribers learn the current state
	if err := m.publish(m.opts.StatusTopic, true, st); err != nil {
		m.log.Warn().Err(err).Str("event", event).Msg("gps status publish")
		return
	}
	m.log.Info().Str("event", event).Msg("published gps status")
}

func (m *MQTT) publish(topic string, retained bool, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", topic, err)
	}
	token := m.client.Publish(topic, 0, retained, payload)
	if m.opts.Timeout > 0 {
		if !token.WaitTimeout(m.opts.Timeout) {
			return fmt.Errorf("publish %s: timed out after %s", topic, m.opts.Timeout)
		}
	} else {
		token.Wait()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}
