// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/relabs-tech/location_bridge/internal/bridge"
	"github.com/relabs-tech/location_bridge/internal/config"
	"github.com/relabs-tech/location_bridge/internal/display"
	"github.com/relabs-tech/location_bridge/internal/logging"
	"github.com/relabs-tech/location_bridge/internal/nmeahost"
	"github.com/relabs-tech/location_bridge/internal/publish"
)

// RunGPSBridge bridges the NMEA receiver on GPS_SERIAL_PORT to MQTT (and the
// OLED when DISPLAY_ENABLED) until SIGINT or SIGTERM.
func RunGPSBridge() error {
	cfg := config.Get()
	if cfg == nil {
		return fmt.Errorf("config not initialized")
	}
	if err := cfg.RequireGPS(); err != nil {
		return err
	}
	logging.Configure(logging.Config{Level: cfg.LogLevel, Service: "gps-bridge"})
	log := logging.WithComponent("app")

	// ---- 1) Connect to MQTT broker ----
	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDBridge)
	if err != nil {
		return fmt.Errorf("mqtt connect %s: %w", cfg.MQTTBroker, err)
	}
	defer client.Disconnect(cfg.MQTTDisconnectQuiesceMS)
	log.Info().Str("broker", cfg.MQTTBroker).Msg("connected to MQTT broker")

	consumers := []bridge.Native{publish.NewMQTT(client, publishOptions(cfg))}

	// ---- 2) Optional OLED ----
	if cfg.DisplayEnabled {
		dev, bus, err := display.Open(cfg.DisplayI2CBus)
		if err != nil {
			return err
		}
		defer bus.Close()
		consumers = append(consumers, display.New(dev))
		log.Info().Msg("display enabled")
	}

	// ---- 3) NMEA receiver ----
	opts := nmeahost.Options{
		PortName: cfg.GPSSerialPort,
		BaudRate: uint(cfg.GPSBaudRate),
		UERE:     cfg.GPSUERE,
	}
	if cfg.GPSEnablePin != "" {
		pin, err := nmeahost.OpenEnablePin(cfg.GPSEnablePin)
		if err != nil {
			return err
		}
		opts.EnablePin = pin
	}
	host := nmeahost.New(opts)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runBridge(ctx, cfg, host, bridge.Fanout(consumers...), nil)
}
