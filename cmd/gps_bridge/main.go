// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/location_bridge/internal/app"
	"github.com/relabs-tech/location_bridge/internal/config"
)

func main() {
	configPath := flag.String("config", "./location_bridge_config.txt", "path to configuration file")
	flag.Parse()

	log.Println("starting location-bridge GPS bridge (NMEA → MQTT)")

	// Load configuration
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunGPSBridge(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
