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

	log.Println("starting location-bridge simulated bridge (synthetic track → console, MQTT)")

	// Load configuration
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunSimBridge(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
