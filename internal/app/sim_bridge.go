package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relabs-tech/location_bridge/internal/bridge"
	"github.com/relabs-tech/location_bridge/internal/config"
	"github.com/relabs-tech/location_bridge/internal/logging"
	"github.com/relabs-tech/location_bridge/internal/publish"
	"github.com/relabs-tech/location_bridge/internal/simhost"
)

// RunSimBridge runs the bridge over a synthetic circular track, printing
// every event to stdout and publishing it to MQTT. No hardware is needed.
func RunSimBridge() error {
	cfg := config.Get()
	if cfg == nil {
		return fmt.Errorf("config not initialized")
	}
	logging.Configure(logging.Config{Level: cfg.LogLevel, Service: "sim-bridge", Console: true})
	log := logging.WithComponent("app")

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDBridge)
	if err != nil {
		return fmt.Errorf("mqtt connect %s: %w", cfg.MQTTBroker, err)
	}
	defer client.Disconnect(cfg.MQTTDisconnectQuiesceMS)
	log.Info().Str("broker", cfg.MQTTBroker).Msg("connected to MQTT broker")

	opts := simhost.DefaultOptions()
	opts.CenterLat = cfg.SimCenterLat
	opts.CenterLon = cfg.SimCenterLon
	opts.RadiusM = cfg.SimRadiusM
	opts.Interval = time.Duration(cfg.SimIntervalMS) * time.Millisecond
	sim := simhost.New(opts)

	native := bridge.Fanout(newConsole(os.Stdout), publish.NewMQTT(client, publishOptions(cfg)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runBridge(ctx, cfg, sim, native, simRoutes(sim))
}
