package app

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/location_bridge/internal/config"
	"github.com/relabs-tech/location_bridge/internal/logging"
	"github.com/relabs-tech/location_bridge/internal/publish"
)

// RunConsoleMQTT prints every fix and status message published by a bridge.
func RunConsoleMQTT() error {
	cfg := config.Get()
	if cfg == nil {
		return fmt.Errorf("config not initialized")
	}
	logging.Configure(logging.Config{Level: cfg.LogLevel, Service: "console", Console: true})
	log := logging.WithComponent("console")

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDConsole)
	if err != nil {
		return fmt.Errorf("mqtt connect %s: %w", cfg.MQTTBroker, err)
	}
	log.Info().Str("broker", cfg.MQTTBroker).Msg("connected to MQTT broker")

	// Subscribe to fixes
	fixToken := client.Subscribe(cfg.TopicGPS, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var f publish.FixMessage
		if err := json.Unmarshal(msg.Payload(), &f); err != nil {
			log.Warn().Err(err).Str("topic", msg.Topic()).Msg("gps unmarshal")
			return
		}
		fmt.Println(formatFix(f.Fix, f.Geohash))
	})
	fixToken.Wait()
	if fixToken.Error() != nil {
		return fixToken.Error()
	}
	log.Info().Str("topic", cfg.TopicGPS).Msg("subscribed")

	// Subscribe to status (retained, so the current state arrives first)
	statusToken := client.Subscribe(cfg.TopicGPSStatus, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var st publish.Status
		if err := json.Unmarshal(msg.Payload(), &st); err != nil {
			log.Warn().Err(err).Str("topic", msg.Topic()).Msg("gps status unmarshal")
			return
		}
		fmt.Println(formatStatus(st))
	})
	statusToken.Wait()
	if statusToken.Error() != nil {
		return statusToken.Error()
	}
	log.Info().Str("topic", cfg.TopicGPSStatus).Msg("subscribed")

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutting down")
	client.Disconnect(cfg.MQTTDisconnectQuiesceMS)
	return nil
}
