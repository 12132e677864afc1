package app

import (
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/location_bridge/internal/config"
	"github.com/relabs-tech/location_bridge/internal/publish"
)

// connectMQTT connects to broker and blocks until the connection is up.
func connectMQTT(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return client, nil
}

func publishOptions(cfg *config.Config) publish.Options {
	return publish.Options{
		FixTopic:         cfg.TopicGPS,
		StatusTopic:      cfg.TopicGPSStatus,
		Timeout:          time.Duration(cfg.MQTTPublishTimeoutMS) * time.Millisecond,
		GeohashPrecision: uint(cfg.GeohashPrecision),
	}
}
