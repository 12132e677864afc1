package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker              string
	MQTTClientIDBridge      string
	MQTTClientIDConsole     string
	MQTTClientIDWeb         string
	MQTTPublishTimeoutMS    int
	MQTTDisconnectQuiesceMS uint

	// Topics
	TopicGPS       string
	TopicGPSStatus string

	// GPS receiver
	GPSSerialPort string
	GPSBaudRate   int
	GPSEnablePin  string  // optional GPIO name powering the receiver
	GPSUERE       float64 // meters per unit of HDOP

	// Fix payloads
	GeohashPrecision int

	// Simulated host
	SimCenterLat  float64
	SimCenterLon  float64
	SimRadiusM    float64
	SimIntervalMS int

	// HTTP
	BridgeHTTPPort int // control + metrics of the bridge process, 0 disables
	WebServerPort  int

	// Display
	DisplayEnabled bool
	DisplayI2CBus  string

	// Logging
	LogLevel string
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: only reachable through InitGlobal and Get.
//   - configOnce: ensures InitGlobal() only runs once.
//   - configMu: write lock for initialization, read lock for Get().
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// keys lists every accepted KEY with its default.
var keys = map[string]any{
	"MQTT_BROKER":                "tcp://localhost:1883",
	"MQTT_CLIENT_ID_BRIDGE":      "location-bridge",
	"MQTT_CLIENT_ID_CONSOLE":     "location-console-subscriber",
	"MQTT_CLIENT_ID_WEB":         "location-web-subscriber",
	"MQTT_PUBLISH_TIMEOUT_MS":    2000,
	"MQTT_DISCONNECT_QUIESCE_MS": 250,
	"TOPIC_GPS":                  "inertial/gps",
	"TOPIC_GPS_STATUS":           "inertial/gps/status",
	"GPS_SERIAL_PORT":            "",
	"GPS_BAUD_RATE":              9600,
	"GPS_ENABLE_PIN":             "",
	"GPS_UERE_METERS":            5.0,
	"GEOHASH_PRECISION":          9,
	"SIM_CENTER_LAT":             48.137154,
	"SIM_CENTER_LON":             11.576124,
	"SIM_RADIUS_METERS":          50.0,
	"SIM_INTERVAL_MS":            1000,
	"BRIDGE_HTTP_PORT":           8081,
	"WEB_SERVER_PORT":            8080,
	"DISPLAY_ENABLED":            false,
	"DISPLAY_I2C_BUS":            "",
	"LOG_LEVEL":                  "info",
}

// Load reads a KEY=VALUE configuration file and returns a Config struct.
// Lines starting with '#' are comments. Environment variables with the same
// names override file values.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("env")
	for key, def := range keys {
		v.SetDefault(key, def)
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	for _, key := range v.AllKeys() {
		if _, ok := keys[strings.ToUpper(key)]; !ok {
			return nil, fmt.Errorf("unknown config key: %q", strings.ToUpper(key))
		}
	}

	cfg := &Config{
		MQTTBroker:              v.GetString("MQTT_BROKER"),
		MQTTClientIDBridge:      v.GetString("MQTT_CLIENT_ID_BRIDGE"),
		MQTTClientIDConsole:     v.GetString("MQTT_CLIENT_ID_CONSOLE"),
		MQTTClientIDWeb:         v.GetString("MQTT_CLIENT_ID_WEB"),
		MQTTPublishTimeoutMS:    v.GetInt("MQTT_PUBLISH_TIMEOUT_MS"),
		MQTTDisconnectQuiesceMS: v.GetUint("MQTT_DISCONNECT_QUIESCE_MS"),
		TopicGPS:                v.GetString("TOPIC_GPS"),
		TopicGPSStatus:          v.GetString("TOPIC_GPS_STATUS"),
		GPSSerialPort:           v.GetString("GPS_SERIAL_PORT"),
		GPSBaudRate:             v.GetInt("GPS_BAUD_RATE"),
		GPSEnablePin:            v.GetString("GPS_ENABLE_PIN"),
		GPSUERE:                 v.GetFloat64("GPS_UERE_METERS"),
		GeohashPrecision:        v.GetInt("GEOHASH_PRECISION"),
		SimCenterLat:            v.GetFloat64("SIM_CENTER_LAT"),
		SimCenterLon:            v.GetFloat64("SIM_CENTER_LON"),
		SimRadiusM:              v.GetFloat64("SIM_RADIUS_METERS"),
		SimIntervalMS:           v.GetInt("SIM_INTERVAL_MS"),
		BridgeHTTPPort:          v.GetInt("BRIDGE_HTTP_PORT"),
		WebServerPort:           v.GetInt("WEB_SERVER_PORT"),
		DisplayEnabled:          v.GetBool("DISPLAY_ENABLED"),
		DisplayI2CBus:           v.GetString("DISPLAY_I2C_BUS"),
		LogLevel:                v.GetString("LOG_LEVEL"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks ranges and required fields.
func (c *Config) validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.TopicGPS == "" || c.TopicGPSStatus == "" {
		return fmt.Errorf("TOPIC_GPS and TOPIC_GPS_STATUS are required")
	}
	if c.TopicGPS == c.TopicGPSStatus {
		return fmt.Errorf("TOPIC_GPS and TOPIC_GPS_STATUS must differ, both are %q", c.TopicGPS)
	}
	if c.GPSBaudRate <= 0 {
		return fmt.Errorf("GPS_BAUD_RATE must be positive, got %d", c.GPSBaudRate)
	}
	if c.GPSUERE <= 0 {
		return fmt.Errorf("GPS_UERE_METERS must be positive, got %g", c.GPSUERE)
	}
	if c.GeohashPrecision < 0 || c.GeohashPrecision > 12 {
		return fmt.Errorf("GEOHASH_PRECISION must be 0-12, got %d", c.GeohashPrecision)
	}
	if c.SimCenterLat < -90 || c.SimCenterLat > 90 {
		return fmt.Errorf("SIM_CENTER_LAT must be within ±90, got %g", c.SimCenterLat)
	}
	if c.SimCenterLon < -180 || c.SimCenterLon > 180 {
		return fmt.Errorf("SIM_CENTER_LON must be within ±180, got %g", c.SimCenterLon)
	}
	if c.SimIntervalMS <= 0 {
		return fmt.Errorf("SIM_INTERVAL_MS must be positive, got %d", c.SimIntervalMS)
	}
	if c.BridgeHTTPPort < 0 || c.BridgeHTTPPort > 65535 {
		return fmt.Errorf("BRIDGE_HTTP_PORT out of range: %d", c.BridgeHTTPPort)
	}
	if c.WebServerPort <= 0 || c.WebServerPort > 65535 {
		return fmt.Errorf("WEB_SERVER_PORT out of range: %d", c.WebServerPort)
	}
	return nil
}

// RequireGPS checks the keys only the serial bridge needs.
func (c *Config) RequireGPS() error {
	if c.GPSSerialPort == "" {
		return fmt.Errorf("GPS_SERIAL_PORT is required")
	}
	return nil
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once so only the first call loads; later calls return nil.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
