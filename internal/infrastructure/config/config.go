package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the tracker's config.yaml.
type Config struct {
	Tracker  TrackerConfig  `yaml:"tracker"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	API      APIConfig      `yaml:"api"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// TrackerConfig contains the presence tracking settings.
type TrackerConfig struct {
	// TrackNew enables auto-discovery: identifiers that are in neither the
	// tracked nor the untracked set are added to the tracked set.
	// Default: false
	TrackNew bool `yaml:"track_new"`

	// StateTopic is the MQTT topic the gateway publishes advertisement batches on.
	// Default: "ab_ble"
	StateTopic string `yaml:"state_topic"`

	// QoS is the subscription QoS for the state topic.
	// Default: 0
	QoS int `yaml:"qos"`

	// KnownDevicesFile is a known_devices.yaml file used to seed the registry.
	// A missing file is not an error.
	KnownDevicesFile string `yaml:"known_devices_file"`

	// StrictPayloads rejects advertisements whose vendor identifier is cut short
	// instead of tracking the truncated identifier.
	StrictPayloads bool `yaml:"strict_payloads"`

	// TransportWait is how long to wait for the MQTT client before giving up (seconds).
	// Default: 10
	TransportWait int `yaml:"transport_wait"`

	// PresenceTopicPrefix is where seen events are republished.
	// Default: "ab_ble_tracker/presence"
	PresenceTopicPrefix string `yaml:"presence_topic_prefix"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains the status HTTP server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// ReadTimeout returns Read as a Duration; it also bounds request headers.
func (t APITimeoutConfig) ReadTimeout() time.Duration { return seconds(t.Read) }

// WriteTimeout returns Write as a Duration.
func (t APITimeoutConfig) WriteTimeout() time.Duration { return seconds(t.Write) }

// IdleTimeout returns Idle as a Duration.
func (t APITimeoutConfig) IdleTimeout() time.Duration { return seconds(t.Idle) }

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// Load builds the configuration from defaults, then the YAML file at path,
// then ABBLE_* environment variables, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration with environment overrides.
func Default() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	return cfg
}

func defaultConfig() *Config {
	return &Config{
		Tracker: TrackerConfig{
			StateTopic:          "ab_ble",
			KnownDevicesFile:    "known_devices.yaml",
			TransportWait:       10,
			PresenceTopicPrefix: "ab_ble_tracker/presence",
		},
		Database: DatabaseConfig{Path: "./data/abble.db", WALMode: true, BusyTimeout: 5},
		MQTT: MQTTConfig{
			Broker:    MQTTBrokerConfig{Host: "localhost", Port: 1883, ClientID: "ab-ble-tracker"},
			QoS:       1,
			Reconnect: MQTTReconnectConfig{InitialDelay: 1, MaxDelay: 60},
		},
		API: APIConfig{
			Enabled:  true,
			Host:     "0.0.0.0",
			Port:     8087,
			Timeouts: APITimeoutConfig{Read: 15, Write: 15, Idle: 60},
		},
		Logging: LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
	}
}

// envOverrides maps ABBLE_* variables onto config fields. Values that do
// not parse are ignored.
var envOverrides = map[string]func(c *Config, v string){
	"ABBLE_DATABASE_PATH":      func(c *Config, v string) { c.Database.Path = v },
	"ABBLE_MQTT_HOST":          func(c *Config, v string) { c.MQTT.Broker.Host = v },
	"ABBLE_MQTT_PORT":          func(c *Config, v string) { setInt(&c.MQTT.Broker.Port, v) },
	"ABBLE_MQTT_USERNAME":      func(c *Config, v string) { c.MQTT.Auth.Username = v },
	"ABBLE_MQTT_PASSWORD":      func(c *Config, v string) { c.MQTT.Auth.Password = v },
	"ABBLE_INFLUXDB_URL":       func(c *Config, v string) { c.InfluxDB.URL = v },
	"ABBLE_INFLUXDB_TOKEN":     func(c *Config, v string) { c.InfluxDB.Token = v },
	"ABBLE_STATE_TOPIC":        func(c *Config, v string) { c.Tracker.StateTopic = v },
	"ABBLE_TRACK_NEW":          func(c *Config, v string) { setBool(&c.Tracker.TrackNew, v) },
	"ABBLE_KNOWN_DEVICES_FILE": func(c *Config, v string) { c.Tracker.KnownDevicesFile = v },
	"ABBLE_LOG_LEVEL":          func(c *Config, v string) { c.Logging.Level = v },
}

func applyEnvOverrides(cfg *Config) {
	for name, apply := range envOverrides {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			apply(cfg, v)
		}
	}
}

func setInt(dst *int, v string) {
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}

func setBool(dst *bool, v string) {
	if b, err := strconv.ParseBool(v); err == nil {
		*dst = b
	}
}

// Validate reports every problem at once, wrapped in ErrInvalid.
func (c *Config) Validate() error {
	var problems []string
	check := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	check(strings.TrimSpace(c.Tracker.StateTopic) != "", "tracker.state_topic is required")
	check(validQoS(c.Tracker.QoS), "tracker.qos must be 0, 1, or 2")
	check(c.Tracker.TransportWait >= 0, "tracker.transport_wait cannot be negative")
	check(c.Database.Path != "", "database.path is required")
	check(validQoS(c.MQTT.QoS), "mqtt.qos must be 0, 1, or 2")
	check(validPort(c.MQTT.Broker.Port), "mqtt.broker.port must be between 1 and 65535")
	check(!c.API.Enabled || validPort(c.API.Port), "api.port must be between 1 and 65535")
	check(!c.InfluxDB.Enabled || c.InfluxDB.URL != "", "influxdb.url is required when influxdb is enabled")

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

func validQoS(q int) bool { return q >= 0 && q <= 2 }

func validPort(p int) bool { return p >= 1 && p <= 65535 }

// GetTransportWait returns tracker.transport_wait as a Duration.
func (c *Config) GetTransportWait() time.Duration {
	return seconds(c.Tracker.TransportWait)
}
