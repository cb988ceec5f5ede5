// AB BLE Tracker
//
// Tracks the presence of BLE beacons relayed by an AprilBrother BLE Gateway V4.
// The gateway publishes raw advertisements over MQTT; the tracker resolves
// each one to a stable identifier (Eddystone, iBeacon or MAC) and reports
// tracked devices as seen over MQTT, in SQLite and optionally in InfluxDB.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/abble/ab-ble-tracker/internal/advert"
	"github.com/abble/ab-ble-tracker/internal/api"
	"github.com/abble/ab-ble-tracker/internal/device"
	"github.com/abble/ab-ble-tracker/internal/infrastructure/config"
	"github.com/abble/ab-ble-tracker/internal/infrastructure/database"
	"github.com/abble/ab-ble-tracker/internal/infrastructure/influxdb"
	"github.com/abble/ab-ble-tracker/internal/infrastructure/logging"
	"github.com/abble/ab-ble-tracker/internal/infrastructure/mqtt"
	"github.com/abble/ab-ble-tracker/internal/presence"
	"github.com/abble/ab-ble-tracker/internal/tracker"
	"github.com/abble/ab-ble-tracker/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting AB BLE tracker",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	deviceRepo := device.NewSQLiteRepository(db.DB)
	registry := device.NewRegistry(deviceRepo)
	registry.SetLogger(log.Component("registry"))

	if seedErr := seedRegistry(ctx, registry, cfg.Tracker.KnownDevicesFile, log); seedErr != nil {
		return seedErr
	}
	if refreshErr := registry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading device registry: %w", refreshErr)
	}
	log.Info("device registry initialised", "devices", registry.DeviceCount())

	set, err := tracker.Initialize(ctx, registry)
	if err != nil {
		return fmt.Errorf("initialising tracker: %w", err)
	}

	metricsRegistry := prometheus.NewRegistry()
	metricsRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	trackerMetrics, err := tracker.RegisterMetrics(metricsRegistry)
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.Component("mqtt"))
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", mqttClient.ClientID(),
	)

	influxClient, err := connectInflux(cfg.InfluxDB, log)
	if err != nil {
		return err
	}
	if influxClient != nil {
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
	}

	sink := buildSink(cfg, mqttClient, deviceRepo, influxClient)

	coordinator, err := tracker.New(tracker.Options{
		Set:           set,
		Sink:          sink,
		TrackNew:      cfg.Tracker.TrackNew,
		Decoder:       advert.Decoder{Strict: cfg.Tracker.StrictPayloads},
		TransportWait: cfg.GetTransportWait(),
		Logger:        log.Component("tracker"),
		Metrics:       trackerMetrics,
	})
	if err != nil {
		return fmt.Errorf("creating tracker: %w", err)
	}

	stateTopic := mqtt.Topics{}.GatewayState(cfg.Tracker.StateTopic)
	// #nosec G115 -- config validation bounds qos to 0..2
	if startErr := coordinator.Start(ctx, mqttClient, stateTopic, byte(cfg.Tracker.QoS)); startErr != nil {
		return fmt.Errorf("starting tracker: %w", startErr)
	}
	defer func() {
		if stopErr := coordinator.Stop(); stopErr != nil {
			log.Warn("error stopping tracker", "error", stopErr)
		}
	}()

	if cfg.API.Enabled {
		checks := map[string]api.HealthChecker{
			"database": db,
			"mqtt":     mqttClient,
		}
		if influxClient != nil {
			checks["influxdb"] = influxClient
		}

		apiServer, apiErr := api.New(api.Deps{
			Config:    cfg.API,
			Logger:    log.Component("api"),
			Tracker:   coordinator,
			Sightings: deviceRepo,
			Registry:  registry,
			Checks:    checks,
			Gatherer:  metricsRegistry,
			Version:   version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := apiServer.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API server disabled")
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	if influxClient != nil {
		influxClient.Flush()
	}

	log.Info("AB BLE tracker stopped")
	return nil
}

// getConfigPath returns the configuration file path from ABBLE_CONFIG or the default.
func getConfigPath() string {
	if path := os.Getenv("ABBLE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// seedRegistry makes known_devices.yaml the registry contents, removing
// entries from earlier runs that the file no longer lists. A missing file
// empties the registry and invalid entries are logged and skipped. A file
// that does not parse at all is an error and the registry is left alone.
// An empty path disables the file.
func seedRegistry(ctx context.Context, registry *device.Registry, path string, log *logging.Logger) error {
	if path == "" {
		return nil
	}

	known, err := device.LoadKnownDevicesFile(path)
	switch {
	case errors.Is(err, device.ErrInvalidKnownDevice):
		log.Warn("skipping invalid known devices", "path", path, "error", err)
	case err != nil:
		return fmt.Errorf("reading known devices: %w", err)
	}

	_, err = registry.Seed(ctx, known)
	return err
}

// connectInflux returns nil, nil when InfluxDB is disabled.
func connectInflux(cfg config.InfluxDBConfig, log *logging.Logger) (*influxdb.Client, error) {
	client, err := influxdb.Connect(cfg)
	if errors.Is(err, influxdb.ErrDisabled) {
		log.Info("InfluxDB disabled")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
	}

	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected",
		"url", cfg.URL,
		"org", cfg.Org,
		"bucket", cfg.Bucket,
	)
	return client, nil
}

// buildSink fans seen events out to MQTT, SQLite and, when connected, InfluxDB.
func buildSink(cfg *config.Config, pub presence.Publisher, repo presence.SightingRecorder, influxClient *influxdb.Client) tracker.MultiSink {
	// #nosec G115 -- config validation bounds qos to 0..2
	sinks := tracker.MultiSink{
		presence.NewMQTTSink(pub, cfg.Tracker.PresenceTopicPrefix, byte(cfg.MQTT.QoS)),
		presence.NewStoreSink(repo),
	}
	if influxClient != nil {
		sinks = append(sinks, presence.NewInfluxSink(influxClient))
	}
	return sinks
}
