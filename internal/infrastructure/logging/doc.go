// Package logging provides structured logging for the AB BLE tracker.
//
// It wraps log/slog so every component logs with the same handler,
// level filtering and default fields (service, version).
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	trackerLog := logger.Component("tracker")
//	trackerLog.Info("subscribed", "topic", "ab_ble")
//
// Never log MQTT or InfluxDB credentials.
package logging
