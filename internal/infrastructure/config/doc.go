// Package config handles loading and validating the tracker configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (ABBLE_*)
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - MQTT and InfluxDB credentials should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Tracker.StateTopic)
package config
