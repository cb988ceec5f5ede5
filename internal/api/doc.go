// Package api implements the HTTP status API for the AB BLE tracker.
//
// This package provides:
//   - GET /api/v1/health: component health (MQTT, database, InfluxDB)
//   - GET /api/v1/devices: tracked/untracked sets, registry counts, sightings
//   - GET /api/v1/devices/{id}: tracking state and last sighting of one composite id
//   - GET /metrics: Prometheus exposition of the service registry
//   - Middleware stack (request ID, logging, recovery)
//
// The API is read-only. It observes the tracker and never changes the
// tracking set.
package api
