// Package influxdb writes BLE presence series to InfluxDB v2.
//
// Each sighting becomes a point in the ble_presence measurement, tagged by
// device_id and source_type, with a seen=1 field and the RSSI when the
// gateway reported one. Writes go through the client library's non-blocking
// WriteAPI, so the MQTT handler never waits on the network.
//
// Usage:
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // InfluxDB is optional
//	}
//	defer client.Close()
//	client.SetOnError(func(err error) { logger.Warn("influx write", "error", err) })
package influxdb
