package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementPresence is the measurement every sighting is written to.
const MeasurementPresence = "ble_presence"

// PresencePoint builds the point for one sighting.
//
// Tags: device_id, source_type. Fields: seen=1 always, rssi only when known.
func PresencePoint(deviceID, sourceType string, rssi *int, at time.Time) *write.Point {
	fields := map[string]any{
		"seen": 1,
	}
	if rssi != nil {
		fields["rssi"] = *rssi
	}

	return write.NewPoint(
		MeasurementPresence,
		map[string]string{
			"device_id":   deviceID,
			"source_type": sourceType,
		},
		fields,
		at,
	)
}

// WritePresence records a sighting. The write is non-blocking; failures are
// reported through the SetOnError callback.
//
// Example:
//
//	rssi := -67
//	client.WritePresence("BLE_EDS_00112233445566778899", "bluetooth_le", &rssi, time.Now())
func (c *Client) WritePresence(deviceID, sourceType string, rssi *int, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(PresencePoint(deviceID, sourceType, rssi, at))
}
