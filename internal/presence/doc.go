// Package presence delivers tracker seen events to their destinations.
//
// Each sink implements tracker.Sink:
//
//   - MQTTSink republishes the event as retained JSON on
//     <presence_prefix>/<id> so other consumers see the last sighting.
//   - StoreSink records the sighting in SQLite (ble_sightings).
//   - InfluxSink writes an RSSI point to InfluxDB.
//
// Combine them with tracker.MultiSink.
package presence
