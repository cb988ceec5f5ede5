// Package tracker maintains presence state for BLE devices seen by an
// AprilBrother BLE Gateway V4.
//
// The gateway publishes batches of raw advertisements on an MQTT topic:
//
//	{"devices": [[<ignored>, "AABBCCDDEEFF", -70, "0201061AFF4C000215..."], ...]}
//
// For each record the Coordinator resolves a stable identifier with the
// advert package. Tracked identifiers produce a SeenEvent on the Sink.
//
// # Tracking set
//
// Initialize seeds a TrackingSet from the device registry: BLE_ entries only,
// split by their track flag. With track_new enabled, identifiers in neither
// set are added to the tracked set on first sight. The sets are never pruned
// and never written back to the registry.
//
// # Usage
//
//	set, err := tracker.Initialize(ctx, registry)
//	coord, err := tracker.New(tracker.Options{
//	    Set:           set,
//	    Sink:          tracker.MultiSink{mqttSink, storeSink},
//	    TrackNew:      cfg.Tracker.TrackNew,
//	    TransportWait: cfg.GetTransportWait(),
//	    Logger:        log.Component("tracker"),
//	})
//	err = coord.Start(ctx, mqttClient, cfg.Tracker.StateTopic, byte(cfg.Tracker.QoS))
package tracker
