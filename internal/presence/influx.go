package presence

import (
	"context"
	"time"

	"github.com/abble/ab-ble-tracker/internal/tracker"
)

// PresenceWriter writes presence points. *influxdb.Client satisfies it.
type PresenceWriter interface {
	WritePresence(deviceID, sourceType string, rssi *int, at time.Time)
}

// InfluxSink writes one ble_presence point per seen event. Writes are
// batched by the client; failures surface through its error callback, so
// See never fails.
type InfluxSink struct {
	w PresenceWriter
}

// NewInfluxSink creates a sink over w.
func NewInfluxSink(w PresenceWriter) *InfluxSink {
	return &InfluxSink{w: w}
}

// See queues the point for event.
func (s *InfluxSink) See(_ context.Context, event tracker.SeenEvent) error {
	rssi, _ := event.RSSI()
	s.w.WritePresence(event.ID, event.SourceType, rssi, event.SeenAt)
	return nil
}
