package tracker

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/abble/ab-ble-tracker/internal/device"
)

// AttrRSSI is the attribute key carrying the signal strength.
const AttrRSSI = "rssi"

// SeenEvent reports that a tracked device was observed.
type SeenEvent struct {
	// ID is the composite id, "BLE_" + identifier.
	ID string `json:"id"`
	// HostName is the same as ID.
	HostName string `json:"host_name"`
	// Attributes holds "rssi" only when the gateway reported one.
	Attributes map[string]any `json:"attributes"`
	SourceType string         `json:"source_type"`
	SeenAt     time.Time      `json:"seen_at"`
}

// NewSeenEvent builds the event for identifier id.
func NewSeenEvent(id string, rssi *int, at time.Time) SeenEvent {
	composite := device.BLEPrefix + id
	attrs := make(map[string]any, 1)
	if rssi != nil {
		attrs[AttrRSSI] = *rssi
	}
	return SeenEvent{
		ID:         composite,
		HostName:   composite,
		Attributes: attrs,
		SourceType: device.SourceTypeBLE,
		SeenAt:     at.UTC(),
	}
}

// RSSI returns the rssi attribute, if present.
func (e SeenEvent) RSSI() (*int, bool) {
	v, ok := e.Attributes[AttrRSSI].(int)
	if !ok {
		return nil, false
	}
	return &v, true
}

// Sink receives seen events for tracked devices.
type Sink interface {
	See(ctx context.Context, event SeenEvent) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, event SeenEvent) error

// See calls f.
func (f SinkFunc) See(ctx context.Context, event SeenEvent) error {
	return f(ctx, event)
}

// MultiSink delivers each event to every sink concurrently and waits for all
// of them. Failures are joined; one failing sink does not stop the others.
type MultiSink []Sink

// See fans event out to every sink.
func (m MultiSink) See(ctx context.Context, event SeenEvent) error {
	errs := make([]error, len(m))

	var eg errgroup.Group
	for i, s := range m {
		i, s := i, s
		eg.Go(func() error {
			errs[i] = s.See(ctx, event)
			return nil
		})
	}
	eg.Wait() //nolint:errcheck // goroutines report through errs

	return errors.Join(errs...)
}
