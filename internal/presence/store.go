package presence

import (
	"context"

	"github.com/abble/ab-ble-tracker/internal/device"
	"github.com/abble/ab-ble-tracker/internal/tracker"
)

// SightingRecorder persists sightings. device.Repository satisfies it.
type SightingRecorder interface {
	RecordSighting(ctx context.Context, s device.Sighting) error
}

// StoreSink records seen events in the sightings table.
type StoreSink struct {
	repo SightingRecorder
}

// NewStoreSink creates a sink over repo.
func NewStoreSink(repo SightingRecorder) *StoreSink {
	return &StoreSink{repo: repo}
}

// See upserts the sighting for event.ID.
func (s *StoreSink) See(ctx context.Context, event tracker.SeenEvent) error {
	rssi, _ := event.RSSI()
	return s.repo.RecordSighting(ctx, device.Sighting{
		ID:         event.ID,
		Name:       event.HostName,
		LastRSSI:   rssi,
		LastSeen:   event.SeenAt,
		SourceType: event.SourceType,
	})
}
