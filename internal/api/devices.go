package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/abble/ab-ble-tracker/internal/device"
)

// DevicesResponse is returned by /api/v1/devices.
type DevicesResponse struct {
	TrackNew  bool              `json:"track_new"`
	Tracked   []string          `json:"tracked"`
	Untracked []string          `json:"untracked"`
	Registry  *device.Stats     `json:"registry,omitempty"`
	Sightings []device.Sighting `json:"sightings"`
}

// handleListDevices returns the tracking set and every recorded sighting.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	tracked, untracked := s.tracker.Snapshot()
	resp := DevicesResponse{
		TrackNew:  s.tracker.TrackNew(),
		Tracked:   tracked,
		Untracked: untracked,
		Sightings: []device.Sighting{},
	}

	if s.registry != nil {
		stats := s.registry.GetStats()
		resp.Registry = &stats
	}

	if s.sightings != nil {
		sightings, err := s.sightings.ListSightings(r.Context())
		if err != nil {
			s.logger.Error("failed to list sightings", "error", err)
			writeInternalError(w, "failed to list sightings")
			return
		}
		if sightings != nil {
			resp.Sightings = sightings
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// DeviceResponse is returned by /api/v1/devices/{id}.
type DeviceResponse struct {
	ID       string           `json:"id"`
	Tracked  bool             `json:"tracked"`
	Known    bool             `json:"known"`
	Sighting *device.Sighting `json:"sighting,omitempty"`
}

// handleGetDevice reports tracking state and the last sighting for a
// composite id such as BLE_IBC_<hex>. A device that is neither in the
// tracking set nor seen is 404.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	identifier, ok := device.Identifier(id)
	if !ok || identifier == "" {
		writeNotFound(w, "not a BLE device id")
		return
	}

	id = device.BLEPrefix + identifier
	resp := DeviceResponse{
		ID:      id,
		Tracked: s.tracker.IsTracked(identifier),
		Known:   s.tracker.IsKnown(identifier),
	}

	if s.sightings != nil {
		sighting, err := s.sightings.GetSighting(r.Context(), id)
		switch {
		case errors.Is(err, device.ErrSightingNotFound):
		case err != nil:
			s.logger.Error("failed to get sighting", "id", id, "error", err)
			writeInternalError(w, "failed to get sighting")
			return
		default:
			resp.Sighting = sighting
		}
	}

	if !resp.Known && resp.Sighting == nil {
		writeNotFound(w, "device not tracked or seen")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
