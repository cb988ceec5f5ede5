package device

import "errors"

// Domain errors for the device package.
//
//	if errors.Is(err, device.ErrSightingNotFound) {
//	    // never seen
//	}
var (
	// ErrInvalidKnownDevices is returned when a known_devices file cannot be
	// parsed or contains invalid entries.
	ErrInvalidKnownDevices = errors.New("device: invalid known devices")

	// ErrInvalidKnownDevice is returned when a single registry entry fails validation.
	ErrInvalidKnownDevice = errors.New("device: invalid known device")

	// ErrSightingNotFound is returned when no sighting exists for an id.
	ErrSightingNotFound = errors.New("device: sighting not found")
)
