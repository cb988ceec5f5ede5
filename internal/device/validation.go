package device

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	maxNameLength = 100
	maxMACLength  = 64
)

// macPattern accepts raw MACs with or without separators and composite
// identifiers such as BLE_IBC_<hex>.
var macPattern = regexp.MustCompile(`^[A-Za-z0-9_:\-]+$`)

// ValidateKnownDevice checks a registry entry before it is stored.
func ValidateKnownDevice(d *KnownDevice) error {
	if d == nil {
		return fmt.Errorf("%w: nil device", ErrInvalidKnownDevice)
	}

	mac := strings.TrimSpace(d.MAC)
	if mac == "" {
		return fmt.Errorf("%w: mac is required", ErrInvalidKnownDevice)
	}
	if len(mac) > maxMACLength {
		return fmt.Errorf("%w: mac exceeds %d characters", ErrInvalidKnownDevice, maxMACLength)
	}
	if !macPattern.MatchString(mac) {
		return fmt.Errorf("%w: mac %q contains invalid characters", ErrInvalidKnownDevice, mac)
	}
	if len(d.Name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidKnownDevice, maxNameLength)
	}
	if d.ConsiderHome < 0 {
		return fmt.Errorf("%w: consider_home cannot be negative", ErrInvalidKnownDevice)
	}
	return nil
}
