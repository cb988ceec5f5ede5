package device

import (
	"strings"
	"time"
)

// BLEPrefix marks registry entries that belong to this tracker.
// The host stores every BLE device as BLE_<identifier>.
const BLEPrefix = "BLE_"

// SourceTypeBLE is the source type recorded for every sighting.
const SourceTypeBLE = "bluetooth_le"

// KnownDevice is one entry of the device registry.
type KnownDevice struct {
	// MAC is the registry key as written by the host, e.g. "BLE_IBC_E2C5...".
	MAC  string `json:"mac"`
	Name string `json:"name"`

	// Track is the persisted opt-in flag.
	Track bool `json:"track"`

	// ConsiderHome is parsed for round-tripping but not used by the tracker,
	// which loads the registry with a zero grace period.
	ConsiderHome time.Duration `json:"consider_home,omitempty"`

	Icon    string `json:"icon,omitempty"`
	Picture string `json:"picture,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsBLE reports whether mac carries the BLE_ prefix (case-insensitive).
func IsBLE(mac string) bool {
	return len(mac) >= len(BLEPrefix) && strings.EqualFold(mac[:len(BLEPrefix)], BLEPrefix)
}

// Identifier returns the tracker identifier for a registry MAC: the prefix is
// stripped and the remainder uppercased. ok is false for non-BLE entries.
func Identifier(mac string) (id string, ok bool) {
	if !IsBLE(mac) {
		return "", false
	}
	return strings.ToUpper(mac[len(BLEPrefix):]), true
}

// Identifier returns the tracker identifier for d.
func (d KnownDevice) Identifier() (string, bool) {
	return Identifier(d.MAC)
}

// Sighting is the presence-store row for one composite device id.
type Sighting struct {
	// ID is the composite id, "BLE_" + identifier.
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	LastRSSI   *int      `json:"last_rssi,omitempty"`
	LastSeen   time.Time `json:"last_seen"`
	FirstSeen  time.Time `json:"first_seen"`
	SeenCount  int64     `json:"seen_count"`
	SourceType string    `json:"source_type"`
}
