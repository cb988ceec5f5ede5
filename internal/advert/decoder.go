package advert

import (
	"fmt"
	"strings"
)

// Vendor frame markers, as uppercase hex.
const (
	EddystoneMarker = "AAFE1516AAFE"
	IBeaconMarker   = "1AFF4C000215"
)

// Identifier prefixes.
const (
	EddystonePrefix = "EDS_"
	IBeaconPrefix   = "IBC_"
)

// Vendor labels reported by Vendor.
const (
	VendorEddystone = "eddystone"
	VendorIBeacon   = "ibeacon"
	VendorMAC       = "mac"
)

// frame describes where a vendor identifier sits relative to its marker.
type frame struct {
	vendor string
	marker string
	prefix string
	skip   int // hex chars between the end of the marker and the identifier
	length int // identifier length in hex chars
}

// frames are tried in order; the first marker found wins.
var frames = []frame{
	{vendor: VendorEddystone, marker: EddystoneMarker, prefix: EddystonePrefix, skip: 4, length: 20},
	{vendor: VendorIBeacon, marker: IBeaconMarker, prefix: IBeaconPrefix, skip: 0, length: 36},
}

// Decoder resolves advertisements to identifiers.
//
// The zero value is lenient: a payload that ends early after a marker yields
// whatever characters are available. With Strict set, the same input returns
// ErrTruncatedPayload instead.
type Decoder struct {
	Strict bool
}

// Resolve returns the identifier for one advertisement.
//
// mac and payload are matched case-insensitively; the result is uppercase.
func (d Decoder) Resolve(mac, payload string) (string, error) {
	payload = strings.ToUpper(payload)

	for _, f := range frames {
		p := strings.Index(payload, f.marker)
		if p < 0 {
			continue
		}

		start := p + len(f.marker) + f.skip
		end := start + f.length
		if end > len(payload) {
			if d.Strict {
				return "", fmt.Errorf("%w: %s needs %d hex chars, got %d",
					ErrTruncatedPayload, f.vendor, end, len(payload))
			}
			end = len(payload)
		}
		if start > end {
			start = end
		}
		return f.prefix + payload[start:end], nil
	}

	return strings.ToUpper(mac), nil
}

// Resolve is the lenient resolution used by default. It never fails.
func Resolve(mac, payload string) string {
	id, _ := Decoder{}.Resolve(mac, payload) //nolint:errcheck // lenient decoder never errors
	return id
}

// Vendor reports which encoding produced id.
func Vendor(id string) string {
	switch {
	case strings.HasPrefix(id, EddystonePrefix):
		return VendorEddystone
	case strings.HasPrefix(id, IBeaconPrefix):
		return VendorIBeacon
	default:
		return VendorMAC
	}
}
