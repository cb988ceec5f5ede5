// Package advert turns raw BLE advertisement payloads relayed by an
// AprilBrother BLE Gateway V4 into stable device identifiers.
//
// Beacons rotate their MAC address, so the identifier comes from the
// advertisement body when a known vendor frame is present:
//
//	AAFE1516AAFE <2 bytes> <10-byte namespace/instance>  -> "EDS_" + 20 hex chars
//	1AFF4C000215 <16-byte UUID + major + minor>           -> "IBC_" + 36 hex chars
//
// Anything else falls back to the uppercased MAC. Resolution is a pure
// function of (mac, payload).
package advert
