package tracker

import "errors"

// Domain errors for the tracker package.
var (
	// ErrTransportUnavailable is returned by Start when the MQTT client is not
	// connected within the transport wait.
	ErrTransportUnavailable = errors.New("tracker: message transport unavailable")

	// ErrMalformedMessage is returned when an inbound message is not a JSON
	// object with a "devices" array. No record of it is processed.
	ErrMalformedMessage = errors.New("tracker: malformed message")

	// ErrMalformedRecord is returned for a single device record that is not
	// [_, mac, rssi, payload]. Sibling records are unaffected.
	ErrMalformedRecord = errors.New("tracker: malformed record")

	// ErrInvalidOptions is returned by New when required options are missing.
	ErrInvalidOptions = errors.New("tracker: invalid options")
)
