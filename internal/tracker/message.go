package tracker

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// Record is one advertisement relayed by the gateway.
type Record struct {
	MAC string
	// RSSI is nil when the gateway reported null.
	RSSI    *int
	Payload string
}

// envelope is the gateway message: {"devices": [[...], ...]}.
type envelope struct {
	Devices json.RawMessage `json:"devices"`
}

var jsonNull = []byte("null")

// ParseMessage splits a gateway message into raw records. Each record is
// decoded separately with ParseRecord so one bad entry does not affect the
// rest.
func ParseMessage(payload []byte) ([]json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	if len(env.Devices) == 0 || bytes.Equal(env.Devices, jsonNull) {
		return nil, fmt.Errorf("%w: missing devices", ErrMalformedMessage)
	}

	var records []json.RawMessage
	if err := json.Unmarshal(env.Devices, &records); err != nil {
		return nil, fmt.Errorf("%w: devices is not an array: %w", ErrMalformedMessage, err)
	}
	return records, nil
}

// ParseRecord decodes [<ignored>, mac, rssi|null, payload]. Elements past the
// fourth are ignored.
func ParseRecord(raw json.RawMessage) (Record, error) {
	var fields []json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Record{}, fmt.Errorf("%w: not an array: %w", ErrMalformedRecord, err)
	}
	if len(fields) < 4 {
		return Record{}, fmt.Errorf("%w: %d elements, want 4", ErrMalformedRecord, len(fields))
	}

	var (
		rec Record
		err error
	)
	if rec.MAC, err = decodeString(fields[1]); err != nil {
		return Record{}, fmt.Errorf("%w: mac: %w", ErrMalformedRecord, err)
	}
	if rec.RSSI, err = decodeRSSI(fields[2]); err != nil {
		return Record{}, fmt.Errorf("%w: rssi: %w", ErrMalformedRecord, err)
	}
	if rec.Payload, err = decodeString(fields[3]); err != nil {
		return Record{}, fmt.Errorf("%w: payload: %w", ErrMalformedRecord, err)
	}
	return rec, nil
}

// decodeString decodes a JSON string. Unlike json.Unmarshal it rejects null.
func decodeString(raw json.RawMessage) (string, error) {
	if bytes.Equal(bytes.TrimSpace(raw), jsonNull) {
		return "", errors.New("null")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", err
	}
	return s, nil
}

// decodeRSSI returns nil for null. Non-integral numbers are truncated toward
// zero.
func decodeRSSI(raw json.RawMessage) (*int, error) {
	raw = bytes.TrimSpace(raw)
	if bytes.Equal(raw, jsonNull) {
		return nil, nil
	}
	if len(raw) > 0 && raw[0] == '"' {
		return nil, errors.New("string, want number")
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, err
	}
	if i, err := n.Int64(); err == nil && i >= math.MinInt32 && i <= math.MaxInt32 {
		rssi := int(i)
		return &rssi, nil
	}
	f, err := n.Float64()
	if err != nil || f < math.MinInt32 || f > math.MaxInt32 {
		return nil, fmt.Errorf("out of range: %s", n)
	}
	rssi := int(f)
	return &rssi, nil
}
