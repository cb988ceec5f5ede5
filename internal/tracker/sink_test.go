package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewSeenEvent(t *testing.T) {
	at := time.Date(2026, 10, 18, 14, 0, 0, 0, time.FixedZone("CEST", 2*3600))

	e := NewSeenEvent("EDS_00112233445566778899", intPtr(-81), at)
	if e.ID != "BLE_EDS_00112233445566778899" || e.HostName != e.ID {
		t.Errorf("ID/HostName = %q/%q", e.ID, e.HostName)
	}
	if e.SeenAt.Location() != time.UTC || !e.SeenAt.Equal(at) {
		t.Errorf("SeenAt = %v, want %v in UTC", e.SeenAt, at)
	}
	rssi, ok := e.RSSI()
	if !ok || *rssi != -81 {
		t.Errorf("RSSI() = %v, %v", rssi, ok)
	}

	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["source_type"] != "bluetooth_le" {
		t.Errorf("source_type = %v", decoded["source_type"])
	}
	attrs, _ := decoded["attributes"].(map[string]any)
	if attrs["rssi"] != float64(-81) {
		t.Errorf("attributes = %v", decoded["attributes"])
	}
}

func TestNewSeenEvent_NoRSSI(t *testing.T) {
	e := NewSeenEvent("AABBCCDDEEFF", nil, time.Now())
	if len(e.Attributes) != 0 {
		t.Errorf("Attributes = %v, want empty", e.Attributes)
	}

	data, err := json.Marshal(e)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) == "" || json.Valid(data) == false {
		t.Fatalf("invalid JSON %s", data)
	}
}

func TestMultiSink(t *testing.T) {
	var calls atomic.Int32
	ok := SinkFunc(func(context.Context, SeenEvent) error {
		calls.Add(1)
		return nil
	})
	errA := errors.New("mqtt down")
	errB := errors.New("disk full")
	failA := SinkFunc(func(context.Context, SeenEvent) error {
		calls.Add(1)
		return errA
	})
	failB := SinkFunc(func(context.Context, SeenEvent) error {
		calls.Add(1)
		return errB
	})

	event := NewSeenEvent("AA", nil, time.Now())

	if err := (MultiSink{ok, ok}).See(context.Background(), event); err != nil {
		t.Errorf("See() error = %v, want nil", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}

	calls.Store(0)
	err := (MultiSink{failA, ok, failB}).See(context.Background(), event)
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Errorf("See() error = %v, want both sink errors joined", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, every sink should run", calls.Load())
	}

	if err := (MultiSink{}).See(context.Background(), event); err != nil {
		t.Errorf("empty MultiSink error = %v", err)
	}
}
