package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/abble/ab-ble-tracker/internal/advert"
	"github.com/abble/ab-ble-tracker/internal/device"
	"github.com/abble/ab-ble-tracker/internal/infrastructure/mqtt"
)

const (
	testMAC      = "AABBCCDDEEFF"
	ibeaconBody  = "E2C56DB5DFFB48D2B060D0F5A71096E00001" + "00C5"
	ibeaconID    = "IBC_E2C56DB5DFFB48D2B060D0F5A71096E00001"
	plainPayload = "0201060303E1FF"
)

var fixedNow = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

// recordingSink captures seen events.
type recordingSink struct {
	mu     sync.Mutex
	events []SeenEvent
	err    error
}

func (s *recordingSink) See(_ context.Context, e SeenEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return s.err
}

func (s *recordingSink) ids() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, len(s.events))
	for i, e := range s.events {
		ids[i] = e.ID
	}
	return ids
}

// mockLoader implements DeviceLoader.
type mockLoader struct {
	devices []device.KnownDevice
	err     error
}

func (m mockLoader) ListDevices(context.Context) ([]device.KnownDevice, error) {
	return m.devices, m.err
}

// mockSubscriber implements Subscriber.
type mockSubscriber struct {
	mu           sync.Mutex
	connected    bool
	connectAfter int // IsConnected calls before reporting connected
	calls        int
	topic        string
	qos          byte
	handler      mqtt.MessageHandler
	subscribeErr error
	unsubscribed []string
	unsubErr     error
}

func (m *mockSubscriber) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.connectAfter > 0 && m.calls >= m.connectAfter {
		m.connected = true
	}
	return m.connected
}

func (m *mockSubscriber) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subscribeErr != nil {
		return m.subscribeErr
	}
	m.topic, m.qos, m.handler = topic, qos, handler
	return nil
}

func (m *mockSubscriber) Unsubscribe(topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unsubErr != nil {
		return m.unsubErr
	}
	m.unsubscribed = append(m.unsubscribed, topic)
	return nil
}

func message(records ...string) []byte {
	return []byte(`{"devices":[` + strings.Join(records, ",") + `]}`)
}

func record(mac, rssi, payload string) string {
	return fmt.Sprintf(`[2,%q,%s,%q]`, mac, rssi, payload)
}

func newTestCoordinator(t *testing.T, registry []device.KnownDevice, trackNew bool, sink Sink) *Coordinator {
	t.Helper()
	set, err := Initialize(context.Background(), mockLoader{devices: registry})
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	c, err := New(Options{
		Set:      set,
		Sink:     sink,
		TrackNew: trackNew,
		Now:      func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestInitialize(t *testing.T) {
	registry := []device.KnownDevice{
		{MAC: "BLE_aabbccddeeff", Track: true},
		{MAC: "ble_IBC_0011", Track: true},
		{MAC: "BLE_EDS_99", Track: false},
		{MAC: "AA:BB:CC:DD:EE:FF", Track: true},
		{MAC: "BLE_", Track: true},
		{MAC: "BLE_112233445566", Track: true},
		{MAC: "BLE_112233445566", Track: false},
	}

	set, err := Initialize(context.Background(), mockLoader{devices: registry})
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	tracked, untracked := set.Snapshot()
	if want := []string{"AABBCCDDEEFF", "IBC_0011"}; strings.Join(tracked, ",") != strings.Join(want, ",") {
		t.Errorf("tracked = %v, want %v", tracked, want)
	}
	if want := []string{"112233445566", "EDS_99"}; strings.Join(untracked, ",") != strings.Join(want, ",") {
		t.Errorf("untracked = %v, want %v", untracked, want)
	}
}

func TestInitialize_LoaderError(t *testing.T) {
	loadErr := errors.New("database locked")
	_, err := Initialize(context.Background(), mockLoader{err: loadErr})
	if !errors.Is(err, loadErr) {
		t.Errorf("Initialize() error = %v, want wrapped loader error", err)
	}
}

func TestNew_RequiresSetAndSink(t *testing.T) {
	if _, err := New(Options{Sink: &recordingSink{}}); !errors.Is(err, ErrInvalidOptions) {
		t.Errorf("New() without set error = %v, want ErrInvalidOptions", err)
	}
	if _, err := New(Options{Set: NewTrackingSet(nil, nil)}); !errors.Is(err, ErrInvalidOptions) {
		t.Errorf("New() without sink error = %v, want ErrInvalidOptions", err)
	}
}

// Scenario A: an iBeacon payload resolves to the vendor id.
func TestHandleMessage_IBeaconTracked(t *testing.T) {
	sink := &recordingSink{}
	c := newTestCoordinator(t, []device.KnownDevice{
		{MAC: "BLE_" + testMAC, Track: true},
		{MAC: "BLE_" + ibeaconID, Track: true},
	}, false, sink)

	summary, err := c.HandleMessage(context.Background(),
		message(record(testMAC, "-70", "0201061AFF4C000215"+ibeaconBody)))
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if summary.Seen != 1 || summary.Records != 1 {
		t.Errorf("summary = %+v", summary)
	}

	if len(sink.events) != 1 {
		t.Fatalf("sink got %d events, want 1", len(sink.events))
	}
	e := sink.events[0]
	if e.ID != "BLE_"+ibeaconID || e.HostName != e.ID {
		t.Errorf("event id/host = %q/%q", e.ID, e.HostName)
	}
	if e.Attributes["rssi"] != -70 {
		t.Errorf("rssi attribute = %v, want -70", e.Attributes["rssi"])
	}
	if e.SourceType != "bluetooth_le" {
		t.Errorf("SourceType = %q", e.SourceType)
	}
	if !e.SeenAt.Equal(fixedNow) {
		t.Errorf("SeenAt = %v, want %v", e.SeenAt, fixedNow)
	}
}

// Scenario B: no vendor frame falls back to the MAC.
func TestHandleMessage_RawMACFallback(t *testing.T) {
	sink := &recordingSink{}
	c := newTestCoordinator(t, []device.KnownDevice{{MAC: "BLE_" + testMAC, Track: true}}, false, sink)

	if _, err := c.HandleMessage(context.Background(),
		message(record(strings.ToLower(testMAC), "-55", plainPayload))); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}

	if ids := sink.ids(); len(ids) != 1 || ids[0] != "BLE_"+testMAC {
		t.Errorf("sink ids = %v, want [BLE_%s]", ids, testMAC)
	}
}

// Scenario C: unknown devices are never surfaced without track_new.
func TestHandleMessage_UnknownIgnored(t *testing.T) {
	sink := &recordingSink{}
	c := newTestCoordinator(t, nil, false, sink)

	for i := 0; i < 3; i++ {
		summary, err := c.HandleMessage(context.Background(), message(record(testMAC, "-60", plainPayload)))
		if err != nil {
			t.Fatalf("HandleMessage() error = %v", err)
		}
		if summary.Seen != 0 || summary.Discovered != 0 {
			t.Errorf("summary = %+v, want nothing seen", summary)
		}
	}
	if len(sink.events) != 0 {
		t.Errorf("sink got %d events, want 0", len(sink.events))
	}
	if tracked, _ := c.Snapshot(); len(tracked) != 0 {
		t.Errorf("tracked = %v, want empty", tracked)
	}
}

// Scenario D: track_new adds on first sight and keeps reporting.
func TestHandleMessage_TrackNew(t *testing.T) {
	sink := &recordingSink{}
	c := newTestCoordinator(t, nil, true, sink)
	ctx := context.Background()

	first, err := c.HandleMessage(ctx, message(record(testMAC, "-60", plainPayload)))
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if first.Discovered != 1 || first.Seen != 1 {
		t.Errorf("first summary = %+v", first)
	}

	second, err := c.HandleMessage(ctx, message(record(testMAC, "-61", plainPayload)))
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if second.Discovered != 0 || second.Seen != 1 {
		t.Errorf("second summary = %+v", second)
	}

	if len(sink.events) != 2 {
		t.Errorf("sink got %d events, want 2", len(sink.events))
	}
	if tracked, _ := c.Snapshot(); len(tracked) != 1 || tracked[0] != testMAC {
		t.Errorf("tracked = %v, want [%s]", tracked, testMAC)
	}
}

func TestHandleMessage_TrackNewSkipsUntracked(t *testing.T) {
	sink := &recordingSink{}
	c := newTestCoordinator(t, []device.KnownDevice{{MAC: "BLE_" + testMAC, Track: false}}, true, sink)

	summary, err := c.HandleMessage(context.Background(), message(record(testMAC, "-60", plainPayload)))
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if summary.Seen != 0 || summary.Discovered != 0 || len(sink.events) != 0 {
		t.Errorf("opted-out device was reported: summary = %+v", summary)
	}
}

// Scenario E: invalid JSON is dropped and the coordinator keeps working.
func TestHandleMessage_InvalidJSON(t *testing.T) {
	sink := &recordingSink{}
	c := newTestCoordinator(t, []device.KnownDevice{{MAC: "BLE_" + testMAC, Track: true}}, false, sink)
	ctx := context.Background()

	for _, payload := range []string{`not json`, `{"devices":`, `{"devices":{}}`, `{}`} {
		_, err := c.HandleMessage(ctx, []byte(payload))
		if !errors.Is(err, ErrMalformedMessage) {
			t.Errorf("HandleMessage(%q) error = %v, want ErrMalformedMessage", payload, err)
		}
	}
	if len(sink.events) != 0 {
		t.Fatalf("sink got %d events from malformed messages", len(sink.events))
	}

	if _, err := c.HandleMessage(ctx, message(record(testMAC, "-60", plainPayload))); err != nil {
		t.Fatalf("HandleMessage() after malformed error = %v", err)
	}
	if len(sink.events) != 1 {
		t.Errorf("sink got %d events, want 1", len(sink.events))
	}
}

func TestHandleMessage_NullRSSI(t *testing.T) {
	sink := &recordingSink{}
	c := newTestCoordinator(t, []device.KnownDevice{{MAC: "BLE_" + testMAC, Track: true}}, false, sink)

	if _, err := c.HandleMessage(context.Background(), message(record(testMAC, "null", plainPayload))); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if len(sink.events) != 1 {
		t.Fatalf("sink got %d events, want 1", len(sink.events))
	}
	if _, ok := sink.events[0].Attributes["rssi"]; ok {
		t.Error("rssi attribute should be omitted when unknown")
	}
	if _, ok := sink.events[0].RSSI(); ok {
		t.Error("RSSI() should report absent")
	}
}

func TestHandleMessage_BadRecordsSkipped(t *testing.T) {
	sink := &recordingSink{}
	c := newTestCoordinator(t, []device.KnownDevice{
		{MAC: "BLE_" + testMAC, Track: true},
		{MAC: "BLE_112233445566", Track: true},
	}, false, sink)

	summary, err := c.HandleMessage(context.Background(), message(
		record(testMAC, "-60", plainPayload),
		`[2,"AABBCCDDEEFF",-60]`,
		`"garbage"`,
		`[2,"112233445566","loud","02"]`,
		record("112233445566", "-40", plainPayload),
	))
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}

	want := Summary{Records: 5, Seen: 2, Skipped: 3}
	if summary != want {
		t.Errorf("summary = %+v, want %+v", summary, want)
	}
	if ids := sink.ids(); strings.Join(ids, ",") != "BLE_AABBCCDDEEFF,BLE_112233445566" {
		t.Errorf("sink ids = %v, want records in order", ids)
	}
}

func TestHandleMessage_SinkErrorContinues(t *testing.T) {
	sink := &recordingSink{err: errors.New("broker gone")}
	c := newTestCoordinator(t, []device.KnownDevice{
		{MAC: "BLE_" + testMAC, Track: true},
		{MAC: "BLE_112233445566", Track: true},
	}, false, sink)

	summary, err := c.HandleMessage(context.Background(), message(
		record(testMAC, "-60", plainPayload),
		record("112233445566", "-40", plainPayload),
	))
	if err != nil {
		t.Fatalf("HandleMessage() error = %v, sink errors should not surface", err)
	}
	if summary.Seen != 2 || summary.SinkErrors != 2 {
		t.Errorf("summary = %+v, want 2 seen and 2 sink errors", summary)
	}
	if len(sink.events) != 2 {
		t.Errorf("sink got %d events, want 2", len(sink.events))
	}
}

func TestHandleMessage_StrictDecoder(t *testing.T) {
	sink := &recordingSink{}
	set := NewTrackingSet([]string{"IBC_E2C5"}, nil)
	shortPayload := "1AFF4C000215E2C5"

	lenient, err := New(Options{Set: set, Sink: sink})
	if err != nil {
		t.Fatal(err)
	}
	if s, _ := lenient.HandleMessage(context.Background(), message(record(testMAC, "-60", shortPayload))); s.Seen != 1 {
		t.Errorf("lenient summary = %+v, want truncated id seen", s)
	}

	strict, err := New(Options{Set: set, Sink: sink, Decoder: advert.Decoder{Strict: true}})
	if err != nil {
		t.Fatal(err)
	}
	s, err := strict.HandleMessage(context.Background(), message(record(testMAC, "-60", shortPayload)))
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if s.Seen != 0 || s.Skipped != 1 {
		t.Errorf("strict summary = %+v, want record skipped", s)
	}
}

func TestHandleMessage_CanceledContext(t *testing.T) {
	sink := &recordingSink{}
	c := newTestCoordinator(t, []device.KnownDevice{{MAC: "BLE_" + testMAC, Track: true}}, false, sink)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.HandleMessage(ctx, message(record(testMAC, "-60", plainPayload)))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("HandleMessage() error = %v, want context.Canceled", err)
	}
	if len(sink.events) != 0 {
		t.Error("no events should be emitted after cancellation")
	}
}

func TestHandleMessage_Concurrent(t *testing.T) {
	sink := &recordingSink{}
	c := newTestCoordinator(t, []device.KnownDevice{{MAC: "BLE_000000000000", Track: false}}, true, sink)
	ctx := context.Background()

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				mac := fmt.Sprintf("%012X", i%5+1)
				c.HandleMessage(ctx, message( //nolint:errcheck // well-formed input
					record(mac, "-60", plainPayload),
					record("000000000000", "-60", plainPayload),
				))
			}
		}()
	}
	wg.Wait()

	tracked, untracked := c.Snapshot()
	if len(tracked) != 5 {
		t.Errorf("len(tracked) = %d, want 5", len(tracked))
	}
	if len(untracked) != 1 || untracked[0] != "000000000000" {
		t.Errorf("untracked = %v, want [000000000000]", untracked)
	}
	if len(sink.events) != 200 {
		t.Errorf("sink got %d events, want 200", len(sink.events))
	}
}

func TestHandler_SwallowsMalformed(t *testing.T) {
	c := newTestCoordinator(t, nil, false, &recordingSink{})
	h := c.Handler(context.Background())

	if err := h("ab_ble", []byte("{")); err != nil {
		t.Errorf("handler error = %v, malformed messages should not be reported", err)
	}
	if err := h("ab_ble", message()); err != nil {
		t.Errorf("handler error = %v", err)
	}
}

func TestStart(t *testing.T) {
	sink := &recordingSink{}
	c := newTestCoordinator(t, []device.KnownDevice{{MAC: "BLE_" + testMAC, Track: true}}, false, sink)
	sub := &mockSubscriber{connected: true}

	if err := c.Start(context.Background(), sub, "ab_ble", 0); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if sub.topic != "ab_ble" || sub.qos != 0 || sub.handler == nil {
		t.Fatalf("subscription = %q qos %d", sub.topic, sub.qos)
	}

	if err := sub.handler("ab_ble", message(record(testMAC, "-60", plainPayload))); err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if len(sink.events) != 1 {
		t.Errorf("sink got %d events via subscription, want 1", len(sink.events))
	}
}

func TestStart_WaitsForTransport(t *testing.T) {
	c := newTestCoordinator(t, nil, false, &recordingSink{})
	c.transportWait = 2 * time.Second
	sub := &mockSubscriber{connectAfter: 3}

	if err := c.Start(context.Background(), sub, "ab_ble", 1); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if sub.handler == nil {
		t.Error("Start() should subscribe once connected")
	}
}

func TestStart_TransportUnavailable(t *testing.T) {
	c := newTestCoordinator(t, nil, false, &recordingSink{})
	c.transportWait = 50 * time.Millisecond
	sub := &mockSubscriber{}

	err := c.Start(context.Background(), sub, "ab_ble", 0)
	if !errors.Is(err, ErrTransportUnavailable) {
		t.Fatalf("Start() error = %v, want ErrTransportUnavailable", err)
	}
	if sub.handler != nil {
		t.Error("Start() should not subscribe without transport")
	}

	if err := c.Start(context.Background(), nil, "ab_ble", 0); !errors.Is(err, ErrTransportUnavailable) {
		t.Errorf("Start(nil) error = %v, want ErrTransportUnavailable", err)
	}
}

func TestStart_ContextCanceled(t *testing.T) {
	c := newTestCoordinator(t, nil, false, &recordingSink{})
	c.transportWait = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := c.Start(ctx, &mockSubscriber{}, "ab_ble", 0)
	if !errors.Is(err, ErrTransportUnavailable) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Start() error = %v", err)
	}
}

func TestStart_SubscribeError(t *testing.T) {
	c := newTestCoordinator(t, nil, false, &recordingSink{})
	subErr := errors.New("not authorized")

	err := c.Start(context.Background(), &mockSubscriber{connected: true, subscribeErr: subErr}, "ab_ble", 0)
	if !errors.Is(err, subErr) {
		t.Errorf("Start() error = %v, want wrapped subscribe error", err)
	}
}

func TestStop(t *testing.T) {
	c := newTestCoordinator(t, nil, false, &recordingSink{})
	sub := &mockSubscriber{connected: true}

	if err := c.Stop(); err != nil {
		t.Fatalf("Stop() before Start error = %v", err)
	}
	if err := c.Start(context.Background(), sub, "ab_ble", 0); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}

	if len(sub.unsubscribed) != 1 || sub.unsubscribed[0] != "ab_ble" {
		t.Errorf("unsubscribed = %v, want [ab_ble]", sub.unsubscribed)
	}
}

func TestStop_UnsubscribeError(t *testing.T) {
	c := newTestCoordinator(t, nil, false, &recordingSink{})
	unsubErr := errors.New("connection lost")
	sub := &mockSubscriber{connected: true, unsubErr: unsubErr}

	if err := c.Start(context.Background(), sub, "ab_ble", 0); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := c.Stop(); !errors.Is(err, unsubErr) {
		t.Errorf("Stop() error = %v, want wrapped unsubscribe error", err)
	}
}

func TestIsTrackedAndIsKnown(t *testing.T) {
	registry := []device.KnownDevice{
		{MAC: "BLE_" + testMAC, Track: true},
		{MAC: "BLE_112233445566", Track: false},
	}
	c := newTestCoordinator(t, registry, true, &recordingSink{})

	tests := []struct {
		id          string
		wantTracked bool
		wantKnown   bool
	}{
		{testMAC, true, true},
		{"112233445566", false, true},
		{"FFFFFFFFFFFF", false, false},
	}
	for _, tt := range tests {
		if got := c.IsTracked(tt.id); got != tt.wantTracked {
			t.Errorf("IsTracked(%q) = %v, want %v", tt.id, got, tt.wantTracked)
		}
		if got := c.IsKnown(tt.id); got != tt.wantKnown {
			t.Errorf("IsKnown(%q) = %v, want %v", tt.id, got, tt.wantKnown)
		}
	}

	if _, err := c.HandleMessage(context.Background(), message(record("FFFFFFFFFFFF", "-60", plainPayload))); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if !c.IsTracked("FFFFFFFFFFFF") {
		t.Error("discovered device should be tracked")
	}
}
