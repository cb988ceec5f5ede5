package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/abble/ab-ble-tracker/internal/advert"
	"github.com/abble/ab-ble-tracker/internal/device"
	"github.com/abble/ab-ble-tracker/internal/infrastructure/mqtt"
)

// transportPollInterval is how often Start checks the subscriber while waiting.
const transportPollInterval = 100 * time.Millisecond

// Logger defines the logging interface used by the Coordinator.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// DeviceLoader supplies the device registry at startup.
// *device.Registry satisfies it.
type DeviceLoader interface {
	ListDevices(ctx context.Context) ([]device.KnownDevice, error)
}

// Subscriber is the message transport the coordinator listens on.
// *mqtt.Client satisfies it.
type Subscriber interface {
	IsConnected() bool
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Initialize builds the TrackingSet from the device registry.
//
// Only BLE_ entries are considered; the prefix is stripped and the remainder
// uppercased. Entries are partitioned by their track flag. A loader failure
// is returned and the tracker must not start.
func Initialize(ctx context.Context, loader DeviceLoader) (*TrackingSet, error) {
	devices, err := loader.ListDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading device registry: %w", err)
	}

	var tracked, untracked []string
	for _, d := range devices {
		id, ok := d.Identifier()
		if !ok || id == "" {
			continue
		}
		if d.Track {
			tracked = append(tracked, id)
		} else {
			untracked = append(untracked, id)
		}
	}
	return NewTrackingSet(tracked, untracked), nil
}

// Options configures a Coordinator.
type Options struct {
	// Set is the TrackingSet from Initialize. Required.
	Set *TrackingSet
	// Sink receives seen events. Required.
	Sink Sink

	// TrackNew adds unknown identifiers to the tracked set.
	TrackNew bool
	Decoder  advert.Decoder

	// TransportWait bounds how long Start waits for the subscriber.
	TransportWait time.Duration

	Logger  Logger
	Metrics *Metrics

	// Now defaults to time.Now.
	Now func() time.Time
}

// Coordinator turns gateway messages into seen events for tracked devices.
//
// Thread Safety:
//   - HandleMessage may be called from multiple goroutines. Records within
//     one message are processed in order.
type Coordinator struct {
	set           *TrackingSet
	sink          Sink
	trackNew      bool
	decoder       advert.Decoder
	transportWait time.Duration
	logger        Logger
	metrics       *Metrics
	now           func() time.Time

	// Set by Start, cleared by Stop.
	subMu sync.Mutex
	sub   Subscriber
	topic string
}

// Summary reports what HandleMessage did with one message.
type Summary struct {
	Records    int `json:"records"`
	Seen       int `json:"seen"`
	Skipped    int `json:"skipped"`
	Discovered int `json:"discovered"`
	SinkErrors int `json:"sink_errors"`
}

// New creates a Coordinator.
func New(opts Options) (*Coordinator, error) {
	if opts.Set == nil {
		return nil, fmt.Errorf("%w: tracking set is required", ErrInvalidOptions)
	}
	if opts.Sink == nil {
		return nil, fmt.Errorf("%w: sink is required", ErrInvalidOptions)
	}

	c := &Coordinator{
		set:           opts.Set,
		sink:          opts.Sink,
		trackNew:      opts.TrackNew,
		decoder:       opts.Decoder,
		transportWait: opts.TransportWait,
		logger:        opts.Logger,
		metrics:       opts.Metrics,
		now:           opts.Now,
	}
	if c.logger == nil {
		c.logger = noopLogger{}
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.metrics.setSizes(c.set.Counts())
	return c, nil
}

// HandleMessage processes one gateway message.
//
// A message that is not {"devices": [...]} returns ErrMalformedMessage and
// nothing is emitted. Malformed records are skipped and counted; the rest of
// the batch continues. Sink failures are logged and counted but never stop
// the batch or surface as an error.
func (c *Coordinator) HandleMessage(ctx context.Context, payload []byte) (Summary, error) {
	var summary Summary

	records, err := ParseMessage(payload)
	if err != nil {
		c.metrics.message(resultMalformed)
		c.logger.Debug("dropping gateway message", "error", err)
		return summary, err
	}
	c.metrics.message(resultOK)
	summary.Records = len(records)

	for _, raw := range records {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		c.handleRecord(ctx, raw, &summary)
	}
	return summary, nil
}

func (c *Coordinator) handleRecord(ctx context.Context, raw json.RawMessage, summary *Summary) {
	rec, err := ParseRecord(raw)
	if err != nil {
		summary.Skipped++
		c.metrics.record(resultMalformed)
		c.logger.Debug("skipping advertisement record", "error", err)
		return
	}

	id, err := c.decoder.Resolve(rec.MAC, rec.Payload)
	if err != nil {
		summary.Skipped++
		c.metrics.record(resultTruncated)
		c.logger.Debug("skipping advertisement record", "mac", rec.MAC, "error", err)
		return
	}

	tracked, discovered := c.set.Observe(id, c.trackNew)
	if discovered {
		summary.Discovered++
		c.metrics.discoveredDevice()
		c.metrics.setSizes(c.set.Counts())
		c.logger.Info("tracking new device", "id", id, "vendor", advert.Vendor(id))
	}
	if !tracked {
		c.metrics.record(resultIgnored)
		return
	}

	summary.Seen++
	c.metrics.record(resultSeen)
	c.metrics.seenEvent(advert.Vendor(id))

	event := NewSeenEvent(id, rec.RSSI, c.now())
	if err := c.sink.See(ctx, event); err != nil {
		summary.SinkErrors++
		c.metrics.sinkError()
		c.logger.Warn("seen event not fully delivered", "id", event.ID, "error", err)
	}
}

// Handler returns an MQTT handler bound to ctx. Malformed messages are
// already logged by HandleMessage and are not reported back to the client.
func (c *Coordinator) Handler(ctx context.Context) mqtt.MessageHandler {
	return func(_ string, payload []byte) error {
		_, err := c.HandleMessage(ctx, payload)
		if err != nil && !errors.Is(err, ErrMalformedMessage) {
			return err
		}
		return nil
	}
}

// Start waits for sub to be connected and subscribes to topic.
//
// If sub is not connected within the transport wait, ErrTransportUnavailable
// is returned and nothing is subscribed.
//
// Parameters:
//   - ctx: Bounds the wait and is passed to every HandleMessage call
//   - sub: Message transport, usually *mqtt.Client
//   - topic: Gateway state topic
//   - qos: Subscription QoS
func (c *Coordinator) Start(ctx context.Context, sub Subscriber, topic string, qos byte) error {
	if err := c.waitForTransport(ctx, sub); err != nil {
		return err
	}

	if err := sub.Subscribe(topic, qos, c.Handler(ctx)); err != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}

	c.subMu.Lock()
	c.sub, c.topic = sub, topic
	c.subMu.Unlock()

	tracked, untracked := c.set.Counts()
	c.logger.Info("tracking BLE devices",
		"topic", topic,
		"tracked", tracked,
		"untracked", untracked,
		"track_new", c.trackNew,
	)
	return nil
}

// Stop unsubscribes from the topic passed to Start. It is a no-op if Start
// never succeeded, and safe to call more than once.
func (c *Coordinator) Stop() error {
	c.subMu.Lock()
	sub, topic := c.sub, c.topic
	c.sub, c.topic = nil, ""
	c.subMu.Unlock()

	if sub == nil {
		return nil
	}
	if err := sub.Unsubscribe(topic); err != nil {
		return fmt.Errorf("unsubscribing from %s: %w", topic, err)
	}
	c.logger.Info("stopped tracking", "topic", topic)
	return nil
}

func (c *Coordinator) waitForTransport(ctx context.Context, sub Subscriber) error {
	if sub == nil {
		return fmt.Errorf("%w: no subscriber", ErrTransportUnavailable)
	}
	if sub.IsConnected() {
		return nil
	}

	deadline := time.NewTimer(c.transportWait)
	defer deadline.Stop()
	ticker := time.NewTicker(transportPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrTransportUnavailable, ctx.Err())
		case <-deadline.C:
			if sub.IsConnected() {
				return nil
			}
			return fmt.Errorf("%w: not connected after %v", ErrTransportUnavailable, c.transportWait)
		case <-ticker.C:
			if sub.IsConnected() {
				return nil
			}
		}
	}
}

// Snapshot returns the sorted tracked and untracked identifiers.
func (c *Coordinator) Snapshot() (tracked, untracked []string) {
	return c.set.Snapshot()
}

// IsTracked reports whether the resolved identifier id is currently tracked.
func (c *Coordinator) IsTracked(id string) bool {
	return c.set.IsTracked(id)
}

// IsKnown reports whether id is in either the tracked or untracked set.
func (c *Coordinator) IsKnown(id string) bool {
	return c.set.IsKnown(id)
}

// TrackNew reports whether auto-discovery is enabled.
func (c *Coordinator) TrackNew() bool {
	return c.trackNew
}
