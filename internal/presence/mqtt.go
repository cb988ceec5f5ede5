package presence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/abble/ab-ble-tracker/internal/infrastructure/mqtt"
	"github.com/abble/ab-ble-tracker/internal/tracker"
)

// Publisher is the MQTT publish capability. *mqtt.Client satisfies it.
//
// See runs on the transport's message handler, so Publish must not wait for
// the broker's acknowledgement; *mqtt.Client confirms delivery in the
// background.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// MQTTSink publishes seen events as retained JSON messages.
type MQTTSink struct {
	pub    Publisher
	prefix string
	qos    byte
}

// NewMQTTSink creates a sink publishing under prefix. An empty prefix uses
// mqtt.DefaultPresencePrefix.
func NewMQTTSink(pub Publisher, prefix string, qos byte) *MQTTSink {
	return &MQTTSink{pub: pub, prefix: prefix, qos: qos}
}

// Topic returns the topic an event for id is published on.
func (s *MQTTSink) Topic(id string) string {
	return mqtt.Topics{}.Presence(s.prefix, id)
}

// See publishes event to <prefix>/<event.ID>. Only errors raised before the
// message is queued are returned.
func (s *MQTTSink) See(_ context.Context, event tracker.SeenEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding seen event: %w", err)
	}
	if err := s.pub.Publish(s.Topic(event.ID), payload, s.qos, true); err != nil {
		return fmt.Errorf("publishing presence for %s: %w", event.ID, err)
	}
	return nil
}
