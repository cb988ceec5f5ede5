package mqtt

import (
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// maxPayloadSize caps outbound messages at 1MB.
const maxPayloadSize = 1 << 20

// Publish hands a message to paho and returns without waiting for the broker.
//
// Only validation and connection errors are returned. Delivery is confirmed
// in the background and a failure or timeout is logged, so Publish is safe to
// call from a subscription handler: paho's router cannot deliver the PUBACK
// while that handler is blocked.
//
// Parameters:
//   - topic: e.g. "ab_ble_tracker/presence/BLE_C3A1F0D2E4B5"
//   - payload: at most 1MB
//   - qos: 0, 1 or 2
//   - retained: whether the broker keeps the message for new subscribers
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := validatePublish(topic, payload, qos); err != nil {
		return err
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	go c.confirmDelivery(topic, c.client.Publish(topic, qos, retained, payload))
	return nil
}

// confirmDelivery waits for token and logs when the broker did not take the
// message.
func (c *Client) confirmDelivery(topic string, token pahomqtt.Token) {
	err := awaitToken(token, ErrPublishFailed)
	if err == nil {
		return
	}
	if logger := c.getLogger(); logger != nil {
		logger.Warn("MQTT publish not delivered", "topic", topic, "error", err)
	}
}

func validatePublish(topic string, payload []byte, qos byte) error {
	switch {
	case topic == "":
		return ErrInvalidTopic
	case qos > maxQoS:
		return ErrInvalidQoS
	case len(payload) > maxPayloadSize:
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	return nil
}
