package mqtt

import (
	"fmt"
	"strings"
)

// Topic defaults for the tracker.
const (
	// DefaultStateTopic is where the AprilBrother gateway publishes advertisement batches.
	DefaultStateTopic = "ab_ble"

	// TopicPrefixTracker is the base for topics owned by the tracker itself.
	TopicPrefixTracker = "ab_ble_tracker"

	// DefaultPresencePrefix is where seen events are republished.
	DefaultPresencePrefix = TopicPrefixTracker + "/presence"
)

// Topics provides builders for tracker MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.Presence("ab_ble_tracker/presence", "BLE_C3A1F0D2E4B5")
//	// Returns: "ab_ble_tracker/presence/BLE_C3A1F0D2E4B5"
type Topics struct{}

// SystemStatus returns the retained online/offline status topic (also the LWT topic).
//
// Example: ab_ble_tracker/status
func (Topics) SystemStatus() string {
	return TopicPrefixTracker + "/status"
}

// GatewayState returns the gateway advertisement topic, falling back to the
// default when stateTopic is blank.
func (Topics) GatewayState(stateTopic string) string {
	if strings.TrimSpace(stateTopic) == "" {
		return DefaultStateTopic
	}
	return stateTopic
}

// Presence returns the topic a seen event for deviceID is published on.
//
// Example: ab_ble_tracker/presence/BLE_EDS_00112233445566778899
func (Topics) Presence(prefix, deviceID string) string {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		prefix = DefaultPresencePrefix
	}
	return fmt.Sprintf("%s/%s", prefix, deviceID)
}
