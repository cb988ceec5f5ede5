// Package mqtt provides MQTT client connectivity for the AB BLE tracker.
//
// This package manages:
//   - Connection to the broker the BLE gateway publishes to, with auto-reconnect
//   - Subscriptions that survive reconnects
//   - Publishing presence events
//   - Last Will and Testament on ab_ble_tracker/status
//
// # Architecture
//
//	AprilBrother gateway → broker → ab_ble → tracker → ab_ble_tracker/presence/<id>
//
// # Security Considerations
//
//   - Enable TLS (cfg.Broker.TLS=true) when the broker is not on localhost
//   - Pass credentials through ABBLE_MQTT_USERNAME / ABBLE_MQTT_PASSWORD
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.GatewayState("ab_ble"), 0, handler)
package mqtt
