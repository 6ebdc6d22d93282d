// Package mqtt provides the MQTT client used to publish node state and
// bridge health, and to receive relayed controller events.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing with QoS and retain control
//   - Subscriptions that are restored after a reconnect
//   - Last Will and Testament (LWT) on the client status topic
//
// # Topics
//
//	graylogic/state/{controller}/{node}   retained node status
//	graylogic/health/{controller}         retained bridge health
//	graylogic/event/{controller}          relayed controller event XML
//	graylogic/system/{client}/status      online/offline (LWT)
//
// Node addresses are escaped with EncodeTopicSegment so that a "/" or a
// wildcard character in an id never changes the topic structure.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topic := mqtt.Topics{}.NodeState("isy", "14 A7 3B 1")
//	err = client.PublishJSON(topic, msg, true)
package mqtt
