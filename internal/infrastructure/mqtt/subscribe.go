package mqtt

import (
	"fmt"
)

// Subscribe registers handler for topic and remembers the subscription so
// handleConnect can restore it after a reconnect.
//
// The node service subscribes once per controller, to the relayed event
// fragments on Topics.NodeEvents:
//
//	err := client.Subscribe(mqtt.Topics{}.NodeEvents("isy"), 1,
//	    func(topic string, payload []byte) error {
//	        _, err := bridge.HandleEvent(ctx, payload)
//	        return err
//	    })
//
// Subscribing the same topic again replaces the handler.
//
// Returns:
//   - error: ErrInvalidRequest, ErrNotConnected, or ErrSubscribeFailed
//     wrapping the broker's answer
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if err := checkRequest(topic, qos); err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler for %s", ErrSubscribeFailed, topic)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.subMu.Lock()
	c.subscriptions[topic] = subscription{topic: topic, qos: qos, handler: handler}
	c.subMu.Unlock()

	token := c.client.Subscribe(topic, qos, c.wrapHandler(handler))
	var err error
	if token.WaitTimeout(defaultPublishTimeout) {
		err = token.Error()
	} else {
		err = fmt.Errorf("timeout after %v", defaultPublishTimeout)
	}
	if err != nil {
		c.forget(topic)
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, topic, err)
	}
	return nil
}

// forget drops a tracked subscription so it is not restored on reconnect.
func (c *Client) forget(topic string) {
	c.subMu.Lock()
	delete(c.subscriptions, topic)
	c.subMu.Unlock()
}
