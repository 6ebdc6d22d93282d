package mqtt

import (
	"errors"
	"fmt"
)

// Errors returned by the client. Failures from paho are wrapped, so match
// with errors.Is.
var (
	// ErrNotConnected means the broker link is down. The bridge treats it as
	// a skipped publish, not a failure.
	ErrNotConnected = errors.New("mqtt: not connected to broker")

	// ErrConnectionFailed wraps the cause of a failed initial connect.
	ErrConnectionFailed = errors.New("mqtt: broker connection failed")

	// ErrPublishFailed covers marshalling, oversize payloads, timeouts and
	// broker rejections of a state, event or health message.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed covers a nil handler, timeouts and broker
	// rejections of a relay subscription.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrInvalidRequest is an empty topic or a QoS above 2.
	ErrInvalidRequest = errors.New("mqtt: invalid topic or qos")
)

// checkRequest validates the arguments shared by Publish and Subscribe.
func checkRequest(topic string, qos byte) error {
	if topic == "" {
		return fmt.Errorf("%w: empty topic", ErrInvalidRequest)
	}
	if qos > maxQoS {
		return fmt.Errorf("%w: qos %d", ErrInvalidRequest, qos)
	}
	return nil
}
