package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the base of every topic the service publishes or consumes.
//
// Bridge topics follow the flat scheme graylogic/{category}/{controller}/{id},
// where controller is the configured controller id (default "isy").
const TopicPrefix = "graylogic"

// Topics provides builders for the service's MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.NodeState("isy", "14 A7 3B 1")
//	// Returns: "graylogic/state/isy/14 A7 3B 1"
type Topics struct{}

// NodeState returns the retained state topic of one node.
//
// Example: graylogic/state/isy/14 A7 3B 1
func (Topics) NodeState(controllerID, nodeID string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, controllerID, EncodeTopicSegment(nodeID))
}

// AllNodeStates returns a pattern matching every node state of a controller.
//
// Pattern: graylogic/state/isy/+
func (Topics) AllNodeStates(controllerID string) string {
	return fmt.Sprintf("%s/state/%s/+", TopicPrefix, controllerID)
}

// NodeEvents returns the topic carrying raw controller event fragments
// relayed by another process.
//
// Example: graylogic/event/isy
func (Topics) NodeEvents(controllerID string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefix, controllerID)
}

// BridgeHealth returns the retained health topic of a controller bridge.
//
// Example: graylogic/health/isy
func (Topics) BridgeHealth(controllerID string) string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, controllerID)
}

// ServiceStatus returns the online/offline status topic of an MQTT client.
// It carries the Last Will and Testament.
//
// Example: graylogic/system/isynodes/status
func (Topics) ServiceStatus(clientID string) string {
	return fmt.Sprintf("%s/system/%s/status", TopicPrefix, clientID)
}

var (
	segmentEncoder = strings.NewReplacer("%", "%25", "/", "%2F", "+", "%2B", "#", "%23")
	segmentDecoder = strings.NewReplacer("%25", "%", "%2F", "/", "%2B", "+", "%23", "#")
)

// EncodeTopicSegment escapes the characters that would split a topic level
// or act as a wildcard. Controller addresses normally contain only spaces
// and hex digits, which pass through unchanged.
//
// Example: "scene/1" → "scene%2F1"
func EncodeTopicSegment(s string) string {
	return segmentEncoder.Replace(s)
}

// DecodeTopicSegment reverses EncodeTopicSegment.
func DecodeTopicSegment(s string) string {
	return segmentDecoder.Replace(s)
}
