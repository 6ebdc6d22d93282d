package isy

import (
	"encoding/xml"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-isy/internal/nodes"
)

// Protocol identifier carried in outbound messages.
const protocolISY = "isy"

// controlStatus is the event-stream control code for a node status change.
const controlStatus = "ST"

// StateMessage is published when a node's status changes.
// Topic: graylogic/state/{controller}/{address}
// QoS: mqtt.qos (default 1), Retained: Yes
type StateMessage struct {
	// NodeID is the controller address of the node.
	NodeID string `json:"node_id"`

	// Name is the node's display name. Empty for nodes first seen in a
	// status snapshot.
	Name string `json:"name,omitempty"`

	// Timestamp is when the change was observed (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Status is the raw integer status value.
	Status int `json:"status"`

	// Previous is the value before the change.
	Previous int `json:"previous"`

	// Source is "snapshot", "event" or "load".
	Source string `json:"source"`

	Protocol   string `json:"protocol"`
	Controller string `json:"controller"`
}

// SourceLoad marks state published right after the configuration payload
// was parsed.
const SourceLoad = "load"

// NewStateMessage builds the state message for one status change.
func NewStateMessage(controllerID, name string, change nodes.StatusChange) StateMessage {
	return StateMessage{
		NodeID:     change.ID,
		Name:       name,
		Timestamp:  time.Now().UTC(),
		Status:     change.New,
		Previous:   change.Old,
		Source:     change.Source,
		Protocol:   protocolISY,
		Controller: controllerID,
	}
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	// HealthHealthy indicates the bridge is operating normally.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates the bridge is operating with issues.
	HealthDegraded HealthStatus = "degraded"

	// HealthUnhealthy indicates the bridge is not operating correctly.
	HealthUnhealthy HealthStatus = "unhealthy"

	// HealthOffline indicates the bridge is not connected (from LWT).
	HealthOffline HealthStatus = "offline"

	// HealthStarting indicates the bridge is starting up.
	HealthStarting HealthStatus = "starting"

	// HealthStopping indicates the bridge is shutting down.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports the bridge's operational status.
// Topic: graylogic/health/{controller}
// QoS: mqtt.qos (default 1), Retained: Yes
type HealthMessage struct {
	Bridge        string       `json:"bridge"`
	Timestamp     time.Time    `json:"timestamp"`
	Status        HealthStatus `json:"status"`
	Version       string       `json:"version"`
	UptimeSeconds int64        `json:"uptime_seconds"`

	// Connection describes the controller link.
	Connection *ConnectionStatus `json:"connection,omitempty"`

	// Statistics contains operational counters.
	Statistics *BridgeStatistics `json:"statistics,omitempty"`

	// NodesManaged is the number of records in the registry.
	NodesManaged int `json:"nodes_managed"`

	// Reason explains the status (especially for offline/degraded).
	Reason string `json:"reason,omitempty"`
}

// ConnectionStatus describes the controller link.
type ConnectionStatus struct {
	// Status is "connected" or "disconnected" for the REST interface.
	Status string `json:"status"`

	// Address is the controller base URL.
	Address string `json:"address"`

	// EventStream is "connected", "disconnected" or "disabled".
	EventStream string `json:"event_stream"`

	// LastSuccess is the time of the last successful REST request.
	LastSuccess *time.Time `json:"last_success,omitempty"`
}

// BridgeStatistics contains operational counters.
type BridgeStatistics struct {
	Polls          uint64 `json:"polls"`
	PollFailures   uint64 `json:"poll_failures"`
	EventsReceived uint64 `json:"events_received"`
	EventsApplied  uint64 `json:"events_applied"`
	EventErrors    uint64 `json:"event_errors"`
	StatusChanges  uint64 `json:"status_changes"`
	NodesInserted  uint64 `json:"nodes_inserted"`
}

// NewHealthMessage creates a health message with the given status.
func NewHealthMessage(bridgeID, version string, status HealthStatus, startTime time.Time) HealthMessage {
	return HealthMessage{
		Bridge:        bridgeID,
		Timestamp:     time.Now().UTC(),
		Status:        status,
		Version:       version,
		UptimeSeconds: int64(time.Since(startTime).Seconds()),
	}
}

// NewLWTMessage creates the Last Will and Testament message.
func NewLWTMessage(bridgeID string) HealthMessage {
	return HealthMessage{
		Bridge:    bridgeID,
		Timestamp: time.Now().UTC(),
		Status:    HealthOffline,
		Reason:    "unexpected_disconnect",
	}
}

// eventHeader holds the fields used to route an event-stream fragment.
type eventHeader struct {
	Control string `xml:"control"`
	Node    string `xml:"node"`
}

// StatusEvent reports whether an event-stream fragment is a node status
// change, and the node it refers to. Heartbeats, system events and
// fragments that fail to decode are not status events.
func StatusEvent(data []byte) (string, bool) {
	var h eventHeader
	if err := xml.Unmarshal(data, &h); err != nil {
		return "", false
	}
	node := strings.TrimSpace(h.Node)
	if strings.TrimSpace(h.Control) != controlStatus || node == "" {
		return "", false
	}
	return node, true
}
