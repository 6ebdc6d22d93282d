package nodes

import (
	"context"
	"time"
)

// StatusHistoryEntry is one recorded status change.
type StatusHistoryEntry struct {
	// ID is the auto-incremented primary key for the history row.
	ID int64 `json:"id"`

	// NodeID is the controller address of the node.
	NodeID string `json:"node_id"`

	// Value is the status value after the change.
	Value int `json:"value"`

	// Source is SourceSnapshot or SourceEvent.
	Source string `json:"source"`

	// CreatedAt is the time the change was recorded (UTC).
	CreatedAt time.Time `json:"created_at"`
}

// StatusHistoryRepository stores and retrieves node status history.
//
// Implementations must be thread-safe and use UTC timestamps.
type StatusHistoryRepository interface {
	// RecordStatusChange records a node's new status value.
	RecordStatusChange(ctx context.Context, nodeID string, value int, source string) error

	// GetHistory returns recent entries for the node, newest first.
	GetHistory(ctx context.Context, nodeID string, limit int) ([]StatusHistoryEntry, error)
}
