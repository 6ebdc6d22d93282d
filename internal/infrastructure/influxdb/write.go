package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by this package.
const (
	measurementNodeStatus = "node_status"
	measurementPoll       = "controller_poll"
)

// WriteNodeStatus records one node status change.
//
// The node address and the change source ("snapshot" or "event") are tags;
// the raw integer status is the single field. The write is non-blocking.
//
// Example:
//
//	client.WriteNodeStatus("14 A7 3B 1", 255, "event")
func (c *Client) WriteNodeStatus(nodeID string, value int, source string) {
	c.write(measurementNodeStatus,
		map[string]string{"node_id": nodeID, "source": source},
		map[string]interface{}{"value": value},
	)
}

// WritePollStats records the outcome of one full-state poll against a controller.
//
// Parameters:
//   - controllerID: Controller identifier from config (tag)
//   - changes: Number of status changes the poll produced
//   - inserted: Number of nodes first seen during the poll
//   - duration: Wall time of the fetch and apply
func (c *Client) WritePollStats(controllerID string, changes, inserted int, duration time.Duration) {
	c.write(measurementPoll,
		map[string]string{"controller": controllerID},
		map[string]interface{}{
			"changes":     changes,
			"inserted":    inserted,
			"duration_ms": duration.Milliseconds(),
		},
	)
}

func (c *Client) write(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.isOpen() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}
