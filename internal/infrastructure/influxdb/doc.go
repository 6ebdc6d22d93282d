// Package influxdb writes node telemetry to InfluxDB v2.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched non-blocking writes and health checks.
//
// Two measurements are written:
//
//	node_status      tags: node_id, source       field: value
//	controller_poll  tags: controller            fields: changes, inserted, duration_ms
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteNodeStatus("14 A7 3B 1", 255, "event")
//
// Connection and health check errors are returned directly. Write errors
// arrive asynchronously through SetOnError.
package influxdb
