// Package isy connects a node registry to a Universal Devices ISY controller.
//
// It provides:
//   - Client: REST access to /rest/nodes (configuration) and /rest/status
//     (snapshot), with basic auth and optional TLS
//   - EventStream: the /rest/subscribe websocket (subprotocol ISYSUB)
//   - Bridge: loads the tree, polls snapshots, applies events and fans
//     every status change out to MQTT, InfluxDB, SQLite history and
//     websocket subscribers
//   - HealthReporter: retained health on graylogic/health/{controller}
//
// # Architecture
//
//	ISY controller ──REST──▶ Client ──▶ nodes.Registry ◀── Bridge
//	               ──ws────▶ EventStream ─────────────────▲
//	MQTT relay (graylogic/event/{controller}) ────────────┘
//
// Status changes leave the bridge as StateMessage values on
// graylogic/state/{controller}/{address}, retained, at the configured
// mqtt.qos (default 1).
//
// # Usage
//
//	client, err := isy.NewClient(cfg.Controller)
//	bridge, err := isy.NewBridge(isy.Options{
//	    ControllerID: cfg.Controller.ID,
//	    Controller:   client,
//	    Events:       isy.NewEventStream(client, log),
//	    MQTT:         mqttClient,
//	})
//	if err := bridge.Load(ctx); err != nil { ... }
//	if err := bridge.Start(ctx); err != nil { ... }
//	defer bridge.Stop()
package isy
