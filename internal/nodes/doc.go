// Package nodes provides the node tree for an ISY controller session.
//
// The controller organises its devices into folders, groups (scenes) and
// nodes (physical or virtual endpoints). This package parses that hierarchy
// from the controller's XML configuration, keeps it in a Registry and keeps
// node status values in sync with periodic snapshots and event-stream pushes.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────────┐
//	│                           Registry                               │
//	│                                                                  │
//	│   records: id → Record{Name, Parent, Type, Leaf}                 │
//	│   order:   [id0, id1, id2, ...]   (insertion order = position)   │
//	│                                                                  │
//	│   Parse()              ← /rest/nodes payload                     │
//	│   Update()             ← StateFetcher snapshot (/rest/status)    │
//	│   ApplyEventMessage()  ← event stream <Event> fragment           │
//	└──────────────────────────────────────────────────────────────────┘
//	            ▲
//	            │ View{registry, root}
//	            │
//	   Children() · Get(key) · Lookup(path) · Outline() · Status() · Attr()
//
// A View is a cheap value: a registry pointer plus the id of the record it
// is rooted at ("" is the top level). Views never copy data, so mutations
// made through the registry are visible through every view.
//
// # Key Types
//
//   - Registry: the backing store of all records for one controller session
//   - View: a navigable handle rooted at a record (or the top level)
//   - Record: one folder, group or node
//   - Node, Group: the leaf objects owned by node and group records
//   - Status: a node's integer status value with pending-value semantics
//
// # Usage
//
//	registry := nodes.NewRegistry(client, log)
//	if err := registry.Parse(configXML); err != nil {
//	    return err
//	}
//
//	lamp, err := registry.Root().Lookup("Living Room/Floor Lamp")
//	if err != nil {
//	    return err
//	}
//	status, _ := lamp.Status()
//	fmt.Println(status.Value())
//
//	// Periodic reconciliation
//	changes, err := registry.Update(ctx, 0)
//
// # Thread Safety
//
// Registry operations are serialised by a read-write mutex, so a poller, an
// event-stream listener and API readers may share one registry. Status
// values carry their own lock.
package nodes
