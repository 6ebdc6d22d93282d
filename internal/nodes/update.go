package nodes

import (
	"context"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// snapshotDoc is the /rest/status payload.
type snapshotDoc struct {
	Nodes []snapshotNode `xml:"node"`
}

type snapshotNode struct {
	ID         string     `xml:"id,attr"`
	Properties []property `xml:"property"`
}

// eventDoc is an event-stream fragment. Only the node id and the action
// value are consumed.
type eventDoc struct {
	Node   string `xml:"node"`
	Action string `xml:"action"`
}

// Update reconciles the registry against a fresh status snapshot.
//
// It waits for wait first (a courtesy to the controller; the wait ends early
// if ctx is cancelled), then fetches the snapshot. Known nodes get a silent,
// non-forced status update so outstanding pending values are respected.
// Unknown ids are inserted as top-level nodes with an empty name.
// Records missing from the snapshot are left alone.
//
// A failed fetch is logged as a warning and returns ErrTransportUnavailable;
// an undecodable snapshot returns ErrMalformedPayload. In both cases the
// registry is unchanged.
//
// Returns:
//   - []StatusChange: values that moved and nodes that were inserted
//   - error: transport or payload failure
func (r *Registry) Update(ctx context.Context, wait time.Duration) ([]StatusChange, error) {
	if wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("waiting before update: %w", ctx.Err())
		case <-timer.C:
		}
	}

	data, err := r.fetch(ctx)
	if err != nil {
		r.logger.Warn("failed to update nodes", "error", err)
		return nil, err
	}

	var doc snapshotDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		r.logger.Error("could not parse nodes, poorly formatted XML", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var changes []StatusChange
	for _, entry := range doc.Nodes {
		if change, ok := r.applySnapshotEntry(entry); ok {
			changes = append(changes, change)
		}
	}

	r.logger.Info("nodes updated", "entries", len(doc.Nodes), "changes", len(changes))
	return changes, nil
}

// fetch asks the state fetcher for a snapshot.
func (r *Registry) fetch(ctx context.Context) ([]byte, error) {
	if r.fetcher == nil {
		return nil, fmt.Errorf("%w: no state fetcher configured", ErrTransportUnavailable)
	}
	data, err := r.fetcher.FetchFullState(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransportUnavailable, err)
	}
	if data == nil {
		return nil, fmt.Errorf("%w: empty response", ErrTransportUnavailable)
	}
	return data, nil
}

// applySnapshotEntry applies one snapshot node. The caller must hold the
// write lock. Entries that cannot be decoded are skipped.
func (r *Registry) applySnapshotEntry(entry snapshotNode) (StatusChange, bool) {
	if entry.ID == "" || len(entry.Properties) == 0 {
		r.logger.Warn("skipping snapshot entry without id or property", "id", entry.ID)
		return StatusChange{}, false
	}
	value, err := decodeValue(entry.Properties[0].Value)
	if err != nil {
		r.logger.Warn("skipping snapshot entry with bad value", "id", entry.ID, "error", err)
		return StatusChange{}, false
	}

	rec, known := r.records[entry.ID]
	if !known {
		r.insertLocked(&Record{
			ID:   entry.ID,
			Type: TypeNode,
			Leaf: NewNode(entry.ID, value),
		})
		r.logger.Debug("node discovered by snapshot", "id", entry.ID, "value", value)
		return StatusChange{ID: entry.ID, New: value, Source: SourceSnapshot, Inserted: true}, true
	}

	node, ok := rec.Leaf.(*Node)
	if !ok {
		r.logger.Warn("snapshot references a non-node record", "id", entry.ID, "type", rec.Type)
		return StatusChange{}, false
	}

	old := node.status.Value()
	if !node.status.Update(value, false, true) {
		return StatusChange{}, false
	}
	return StatusChange{ID: entry.ID, Old: old, New: node.status.Value(), Source: SourceSnapshot}, true
}

// ApplyEventMessage applies a single-node update pushed by the event stream.
//
// The fragment carries the node id in <node> and the new value in <action>.
// The value is forced over any pending value and no handlers are notified:
// event-stream messages are the controller's real-time truth.
//
// Returns:
//   - StatusChange: the node's previous and new value
//   - error: ErrMalformedPayload for an undecodable fragment, ErrUnknownID
//     if the node was never loaded
func (r *Registry) ApplyEventMessage(data []byte) (StatusChange, error) {
	var doc eventDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return StatusChange{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	value, err := strconv.Atoi(strings.TrimSpace(doc.Action))
	if err != nil {
		return StatusChange{}, fmt.Errorf("%w: action %q: %w", ErrMalformedPayload, doc.Action, err)
	}

	id := strings.TrimSpace(doc.Node)

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return StatusChange{}, fmt.Errorf("%w: %s", ErrUnknownID, id)
	}
	node, ok := rec.Leaf.(*Node)
	if !ok {
		return StatusChange{}, fmt.Errorf("node %s: %w", id, &AttributeError{Name: AttrStatus})
	}

	old := node.status.Value()
	node.status.Update(value, true, true)
	r.logger.Debug("node updated from event", "id", id, "value", value)

	return StatusChange{ID: id, Old: old, New: value, Source: SourceEvent}, nil
}
