package nodes

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

// configDoc is the /rest/nodes payload. Decoding into per-type slices
// yields the folders, nodes, groups pass order regardless of how the
// document interleaves them.
type configDoc struct {
	Folders []configEntry `xml:"folder"`
	Nodes   []configEntry `xml:"node"`
	Groups  []configEntry `xml:"group"`
}

type configEntry struct {
	Address    string     `xml:"address"`
	Name       string     `xml:"name"`
	Parent     string     `xml:"parent"`
	Properties []property `xml:"property"`
}

type property struct {
	ID    string `xml:"id,attr"`
	Value string `xml:"value,attr"`
}

// Parse loads the controller's configuration payload into the registry.
//
// Records are appended folders first, then nodes, then groups. Each node
// needs a <property value="..."> giving its initial status.
//
// On failure the error is logged and returned wrapped in
// ErrMalformedPayload. Records inserted before the failing entry are kept.
func (r *Registry) Parse(data []byte) error {
	var doc configDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		r.logger.Error("could not parse nodes, poorly formatted XML", "error", err)
		return fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, f := range doc.Folders {
		if err := r.parseEntry(TypeFolder, f); err != nil {
			return err
		}
	}
	for _, n := range doc.Nodes {
		if err := r.parseEntry(TypeNode, n); err != nil {
			return err
		}
	}
	for _, g := range doc.Groups {
		if err := r.parseEntry(TypeGroup, g); err != nil {
			return err
		}
	}

	r.logger.Info("nodes loaded",
		"folders", len(doc.Folders),
		"nodes", len(doc.Nodes),
		"groups", len(doc.Groups),
	)
	return nil
}

// parseEntry inserts one configuration entry. The caller must hold the write lock.
func (r *Registry) parseEntry(typ Type, e configEntry) error {
	if e.Address == "" {
		r.logger.Error("could not parse nodes, entry without address", "type", typ, "name", e.Name)
		return fmt.Errorf("%w: %s %q has no address", ErrMalformedPayload, typ, e.Name)
	}

	var leaf Leaf
	switch typ {
	case TypeNode:
		if len(e.Properties) == 0 {
			r.logger.Error("could not parse nodes, node without property", "id", e.Address)
			return fmt.Errorf("%w: node %s has no property", ErrMalformedPayload, e.Address)
		}
		value, err := decodeValue(e.Properties[0].Value)
		if err != nil {
			r.logger.Error("could not parse nodes, bad status value", "id", e.Address, "error", err)
			return fmt.Errorf("%w: node %s: %w", ErrMalformedPayload, e.Address, err)
		}
		leaf = NewNode(e.Address, value)
	case TypeGroup:
		leaf = NewGroup(e.Address)
	}

	r.insertLocked(&Record{
		ID:     e.Address,
		Name:   e.Name,
		Parent: e.Parent,
		Type:   typ,
		Leaf:   leaf,
	})
	return nil
}

// decodeValue converts a controller status string to an integer.
// The controller pads values with spaces, each of which stands for a '0'.
func decodeValue(raw string) (int, error) {
	v, err := strconv.Atoi(strings.ReplaceAll(raw, " ", "0"))
	if err != nil {
		return 0, fmt.Errorf("decoding status value %q: %w", raw, err)
	}
	return v, nil
}
