package nodes

import (
	"fmt"
	"sync"
)

// Registry is the backing store of all records for one controller session.
//
// Records are keyed by id; a separate slice keeps insertion order, which is
// what positional lookup and Children iterate over. Records are never
// removed: the controller rarely retires devices and a full reparse builds
// a fresh registry.
//
// All public methods are thread-safe.
type Registry struct {
	mu      sync.RWMutex
	records map[string]*Record
	order   []string

	fetcher StateFetcher
	logger  Logger
}

// NewRegistry creates an empty registry.
//
// The fetcher supplies snapshots for Update and may be nil when only Parse
// and ApplyEventMessage are used. A nil logger discards all output.
func NewRegistry(fetcher StateFetcher, logger Logger) *Registry {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Registry{
		records: make(map[string]*Record),
		fetcher: fetcher,
		logger:  logger,
	}
}

// Insert adds a record, or replaces the record with the same id in place.
//
// Folders must have a nil leaf; groups need a *Group and nodes a *Node.
// The parent id is not checked.
func (r *Registry) Insert(id, name, parent string, typ Type, leaf Leaf) error {
	if err := validateRecord(id, typ, leaf); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.insertLocked(&Record{ID: id, Name: name, Parent: parent, Type: typ, Leaf: leaf})
	return nil
}

// insertLocked stores rec. The caller must hold the write lock.
func (r *Registry) insertLocked(rec *Record) {
	if _, exists := r.records[rec.ID]; !exists {
		r.order = append(r.order, rec.ID)
	}
	r.records[rec.ID] = rec
}

// validateRecord enforces the type/leaf pairing.
func validateRecord(id string, typ Type, leaf Leaf) error {
	if id == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidRecord)
	}
	switch typ {
	case TypeFolder:
		if leaf != nil {
			return fmt.Errorf("%w: folder %s cannot carry a leaf", ErrInvalidRecord, id)
		}
	case TypeGroup:
		if _, ok := leaf.(*Group); !ok {
			return fmt.Errorf("%w: group %s needs a group leaf", ErrInvalidRecord, id)
		}
	case TypeNode:
		if _, ok := leaf.(*Node); !ok {
			return fmt.Errorf("%w: node %s needs a node leaf", ErrInvalidRecord, id)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidRecord, typ)
	}
	return nil
}

// Len returns the number of records.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Record returns a copy of the record with the given id.
// The copy shares the leaf with the registry.
func (r *Registry) Record(id string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Records returns copies of all records in insertion order.
func (r *Registry) Records() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Record, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.records[id])
	}
	return out
}

// Root returns a view of the top level.
func (r *Registry) Root() View {
	return View{reg: r}
}

// Stats holds record counts by type.
type Stats struct {
	Total   int `json:"total"`
	Folders int `json:"folders"`
	Groups  int `json:"groups"`
	Nodes   int `json:"nodes"`
}

// GetStats returns record counts by type.
func (r *Registry) GetStats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{Total: len(r.order)}
	for _, rec := range r.records {
		switch rec.Type {
		case TypeFolder:
			stats.Folders++
		case TypeGroup:
			stats.Groups++
		case TypeNode:
			stats.Nodes++
		}
	}
	return stats
}
