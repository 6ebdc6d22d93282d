package nodes

import (
	"slices"
	"sync"
)

// StatusHandler is called with the previous and new value whenever a
// non-silent update changes a Status.
type StatusHandler func(old, new int)

// Status holds a node's integer status value.
//
// A locally issued change is recorded as a pending value with Set. Until
// the controller confirms it, ordinary updates that disagree with the
// pending value are ignored; forced updates always land.
//
// Thread Safety: all methods are safe for concurrent use.
type Status struct {
	mu         sync.RWMutex
	value      int
	pending    int
	hasPending bool
	handlers   []StatusHandler
}

// NewStatus creates a Status holding value.
func NewStatus(value int) *Status {
	return &Status{value: value}
}

// Value returns the current value.
func (s *Status) Value() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

// Pending returns the tentative value, if one is outstanding.
func (s *Status) Pending() (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pending, s.hasPending
}

// Set records value as pending until an update confirms or forces over it.
func (s *Status) Set(value int) {
	s.mu.Lock()
	s.pending = value
	s.hasPending = true
	s.mu.Unlock()
}

// Subscribe registers a handler for non-silent value changes.
func (s *Status) Subscribe(handler StatusHandler) {
	if handler == nil {
		return
	}
	s.mu.Lock()
	s.handlers = append(s.handlers, handler)
	s.mu.Unlock()
}

// Update applies a value reported by the controller.
//
// Without force, an outstanding pending value wins unless value matches it.
// With force, value always lands and any pending value is dropped.
// When silent is set no handlers are called.
//
// Returns whether the stored value changed.
func (s *Status) Update(value int, force, silent bool) bool {
	s.mu.Lock()
	if s.hasPending && !force && value != s.pending {
		s.mu.Unlock()
		return false
	}

	old := s.value
	s.value = value
	s.hasPending = false

	var handlers []StatusHandler
	if !silent && old != value {
		handlers = slices.Clone(s.handlers)
	}
	s.mu.Unlock()

	// Handlers run outside the lock so they may read the status.
	for _, h := range handlers {
		h(old, value)
	}

	return old != value
}
