package nodes

import "context"

// Type classifies a record. It is fixed at insertion.
type Type string

// Record types as they appear in the controller's configuration payload.
const (
	TypeFolder Type = "folder"
	TypeGroup  Type = "group"
	TypeNode   Type = "node"
)

// Valid reports whether t is one of the known record types.
func (t Type) Valid() bool {
	switch t {
	case TypeFolder, TypeGroup, TypeNode:
		return true
	}
	return false
}

// Record is one entry of the node tree.
type Record struct {
	// ID is the controller-assigned address, unique within a registry.
	ID string `json:"id"`

	// Name is the display label. Nodes discovered by a snapshot update
	// have an empty name.
	Name string `json:"name"`

	// Parent is the id of the containing record, or "" for the top level.
	// It is not validated; a dangling parent simply has no visible children.
	Parent string `json:"parent,omitempty"`

	// Type is folder, group or node.
	Type Type `json:"type"`

	// Leaf is nil for folders, a *Group for groups and a *Node for nodes.
	Leaf Leaf `json:"-"`
}

// Child is the (type, name, id) triple returned by View.Children.
type Child struct {
	Type Type   `json:"type"`
	Name string `json:"name"`
	ID   string `json:"id"`
}

// Status change sources.
const (
	SourceSnapshot = "snapshot"
	SourceEvent    = "event"
)

// StatusChange describes a status value that moved during Update or
// ApplyEventMessage.
type StatusChange struct {
	ID       string `json:"id"`
	Old      int    `json:"old"`
	New      int    `json:"new"`
	Source   string `json:"source"`
	Inserted bool   `json:"inserted,omitempty"`
}

// StateFetcher supplies the controller's status snapshot for Update.
//
// A nil payload with a nil error is treated the same as an error: the
// transport had nothing to offer and the registry is left unchanged.
type StateFetcher interface {
	FetchFullState(ctx context.Context) ([]byte, error)
}

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
