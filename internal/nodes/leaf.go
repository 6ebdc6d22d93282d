package nodes

import "fmt"

// Attribute names exposed through View.Attr.
const (
	AttrAddress = "address"
	AttrStatus  = "status"
	AttrPending = "pending"
)

// Leaf is the device object owned by a group or node record.
//
// Attribute access by name lets a View forward reads and writes to whatever
// leaf sits at its root without knowing the concrete type.
type Leaf interface {
	// Address returns the controller address of the leaf.
	Address() string

	// Type returns TypeGroup or TypeNode.
	Type() Type

	// Attr returns the named attribute and whether the leaf has it.
	Attr(name string) (any, bool)

	// SetAttr assigns the named attribute.
	// Returns an *AttributeError if the leaf has no such writable attribute.
	SetAttr(name string, value any) error
}

// Node is a controllable endpoint with a status value.
type Node struct {
	address string
	status  *Status
}

// NewNode creates a node leaf with an initial status value.
func NewNode(address string, value int) *Node {
	return &Node{
		address: address,
		status:  NewStatus(value),
	}
}

// Address implements Leaf.
func (n *Node) Address() string { return n.address }

// Type implements Leaf.
func (n *Node) Type() Type { return TypeNode }

// Status returns the node's status value.
func (n *Node) Status() *Status { return n.status }

// Attr implements Leaf. Nodes expose address, status and pending;
// pending is nil when no tentative value is outstanding.
func (n *Node) Attr(name string) (any, bool) {
	switch name {
	case AttrAddress:
		return n.address, true
	case AttrStatus:
		return n.status.Value(), true
	case AttrPending:
		if v, ok := n.status.Pending(); ok {
			return v, true
		}
		return nil, true
	}
	return nil, false
}

// SetAttr implements Leaf. Only status is writable; it records a pending value.
func (n *Node) SetAttr(name string, value any) error {
	if name != AttrStatus {
		return &AttributeError{Name: name}
	}
	v, ok := value.(int)
	if !ok {
		return fmt.Errorf("nodes: status must be an int, got %T", value)
	}
	n.status.Set(v)
	return nil
}

// Group is a scene reference. Membership is managed by the controller.
type Group struct {
	address string
}

// NewGroup creates a group leaf.
func NewGroup(address string) *Group {
	return &Group{address: address}
}

// Address implements Leaf.
func (g *Group) Address() string { return g.address }

// Type implements Leaf.
func (g *Group) Type() Type { return TypeGroup }

// Attr implements Leaf. Groups expose only their address.
func (g *Group) Attr(name string) (any, bool) {
	if name == AttrAddress {
		return g.address, true
	}
	return nil, false
}

// SetAttr implements Leaf. Groups have no writable attributes.
func (g *Group) SetAttr(name string, _ any) error {
	return &AttributeError{Name: name}
}
