package nodes

import (
	"strconv"
	"strings"
)

// View is a navigable handle into a Registry rooted at one record.
//
// The zero root ("") is the top level. A view holds no data of its own:
// every call resolves through the registry, so views stay live as the
// registry is updated. Two views with the same registry and root are
// interchangeable.
type View struct {
	reg  *Registry
	root string
}

// Registry returns the backing registry.
func (v View) Registry() *Registry { return v.reg }

// Root returns the id the view is rooted at, or "" for the top level.
func (v View) Root() string { return v.root }

// IsTop reports whether the view is rooted at the top level.
func (v View) IsTop() bool { return v.root == "" }

// Record returns the record at the view's root.
// The top level has no record.
func (v View) Record() (Record, bool) {
	if v.IsTop() {
		return Record{}, false
	}
	return v.reg.Record(v.root)
}

// Children returns a (type, name, id) triple for every record whose parent
// is the view's root, in registry order.
func (v View) Children() []Child {
	v.reg.mu.RLock()
	defer v.reg.mu.RUnlock()
	return v.reg.childrenLocked(v.root)
}

// HasChildren reports whether any record has the view's root as parent.
func (v View) HasChildren() bool {
	v.reg.mu.RLock()
	defer v.reg.mu.RUnlock()
	return v.reg.hasChildrenLocked(v.root)
}

// childrenLocked lists the children of parent. The caller must hold a lock.
func (r *Registry) childrenLocked(parent string) []Child {
	var out []Child
	for _, id := range r.order {
		rec := r.records[id]
		if rec.Parent == parent {
			out = append(out, Child{Type: rec.Type, Name: rec.Name, ID: rec.ID})
		}
	}
	return out
}

// hasChildrenLocked reports whether parent has children. The caller must hold a lock.
func (r *Registry) hasChildrenLocked(parent string) bool {
	for _, id := range r.order {
		if r.records[id].Parent == parent {
			return true
		}
	}
	return false
}

// Get resolves key to a new view.
//
// Resolution order:
//  1. a known id (global)
//  2. the first direct child of the root with that name
//  3. an integer position in registry order (global), only when no record
//     anywhere carries key as its name
//
// A name known elsewhere in the tree but not under the root is a miss.
// Returns a *KeyError wrapping ErrUnknownKey when nothing matches.
func (v View) Get(key string) (View, error) {
	if key == "" {
		return View{}, &KeyError{Key: key}
	}

	v.reg.mu.RLock()
	defer v.reg.mu.RUnlock()

	if _, ok := v.reg.records[key]; ok {
		return View{reg: v.reg, root: key}, nil
	}
	if id, ok := v.reg.childByNameLocked(v.root, key); ok {
		return View{reg: v.reg, root: id}, nil
	}
	if v.reg.nameKnownLocked(key) {
		return View{}, &KeyError{Key: key}
	}
	if i, err := strconv.Atoi(key); err == nil {
		if id, ok := v.reg.idAtLocked(i); ok {
			return View{reg: v.reg, root: id}, nil
		}
	}
	return View{}, &KeyError{Key: key}
}

// ByID resolves a record id anywhere in the registry.
func (v View) ByID(id string) (View, error) {
	v.reg.mu.RLock()
	defer v.reg.mu.RUnlock()

	if _, ok := v.reg.records[id]; !ok {
		return View{}, &KeyError{Key: id}
	}
	return View{reg: v.reg, root: id}, nil
}

// ByName resolves the first direct child of the root with the given name.
func (v View) ByName(name string) (View, error) {
	v.reg.mu.RLock()
	defer v.reg.mu.RUnlock()

	id, ok := v.reg.childByNameLocked(v.root, name)
	if !ok {
		return View{}, &KeyError{Key: name}
	}
	return View{reg: v.reg, root: id}, nil
}

// ByIndex resolves a position in registry order. The root is ignored.
func (v View) ByIndex(i int) (View, error) {
	v.reg.mu.RLock()
	defer v.reg.mu.RUnlock()

	id, ok := v.reg.idAtLocked(i)
	if !ok {
		return View{}, &KeyError{Key: strconv.Itoa(i)}
	}
	return View{reg: v.reg, root: id}, nil
}

// Lookup walks a "/"-separated path of keys, resolving each with Get
// relative to the previous result. Empty segments are skipped, so
// "Living Room/Floor Lamp" and "/Living Room/Floor Lamp/" are equivalent.
func (v View) Lookup(path string) (View, error) {
	cur := v
	for _, key := range strings.Split(path, "/") {
		if key == "" {
			continue
		}
		next, err := cur.Get(key)
		if err != nil {
			return View{}, err
		}
		cur = next
	}
	return cur, nil
}

// childByNameLocked finds the first child of parent named name.
func (r *Registry) childByNameLocked(parent, name string) (string, bool) {
	for _, id := range r.order {
		rec := r.records[id]
		if rec.Parent == parent && rec.Name == name {
			return id, true
		}
	}
	return "", false
}

// nameKnownLocked reports whether any record is named name.
func (r *Registry) nameKnownLocked(name string) bool {
	for _, rec := range r.records {
		if rec.Name == name {
			return true
		}
	}
	return false
}

// idAtLocked returns the id at position i.
func (r *Registry) idAtLocked(i int) (string, bool) {
	if i < 0 || i >= len(r.order) {
		return "", false
	}
	return r.order[i], true
}

// Leaf returns the leaf at the view's root.
// The top level and folders have no leaf.
func (v View) Leaf() (Leaf, error) {
	return v.leaf("leaf")
}

// leaf resolves the root's leaf, reporting attr in the error.
func (v View) leaf(attr string) (Leaf, error) {
	if v.IsTop() {
		return nil, &AttributeError{Name: attr}
	}

	v.reg.mu.RLock()
	rec, ok := v.reg.records[v.root]
	v.reg.mu.RUnlock()

	if !ok || rec.Leaf == nil {
		return nil, &AttributeError{Name: attr}
	}
	return rec.Leaf, nil
}

// Node returns the node leaf at the view's root.
func (v View) Node() (*Node, error) {
	leaf, err := v.leaf("node")
	if err != nil {
		return nil, err
	}
	node, ok := leaf.(*Node)
	if !ok {
		return nil, &AttributeError{Name: "node"}
	}
	return node, nil
}

// Group returns the group leaf at the view's root.
func (v View) Group() (*Group, error) {
	leaf, err := v.leaf("group")
	if err != nil {
		return nil, err
	}
	group, ok := leaf.(*Group)
	if !ok {
		return nil, &AttributeError{Name: "group"}
	}
	return group, nil
}

// Status returns the status of the node at the view's root.
func (v View) Status() (*Status, error) {
	leaf, err := v.leaf(AttrStatus)
	if err != nil {
		return nil, err
	}
	node, ok := leaf.(*Node)
	if !ok {
		return nil, &AttributeError{Name: AttrStatus}
	}
	return node.Status(), nil
}

// Attr reads the named attribute from the leaf at the view's root.
func (v View) Attr(name string) (any, error) {
	leaf, err := v.leaf(name)
	if err != nil {
		return nil, err
	}
	val, ok := leaf.Attr(name)
	if !ok {
		return nil, &AttributeError{Name: name}
	}
	return val, nil
}

// SetAttr assigns the named attribute on the leaf at the view's root.
func (v View) SetAttr(name string, value any) error {
	leaf, err := v.leaf(name)
	if err != nil {
		return err
	}
	return leaf.SetAttr(name, value)
}

// String returns a one-line label such as "Folder <root>" or "Node (14 A7 3B 1)".
func (v View) String() string {
	v.reg.mu.RLock()
	defer v.reg.mu.RUnlock()
	return v.reg.labelLocked(v.root)
}

// labelLocked formats the header label for root.
func (r *Registry) labelLocked(root string) string {
	if root == "" {
		return "Folder <root>"
	}
	rec, ok := r.records[root]
	if !ok {
		return "Folder (" + root + ")"
	}
	switch rec.Type {
	case TypeGroup:
		return "Group (" + root + ")"
	case TypeNode:
		return "Node (" + root + ")"
	default:
		return "Folder (" + root + ")"
	}
}
