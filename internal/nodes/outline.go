package nodes

import (
	"fmt"
	"sort"
	"strings"
)

// Outline formats the subtree under the view as an indented outline.
//
// Children are grouped into folders, then groups, then nodes, each sorted
// by name. Folders, and nodes that have children of their own, open a
// nested block:
//
//	Folder <root>
//	  + Living Room: Folder(1001)
//	  |     Floor Lamp: Node(14 A7 3B 1)
//	  -
//	  All Lights: Group(2001)
//	  Porch: Node(14 A7 3C 1)
func (v View) Outline() string {
	v.reg.mu.RLock()
	defer v.reg.mu.RUnlock()

	var b strings.Builder
	v.reg.writeOutlineLocked(&b, v.root, map[string]bool{})
	return b.String()
}

// writeOutlineLocked renders root and its subtree. seen guards against
// parent cycles in controller data.
func (r *Registry) writeOutlineLocked(b *strings.Builder, root string, seen map[string]bool) {
	seen[root] = true
	defer delete(seen, root)

	b.WriteString(r.labelLocked(root))
	b.WriteByte('\n')

	var folders, groups, nodes []Child
	for _, c := range r.childrenLocked(root) {
		if seen[c.ID] {
			continue
		}
		switch c.Type {
		case TypeFolder:
			folders = append(folders, c)
		case TypeGroup:
			groups = append(groups, c)
		case TypeNode:
			nodes = append(nodes, c)
		}
	}
	byName(folders)
	byName(groups)
	byName(nodes)

	for _, f := range folders {
		fmt.Fprintf(b, "  + %s: Folder(%s)\n", f.Name, f.ID)
		r.writeNestedLocked(b, f.ID, seen)
		b.WriteString("  -\n")
	}

	for _, g := range groups {
		fmt.Fprintf(b, "  %s: Group(%s)\n", g.Name, g.ID)
	}

	for _, n := range nodes {
		if !r.hasChildrenLocked(n.ID) {
			fmt.Fprintf(b, "  %s: Node(%s)\n", n.Name, n.ID)
			continue
		}
		fmt.Fprintf(b, "  + %s: Node(%s)\n", n.Name, n.ID)
		r.writeNestedLocked(b, n.ID, seen)
		b.WriteString("  -\n")
	}
}

// writeNestedLocked renders id's subtree without its header line, each
// line prefixed with a connector.
func (r *Registry) writeNestedLocked(b *strings.Builder, id string, seen map[string]bool) {
	var sub strings.Builder
	r.writeOutlineLocked(&sub, id, seen)

	lines := strings.Split(sub.String(), "\n")
	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		b.WriteString("  |   ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
}

func byName(children []Child) {
	sort.SliceStable(children, func(i, j int) bool {
		return children[i].Name < children[j].Name
	})
}
