package nodes

import (
	"testing"

	"github.com/go-playground/assert/v2"
)

const wantTopOutline = `Folder <root>
  + Living Room: Folder(1001)
  |     + Kitchen: Folder(1002)
  |     |     Kitchen Scene: Group(2002)
  |     |     + Counter: Node(14 A7 3D 1)
  |     |     |     Counter Button: Node(14 A7 3D 2)
  |     |     -
  |     -
  |     Floor Lamp: Node(14 A7 3B 1)
  -
  All Lights: Group(2001)
  Porch: Node(14 A7 3C 1)
`

func TestOutline_TopLevel(t *testing.T) {
	reg := loadedRegistry(t)
	assert.Equal(t, reg.Root().Outline(), wantTopOutline)
}

func TestOutline_Subtree(t *testing.T) {
	reg := loadedRegistry(t)

	want := `Folder (1002)
  Kitchen Scene: Group(2002)
  + Counter: Node(14 A7 3D 1)
  |     Counter Button: Node(14 A7 3D 2)
  -
`
	assert.Equal(t, mustGet(t, reg.Root(), "1002").Outline(), want)
	assert.Equal(t, mustGet(t, reg.Root(), "14 A7 3C 1").Outline(), "Node (14 A7 3C 1)\n")
}

func TestOutline_SortsByName(t *testing.T) {
	reg := NewRegistry(nil, nil)
	mustInsert := func(id, name string, typ Type, leaf Leaf) {
		t.Helper()
		if err := reg.Insert(id, name, "", typ, leaf); err != nil {
			t.Fatal(err)
		}
	}
	mustInsert("n2", "Zeta", TypeNode, NewNode("n2", 0))
	mustInsert("n1", "Alpha", TypeNode, NewNode("n1", 0))
	mustInsert("g1", "Scene", TypeGroup, NewGroup("g1"))
	mustInsert("f2", "Yard", TypeFolder, nil)
	mustInsert("f1", "Attic", TypeFolder, nil)

	want := `Folder <root>
  + Attic: Folder(f1)
  -
  + Yard: Folder(f2)
  -
  Scene: Group(g1)
  Alpha: Node(n1)
  Zeta: Node(n2)
`
	assert.Equal(t, reg.Root().Outline(), want)
}

func TestOutline_ParentCycle(t *testing.T) {
	reg := NewRegistry(nil, nil)
	if err := reg.Insert("a", "A", "b", TypeFolder, nil); err != nil {
		t.Fatal(err)
	}
	if err := reg.Insert("b", "B", "a", TypeFolder, nil); err != nil {
		t.Fatal(err)
	}

	want := `Folder (a)
  + B: Folder(b)
  -
`
	assert.Equal(t, mustGet(t, reg.Root(), "a").Outline(), want)
}
