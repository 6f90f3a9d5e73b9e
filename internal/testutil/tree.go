package testutil

import (
	"fmt"

	"github.com/roach88/graft/internal/hierarchy"
	"github.com/roach88/graft/internal/ir"
)

// Tree builds small hierarchies by label for tests.
//
// Identities are derived with hierarchy.LabelID(scope, label), so the same
// scope and labels always produce the same identities, and node names
// default to the label. Builder methods panic on misuse; they are meant for
// test setup only.
//
// Example:
//
//	src := testutil.NewTree("src", "R").Group("R", "C1").Build()
type Tree struct {
	scope string
	h     *hierarchy.Hierarchy
}

// NewTree starts a tree whose root is a group node labelled root.
func NewTree(scope, root string) *Tree {
	id := hierarchy.LabelID(scope, root)
	h := hierarchy.New(id)
	must(h.Add(hierarchy.NewGroup(id, root)))
	return &Tree{scope: scope, h: h}
}

// Group adds a node with a transform under parent.
func (t *Tree) Group(parent, label string) *Tree {
	return t.add(parent, hierarchy.NewGroup(t.ID(label), label))
}

// Leaf adds a node without a transform under parent.
func (t *Tree) Leaf(parent, label string) *Tree {
	return t.add(parent, hierarchy.NewNode(t.ID(label), label))
}

// Detached adds a group node that has no parent.
func (t *Tree) Detached(label string) *Tree {
	must(t.h.Add(hierarchy.NewGroup(t.ID(label), label)))
	return t
}

// Component sets a component on the labelled node.
func (t *Tree) Component(label, kind string, fields ir.IRObject) *Tree {
	t.node(label).SetComponent(kind, fields)
	return t
}

// ID returns the identity of label in this tree's scope.
func (t *Tree) ID(label string) hierarchy.ID {
	return hierarchy.LabelID(t.scope, label)
}

// Build returns the hierarchy. Later builder calls keep mutating it.
func (t *Tree) Build() *hierarchy.Hierarchy {
	return t.h
}

func (t *Tree) add(parent string, n *hierarchy.Node) *Tree {
	must(t.h.Add(n))
	must(t.h.Attach(t.ID(parent), n.ID, -1))
	return t
}

func (t *Tree) node(label string) *hierarchy.Node {
	n := t.h.Lookup(t.ID(label))
	if n == nil {
		panic(fmt.Sprintf("testutil.Tree: unknown label %q", label))
	}
	return n
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
