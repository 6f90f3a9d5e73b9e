package hierarchy

import (
	"maps"
	"slices"

	"github.com/google/uuid"

	"github.com/roach88/graft/internal/ir"
)

// ID is a node identity. uuid.Nil is never a valid identity.
type ID = uuid.UUID

// Transform is the structural component. Only nodes carrying one may have
// children. Children are weak references resolved through the owning
// Hierarchy; the parent relation is derived by reverse lookup.
type Transform struct {
	Children []ID
}

// Clone returns a copy of the transform. A nil transform stays nil.
func (t *Transform) Clone() *Transform {
	if t == nil {
		return nil
	}
	return &Transform{Children: slices.Clone(t.Children)}
}

// Node is a participant in a hierarchy.
//
// Components are opaque property bags keyed by component type. Identity-valued
// fields inside components must be ir.IRRef so reference rewriting can find them.
type Node struct {
	ID         ID
	Name       string
	Components map[string]ir.IRObject
	Transform  *Transform
}

// NewNode creates a node without components or transform.
func NewNode(id ID, name string) *Node {
	return &Node{ID: id, Name: name, Components: map[string]ir.IRObject{}}
}

// NewGroup creates a node carrying a transform with the given children.
func NewGroup(id ID, name string, children ...ID) *Node {
	n := NewNode(id, name)
	n.Transform = &Transform{Children: slices.Clone(children)}
	return n
}

// Children returns the child list, or nil when the node has no transform.
func (n *Node) Children() []ID {
	if n.Transform == nil {
		return nil
	}
	return n.Transform.Children
}

// SetComponent stores a component, replacing any previous value of that type.
func (n *Node) SetComponent(kind string, fields ir.IRObject) {
	if n.Components == nil {
		n.Components = map[string]ir.IRObject{}
	}
	n.Components[kind] = fields
}

// Clone returns a deep copy with the same identity.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := &Node{
		ID:         n.ID,
		Name:       n.Name,
		Components: make(map[string]ir.IRObject, len(n.Components)),
		Transform:  n.Transform.Clone(),
	}
	for k, v := range n.Components {
		out.Components[k] = v.Clone()
	}
	return out
}

// Equal reports whether two nodes carry the same identity and content.
func (n *Node) Equal(o *Node) bool {
	if n == nil || o == nil {
		return n == o
	}
	if n.ID != o.ID || n.Name != o.Name {
		return false
	}
	if (n.Transform == nil) != (o.Transform == nil) {
		return false
	}
	if !slices.Equal(n.Children(), o.Children()) {
		return false
	}
	if len(n.Components) != len(o.Components) {
		return false
	}
	for k, v := range n.Components {
		w, ok := o.Components[k]
		if !ok || !ir.Equal(v, w) {
			return false
		}
	}
	return true
}

// Refs returns every identity referenced from component fields, ordered
// by component type then field traversal.
func (n *Node) Refs() []ID {
	var out []ID
	for _, kind := range n.componentKinds() {
		out = append(out, ir.Refs(n.Components[kind])...)
	}
	return out
}

// RewriteRefs rewrites child links and every ir.IRRef field through m
// (old identity to new identity). The node's own ID is not touched.
// Targets missing from m are left unchanged and returned, in traversal order.
func (n *Node) RewriteRefs(m map[ID]ID) []ID {
	var unresolved []ID
	lookup := func(id uuid.UUID) (uuid.UUID, bool) {
		to, ok := m[id]
		return to, ok
	}

	if n.Transform != nil {
		for i, child := range n.Transform.Children {
			if to, ok := m[child]; ok {
				n.Transform.Children[i] = to
			} else {
				unresolved = append(unresolved, child)
			}
		}
	}

	for _, kind := range n.componentKinds() {
		rewritten, missing := ir.MapRefs(n.Components[kind], lookup)
		n.Components[kind] = rewritten.(ir.IRObject)
		unresolved = append(unresolved, missing...)
	}
	return unresolved
}

func (n *Node) componentKinds() []string {
	return slices.Sorted(maps.Keys(n.Components))
}

var labelNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("graft:label"))

// LabelID derives a stable identity from a scope and a label (UUIDv5).
// Authoring formats use it for nodes that do not spell out an identity.
func LabelID(scope, label string) ID {
	return uuid.NewSHA1(labelNamespace, []byte(scope+"/"+label))
}
