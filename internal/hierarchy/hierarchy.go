package hierarchy

import (
	"bytes"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
)

// Sentinel errors for structural edits. Callers match with errors.Is.
var (
	ErrNotFound        = errors.New("node not found")
	ErrNilID           = errors.New("nil node identity")
	ErrDuplicateID     = errors.New("duplicate node identity")
	ErrNoTransform     = errors.New("parent has no transform")
	ErrAlreadyParented = errors.New("child already has a parent")
	ErrCycle           = errors.New("edge would create a cycle")
	ErrRootAsChild     = errors.New("root cannot be a child")
)

// IDSet is a set of identities.
type IDSet map[ID]struct{}

// NewIDSet builds a set from ids.
func NewIDSet(ids ...ID) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Contains reports membership.
func (s IDSet) Contains(id ID) bool {
	_, ok := s[id]
	return ok
}

// Add inserts id.
func (s IDSet) Add(id ID) {
	s[id] = struct{}{}
}

// Sorted returns the members in canonical string order.
func (s IDSet) Sorted() []ID {
	out := make([]ID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	SortIDs(out)
	return out
}

// SortIDs sorts identities by their canonical string form.
// Byte order of a UUID equals the order of its lowercase hex string.
func SortIDs(ids []ID) {
	slices.SortFunc(ids, CompareIDs)
}

// CompareIDs orders identities by byte value.
func CompareIDs(a, b ID) int {
	return bytes.Compare(a[:], b[:])
}

// Hierarchy is an arena of nodes keyed by identity with one designated root.
//
// All links are identities; nodes never point at each other. Nodes that are
// not reachable from Root are allowed (detached subtrees left by
// reconciliation) but still count as members of the hierarchy.
type Hierarchy struct {
	Root  ID
	nodes map[ID]*Node
	order []ID
}

// New creates an empty hierarchy whose designated root will be root.
func New(root ID) *Hierarchy {
	return &Hierarchy{Root: root, nodes: make(map[ID]*Node)}
}

// Add inserts n. The hierarchy takes ownership of the pointer.
func (h *Hierarchy) Add(n *Node) error {
	if n == nil || n.ID == uuid.Nil {
		return ErrNilID
	}
	if _, exists := h.nodes[n.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateID, n.ID)
	}
	h.nodes[n.ID] = n
	h.order = append(h.order, n.ID)
	return nil
}

// Put inserts n or replaces the node with the same identity in place.
func (h *Hierarchy) Put(n *Node) {
	if _, exists := h.nodes[n.ID]; !exists {
		h.order = append(h.order, n.ID)
	}
	h.nodes[n.ID] = n
}

// Lookup returns the node for id, or nil.
func (h *Hierarchy) Lookup(id ID) *Node {
	return h.nodes[id]
}

// Contains reports whether id is a member.
func (h *Hierarchy) Contains(id ID) bool {
	_, ok := h.nodes[id]
	return ok
}

// Len returns the number of nodes.
func (h *Hierarchy) Len() int {
	return len(h.nodes)
}

// IDs returns member identities in insertion order.
func (h *Hierarchy) IDs() []ID {
	return slices.Clone(h.order)
}

// SortedIDs returns member identities in canonical order.
func (h *Hierarchy) SortedIDs() []ID {
	ids := h.IDs()
	SortIDs(ids)
	return ids
}

// IDSet returns the member identities as a set.
func (h *Hierarchy) IDSet() IDSet {
	return NewIDSet(h.order...)
}

// Nodes returns member nodes in insertion order.
func (h *Hierarchy) Nodes() []*Node {
	out := make([]*Node, 0, len(h.order))
	for _, id := range h.order {
		out = append(out, h.nodes[id])
	}
	return out
}

// ChildrenOf returns the resolved children of id in order.
// Dangling child references are skipped.
func (h *Hierarchy) ChildrenOf(id ID) []*Node {
	n := h.nodes[id]
	if n == nil {
		return nil
	}
	out := make([]*Node, 0, len(n.Children()))
	for _, c := range n.Children() {
		if child := h.nodes[c]; child != nil {
			out = append(out, child)
		}
	}
	return out
}

// ParentOf returns the node whose transform lists id, if any.
func (h *Hierarchy) ParentOf(id ID) (*Node, bool) {
	for _, pid := range h.order {
		p := h.nodes[pid]
		if slices.Contains(p.Children(), id) {
			return p, true
		}
	}
	return nil, false
}

// ParentIndex maps every listed child to its first claiming parent.
func (h *Hierarchy) ParentIndex() map[ID]ID {
	idx := make(map[ID]ID, len(h.nodes))
	for _, pid := range h.order {
		for _, c := range h.nodes[pid].Children() {
			if _, seen := idx[c]; !seen {
				idx[c] = pid
			}
		}
	}
	return idx
}

// IsAncestor reports whether anc is a strict ancestor of id.
func (h *Hierarchy) IsAncestor(anc, id ID) bool {
	parents := h.ParentIndex()
	seen := make(map[ID]bool)
	for cur, ok := parents[id]; ok && !seen[cur]; cur, ok = parents[cur] {
		if cur == anc {
			return true
		}
		seen[cur] = true
	}
	return false
}

// Attach links child under parent at index (append when index is out of range).
// The child must currently be detached.
func (h *Hierarchy) Attach(parent, child ID, index int) error {
	p := h.nodes[parent]
	if p == nil {
		return fmt.Errorf("attach parent %s: %w", parent, ErrNotFound)
	}
	if h.nodes[child] == nil {
		return fmt.Errorf("attach child %s: %w", child, ErrNotFound)
	}
	if child == h.Root {
		return ErrRootAsChild
	}
	if p.Transform == nil {
		return fmt.Errorf("attach under %s: %w", parent, ErrNoTransform)
	}
	if _, has := h.ParentOf(child); has {
		return fmt.Errorf("attach %s: %w", child, ErrAlreadyParented)
	}
	if parent == child || h.IsAncestor(child, parent) {
		return fmt.Errorf("attach %s under %s: %w", child, parent, ErrCycle)
	}
	p.Transform.Children = insertAt(p.Transform.Children, index, child)
	return nil
}

// Detach removes child from every transform that lists it.
// Returns the first former parent and the child's index there.
func (h *Hierarchy) Detach(child ID) (ID, int, bool) {
	var (
		former ID
		at     = -1
	)
	for _, pid := range h.order {
		t := h.nodes[pid].Transform
		if t == nil {
			continue
		}
		if i := slices.Index(t.Children, child); i >= 0 {
			if at < 0 {
				former, at = pid, i
			}
			t.Children = slices.DeleteFunc(t.Children, func(c ID) bool { return c == child })
		}
	}
	return former, at, at >= 0
}

// Remove detaches id and deletes it. Its children stay as detached members.
func (h *Hierarchy) Remove(id ID) bool {
	if h.nodes[id] == nil {
		return false
	}
	h.Detach(id)
	delete(h.nodes, id)
	h.order = slices.DeleteFunc(h.order, func(o ID) bool { return o == id })
	return true
}

// RemoveSubtree deletes id and every node reachable from it.
// Returns the removed identities in pre-order.
func (h *Hierarchy) RemoveSubtree(id ID) []ID {
	if h.nodes[id] == nil {
		return nil
	}
	var removed []ID
	h.walk(id, func(n *Node, _ int) bool {
		removed = append(removed, n.ID)
		return true
	})
	h.Detach(id)
	gone := NewIDSet(removed...)
	for _, r := range removed {
		delete(h.nodes, r)
	}
	h.order = slices.DeleteFunc(h.order, gone.Contains)
	return removed
}

// Walk visits nodes reachable from Root in pre-order. Returning false from
// fn skips the node's children. Cycles are visited once.
func (h *Hierarchy) Walk(fn func(n *Node, depth int) bool) {
	h.walk(h.Root, fn)
}

func (h *Hierarchy) walk(from ID, fn func(n *Node, depth int) bool) {
	seen := make(map[ID]bool)
	var visit func(id ID, depth int)
	visit = func(id ID, depth int) {
		n := h.nodes[id]
		if n == nil || seen[id] {
			return
		}
		seen[id] = true
		if !fn(n, depth) {
			return
		}
		for _, c := range n.Children() {
			visit(c, depth+1)
		}
	}
	visit(from, 0)
}

// Clone returns a deep copy with identities preserved.
func (h *Hierarchy) Clone() *Hierarchy {
	out := &Hierarchy{
		Root:  h.Root,
		nodes: make(map[ID]*Node, len(h.nodes)),
		order: slices.Clone(h.order),
	}
	for id, n := range h.nodes {
		out.nodes[id] = n.Clone()
	}
	return out
}

// Subtree deep-copies the nodes reachable from root into a new hierarchy
// rooted there. Child references to absent nodes are copied as they are.
func (h *Hierarchy) Subtree(root ID) (*Hierarchy, error) {
	if h.nodes[root] == nil {
		return nil, fmt.Errorf("subtree %s: %w", root, ErrNotFound)
	}
	out := New(root)
	h.walk(root, func(n *Node, _ int) bool {
		out.nodes[n.ID] = n.Clone()
		out.order = append(out.order, n.ID)
		return true
	})
	return out, nil
}

// Splice moves every node of sub into h and attaches sub.Root under parent
// at index. sub must not be used afterwards.
// Nothing is changed when any identity collides or the attach fails.
func (h *Hierarchy) Splice(sub *Hierarchy, parent ID, index int) error {
	for _, id := range sub.order {
		if h.Contains(id) {
			return fmt.Errorf("splice: %w: %s", ErrDuplicateID, id)
		}
	}
	p := h.nodes[parent]
	if p == nil {
		return fmt.Errorf("splice parent %s: %w", parent, ErrNotFound)
	}
	if p.Transform == nil {
		return fmt.Errorf("splice under %s: %w", parent, ErrNoTransform)
	}
	for _, id := range sub.order {
		h.nodes[id] = sub.nodes[id]
		h.order = append(h.order, id)
	}
	p.Transform.Children = insertAt(p.Transform.Children, index, sub.Root)
	return nil
}

func insertAt(list []ID, index int, id ID) []ID {
	if index < 0 || index >= len(list) {
		return append(list, id)
	}
	return slices.Insert(list, index, id)
}
