package harness

import (
	"fmt"

	"github.com/roach88/graft/internal/hierarchy"
	"github.com/roach88/graft/internal/ir"
)

// labelSpace resolves and registers labels for one side of a scenario.
type labelSpace struct {
	// scope derives identities for nodes added by the edit.
	scope string
	// labels receives newly added labels.
	labels  map[string]hierarchy.ID
	resolve func(string) (hierarchy.ID, bool)
}

// applyEdit mutates h in place. Operations run in the order add, rename,
// set, move, remove; within a group, in declaration order (rename by label).
func applyEdit(h *hierarchy.Hierarchy, e *Edit, sp labelSpace) error {
	lookup := func(label string) (*hierarchy.Node, error) {
		id, ok := sp.resolve(label)
		if !ok {
			return nil, fmt.Errorf("unknown label %q", label)
		}
		n := h.Lookup(id)
		if n == nil {
			return nil, fmt.Errorf("node %q is not in the hierarchy", label)
		}
		return n, nil
	}

	for _, op := range e.Add {
		if _, taken := sp.resolve(op.Label); taken {
			return fmt.Errorf("add %q: label already in use", op.Label)
		}
		parent, err := lookup(op.Parent)
		if err != nil {
			return fmt.Errorf("add %q: %w", op.Label, err)
		}
		id := hierarchy.LabelID(sp.scope, op.Label)
		name := op.Name
		if name == "" {
			name = op.Label
		}
		n := hierarchy.NewNode(id, name)
		if op.Group {
			n = hierarchy.NewGroup(id, name)
		}
		if err := h.Add(n); err != nil {
			return fmt.Errorf("add %q: %w", op.Label, err)
		}
		if err := h.Attach(parent.ID, id, -1); err != nil {
			return fmt.Errorf("add %q: %w", op.Label, err)
		}
		sp.labels[op.Label] = id
	}

	for _, label := range sortedKeys(e.Rename) {
		n, err := lookup(label)
		if err != nil {
			return fmt.Errorf("rename: %w", err)
		}
		n.Name = e.Rename[label]
	}

	for _, op := range e.Set {
		n, err := lookup(op.Node)
		if err != nil {
			return fmt.Errorf("set: %w", err)
		}
		val, err := ir.FromGo(resolveRefs(op.Value, sp.resolve))
		if err != nil {
			return fmt.Errorf("set %s.%s.%s: %w", op.Node, op.Component, op.Field, err)
		}
		obj := ir.IRObject{}
		if existing, ok := n.Components[op.Component]; ok {
			obj = existing.Clone()
		}
		obj[op.Field] = val
		n.SetComponent(op.Component, obj)
	}

	for _, op := range e.Move {
		n, err := lookup(op.Node)
		if err != nil {
			return fmt.Errorf("move: %w", err)
		}
		parent, err := lookup(op.Parent)
		if err != nil {
			return fmt.Errorf("move: %w", err)
		}
		h.Detach(n.ID)
		if err := h.Attach(parent.ID, n.ID, -1); err != nil {
			return fmt.Errorf("move %q under %q: %w", op.Node, op.Parent, err)
		}
	}

	for _, label := range e.Remove {
		n, err := lookup(label)
		if err != nil {
			return fmt.Errorf("remove: %w", err)
		}
		h.RemoveSubtree(n.ID)
	}
	return nil
}
