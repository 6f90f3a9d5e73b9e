package merge

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/graft/internal/hierarchy"
	"github.com/roach88/graft/internal/ir"
)

var (
	// ErrInvalidInput is returned for a nil local node or an unknown policy.
	ErrInvalidInput = errors.New("invalid merge input")
	// ErrConflict is the hard failure raised for conflicts under Strict.
	ErrConflict = errors.New("conflicting edits")
)

// Conflict marks a field that local and remote changed differently.
// Absent values are nil.
type Conflict struct {
	Path     string
	Base     ir.IRValue
	Local    ir.IRValue
	Remote   ir.IRValue
	Resolved Side
}

// ConflictError is the hard failure returned under Strict.
type ConflictError struct {
	Node      hierarchy.ID
	Conflicts []Conflict
}

func (e *ConflictError) Error() string {
	paths := make([]string, len(e.Conflicts))
	for i, c := range e.Conflicts {
		paths[i] = c.Path
	}
	return fmt.Sprintf("node %s: %d conflicting fields: %s", e.Node, len(e.Conflicts), strings.Join(paths, ", "))
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// Outcome is the result of merging one node.
type Outcome struct {
	// Node is the merged node carrying the local identity. Nil when Deleted.
	Node *hierarchy.Node
	// Children is the intended child list. When nil, the merged node's own
	// transform children are used.
	Children []hierarchy.ID
	// Conflicts lists the fields that needed the policy to decide.
	Conflicts []Conflict
	// Deleted means the node should be removed from the destination.
	Deleted bool
}

// Merger merges one node. base and remote may be nil (no ancestor, deleted
// upstream); local must not be nil. All three carry destination identities
// and are copies the merger may modify.
type Merger interface {
	Merge(base, local, remote *hierarchy.Node, policy Policy) (Outcome, error)
}

// MergerFunc adapts a function to the Merger interface.
type MergerFunc func(base, local, remote *hierarchy.Node, policy Policy) (Outcome, error)

// Merge calls f.
func (f MergerFunc) Merge(base, local, remote *hierarchy.Node, policy Policy) (Outcome, error) {
	return f(base, local, remote, policy)
}

// FieldMerger merges nodes field by field.
//
// A node flattens to the paths "name", "transform" (presence), "<component>"
// (presence) and "<component>.<field>". For each path: if local equals base
// the remote value wins, if remote equals base the local value wins, and
// anything else is a conflict the policy resolves. Child lists are merged
// separately by MergeChildren.
type FieldMerger struct{}

var _ Merger = FieldMerger{}

// Merge implements Merger.
func (FieldMerger) Merge(base, local, remote *hierarchy.Node, policy Policy) (Outcome, error) {
	if local == nil {
		return Outcome{}, fmt.Errorf("%w: local node is required", ErrInvalidInput)
	}
	if !policy.Valid() {
		return Outcome{}, fmt.Errorf("%w: policy %q", ErrInvalidInput, policy)
	}
	if remote == nil {
		return mergeDeletedUpstream(base, local, policy)
	}

	b, l, r := flatten(base), flatten(local), flatten(remote)
	merged := make(map[fieldKey]ir.IRValue, len(l))
	var conflicts []Conflict

	for _, k := range unionKeys(b, l, r) {
		v, c, isConflict := mergeValue(k, b[k], l[k], r[k], policy)
		if isConflict {
			conflicts = append(conflicts, c)
		}
		if v != nil {
			merged[k] = v
		}
	}

	// A component removed on one side but with surviving fields on the
	// other is kept: those fields only survive through a conflict.
	for k := range merged {
		if k.field == "" || k.kind == "" {
			continue
		}
		presence := fieldKey{kind: k.kind}
		if _, ok := merged[presence]; !ok {
			merged[presence] = ir.IRBool(true)
			conflicts = append(conflicts, Conflict{
				Path: presence.String(), Base: b[presence], Local: l[presence], Remote: r[presence], Resolved: SideLocal,
			})
		}
	}
	slices.SortFunc(conflicts, func(x, y Conflict) int { return strings.Compare(x.Path, y.Path) })
	conflicts = slices.CompactFunc(conflicts, func(x, y Conflict) bool { return x.Path == y.Path })

	if policy == Strict && len(conflicts) > 0 {
		return Outcome{Conflicts: conflicts}, &ConflictError{Node: local.ID, Conflicts: conflicts}
	}

	node := unflatten(local.ID, local.Name, merged)
	out := Outcome{Node: node, Conflicts: conflicts}
	if node.Transform != nil {
		var baseChildren []hierarchy.ID
		if base != nil {
			baseChildren = base.Children()
		}
		out.Children = MergeChildren(baseChildren, local.Children(), remote.Children())
		node.Transform.Children = slices.Clone(out.Children)
	}
	return out, nil
}

// mergeDeletedUpstream handles a tracked node that no longer exists in the source.
func mergeDeletedUpstream(base, local *hierarchy.Node, policy Policy) (Outcome, error) {
	keep := Outcome{Node: local.Clone(), Children: slices.Clone(local.Children())}
	if base == nil {
		// Never seen upstream in the last snapshot: nothing to follow.
		return keep, nil
	}

	marker := Conflict{Path: "node", Base: ir.IRBool(true), Local: ir.IRBool(true), Resolved: SideLocal}
	modified := !sameContent(base, local)

	switch {
	case policy == PreferLocal:
		keep.Conflicts = []Conflict{marker}
		return keep, nil
	case !modified:
		return Outcome{Deleted: true}, nil
	case policy == PreferRemote:
		marker.Resolved = SideRemote
		return Outcome{Deleted: true, Conflicts: []Conflict{marker}}, nil
	case policy == Strict:
		return Outcome{Conflicts: []Conflict{marker}}, &ConflictError{Node: local.ID, Conflicts: []Conflict{marker}}
	default:
		keep.Conflicts = []Conflict{marker}
		return keep, nil
	}
}

func mergeValue(k fieldKey, b, l, r ir.IRValue, policy Policy) (ir.IRValue, Conflict, bool) {
	switch {
	case ir.Equal(l, r):
		return l, Conflict{}, false
	case ir.Equal(l, b):
		return r, Conflict{}, false
	case ir.Equal(r, b):
		return l, Conflict{}, false
	}

	c := Conflict{Path: k.String(), Base: b, Local: l, Remote: r}
	side, ok := policy.resolve()
	if !ok {
		return l, c, true
	}
	c.Resolved = side
	if side == SideRemote {
		return r, c, true
	}
	return l, c, true
}

// sameContent compares two nodes ignoring identity.
func sameContent(a, b *hierarchy.Node) bool {
	cp := a.Clone()
	cp.ID = b.ID
	return cp.Equal(b)
}

// fieldKey addresses one flattened field. kind is empty for node-level
// fields; field is empty for a component presence marker.
type fieldKey struct {
	kind  string
	field string
}

func (k fieldKey) String() string {
	switch {
	case k.kind == "":
		return k.field
	case k.field == "":
		return k.kind
	default:
		return k.kind + "." + k.field
	}
}

var (
	keyName      = fieldKey{field: "name"}
	keyTransform = fieldKey{field: "transform"}
)

func flatten(n *hierarchy.Node) map[fieldKey]ir.IRValue {
	if n == nil {
		return nil
	}
	out := map[fieldKey]ir.IRValue{keyName: ir.IRString(n.Name)}
	if n.Transform != nil {
		out[keyTransform] = ir.IRBool(true)
	}
	for kind, fields := range n.Components {
		out[fieldKey{kind: kind}] = ir.IRBool(true)
		for f, v := range fields {
			out[fieldKey{kind: kind, field: f}] = v
		}
	}
	return out
}

func unflatten(id hierarchy.ID, fallbackName string, fields map[fieldKey]ir.IRValue) *hierarchy.Node {
	n := hierarchy.NewNode(id, fallbackName)
	if name, ok := fields[keyName].(ir.IRString); ok {
		n.Name = string(name)
	}
	if _, ok := fields[keyTransform]; ok {
		n.Transform = &hierarchy.Transform{Children: []hierarchy.ID{}}
	}
	for k := range fields {
		if k.kind != "" && k.field == "" {
			n.Components[k.kind] = ir.IRObject{}
		}
	}
	for k, v := range fields {
		if k.kind != "" && k.field != "" {
			n.Components[k.kind][k.field] = ir.Clone(v)
		}
	}
	return n
}

func unionKeys(maps ...map[fieldKey]ir.IRValue) []fieldKey {
	seen := make(map[fieldKey]bool)
	var keys []fieldKey
	for _, m := range maps {
		for k := range m {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	slices.SortFunc(keys, func(a, b fieldKey) int { return strings.Compare(a.String(), b.String()) })
	return keys
}
