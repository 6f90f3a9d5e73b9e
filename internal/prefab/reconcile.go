package prefab

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/graft/internal/hierarchy"
)

// Intent is one parent's desired child list after a merge.
type Intent struct {
	Parent   hierarchy.ID
	Children []hierarchy.ID
}

// Reconcile rebuilds every transform's child list in h so the parent relation
// is a forest again.
//
// Parents named in intents claim their intended children; every other parent
// claims its current children. Then, per child:
//   - a child that no longer exists is dropped;
//   - a child claimed by two or more parents is attached to none (CONTESTED);
//   - a child claimed by a parent with no transform is dropped (NO_TRANSFORM);
//   - the designated root is never attached (CONTESTED).
//
// Finally any loop left in the parent relation is broken by dropping the edge
// that closes it (CYCLE). Children that end up unclaimed stay in h as
// detached members. Reconcile does not fail: every repair is a Warning.
func Reconcile(h *hierarchy.Hierarchy, intents []Intent) []Warning {
	want := make(map[hierarchy.ID][]hierarchy.ID, len(intents))
	for _, in := range intents {
		want[in.Parent] = in.Children
	}

	order := h.IDs()
	claims := make(map[hierarchy.ID][]hierarchy.ID, len(order))
	claimants := make(map[hierarchy.ID][]hierarchy.ID)
	for _, pid := range order {
		desired, ok := want[pid]
		if !ok {
			desired = h.Lookup(pid).Children()
		}
		desired = dedupe(desired)
		claims[pid] = desired
		for _, c := range desired {
			if h.Contains(c) {
				claimants[c] = append(claimants[c], pid)
			}
		}
	}

	var warnings []Warning
	warned := make(hierarchy.IDSet)
	for _, pid := range order {
		desired := claims[pid]
		parent := h.Lookup(pid)
		final := make([]hierarchy.ID, 0, len(desired))
		for _, c := range desired {
			switch {
			case !h.Contains(c):
				continue
			case c == h.Root:
				warnings = append(warnings, Warning{
					Code: WarnContested, Node: c, Parent: pid,
					Message: "the root cannot be a child",
				})
			case len(claimants[c]) > 1:
				if !warned.Contains(c) {
					warned.Add(c)
					warnings = append(warnings, Warning{
						Code: WarnContested, Node: c, Parent: pid,
						Message: fmt.Sprintf("claimed by %d parents: %s", len(claimants[c]), joinIDs(claimants[c])),
					})
				}
			case parent.Transform == nil:
				warnings = append(warnings, Warning{
					Code: WarnNoTransform, Node: c, Parent: pid,
					Message: "parent has no transform",
				})
			default:
				final = append(final, c)
			}
		}
		if parent.Transform != nil {
			parent.Transform.Children = final
		}
	}

	return append(warnings, breakCycles(h)...)
}

// breakCycles drops the closing edge of every loop. After reconciliation each
// node has at most one parent, so loops are disjoint and one pass suffices.
func breakCycles(h *hierarchy.Hierarchy) []Warning {
	err := h.Validate()
	var verr *hierarchy.ValidationError
	if !errors.As(err, &verr) {
		return nil
	}
	var warnings []Warning
	for _, p := range verr.Problems {
		if p.Kind != hierarchy.ProblemCycle {
			continue
		}
		parent := h.Lookup(p.Node)
		parent.Transform.Children = slices.DeleteFunc(parent.Transform.Children, func(c hierarchy.ID) bool {
			return c == p.Other
		})
		warnings = append(warnings, Warning{
			Code: WarnCycle, Node: p.Other, Parent: p.Node,
			Message: "edge would close a loop",
		})
	}
	return warnings
}

// Reachable returns the identities reachable from h.Root.
func Reachable(h *hierarchy.Hierarchy) hierarchy.IDSet {
	out := make(hierarchy.IDSet, h.Len())
	h.Walk(func(n *hierarchy.Node, _ int) bool {
		out.Add(n.ID)
		return true
	})
	return out
}

func dedupe(ids []hierarchy.ID) []hierarchy.ID {
	seen := make(hierarchy.IDSet, len(ids))
	out := make([]hierarchy.ID, 0, len(ids))
	for _, id := range ids {
		if seen.Contains(id) {
			continue
		}
		seen.Add(id)
		out = append(out, id)
	}
	return out
}

func joinIDs(ids []hierarchy.ID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, ", ")
}
