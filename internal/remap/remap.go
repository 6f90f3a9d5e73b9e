package remap

import (
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/roach88/graft/internal/hierarchy"
)

// MaxAttempts bounds how many candidates are drawn for one node before
// Assign gives up.
const MaxAttempts = 8

var (
	// ErrIDSpaceExhausted means the generator kept returning reserved identities.
	ErrIDSpaceExhausted = errors.New("identity generator exhausted")
	// ErrEmptySubgraph means the subgraph has no node at its root.
	ErrEmptySubgraph = errors.New("subgraph root is not a member")
)

// Mapping is the bidirectional identity correspondence of one remap.
// Both maps are total over the subgraph's node set and exact inverses.
type Mapping struct {
	Forward map[hierarchy.ID]hierarchy.ID // new -> old
	Reverse map[hierarchy.ID]hierarchy.ID // old -> new
}

// NewMapping builds a Mapping from an old->new assignment.
func NewMapping(reverse map[hierarchy.ID]hierarchy.ID) Mapping {
	forward := make(map[hierarchy.ID]hierarchy.ID, len(reverse))
	for old, fresh := range reverse {
		forward[fresh] = old
	}
	return Mapping{Forward: forward, Reverse: reverse}
}

// Validate checks that Forward and Reverse are exact inverses.
func (m Mapping) Validate() error {
	if len(m.Forward) != len(m.Reverse) {
		return fmt.Errorf("mapping: forward has %d entries, reverse has %d", len(m.Forward), len(m.Reverse))
	}
	for fresh, old := range m.Forward {
		if back, ok := m.Reverse[old]; !ok || back != fresh {
			return fmt.Errorf("mapping: %s -> %s has no inverse", fresh, old)
		}
	}
	return nil
}

// DanglingRef is a reference that points outside the remapped subgraph.
// It is left unchanged in the remapped copy.
type DanglingRef struct {
	Node   hierarchy.ID // remapped identity of the referring node
	Target hierarchy.ID
}

// Result is the output of Remap.
type Result struct {
	Hierarchy *hierarchy.Hierarchy
	Mapping   Mapping
	Dangling  []DanglingRef
}

// Remap assigns a fresh identity to every node of sub and rewrites every
// intra-subgraph reference (child links and ir.IRRef fields) accordingly.
//
// Fresh identities are distinct from every reserved set, from every identity
// already in sub, and from each other. sub is never mutated; the work happens
// on a private deep copy. References leaving the subgraph are kept as they are
// and reported in Result.Dangling.
func Remap(sub *hierarchy.Hierarchy, gen Generator, reserved ...hierarchy.IDSet) (*Result, error) {
	if !sub.Contains(sub.Root) {
		return nil, fmt.Errorf("remap: %w: %s", ErrEmptySubgraph, sub.Root)
	}

	work := sub.Clone()
	oldIDs := work.IDs()

	reverse, err := Assign(oldIDs, gen, append(slices.Clone(reserved), work.IDSet())...)
	if err != nil {
		return nil, fmt.Errorf("remap: %w", err)
	}

	out := hierarchy.New(reverse[work.Root])
	var dangling []DanglingRef
	for _, old := range oldIDs {
		n := work.Lookup(old)
		n.ID = reverse[old]
		for _, target := range n.RewriteRefs(reverse) {
			dangling = append(dangling, DanglingRef{Node: n.ID, Target: target})
		}
		if err := out.Add(n); err != nil {
			return nil, fmt.Errorf("remap: %w", err)
		}
	}

	return &Result{Hierarchy: out, Mapping: NewMapping(reverse), Dangling: dangling}, nil
}

// Assign draws a fresh identity for each id in order and returns old->new.
// A candidate is rejected when it is nil, already issued in this call, or
// present in any reserved set. Repeated ids share one assignment.
func Assign(ids []hierarchy.ID, gen Generator, reserved ...hierarchy.IDSet) (map[hierarchy.ID]hierarchy.ID, error) {
	out := make(map[hierarchy.ID]hierarchy.ID, len(ids))
	issued := make(hierarchy.IDSet, len(ids))

	taken := func(c hierarchy.ID) bool {
		if c == uuid.Nil || issued.Contains(c) {
			return true
		}
		for _, r := range reserved {
			if r.Contains(c) {
				return true
			}
		}
		return false
	}

	for _, old := range ids {
		if _, done := out[old]; done {
			continue
		}
		fresh := uuid.Nil
		for attempt := 0; attempt < MaxAttempts; attempt++ {
			if c := gen.NewID(); !taken(c) {
				fresh = c
				break
			}
		}
		if fresh == uuid.Nil {
			return nil, fmt.Errorf("%w after %d attempts for %s", ErrIDSpaceExhausted, MaxAttempts, old)
		}
		issued.Add(fresh)
		out[old] = fresh
	}
	return out, nil
}
