package prefab

import (
	"fmt"
	"maps"

	"github.com/roach88/graft/internal/hierarchy"
)

// ImportRecord links an instance in a destination back to its source.
//
// It is created by Import and replaced wholesale by every successful Update.
// Base holds the source subgraph as it was at the last import or sync, with
// source identities, so the next Update can match nodes by source identity.
type ImportRecord struct {
	// Source locates the source asset.
	Source string
	// SourceRoot is the root of the extracted source subgraph.
	SourceRoot hierarchy.ID
	// Instance is the destination identity of the instance root.
	Instance hierarchy.ID
	// Base is the base snapshot. The record owns it exclusively.
	Base *hierarchy.Hierarchy
	// IDMapping maps destination identity to source identity.
	IDMapping map[hierarchy.ID]hierarchy.ID
}

// Reverse returns the source -> destination mapping.
func (r *ImportRecord) Reverse() map[hierarchy.ID]hierarchy.ID {
	out := make(map[hierarchy.ID]hierarchy.ID, len(r.IDMapping))
	for dest, src := range r.IDMapping {
		out[src] = dest
	}
	return out
}

// DestIDs returns the tracked destination identities in canonical order.
func (r *ImportRecord) DestIDs() []hierarchy.ID {
	ids := make([]hierarchy.ID, 0, len(r.IDMapping))
	for id := range r.IDMapping {
		ids = append(ids, id)
	}
	hierarchy.SortIDs(ids)
	return ids
}

// Validate checks the record's internal consistency: a base snapshot rooted
// at SourceRoot, an injective mapping, and the instance mapped to the root.
func (r *ImportRecord) Validate() error {
	if r.Base == nil {
		return fmt.Errorf("import record: missing base snapshot")
	}
	if r.Base.Root != r.SourceRoot {
		return fmt.Errorf("import record: base root %s is not source root %s", r.Base.Root, r.SourceRoot)
	}
	if got, ok := r.IDMapping[r.Instance]; !ok || got != r.SourceRoot {
		return fmt.Errorf("import record: instance %s is not mapped to source root %s", r.Instance, r.SourceRoot)
	}
	seen := make(map[hierarchy.ID]hierarchy.ID, len(r.IDMapping))
	for dest, src := range r.IDMapping {
		if other, dup := seen[src]; dup {
			return fmt.Errorf("import record: source %s mapped from both %s and %s", src, other, dest)
		}
		seen[src] = dest
	}
	return nil
}

// Clone returns a deep copy.
func (r *ImportRecord) Clone() *ImportRecord {
	out := *r
	if r.Base != nil {
		out.Base = r.Base.Clone()
	}
	out.IDMapping = maps.Clone(r.IDMapping)
	return &out
}
