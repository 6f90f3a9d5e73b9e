package prefab

import (
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/graft/internal/hierarchy"
	"github.com/roach88/graft/internal/merge"
	"github.com/roach88/graft/internal/remap"
)

// Triple is the three views of one tracked node handed to the merger.
// Base and Remote carry source identities here; Update translates them.
type Triple struct {
	SourceID hierarchy.ID
	DestID   hierarchy.ID
	Base     *hierarchy.Node // nil if the node was not in the base snapshot
	Local    *hierarchy.Node // never nil
	Remote   *hierarchy.Node // nil if the node was deleted upstream
}

// Report counts what an Update did.
type Report struct {
	Merged     int // tracked nodes merged and kept
	Removed    int // tracked nodes removed because upstream deleted them
	Skipped    int // tracked nodes already deleted locally
	Added      int // upstream-added nodes attached
	Unattached int // upstream-added nodes left out
	Pruned     int // mapping entries dropped from the new record
	Conflicts  int // fields the policy resolved
}

// UpdateResult is the output of Update.
type UpdateResult struct {
	// Hierarchy is the synchronized destination. The input is untouched.
	Hierarchy *hierarchy.Hierarchy
	// Record replaces the input record.
	Record   *ImportRecord
	Warnings []Warning
	Report   Report
}

// BuildTriples pairs every tracked destination node with its base and
// remote counterparts, in canonical destination order. Tracked nodes that
// were deleted locally get no triple; their count is returned.
func BuildTriples(dest, fresh *hierarchy.Hierarchy, rec *ImportRecord) ([]Triple, int) {
	var (
		triples []Triple
		skipped int
	)
	for _, destID := range rec.DestIDs() {
		local := dest.Lookup(destID)
		if local == nil {
			skipped++
			continue
		}
		srcID := rec.IDMapping[destID]
		triples = append(triples, Triple{
			SourceID: srcID,
			DestID:   destID,
			Base:     rec.Base.Lookup(srcID),
			Local:    local,
			Remote:   fresh.Lookup(srcID),
		})
	}
	return triples, skipped
}

// UpstreamAdded returns the source identities present in fresh but neither
// in the base snapshot nor tracked by the record, in canonical order.
//
// A node in the base but no longer tracked was deleted locally after an
// earlier sync; it is not an addition.
func UpstreamAdded(fresh *hierarchy.Hierarchy, rec *ImportRecord) []hierarchy.ID {
	tracked := make(hierarchy.IDSet, len(rec.IDMapping))
	for _, src := range rec.IDMapping {
		tracked.Add(src)
	}
	var added []hierarchy.ID
	for _, id := range fresh.SortedIDs() {
		if !rec.Base.Contains(id) && !tracked.Contains(id) {
			added = append(added, id)
		}
	}
	return added
}

// Update pulls the current state of the record's source into the instance
// rooted at destRoot.
//
// Every tracked node is merged three ways (base snapshot, local node, fresh
// source node) under policy. Nodes added upstream get fresh identities and are
// attached under their counterpart parent, repeating until no more attach.
// Local deletions win: a tracked node missing from dest is never brought
// back. The parent relation is then reconciled into a forest.
//
// All work happens on a copy of dest. On any fatal error nothing is returned
// and dest and rec are exactly as they were.
func (s *Syncer) Update(source, dest *hierarchy.Hierarchy, destRoot hierarchy.ID, rec *ImportRecord, policy merge.Policy) (*UpdateResult, error) {
	if !policy.Valid() {
		return nil, fmt.Errorf("update: unknown merge policy %q", policy)
	}
	if rec == nil {
		return nil, NewUnknownInstanceError(destRoot, "no import record", nil)
	}
	if dest == nil || !dest.Contains(destRoot) {
		return nil, NewUnknownInstanceError(destRoot, "destination has no such node", nil)
	}
	if rec.Instance != destRoot {
		return nil, NewUnknownInstanceError(destRoot, fmt.Sprintf("record belongs to instance %s", rec.Instance), nil)
	}
	if err := rec.Validate(); err != nil {
		return nil, NewUnknownInstanceError(destRoot, "import record is inconsistent", err)
	}

	fresh, err := Extract(source, rec.SourceRoot)
	if err != nil {
		var pe *Error
		if errors.As(err, &pe) {
			pe.Locator = rec.Source
		}
		return nil, err
	}

	var (
		report   Report
		warnings []Warning
		intents  []Intent
	)

	triples, skipped := BuildTriples(dest, fresh, rec)
	report.Skipped = skipped

	added := UpstreamAdded(fresh, rec)
	assigned, err := remap.Assign(added, s.gen, dest.IDSet(), fresh.IDSet(), rec.Base.IDSet())
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", rec.Source, err)
	}

	toDest := rec.Reverse()
	for src, d := range assigned {
		toDest[src] = d
	}
	translate := func(n *hierarchy.Node) *hierarchy.Node {
		if n == nil {
			return nil
		}
		c := n.Clone()
		if d, ok := toDest[n.ID]; ok {
			c.ID = d
		}
		if c.Transform != nil {
			// Children without a counterpart were deleted locally.
			kept := c.Transform.Children[:0]
			for _, child := range c.Transform.Children {
				if _, ok := toDest[child]; ok {
					kept = append(kept, child)
				}
			}
			c.Transform.Children = kept
		}
		c.RewriteRefs(toDest)
		return c
	}

	s.logger.Debug("update plan",
		"source", rec.Source,
		"instance", destRoot,
		"triples", len(triples),
		"skipped", skipped,
		"added", len(added))

	scratch := dest.Clone()
	var deleted []hierarchy.ID
	keptGone := make(hierarchy.IDSet)
	for _, t := range triples {
		out, err := s.merger.Merge(translate(t.Base), t.Local.Clone(), translate(t.Remote), policy)
		if err != nil {
			return nil, &Error{
				Code:    CodeMergeConflict,
				Message: "merge failed",
				Node:    t.DestID,
				Locator: rec.Source,
				Err:     err,
			}
		}
		for _, c := range out.Conflicts {
			report.Conflicts++
			warnings = append(warnings, Warning{
				Code:    WarnConflict,
				Node:    t.DestID,
				Message: fmt.Sprintf("%s: kept %s", c.Path, c.Resolved),
			})
		}
		if out.Deleted {
			deleted = append(deleted, t.DestID)
			continue
		}
		if out.Node == nil {
			return nil, &Error{
				Code:    CodeMergeConflict,
				Message: "merger returned no node",
				Node:    t.DestID,
				Locator: rec.Source,
			}
		}
		merged := out.Node.Clone()
		merged.ID = t.DestID
		scratch.Put(merged)
		report.Merged++
		if t.Remote == nil {
			keptGone.Add(t.DestID)
		}
		if merged.Transform != nil {
			children := out.Children
			if children == nil {
				children = merged.Children()
			}
			intents = append(intents, Intent{Parent: t.DestID, Children: children})
		}
	}
	for _, id := range deleted {
		if id == destRoot {
			return nil, &Error{
				Code:    CodeMergeConflict,
				Message: "merger deleted the instance root",
				Node:    id,
				Locator: rec.Source,
			}
		}
		scratch.Remove(id)
		report.Removed++
	}
	// Nodes kept after an upstream deletion stay under their local parent.
	for i := range intents {
		intents[i].Children = retain(intents[i].Children, dest.Lookup(intents[i].Parent).Children(), keptGone)
	}

	attached, pending := s.attachAdded(scratch, fresh, added, toDest, translate)
	for _, src := range attached {
		n := scratch.Lookup(toDest[src])
		if n.Transform != nil {
			intents = append(intents, Intent{Parent: n.ID, Children: n.Children()})
		}
	}
	report.Added = len(attached)
	report.Unattached = len(pending)
	freshParent := fresh.ParentIndex()
	for _, src := range pending {
		warnings = append(warnings, Warning{
			Code:    WarnUnattached,
			Node:    toDest[src],
			Parent:  toDest[freshParent[src]],
			Message: "parent is missing locally or has no transform; retried on the next update",
		})
	}

	before := Reachable(dest)
	repairs := Reconcile(scratch, intents)
	warnings = append(warnings, repairs...)
	warnings = append(warnings, detachedRoots(scratch, before, attached, toDest, repairs)...)

	if err := scratch.Validate(); err != nil {
		return nil, &Error{
			Code:    CodeInvalidResult,
			Message: "synchronized hierarchy is not a forest",
			Node:    destRoot,
			Locator: rec.Source,
			Err:     err,
		}
	}

	mapping := make(map[hierarchy.ID]hierarchy.ID, len(rec.IDMapping)+len(attached))
	for destID, srcID := range rec.IDMapping {
		if !scratch.Contains(destID) || (s.pruneStale && !fresh.Contains(srcID)) {
			report.Pruned++
			continue
		}
		mapping[destID] = srcID
	}
	for _, src := range attached {
		mapping[toDest[src]] = src
	}

	next := &ImportRecord{
		Source:     rec.Source,
		SourceRoot: rec.SourceRoot,
		Instance:   rec.Instance,
		Base:       nextBase(fresh, pending),
		IDMapping:  mapping,
	}

	s.logger.Info("instance updated",
		"source", rec.Source,
		"instance", destRoot,
		"policy", policy,
		"merged", report.Merged,
		"removed", report.Removed,
		"added", report.Added,
		"conflicts", report.Conflicts,
		"warnings", len(warnings))

	return &UpdateResult{Hierarchy: scratch, Record: next, Warnings: warnings, Report: report}, nil
}

// attachAdded inserts upstream-added nodes whose parent already has a live
// counterpart with a transform, repeating until a pass attaches nothing.
// Returns the attached and the leftover source identities.
func (s *Syncer) attachAdded(
	scratch, fresh *hierarchy.Hierarchy,
	added []hierarchy.ID,
	toDest map[hierarchy.ID]hierarchy.ID,
	translate func(*hierarchy.Node) *hierarchy.Node,
) (attached, pending []hierarchy.ID) {
	parentOf := fresh.ParentIndex()
	maxPasses := s.maxPasses
	if maxPasses <= 0 {
		maxPasses = len(added) + 1
	}

	pending = added
	for pass := 0; pass < maxPasses && len(pending) > 0; pass++ {
		var next []hierarchy.ID
		for _, src := range pending {
			p, ok := parentOf[src]
			var parent *hierarchy.Node
			if ok {
				parent = scratch.Lookup(toDest[p])
			}
			if parent == nil || parent.Transform == nil {
				next = append(next, src)
				continue
			}
			// Identities were assigned clear of scratch, so Add cannot collide.
			if err := scratch.Add(translate(fresh.Lookup(src))); err != nil {
				next = append(next, src)
				continue
			}
			attached = append(attached, src)
		}
		progress := len(next) < len(pending)
		pending = next
		s.logger.Debug("attach pass", "pass", pass+1, "attached", len(attached), "pending", len(pending))
		if !progress {
			break
		}
	}
	return attached, pending
}

// nextBase is the base snapshot for the following update. Deferred
// additions are left out so that update classifies them as added again.
func nextBase(fresh *hierarchy.Hierarchy, pending []hierarchy.ID) *hierarchy.Hierarchy {
	if len(pending) == 0 {
		return fresh
	}
	base := fresh.Clone()
	for _, src := range pending {
		base.Remove(src)
	}
	return base
}

// detachedRoots reports the top node of every subtree that is a member of h
// but no longer reachable, limited to nodes that were reachable before or
// were just added. Nodes the reconciler already reported are skipped.
func detachedRoots(h *hierarchy.Hierarchy, before hierarchy.IDSet, attached []hierarchy.ID, toDest map[hierarchy.ID]hierarchy.ID, repairs []Warning) []Warning {
	reported := make(hierarchy.IDSet, len(repairs))
	for _, w := range repairs {
		reported.Add(w.Node)
	}

	interesting := make(hierarchy.IDSet, len(before)+len(attached))
	for id := range before {
		interesting.Add(id)
	}
	for _, src := range attached {
		interesting.Add(toDest[src])
	}

	after := Reachable(h)
	parents := h.ParentIndex()
	var out []Warning
	for _, id := range h.SortedIDs() {
		if after.Contains(id) || !interesting.Contains(id) || reported.Contains(id) {
			continue
		}
		if _, hasParent := parents[id]; hasParent {
			continue
		}
		out = append(out, Warning{
			Code:    WarnDetached,
			Node:    id,
			Message: "subtree is no longer reachable from the root",
		})
	}
	return out
}

// retain inserts every member of keep listed in local but missing from
// children, right after its nearest local predecessor already placed.
func retain(children, local []hierarchy.ID, keep hierarchy.IDSet) []hierarchy.ID {
	if len(keep) == 0 {
		return children
	}
	out := slices.Clone(children)
	for i, c := range local {
		if !keep.Contains(c) || slices.Contains(out, c) {
			continue
		}
		at := 0
		for j := i - 1; j >= 0; j-- {
			if k := slices.Index(out, local[j]); k >= 0 {
				at = k + 1
				break
			}
		}
		out = slices.Insert(out, at, c)
	}
	return out
}
