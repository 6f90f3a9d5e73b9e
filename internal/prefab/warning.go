package prefab

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/graft/internal/hierarchy"
)

// WarningCode categorizes non-fatal diagnostics.
type WarningCode string

const (
	// WarnContested: more than one parent claims the node; it is left detached.
	WarnContested WarningCode = "CONTESTED"
	// WarnNoTransform: a parent without a transform was asked to hold children.
	WarnNoTransform WarningCode = "NO_TRANSFORM"
	// WarnCycle: the edge would close a loop and was dropped.
	WarnCycle WarningCode = "CYCLE"
	// WarnUnattached: a node added upstream found no parent to attach to.
	WarnUnattached WarningCode = "UNATTACHED"
	// WarnDetached: a subtree that used to be attached no longer is.
	WarnDetached WarningCode = "DETACHED"
	// WarnDanglingRef: a reference points outside the imported subgraph.
	WarnDanglingRef WarningCode = "DANGLING_REF"
	// WarnConflict: the merge policy resolved a conflicting field.
	WarnConflict WarningCode = "CONFLICT"
)

// Warning is a non-fatal diagnostic returned alongside a successful result.
// It is a value, never logged and forgotten.
type Warning struct {
	Code    WarningCode
	Node    hierarchy.ID
	Parent  hierarchy.ID
	Message string
}

func (w Warning) String() string {
	if w.Parent != uuid.Nil {
		return fmt.Sprintf("%s %s (parent %s): %s", w.Code, w.Node, w.Parent, w.Message)
	}
	return fmt.Sprintf("%s %s: %s", w.Code, w.Node, w.Message)
}

// CountWarnings tallies warnings by code.
func CountWarnings(ws []Warning) map[WarningCode]int {
	out := make(map[WarningCode]int)
	for _, w := range ws {
		out[w.Code]++
	}
	return out
}
