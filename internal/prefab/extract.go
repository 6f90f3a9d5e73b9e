package prefab

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/graft/internal/hierarchy"
)

// Extract deep-copies the subgraph reachable from rootID.
//
// Only the hierarchy's designated root can be extracted; any other identity
// fails with UNSUPPORTED_ROOT before anything is copied. Identities are
// preserved: assigning fresh ones is the remapper's job.
func Extract(h *hierarchy.Hierarchy, rootID hierarchy.ID) (*hierarchy.Hierarchy, error) {
	if h == nil {
		return nil, NewUnsupportedRootError(rootID, uuid.Nil)
	}
	if rootID != h.Root || !h.Contains(rootID) {
		return nil, NewUnsupportedRootError(rootID, h.Root)
	}
	sub, err := h.Subtree(rootID)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	return sub, nil
}
