package merge

import (
	"slices"

	"github.com/roach88/graft/internal/hierarchy"
)

// MergeChildren merges three versions of an ordered child list.
//
// When only one side changed the list, that side is taken as is. Otherwise
// the result follows remote order, drops children the local side removed,
// and inserts children the local side added right after their nearest
// local predecessor that is already placed. A nil base means every child is
// treated as added by whichever side lists it.
func MergeChildren(base, local, remote []hierarchy.ID) []hierarchy.ID {
	switch {
	case slices.Equal(local, remote), slices.Equal(remote, base):
		return slices.Clone(local)
	case slices.Equal(local, base):
		return slices.Clone(remote)
	}

	inBase := hierarchy.NewIDSet(base...)
	inLocal := hierarchy.NewIDSet(local...)

	out := make([]hierarchy.ID, 0, len(remote)+len(local))
	for _, c := range remote {
		if inBase.Contains(c) && !inLocal.Contains(c) {
			continue
		}
		if !slices.Contains(out, c) {
			out = append(out, c)
		}
	}

	for i, c := range local {
		if inBase.Contains(c) || slices.Contains(out, c) {
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
