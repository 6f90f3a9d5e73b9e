package hierarchy

import (
	"fmt"
	"strings"
)

// ProblemKind classifies a structural violation.
type ProblemKind string

const (
	ProblemMissingRoot   ProblemKind = "missing_root"
	ProblemDanglingChild ProblemKind = "dangling_child"
	ProblemSharedChild   ProblemKind = "shared_child"
	ProblemRootHasParent ProblemKind = "root_has_parent"
	ProblemCycle         ProblemKind = "cycle"
)

// Problem is one structural violation found by Validate.
type Problem struct {
	Kind ProblemKind
	Node ID
	// Other is the second participant: the missing child, the second
	// parent, or the node closing the cycle.
	Other ID
}

func (p Problem) String() string {
	return fmt.Sprintf("%s: %s -> %s", p.Kind, p.Node, p.Other)
}

// ValidationError lists every violation of the forest invariant.
type ValidationError struct {
	Problems []Problem
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		parts[i] = p.String()
	}
	return fmt.Sprintf("invalid hierarchy (%d problems): %s", len(e.Problems), strings.Join(parts, "; "))
}

// Validate checks the forest invariant: the root is present and has no
// parent, every child reference resolves, no node is claimed twice, and
// the parent relation has no cycles. Detached members are allowed.
func (h *Hierarchy) Validate() error {
	var problems []Problem

	if h.nodes[h.Root] == nil {
		problems = append(problems, Problem{Kind: ProblemMissingRoot, Node: h.Root})
	}

	parent := make(map[ID]ID, len(h.nodes))
	for _, pid := range h.order {
		for _, c := range h.nodes[pid].Children() {
			switch {
			case h.nodes[c] == nil:
				problems = append(problems, Problem{Kind: ProblemDanglingChild, Node: pid, Other: c})
				continue
			case c == h.Root:
				problems = append(problems, Problem{Kind: ProblemRootHasParent, Node: pid, Other: c})
			}
			if first, dup := parent[c]; dup {
				problems = append(problems, Problem{Kind: ProblemSharedChild, Node: c, Other: first})
				continue
			}
			parent[c] = pid
		}
	}

	// With at most one recorded parent per node, every cycle is found by
	// walking parent links.
	const (
		unvisited = iota
		inProgress
		done
	)
	state := make(map[ID]int, len(h.nodes))
	for _, start := range h.order {
		var path []ID
		cur, closed := start, false
		for {
			if state[cur] == inProgress {
				closed = true
				break
			}
			if state[cur] == done {
				break
			}
			state[cur] = inProgress
			path = append(path, cur)
			p, ok := parent[cur]
			if !ok {
				break
			}
			cur = p
		}
		if closed {
			problems = append(problems, Problem{Kind: ProblemCycle, Node: cur, Other: path[len(path)-1]})
		}
		for _, id := range path {
			state[id] = done
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
