package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/graft/internal/hierarchy"
	"github.com/roach88/graft/internal/prefab"
	"github.com/roach88/graft/internal/workspace"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, ev := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s nodes=%d", ev.Step, ev.Kind, ev.Nodes)
		if ev.Error != "" {
			fmt.Fprintf(&buf, " error=%s", ev.Error)
		}
		if len(ev.Warnings) > 0 {
			fmt.Fprintf(&buf, " warnings=%s", strings.Join(ev.Warnings, ","))
		}
		buf.WriteByte('\n')
	}

	return buf.String()
}

// AssertionContext provides the final state assertions are checked against.
type AssertionContext struct {
	// Dest is the final destination hierarchy.
	Dest *hierarchy.Hierarchy
	// Resolve maps a scenario label to a destination identity.
	Resolve func(label string) (hierarchy.ID, bool)
	// Last is the most recent successful update, or nil.
	Last *workspace.UpdateResult
}

// lookup returns the destination node for label, or nil.
func (c *AssertionContext) lookup(label string) *hierarchy.Node {
	id, ok := c.Resolve(label)
	if !ok {
		return nil
	}
	return c.Dest.Lookup(id)
}

func assertName(trace []TraceEvent, a Assertion, actx *AssertionContext) error {
	n := actx.lookup(a.Node)
	if n == nil {
		return &AssertionError{
			Type:     AssertName,
			Expected: fmt.Sprintf("node %s named %q", a.Node, a.Equals),
			Actual:   "node not found",
			Trace:    trace,
		}
	}
	if n.Name != a.Equals {
		return &AssertionError{
			Type:     AssertName,
			Expected: fmt.Sprintf("node %s named %q", a.Node, a.Equals),
			Actual:   fmt.Sprintf("named %q", n.Name),
			Trace:    trace,
		}
	}
	return nil
}

func assertAbsent(trace []TraceEvent, a Assertion, actx *AssertionContext) error {
	if n := actx.lookup(a.Node); n != nil {
		return &AssertionError{
			Type:     AssertAbsent,
			Expected: fmt.Sprintf("node %s absent", a.Node),
			Actual:   fmt.Sprintf("present as %s (%q)", n.ID, n.Name),
			Trace:    trace,
		}
	}
	return nil
}

func assertPresent(trace []TraceEvent, a Assertion, actx *AssertionContext) error {
	if actx.lookup(a.Node) == nil {
		return &AssertionError{
			Type:     AssertPresent,
			Expected: fmt.Sprintf("node %s present", a.Node),
			Actual:   "node not found",
			Trace:    trace,
		}
	}
	return nil
}

func assertParent(trace []TraceEvent, a Assertion, actx *AssertionContext) error {
	expected := fmt.Sprintf("node %s under %s", a.Node, a.Parent)
	n := actx.lookup(a.Node)
	if n == nil {
		return &AssertionError{Type: AssertParent, Expected: expected, Actual: "node not found", Trace: trace}
	}
	p := actx.lookup(a.Parent)
	if p == nil {
		return &AssertionError{Type: AssertParent, Expected: expected, Actual: "parent not found", Trace: trace}
	}
	got, ok := actx.Dest.ParentOf(n.ID)
	if !ok {
		return &AssertionError{Type: AssertParent, Expected: expected, Actual: "node is detached", Trace: trace}
	}
	if got.ID != p.ID {
		return &AssertionError{
			Type:     AssertParent,
			Expected: expected,
			Actual:   fmt.Sprintf("under %q", got.Name),
			Trace:    trace,
		}
	}
	return nil
}

func assertWarnings(trace []TraceEvent, a Assertion, actx *AssertionContext) error {
	got := 0
	if actx.Last != nil {
		got = prefab.CountWarnings(actx.Last.Warnings)[prefab.WarningCode(a.Code)]
	}
	if got != a.Count {
		return &AssertionError{
			Type:     AssertWarnings,
			Expected: fmt.Sprintf("%d %s warning(s)", a.Count, a.Code),
			Actual:   fmt.Sprintf("%d", got),
			Trace:    trace,
		}
	}
	return nil
}

func assertConflicts(trace []TraceEvent, a Assertion, actx *AssertionContext) error {
	got := 0
	if actx.Last != nil {
		got = actx.Last.Report.Conflicts
	}
	if got != a.Count {
		return &AssertionError{
			Type:     AssertConflicts,
			Expected: fmt.Sprintf("%d conflict(s)", a.Count),
			Actual:   fmt.Sprintf("%d", got),
			Trace:    trace,
		}
	}
	return nil
}

// EvaluateAssertions runs every assertion against the final state.
// Returns error messages for failed assertions (empty if all pass).
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertName:
			err = assertName(result.Trace, a, actx)
		case AssertAbsent:
			err = assertAbsent(result.Trace, a, actx)
		case AssertPresent:
			err = assertPresent(result.Trace, a, actx)
		case AssertParent:
			err = assertParent(result.Trace, a, actx)
		case AssertWarnings:
			err = assertWarnings(result.Trace, a, actx)
		case AssertConflicts:
			err = assertConflicts(result.Trace, a, actx)
		default:
			err = fmt.Errorf("unknown assertion type: %s", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d: %v", i, err))
		}
	}
	return errs
}
