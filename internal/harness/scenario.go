package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/graft/internal/merge"
)

// Scenario defines a sync conformance scenario.
// A scenario imports a labelled source tree into a destination, edits
// either side, runs updates, and asserts on the final destination.
type Scenario struct {
	// Name uniquely identifies this scenario. Also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Source is the prefab tree. Labels become stable identities.
	Source Tree `yaml:"source"`

	// Dest is the destination scene. Defaults to a lone root labelled "Scene".
	Dest *Tree `yaml:"dest,omitempty"`

	// Steps run in order. The first step must be an import.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final destination and the last update.
	Assertions []Assertion `yaml:"assertions"`
}

// Tree declares a labelled hierarchy.
type Tree struct {
	Root  string              `yaml:"root"`
	Nodes map[string]NodeSpec `yaml:"nodes"`
}

// NodeSpec declares one node. A node has a transform when it lists
// children or sets group.
type NodeSpec struct {
	Name       string                    `yaml:"name,omitempty"`
	Children   []string                  `yaml:"children,omitempty"`
	Group      bool                      `yaml:"group,omitempty"`
	Components map[string]map[string]any `yaml:"components,omitempty"`
}

// Step is one scenario step. Exactly one field must be set.
type Step struct {
	Import     *ImportStep `yaml:"import,omitempty"`
	EditSource *Edit       `yaml:"edit_source,omitempty"`
	EditDest   *Edit       `yaml:"edit_dest,omitempty"`
	Update     *UpdateStep `yaml:"update,omitempty"`
}

// ImportStep imports the source under a destination node.
type ImportStep struct {
	// Parent is a destination label. Defaults to the destination root.
	Parent string `yaml:"parent,omitempty"`
}

// UpdateStep runs a sync session.
type UpdateStep struct {
	Policy string `yaml:"policy,omitempty"`
	// ExpectError is the error code the update must fail with.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Edit mutates one side. Operations apply in field order: add, rename,
// set, move, remove.
type Edit struct {
	Add    []AddOp           `yaml:"add,omitempty"`
	Rename map[string]string `yaml:"rename,omitempty"`
	Set    []SetOp           `yaml:"set,omitempty"`
	Move   []MoveOp          `yaml:"move,omitempty"`
	Remove []string          `yaml:"remove,omitempty"`
}

// AddOp adds a new node under parent.
type AddOp struct {
	Label  string `yaml:"label"`
	Parent string `yaml:"parent"`
	Name   string `yaml:"name,omitempty"`
	Group  bool   `yaml:"group,omitempty"`
}

// SetOp sets one component field.
type SetOp struct {
	Node      string `yaml:"node"`
	Component string `yaml:"component"`
	Field     string `yaml:"field"`
	Value     any    `yaml:"value"`
}

// MoveOp reparents a node.
type MoveOp struct {
	Node   string `yaml:"node"`
	Parent string `yaml:"parent"`
}

// Assertion validates the final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "name": Node exists and has the given name
	// - "absent": Node does not exist in the destination
	// - "present": Node exists in the destination
	// - "parent": Node is attached under Parent
	// - "warnings": The last update produced Count warnings with Code
	// - "conflicts": The last update reported Count conflicts
	Type string `yaml:"type"`

	// Node is a label (source labels resolve through the import mapping).
	Node string `yaml:"node,omitempty"`

	// Equals is the expected name (used by name).
	Equals string `yaml:"equals,omitempty"`

	// Parent is the expected parent label (used by parent).
	Parent string `yaml:"parent,omitempty"`

	// Code is the warning code (used by warnings).
	Code string `yaml:"code,omitempty"`

	// Count is the expected number (used by warnings, conflicts).
	Count int `yaml:"count"`
}

// Assertion type constants.
const (
	AssertName      = "name"
	AssertAbsent    = "absent"
	AssertPresent   = "present"
	AssertParent    = "parent"
	AssertWarnings  = "warnings"
	AssertConflicts = "conflicts"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks required fields and step shape.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if err := validateTree("source", &s.Source); err != nil {
		return err
	}
	if s.Dest != nil {
		if err := validateTree("dest", s.Dest); err != nil {
			return err
		}
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("at least one step is required")
	}
	if s.Steps[0].Import == nil {
		return fmt.Errorf("steps[0]: first step must be an import")
	}
	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateTree(field string, t *Tree) error {
	if t.Root == "" {
		return fmt.Errorf("%s.root is required", field)
	}
	if _, ok := t.Nodes[t.Root]; !ok {
		return fmt.Errorf("%s.root %q is not a declared node", field, t.Root)
	}
	for label, n := range t.Nodes {
		for _, c := range n.Children {
			if _, ok := t.Nodes[c]; !ok {
				return fmt.Errorf("%s.nodes.%s: unknown child %q", field, label, c)
			}
		}
	}
	return nil
}

func validateStep(index int, step Step) error {
	set := 0
	for _, present := range []bool{step.Import != nil, step.EditSource != nil, step.EditDest != nil, step.Update != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("steps[%d]: exactly one of import, edit_source, edit_dest, update is required", index)
	}
	if step.Update != nil {
		if _, err := merge.ParsePolicy(step.Update.Policy); err != nil {
			return fmt.Errorf("steps[%d]: %w", index, err)
		}
	}
	return nil
}

func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case AssertName:
		if a.Node == "" || a.Equals == "" {
			return fmt.Errorf("assertions[%d]: node and equals are required for name", index)
		}
	case AssertAbsent, AssertPresent:
		if a.Node == "" {
			return fmt.Errorf("assertions[%d]: node is required for %s", index, a.Type)
		}
	case AssertParent:
		if a.Node == "" || a.Parent == "" {
			return fmt.Errorf("assertions[%d]: node and parent are required for parent", index)
		}
	case AssertWarnings:
		if a.Code == "" {
			return fmt.Errorf("assertions[%d]: code is required for warnings", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for warnings", index)
		}
	case AssertConflicts:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for conflicts", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
