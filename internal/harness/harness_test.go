package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/graft/internal/hierarchy"
)

const lampSource = `
source:
  root: Lamp
  nodes:
    Lamp:
      children: [Bulb]
    Bulb:
      components:
        light: { lumens: 800 }
`

func mustParse(t *testing.T, body string) *Scenario {
	t.Helper()
	s, err := ParseScenario([]byte("name: inline\n" + lampSource + body))
	require.NoError(t, err)
	return s
}

func kinds(trace []TraceEvent) []string {
	out := make([]string, len(trace))
	for i, ev := range trace {
		out[i] = ev.Kind
	}
	return out
}

func TestRun_RenamePropagates(t *testing.T) {
	result, err := Run(mustParse(t, `
steps:
  - import: {}
  - edit_source: { rename: { Bulb: LED } }
  - update: {}
assertions:
  - { type: name, node: Bulb, equals: LED }
  - { type: name, node: Lamp, equals: Lamp }
  - { type: parent, node: Bulb, parent: Lamp }
`))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, []string{KindImport, KindEditSource, KindUpdate}, kinds(result.Trace))
	assert.Equal(t, 2, result.Trace[0].Nodes)
	assert.Equal(t, 2, result.Trace[2].Merged)
	assert.Equal(t, 3, result.Trace[2].Nodes)
}

func TestRun_LocalEditWinsConflict(t *testing.T) {
	result, err := Run(mustParse(t, `
steps:
  - import: {}
  - edit_source: { rename: { Bulb: LED } }
  - edit_dest: { rename: { Bulb: Halogen } }
  - update: { policy: remote-as-new-base }
assertions:
  - { type: name, node: Bulb, equals: Halogen }
  - { type: conflicts, count: 1 }
  - { type: warnings, code: CONFLICT, count: 1 }
`))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, []string{"CONFLICT"}, result.Trace[3].Warnings)
}

func TestRun_PreferRemoteTakesUpstream(t *testing.T) {
	result, err := Run(mustParse(t, `
steps:
  - import: {}
  - edit_source: { rename: { Bulb: LED } }
  - edit_dest: { rename: { Bulb: Halogen } }
  - update: { policy: prefer-remote }
assertions:
  - { type: name, node: Bulb, equals: LED }
  - { type: conflicts, count: 1 }
`))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_ExpectedErrorPasses(t *testing.T) {
	result, err := Run(mustParse(t, `
steps:
  - import: {}
  - edit_source: { rename: { Bulb: LED } }
  - edit_dest: { rename: { Bulb: Halogen } }
  - update: { policy: strict, expect_error: MERGE_CONFLICT }
assertions:
  - { type: name, node: Bulb, equals: Halogen }
  - { type: conflicts, count: 0 }
`))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, "MERGE_CONFLICT", result.Trace[3].Error)
}

func TestRun_UnexpectedErrorFails(t *testing.T) {
	result, err := Run(mustParse(t, `
steps:
  - import: {}
  - edit_source: { rename: { Bulb: LED } }
  - edit_dest: { rename: { Bulb: Halogen } }
  - update: { policy: strict }
`))
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "update failed")
}

func TestRun_MissingExpectedErrorFails(t *testing.T) {
	result, err := Run(mustParse(t, `
steps:
  - import: {}
  - update: { expect_error: MERGE_CONFLICT }
`))
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "update succeeded")
}

func TestRun_UpstreamAddAttaches(t *testing.T) {
	result, err := Run(mustParse(t, `
steps:
  - import: {}
  - edit_source:
      add: [ { label: Shade, parent: Lamp, name: Lampshade } ]
  - update: {}
assertions:
  - { type: name, node: Shade, equals: Lampshade }
  - { type: parent, node: Shade, parent: Lamp }
  - { type: warnings, code: UNATTACHED, count: 0 }
`))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, 1, result.Trace[2].Added)
	assert.Equal(t, 4, result.Trace[2].Nodes)
}

func TestRun_UpstreamDeletionFollows(t *testing.T) {
	result, err := Run(mustParse(t, `
steps:
  - import: {}
  - edit_source: { remove: [Bulb] }
  - update: {}
assertions:
  - { type: absent, node: Bulb }
  - { type: present, node: Lamp }
`))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, 1, result.Trace[2].Removed)
	assert.Equal(t, 2, result.Trace[2].Nodes)
}

func TestRun_LocalDeleteIsNotReintroduced(t *testing.T) {
	result, err := Run(mustParse(t, `
steps:
  - import: {}
  - edit_dest: { remove: [Bulb] }
  - edit_source: { set: [ { node: Bulb, component: light, field: lumens, value: 1200 } ] }
  - update: {}
assertions:
  - { type: absent, node: Bulb }
`))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, 1, result.Trace[3].Skipped)
}

func TestRun_ImportUnderNestedParent(t *testing.T) {
	s, err := ParseScenario([]byte("name: nested\n" + lampSource + `
dest:
  root: Room
  nodes:
    Room: { children: [Props] }
    Props: { group: true }
steps:
  - import: { parent: Props }
  - edit_dest:
      add: [ { label: Note, parent: Lamp } ]
  - update: {}
assertions:
  - { type: parent, node: Lamp, parent: Props }
  - { type: parent, node: Note, parent: Lamp }
`))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, 5, result.Trace[1].Nodes)
}

func TestRun_AssertionFailuresAreReported(t *testing.T) {
	result, err := Run(mustParse(t, `
steps:
  - import: {}
assertions:
  - { type: name, node: Bulb, equals: LED }
  - { type: absent, node: Lamp }
`))
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "assertion 0")
	assert.Contains(t, result.Errors[1], "assertion 1")
}

func TestRun_ExecutionErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "unknown import parent",
			body: "steps:\n  - import: { parent: Nowhere }\n",
			want: `unknown parent "Nowhere"`,
		},
		{
			name: "rename unknown label",
			body: "steps:\n  - import: {}\n  - edit_source: { rename: { Ghost: X } }\n",
			want: `unknown label "Ghost"`,
		},
		{
			name: "add duplicate label",
			body: "steps:\n  - import: {}\n  - edit_source: { add: [ { label: Bulb, parent: Lamp } ] }\n",
			want: "label already in use",
		},
		{
			name: "add under leaf",
			body: "steps:\n  - import: {}\n  - edit_dest: { add: [ { label: Note, parent: Bulb } ] }\n",
			want: "edit_dest",
		},
		{
			name: "move into own subtree",
			body: "steps:\n  - import: {}\n  - edit_source: { add: [ { label: Shade, parent: Lamp, group: true } ], move: [ { node: Lamp, parent: Shade } ] }\n",
			want: "move",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Run(mustParse(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRun_Deterministic(t *testing.T) {
	s := mustParse(t, `
steps:
  - import: {}
  - edit_source:
      add: [ { label: Shade, parent: Lamp } ]
      rename: { Bulb: LED }
  - update: {}
`)
	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)

	a, err := MarshalSnapshot(s.Name, first)
	require.NoError(t, err)
	b, err := MarshalSnapshot(s.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestBuildTree_ResolvesReferenceLabels(t *testing.T) {
	labels := map[string]hierarchy.ID{}
	h, err := buildTree("src", Tree{
		Root: "Lamp",
		Nodes: map[string]NodeSpec{
			"Lamp": {Children: []string{"Bulb"}},
			"Bulb": {Components: map[string]map[string]any{
				"follow": {"target": map[string]any{"$ref": "Lamp"}, "note": map[string]any{"$ref": "not-a-label"}},
			}},
		},
	}, labels)
	require.Error(t, err, "an unresolved label that is not a uuid cannot become a reference")
	assert.Nil(t, h)

	h, err = buildTree("src", Tree{
		Root: "Lamp",
		Nodes: map[string]NodeSpec{
			"Lamp": {Children: []string{"Bulb"}},
			"Bulb": {Components: map[string]map[string]any{
				"follow": {"target": map[string]any{"$ref": "Lamp"}},
			}},
		},
	}, labels)
	require.NoError(t, err)
	assert.Equal(t, []hierarchy.ID{labels["Lamp"]}, h.Lookup(labels["Bulb"]).Refs())
}
