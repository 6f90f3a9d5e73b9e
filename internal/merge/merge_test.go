package merge

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/graft/internal/hierarchy"
	"github.com/roach88/graft/internal/ir"
	"github.com/roach88/graft/internal/testutil"
)

var (
	nodeID = testutil.SeqID(0xd0, 1)
	kidA   = testutil.SeqID(0xd0, 2)
	kidB   = testutil.SeqID(0xd0, 3)
	kidC   = testutil.SeqID(0xd0, 4)
)

// lamp returns a group node with a light component.
func lamp(name string, lumens int64) *hierarchy.Node {
	n := hierarchy.NewGroup(nodeID, name, kidA)
	n.SetComponent("light", ir.IRObject{"lumens": ir.IRInt(lumens), "color": ir.IRString("white")})
	return n
}

func paths(cs []Conflict) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Path
	}
	return out
}

func TestMergeOneSidedChanges(t *testing.T) {
	base := lamp("Lamp", 800)

	local := lamp("Desk Lamp", 800)
	remote := lamp("Lamp", 1200)

	out, err := FieldMerger{}.Merge(base, local, remote, RemoteAsNewBase)
	require.NoError(t, err)
	assert.Empty(t, out.Conflicts)
	assert.False(t, out.Deleted)
	assert.Equal(t, nodeID, out.Node.ID)
	assert.Equal(t, "Desk Lamp", out.Node.Name, "local rename survives")
	assert.Equal(t, ir.IRInt(1200), out.Node.Components["light"]["lumens"], "remote change flows")
	assert.Equal(t, []hierarchy.ID{kidA}, out.Children)
}

func TestMergeConflictResolutionByPolicy(t *testing.T) {
	tests := []struct {
		policy   Policy
		wantName string
		wantSide Side
	}{
		{RemoteAsNewBase, "Local", SideLocal},
		{PreferLocal, "Local", SideLocal},
		{PreferRemote, "Remote", SideRemote},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			out, err := FieldMerger{}.Merge(lamp("Base", 1), lamp("Local", 1), lamp("Remote", 1), tt.policy)
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, out.Node.Name)
			require.Len(t, out.Conflicts, 1)
			c := out.Conflicts[0]
			assert.Equal(t, "name", c.Path)
			assert.Equal(t, tt.wantSide, c.Resolved)
			assert.Equal(t, ir.IRString("Base"), c.Base)
			assert.Equal(t, ir.IRString("Local"), c.Local)
			assert.Equal(t, ir.IRString("Remote"), c.Remote)
		})
	}
}

func TestMergeStrictFailsOnConflict(t *testing.T) {
	_, err := FieldMerger{}.Merge(lamp("Lamp", 1), lamp("Lamp", 2), lamp("Lamp", 3), Strict)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConflict))

	var cerr *ConflictError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, nodeID, cerr.Node)
	assert.Equal(t, []string{"light.lumens"}, paths(cerr.Conflicts))

	// Non-conflicting edits are fine under Strict.
	out, err := FieldMerger{}.Merge(lamp("Lamp", 1), lamp("Lamp", 2), lamp("Lamp", 1), Strict)
	require.NoError(t, err)
	assert.Equal(t, ir.IRInt(2), out.Node.Components["light"]["lumens"])
}

func TestMergeComponentAddRemove(t *testing.T) {
	base := lamp("Lamp", 800)

	local := lamp("Lamp", 800)
	local.SetComponent("audio", ir.IRObject{"clip": ir.IRString("hum")})

	remote := lamp("Lamp", 800)
	delete(remote.Components, "light")

	out, err := FieldMerger{}.Merge(base, local, remote, RemoteAsNewBase)
	require.NoError(t, err)
	assert.Empty(t, out.Conflicts)
	assert.NotContains(t, out.Node.Components, "light", "upstream removal flows")
	assert.Equal(t, ir.IRObject{"clip": ir.IRString("hum")}, out.Node.Components["audio"], "local addition kept")
}

func TestMergeRemovedComponentWithLocalEditIsKept(t *testing.T) {
	base := lamp("Lamp", 800)

	local := lamp("Lamp", 800)
	local.Components["light"]["shadows"] = ir.IRBool(true)

	remote := lamp("Lamp", 800)
	delete(remote.Components, "light")

	out, err := FieldMerger{}.Merge(base, local, remote, RemoteAsNewBase)
	require.NoError(t, err)
	assert.Equal(t, ir.IRObject{"shadows": ir.IRBool(true)}, out.Node.Components["light"])
	assert.Equal(t, []string{"light"}, paths(out.Conflicts))

	_, err = FieldMerger{}.Merge(base, local, remote, Strict)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestMergeTwoWayWithoutBase(t *testing.T) {
	local := lamp("Lamp", 800)
	remote := lamp("Lamp", 900)
	remote.SetComponent("tag", ir.IRObject{"v": ir.IRInt(1)})

	out, err := FieldMerger{}.Merge(nil, local, remote, RemoteAsNewBase)
	require.NoError(t, err)
	assert.Equal(t, []string{"light.lumens"}, paths(out.Conflicts))
	assert.Equal(t, ir.IRInt(800), out.Node.Components["light"]["lumens"])
	assert.Contains(t, out.Node.Components, "tag", "remote-only component is taken")
}

func TestMergeDeletedUpstream(t *testing.T) {
	base := lamp("Lamp", 800)
	edited := lamp("Lamp", 10)

	tests := []struct {
		name        string
		base, local *hierarchy.Node
		policy      Policy
		wantDeleted bool
		wantErr     bool
		wantMarker  bool
	}{
		{"unchanged follows deletion", base, lamp("Lamp", 800), RemoteAsNewBase, true, false, false},
		{"edited is kept", base, edited, RemoteAsNewBase, false, false, true},
		{"prefer remote deletes edited", base, edited, PreferRemote, true, false, true},
		{"strict fails on edited", base, edited, Strict, false, true, true},
		{"strict deletes unchanged", base, lamp("Lamp", 800), Strict, true, false, false},
		{"prefer local never deletes", base, lamp("Lamp", 800), PreferLocal, false, false, true},
		{"no base keeps local", nil, lamp("Lamp", 800), RemoteAsNewBase, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := FieldMerger{}.Merge(tt.base, tt.local, nil, tt.policy)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrConflict)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDeleted, out.Deleted)
			if tt.wantDeleted {
				assert.Nil(t, out.Node)
			} else {
				assert.True(t, tt.local.Equal(out.Node))
			}
			if tt.wantMarker {
				assert.Equal(t, []string{"node"}, paths(out.Conflicts))
			} else {
				assert.Empty(t, out.Conflicts)
			}
		})
	}
}

func TestMergeInvalidInput(t *testing.T) {
	_, err := FieldMerger{}.Merge(nil, nil, lamp("x", 1), RemoteAsNewBase)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = FieldMerger{}.Merge(nil, lamp("x", 1), lamp("x", 1), Policy("yolo"))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestMergeDoesNotAliasInputs(t *testing.T) {
	base, local, remote := lamp("Lamp", 1), lamp("Lamp", 1), lamp("Lamp", 1)
	out, err := FieldMerger{}.Merge(base, local, remote, RemoteAsNewBase)
	require.NoError(t, err)

	out.Node.Components["light"]["lumens"] = ir.IRInt(99)
	out.Node.Transform.Children[0] = kidC
	assert.Equal(t, ir.IRInt(1), local.Components["light"]["lumens"])
	assert.Equal(t, kidA, local.Children()[0])
}

func TestMergeChildren(t *testing.T) {
	a, b, c, d := kidA, kidB, kidC, testutil.SeqID(0xd0, 5)

	tests := []struct {
		name                string
		base, local, remote []hierarchy.ID
		want                []hierarchy.ID
	}{
		{"unchanged", []hierarchy.ID{a, b}, []hierarchy.ID{a, b}, []hierarchy.ID{a, b}, []hierarchy.ID{a, b}},
		{"local reorder only", []hierarchy.ID{a, b}, []hierarchy.ID{b, a}, []hierarchy.ID{a, b}, []hierarchy.ID{b, a}},
		{"remote append only", []hierarchy.ID{a}, []hierarchy.ID{a}, []hierarchy.ID{a, b}, []hierarchy.ID{a, b}},
		{"remote add and local delete", []hierarchy.ID{a, b}, []hierarchy.ID{b}, []hierarchy.ID{a, c, b}, []hierarchy.ID{c, b}},
		{"local add after predecessor", []hierarchy.ID{a, b}, []hierarchy.ID{a, d, b}, []hierarchy.ID{c, a, b}, []hierarchy.ID{c, a, d, b}},
		{"local add at front", []hierarchy.ID{a}, []hierarchy.ID{d, a}, []hierarchy.ID{a, c}, []hierarchy.ID{d, a, c}},
		{"remote delete with local keep", []hierarchy.ID{a, b}, []hierarchy.ID{a, b, d}, []hierarchy.ID{a}, []hierarchy.ID{a, d}},
		{"no base", nil, []hierarchy.ID{a, d}, []hierarchy.ID{a, c}, []hierarchy.ID{a, d, c}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MergeChildren(tt.base, tt.local, tt.remote))
		})
	}
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, RemoteAsNewBase, p)

	p, err = ParsePolicy(" Prefer-Remote ")
	require.NoError(t, err)
	assert.Equal(t, PreferRemote, p)

	_, err = ParsePolicy("ours")
	assert.ErrorContains(t, err, "unknown merge policy")
	assert.Len(t, Policies(), 4)
}

func TestMergerFunc(t *testing.T) {
	boom := errors.New("boom")
	var m Merger = MergerFunc(func(_, _, _ *hierarchy.Node, _ Policy) (Outcome, error) {
		return Outcome{}, boom
	})
	_, err := m.Merge(nil, nil, nil, Strict)
	assert.ErrorIs(t, err, boom)
}
