package prefab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/graft/internal/hierarchy"
	"github.com/roach88/graft/internal/testutil"
)

func sampleRecord() *ImportRecord {
	tree := testutil.NewTree("src", "R").Group("R", "C1")
	return &ImportRecord{
		Source:     srcLocator,
		SourceRoot: tree.ID("R"),
		Instance:   testutil.SeqID(0xa0, 1),
		Base:       tree.Build(),
		IDMapping: map[hierarchy.ID]hierarchy.ID{
			testutil.SeqID(0xa0, 1): tree.ID("R"),
			testutil.SeqID(0xa0, 2): tree.ID("C1"),
		},
	}
}

func TestImportRecordValidate(t *testing.T) {
	require.NoError(t, sampleRecord().Validate())

	tests := []struct {
		name   string
		mutate func(r *ImportRecord)
		want   string
	}{
		{"missing base", func(r *ImportRecord) { r.Base = nil }, "missing base"},
		{"wrong root", func(r *ImportRecord) { r.SourceRoot = testutil.SeqID(0xff, 1) }, "is not source root"},
		{"instance unmapped", func(r *ImportRecord) { delete(r.IDMapping, r.Instance) }, "is not mapped"},
		{"not injective", func(r *ImportRecord) {
			r.IDMapping[testutil.SeqID(0xa0, 3)] = r.IDMapping[testutil.SeqID(0xa0, 2)]
		}, "mapped from both"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := sampleRecord()
			tt.mutate(r)
			assert.ErrorContains(t, r.Validate(), tt.want)
		})
	}
}

func TestImportRecordCloneAndReverse(t *testing.T) {
	r := sampleRecord()
	c := r.Clone()
	c.IDMapping[testutil.SeqID(0xa0, 9)] = testutil.SeqID(0xff, 9)
	c.Base.Lookup(c.SourceRoot).Name = "edited"

	assert.Len(t, r.IDMapping, 2)
	assert.Equal(t, "R", r.Base.Lookup(r.SourceRoot).Name)

	rev := r.Reverse()
	assert.Equal(t, r.Instance, rev[r.SourceRoot])
	assert.Equal(t, []hierarchy.ID{testutil.SeqID(0xa0, 1), testutil.SeqID(0xa0, 2)}, r.DestIDs())
}

func TestErrorFormatting(t *testing.T) {
	err := &Error{Code: CodeMergeConflict, Message: "merge failed", Node: testutil.SeqID(0xa0, 2), Locator: srcLocator}
	assert.Equal(t, "MERGE_CONFLICT: merge failed (node=a0000000-0000-0000-0000-000000000002, asset=assets/lamp.cue)", err.Error())
	assert.True(t, IsMergeConflict(err))
	assert.False(t, IsUnknownInstance(err))

	code, ok := CodeOf(NewUnsupportedRootError(testutil.SeqID(0xa0, 1), testutil.SeqID(0xa0, 2)))
	assert.True(t, ok)
	assert.Equal(t, CodeUnsupportedRoot, code)
}
