package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/graft/internal/hierarchy"
	"github.com/roach88/graft/internal/ir"
	"github.com/roach88/graft/internal/prefab"
	"github.com/roach88/graft/internal/testutil"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// testScene returns a small scene hierarchy with one component.
func testScene() *hierarchy.Hierarchy {
	return testutil.NewTree("store", "Scene").
		Group("Scene", "Lamp").
		Component("Lamp", "light", ir.IRObject{"lumens": ir.IRInt(800)}).
		Build()
}

// testRecord returns an import record whose instance is the Lamp node of testScene.
func testRecord(dest string) Record {
	src := testutil.NewTree("store-src", "Lamp")
	instance := hierarchy.LabelID("store", "Lamp")
	return Record{
		Dest: dest,
		Import: &prefab.ImportRecord{
			Source:     "prefabs/lamp",
			SourceRoot: src.ID("Lamp"),
			Instance:   instance,
			Base:       src.Build(),
			IDMapping:  map[hierarchy.ID]hierarchy.ID{instance: src.ID("Lamp")},
		},
		Seq: 2,
	}
}
