package cli

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchOnce_StoresScenes(t *testing.T) {
	e := newCLIEnv(t)

	var pass WatchPass
	decodeData(t, e.mustRun("--format", "json", "watch", e.prefabs, "--prefix", "prefabs/", "--once"), &pass)
	require.Len(t, pass.Stored, 1)
	assert.Equal(t, "prefabs/Lamp", pass.Stored[0].Locator)
	assert.True(t, pass.Stored[0].Changed)
	assert.Empty(t, pass.Sessions)
}

func TestWatchOnce_PropagatesChanges(t *testing.T) {
	e := newCLIEnv(t)
	e.seed()
	instance := e.importLamp()

	writeScene(t, e.prefabs, "lamp.cue", brighterLamp)
	out := e.mustRun("watch", e.prefabs, "--prefix", "prefabs/", "--once")

	assert.Contains(t, out, "stored prefabs/Lamp")
	assert.Contains(t, out, "✓ Room "+instance+" <- prefabs/Lamp")

	var rows []InstanceRow
	decodeData(t, e.mustRun("--format", "json", "status"), &rows)
	require.Len(t, rows, 1)
	assert.Equal(t, "up to date", rows[0].State)
}

func TestWatchOnce_UnchangedScenesDoNotUpdate(t *testing.T) {
	e := newCLIEnv(t)
	e.seed()
	e.importLamp()

	var pass WatchPass
	decodeData(t, e.mustRun("--format", "json", "watch", e.prefabs, "--prefix", "prefabs/", "--once"), &pass)
	require.Len(t, pass.Stored, 1)
	assert.False(t, pass.Stored[0].Changed)
	assert.Empty(t, pass.Sessions)
}

func TestWatchOnce_ReportsBrokenScenes(t *testing.T) {
	e := newCLIEnv(t)
	writeScene(t, e.prefabs, "broken.cue", `package scenes

scene: Broken: {
	root: "Missing"
	nodes: A: {}
}
`)

	out, err := e.run("watch", e.prefabs, "--once")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ E101")
}

func TestWatch_MissingDirectory(t *testing.T) {
	e := newCLIEnv(t)

	_, err := e.run("watch", filepath.Join(t.TempDir(), "missing"), "--once")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestWatchDir_DebouncesEvents(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() {
		done <- watchDir(ctx, dir, 50*time.Millisecond, slog.New(slog.DiscardHandler), changes)
	}()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "a.cue"), []byte("package a\n"), 0644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	select {
	case <-changes:
	case <-time.After(5 * time.Second):
		t.Fatal("no change signalled")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
