package compiler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScene(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadScenesDirectory(t *testing.T) {
	res, errs := LoadScenes("testdata/scenes", LoadModeFailFast)
	require.Empty(t, errs)

	assert.Equal(t, 2, res.FileCount)
	require.Len(t, res.Scenes, 2)
	assert.Equal(t, "Lamp", res.Scenes[0].Name)
	assert.Equal(t, "Room", res.Scenes[1].Name)
	assert.Nil(t, res.Scene("Missing"))

	room := res.Scene("Room")
	require.NotNil(t, room)
	assert.Equal(t, 3, room.Hierarchy.Len())
	assert.Empty(t, ValidateScene(room))
}

func TestLoadScenesErrors(t *testing.T) {
	t.Run("missing directory", func(t *testing.T) {
		_, errs := LoadScenes(filepath.Join(t.TempDir(), "nope"), LoadModeFailFast)
		require.Len(t, errs, 1)
		assert.Contains(t, errs[0].Error(), ErrCodeNotFound)
	})

	t.Run("no cue files", func(t *testing.T) {
		_, errs := LoadScenes(t.TempDir(), LoadModeFailFast)
		require.Len(t, errs, 1)
		assert.Contains(t, errs[0].Error(), ErrCodeNoFiles)
	})

	t.Run("no scenes", func(t *testing.T) {
		dir := t.TempDir()
		writeScene(t, dir, "empty.cue", "package scenes\n\nother: 1\n")
		_, errs := LoadScenes(dir, LoadModeFailFast)
		require.Len(t, errs, 1)
		assert.Contains(t, errs[0].Error(), "no scenes found")
	})
}

func TestLoadScenesModes(t *testing.T) {
	dir := t.TempDir()
	writeScene(t, dir, "bad.cue", `package scenes

scene: A: { root: "X", nodes: Y: {} }
scene: B: { root: "Y", nodes: Y: components: c: f: 1.5 }
scene: C: { root: "Y", nodes: Y: {} }
`)

	res, errs := LoadScenes(dir, LoadModeFailFast)
	require.Len(t, errs, 1)
	assert.Empty(t, res.Scenes)

	res, errs = LoadScenes(dir, LoadModeCollectAll)
	require.Len(t, errs, 2)
	require.Len(t, res.Scenes, 1)
	assert.Equal(t, "C", res.Scenes[0].Name)

	var le *LoadError
	require.ErrorAs(t, errs[0], &le)
	assert.Equal(t, ErrCodeSceneRoot, le.Code)
	assert.True(t, le.Pos.IsValid())
}

func TestCompileScenesInline(t *testing.T) {
	res, errs := CompileScenes(`scene: A: { root: "R", nodes: R: {} }`, LoadModeCollectAll)
	require.Empty(t, errs)
	require.Len(t, res.Scenes, 1)

	_, errs = CompileScenes(`scene: A: {`, LoadModeCollectAll)
	assert.NotEmpty(t, errs)
}
