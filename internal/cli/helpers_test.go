package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const lampScene = `package scenes

scene: Lamp: {
	root: "Lamp"
	nodes: {
		Lamp: children: ["Bulb"]
		Bulb: components: light: lumens: 800
	}
}
`

const roomScene = `package scenes

scene: Room: {
	root: "Room"
	nodes: {
		Room: children: ["Floor"]
		Floor: components: mesh: tiles: 12
	}
}
`

// writeScene writes a CUE file into dir, creating dir if needed.
func writeScene(t *testing.T, dir, file, src string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(src), 0644))
}

// cliEnv is a temp workspace with its own database.
type cliEnv struct {
	t       *testing.T
	db      string
	prefabs string
	scenes  string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	e := &cliEnv{
		t:       t,
		db:      filepath.Join(dir, "graft.db"),
		prefabs: filepath.Join(dir, "prefabs"),
		scenes:  filepath.Join(dir, "scenes"),
	}
	writeScene(t, e.prefabs, "lamp.cue", lampScene)
	writeScene(t, e.scenes, "room.cue", roomScene)
	return e
}

// run executes the root command against the env's database and returns
// stdout.
func (e *cliEnv) run(args ...string) (string, error) {
	e.t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--db", e.db}, args...))
	err := cmd.Execute()
	return out.String(), err
}

// mustRun is run that fails the test on error.
func (e *cliEnv) mustRun(args ...string) string {
	e.t.Helper()
	out, err := e.run(args...)
	require.NoError(e.t, err, "output:\n%s", out)
	return out
}

// seed stores the lamp prefab and the room scene.
func (e *cliEnv) seed() {
	e.t.Helper()
	e.mustRun("put", e.prefabs, "--prefix", "prefabs/")
	e.mustRun("put", e.scenes)
}

// importLamp imports the lamp prefab into Room and returns the instance.
func (e *cliEnv) importLamp() string {
	e.t.Helper()
	var out ImportOutput
	decodeData(e.t, e.mustRun("--format", "json", "import", "--source", "prefabs/Lamp", "--dest", "Room"), &out)
	require.NotEmpty(e.t, out.Instance)
	return out.Instance
}

// decodeData unmarshals the data field of a JSON CLI response into v.
func decodeData(t *testing.T, output string, v any) {
	t.Helper()
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &resp), "output:\n%s", output)
	require.Equal(t, "ok", resp.Status)
	require.NoError(t, json.Unmarshal(resp.Data, v))
}
