package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_Empty(t *testing.T) {
	e := newCLIEnv(t)
	e.seed()

	out := e.mustRun("status")
	assert.Contains(t, out, "(none)")
}

func TestStatus_TracksStaleness(t *testing.T) {
	e := newCLIEnv(t)
	e.seed()
	instance := e.importLamp()

	var rows []InstanceRow
	decodeData(t, e.mustRun("--format", "json", "status", "--dest", "Room"), &rows)
	require.Len(t, rows, 1)
	assert.Equal(t, instance, rows[0].Instance)
	assert.Equal(t, "prefabs/Lamp", rows[0].Source)
	assert.Equal(t, 2, rows[0].Tracked)
	assert.Equal(t, "up to date", rows[0].State)
	assert.Contains(t, rows[0].LastRun, "import ok")

	writeScene(t, e.prefabs, "lamp.cue", brighterLamp)
	e.mustRun("put", e.prefabs, "--prefix", "prefabs/")

	decodeData(t, e.mustRun("--format", "json", "status"), &rows)
	require.Len(t, rows, 1)
	assert.Equal(t, "stale", rows[0].State)

	e.mustRun("update", "--source", "prefabs/Lamp")

	decodeData(t, e.mustRun("--format", "json", "status"), &rows)
	require.Len(t, rows, 1)
	assert.Equal(t, "up to date", rows[0].State)
	assert.Equal(t, 3, rows[0].Tracked)
	assert.Contains(t, rows[0].LastRun, "update ok")
}

func TestStatus_Table(t *testing.T) {
	e := newCLIEnv(t)
	e.seed()
	instance := e.importLamp()

	out := e.mustRun("status")
	for _, want := range []string{"DEST", "INSTANCE", "STATE", "Room", instance, "prefabs/Lamp", "up to date"} {
		assert.Contains(t, out, want)
	}
}

func TestStatus_UnknownDest(t *testing.T) {
	e := newCLIEnv(t)

	_, err := e.run("status", "--dest", "Nowhere")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}
