package cli

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImport_IntoExistingDest(t *testing.T) {
	e := newCLIEnv(t)
	e.seed()

	var out ImportOutput
	decodeData(t, e.mustRun("--format", "json", "import", "--source", "prefabs/Lamp", "--dest", "Room"), &out)

	assert.Equal(t, "Room", out.Dest)
	assert.False(t, out.Created)
	assert.Equal(t, 2, out.Nodes)
	assert.NotEmpty(t, out.Digest)
	_, err := uuid.Parse(out.Instance)
	assert.NoError(t, err)
}

func TestImport_CreatesMissingDest(t *testing.T) {
	e := newCLIEnv(t)
	e.seed()

	out := e.mustRun("import", "--source", "prefabs/Lamp", "--dest", "Attic")
	assert.Contains(t, out, "✓ prefabs/Lamp created Attic")
}

func TestImport_Twice_GivesDistinctInstances(t *testing.T) {
	e := newCLIEnv(t)
	e.seed()

	first := e.importLamp()
	second := e.importLamp()
	assert.NotEqual(t, first, second)
}

func TestImport_UnderParent(t *testing.T) {
	e := newCLIEnv(t)
	e.seed()
	instance := e.importLamp()

	// Nest a second lamp under the first one's root.
	out := e.mustRun("import", "--source", "prefabs/Lamp", "--dest", "Room", "--parent", instance)
	assert.Contains(t, out, "imported into Room")
}

func TestImport_InvalidParent(t *testing.T) {
	e := newCLIEnv(t)
	e.seed()

	out, err := e.run("import", "--source", "prefabs/Lamp", "--dest", "Room", "--parent", "not-a-uuid")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, ErrCodeInvalidFlag)
}

func TestImport_MissingSource(t *testing.T) {
	e := newCLIEnv(t)
	e.seed()

	_, err := e.run("import", "--source", "prefabs/Chair", "--dest", "Room")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestImport_RequiresFlags(t *testing.T) {
	e := newCLIEnv(t)

	_, err := e.run("import", "--source", "prefabs/Lamp")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dest")
}
