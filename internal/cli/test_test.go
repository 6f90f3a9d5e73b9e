package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passingScenario = `name: upstream_add
source:
  root: Lamp
  nodes:
    Lamp:
      children: [Bulb]
    Bulb: {}
steps:
  - import: {}
  - edit_source:
      add:
        - label: Switch
          parent: Lamp
  - update: {}
assertions:
  - type: present
    node: Switch
  - type: parent
    node: Switch
    parent: Lamp
`

const failingScenario = `name: wrong_name
source:
  root: Lamp
  nodes:
    Lamp:
      children: [Bulb]
    Bulb: {}
steps:
  - import: {}
assertions:
  - type: name
    node: Bulb
    equals: LED
`

func harnessScenarios() string {
	return filepath.Join("..", "harness", "testdata", "scenarios")
}

func runTestCommand(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestTestCommandMissingArgs(t *testing.T) {
	_, err := runTestCommand(t, "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentScenariosDir(t *testing.T) {
	_, err := runTestCommand(t, "text", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestTestCommandEmptyScenariosDir(t *testing.T) {
	out, err := runTestCommand(t, "text", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found")
}

func TestTestCommandEmptyScenariosDirJSON(t *testing.T) {
	out, err := runTestCommand(t, "json", t.TempDir())
	require.NoError(t, err)

	var result TestResult
	decodeData(t, out, &result)
	assert.Equal(t, 0, result.Total)
	assert.Empty(t, result.Scenarios)
}

func TestTestCommandRunsGoldenScenarios(t *testing.T) {
	out, err := runTestCommand(t, "text", harnessScenarios())
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ rename_propagates")
	assert.Contains(t, out, "✓ conflict_local_wins")
	assert.Contains(t, out, "✓ strict_rejects_conflict")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestTestCommandFilter(t *testing.T) {
	out, err := runTestCommand(t, "json", harnessScenarios(), "--filter", "rename_*")
	require.NoError(t, err)

	var result TestResult
	decodeData(t, out, &result)
	assert.Equal(t, 1, result.Total)
	assert.Equal(t, 1, result.Passed)
	assert.Equal(t, "rename_propagates", result.Scenarios[0].Name)
}

func TestTestCommandFailingScenario(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wrong_name.yaml"), []byte(failingScenario), 0644))

	out, err := runTestCommand(t, "text", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ wrong_name")
	assert.Contains(t, out, "1 failed")
}

func TestTestCommandFailingScenarioJSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wrong_name.yaml"), []byte(failingScenario), 0644))

	out, err := runTestCommand(t, "json", dir)
	require.Error(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeTestFailed, resp.Error.Code)
}

func TestTestCommandUpdateWritesGolden(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "upstream_add.yaml"), []byte(passingScenario), 0644))

	_, err := runTestCommand(t, "text", dir, "--update")
	require.NoError(t, err)

	golden := filepath.Join(dir, "golden", "upstream_add.golden")
	data, err := os.ReadFile(golden)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"scenario_name":"upstream_add"`)

	// A second run compares against the file just written.
	out, err := runTestCommand(t, "text", dir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ upstream_add")
}

func TestTestCommandGoldenMismatch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "upstream_add.yaml"), []byte(passingScenario), 0644))
	writeScene(t, filepath.Join(dir, "golden"), "upstream_add.golden", `{"scenario_name":"upstream_add","trace":[]}`)

	out, err := runTestCommand(t, "text", dir)
	require.Error(t, err)
	assert.Contains(t, out, "trace does not match golden file")
}
