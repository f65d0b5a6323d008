package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const itemSchema = `entities:
  - name: Item
    id: id
    fields:
      - {name: id, type: long}
      - {name: label, type: String}
`

const itemScenario = `name: items
schema: ../items.yaml
entity: Item
methods:
  - name: findByLabel
    params: [{type: String}]
    returns: List
    element: Item
assertions:
  - type: conditions
    method: findByLabel
    columns: [1]
`

type testResponse struct {
	Status string     `json:"status"`
	Data   TestResult `json:"data"`
}

// scenarioWorkspace writes the item schema and returns an empty scenarios
// directory next to it.
func scenarioWorkspace(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "items.yaml", itemSchema)
	dir := filepath.Join(root, "scenarios")
	require.NoError(t, os.Mkdir(dir, 0o755))
	return dir
}

func runTestJSON(t *testing.T, args ...string) (TestResult, error) {
	t.Helper()
	out, err := execute(t, append([]string{"--format", "json", "test"}, args...)...)
	var resp testResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp.Data, err
}

func TestTestScenarios(t *testing.T) {
	result, err := runTestJSON(t, scenarioDir)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 3, result.Passed)
	assert.Equal(t, 0, result.Failed)
	for _, s := range result.Scenarios {
		assert.True(t, s.Pass, s.Name)
		assert.Equal(t, "missing", s.Golden, s.Name)
	}
}

func TestTestFilter(t *testing.T) {
	result, err := runTestJSON(t, scenarioDir, "--filter", "people_*")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Total)

	result, err = runTestJSON(t, scenarioDir, "--filter", "nothing*")
	require.NoError(t, err)
	assert.Equal(t, 0, result.Total)
	assert.NotNil(t, result.Scenarios)
}

func TestTestText(t *testing.T) {
	out, err := execute(t, "test", scenarioDir, "--filter", "shop_*")
	require.NoError(t, err)
	assert.Contains(t, out, "PASS ")
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestTestGoldenFiles(t *testing.T) {
	dir := scenarioWorkspace(t)
	writeFile(t, dir, "items_scenario.yml", itemScenario)

	result, err := runTestJSON(t, dir)
	require.NoError(t, err)
	require.Len(t, result.Scenarios, 1)
	assert.Equal(t, "missing", result.Scenarios[0].Golden)

	result, err = runTestJSON(t, dir, "--update")
	require.NoError(t, err)
	assert.Equal(t, "updated", result.Scenarios[0].Golden)

	golden := filepath.Join(dir, "golden", "items.golden")
	data, err := os.ReadFile(golden)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"scenario_name":"items"`)

	result, err = runTestJSON(t, dir)
	require.NoError(t, err)
	assert.Equal(t, "match", result.Scenarios[0].Golden)

	require.NoError(t, os.WriteFile(golden, []byte("{}"), 0o644))
	result, err = runTestJSON(t, dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.False(t, result.Scenarios[0].Pass)
	assert.Contains(t, result.Scenarios[0].Errors[0], "do not match golden file")
}

func TestTestFailingScenario(t *testing.T) {
	dir := scenarioWorkspace(t)
	writeFile(t, dir, "wrong.yaml", `name: wrong
schema: ../items.yaml
entity: Item
methods:
  - name: findByLabel
    params: [{type: String}]
    returns: List
    element: Item
assertions:
  - type: fails
    method: findByLabel
    code: E302
`)
	writeFile(t, dir, "unloadable.yaml", "name: broken\n")

	out, err := execute(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "FAIL wrong")
	assert.Contains(t, out, "Expected: error E302")
	assert.Contains(t, out, "FAIL unloadable.yaml")
	assert.Contains(t, out, "load: ")
	assert.Contains(t, out, "0 passed, 2 failed, 2 total")
}

func TestTestMissingDirectory(t *testing.T) {
	_, err := execute(t, "test", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
