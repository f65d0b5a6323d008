package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/memris/internal/ir"
)

type compileResponse struct {
	Status string            `json:"status"`
	Data   CompilationResult `json:"data"`
}

func TestCompileText(t *testing.T) {
	out, err := execute(t, "compile", peopleSchema)
	require.NoError(t, err)

	assert.Contains(t, out, "OK compiled 2 repositories, 10 methods")
	assert.Contains(t, out, "PersonRepository (Person)")
	assert.Contains(t, out, "DepartmentRepository (Department)")
	assert.Contains(t, out, "findById(Long)")
	assert.Contains(t, out, "deactivateOlderThan(int)")
	assert.NotContains(t, out, "Recorded build")
}

func TestCompileJSON(t *testing.T) {
	out, err := execute(t, "--format", "json", "compile", shopSchema)
	require.NoError(t, err)

	var resp compileResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, ir.PlanVersion, resp.Data.PlanVersion)
	assert.Equal(t, ir.CompilerVersion, resp.Data.CompilerVersion)
	require.Len(t, resp.Data.Repositories, 1)

	repo := resp.Data.Repositories[0]
	assert.Equal(t, "ProductRepository", repo.Name)
	assert.Equal(t, "Product", repo.Entity)
	assert.Len(t, repo.Fingerprint, 64)
	require.NotEmpty(t, repo.Methods)
	assert.Equal(t, "findBySku(String)", repo.Methods[0].Signature)
	assert.Equal(t, "FIND", repo.Methods[0].Op)
	assert.Equal(t, "ONE_OPTIONAL", repo.Methods[0].ReturnKind)
	for _, m := range repo.Methods {
		assert.Nil(t, m.Plan, "plans are only written with --output")
	}
	assert.Nil(t, resp.Data.Build)
}

func TestCompileIsDeterministic(t *testing.T) {
	first, err := execute(t, "--format", "json", "compile", peopleSchema)
	require.NoError(t, err)
	second, err := execute(t, "--format", "json", "compile", peopleSchema, "--concurrency", "1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCompileOutputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.json")
	out, err := execute(t, "compile", peopleSchema, "-o", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote compiled plans to "+path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	// Plans hold interface-typed literals, so they are checked as raw JSON.
	var result struct {
		Repositories []struct {
			Methods []struct {
				Signature   string          `json:"signature"`
				Fingerprint string          `json:"fingerprint"`
				Plan        json.RawMessage `json:"plan"`
			} `json:"methods"`
		} `json:"repositories"`
	}
	require.NoError(t, json.Unmarshal(data, &result))
	require.Len(t, result.Repositories, 2)
	for _, repo := range result.Repositories {
		for _, m := range repo.Methods {
			require.NotEmpty(t, m.Plan, m.Signature)
			assert.Len(t, m.Fingerprint, 64, m.Signature)
		}
	}

	var tree any
	require.NoError(t, json.Unmarshal(data, &tree))
	canonical, err := ir.MarshalCanonical(tree)
	require.NoError(t, err)
	assert.Equal(t, string(canonical), string(data))
}

func TestCompileRecordsBuild(t *testing.T) {
	db := filepath.Join(t.TempDir(), "catalog.db")

	out, err := execute(t, "--catalog", db, "compile", peopleSchema)
	require.NoError(t, err)
	assert.Contains(t, out, "Recorded build")
	assert.Contains(t, out, "(seq 1)")

	out, err = execute(t, "--catalog", db, "--format", "json", "compile", peopleSchema)
	require.NoError(t, err)
	var resp compileResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotNil(t, resp.Data.Build)
	assert.Equal(t, int64(2), resp.Data.Build.Seq)
	assert.Equal(t, peopleSchema, resp.Data.Build.Source)
}

func TestCompileFailure(t *testing.T) {
	path := writeFile(t, t.TempDir(), "broken.yaml", brokenSchema)

	out, err := execute(t, "compile", path, "--concurrency", "1")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeCompileFailed)
	assert.Contains(t, out, "FAIL compilation")
	assert.Contains(t, out, "[E302] findByNickname")
	assert.Contains(t, out, "[E201] fetchByLabel")
}

func TestCompileLoadErrors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		path string
		code string
	}{
		{"missing file", filepath.Join(dir, "missing.yaml"), "E005"},
		{"unknown extension", writeFile(t, dir, "schema.json", "{}"), "E002"},
		{"unknown key", writeFile(t, dir, "typo.yaml", "entitys: []\n"), "E004"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, "--format", "json", "compile", tt.path)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))

			var resp CLIResponse
			require.NoError(t, json.Unmarshal([]byte(out), &resp))
			assert.Equal(t, "error", resp.Status)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}
