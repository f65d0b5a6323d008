package harness

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/memris/internal/ir"
)

const scenarioDir = "../../testdata/scenarios"

func intPtr(n int) *int { return &n }

func TestScenarioFiles(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join(scenarioDir, "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := Run(scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Empty(t, result.Errors)
		})
	}
}

func TestRun_RecordsOutcomes(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join(scenarioDir, "people_errors.yaml"))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	require.Len(t, result.Methods, len(scenario.Methods))

	mr, ok := result.Method("fetchByName")
	require.True(t, ok)
	require.NotNil(t, mr.Error)
	assert.Nil(t, mr.Compiled)
	assert.Equal(t, string(ir.KindGrammar), mr.Error.Kind)
	assert.Equal(t, ir.ErrCodeUnknownPrefix, mr.Error.Code)

	mr, ok = result.Method("findByEmail")
	require.True(t, ok)
	require.Nil(t, mr.Error)
	assert.Equal(t, "Person", mr.Entity)
	assert.Equal(t, "findByEmail(String)", mr.Signature)
	assert.NotEmpty(t, mr.Fingerprint)
	assert.Equal(t, ir.OpFind, mr.Compiled.OpCode)
}

func TestRun_UnexpectedFailure(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join(scenarioDir, "people_errors.yaml"))
	require.NoError(t, err)
	scenario.Assertions = []Assertion{{Type: AssertCompiles, Method: "findByEmail"}}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	// Five methods fail without a fails assertion.
	assert.Len(t, result.Errors, 5)
	assert.Contains(t, result.Errors[0], "unexpected failure")
}

func TestRun_AssertionMismatches(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join(scenarioDir, "people_derived.yaml"))
	require.NoError(t, err)
	scenario.Assertions = []Assertion{
		{Type: AssertCompiles, Method: "count", Op: "FIND"},
		{Type: AssertCompiles, Method: "findById", Arity: intPtr(2)},
		{Type: AssertCompiles, Method: "findTop3ByActiveTrueOrderByCreatedAtDesc", Limit: intPtr(5)},
		{Type: AssertConditions, Method: "findByNameAndAgeGreaterThan", Columns: []int{3, 1}},
		{Type: AssertJoins, Method: "summaries", Joins: []string{}},
		{Type: AssertFails, Method: "findById", Code: "E201"},
		{Type: AssertCompiles, Method: "findByNothing"},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 7)
	assert.Contains(t, result.Errors[0], "op COUNT_ALL, want FIND")
	assert.Contains(t, result.Errors[1], "arity 1, want 2")
	assert.Contains(t, result.Errors[2], "limit 3, want 5")
	assert.Contains(t, result.Errors[3], "condition columns [1 3]")
	assert.Contains(t, result.Errors[4], "joins [department]")
	assert.Contains(t, result.Errors[5], "compiled to FIND_BY_ID")
	assert.Contains(t, result.Errors[6], `method "findByNothing" was not compiled`)
}

func TestRun_ScenarioErrors(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join(scenarioDir, "people_derived.yaml"))
	require.NoError(t, err)

	t.Run("unknown repository", func(t *testing.T) {
		s := *scenario
		s.Repository = "NoSuchRepository"
		_, err := Run(&s)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `repository "NoSuchRepository" is not declared`)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := New(nil).Run(ctx, scenario)
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestAssertionError(t *testing.T) {
	err := &AssertionError{Type: AssertJoins, Method: "summaries", Expected: "joins []", Actual: "joins [department]"}
	assert.Equal(t, "Assertion failed: joins summaries\n  Expected: joins []\n  Actual: joins [department]", err.Error())
}
