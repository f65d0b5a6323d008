package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/memris/internal/ir"
)

// Snapshot captures every method outcome of a scenario run.
type Snapshot struct {
	ScenarioName string         `json:"scenario_name"`
	Methods      []MethodResult `json:"methods"`
}

// Bytes renders the snapshot as canonical JSON.
func (s *Snapshot) Bytes() ([]byte, error) {
	return ir.MarshalCanonical(s)
}

// RunWithGolden executes a scenario and compares the snapshot against a
// golden file. The golden file is stored in testdata/golden/{scenario.Name}.golden
// unless opts say otherwise.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...goldie.Option) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result, opts...); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result, opts ...goldie.Option) error {
	t.Helper()

	snapshot := Snapshot{ScenarioName: scenarioName, Methods: result.Methods}
	data, err := snapshot.Bytes()
	if err != nil {
		return err
	}

	g := newGoldie(t, opts...)
	g.Assert(t, scenarioName, data)
	return nil
}

func newGoldie(t *testing.T, opts ...goldie.Option) *goldie.Goldie {
	defaults := []goldie.Option{
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	}
	return goldie.New(t, append(defaults, opts...)...)
}
