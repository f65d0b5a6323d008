package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/memris/internal/schema"
)

// Scenario defines a compile scenario.
type Scenario struct {
	// Name uniquely identifies this scenario; golden files are named after it.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schema is the descriptor file (YAML or CUE). Relative paths are
	// resolved against the scenario file's directory.
	Schema string `yaml:"schema"`

	// Repository, when set, compiles every method the schema declares for
	// that repository.
	Repository string `yaml:"repository,omitempty"`

	// Entity is the entity inline Methods are compiled against. It defaults
	// to the entity of Repository.
	Entity string `yaml:"entity,omitempty"`

	// Methods are compiled in addition to the repository's methods.
	Methods []schema.MethodDecl `yaml:"methods,omitempty"`

	// Assertions check the outcome of individual methods.
	Assertions []Assertion `yaml:"assertions"`
}

// Assertion checks one method's outcome.
type Assertion struct {
	// Type is one of compiles, fails, conditions, joins.
	Type string `yaml:"type"`

	// Method names the method the assertion applies to.
	Method string `yaml:"method"`

	// Op and ReturnKind are the expected op code and return kind names
	// (compiles). Empty means "any".
	Op         string `yaml:"op,omitempty"`
	ReturnKind string `yaml:"return_kind,omitempty"`

	// Arity and Limit are checked when set (compiles).
	Arity *int `yaml:"arity,omitempty"`
	Limit *int `yaml:"limit,omitempty"`

	// Code is the expected error code; Message, when set, must be a
	// substring of the error (fails).
	Code    string `yaml:"code,omitempty"`
	Message string `yaml:"message,omitempty"`

	// Columns are the expected root condition columns, in order (conditions).
	Columns []int `yaml:"columns,omitempty"`

	// Joins are the expected join paths, in order (joins).
	Joins []string `yaml:"joins,omitempty"`
}

// Assertion type constants.
const (
	AssertCompiles   = "compiles"
	AssertFails      = "fails"
	AssertConditions = "conditions"
	AssertJoins      = "joins"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Schema != "" && !filepath.IsAbs(scenario.Schema) {
		scenario.Schema = filepath.Join(filepath.Dir(path), scenario.Schema)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Schema == "" {
		return fmt.Errorf("schema is required")
	}
	if _, err := os.Stat(s.Schema); os.IsNotExist(err) {
		return fmt.Errorf("schema file not found: %s", s.Schema)
	}
	if s.Repository == "" && len(s.Methods) == 0 {
		return fmt.Errorf("a repository or at least one inline method is required")
	}
	if len(s.Methods) > 0 && s.Repository == "" && s.Entity == "" {
		return fmt.Errorf("entity is required for inline methods without a repository")
	}
	for i, m := range s.Methods {
		if m.Name == "" {
			return fmt.Errorf("methods[%d]: name is required", i)
		}
		if m.Returns == "" {
			return fmt.Errorf("methods[%d]: returns is required", i)
		}
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Method == "" {
		return fmt.Errorf("assertions[%d]: method is required", index)
	}

	switch a.Type {
	case AssertCompiles:
	case AssertFails:
		if a.Code == "" {
			return fmt.Errorf("assertions[%d]: code is required for fails", index)
		}
	case AssertConditions:
		if a.Columns == nil {
			return fmt.Errorf("assertions[%d]: columns is required for conditions", index)
		}
	case AssertJoins:
		if a.Joins == nil {
			return fmt.Errorf("assertions[%d]: joins is required for joins", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
