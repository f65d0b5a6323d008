package harness

import (
	"fmt"
	"slices"
	"strings"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Method   string
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s %s\n", e.Type, e.Method)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// EvaluateAssertions checks every assertion against result and returns the
// failure messages. A method that failed to compile without a "fails"
// assertion naming it is reported as well.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	expectedFailures := make(map[string]bool)

	for _, a := range assertions {
		if a.Type == AssertFails {
			expectedFailures[a.Method] = true
		}
		mr, ok := result.Method(a.Method)
		if !ok {
			errs = append(errs, fmt.Sprintf("assertion %s: method %q was not compiled", a.Type, a.Method))
			continue
		}
		if err := evaluate(mr, a); err != nil {
			errs = append(errs, err.Error())
		}
	}

	for _, mr := range result.Methods {
		if mr.Error != nil && !expectedFailures[mr.Method] {
			errs = append(errs, fmt.Sprintf("unexpected failure: %s", mr.Error.Message))
		}
	}
	return errs
}

func evaluate(mr *MethodResult, a Assertion) error {
	if a.Type == AssertFails {
		return assertFails(mr, a)
	}
	if mr.Error != nil {
		return &AssertionError{
			Type:     a.Type,
			Method:   a.Method,
			Expected: "method compiles",
			Actual:   mr.Error.Message,
		}
	}

	switch a.Type {
	case AssertCompiles:
		return assertCompiles(mr, a)
	case AssertConditions:
		return assertConditions(mr, a)
	case AssertJoins:
		return assertJoins(mr, a)
	default:
		return fmt.Errorf("unknown assertion type: %s", a.Type)
	}
}

func assertCompiles(mr *MethodResult, a Assertion) error {
	q := mr.Compiled
	var mismatches []string
	if a.Op != "" && q.OpCode.String() != a.Op {
		mismatches = append(mismatches, fmt.Sprintf("op %s, want %s", q.OpCode, a.Op))
	}
	if a.ReturnKind != "" && q.ReturnKind.String() != a.ReturnKind {
		mismatches = append(mismatches, fmt.Sprintf("return kind %s, want %s", q.ReturnKind, a.ReturnKind))
	}
	if a.Arity != nil && q.Arity != *a.Arity {
		mismatches = append(mismatches, fmt.Sprintf("arity %d, want %d", q.Arity, *a.Arity))
	}
	if a.Limit != nil && q.Limit != *a.Limit {
		mismatches = append(mismatches, fmt.Sprintf("limit %d, want %d", q.Limit, *a.Limit))
	}
	if len(mismatches) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Method:   a.Method,
		Expected: describeExpected(a),
		Actual:   strings.Join(mismatches, "; "),
	}
}

func describeExpected(a Assertion) string {
	var parts []string
	if a.Op != "" {
		parts = append(parts, "op="+a.Op)
	}
	if a.ReturnKind != "" {
		parts = append(parts, "return_kind="+a.ReturnKind)
	}
	if a.Arity != nil {
		parts = append(parts, fmt.Sprintf("arity=%d", *a.Arity))
	}
	if a.Limit != nil {
		parts = append(parts, fmt.Sprintf("limit=%d", *a.Limit))
	}
	return strings.Join(parts, " ")
}

func assertFails(mr *MethodResult, a Assertion) error {
	if mr.Error == nil {
		return &AssertionError{
			Type:     a.Type,
			Method:   a.Method,
			Expected: "error " + a.Code,
			Actual:   fmt.Sprintf("compiled to %s", mr.Compiled.OpCode),
		}
	}
	if mr.Error.Code != a.Code {
		return &AssertionError{
			Type:     a.Type,
			Method:   a.Method,
			Expected: "error " + a.Code,
			Actual:   mr.Error.Message,
		}
	}
	if a.Message != "" && !strings.Contains(mr.Error.Message, a.Message) {
		return &AssertionError{
			Type:     a.Type,
			Method:   a.Method,
			Expected: fmt.Sprintf("error containing %q", a.Message),
			Actual:   mr.Error.Message,
		}
	}
	return nil
}

func assertConditions(mr *MethodResult, a Assertion) error {
	columns := make([]int, 0, len(mr.Compiled.Conditions))
	for _, c := range mr.Compiled.Conditions {
		columns = append(columns, c.Column)
	}
	if slices.Equal(columns, a.Columns) {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Method:   a.Method,
		Expected: fmt.Sprintf("condition columns %v", a.Columns),
		Actual:   fmt.Sprintf("condition columns %v", columns),
	}
}

func assertJoins(mr *MethodResult, a Assertion) error {
	paths := make([]string, 0, len(mr.Compiled.Joins))
	for _, j := range mr.Compiled.Joins {
		paths = append(paths, j.Path)
	}
	if slices.Equal(paths, a.Joins) {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Method:   a.Method,
		Expected: fmt.Sprintf("joins %v", a.Joins),
		Actual:   fmt.Sprintf("joins %v", paths),
	}
}
