package harness

import "github.com/roach88/memris/internal/compiler"

// MethodResult is the outcome of compiling one method: a plan or an error.
type MethodResult struct {
	Method      string                  `json:"method"`
	Signature   string                  `json:"signature"`
	Entity      string                  `json:"entity"`
	Fingerprint string                  `json:"fingerprint,omitempty"`
	Compiled    *compiler.CompiledQuery `json:"compiled,omitempty"`
	Error       *MethodError            `json:"error,omitempty"`
}

// MethodError describes a construction-time failure.
type MethodError struct {
	Kind    string `json:"kind,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every assertion held and no method failed
	// unexpectedly.
	Pass bool `json:"pass"`

	// Methods are in compile order: the repository's declared methods,
	// then the inline methods.
	Methods []MethodResult `json:"methods"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Methods: []MethodResult{},
		Errors:  []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Method returns the first result for the named method.
func (r *Result) Method(name string) (*MethodResult, bool) {
	for i := range r.Methods {
		if r.Methods[i].Method == name {
			return &r.Methods[i], true
		}
	}
	return nil, false
}
