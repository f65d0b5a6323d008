package ir

// Version constants for the compiled plan format and the compiler.
const (
	// PlanVersion is the CompiledQuery schema version. Bump when the shape of
	// the artifact handed to the execution engine changes.
	PlanVersion = "1"

	// CompilerVersion is the memris query compiler version.
	CompilerVersion = "0.1.0"
)
