package ir

import (
	"errors"
	"fmt"
)

// ErrorKind classifies construction-time query failures.
type ErrorKind string

const (
	// KindGrammar covers malformed annotated-query text and derived method
	// names whose token sequence is not recognized.
	KindGrammar ErrorKind = "grammar"

	// KindSemantic covers names that parse but do not fit the entity model:
	// unknown properties, type mismatches, return-type conflicts.
	KindSemantic ErrorKind = "semantic"

	// KindAmbiguity covers built-in signatures that cannot be ranked.
	KindAmbiguity ErrorKind = "ambiguity"
)

// Error codes. E2xx grammar, E3xx semantic, E4xx ambiguity.
const (
	ErrCodeUnknownPrefix     = "E201"
	ErrCodeInvalidMethodName = "E202"
	ErrCodeTokenSequence     = "E203"
	ErrCodeSyntax            = "E204"
	ErrCodeUnsupported       = "E205"
	ErrCodeNegation          = "E206"

	ErrCodeUnknownEntity    = "E301"
	ErrCodeUnknownProperty  = "E302"
	ErrCodeNestedPath       = "E303"
	ErrCodeTypeMismatch     = "E304"
	ErrCodeReturnType       = "E305"
	ErrCodeModifying        = "E306"
	ErrCodeIDAssignment     = "E307"
	ErrCodeParameter        = "E308"
	ErrCodeProjection       = "E309"
	ErrCodeGrouping         = "E310"
	ErrCodeRelationship     = "E311"
	ErrCodeBinding          = "E312"

	ErrCodeAmbiguousBuiltIn = "E401"
)

// Sentinel errors matched with errors.Is through a QueryError.
var (
	ErrUnknownEntity   = errors.New("unknown entity")
	ErrUnknownProperty = errors.New("unknown property")
)

// QueryError is a construction-time failure for one repository method.
// Pos is the byte offset in the method name or query text, or -1.
type QueryError struct {
	Kind    ErrorKind
	Code    string
	Method  string
	Pos     int
	Message string
	Err     error
}

// Error implements the error interface.
func (e *QueryError) Error() string {
	msg := e.Message
	if e.Method != "" {
		msg = e.Method + ": " + msg
	}
	if e.Pos >= 0 {
		return fmt.Sprintf("[%s] %s (at offset %d)", e.Code, msg, e.Pos)
	}
	return fmt.Sprintf("[%s] %s", e.Code, msg)
}

// Unwrap returns the underlying cause.
func (e *QueryError) Unwrap() error {
	return e.Err
}

// GrammarError creates a grammar QueryError at pos.
func GrammarError(code, method string, pos int, format string, args ...any) *QueryError {
	return &QueryError{
		Kind:    KindGrammar,
		Code:    code,
		Method:  method,
		Pos:     pos,
		Message: fmt.Sprintf(format, args...),
	}
}

// SemanticError creates a semantic QueryError with no source position.
func SemanticError(code, method string, format string, args ...any) *QueryError {
	return &QueryError{
		Kind:    KindSemantic,
		Code:    code,
		Method:  method,
		Pos:     -1,
		Message: fmt.Sprintf(format, args...),
	}
}

// UnknownPropertyError reports a path that does not resolve on entity.
func UnknownPropertyError(method, entity, path string) *QueryError {
	return &QueryError{
		Kind:    KindSemantic,
		Code:    ErrCodeUnknownProperty,
		Method:  method,
		Pos:     -1,
		Message: fmt.Sprintf("unknown property %q on entity %s", path, entity),
		Err:     ErrUnknownProperty,
	}
}

// WithMethod returns err with the method name attached when err is a
// QueryError that does not name one yet. Other errors are returned as is.
func WithMethod(err error, method string) error {
	var qe *QueryError
	if errors.As(err, &qe) && qe.Method == "" {
		cp := *qe
		cp.Method = method
		return &cp
	}
	return err
}

// IsGrammarError reports whether err is a grammar QueryError.
// Uses errors.As to handle wrapped errors.
func IsGrammarError(err error) bool {
	return hasKind(err, KindGrammar)
}

// IsSemanticError reports whether err is a semantic QueryError.
func IsSemanticError(err error) bool {
	return hasKind(err, KindSemantic)
}

// IsAmbiguityError reports whether err is an ambiguity QueryError.
func IsAmbiguityError(err error) bool {
	return hasKind(err, KindAmbiguity)
}

func hasKind(err error, kind ErrorKind) bool {
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe.Kind == kind
	}
	return false
}
