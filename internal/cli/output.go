package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/roach88/memris/internal/ir"
	"github.com/roach88/memris/internal/schema"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Scenario failures, methods that do not compile
	ExitCommandError = 2 // Command error (bad paths, unreadable schema, catalog errors)
)

// CLI error codes. Schema loading codes (E001-E008) come from the schema
// package.
const (
	ErrCodeGeneric       = schema.ErrCodeGeneric
	ErrCodeNotFound      = schema.ErrCodeNotFound
	ErrCodeWriteFailed   = "E007" // File write error
	ErrCodeCatalog       = "E009" // Catalog open/read/write error
	ErrCodeUnknownTarget = "E010" // Repository or method not declared
	ErrCodeCompileFailed = "E011" // One or more methods failed to compile
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitSuccess for nil and ExitFailure if the error is not an ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload, or every error on failure
	Error  *CLIError `json:"error,omitempty"` // first error
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "E005", "E302", etc.
	Message string `json:"message"`           // human-readable message
	Method  string `json:"method,omitempty"`  // failing method, for query errors
	Details any    `json:"details,omitempty"` // additional context
}

func newFormatter(opts *RootOptions, w, errW io.Writer) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    w,
		ErrWriter: errW, // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Errors outputs several errors. JSON output carries the first one in
// "error" and all of them in "data".
func (f *OutputFormatter) Errors(headline string, errs []CLIError) error {
	if len(errs) == 0 {
		return nil
	}
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error:  &errs[0],
			Data:   errs,
		})
	}

	fmt.Fprintf(f.Writer, "FAIL %s\n\n", headline)
	for _, e := range errs {
		fmt.Fprintf(f.Writer, "  [%s] %s\n", e.Code, e.Message)
	}
	return nil
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

// cliErrors flattens err into CLI errors. Joined errors are walked so a
// repository that fails on several methods reports each of them.
func cliErrors(err error) []CLIError {
	var out []CLIError
	var walk func(error)
	walk = func(err error) {
		for e := err; e != nil; e = errors.Unwrap(e) {
			if joined, ok := e.(interface{ Unwrap() []error }); ok {
				for _, child := range joined.Unwrap() {
					walk(child)
				}
				return
			}
		}
		var qe *ir.QueryError
		if errors.As(err, &qe) {
			msg := strings.TrimPrefix(qe.Error(), "["+qe.Code+"] ")
			out = append(out, CLIError{Code: qe.Code, Message: msg, Method: qe.Method})
			return
		}
		var le *schema.LoadError
		if errors.As(err, &le) {
			msg := le.Message
			if le.Pos.IsValid() {
				msg = fmt.Sprintf("%s:%d:%d: %s", le.Pos.Filename(), le.Pos.Line(), le.Pos.Column(), msg)
			}
			out = append(out, CLIError{Code: le.Code, Message: msg})
			return
		}
		out = append(out, CLIError{Code: ErrCodeGeneric, Message: err.Error()})
	}
	if err != nil {
		walk(err)
	}
	return out
}
