package schema

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"
)

// Error codes for descriptor loading.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeUnknownExt  = "E002" // Unsupported file extension
	ErrCodeParseFailed = "E004" // YAML or CUE parse failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // Model could not be built
	ErrCodeInvalid     = "E008" // Document failed validation
)

// LoadError is a failure to read, parse, validate or build a descriptor.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadFile reads a descriptor file, choosing the format by extension
// (.yaml, .yml or .cue), and builds it.
func LoadFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("schema file not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("reading schema file: %v", err)}
	}

	var doc *Document
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		doc, err = DecodeYAML(data)
	case ".cue":
		doc, err = DecodeCUE(path, data)
	default:
		return nil, &LoadError{Code: ErrCodeUnknownExt, Message: fmt.Sprintf("%s: expected a .yaml, .yml or .cue file", path)}
	}
	if err != nil {
		return nil, err
	}
	return Build(doc)
}

// DecodeYAML parses and validates a YAML descriptor. Unknown keys are
// rejected so typos surface instead of silently dropping declarations.
func DecodeYAML(data []byte) (*Document, error) {
	var doc Document
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil {
		return nil, &LoadError{Code: ErrCodeParseFailed, Message: fmt.Sprintf("parsing YAML: %v", err)}
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// DecodeCUE evaluates a CUE descriptor and decodes it. The value must be
// concrete: every constraint resolved to data.
func DecodeCUE(filename string, src []byte) (*Document, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, cueLoadError(ErrCodeParseFailed, "compiling CUE", err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, cueLoadError(ErrCodeParseFailed, "validating CUE", err)
	}

	var doc Document
	if err := v.Decode(&doc); err != nil {
		return nil, cueLoadError(ErrCodeParseFailed, "decoding CUE", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

func cueLoadError(code, what string, err error) *LoadError {
	le := &LoadError{Code: code, Message: fmt.Sprintf("%s: %v", what, err)}
	if errs := cueerrors.Errors(err); len(errs) > 0 {
		le.Message = fmt.Sprintf("%s: %s", what, errs[0].Error())
		le.Pos = errs[0].Position()
	}
	return le
}
