// Package schema reads schema descriptor files (YAML or CUE) declaring the
// types, entities and repositories of a project, and builds them into a
// sealed meta.Model plus repository definitions.
package schema

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Document is the decoded form of a descriptor file. YAML files use the
// yaml tags; CUE values are decoded through the json tags.
type Document struct {
	Types        []TypeDecl       `yaml:"types,omitempty" json:"types,omitempty" validate:"dive"`
	Entities     []EntityDecl     `yaml:"entities" json:"entities" validate:"required,min=1,dive"`
	Repositories []RepositoryDecl `yaml:"repositories,omitempty" json:"repositories,omitempty" validate:"dive"`
}

// TypeDecl declares a user type. Records list their components in
// constructor order; classes and interfaces may name their supertypes.
type TypeDecl struct {
	Name       string          `yaml:"name" json:"name" validate:"required"`
	Kind       string          `yaml:"kind" json:"kind" validate:"required,oneof=class interface record"`
	Super      string          `yaml:"super,omitempty" json:"super,omitempty"`
	Interfaces []string        `yaml:"interfaces,omitempty" json:"interfaces,omitempty" validate:"dive,required"`
	Components []ComponentDecl `yaml:"components,omitempty" json:"components,omitempty" validate:"required_if=Kind record,dive"`
}

// ComponentDecl is one record component.
type ComponentDecl struct {
	Name string `yaml:"name" json:"name" validate:"required"`
	Type string `yaml:"type" json:"type" validate:"required"`
}

// EntityDecl declares an entity or, with Embeddable, a value type stored
// inline in its owners.
type EntityDecl struct {
	Name       string      `yaml:"name" json:"name" validate:"required"`
	Package    string      `yaml:"package,omitempty" json:"package,omitempty"`
	ID         string      `yaml:"id,omitempty" json:"id,omitempty" validate:"required_unless=Embeddable true"`
	Embeddable bool        `yaml:"embeddable,omitempty" json:"embeddable,omitempty"`
	Fields     []FieldDecl `yaml:"fields" json:"fields" validate:"required,min=1,dive"`
}

// FieldDecl declares one entity field. Scalar fields name a Type;
// relationship and embedded fields name a Target instead.
type FieldDecl struct {
	Name             string `yaml:"name" json:"name" validate:"required"`
	Column           string `yaml:"column,omitempty" json:"column,omitempty"`
	Type             string `yaml:"type,omitempty" json:"type,omitempty" validate:"required_without_all=Relationship Embedded"`
	Relationship     string `yaml:"relationship,omitempty" json:"relationship,omitempty" validate:"omitempty,oneof=ONE_TO_ONE MANY_TO_ONE ONE_TO_MANY MANY_TO_MANY"`
	Target           string `yaml:"target,omitempty" json:"target,omitempty" validate:"required_with=Relationship"`
	ReferencedColumn string `yaml:"referenced_column,omitempty" json:"referenced_column,omitempty"`
	Embedded         bool   `yaml:"embedded,omitempty" json:"embedded,omitempty"`
}

// RepositoryDecl declares a repository over one entity.
type RepositoryDecl struct {
	Name    string       `yaml:"name" json:"name" validate:"required"`
	Entity  string       `yaml:"entity" json:"entity" validate:"required"`
	Methods []MethodDecl `yaml:"methods" json:"methods" validate:"dive"`
}

// MethodDecl declares one repository method.
//
// Returns names the declared return type; Element is the type argument of
// a List, Set or Optional (or a Map's value type) and Key a Map's key type.
type MethodDecl struct {
	Name      string      `yaml:"name" json:"name" validate:"required"`
	Params    []ParamDecl `yaml:"params,omitempty" json:"params,omitempty" validate:"dive"`
	Returns   string      `yaml:"returns" json:"returns" validate:"required"`
	Element   string      `yaml:"element,omitempty" json:"element,omitempty"`
	Key       string      `yaml:"key,omitempty" json:"key,omitempty"`
	Query     string      `yaml:"query,omitempty" json:"query,omitempty"`
	Native    bool        `yaml:"native,omitempty" json:"native,omitempty"`
	Modifying bool        `yaml:"modifying,omitempty" json:"modifying,omitempty"`
}

// ParamDecl declares one method parameter. Name is the binding used by
// ":name" references in annotated queries.
type ParamDecl struct {
	Name string `yaml:"name,omitempty" json:"name,omitempty"`
	Type string `yaml:"type" json:"type" validate:"required"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the structural constraints of d: required names, known
// kinds and relationship cardinalities, and fields that name either a type
// or a target. Cross references are checked when the model is built.
func (d *Document) Validate() error {
	if err := validate.Struct(d); err != nil {
		return formatValidationError(err)
	}
	return nil
}

func formatValidationError(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, formatFieldError(e))
	}
	return &LoadError{Code: ErrCodeInvalid, Message: strings.Join(msgs, "; ")}
}

func formatFieldError(e validator.FieldError) string {
	field := strings.TrimPrefix(e.Namespace(), "Document.")

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "required_if", "required_unless", "required_with", "required_without_all":
		return fmt.Sprintf("%s is required here (%s %s)", field, e.Tag(), e.Param())
	case "min":
		return fmt.Sprintf("%s needs at least %s entries", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
