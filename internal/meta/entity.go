package meta

import (
	"fmt"
	"strings"

	"github.com/roach88/memris/internal/ir"
)

// RelationshipKind is the cardinality of a relationship field.
type RelationshipKind uint8

const (
	NoRelationship RelationshipKind = iota
	OneToOne
	ManyToOne
	OneToMany
	ManyToMany
)

var relationshipNames = [...]string{
	NoRelationship: "",
	OneToOne:       "ONE_TO_ONE",
	ManyToOne:      "MANY_TO_ONE",
	OneToMany:      "ONE_TO_MANY",
	ManyToMany:     "MANY_TO_MANY",
}

func (k RelationshipKind) String() string {
	if int(k) < len(relationshipNames) {
		return relationshipNames[k]
	}
	return fmt.Sprintf("RelationshipKind(%d)", k)
}

// ParseRelationshipKind parses ONE_TO_ONE, MANY_TO_ONE, ONE_TO_MANY or
// MANY_TO_MANY. The empty string is NoRelationship.
func ParseRelationshipKind(s string) (RelationshipKind, bool) {
	for i, n := range relationshipNames {
		if strings.EqualFold(n, s) {
			return RelationshipKind(i), true
		}
	}
	return NoRelationship, false
}

// Field describes one persistent field of an entity.
//
// Scalar fields and to-one relationships own a column. Collection
// relationships own no column and report ColumnPosition -1. Embedded
// fields are flattened: the embedded value's fields become columns of the
// owning entity under the property path "<field>.<component>".
type Field struct {
	Name           string
	ColumnName     string
	ColumnPosition int
	TypeCode       ir.TypeCode
	Type           *Type

	Relationship     RelationshipKind
	TargetEntity     string
	ReferencedColumn string

	// Embedded marks a value-typed field whose fields are stored inline.
	Embedded bool
}

// IsRelationship reports whether the field points at another entity.
func (f *Field) IsRelationship() bool { return f.Relationship != NoRelationship }

// IsCollection reports whether the relationship is to-many.
func (f *Field) IsCollection() bool {
	return f.Relationship == OneToMany || f.Relationship == ManyToMany
}

// EntityDescriptor is the metadata the lexer, planner and compiler need
// about one entity. Implementations fail with a descriptive error for
// unknown paths instead of returning a sentinel position.
type EntityDescriptor interface {
	// Name is the simple entity name used in annotated queries.
	Name() string
	// QualifiedName is the package-qualified name, or Name.
	QualifiedName() string
	// Type is the entity's class type.
	Type() *Type
	// IDColumnName names the identifier column.
	IDColumnName() string
	// Fields returns the declared fields in declaration order. Embedded
	// fields appear once, under their own name.
	Fields() []*Field
	// Field returns the declared field with the exact given name.
	Field(name string) (*Field, bool)
	// ResolvePropertyPosition maps a property path (a field name, or
	// "<embedded>.<component>") to a column position. Collection
	// relationships and unknown paths are errors.
	ResolvePropertyPosition(path string) (int, error)
	// ResolveColumnPosition maps a column name to its position.
	ResolveColumnPosition(column string) (int, error)
	// ColumnField returns the field stored at a column position.
	ColumnField(position int) (*Field, bool)
}

// Resolver looks entities up by simple or qualified name.
type Resolver interface {
	Entity(name string) (EntityDescriptor, error)
}

// Entity is the Model's EntityDescriptor implementation.
type Entity struct {
	name       string
	qualified  string
	typ        *Type
	idField    string
	embeddable bool

	fields     []*Field
	byName     map[string]*Field
	columns    []*Field
	byColumn   map[string]int
	byProperty map[string]int
}

var _ EntityDescriptor = (*Entity)(nil)

func (e *Entity) Name() string          { return e.name }
func (e *Entity) QualifiedName() string { return e.qualified }
func (e *Entity) Type() *Type           { return e.typ }
func (e *Entity) Fields() []*Field      { return e.fields }

// Embeddable reports whether the entity is a value type stored inline.
func (e *Entity) Embeddable() bool { return e.embeddable }

// IDColumnName returns the column name of the identifier field.
func (e *Entity) IDColumnName() string {
	if f, ok := e.byName[e.idField]; ok {
		return f.ColumnName
	}
	return ""
}

// IDField returns the identifier field, if the entity has one.
func (e *Entity) IDField() (*Field, bool) {
	f, ok := e.byName[e.idField]
	return f, ok
}

func (e *Entity) Field(name string) (*Field, bool) {
	f, ok := e.byName[name]
	return f, ok
}

func (e *Entity) ResolvePropertyPosition(path string) (int, error) {
	if pos, ok := e.byProperty[path]; ok {
		return pos, nil
	}
	if f, ok := e.byName[path]; ok && f.IsCollection() {
		return -1, fmt.Errorf("%w: %s.%s is a collection relationship and has no column", ir.ErrUnknownProperty, e.name, path)
	}
	return -1, fmt.Errorf("%w: %s.%s", ir.ErrUnknownProperty, e.name, path)
}

func (e *Entity) ResolveColumnPosition(column string) (int, error) {
	if pos, ok := e.byColumn[column]; ok {
		return pos, nil
	}
	return -1, fmt.Errorf("unknown column %s.%s", e.name, column)
}

func (e *Entity) ColumnField(position int) (*Field, bool) {
	if position < 0 || position >= len(e.columns) {
		return nil, false
	}
	return e.columns[position], true
}

// Columns returns the fields backing each column, indexed by position.
func (e *Entity) Columns() []*Field { return e.columns }

func (e *Entity) addColumn(property string, f *Field) error {
	if _, dup := e.byColumn[f.ColumnName]; dup {
		return fmt.Errorf("entity %s: duplicate column %q", e.name, f.ColumnName)
	}
	f.ColumnPosition = len(e.columns)
	e.columns = append(e.columns, f)
	e.byColumn[f.ColumnName] = f.ColumnPosition
	e.byProperty[property] = f.ColumnPosition
	return nil
}
