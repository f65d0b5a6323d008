package meta

import (
	"fmt"

	"github.com/roach88/memris/internal/ir"
)

// Kind classifies a Type.
type Kind uint8

const (
	KindClass Kind = iota
	KindInterface
	KindPrimitive
	KindArray
	KindRecord
	// KindWildcard is the identifier wildcard used in built-in signatures.
	KindWildcard
)

// Type is a node in the type graph the resolver and the planner reason
// about. Types are immutable once registered with a Model.
type Type struct {
	Name       string
	Kind       Kind
	Super      *Type
	Interfaces []*Type

	// Elem is the element type of an array.
	Elem *Type

	// Components are the ordered components of a record.
	Components []Component

	boxed *Type
	code  ir.TypeCode
}

// Component is one record component.
type Component struct {
	Name string
	Type *Type
}

func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	return t.Name
}

// MarshalText renders t by name so plans reference types, not graphs.
func (t *Type) MarshalText() ([]byte, error) {
	return []byte(t.Name), nil
}

// IsPrimitive reports whether t is an unboxed primitive.
func (t *Type) IsPrimitive() bool { return t.Kind == KindPrimitive }

// IsArray reports whether t is an array type.
func (t *Type) IsArray() bool { return t.Kind == KindArray }

// IsRecord reports whether t is a record type.
func (t *Type) IsRecord() bool { return t.Kind == KindRecord }

// IsWildcard reports whether t is the identifier wildcard.
func (t *Type) IsWildcard() bool { return t.Kind == KindWildcard }

// IsIterable reports whether t is Iterable or one of its subtypes.
func (t *Type) IsIterable() bool {
	return !t.IsPrimitive() && IsAssignable(Iterable, t)
}

// IsIdentifier reports whether t may serve as an entity identifier:
// non-primitive, non-iterable, non-array.
func (t *Type) IsIdentifier() bool {
	return !t.IsPrimitive() && !t.IsWildcard() && !t.IsIterable() && !t.IsArray() && t != Void
}

// Boxed returns the wrapper type of a primitive, or t itself.
func (t *Type) Boxed() *Type {
	if t.boxed != nil {
		return t.boxed
	}
	return t
}

// TypeCode is the storage type of a column holding values of t.
func (t *Type) TypeCode() ir.TypeCode {
	return t.Boxed().code
}

// Parents returns the direct supertypes of t: the superclass first, then the
// implemented interfaces in declaration order. Every class and record
// without an explicit superclass extends Object.
func (t *Type) Parents() []*Type {
	parents := make([]*Type, 0, len(t.Interfaces)+1)
	if t.Super != nil {
		parents = append(parents, t.Super)
	} else if t != Object && (t.Kind == KindClass || t.Kind == KindRecord || t.Kind == KindArray) {
		parents = append(parents, Object)
	}
	return append(parents, t.Interfaces...)
}

// Component returns the record component with the given name.
func (t *Type) Component(name string) (Component, bool) {
	for _, c := range t.Components {
		if c.Name == name {
			return c, true
		}
	}
	return Component{}, false
}

// IsAssignable reports whether a value of type from can be used where to is
// expected, after boxing both sides.
func IsAssignable(to, from *Type) bool {
	to, from = to.Boxed(), from.Boxed()
	if to == from {
		return true
	}
	if from.IsPrimitive() || to.IsPrimitive() {
		return false
	}
	if to.IsArray() && from.IsArray() {
		return IsAssignable(to.Elem, from.Elem)
	}

	seen := map[*Type]bool{}
	stack := []*Type{from}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == to {
			return true
		}
		if seen[cur] {
			continue
		}
		seen[cur] = true
		stack = append(stack, cur.Parents()...)
	}
	// Interfaces have no superclass but are still Objects.
	return to == Object
}

// Built-in types. The names follow the runtime the repositories were
// declared against so descriptor files can use them verbatim.
var (
	Object       = &Type{Name: "Object", Kind: KindClass, code: ir.TypeObject}
	Comparable   = &Type{Name: "Comparable", Kind: KindInterface, code: ir.TypeObject}
	CharSequence = &Type{Name: "CharSequence", Kind: KindInterface, code: ir.TypeObject}
	Iterable     = &Type{Name: "Iterable", Kind: KindInterface, code: ir.TypeObject}
	Collection   = &Type{Name: "Collection", Kind: KindInterface, Interfaces: []*Type{Iterable}, code: ir.TypeObject}
	List         = &Type{Name: "List", Kind: KindInterface, Interfaces: []*Type{Collection}, code: ir.TypeObject}
	Set          = &Type{Name: "Set", Kind: KindInterface, Interfaces: []*Type{Collection}, code: ir.TypeObject}
	Map          = &Type{Name: "Map", Kind: KindInterface, code: ir.TypeObject}
	Optional     = &Type{Name: "Optional", Kind: KindClass, code: ir.TypeObject}
	Number       = &Type{Name: "Number", Kind: KindClass, code: ir.TypeObject}

	String     = &Type{Name: "String", Kind: KindClass, Interfaces: []*Type{CharSequence, Comparable}, code: ir.TypeString}
	Boolean    = &Type{Name: "Boolean", Kind: KindClass, Interfaces: []*Type{Comparable}, code: ir.TypeBoolean}
	Character  = &Type{Name: "Character", Kind: KindClass, Interfaces: []*Type{Comparable}, code: ir.TypeChar}
	Byte       = &Type{Name: "Byte", Kind: KindClass, Super: Number, Interfaces: []*Type{Comparable}, code: ir.TypeByte}
	Short      = &Type{Name: "Short", Kind: KindClass, Super: Number, Interfaces: []*Type{Comparable}, code: ir.TypeShort}
	Integer    = &Type{Name: "Integer", Kind: KindClass, Super: Number, Interfaces: []*Type{Comparable}, code: ir.TypeInt}
	Long       = &Type{Name: "Long", Kind: KindClass, Super: Number, Interfaces: []*Type{Comparable}, code: ir.TypeLong}
	Float      = &Type{Name: "Float", Kind: KindClass, Super: Number, Interfaces: []*Type{Comparable}, code: ir.TypeFloat}
	Double     = &Type{Name: "Double", Kind: KindClass, Super: Number, Interfaces: []*Type{Comparable}, code: ir.TypeDouble}
	BigDecimal = &Type{Name: "BigDecimal", Kind: KindClass, Super: Number, Interfaces: []*Type{Comparable}, code: ir.TypeObject}
	UUID       = &Type{Name: "UUID", Kind: KindClass, Interfaces: []*Type{Comparable}, code: ir.TypeObject}
	Instant    = &Type{Name: "Instant", Kind: KindClass, Interfaces: []*Type{Comparable}, code: ir.TypeObject}
	LocalDate  = &Type{Name: "LocalDate", Kind: KindClass, Interfaces: []*Type{Comparable}, code: ir.TypeObject}

	PrimBoolean = &Type{Name: "boolean", Kind: KindPrimitive, boxed: Boolean}
	PrimChar    = &Type{Name: "char", Kind: KindPrimitive, boxed: Character}
	PrimByte    = &Type{Name: "byte", Kind: KindPrimitive, boxed: Byte}
	PrimShort   = &Type{Name: "short", Kind: KindPrimitive, boxed: Short}
	PrimInt     = &Type{Name: "int", Kind: KindPrimitive, boxed: Integer}
	PrimLong    = &Type{Name: "long", Kind: KindPrimitive, boxed: Long}
	PrimFloat   = &Type{Name: "float", Kind: KindPrimitive, boxed: Float}
	PrimDouble  = &Type{Name: "double", Kind: KindPrimitive, boxed: Double}
	Void        = &Type{Name: "void", Kind: KindPrimitive}

	// IDParam stands for "any valid identifier type" in built-in
	// signatures. It is never an exact match.
	IDParam = &Type{Name: "<id>", Kind: KindWildcard}
)

var builtinTypes = []*Type{
	Object, Comparable, CharSequence, Iterable, Collection, List, Set, Map, Optional, Number,
	String, Boolean, Character, Byte, Short, Integer, Long, Float, Double, BigDecimal, UUID,
	Instant, LocalDate,
	PrimBoolean, PrimChar, PrimByte, PrimShort, PrimInt, PrimLong, PrimFloat, PrimDouble, Void,
}

// ArrayOf returns an array type with the given element type.
func ArrayOf(elem *Type) *Type {
	return &Type{Name: elem.Name + "[]", Kind: KindArray, Elem: elem, code: ir.TypeObject}
}

// NewClass creates a class type. A nil super means Object.
func NewClass(name string, super *Type, interfaces ...*Type) *Type {
	return &Type{Name: name, Kind: KindClass, Super: super, Interfaces: interfaces, code: ir.TypeObject}
}

// NewInterface creates an interface type.
func NewInterface(name string, extends ...*Type) *Type {
	return &Type{Name: name, Kind: KindInterface, Interfaces: extends, code: ir.TypeObject}
}

// NewRecord creates a record type with ordered components.
func NewRecord(name string, components ...Component) (*Type, error) {
	seen := make(map[string]bool, len(components))
	for _, c := range components {
		if c.Name == "" || c.Type == nil {
			return nil, fmt.Errorf("record %s: component needs a name and a type", name)
		}
		if seen[c.Name] {
			return nil, fmt.Errorf("record %s: duplicate component %q", name, c.Name)
		}
		seen[c.Name] = true
	}
	return &Type{Name: name, Kind: KindRecord, Components: components, code: ir.TypeObject}, nil
}
