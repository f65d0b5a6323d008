package meta

import (
	"fmt"
	"strings"
)

// Method describes one repository method: its name, declared parameters,
// return type and annotations.
type Method struct {
	Name   string
	Params []Param

	// Returns is the declared return type. Element is the type argument of
	// a List, Set, Optional or the value type of a Map; Key is a Map's key
	// type. Both are nil for non-generic returns.
	Returns *Type
	Element *Type
	Key     *Type

	// Query is the annotated query, nil for derived and built-in methods.
	Query *QueryAnnotation

	// Modifying marks UPDATE/DELETE annotated queries.
	Modifying bool
}

// Param is one declared method parameter. Name is the explicit
// per-parameter binding used by ":name" references, or empty.
type Param struct {
	Name string
	Type *Type
}

// QueryAnnotation is the annotated-query attribute of a method.
type QueryAnnotation struct {
	Text   string
	Native bool
}

// ParamTypes returns the declared parameter types in order.
func (m *Method) ParamTypes() []*Type {
	types := make([]*Type, len(m.Params))
	for i, p := range m.Params {
		types[i] = p.Type
	}
	return types
}

// ParamIndex returns the position of the parameter bound to name.
func (m *Method) ParamIndex(name string) (int, bool) {
	for i, p := range m.Params {
		if p.Name == name {
			return i, true
		}
	}
	return -1, false
}

// ReturnsKind reports whether the declared return type is t.
func (m *Method) ReturnsKind(t *Type) bool {
	return m.Returns != nil && m.Returns.Boxed() == t.Boxed()
}

// Signature renders the method as name(T1, T2) for diagnostics.
func (m *Method) Signature() string {
	names := make([]string, len(m.Params))
	for i, p := range m.Params {
		names[i] = p.Type.String()
	}
	return fmt.Sprintf("%s(%s)", m.Name, strings.Join(names, ", "))
}
