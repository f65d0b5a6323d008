// Package builtin matches repository methods against the table of built-in
// CRUD operations (save, findById, deleteAll, ...).
package builtin

import (
	"strings"

	"github.com/roach88/memris/internal/ir"
	"github.com/roach88/memris/internal/meta"
)

// MethodKey is a method name plus its declared parameter types. A
// parameter slot holding meta.IDParam accepts any identifier type.
type MethodKey struct {
	Name   string
	Params []*meta.Type
}

func (k MethodKey) String() string {
	names := make([]string, len(k.Params))
	for i, p := range k.Params {
		names[i] = p.String()
	}
	return k.Name + "(" + strings.Join(names, ", ") + ")"
}

// Matches reports whether method can be dispatched to k: same name, same
// arity, and every parameter either assignable after boxing or an
// identifier type in a wildcard slot.
func (k MethodKey) Matches(method *meta.Method) bool {
	if k.Name != method.Name || len(k.Params) != len(method.Params) {
		return false
	}
	for i, expected := range k.Params {
		actual := method.Params[i].Type
		if expected.IsWildcard() {
			if !actual.IsIdentifier() {
				return false
			}
			continue
		}
		if !meta.IsAssignable(expected, actual) {
			return false
		}
	}
	return true
}

// IsExact reports whether every parameter of method equals the key's type
// after boxing. A wildcard slot is never exact, so a concrete overload
// added later always outranks it.
func (k MethodKey) IsExact(method *meta.Method) bool {
	if k.Name != method.Name || len(k.Params) != len(method.Params) {
		return false
	}
	for i, expected := range k.Params {
		if expected.IsWildcard() || expected.Boxed() != method.Params[i].Type.Boxed() {
			return false
		}
	}
	return true
}

// Signature binds a MethodKey to the op code it dispatches to.
type Signature struct {
	Key MethodKey
	Op  ir.OpCode
}

func (s Signature) String() string {
	return s.Key.String() + " -> " + s.Op.String()
}

// Table is a named, ordered set of signatures.
type Table struct {
	Name       string
	Signatures []Signature
}

func sig(op ir.OpCode, name string, params ...*meta.Type) Signature {
	return Signature{Key: MethodKey{Name: name, Params: params}, Op: op}
}

// Builtins are the operations every repository supports.
var Builtins = Table{
	Name: "builtin",
	Signatures: []Signature{
		sig(ir.OpSaveOne, "save", meta.Object),
		sig(ir.OpSaveAll, "saveAll", meta.Iterable),
		sig(ir.OpDeleteOne, "delete", meta.Object),
		sig(ir.OpDeleteAll, "deleteAll"),
		sig(ir.OpDeleteByID, "deleteById", meta.IDParam),
		sig(ir.OpDeleteAllByID, "deleteAllById", meta.Iterable),
		sig(ir.OpFindByID, "findById", meta.IDParam),
		sig(ir.OpFindAllByID, "findAllById", meta.Iterable),
		sig(ir.OpExistsByID, "existsById", meta.IDParam),
		sig(ir.OpFindAll, "findAll"),
		sig(ir.OpCountAll, "count"),
	},
}

// Reserved holds signatures claimed for future operations so a wildcard in
// Builtins cannot capture them. It is consulted after Builtins.
var Reserved = Table{Name: "reserved"}
