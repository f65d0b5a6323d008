package jpql

import (
	"strings"

	"github.com/roach88/memris/internal/ir"
)

// Statement is a parsed annotated query.
//
// This is a sealed interface - only *SelectStatement, *UpdateStatement and
// *DeleteStatement implement it. Consumers switch on the concrete type:
//
//	switch stmt := s.(type) {
//	case *SelectStatement:
//	case *UpdateStatement:
//	case *DeleteStatement:
//	}
type Statement interface {
	statementNode() // Marker method - seals interface to this package
}

// Expr is a boolean expression in a WHERE or HAVING clause.
//
// This is a sealed interface - only *BinaryExpr, *NotExpr and *Predicate
// implement it. After Normalize an Expr contains no *NotExpr.
type Expr interface {
	exprNode() // Marker method - seals interface to this package
}

// Value is the right-hand side of a predicate or an update assignment.
//
// This is a sealed interface - only *ParamRef, *Literal and *ListValue
// implement it.
type Value interface {
	valueNode() // Marker method - seals interface to this package
}

// Path is a property path relative to the root entity.
// After alias resolution Segments never starts with an alias.
type Path struct {
	Segments []string
	Pos      int
}

// String joins the segments with dots.
func (p Path) String() string {
	return strings.Join(p.Segments, ".")
}

// IsNested reports whether the path traverses at least one relationship.
func (p Path) IsNested() bool {
	return len(p.Segments) > 1
}

// SelectItem is one entry of a projection list.
type SelectItem struct {
	Path  Path
	Alias string
}

// JoinClause is a FROM-clause join over a relationship path.
type JoinClause struct {
	Path  Path
	Alias string
	Left  bool
	Fetch bool
}

// OrderItem is one ORDER BY key.
type OrderItem struct {
	Path Path
	Desc bool
}

// SelectStatement is a SELECT query.
//
// Exactly one of Count and Items is set; a select with neither returns
// whole entities.
type SelectStatement struct {
	Distinct bool
	Count    bool
	Items    []SelectItem
	Entity   string
	Alias    string
	Joins    []JoinClause
	Where    Expr
	GroupBy  []Path
	Having   Expr
	OrderBy  []OrderItem
}

func (*SelectStatement) statementNode() {}

// Assignment is one SET entry of an UPDATE.
type Assignment struct {
	Path  Path
	Value Value
}

// UpdateStatement is an UPDATE ... SET query.
type UpdateStatement struct {
	Entity      string
	Alias       string
	Assignments []Assignment
	Where       Expr
}

func (*UpdateStatement) statementNode() {}

// DeleteStatement is a DELETE query.
type DeleteStatement struct {
	Entity string
	Alias  string
	Where  Expr
}

func (*DeleteStatement) statementNode() {}

// BinaryExpr joins two expressions with AND or OR.
type BinaryExpr struct {
	Op    ir.Combinator
	Left  Expr
	Right Expr
}

func (*BinaryExpr) exprNode() {}

// NotExpr negates its operand.
type NotExpr struct {
	Expr Expr
	Pos  int
}

func (*NotExpr) exprNode() {}

// Predicate is a leaf comparison.
//
// Values holds zero operands for unary operators, two for BETWEEN and one
// otherwise. Count marks the aggregate COUNT(alias) pseudo-property, in
// which case Path is empty.
type Predicate struct {
	Path       Path
	Count      bool
	Op         ir.Operator
	IgnoreCase bool
	Values     []Value
	Pos        int
}

func (*Predicate) exprNode() {}

// Property is the predicate's left-hand side as written in a plan.
func (p *Predicate) Property() string {
	if p.Count {
		return CountProperty
	}
	return p.Path.String()
}

// CountProperty is the synthetic property name of the COUNT(alias) aggregate.
const CountProperty = "$count"

// ParamRef is a `:name` or `?n` parameter reference.
// Index is the 1-based position for `?n` and zero for named parameters.
type ParamRef struct {
	Name  string
	Index int
	Pos   int
}

func (*ParamRef) valueNode() {}

// Literal is an inline constant.
type Literal struct {
	Value ir.Value
	Pos   int
}

func (*Literal) valueNode() {}

// ListValue is a parenthesized IN list.
type ListValue struct {
	Items []Value
	Pos   int
}

func (*ListValue) valueNode() {}
