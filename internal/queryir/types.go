package queryir

import (
	"github.com/roach88/memris/internal/ir"
	"github.com/roach88/memris/internal/meta"
)

// IDProperty is the property marker built-in plans use for "the entity's
// identifier", whatever the id field is called.
const IDProperty = "$ID"

// CountProperty is the pseudo-property HAVING conditions test: the number
// of rows in the group.
const CountProperty = "$count"

// LogicalQuery is the planner's output for one repository method.
type LogicalQuery struct {
	Method     string        `json:"method"`
	Entity     string        `json:"entity"`
	OpCode     ir.OpCode     `json:"op"`
	ReturnKind ir.ReturnKind `json:"return_kind"`

	Conditions []Condition `json:"conditions,omitempty"`
	Joins      []Join      `json:"joins,omitempty"`
	OrderBy    []OrderBy   `json:"order_by,omitempty"`

	// Limit caps the number of results; zero means unlimited.
	Limit    int  `json:"limit,omitempty"`
	Distinct bool `json:"distinct,omitempty"`

	Projection        *Projection        `json:"projection,omitempty"`
	Grouping          *Grouping          `json:"grouping,omitempty"`
	Having            []Condition        `json:"having,omitempty"`
	UpdateAssignments []UpdateAssignment `json:"updates,omitempty"`

	BoundValues      []ir.Value `json:"bound_values,omitempty"`
	ParameterIndices []int      `json:"parameter_indices,omitempty"`
	Arity            int        `json:"arity"`
}

// Condition is one predicate of the OR-of-AND chain.
// ArgumentIndex is -1 for unary operators.
type Condition struct {
	PropertyPath  string        `json:"property"`
	Operator      ir.Operator   `json:"operator"`
	ArgumentIndex int           `json:"arg"`
	IgnoreCase    bool          `json:"ignore_case,omitempty"`
	Next          ir.Combinator `json:"next"`
}

// Join is an explicit relationship join from an annotated query.
type Join struct {
	PropertyPath string      `json:"property"`
	TargetEntity string      `json:"target"`
	Type         ir.JoinType `json:"type"`
	Fetch        bool        `json:"fetch,omitempty"`
}

// OrderBy is one sort key.
type OrderBy struct {
	PropertyPath string `json:"property"`
	Ascending    bool   `json:"ascending"`
}

// Projection maps property paths onto the components of a record type.
type Projection struct {
	Record *meta.Type       `json:"record"`
	Items  []ProjectionItem `json:"items"`
}

// ProjectionItem binds one record component to a property path.
type ProjectionItem struct {
	Alias        string `json:"alias"`
	PropertyPath string `json:"property"`
}

// Grouping groups results by one or more properties into a Map.
//
// A single property is keyed by its own value. Several properties need a
// record key type whose components match them in name, type and order.
type Grouping struct {
	Properties []string          `json:"properties"`
	KeyType    *meta.Type        `json:"key_type,omitempty"`
	ValueType  ir.GroupValueType `json:"value_type"`
}

// UpdateAssignment sets a property from a bound-argument slot.
type UpdateAssignment struct {
	PropertyPath  string `json:"property"`
	ArgumentIndex int    `json:"arg"`
}
