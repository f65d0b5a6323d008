package compiler

import (
	"github.com/roach88/memris/internal/ir"
	"github.com/roach88/memris/internal/meta"
)

// CompiledQuery is the executable form of one repository method: every
// property path of the LogicalQuery is replaced by a column position, and
// every relationship traversal by a CompiledJoin.
//
// CompiledQuery is immutable once returned and safe to share.
type CompiledQuery struct {
	Method     string        `json:"method"`
	Entity     string        `json:"entity"`
	OpCode     ir.OpCode     `json:"op"`
	ReturnKind ir.ReturnKind `json:"return_kind"`

	Conditions []CompiledCondition `json:"conditions,omitempty"`
	Joins      []CompiledJoin      `json:"joins,omitempty"`
	OrderBy    []CompiledOrderBy   `json:"order_by,omitempty"`
	Limit      int                 `json:"limit,omitempty"`
	Distinct   bool                `json:"distinct,omitempty"`

	Projection *CompiledProjection        `json:"projection,omitempty"`
	Grouping   *CompiledGrouping          `json:"grouping,omitempty"`
	Having     []CompiledCondition        `json:"having,omitempty"`
	Updates    []CompiledUpdateAssignment `json:"updates,omitempty"`

	BoundValues      []ir.Value `json:"bound_values,omitempty"`
	ParameterIndices []int      `json:"parameter_indices,omitempty"`
	Arity            int        `json:"arity"`
}

// CompiledCondition tests one column of the root entity.
//
// Column is -1 for the group-count pseudo column of a HAVING condition.
// ArgumentIndex is -1 for unary operators.
type CompiledCondition struct {
	Column        int           `json:"column"`
	TypeCode      ir.TypeCode   `json:"type"`
	Operator      ir.Operator   `json:"operator"`
	ArgumentIndex int           `json:"arg"`
	IgnoreCase    bool          `json:"ignore_case,omitempty"`
	Next          ir.Combinator `json:"next"`
}

// CompiledJoin links the rows of a source entity to those of a target
// entity. Path is the relationship path from the root ("department",
// "department.manager"); SourceEntity is the root for single-segment paths.
type CompiledJoin struct {
	Path         string `json:"path"`
	Field        string `json:"field"`
	SourceEntity string `json:"source"`
	TargetEntity string `json:"target"`

	// SourceColumn is the foreign key for to-one relationships and the
	// source id column for collections.
	SourceColumn int `json:"source_column"`
	// TargetColumn is the referenced column on the target side.
	TargetColumn     int         `json:"target_column"`
	TargetColumnIsID bool        `json:"target_is_id,omitempty"`
	FKType           ir.TypeCode `json:"fk_type"`

	Type  ir.JoinType `json:"type"`
	Fetch bool        `json:"fetch,omitempty"`

	// Predicates filter the target rows; they are ANDed together.
	Predicates []CompiledJoinPredicate `json:"predicates,omitempty"`
}

// CompiledJoinPredicate tests a column of a join's target entity.
type CompiledJoinPredicate struct {
	Column        int         `json:"column"`
	TypeCode      ir.TypeCode `json:"type"`
	Operator      ir.Operator `json:"operator"`
	ArgumentIndex int         `json:"arg"`
	IgnoreCase    bool        `json:"ignore_case,omitempty"`
}

// CompiledOrderBy sorts on a root column.
type CompiledOrderBy struct {
	Column    int  `json:"column"`
	Ascending bool `json:"ascending"`
}

// CompiledUpdateAssignment writes a bound-argument slot into a root column.
type CompiledUpdateAssignment struct {
	Column        int `json:"column"`
	ArgumentIndex int `json:"arg"`
}

// CompiledProjection builds one record per result row. Items are in
// record component order.
type CompiledProjection struct {
	Record *meta.Type               `json:"record"`
	Items  []CompiledProjectionItem `json:"items"`
}

// CompiledProjectionItem reads one column, possibly across joins.
//
// Steps lists the indexes into CompiledQuery.Joins traversed from the root
// to reach the entity owning Column; it is empty for root columns.
type CompiledProjectionItem struct {
	Alias    string      `json:"alias"`
	Steps    []int       `json:"steps,omitempty"`
	Column   int         `json:"column"`
	TypeCode ir.TypeCode `json:"type"`
}

// CompiledGrouping groups result rows into a Map keyed by one or more
// columns.
type CompiledGrouping struct {
	Keys []CompiledGroupKey `json:"keys"`
	// KeyType is the Map key type; for multi-column keys it is a record
	// constructed from KeyComponents in that order.
	KeyType       *meta.Type        `json:"key_type"`
	KeyComponents []string          `json:"key_components,omitempty"`
	ValueType     ir.GroupValueType `json:"value_type"`
}

// CompiledGroupKey is one grouping column.
type CompiledGroupKey struct {
	Property string      `json:"property"`
	Steps    []int       `json:"steps,omitempty"`
	Column   int         `json:"column"`
	TypeCode ir.TypeCode `json:"type"`
}

// Fingerprint returns the content-addressed identity of q.
func (q *CompiledQuery) Fingerprint() (string, error) {
	return ir.PlanFingerprint(q)
}
