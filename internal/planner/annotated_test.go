package planner_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/memris/internal/ir"
	"github.com/roach88/memris/internal/meta"
	"github.com/roach88/memris/internal/queryir"
	"github.com/roach88/memris/internal/testutil"
)

// query builds an annotated-query method.
func query(name, text string, returns *meta.Type, params ...meta.Param) *meta.Method {
	return &meta.Method{Name: name, Returns: returns, Params: params, Query: &meta.QueryAnnotation{Text: text}}
}

func named(name string, typ *meta.Type) meta.Param {
	return meta.Param{Name: name, Type: typ}
}

func TestPlanAnnotatedBetween(t *testing.T) {
	f := newFixture(t)

	m := query("inAgeRange", "SELECT p FROM Person p WHERE p.age BETWEEN :lo AND :hi", meta.List,
		named("lo", meta.PrimInt), named("hi", meta.PrimInt))
	m.Element = f.person.Type()

	q := f.plan(t, m)
	assert.Equal(t, ir.OpFind, q.OpCode)
	assert.Equal(t, ir.ReturnManyList, q.ReturnKind)
	assert.Equal(t, []queryir.Condition{cond("age", ir.OpBetween, 0, ir.And)}, q.Conditions)
	assert.Equal(t, 2, q.Arity)
	assert.Equal(t, []int{0, 1}, q.ParameterIndices)
}

func TestPlanAnnotatedNegation(t *testing.T) {
	f := newFixture(t)

	m := query("notOldAndActive", "SELECT e FROM Person e WHERE NOT (e.age > 5 AND e.active = true)", meta.List)
	q := f.plan(t, m)

	assert.Equal(t, []queryir.Condition{
		cond("age", ir.OpLTE, 0, ir.Or),
		cond("active", ir.OpEQ, 1, ir.And),
	}, q.Conditions)
	assert.Equal(t, []ir.Value{ir.Int(5), ir.Bool(false)}, q.BoundValues)
	assert.Equal(t, []int{-1, -1}, q.ParameterIndices)
	assert.Equal(t, 2, q.Arity)
}

func TestPlanAnnotatedDistributesOr(t *testing.T) {
	f := newFixture(t)

	m := query("byNameOrEmail",
		"SELECT p FROM Person p WHERE (p.name = :n OR p.email = :n) AND p.active = true",
		meta.List, named("n", meta.String))
	q := f.plan(t, m)

	// (name OR email) AND active => name AND active OR email AND active.
	// The shared leaf keeps its slot in both groups.
	assert.Equal(t, []queryir.Condition{
		cond("name", ir.OpEQ, 0, ir.And),
		cond("active", ir.OpEQ, 2, ir.Or),
		cond("email", ir.OpEQ, 1, ir.And),
		cond("active", ir.OpEQ, 2, ir.And),
	}, q.Conditions)
	assert.Equal(t, []int{0, 0, -1}, q.ParameterIndices)
	assert.Equal(t, []ir.Value{nil, nil, ir.Bool(true)}, q.BoundValues)
}

func TestPlanAnnotatedLiteralsAndPositional(t *testing.T) {
	f := newFixture(t)

	m := query("annOlderThan", "SELECT p FROM Person p WHERE p.name = 'Ann' AND p.age > ?1 AND p.email IS NOT NULL",
		meta.List, meta.Param{Type: meta.PrimInt})
	q := f.plan(t, m)

	assert.Equal(t, []queryir.Condition{
		cond("name", ir.OpEQ, 0, ir.And),
		cond("age", ir.OpGT, 1, ir.And),
		cond("email", ir.OpNotNull, -1, ir.And),
	}, q.Conditions)
	assert.Equal(t, []ir.Value{ir.String("Ann"), nil}, q.BoundValues)
	assert.Equal(t, []int{-1, 0}, q.ParameterIndices)
}

func TestPlanAnnotatedIgnoreCase(t *testing.T) {
	f := newFixture(t)

	q := f.plan(t, query("search", "SELECT p FROM Person p WHERE p.name ILIKE :q OR p.email NOT ILIKE :q",
		meta.List, named("q", meta.String)))
	require.Len(t, q.Conditions, 2)
	assert.Equal(t, ir.OpIgnoreCaseLike, q.Conditions[0].Operator)
	assert.Equal(t, ir.OpNotLike, q.Conditions[1].Operator)
	assert.True(t, q.Conditions[0].IgnoreCase)
	assert.True(t, q.Conditions[1].IgnoreCase)
}

func TestPlanAnnotatedCountAndLimit(t *testing.T) {
	f := newFixture(t)

	q := f.plan(t, query("countActive", "SELECT COUNT(p) FROM Person p WHERE p.active = true", meta.PrimLong))
	assert.Equal(t, ir.OpCount, q.OpCode)
	assert.Equal(t, ir.ReturnCountLong, q.ReturnKind)

	m := query("findTop3Oldest", "SELECT DISTINCT p FROM Person p ORDER BY p.age DESC, p.name", meta.List)
	q = f.plan(t, m)
	assert.Equal(t, 3, q.Limit)
	assert.True(t, q.Distinct)
	assert.Equal(t, []queryir.OrderBy{
		{PropertyPath: "age", Ascending: false},
		{PropertyPath: "name", Ascending: true},
	}, q.OrderBy)
	assert.Zero(t, q.Arity)
}

func TestPlanAnnotatedProjection(t *testing.T) {
	f := newFixture(t)
	nameAge := testutil.MustType(t, f.model, "NameAge")
	summary := testutil.MustType(t, f.model, "PersonSummary")

	m := query("namesAndAges", "SELECT p.age AS age, p.name AS name FROM Person p", meta.List)
	m.Element = nameAge
	q := f.plan(t, m)
	require.NotNil(t, q.Projection)
	assert.Same(t, nameAge, q.Projection.Record)
	// Items follow component order, not select order.
	assert.Equal(t, []queryir.ProjectionItem{
		{Alias: "name", PropertyPath: "name"},
		{Alias: "age", PropertyPath: "age"},
	}, q.Projection.Items)
	assert.Equal(t, ir.ReturnManyList, q.ReturnKind)

	q = f.plan(t, query("summary", "SELECT p.name AS name, d.name AS departmentName FROM Person p LEFT JOIN p.department d WHERE p.id = :id",
		summary, named("id", meta.Long)))
	assert.Equal(t, ir.ReturnOneOptional, q.ReturnKind)
	assert.Equal(t, []queryir.ProjectionItem{
		{Alias: "name", PropertyPath: "name"},
		{Alias: "departmentName", PropertyPath: "department.name"},
	}, q.Projection.Items)
	assert.Equal(t, []queryir.Join{{PropertyPath: "department", TargetEntity: "Department", Type: ir.JoinLeft}}, q.Joins)
	assert.Equal(t, []queryir.Condition{cond("id", ir.OpEQ, 0, ir.And)}, q.Conditions)
}

func TestPlanAnnotatedJoin(t *testing.T) {
	f := newFixture(t)

	q := f.plan(t, query("inDepartment", "SELECT p FROM Person p JOIN FETCH p.department d WHERE d.name = :dept",
		meta.List, named("dept", meta.String)))
	assert.Equal(t, []queryir.Join{{PropertyPath: "department", TargetEntity: "Department", Type: ir.JoinInner, Fetch: true}}, q.Joins)
	assert.Equal(t, []queryir.Condition{cond("department.name", ir.OpEQ, 0, ir.And)}, q.Conditions)
}

func TestPlanAnnotatedGroupBy(t *testing.T) {
	f := newFixture(t)

	m := query("headcount", "SELECT COUNT(p) FROM Person p WHERE p.active = true GROUP BY p.department.name HAVING COUNT(p) > :min",
		meta.Map, named("min", meta.PrimLong))
	m.Key = meta.String
	q := f.plan(t, m)

	assert.Equal(t, ir.OpFind, q.OpCode)
	assert.Equal(t, ir.ReturnManyMap, q.ReturnKind)
	require.NotNil(t, q.Grouping)
	assert.Equal(t, queryir.Grouping{Properties: []string{"department.name"}, KeyType: meta.String, ValueType: ir.GroupCount}, *q.Grouping)
	assert.Equal(t, []queryir.Condition{cond("active", ir.OpEQ, 0, ir.And)}, q.Conditions)
	assert.Equal(t, []queryir.Condition{cond("$count", ir.OpGT, 1, ir.And)}, q.Having)
	assert.Equal(t, []int{-1, 0}, q.ParameterIndices)
}

func TestPlanAnnotatedModifying(t *testing.T) {
	f := newFixture(t)

	m := query("deactivateYoungerThan", "UPDATE Person p SET p.active = false, p.email = :email WHERE p.age < :age",
		meta.PrimInt, named("email", meta.String), named("age", meta.PrimInt))
	m.Modifying = true
	q := f.plan(t, m)

	assert.Equal(t, ir.OpUpdateQuery, q.OpCode)
	assert.Equal(t, ir.ReturnModifyingInt, q.ReturnKind)
	assert.Equal(t, []queryir.UpdateAssignment{
		{PropertyPath: "active", ArgumentIndex: 0},
		{PropertyPath: "email", ArgumentIndex: 1},
	}, q.UpdateAssignments)
	assert.Equal(t, []queryir.Condition{cond("age", ir.OpLT, 2, ir.And)}, q.Conditions)
	assert.Equal(t, []int{-1, 0, 1}, q.ParameterIndices)
	assert.Equal(t, []ir.Value{ir.Bool(false), nil, nil}, q.BoundValues)

	m = query("purgeWithoutEmail", "DELETE FROM Person p WHERE p.email IS NULL", meta.Void)
	m.Modifying = true
	q = f.plan(t, m)
	assert.Equal(t, ir.OpDeleteQuery, q.OpCode)
	assert.Equal(t, ir.ReturnModifyingVoid, q.ReturnKind)
	assert.Equal(t, []queryir.Condition{cond("email", ir.OpIsNull, -1, ir.And)}, q.Conditions)
	assert.Zero(t, q.Arity)
}

func TestPlanAnnotatedErrors(t *testing.T) {
	f := newFixture(t)
	nameAge := testutil.MustType(t, f.model, "NameAge")

	modifying := func(m *meta.Method) *meta.Method {
		m.Modifying = true
		return m
	}
	withKey := func(m *meta.Method, key *meta.Type) *meta.Method {
		m.Key = key
		return m
	}
	withElement := func(m *meta.Method, elem *meta.Type) *meta.Method {
		m.Element = elem
		return m
	}

	tests := []struct {
		name   string
		method *meta.Method
		code   string
		msg    string
	}{
		{"native", &meta.Method{Name: "raw", Returns: meta.List, Query: &meta.QueryAnnotation{Text: "select * from person", Native: true}}, ir.ErrCodeUnsupported, "native queries"},
		{"syntax", query("broken", "SELECT p FROM Person p WHERE", meta.List), ir.ErrCodeSyntax, "expected identifier"},
		{"other entity", query("invoices", "SELECT i FROM Invoice i", meta.List), ir.ErrCodeUnknownEntity, "query targets entity Invoice"},
		{"update without marker", query("touch", "UPDATE Person p SET p.active = true", meta.Void), ir.ErrCodeModifying, "need the modifying marker"},
		{"marker on select", modifying(query("all", "SELECT p FROM Person p", meta.List)), ir.ErrCodeModifying, "UPDATE and DELETE queries only"},
		{"update returning a list", modifying(query("touch", "UPDATE Person p SET p.active = true", meta.List)), ir.ErrCodeReturnType, "return void, int or long"},
		{"assign identifier", modifying(query("rekey", "UPDATE Person p SET p.id = :id", meta.Void, named("id", meta.Long))), ir.ErrCodeIDAssignment, "identifier"},
		{"assign nested path", modifying(query("move", "UPDATE Person p SET p.address.city = :c", meta.Void, named("c", meta.String))), ir.ErrCodeNestedPath, "nested path"},
		{"negated between", query("outside", "SELECT p FROM Person p WHERE NOT (p.age BETWEEN 1 AND 5)", meta.List), ir.ErrCodeNegation, "cannot be negated"},
		{"unknown named parameter", query("byName", "SELECT p FROM Person p WHERE p.name = :missing", meta.List, named("name", meta.String)), ir.ErrCodeParameter, "no parameter is bound to :missing"},
		{"positional out of range", query("byName", "SELECT p FROM Person p WHERE p.name = ?2", meta.List, meta.Param{Type: meta.String}), ir.ErrCodeParameter, "exceeds the 1 declared parameters"},
		{"count into a list", query("howMany", "SELECT COUNT(p) FROM Person p", meta.List), ir.ErrCodeReturnType, "COUNT queries return long"},
		{"long without count", query("howMany", "SELECT p FROM Person p", meta.PrimLong), ir.ErrCodeReturnType, "needs SELECT COUNT"},
		{"projection into an entity list", query("names", "SELECT p.name AS name FROM Person p", meta.List), ir.ErrCodeProjection, "record return type"},
		{"projection without alias", withElement(query("names", "SELECT p.name, p.age AS age FROM Person p", meta.List), nameAge), ir.ErrCodeProjection, "needs an alias"},
		{"projection unknown component", withElement(query("names", "SELECT p.name AS name, p.age AS years FROM Person p", meta.List), nameAge), ir.ErrCodeProjection, `no component "years"`},
		{"projection missing component", withElement(query("names", "SELECT p.name AS name FROM Person p", meta.List), nameAge), ir.ErrCodeProjection, "has 2 components but the query selects 1"},
		{"projection duplicate alias", withElement(query("names", "SELECT p.name AS name, p.email AS name FROM Person p", meta.List), nameAge), ir.ErrCodeProjection, "duplicate select alias"},
		{"record without select list", withElement(query("all", "SELECT p FROM Person p", meta.List), nameAge), ir.ErrCodeProjection, "aliased select items"},
		{"group by into a list", query("byDept", "SELECT COUNT(p) FROM Person p GROUP BY p.department.name", meta.List), ir.ErrCodeGrouping, "needs a Map return type"},
		{"group by entities", withKey(query("byDept", "SELECT p FROM Person p GROUP BY p.department.name", meta.Map), meta.String), ir.ErrCodeGrouping, "select COUNT"},
		{"map without group by", withKey(query("byDept", "SELECT p FROM Person p", meta.Map), meta.String), ir.ErrCodeGrouping, "need GROUP BY"},
		{"having a property", withKey(query("byDept", "SELECT COUNT(p) FROM Person p GROUP BY p.age HAVING p.age > 3", meta.Map), meta.Integer), ir.ErrCodeGrouping, "HAVING may only test COUNT"},
		{"count in where", query("big", "SELECT p FROM Person p WHERE COUNT(p) > 3", meta.List), ir.ErrCodeGrouping, "only allowed in HAVING"},
		{"group by order", withKey(query("byAge", "SELECT COUNT(p) FROM Person p GROUP BY p.age ORDER BY p.age", meta.Map), meta.Integer), ir.ErrCodeGrouping, "ORDER BY"},
		{"join a scalar", query("odd", "SELECT p FROM Person p JOIN p.name n", meta.List), ir.ErrCodeRelationship, "not a relationship"},
		{"join unknown field", query("odd", "SELECT p FROM Person p JOIN p.manager m", meta.List), ir.ErrCodeUnknownProperty, `"manager"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qe := f.planErr(t, tt.method)
			assert.Equal(t, tt.code, qe.Code)
			assert.Contains(t, qe.Message, tt.msg)
		})
	}
}
