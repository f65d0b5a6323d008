package planner_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/memris/internal/ir"
	"github.com/roach88/memris/internal/meta"
	"github.com/roach88/memris/internal/planner"
	"github.com/roach88/memris/internal/queryir"
	"github.com/roach88/memris/internal/testutil"
)

type fixture struct {
	planner *planner.Planner
	model   *meta.Model
	person  meta.EntityDescriptor
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	m := testutil.Model(t)
	return fixture{planner: planner.New(m), model: m, person: testutil.Person(t, m)}
}

func (f fixture) plan(t *testing.T, method *meta.Method) *queryir.LogicalQuery {
	t.Helper()
	q, err := f.planner.Plan(method, f.person)
	require.NoError(t, err)
	return q
}

func (f fixture) planErr(t *testing.T, method *meta.Method) *ir.QueryError {
	t.Helper()
	_, err := f.planner.Plan(method, f.person)
	require.Error(t, err)
	var qe *ir.QueryError
	require.True(t, errors.As(err, &qe), "want *ir.QueryError, got %T: %v", err, err)
	assert.Equal(t, method.Name, qe.Method)
	return qe
}

func list(elem *meta.Type) *meta.Method {
	return &meta.Method{Returns: meta.List, Element: elem}
}

func withName(m *meta.Method, name string, params ...*meta.Type) *meta.Method {
	m.Name = name
	for _, p := range params {
		m.Params = append(m.Params, meta.Param{Type: p})
	}
	return m
}

func cond(prop string, op ir.Operator, arg int, next ir.Combinator) queryir.Condition {
	return queryir.Condition{PropertyPath: prop, Operator: op, ArgumentIndex: arg, Next: next}
}

func TestPlanDerivedConditions(t *testing.T) {
	f := newFixture(t)
	person := f.person.Type()

	tests := []struct {
		name   string
		method *meta.Method
		want   []queryir.Condition
		arity  int
	}{
		{
			"and with comparison",
			withName(list(person), "findByNameAndAgeGreaterThan", meta.String, meta.PrimInt),
			[]queryir.Condition{cond("name", ir.OpEQ, 0, ir.And), cond("age", ir.OpGT, 1, ir.And)},
			2,
		},
		{
			"or",
			withName(list(person), "findByNameOrAge", meta.String, meta.PrimInt),
			[]queryir.Condition{cond("name", ir.OpEQ, 0, ir.Or), cond("age", ir.OpEQ, 1, ir.And)},
			2,
		},
		{
			"between takes two slots",
			withName(list(person), "findByAgeBetweenAndName", meta.PrimInt, meta.PrimInt, meta.String),
			[]queryir.Condition{cond("age", ir.OpBetween, 0, ir.And), cond("name", ir.OpEQ, 2, ir.And)},
			3,
		},
		{
			"unary operators take none",
			withName(list(person), "findByEmailIsNullAndActiveTrueAndName", meta.String),
			[]queryir.Condition{
				cond("email", ir.OpIsNull, -1, ir.And),
				cond("active", ir.OpIsTrue, -1, ir.And),
				cond("name", ir.OpEQ, 0, ir.And),
			},
			1,
		},
		{
			"is prefixes another operator",
			withName(list(person), "findByActiveIsFalse"),
			[]queryir.Condition{cond("active", ir.OpIsFalse, -1, ir.And)},
			0,
		},
		{
			"not",
			withName(list(person), "findByNameNot", meta.String),
			[]queryir.Condition{cond("name", ir.OpNE, 0, ir.And)},
			1,
		},
		{
			"nested relationship path",
			withName(list(person), "findByDepartmentName", meta.String),
			[]queryir.Condition{cond("department.name", ir.OpEQ, 0, ir.And)},
			1,
		},
		{
			"embedded path",
			withName(list(person), "findByAddressCityStartingWith", meta.String),
			[]queryir.Condition{cond("address.city", ir.OpStartingWith, 0, ir.And)},
			1,
		},
		{
			"in and not in",
			withName(list(person), "findByAgeInOrNameNotIn", meta.List, meta.List),
			[]queryir.Condition{cond("age", ir.OpIn, 0, ir.Or), cond("name", ir.OpNotIn, 1, ir.And)},
			2,
		},
		{
			"temporal",
			withName(list(person), "findByCreatedAtBefore", meta.Instant),
			[]queryir.Condition{cond("createdAt", ir.OpBefore, 0, ir.And)},
			1,
		},
		{
			"all by",
			withName(list(person), "findAllByEmailEndingWith", meta.String),
			[]queryir.Condition{cond("email", ir.OpEndingWith, 0, ir.And)},
			1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := f.plan(t, tt.method)
			assert.Equal(t, ir.OpFind, q.OpCode)
			assert.Equal(t, ir.ReturnManyList, q.ReturnKind)
			assert.Equal(t, tt.want, q.Conditions)
			assert.Equal(t, tt.arity, q.Arity)
			assert.Len(t, q.ParameterIndices, tt.arity)
			assert.Nil(t, q.BoundValues)
			assert.Equal(t, tt.method.Name, q.Method)
			assert.Equal(t, "Person", q.Entity)
		})
	}
}

func TestPlanDerivedIgnoreCase(t *testing.T) {
	f := newFixture(t)
	person := f.person.Type()

	q := f.plan(t, withName(list(person), "findByNameIgnoreCaseAndEmailLikeIgnoreCaseAndAddressCityContainingIgnoreCase",
		meta.String, meta.String, meta.String))
	require.Len(t, q.Conditions, 3)

	assert.Equal(t, ir.OpIgnoreCaseEQ, q.Conditions[0].Operator)
	assert.Equal(t, ir.OpIgnoreCaseLike, q.Conditions[1].Operator)
	assert.Equal(t, ir.OpContaining, q.Conditions[2].Operator)
	for _, c := range q.Conditions {
		assert.True(t, c.IgnoreCase, c.PropertyPath)
	}
}

func TestPlanDerivedLimitAndOrder(t *testing.T) {
	f := newFixture(t)
	person := f.person.Type()

	q := f.plan(t, withName(list(person), "findTop5ByAgeGreaterThanOrderByNameDesc", meta.PrimInt))
	assert.Equal(t, 5, q.Limit)
	assert.Equal(t, []queryir.Condition{cond("age", ir.OpGT, 0, ir.And)}, q.Conditions)
	assert.Equal(t, []queryir.OrderBy{{PropertyPath: "name", Ascending: false}}, q.OrderBy)

	q = f.plan(t, &meta.Method{Name: "findFirstByOrderByAgeAsc", Returns: meta.Optional, Element: person})
	assert.Equal(t, 1, q.Limit)
	assert.Equal(t, ir.ReturnOneOptional, q.ReturnKind)
	assert.Empty(t, q.Conditions)
	assert.Equal(t, []queryir.OrderBy{{PropertyPath: "age", Ascending: true}}, q.OrderBy)

	q = f.plan(t, withName(list(person), "findDistinctTop3ByActiveOrderByAgeDescAndName", meta.PrimBoolean))
	assert.True(t, q.Distinct)
	assert.Equal(t, 3, q.Limit)
	assert.Equal(t, []queryir.OrderBy{
		{PropertyPath: "age", Ascending: false},
		{PropertyPath: "name", Ascending: true},
	}, q.OrderBy)

	q = f.plan(t, withName(list(person), "findFirst10DistinctByName", meta.String))
	assert.True(t, q.Distinct)
	assert.Equal(t, 10, q.Limit)
}

func TestPlanDerivedOperations(t *testing.T) {
	f := newFixture(t)
	person := f.person.Type()

	tests := []struct {
		name   string
		method *meta.Method
		op     ir.OpCode
		kind   ir.ReturnKind
	}{
		{"single entity", &meta.Method{Name: "findByEmail", Returns: person, Params: []meta.Param{{Type: meta.String}}}, ir.OpFind, ir.ReturnOneOptional},
		{"set", &meta.Method{Name: "readByName", Returns: meta.Set, Element: person, Params: []meta.Param{{Type: meta.String}}}, ir.OpFind, ir.ReturnManySet},
		{"count", &meta.Method{Name: "countByActiveTrue", Returns: meta.PrimLong}, ir.OpCount, ir.ReturnCountLong},
		{"count as int", &meta.Method{Name: "countByAgeLessThan", Returns: meta.Integer, Params: []meta.Param{{Type: meta.PrimInt}}}, ir.OpCount, ir.ReturnCountLong},
		{"exists", &meta.Method{Name: "existsByEmail", Returns: meta.PrimBoolean, Params: []meta.Param{{Type: meta.String}}}, ir.OpExists, ir.ReturnExistsBool},
		{"delete void", &meta.Method{Name: "deleteByActiveFalse", Returns: meta.Void}, ir.OpDeleteQuery, ir.ReturnModifyingVoid},
		{"delete counting", &meta.Method{Name: "deleteByAgeLessThan", Returns: meta.PrimLong, Params: []meta.Param{{Type: meta.PrimInt}}}, ir.OpDeleteQuery, ir.ReturnModifyingLong},
		{"delete returning entities", &meta.Method{Name: "deleteByName", Returns: meta.List, Element: person, Params: []meta.Param{{Type: meta.String}}}, ir.OpDeleteQuery, ir.ReturnManyList},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := f.plan(t, tt.method)
			assert.Equal(t, tt.op, q.OpCode)
			assert.Equal(t, tt.kind, q.ReturnKind)
		})
	}
}

func TestPlanBuiltIns(t *testing.T) {
	f := newFixture(t)
	person := f.person.Type()
	id := func(op ir.Operator) []queryir.Condition {
		return []queryir.Condition{cond(queryir.IDProperty, op, 0, ir.And)}
	}

	tests := []struct {
		name   string
		method *meta.Method
		op     ir.OpCode
		kind   ir.ReturnKind
		conds  []queryir.Condition
	}{
		{"findById", testutil.Method("findById", meta.Optional, meta.Long), ir.OpFindByID, ir.ReturnOneOptional, id(ir.OpEQ)},
		{"findAllById", testutil.Method("findAllById", meta.List, meta.Iterable), ir.OpFindAllByID, ir.ReturnManyList, id(ir.OpIn)},
		{"existsById", testutil.Method("existsById", meta.PrimBoolean, meta.Long), ir.OpExistsByID, ir.ReturnExistsBool, id(ir.OpEQ)},
		{"deleteById", testutil.Method("deleteById", meta.Void, meta.Long), ir.OpDeleteByID, ir.ReturnDeleteByID, id(ir.OpEQ)},
		{"deleteAllById", testutil.Method("deleteAllById", meta.Void, meta.Iterable), ir.OpDeleteAllByID, ir.ReturnDeleteAll, id(ir.OpIn)},
		{"findAll", testutil.Method("findAll", meta.List), ir.OpFindAll, ir.ReturnManyList, nil},
		{"count", testutil.Method("count", meta.PrimLong), ir.OpCountAll, ir.ReturnCountLong, nil},
		{"save", testutil.Method("save", person, person), ir.OpSaveOne, ir.ReturnSave, nil},
		{"saveAll", testutil.Method("saveAll", meta.List, meta.List), ir.OpSaveAll, ir.ReturnSaveAll, nil},
		{"delete", testutil.Method("delete", meta.Void, person), ir.OpDeleteOne, ir.ReturnDelete, nil},
		{"deleteAll", testutil.Method("deleteAll", meta.Void), ir.OpDeleteAll, ir.ReturnDeleteAll, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := f.plan(t, tt.method)
			assert.Equal(t, tt.op, q.OpCode)
			assert.Equal(t, tt.kind, q.ReturnKind)
			assert.Equal(t, tt.conds, q.Conditions)
			assert.Equal(t, len(tt.method.Params), q.Arity)
		})
	}
}

func TestPlanDerivedGrouping(t *testing.T) {
	f := newFixture(t)
	ageActive := testutil.MustType(t, f.model, "AgeActive")

	mapOf := func(name string, key, value *meta.Type, params ...*meta.Type) *meta.Method {
		return withName(&meta.Method{Returns: meta.Map, Key: key, Element: value}, name, params...)
	}

	tests := []struct {
		name   string
		method *meta.Method
		want   queryir.Grouping
		conds  []queryir.Condition
	}{
		{
			"grouping by relationship path",
			mapOf("findAllGroupingByDepartmentName", meta.String, meta.List),
			queryir.Grouping{Properties: []string{"department.name"}, KeyType: meta.String, ValueType: ir.GroupList},
			nil,
		},
		{
			"grouping with conditions into sets",
			mapOf("findByActiveGroupingByAgeAsSet", meta.Integer, meta.Set, meta.PrimBoolean),
			queryir.Grouping{Properties: []string{"age"}, KeyType: meta.Integer, ValueType: ir.GroupSet},
			[]queryir.Condition{cond("active", ir.OpEQ, 0, ir.And)},
		},
		{
			"counting with GroupingBy",
			mapOf("countGroupingByAge", meta.Integer, meta.Long),
			queryir.Grouping{Properties: []string{"age"}, KeyType: meta.Integer, ValueType: ir.GroupCount},
			nil,
		},
		{
			"countBy with a map return",
			mapOf("countByDepartmentName", meta.String, meta.Long),
			queryir.Grouping{Properties: []string{"department.name"}, KeyType: meta.String, ValueType: ir.GroupCount},
			nil,
		},
		{
			"several keys into a record",
			mapOf("countByAgeAndActive", ageActive, meta.Long),
			queryir.Grouping{Properties: []string{"age", "active"}, KeyType: ageActive, ValueType: ir.GroupCount},
			nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := f.plan(t, tt.method)
			assert.Equal(t, ir.OpFind, q.OpCode)
			assert.Equal(t, ir.ReturnManyMap, q.ReturnKind)
			require.NotNil(t, q.Grouping)
			assert.Equal(t, tt.want, *q.Grouping)
			assert.Equal(t, tt.conds, q.Conditions)
		})
	}
}

func TestPlanDerivedErrors(t *testing.T) {
	f := newFixture(t)
	person := f.person.Type()
	nameAge := testutil.MustType(t, f.model, "NameAge")

	tests := []struct {
		name   string
		method *meta.Method
		code   string
		msg    string
	}{
		{"unknown prefix", withName(list(person), "searchByName", meta.String), ir.ErrCodeUnknownPrefix, "unknown method prefix"},
		{"find without By", withName(list(person), "findName", meta.String), ir.ErrCodeInvalidMethodName, "expected 'By'"},
		{"consecutive combinators", withName(list(person), "findByNameAndOrAge", meta.String, meta.PrimInt), ir.ErrCodeTokenSequence, "consecutive combinators"},
		{"trailing combinator", withName(list(person), "findByNameAnd", meta.String), ir.ErrCodeTokenSequence, "ends with a combinator"},
		{"consecutive operators", withName(list(person), "findByAgeGreaterThanLessThan", meta.PrimInt), ir.ErrCodeTokenSequence, "consecutive operators"},
		{"property after operator", withName(list(person), "findByAgeGreaterThanName", meta.PrimInt, meta.String), ir.ErrCodeTokenSequence, "without a combinator"},
		{"nothing after By", withName(list(person), "findBy"), ir.ErrCodeTokenSequence, "no property specified after 'By'"},
		{"empty OrderBy", withName(list(person), "findByNameOrderBy", meta.String), ir.ErrCodeTokenSequence, "OrderBy specified without a property"},
		{"too few parameters", withName(list(person), "findByNameAndAge", meta.String), ir.ErrCodeParameter, "declares 1 parameters but its name binds 2"},
		{"too many parameters", withName(list(person), "findByActiveTrue", meta.PrimBoolean), ir.ErrCodeParameter, "declares 1 parameters but its name binds 0"},
		{"limit on count", &meta.Method{Name: "countTop3ByName", Returns: meta.PrimLong, Params: []meta.Param{{Type: meta.String}}}, ir.ErrCodeInvalidMethodName, "find methods only"},
		{"zero limit", withName(list(person), "findTop0ByName", meta.String), ir.ErrCodeInvalidMethodName, "must be positive"},
		{"find returning a scalar", testutil.Method("findByName", meta.String, meta.String), ir.ErrCodeReturnType, "find methods return"},
		{"count returning a string", testutil.Method("countByName", meta.String, meta.String), ir.ErrCodeReturnType, "count methods return long"},
		{"exists returning long", testutil.Method("existsByName", meta.PrimLong, meta.String), ir.ErrCodeReturnType, "exists methods return boolean"},
		{"delete returning a string", testutil.Method("deleteByName", meta.String, meta.String), ir.ErrCodeReturnType, "deleteBy methods return"},
		{"record without query", withName(list(nameAge), "findByAge", meta.PrimInt), ir.ErrCodeReturnType, "record projections need an annotated query"},
		{"modifying without query", &meta.Method{Name: "deleteByName", Returns: meta.Void, Modifying: true, Params: []meta.Param{{Type: meta.String}}}, ir.ErrCodeModifying, "modifying marker"},
		{"GroupingBy into a list", withName(list(person), "findAllGroupingByAge"), ir.ErrCodeGrouping, "needs a Map return"},
		{"map without key type", &meta.Method{Name: "findAllGroupingByAge", Returns: meta.Map}, ir.ErrCodeGrouping, "declare its key type"},
		{"map without grouping", &meta.Method{Name: "findByActiveTrue", Returns: meta.Map, Key: meta.String}, ir.ErrCodeGrouping, "need GroupingBy"},
		{"grouping with order", &meta.Method{Name: "findAllGroupingByAgeOrderByName", Returns: meta.Map, Key: meta.Integer}, ir.ErrCodeGrouping, "OrderBy"},
		{"several keys without record", &meta.Method{Name: "countByAgeAndActive", Returns: meta.Map, Key: meta.String}, ir.ErrCodeGrouping, "record key type"},
		{"countBy grouping with operator", &meta.Method{Name: "countByAgeGreaterThan", Returns: meta.Map, Key: meta.Integer, Params: []meta.Param{{Type: meta.PrimInt}}}, ir.ErrCodeGrouping, "plain property paths"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qe := f.planErr(t, tt.method)
			assert.Equal(t, tt.code, qe.Code)
			assert.Contains(t, qe.Message, tt.msg)
		})
	}
}

func TestPlanDerivedErrorPositions(t *testing.T) {
	f := newFixture(t)
	person := f.person.Type()

	qe := f.planErr(t, withName(list(person), "findByNameAnd", meta.String))
	assert.Equal(t, len("findByNameAnd"), qe.Pos)
	assert.True(t, ir.IsGrammarError(qe))

	// Offsets refer to the name as written, Top3 included.
	qe = f.planErr(t, withName(list(person), "findTop3ByNameAndOrAge", meta.String, meta.PrimInt))
	assert.Equal(t, len("findTop3ByNameAnd"), qe.Pos)

	qe = f.planErr(t, withName(list(person), "findByAgeGreaterThanLessThan", meta.PrimInt))
	assert.Equal(t, len("findByAgeGreaterThan"), qe.Pos)
}
