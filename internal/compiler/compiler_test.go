package compiler_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/memris/internal/compiler"
	"github.com/roach88/memris/internal/ir"
	"github.com/roach88/memris/internal/meta"
	"github.com/roach88/memris/internal/planner"
	"github.com/roach88/memris/internal/queryir"
	"github.com/roach88/memris/internal/testutil"
)

func newCompiler(t *testing.T, entity string) (*compiler.Compiler, *meta.Model) {
	t.Helper()
	m := testutil.Model(t)
	e, err := m.Entity(entity)
	require.NoError(t, err)
	return compiler.New(m, e), m
}

// find builds a FIND plan whose conditions read one slot each, in order.
func find(conds ...queryir.Condition) *queryir.LogicalQuery {
	q := &queryir.LogicalQuery{
		Method:     "testMethod",
		Entity:     "Person",
		OpCode:     ir.OpFind,
		ReturnKind: ir.ReturnManyList,
	}
	for i := range conds {
		if conds[i].Operator.IsUnary() {
			conds[i].ArgumentIndex = -1
			continue
		}
		conds[i].ArgumentIndex = q.Arity
		q.ParameterIndices = append(q.ParameterIndices, q.Arity)
		q.Arity += conds[i].Operator.Slots()
		for len(q.ParameterIndices) < q.Arity {
			q.ParameterIndices = append(q.ParameterIndices, len(q.ParameterIndices))
		}
	}
	q.Conditions = conds
	return q
}

func eq(path string) queryir.Condition {
	return queryir.Condition{PropertyPath: path, Operator: ir.OpEQ, Next: ir.And}
}

func compileErr(t *testing.T, c *compiler.Compiler, q *queryir.LogicalQuery) *ir.QueryError {
	t.Helper()
	_, err := c.Compile(q)
	require.Error(t, err)
	var qe *ir.QueryError
	require.True(t, errors.As(err, &qe), "want *ir.QueryError, got %T: %v", err, err)
	assert.Equal(t, q.Method, qe.Method)
	return qe
}

func TestCompileRootColumns(t *testing.T) {
	c, _ := newCompiler(t, "Person")

	tests := []struct {
		path   string
		column int
		code   ir.TypeCode
	}{
		{queryir.IDProperty, 0, ir.TypeLong},
		{"name", 1, ir.TypeString},
		{"age", 3, ir.TypeInt},
		{"salary", 5, ir.TypeObject},
		{"addressLine", 7, ir.TypeString},
		{"address.city", 9, ir.TypeString},
		{"department", 11, ir.TypeLong},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			cq, err := c.Compile(find(eq(tt.path)))
			require.NoError(t, err)
			require.Len(t, cq.Conditions, 1)
			assert.Equal(t, tt.column, cq.Conditions[0].Column)
			assert.Equal(t, tt.code, cq.Conditions[0].TypeCode)
			assert.Empty(t, cq.Joins)
		})
	}
}

func TestCompileCarriesPlanShape(t *testing.T) {
	c, _ := newCompiler(t, "Person")
	q := find(eq("name"), queryir.Condition{PropertyPath: "age", Operator: ir.OpBetween, Next: ir.Or}, queryir.Condition{PropertyPath: "email", Operator: ir.OpIsNull, Next: ir.And})
	q.Limit = 3
	q.Distinct = true
	q.OrderBy = []queryir.OrderBy{{PropertyPath: "createdAt", Ascending: false}, {PropertyPath: "address.zip", Ascending: true}}

	cq, err := c.Compile(q)
	require.NoError(t, err)

	assert.Equal(t, "testMethod", cq.Method)
	assert.Equal(t, "Person", cq.Entity)
	assert.Equal(t, 3, cq.Limit)
	assert.True(t, cq.Distinct)
	assert.Equal(t, 3, cq.Arity)
	assert.Equal(t, []int{0, 1, 2}, cq.ParameterIndices)
	assert.Equal(t, []compiler.CompiledCondition{
		{Column: 1, TypeCode: ir.TypeString, Operator: ir.OpEQ, ArgumentIndex: 0, Next: ir.And},
		{Column: 3, TypeCode: ir.TypeInt, Operator: ir.OpBetween, ArgumentIndex: 1, Next: ir.Or},
		{Column: 2, TypeCode: ir.TypeString, Operator: ir.OpIsNull, ArgumentIndex: -1, Next: ir.And},
	}, cq.Conditions)
	assert.Equal(t, []compiler.CompiledOrderBy{{Column: 6}, {Column: 10, Ascending: true}}, cq.OrderBy)
}

func TestCompileJoins(t *testing.T) {
	t.Run("to-one", func(t *testing.T) {
		c, _ := newCompiler(t, "Person")
		cq, err := c.Compile(find(eq("name"), eq("department.name"), eq("department.code")))
		require.NoError(t, err)

		require.Len(t, cq.Conditions, 1)
		assert.Equal(t, 1, cq.Conditions[0].Column)
		assert.Equal(t, []compiler.CompiledJoin{{
			Path:             "department",
			Field:            "department",
			SourceEntity:     "Person",
			TargetEntity:     "Department",
			SourceColumn:     11,
			TargetColumn:     0,
			TargetColumnIsID: true,
			FKType:           ir.TypeLong,
			Type:             ir.JoinInner,
			Predicates: []compiler.CompiledJoinPredicate{
				{Column: 1, TypeCode: ir.TypeString, Operator: ir.OpEQ, ArgumentIndex: 1},
				{Column: 2, TypeCode: ir.TypeString, Operator: ir.OpEQ, ArgumentIndex: 2},
			},
		}}, cq.Joins)
	})

	t.Run("many-to-many", func(t *testing.T) {
		c, _ := newCompiler(t, "Person")
		cq, err := c.Compile(find(eq("projects.title")))
		require.NoError(t, err)

		assert.Empty(t, cq.Conditions)
		require.Len(t, cq.Joins, 1)
		j := cq.Joins[0]
		assert.Equal(t, "Project", j.TargetEntity)
		assert.Equal(t, 0, j.SourceColumn)
		assert.Equal(t, 0, j.TargetColumn)
		assert.True(t, j.TargetColumnIsID)
		assert.Equal(t, ir.TypeLong, j.FKType)
		assert.Equal(t, []compiler.CompiledJoinPredicate{{Column: 1, TypeCode: ir.TypeString, Operator: ir.OpEQ}}, j.Predicates)
	})

	t.Run("one-to-many", func(t *testing.T) {
		c, _ := newCompiler(t, "Department")
		q := find(eq("employees.age"))
		q.Entity = "Department"
		cq, err := c.Compile(q)
		require.NoError(t, err)

		require.Len(t, cq.Joins, 1)
		j := cq.Joins[0]
		assert.Equal(t, "Person", j.TargetEntity)
		assert.Equal(t, 0, j.SourceColumn)
		assert.Equal(t, 11, j.TargetColumn)
		assert.False(t, j.TargetColumnIsID)
		assert.Equal(t, []compiler.CompiledJoinPredicate{{Column: 3, TypeCode: ir.TypeInt, Operator: ir.OpEQ}}, j.Predicates)
	})

	t.Run("explicit fetch join", func(t *testing.T) {
		c, _ := newCompiler(t, "Person")
		q := find(eq("name"))
		q.Joins = []queryir.Join{{PropertyPath: "department", TargetEntity: "Department", Type: ir.JoinLeft, Fetch: true}}
		cq, err := c.Compile(q)
		require.NoError(t, err)

		require.Len(t, cq.Joins, 1)
		assert.Equal(t, ir.JoinLeft, cq.Joins[0].Type)
		assert.True(t, cq.Joins[0].Fetch)
		assert.Empty(t, cq.Joins[0].Predicates)
	})
}

func TestCompileProjection(t *testing.T) {
	c, m := newCompiler(t, "Person")
	summary := testutil.MustType(t, m, "PersonSummary")

	q := find(eq("active"))
	q.Projection = &queryir.Projection{Record: summary, Items: []queryir.ProjectionItem{
		{Alias: "name", PropertyPath: "name"},
		{Alias: "departmentName", PropertyPath: "department.name"},
	}}
	cq, err := c.Compile(q)
	require.NoError(t, err)

	require.Len(t, cq.Joins, 1)
	assert.Equal(t, ir.JoinLeft, cq.Joins[0].Type)
	assert.Equal(t, &compiler.CompiledProjection{Record: summary, Items: []compiler.CompiledProjectionItem{
		{Alias: "name", Column: 1, TypeCode: ir.TypeString},
		{Alias: "departmentName", Steps: []int{0}, Column: 1, TypeCode: ir.TypeString},
	}}, cq.Projection)

	t.Run("filtered join stays inner", func(t *testing.T) {
		q := find(eq("department.code"))
		q.Projection = &queryir.Projection{Record: summary, Items: []queryir.ProjectionItem{
			{Alias: "name", PropertyPath: "name"},
			{Alias: "departmentName", PropertyPath: "department.name"},
		}}
		cq, err := c.Compile(q)
		require.NoError(t, err)
		assert.Equal(t, ir.JoinInner, cq.Joins[0].Type)
	})

	t.Run("incompatible component", func(t *testing.T) {
		q := find(eq("active"))
		q.Projection = &queryir.Projection{Record: testutil.MustType(t, m, "NameAge"), Items: []queryir.ProjectionItem{
			{Alias: "name", PropertyPath: "name"},
			{Alias: "age", PropertyPath: "email"},
		}}
		qe := compileErr(t, c, q)
		assert.Equal(t, ir.ErrCodeTypeMismatch, qe.Code)
	})
}

func TestCompileGrouping(t *testing.T) {
	c, m := newCompiler(t, "Person")
	ageActive := testutil.MustType(t, m, "AgeActive")

	grouped := func(keyType *meta.Type, props ...string) *queryir.LogicalQuery {
		q := find()
		q.ReturnKind = ir.ReturnManyMap
		q.Grouping = &queryir.Grouping{Properties: props, KeyType: keyType, ValueType: ir.GroupCount}
		return q
	}

	t.Run("single key across a relationship", func(t *testing.T) {
		cq, err := c.Compile(grouped(meta.String, "department.name"))
		require.NoError(t, err)
		assert.Equal(t, &compiler.CompiledGrouping{
			Keys:      []compiler.CompiledGroupKey{{Property: "department.name", Steps: []int{0}, Column: 1, TypeCode: ir.TypeString}},
			KeyType:   meta.String,
			ValueType: ir.GroupCount,
		}, cq.Grouping)
		assert.Equal(t, ir.JoinLeft, cq.Joins[0].Type)
	})

	t.Run("record key", func(t *testing.T) {
		cq, err := c.Compile(grouped(ageActive, "age", "active"))
		require.NoError(t, err)
		assert.Equal(t, []string{"age", "active"}, cq.Grouping.KeyComponents)
		assert.Equal(t, 3, cq.Grouping.Keys[0].Column)
		assert.Equal(t, 4, cq.Grouping.Keys[1].Column)
	})

	t.Run("having reads the group count", func(t *testing.T) {
		q := grouped(meta.Integer, "age")
		q.Having = []queryir.Condition{{PropertyPath: queryir.CountProperty, Operator: ir.OpGT, ArgumentIndex: 0, Next: ir.And}}
		q.ParameterIndices, q.Arity = []int{0}, 1
		cq, err := c.Compile(q)
		require.NoError(t, err)
		assert.Equal(t, []compiler.CompiledCondition{
			{Column: -1, TypeCode: ir.TypeLong, Operator: ir.OpGT, ArgumentIndex: 0, Next: ir.And},
		}, cq.Having)
	})

	errorCases := []struct {
		name string
		q    *queryir.LogicalQuery
	}{
		{"key type mismatch", grouped(meta.Integer, "name")},
		{"component order", grouped(ageActive, "active", "age")},
		{"component count", grouped(ageActive, "age", "active", "name")},
		{"non-record key", grouped(meta.String, "age", "active")},
	}
	for _, tt := range errorCases {
		t.Run(tt.name, func(t *testing.T) {
			qe := compileErr(t, c, tt.q)
			assert.Equal(t, ir.ErrCodeGrouping, qe.Code)
		})
	}
}

func TestCompileUpdate(t *testing.T) {
	c, _ := newCompiler(t, "Person")
	q := &queryir.LogicalQuery{
		Method:            "deactivateOlderThan",
		Entity:            "Person",
		OpCode:            ir.OpUpdateQuery,
		ReturnKind:        ir.ReturnModifyingInt,
		UpdateAssignments: []queryir.UpdateAssignment{{PropertyPath: "active", ArgumentIndex: 0}},
		Conditions:        []queryir.Condition{{PropertyPath: "age", Operator: ir.OpGT, ArgumentIndex: 1, Next: ir.And}},
		BoundValues:       []ir.Value{ir.Bool(false), nil},
		ParameterIndices:  []int{-1, 0},
		Arity:             2,
	}
	cq, err := c.Compile(q)
	require.NoError(t, err)
	assert.Equal(t, []compiler.CompiledUpdateAssignment{{Column: 4, ArgumentIndex: 0}}, cq.Updates)
	assert.Equal(t, []ir.Value{ir.Bool(false), nil}, cq.BoundValues)
	assert.Equal(t, 3, cq.Conditions[0].Column)
}

func TestCompileErrors(t *testing.T) {
	c, _ := newCompiler(t, "Person")
	op := func(path string, o ir.Operator) queryir.Condition {
		return queryir.Condition{PropertyPath: path, Operator: o, Next: ir.And}
	}
	ignoreCase := func(path string) queryir.Condition {
		cond := eq(path)
		cond.IgnoreCase = true
		return cond
	}
	orderBy := func(path string) *queryir.LogicalQuery {
		q := find()
		q.OrderBy = []queryir.OrderBy{{PropertyPath: path}}
		return q
	}

	tests := []struct {
		name string
		q    *queryir.LogicalQuery
		code string
	}{
		{"unknown property", find(eq("nickname")), ir.ErrCodeUnknownProperty},
		{"scalar used as relationship", find(eq("salary.scale")), ir.ErrCodeUnknownProperty},
		{"unknown property on target", find(eq("department.budget")), ir.ErrCodeUnknownProperty},
		{"collection without property", find(eq("projects")), ir.ErrCodeUnknownProperty},
		{"nested path past relationship", find(eq("department.head.name")), ir.ErrCodeNestedPath},
		{"like on number", find(op("age", ir.OpLike)), ir.ErrCodeTypeMismatch},
		{"containing on boolean", find(op("active", ir.OpContaining)), ir.ErrCodeTypeMismatch},
		{"true on string", find(op("name", ir.OpIsTrue)), ir.ErrCodeTypeMismatch},
		{"ignore case on number", find(ignoreCase("age")), ir.ErrCodeTypeMismatch},
		{"or across join", find(queryir.Condition{PropertyPath: "name", Operator: ir.OpEQ, Next: ir.Or}, eq("department.name")), ir.ErrCodeUnsupported},
		{"order across relationship", orderBy("department.name"), ir.ErrCodeUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qe := compileErr(t, c, tt.q)
			assert.Equal(t, tt.code, qe.Code, qe.Error())
			assert.True(t, ir.IsSemanticError(qe))
			if tt.code == ir.ErrCodeUnknownProperty {
				assert.ErrorIs(t, qe, ir.ErrUnknownProperty)
			}
		})
	}

	t.Run("other entity", func(t *testing.T) {
		q := find(eq("name"))
		q.Entity = "Department"
		qe := compileErr(t, c, q)
		assert.ErrorIs(t, qe, ir.ErrUnknownEntity)
	})

	t.Run("structurally invalid plan", func(t *testing.T) {
		q := find(eq("name"))
		q.Arity = 5
		_, err := c.Compile(q)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid plan")
	})
}

func TestCompilePlannedMethods(t *testing.T) {
	m := testutil.Model(t)
	person := testutil.Person(t, m)
	p := planner.New(m)
	c := compiler.New(m, person)

	compile := func(method *meta.Method) *compiler.CompiledQuery {
		t.Helper()
		q, err := p.Plan(method, person)
		require.NoError(t, err)
		cq, err := c.Compile(q)
		require.NoError(t, err)
		return cq
	}

	t.Run("built-in findById", func(t *testing.T) {
		cq := compile(testutil.Method("findById", meta.Optional, meta.Long))
		assert.Equal(t, ir.OpFindByID, cq.OpCode)
		require.Len(t, cq.Conditions, 1)
		assert.Equal(t, 0, cq.Conditions[0].Column)
	})

	t.Run("derived across relationship", func(t *testing.T) {
		method := testutil.Method("findByDepartmentNameAndAgeGreaterThan", meta.List, meta.String, meta.PrimInt)
		method.Element = person.Type()
		cq := compile(method)
		require.Len(t, cq.Joins, 1)
		assert.Equal(t, "department", cq.Joins[0].Path)
		assert.Equal(t, 0, cq.Joins[0].Predicates[0].ArgumentIndex)
		require.Len(t, cq.Conditions, 1)
		assert.Equal(t, 3, cq.Conditions[0].Column)
		assert.Equal(t, 1, cq.Conditions[0].ArgumentIndex)
	})

	t.Run("fingerprint is stable", func(t *testing.T) {
		method := testutil.Method("findByNameIgnoreCase", meta.List, meta.String)
		method.Element = person.Type()
		first, err := compile(method).Fingerprint()
		require.NoError(t, err)
		second, err := compile(method).Fingerprint()
		require.NoError(t, err)
		assert.Equal(t, first, second)

		other := testutil.Method("findByEmailIgnoreCase", meta.List, meta.String)
		other.Element = person.Type()
		third, err := compile(other).Fingerprint()
		require.NoError(t, err)
		assert.NotEqual(t, first, third)
	})
}
