package querysql_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/memris/internal/compiler"
	"github.com/roach88/memris/internal/ir"
	"github.com/roach88/memris/internal/meta"
	"github.com/roach88/memris/internal/querysql"
	"github.com/roach88/memris/internal/repository"
	"github.com/roach88/memris/internal/schema"
	"github.com/roach88/memris/internal/testutil"
)

// compile plans and compiles one Person method.
func compile(t *testing.T, m *meta.Model, method *meta.Method) *compiler.CompiledQuery {
	t.Helper()
	b, err := repository.NewBuilder(m)
	require.NoError(t, err)
	repo, err := b.Build(context.Background(), repository.Definition{
		Name:    "PersonRepository",
		Entity:  "Person",
		Methods: []*meta.Method{method},
	})
	require.NoError(t, err)
	return repo.Methods[0].Compiled
}

func list(person *meta.Type, name string, params ...*meta.Type) *meta.Method {
	m := testutil.Method(name, meta.List, params...)
	m.Element = person
	return m
}

func TestCompile_Select(t *testing.T) {
	m := testutil.Model(t)
	person := testutil.Person(t, m).Type()
	c := querysql.NewSQLCompiler(m)

	tests := []struct {
		name   string
		method *meta.Method
		sql    string
	}{
		{
			"find by id",
			testutil.Method("findById", meta.Optional, meta.Long),
			`SELECT t0.* FROM "Person" AS t0 WHERE t0."id" = ?1 ORDER BY t0."id" ASC`,
		},
		{
			"count all",
			testutil.Method("count", meta.PrimLong),
			`SELECT COUNT(*) FROM "Person" AS t0`,
		},
		{
			"conjunction",
			list(person, "findByNameAndAgeGreaterThan", meta.String, meta.PrimInt),
			`SELECT t0.* FROM "Person" AS t0 WHERE t0."name" = ?1 AND t0."age" > ?2 ORDER BY t0."id" ASC`,
		},
		{
			"disjunction",
			list(person, "findByNameOrAge", meta.String, meta.PrimInt),
			`SELECT t0.* FROM "Person" AS t0 WHERE t0."name" = ?1 OR t0."age" = ?2 ORDER BY t0."id" ASC`,
		},
		{
			"limit and order",
			list(person, "findTop3ByActiveTrueOrderByCreatedAtDesc"),
			`SELECT t0.* FROM "Person" AS t0 WHERE t0."active" = 1 ORDER BY t0."createdAt" DESC, t0."id" ASC LIMIT 3`,
		},
		{
			"to-one join",
			list(person, "findByDepartmentName", meta.String),
			`SELECT t0.* FROM "Person" AS t0 JOIN "Department" AS j0 ON t0."department_id" = j0."id" WHERE j0."name" = ?1 ORDER BY t0."id" ASC`,
		},
		{
			"many-to-many join",
			list(person, "findByProjectsTitle", meta.String),
			`SELECT t0.* FROM "Person" AS t0 JOIN "Person_projects" AS l0 ON l0."owner_id" = t0."id" JOIN "Project" AS j0 ON j0."id" = l0."projects_id" WHERE j0."title" = ?1 ORDER BY t0."id" ASC`,
		},
		{
			"exists",
			testutil.Method("existsByEmail", meta.PrimBoolean, meta.String),
			`SELECT EXISTS (SELECT 1 FROM "Person" AS t0 WHERE t0."email" = ?1)`,
		},
		{
			"ignore case",
			list(person, "findByEmailIgnoreCase", meta.String),
			`SELECT t0.* FROM "Person" AS t0 WHERE lower(t0."email") = lower(?1) ORDER BY t0."id" ASC`,
		},
		{
			"grouped count",
			&meta.Method{Name: "countByDepartmentName", Returns: meta.Map, Key: meta.String, Element: meta.Long},
			`SELECT j0."name", COUNT(*) AS "count" FROM "Person" AS t0 LEFT JOIN "Department" AS j0 ON t0."department_id" = j0."id" GROUP BY j0."name" ORDER BY j0."name" ASC`,
		},
		{
			"delete by id",
			testutil.Method("deleteById", meta.Void, meta.Long),
			`DELETE FROM "Person" WHERE "id" = ?1`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt, err := c.Compile(compile(t, m, tt.method))
			require.NoError(t, err)
			assert.Equal(t, tt.sql, stmt.SQL)
			require.Len(t, stmt.Params, len(tt.method.Params))
			for i, p := range stmt.Params {
				assert.Equal(t, i+1, p.Placeholder)
				assert.Equal(t, i, p.Parameter)
			}
		})
	}
}

func TestCompile_Collections(t *testing.T) {
	m := testutil.Model(t)
	c := querysql.NewSQLCompiler(m)

	stmt, err := c.Compile(compile(t, m, testutil.Method("findAllById", meta.List, meta.Iterable)))
	require.NoError(t, err)
	assert.Equal(t, `SELECT t0.* FROM "Person" AS t0 WHERE t0."id" IN (SELECT value FROM json_each(?1)) ORDER BY t0."id" ASC`, stmt.SQL)
	assert.Equal(t, []querysql.Param{{Placeholder: 1, Parameter: 0, JSON: true}}, stmt.Params)
}

func TestCompile_EntityArguments(t *testing.T) {
	m := testutil.Model(t)
	person := testutil.Person(t, m).Type()
	c := querysql.NewSQLCompiler(m)

	save, err := c.Compile(compile(t, m, testutil.Method("save", person, person)))
	require.NoError(t, err)
	assert.Contains(t, save.SQL, `INSERT INTO "Person" ("id", "name", "email", "age"`)
	assert.Contains(t, save.SQL, `VALUES (?1, ?2, ?3, ?4`)
	assert.Contains(t, save.SQL, `ON CONFLICT ("id") DO UPDATE SET "name" = excluded."name"`)
	assert.NotContains(t, save.SQL, `"id" = excluded."id"`)
	assert.False(t, save.PerElement)
	require.Len(t, save.Params, 12)
	assert.Equal(t, querysql.Param{Placeholder: 10, Parameter: 0, Property: "address.city"}, save.Params[9])

	saveAll, err := c.Compile(compile(t, m, testutil.Method("saveAll", meta.List, meta.Iterable)))
	require.NoError(t, err)
	assert.True(t, saveAll.PerElement)

	del, err := c.Compile(compile(t, m, testutil.Method("delete", meta.Void, person)))
	require.NoError(t, err)
	assert.Equal(t, `DELETE FROM "Person" WHERE "id" = ?1`, del.SQL)
	assert.Equal(t, []querysql.Param{{Placeholder: 1, Parameter: 0, Property: "id"}}, del.Params)
}

func TestCompile_Literals(t *testing.T) {
	m := testutil.Model(t)
	c := querysql.NewSQLCompiler(m)

	q := &compiler.CompiledQuery{
		Method:     "cheapOrNamed",
		Entity:     "Person",
		OpCode:     ir.OpFind,
		ReturnKind: ir.ReturnManyList,
		Conditions: []compiler.CompiledCondition{
			{Column: 5, TypeCode: ir.TypeObject, Operator: ir.OpLT, ArgumentIndex: 0, Next: ir.And},
			{Column: 1, TypeCode: ir.TypeString, Operator: ir.OpIn, ArgumentIndex: 1, Next: ir.Or},
			{Column: 4, TypeCode: ir.TypeBoolean, Operator: ir.OpIsTrue, ArgumentIndex: -1, Next: ir.And},
		},
		BoundValues:      []ir.Value{ir.MustDecimal("10.50"), ir.Array{ir.String("a"), ir.Int(2)}},
		ParameterIndices: []int{-1, -1},
		Arity:            2,
	}
	stmt, err := c.Compile(q)
	require.NoError(t, err)
	assert.Equal(t, `SELECT t0.* FROM "Person" AS t0 WHERE (t0."salary" < ?1 AND t0."name" IN (SELECT value FROM json_each(?2))) OR t0."active" = 1 ORDER BY t0."id" ASC`, stmt.SQL)
	assert.Equal(t, []querysql.Param{
		{Placeholder: 1, Parameter: -1, Value: "10.5"},
		{Placeholder: 2, Parameter: -1, Value: `["a",2]`, JSON: true},
	}, stmt.Params)
	assert.NotContains(t, stmt.SQL, "10.5")
}

func TestCompile_Errors(t *testing.T) {
	m := testutil.Model(t)
	c := querysql.NewSQLCompiler(m)

	_, err := c.Compile(nil)
	require.Error(t, err)

	_, err = c.Compile(&compiler.CompiledQuery{Method: "x", Entity: "Nobody"})
	require.ErrorIs(t, err, ir.ErrUnknownEntity)

	_, err = c.Compile(&compiler.CompiledQuery{
		Method:     "x",
		Entity:     "Person",
		OpCode:     ir.OpFind,
		Conditions: []compiler.CompiledCondition{{Column: 99, Operator: ir.OpEQ}},
		Arity:      1, ParameterIndices: []int{0},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no column 99")
}

func TestCreateTables(t *testing.T) {
	m := testutil.Model(t)
	ddl, err := querysql.CreateTables(m)
	require.NoError(t, err)

	assert.Contains(t, ddl, `CREATE TABLE "Project" ("id" INTEGER PRIMARY KEY, "title" TEXT, "budget" INTEGER)`)
	assert.Contains(t, ddl, `CREATE TABLE "Person_projects" ("owner_id" INTEGER NOT NULL, "projects_id" INTEGER NOT NULL, PRIMARY KEY ("owner_id", "projects_id"))`)
	for _, stmt := range ddl {
		assert.NotContains(t, stmt, `"Address"`)
	}
}

// TestStatementsPrepare checks every rendered statement against a real
// SQLite database built from the same model.
func TestStatementsPrepare(t *testing.T) {
	for _, file := range []string{"people.yaml", "shop.cue"} {
		t.Run(file, func(t *testing.T) {
			s, err := schema.LoadFile(filepath.Join("../../testdata/schemas", file))
			require.NoError(t, err)

			db, err := sql.Open("sqlite3", ":memory:")
			require.NoError(t, err)
			defer db.Close()

			ddl, err := querysql.CreateTables(s.Model)
			require.NoError(t, err)
			for _, stmt := range ddl {
				_, err := db.Exec(stmt)
				require.NoError(t, err, stmt)
			}

			b, err := repository.NewBuilder(s.Model)
			require.NoError(t, err)
			repos, err := b.BuildAll(context.Background(), s.Repositories)
			require.NoError(t, err)

			c := querysql.NewSQLCompiler(s.Model)
			for _, repo := range repos {
				for _, method := range repo.Methods {
					stmt, err := c.Compile(method.Compiled)
					require.NoError(t, err, method.Descriptor.Name)
					prepared, err := db.Prepare(stmt.SQL)
					require.NoError(t, err, stmt.SQL)
					require.NoError(t, prepared.Close())
				}
			}
		})
	}
}
