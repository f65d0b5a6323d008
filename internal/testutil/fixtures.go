package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/memris/internal/meta"
)

// Model builds the shared test schema:
//
//	Address    (embeddable) street, city, zip
//	Department id, name, code, employees -> Person (one-to-many via department_id)
//	Project    id, title, budget
//	Person     id, name, email, age, active, salary, createdAt, addressLine,
//	           address (embedded), department (many-to-one), projects (many-to-many)
//
// and the records NameAge(name, age), PersonSummary(name, departmentName),
// AgeActive(age, active).
func Model(t testing.TB) *meta.Model {
	t.Helper()
	m, err := BuildModel()
	require.NoError(t, err)
	return m
}

// BuildModel is Model without a testing.TB, for benchmarks and examples.
func BuildModel() (*meta.Model, error) {
	m := meta.NewModel()

	nameAge, err := meta.NewRecord("NameAge",
		meta.Component{Name: "name", Type: meta.String},
		meta.Component{Name: "age", Type: meta.PrimInt},
	)
	if err != nil {
		return nil, err
	}
	summary, err := meta.NewRecord("PersonSummary",
		meta.Component{Name: "name", Type: meta.String},
		meta.Component{Name: "departmentName", Type: meta.String},
	)
	if err != nil {
		return nil, err
	}
	ageActive, err := meta.NewRecord("AgeActive",
		meta.Component{Name: "age", Type: meta.Integer},
		meta.Component{Name: "active", Type: meta.Boolean},
	)
	if err != nil {
		return nil, err
	}
	for _, rec := range []*meta.Type{nameAge, summary, ageActive} {
		if err := m.DefineType(rec); err != nil {
			return nil, err
		}
	}

	specs := []meta.EntitySpec{
		{
			Name:       "Address",
			Package:    "com.example",
			Embeddable: true,
			Fields: []meta.FieldSpec{
				{Name: "street", Type: "String"},
				{Name: "city", Type: "String"},
				{Name: "zip", Type: "String"},
			},
		},
		{
			Name:    "Department",
			Package: "com.example",
			ID:      "id",
			Fields: []meta.FieldSpec{
				{Name: "id", Type: "long"},
				{Name: "name", Type: "String"},
				{Name: "code", Type: "String"},
				{Name: "employees", Relationship: meta.OneToMany, Target: "Person", Column: "department_id"},
			},
		},
		{
			Name:    "Project",
			Package: "com.example",
			ID:      "id",
			Fields: []meta.FieldSpec{
				{Name: "id", Type: "Long"},
				{Name: "title", Type: "String"},
				{Name: "budget", Type: "long"},
			},
		},
		{
			Name:    "Person",
			Package: "com.example",
			ID:      "id",
			Fields: []meta.FieldSpec{
				{Name: "id", Type: "Long"},
				{Name: "name", Type: "String"},
				{Name: "email", Type: "String"},
				{Name: "age", Type: "int"},
				{Name: "active", Type: "boolean"},
				{Name: "salary", Type: "BigDecimal"},
				{Name: "createdAt", Type: "Instant"},
				{Name: "addressLine", Type: "String", Column: "address_line"},
				{Name: "address", Embedded: true, Target: "Address"},
				{Name: "department", Relationship: meta.ManyToOne, Target: "Department"},
				{Name: "projects", Relationship: meta.ManyToMany, Target: "Project"},
			},
		},
	}
	for _, spec := range specs {
		if _, err := m.AddEntity(spec); err != nil {
			return nil, err
		}
	}
	if err := m.Seal(); err != nil {
		return nil, err
	}
	return m, nil
}

// Person returns the Person entity of m.
func Person(t testing.TB, m *meta.Model) meta.EntityDescriptor {
	t.Helper()
	e, err := m.Entity("Person")
	require.NoError(t, err)
	return e
}

// MustType looks up a type by name.
func MustType(t testing.TB, m *meta.Model, name string) *meta.Type {
	t.Helper()
	typ, err := m.Type(name)
	require.NoError(t, err)
	return typ
}

// Method builds a method descriptor with unnamed parameters.
func Method(name string, returns *meta.Type, params ...*meta.Type) *meta.Method {
	m := &meta.Method{Name: name, Returns: returns}
	for _, p := range params {
		m.Params = append(m.Params, meta.Param{Type: p})
	}
	return m
}
