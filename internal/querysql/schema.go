package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/memris/internal/ir"
	"github.com/roach88/memris/internal/meta"
)

// LinkOwnerColumn is the column of a many-to-many link table that holds
// the owning entity's id.
const LinkOwnerColumn = "owner_id"

// LinkTable names the link table of a many-to-many relationship.
func LinkTable(entity, field string) string {
	return entity + "_" + field
}

// LinkTargetColumn names the link table column holding the target's id.
func LinkTargetColumn(field string) string {
	return field + "_id"
}

// CreateTables returns the DDL for every entity of a sealed model: one
// table per entity, plus one link table per many-to-many relationship.
func CreateTables(m *meta.Model) ([]string, error) {
	var ddl []string
	for _, e := range m.Entities() {
		stmt, err := createTable(e)
		if err != nil {
			return nil, err
		}
		ddl = append(ddl, stmt)

		for _, f := range e.Fields() {
			if f.Relationship != meta.ManyToMany {
				continue
			}
			ownerID, ok := e.IDField()
			if !ok {
				return nil, fmt.Errorf("entity %s: many-to-many %s needs an id", e.Name(), f.Name)
			}
			ddl = append(ddl, fmt.Sprintf("CREATE TABLE %s (%s %s NOT NULL, %s %s NOT NULL, PRIMARY KEY (%s, %s))",
				quote(LinkTable(e.Name(), f.Name)),
				quote(LinkOwnerColumn), affinity(ownerID.TypeCode),
				quote(LinkTargetColumn(f.Name)), affinity(f.TypeCode),
				quote(LinkOwnerColumn), quote(LinkTargetColumn(f.Name)),
			))
		}
	}
	return ddl, nil
}

func createTable(e *meta.Entity) (string, error) {
	cols := e.Columns()
	if len(cols) == 0 {
		return "", fmt.Errorf("entity %s has no columns", e.Name())
	}
	id := e.IDColumnName()
	defs := make([]string, 0, len(cols))
	for _, f := range cols {
		def := quote(f.ColumnName)
		if a := affinity(f.TypeCode); a != "" {
			def += " " + a
		}
		if f.ColumnName == id {
			def += " PRIMARY KEY"
		}
		defs = append(defs, def)
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", quote(e.Name()), strings.Join(defs, ", ")), nil
}

// affinity maps a type code to a SQLite column affinity. Objects (decimals,
// instants) get none so their stored form is kept as is.
func affinity(tc ir.TypeCode) string {
	switch tc {
	case ir.TypeLong, ir.TypeInt, ir.TypeShort, ir.TypeByte, ir.TypeBoolean:
		return "INTEGER"
	case ir.TypeFloat, ir.TypeDouble:
		return "REAL"
	case ir.TypeString, ir.TypeChar:
		return "TEXT"
	default:
		return ""
	}
}
