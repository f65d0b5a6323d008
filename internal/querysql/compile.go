// Package querysql renders compiled repository methods as SQLite
// statements. The output backs the explain command and the plan catalog;
// it is a readable rendering of a CompiledQuery, not an execution path.
package querysql

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/memris/internal/compiler"
	"github.com/roach88/memris/internal/ir"
	"github.com/roach88/memris/internal/meta"
)

// RootAlias is the table alias of the queried entity. Join i is aliased
// "j<i>".
const RootAlias = "t0"

// Statement is one parameterized SQLite statement.
type Statement struct {
	SQL    string  `json:"sql"`
	Params []Param `json:"params,omitempty"`

	// PerElement marks statements executed once per element of an iterable
	// argument (saveAll).
	PerElement bool `json:"per_element,omitempty"`
}

// Param describes what fills placeholder ?<Placeholder>.
type Param struct {
	Placeholder int `json:"placeholder"`

	// Parameter is the method parameter index, or -1 for a literal.
	Parameter int `json:"parameter"`

	// Property is set when the value is read from a property of an entity
	// argument (save, delete).
	Property string `json:"property,omitempty"`

	// Value is the literal bound at compile time.
	Value any `json:"value,omitempty"`

	// JSON marks collections, which are bound as a JSON array and read
	// with json_each.
	JSON bool `json:"json,omitempty"`
}

// SQLCompiler renders CompiledQuery values as SQLite SQL.
//
// CRITICAL: Values are never interpolated. Argument slot i is the numbered
// placeholder ?(i+1).
// CRITICAL: Every multi-row SELECT ends its ORDER BY with the root id so
// results are deterministic.
type SQLCompiler struct {
	entities meta.Resolver
}

// NewSQLCompiler creates a new SQLCompiler.
func NewSQLCompiler(entities meta.Resolver) *SQLCompiler {
	return &SQLCompiler{entities: entities}
}

// rendering holds the per-statement state.
type rendering struct {
	q       *compiler.CompiledQuery
	root    meta.EntityDescriptor
	targets []meta.EntityDescriptor
	aliases map[string]string // join path -> alias
	json    map[int]bool      // slots read by IN / NOT_IN

	// rootAlias is empty for single-table DELETE and UPDATE statements.
	rootAlias string
}

// Compile converts a CompiledQuery to a parameterized SQLite statement.
func (c *SQLCompiler) Compile(q *compiler.CompiledQuery) (*Statement, error) {
	if q == nil {
		return nil, fmt.Errorf("cannot compile nil query")
	}
	root, err := c.entities.Entity(q.Entity)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", q.Method, err)
	}
	r := &rendering{
		q:         q,
		root:      root,
		aliases:   make(map[string]string, len(q.Joins)),
		json:      make(map[int]bool),
		rootAlias: RootAlias,
	}
	for i, j := range q.Joins {
		target, err := c.entities.Entity(j.TargetEntity)
		if err != nil {
			return nil, fmt.Errorf("render %s: join %s: %w", q.Method, j.Path, err)
		}
		r.targets = append(r.targets, target)
		r.aliases[j.Path] = fmt.Sprintf("j%d", i)
	}

	var stmt *Statement
	switch q.OpCode {
	case ir.OpSaveOne, ir.OpSaveAll:
		stmt, err = r.upsert()
	case ir.OpDeleteOne:
		stmt, err = r.deleteEntity()
	case ir.OpDeleteAll, ir.OpDeleteByID, ir.OpDeleteAllByID, ir.OpDeleteQuery:
		stmt, err = r.delete()
	case ir.OpUpdateQuery:
		stmt, err = r.update()
	case ir.OpCount, ir.OpCountAll:
		stmt, err = r.count()
	case ir.OpExists, ir.OpExistsByID:
		stmt, err = r.exists()
	default:
		stmt, err = r.selectRows()
	}
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", q.Method, err)
	}
	return stmt, nil
}

// selectRows renders the find operations, including projections and
// grouping.
func (r *rendering) selectRows() (*Statement, error) {
	q := r.q
	var cols []string
	var groupBy []string
	grouped := q.Grouping != nil

	switch {
	case q.Projection != nil:
		for _, item := range q.Projection.Items {
			col, err := r.column(r.stepAlias(item.Steps), r.entityAt(item.Steps), item.Column)
			if err != nil {
				return nil, err
			}
			cols = append(cols, col+" AS "+quote(item.Alias))
		}
	case grouped:
		for _, key := range q.Grouping.Keys {
			col, err := r.column(r.stepAlias(key.Steps), r.entityAt(key.Steps), key.Column)
			if err != nil {
				return nil, err
			}
			groupBy = append(groupBy, col)
		}
		cols = append(cols, groupBy...)
		if q.Grouping.ValueType == ir.GroupCount {
			cols = append(cols, "COUNT(*) AS "+quote("count"))
		} else {
			cols = append(cols, RootAlias+".*")
		}
	default:
		cols = append(cols, RootAlias+".*")
		for i, j := range q.Joins {
			if j.Fetch {
				cols = append(cols, fmt.Sprintf("j%d.*", i))
			}
		}
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	if q.Distinct {
		sb.WriteString("DISTINCT ")
	}
	sb.WriteString(strings.Join(cols, ", "))
	from, err := r.from()
	if err != nil {
		return nil, err
	}
	sb.WriteString(from)
	if err := r.writeWhere(&sb); err != nil {
		return nil, err
	}

	countGroups := grouped && q.Grouping.ValueType == ir.GroupCount
	if len(q.Having) > 0 && !countGroups {
		return nil, fmt.Errorf("HAVING needs a counted grouping")
	}
	if countGroups {
		sb.WriteString(" GROUP BY " + strings.Join(groupBy, ", "))
		if len(q.Having) > 0 {
			having, err := r.having()
			if err != nil {
				return nil, err
			}
			sb.WriteString(" HAVING " + having)
		}
	}

	order, err := r.orderBy(groupBy, !countGroups && !(q.Distinct && q.Projection != nil))
	if err != nil {
		return nil, err
	}
	if order != "" {
		sb.WriteString(" ORDER BY " + order)
	}
	if q.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", q.Limit)
	}
	return r.statement(sb.String())
}

func (r *rendering) count() (*Statement, error) {
	what := "COUNT(*)"
	if r.q.Distinct || len(r.q.Joins) > 0 {
		id, err := r.idColumn()
		if err != nil {
			return nil, err
		}
		what = "COUNT(DISTINCT " + id + ")"
	}
	var sb strings.Builder
	sb.WriteString("SELECT " + what)
	from, err := r.from()
	if err != nil {
		return nil, err
	}
	sb.WriteString(from)
	if err := r.writeWhere(&sb); err != nil {
		return nil, err
	}
	return r.statement(sb.String())
}

func (r *rendering) exists() (*Statement, error) {
	var sb strings.Builder
	sb.WriteString("SELECT EXISTS (SELECT 1")
	from, err := r.from()
	if err != nil {
		return nil, err
	}
	sb.WriteString(from)
	if err := r.writeWhere(&sb); err != nil {
		return nil, err
	}
	sb.WriteString(")")
	return r.statement(sb.String())
}

// delete renders DELETE statements. Joined filters select the doomed ids
// in a subquery since SQLite's DELETE takes a single table.
func (r *rendering) delete() (*Statement, error) {
	var sb strings.Builder
	sb.WriteString("DELETE FROM " + quote(r.root.Name()))
	if err := r.writeModifyingFilter(&sb); err != nil {
		return nil, err
	}
	if r.q.ReturnKind == ir.ReturnManyList {
		sb.WriteString(" RETURNING *")
	}
	return r.statement(sb.String())
}

func (r *rendering) update() (*Statement, error) {
	sets := make([]string, 0, len(r.q.Updates))
	for _, u := range r.q.Updates {
		col, err := r.column("", r.root, u.Column)
		if err != nil {
			return nil, err
		}
		sets = append(sets, fmt.Sprintf("%s = %s", col, placeholder(u.ArgumentIndex)))
	}

	var sb strings.Builder
	sb.WriteString("UPDATE " + quote(r.root.Name()) + " SET " + strings.Join(sets, ", "))
	if err := r.writeModifyingFilter(&sb); err != nil {
		return nil, err
	}
	return r.statement(sb.String())
}

// writeModifyingFilter writes the WHERE clause of a DELETE or UPDATE.
func (r *rendering) writeModifyingFilter(sb *strings.Builder) error {
	if len(r.q.Joins) == 0 {
		r.rootAlias = ""
		defer func() { r.rootAlias = RootAlias }()
		return r.writeWhere(sb)
	}

	id, err := r.idColumn()
	if err != nil {
		return err
	}
	from, err := r.from()
	if err != nil {
		return err
	}
	fmt.Fprintf(sb, " WHERE %s IN (SELECT %s%s", quote(r.root.IDColumnName()), id, from)
	if err := r.writeWhere(sb); err != nil {
		return err
	}
	sb.WriteString(")")
	return nil
}

// upsert renders save and saveAll: every column is read from the entity
// argument, and an existing row with the same id is overwritten.
func (r *rendering) upsert() (*Statement, error) {
	id := r.root.IDColumnName()
	var cols, values, sets []string
	stmt := &Statement{PerElement: r.q.OpCode == ir.OpSaveAll}
	for pos := 0; ; pos++ {
		f, ok := r.root.ColumnField(pos)
		if !ok {
			break
		}
		cols = append(cols, quote(f.ColumnName))
		values = append(values, placeholder(pos))
		if f.ColumnName != id {
			sets = append(sets, fmt.Sprintf("%s = excluded.%s", quote(f.ColumnName), quote(f.ColumnName)))
		}
		stmt.Params = append(stmt.Params, Param{Placeholder: pos + 1, Parameter: 0, Property: f.Name})
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("entity %s has no columns", r.root.Name())
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO ",
		quote(r.root.Name()), strings.Join(cols, ", "), strings.Join(values, ", "), quote(id))
	if len(sets) == 0 {
		sb.WriteString("NOTHING")
	} else {
		sb.WriteString("UPDATE SET " + strings.Join(sets, ", "))
	}
	stmt.SQL = sb.String()
	return stmt, nil
}

// deleteEntity renders delete(entity): the row is found by the argument's id.
func (r *rendering) deleteEntity() (*Statement, error) {
	idField, ok := r.idField()
	if !ok {
		return nil, fmt.Errorf("entity %s has no id field", r.root.Name())
	}
	return &Statement{
		SQL:    fmt.Sprintf("DELETE FROM %s WHERE %s = ?1", quote(r.root.Name()), quote(idField.ColumnName)),
		Params: []Param{{Placeholder: 1, Parameter: 0, Property: idField.Name}},
	}, nil
}

func (r *rendering) idField() (*meta.Field, bool) {
	pos, err := r.root.ResolveColumnPosition(r.root.IDColumnName())
	if err != nil {
		return nil, false
	}
	return r.root.ColumnField(pos)
}

func (r *rendering) idColumn() (string, error) {
	pos, err := r.root.ResolveColumnPosition(r.root.IDColumnName())
	if err != nil {
		return "", err
	}
	return r.column(r.rootAlias, r.root, pos)
}

// from renders the FROM clause with every join.
func (r *rendering) from() (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, " FROM %s AS %s", quote(r.root.Name()), RootAlias)
	for i, j := range r.q.Joins {
		kw := " JOIN "
		if j.Type == ir.JoinLeft {
			kw = " LEFT JOIN "
		}
		source := r.sourceEntity(j)
		sourceAlias := r.parentAlias(j.Path)
		target := r.targets[i]
		alias := r.aliases[j.Path]

		sourceCol, err := r.column(sourceAlias, source, j.SourceColumn)
		if err != nil {
			return "", err
		}
		targetCol, err := r.column(alias, target, j.TargetColumn)
		if err != nil {
			return "", err
		}

		if f, ok := source.Field(j.Field); ok && f.Relationship == meta.ManyToMany {
			link := fmt.Sprintf("l%d", i)
			sb.WriteString(kw + quote(LinkTable(source.Name(), j.Field)) + " AS " + link +
				" ON " + link + "." + quote(LinkOwnerColumn) + " = " + sourceCol)
			sb.WriteString(kw + quote(target.Name()) + " AS " + alias +
				" ON " + targetCol + " = " + link + "." + quote(LinkTargetColumn(j.Field)))
			continue
		}
		sb.WriteString(kw + quote(target.Name()) + " AS " + alias + " ON " + sourceCol + " = " + targetCol)
	}
	return sb.String(), nil
}

// sourceEntity returns the entity a join starts from.
func (r *rendering) sourceEntity(j compiler.CompiledJoin) meta.EntityDescriptor {
	parent, _, found := cutLast(j.Path)
	if !found {
		return r.root
	}
	for i, other := range r.q.Joins {
		if other.Path == parent {
			return r.targets[i]
		}
	}
	return r.root
}

func (r *rendering) parentAlias(path string) string {
	parent, _, found := cutLast(path)
	if !found {
		return RootAlias
	}
	if alias, ok := r.aliases[parent]; ok {
		return alias
	}
	return RootAlias
}

func cutLast(path string) (before, after string, found bool) {
	i := strings.LastIndexByte(path, '.')
	if i < 0 {
		return "", path, false
	}
	return path[:i], path[i+1:], true
}

// stepAlias returns the alias of the entity reached by the traversal steps.
func (r *rendering) stepAlias(steps []int) string {
	if len(steps) == 0 {
		return r.rootAlias
	}
	return fmt.Sprintf("j%d", steps[len(steps)-1])
}

func (r *rendering) entityAt(steps []int) meta.EntityDescriptor {
	if len(steps) == 0 {
		return r.root
	}
	return r.targets[steps[len(steps)-1]]
}

// writeWhere renders the root condition chain and the join predicates.
// AND binds tighter than OR, so the chain splits into OR-ed groups.
func (r *rendering) writeWhere(sb *strings.Builder) error {
	var parts []string

	chain, err := r.conditionChain()
	if err != nil {
		return err
	}
	if chain != "" {
		parts = append(parts, chain)
	}
	for i, j := range r.q.Joins {
		alias := fmt.Sprintf("j%d", i)
		for _, p := range j.Predicates {
			col, err := r.column(alias, r.targets[i], p.Column)
			if err != nil {
				return err
			}
			pred, err := r.predicate(col, p.Operator, p.ArgumentIndex, p.IgnoreCase)
			if err != nil {
				return err
			}
			parts = append(parts, pred)
		}
	}
	if len(parts) == 0 {
		return nil
	}
	if len(parts) > 1 && strings.Contains(chain, " OR ") {
		parts[0] = "(" + parts[0] + ")"
	}
	sb.WriteString(" WHERE " + strings.Join(parts, " AND "))
	return nil
}

func (r *rendering) conditionChain() (string, error) {
	var groups [][]string
	var current []string
	for i, c := range r.q.Conditions {
		col, err := r.column(r.rootAlias, r.root, c.Column)
		if err != nil {
			return "", err
		}
		pred, err := r.predicate(col, c.Operator, c.ArgumentIndex, c.IgnoreCase)
		if err != nil {
			return "", err
		}
		current = append(current, pred)
		if c.Next == ir.Or && i < len(r.q.Conditions)-1 {
			groups = append(groups, current)
			current = nil
		}
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}

	switch len(groups) {
	case 0:
		return "", nil
	case 1:
		return strings.Join(groups[0], " AND "), nil
	}
	rendered := make([]string, len(groups))
	for i, g := range groups {
		rendered[i] = strings.Join(g, " AND ")
		if len(g) > 1 {
			rendered[i] = "(" + rendered[i] + ")"
		}
	}
	return strings.Join(rendered, " OR "), nil
}

func (r *rendering) having() (string, error) {
	parts := make([]string, 0, len(r.q.Having))
	for _, h := range r.q.Having {
		pred, err := r.predicate("COUNT(*)", h.Operator, h.ArgumentIndex, false)
		if err != nil {
			return "", err
		}
		parts = append(parts, pred)
	}
	return strings.Join(parts, " AND "), nil
}

// predicate renders one operator over col. Argument slots become numbered
// placeholders; nothing is interpolated.
func (r *rendering) predicate(col string, op ir.Operator, arg int, ignoreCase bool) (string, error) {
	p := placeholder(arg)
	if ignoreCase || op == ir.OpIgnoreCaseEQ || op == ir.OpIgnoreCaseLike {
		col, p = "lower("+col+")", "lower("+p+")"
	}

	switch op {
	case ir.OpEQ, ir.OpIgnoreCaseEQ:
		return col + " = " + p, nil
	case ir.OpNE:
		return col + " <> " + p, nil
	case ir.OpGT, ir.OpAfter:
		return col + " > " + p, nil
	case ir.OpGTE:
		return col + " >= " + p, nil
	case ir.OpLT, ir.OpBefore:
		return col + " < " + p, nil
	case ir.OpLTE:
		return col + " <= " + p, nil
	case ir.OpBetween:
		return fmt.Sprintf("%s BETWEEN %s AND %s", col, p, placeholder(arg+1)), nil
	case ir.OpIn, ir.OpNotIn:
		r.json[arg] = true
		not := ""
		if op == ir.OpNotIn {
			not = "NOT "
		}
		return fmt.Sprintf("%s %sIN (SELECT value FROM json_each(%s))", col, not, placeholder(arg)), nil
	case ir.OpLike, ir.OpIgnoreCaseLike:
		return col + " LIKE " + p, nil
	case ir.OpNotLike:
		return col + " NOT LIKE " + p, nil
	case ir.OpStartingWith:
		return col + " LIKE " + p + " || '%'", nil
	case ir.OpNotStartingWith:
		return col + " NOT LIKE " + p + " || '%'", nil
	case ir.OpEndingWith:
		return col + " LIKE '%' || " + p, nil
	case ir.OpNotEndingWith:
		return col + " NOT LIKE '%' || " + p, nil
	case ir.OpContaining:
		return col + " LIKE '%' || " + p + " || '%'", nil
	case ir.OpNotContaining:
		return col + " NOT LIKE '%' || " + p + " || '%'", nil
	case ir.OpIsNull:
		return col + " IS NULL", nil
	case ir.OpNotNull:
		return col + " IS NOT NULL", nil
	case ir.OpIsTrue:
		return col + " = 1", nil
	case ir.OpIsFalse:
		return col + " = 0", nil
	default:
		return "", fmt.Errorf("unsupported operator %s", op)
	}
}

// orderBy renders the sort keys: grouping keys first, then the requested
// order, then the root id as tiebreaker when stable is set.
func (r *rendering) orderBy(groupKeys []string, stable bool) (string, error) {
	var parts []string
	seen := make(map[string]bool)
	for _, k := range groupKeys {
		parts = append(parts, k+" ASC")
		seen[k] = true
	}
	for _, o := range r.q.OrderBy {
		col, err := r.column(r.rootAlias, r.root, o.Column)
		if err != nil {
			return "", err
		}
		if seen[col] {
			continue
		}
		seen[col] = true
		dir := " ASC"
		if !o.Ascending {
			dir = " DESC"
		}
		parts = append(parts, col+dir)
	}
	if stable {
		id, err := r.idColumn()
		if err != nil {
			return "", err
		}
		if !seen[id] {
			parts = append(parts, id+" ASC")
		}
	}
	return strings.Join(parts, ", "), nil
}

// column renders a column reference, qualified by alias when set.
func (r *rendering) column(alias string, e meta.EntityDescriptor, pos int) (string, error) {
	f, ok := e.ColumnField(pos)
	if !ok {
		return "", fmt.Errorf("entity %s has no column %d", e.Name(), pos)
	}
	if alias == "" {
		return quote(f.ColumnName), nil
	}
	return alias + "." + quote(f.ColumnName), nil
}

// statement attaches the slot parameters to sql.
func (r *rendering) statement(sql string) (*Statement, error) {
	params, err := r.params()
	if err != nil {
		return nil, err
	}
	return &Statement{SQL: sql, Params: params}, nil
}

// params describes every argument slot: a method parameter or a literal.
func (r *rendering) params() ([]Param, error) {
	q := r.q
	if q.Arity == 0 {
		return nil, nil
	}
	out := make([]Param, q.Arity)
	for i := range out {
		out[i] = Param{Placeholder: i + 1, Parameter: -1, JSON: r.json[i]}
		if i < len(q.ParameterIndices) && q.ParameterIndices[i] >= 0 {
			out[i].Parameter = q.ParameterIndices[i]
			continue
		}
		if i >= len(q.BoundValues) {
			return nil, fmt.Errorf("slot %d has neither a parameter nor a literal", i)
		}
		v, err := valueToParam(q.BoundValues[i])
		if err != nil {
			return nil, fmt.Errorf("slot %d: %w", i, err)
		}
		out[i].Value = v
	}
	return out, nil
}

// valueToParam converts a literal to a Go value SQLite can bind.
// Decimals bind as text to keep their exact digits; arrays bind as JSON.
func valueToParam(v ir.Value) (any, error) {
	switch val := v.(type) {
	case ir.String:
		return string(val), nil
	case ir.Int:
		return int64(val), nil
	case ir.Bool:
		return bool(val), nil
	case ir.Decimal:
		return val.String(), nil
	case ir.Null:
		return nil, nil
	case ir.Array:
		items := make([]any, len(val))
		for i, item := range val {
			p, err := valueToParam(item)
			if err != nil {
				return nil, err
			}
			items[i] = p
		}
		data, err := json.Marshal(items)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported literal type %T", v)
	}
}

func placeholder(slot int) string {
	return fmt.Sprintf("?%d", slot+1)
}

func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
