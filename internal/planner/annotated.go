package planner

import (
	"fmt"

	"github.com/roach88/memris/internal/ir"
	"github.com/roach88/memris/internal/jpql"
	"github.com/roach88/memris/internal/meta"
	"github.com/roach88/memris/internal/queryir"
)

// annotated plans one annotated query. Slots are assigned while walking
// the statement in source order, so WHERE binds before HAVING and UPDATE
// assignments bind before WHERE.
type annotated struct {
	p      *Planner
	m      *meta.Method
	entity meta.EntityDescriptor
	binder *jpql.Binder
}

func (p *Planner) planAnnotated(m *meta.Method, entity meta.EntityDescriptor) (*queryir.LogicalQuery, error) {
	if m.Query.Native {
		return nil, ir.SemanticError(ir.ErrCodeUnsupported, "", "native queries are not supported")
	}
	stmt, err := jpql.Parse(m.Query.Text)
	if err != nil {
		return nil, err
	}

	names := make([]string, len(m.Params))
	for i, param := range m.Params {
		names[i] = param.Name
	}
	a := &annotated{p: p, m: m, entity: entity, binder: jpql.NewBinder(names)}

	var q *queryir.LogicalQuery
	switch s := stmt.(type) {
	case *jpql.SelectStatement:
		q, err = a.selectQuery(s)
	case *jpql.UpdateStatement:
		q, err = a.updateQuery(s)
	case *jpql.DeleteStatement:
		q, err = a.deleteQuery(s)
	}
	if err != nil {
		return nil, err
	}

	q.Arity = a.binder.Arity()
	q.ParameterIndices = a.binder.ParameterIndices()
	q.BoundValues = a.binder.Values()
	return q, nil
}

func (a *annotated) checkEntity(name string) error {
	if name == a.entity.Name() || name == a.entity.QualifiedName() {
		return nil
	}
	return &ir.QueryError{
		Kind:    ir.KindSemantic,
		Code:    ir.ErrCodeUnknownEntity,
		Pos:     -1,
		Message: fmt.Sprintf("query targets entity %s but the repository manages %s", name, a.entity.Name()),
		Err:     ir.ErrUnknownEntity,
	}
}

func (a *annotated) selectQuery(s *jpql.SelectStatement) (*queryir.LogicalQuery, error) {
	if a.m.Modifying {
		return nil, ir.SemanticError(ir.ErrCodeModifying, "", "the modifying marker applies to UPDATE and DELETE queries only")
	}
	if err := a.checkEntity(s.Entity); err != nil {
		return nil, err
	}

	q := &queryir.LogicalQuery{OpCode: ir.OpFind, Distinct: s.Distinct}
	if parts, err := parseModifiers(a.m.Name); err == nil {
		q.Limit = parts.limit
	}

	if err := a.shape(s, q); err != nil {
		return nil, err
	}

	for _, j := range s.Joins {
		join, err := a.join(j)
		if err != nil {
			return nil, err
		}
		q.Joins = append(q.Joins, join)
	}

	conds, err := a.conditions(s.Where, false)
	if err != nil {
		return nil, err
	}
	q.Conditions = conds

	if s.Having != nil {
		if q.Grouping == nil {
			return nil, ir.SemanticError(ir.ErrCodeGrouping, "", "HAVING needs GROUP BY")
		}
		having, err := a.conditions(s.Having, true)
		if err != nil {
			return nil, err
		}
		q.Having = having
	}

	for _, o := range s.OrderBy {
		q.OrderBy = append(q.OrderBy, queryir.OrderBy{PropertyPath: o.Path.String(), Ascending: !o.Desc})
	}
	if q.Grouping != nil && len(q.OrderBy) > 0 {
		return nil, ir.SemanticError(ir.ErrCodeGrouping, "", "grouping queries do not support ORDER BY")
	}
	return q, nil
}

// shape settles the op code, return kind, projection and grouping of a
// SELECT from its select list and the method's return type.
func (a *annotated) shape(s *jpql.SelectStatement, q *queryir.LogicalQuery) error {
	m := a.m
	isMap := m.Returns == meta.Map

	switch {
	case len(s.GroupBy) > 0:
		if !isMap {
			return ir.SemanticError(ir.ErrCodeGrouping, "", "GROUP BY needs a Map return type, not %s", m.Returns)
		}
		if !s.Count {
			return ir.SemanticError(ir.ErrCodeGrouping, "", "GROUP BY queries select COUNT of the root alias")
		}
		if m.Key == nil {
			return ir.SemanticError(ir.ErrCodeGrouping, "", "Map return type must declare its key type")
		}
		props := make([]string, len(s.GroupBy))
		for i, path := range s.GroupBy {
			props[i] = path.String()
		}
		if len(props) > 1 && !m.Key.IsRecord() {
			return ir.SemanticError(ir.ErrCodeGrouping, "",
				"grouping by %d properties needs a record key type, not %s", len(props), m.Key)
		}
		q.Grouping = &queryir.Grouping{Properties: props, KeyType: m.Key, ValueType: ir.GroupCount}
		q.ReturnKind = ir.ReturnManyMap
		return nil

	case isMap:
		return ir.SemanticError(ir.ErrCodeGrouping, "", "Map return types need GROUP BY")

	case s.Count:
		if b := returnsOrVoid(m).Boxed(); b != meta.Long && b != meta.Integer {
			return ir.SemanticError(ir.ErrCodeReturnType, "", "COUNT queries return long, not %s", m.Returns)
		}
		q.OpCode, q.ReturnKind = ir.OpCount, ir.ReturnCountLong
		return nil

	case len(s.Items) > 0:
		return a.projection(s.Items, q)
	}

	if b := returnsOrVoid(m).Boxed(); b == meta.Long || b == meta.Integer {
		return ir.SemanticError(ir.ErrCodeReturnType, "", "a %s return needs SELECT COUNT", m.Returns)
	}
	if isRecordReturn(m) {
		return ir.SemanticError(ir.ErrCodeProjection, "", "record returns need aliased select items")
	}
	rk, err := derivedReturn(findKind, m, a.entity)
	if err != nil {
		return err
	}
	q.ReturnKind = rk
	return nil
}

func (a *annotated) projection(items []jpql.SelectItem, q *queryir.LogicalQuery) error {
	m := a.m
	var record *meta.Type
	switch {
	case m.Returns != nil && m.Returns.IsRecord():
		record, q.ReturnKind = m.Returns, ir.ReturnOneOptional
	case isRecordReturn(m):
		record = m.Element
		switch m.Returns {
		case meta.Optional:
			q.ReturnKind = ir.ReturnOneOptional
		case meta.Set:
			q.ReturnKind = ir.ReturnManySet
		default:
			q.ReturnKind = ir.ReturnManyList
		}
	default:
		return ir.SemanticError(ir.ErrCodeProjection, "", "select items need a record return type, not %s", m.Returns)
	}

	byAlias := make(map[string]string, len(items))
	for _, it := range items {
		if it.Alias == "" {
			return ir.SemanticError(ir.ErrCodeProjection, "", "select item %q needs an alias naming a %s component", it.Path.String(), record)
		}
		if _, dup := byAlias[it.Alias]; dup {
			return ir.SemanticError(ir.ErrCodeProjection, "", "duplicate select alias %q", it.Alias)
		}
		if _, ok := record.Component(it.Alias); !ok {
			return ir.SemanticError(ir.ErrCodeProjection, "", "record %s has no component %q", record, it.Alias)
		}
		byAlias[it.Alias] = it.Path.String()
	}
	if len(byAlias) != len(record.Components) {
		return ir.SemanticError(ir.ErrCodeProjection, "",
			"record %s has %d components but the query selects %d", record, len(record.Components), len(byAlias))
	}

	// Items follow component order so the engine can construct the record
	// positionally.
	proj := &queryir.Projection{Record: record}
	for _, c := range record.Components {
		proj.Items = append(proj.Items, queryir.ProjectionItem{Alias: c.Name, PropertyPath: byAlias[c.Name]})
	}
	q.Projection = proj
	return nil
}

// join resolves the entity a join path lands on. Every segment must be a
// relationship.
func (a *annotated) join(j jpql.JoinClause) (queryir.Join, error) {
	var cur meta.EntityDescriptor = a.entity
	for _, seg := range j.Path.Segments {
		f, ok := cur.Field(seg)
		if !ok {
			return queryir.Join{}, ir.UnknownPropertyError("", cur.Name(), seg)
		}
		if !f.IsRelationship() {
			return queryir.Join{}, ir.SemanticError(ir.ErrCodeRelationship, "", "cannot join %q: not a relationship", j.Path.String())
		}
		target, err := a.p.md.Entity(f.TargetEntity)
		if err != nil {
			return queryir.Join{}, ir.SemanticError(ir.ErrCodeRelationship, "", "join %q targets unknown entity %s", j.Path.String(), f.TargetEntity)
		}
		cur = target
	}

	typ := ir.JoinInner
	if j.Left {
		typ = ir.JoinLeft
	}
	return queryir.Join{PropertyPath: j.Path.String(), TargetEntity: cur.Name(), Type: typ, Fetch: j.Fetch}, nil
}

// conditions binds e and lays it out as a flattened DNF chain. Only HAVING
// may reference COUNT.
func (a *annotated) conditions(e jpql.Expr, having bool) ([]queryir.Condition, error) {
	if e == nil {
		return nil, nil
	}
	norm, err := jpql.Normalize(e)
	if err != nil {
		return nil, err
	}

	slots := make(map[*jpql.Predicate]int)
	for _, leaf := range jpql.Leaves(norm) {
		if leaf.Count != having {
			if having {
				return nil, ir.SemanticError(ir.ErrCodeGrouping, "", "HAVING may only test COUNT, found %q", leaf.Property())
			}
			return nil, ir.SemanticError(ir.ErrCodeGrouping, "", "COUNT is only allowed in HAVING")
		}
		slot, err := a.binder.BindPredicate(leaf)
		if err != nil {
			return nil, err
		}
		slots[leaf] = slot
	}

	groups, err := jpql.DNF(norm)
	if err != nil {
		return nil, err
	}
	terms := jpql.Flatten(groups)
	out := make([]queryir.Condition, len(terms))
	for i, t := range terms {
		out[i] = queryir.Condition{
			PropertyPath:  t.Predicate.Property(),
			Operator:      caseOperator(t.Predicate.Op, t.Predicate.IgnoreCase),
			ArgumentIndex: slots[t.Predicate],
			IgnoreCase:    t.Predicate.IgnoreCase,
			Next:          t.Next,
		}
	}
	return out, nil
}

func (a *annotated) updateQuery(s *jpql.UpdateStatement) (*queryir.LogicalQuery, error) {
	rk, err := a.modifying("UPDATE")
	if err != nil {
		return nil, err
	}
	if err := a.checkEntity(s.Entity); err != nil {
		return nil, err
	}

	q := &queryir.LogicalQuery{OpCode: ir.OpUpdateQuery, ReturnKind: rk}
	for _, as := range s.Assignments {
		if as.Path.IsNested() {
			return nil, ir.SemanticError(ir.ErrCodeNestedPath, "", "UPDATE cannot assign nested path %q", as.Path.String())
		}
		prop := as.Path.String()
		if id, ok := idFieldName(a.entity); ok && prop == id {
			return nil, ir.SemanticError(ir.ErrCodeIDAssignment, "", "UPDATE cannot assign the identifier %q", prop)
		}
		if _, ok := as.Value.(*jpql.ListValue); ok {
			return nil, ir.SemanticError(ir.ErrCodeParameter, "", "SET %s takes a single value", prop)
		}
		slot, err := a.binder.Bind(as.Value)
		if err != nil {
			return nil, err
		}
		q.UpdateAssignments = append(q.UpdateAssignments, queryir.UpdateAssignment{PropertyPath: prop, ArgumentIndex: slot})
	}

	if q.Conditions, err = a.conditions(s.Where, false); err != nil {
		return nil, err
	}
	return q, nil
}

func (a *annotated) deleteQuery(s *jpql.DeleteStatement) (*queryir.LogicalQuery, error) {
	rk, err := a.modifying("DELETE")
	if err != nil {
		return nil, err
	}
	if err := a.checkEntity(s.Entity); err != nil {
		return nil, err
	}
	q := &queryir.LogicalQuery{OpCode: ir.OpDeleteQuery, ReturnKind: rk}
	if q.Conditions, err = a.conditions(s.Where, false); err != nil {
		return nil, err
	}
	return q, nil
}

// modifying checks the marker and return type of an UPDATE or DELETE.
func (a *annotated) modifying(verb string) (ir.ReturnKind, error) {
	if !a.m.Modifying {
		return 0, ir.SemanticError(ir.ErrCodeModifying, "", "%s queries need the modifying marker", verb)
	}
	switch returnsOrVoid(a.m).Boxed() {
	case meta.Void:
		return ir.ReturnModifyingVoid, nil
	case meta.Integer:
		return ir.ReturnModifyingInt, nil
	case meta.Long:
		return ir.ReturnModifyingLong, nil
	}
	return 0, ir.SemanticError(ir.ErrCodeReturnType, "", "%s queries return void, int or long, not %s", verb, a.m.Returns)
}

func returnsOrVoid(m *meta.Method) *meta.Type {
	if m.Returns == nil {
		return meta.Void
	}
	return m.Returns
}

// idFieldName returns the name of the field stored in the id column.
func idFieldName(e meta.EntityDescriptor) (string, bool) {
	pos, err := e.ResolveColumnPosition(e.IDColumnName())
	if err != nil {
		return "", false
	}
	f, ok := e.ColumnField(pos)
	if !ok {
		return "", false
	}
	return f.Name, true
}
