package compiler

import (
	"fmt"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/roach88/memris/internal/ir"
	"github.com/roach88/memris/internal/meta"
	"github.com/roach88/memris/internal/queryir"
)

// Compiler resolves the property paths of LogicalQuery plans for one
// entity into column positions and relationship joins.
//
// A Compiler holds no per-query state and may be shared between
// goroutines as long as the model behind it is sealed.
type Compiler struct {
	entities meta.Resolver
	entity   meta.EntityDescriptor
}

// New returns a Compiler for plans over entity. entities resolves the
// targets of relationship fields.
func New(entities meta.Resolver, entity meta.EntityDescriptor) *Compiler {
	return &Compiler{entities: entities, entity: entity}
}

// Compile turns q into a CompiledQuery.
//
// q must be structurally valid (see queryir.Validate). Paths that do not
// resolve, relationships that cannot be joined and type conflicts are
// reported as semantic QueryErrors naming q.Method.
func (c *Compiler) Compile(q *queryir.LogicalQuery) (*CompiledQuery, error) {
	if err := queryir.Validate(q).Err(); err != nil {
		return nil, fmt.Errorf("compile %s: invalid plan: %w", q.Method, err)
	}
	if q.Entity != "" && q.Entity != c.entity.Name() && q.Entity != c.entity.QualifiedName() {
		return nil, &ir.QueryError{
			Kind:    ir.KindSemantic,
			Code:    ir.ErrCodeUnknownEntity,
			Method:  q.Method,
			Pos:     -1,
			Message: fmt.Sprintf("plan targets entity %s but the compiler is bound to %s", q.Entity, c.entity.Name()),
			Err:     ir.ErrUnknownEntity,
		}
	}

	cm := &compilation{
		c:        c,
		q:        q,
		joins:    make(map[string]int),
		explicit: make(map[string]queryir.Join, len(q.Joins)),
		out: &CompiledQuery{
			Method:           q.Method,
			Entity:           c.entity.Name(),
			OpCode:           q.OpCode,
			ReturnKind:       q.ReturnKind,
			Limit:            q.Limit,
			Distinct:         q.Distinct,
			BoundValues:      slices.Clone(q.BoundValues),
			ParameterIndices: slices.Clone(q.ParameterIndices),
			Arity:            q.Arity,
		},
	}
	for _, j := range q.Joins {
		cm.explicit[j.PropertyPath] = j
	}

	steps := []func() error{
		cm.compileJoins,
		cm.compileConditions,
		cm.compileProjection,
		cm.compileGrouping,
		cm.compileHaving,
		cm.compileOrderBy,
		cm.compileUpdates,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}
	return cm.out, nil
}

// compilation is the state of one Compile call.
type compilation struct {
	c   *Compiler
	q   *queryir.LogicalQuery
	out *CompiledQuery

	// joins maps a relationship path to its index in out.Joins.
	joins       map[string]int
	joinTargets []meta.EntityDescriptor
	explicit    map[string]queryir.Join
}

// column is a resolved property path.
type column struct {
	steps  []int
	entity meta.EntityDescriptor
	pos    int
	field  *meta.Field
}

func (cm *compilation) errorf(code, format string, args ...any) error {
	return ir.SemanticError(code, cm.q.Method, format, args...)
}

// resolve maps a property path to a column, synthesizing a join for every
// leading relationship segment it has not seen yet.
func (cm *compilation) resolve(path string) (column, error) {
	root := cm.c.entity
	if path == queryir.IDProperty {
		pos, err := root.ResolveColumnPosition(root.IDColumnName())
		if err != nil {
			return column{}, cm.errorf(ir.ErrCodeUnknownProperty, "entity %s has no id column", root.Name())
		}
		return cm.columnAt(root, nil, pos), nil
	}

	segs := strings.Split(path, ".")
	cur := root
	var steps []int
	prefix := ""
	i := 0
	for ; i < len(segs)-1; i++ {
		f, ok := cur.Field(segs[i])
		if !ok || !f.IsRelationship() {
			break
		}
		prefix = joinPath(prefix, segs[i])
		idx, err := cm.join(prefix, cur, f)
		if err != nil {
			return column{}, err
		}
		steps = append(steps, idx)
		cur = cm.joinTargets[idx]
	}

	rest := strings.Join(segs[i:], ".")
	pos, err := cur.ResolvePropertyPosition(rest)
	if err != nil {
		if i > 0 && len(segs)-i > 1 {
			return column{}, cm.errorf(ir.ErrCodeNestedPath,
				"nested path %q: only one property may follow relationship %s", path, prefix)
		}
		return column{}, ir.UnknownPropertyError(cm.q.Method, cur.Name(), rest)
	}
	return cm.columnAt(cur, steps, pos), nil
}

func (cm *compilation) columnAt(e meta.EntityDescriptor, steps []int, pos int) column {
	f, _ := e.ColumnField(pos)
	return column{steps: steps, entity: e, pos: pos, field: f}
}

func (col column) typeCode() ir.TypeCode {
	if col.field == nil {
		return ir.TypeObject
	}
	return col.field.TypeCode
}

// join returns the index of the join for path, creating it on first use.
func (cm *compilation) join(path string, source meta.EntityDescriptor, f *meta.Field) (int, error) {
	if idx, ok := cm.joins[path]; ok {
		return idx, nil
	}

	target, err := cm.c.entities.Entity(f.TargetEntity)
	if err != nil {
		return 0, &ir.QueryError{
			Kind:    ir.KindSemantic,
			Code:    ir.ErrCodeUnknownEntity,
			Method:  cm.q.Method,
			Pos:     -1,
			Message: fmt.Sprintf("relationship %s.%s targets unknown entity %s", source.Name(), f.Name, f.TargetEntity),
			Err:     err,
		}
	}

	if !f.TypeCode.IsIntegral() && (f.Relationship != meta.ManyToMany || f.TypeCode != ir.TypeString) {
		return 0, cm.errorf(ir.ErrCodeTypeMismatch,
			"relationship %s.%s joins on a %s key; only integral keys (or string ids for many-to-many) can be joined",
			source.Name(), f.Name, f.TypeCode)
	}

	j := CompiledJoin{
		Path:         path,
		Field:        f.Name,
		SourceEntity: source.Name(),
		TargetEntity: target.Name(),
		FKType:       f.TypeCode,
		Type:         ir.JoinInner,
	}
	if f.IsCollection() {
		if j.SourceColumn, err = source.ResolveColumnPosition(source.IDColumnName()); err != nil {
			return 0, cm.relationshipError(source, f, err)
		}
		targetColumn := f.ColumnName
		if f.Relationship == meta.ManyToMany {
			targetColumn = target.IDColumnName()
		}
		if j.TargetColumn, err = target.ResolveColumnPosition(targetColumn); err != nil {
			return 0, cm.relationshipError(source, f, err)
		}
		j.TargetColumnIsID = targetColumn == target.IDColumnName()
	} else {
		if j.SourceColumn, err = source.ResolveColumnPosition(f.ColumnName); err != nil {
			return 0, cm.relationshipError(source, f, err)
		}
		ref := f.ReferencedColumn
		if ref == "" {
			ref = target.IDColumnName()
		}
		if j.TargetColumn, err = target.ResolveColumnPosition(ref); err != nil {
			return 0, cm.relationshipError(source, f, err)
		}
		j.TargetColumnIsID = ref == target.IDColumnName()
	}
	if ex, ok := cm.explicit[path]; ok {
		j.Type = ex.Type
		j.Fetch = ex.Fetch
	}

	idx := len(cm.out.Joins)
	cm.out.Joins = append(cm.out.Joins, j)
	cm.joinTargets = append(cm.joinTargets, target)
	cm.joins[path] = idx
	return idx, nil
}

func (cm *compilation) relationshipError(source meta.EntityDescriptor, f *meta.Field, err error) error {
	return cm.errorf(ir.ErrCodeRelationship, "relationship %s.%s cannot be joined: %v", source.Name(), f.Name, err)
}

// compileJoins materializes the explicit joins of an annotated query, even
// those no condition reads, so FETCH joins survive.
func (cm *compilation) compileJoins() error {
	for _, j := range cm.q.Joins {
		cur := cm.c.entity
		prefix := ""
		for _, seg := range strings.Split(j.PropertyPath, ".") {
			f, ok := cur.Field(seg)
			if !ok {
				return ir.UnknownPropertyError(cm.q.Method, cur.Name(), seg)
			}
			if !f.IsRelationship() {
				return cm.errorf(ir.ErrCodeRelationship, "cannot join %s: %s.%s is not a relationship", j.PropertyPath, cur.Name(), seg)
			}
			prefix = joinPath(prefix, seg)
			idx, err := cm.join(prefix, cur, f)
			if err != nil {
				return err
			}
			cur = cm.joinTargets[idx]
		}
	}
	return nil
}

func (cm *compilation) compileConditions() error {
	conds := cm.q.Conditions
	hasOr := false
	for i := 0; i < len(conds)-1; i++ {
		if conds[i].Next == ir.Or {
			hasOr = true
		}
	}

	for _, cond := range conds {
		col, err := cm.resolve(cond.PropertyPath)
		if err != nil {
			return err
		}
		if err := cm.checkOperator(cond, col); err != nil {
			return err
		}
		if len(col.steps) == 0 {
			cm.out.Conditions = append(cm.out.Conditions, CompiledCondition{
				Column:        col.pos,
				TypeCode:      col.typeCode(),
				Operator:      cond.Operator,
				ArgumentIndex: cond.ArgumentIndex,
				IgnoreCase:    cond.IgnoreCase,
				Next:          cond.Next,
			})
			continue
		}
		if hasOr {
			return cm.errorf(ir.ErrCodeUnsupported, "OR across joined property %q is not supported", cond.PropertyPath)
		}
		j := &cm.out.Joins[col.steps[len(col.steps)-1]]
		j.Predicates = append(j.Predicates, CompiledJoinPredicate{
			Column:        col.pos,
			TypeCode:      col.typeCode(),
			Operator:      cond.Operator,
			ArgumentIndex: cond.ArgumentIndex,
			IgnoreCase:    cond.IgnoreCase,
		})
	}
	if n := len(cm.out.Conditions); n > 0 {
		cm.out.Conditions[n-1].Next = ir.And
	}
	return nil
}

// checkOperator rejects operators the column's storage type cannot answer.
func (cm *compilation) checkOperator(cond queryir.Condition, col column) error {
	tc := col.typeCode()
	switch cond.Operator {
	case ir.OpIsTrue, ir.OpIsFalse:
		if tc != ir.TypeBoolean {
			return cm.errorf(ir.ErrCodeTypeMismatch, "%s needs a boolean property, %s is %s", cond.Operator, cond.PropertyPath, tc)
		}
	case ir.OpLike, ir.OpNotLike,
		ir.OpStartingWith, ir.OpNotStartingWith,
		ir.OpEndingWith, ir.OpNotEndingWith,
		ir.OpContaining, ir.OpNotContaining,
		ir.OpIgnoreCaseEQ, ir.OpIgnoreCaseLike:
		if !isText(tc) {
			return cm.errorf(ir.ErrCodeTypeMismatch, "%s needs a string property, %s is %s", cond.Operator, cond.PropertyPath, tc)
		}
	}
	if cond.IgnoreCase && !isText(tc) {
		return cm.errorf(ir.ErrCodeTypeMismatch, "IgnoreCase needs a string property, %s is %s", cond.PropertyPath, tc)
	}
	return nil
}

func isText(tc ir.TypeCode) bool {
	return tc == ir.TypeString || tc == ir.TypeChar
}

// outer turns the joins along steps into LEFT joins so rows with a missing
// relationship still produce a projection or group. Joins that carry
// predicates filter rows and stay as they are.
func (cm *compilation) outer(steps []int) {
	for _, idx := range steps {
		if len(cm.out.Joins[idx].Predicates) == 0 {
			cm.out.Joins[idx].Type = ir.JoinLeft
		}
	}
}

func (cm *compilation) compileProjection() error {
	p := cm.q.Projection
	if p == nil {
		return nil
	}
	cp := &CompiledProjection{Record: p.Record}
	for _, item := range p.Items {
		col, err := cm.resolve(item.PropertyPath)
		if err != nil {
			return err
		}
		comp, ok := p.Record.Component(item.Alias)
		if !ok {
			return cm.errorf(ir.ErrCodeProjection, "record %s has no component %q", p.Record, item.Alias)
		}
		if col.field != nil && col.field.Type != nil && !meta.IsAssignable(comp.Type, col.field.Type) {
			return cm.errorf(ir.ErrCodeTypeMismatch, "record component %s.%s is %s but %s is %s",
				p.Record, comp.Name, comp.Type, item.PropertyPath, col.field.Type)
		}
		cm.outer(col.steps)
		cp.Items = append(cp.Items, CompiledProjectionItem{
			Alias:    item.Alias,
			Steps:    col.steps,
			Column:   col.pos,
			TypeCode: col.typeCode(),
		})
	}
	cm.out.Projection = cp
	return nil
}

func (cm *compilation) compileGrouping() error {
	g := cm.q.Grouping
	if g == nil {
		return nil
	}
	cg := &CompiledGrouping{KeyType: g.KeyType, ValueType: g.ValueType}
	fields := make([]*meta.Field, 0, len(g.Properties))
	for _, prop := range g.Properties {
		col, err := cm.resolve(prop)
		if err != nil {
			return err
		}
		cm.outer(col.steps)
		fields = append(fields, col.field)
		cg.Keys = append(cg.Keys, CompiledGroupKey{
			Property: prop,
			Steps:    col.steps,
			Column:   col.pos,
			TypeCode: col.typeCode(),
		})
	}

	if len(g.Properties) == 1 {
		f := fields[0]
		if g.KeyType != nil && f != nil && f.Type != nil && !meta.IsAssignable(g.KeyType, f.Type) {
			return cm.errorf(ir.ErrCodeGrouping, "Map key type %s cannot hold %s (%s)", g.KeyType, g.Properties[0], f.Type)
		}
		cm.out.Grouping = cg
		return nil
	}

	rec := g.KeyType
	if rec == nil || !rec.IsRecord() {
		return cm.errorf(ir.ErrCodeGrouping, "grouping by %d properties needs a record key type", len(g.Properties))
	}
	if len(rec.Components) != len(g.Properties) {
		return cm.errorf(ir.ErrCodeGrouping, "record key %s has %d components but the grouping has %d properties",
			rec, len(rec.Components), len(g.Properties))
	}
	for i, comp := range rec.Components {
		want := componentName(g.Properties[i])
		if comp.Name != want {
			return cm.errorf(ir.ErrCodeGrouping, "record key %s component %d is %q, grouping property %s needs %q",
				rec, i, comp.Name, g.Properties[i], want)
		}
		if f := fields[i]; f != nil && f.Type != nil && !meta.IsAssignable(comp.Type, f.Type) {
			return cm.errorf(ir.ErrCodeGrouping, "record key component %s.%s is %s but %s is %s",
				rec, comp.Name, comp.Type, g.Properties[i], f.Type)
		}
		cg.KeyComponents = append(cg.KeyComponents, comp.Name)
	}
	cm.out.Grouping = cg
	return nil
}

func (cm *compilation) compileHaving() error {
	for _, cond := range cm.q.Having {
		if cond.PropertyPath != queryir.CountProperty {
			return cm.errorf(ir.ErrCodeGrouping, "HAVING may only test the group count, found %q", cond.PropertyPath)
		}
		cm.out.Having = append(cm.out.Having, CompiledCondition{
			Column:        -1,
			TypeCode:      ir.TypeLong,
			Operator:      cond.Operator,
			ArgumentIndex: cond.ArgumentIndex,
			Next:          cond.Next,
		})
	}
	return nil
}

func (cm *compilation) compileOrderBy() error {
	for _, o := range cm.q.OrderBy {
		col, err := cm.resolve(o.PropertyPath)
		if err != nil {
			return err
		}
		if len(col.steps) > 0 {
			return cm.errorf(ir.ErrCodeUnsupported, "ORDER BY across relationship %q is not supported", o.PropertyPath)
		}
		cm.out.OrderBy = append(cm.out.OrderBy, CompiledOrderBy{Column: col.pos, Ascending: o.Ascending})
	}
	return nil
}

func (cm *compilation) compileUpdates() error {
	for _, a := range cm.q.UpdateAssignments {
		col, err := cm.resolve(a.PropertyPath)
		if err != nil {
			return err
		}
		if len(col.steps) > 0 {
			return cm.errorf(ir.ErrCodeNestedPath, "cannot assign %s across a relationship", a.PropertyPath)
		}
		cm.out.Updates = append(cm.out.Updates, CompiledUpdateAssignment{Column: col.pos, ArgumentIndex: a.ArgumentIndex})
	}
	return nil
}

func joinPath(prefix, seg string) string {
	if prefix == "" {
		return seg
	}
	return prefix + "." + seg
}

// componentName is the record component a grouping property maps to:
// "department.name" becomes "departmentName".
func componentName(path string) string {
	segs := strings.Split(path, ".")
	var b strings.Builder
	b.WriteString(segs[0])
	for _, s := range segs[1:] {
		r, size := utf8.DecodeRuneInString(s)
		b.WriteRune(unicode.ToUpper(r))
		b.WriteString(s[size:])
	}
	return b.String()
}
