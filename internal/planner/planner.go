// Package planner turns a repository method into a LogicalQuery.
//
// A method is planned in one of three ways, checked in order:
//
//  1. An annotated query is parsed and bound (annotated.go).
//  2. A built-in CRUD signature is resolved (builtin tables).
//  3. The method name is tokenized and run through a state machine
//     (derived.go).
//
// Every error is a *ir.QueryError naming the method.
package planner

import (
	"log/slog"

	"github.com/roach88/memris/internal/builtin"
	"github.com/roach88/memris/internal/ir"
	"github.com/roach88/memris/internal/lexer"
	"github.com/roach88/memris/internal/meta"
	"github.com/roach88/memris/internal/queryir"
)

// Metadata is the entity metadata the planner consults.
type Metadata interface {
	lexer.Metadata
}

// Planner plans repository methods. It is safe for concurrent use.
type Planner struct {
	md       Metadata
	lexer    *lexer.Lexer
	resolver *builtin.Resolver
}

// New creates a Planner over md.
func New(md Metadata) *Planner {
	return &Planner{
		md:       md,
		lexer:    lexer.New(md),
		resolver: builtin.NewResolver(),
	}
}

// Plan builds the LogicalQuery for method on entity.
func (p *Planner) Plan(method *meta.Method, entity meta.EntityDescriptor) (*queryir.LogicalQuery, error) {
	q, err := p.plan(method, entity)
	if err != nil {
		return nil, ir.WithMethod(err, method.Name)
	}
	q.Method = method.Name
	q.Entity = entity.Name()

	if res := queryir.Validate(q); !res.Valid {
		return nil, ir.SemanticError(ir.ErrCodeBinding, method.Name, "inconsistent plan: %v", res.Err())
	}

	slog.Debug("planned query",
		"entity", q.Entity,
		"method", q.Method,
		"op", q.OpCode,
		"return_kind", q.ReturnKind,
		"conditions", len(q.Conditions),
		"arity", q.Arity,
	)
	return q, nil
}

func (p *Planner) plan(method *meta.Method, entity meta.EntityDescriptor) (*queryir.LogicalQuery, error) {
	if method.Query != nil {
		return p.planAnnotated(method, entity)
	}
	if method.Modifying {
		return nil, ir.SemanticError(ir.ErrCodeModifying, "", "the modifying marker needs an annotated UPDATE or DELETE query")
	}
	if isRecordReturn(method) {
		return nil, ir.SemanticError(ir.ErrCodeReturnType, "", "record projections need an annotated query with select aliases")
	}

	for _, table := range []builtin.Table{builtin.Builtins, builtin.Reserved} {
		op, found, err := p.resolver.Resolve(method, table)
		if err != nil {
			return nil, err
		}
		if found {
			return planBuiltIn(op, len(method.Params))
		}
	}
	return p.planDerived(method, entity)
}

// planBuiltIn returns the fixed plan of a built-in operation. Identifier
// conditions use the IDProperty marker; the compiler maps it to the id
// column.
func planBuiltIn(op ir.OpCode, arity int) (*queryir.LogicalQuery, error) {
	q := &queryir.LogicalQuery{OpCode: op, Arity: arity, ParameterIndices: sequence(arity)}
	idCondition := func(operator ir.Operator) []queryir.Condition {
		return []queryir.Condition{{PropertyPath: queryir.IDProperty, Operator: operator, ArgumentIndex: 0, Next: ir.And}}
	}

	switch op {
	case ir.OpFindByID:
		q.ReturnKind, q.Conditions = ir.ReturnOneOptional, idCondition(ir.OpEQ)
	case ir.OpFindAllByID:
		q.ReturnKind, q.Conditions = ir.ReturnManyList, idCondition(ir.OpIn)
	case ir.OpExistsByID:
		q.ReturnKind, q.Conditions = ir.ReturnExistsBool, idCondition(ir.OpEQ)
	case ir.OpDeleteByID:
		q.ReturnKind, q.Conditions = ir.ReturnDeleteByID, idCondition(ir.OpEQ)
	case ir.OpDeleteAllByID:
		q.ReturnKind, q.Conditions = ir.ReturnDeleteAll, idCondition(ir.OpIn)
	case ir.OpFindAll:
		q.ReturnKind = ir.ReturnManyList
	case ir.OpCountAll:
		q.ReturnKind = ir.ReturnCountLong
	case ir.OpSaveOne:
		q.ReturnKind = ir.ReturnSave
	case ir.OpSaveAll:
		q.ReturnKind = ir.ReturnSaveAll
	case ir.OpDeleteOne:
		q.ReturnKind = ir.ReturnDelete
	case ir.OpDeleteAll:
		q.ReturnKind = ir.ReturnDeleteAll
	default:
		return nil, ir.SemanticError(ir.ErrCodeUnsupported, "", "unsupported built-in operation %s", op)
	}
	return q, nil
}

// sequence returns [0, 1, ..., n-1]: slot i reads method parameter i.
func sequence(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func isRecordReturn(m *meta.Method) bool {
	if m.Returns == nil {
		return false
	}
	if m.Returns.IsRecord() {
		return true
	}
	switch m.Returns {
	case meta.List, meta.Set, meta.Optional, meta.Collection, meta.Iterable:
		return m.Element != nil && m.Element.IsRecord()
	}
	return false
}
