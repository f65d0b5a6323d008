package queryir

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/memris/internal/ir"
)

// ValidationResult lists the structural problems found in a LogicalQuery.
type ValidationResult struct {
	// Valid is true when Problems is empty.
	Valid bool

	// Problems describes each violated invariant.
	Problems []string
}

// Err folds the problems into one error, or returns nil.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return errors.New(strings.Join(r.Problems, "; "))
}

// Validate checks the structural invariants of q:
//  1. Arity equals the length of ParameterIndices (and of BoundValues when set)
//  2. Literal slots carry a value; parameter slots do not
//  3. Unary conditions read no slot; BETWEEN reads two adjacent slots
//  4. Every slot of a query plan is read by a condition or assignment
//  5. HAVING needs a grouping; a grouping excludes ORDER BY
//  6. Multi-property groupings carry a record key type
//  7. Update assignments appear only on UPDATE plans
//
// Validate is a pure function with no side effects.
func Validate(q *LogicalQuery) ValidationResult {
	v := &validator{q: q, used: make([]bool, max(q.Arity, 0))}
	v.validate()
	return ValidationResult{
		Valid:    len(v.problems) == 0,
		Problems: v.problems,
	}
}

// validator accumulates problems during traversal.
type validator struct {
	q        *LogicalQuery
	used     []bool
	problems []string
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) validate() {
	q := v.q
	if q.Arity < 0 {
		v.addProblem("negative arity %d", q.Arity)
		return
	}
	if q.Limit < 0 {
		v.addProblem("negative limit %d", q.Limit)
	}
	v.validateSlots()

	for i, c := range q.Conditions {
		v.validateCondition("condition", i, c)
	}
	for i, c := range q.Having {
		v.validateCondition("having", i, c)
	}
	for i, u := range q.UpdateAssignments {
		v.read(fmt.Sprintf("update %d (%s)", i, u.PropertyPath), u.ArgumentIndex, 1)
	}
	if !q.OpCode.IsBuiltIn() {
		for slot, ok := range v.used {
			if !ok {
				v.addProblem("slot %d is never read", slot)
			}
		}
	}

	v.validateShape()
}

func (v *validator) validateSlots() {
	q := v.q
	if len(q.ParameterIndices) != q.Arity {
		v.addProblem("arity %d but %d parameter indices", q.Arity, len(q.ParameterIndices))
		return
	}
	if q.BoundValues != nil && len(q.BoundValues) != q.Arity {
		v.addProblem("arity %d but %d bound values", q.Arity, len(q.BoundValues))
		return
	}
	for slot, param := range q.ParameterIndices {
		var bound ir.Value
		if q.BoundValues != nil {
			bound = q.BoundValues[slot]
		}
		switch {
		case param < -1:
			v.addProblem("slot %d has invalid parameter index %d", slot, param)
		case param == -1 && bound == nil:
			v.addProblem("literal slot %d has no bound value", slot)
		case param >= 0 && bound != nil:
			v.addProblem("parameter slot %d also carries a literal", slot)
		}
	}
}

func (v *validator) validateCondition(kind string, i int, c Condition) {
	where := fmt.Sprintf("%s %d (%s %s)", kind, i, c.PropertyPath, c.Operator)
	if c.Operator.IsUnary() {
		if c.ArgumentIndex != -1 {
			v.addProblem("%s: unary operator reads slot %d", where, c.ArgumentIndex)
		}
		return
	}
	v.read(where, c.ArgumentIndex, c.Operator.Slots())
}

// read marks n adjacent slots starting at first as used.
func (v *validator) read(where string, first, n int) {
	if first < 0 || first+n > len(v.used) {
		v.addProblem("%s: slots %d..%d outside arity %d", where, first, first+n-1, len(v.used))
		return
	}
	for s := first; s < first+n; s++ {
		v.used[s] = true
	}
}

func (v *validator) validateShape() {
	q := v.q
	if len(q.Having) > 0 && q.Grouping == nil {
		v.addProblem("HAVING without grouping")
	}
	if g := q.Grouping; g != nil {
		if len(g.Properties) == 0 {
			v.addProblem("grouping without properties")
		}
		if len(g.Properties) > 1 && g.KeyType == nil {
			v.addProblem("grouping by %d properties needs a record key type", len(g.Properties))
		}
		if len(q.OrderBy) > 0 {
			v.addProblem("grouping cannot be combined with ORDER BY")
		}
	}
	if p := q.Projection; p != nil && (p.Record == nil || len(p.Items) == 0) {
		v.addProblem("projection needs a record type and at least one item")
	}
	if len(q.UpdateAssignments) > 0 && q.OpCode != ir.OpUpdateQuery {
		v.addProblem("update assignments on %s plan", q.OpCode)
	}
	if q.OpCode == ir.OpUpdateQuery && len(q.UpdateAssignments) == 0 {
		v.addProblem("UPDATE plan without assignments")
	}
	modifyingOp := q.OpCode == ir.OpUpdateQuery || q.OpCode == ir.OpDeleteQuery
	if q.ReturnKind.IsModifying() && !modifyingOp {
		v.addProblem("op %s does not fit return kind %s", q.OpCode, q.ReturnKind)
	}
	if q.OpCode == ir.OpUpdateQuery && !q.ReturnKind.IsModifying() {
		v.addProblem("UPDATE plan with return kind %s", q.ReturnKind)
	}
}
