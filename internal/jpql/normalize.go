package jpql

import "github.com/roach88/memris/internal/ir"

// Normalize pushes every NOT down to the leaves, so the result contains
// only *BinaryExpr and *Predicate nodes. Leaf order is preserved and the
// input is not modified.
func Normalize(e Expr) (Expr, error) {
	return normalize(e, false)
}

// Negate returns the normalized logical negation of e:
//
//	NOT (A AND B)  =>  NOT A OR NOT B
//	NOT (A OR B)   =>  NOT A AND NOT B
//	NOT NOT A      =>  A
//
// A negated leaf takes its operator's complement. Equality against a
// boolean literal flips the literal instead. BETWEEN cannot be negated.
func Negate(e Expr) (Expr, error) {
	return normalize(e, true)
}

func normalize(e Expr, negate bool) (Expr, error) {
	switch n := e.(type) {
	case nil:
		return nil, nil
	case *NotExpr:
		return normalize(n.Expr, !negate)
	case *BinaryExpr:
		left, err := normalize(n.Left, negate)
		if err != nil {
			return nil, err
		}
		right, err := normalize(n.Right, negate)
		if err != nil {
			return nil, err
		}
		op := n.Op
		if negate {
			op = flip(op)
		}
		return &BinaryExpr{Op: op, Left: left, Right: right}, nil
	case *Predicate:
		if !negate {
			return n, nil
		}
		return negatePredicate(n)
	default:
		return nil, ir.GrammarError(ir.ErrCodeSyntax, "", -1, "unknown expression type %T", e)
	}
}

func flip(c ir.Combinator) ir.Combinator {
	if c == ir.And {
		return ir.Or
	}
	return ir.And
}

func negatePredicate(p *Predicate) (*Predicate, error) {
	out := *p
	out.Values = append([]Value(nil), p.Values...)

	if p.Op == ir.OpEQ || p.Op == ir.OpNE {
		if lit, ok := p.boolLiteral(); ok {
			flipped, _ := ir.Negated(lit.Value)
			out.Values[0] = &Literal{Value: flipped, Pos: lit.Pos}
			return &out, nil
		}
	}

	c, ok := p.Op.Complement()
	if !ok {
		return nil, ir.GrammarError(ir.ErrCodeNegation, "", p.Pos, "%s on %q cannot be negated", p.Op, p.Property())
	}
	out.Op = c
	return &out, nil
}

func (p *Predicate) boolLiteral() (*Literal, bool) {
	if len(p.Values) != 1 {
		return nil, false
	}
	lit, ok := p.Values[0].(*Literal)
	if !ok {
		return nil, false
	}
	if _, ok := lit.Value.(ir.Bool); !ok {
		return nil, false
	}
	return lit, true
}
