package jpql

import "github.com/roach88/memris/internal/ir"

// DNF rewrites e into disjunctive normal form: an OR of AND-groups.
//
// A leaf is one group of one predicate; AND takes the cross product of its
// operands' groups and OR concatenates them. NOT is normalized first. The
// expansion is exponential in the worst case, which is fine for short
// hand-written queries.
func DNF(e Expr) ([][]*Predicate, error) {
	norm, err := Normalize(e)
	if err != nil {
		return nil, err
	}
	return expand(norm), nil
}

func expand(e Expr) [][]*Predicate {
	switch n := e.(type) {
	case nil:
		return nil
	case *Predicate:
		return [][]*Predicate{{n}}
	case *BinaryExpr:
		left, right := expand(n.Left), expand(n.Right)
		if n.Op == ir.Or {
			return append(left, right...)
		}
		groups := make([][]*Predicate, 0, len(left)*len(right))
		for _, l := range left {
			for _, r := range right {
				g := make([]*Predicate, 0, len(l)+len(r))
				g = append(g, l...)
				g = append(g, r...)
				groups = append(groups, g)
			}
		}
		return groups
	default:
		panic("jpql: expand on unnormalized expression")
	}
}

// Term is one predicate of a flattened DNF with the combinator that joins
// it to the next term.
type Term struct {
	Predicate *Predicate
	Next      ir.Combinator
}

// Flatten lays DNF groups out as a single chain: AND inside a group, OR
// after the last term of every group except the final one.
func Flatten(groups [][]*Predicate) []Term {
	var terms []Term
	for gi, g := range groups {
		for pi, p := range g {
			next := ir.And
			if pi == len(g)-1 && gi < len(groups)-1 {
				next = ir.Or
			}
			terms = append(terms, Term{Predicate: p, Next: next})
		}
	}
	return terms
}

// Leaves returns the predicates of e in source order.
func Leaves(e Expr) []*Predicate {
	var out []*Predicate
	var walk func(Expr)
	walk = func(e Expr) {
		switch n := e.(type) {
		case *BinaryExpr:
			walk(n.Left)
			walk(n.Right)
		case *NotExpr:
			walk(n.Expr)
		case *Predicate:
			out = append(out, n)
		}
	}
	walk(e)
	return out
}
