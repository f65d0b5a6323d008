package jpql

import (
	"fmt"
	"strings"

	"github.com/roach88/memris/internal/ir"
)

// FormatExpr renders e in a compact, deterministic form used by explain
// output and tests, e.g. `age LTE 5 OR active EQ FALSE`.
func FormatExpr(e Expr) string {
	var sb strings.Builder
	formatExpr(&sb, e, false)
	return sb.String()
}

func formatExpr(sb *strings.Builder, e Expr, inAnd bool) {
	switch n := e.(type) {
	case nil:
	case *BinaryExpr:
		paren := inAnd && n.Op == ir.Or
		if paren {
			sb.WriteByte('(')
		}
		formatExpr(sb, n.Left, n.Op == ir.And)
		sb.WriteString(" " + n.Op.String() + " ")
		formatExpr(sb, n.Right, n.Op == ir.And)
		if paren {
			sb.WriteByte(')')
		}
	case *NotExpr:
		sb.WriteString("NOT (")
		formatExpr(sb, n.Expr, false)
		sb.WriteByte(')')
	case *Predicate:
		sb.WriteString(n.Property())
		sb.WriteByte(' ')
		if n.IgnoreCase {
			sb.WriteString("IGNORE_CASE ")
		}
		sb.WriteString(n.Op.String())
		for i, v := range n.Values {
			if i > 0 {
				sb.WriteString(" AND")
			}
			sb.WriteByte(' ')
			sb.WriteString(FormatValue(v))
		}
	}
}

// FormatValue renders a predicate operand.
func FormatValue(v Value) string {
	switch n := v.(type) {
	case *ParamRef:
		if n.Name != "" {
			return ":" + n.Name
		}
		return fmt.Sprintf("?%d", n.Index)
	case *Literal:
		return ir.FormatValue(n.Value)
	case *ListValue:
		parts := make([]string, len(n.Items))
		for i, item := range n.Items {
			parts[i] = FormatValue(item)
		}
		return "(" + strings.Join(parts, ", ") + ")"
	default:
		return fmt.Sprintf("%v", v)
	}
}
