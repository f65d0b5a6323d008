package jpql

import "github.com/roach88/memris/internal/ir"

// Binder assigns bound-argument slots to predicate operands in the order
// they are encountered. Slots are shared by one query: parameters map to
// a method parameter index and literals carry their value.
type Binder struct {
	names  []string
	values []ir.Value
	params []int
}

// NewBinder creates a binder for a method whose declared parameters are
// named names, in order. An empty name marks a parameter without a
// `:name` binding; it can still be referenced positionally.
func NewBinder(names []string) *Binder {
	return &Binder{names: names}
}

// Bind assigns the next slot to v and returns it.
func (b *Binder) Bind(v Value) (int, error) {
	switch n := v.(type) {
	case *ParamRef:
		idx, err := b.paramIndex(n)
		if err != nil {
			return 0, err
		}
		return b.push(nil, idx), nil
	case *Literal:
		return b.push(n.Value, -1), nil
	case *ListValue:
		arr := make(ir.Array, 0, len(n.Items))
		for _, item := range n.Items {
			lit, ok := item.(*Literal)
			if !ok {
				return 0, parameterError(n.Pos, "IN list may only contain literals; bind a collection parameter instead")
			}
			arr = append(arr, lit.Value)
		}
		return b.push(arr, -1), nil
	default:
		return 0, parameterError(-1, "unknown value type %T", v)
	}
}

// BindPredicate binds every operand of p and returns the first slot, or
// -1 for unary operators. BETWEEN always receives two adjacent slots.
func (b *Binder) BindPredicate(p *Predicate) (int, error) {
	if want := p.Op.Slots(); len(p.Values) != want {
		return 0, parameterError(p.Pos, "%s on %q takes %d operands, found %d", p.Op, p.Property(), want, len(p.Values))
	}
	first := -1
	for i, v := range p.Values {
		slot, err := b.Bind(v)
		if err != nil {
			return 0, err
		}
		if i == 0 {
			first = slot
		}
	}
	return first, nil
}

// Arity is the number of slots assigned so far.
func (b *Binder) Arity() int {
	return len(b.params)
}

// Values returns the literal value of every slot; parameter slots are nil.
func (b *Binder) Values() []ir.Value {
	return b.values
}

// ParameterIndices returns, per slot, the method parameter index or -1 for
// a literal.
func (b *Binder) ParameterIndices() []int {
	return b.params
}

func (b *Binder) push(v ir.Value, param int) int {
	b.values = append(b.values, v)
	b.params = append(b.params, param)
	return len(b.params) - 1
}

func (b *Binder) paramIndex(ref *ParamRef) (int, error) {
	if ref.Name == "" {
		if ref.Index > len(b.names) {
			return 0, parameterError(ref.Pos, "?%d exceeds the %d declared parameters", ref.Index, len(b.names))
		}
		return ref.Index - 1, nil
	}
	for i, name := range b.names {
		if name == ref.Name {
			return i, nil
		}
	}
	return 0, parameterError(ref.Pos, "no parameter is bound to :%s", ref.Name)
}

func parameterError(pos int, format string, args ...any) error {
	err := ir.SemanticError(ir.ErrCodeParameter, "", format, args...)
	err.Pos = pos
	return err
}
