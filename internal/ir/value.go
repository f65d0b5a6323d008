package ir

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Value is a sealed interface for literal values bound into a plan at
// compile time. Only Null, String, Int, Decimal, Bool, and Array implement it.
// Decimal literals never become floats; they render without trailing zeros.
type Value interface {
	value() // Sealed - only these types implement it
}

// Null is the NULL literal.
type Null struct{}

func (Null) value() {}

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// String is a string literal.
type String string

func (String) value() {}

// Int is an integer literal. Always int64.
type Int int64

func (Int) value() {}

// Decimal is an exact decimal literal such as 12.50.
type Decimal struct {
	decimal.Decimal
}

func (Decimal) value() {}

// MarshalJSON renders the decimal as a JSON string so no precision is lost.
func (d Decimal) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Decimal.String())
}

// Bool is a boolean literal.
type Bool bool

func (Bool) value() {}

// Array is a literal list, produced by collapsing `IN ('a', 'b')`.
type Array []Value

func (Array) value() {}

// MarshalJSON implements json.Marshaler for Array.
func (arr Array) MarshalJSON() ([]byte, error) {
	return marshalArray(arr)
}

// NewDecimal parses a decimal literal.
func NewDecimal(s string) (Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Decimal{}, fmt.Errorf("invalid decimal literal %q: %w", s, err)
	}
	return Decimal{Decimal: d}, nil
}

// MustDecimal is like NewDecimal but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustDecimal(s string) Decimal {
	d, err := NewDecimal(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Negated returns the boolean complement of v when v is a Bool.
func Negated(v Value) (Value, bool) {
	b, ok := v.(Bool)
	if !ok {
		return v, false
	}
	return !b, true
}

// MarshalValue marshals a Value to JSON bytes.
// A nil Value marks a parameter slot and renders as null.
// NOTE: This is NOT canonical marshaling. Use MarshalCanonical for hashing.
func MarshalValue(v Value) ([]byte, error) {
	switch val := v.(type) {
	case nil, Null:
		return []byte("null"), nil
	case String:
		return json.Marshal(string(val))
	case Int:
		return json.Marshal(int64(val))
	case Decimal:
		return val.MarshalJSON()
	case Bool:
		return json.Marshal(bool(val))
	case Array:
		return marshalArray(val)
	default:
		return nil, fmt.Errorf("unknown Value type: %T", v)
	}
}

func marshalArray(arr Array) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')

	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		elemBytes, err := MarshalValue(elem)
		if err != nil {
			return nil, fmt.Errorf("array[%d]: %w", i, err)
		}
		buf.Write(elemBytes)
	}

	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// FormatValue renders v the way it would appear in query text.
func FormatValue(v Value) string {
	switch val := v.(type) {
	case nil:
		return "?"
	case Null:
		return "NULL"
	case String:
		return fmt.Sprintf("'%s'", string(val))
	case Int:
		return fmt.Sprintf("%d", int64(val))
	case Decimal:
		return val.Decimal.String()
	case Bool:
		if val {
			return "TRUE"
		}
		return "FALSE"
	case Array:
		var buf bytes.Buffer
		buf.WriteByte('(')
		for i, elem := range val {
			if i > 0 {
				buf.WriteString(", ")
			}
			buf.WriteString(FormatValue(elem))
		}
		buf.WriteByte(')')
		return buf.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
