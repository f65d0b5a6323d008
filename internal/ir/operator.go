package ir

import "fmt"

// Operator is a condition operator understood by the execution engine.
type Operator uint8

const (
	OpEQ Operator = iota
	OpNE
	OpGT
	OpGTE
	OpLT
	OpLTE
	OpBetween
	OpIn
	OpNotIn
	OpLike
	OpNotLike
	OpStartingWith
	OpNotStartingWith
	OpEndingWith
	OpNotEndingWith
	OpContaining
	OpNotContaining
	OpIgnoreCaseEQ
	OpIgnoreCaseLike
	OpIsNull
	OpNotNull
	OpIsTrue
	OpIsFalse
	OpBefore
	OpAfter
)

var operatorNames = [...]string{
	OpEQ:              "EQ",
	OpNE:              "NE",
	OpGT:              "GT",
	OpGTE:             "GTE",
	OpLT:              "LT",
	OpLTE:             "LTE",
	OpBetween:         "BETWEEN",
	OpIn:              "IN",
	OpNotIn:           "NOT_IN",
	OpLike:            "LIKE",
	OpNotLike:         "NOT_LIKE",
	OpStartingWith:    "STARTING_WITH",
	OpNotStartingWith: "NOT_STARTING_WITH",
	OpEndingWith:      "ENDING_WITH",
	OpNotEndingWith:   "NOT_ENDING_WITH",
	OpContaining:      "CONTAINING",
	OpNotContaining:   "NOT_CONTAINING",
	OpIgnoreCaseEQ:    "IGNORE_CASE_EQ",
	OpIgnoreCaseLike:  "IGNORE_CASE_LIKE",
	OpIsNull:          "IS_NULL",
	OpNotNull:         "NOT_NULL",
	OpIsTrue:          "IS_TRUE",
	OpIsFalse:         "IS_FALSE",
	OpBefore:          "BEFORE",
	OpAfter:           "AFTER",
}

// complements pairs every operator with its logical negation. Operators
// absent from the table (BETWEEN, BEFORE, AFTER, the ignore-case forms)
// have no single-operator complement.
var complements = map[Operator]Operator{
	OpEQ:              OpNE,
	OpNE:              OpEQ,
	OpGT:              OpLTE,
	OpLTE:             OpGT,
	OpGTE:             OpLT,
	OpLT:              OpGTE,
	OpIn:              OpNotIn,
	OpNotIn:           OpIn,
	OpLike:            OpNotLike,
	OpNotLike:         OpLike,
	OpStartingWith:    OpNotStartingWith,
	OpNotStartingWith: OpStartingWith,
	OpEndingWith:      OpNotEndingWith,
	OpNotEndingWith:   OpEndingWith,
	OpContaining:      OpNotContaining,
	OpNotContaining:   OpContaining,
	OpIsNull:          OpNotNull,
	OpNotNull:         OpIsNull,
	OpIsTrue:          OpIsFalse,
	OpIsFalse:         OpIsTrue,
}

func (o Operator) String() string {
	if int(o) < len(operatorNames) {
		return operatorNames[o]
	}
	return fmt.Sprintf("Operator(%d)", o)
}

// MarshalText implements encoding.TextMarshaler.
func (o Operator) MarshalText() ([]byte, error) {
	if int(o) >= len(operatorNames) {
		return nil, fmt.Errorf("unknown operator %d", o)
	}
	return []byte(operatorNames[o]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Operator) UnmarshalText(b []byte) error {
	v, ok := lookupName(operatorNames[:], string(b))
	if !ok {
		return fmt.Errorf("unknown operator %q", b)
	}
	*o = Operator(v)
	return nil
}

// Complement returns the logical negation of o.
// The second result is false when o cannot be negated in place.
func (o Operator) Complement() (Operator, bool) {
	c, ok := complements[o]
	return c, ok
}

// IsUnary reports whether o takes no bound argument.
func (o Operator) IsUnary() bool {
	switch o {
	case OpIsNull, OpNotNull, OpIsTrue, OpIsFalse:
		return true
	}
	return false
}

// Slots is the number of bound-argument slots a condition with o consumes.
func (o Operator) Slots() int {
	switch {
	case o.IsUnary():
		return 0
	case o == OpBetween:
		return 2
	default:
		return 1
	}
}

// Combinator joins a condition to the next one in a flattened condition list.
type Combinator uint8

const (
	And Combinator = iota
	Or
)

func (c Combinator) String() string {
	if c == Or {
		return "OR"
	}
	return "AND"
}

// MarshalText implements encoding.TextMarshaler.
func (c Combinator) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Combinator) UnmarshalText(b []byte) error {
	switch string(b) {
	case "AND":
		*c = And
	case "OR":
		*c = Or
	default:
		return fmt.Errorf("unknown combinator %q", b)
	}
	return nil
}

// JoinType is the join semantics for a relationship traversal.
type JoinType uint8

const (
	JoinInner JoinType = iota
	JoinLeft
)

func (j JoinType) String() string {
	if j == JoinLeft {
		return "LEFT"
	}
	return "INNER"
}

// MarshalText implements encoding.TextMarshaler.
func (j JoinType) MarshalText() ([]byte, error) {
	return []byte(j.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (j *JoinType) UnmarshalText(b []byte) error {
	switch string(b) {
	case "INNER":
		*j = JoinInner
	case "LEFT":
		*j = JoinLeft
	default:
		return fmt.Errorf("unknown join type %q", b)
	}
	return nil
}
