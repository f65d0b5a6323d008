// Package queryir defines LogicalQuery, the portable description of one
// repository method produced by the planner and consumed by the compiler.
//
// ARCHITECTURE:
//
// LogicalQuery sits between method-name/annotated-query parsing and
// column resolution:
//
//	[method name] --lexer--+
//	                       +--> planner --> [LogicalQuery] --> compiler --> [CompiledQuery]
//	[annotated query] -----+
//
// Everything in a LogicalQuery is still expressed as property paths
// ("department.name"), never column positions. The compiler resolves those
// paths against entity metadata exactly once.
//
// CONDITIONS:
//
// Conditions form a flat OR-of-AND chain. Each condition carries the
// combinator that joins it to the next one, so
//
//	[(name, EQ, 0, AND), (age, GT, 1, OR), (active, IS_TRUE, -1, AND)]
//
// reads as `(name = ?0 AND age > ?1) OR active IS TRUE`. The combinator of
// the last condition is ignored.
//
// ARGUMENT SLOTS:
//
// Every non-unary condition reads its operands from the bound-argument
// array starting at ArgumentIndex. BETWEEN reads two adjacent slots,
// unary operators none. Slot i is filled from method parameter
// ParameterIndices[i], or from the literal BoundValues[i] when the index is
// -1. Arity is the length of both arrays.
//
// IMMUTABILITY:
//
// A LogicalQuery is built once per method at repository construction and
// never modified afterwards. It is safe to share between goroutines.
package queryir
