// Package ir provides the shared vocabulary between the memris query compiler
// and the execution engine: op codes, return kinds, operators, join types,
// storage type codes, literal values, and coded construction errors.
//
// All other internal packages import ir; ir imports nothing internal. This
// keeps the wire vocabulary in one place with no circular dependencies.
//
// Key design constraints:
//   - NO float literals - decimals are carried exactly (shopspring/decimal)
//   - Enum names are the engine's wire names and never change once published
//   - Plan identity uses canonical JSON (RFC 8785) + domain-separated SHA-256
package ir
