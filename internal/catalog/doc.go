// Package catalog records compiled repository plans in SQLite.
//
// Every schema compilation is a build. A build lists its repositories and,
// per method, the fingerprint of the compiled plan; plans themselves are
// stored once per fingerprint together with their canonical JSON and the
// rendered SQLite statement. Comparing two builds shows exactly which
// methods would execute differently.
//
// # Critical Patterns
//
// Content addressing
//   - plans.fingerprint is ir.PlanFingerprint of the CompiledQuery
//   - Re-recording an identical plan is a no-op (ON CONFLICT DO NOTHING)
//
// Logical ordering
//   - Builds are ordered by seq INTEGER, never by wall time
//   - All queries include an ORDER BY so results are deterministic
//
// Build identity
//   - Build ids are UUIDv7 by default, so they also sort in creation order
//   - Tests inject a deterministic IDGenerator (WithIDGenerator)
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package catalog
