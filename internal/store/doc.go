// Package store provides the SQLite-backed store of record for batches and
// proving jobs.
//
// The store holds three tables:
//   - batches: sealed batches with their protocol version and seal time
//   - jobs: one row per proof unit, keyed by (batch, round, circuit, depth, seq)
//   - aggregation_groups: which child jobs each aggregation job consumes
//
// # Idempotency
//
// Job and group inserts use ON CONFLICT DO NOTHING on their natural keys.
// Two builders racing to create the same parent job produce exactly one row;
// the loser observes inserted == false and reads the winner's row.
//
// # Transactions
//
// Every query method is defined once on an unexported ops type embedded in
// both Store and Tx. Completion bookkeeping (mark successful, create parent
// jobs, link groups) runs inside a single Tx so no other worker ever sees a
// child marked successful without its parent.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Timestamps are stored as unix milliseconds.
package store
