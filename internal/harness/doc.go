// Package harness runs pipeline scenarios end to end.
//
// A scenario is a YAML file naming one or more sealed batches, the
// aggregation group sizes, and optional proving faults. The harness submits
// every batch into a fresh in-memory store, drives workers until no job can
// make progress, then checks the scenario's assertions against the
// resulting trace and job table.
//
// Execution is deterministic: the clock is fixed and only advanced to
// release failed jobs from backoff, worker ids come from a sequence, and
// workers take turns claiming. The same scenario always produces the same
// trace, which RunWithGolden compares against testdata/golden.
//
// Supported assertions:
//
//   - job_count: number of jobs matching batch, round and status filters
//   - batch_proven: the batch has a final proof (optionally at a given URL)
//   - trace_order: rounds first complete in the given order
//   - trace_count: number of trace events of a type, optionally per round
//   - blob_exists: an artifact key is present in the blob store
package harness
