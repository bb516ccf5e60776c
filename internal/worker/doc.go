// Package worker runs the job loop: claim a queued job, execute its round,
// record the outcome.
//
// Workers are independent. Any number of them, in any number of processes,
// can share one store; the only coordination is the store's atomic claim and
// its unique constraints.
//
// Per claimed job a worker moves through:
//
//	Idle → Claimed → Preparing → Processing → Persisting → Successful
//	                     ↘             ↘            ↘
//	                                Failed
//
// A failed job's attempt counter is incremented. Retryable failures get a
// retry time from an exponential backoff and are requeued by housekeeping
// once it passes, until the attempt ceiling is reached. Retrieval failures
// (a blob no decoder could read) are terminal and wait for an operator.
// Malformed artifact keys are programming errors and stop the worker.
package worker
