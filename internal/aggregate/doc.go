// Package aggregate creates the jobs of the next round once a set of
// sibling jobs has completed.
//
// Siblings are the jobs sharing (batch, round, circuit, depth). When the last
// of them succeeds, the Builder groups their outputs by sequence order,
// writes an aggregation manifest describing the groups, and inserts one
// queued parent job per group. All inserts happen in the caller's
// transaction, alongside the status change that triggered them.
package aggregate
