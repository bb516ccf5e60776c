// Package ir provides the shared vocabulary of the witness pipeline.
//
// This package contains type definitions and pure functions only. All other
// internal packages import ir; ir imports nothing internal.
//
// It covers three concerns:
//   - Identity types: BatchNumber, CircuitID, Round, Job
//   - Artifact addressing: ArtifactKey, BlobKey, AggregationKey
//   - Round topology: NextRound, RemapCircuitID, Topology.GroupSize
//
// Key design constraints:
//   - Keys are pure functions of their coordinates; Round is always encoded
//   - Circuit-id remapping depends only on the round and the child id
//   - All JSON tags use snake_case
package ir
