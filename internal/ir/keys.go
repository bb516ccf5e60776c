package ir

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidKey is returned when artifact coordinates cannot form a key.
// Callers treat it as a programming error, never as a transient failure.
var ErrInvalidKey = errors.New("invalid artifact key")

// Bucket namespaces artifacts of different kinds that share coordinates.
type Bucket string

const (
	// BucketWitnessInputs holds Basic circuit witnesses written by the producer.
	BucketWitnessInputs Bucket = "witness_inputs"

	// BucketCircuits holds per-circuit recursive proofs produced inside a job.
	BucketCircuits Bucket = "circuits"

	// BucketProofs holds the proof each job produces for its parent.
	BucketProofs Bucket = "proofs"

	// BucketAuxWitness holds auxiliary output witnesses of Basic circuits.
	BucketAuxWitness Bucket = "aux_output_witness"

	// BucketSchedulerInputs holds the per-batch scheduler partial input.
	BucketSchedulerInputs Bucket = "scheduler_witness"

	// BucketAggregations holds aggregation manifests (group → child URLs).
	BucketAggregations Bucket = "aggregations"
)

var blobBuckets = map[Bucket]bool{
	BucketWitnessInputs:   true,
	BucketCircuits:        true,
	BucketProofs:          true,
	BucketAuxWitness:      true,
	BucketSchedulerInputs: true,
}

// ArtifactKey is the sole addressing mechanism into the blob store.
// Two keys are equal iff all fields are equal.
type ArtifactKey struct {
	Bucket      Bucket
	BatchNumber BatchNumber
	CircuitID   CircuitID
	Round       Round
	Depth       int
	Seq         int
}

// BlobKey derives the key of a sequenced artifact.
// Negative depth or sequence numbers and unknown rounds are rejected.
func BlobKey(bucket Bucket, batch BatchNumber, circuit CircuitID, round Round, depth, seq int) (ArtifactKey, error) {
	if !blobBuckets[bucket] {
		return ArtifactKey{}, fmt.Errorf("%w: unknown bucket %q", ErrInvalidKey, bucket)
	}
	k := ArtifactKey{
		Bucket:      bucket,
		BatchNumber: batch,
		CircuitID:   circuit,
		Round:       round,
		Depth:       depth,
		Seq:         seq,
	}
	if err := k.validate(); err != nil {
		return ArtifactKey{}, err
	}
	return k, nil
}

// AggregationKey derives the key of the aggregation manifest that describes
// the groups of round-round jobs at (batch, circuit, depth).
func AggregationKey(batch BatchNumber, circuit CircuitID, round Round, depth int) (ArtifactKey, error) {
	k := ArtifactKey{
		Bucket:      BucketAggregations,
		BatchNumber: batch,
		CircuitID:   circuit,
		Round:       round,
		Depth:       depth,
	}
	if err := k.validate(); err != nil {
		return ArtifactKey{}, err
	}
	return k, nil
}

func (k ArtifactKey) validate() error {
	if !k.Round.Valid() {
		return fmt.Errorf("%w: unknown round %d", ErrInvalidKey, uint8(k.Round))
	}
	if k.Depth < 0 {
		return fmt.Errorf("%w: negative depth %d", ErrInvalidKey, k.Depth)
	}
	if k.Seq < 0 {
		return fmt.Errorf("%w: negative sequence number %d", ErrInvalidKey, k.Seq)
	}
	return nil
}

// String encodes the key.
//
// Format:
//
//	<bucket>/<batch>_<seq>_<circuit>_<round>_<depth>.bin
//	aggregations/<batch>_<circuit>_<round>_<depth>.bin
func (k ArtifactKey) String() string {
	if k.Bucket == BucketAggregations {
		return fmt.Sprintf("%s/%d_%d_%s_%d.bin", k.Bucket, k.BatchNumber, k.CircuitID, k.Round, k.Depth)
	}
	return fmt.Sprintf("%s/%d_%d_%d_%s_%d.bin", k.Bucket, k.BatchNumber, k.Seq, k.CircuitID, k.Round, k.Depth)
}

// ParseArtifactKey inverts ArtifactKey.String. Only the canonical encoding
// of a key is accepted.
func ParseArtifactKey(s string) (ArtifactKey, error) {
	bucketPart, name, ok := strings.Cut(s, "/")
	if !ok || !strings.HasSuffix(name, ".bin") {
		return ArtifactKey{}, fmt.Errorf("%w: malformed key %q", ErrInvalidKey, s)
	}
	bucket := Bucket(bucketPart)
	fields := strings.Split(strings.TrimSuffix(name, ".bin"), "_")

	// Round names contain underscores; they sit between the numeric prefix
	// and the trailing depth.
	prefix := 3
	if bucket == BucketAggregations {
		prefix = 2
	}
	if len(fields) < prefix+2 {
		return ArtifactKey{}, fmt.Errorf("%w: malformed key %q", ErrInvalidKey, s)
	}

	nums := make([]uint64, 0, prefix+1)
	for _, f := range append(fields[:prefix:prefix], fields[len(fields)-1]) {
		n, err := strconv.ParseUint(f, 10, 32)
		if err != nil {
			return ArtifactKey{}, fmt.Errorf("%w: malformed key %q: %v", ErrInvalidKey, s, err)
		}
		nums = append(nums, n)
	}
	round, err := ParseRound(strings.Join(fields[prefix:len(fields)-1], "_"))
	if err != nil {
		return ArtifactKey{}, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	depth := int(nums[len(nums)-1])

	var k ArtifactKey
	if bucket == BucketAggregations {
		if nums[1] > 255 {
			return ArtifactKey{}, fmt.Errorf("%w: circuit id out of range in %q", ErrInvalidKey, s)
		}
		k, err = AggregationKey(BatchNumber(nums[0]), CircuitID(nums[1]), round, depth)
	} else {
		if nums[2] > 255 {
			return ArtifactKey{}, fmt.Errorf("%w: circuit id out of range in %q", ErrInvalidKey, s)
		}
		k, err = BlobKey(bucket, BatchNumber(nums[0]), CircuitID(nums[2]), round, depth, int(nums[1]))
	}
	if err != nil {
		return ArtifactKey{}, err
	}

	// Leading zeros or a sign would map two strings to one key.
	if k.String() != s {
		return ArtifactKey{}, fmt.Errorf("%w: non-canonical key %q", ErrInvalidKey, s)
	}
	return k, nil
}
