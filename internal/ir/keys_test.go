package ir

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlobKey_Deterministic(t *testing.T) {
	for _, round := range Rounds() {
		k1, err := BlobKey(BucketProofs, 100, 3, round, 2, 7)
		require.NoError(t, err)
		k2, err := BlobKey(BucketProofs, 100, 3, round, 2, 7)
		require.NoError(t, err)

		assert.Equal(t, k1, k2)
		assert.Equal(t, []byte(k1.String()), []byte(k2.String()))
	}
}

func TestBlobKey_Format(t *testing.T) {
	k, err := BlobKey(BucketCircuits, 125010, 4, LeafAggregation, 0, 12)
	require.NoError(t, err)
	assert.Equal(t, "circuits/125010_12_4_leaf_aggregation_0.bin", k.String())

	agg, err := AggregationKey(125010, 6, NodeAggregation, 1)
	require.NoError(t, err)
	assert.Equal(t, "aggregations/125010_6_node_aggregation_1.bin", agg.String())
}

func TestBlobKey_NoCollisionAcrossRounds(t *testing.T) {
	seen := make(map[string]Round)
	for _, round := range Rounds() {
		k, err := BlobKey(BucketProofs, 100, 3, round, 0, 0)
		require.NoError(t, err)
		if prev, dup := seen[k.String()]; dup {
			t.Fatalf("key %q shared by %s and %s", k, prev, round)
		}
		seen[k.String()] = round

		agg, err := AggregationKey(100, 3, round, 0)
		require.NoError(t, err)
		if prev, dup := seen[agg.String()]; dup {
			t.Fatalf("key %q shared by %s and %s", agg, prev, round)
		}
		seen[agg.String()] = round
	}
}

func TestBlobKey_DistinctFieldsDistinctKeys(t *testing.T) {
	base := ArtifactKey{Bucket: BucketProofs, BatchNumber: 1, CircuitID: 1, Round: LeafAggregation, Depth: 1, Seq: 1}
	variants := []ArtifactKey{
		{Bucket: BucketCircuits, BatchNumber: 1, CircuitID: 1, Round: LeafAggregation, Depth: 1, Seq: 1},
		{Bucket: BucketProofs, BatchNumber: 2, CircuitID: 1, Round: LeafAggregation, Depth: 1, Seq: 1},
		{Bucket: BucketProofs, BatchNumber: 1, CircuitID: 2, Round: LeafAggregation, Depth: 1, Seq: 1},
		{Bucket: BucketProofs, BatchNumber: 1, CircuitID: 1, Round: NodeAggregation, Depth: 1, Seq: 1},
		{Bucket: BucketProofs, BatchNumber: 1, CircuitID: 1, Round: LeafAggregation, Depth: 2, Seq: 1},
		{Bucket: BucketProofs, BatchNumber: 1, CircuitID: 1, Round: LeafAggregation, Depth: 1, Seq: 2},
		// Digit boundaries must not blur: 11_1 vs 1_11.
		{Bucket: BucketProofs, BatchNumber: 11, CircuitID: 1, Round: LeafAggregation, Depth: 1, Seq: 1},
	}
	for _, v := range variants {
		assert.NotEqual(t, base.String(), v.String(), "variant %+v", v)
	}
	a := ArtifactKey{Bucket: BucketProofs, BatchNumber: 11, Seq: 1, CircuitID: 1, Round: BasicCircuits}
	b := ArtifactKey{Bucket: BucketProofs, BatchNumber: 1, Seq: 11, CircuitID: 1, Round: BasicCircuits}
	assert.NotEqual(t, a.String(), b.String())
}

func TestBlobKey_RejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		build func() (ArtifactKey, error)
	}{
		{"negative depth", func() (ArtifactKey, error) { return BlobKey(BucketProofs, 1, 1, BasicCircuits, -1, 0) }},
		{"negative seq", func() (ArtifactKey, error) { return BlobKey(BucketProofs, 1, 1, BasicCircuits, 0, -3) }},
		{"unknown round", func() (ArtifactKey, error) { return BlobKey(BucketProofs, 1, 1, Round(9), 0, 0) }},
		{"unknown bucket", func() (ArtifactKey, error) { return BlobKey("scratch", 1, 1, BasicCircuits, 0, 0) }},
		{"aggregation bucket via BlobKey", func() (ArtifactKey, error) { return BlobKey(BucketAggregations, 1, 1, BasicCircuits, 0, 0) }},
		{"aggregation negative depth", func() (ArtifactKey, error) { return AggregationKey(1, 1, NodeAggregation, -2) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidKey), "want ErrInvalidKey, got %v", err)
		})
	}
}

func TestParseArtifactKey_RoundTrip(t *testing.T) {
	var keys []ArtifactKey
	for _, round := range Rounds() {
		for _, bucket := range []Bucket{BucketWitnessInputs, BucketCircuits, BucketProofs, BucketAuxWitness, BucketSchedulerInputs} {
			k, err := BlobKey(bucket, 4294967295, 255, round, 3, 1024)
			require.NoError(t, err)
			keys = append(keys, k)
		}
		agg, err := AggregationKey(42, 17, round, 5)
		require.NoError(t, err)
		keys = append(keys, agg)
	}

	for _, k := range keys {
		parsed, err := ParseArtifactKey(k.String())
		require.NoError(t, err, k.String())
		assert.Equal(t, k, parsed)
	}
}

func TestParseArtifactKey_Malformed(t *testing.T) {
	inputs := []string{
		"",
		"proofs",
		"proofs/1_2_3_leaf_aggregation_0",
		"proofs/1_2_leaf_aggregation.bin",
		"proofs/1_2_3_unknown_round_0.bin",
		"proofs/1_2_300_leaf_aggregation_0.bin",
		"proofs/x_2_3_leaf_aggregation_0.bin",
		"proofs/1_2_3_leaf_aggregation_-1.bin",
		"proofs/0100_0_3_leaf_aggregation_0.bin",
		"proofs/100_00_3_leaf_aggregation_0.bin",
		"proofs/100_0_+3_leaf_aggregation_0.bin",
		"aggregations/100_3_leaf_aggregation_01.bin",
	}
	for _, in := range inputs {
		_, err := ParseArtifactKey(in)
		assert.ErrorIs(t, err, ErrInvalidKey, "input %q", in)
	}
}
