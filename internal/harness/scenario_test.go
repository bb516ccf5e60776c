package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/witnessgen/internal/ir"
)

func writeScenario(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const validScenario = `
name: valid
description: valid scenario
group_sizes:
  leaf_aggregation: 2
batches:
  - batch_number: 1
    protocol_version: 24
    sealed_at: 2026-03-01T12:00:00Z
    scheduler_input: s
    circuits:
      - circuit_id: 1
        witnesses: [a]
faults:
  - round: leaf_aggregation
    circuit_id: 3
    fail_times: 1
assertions:
  - type: batch_proven
    batch: 1
`

func TestLoadScenario_Valid(t *testing.T) {
	s, err := LoadScenario(writeScenario(t, validScenario))
	require.NoError(t, err)

	assert.Equal(t, "valid", s.Name)
	assert.Equal(t, map[string]int{"leaf_aggregation": 2}, s.GroupSizes)
	require.Len(t, s.Batches, 1)
	assert.Equal(t, ir.BatchNumber(1), s.Batches[0].BatchNumber)
	assert.True(t, s.Batches[0].SealedAt.Equal(Start))
	require.Len(t, s.Faults, 1)
	assert.Equal(t, ir.CircuitID(3), s.Faults[0].CircuitID)
	require.NotNil(t, s.Assertions[0].Batch)
	assert.Equal(t, ir.BatchNumber(1), *s.Assertions[0].Batch)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadScenario_UnknownField(t *testing.T) {
	_, err := LoadScenario(writeScenario(t, validScenario+"assertion: []\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestValidateScenario(t *testing.T) {
	base := func() *Scenario {
		s, err := LoadScenario(writeScenario(t, validScenario))
		require.NoError(t, err)
		return s
	}

	tests := []struct {
		name   string
		mutate func(*Scenario)
		want   string
	}{
		{"no name", func(s *Scenario) { s.Name = "" }, "name is required"},
		{"no description", func(s *Scenario) { s.Description = "" }, "description is required"},
		{"no batches", func(s *Scenario) { s.Batches = nil }, "batches"},
		{"no assertions", func(s *Scenario) { s.Assertions = nil }, "assertions list"},
		{"bad group round", func(s *Scenario) { s.GroupSizes = map[string]int{"final": 1} }, "unknown round"},
		{"node group of one", func(s *Scenario) { s.GroupSizes = map[string]int{"node_aggregation": 1} }, "at least 2"},
		{"bad circuit", func(s *Scenario) { s.Batches[0].Circuits[0].CircuitID = 0 }, "batches[0]"},
		{"bad fault round", func(s *Scenario) { s.Faults[0].Round = "nope" }, "faults[0]"},
		{"zero fail times", func(s *Scenario) { s.Faults[0].FailTimes = 0 }, "fail_times"},
		{"unknown assertion", func(s *Scenario) { s.Assertions[0].Type = "final_state" }, "unknown assertion type"},
		{"proven without batch", func(s *Scenario) { s.Assertions[0].Batch = nil }, "batch is required"},
		{"short order", func(s *Scenario) {
			s.Assertions[0] = Assertion{Type: AssertTraceOrder, Rounds: []string{"scheduler"}}
		}, "at least two rounds"},
		{"bad event", func(s *Scenario) {
			s.Assertions[0] = Assertion{Type: AssertTraceCount, Event: "claimed"}
		}, "event must be"},
		{"blob without key", func(s *Scenario) {
			s.Assertions[0] = Assertion{Type: AssertBlobExists}
		}, "key is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := base()
			tt.mutate(s)
			err := validateScenario(s)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
