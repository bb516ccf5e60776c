package ir

import (
	"fmt"
	"time"
)

// BatchNumber identifies a sealed rollup batch. It is the root coordinate of
// every artifact key.
type BatchNumber uint32

// CircuitID identifies a circuit type within a round.
type CircuitID uint8

// ProtocolVersion is the prover protocol version a batch was sealed under.
type ProtocolVersion uint16

// Round is one stage of the fixed aggregation pipeline. Rounds are totally
// ordered by their numeric value.
type Round uint8

const (
	BasicCircuits Round = iota
	LeafAggregation
	NodeAggregation
	RecursionTip
	Scheduler
)

var roundNames = [...]string{
	BasicCircuits:   "basic_circuits",
	LeafAggregation: "leaf_aggregation",
	NodeAggregation: "node_aggregation",
	RecursionTip:    "recursion_tip",
	Scheduler:       "scheduler",
}

// Rounds returns every round in pipeline order.
func Rounds() []Round {
	return []Round{BasicCircuits, LeafAggregation, NodeAggregation, RecursionTip, Scheduler}
}

// Valid reports whether r is a known round.
func (r Round) Valid() bool {
	return int(r) < len(roundNames)
}

func (r Round) String() string {
	if !r.Valid() {
		return fmt.Sprintf("round(%d)", uint8(r))
	}
	return roundNames[r]
}

// MarshalText encodes the round by name.
func (r Round) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid round %d", uint8(r))
	}
	return []byte(roundNames[r]), nil
}

// UnmarshalText decodes a round name.
func (r *Round) UnmarshalText(text []byte) error {
	parsed, err := ParseRound(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ParseRound returns the round with the given name.
func ParseRound(name string) (Round, error) {
	for i, n := range roundNames {
		if n == name {
			return Round(i), nil
		}
	}
	return 0, fmt.Errorf("unknown round %q", name)
}

// JobStatus is the lifecycle state of a job row.
//
// Transitions are monotonic: queued → in_progress → successful | failed.
// Failed jobs below the attempt ceiling are requeued by workers.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusInProgress JobStatus = "in_progress"
	StatusSuccessful JobStatus = "successful"
	StatusFailed     JobStatus = "failed"
)

// Job is a persisted unit of work: one circuit (Basic) or one aggregation
// group (every later round) at a fixed coordinate.
type Job struct {
	ID              int64           `json:"id"`
	BatchNumber     BatchNumber     `json:"batch_number"`
	Round           Round           `json:"round"`
	CircuitID       CircuitID       `json:"circuit_id"`
	Depth           int             `json:"depth"`
	Seq             int             `json:"sequence_number"`
	Status          JobStatus       `json:"status"`
	Attempts        int             `json:"attempts"`
	InputURLs       []string        `json:"input_urls"`
	AggregationURL  string          `json:"aggregation_url,omitempty"`
	OutputURL       string          `json:"output_url,omitempty"`
	AuxURL          string          `json:"aux_url,omitempty"`
	ProtocolVersion ProtocolVersion `json:"protocol_version"`
	BatchSealedAt   time.Time       `json:"batch_sealed_at"`
	Error           string          `json:"error,omitempty"`
	ClaimedBy       string          `json:"claimed_by,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	StartedAt       *time.Time      `json:"processing_started_at,omitempty"`
	RetryAt         *time.Time      `json:"retry_at,omitempty"`
	TimeTaken       time.Duration   `json:"time_taken,omitempty"`
}

// Coordinate returns the job's position in the aggregation tree.
func (j Job) Coordinate() Coordinate {
	return Coordinate{
		BatchNumber: j.BatchNumber,
		Round:       j.Round,
		CircuitID:   j.CircuitID,
		Depth:       j.Depth,
	}
}

// Coordinate addresses a set of sibling jobs: every job sharing a coordinate
// is aggregated together into the next round.
type Coordinate struct {
	BatchNumber BatchNumber `json:"batch_number"`
	Round       Round       `json:"round"`
	CircuitID   CircuitID   `json:"circuit_id"`
	Depth       int         `json:"depth"`
}

func (c Coordinate) String() string {
	return fmt.Sprintf("batch=%d round=%s circuit=%d depth=%d", c.BatchNumber, c.Round, c.CircuitID, c.Depth)
}

// Batch is the upstream record of a sealed batch.
type Batch struct {
	Number          BatchNumber     `json:"batch_number"`
	ProtocolVersion ProtocolVersion `json:"protocol_version"`
	SealedAt        time.Time       `json:"sealed_at"`
	ProvenAt        *time.Time      `json:"proven_at,omitempty"`
	FinalProofURL   string          `json:"final_proof_url,omitempty"`
}
