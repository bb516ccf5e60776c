package ir

import "fmt"

// Circuit-id layout of the recursive layers.
const (
	// RecursiveLayerOffset maps a base-layer circuit id to its leaf-layer id.
	RecursiveLayerOffset = 2

	// MaxBaseCircuitID bounds base-layer ids so remapped ids stay below the
	// reserved recursion-tip id.
	MaxBaseCircuitID CircuitID = 32

	// SchedulerCircuitID is the circuit id of the single scheduler job.
	SchedulerCircuitID CircuitID = 1

	// RecursionTipCircuitID is the circuit id of the single recursion-tip job.
	RecursionTipCircuitID CircuitID = 255
)

// ValidateBaseCircuitID checks that id can appear in the Basic round.
func ValidateBaseCircuitID(id CircuitID) error {
	if id == 0 || id > MaxBaseCircuitID {
		return fmt.Errorf("base circuit id %d out of range [1, %d]", id, MaxBaseCircuitID)
	}
	return nil
}

// NextRound returns the round fed by r. Scheduler is terminal.
// NodeAggregation repeats at increasing depth until one job remains; its
// successor is the round entered when that loop exits.
func NextRound(r Round) (Round, bool) {
	switch r {
	case BasicCircuits:
		return LeafAggregation, true
	case LeafAggregation:
		return NodeAggregation, true
	case NodeAggregation:
		return RecursionTip, true
	case RecursionTip:
		return Scheduler, true
	default:
		return 0, false
	}
}

// RemapCircuitID returns the id, within round, of the parent circuit fed by
// a child circuit of the previous round.
func RemapCircuitID(round Round, id CircuitID) CircuitID {
	switch round {
	case LeafAggregation:
		return id + RecursiveLayerOffset
	case RecursionTip:
		return RecursionTipCircuitID
	case Scheduler:
		return SchedulerCircuitID
	default:
		return id
	}
}

// Default group sizes: the maximum number of sibling artifacts aggregated
// into one parent job. The recursion tip and the scheduler always form a
// single job per batch and are not configurable.
const (
	DefaultLeafGroupSize = 50
	DefaultNodeGroupSize = 32
)

// Topology carries the configurable part of the round graph.
type Topology struct {
	GroupSizes map[Round]int
}

// DefaultTopology returns the production group sizes.
func DefaultTopology() Topology {
	return Topology{
		GroupSizes: map[Round]int{
			LeafAggregation: DefaultLeafGroupSize,
			NodeAggregation: DefaultNodeGroupSize,
		},
	}
}

// GroupSize returns how many children one job of round aggregates.
// Basic jobs consume a single witness.
func (t Topology) GroupSize(round Round) int {
	if !configurable(round) {
		return 1
	}
	if n, ok := t.GroupSizes[round]; ok && n > 0 {
		return n
	}
	if n, ok := DefaultTopology().GroupSizes[round]; ok {
		return n
	}
	return 1
}

func configurable(r Round) bool {
	return r == LeafAggregation || r == NodeAggregation
}

// Validate checks the configured group sizes. Only leaf and node sizes may
// be set. Node groups must hold at least two jobs or the node loop never
// collapses to a single job.
func (t Topology) Validate() error {
	for r, n := range t.GroupSizes {
		if !r.Valid() {
			return fmt.Errorf("group size configured for unknown round %d", uint8(r))
		}
		if !configurable(r) {
			return fmt.Errorf("group size for %s is not configurable", r)
		}
		if n <= 0 {
			return fmt.Errorf("group size for %s must be positive, got %d", r, n)
		}
		if r == NodeAggregation && n < 2 {
			return fmt.Errorf("group size for %s must be at least 2, got %d", r, n)
		}
	}
	return nil
}
