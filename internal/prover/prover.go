package prover

import (
	"context"
	"errors"

	"github.com/roach88/witnessgen/internal/ir"
)

// ErrKeysNotFound is returned by a Keystore that has no keys for the
// requested (round, circuit).
var ErrKeysNotFound = errors.New("proving keys not found")

// Circuit is one proving task.
type Circuit struct {
	Round     ir.Round
	CircuitID ir.CircuitID
	Inputs    [][]byte
}

// Keys is the key material for one circuit.
type Keys struct {
	ID              string
	ProvingKey      []byte
	VerificationKey []byte
}

// Prover produces a proof for a circuit.
type Prover interface {
	Prove(ctx context.Context, c Circuit, keys Keys) ([]byte, error)
}

// Keystore resolves the keys for a circuit.
type Keystore interface {
	Keys(round ir.Round, circuit ir.CircuitID) (Keys, error)
}

// ProveFunc adapts a function to the Prover interface.
type ProveFunc func(ctx context.Context, c Circuit, keys Keys) ([]byte, error)

// Prove calls f.
func (f ProveFunc) Prove(ctx context.Context, c Circuit, keys Keys) ([]byte, error) {
	return f(ctx, c, keys)
}

// DefaultMarker is the proof Marker returns when constructed with no bytes.
var DefaultMarker = []byte("MARKER")

// Marker is a Prover that returns the same proof for every circuit.
type Marker struct {
	Proof []byte
}

// Prove returns a copy of the marker proof.
func (m Marker) Prove(ctx context.Context, _ Circuit, _ Keys) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := m.Proof
	if p == nil {
		p = DefaultMarker
	}
	return append([]byte(nil), p...), nil
}

// KnownCircuit reports whether circuit is a valid id within round.
func KnownCircuit(round ir.Round, circuit ir.CircuitID) bool {
	switch round {
	case ir.BasicCircuits:
		return ir.ValidateBaseCircuitID(circuit) == nil
	case ir.LeafAggregation, ir.NodeAggregation:
		return circuit > ir.RecursiveLayerOffset && circuit <= ir.MaxBaseCircuitID+ir.RecursiveLayerOffset
	case ir.RecursionTip:
		return circuit == ir.RecursionTipCircuitID
	case ir.Scheduler:
		return circuit == ir.SchedulerCircuitID
	default:
		return false
	}
}
