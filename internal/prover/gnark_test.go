package prover

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/witnessgen/internal/ir"
)

func TestGnark_ProveAndVerify(t *testing.T) {
	if testing.Short() {
		t.Skip("groth16 setup in short mode")
	}

	dir := filepath.Join(t.TempDir(), "keys")
	ks := NewGnarkKeystore(dir, zerolog.Nop())

	keys, err := ks.Keys(ir.LeafAggregation, 3)
	require.NoError(t, err)
	require.NotEmpty(t, keys.ProvingKey)
	require.NotEmpty(t, keys.VerificationKey)

	_, err = os.Stat(filepath.Join(dir, provingKeyFile))
	require.NoError(t, err, "keys persisted")

	p := NewGnarkProver(zerolog.Nop())
	c := Circuit{Round: ir.LeafAggregation, CircuitID: 3, Inputs: [][]byte{[]byte("proof-0"), []byte("proof-1")}}

	proof, err := p.Prove(context.Background(), c, keys)
	require.NoError(t, err)
	require.NotEmpty(t, proof)

	assert.NoError(t, Verify(c, keys, proof))

	tampered := Circuit{Round: c.Round, CircuitID: c.CircuitID, Inputs: [][]byte{[]byte("proof-1"), []byte("proof-0")}}
	assert.Error(t, Verify(tampered, keys, proof))

	// A second keystore on the same dir loads the persisted keys.
	reloaded, err := NewGnarkKeystore(dir, zerolog.Nop()).Keys(ir.Scheduler, 1)
	require.NoError(t, err)
	assert.Equal(t, keys.VerificationKey, reloaded.VerificationKey)
	assert.NoError(t, Verify(c, reloaded, proof))
}

func TestGnarkKeystore_UnknownCircuit(t *testing.T) {
	ks := NewGnarkKeystore("", zerolog.Nop())

	_, err := ks.Keys(ir.RecursionTip, 7)
	assert.ErrorIs(t, err, ErrKeysNotFound)
}

func TestGnarkProver_EmptyProvingKey(t *testing.T) {
	p := NewGnarkProver(zerolog.Nop())

	_, err := p.Prove(context.Background(), Circuit{Round: ir.BasicCircuits, CircuitID: 1}, Keys{ID: "empty"})
	assert.ErrorIs(t, err, ErrKeysNotFound)
}
