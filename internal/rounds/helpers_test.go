package rounds

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/roach88/witnessgen/internal/aggregate"
	"github.com/roach88/witnessgen/internal/blob"
	"github.com/roach88/witnessgen/internal/ir"
	"github.com/roach88/witnessgen/internal/prover"
	"github.com/roach88/witnessgen/internal/store"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// newTestEnv returns an env over a temp SQLite store and an in-memory blob
// store, proving with the marker prover.
func newTestEnv(t *testing.T, sizes map[ir.Round]int) (*Env, *blob.MemStore) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	mem := blob.NewMemStore()
	blobs := blob.WriteOnce(mem)
	codec := blob.DefaultCodec()
	now := func() time.Time { return testNow }

	return &Env{
		Blobs:          blobs,
		Codec:          codec,
		Store:          s,
		Prover:         prover.Marker{},
		Keys:           prover.NewMemKeystore(ir.Rounds()...),
		Builder:        aggregate.NewBuilder(blobs, codec, ir.Topology{GroupSizes: sizes}, aggregate.WithNow(now)),
		MaxParallelism: 2,
		Log:            zerolog.Nop(),
		Now:            now,
	}, mem
}

func seedBatch(t *testing.T, env *Env, n ir.BatchNumber) {
	t.Helper()
	_, err := env.Store.InsertBatch(context.Background(), ir.Batch{Number: n, ProtocolVersion: 24, SealedAt: testNow})
	require.NoError(t, err)
}

// seedBasic writes witnesses and queued basic jobs for circuit.
func seedBasic(t *testing.T, env *Env, batch ir.BatchNumber, circuit ir.CircuitID, n int) []ir.Job {
	t.Helper()
	ctx := context.Background()
	var jobs []ir.Job
	for seq := 0; seq < n; seq++ {
		key, err := ir.BlobKey(ir.BucketWitnessInputs, batch, circuit, ir.BasicCircuits, 0, seq)
		require.NoError(t, err)
		require.NoError(t, blob.Save(ctx, env.Blobs, env.Codec, key.String(), WitnessInput{
			BatchNumber: batch,
			CircuitID:   circuit,
			Seq:         seq,
			Witness:     []byte(fmt.Sprintf("witness-%d-%d", circuit, seq)),
		}))
		job, _, err := env.Store.InsertJob(ctx, ir.Job{
			BatchNumber:     batch,
			Round:           ir.BasicCircuits,
			CircuitID:       circuit,
			Seq:             seq,
			InputURLs:       []string{key.String()},
			ProtocolVersion: 24,
			BatchSealedAt:   testNow,
			CreatedAt:       testNow,
		})
		require.NoError(t, err)
		jobs = append(jobs, job)
	}
	return jobs
}

// run executes every stage of the job's round handler.
func run(t *testing.T, env *Env, job ir.Job) (OutputArtifacts, aggregate.Result) {
	t.Helper()
	ctx := context.Background()

	h, err := For(job.Round)
	require.NoError(t, err)
	in, err := h.LoadInput(ctx, env, job)
	require.NoError(t, err)
	prepared, err := h.PrepareJob(ctx, env, in)
	require.NoError(t, err)
	out, err := h.ProcessJob(ctx, env, prepared)
	require.NoError(t, err)
	urls, err := h.StoreOutputs(ctx, env, out)
	require.NoError(t, err)
	res, err := h.RecordCompletion(ctx, env, job, urls)
	require.NoError(t, err)
	return out, res
}

// countingProver counts calls and returns a proof naming the circuit.
type countingProver struct {
	calls atomic.Int64
}

func (c *countingProver) Prove(ctx context.Context, circuit prover.Circuit, _ prover.Keys) ([]byte, error) {
	c.calls.Add(1)
	return []byte(fmt.Sprintf("%s/%d/%d", circuit.Round, circuit.CircuitID, len(circuit.Inputs))), nil
}
