package worker

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/roach88/witnessgen/internal/aggregate"
	"github.com/roach88/witnessgen/internal/blob"
	"github.com/roach88/witnessgen/internal/ir"
	"github.com/roach88/witnessgen/internal/pipeline"
	"github.com/roach88/witnessgen/internal/prover"
	"github.com/roach88/witnessgen/internal/rounds"
	"github.com/roach88/witnessgen/internal/store"
	"github.com/roach88/witnessgen/internal/testutil"
)

var testStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	env   *rounds.Env
	mem   *blob.MemStore
	clock *testutil.FakeClock
}

func newFixture(t *testing.T, p prover.Prover) *fixture {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	if p == nil {
		p = prover.Marker{}
	}
	clock := testutil.NewFakeClock(testStart)
	mem := blob.NewMemStore()
	blobs := blob.WriteOnce(mem)
	codec := blob.DefaultCodec()
	topology := ir.Topology{GroupSizes: map[ir.Round]int{
		ir.LeafAggregation: 2,
		ir.NodeAggregation: 2,
	}}

	return &fixture{
		env: &rounds.Env{
			Blobs:          blobs,
			Codec:          codec,
			Store:          s,
			Prover:         p,
			Keys:           prover.NewMemKeystore(ir.Rounds()...),
			Builder:        aggregate.NewBuilder(blobs, codec, topology, aggregate.WithNow(clock.Now)),
			MaxParallelism: 2,
			Log:            zerolog.Nop(),
			Now:            clock.Now,
		},
		mem:   mem,
		clock: clock,
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PollInterval = 10 * time.Millisecond
	return cfg
}

func (f *fixture) newWorker(t *testing.T, cfg Config, opts ...Option) *Worker {
	t.Helper()
	w, err := New(f.env, cfg, append([]Option{WithID("worker-1")}, opts...)...)
	require.NoError(t, err)
	return w
}

// submit seeds a batch with witnessesPerCircuit witnesses for each circuit.
func (f *fixture) submit(t *testing.T, batch ir.BatchNumber, witnessesPerCircuit int, circuits ...ir.CircuitID) []ir.Job {
	t.Helper()
	sub := &pipeline.Submission{
		BatchNumber:     batch,
		ProtocolVersion: 24,
		SealedAt:        testStart,
		SchedulerInput:  "scheduler",
	}
	for _, c := range circuits {
		cw := pipeline.CircuitWitnesses{CircuitID: c}
		for i := range witnessesPerCircuit {
			cw.Witnesses = append(cw.Witnesses, fmt.Sprintf("w-%d-%d", c, i))
		}
		sub.Circuits = append(sub.Circuits, cw)
	}
	p := pipeline.NewProducer(f.env.Blobs, f.env.Codec, f.env.Store, zerolog.Nop())
	res, err := p.SubmitBatch(context.Background(), sub)
	require.NoError(t, err)
	return res.Jobs
}

func (f *fixture) job(t *testing.T, id int64) ir.Job {
	t.Helper()
	j, err := f.env.Store.ReadJob(context.Background(), id)
	require.NoError(t, err)
	return j
}

// flakyProver fails its first n calls, then behaves like the marker prover.
type flakyProver struct {
	failures atomic.Int64
	calls    atomic.Int64
}

func newFlakyProver(n int64) *flakyProver {
	p := &flakyProver{}
	p.failures.Store(n)
	return p
}

func (p *flakyProver) Prove(ctx context.Context, c prover.Circuit, k prover.Keys) ([]byte, error) {
	p.calls.Add(1)
	if p.failures.Add(-1) >= 0 {
		return nil, errors.New("gpu fell over")
	}
	return prover.Marker{}.Prove(ctx, c, k)
}

// cancelingProver cancels the worker's context mid-proof.
type cancelingProver struct {
	cancel context.CancelFunc
}

func (p cancelingProver) Prove(ctx context.Context, _ prover.Circuit, _ prover.Keys) ([]byte, error) {
	p.cancel()
	<-ctx.Done()
	return nil, ctx.Err()
}

// recorder collects transitions.
type recorder struct {
	mu          sync.Mutex
	transitions []Transition
}

func (r *recorder) observe(tr Transition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, tr)
}

func (r *recorder) states() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]State, len(r.transitions))
	for i, tr := range r.transitions {
		out[i] = tr.To
	}
	return out
}
