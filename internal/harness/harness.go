package harness

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/roach88/witnessgen/internal/aggregate"
	"github.com/roach88/witnessgen/internal/blob"
	"github.com/roach88/witnessgen/internal/ir"
	"github.com/roach88/witnessgen/internal/pipeline"
	"github.com/roach88/witnessgen/internal/prover"
	"github.com/roach88/witnessgen/internal/rounds"
	"github.com/roach88/witnessgen/internal/store"
	"github.com/roach88/witnessgen/internal/testutil"
	"github.com/roach88/witnessgen/internal/worker"
)

// Start is the fixed wall-clock time every scenario starts at.
var Start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// maxPasses bounds drain passes so a scenario that keeps failing ends.
const maxPasses = 64

// Harness holds one scenario's execution state.
type Harness struct {
	store *store.Store
	blobs *blob.MemStore
	clock *testutil.FakeClock
	pool  *worker.Pool
	cfg   worker.Config

	mu     sync.Mutex
	result *Result
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Create fresh in-memory database and blob store
// 2. Submit every batch
// 3. Drain workers, advancing the clock past backoff while jobs wait on retry
// 4. Evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	h, err := newHarness(scenario)
	if err != nil {
		return nil, err
	}
	defer h.store.Close()

	producer := pipeline.NewProducer(blob.WriteOnce(h.blobs), blob.DefaultCodec(), h.store, zerolog.Nop())
	for i := range scenario.Batches {
		if _, err := producer.SubmitBatch(ctx, &scenario.Batches[i]); err != nil {
			return nil, fmt.Errorf("submit batch %d: %w", scenario.Batches[i].BatchNumber, err)
		}
	}

	if err := h.drain(ctx); err != nil {
		return nil, err
	}

	jobs, err := h.allJobs(ctx, scenario)
	if err != nil {
		return nil, err
	}
	h.result.Jobs = jobs

	for _, a := range scenario.Assertions {
		if err := h.evaluate(ctx, a); err != nil {
			h.result.AddError(err.Error())
		}
	}
	return h.result, nil
}

func newHarness(scenario *Scenario) (*Harness, error) {
	topology, err := scenario.Topology()
	if err != nil {
		return nil, err
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}

	clock := testutil.NewFakeClock(Start)
	mem := blob.NewMemStore()
	blobs := blob.WriteOnce(mem)
	codec := blob.DefaultCodec()

	faults, err := newFaultProver(scenario.Faults)
	if err != nil {
		st.Close()
		return nil, err
	}

	env := &rounds.Env{
		Blobs:          blobs,
		Codec:          codec,
		Store:          st,
		Prover:         faults,
		Keys:           prover.NewMemKeystore(ir.Rounds()...),
		Builder:        aggregate.NewBuilder(blobs, codec, topology, aggregate.WithNow(clock.Now)),
		MaxParallelism: 1,
		Log:            zerolog.Nop(),
		Now:            clock.Now,
	}

	cfg := worker.DefaultConfig()
	if scenario.MaxAttempts > 0 {
		cfg.MaxAttempts = scenario.MaxAttempts
	}
	workers := scenario.Workers
	if workers == 0 {
		workers = 1
	}

	h := &Harness{
		store:  st,
		blobs:  mem,
		clock:  clock,
		cfg:    cfg,
		result: NewResult(),
	}
	pool, err := worker.NewPool(env, cfg, workers, testutil.NewSequenceIDGenerator("worker"),
		worker.WithClock(clock),
		worker.WithObserver(h.observe),
	)
	if err != nil {
		st.Close()
		return nil, err
	}
	h.pool = pool
	return h, nil
}

// observe records terminal transitions as trace events.
func (h *Harness) observe(tr worker.Transition) {
	var typ, code string
	switch tr.To {
	case worker.StateSuccessful:
		typ = EventSuccessful
	case worker.StateFailed:
		typ = EventFailed
		code = string(worker.Classify(tr.Err))
	default:
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.result.Trace = append(h.result.Trace, TraceEvent{
		Seq:    int64(len(h.result.Trace) + 1),
		Type:   typ,
		Worker: tr.WorkerID,
		JobID:  tr.JobID,
		Round:  tr.Round.String(),
		Code:   code,
	})
}

// drain runs workers until nothing is claimable, then releases jobs waiting
// on backoff by advancing the clock, until a pass makes no progress.
func (h *Harness) drain(ctx context.Context) error {
	for range maxPasses {
		n, err := h.pool.Drain(ctx)
		if err != nil {
			return fmt.Errorf("drain: %w", err)
		}
		h.clock.Advance(h.cfg.BackoffMax)
		if n == 0 {
			break
		}
	}
	return h.fillCoordinates(ctx)
}

// fillCoordinates completes trace events with each job's coordinate.
func (h *Harness) fillCoordinates(ctx context.Context) error {
	for i := range h.result.Trace {
		ev := &h.result.Trace[i]
		job, err := h.store.ReadJob(ctx, ev.JobID)
		if err != nil {
			return err
		}
		ev.Batch = job.BatchNumber
		ev.CircuitID = job.CircuitID
		ev.Depth = job.Depth
		ev.JobSeq = job.Seq
	}
	return nil
}

func (h *Harness) allJobs(ctx context.Context, scenario *Scenario) ([]ir.Job, error) {
	var all []ir.Job
	for _, b := range scenario.Batches {
		jobs, err := h.store.JobsForBatch(ctx, b.BatchNumber)
		if err != nil {
			return nil, err
		}
		all = append(all, jobs...)
	}
	return all, nil
}
