package rounds

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/witnessgen/internal/aggregate"
	"github.com/roach88/witnessgen/internal/blob"
	"github.com/roach88/witnessgen/internal/ir"
	"github.com/roach88/witnessgen/internal/prover"
)

// loadGroup reads the job's aggregation manifest and the child proofs of
// its group.
func loadGroup(ctx context.Context, env *Env, job ir.Job) (InputArtifacts, error) {
	if job.AggregationURL == "" {
		return InputArtifacts{}, fmt.Errorf("job %d has no aggregation manifest", job.ID)
	}
	m, err := blob.Load[aggregate.Manifest](ctx, env.Blobs, env.Codec, job.AggregationURL)
	if err != nil {
		return InputArtifacts{}, fmt.Errorf("load manifest for job %d: %w", job.ID, err)
	}
	if m.Coordinate() != job.Coordinate() {
		return InputArtifacts{}, fmt.Errorf("job %d: manifest %s describes %s", job.ID, job.AggregationURL, m.Coordinate())
	}
	g, err := m.Group(job.Seq)
	if err != nil {
		return InputArtifacts{}, err
	}

	in := InputArtifacts{
		Job:       job,
		ChildURLs: g.URLs,
		FirstSeq:  m.FirstSeq(job.Seq),
	}
	for _, url := range g.URLs {
		child, err := blob.Load[ProofArtifact](ctx, env.Blobs, env.Codec, url)
		if err != nil {
			return InputArtifacts{}, fmt.Errorf("load child proof for job %d: %w", job.ID, err)
		}
		in.Children = append(in.Children, child)
	}
	return in, nil
}

// loadScheduler loads the recursion tip proof and the batch's scheduler
// partial input.
func loadScheduler(ctx context.Context, env *Env, job ir.Job) (InputArtifacts, error) {
	in, err := loadGroup(ctx, env, job)
	if err != nil {
		return InputArtifacts{}, err
	}
	key, err := ir.BlobKey(ir.BucketSchedulerInputs, job.BatchNumber, ir.SchedulerCircuitID, ir.Scheduler, 0, 0)
	if err != nil {
		return InputArtifacts{}, err
	}
	s, err := blob.Load[SchedulerInput](ctx, env.Blobs, env.Codec, key.String())
	if err != nil {
		return InputArtifacts{}, fmt.Errorf("load scheduler input for batch %d: %w", job.BatchNumber, err)
	}
	in.Scheduler = &s
	return in, nil
}

// prepareAggregation lays out one sub-circuit per child proof, numbered
// contiguously from the group's first sequence number.
func prepareAggregation(_ context.Context, env *Env, in InputArtifacts) (PreparedJob, error) {
	job := in.Job
	if len(in.Children) == 0 {
		return PreparedJob{}, fmt.Errorf("job %d: empty aggregation group", job.ID)
	}
	keys, err := env.Keys.Keys(job.Round, job.CircuitID)
	if err != nil {
		return PreparedJob{}, fmt.Errorf("prepare job %d: %w", job.ID, err)
	}

	p := PreparedJob{
		Job:   job,
		Input: in,
		Keys:  keys,
		Aggregate: prover.Circuit{
			Round:     job.Round,
			CircuitID: job.CircuitID,
		},
	}
	for i, child := range in.Children {
		seq := in.FirstSeq + i
		key, err := ir.BlobKey(ir.BucketCircuits, job.BatchNumber, job.CircuitID, job.Round, job.Depth, seq)
		if err != nil {
			return PreparedJob{}, err
		}
		p.SubCircuits = append(p.SubCircuits, CircuitInput{
			CircuitID: job.CircuitID,
			Seq:       seq,
			Key:       key,
			Circuit: prover.Circuit{
				Round:     job.Round,
				CircuitID: job.CircuitID,
				Inputs:    [][]byte{child.Proof},
			},
		})
	}
	return p, nil
}

// processAggregation proves every sub-circuit, at most env.MaxParallelism at
// a time, then proves the job's own circuit over the sub-circuit proofs.
func processAggregation(ctx context.Context, env *Env, p PreparedJob) (OutputArtifacts, error) {
	job := p.Job
	proofs := make([][]byte, len(p.SubCircuits))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(env.parallelism())
	for i, sc := range p.SubCircuits {
		g.Go(func() error {
			proof, err := proveOnce(gctx, env, ir.BucketCircuits, job, sc.Seq, sc.Circuit, p.Keys)
			if err != nil {
				return err
			}
			proofs[i] = proof
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return OutputArtifacts{}, err
	}

	agg := p.Aggregate
	agg.Inputs = append([][]byte(nil), proofs...)
	if s := p.Input.Scheduler; s != nil {
		agg.Inputs = append(agg.Inputs, s.Data)
	}
	proof, err := proveOnce(ctx, env, ir.BucketProofs, job, job.Seq, agg, p.Keys)
	if err != nil {
		return OutputArtifacts{}, err
	}

	out := OutputArtifacts{
		BatchNumber: job.BatchNumber,
		Round:       job.Round,
		CircuitID:   job.CircuitID,
		Depth:       job.Depth,
		Seq:         job.Seq,
		Proof:       proof,
		CircuitURLs: make([]CircuitURL, len(p.SubCircuits)),
		Next:        nextInput(job),
	}
	for i, sc := range p.SubCircuits {
		out.CircuitURLs[i] = CircuitURL{CircuitID: sc.CircuitID, Seq: sc.Seq, URL: sc.Key.String()}
	}
	return out, nil
}

// proveOnce returns the proof already stored for (bucket, job, seq) or runs
// the prover. Sub-circuit proofs are written immediately; job proofs are
// written by StoreOutputs. Reusing a stored proof keeps retried jobs from
// replacing a blob another job may already have consumed.
func proveOnce(ctx context.Context, env *Env, bucket ir.Bucket, job ir.Job, seq int, c prover.Circuit, keys prover.Keys) ([]byte, error) {
	key, err := ir.BlobKey(bucket, job.BatchNumber, job.CircuitID, job.Round, job.Depth, seq)
	if err != nil {
		return nil, err
	}

	existing, err := blob.Load[ProofArtifact](ctx, env.Blobs, env.Codec, key.String())
	switch {
	case err == nil:
		env.Log.Debug().Str("key", key.String()).Msg("reusing stored proof")
		return existing.Proof, nil
	case !errors.Is(err, blob.ErrNotFound):
		return nil, err
	}

	proof, err := env.Prover.Prove(ctx, c, keys)
	if err != nil {
		return nil, fmt.Errorf("%w: %s seq=%d: %w", ErrProving, job.Coordinate(), seq, err)
	}

	if bucket == ir.BucketCircuits {
		err := blob.Save(ctx, env.Blobs, env.Codec, key.String(), ProofArtifact{
			BatchNumber: job.BatchNumber,
			Round:       job.Round,
			CircuitID:   job.CircuitID,
			Depth:       job.Depth,
			Seq:         seq,
			Proof:       proof,
		})
		if err != nil {
			return nil, err
		}
	}
	return proof, nil
}
