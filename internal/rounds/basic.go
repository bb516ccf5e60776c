package rounds

import (
	"context"
	"fmt"

	"github.com/roach88/witnessgen/internal/blob"
	"github.com/roach88/witnessgen/internal/ir"
	"github.com/roach88/witnessgen/internal/prover"
)

func loadWitness(ctx context.Context, env *Env, job ir.Job) (InputArtifacts, error) {
	key, err := ir.BlobKey(ir.BucketWitnessInputs, job.BatchNumber, job.CircuitID, ir.BasicCircuits, 0, job.Seq)
	if err != nil {
		return InputArtifacts{}, err
	}
	w, err := blob.Load[WitnessInput](ctx, env.Blobs, env.Codec, key.String())
	if err != nil {
		return InputArtifacts{}, fmt.Errorf("load witness for job %d: %w", job.ID, err)
	}
	return InputArtifacts{Job: job, Witness: &w}, nil
}

func prepareBasic(_ context.Context, env *Env, in InputArtifacts) (PreparedJob, error) {
	job := in.Job
	if in.Witness == nil {
		return PreparedJob{}, fmt.Errorf("job %d: missing witness", job.ID)
	}
	keys, err := env.Keys.Keys(job.Round, job.CircuitID)
	if err != nil {
		return PreparedJob{}, fmt.Errorf("prepare job %d: %w", job.ID, err)
	}
	return PreparedJob{
		Job:   job,
		Input: in,
		Keys:  keys,
		Aggregate: prover.Circuit{
			Round:     job.Round,
			CircuitID: job.CircuitID,
			Inputs:    [][]byte{in.Witness.Witness},
		},
	}, nil
}

func processBasic(ctx context.Context, env *Env, p PreparedJob) (OutputArtifacts, error) {
	job := p.Job
	proof, err := proveOnce(ctx, env, ir.BucketProofs, job, job.Seq, p.Aggregate, p.Keys)
	if err != nil {
		return OutputArtifacts{}, err
	}
	return OutputArtifacts{
		BatchNumber: job.BatchNumber,
		Round:       job.Round,
		CircuitID:   job.CircuitID,
		Depth:       job.Depth,
		Seq:         job.Seq,
		Proof:       proof,
		CircuitURLs: []CircuitURL{},
		Aux: &AuxWitness{
			BatchNumber: job.BatchNumber,
			CircuitID:   job.CircuitID,
			Seq:         job.Seq,
			WitnessHash: ir.ContentHash(ir.DomainAuxWitness, p.Input.Witness.Witness),
		},
		Next: nextInput(job),
	}, nil
}
