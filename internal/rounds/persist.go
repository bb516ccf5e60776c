package rounds

import (
	"context"
	"fmt"

	"github.com/roach88/witnessgen/internal/aggregate"
	"github.com/roach88/witnessgen/internal/blob"
	"github.com/roach88/witnessgen/internal/ir"
	"github.com/roach88/witnessgen/internal/store"
)

// storeOutputs writes the job proof and, for basic circuits, the auxiliary
// witness. Each blob has its own key, so write order does not matter.
func storeOutputs(ctx context.Context, env *Env, out OutputArtifacts) (BlobURLs, error) {
	proofKey, err := ir.BlobKey(ir.BucketProofs, out.BatchNumber, out.CircuitID, out.Round, out.Depth, out.Seq)
	if err != nil {
		return BlobURLs{}, err
	}
	err = blob.Save(ctx, env.Blobs, env.Codec, proofKey.String(), ProofArtifact{
		BatchNumber: out.BatchNumber,
		Round:       out.Round,
		CircuitID:   out.CircuitID,
		Depth:       out.Depth,
		Seq:         out.Seq,
		Proof:       out.Proof,
	})
	if err != nil {
		return BlobURLs{}, fmt.Errorf("store proof: %w", err)
	}

	urls := BlobURLs{Proof: proofKey.String()}
	if out.Aux != nil {
		auxKey, err := ir.BlobKey(ir.BucketAuxWitness, out.BatchNumber, out.CircuitID, out.Round, out.Depth, out.Seq)
		if err != nil {
			return BlobURLs{}, err
		}
		if err := blob.Save(ctx, env.Blobs, env.Codec, auxKey.String(), *out.Aux); err != nil {
			return BlobURLs{}, fmt.Errorf("store aux witness: %w", err)
		}
		urls.Aux = auxKey.String()
	}
	return urls, nil
}

func recordCompletion(ctx context.Context, env *Env, job ir.Job, urls BlobURLs) (aggregate.Result, error) {
	return complete(ctx, env, job, urls, nil)
}

// recordSchedulerCompletion additionally marks the batch proven.
func recordSchedulerCompletion(ctx context.Context, env *Env, job ir.Job, urls BlobURLs) (aggregate.Result, error) {
	return complete(ctx, env, job, urls, func(tx *store.Tx) error {
		return tx.MarkBatchProven(ctx, job.BatchNumber, urls.Proof, env.now())
	})
}

// complete marks the job successful and runs the aggregation builder in one
// transaction. If anything fails the transaction is rolled back and the job
// keeps its previous status.
func complete(ctx context.Context, env *Env, job ir.Job, urls BlobURLs, extra func(tx *store.Tx) error) (aggregate.Result, error) {
	var res aggregate.Result
	err := env.Store.WithTx(ctx, func(tx *store.Tx) error {
		version, err := tx.ProtocolVersionForBatch(ctx, job.BatchNumber)
		if err != nil {
			return err
		}
		sealedAt, err := tx.BatchSealedAt(ctx, job.BatchNumber)
		if err != nil {
			return err
		}

		if _, err := tx.MarkJobSuccessful(ctx, job.ID, urls.Proof, urls.Aux, env.now()); err != nil {
			return err
		}
		done, err := tx.ReadJob(ctx, job.ID)
		if err != nil {
			return err
		}

		if extra != nil {
			if err := extra(tx); err != nil {
				return err
			}
		}

		res, err = env.Builder.OnCompleted(ctx, tx, aggregate.Completion{
			Job:             done,
			ProtocolVersion: version,
			BatchSealedAt:   sealedAt,
		})
		return err
	})
	if err != nil {
		return aggregate.Result{}, fmt.Errorf("%w: record job %d: %w", ErrPersistence, job.ID, err)
	}
	return res, nil
}
