package rounds

import (
	"context"
	"fmt"

	"github.com/roach88/witnessgen/internal/aggregate"
	"github.com/roach88/witnessgen/internal/ir"
)

// Handler is the implementation record of one round.
type Handler struct {
	Round ir.Round

	LoadInput        func(ctx context.Context, env *Env, job ir.Job) (InputArtifacts, error)
	PrepareJob       func(ctx context.Context, env *Env, in InputArtifacts) (PreparedJob, error)
	ProcessJob       func(ctx context.Context, env *Env, p PreparedJob) (OutputArtifacts, error)
	StoreOutputs     func(ctx context.Context, env *Env, out OutputArtifacts) (BlobURLs, error)
	RecordCompletion func(ctx context.Context, env *Env, job ir.Job, urls BlobURLs) (aggregate.Result, error)
}

var handlers = [...]Handler{
	ir.BasicCircuits: {
		Round:            ir.BasicCircuits,
		LoadInput:        loadWitness,
		PrepareJob:       prepareBasic,
		ProcessJob:       processBasic,
		StoreOutputs:     storeOutputs,
		RecordCompletion: recordCompletion,
	},
	ir.LeafAggregation: {
		Round:            ir.LeafAggregation,
		LoadInput:        loadGroup,
		PrepareJob:       prepareAggregation,
		ProcessJob:       processAggregation,
		StoreOutputs:     storeOutputs,
		RecordCompletion: recordCompletion,
	},
	ir.NodeAggregation: {
		Round:            ir.NodeAggregation,
		LoadInput:        loadGroup,
		PrepareJob:       prepareAggregation,
		ProcessJob:       processAggregation,
		StoreOutputs:     storeOutputs,
		RecordCompletion: recordCompletion,
	},
	ir.RecursionTip: {
		Round:            ir.RecursionTip,
		LoadInput:        loadGroup,
		PrepareJob:       prepareAggregation,
		ProcessJob:       processAggregation,
		StoreOutputs:     storeOutputs,
		RecordCompletion: recordCompletion,
	},
	ir.Scheduler: {
		Round:            ir.Scheduler,
		LoadInput:        loadScheduler,
		PrepareJob:       prepareAggregation,
		ProcessJob:       processAggregation,
		StoreOutputs:     storeOutputs,
		RecordCompletion: recordSchedulerCompletion,
	},
}

// For returns the handler of round r.
func For(r ir.Round) (Handler, error) {
	if !r.Valid() {
		return Handler{}, fmt.Errorf("%w: no handler for round %d", ir.ErrInvalidKey, uint8(r))
	}
	return handlers[r], nil
}
