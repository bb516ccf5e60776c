package rounds

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/roach88/witnessgen/internal/aggregate"
	"github.com/roach88/witnessgen/internal/blob"
	"github.com/roach88/witnessgen/internal/prover"
	"github.com/roach88/witnessgen/internal/store"
)

var (
	// ErrProving wraps failures of the proving function.
	ErrProving = errors.New("proving failed")

	// ErrPersistence wraps failures to commit a job's completion.
	ErrPersistence = errors.New("persistence failed")
)

// Env carries the shared handles every stage uses.
type Env struct {
	Blobs   blob.Store
	Codec   *blob.Codec
	Store   *store.Store
	Prover  prover.Prover
	Keys    prover.Keystore
	Builder *aggregate.Builder

	// MaxParallelism bounds concurrent sub-circuit proofs within one job.
	// Zero or less means one at a time.
	MaxParallelism int

	Log zerolog.Logger
	Now func() time.Time
}

func (e *Env) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

func (e *Env) parallelism() int {
	if e.MaxParallelism <= 0 {
		return 1
	}
	return e.MaxParallelism
}
