package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/witnessgen/internal/blob"
	"github.com/roach88/witnessgen/internal/ir"
	"github.com/roach88/witnessgen/internal/prover"
	"github.com/roach88/witnessgen/internal/rounds"
	"github.com/roach88/witnessgen/internal/store"
)

// JobError is a failure while executing one job.
type JobError struct {
	// Code identifies the error category.
	Code ErrorCode

	// JobID identifies the failed job.
	JobID int64

	// State is the state the job was in when it failed.
	State State

	// Err is the underlying error.
	Err error
}

// ErrorCode categorizes job failures.
type ErrorCode string

const (
	// ErrCodeRetrieval: no decoder could read an input blob. Terminal.
	ErrCodeRetrieval ErrorCode = "RETRIEVAL"

	// ErrCodeNotFound: an input blob or proving key is missing. Retried.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeProving: the proving function failed. Retried.
	ErrCodeProving ErrorCode = "PROVING"

	// ErrCodePersistence: a blob write or the completion transaction failed.
	// The job keeps its status until it is failed. Retried.
	ErrCodePersistence ErrorCode = "PERSISTENCE"

	// ErrCodeInvalidKey: artifact coordinates could not form a key. Stops
	// the worker.
	ErrCodeInvalidKey ErrorCode = "INVALID_KEY"

	// ErrCodeCanceled: the worker was stopped mid-job. The job stays in
	// progress for the stuck-job policy to recover.
	ErrCodeCanceled ErrorCode = "CANCELED"
)

// Error implements the error interface.
func (e *JobError) Error() string {
	return fmt.Sprintf("%s: job %d failed while %s: %v", e.Code, e.JobID, e.State, e.Err)
}

// Unwrap returns the underlying error.
func (e *JobError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the job should be retried after backoff.
func (e *JobError) Retryable() bool {
	switch e.Code {
	case ErrCodeNotFound, ErrCodeProving, ErrCodePersistence:
		return true
	default:
		return false
	}
}

// Fatal reports whether the worker must stop.
func (e *JobError) Fatal() bool {
	return e.Code == ErrCodeInvalidKey
}

// Classify maps an error from a round stage to its code.
// Order matters: a key error wrapped in a persistence error is still a
// key error.
func Classify(err error) ErrorCode {
	switch {
	case errors.Is(err, ir.ErrInvalidKey):
		return ErrCodeInvalidKey
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrCodeCanceled
	case blob.IsRetrievalError(err):
		return ErrCodeRetrieval
	case errors.Is(err, blob.ErrNotFound), errors.Is(err, prover.ErrKeysNotFound), errors.Is(err, store.ErrNotFound):
		return ErrCodeNotFound
	case errors.Is(err, rounds.ErrProving):
		return ErrCodeProving
	default:
		return ErrCodePersistence
	}
}

// IsFatal reports whether err is a JobError that must stop the worker.
func IsFatal(err error) bool {
	var je *JobError
	if errors.As(err, &je) {
		return je.Fatal()
	}
	return false
}
