package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/roach88/witnessgen/internal/blob"
	"github.com/roach88/witnessgen/internal/ir"
	"github.com/roach88/witnessgen/internal/rounds"
	"github.com/roach88/witnessgen/internal/store"
)

// ErrBatchMismatch is returned when a batch is resubmitted with a different
// protocol version, seal time or set of basic circuit witnesses than the
// committed one. Aggregation groups are fixed once created, so a committed
// batch can never gain or lose basic jobs.
var ErrBatchMismatch = errors.New("resubmitted batch differs from committed batch")

// Producer writes batch inputs to the blob store and queues basic jobs.
type Producer struct {
	blobs blob.Store
	codec *blob.Codec
	store *store.Store
	log   zerolog.Logger
	now   func() time.Time
}

// NewProducer returns a producer over the given stores.
func NewProducer(blobs blob.Store, codec *blob.Codec, st *store.Store, log zerolog.Logger) *Producer {
	return &Producer{
		blobs: blobs,
		codec: codec,
		store: st,
		log:   log.With().Str("component", "producer").Logger(),
		now:   time.Now,
	}
}

// SubmitResult reports what SubmitBatch did.
type SubmitResult struct {
	Batch ir.Batch
	Jobs  []ir.Job

	// Inserted counts newly queued jobs; zero for a resubmission.
	Inserted int
}

// SubmitBatch writes every witness and the scheduler input, then inserts the
// batch row and all basic jobs in one transaction. Submitting the same batch
// again queues nothing new.
func (p *Producer) SubmitBatch(ctx context.Context, s *Submission) (SubmitResult, error) {
	if err := s.Validate(); err != nil {
		return SubmitResult{}, err
	}

	if err := checkResubmission(ctx, p.store, s); err != nil {
		return SubmitResult{}, err
	}

	type pending struct {
		circuit ir.CircuitID
		seq     int
		key     string
	}
	var jobs []pending

	for _, c := range s.Circuits {
		for seq, payload := range c.Payloads() {
			key, err := ir.BlobKey(ir.BucketWitnessInputs, s.BatchNumber, c.CircuitID, ir.BasicCircuits, 0, seq)
			if err != nil {
				return SubmitResult{}, err
			}
			err = blob.Save(ctx, p.blobs, p.codec, key.String(), rounds.WitnessInput{
				BatchNumber: s.BatchNumber,
				CircuitID:   c.CircuitID,
				Seq:         seq,
				Witness:     payload,
			})
			if err != nil {
				return SubmitResult{}, fmt.Errorf("write witness: %w", err)
			}
			jobs = append(jobs, pending{circuit: c.CircuitID, seq: seq, key: key.String()})
		}
	}

	schedKey, err := ir.BlobKey(ir.BucketSchedulerInputs, s.BatchNumber, ir.SchedulerCircuitID, ir.Scheduler, 0, 0)
	if err != nil {
		return SubmitResult{}, err
	}
	err = blob.Save(ctx, p.blobs, p.codec, schedKey.String(), rounds.SchedulerInput{
		BatchNumber:     s.BatchNumber,
		ProtocolVersion: s.ProtocolVersion,
		Data:            []byte(s.SchedulerInput),
	})
	if err != nil {
		return SubmitResult{}, fmt.Errorf("write scheduler input: %w", err)
	}

	batch := ir.Batch{
		Number:          s.BatchNumber,
		ProtocolVersion: s.ProtocolVersion,
		SealedAt:        s.SealedAt,
	}
	res := SubmitResult{Batch: batch}
	now := p.now()

	err = p.store.WithTx(ctx, func(tx *store.Tx) error {
		// Another producer may have committed the batch since the first check.
		if err := checkResubmission(ctx, tx, s); err != nil {
			return err
		}
		if _, err := tx.InsertBatch(ctx, batch); err != nil {
			return err
		}
		stored, err := tx.ReadBatch(ctx, s.BatchNumber)
		if err != nil {
			return err
		}
		res.Batch = stored

		for _, j := range jobs {
			job, inserted, err := tx.InsertJob(ctx, ir.Job{
				BatchNumber:     s.BatchNumber,
				Round:           ir.BasicCircuits,
				CircuitID:       j.circuit,
				Seq:             j.seq,
				InputURLs:       []string{j.key},
				ProtocolVersion: stored.ProtocolVersion,
				BatchSealedAt:   stored.SealedAt,
				CreatedAt:       now,
			})
			if err != nil {
				return err
			}
			if inserted {
				res.Inserted++
			}
			res.Jobs = append(res.Jobs, job)
		}
		return nil
	})
	if err != nil {
		return SubmitResult{}, fmt.Errorf("submit batch %d: %w", s.BatchNumber, err)
	}

	p.log.Info().
		Uint32("batch", uint32(s.BatchNumber)).
		Int("circuits", len(s.Circuits)).
		Int("jobs", len(res.Jobs)).
		Int("inserted", res.Inserted).
		Msg("batch submitted")
	return res, nil
}

type batchReader interface {
	ReadBatch(ctx context.Context, n ir.BatchNumber) (ir.Batch, error)
	JobsForBatch(ctx context.Context, n ir.BatchNumber) ([]ir.Job, error)
}

// checkResubmission returns ErrBatchMismatch when s names a committed batch
// but differs from it. A batch that is not committed yet always passes.
func checkResubmission(ctx context.Context, r batchReader, s *Submission) error {
	b, err := r.ReadBatch(ctx, s.BatchNumber)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if b.ProtocolVersion != s.ProtocolVersion {
		return fmt.Errorf("%w: batch %d has protocol version %d, resubmitted with %d",
			ErrBatchMismatch, s.BatchNumber, b.ProtocolVersion, s.ProtocolVersion)
	}
	if b.SealedAt.UnixMilli() != s.SealedAt.UnixMilli() {
		return fmt.Errorf("%w: batch %d sealed at %s, resubmitted with %s",
			ErrBatchMismatch, s.BatchNumber, b.SealedAt.Format(time.RFC3339Nano), s.SealedAt.UTC().Format(time.RFC3339Nano))
	}

	type slot struct {
		circuit ir.CircuitID
		seq     int
	}
	want := map[slot]bool{}
	for _, c := range s.Circuits {
		for seq := range c.Payloads() {
			want[slot{c.CircuitID, seq}] = true
		}
	}

	jobs, err := r.JobsForBatch(ctx, s.BatchNumber)
	if err != nil {
		return err
	}
	committed := 0
	for _, j := range jobs {
		if j.Round != ir.BasicCircuits {
			continue
		}
		committed++
		if !want[slot{j.CircuitID, j.Seq}] {
			return fmt.Errorf("%w: batch %d has basic job circuit=%d seq=%d missing from the resubmission",
				ErrBatchMismatch, s.BatchNumber, j.CircuitID, j.Seq)
		}
	}
	if committed != len(want) {
		return fmt.Errorf("%w: batch %d has %d basic jobs, resubmitted with %d witnesses",
			ErrBatchMismatch, s.BatchNumber, committed, len(want))
	}
	return nil
}
