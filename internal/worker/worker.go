package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/roach88/witnessgen/internal/ir"
	"github.com/roach88/witnessgen/internal/rounds"
	"github.com/roach88/witnessgen/internal/store"
)

// Worker claims and executes jobs one at a time.
//
// A Worker is not safe for concurrent use; run several Workers (see Pool)
// for parallelism.
type Worker struct {
	id       string
	env      *rounds.Env
	cfg      Config
	clock    Clock
	log      zerolog.Logger
	observer Observer
	state    State
}

// Option configures a Worker.
type Option func(*Worker)

// WithClock sets the worker's wall clock.
func WithClock(c Clock) Option {
	return func(w *Worker) { w.clock = c }
}

// WithID sets the identity recorded in claimed_by.
func WithID(id string) Option {
	return func(w *Worker) { w.id = id }
}

// WithObserver registers a transition observer.
func WithObserver(o Observer) Option {
	return func(w *Worker) { w.observer = o }
}

// WithLogger sets the worker's logger. Defaults to the env logger.
func WithLogger(l zerolog.Logger) Option {
	return func(w *Worker) { w.log = l }
}

type clockFunc func() time.Time

func (f clockFunc) Now() time.Time { return f() }

// New creates a worker over env.
func New(env *rounds.Env, cfg Config, opts ...Option) (*Worker, error) {
	if env == nil || env.Store == nil || env.Blobs == nil || env.Codec == nil ||
		env.Prover == nil || env.Keys == nil || env.Builder == nil {
		return nil, errors.New("worker: env is missing a required handle")
	}
	if len(cfg.Rounds) == 0 {
		cfg.Rounds = ir.Rounds()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("worker: invalid config: %w", err)
	}

	w := &Worker{
		env:   env,
		cfg:   cfg,
		clock: SystemClock{},
		log:   env.Log,
	}
	if env.Now != nil {
		w.clock = clockFunc(env.Now)
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.id == "" {
		w.id = UUIDv7Generator{}.Generate()
	}
	w.log = w.log.With().Str("worker", w.id).Logger()
	return w, nil
}

// ID returns the worker's identity.
func (w *Worker) ID() string {
	return w.id
}

// State returns the worker's current state.
func (w *Worker) State() State {
	return w.state
}

func (w *Worker) transition(job ir.Job, to State, err error) {
	from := w.state
	w.state = to
	if w.observer != nil {
		w.observer(Transition{
			WorkerID: w.id,
			JobID:    job.ID,
			Round:    job.Round,
			From:     from,
			To:       to,
			At:       w.clock.Now(),
			Err:      err,
		})
	}
}

// Housekeeping requeues failed jobs whose backoff has elapsed and applies
// the stuck-job policy.
func (w *Worker) Housekeeping(ctx context.Context) error {
	now := w.clock.Now()

	n, err := w.env.Store.RequeueFailed(ctx, w.cfg.MaxAttempts, now)
	if err != nil {
		return err
	}
	if n > 0 {
		w.log.Info().Int64("count", n).Msg("requeued failed jobs")
	}

	olderThan := now.Add(-w.cfg.StuckTimeout)
	switch w.cfg.StuckPolicy {
	case StuckRequeue:
		n, err := w.env.Store.RequeueStuck(ctx, olderThan, now)
		if err != nil {
			return err
		}
		if n > 0 {
			w.log.Warn().Int64("count", n).Dur("timeout", w.cfg.StuckTimeout).Msg("requeued stuck jobs")
		}
	case StuckManual:
		n, err := w.env.Store.CountStuck(ctx, olderThan)
		if err != nil {
			return err
		}
		if n > 0 {
			w.log.Warn().Int("count", n).Dur("timeout", w.cfg.StuckTimeout).Msg("jobs stuck in progress, requeue manually")
		}
	}
	return nil
}

// RunOnce runs housekeeping, claims at most one job and executes it.
// It reports whether a job was claimed. The returned error is non-nil for
// store failures, cancellation, and fatal job errors; ordinary job failures
// are recorded on the job and not returned.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	if err := w.Housekeeping(ctx); err != nil {
		return false, err
	}

	job, err := w.env.Store.ClaimJob(ctx, w.id, w.cfg.Rounds, w.clock.Now())
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	w.state = StateIdle
	w.transition(*job, StateClaimed, nil)
	log := w.log.With().
		Int64("job", job.ID).
		Str("coordinate", job.Coordinate().String()).
		Int("seq", job.Seq).
		Int("attempt", job.Attempts+1).
		Logger()
	log.Debug().Msg("claimed job")

	err = w.execute(ctx, *job)
	if err == nil {
		w.transition(*job, StateSuccessful, nil)
		w.state = StateIdle
		log.Info().Msg("job successful")
		return true, nil
	}

	var je *JobError
	if !errors.As(err, &je) {
		je = &JobError{Code: Classify(err), JobID: job.ID, State: w.state, Err: err}
	}
	if je.Code == ErrCodeCanceled {
		w.transition(*job, StateInterrupted, je)
		w.state = StateIdle
		log.Warn().Err(je.Err).Str("stage", je.State.String()).Msg("job interrupted, left in progress")
		return true, je
	}
	w.transition(*job, StateFailed, je)
	w.state = StateIdle

	var retryAt *time.Time
	if je.Retryable() {
		at := w.clock.Now().Add(w.cfg.Backoff(job.Attempts + 1))
		retryAt = &at
	}
	if ferr := w.env.Store.FailJob(ctx, job.ID, w.id, je.Error(), retryAt, w.clock.Now()); ferr != nil {
		if errors.Is(ferr, store.ErrNotClaimed) {
			log.Warn().Err(je.Err).Msg("job reclaimed by another worker, failure dropped")
			return true, nil
		}
		return true, errors.Join(je, ferr)
	}

	ev := log.Error().Err(je.Err).Str("code", string(je.Code)).Str("stage", je.State.String())
	if retryAt != nil && job.Attempts+1 < w.cfg.MaxAttempts {
		ev = ev.Time("retry_at", *retryAt)
	}
	ev.Msg("job failed")

	if je.Fatal() {
		return true, je
	}
	return true, nil
}

func (w *Worker) execute(ctx context.Context, job ir.Job) error {
	fail := func(err error) error {
		return &JobError{Code: Classify(err), JobID: job.ID, State: w.state, Err: err}
	}

	h, err := rounds.For(job.Round)
	if err != nil {
		return fail(err)
	}

	w.transition(job, StatePreparing, nil)
	in, err := h.LoadInput(ctx, w.env, job)
	if err != nil {
		return fail(err)
	}
	prepared, err := h.PrepareJob(ctx, w.env, in)
	if err != nil {
		return fail(err)
	}

	w.transition(job, StateProcessing, nil)
	out, err := h.ProcessJob(ctx, w.env, prepared)
	if err != nil {
		return fail(err)
	}

	w.transition(job, StatePersisting, nil)
	urls, err := h.StoreOutputs(ctx, w.env, out)
	if err != nil {
		return fail(err)
	}
	res, err := h.RecordCompletion(ctx, w.env, job, urls)
	if err != nil {
		return fail(err)
	}

	w.log.Debug().
		Int64("job", job.ID).
		Int("parents", len(res.Parents)).
		Bool("created", res.Created).
		Bool("conflict", res.Conflict).
		Bool("gated", res.Gated).
		Bool("terminal", res.Terminal).
		Msg("recorded completion")
	return nil
}

// Run loops RunOnce until ctx is done or a fatal error occurs. Idle workers
// wait PollInterval between claims; store errors are logged and retried on
// the next poll.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info().Strs("rounds", roundNames(w.cfg.Rounds)).Msg("worker started")
	defer w.log.Info().Msg("worker stopped")

	for {
		processed, err := w.RunOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			if IsFatal(err) {
				return err
			}
			w.log.Error().Err(err).Msg("worker iteration failed")
			processed = false
		}
		if processed {
			continue
		}

		t := time.NewTimer(w.cfg.PollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

func roundNames(rs []ir.Round) []string {
	names := make([]string, len(rs))
	for i, r := range rs {
		names[i] = r.String()
	}
	return names
}
