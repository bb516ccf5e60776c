package aggregate

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/roach88/witnessgen/internal/blob"
	"github.com/roach88/witnessgen/internal/ir"
)

// ErrManifestMismatch is returned when an aggregation manifest already
// exists for a coordinate with a different grouping.
var ErrManifestMismatch = errors.New("aggregation manifest mismatch")

// Store is the subset of the transactional store the builder needs.
// *store.Tx satisfies it.
type Store interface {
	SiblingJobs(ctx context.Context, c ir.Coordinate) ([]ir.Job, error)
	JobsForBatch(ctx context.Context, n ir.BatchNumber) ([]ir.Job, error)
	InsertJob(ctx context.Context, job ir.Job) (ir.Job, bool, error)
	InsertAggregationGroup(ctx context.Context, parentID, childID int64, position int) (bool, error)
}

// Completion describes a job that has just been marked successful, with the
// batch metadata its parents inherit.
type Completion struct {
	Job             ir.Job
	ProtocolVersion ir.ProtocolVersion
	BatchSealedAt   time.Time
}

// Result reports what the builder did for one completion.
type Result struct {
	// Parents are the parent jobs of the completed job's coordinate, whether
	// created by this call or found already committed.
	Parents []ir.Job

	// Created is true when this call inserted at least one parent.
	Created bool

	// Conflict is true when the parents already existed. This is the normal
	// outcome when two workers finish the last siblings at the same time.
	Conflict bool

	// Gated is true when some prerequisite job is not yet successful.
	Gated bool

	// Terminal is true for the scheduler round, which has no parent.
	Terminal bool
}

// Builder creates the next round's jobs.
type Builder struct {
	blobs    blob.Store
	codec    *blob.Codec
	topology ir.Topology
	log      zerolog.Logger
	now      func() time.Time
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithLogger sets the builder's logger.
func WithLogger(log zerolog.Logger) BuilderOption {
	return func(b *Builder) {
		b.log = log
	}
}

// WithNow sets the clock used for created_at timestamps.
func WithNow(now func() time.Time) BuilderOption {
	return func(b *Builder) {
		b.now = now
	}
}

// NewBuilder returns a builder writing manifests to blobs.
func NewBuilder(blobs blob.Store, codec *blob.Codec, topology ir.Topology, opts ...BuilderOption) *Builder {
	b := &Builder{
		blobs:    blobs,
		codec:    codec,
		topology: topology,
		log:      zerolog.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// OnCompleted runs after c.Job has been marked successful in tx. If every
// prerequisite of the next round is now successful it creates the parent
// jobs; otherwise it returns a gated result and leaves the work to whichever
// completion finishes last.
func (b *Builder) OnCompleted(ctx context.Context, tx Store, c Completion) (Result, error) {
	job := c.Job
	log := b.log.With().
		Int64("job_id", job.ID).
		Uint32("batch", uint32(job.BatchNumber)).
		Stringer("round", job.Round).
		Uint8("circuit_id", uint8(job.CircuitID)).
		Int("depth", job.Depth).
		Logger()

	if job.Round == ir.Scheduler {
		return Result{Terminal: true}, nil
	}

	siblings, err := tx.SiblingJobs(ctx, job.Coordinate())
	if err != nil {
		return Result{}, err
	}
	if !allSuccessful(siblings) {
		log.Debug().Int("siblings", len(siblings)).Msg("waiting for siblings")
		return Result{Gated: true}, nil
	}

	var (
		parent   ir.Coordinate
		children []ir.Job
	)
	switch {
	case job.Round == ir.NodeAggregation && len(siblings) == 1:
		parent, children, err = b.recursionTipInputs(ctx, tx, job.BatchNumber)
		if err != nil {
			return Result{}, err
		}
		if children == nil {
			log.Debug().Msg("waiting for other circuits to collapse")
			return Result{Gated: true}, nil
		}
	default:
		parent = parentCoordinate(job)
		children = siblings
	}

	return b.createParents(ctx, tx, c, parent, children, log)
}

// parentCoordinate returns where the siblings of job are aggregated, for
// every case except the single-node collapse into the recursion tip.
func parentCoordinate(job ir.Job) ir.Coordinate {
	p := ir.Coordinate{BatchNumber: job.BatchNumber}
	switch job.Round {
	case ir.BasicCircuits:
		p.Round = ir.LeafAggregation
		p.CircuitID = ir.RemapCircuitID(ir.LeafAggregation, job.CircuitID)
	case ir.LeafAggregation:
		p.Round = ir.NodeAggregation
		p.CircuitID = job.CircuitID
		p.Depth = 1
	case ir.NodeAggregation:
		p.Round = ir.NodeAggregation
		p.CircuitID = job.CircuitID
		p.Depth = job.Depth + 1
	case ir.RecursionTip:
		p.Round = ir.Scheduler
		p.CircuitID = ir.RemapCircuitID(ir.Scheduler, job.CircuitID)
	}
	return p
}

// recursionTipInputs returns the top node job of every circuit of the batch
// once all of them have collapsed to a single job and nothing earlier in the
// batch is pending. children is nil while the batch is not ready.
func (b *Builder) recursionTipInputs(ctx context.Context, tx Store, batch ir.BatchNumber) (ir.Coordinate, []ir.Job, error) {
	parent := ir.Coordinate{
		BatchNumber: batch,
		Round:       ir.RecursionTip,
		CircuitID:   ir.RecursionTipCircuitID,
	}

	jobs, err := tx.JobsForBatch(ctx, batch)
	if err != nil {
		return parent, nil, err
	}

	leafCircuits := map[ir.CircuitID]bool{}
	topDepth := map[ir.CircuitID]int{}
	for _, j := range jobs {
		if j.Round >= ir.RecursionTip {
			continue
		}
		if j.Status != ir.StatusSuccessful {
			return parent, nil, nil
		}
		switch j.Round {
		case ir.LeafAggregation:
			leafCircuits[j.CircuitID] = true
		case ir.NodeAggregation:
			if d, ok := topDepth[j.CircuitID]; !ok || j.Depth > d {
				topDepth[j.CircuitID] = j.Depth
			}
		}
	}

	var tops []ir.Job
	for circuit := range leafCircuits {
		depth, ok := topDepth[circuit]
		if !ok {
			return parent, nil, nil
		}
		var top []ir.Job
		for _, j := range jobs {
			if j.Round == ir.NodeAggregation && j.CircuitID == circuit && j.Depth == depth {
				top = append(top, j)
			}
		}
		if len(top) != 1 {
			return parent, nil, nil
		}
		tops = append(tops, top[0])
	}
	slices.SortFunc(tops, func(a, b ir.Job) int {
		return int(a.CircuitID) - int(b.CircuitID)
	})
	return parent, tops, nil
}

// groupSize returns the number of children per parent job. The recursion
// tip and the scheduler always form a single job per batch.
func (b *Builder) groupSize(parent ir.Coordinate, children int) int {
	switch parent.Round {
	case ir.RecursionTip, ir.Scheduler:
		return max(children, 1)
	default:
		return b.topology.GroupSize(parent.Round)
	}
}

func (b *Builder) createParents(ctx context.Context, tx Store, c Completion, parent ir.Coordinate, children []ir.Job, log zerolog.Logger) (Result, error) {
	groups := chunk(children, b.groupSize(parent, len(children)))

	key, err := ir.AggregationKey(parent.BatchNumber, parent.CircuitID, parent.Round, parent.Depth)
	if err != nil {
		return Result{}, err
	}

	manifest := Manifest{
		BatchNumber: parent.BatchNumber,
		Round:       parent.Round,
		CircuitID:   parent.CircuitID,
		Depth:       parent.Depth,
	}
	for seq, g := range groups {
		urls := make([]string, len(g))
		for i, child := range g {
			if child.OutputURL == "" {
				return Result{}, fmt.Errorf("child job %d has no output url", child.ID)
			}
			urls[i] = child.OutputURL
		}
		manifest.Groups = append(manifest.Groups, Group{Seq: seq, URLs: urls})
	}

	if err := b.writeManifest(ctx, key.String(), manifest); err != nil {
		return Result{}, err
	}

	now := b.now()
	var res Result
	for seq, g := range groups {
		stored, inserted, err := tx.InsertJob(ctx, ir.Job{
			BatchNumber:     parent.BatchNumber,
			Round:           parent.Round,
			CircuitID:       parent.CircuitID,
			Depth:           parent.Depth,
			Seq:             seq,
			InputURLs:       manifest.Groups[seq].URLs,
			AggregationURL:  key.String(),
			ProtocolVersion: c.ProtocolVersion,
			BatchSealedAt:   c.BatchSealedAt,
			CreatedAt:       now,
		})
		if err != nil {
			return Result{}, err
		}
		if inserted {
			res.Created = true
		} else {
			res.Conflict = true
		}
		res.Parents = append(res.Parents, stored)

		for pos, child := range g {
			if _, err := tx.InsertAggregationGroup(ctx, stored.ID, child.ID, pos); err != nil {
				return Result{}, err
			}
		}
	}

	if res.Conflict {
		log.Debug().Stringer("parent", parent).Msg("parent jobs already exist")
	} else {
		log.Info().
			Stringer("parent", parent).
			Int("children", len(children)).
			Int("jobs", len(groups)).
			Msg("created aggregation jobs")
	}
	return res, nil
}

// writeManifest stores the manifest unless an identical one is already
// present. A differing manifest means the sibling set changed after the
// parents were built.
func (b *Builder) writeManifest(ctx context.Context, key string, m Manifest) error {
	existing, err := blob.Load[Manifest](ctx, b.blobs, b.codec, key)
	switch {
	case err == nil:
		if !existing.Equal(m) {
			return fmt.Errorf("%s: %w", key, ErrManifestMismatch)
		}
		return nil
	case errors.Is(err, blob.ErrNotFound):
		return blob.Save(ctx, b.blobs, b.codec, key, m)
	default:
		return err
	}
}

func allSuccessful(jobs []ir.Job) bool {
	for _, j := range jobs {
		if j.Status != ir.StatusSuccessful {
			return false
		}
	}
	return len(jobs) > 0
}
