package worker

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/witnessgen/internal/rounds"
)

// Pool runs several workers in one process over a shared env.
type Pool struct {
	workers []*Worker
}

// NewPool creates n workers. Each gets its own identity from ids, or a
// UUIDv7 when ids is nil.
func NewPool(env *rounds.Env, cfg Config, n int, ids IDGenerator, opts ...Option) (*Pool, error) {
	if n < 1 {
		return nil, fmt.Errorf("worker: pool size must be at least 1, got %d", n)
	}
	if ids == nil {
		ids = UUIDv7Generator{}
	}
	p := &Pool{workers: make([]*Worker, 0, n)}
	for range n {
		w, err := New(env, cfg, append(opts, WithID(ids.Generate()))...)
		if err != nil {
			return nil, err
		}
		p.workers = append(p.workers, w)
	}
	return p, nil
}

// Workers returns the pool's workers.
func (p *Pool) Workers() []*Worker {
	return p.workers
}

// Run runs every worker until ctx is done. A fatal error in one worker
// stops the rest and is returned.
func (p *Pool) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, w := range p.workers {
		g.Go(func() error {
			return w.Run(gctx)
		})
	}
	return g.Wait()
}

// Drain runs workers until no job is claimable, then returns. Used for
// one-shot processing and tests; failed jobs waiting on backoff are not
// waited for.
func (p *Pool) Drain(ctx context.Context) (int, error) {
	processed := 0
	for {
		progress := false
		for _, w := range p.workers {
			ok, err := w.RunOnce(ctx)
			if err != nil {
				return processed, err
			}
			if ok {
				processed++
				progress = true
			}
		}
		if !progress {
			return processed, nil
		}
	}
}
