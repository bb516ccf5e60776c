package harness

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/witnessgen/internal/ir"
	"github.com/roach88/witnessgen/internal/prover"
)

type faultKey struct {
	round   ir.Round
	circuit ir.CircuitID
}

// faultProver is the marker prover with injected failures.
type faultProver struct {
	mu        sync.Mutex
	remaining map[faultKey]int
}

func newFaultProver(faults []Fault) (*faultProver, error) {
	p := &faultProver{remaining: make(map[faultKey]int)}
	for _, f := range faults {
		r, err := ir.ParseRound(f.Round)
		if err != nil {
			return nil, err
		}
		p.remaining[faultKey{r, f.CircuitID}] += f.FailTimes
	}
	return p, nil
}

func (p *faultProver) Prove(ctx context.Context, c prover.Circuit, keys prover.Keys) ([]byte, error) {
	k := faultKey{c.Round, c.CircuitID}
	p.mu.Lock()
	n := p.remaining[k]
	if n > 0 {
		p.remaining[k] = n - 1
	}
	p.mu.Unlock()

	if n > 0 {
		return nil, fmt.Errorf("injected fault for %s circuit %d", c.Round, c.CircuitID)
	}
	return prover.Marker{}.Prove(ctx, c, keys)
}
