package prover

import (
	"fmt"
	"sync"

	"github.com/roach88/witnessgen/internal/ir"
)

type keyID struct {
	round   ir.Round
	circuit ir.CircuitID
}

// MemKeystore holds keys registered in memory.
// The zero value is empty; Keys returns ErrKeysNotFound until Set is called.
type MemKeystore struct {
	mu   sync.RWMutex
	keys map[keyID]Keys
}

// NewMemKeystore returns a keystore with placeholder keys for every known
// circuit in the given rounds.
func NewMemKeystore(rounds ...ir.Round) *MemKeystore {
	ks := &MemKeystore{}
	for _, r := range rounds {
		for c := 0; c <= 255; c++ {
			id := ir.CircuitID(c)
			if KnownCircuit(r, id) {
				ks.Set(r, id, Keys{ID: fmt.Sprintf("%s/%d", r, id)})
			}
		}
	}
	return ks
}

// Set registers keys for (round, circuit).
func (m *MemKeystore) Set(round ir.Round, circuit ir.CircuitID, k Keys) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys == nil {
		m.keys = make(map[keyID]Keys)
	}
	m.keys[keyID{round, circuit}] = k
}

// Keys returns the registered keys or ErrKeysNotFound.
func (m *MemKeystore) Keys(round ir.Round, circuit ir.CircuitID) (Keys, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	k, ok := m.keys[keyID{round, circuit}]
	if !ok {
		return Keys{}, fmt.Errorf("%s circuit %d: %w", round, circuit, ErrKeysNotFound)
	}
	return k, nil
}
