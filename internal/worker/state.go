package worker

import (
	"time"

	"github.com/roach88/witnessgen/internal/ir"
)

// State is a worker's position in the per-job state machine.
type State int

const (
	StateIdle State = iota
	StateClaimed
	StatePreparing
	StateProcessing
	StatePersisting
	StateSuccessful
	StateFailed
	// StateInterrupted ends a job whose context was canceled mid-flight. The
	// job stays in progress until the stuck-job policy recovers it.
	StateInterrupted
)

var stateNames = [...]string{
	StateIdle:        "idle",
	StateClaimed:     "claimed",
	StatePreparing:   "preparing",
	StateProcessing:  "processing",
	StatePersisting:  "persisting",
	StateSuccessful:  "successful",
	StateFailed:      "failed",
	StateInterrupted: "interrupted",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Transition is one state change, reported to an Observer.
type Transition struct {
	WorkerID string
	JobID    int64
	Round    ir.Round
	From     State
	To       State
	At       time.Time
	Err      error
}

// Observer receives every transition. It is called synchronously from the
// worker goroutine and must not block.
type Observer func(Transition)
