package harness

import "github.com/roach88/witnessgen/internal/ir"

// Trace event types.
const (
	EventSuccessful = "successful"
	EventFailed     = "failed"
)

// TraceEvent is one job outcome, in the order workers produced them.
type TraceEvent struct {
	Seq       int64          `json:"seq"`
	Type      string         `json:"type"`
	Worker    string         `json:"worker"`
	JobID     int64          `json:"job_id"`
	Batch     ir.BatchNumber `json:"batch"`
	Round     string         `json:"round"`
	CircuitID ir.CircuitID   `json:"circuit_id"`
	Depth     int            `json:"depth"`
	JobSeq    int            `json:"sequence_number"`
	Code      string         `json:"code,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every assertion holds.
	Pass bool `json:"pass"`

	// Trace contains every job outcome in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains assertion failure messages.
	Errors []string `json:"errors,omitempty"`

	// Jobs is the final job table, ordered by batch and coordinate.
	Jobs []ir.Job `json:"-"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
