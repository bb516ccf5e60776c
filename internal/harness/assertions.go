package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/witnessgen/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s job=%d %s circuit=%d depth=%d seq=%d %s\n",
				ev.Seq, ev.Type, ev.JobID, ev.Round, ev.CircuitID, ev.Depth, ev.JobSeq, ev.Code)
		}
	}
	return buf.String()
}

func (h *Harness) evaluate(ctx context.Context, a Assertion) error {
	switch a.Type {
	case AssertJobCount:
		return assertJobCount(h.result.Jobs, a)
	case AssertBatchProven:
		return h.assertBatchProven(ctx, a)
	case AssertTraceOrder:
		return assertTraceOrder(h.result.Trace, a)
	case AssertTraceCount:
		return assertTraceCount(h.result.Trace, a)
	case AssertBlobExists:
		return h.assertBlobExists(ctx, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertJobCount counts jobs matching every filter the assertion sets.
func assertJobCount(jobs []ir.Job, a Assertion) error {
	count := 0
	for _, j := range jobs {
		if a.Batch != nil && j.BatchNumber != *a.Batch {
			continue
		}
		if a.Round != "" && j.Round.String() != a.Round {
			continue
		}
		if a.Status != "" && j.Status != a.Status {
			continue
		}
		count++
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertJobCount,
			Expected: fmt.Sprintf("%d jobs (%s)", a.Count, describeFilter(a)),
			Actual:   fmt.Sprintf("%d jobs", count),
		}
	}
	return nil
}

func describeFilter(a Assertion) string {
	var parts []string
	if a.Batch != nil {
		parts = append(parts, fmt.Sprintf("batch=%d", *a.Batch))
	}
	if a.Round != "" {
		parts = append(parts, "round="+a.Round)
	}
	if a.Status != "" {
		parts = append(parts, "status="+string(a.Status))
	}
	if len(parts) == 0 {
		return "all"
	}
	return strings.Join(parts, " ")
}

func (h *Harness) assertBatchProven(ctx context.Context, a Assertion) error {
	b, err := h.store.ReadBatch(ctx, *a.Batch)
	if err != nil {
		return &AssertionError{
			Type:     AssertBatchProven,
			Expected: fmt.Sprintf("batch %d proven", *a.Batch),
			Actual:   err.Error(),
		}
	}
	if b.ProvenAt == nil {
		return &AssertionError{
			Type:     AssertBatchProven,
			Expected: fmt.Sprintf("batch %d proven", *a.Batch),
			Actual:   "no final proof",
			Trace:    h.result.Trace,
		}
	}
	if a.URL != "" && b.FinalProofURL != a.URL {
		return &AssertionError{
			Type:     AssertBatchProven,
			Expected: fmt.Sprintf("final proof at %s", a.URL),
			Actual:   fmt.Sprintf("final proof at %s", b.FinalProofURL),
		}
	}
	return nil
}

// assertTraceOrder checks that the first successful job of each listed
// round appears in the listed order.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	positions := make(map[string]int)
	for i, ev := range trace {
		if ev.Type != EventSuccessful {
			continue
		}
		if _, seen := positions[ev.Round]; !seen {
			positions[ev.Round] = i + 1
		}
	}

	for _, r := range a.Rounds {
		if positions[r] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all rounds completed: %v", a.Rounds),
				Actual:   fmt.Sprintf("missing round: %s", r),
				Trace:    trace,
			}
		}
	}
	for i := 1; i < len(a.Rounds); i++ {
		prev, curr := a.Rounds[i-1], a.Rounds[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("rounds in order: %v", a.Rounds),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks the number of events of a type, optionally in
// one round.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if ev.Type == a.Event && (a.Round == "" || ev.Round == a.Round) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d %s events", a.Count, a.Event),
			Actual:   fmt.Sprintf("%d events", count),
			Trace:    trace,
		}
	}
	return nil
}

func (h *Harness) assertBlobExists(ctx context.Context, a Assertion) error {
	ok, err := h.blobs.Exists(ctx, a.Key)
	if err != nil {
		return err
	}
	if !ok {
		return &AssertionError{
			Type:     AssertBlobExists,
			Expected: fmt.Sprintf("blob %s", a.Key),
			Actual:   "not found",
		}
	}
	return nil
}
