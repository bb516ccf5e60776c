package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/witnessgen/internal/ir"
	"github.com/roach88/witnessgen/internal/pipeline"
)

// Scenario defines an end-to-end pipeline scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// GroupSizes overrides aggregation group sizes, keyed by round name.
	GroupSizes map[string]int `yaml:"group_sizes,omitempty"`

	// Workers is the number of workers taking turns. Defaults to 1.
	Workers int `yaml:"workers,omitempty"`

	// MaxAttempts is the retry ceiling. Defaults to the worker default.
	MaxAttempts int `yaml:"max_attempts,omitempty"`

	// Batches are submitted in order before any worker runs.
	Batches []pipeline.Submission `yaml:"batches"`

	// Faults make the prover fail for matching circuits.
	Faults []Fault `yaml:"faults,omitempty"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// Fault makes the first FailTimes proofs of a round's circuit fail.
type Fault struct {
	Round     string       `yaml:"round"`
	CircuitID ir.CircuitID `yaml:"circuit_id"`
	FailTimes int          `yaml:"fail_times"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Batch filters job_count and selects the batch for batch_proven.
	Batch *ir.BatchNumber `yaml:"batch,omitempty"`

	// Round filters job_count and trace_count.
	Round string `yaml:"round,omitempty"`

	// Status filters job_count.
	Status ir.JobStatus `yaml:"status,omitempty"`

	// Event is the trace event type counted by trace_count.
	Event string `yaml:"event,omitempty"`

	// Count is the expected number (job_count, trace_count).
	Count int `yaml:"count,omitempty"`

	// Rounds is the expected completion order (trace_order).
	Rounds []string `yaml:"rounds,omitempty"`

	// URL is the expected final proof URL (batch_proven, optional).
	URL string `yaml:"url,omitempty"`

	// Key is the blob key checked by blob_exists.
	Key string `yaml:"key,omitempty"`
}

// Assertion type constants.
const (
	AssertJobCount    = "job_count"
	AssertBatchProven = "batch_proven"
	AssertTraceOrder  = "trace_order"
	AssertTraceCount  = "trace_count"
	AssertBlobExists  = "blob_exists"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// Topology returns the default round graph with the scenario's group sizes
// applied.
func (s *Scenario) Topology() (ir.Topology, error) {
	t := ir.DefaultTopology()
	for name, n := range s.GroupSizes {
		r, err := ir.ParseRound(name)
		if err != nil {
			return ir.Topology{}, fmt.Errorf("group_sizes: %w", err)
		}
		t.GroupSizes[r] = n
	}
	if err := t.Validate(); err != nil {
		return ir.Topology{}, fmt.Errorf("group_sizes: %w", err)
	}
	return t, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return errors.New("name is required")
	}
	if s.Description == "" {
		return errors.New("description is required")
	}
	if len(s.Batches) == 0 {
		return errors.New("batches list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return errors.New("assertions list is required and must be non-empty")
	}
	if s.Workers < 0 {
		return errors.New("workers must be non-negative")
	}

	if _, err := s.Topology(); err != nil {
		return err
	}
	for i := range s.Batches {
		if err := s.Batches[i].Validate(); err != nil {
			return fmt.Errorf("batches[%d]: %w", i, err)
		}
	}
	for i, f := range s.Faults {
		if _, err := ir.ParseRound(f.Round); err != nil {
			return fmt.Errorf("faults[%d]: %w", i, err)
		}
		if f.FailTimes < 1 {
			return fmt.Errorf("faults[%d]: fail_times must be positive", i)
		}
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Round != "" {
		if _, err := ir.ParseRound(a.Round); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
	}

	switch a.Type {
	case AssertJobCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for job_count", index)
		}
	case AssertBatchProven:
		if a.Batch == nil {
			return fmt.Errorf("assertions[%d]: batch is required for batch_proven", index)
		}
	case AssertTraceOrder:
		if len(a.Rounds) < 2 {
			return fmt.Errorf("assertions[%d]: at least two rounds are required for trace_order", index)
		}
		for _, r := range a.Rounds {
			if _, err := ir.ParseRound(r); err != nil {
				return fmt.Errorf("assertions[%d]: %w", index, err)
			}
		}
	case AssertTraceCount:
		switch a.Event {
		case EventSuccessful, EventFailed:
		default:
			return fmt.Errorf("assertions[%d]: event must be %q or %q for trace_count", index, EventSuccessful, EventFailed)
		}
	case AssertBlobExists:
		if a.Key == "" {
			return fmt.Errorf("assertions[%d]: key is required for blob_exists", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
