package pipeline

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/witnessgen/internal/ir"
)

// Submission describes a sealed batch and the witnesses of its basic
// circuits.
type Submission struct {
	BatchNumber     ir.BatchNumber     `yaml:"batch_number"`
	ProtocolVersion ir.ProtocolVersion `yaml:"protocol_version"`
	SealedAt        time.Time          `yaml:"sealed_at"`

	// SchedulerInput is the batch's scheduler partial input.
	SchedulerInput string `yaml:"scheduler_input"`

	Circuits []CircuitWitnesses `yaml:"circuits"`
}

// CircuitWitnesses lists the witnesses of one basic circuit. Each witness
// becomes one basic job; its index is the job's sequence number.
type CircuitWitnesses struct {
	CircuitID ir.CircuitID `yaml:"circuit_id"`

	// Witnesses are inline witness payloads.
	Witnesses []string `yaml:"witnesses,omitempty"`

	// Files are witness payloads read from disk, appended after Witnesses.
	// Relative paths resolve against the submission file's directory.
	Files []string `yaml:"files,omitempty"`

	payloads [][]byte
}

// Payloads returns the witnesses in sequence order.
func (c CircuitWitnesses) Payloads() [][]byte {
	if c.payloads != nil {
		return c.payloads
	}
	out := make([][]byte, 0, len(c.Witnesses))
	for _, w := range c.Witnesses {
		out = append(out, []byte(w))
	}
	return out
}

// WithPayloads returns a circuit whose witnesses are the given raw bytes.
func WithPayloads(id ir.CircuitID, payloads ...[]byte) CircuitWitnesses {
	return CircuitWitnesses{CircuitID: id, payloads: payloads}
}

// LoadSubmission reads a submission from a YAML file.
func LoadSubmission(path string) (*Submission, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read submission %s: %w", path, err)
	}

	var s Submission
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parse submission %s: %w", path, err)
	}

	base := filepath.Dir(path)
	for i := range s.Circuits {
		c := &s.Circuits[i]
		payloads := c.Payloads()
		for _, f := range c.Files {
			if !filepath.IsAbs(f) {
				f = filepath.Join(base, f)
			}
			data, err := os.ReadFile(f)
			if err != nil {
				return nil, fmt.Errorf("circuit %d: read witness: %w", c.CircuitID, err)
			}
			payloads = append(payloads, data)
		}
		c.payloads = payloads
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("submission %s: %w", path, err)
	}
	return &s, nil
}

// Validate checks circuit ids and witness counts.
func (s *Submission) Validate() error {
	if len(s.Circuits) == 0 {
		return fmt.Errorf("batch %d has no circuits", s.BatchNumber)
	}
	if s.SealedAt.IsZero() {
		return fmt.Errorf("batch %d has no sealed_at", s.BatchNumber)
	}
	seen := map[ir.CircuitID]bool{}
	for _, c := range s.Circuits {
		if err := ir.ValidateBaseCircuitID(c.CircuitID); err != nil {
			return err
		}
		if seen[c.CircuitID] {
			return fmt.Errorf("circuit %d listed twice", c.CircuitID)
		}
		seen[c.CircuitID] = true
		if len(c.Payloads()) == 0 {
			return fmt.Errorf("circuit %d has no witnesses", c.CircuitID)
		}
	}
	return nil
}
