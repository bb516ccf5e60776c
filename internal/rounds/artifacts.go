package rounds

import (
	"github.com/roach88/witnessgen/internal/ir"
	"github.com/roach88/witnessgen/internal/prover"
)

// WitnessInput is the blob a producer writes for each basic circuit.
type WitnessInput struct {
	BatchNumber ir.BatchNumber `json:"batch_number"`
	CircuitID   ir.CircuitID   `json:"circuit_id"`
	Seq         int            `json:"sequence_number"`
	Witness     []byte         `json:"witness"`
}

// SchedulerInput is the per-batch partial input consumed by the scheduler.
type SchedulerInput struct {
	BatchNumber     ir.BatchNumber     `json:"batch_number"`
	ProtocolVersion ir.ProtocolVersion `json:"protocol_version"`
	Data            []byte             `json:"data"`
}

// ProofArtifact is a proof blob: a job's output or one sub-circuit proof.
type ProofArtifact struct {
	BatchNumber ir.BatchNumber `json:"batch_number"`
	Round       ir.Round       `json:"round"`
	CircuitID   ir.CircuitID   `json:"circuit_id"`
	Depth       int            `json:"depth"`
	Seq         int            `json:"sequence_number"`
	Proof       []byte         `json:"proof"`
}

// AuxWitness is the auxiliary output of a basic circuit.
type AuxWitness struct {
	BatchNumber ir.BatchNumber `json:"batch_number"`
	CircuitID   ir.CircuitID   `json:"circuit_id"`
	Seq         int            `json:"sequence_number"`
	WitnessHash string         `json:"witness_hash"`
}

// InputArtifacts is everything LoadInput read for a job.
type InputArtifacts struct {
	Job ir.Job

	// Witness is set for basic circuits.
	Witness *WitnessInput

	// Children are the proofs of the job's aggregation group, in group order,
	// with the URLs they were read from.
	Children  []ProofArtifact
	ChildURLs []string

	// FirstSeq numbers the first sub-circuit proof of this job among all
	// jobs of its coordinate.
	FirstSeq int

	// Scheduler is set for the scheduler round.
	Scheduler *SchedulerInput
}

// CircuitInput is one sub-circuit proof to produce inside an aggregating job.
type CircuitInput struct {
	CircuitID ir.CircuitID
	Seq       int
	Key       ir.ArtifactKey
	Circuit   prover.Circuit
}

// PreparedJob is a job with its keys and circuits resolved.
type PreparedJob struct {
	Job         ir.Job
	Input       InputArtifacts
	Keys        prover.Keys
	SubCircuits []CircuitInput

	// Aggregate is the job's own circuit. For aggregating rounds its inputs
	// are filled in with the sub-circuit proofs during ProcessJob.
	Aggregate prover.Circuit
}

// CircuitURL locates one sub-circuit proof.
type CircuitURL struct {
	CircuitID ir.CircuitID `json:"circuit_id"`
	Seq       int          `json:"sequence_number"`
	URL       string       `json:"url"`
}

// NextInput is the coordinate the job's output feeds.
type NextInput struct {
	Round     ir.Round     `json:"round"`
	CircuitID ir.CircuitID `json:"circuit_id"`
	Depth     int          `json:"depth"`
}

// OutputArtifacts is the result of ProcessJob.
type OutputArtifacts struct {
	BatchNumber ir.BatchNumber `json:"batch_number"`
	Round       ir.Round       `json:"round"`
	CircuitID   ir.CircuitID   `json:"circuit_id"`
	Depth       int            `json:"depth"`
	Seq         int            `json:"sequence_number"`
	Proof       []byte         `json:"proof"`
	CircuitURLs []CircuitURL   `json:"circuit_urls"`
	Aux         *AuxWitness    `json:"aux,omitempty"`
	Next        *NextInput     `json:"next,omitempty"`
}

// BlobURLs are the locations StoreOutputs wrote to.
type BlobURLs struct {
	Proof string
	Aux   string
}

// nextInput returns the coordinate a job's output is aggregated into.
// A node that turns out to be the last of its circuit is regrouped into the
// recursion tip by the builder; the output still names the node successor.
func nextInput(job ir.Job) *NextInput {
	next, ok := ir.NextRound(job.Round)
	if !ok {
		return nil
	}
	n := &NextInput{Round: next, CircuitID: ir.RemapCircuitID(next, job.CircuitID)}
	switch job.Round {
	case ir.LeafAggregation:
		n.Depth = 1
	case ir.NodeAggregation:
		n.Round = ir.NodeAggregation
		n.CircuitID = job.CircuitID
		n.Depth = job.Depth + 1
	}
	return n
}
