package aggregate

import (
	"fmt"
	"slices"

	"github.com/roach88/witnessgen/internal/ir"
)

// Manifest is the aggregation blob: for one parent coordinate, which child
// outputs each parent job aggregates.
type Manifest struct {
	BatchNumber ir.BatchNumber `json:"batch_number"`
	Round       ir.Round       `json:"round"`
	CircuitID   ir.CircuitID   `json:"circuit_id"`
	Depth       int            `json:"depth"`
	Groups      []Group        `json:"groups"`
}

// Group is the ordered list of child outputs aggregated by the parent job
// with sequence number Seq.
type Group struct {
	Seq  int      `json:"sequence_number"`
	URLs []string `json:"urls"`
}

// Coordinate returns the parent coordinate the manifest describes.
func (m Manifest) Coordinate() ir.Coordinate {
	return ir.Coordinate{BatchNumber: m.BatchNumber, Round: m.Round, CircuitID: m.CircuitID, Depth: m.Depth}
}

// Group returns the group of the parent job with sequence number seq.
func (m Manifest) Group(seq int) (Group, error) {
	for _, g := range m.Groups {
		if g.Seq == seq {
			return g, nil
		}
	}
	return Group{}, fmt.Errorf("manifest %s has no group %d", m.Coordinate(), seq)
}

// FirstSeq returns the position of the first child of group seq among all
// children of the manifest. Sub-circuit proofs of a group are numbered from
// here so numbering is contiguous across every job of the coordinate.
func (m Manifest) FirstSeq(seq int) int {
	n := 0
	for _, g := range m.Groups {
		if g.Seq < seq {
			n += len(g.URLs)
		}
	}
	return n
}

// Equal reports whether two manifests describe the same grouping.
func (m Manifest) Equal(o Manifest) bool {
	if m.Coordinate() != o.Coordinate() || len(m.Groups) != len(o.Groups) {
		return false
	}
	for i := range m.Groups {
		if m.Groups[i].Seq != o.Groups[i].Seq || !slices.Equal(m.Groups[i].URLs, o.Groups[i].URLs) {
			return false
		}
	}
	return true
}

// chunk splits jobs into consecutive groups of at most size.
func chunk(jobs []ir.Job, size int) [][]ir.Job {
	if size <= 0 {
		size = 1
	}
	var out [][]ir.Job
	for start := 0; start < len(jobs); start += size {
		end := min(start+size, len(jobs))
		out = append(out, jobs[start:end])
	}
	return out
}
