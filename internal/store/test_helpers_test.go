package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/witnessgen/internal/ir"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// createTestStore creates a new store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// seedBatch inserts a batch sealed at testNow under protocol version 24.
func seedBatch(t *testing.T, s *Store, n ir.BatchNumber) {
	t.Helper()
	_, err := s.InsertBatch(context.Background(), ir.Batch{
		Number:          n,
		ProtocolVersion: 24,
		SealedAt:        testNow,
	})
	if err != nil {
		t.Fatalf("InsertBatch(%d) failed: %v", n, err)
	}
}

// testJob creates a queued job with minimal required fields.
func testJob(batch ir.BatchNumber, round ir.Round, circuit ir.CircuitID, depth, seq int) ir.Job {
	return ir.Job{
		BatchNumber:     batch,
		Round:           round,
		CircuitID:       circuit,
		Depth:           depth,
		Seq:             seq,
		InputURLs:       []string{"witness_inputs/input.bin"},
		ProtocolVersion: 24,
		BatchSealedAt:   testNow,
		CreatedAt:       testNow,
	}
}

// mustInsertJob inserts a job and fails the test on error.
func mustInsertJob(t *testing.T, s *Store, job ir.Job) ir.Job {
	t.Helper()
	stored, _, err := s.InsertJob(context.Background(), job)
	if err != nil {
		t.Fatalf("InsertJob() failed: %v", err)
	}
	return stored
}
