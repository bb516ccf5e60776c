package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	for _, table := range []string{"batches", "jobs", "aggregation_groups"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/test.db")
	if err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{db: nil}
	if err := s.Close(); err != nil {
		t.Errorf("Close() on nil db should not error: %v", err)
	}
}

func TestPragmas(t *testing.T) {
	s := createTestStore(t)

	tests := []struct {
		name     string
		expected string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"},
		{"busy_timeout", "5000"},
		{"foreign_keys", "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.verifyPragma(tt.name, tt.expected); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestSchema_UserVersion(t *testing.T) {
	s := createTestStore(t)

	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("query user_version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("user_version = %d, want %d", version, currentSchemaVersion)
	}
}

func TestSchema_JobsTable(t *testing.T) {
	s := createTestStore(t)

	columns := getTableColumns(t, s.db, "jobs")
	expected := []string{
		"id", "batch_number", "round", "circuit_id", "depth", "seq", "status", "attempts",
		"input_urls", "aggregation_url", "output_url", "aux_url", "protocol_version",
		"batch_sealed_at", "error", "claimed_by", "started_at", "retry_at", "time_taken_ms",
	}
	for _, col := range expected {
		if !contains(columns, col) {
			t.Errorf("jobs table missing column %q", col)
		}
	}

	if !contains(getTableIndexes(t, s.db, "jobs"), "idx_jobs_claim") {
		t.Error("jobs table missing index idx_jobs_claim")
	}
}

func TestConstraint_JobStatusCheck(t *testing.T) {
	s := createTestStore(t)
	seedBatch(t, s, 1)

	_, err := s.db.Exec(`
		INSERT INTO jobs (batch_number, round, circuit_id, depth, seq, status, protocol_version,
		                  batch_sealed_at, created_at, updated_at)
		VALUES (1, 0, 1, 0, 0, 'bogus', 1, 0, 0, 0)
	`)
	if err == nil {
		t.Error("expected CHECK constraint violation for unknown status")
	}
}

func TestConstraint_JobRequiresBatch(t *testing.T) {
	s := createTestStore(t)

	_, _, err := s.InsertJob(context.Background(), testJob(99, 0, 1, 0, 0))
	if err == nil {
		t.Error("expected foreign key violation for job without batch")
	}
}

func TestWithTx_RollbackOnError(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seedBatch(t, s, 7)

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx *Tx) error {
		if _, _, err := tx.InsertJob(ctx, testJob(7, 0, 1, 0, 0)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTx() error = %v, want boom", err)
	}

	jobs, err := s.JobsForBatch(ctx, 7)
	if err != nil {
		t.Fatalf("JobsForBatch() failed: %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("rolled back transaction left %d jobs", len(jobs))
	}
}

func TestWithTx_Commit(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seedBatch(t, s, 7)

	err := s.WithTx(ctx, func(tx *Tx) error {
		_, _, err := tx.InsertJob(ctx, testJob(7, 0, 1, 0, 0))
		return err
	})
	if err != nil {
		t.Fatalf("WithTx() failed: %v", err)
	}

	jobs, err := s.JobsForBatch(ctx, 7)
	if err != nil {
		t.Fatalf("JobsForBatch() failed: %v", err)
	}
	if len(jobs) != 1 {
		t.Errorf("committed transaction has %d jobs, want 1", len(jobs))
	}
}

func getTableColumns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		t.Fatalf("failed to get table info for %q: %v", table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue interface{}
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			t.Fatalf("failed to scan column info: %v", err)
		}
		columns = append(columns, name)
	}
	return columns
}

func getTableIndexes(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='index' AND tbl_name=?", table)
	if err != nil {
		t.Fatalf("failed to get indexes for %q: %v", table, err)
	}
	defer rows.Close()

	var indexes []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("failed to scan index name: %v", err)
		}
		indexes = append(indexes, name)
	}
	return indexes
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
