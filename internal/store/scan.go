package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/witnessgen/internal/ir"
)

// ErrNotFound is returned when a batch or job row does not exist.
var ErrNotFound = errors.New("not found")

// ErrNotClaimed is returned when a worker updates a job it no longer holds.
var ErrNotClaimed = errors.New("job not claimed by this worker")

// jobColumns is the canonical SELECT list for scanJob.
const jobColumns = `id, batch_number, round, circuit_id, depth, seq, status, attempts,
	input_urls, aggregation_url, output_url, aux_url, protocol_version, batch_sealed_at,
	error, claimed_by, created_at, updated_at, started_at, retry_at, time_taken_ms`

type rowScanner interface {
	Scan(dest ...any) error
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromMillis(n.Int64)
	return &t
}

func marshalURLs(urls []string) (string, error) {
	if urls == nil {
		urls = []string{}
	}
	b, err := json.Marshal(urls)
	if err != nil {
		return "", fmt.Errorf("marshal input urls: %w", err)
	}
	return string(b), nil
}

func scanJob(row rowScanner) (ir.Job, error) {
	var (
		job                         ir.Job
		round, circuit              int64
		status, inputURLs           string
		sealedAt, created, updated  int64
		startedAt, retryAt, elapsed sql.NullInt64
	)
	err := row.Scan(
		&job.ID, &job.BatchNumber, &round, &circuit, &job.Depth, &job.Seq, &status, &job.Attempts,
		&inputURLs, &job.AggregationURL, &job.OutputURL, &job.AuxURL, &job.ProtocolVersion, &sealedAt,
		&job.Error, &job.ClaimedBy, &created, &updated, &startedAt, &retryAt, &elapsed,
	)
	if err != nil {
		return ir.Job{}, err
	}

	job.Round = ir.Round(round)
	job.CircuitID = ir.CircuitID(circuit)
	job.Status = ir.JobStatus(status)
	job.BatchSealedAt = fromMillis(sealedAt)
	job.CreatedAt = fromMillis(created)
	job.UpdatedAt = fromMillis(updated)
	job.StartedAt = timePtr(startedAt)
	job.RetryAt = timePtr(retryAt)
	if elapsed.Valid {
		job.TimeTaken = time.Duration(elapsed.Int64) * time.Millisecond
	}
	if err := json.Unmarshal([]byte(inputURLs), &job.InputURLs); err != nil {
		return ir.Job{}, fmt.Errorf("unmarshal input urls for job %d: %w", job.ID, err)
	}
	return job, nil
}

func scanJobs(rows *sql.Rows) ([]ir.Job, error) {
	defer rows.Close()

	var jobs []ir.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}

// prefixed qualifies each column in a comma-separated list with a table alias.
func prefixed(alias, columns string) string {
	cols := strings.Split(columns, ",")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
