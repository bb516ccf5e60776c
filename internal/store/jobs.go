package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/witnessgen/internal/ir"
)

// InsertJob inserts a queued job row.
// Uses ON CONFLICT DO NOTHING on the (batch, round, circuit, depth, seq)
// coordinate, so concurrent builders creating the same job never produce a
// duplicate. inserted is false when the row already existed; the returned job
// is the stored row in both cases.
func (o ops) InsertJob(ctx context.Context, job ir.Job) (ir.Job, bool, error) {
	urls, err := marshalURLs(job.InputURLs)
	if err != nil {
		return ir.Job{}, false, err
	}

	res, err := o.q.ExecContext(ctx, `
		INSERT INTO jobs
		(batch_number, round, circuit_id, depth, seq, status, attempts, input_urls,
		 aggregation_url, protocol_version, batch_sealed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 'queued', 0, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(batch_number, round, circuit_id, depth, seq) DO NOTHING
	`,
		job.BatchNumber, int(job.Round), int(job.CircuitID), job.Depth, job.Seq, urls,
		job.AggregationURL, job.ProtocolVersion, toMillis(job.BatchSealedAt),
		toMillis(job.CreatedAt), toMillis(job.CreatedAt),
	)
	if err != nil {
		return ir.Job{}, false, fmt.Errorf("insert job %s seq=%d: %w", job.Coordinate(), job.Seq, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return ir.Job{}, false, fmt.Errorf("insert job: %w", err)
	}

	stored, err := o.JobAt(ctx, job.Coordinate(), job.Seq)
	if err != nil {
		return ir.Job{}, false, err
	}
	return stored, n > 0, nil
}

// ReadJob returns the job with the given id, or ErrNotFound.
func (o ops) ReadJob(ctx context.Context, id int64) (ir.Job, error) {
	row := o.q.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Job{}, fmt.Errorf("job %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return ir.Job{}, fmt.Errorf("read job %d: %w", id, err)
	}
	return job, nil
}

// JobAt returns the job at the given coordinate and sequence number.
func (o ops) JobAt(ctx context.Context, c ir.Coordinate, seq int) (ir.Job, error) {
	row := o.q.QueryRowContext(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE batch_number = ? AND round = ? AND circuit_id = ? AND depth = ? AND seq = ?
	`, c.BatchNumber, int(c.Round), int(c.CircuitID), c.Depth, seq)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Job{}, fmt.Errorf("job %s seq=%d: %w", c, seq, ErrNotFound)
	}
	if err != nil {
		return ir.Job{}, fmt.Errorf("read job %s seq=%d: %w", c, seq, err)
	}
	return job, nil
}

// SiblingJobs returns every job sharing the coordinate, ordered by seq.
func (o ops) SiblingJobs(ctx context.Context, c ir.Coordinate) ([]ir.Job, error) {
	rows, err := o.q.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE batch_number = ? AND round = ? AND circuit_id = ? AND depth = ?
		ORDER BY seq ASC
	`, c.BatchNumber, int(c.Round), int(c.CircuitID), c.Depth)
	if err != nil {
		return nil, fmt.Errorf("sibling jobs %s: %w", c, err)
	}
	return scanJobs(rows)
}

// JobsForBatch returns every job of the batch ordered by
// (round, circuit, depth, seq).
func (o ops) JobsForBatch(ctx context.Context, n ir.BatchNumber) ([]ir.Job, error) {
	rows, err := o.q.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE batch_number = ?
		ORDER BY round ASC, circuit_id ASC, depth ASC, seq ASC
	`, n)
	if err != nil {
		return nil, fmt.Errorf("jobs for batch %d: %w", n, err)
	}
	return scanJobs(rows)
}

// JobFilter narrows ListJobs. Zero fields match everything.
type JobFilter struct {
	Status ir.JobStatus
	Batch  *ir.BatchNumber
	Round  *ir.Round
	Limit  int
}

// ListJobs returns jobs matching the filter ordered by id.
func (o ops) ListJobs(ctx context.Context, f JobFilter) ([]ir.Job, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Batch != nil {
		where = append(where, "batch_number = ?")
		args = append(args, *f.Batch)
	}
	if f.Round != nil {
		where = append(where, "round = ?")
		args = append(args, int(*f.Round))
	}

	query := `SELECT ` + jobColumns + ` FROM jobs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id ASC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := o.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return scanJobs(rows)
}

// CountByStatus returns the number of jobs in each status, optionally
// restricted to one batch.
func (o ops) CountByStatus(ctx context.Context, batch *ir.BatchNumber) (map[ir.JobStatus]int, error) {
	query := `SELECT status, COUNT(*) FROM jobs`
	var args []any
	if batch != nil {
		query += ` WHERE batch_number = ?`
		args = append(args, *batch)
	}
	query += ` GROUP BY status`

	rows, err := o.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[ir.JobStatus]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan job count: %w", err)
		}
		counts[ir.JobStatus(status)] = n
	}
	return counts, rows.Err()
}

// ClaimJob atomically moves the next queued job for one of the given rounds
// to in_progress and records the claiming worker. Older batches are served
// first, and within a batch later rounds come first so a batch drains before
// new basic work starts. Returns nil, nil when nothing is queued.
//
// The claim is a single UPDATE ... RETURNING statement, so two workers
// sharing the database can never claim the same row.
func (o ops) ClaimJob(ctx context.Context, workerID string, rounds []ir.Round, now time.Time) (*ir.Job, error) {
	if len(rounds) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(rounds))
	args := []any{workerID, toMillis(now), toMillis(now)}
	for i, r := range rounds {
		placeholders[i] = "?"
		args = append(args, int(r))
	}

	row := o.q.QueryRowContext(ctx, `
		UPDATE jobs
		SET status = 'in_progress', claimed_by = ?, started_at = ?, updated_at = ?,
		    retry_at = NULL, error = ''
		WHERE id = (
			SELECT id FROM jobs
			WHERE status = 'queued' AND round IN (`+strings.Join(placeholders, ", ")+`)
			ORDER BY batch_number ASC, round DESC, id ASC
			LIMIT 1
		)
		RETURNING `+jobColumns,
		args...,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return &job, nil
}

// MarkJobSuccessful records the job's outputs and marks it successful.
// Already-successful jobs are left unchanged and changed is false, which
// keeps completion idempotent across retries.
func (o ops) MarkJobSuccessful(ctx context.Context, id int64, outputURL, auxURL string, now time.Time) (changed bool, err error) {
	res, err := o.q.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'successful', output_url = ?, aux_url = ?, error = '', retry_at = NULL,
		    updated_at = ?,
		    time_taken_ms = CASE WHEN started_at IS NULL THEN NULL ELSE ? - started_at END
		WHERE id = ? AND status != 'successful'
	`, outputURL, auxURL, toMillis(now), toMillis(now), id)
	if err != nil {
		return false, fmt.Errorf("mark job %d successful: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark job %d successful: %w", id, err)
	}
	return n > 0, nil
}

// FailJob marks a job failed and increments its attempt count. Only the
// worker holding the claim may fail it: once a stuck job has been requeued
// or claimed by another worker, ErrNotClaimed is returned and nothing
// changes. A nil retryAt makes the failure terminal: RequeueFailed never
// picks it up.
func (o ops) FailJob(ctx context.Context, id int64, workerID, msg string, retryAt *time.Time, now time.Time) error {
	res, err := o.q.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'failed', attempts = attempts + 1, error = ?, retry_at = ?, updated_at = ?,
		    time_taken_ms = CASE WHEN started_at IS NULL THEN NULL ELSE ? - started_at END
		WHERE id = ? AND status = 'in_progress' AND claimed_by = ?
	`, msg, nullMillis(retryAt), toMillis(now), toMillis(now), id, workerID)
	if err != nil {
		return fmt.Errorf("fail job %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("fail job %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("fail job %d by %s: %w", id, workerID, ErrNotClaimed)
	}
	return nil
}

// RequeueFailed moves failed jobs whose retry time has passed back to
// queued, as long as they are below maxAttempts. Returns the number requeued.
func (o ops) RequeueFailed(ctx context.Context, maxAttempts int, now time.Time) (int64, error) {
	res, err := o.q.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'queued', claimed_by = '', updated_at = ?
		WHERE status = 'failed' AND retry_at IS NOT NULL AND retry_at <= ? AND attempts < ?
	`, toMillis(now), toMillis(now), maxAttempts)
	if err != nil {
		return 0, fmt.Errorf("requeue failed jobs: %w", err)
	}
	return res.RowsAffected()
}

// RequeueStuck moves in-progress jobs claimed before olderThan back to
// queued. Returns the number requeued.
func (o ops) RequeueStuck(ctx context.Context, olderThan, now time.Time) (int64, error) {
	res, err := o.q.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'queued', claimed_by = '', updated_at = ?
		WHERE status = 'in_progress' AND started_at IS NOT NULL AND started_at < ?
	`, toMillis(now), toMillis(olderThan))
	if err != nil {
		return 0, fmt.Errorf("requeue stuck jobs: %w", err)
	}
	return res.RowsAffected()
}

// CountStuck returns the number of in-progress jobs claimed before olderThan.
func (o ops) CountStuck(ctx context.Context, olderThan time.Time) (int, error) {
	var n int
	err := o.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM jobs
		WHERE status = 'in_progress' AND started_at IS NOT NULL AND started_at < ?
	`, toMillis(olderThan)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count stuck jobs: %w", err)
	}
	return n, nil
}

// RequeueJob returns a single failed or in-progress job to the queue with
// its attempt count reset. Used for operator intervention.
func (o ops) RequeueJob(ctx context.Context, id int64, now time.Time) error {
	res, err := o.q.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'queued', attempts = 0, claimed_by = '', retry_at = NULL, updated_at = ?
		WHERE id = ? AND status IN ('failed', 'in_progress')
	`, toMillis(now), id)
	if err != nil {
		return fmt.Errorf("requeue job %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("requeue job %d: %w", id, err)
	}
	if n == 0 {
		if _, err := o.ReadJob(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("requeue job %d: job is not failed or in progress", id)
	}
	return nil
}
