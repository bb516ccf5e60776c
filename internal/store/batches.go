package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/witnessgen/internal/ir"
)

// InsertBatch records a sealed batch. Uses ON CONFLICT DO NOTHING, so
// resubmitting a batch is a no-op; inserted reports whether a row was added.
func (o ops) InsertBatch(ctx context.Context, b ir.Batch) (inserted bool, err error) {
	res, err := o.q.ExecContext(ctx, `
		INSERT INTO batches (batch_number, protocol_version, sealed_at)
		VALUES (?, ?, ?)
		ON CONFLICT(batch_number) DO NOTHING
	`, b.Number, b.ProtocolVersion, toMillis(b.SealedAt))
	if err != nil {
		return false, fmt.Errorf("insert batch %d: %w", b.Number, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert batch %d: %w", b.Number, err)
	}
	return n > 0, nil
}

// ReadBatch returns the batch row, or ErrNotFound.
func (o ops) ReadBatch(ctx context.Context, n ir.BatchNumber) (ir.Batch, error) {
	var (
		b        ir.Batch
		sealedAt int64
		provenAt sql.NullInt64
	)
	err := o.q.QueryRowContext(ctx, `
		SELECT batch_number, protocol_version, sealed_at, proven_at, final_proof_url
		FROM batches WHERE batch_number = ?
	`, n).Scan(&b.Number, &b.ProtocolVersion, &sealedAt, &provenAt, &b.FinalProofURL)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Batch{}, fmt.Errorf("batch %d: %w", n, ErrNotFound)
	}
	if err != nil {
		return ir.Batch{}, fmt.Errorf("read batch %d: %w", n, err)
	}
	b.SealedAt = fromMillis(sealedAt)
	b.ProvenAt = timePtr(provenAt)
	return b, nil
}

// ListBatches returns every batch in ascending batch order.
func (o ops) ListBatches(ctx context.Context) ([]ir.Batch, error) {
	rows, err := o.q.QueryContext(ctx, `
		SELECT batch_number, protocol_version, sealed_at, proven_at, final_proof_url
		FROM batches ORDER BY batch_number ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	var batches []ir.Batch
	for rows.Next() {
		var (
			b        ir.Batch
			sealedAt int64
			provenAt sql.NullInt64
		)
		if err := rows.Scan(&b.Number, &b.ProtocolVersion, &sealedAt, &provenAt, &b.FinalProofURL); err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		b.SealedAt = fromMillis(sealedAt)
		b.ProvenAt = timePtr(provenAt)
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

// ProtocolVersionForBatch returns the protocol version the batch was sealed under.
func (o ops) ProtocolVersionForBatch(ctx context.Context, n ir.BatchNumber) (ir.ProtocolVersion, error) {
	var v ir.ProtocolVersion
	err := o.q.QueryRowContext(ctx, `SELECT protocol_version FROM batches WHERE batch_number = ?`, n).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("protocol version for batch %d: %w", n, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("protocol version for batch %d: %w", n, err)
	}
	return v, nil
}

// BatchSealedAt returns when the batch was sealed.
func (o ops) BatchSealedAt(ctx context.Context, n ir.BatchNumber) (time.Time, error) {
	var ms int64
	err := o.q.QueryRowContext(ctx, `SELECT sealed_at FROM batches WHERE batch_number = ?`, n).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, fmt.Errorf("sealed_at for batch %d: %w", n, ErrNotFound)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("sealed_at for batch %d: %w", n, err)
	}
	return fromMillis(ms), nil
}

// MarkBatchProven records the final scheduler proof for the batch.
// The first call wins; later calls leave the row unchanged.
func (o ops) MarkBatchProven(ctx context.Context, n ir.BatchNumber, proofURL string, at time.Time) error {
	_, err := o.q.ExecContext(ctx, `
		UPDATE batches SET proven_at = ?, final_proof_url = ?
		WHERE batch_number = ? AND proven_at IS NULL
	`, toMillis(at), proofURL, n)
	if err != nil {
		return fmt.Errorf("mark batch %d proven: %w", n, err)
	}
	return nil
}
