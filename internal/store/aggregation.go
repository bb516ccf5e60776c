package store

import (
	"context"
	"fmt"

	"github.com/roach88/witnessgen/internal/ir"
)

// InsertAggregationGroup links a child job to the parent job that
// aggregates it. Idempotent: re-linking the same child is a no-op.
func (o ops) InsertAggregationGroup(ctx context.Context, parentID, childID int64, position int) (bool, error) {
	res, err := o.q.ExecContext(ctx, `
		INSERT INTO aggregation_groups (parent_job_id, child_job_id, position)
		VALUES (?, ?, ?)
		ON CONFLICT DO NOTHING
	`, parentID, childID, position)
	if err != nil {
		return false, fmt.Errorf("link job %d -> parent %d: %w", childID, parentID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("link job %d -> parent %d: %w", childID, parentID, err)
	}
	return n > 0, nil
}

// ChildrenOf returns the jobs aggregated by the parent, in group order.
func (o ops) ChildrenOf(ctx context.Context, parentID int64) ([]ir.Job, error) {
	rows, err := o.q.QueryContext(ctx, `
		SELECT `+prefixed("j", jobColumns)+`
		FROM aggregation_groups g
		JOIN jobs j ON j.id = g.child_job_id
		WHERE g.parent_job_id = ?
		ORDER BY g.position ASC
	`, parentID)
	if err != nil {
		return nil, fmt.Errorf("children of job %d: %w", parentID, err)
	}
	return scanJobs(rows)
}

// ParentOf returns the job aggregating childID, or ErrNotFound if the child
// has not been grouped yet.
func (o ops) ParentOf(ctx context.Context, childID int64) (ir.Job, error) {
	var parentID int64
	err := o.q.QueryRowContext(ctx, `
		SELECT parent_job_id FROM aggregation_groups WHERE child_job_id = ?
	`, childID).Scan(&parentID)
	if err != nil {
		return ir.Job{}, fmt.Errorf("parent of job %d: %w", childID, notFound(err))
	}
	return o.ReadJob(ctx, parentID)
}
