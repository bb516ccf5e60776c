package cli

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/witnessgen/internal/ir"
	"github.com/roach88/witnessgen/internal/store"
)

// failJob claims the next queued job and fails it terminally.
func failJob(t *testing.T, e *env) int64 {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(e.db)
	require.NoError(t, err)
	defer st.Close()

	now := time.Now().UTC()
	job, err := st.ClaimJob(ctx, "operator", ir.Rounds(), now)
	require.NoError(t, err)
	require.NotNil(t, job)
	require.NoError(t, st.FailJob(ctx, job.ID, "operator", "unreadable witness", nil, now))
	return job.ID
}

func TestRequeue_ByID(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(t, "submit", e.writeBatch(t, 4, "w0", "w1"))
	require.NoError(t, err)
	id := failJob(t, e)

	out, err := e.run(t, "--format", "json", "requeue", "1")
	require.NoError(t, err)
	var summary RequeueSummary
	decode(t, out, &summary)
	assert.Equal(t, []int64{id}, summary.Requeued)

	out, err = e.run(t, "--format", "json", "jobs", "--status", "queued")
	require.NoError(t, err)
	var jobs []ir.Job
	decode(t, out, &jobs)
	require.Len(t, jobs, 2)
	assert.Equal(t, 0, jobs[0].Attempts)
}

func TestRequeue_Failed(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(t, "submit", e.writeBatch(t, 4, "w0", "w1"))
	require.NoError(t, err)
	failJob(t, e)
	failJob(t, e)

	out, err := e.run(t, "requeue", "--failed")
	require.NoError(t, err)
	assert.Contains(t, out, "requeued 2 jobs [1 2]")

	out, err = e.run(t, "run", "--once")
	require.NoError(t, err)
	assert.Contains(t, out, "processed 6 jobs")
}

func TestRequeue_NotFound(t *testing.T) {
	e := newEnv(t)

	out, err := e.run(t, "requeue", "42")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, CodeNotFound)
}

func TestRequeue_QueuedJobRejected(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(t, "submit", e.writeBatch(t, 4, "w0"))
	require.NoError(t, err)

	_, err = e.run(t, "requeue", "1")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "not failed or in progress")
}

func TestRequeue_Args(t *testing.T) {
	e := newEnv(t)

	_, err := e.run(t, "requeue")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "give job ids or --failed")

	_, err = e.run(t, "requeue", "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid job id")
}
