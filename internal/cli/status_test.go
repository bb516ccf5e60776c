package cli

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/witnessgen/internal/ir"
)

func TestStatus_Pending(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(t, "submit", e.writeBatch(t, 5, "w0", "w1"))
	require.NoError(t, err)

	out, err := e.run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "jobs: queued=2 in_progress=0 successful=0 failed=0")
	assert.Contains(t, out, "batch 5 (v24, sealed 2026-03-01T12:00:00Z): pending; queued=2")
}

func TestStatus_JSON(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(t, "submit", e.writeBatch(t, 5, "w0"))
	require.NoError(t, err)

	out, err := e.run(t, "--format", "json", "status")
	require.NoError(t, err)

	var report StatusReport
	resp := decode(t, out, &report)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, report.Jobs[ir.StatusQueued])
	require.Len(t, report.Batches, 1)
	assert.EqualValues(t, 24, report.Batches[0].ProtocolVersion)
	assert.True(t, report.Batches[0].SealedAt.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)))
	assert.Nil(t, report.Batches[0].ProvenAt)
}

func TestStatus_EmptyDatabase(t *testing.T) {
	e := newEnv(t)

	out, err := e.run(t, "status")
	require.NoError(t, err)
	assert.Equal(t, "jobs: queued=0 in_progress=0 successful=0 failed=0\n", out)
}

func TestStatus_UnknownBatch(t *testing.T) {
	e := newEnv(t)

	out, err := e.run(t, "status", "--batch", "99")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, CodeNotFound)
}
