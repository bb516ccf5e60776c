package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/witnessgen/internal/blob"
	"github.com/roach88/witnessgen/internal/ir"
	"github.com/roach88/witnessgen/internal/rounds"
	"github.com/roach88/witnessgen/internal/store"
)

var sealed = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newProducer(t *testing.T) (*Producer, *store.Store, *blob.MemStore) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	mem := blob.NewMemStore()
	return NewProducer(blob.WriteOnce(mem), blob.DefaultCodec(), s, zerolog.Nop()), s, mem
}

func TestSubmitBatch(t *testing.T) {
	p, s, mem := newProducer(t)
	ctx := context.Background()

	sub := &Submission{
		BatchNumber:     100,
		ProtocolVersion: 24,
		SealedAt:        sealed,
		SchedulerInput:  "sched",
		Circuits: []CircuitWitnesses{
			{CircuitID: 1, Witnesses: []string{"a", "b", "c"}},
			WithPayloads(2, []byte{0x00, 0x01}),
		},
	}

	res, err := p.SubmitBatch(ctx, sub)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Inserted)
	require.Len(t, res.Jobs, 4)
	assert.Equal(t, ir.BatchNumber(100), res.Batch.Number)

	w, err := blob.Load[rounds.WitnessInput](ctx, mem, blob.DefaultCodec(), "witness_inputs/100_2_1_basic_circuits_0.bin")
	require.NoError(t, err)
	assert.Equal(t, []byte("c"), w.Witness)
	assert.Equal(t, 2, w.Seq)

	sched, err := blob.Load[rounds.SchedulerInput](ctx, mem, blob.DefaultCodec(), "scheduler_witness/100_0_1_scheduler_0.bin")
	require.NoError(t, err)
	assert.Equal(t, []byte("sched"), sched.Data)

	jobs, err := s.JobsForBatch(ctx, 100)
	require.NoError(t, err)
	require.Len(t, jobs, 4)
	for _, j := range jobs {
		assert.Equal(t, ir.BasicCircuits, j.Round)
		assert.Equal(t, ir.StatusQueued, j.Status)
		assert.Equal(t, ir.ProtocolVersion(24), j.ProtocolVersion)
		assert.True(t, j.BatchSealedAt.Equal(sealed))
	}

	// Resubmission is a no-op.
	again, err := p.SubmitBatch(ctx, sub)
	require.NoError(t, err)
	assert.Zero(t, again.Inserted)
	assert.Len(t, again.Jobs, 4)
	assert.Equal(t, res.Jobs[0].ID, again.Jobs[0].ID)
}

func TestSubmitBatch_ResubmissionMustMatch(t *testing.T) {
	base := func() *Submission {
		return &Submission{
			BatchNumber:     100,
			ProtocolVersion: 24,
			SealedAt:        sealed,
			SchedulerInput:  "sched",
			Circuits:        []CircuitWitnesses{{CircuitID: 1, Witnesses: []string{"a", "b"}}},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Submission)
		want   string
	}{
		{"extra witness", func(s *Submission) { s.Circuits[0].Witnesses = append(s.Circuits[0].Witnesses, "c") }, "2 basic jobs, resubmitted with 3"},
		{"dropped witness", func(s *Submission) { s.Circuits[0].Witnesses = s.Circuits[0].Witnesses[:1] }, "seq=1 missing"},
		{"other circuit", func(s *Submission) { s.Circuits[0].CircuitID = 2 }, "circuit=1 seq=0 missing"},
		{"protocol version", func(s *Submission) { s.ProtocolVersion = 25 }, "protocol version 24"},
		{"seal time", func(s *Submission) { s.SealedAt = sealed.Add(time.Minute) }, "sealed at"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, s, mem := newProducer(t)
			ctx := context.Background()

			_, err := p.SubmitBatch(ctx, base())
			require.NoError(t, err)
			blobs := len(mem.Keys())

			changed := base()
			tt.mutate(changed)
			_, err = p.SubmitBatch(ctx, changed)
			require.ErrorIs(t, err, ErrBatchMismatch)
			assert.Contains(t, err.Error(), tt.want)

			jobs, err := s.JobsForBatch(ctx, 100)
			require.NoError(t, err)
			assert.Len(t, jobs, 2, "no job queued into a committed batch")
			assert.Len(t, mem.Keys(), blobs, "no blob written for a rejected batch")

			b, err := s.ReadBatch(ctx, 100)
			require.NoError(t, err)
			assert.Equal(t, ir.ProtocolVersion(24), b.ProtocolVersion)
		})
	}
}

func TestSubmission_Validate(t *testing.T) {
	tests := []struct {
		name string
		sub  Submission
	}{
		{"no circuits", Submission{BatchNumber: 1, SealedAt: sealed}},
		{"no sealed_at", Submission{BatchNumber: 1, Circuits: []CircuitWitnesses{{CircuitID: 1, Witnesses: []string{"a"}}}}},
		{"circuit zero", Submission{BatchNumber: 1, SealedAt: sealed, Circuits: []CircuitWitnesses{{CircuitID: 0, Witnesses: []string{"a"}}}}},
		{"circuit too large", Submission{BatchNumber: 1, SealedAt: sealed, Circuits: []CircuitWitnesses{{CircuitID: 40, Witnesses: []string{"a"}}}}},
		{"duplicate circuit", Submission{BatchNumber: 1, SealedAt: sealed, Circuits: []CircuitWitnesses{
			{CircuitID: 1, Witnesses: []string{"a"}},
			{CircuitID: 1, Witnesses: []string{"b"}},
		}}},
		{"no witnesses", Submission{BatchNumber: 1, SealedAt: sealed, Circuits: []CircuitWitnesses{{CircuitID: 1}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.sub.Validate())
		})
	}
}

func TestLoadSubmission(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "w.bin"), []byte{0xde, 0xad}, 0o644))
	path := filepath.Join(dir, "batch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
batch_number: 42
protocol_version: 24
sealed_at: 2026-03-01T12:00:00Z
scheduler_input: sched
circuits:
  - circuit_id: 3
    witnesses: [one, two]
    files: [w.bin]
`), 0o644))

	sub, err := LoadSubmission(path)
	require.NoError(t, err)
	assert.Equal(t, ir.BatchNumber(42), sub.BatchNumber)
	assert.True(t, sub.SealedAt.Equal(sealed))
	require.Len(t, sub.Circuits, 1)
	assert.Equal(t, [][]byte{[]byte("one"), []byte("two"), {0xde, 0xad}}, sub.Circuits[0].Payloads())
}

func TestLoadSubmission_UnknownField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("batch_number: 1\nbogus: true\n"), 0o644))

	_, err := LoadSubmission(path)
	assert.Error(t, err)
}
