package cli

import (
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/roach88/witnessgen/internal/ir"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	Batch int64 // -1 means all batches
}

// BatchStatus is one batch's line in the status report.
type BatchStatus struct {
	BatchNumber     ir.BatchNumber       `json:"batch_number"`
	ProtocolVersion ir.ProtocolVersion   `json:"protocol_version"`
	SealedAt        time.Time            `json:"sealed_at"`
	ProvenAt        *time.Time           `json:"proven_at,omitempty"`
	FinalProofURL   string               `json:"final_proof_url,omitempty"`
	Jobs            map[ir.JobStatus]int `json:"jobs"`
}

// StatusReport is the output of status.
type StatusReport struct {
	Jobs    map[ir.JobStatus]int `json:"jobs"`
	Batches []BatchStatus        `json:"batches"`
}

var statusOrder = []ir.JobStatus{ir.StatusQueued, ir.StatusInProgress, ir.StatusSuccessful, ir.StatusFailed}

func (r StatusReport) String() string {
	p := message.NewPrinter(language.English)
	var b strings.Builder

	p.Fprintf(&b, "jobs:")
	for _, s := range statusOrder {
		p.Fprintf(&b, " %s=%d", s, r.Jobs[s])
	}
	b.WriteString("\n")

	for _, bs := range r.Batches {
		state := "pending"
		if bs.ProvenAt != nil {
			state = "proven " + bs.FinalProofURL
		}
		p.Fprintf(&b, "batch %d (v%d, sealed %s): %s;", bs.BatchNumber, bs.ProtocolVersion,
			bs.SealedAt.Format(time.RFC3339), state)
		for _, s := range statusOrder {
			if n := bs.Jobs[s]; n > 0 {
				p.Fprintf(&b, " %s=%d", s, n)
			}
		}
		b.WriteString("\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show job and batch status",
		Long: `Show job counts by status, overall and per batch, and whether each batch
has its final proof.

Example:
  witnessgen status
  witnessgen status --batch 100 --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(opts, cmd)
		},
	}

	cmd.Flags().Int64Var(&opts.Batch, "batch", -1, "only this batch")
	return cmd
}

func runStatus(opts *StatusOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	rt, err := openRuntime(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx := cmd.Context()
	out := formatter(opts.RootOptions, cmd)

	var only *ir.BatchNumber
	if opts.Batch >= 0 {
		n := ir.BatchNumber(opts.Batch)
		only = &n
	}

	total, err := rt.store.CountByStatus(ctx, only)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to count jobs", err)
	}
	report := StatusReport{Jobs: total, Batches: []BatchStatus{}}

	var batches []ir.Batch
	if only != nil {
		b, err := rt.store.ReadBatch(ctx, *only)
		if err != nil {
			_ = out.Error(CodeNotFound, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to read batch", err)
		}
		batches = []ir.Batch{b}
	} else if batches, err = rt.store.ListBatches(ctx); err != nil {
		return WrapExitError(ExitCommandError, "failed to list batches", err)
	}

	for _, b := range batches {
		counts, err := rt.store.CountByStatus(ctx, &b.Number)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to count jobs", err)
		}
		report.Batches = append(report.Batches, BatchStatus{
			BatchNumber:     b.Number,
			ProtocolVersion: b.ProtocolVersion,
			SealedAt:        b.SealedAt,
			ProvenAt:        b.ProvenAt,
			FinalProofURL:   b.FinalProofURL,
			Jobs:            counts,
		})
	}

	return out.Success(report)
}
