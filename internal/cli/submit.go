package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/witnessgen/internal/ir"
	"github.com/roach88/witnessgen/internal/pipeline"
)

// SubmitSummary is the output of submit.
type SubmitSummary struct {
	BatchNumber ir.BatchNumber `json:"batch_number"`
	Jobs        int            `json:"jobs"`
	Inserted    int            `json:"inserted"`
}

func (s SubmitSummary) String() string {
	if s.Inserted == 0 {
		return fmt.Sprintf("batch %d already submitted (%d jobs)", s.BatchNumber, s.Jobs)
	}
	return fmt.Sprintf("batch %d submitted: %d basic jobs queued", s.BatchNumber, s.Inserted)
}

// NewSubmitCommand creates the submit command.
func NewSubmitCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "submit <batch.yaml>",
		Short: "Submit a sealed batch",
		Long: `Submit a sealed batch's basic circuit witnesses and queue its basic jobs.

The batch file names the batch number, protocol version, seal time, the
scheduler's partial input and each base circuit's witnesses (inline strings
or files relative to the batch file). Submitting the same batch twice queues
nothing new.

Example:
  witnessgen submit ./batches/100.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(rootOpts, args[0], cmd)
		},
	}
}

func runSubmit(opts *RootOptions, path string, cmd *cobra.Command) error {
	out := formatter(opts, cmd)

	sub, err := pipeline.LoadSubmission(path)
	if err != nil {
		_ = out.Error(CodeSubmission, "failed to load batch", err.Error())
		return WrapExitError(ExitCommandError, "failed to load batch", err)
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	rt, err := openRuntime(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer rt.Close()

	producer := pipeline.NewProducer(rt.env.Blobs, rt.env.Codec, rt.store, rt.log)
	res, err := producer.SubmitBatch(cmd.Context(), sub)
	if err != nil {
		_ = out.Error(CodeSubmission, "failed to submit batch", err.Error())
		return WrapExitError(ExitFailure, "failed to submit batch", err)
	}

	return out.Success(SubmitSummary{
		BatchNumber: res.Batch.Number,
		Jobs:        len(res.Jobs),
		Inserted:    res.Inserted,
	})
}
