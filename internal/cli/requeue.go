package cli

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/witnessgen/internal/ir"
	"github.com/roach88/witnessgen/internal/store"
)

// RequeueOptions holds flags for the requeue command.
type RequeueOptions struct {
	*RootOptions
	Failed bool
}

// RequeueSummary is the output of requeue.
type RequeueSummary struct {
	Requeued []int64 `json:"requeued"`
}

func (s RequeueSummary) String() string {
	return fmt.Sprintf("requeued %d jobs %v", len(s.Requeued), s.Requeued)
}

// NewRequeueCommand creates the requeue command.
func NewRequeueCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RequeueOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "requeue [job-id...]",
		Short: "Return failed or stuck jobs to the queue",
		Long: `Return failed or in-progress jobs to the queue with their attempt count
reset. Use this for jobs that failed terminally (unreadable blobs, attempt
ceiling reached) or that are stuck in progress under the manual stuck policy.

Example:
  witnessgen requeue 42 43
  witnessgen requeue --failed`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequeue(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Failed, "failed", false, "requeue every failed job")
	return cmd
}

func runRequeue(opts *RequeueOptions, args []string, cmd *cobra.Command) error {
	if len(args) == 0 && !opts.Failed {
		return NewExitError(ExitCommandError, "give job ids or --failed")
	}
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := strconv.ParseInt(a, 10, 64)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("invalid job id %q", a), err)
		}
		ids = append(ids, id)
	}

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

	if opts.Failed {
		failed, err := rt.store.ListJobs(ctx, store.JobFilter{Status: ir.StatusFailed})
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list jobs", err)
		}
		for _, j := range failed {
			ids = append(ids, j.ID)
		}
	}

	summary := RequeueSummary{Requeued: []int64{}}
	for _, id := range ids {
		err := rt.store.RequeueJob(ctx, id, time.Now().UTC())
		if errors.Is(err, store.ErrNotFound) {
			_ = out.Error(CodeNotFound, fmt.Sprintf("job %d not found", id), nil)
			return WrapExitError(ExitCommandError, fmt.Sprintf("job %d not found", id), err)
		}
		if err != nil {
			_ = out.Error(CodeStore, err.Error(), nil)
			return WrapExitError(ExitFailure, fmt.Sprintf("failed to requeue job %d", id), err)
		}
		out.VerboseLog("requeued job %d", id)
		summary.Requeued = append(summary.Requeued, id)
	}
	return out.Success(summary)
}
