package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/witnessgen/internal/ir"
	"github.com/roach88/witnessgen/internal/store"
)

// JobsOptions holds flags for the jobs command.
type JobsOptions struct {
	*RootOptions
	Status   string
	Batch    int64
	Round    string
	Limit    int
	ParentOf int64
}

// JobList is the output of jobs.
type JobList []ir.Job

func (l JobList) String() string {
	if len(l) == 0 {
		return "no jobs"
	}
	var b strings.Builder
	for _, j := range l {
		fmt.Fprintf(&b, "%6d  %-11s  batch=%d %s circuit=%d depth=%d seq=%d attempts=%d",
			j.ID, j.Status, j.BatchNumber, j.Round, j.CircuitID, j.Depth, j.Seq, j.Attempts)
		if j.Error != "" {
			fmt.Fprintf(&b, "  error=%q", j.Error)
		}
		b.WriteString("\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// NewJobsCommand creates the jobs command.
func NewJobsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &JobsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List jobs",
		Long: `List jobs ordered by id, optionally filtered.

Example:
  witnessgen jobs --status failed
  witnessgen jobs --batch 100 --round leaf_aggregation --format json
  witnessgen jobs --parent-of 42`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJobs(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Status, "status", "", "queued|in_progress|successful|failed")
	cmd.Flags().Int64Var(&opts.Batch, "batch", -1, "only this batch")
	cmd.Flags().StringVar(&opts.Round, "round", "", "only this round")
	cmd.Flags().IntVar(&opts.Limit, "limit", 100, "maximum number of jobs (0 for all)")
	cmd.Flags().Int64Var(&opts.ParentOf, "parent-of", 0, "show the job aggregating this job id")
	return cmd
}

func (o *JobsOptions) filter() (store.JobFilter, error) {
	f := store.JobFilter{Limit: o.Limit}
	switch s := ir.JobStatus(o.Status); s {
	case "", ir.StatusQueued, ir.StatusInProgress, ir.StatusSuccessful, ir.StatusFailed:
		f.Status = s
	default:
		return f, fmt.Errorf("invalid status %q", o.Status)
	}
	if o.Batch >= 0 {
		n := ir.BatchNumber(o.Batch)
		f.Batch = &n
	}
	if o.Round != "" {
		r, err := ir.ParseRound(o.Round)
		if err != nil {
			return f, err
		}
		f.Round = &r
	}
	return f, nil
}

func runJobs(opts *JobsOptions, cmd *cobra.Command) error {
	f, err := opts.filter()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid filter", err)
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

	out := formatter(opts.RootOptions, cmd)
	if opts.ParentOf > 0 {
		parent, err := rt.store.ParentOf(cmd.Context(), opts.ParentOf)
		if errors.Is(err, store.ErrNotFound) {
			_ = out.Error(CodeNotFound, fmt.Sprintf("job %d has no parent", opts.ParentOf), nil)
			return WrapExitError(ExitCommandError, "parent not found", err)
		}
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read parent", err)
		}
		return out.Success(JobList{parent})
	}

	jobs, err := rt.store.ListJobs(cmd.Context(), f)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list jobs", err)
	}
	if jobs == nil {
		jobs = []ir.Job{}
	}
	return out.Success(JobList(jobs))
}
