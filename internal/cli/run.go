package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/witnessgen/internal/worker"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Workers int
	Once    bool

	// IDs allows overriding worker identities (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDs worker.IDGenerator
}

// RunSummary is the output of run --once.
type RunSummary struct {
	Processed int `json:"processed"`
}

func (s RunSummary) String() string {
	return fmt.Sprintf("processed %d jobs", s.Processed)
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start workers",
		Long: `Start workers that claim queued jobs and prove them.

Workers run until interrupted. With --once they process every claimable job
and exit; failed jobs waiting on backoff are left for the next run.

Example:
  witnessgen run --db ./witnessgen.db --workers 4
  witnessgen run --once --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkers(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "number of workers (overrides worker.count)")
	cmd.Flags().BoolVar(&opts.Once, "once", false, "process claimable jobs, then exit")

	return cmd
}

func runWorkers(opts *RunOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	if opts.Workers > 0 {
		cfg.Worker.Count = opts.Workers
	}
	wcfg, err := cfg.WorkerConfig()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid worker config", err)
	}

	rt, err := openRuntime(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rt.Close(); closeErr != nil {
			rt.log.Error().Err(closeErr).Msg("error closing runtime")
		}
	}()

	pool, err := worker.NewPool(rt.env, wcfg, cfg.Worker.Count, opts.IDs)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create workers", err)
	}

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := formatter(opts.RootOptions, cmd)

	if opts.Once {
		n, err := pool.Drain(ctx)
		if err != nil {
			_ = out.Error(CodeWorker, "worker error", err.Error())
			return WrapExitError(ExitFailure, "worker error", err)
		}
		return out.Success(RunSummary{Processed: n})
	}

	rt.log.Info().Int("workers", cfg.Worker.Count).Msg("workers starting")
	if err := pool.Run(ctx); err != nil {
		_ = out.Error(CodeWorker, "worker stopped", err.Error())
		return WrapExitError(ExitFailure, "worker stopped", err)
	}
	rt.log.Info().Msg("workers stopped gracefully")
	return nil
}
