package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"

	"github.com/mpapi-go/mpapi/internal/jobfile"
	"github.com/mpapi-go/mpapi/pkg/chunky"
	"github.com/mpapi-go/mpapi/pkg/joblock"
	"github.com/mpapi-go/mpapi/pkg/metrics"
	"github.com/mpapi-go/mpapi/pkg/sink"
)

var runForce bool

var runCmd = &cobra.Command{
	Use:   "run <job>",
	Short: "Run every command of a job",
	Long: `Run executes the apack commands of a job from the jobs file in order.

For each command the seed query is counted, split into chunks and every
chunk is written to <output>/<job>/<YYYYMMDD>/<kind>-<id>-chunk<N>.zip
together with the records it references. Chunks already on disk are
skipped. The first failing chunk aborts the run.

Example:
  monk run nightly --jobs jobs.dsl --config monk.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runForce, "force", false,
		"Run even if the job lock is held by another process (use with caution)")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	job := args[0]

	jf, err := jobfile.ParseFile(jobsFile)
	if err != nil {
		return err
	}
	commands, err := jf.Job(job)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd, jf)
	if err != nil {
		return err
	}
	logger := log.With().Str("component", "monk").Str("job", job).Logger()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := openEnvironment(ctx, cfg)
	if err != nil {
		return err
	}
	defer env.Close()

	if env.redis != nil && !runForce {
		lock := joblock.New(env.redis, job, cfg.Redis.LockTTL, logger)
		if err := lock.Acquire(ctx); err != nil {
			if errors.Is(err, joblock.ErrLocked) {
				return fmt.Errorf("job %q is already running elsewhere (use --force to override): %w", job, err)
			}
			return fmt.Errorf("failed to acquire job lock: %w", err)
		}
		defer lock.Release(context.Background())
	} else if runForce {
		logger.Warn().Msg("Skipping job lock (--force flag used)")
	}

	if cfg.Metrics.Addr != "" {
		srv, err := metrics.Listen(cfg.Metrics.Addr)
		if err != nil {
			return err
		}
		metricsCtx, stopMetrics := context.WithCancel(ctx)
		var wg conc.WaitGroup
		wg.Go(func() {
			if err := srv.Serve(metricsCtx); err != nil {
				logger.Error().Err(err).Msg("Metrics server failed")
			}
		})
		defer wg.Wait()
		defer stopMetrics()
	}

	runner, err := chunky.New(env.client, sink.New(cfg.Output.Dir), cfg.ChunkyConfig())
	if err != nil {
		return err
	}

	logger.Info().
		Int("commands", len(commands)).
		Int("chunk_size", cfg.Chunky.ChunkSize).
		Int("parallel_chunks", cfg.Chunky.ParallelChunks).
		Str("output", cfg.Output.Dir).
		Msg("Starting job")

	return runCommands(ctx, cmd, runner, job, commands)
}

// runCommands runs the commands of job in order and stops at the first
// failure, which leaves the client closed.
func runCommands(ctx context.Context, cmd *cobra.Command, runner *chunky.Chunky, job string, commands []jobfile.Command) error {
	for _, c := range commands {
		res, err := runner.Run(ctx, c.Seed, job)
		printResult(cmd, res)
		if err != nil {
			return fmt.Errorf("%s (line %d): %w", c.Seed, c.Line, err)
		}
	}
	return nil
}

func printResult(cmd *cobra.Command, res *chunky.Result) {
	if res == nil {
		return
	}
	cmd.Printf("%s: %s\n", res.Seed, res.State)
	cmd.Printf("   Records:  %d in %d chunk(s)\n", res.Total, res.Chunks)
	cmd.Printf("   Written:  %d, resumed: %d, empty: %d\n", res.Written, res.Resumed, res.Empty)
	cmd.Printf("   Duration: %s\n", res.Duration.Round(time.Millisecond))
}
