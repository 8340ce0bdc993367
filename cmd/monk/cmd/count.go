package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/mpapi-go/mpapi/pkg/chunky"
	"github.com/mpapi-go/mpapi/pkg/sink"
)

var countCmd = &cobra.Command{
	Use:   "count <kind> <id> [target]",
	Short: "Count the records a seed query selects",
	Long: `Count asks the server how many records a seed query selects and how
many chunks a run would write, without fetching any records.

Kinds: approval, exhibit, group, loc, query. Target defaults to Object.

Example:
  monk count group 182397
  monk count query 4711 Person --chunk-size 500`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runCount,
}

func init() {
	rootCmd.AddCommand(countCmd)
}

func runCount(cmd *cobra.Command, args []string) error {
	seed, err := chunky.ParseSeedQuery(strings.Join(args, " "))
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	env, err := openEnvironment(ctx, cfg)
	if err != nil {
		return err
	}
	defer env.Close()

	runner, err := chunky.New(env.client, sink.New(cfg.Output.Dir), cfg.ChunkyConfig())
	if err != nil {
		return err
	}

	total, chunks, err := runner.Count(ctx, seed)
	if err != nil {
		return err
	}

	cmd.Printf("%s: %d record(s), %d chunk(s) of %d\n", seed, total, chunks, cfg.Chunky.ChunkSize)
	return nil
}
