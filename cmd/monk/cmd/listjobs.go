package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/mpapi-go/mpapi/internal/jobfile"
)

var listJobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List all jobs defined in the jobs file",
	Long: `Jobs displays the jobs of the jobs file in file order together with
their commands and the .conf settings.

Example:
  monk jobs --jobs jobs.dsl`,
	Args: cobra.NoArgs,
	RunE: runListJobs,
}

func init() {
	rootCmd.AddCommand(listJobsCmd)
}

func runListJobs(cmd *cobra.Command, args []string) error {
	jf, err := jobfile.ParseFile(jobsFile)
	if err != nil {
		return err
	}

	if conf := jf.Conf; conf.ChunkSize > 0 || conf.ParallelChunks > 0 || conf.ConcurrencyBudget > 0 || conf.ExcludeModules != nil {
		cmd.Printf("Settings in %s:\n", jobsFile)
		if conf.ChunkSize > 0 {
			cmd.Printf("   chunkSize:         %d\n", conf.ChunkSize)
		}
		if conf.ParallelChunks > 0 {
			cmd.Printf("   parallelChunks:    %d\n", conf.ParallelChunks)
		}
		if conf.ConcurrencyBudget > 0 {
			cmd.Printf("   concurrencyBudget: %d\n", conf.ConcurrencyBudget)
		}
		if conf.ExcludeModules != nil {
			cmd.Printf("   excludeModules:    %s\n", strings.Join(conf.ExcludeModules, ", "))
		}
		cmd.Println()
	}

	names := jf.Jobs()
	if len(names) == 0 {
		cmd.Printf("No jobs defined in %s\n", jobsFile)
		return nil
	}

	cmd.Printf("Jobs defined in %s:\n\n", jobsFile)
	for i, name := range names {
		commands, err := jf.Job(name)
		if err != nil {
			return err
		}
		cmd.Printf("%d. %s\n", i+1, name)
		if len(commands) == 0 {
			cmd.Printf("   (no commands)\n")
		}
		for _, c := range commands {
			cmd.Printf("   %s %s\n", c.Verb, c.Seed)
		}
	}

	cmd.Printf("\nTotal: %d job(s)\n", len(names))
	return nil
}
