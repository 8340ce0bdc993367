package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mpapi-go/mpapi/internal/config"
	"github.com/mpapi-go/mpapi/internal/jobfile"
	"github.com/mpapi-go/mpapi/pkg/logging"
)

// Version information (set via ldflags at build time)
var (
	Version = "0.0.1-dev"
	Commit  = "unknown"
)

// CLI flags that override config file values
var (
	cfgFile           string
	jobsFile          string
	outputDir         string
	logLevel          string
	prettyLogs        bool
	chunkSize         int
	parallelChunks    int
	concurrencyBudget int
)

var rootCmd = &cobra.Command{
	Use:   "monk",
	Short: "Chunked MuseumPlus downloader",
	Long: `monk pages through a MuseumPlus record set in fixed-size chunks,
fetches the records every chunk references and writes each chunk with its
related records to a zip file.

Runs resume: chunks whose file already exists are not fetched again.

Configuration is read from a YAML file (--config), MPAPI_* environment
variables, the .conf section of the jobs file and command line flags, in
increasing order of precedence.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"Path to configuration file (default: environment only)")
	rootCmd.PersistentFlags().StringVarP(&jobsFile, "jobs", "j", jobfile.DefaultName,
		"Path to the jobs file")
	rootCmd.PersistentFlags().StringVarP(&outputDir, "output", "o", "",
		"Override output directory")

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&prettyLogs, "pretty", false,
		"Human readable log output")

	rootCmd.PersistentFlags().IntVar(&chunkSize, "chunk-size", 0,
		"Override chunk size (seed records per chunk)")
	rootCmd.PersistentFlags().IntVar(&parallelChunks, "parallel-chunks", 0,
		"Override number of chunks processed at once")
	rootCmd.PersistentFlags().IntVar(&concurrencyBudget, "concurrency-budget", 0,
		"Override maximum number of outstanding requests")
}

// cliOverrides returns the flag values that override configuration.
func cliOverrides() config.Overrides {
	return config.Overrides{
		ChunkSize:         chunkSize,
		ParallelChunks:    parallelChunks,
		ConcurrencyBudget: concurrencyBudget,
		OutputDir:         outputDir,
		LogLevel:          logLevel,
		Pretty:            prettyLogs,
	}
}

// jobOverrides converts the .conf section of a jobs file.
func jobOverrides(conf jobfile.Conf) config.Overrides {
	return config.Overrides{
		ChunkSize:         conf.ChunkSize,
		ParallelChunks:    conf.ParallelChunks,
		ConcurrencyBudget: conf.ConcurrencyBudget,
		ExcludeModules:    conf.ExcludeModules,
	}
}

// loadConfig loads the configuration, applies the jobs file's .conf
// section when jf is not nil, applies the command line flags, validates
// the result and sets up logging.
func loadConfig(cmd *cobra.Command, jf *jobfile.File) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if jf != nil {
		cfg.ApplyOverrides(jobOverrides(jf.Conf))
	}
	cfg.ApplyOverrides(cliOverrides())

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.Logging.Level),
		Pretty: cfg.Logging.Pretty,
		Output: cmd.ErrOrStderr(),
	})
	return cfg, nil
}
