package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var definitionOut string

var definitionCmd = &cobra.Command{
	Use:   "definition [module]",
	Short: "Fetch a module definition",
	Long: `Definition downloads the field definition of one module, or of all
modules when none is given. With redis configured, definitions are cached
for redis.definition_ttl.

Example:
  monk definition Object --out object-definition.xml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDefinition,
}

func init() {
	definitionCmd.Flags().StringVar(&definitionOut, "out", "",
		"Write the definition to this file instead of stdout")

	rootCmd.AddCommand(definitionCmd)
}

func runDefinition(cmd *cobra.Command, args []string) error {
	module := ""
	if len(args) == 1 {
		module = args[0]
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

	data, err := env.client.GetDefinition(ctx, module)
	if err != nil {
		return err
	}

	if definitionOut == "" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(definitionOut, data, 0o644); err != nil {
		return fmt.Errorf("failed to write definition: %w", err)
	}
	cmd.Printf("Wrote %d bytes to %s\n", len(data), definitionOut)
	return nil
}
