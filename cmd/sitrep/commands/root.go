// Package commands defines all Cobra CLI commands for the sitrep binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/54b3r/sitrep-go/internal/audit"
	"github.com/54b3r/sitrep-go/internal/config"
	"github.com/54b3r/sitrep-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "sitrep",
		Short: "sitrep answers questions about incident reports using retrieval-augmented LLMs",
		Long: `sitrep answers natural-language questions about a table of cybersecurity
incident reports (sitreps).

Each question is interpreted into a structured intent, the most similar
reports are retrieved with pgvector similarity search, and an answer is
written from those reports only.

Settings come from the environment, a .env file, or a YAML config file
(~/.sitrep/config.yaml). Environment variables always win.
See 'sitrep --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			if _, err := config.LoadDotEnv(log); err != nil {
				return err
			}

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.sitrep/config.yaml)")

	root.AddCommand(
		NewAskCmd(),
		NewColumnsCmd(),
		NewBackfillCmd(),
		NewHistoryCmd(),
		NewServeCmd(),
		NewVersionCmd(),
	)

	return root
}
