// Package commands defines all Cobra CLI commands for the pantryai binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/54b3r/pantryai-go/internal/audit"
	"github.com/54b3r/pantryai-go/internal/config"
	"github.com/54b3r/pantryai-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pantryai",
		Short: "PantryAI — inventory-aware recipe assistant powered by LLMs",
		Long: `PantryAI is a multi-tenant retrieval service over grocery inventory data.

It answers natural language questions about a tenant's pantry, suggests
recipes from what is actually in stock, and keeps a per-tenant vector
index that rebuilds on demand from the inventory backend.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.pantryai/config.yaml).
See 'pantryai --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.pantryai/config.yaml)")

	root.AddCommand(
		NewAskCmd(),
		NewRefreshCmd(),
		NewServeCmd(),
		NewVersionCmd(),
	)

	return root
}
