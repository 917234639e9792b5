package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/54b3r/pantryai-go/internal/logging"
	"github.com/54b3r/pantryai-go/internal/prompts"
)

// askModes maps the user-facing --mode flag values to pipeline modes.
var askModes = map[string]prompts.Mode{
	"text":        prompts.ModeText,
	"recipes":     prompts.ModeRecipeList,
	"suggestions": prompts.ModeStructured,
}

// NewAskCmd constructs the `pantryai ask` command, which runs a single query
// through the retrieval pipeline and prints the answer to stdout.
func NewAskCmd() *cobra.Command {
	var tenantID string
	var mode string

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about a tenant's inventory",
		Long: `Run a single natural language query against a tenant's inventory index.

The index is built on first use from the inventory backend and cached in
the local SQLite store, so repeated questions for the same tenant are fast.

Examples:
  pantryai ask --tenant acme "what vegetables do I have?"
  pantryai ask --tenant acme --mode recipes "what can I cook tonight?"
  pantryai ask --tenant acme --mode suggestions "dinner ideas"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			pipelineMode, ok := askModes[mode]
			if !ok {
				return fmt.Errorf("ask: unknown mode %q — valid values: text, recipes, suggestions", mode)
			}

			mgr, _, cleanup, err := buildIndexManager(log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer cleanup()

			pipe, _, _, err := buildQueryPipeline(ctx, log, mgr)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			qs, err := pipe.Run(ctx, args[0], tenantID, pipelineMode)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			switch pipelineMode {
			case prompts.ModeRecipeList:
				for _, name := range qs.RecipeList {
					fmt.Printf("- %s\n", name)
				}
			case prompts.ModeStructured:
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(qs.Suggestions)
			default:
				fmt.Println(qs.Response)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&tenantID, "tenant", "t", "", "Tenant ID whose inventory to query (required)")
	cmd.Flags().StringVarP(&mode, "mode", "m", "text", "Answer mode: text, recipes, or suggestions")
	_ = cmd.MarkFlagRequired("tenant")

	return cmd
}
