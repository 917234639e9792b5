package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/54b3r/pantryai-go/internal/index"
	"github.com/54b3r/pantryai-go/internal/logging"
)

// NewRefreshCmd constructs the `pantryai refresh` command, which rebuilds a
// tenant's vector index from the inventory backend.
func NewRefreshCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refresh [tenant-id]",
		Short: "Rebuild a tenant's inventory index",
		Long: `Force a rebuild of a tenant's vector index from the inventory backend.

The rebuilt index replaces the cached and persisted copy, so subsequent
queries see the latest inventory. A rebuild never fails the command: if
the backend or embedder is unavailable, the outcome is reported with
status "error" and the previous index stays in place.

Examples:
  pantryai refresh acme
  INVENTORY_API_URL=http://inventory:8080 pantryai refresh acme`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			mgr, _, cleanup, err := buildIndexManager(log)
			if err != nil {
				return fmt.Errorf("refresh: %w", err)
			}
			defer cleanup()

			result := mgr.Refresh(ctx, args[0])

			fmt.Printf("status:    %s\n", result.Status)
			fmt.Printf("message:   %s\n", result.Message)
			fmt.Printf("documents: %d\n", result.DocumentCount)

			if result.Status == index.RefreshError {
				return fmt.Errorf("refresh: index rebuild failed for tenant %s", args[0])
			}
			return nil
		},
	}

	return cmd
}
