package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/54b3r/pantryai-go/internal/logging"
	"github.com/54b3r/pantryai-go/internal/server"
	"github.com/54b3r/pantryai-go/internal/tracing"
)

// NewServeCmd constructs the `pantryai serve` command, which starts the HTTP
// server exposing the inventory RAG API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the PantryAI HTTP server",
		Long: `Start the PantryAI HTTP server on localhost.

The server exposes the inventory RAG API: free-text pantry answers,
recipe name lists, structured recipe suggestions, and per-tenant index
refresh. Tenant indices are built lazily on first query and persisted
in a local SQLite database across restarts.

Examples:
  pantryai serve
  pantryai serve --port 9090
  MODEL_PROVIDER=azure pantryai serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Setup Langfuse tracing — opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			mgr, inv, cleanup, err := buildIndexManager(log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer cleanup()

			pipe, chatModel, providerCfg, err := buildQueryPipeline(ctx, log, mgr)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			// Flags win over env; server.New applies the final defaults
			// (127.0.0.1:8080) when both are unset.
			if host == "" {
				host = os.Getenv("SERVER_HOST")
			}
			if port == 0 {
				if v := os.Getenv("SERVER_PORT"); v != "" {
					if p, perr := strconv.Atoi(v); perr == nil {
						port = p
					}
				}
			}

			pingers := []server.Pinger{
				server.NewLLMPinger(chatModel, string(providerCfg.Backend)),
				server.NewPinger("inventory", inv.Ping),
			}

			srv, err := server.New(pipe, mgr, &server.Config{
				Host:    host,
				Port:    port,
				Logger:  log,
				Pingers: pingers,
				APIKey:  os.Getenv("PANTRYAI_API_KEY"),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Host address to bind to (default: SERVER_HOST or 127.0.0.1)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "TCP port to listen on (default: SERVER_PORT or 8080)")

	return cmd
}
