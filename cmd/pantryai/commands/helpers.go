package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/cloudwego/eino/components/model"

	"github.com/54b3r/pantryai-go/internal/datasource"
	"github.com/54b3r/pantryai-go/internal/embedder"
	"github.com/54b3r/pantryai-go/internal/generator"
	"github.com/54b3r/pantryai-go/internal/index"
	"github.com/54b3r/pantryai-go/internal/pipeline"
	"github.com/54b3r/pantryai-go/internal/provider"
	"github.com/54b3r/pantryai-go/internal/store"
)

// buildIndexManager wires the inventory client, embedder, and SQLite index
// store into an index manager. The returned cleanup function closes the
// store and must be called when the command finishes.
func buildIndexManager(log *slog.Logger) (*index.Manager, *datasource.Client, func(), error) {
	if err := embedder.Validate(log); err != nil {
		return nil, nil, nil, err
	}

	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}

	baseURL := os.Getenv("INVENTORY_API_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8000"
	}
	inv, err := datasource.New(&datasource.Config{
		BaseURL: baseURL,
		APIKey:  os.Getenv("INVENTORY_API_KEY"),
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialise inventory client: %w", err)
	}

	// PANTRYAI_INDEX_DB overrides the default path (~/.pantryai/indices.db).
	dbPath := os.Getenv("PANTRYAI_INDEX_DB")
	if dbPath == "" {
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to resolve index DB path: %w", err)
		}
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open index store at %s: %w", dbPath, err)
	}
	log.Info("index store opened", slog.String("path", dbPath))

	mgr, err := index.NewManager(&index.Config{
		Source:   inv,
		Embedder: emb,
		Store:    st,
		Logger:   log,
	})
	if err != nil {
		_ = st.Close()
		return nil, nil, nil, fmt.Errorf("failed to initialise index manager: %w", err)
	}

	return mgr, inv, func() { _ = st.Close() }, nil
}

// buildQueryPipeline wires the chat model and generator on top of an index
// manager. It returns the model and resolved provider config as well so
// callers can set up health probes.
func buildQueryPipeline(ctx context.Context, log *slog.Logger, mgr *index.Manager) (*pipeline.Pipeline, model.ToolCallingChatModel, *provider.Config, error) {
	providerCfg := provider.ConfigFromEnv()
	chatModel, err := provider.New(ctx, providerCfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	log.Info("provider initialised", slog.String("provider", string(providerCfg.Backend)))

	gen, err := generator.New(chatModel)
	if err != nil {
		return nil, nil, nil, err
	}

	pipe, err := pipeline.New(&pipeline.Config{
		Indexes:   mgr,
		Generator: gen,
		Logger:    log,
	})
	if err != nil {
		return nil, nil, nil, err
	}

	return pipe, chatModel, providerCfg, nil
}
