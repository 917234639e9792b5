// Package pipeline sequences one query through retrieval, generation, and
// output-mode-dependent formatting. The flow is a small finite state machine:
//
//	START → RETRIEVE → GENERATE → {FORMAT_LIST | FORMAT_STRUCTURED | DONE}
//
// The output mode is fixed when the run starts and alone decides which branch
// follows GENERATE. Every state transforms the per-request QueryState and
// nothing else; runs never share mutable state and never re-enter an earlier
// state.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/54b3r/pantryai-go/internal/budget"
	"github.com/54b3r/pantryai-go/internal/format"
	"github.com/54b3r/pantryai-go/internal/prompts"
	"github.com/54b3r/pantryai-go/internal/rag"
)

// DefaultTopK is the fixed retrieval breadth: how many documents are pulled
// into the context before any mode-specific handling.
const DefaultTopK = 10

// emptyContext is the sentinel injected when retrieval finds no documents.
const emptyContext = "No inventory data found."

// defaultGenerateTimeout bounds each text-generation call so a hung backend
// cannot pin a request forever.
const defaultGenerateTimeout = 120 * time.Second

// State names one node of the pipeline state machine.
type State string

const (
	// StateStart is the entry state; no work happens here.
	StateStart State = "START"
	// StateRetrieve fetches the tenant's nearest documents and builds the context.
	StateRetrieve State = "RETRIEVE"
	// StateGenerate renders the mode's prompt pair and calls the generator.
	StateGenerate State = "GENERATE"
	// StateFormatList parses the generated text into a flat name list.
	StateFormatList State = "FORMAT_LIST"
	// StateFormatStructured parses the generated text into suggestion records.
	StateFormatStructured State = "FORMAT_STRUCTURED"
	// StateDone is the terminal state.
	StateDone State = "DONE"
)

// Next is the transition function of the state machine. The mode only
// matters on the edge out of GENERATE; everywhere else the successor is
// unconditional. Formatting states always terminate.
func Next(s State, mode prompts.Mode) State {
	switch s {
	case StateStart:
		return StateRetrieve
	case StateRetrieve:
		return StateGenerate
	case StateGenerate:
		switch mode {
		case prompts.ModeRecipeList:
			return StateFormatList
		case prompts.ModeStructured:
			return StateFormatStructured
		default:
			return StateDone
		}
	default:
		return StateDone
	}
}

// QueryState carries everything one run accumulates: the inputs, the
// retrieved documents and context, the verbatim generated text, and the
// mode's typed result. It is created per request and discarded after the
// response is produced.
type QueryState struct {
	// Query is the tenant's natural-language question.
	Query string
	// TenantID identifies whose index is searched.
	TenantID string
	// Mode selects the formatting branch; fixed for the whole run.
	Mode prompts.Mode
	// Documents is the retrieved document list in retrieval-rank order.
	Documents []rag.Document
	// Context is the newline-joined textual form of Documents.
	Context string
	// Response is the generated text, stored verbatim.
	Response string
	// RecipeList is the parsed name list (recipe_list mode only).
	RecipeList []string
	// Suggestions is the parsed record list (structured mode only).
	Suggestions []format.Suggestion
}

// Searcher is the slice of the index manager the pipeline needs.
// *index.Manager satisfies it; tests inject a fake.
type Searcher interface {
	// Search returns up to k documents relevant to query for the tenant,
	// closest first.
	Search(ctx context.Context, tenantID, query string, k int) ([]rag.Document, error)
}

// Config holds the dependencies and tuning for a Pipeline.
type Config struct {
	// Indexes serves nearest-document lookups.
	Indexes Searcher
	// Generator produces text from prompt pairs.
	Generator rag.Generator
	// Logger is the structured logger. If nil, slog.Default is used.
	Logger *slog.Logger
	// GenerateTimeout bounds each generation call. Defaults to 120s if zero.
	GenerateTimeout time.Duration
	// TopK overrides the retrieval breadth. Defaults to DefaultTopK if zero.
	TopK int
	// MaxContextTokens caps the estimated prompt size. Defaults to
	// budget.DefaultMaxContextTokens if zero.
	MaxContextTokens int
}

// Pipeline runs queries through the retrieval state machine. It is stateless
// between runs and safe for concurrent use.
type Pipeline struct {
	// indexes serves nearest-document lookups.
	indexes Searcher
	// generator produces the response text.
	generator rag.Generator
	// log is the structured logger for run events.
	log *slog.Logger
	// generateTimeout bounds each generation call.
	generateTimeout time.Duration
	// topK is the retrieval breadth.
	topK int
	// maxContextTokens caps the estimated prompt size.
	maxContextTokens int
}

// New constructs a Pipeline from the given config.
func New(cfg *Config) (*Pipeline, error) {
	if cfg == nil {
		return nil, fmt.Errorf("pipeline: config must not be nil")
	}
	if cfg.Indexes == nil {
		return nil, fmt.Errorf("pipeline: index searcher must not be nil")
	}
	if cfg.Generator == nil {
		return nil, fmt.Errorf("pipeline: generator must not be nil")
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	timeout := cfg.GenerateTimeout
	if timeout <= 0 {
		timeout = defaultGenerateTimeout
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	maxTokens := cfg.MaxContextTokens
	if maxTokens <= 0 {
		maxTokens = budget.DefaultMaxContextTokens
	}
	return &Pipeline{
		indexes:          cfg.Indexes,
		generator:        cfg.Generator,
		log:              log,
		generateTimeout:  timeout,
		topK:             topK,
		maxContextTokens: maxTokens,
	}, nil
}

// Run executes one query through the state machine and returns the final
// QueryState. Retrieval and generation failures abort the run with an error;
// formatting never fails (parse trouble surfaces as data in the result).
func (p *Pipeline) Run(ctx context.Context, query, tenantID string, mode prompts.Mode) (*QueryState, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("pipeline: unknown output mode %q", mode)
	}

	qs := &QueryState{Query: query, TenantID: tenantID, Mode: mode}

	for state := Next(StateStart, mode); ; state = Next(state, mode) {
		switch state {
		case StateRetrieve:
			if err := p.retrieve(ctx, qs); err != nil {
				return nil, err
			}
		case StateGenerate:
			if err := p.generate(ctx, qs); err != nil {
				return nil, err
			}
		case StateFormatList:
			qs.RecipeList = format.ParseList(qs.Response)
		case StateFormatStructured:
			qs.Suggestions = format.ParseStructured(qs.Response)
		case StateDone:
			return qs, nil
		}
	}
}

// retrieve fills qs.Documents and qs.Context from the tenant's index. The
// retrieved set is trimmed from the tail when the rendered prompt would
// exceed the context token budget.
func (p *Pipeline) retrieve(ctx context.Context, qs *QueryState) error {
	docs, err := p.indexes.Search(ctx, qs.TenantID, qs.Query, p.topK)
	if err != nil {
		return fmt.Errorf("pipeline: retrieval failed: %w", err)
	}

	pair := prompts.For(qs.Mode)
	reserved := budget.Estimate(pair.System) + budget.Estimate(pair.Template) + budget.Estimate(qs.Query)
	kept := budget.TrimDocuments(docs, reserved, p.maxContextTokens)
	if len(kept) < len(docs) {
		p.log.Warn("pipeline: trimmed retrieved context to fit token budget",
			slog.String("tenant_id", qs.TenantID),
			slog.Int("retrieved", len(docs)),
			slog.Int("kept", len(kept)),
		)
	}

	qs.Documents = kept
	qs.Context = buildContext(kept)

	p.log.Debug("pipeline: retrieved context",
		slog.String("tenant_id", qs.TenantID),
		slog.Int("documents", len(kept)),
	)
	return nil
}

// generate renders the mode's prompt pair and stores the generated text verbatim.
func (p *Pipeline) generate(ctx context.Context, qs *QueryState) error {
	pair := prompts.For(qs.Mode)
	userPrompt := pair.Render(qs.Context, qs.Query)

	genCtx, cancel := context.WithTimeout(ctx, p.generateTimeout)
	defer cancel()

	response, err := p.generator.Generate(genCtx, pair.System, userPrompt)
	if err != nil {
		return fmt.Errorf("pipeline: generation failed: %w", err)
	}
	qs.Response = response
	return nil
}

// buildContext joins one line per document in retrieval-rank order, or the
// empty-context sentinel when nothing was retrieved.
func buildContext(docs []rag.Document) string {
	if len(docs) == 0 {
		return emptyContext
	}
	lines := make([]string, len(docs))
	for i, doc := range docs {
		lines[i] = doc.Text
	}
	return strings.Join(lines, "\n")
}
