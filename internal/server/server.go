// Package server implements the HTTP server that exposes the inventory RAG
// API: free-text inventory answers, recipe suggestions, and per-tenant index
// refresh. The server is started by the `pantryai serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/pantryai-go/internal/format"
	"github.com/54b3r/pantryai-go/internal/logging"
	"github.com/54b3r/pantryai-go/internal/prompts"

	"log/slog"
)

// New constructs a Server from the pipeline runner, index refresher, and config.
func New(runner queryRunner, refresher indexRefresher, cfg *Config) (*Server, error) {
	if runner == nil {
		return nil, fmt.Errorf("server: pipeline runner must not be nil")
	}
	if refresher == nil {
		return nil, fmt.Errorf("server: index refresher must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout must cover a full generation round-trip.
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	s := &Server{
		runner:    runner,
		refresher: refresher,
		cfg:       cfg,
		log:       log,
		pingers:   cfg.Pingers,
		metrics:   newServerMetrics(registry),
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, log)
	s.stopRL = stopRL

	if cfg.APIKey == "" {
		log.Warn("server: PANTRYAI_API_KEY not set — API authentication is disabled")
	}

	// protected wraps a query/refresh handler with instrumentation, the
	// per-IP rate limit, and Bearer auth (outermost).
	protected := func(name string, h http.HandlerFunc) http.Handler {
		return authMiddleware(cfg.APIKey, rl.middleware(s.instrument(name, h)))
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/rag", protected("rag", s.handleRag))
	mux.Handle("POST /api/rag/items", protected("rag_items", s.handleRagItems))
	mux.Handle("POST /api/rag/suggestions", protected("rag_suggestions", s.handleRagSuggestions))
	mux.Handle("POST /api/index/refresh", protected("index_refresh", s.handleRefresh))
	mux.Handle("GET /api/health", s.instrument("health", s.handleHealth))
	mux.Handle("GET /api/ready", s.instrument("ready", s.handleReady))
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(log, mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.stopRL()
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.stopRL()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// decodeQueryRequest decodes and validates the body shared by the three query
// endpoints. On failure it writes a 400 and returns false; no pipeline work
// happens for an invalid request.
func (s *Server) decodeQueryRequest(w http.ResponseWriter, r *http.Request) (ragRequest, bool) {
	var req ragRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return ragRequest{}, false
	}
	if req.Query == "" || req.TenantID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Missing required parameters"})
		return ragRequest{}, false
	}
	return req, true
}

// handleRag handles POST /api/rag: a free-text answer about the tenant's
// inventory. Pipeline failures surface as 500 — this is the one query
// endpoint that does not degrade.
func (s *Server) handleRag(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeQueryRequest(w, r)
	if !ok {
		return
	}

	start := time.Now()
	qs, err := s.runner.Run(r.Context(), req.Query, req.TenantID, prompts.ModeText)
	if err != nil {
		s.observeQuery(prompts.ModeText, "error", start)
		logging.FromContext(r.Context()).Error("rag query failed",
			slog.String("tenant_id", req.TenantID),
			slog.Any("error", err),
		)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	s.observeQuery(prompts.ModeText, "ok", start)

	writeJSON(w, http.StatusOK, textAnswerResponse{Answer: qs.Response})
}

// handleRagItems handles POST /api/rag/items: recipe names derived from the
// tenant's inventory. Pipeline failures degrade to a 200 whose answer list
// carries the error text, so list-consuming clients never see a 5xx.
func (s *Server) handleRagItems(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeQueryRequest(w, r)
	if !ok {
		return
	}

	start := time.Now()
	qs, err := s.runner.Run(r.Context(), req.Query, req.TenantID, prompts.ModeRecipeList)
	if err != nil {
		s.observeQuery(prompts.ModeRecipeList, "error", start)
		logging.FromContext(r.Context()).Error("recipe list query failed",
			slog.String("tenant_id", req.TenantID),
			slog.Any("error", err),
		)
		writeJSON(w, http.StatusOK, listAnswerResponse{
			Answer: []string{fmt.Sprintf("Error generating recipes: %v", err)},
		})
		return
	}
	s.observeQuery(prompts.ModeRecipeList, "ok", start)

	answer := qs.RecipeList
	if answer == nil {
		answer = []string{}
	}
	writeJSON(w, http.StatusOK, listAnswerResponse{Answer: answer})
}

// handleRagSuggestions handles POST /api/rag/suggestions: structured recipe
// suggestions. Pipeline failures degrade to a 200 with a single error-marker
// suggestion, matching the parse-failure shape.
func (s *Server) handleRagSuggestions(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeQueryRequest(w, r)
	if !ok {
		return
	}

	start := time.Now()
	qs, err := s.runner.Run(r.Context(), req.Query, req.TenantID, prompts.ModeStructured)
	if err != nil {
		s.observeQuery(prompts.ModeStructured, "error", start)
		logging.FromContext(r.Context()).Error("suggestions query failed",
			slog.String("tenant_id", req.TenantID),
			slog.Any("error", err),
		)
		writeJSON(w, http.StatusOK, map[string][]format.Suggestion{
			"suggestions": {{Error: err.Error()}},
		})
		return
	}
	s.observeQuery(prompts.ModeStructured, "ok", start)

	suggestions := qs.Suggestions
	if suggestions == nil {
		suggestions = []format.Suggestion{}
	}
	writeJSON(w, http.StatusOK, map[string][]format.Suggestion{"suggestions": suggestions})
}

// handleRefresh handles POST /api/index/refresh: unconditionally rebuilds the
// tenant's index. The refresher never fails; build errors come back in the
// result body with status "error".
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.TenantID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Missing required parameters"})
		return
	}

	result := s.refresher.Refresh(r.Context(), req.TenantID)
	s.metrics.indexRefreshTotal.WithLabelValues(string(result.Status)).Inc()

	writeJSON(w, http.StatusOK, result)
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// observeQuery records one completed query run in the RAG metrics.
func (s *Server) observeQuery(mode prompts.Mode, outcome string, start time.Time) {
	s.metrics.ragRequestsTotal.WithLabelValues(string(mode), outcome).Inc()
	s.metrics.ragDurationSeconds.WithLabelValues(string(mode)).Observe(time.Since(start).Seconds())
}

// writeJSON writes v as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // headers already sent
}
