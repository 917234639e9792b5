package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/pantryai-go/internal/index"
	"github.com/54b3r/pantryai-go/internal/pipeline"
	"github.com/54b3r/pantryai-go/internal/prompts"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	// Must cover a full generation round-trip.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, slog.Default is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// Registry receives the server's Prometheus metrics and backs GET /metrics.
	// If nil, a private registry is created.
	Registry *prometheus.Registry
}

// queryRunner is the interface the query handlers call to execute one
// retrieval run. *pipeline.Pipeline satisfies it; tests inject a fake.
type queryRunner interface {
	Run(ctx context.Context, query, tenantID string, mode prompts.Mode) (*pipeline.QueryState, error)
}

// indexRefresher is the interface the refresh handler calls.
// *index.Manager satisfies it; tests inject a fake.
type indexRefresher interface {
	Refresh(ctx context.Context, tenantID string) index.RefreshResult
}

// Server is the HTTP server exposing the inventory RAG API.
type Server struct {
	// runner executes retrieval pipeline runs for the query endpoints.
	runner queryRunner
	// refresher rebuilds tenant indices for POST /api/index/refresh.
	refresher indexRefresher
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus instruments owned by this server.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// ragRequest is the JSON body for the three POST query endpoints.
type ragRequest struct {
	// Query is the tenant's natural language question.
	Query string `json:"query"`
	// TenantID identifies whose inventory index is consulted.
	TenantID string `json:"tenant_id"`
}

// refreshRequest is the JSON body for POST /api/index/refresh.
type refreshRequest struct {
	// TenantID identifies whose index to rebuild.
	TenantID string `json:"tenant_id"`
}

// textAnswerResponse is the JSON response for POST /api/rag.
type textAnswerResponse struct {
	// Answer is the generated free-text answer.
	Answer string `json:"answer"`
}

// listAnswerResponse is the JSON response for POST /api/rag/items.
type listAnswerResponse struct {
	// Answer is the parsed list of recipe names.
	Answer []string `json:"answer"`
}

// errorResponse is the JSON error body for 4xx/5xx responses.
type errorResponse struct {
	// Error is the human-readable failure message.
	Error string `json:"error"`
}
