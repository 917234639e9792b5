// Package index owns the per-tenant vector indexes: lazy build from the data
// source, durable persistence, in-memory caching, forced rebuild, and the
// per-tenant locking that keeps concurrent builds from racing. Readers always
// observe a complete index — a rebuild constructs the replacement fully
// before swapping it into the cache.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/54b3r/pantryai-go/internal/rag"
	"github.com/54b3r/pantryai-go/internal/store"
)

// defaultEmbedTimeout bounds each embedding call during a build. The
// embedding backend is treated as a data-access dependency; a timeout is
// reported the same way as an unreachable backend.
const defaultEmbedTimeout = 30 * time.Second

// TenantIndex is the per-tenant aggregate: the ordered document list, the
// parallel vector index, and the build timestamp. Documents[i] corresponds to
// vector i in Index at all times. A TenantIndex is immutable once visible;
// rebuilds replace the whole value.
type TenantIndex struct {
	// Documents is the ordered document list, aligned with Index.
	Documents []rag.Document
	// Index is the exact nearest-neighbor index over the document vectors.
	Index *rag.FlatIndex
	// BuiltAt records when this index was constructed.
	BuiltAt time.Time
}

// RefreshStatus is the outcome label of a forced rebuild.
type RefreshStatus string

const (
	// RefreshSuccess indicates the rebuild completed and was persisted.
	RefreshSuccess RefreshStatus = "success"
	// RefreshError indicates the rebuild failed; the previous index (if any)
	// remains in effect.
	RefreshError RefreshStatus = "error"
)

// RefreshResult reports the outcome of a forced rebuild. Failures are
// carried in the result rather than an error so callers always get a
// well-shaped report.
type RefreshResult struct {
	// Status is "success" or "error".
	Status RefreshStatus `json:"status"`
	// Message is a human-readable description of the outcome.
	Message string `json:"message"`
	// DocumentCount is the number of documents in the rebuilt index; zero on failure.
	DocumentCount int `json:"document_count"`
}

// Config holds the dependencies and tuning for a Manager.
type Config struct {
	// Source provides the raw tenant records.
	Source rag.DataSource
	// Embedder converts document texts to vectors.
	Embedder rag.Embedder
	// Store persists built indexes. Required.
	Store store.IndexStore
	// Logger is the structured logger. If nil, slog.Default is used.
	Logger *slog.Logger
	// EmbedTimeout bounds each embedding call. Defaults to 30s if zero.
	EmbedTimeout time.Duration
}

// Manager caches one TenantIndex per tenant, building lazily on first access
// and rebuilding on demand. All methods are safe for concurrent use; builds
// for the same tenant are serialized while different tenants proceed
// independently.
type Manager struct {
	// source provides the raw tenant records.
	source rag.DataSource
	// embedder converts texts to vectors.
	embedder rag.Embedder
	// store persists built indexes across restarts.
	store store.IndexStore
	// log is the structured logger for build events.
	log *slog.Logger
	// embedTimeout bounds each embedding call.
	embedTimeout time.Duration

	// mu guards cache.
	mu sync.RWMutex
	// cache maps tenant id to its current complete index.
	cache map[string]*TenantIndex

	// locksMu guards locks. Held only long enough to fetch a tenant's
	// mutex — never across a build — so tenants do not contend.
	locksMu sync.Mutex
	// locks holds one build mutex per tenant id.
	locks map[string]*sync.Mutex
}

// NewManager constructs a Manager from the given config.
func NewManager(cfg *Config) (*Manager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("index: config must not be nil")
	}
	if cfg.Source == nil {
		return nil, fmt.Errorf("index: data source must not be nil")
	}
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("index: embedder must not be nil")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("index: store must not be nil")
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	timeout := cfg.EmbedTimeout
	if timeout <= 0 {
		timeout = defaultEmbedTimeout
	}
	return &Manager{
		source:       cfg.Source,
		embedder:     cfg.Embedder,
		store:        cfg.Store,
		log:          log,
		embedTimeout: timeout,
		cache:        make(map[string]*TenantIndex),
		locks:        make(map[string]*sync.Mutex),
	}, nil
}

// tenantLock returns the build mutex for the given tenant, creating it on
// first use.
func (m *Manager) tenantLock(tenantID string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	l, ok := m.locks[tenantID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[tenantID] = l
	}
	return l
}

// cached returns the tenant's current index from the in-memory cache.
func (m *Manager) cached(tenantID string) (*TenantIndex, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ti, ok := m.cache[tenantID]
	return ti, ok
}

// swap atomically replaces the cached index for the tenant.
func (m *Manager) swap(tenantID string, ti *TenantIndex) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache[tenantID] = ti
}

// Get returns the tenant's index, loading it from durable storage or building
// it from the data source as needed. It never returns an error for a tenant
// with zero records, and degrades to an empty index when the data source or
// embedder is unavailable — queries proceed against no context rather than
// failing.
func (m *Manager) Get(ctx context.Context, tenantID string) *TenantIndex {
	if ti, ok := m.cached(tenantID); ok {
		return ti
	}

	lock := m.tenantLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	// Another goroutine may have completed the build while we waited.
	if ti, ok := m.cached(tenantID); ok {
		return ti
	}

	if ti := m.loadFromStore(ctx, tenantID); ti != nil {
		m.swap(tenantID, ti)
		return ti
	}

	ti, err := m.build(ctx, tenantID)
	if err != nil {
		m.log.Warn("index: build failed, serving empty index",
			slog.String("tenant_id", tenantID),
			slog.Any("error", err),
		)
		// Not cached: the next Get retries the build.
		return &TenantIndex{Index: rag.NewFlatIndex(nil), BuiltAt: time.Now()}
	}

	m.swap(tenantID, ti)
	return ti
}

// Refresh unconditionally rebuilds the tenant's index from the data source,
// replacing both the cached and durable copies. Failures are reported in the
// result; the previous index stays visible until a rebuild succeeds.
func (m *Manager) Refresh(ctx context.Context, tenantID string) RefreshResult {
	lock := m.tenantLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	ti, err := m.build(ctx, tenantID)
	if err != nil {
		m.log.Warn("index: refresh failed",
			slog.String("tenant_id", tenantID),
			slog.Any("error", err),
		)
		return RefreshResult{
			Status:  RefreshError,
			Message: fmt.Sprintf("Failed to refresh index: %v", err),
		}
	}

	m.swap(tenantID, ti)
	m.log.Info("index: refreshed",
		slog.String("tenant_id", tenantID),
		slog.Int("documents", len(ti.Documents)),
	)
	return RefreshResult{
		Status:        RefreshSuccess,
		Message:       "Index refreshed successfully",
		DocumentCount: len(ti.Documents),
	}
}

// Search returns up to k documents most relevant to the query for the tenant,
// closest first. The query is embedded with the same backend used at build
// time so distances are comparable.
func (m *Manager) Search(ctx context.Context, tenantID, query string, k int) ([]rag.Document, error) {
	ti := m.Get(ctx, tenantID)
	if ti.Index.Len() == 0 {
		return nil, nil
	}

	embedCtx, cancel := context.WithTimeout(ctx, m.embedTimeout)
	defer cancel()
	embeddings, err := m.embedder.Embed(embedCtx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("index: embedding query failed: %w", err)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("index: embedder returned empty result for query")
	}

	hits := ti.Index.Search(embeddings[0], k)
	docs := make([]rag.Document, 0, len(hits))
	for _, i := range hits {
		docs = append(docs, ti.Documents[i])
	}
	return docs, nil
}

// loadFromStore attempts to restore the tenant's index from durable storage.
// Returns nil when absent or undecodable; corrupt artifacts are logged and
// the caller falls through to a fresh build.
func (m *Manager) loadFromStore(ctx context.Context, tenantID string) *TenantIndex {
	vectors, docs, err := m.store.Load(ctx, tenantID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			m.log.Warn("index: discarding persisted index",
				slog.String("tenant_id", tenantID),
				slog.Any("error", err),
			)
		}
		return nil
	}
	return &TenantIndex{
		Documents: docs,
		Index:     rag.NewFlatIndex(vectors),
		BuiltAt:   time.Now(),
	}
}

// build fetches the tenant's records, normalizes them, embeds the document
// texts in one batched call, persists the artifacts, and returns the new
// index. The caller must hold the tenant's build lock.
func (m *Manager) build(ctx context.Context, tenantID string) (*TenantIndex, error) {
	records, err := m.source.Fetch(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("index: fetching records for %s: %w", tenantID, err)
	}

	if len(records) == 0 {
		// No records: skip embedding entirely and persist an explicit empty marker.
		if err := m.store.Save(ctx, tenantID, nil, nil); err != nil {
			m.log.Warn("index: persisting empty index failed",
				slog.String("tenant_id", tenantID),
				slog.Any("error", err),
			)
		}
		return &TenantIndex{Index: rag.NewFlatIndex(nil), BuiltAt: time.Now()}, nil
	}

	docs := make([]rag.Document, 0, len(records))
	texts := make([]string, 0, len(records))
	for _, rec := range records {
		doc := rag.NewDocument(rec)
		docs = append(docs, doc)
		texts = append(texts, doc.Text)
	}

	embedCtx, cancel := context.WithTimeout(ctx, m.embedTimeout)
	defer cancel()
	vectors, err := m.embedder.Embed(embedCtx, texts)
	if err != nil {
		return nil, fmt.Errorf("index: embedding %d documents for %s: %w", len(texts), tenantID, err)
	}
	if len(vectors) != len(docs) {
		return nil, fmt.Errorf("index: expected %d embeddings for %s, got %d", len(docs), tenantID, len(vectors))
	}

	// Persist before the in-memory swap so a crash never leaves the cache
	// ahead of disk.
	if err := m.store.Save(ctx, tenantID, vectors, docs); err != nil {
		return nil, fmt.Errorf("index: persisting index for %s: %w", tenantID, err)
	}

	return &TenantIndex{
		Documents: docs,
		Index:     rag.NewFlatIndex(vectors),
		BuiltAt:   time.Now(),
	}, nil
}
