// Package store provides SQLite-backed durable storage for per-tenant vector
// indexes. Each tenant owns a pair of artifacts — a packed vector blob and a
// JSON document list — written together in one transaction so neither is ever
// valid without the other. Rows carry an explicit format version so the
// on-disk layout can evolve and corrupt or stale rows are detected on load.
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/54b3r/pantryai-go/internal/rag"
)

// formatVersion is the current on-disk layout version. Rows written with a
// different version are discarded on load and the index is rebuilt from the
// data source.
const formatVersion = 1

// ErrNotFound is returned by Load when no persisted index exists for the
// tenant (or only half of the artifact pair exists).
var ErrNotFound = errors.New("store: tenant index not found")

// ErrCorrupt is returned by Load when persisted artifacts exist but cannot
// be decoded: version mismatch, blob length disagreeing with the recorded
// dimension and count, or malformed document JSON. Callers should treat it
// as absent and rebuild.
var ErrCorrupt = errors.New("store: tenant index corrupt")

// IndexStore is the durable storage contract for tenant index artifacts.
// Implementations must be safe for concurrent use.
type IndexStore interface {
	// Save atomically replaces both artifacts for the tenant.
	// vectors and docs must be parallel slices.
	Save(ctx context.Context, tenantID string, vectors [][]float32, docs []rag.Document) error
	// Load returns the persisted vectors and documents for the tenant.
	// Returns ErrNotFound when absent, ErrCorrupt when undecodable.
	Load(ctx context.Context, tenantID string) ([][]float32, []rag.Document, error)
	// Delete removes both artifacts for the tenant. Deleting an absent
	// tenant is not an error.
	Delete(ctx context.Context, tenantID string) error
	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is an IndexStore backed by a local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns the default path for the index database.
// It resolves to ~/.pantryai/indices.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".pantryai")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "indices.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS tenant_vectors (
    tenant_id      TEXT    PRIMARY KEY,
    format_version INTEGER NOT NULL,
    dimension      INTEGER NOT NULL,
    count          INTEGER NOT NULL,
    data           BLOB    NOT NULL,
    updated_at     INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE TABLE IF NOT EXISTS tenant_documents (
    tenant_id      TEXT    PRIMARY KEY,
    format_version INTEGER NOT NULL,
    data           BLOB    NOT NULL,
    updated_at     INTEGER NOT NULL
);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Save atomically replaces both artifacts for the tenant in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, tenantID string, vectors [][]float32, docs []rag.Document) error {
	if len(vectors) != len(docs) {
		return fmt.Errorf("store: save %s: %d vectors but %d documents", tenantID, len(vectors), len(docs))
	}

	dim := 0
	if len(vectors) > 0 {
		dim = len(vectors[0])
	}
	blob, err := packVectors(vectors, dim)
	if err != nil {
		return fmt.Errorf("store: save %s: %w", tenantID, err)
	}
	docJSON, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("store: save %s: marshal documents: %w", tenantID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: save %s: begin: %w", tenantID, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	now := time.Now().Unix()
	const upsertVectors = `
INSERT INTO tenant_vectors (tenant_id, format_version, dimension, count, data, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(tenant_id) DO UPDATE SET
    format_version = excluded.format_version,
    dimension      = excluded.dimension,
    count          = excluded.count,
    data           = excluded.data,
    updated_at     = excluded.updated_at`
	if _, err := tx.ExecContext(ctx, upsertVectors, tenantID, formatVersion, dim, len(vectors), blob, now); err != nil {
		return fmt.Errorf("store: save %s: vectors: %w", tenantID, err)
	}

	const upsertDocs = `
INSERT INTO tenant_documents (tenant_id, format_version, data, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(tenant_id) DO UPDATE SET
    format_version = excluded.format_version,
    data           = excluded.data,
    updated_at     = excluded.updated_at`
	if _, err := tx.ExecContext(ctx, upsertDocs, tenantID, formatVersion, docJSON, now); err != nil {
		return fmt.Errorf("store: save %s: documents: %w", tenantID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: save %s: commit: %w", tenantID, err)
	}
	return nil
}

// Load returns the persisted vectors and documents for the tenant.
func (s *SQLiteStore) Load(ctx context.Context, tenantID string) ([][]float32, []rag.Document, error) {
	var (
		vecVersion, dim, count int
		blob                   []byte
	)
	const selVectors = `SELECT format_version, dimension, count, data FROM tenant_vectors WHERE tenant_id = ?`
	err := s.db.QueryRowContext(ctx, selVectors, tenantID).Scan(&vecVersion, &dim, &count, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("store: load %s: vectors: %w", tenantID, err)
	}

	var (
		docVersion int
		docJSON    []byte
	)
	const selDocs = `SELECT format_version, data FROM tenant_documents WHERE tenant_id = ?`
	err = s.db.QueryRowContext(ctx, selDocs, tenantID).Scan(&docVersion, &docJSON)
	if errors.Is(err, sql.ErrNoRows) {
		// Half a pair is never valid.
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("store: load %s: documents: %w", tenantID, err)
	}

	if vecVersion != formatVersion || docVersion != formatVersion {
		return nil, nil, fmt.Errorf("store: load %s: format version %d/%d, want %d: %w",
			tenantID, vecVersion, docVersion, formatVersion, ErrCorrupt)
	}

	vectors, err := unpackVectors(blob, dim, count)
	if err != nil {
		return nil, nil, fmt.Errorf("store: load %s: %w", tenantID, err)
	}

	var docs []rag.Document
	if err := json.Unmarshal(docJSON, &docs); err != nil {
		return nil, nil, fmt.Errorf("store: load %s: document JSON undecodable: %w", tenantID, ErrCorrupt)
	}
	if len(docs) != len(vectors) {
		return nil, nil, fmt.Errorf("store: load %s: %d documents but %d vectors: %w",
			tenantID, len(docs), len(vectors), ErrCorrupt)
	}

	return vectors, docs, nil
}

// Delete removes both artifacts for the tenant in one transaction.
func (s *SQLiteStore) Delete(ctx context.Context, tenantID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: delete %s: begin: %w", tenantID, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM tenant_vectors WHERE tenant_id = ?`, tenantID); err != nil {
		return fmt.Errorf("store: delete %s: vectors: %w", tenantID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tenant_documents WHERE tenant_id = ?`, tenantID); err != nil {
		return fmt.Errorf("store: delete %s: documents: %w", tenantID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: delete %s: commit: %w", tenantID, err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}

// packVectors serializes vectors as little-endian float32s. Every vector must
// have the declared dimension.
func packVectors(vectors [][]float32, dim int) ([]byte, error) {
	buf := make([]byte, 0, len(vectors)*dim*4)
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("pack vectors: vector %d has dimension %d, want %d", i, len(v), dim)
		}
		for _, f := range v {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(f))
		}
	}
	return buf, nil
}

// unpackVectors deserializes a packed blob back into count vectors of the
// given dimension. A length mismatch means the blob does not match its
// recorded shape and is reported as ErrCorrupt.
func unpackVectors(blob []byte, dim, count int) ([][]float32, error) {
	if dim < 0 || count < 0 || len(blob) != dim*count*4 {
		return nil, fmt.Errorf("unpack vectors: blob length %d does not match %d×%d float32s: %w",
			len(blob), count, dim, ErrCorrupt)
	}
	vectors := make([][]float32, count)
	for i := 0; i < count; i++ {
		v := make([]float32, dim)
		for j := 0; j < dim; j++ {
			off := (i*dim + j) * 4
			v[j] = math.Float32frombits(binary.LittleEndian.Uint32(blob[off : off+4]))
		}
		vectors[i] = v
	}
	return vectors, nil
}
