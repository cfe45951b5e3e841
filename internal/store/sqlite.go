// Package store persists uploaded schema definitions in an embedded SQLite
// database, so registered forms survive process restarts.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/formbridge/formbridge/internal/schema"
)

// SchemaStore is a Registry implementation backed by SQLite. Writes are
// linearized by the database; reads are concurrent under WAL.
type SchemaStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

var _ schema.Registry = (*SchemaStore)(nil)

// NewSchemaStore opens (or creates) the store under dataDir.
func NewSchemaStore(dataDir string, logger *slog.Logger) (*SchemaStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dataDir == "" {
		dataDir = "./data"
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "schemas.db")

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	const ddl = `CREATE TABLE IF NOT EXISTS schemas (
		key        TEXT PRIMARY KEY,
		definition TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`
	if _, err := db.Exec(ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schemas table: %w", err)
	}

	return &SchemaStore{db: db, path: dbPath, logger: logger}, nil
}

// Close closes the database connection.
func (s *SchemaStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *SchemaStore) Path() string {
	return s.path
}

// Put stores a definition under key, overwriting any previous one.
func (s *SchemaStore) Put(ctx context.Context, key string, def *schema.Definition) error {
	if key == "" {
		return fmt.Errorf("store: empty key")
	}
	if def == nil {
		return fmt.Errorf("store: nil definition for key %q", key)
	}
	doc, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("store: marshal definition: %w", err)
	}

	const q = `INSERT INTO schemas (key, definition, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET definition = excluded.definition, updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, q, key, string(doc), time.Now().UTC().Format(time.RFC3339)); err != nil {
		s.logger.Error("store.put_failed", "key", key, "error", err)
		return fmt.Errorf("store: put %q: %w", key, err)
	}
	s.logger.Info("store.put", "key", key, "fields", len(def.Fields))
	return nil
}

// Get loads and parses the definition stored under key.
func (s *SchemaStore) Get(ctx context.Context, key string) (*schema.Definition, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT definition FROM schemas WHERE key = ?`, key).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: key %q: %w", key, schema.ErrSchemaNotFound)
	}
	if err != nil {
		s.logger.Error("store.get_failed", "key", key, "error", err)
		return nil, fmt.Errorf("store: get %q: %w", key, err)
	}
	def, err := schema.ParseDefinition([]byte(doc))
	if err != nil {
		return nil, fmt.Errorf("store: stored definition for %q is corrupt: %w", key, err)
	}
	return def, nil
}

// Keys lists registered schema keys in lexical order.
func (s *SchemaStore) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM schemas ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("store: list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("store: scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
