package schema

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrSchemaNotFound is returned by Registry.Get for unknown keys. It is the
// only error in the engine that is fatal to a whole extraction request.
var ErrSchemaNotFound = errors.New("schema not found")

// Registry stores uploaded schema definitions by key. Definitions are
// immutable once published; Put is last-writer-wins with no versioning.
type Registry interface {
	Put(ctx context.Context, key string, def *Definition) error
	Get(ctx context.Context, key string) (*Definition, error)
}

type memoryRegistry struct {
	mu      sync.RWMutex
	schemas map[string]*Definition
	logger  *slog.Logger
}

// NewMemoryRegistry returns a process-lifetime in-memory registry. Reads on
// different keys never block each other; same-key writes are linearized by
// the write lock.
func NewMemoryRegistry(logger *slog.Logger) Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &memoryRegistry{
		schemas: make(map[string]*Definition),
		logger:  logger,
	}
}

func (r *memoryRegistry) Put(_ context.Context, key string, def *Definition) error {
	if key == "" {
		return fmt.Errorf("registry: empty key")
	}
	if def == nil {
		return fmt.Errorf("registry: nil definition for key %q", key)
	}
	r.mu.Lock()
	_, overwrote := r.schemas[key]
	r.schemas[key] = def
	r.mu.Unlock()

	r.logger.Info("registry.put", "key", key, "fields", len(def.Fields), "overwrote", overwrote)
	return nil
}

func (r *memoryRegistry) Get(_ context.Context, key string) (*Definition, error) {
	r.mu.RLock()
	def, ok := r.schemas[key]
	r.mu.RUnlock()
	if !ok {
		r.logger.Warn("registry.miss", "key", key)
		return nil, fmt.Errorf("registry: key %q: %w", key, ErrSchemaNotFound)
	}
	return def, nil
}
