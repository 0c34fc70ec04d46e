// Package docstore persists rendered receipt documents in a local
// key-value store. Documents are CBOR-encoded, optionally compressed,
// and keyed by a caller-chosen string such as "bon/<order_id>". Three
// backends are supported, pebble, leveldb and bbolt, selected by
// configuration.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrClosed is returned when operating on a closed store.
	ErrClosed = errors.New("docstore is closed")

	// ErrKeyNotFound is returned when a key does not exist.
	ErrKeyNotFound = errors.New("key not found")

	// ErrCorruptDocument is returned when a stored envelope cannot be
	// decoded.
	ErrCorruptDocument = errors.New("corrupt document")
)

// DB defines the basic operations any docstore backend must support.
type DB interface {
	Get(ctx context.Context, key []byte) ([]byte, error)
	Put(ctx context.Context, key []byte, value []byte) error
	Delete(ctx context.Context, key []byte) error
	Has(ctx context.Context, key []byte) (bool, error)
	Close() error
}

// BackendFactory is a function that creates a new backend instance.
type BackendFactory func(cfg Config) (DB, error)

var (
	backendMu        sync.RWMutex
	backendFactories = make(map[string]BackendFactory)
)

// RegisterBackend registers a backend factory with the given name.
func RegisterBackend(name string, factory BackendFactory) {
	backendMu.Lock()
	defer backendMu.Unlock()
	backendFactories[name] = factory
}

// OpenBackend creates a backend instance for the configured name.
func OpenBackend(cfg Config) (DB, error) {
	backendMu.RLock()
	factory, ok := backendFactories[cfg.Backend]
	backendMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown docstore backend: %s", cfg.Backend)
	}

	return factory(cfg)
}

// AvailableBackends returns a list of registered backend names.
func AvailableBackends() []string {
	backendMu.RLock()
	defer backendMu.RUnlock()

	names := make([]string, 0, len(backendFactories))
	for name := range backendFactories {
		names = append(names, name)
	}
	return names
}

// init registers the built-in backends.
func init() {
	RegisterBackend("pebble", newPebbleDB)
	RegisterBackend("leveldb", newLevelDB)
	RegisterBackend("bbolt", newBoltDB)
}
