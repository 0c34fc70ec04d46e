package docstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/bloom"
)

// pebbleDB implements the DB interface on a PebbleDB instance.
type pebbleDB struct {
	db     *pebble.DB
	closed atomic.Bool
}

// newPebbleDB opens a PebbleDB backend at the configured path.
func newPebbleDB(cfg Config) (DB, error) {
	if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", cfg.Path, err)
	}

	opts := &pebble.Options{
		Cache:  pebble.NewCache(32 << 20),
		Levels: make([]pebble.LevelOptions, 7),
	}
	for i := range opts.Levels {
		opts.Levels[i] = pebble.LevelOptions{
			FilterPolicy: bloom.FilterPolicy(10),
			FilterType:   pebble.TableFilter,
			// The store compresses documents itself.
			Compression: pebble.NoCompression,
		}
	}

	db, err := pebble.Open(cfg.Path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", cfg.Path, err)
	}

	return &pebbleDB{db: db}, nil
}

func (p *pebbleDB) Get(ctx context.Context, key []byte) ([]byte, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}

	value, closer, err := p.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	defer closer.Close()

	// The slice is only valid until the closer is released.
	result := make([]byte, len(value))
	copy(result, value)
	return result, nil
}

func (p *pebbleDB) Put(ctx context.Context, key []byte, value []byte) error {
	if p.closed.Load() {
		return ErrClosed
	}
	return p.db.Set(key, value, pebble.Sync)
}

func (p *pebbleDB) Delete(ctx context.Context, key []byte) error {
	if p.closed.Load() {
		return ErrClosed
	}
	return p.db.Delete(key, pebble.Sync)
}

func (p *pebbleDB) Has(ctx context.Context, key []byte) (bool, error) {
	if p.closed.Load() {
		return false, ErrClosed
	}

	_, closer, err := p.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	closer.Close()
	return true, nil
}

func (p *pebbleDB) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	return p.db.Close()
}
