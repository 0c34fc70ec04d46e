package docstore

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// levelDB implements the DB interface on a goleveldb instance.
type levelDB struct {
	db     *leveldb.DB
	closed atomic.Bool
}

// syncWrites makes every put and delete durable before returning, so a
// document marked generated in postgres is guaranteed to be on disk.
var syncWrites = &opt.WriteOptions{Sync: true}

// newLevelDB opens a LevelDB backend at the configured path.
func newLevelDB(cfg Config) (DB, error) {
	db, err := leveldb.OpenFile(cfg.Path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open leveldb at %s: %w", cfg.Path, err)
	}
	return &levelDB{db: db}, nil
}

func (l *levelDB) Get(ctx context.Context, key []byte) ([]byte, error) {
	if l.closed.Load() {
		return nil, ErrClosed
	}

	value, err := l.db.Get(key, nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	return value, nil
}

func (l *levelDB) Put(ctx context.Context, key []byte, value []byte) error {
	if l.closed.Load() {
		return ErrClosed
	}
	return l.db.Put(key, value, syncWrites)
}

func (l *levelDB) Delete(ctx context.Context, key []byte) error {
	if l.closed.Load() {
		return ErrClosed
	}
	return l.db.Delete(key, syncWrites)
}

func (l *levelDB) Has(ctx context.Context, key []byte) (bool, error) {
	if l.closed.Load() {
		return false, ErrClosed
	}
	return l.db.Has(key, nil)
}

func (l *levelDB) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	return l.db.Close()
}
