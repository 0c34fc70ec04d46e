package docstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"go.etcd.io/bbolt"
)

// documentsBucket holds every stored document. A single bucket is
// enough, keys already carry their namespace prefix.
var documentsBucket = []byte("documents")

// boltDB implements the DB interface on a bbolt file. Unlike the LSM
// backends it is a single mmap'd file, which suits small festivals
// that run the daemon on one box without a separate data directory.
type boltDB struct {
	db     *bbolt.DB
	closed atomic.Bool
}

// newBoltDB opens a bbolt backend inside the configured directory.
func newBoltDB(cfg Config) (DB, error) {
	if err := os.MkdirAll(cfg.Path, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create docstore directory %s: %w", cfg.Path, err)
	}
	db, err := bbolt.Open(filepath.Join(cfg.Path, "docstore.db"), 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt at %s: %w", cfg.Path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(documentsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create documents bucket: %w", err)
	}
	return &boltDB{db: db}, nil
}

func (b *boltDB) Get(ctx context.Context, key []byte) ([]byte, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}

	var value []byte
	err := b.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(documentsBucket).Get(key)
		if v == nil {
			return ErrKeyNotFound
		}
		// bbolt values are only valid inside the transaction.
		value = make([]byte, len(v))
		copy(value, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (b *boltDB) Put(ctx context.Context, key []byte, value []byte) error {
	if b.closed.Load() {
		return ErrClosed
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(documentsBucket).Put(key, value)
	})
}

func (b *boltDB) Delete(ctx context.Context, key []byte) error {
	if b.closed.Load() {
		return ErrClosed
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(documentsBucket).Delete(key)
	})
}

func (b *boltDB) Has(ctx context.Context, key []byte) (bool, error) {
	if b.closed.Load() {
		return false, ErrClosed
	}
	var found bool
	err := b.db.View(func(tx *bbolt.Tx) error {
		found = tx.Bucket(documentsBucket).Get(key) != nil
		return nil
	})
	return found, err
}

func (b *boltDB) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	return b.db.Close()
}
