package docstore

import (
	"context"
	"encoding/binary"
	"fmt"
)

// Envelope layout: a one-byte algorithm flag, then for compressed
// documents the little-endian uint32 uncompressed size, then the
// payload. The flag names the algorithm, so documents written under an
// earlier compression setting stay readable after a config change; the
// recorded size lets decompression allocate exactly once.
const (
	flagRaw = 0x00
	flagLZ4 = 0x01

	rawHeaderSize        = 1
	compressedHeaderSize = 1 + 4
)

// Store is the typed layer over a docstore backend. It encodes
// documents as CBOR and compresses them when the configured compressor
// actually shrinks the payload.
type Store struct {
	db         DB
	compressor Compressor
}

// Open opens the configured backend and returns a ready store.
func Open(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid docstore config: %w", err)
	}

	compressor, err := GetCompressor(cfg.Compression)
	if err != nil {
		return nil, err
	}

	db, err := OpenBackend(cfg)
	if err != nil {
		return nil, err
	}

	return &Store{db: db, compressor: compressor}, nil
}

// NewStore wraps an already-open backend. Used by tests and by callers
// managing the backend lifecycle themselves.
func NewStore(db DB, compressor Compressor) *Store {
	return &Store{db: db, compressor: compressor}
}

// Put encodes the document and writes it under the given key.
func (s *Store) Put(ctx context.Context, key string, doc interface{}) error {
	raw, err := MarshalDocument(doc)
	if err != nil {
		return err
	}
	return s.db.Put(ctx, []byte(key), seal(s.compressor, raw))
}

// Get reads the document stored under the given key and decodes it.
func (s *Store) Get(ctx context.Context, key string, doc interface{}) error {
	raw, err := s.GetRaw(ctx, key)
	if err != nil {
		return err
	}
	return UnmarshalDocument(raw, doc)
}

// GetRaw reads the document stored under the given key and returns its
// CBOR bytes, for callers streaming the document as-is.
func (s *Store) GetRaw(ctx context.Context, key string) ([]byte, error) {
	value, err := s.db.Get(ctx, []byte(key))
	if err != nil {
		return nil, err
	}
	return unseal(value)
}

// Has reports whether a document exists under the given key.
func (s *Store) Has(ctx context.Context, key string) (bool, error) {
	return s.db.Has(ctx, []byte(key))
}

// Delete removes the document stored under the given key.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.db.Delete(ctx, []byte(key))
}

// Close closes the underlying backend.
func (s *Store) Close() error {
	return s.db.Close()
}

// seal wraps raw document bytes in the storage envelope, compressed
// when that saves space.
func seal(compressor Compressor, raw []byte) []byte {
	compressed, err := compressor.Compress(raw)
	if err == nil && len(compressed) > 0 && len(compressed) < len(raw) {
		value := make([]byte, compressedHeaderSize+len(compressed))
		value[0] = flagLZ4
		binary.LittleEndian.PutUint32(value[1:5], uint32(len(raw)))
		copy(value[compressedHeaderSize:], compressed)
		return value
	}

	value := make([]byte, rawHeaderSize+len(raw))
	value[0] = flagRaw
	copy(value[rawHeaderSize:], raw)
	return value
}

// unseal unwraps the storage envelope back into raw document bytes.
// The algorithm comes from the envelope flag, not the configured
// compressor.
func unseal(value []byte) ([]byte, error) {
	if len(value) < rawHeaderSize {
		return nil, ErrCorruptDocument
	}

	switch value[0] {
	case flagRaw:
		raw := make([]byte, len(value)-rawHeaderSize)
		copy(raw, value[rawHeaderSize:])
		return raw, nil

	case flagLZ4:
		if len(value) < compressedHeaderSize {
			return nil, ErrCorruptDocument
		}
		size := binary.LittleEndian.Uint32(value[1:5])
		raw, err := (&LZ4Compressor{}).Decompress(value[compressedHeaderSize:], int(size))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptDocument, err)
		}
		return raw, nil

	default:
		return nil, ErrCorruptDocument
	}
}
