package docstore

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testDoc struct {
	OrderID int64    `json:"order_id"`
	Name    string   `json:"name"`
	Lines   []string `json:"lines"`
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()

	for _, backend := range []string{"pebble", "leveldb", "bbolt"} {
		for _, compression := range []string{"none", "lz4"} {
			t.Run(backend+"/"+compression, func(t *testing.T) {
				store, err := Open(Config{
					Backend:     backend,
					Path:        t.TempDir(),
					Compression: compression,
				})
				require.NoError(t, err)
				defer store.Close()

				doc := testDoc{
					OrderID: 42,
					Name:    "receipt",
					Lines:   []string{"Helles 0.5l", "Pfand"},
				}
				require.NoError(t, store.Put(ctx, "bon/42", doc))

				ok, err := store.Has(ctx, "bon/42")
				require.NoError(t, err)
				assert.True(t, ok)

				var got testDoc
				require.NoError(t, store.Get(ctx, "bon/42", &got))
				assert.Equal(t, doc, got)

				raw, err := store.GetRaw(ctx, "bon/42")
				require.NoError(t, err)
				var fromRaw testDoc
				require.NoError(t, UnmarshalDocument(raw, &fromRaw))
				assert.Equal(t, doc, fromRaw)

				require.NoError(t, store.Delete(ctx, "bon/42"))
				err = store.Get(ctx, "bon/42", &got)
				assert.ErrorIs(t, err, ErrKeyNotFound)

				ok, err = store.Has(ctx, "bon/42")
				require.NoError(t, err)
				assert.False(t, ok)
			})
		}
	}
}

func TestStoreClosed(t *testing.T) {
	ctx := context.Background()

	store, err := Open(Config{Backend: "pebble", Path: t.TempDir(), Compression: "none"})
	require.NoError(t, err)
	require.NoError(t, store.Close())
	// Closing twice is a no-op.
	require.NoError(t, store.Close())

	assert.ErrorIs(t, store.Put(ctx, "k", testDoc{}), ErrClosed)
	assert.ErrorIs(t, store.Get(ctx, "k", &testDoc{}), ErrClosed)
	assert.ErrorIs(t, store.Delete(ctx, "k"), ErrClosed)
	_, err = store.Has(ctx, "k")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open(Config{Backend: "redis", Path: t.TempDir(), Compression: "none"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown docstore backend")
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Error(t, Config{Backend: "", Path: "p", Compression: "none"}.Validate())
	assert.Error(t, Config{Backend: "pebble", Path: "", Compression: "none"}.Validate())
	assert.Error(t, Config{Backend: "pebble", Path: "p", Compression: "zstd"}.Validate())
}

func TestSealCompressible(t *testing.T) {
	lz4c, err := GetCompressor("lz4")
	require.NoError(t, err)

	raw := []byte(strings.Repeat("bon document payload ", 200))
	sealed := seal(lz4c, raw)
	require.Equal(t, byte(flagLZ4), sealed[0])
	assert.Less(t, len(sealed), len(raw))

	got, err := unseal(sealed)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(raw, got))
}

func TestSealIncompressible(t *testing.T) {
	lz4c, err := GetCompressor("lz4")
	require.NoError(t, err)

	// Too short for LZ4 to win; must be stored raw.
	raw := []byte{0x01, 0x02, 0x03}
	sealed := seal(lz4c, raw)
	require.Equal(t, byte(flagRaw), sealed[0])

	got, err := unseal(sealed)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(raw, got))
}

func TestSealNoCompression(t *testing.T) {
	nonec, err := GetCompressor("none")
	require.NoError(t, err)

	raw := []byte(strings.Repeat("x", 4096))
	sealed := seal(nonec, raw)
	require.Equal(t, byte(flagRaw), sealed[0])
	assert.Len(t, sealed, len(raw)+rawHeaderSize)
}

func TestLZ4DocumentsReadableWithoutCompression(t *testing.T) {
	ctx := context.Background()
	path := t.TempDir()

	doc := testDoc{OrderID: 7, Name: strings.Repeat("compressible ", 100)}

	store, err := Open(Config{Backend: "leveldb", Path: path, Compression: "lz4"})
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "bon/7", doc))
	require.NoError(t, store.Close())

	// Reopen with compression disabled; old documents must still read.
	store, err = Open(Config{Backend: "leveldb", Path: path, Compression: "none"})
	require.NoError(t, err)
	defer store.Close()

	var got testDoc
	require.NoError(t, store.Get(ctx, "bon/7", &got))
	assert.Equal(t, doc, got)
}

func TestUnsealCorrupt(t *testing.T) {
	_, err := unseal(nil)
	assert.ErrorIs(t, err, ErrCorruptDocument)

	_, err = unseal([]byte{0xFF, 0x01})
	assert.ErrorIs(t, err, ErrCorruptDocument)

	// Compressed flag without the size header.
	_, err = unseal([]byte{flagLZ4, 0x01})
	assert.ErrorIs(t, err, ErrCorruptDocument)
}

func TestMarshalDocumentStable(t *testing.T) {
	doc := testDoc{OrderID: 1, Name: "a", Lines: []string{"x", "y"}}

	first, err := MarshalDocument(doc)
	require.NoError(t, err)
	second, err := MarshalDocument(doc)
	require.NoError(t, err)

	// Canonical CBOR keeps identical documents byte-identical.
	assert.True(t, bytes.Equal(first, second))
}
