package docstore

import (
	"fmt"
	"sync"

	"github.com/pierrec/lz4"
)

// Compressor defines the interface for document compression algorithms.
// The stored envelope records the uncompressed size, so Decompress is
// handed the exact output size instead of guessing buffers.
type Compressor interface {
	// Name returns the name of the compression algorithm.
	Name() string

	// Compress compresses the input data. Returning an empty slice
	// means the data is not compressible and must be stored raw.
	Compress(data []byte) ([]byte, error)

	// Decompress decompresses the input data into a buffer of the
	// given original size.
	Decompress(data []byte, size int) ([]byte, error)
}

// CompressorFactory is a function that creates a new compressor
// instance.
type CompressorFactory func() Compressor

var (
	compressorMu sync.RWMutex
	compressors  = make(map[string]CompressorFactory)
)

// RegisterCompressor registers a compressor factory with the given
// name.
func RegisterCompressor(name string, factory CompressorFactory) {
	compressorMu.Lock()
	defer compressorMu.Unlock()
	compressors[name] = factory
}

// GetCompressor returns a new compressor instance for the given name.
func GetCompressor(name string) (Compressor, error) {
	compressorMu.RLock()
	factory, ok := compressors[name]
	compressorMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown compressor: %s", name)
	}

	return factory(), nil
}

// IsCompressorAvailable checks if a compressor with the given name is
// available.
func IsCompressorAvailable(name string) bool {
	compressorMu.RLock()
	_, ok := compressors[name]
	compressorMu.RUnlock()
	return ok
}

// init registers the built-in compressors.
func init() {
	RegisterCompressor("none", func() Compressor { return &NoCompressor{} })
	RegisterCompressor("lz4", func() Compressor { return &LZ4Compressor{} })
}

// NoCompressor implements a pass-through compressor that never
// compresses data. The store then writes every document raw.
type NoCompressor struct{}

// Name returns the name of the compressor.
func (c *NoCompressor) Name() string {
	return "none"
}

// Compress reports the data as not compressible.
func (c *NoCompressor) Compress(data []byte) ([]byte, error) {
	return nil, nil
}

// Decompress returns the data unchanged.
func (c *NoCompressor) Decompress(data []byte, size int) ([]byte, error) {
	result := make([]byte, len(data))
	copy(result, data)
	return result, nil
}

// LZ4Compressor implements LZ4 block compression.
type LZ4Compressor struct{}

// Name returns the name of the compressor.
func (c *LZ4Compressor) Name() string {
	return "lz4"
}

// Compress compresses data using an LZ4 block. An empty result means
// LZ4 found the data incompressible.
func (c *LZ4Compressor) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	compressed := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := lz4.CompressBlock(data, compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compression failed: %w", err)
	}

	// n == 0 is how CompressBlock reports incompressible input.
	return compressed[:n], nil
}

// Decompress decompresses an LZ4 block of the given original size.
func (c *LZ4Compressor) Decompress(data []byte, size int) ([]byte, error) {
	if size == 0 {
		return []byte{}, nil
	}

	decompressed := make([]byte, size)
	n, err := lz4.UncompressBlock(data, decompressed)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompression failed: %w", err)
	}
	return decompressed[:n], nil
}
