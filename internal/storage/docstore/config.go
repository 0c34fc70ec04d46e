package docstore

import "errors"

// Config holds configuration options for the document store.
type Config struct {
	// Backend selects the storage backend, "pebble", "leveldb" or
	// "bbolt".
	Backend string `json:"backend" yaml:"backend"`

	// Path is the file system directory for the backend files.
	Path string `json:"path" yaml:"path"`

	// Compression selects the document compressor, "lz4" or "none".
	Compression string `json:"compression" yaml:"compression"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:     "pebble",
		Path:        "./bon",
		Compression: "lz4",
	}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.Backend == "" {
		return errors.New("backend must be specified")
	}
	if c.Path == "" {
		return errors.New("path must be specified")
	}
	if c.Compression == "" {
		return errors.New("compression must be specified")
	}
	if !IsCompressorAvailable(c.Compression) {
		return errors.New("unknown compressor: " + c.Compression)
	}
	return nil
}
