package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// ParamsFileName is the file persisting a dataset's parameters.
	ParamsFileName = "store-params.yaml"

	// FileModeMapped memory-maps data files.
	FileModeMapped = "mapped"
	// FileModeDirect uses plain reads and writes.
	FileModeDirect = "direct"

	// DefaultBlockSize is the block size for new datasets.
	DefaultBlockSize = 8 * 1024
	// DefaultReadCacheSize is the number of blocks cached for reads.
	DefaultReadCacheSize = 10000
	// DefaultWriteCacheSize is the number of blocks buffered for writes.
	DefaultWriteCacheSize = 2000
)

// Params are the store parameters of a dataset. Zero fields mean "unset".
type Params struct {
	BlockSize      int    `yaml:"block-size,omitempty"`
	ReadCacheSize  int    `yaml:"read-cache-size,omitempty"`
	WriteCacheSize int    `yaml:"write-cache-size,omitempty"`
	FileMode       string `yaml:"file-mode,omitempty"`
}

// DefaultParams returns the system defaults.
func DefaultParams() Params {
	return Params{
		BlockSize:      DefaultBlockSize,
		ReadCacheSize:  DefaultReadCacheSize,
		WriteCacheSize: DefaultWriteCacheSize,
		FileMode:       FileModeMapped,
	}
}

// WithDefaults fills unset fields from DefaultParams.
func (p Params) WithDefaults() Params {
	return Merge(p, DefaultParams())
}

// Validate checks that p is complete and consistent.
func (p Params) Validate() error {
	if p.BlockSize <= 0 || p.BlockSize&(p.BlockSize-1) != 0 {
		return fmt.Errorf("%w: block size %d must be a positive power of two", ErrInvalidParams, p.BlockSize)
	}
	if p.ReadCacheSize < 0 {
		return fmt.Errorf("%w: read cache size must be >= 0", ErrInvalidParams)
	}
	if p.WriteCacheSize < 0 {
		return fmt.Errorf("%w: write cache size must be >= 0", ErrInvalidParams)
	}
	switch p.FileMode {
	case FileModeMapped, FileModeDirect:
	default:
		return fmt.Errorf("%w: file mode %q (expected %q or %q)", ErrInvalidParams, p.FileMode, FileModeMapped, FileModeDirect)
	}
	return nil
}

// Merge returns persisted with any unset field filled from supplied. A value
// already present in persisted always wins.
func Merge(persisted, supplied Params) Params {
	out := persisted
	if out.BlockSize == 0 {
		out.BlockSize = supplied.BlockSize
	}
	if out.ReadCacheSize == 0 {
		out.ReadCacheSize = supplied.ReadCacheSize
	}
	if out.WriteCacheSize == 0 {
		out.WriteCacheSize = supplied.WriteCacheSize
	}
	if strings.TrimSpace(out.FileMode) == "" {
		out.FileMode = supplied.FileMode
	}
	return out
}

// ReadParams loads the persisted parameters in dir. The boolean is false when
// no parameters file exists.
func ReadParams(dir string) (Params, bool, error) {
	path := filepath.Join(dir, ParamsFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Params{}, false, nil
		}
		return Params{}, false, fmt.Errorf("store: read params %q: %w", path, err)
	}
	var p Params
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Params{}, false, fmt.Errorf("store: decode params %q: %w", path, err)
	}
	return p, true, nil
}

// WriteParams persists p in dir, replacing the file atomically.
func WriteParams(dir string, p Params) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("store: encode params: %w", err)
	}
	path := filepath.Join(dir, ParamsFileName)
	tmp, err := os.CreateTemp(dir, ParamsFileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("store: write params %q: %w", path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("store: write params %q: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("store: sync params %q: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store: close params %q: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store: rename params %q: %w", path, err)
	}
	return nil
}
