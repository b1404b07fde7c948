// Package cache persists analysed demos on disk, keyed by content
// fingerprint. Entries are msgpack-encoded and snappy-compressed, one
// file per demo, so repeat requests for a file that has already been
// analysed cost a single read.
package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/golang/snappy"
	"github.com/vmihailenco/msgpack/v5"

	"demolens/model"
)

// ErrNotFound reports a cache miss. Callers treat it as the expected
// cold path rather than a failure worth logging.
var ErrNotFound = errors.New("analysed demo not in cache")

const entryExt = ".bin"

// Cache is a write-through store of analysed demos under a single
// directory. Concurrent writers for distinct keys never collide;
// writers racing on the same key write identical bytes.
type Cache struct {
	dir string
}

// New returns a cache rooted at dir. The directory is created lazily
// on first store.
func New(dir string) *Cache {
	return &Cache{dir: dir}
}

// DefaultDir is the per-user location for analysed demos.
func DefaultDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config directory: %w", err)
	}
	return filepath.Join(base, "demolens", "analysed_demos"), nil
}

// Dir reports the cache's root directory.
func (c *Cache) Dir() string { return c.dir }

func (c *Cache) entryPath(key model.CacheKey) string {
	return filepath.Join(c.dir, key.Hex()+entryExt)
}

// Load reads the entry for key. A missing entry yields ErrNotFound;
// anything else (IO failure, corrupt entry) is a distinct error, since
// a crash mid-store can leave a truncated file behind.
func (c *Cache) Load(key model.CacheKey) (*model.AnalysedDemo, error) {
	compressed, err := os.ReadFile(c.entryPath(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key.Hex())
		}
		return nil, fmt.Errorf("read cache entry %s: %w", key.Hex(), err)
	}

	raw, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, fmt.Errorf("decompress cache entry %s: %w", key.Hex(), err)
	}

	var demo model.AnalysedDemo
	if err := msgpack.Unmarshal(raw, &demo); err != nil {
		return nil, fmt.Errorf("decode cache entry %s: %w", key.Hex(), err)
	}
	return &demo, nil
}

// Exists probes for an entry without decoding it.
func (c *Cache) Exists(key model.CacheKey) bool {
	_, err := os.Stat(c.entryPath(key))
	return err == nil
}

// Store writes the entry for key, creating the cache directory if
// needed. The write is not atomic; a torn entry surfaces as a decode
// error on a later Load and is re-analysed then.
func (c *Cache) Store(key model.CacheKey, demo *model.AnalysedDemo) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}

	raw, err := msgpack.Marshal(demo)
	if err != nil {
		return fmt.Errorf("encode analysed demo: %w", err)
	}

	if err := os.WriteFile(c.entryPath(key), snappy.Encode(nil, raw), 0o644); err != nil {
		return fmt.Errorf("write cache entry %s: %w", key.Hex(), err)
	}
	return nil
}
