// Package thumbs caches one preview image per download, keyed by the
// record id. Extraction is delegated to an external collaborator and
// happens at most once per key; every later read is a cache hit.
package thumbs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mediafetch/mediafetch/internal/storage"
)

const (
	dirPerm  = 0755
	filePerm = 0644
)

// Extractor produces a preview image from a finished media file.
type Extractor interface {
	// ExtractEmbedded pulls embedded cover art (audio files) into dstPath.
	ExtractEmbedded(ctx context.Context, mediaPath, dstPath string) error
	// ExtractFrame grabs the frame at atSeconds (video files) into dstPath.
	ExtractFrame(ctx context.Context, mediaPath string, atSeconds float64, dstPath string) error
}

// Cache is an id-keyed directory of JPEG previews. Writes are
// first-write-wins; entries are only removed by explicit invalidation.
type Cache struct {
	dir       string
	extractor Extractor

	mu sync.Mutex
}

func NewCache(dir string, extractor Extractor) (*Cache, error) {
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create thumbnail cache dir: %w", err)
	}

	return &Cache{dir: dir, extractor: extractor}, nil
}

// Key returns the cache key for a record: the id, or the filename stem
// when the id is empty.
func Key(id, filePath string) string {
	if id != "" {
		return id
	}

	base := filepath.Base(filePath)

	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Get returns the cached image path for key, if present.
func (c *Cache) Get(key string) (string, bool) {
	path := c.entryPath(key)
	if _, err := os.Stat(path); err != nil {
		return "", false
	}

	return path, true
}

// Put copies imagePath into the cache under key. A no-op when an entry
// already exists, so calling it twice observes the same result as once.
func (c *Cache) Put(key, imagePath string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	dst := c.entryPath(key)
	if _, err := os.Stat(dst); err == nil {
		return nil
	}

	src, err := os.Open(imagePath)
	if err != nil {
		return fmt.Errorf("failed to open thumbnail source: %w", err)
	}
	defer src.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, filePerm)
	if err != nil {
		return fmt.Errorf("failed to create cache entry: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, src); err != nil {
		os.Remove(dst)

		return fmt.Errorf("failed to copy thumbnail into cache: %w", err)
	}

	return nil
}

// Ensure is the read-through path: it returns the cached image for key,
// extracting it from mediaPath on the first call.
func (c *Cache) Ensure(ctx context.Context, key, mediaPath string, kind storage.MediaKind) (string, error) {
	if path, ok := c.Get(key); ok {
		return path, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	dst := c.entryPath(key)
	if _, err := os.Stat(dst); err == nil {
		return dst, nil
	}

	var err error
	if kind == storage.MediaAudio {
		err = c.extractor.ExtractEmbedded(ctx, mediaPath, dst)
	} else {
		err = c.extractor.ExtractFrame(ctx, mediaPath, 0, dst)
	}

	if err != nil {
		os.Remove(dst)

		return "", fmt.Errorf("failed to extract thumbnail for %s: %w", key, err)
	}

	return dst, nil
}

// Invalidate removes the cache entry for key, if any.
func (c *Cache) Invalidate(key string) error {
	err := os.Remove(c.entryPath(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to invalidate thumbnail %s: %w", key, err)
	}

	return nil
}

func (c *Cache) entryPath(key string) string {
	return filepath.Join(c.dir, key+".jpg")
}
