package patch

import (
	"os"
	"path/filepath"
	"sync"
)

// Cache holds file content snapshots the agent loop consults while an edit
// tool call is still streaming, so CheckPartial can run against a file's
// state as of turn start without re-reading disk on every delta.
type Cache struct {
	mu    sync.Mutex
	files map[string]string // root-relative path -> normalized content
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{files: map[string]string{}}
}

// Get returns the cached content for path, reading and normalizing it from
// disk on first access. A missing file caches as empty content.
func (c *Cache) Get(root, path string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if content, ok := c.files[path]; ok {
		return content, nil
	}

	raw, err := os.ReadFile(filepath.Join(root, path))
	if err != nil {
		if os.IsNotExist(err) {
			c.files[path] = ""
			return "", nil
		}
		return "", err
	}
	content := normalizeNewlines(string(raw))
	c.files[path] = content
	return content, nil
}

// Invalidate drops the cached entry for path, forcing the next Get to
// re-read disk. Call after a successful Apply.
func (c *Cache) Invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.files, path)
}
