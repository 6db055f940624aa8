package tagfsclient

import (
	"sync"

	"github.com/golang/groupcache/lru"
)

const (
	contentCacheEntries  = 64
	contentCacheMaxBytes = 4 * 1024 * 1024 // larger files are not cached
)

// only content verified against its sha256 hash gets cached, so an entry is never stale
type contentCache struct {
	cache *lru.Cache
	mu    sync.Mutex
}

func newContentCache(entries int) *contentCache {
	return &contentCache{
		cache: lru.New(entries),
	}
}

func (c *contentCache) Get(hash string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	content, found := c.cache.Get(hash)
	if !found {
		return nil, false
	}

	return content.([]byte), true
}

func (c *contentCache) Add(hash string, content []byte) {
	if len(content) > contentCacheMaxBytes {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache.Add(hash, content)
}

func (c *contentCache) Remove(hash string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache.Remove(hash)
}
