package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nulzo/llm-proxy/internal/store/cache"
)

type item struct {
	value     []byte
	expiresAt time.Time
}

// Cache is an in-process cache.CacheService. Expired entries are dropped
// lazily on read.
type Cache struct {
	items map[string]item
	mu    sync.RWMutex
	now   func() time.Time
}

func New() *Cache {
	return &Cache{
		items: make(map[string]item),
		now:   time.Now,
	}
}

func (c *Cache) Get(_ context.Context, key string, dest interface{}) error {
	c.mu.RLock()
	it, ok := c.items[key]
	c.mu.RUnlock()

	if !ok {
		return cache.ErrCacheMiss
	}

	if c.now().After(it.expiresAt) {
		c.mu.Lock()
		delete(c.items, key)
		c.mu.Unlock()
		return cache.ErrCacheMiss
	}

	return json.Unmarshal(it.value, dest)
}

func (c *Cache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = item{
		value:     data,
		expiresAt: c.now().Add(ttl),
	}
	return nil
}

func (c *Cache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	return nil
}
