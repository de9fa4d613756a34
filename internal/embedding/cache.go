package embedding

import (
	"container/list"
	"context"
	"sync"

	"go.uber.org/zap"
)

// Cache stores provider vectors by content hash. Fallback vectors are
// never cached.
type Cache interface {
	Get(ctx context.Context, key string) ([]float32, bool)
	Put(ctx context.Context, key string, vector []float32)
}

// MemoryCache is a bounded LRU cache.
type MemoryCache struct {
	mu      sync.Mutex
	size    int
	order   *list.List
	entries map[string]*list.Element
}

type cacheEntry struct {
	key    string
	vector []float32
}

// NewMemoryCache returns an LRU cache holding at most size vectors.
func NewMemoryCache(size int) *MemoryCache {
	return &MemoryCache{
		size:    size,
		order:   list.New(),
		entries: make(map[string]*list.Element, size),
	}
}

// Get returns a copy of the cached vector.
func (c *MemoryCache) Get(_ context.Context, key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return copyVector(el.Value.(*cacheEntry).vector), true
}

// Put stores vector under key, evicting the least recently used entry.
func (c *MemoryCache) Put(_ context.Context, key string, vector []float32) {
	if c.size <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value.(*cacheEntry).vector = copyVector(vector)
		c.order.MoveToFront(el)
		return
	}
	c.entries[key] = c.order.PushFront(&cacheEntry{key: key, vector: copyVector(vector)})
	for c.order.Len() > c.size {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}

// Len returns the number of cached vectors.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// VectorStore is the persistence side of a StoreCache.
type VectorStore interface {
	GetCachedEmbedding(ctx context.Context, key string) ([]float32, error)
	PutCachedEmbedding(ctx context.Context, key, model string, vector []float32) error
}

// StoreCache persists vectors through the storage layer so restarts do not
// re-embed unchanged text. Storage errors are logged and treated as misses.
type StoreCache struct {
	store  VectorStore
	model  string
	logger *zap.Logger
}

// NewStoreCache wraps a VectorStore.
func NewStoreCache(store VectorStore, model string, logger *zap.Logger) *StoreCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreCache{store: store, model: model, logger: logger}
}

// Get looks the key up in storage.
func (c *StoreCache) Get(ctx context.Context, key string) ([]float32, bool) {
	vec, err := c.store.GetCachedEmbedding(ctx, key)
	if err != nil {
		c.logger.Warn("embedding cache lookup failed", zap.Error(err))
		return nil, false
	}
	return vec, vec != nil
}

// Put writes the vector to storage.
func (c *StoreCache) Put(ctx context.Context, key string, vector []float32) {
	if err := c.store.PutCachedEmbedding(ctx, key, c.model, vector); err != nil {
		c.logger.Warn("embedding cache write failed", zap.Error(err))
	}
}

// TieredCache checks each cache in order and back-fills earlier tiers.
type TieredCache []Cache

// Get returns the first hit.
func (t TieredCache) Get(ctx context.Context, key string) ([]float32, bool) {
	for i, c := range t {
		if vec, ok := c.Get(ctx, key); ok {
			for j := 0; j < i; j++ {
				t[j].Put(ctx, key, vec)
			}
			return vec, true
		}
	}
	return nil, false
}

// Put writes to every tier.
func (t TieredCache) Put(ctx context.Context, key string, vector []float32) {
	for _, c := range t {
		c.Put(ctx, key, vector)
	}
}

func copyVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
