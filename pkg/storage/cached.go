package storage

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/verdantfs/verdant/pkg/types"
)

// Cached wraps a BlockStore with an LRU read cache. Blocks are immutable,
// so cached entries never need invalidation beyond Delete.
type Cached struct {
	backend BlockStore
	cache   *lru.Cache[types.Hash, []byte]
}

// NewCached wraps backend with a cache of at most size blocks.
func NewCached(backend BlockStore, size int) (*Cached, error) {
	cache, err := lru.New[types.Hash, []byte](size)
	if err != nil {
		return nil, err
	}
	return &Cached{backend: backend, cache: cache}, nil
}

// Put stores through to the backend and seeds the cache.
func (c *Cached) Put(ctx context.Context, hash types.Hash, data []byte) (bool, error) {
	stored, err := c.backend.Put(ctx, hash, data)
	if err != nil {
		return false, err
	}
	c.cache.Add(hash, data)
	return stored, nil
}

// Get serves from cache when possible.
func (c *Cached) Get(ctx context.Context, hash types.Hash) ([]byte, error) {
	if data, ok := c.cache.Get(hash); ok {
		return data, nil
	}
	data, err := c.backend.Get(ctx, hash)
	if err != nil || data == nil {
		return data, err
	}
	c.cache.Add(hash, data)
	return data, nil
}

// Has consults the cache before the backend.
func (c *Cached) Has(ctx context.Context, hash types.Hash) (bool, error) {
	if c.cache.Contains(hash) {
		return true, nil
	}
	return c.backend.Has(ctx, hash)
}

// Delete removes the block from cache and backend.
func (c *Cached) Delete(ctx context.Context, hash types.Hash) (bool, error) {
	c.cache.Remove(hash)
	return c.backend.Delete(ctx, hash)
}

var _ BlockStore = (*Cached)(nil)
