package storage

import (
	"context"
	"sync"

	"github.com/verdantfs/verdant/pkg/types"
)

// Memory is an in-memory BlockStore. It is the reference backend used by
// tests and by short-lived tools; production nodes use Badger.
type Memory struct {
	mu     sync.RWMutex
	blocks map[types.Hash][]byte
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{blocks: make(map[types.Hash][]byte)}
}

// Put stores data under hash.
func (m *Memory) Put(ctx context.Context, hash types.Hash, data []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.blocks[hash]; exists {
		return false, nil
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	m.blocks[hash] = cp
	return true, nil
}

// Get returns the block bytes or (nil, nil) when absent.
func (m *Memory) Get(ctx context.Context, hash types.Hash) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, exists := m.blocks[hash]
	if !exists {
		return nil, nil
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

// Has reports whether the hash is present.
func (m *Memory) Has(ctx context.Context, hash types.Hash) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.blocks[hash]
	return exists, nil
}

// Delete removes the block.
func (m *Memory) Delete(ctx context.Context, hash types.Hash) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, exists := m.blocks[hash]
	delete(m.blocks, hash)
	return exists, nil
}

// Len returns the number of stored blocks.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blocks)
}

// ForEach visits every stored block, in no particular order.
func (m *Memory) ForEach(ctx context.Context, fn func(hash types.Hash, data []byte) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for h, data := range m.blocks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(h, data); err != nil {
			return err
		}
	}
	return nil
}

// Hashes returns the hashes of all stored blocks, in no particular order.
func (m *Memory) Hashes() []types.Hash {
	m.mu.RLock()
	defer m.mu.RUnlock()

	hashes := make([]types.Hash, 0, len(m.blocks))
	for h := range m.blocks {
		hashes = append(hashes, h)
	}
	return hashes
}

var _ BlockStore = (*Memory)(nil)
