package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdantfs/verdant/pkg/types"
)

// backendsUnderTest builds one of each BlockStore implementation against a
// fresh backing directory.
func backendsUnderTest(t *testing.T) map[string]BlockStore {
	t.Helper()

	b, err := OpenBadger(BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })

	cached, err := NewCached(NewMemory(), 16)
	require.NoError(t, err)

	return map[string]BlockStore{
		"memory": NewMemory(),
		"badger": b,
		"cached": cached,
	}
}

func TestBlockStoreContract(t *testing.T) {
	ctx := context.Background()

	for name, store := range backendsUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			data := []byte("some block content")
			hash := types.HashBytes(data)

			has, err := store.Has(ctx, hash)
			require.NoError(t, err)
			assert.False(t, has)

			got, err := store.Get(ctx, hash)
			require.NoError(t, err)
			assert.Nil(t, got, "absent block must be (nil, nil)")

			stored, err := store.Put(ctx, hash, data)
			require.NoError(t, err)
			assert.True(t, stored)

			stored, err = store.Put(ctx, hash, data)
			require.NoError(t, err)
			assert.False(t, stored, "second put of the same block is a no-op")

			got, err = store.Get(ctx, hash)
			require.NoError(t, err)
			assert.Equal(t, data, got)

			has, err = store.Has(ctx, hash)
			require.NoError(t, err)
			assert.True(t, has)

			deleted, err := store.Delete(ctx, hash)
			require.NoError(t, err)
			assert.True(t, deleted)

			deleted, err = store.Delete(ctx, hash)
			require.NoError(t, err)
			assert.False(t, deleted)

			got, err = store.Get(ctx, hash)
			require.NoError(t, err)
			assert.Nil(t, got)
		})
	}
}

func TestMemoryGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	data := []byte("mutable caller buffer")
	hash := types.HashBytes(data)
	_, err := store.Put(ctx, hash, data)
	require.NoError(t, err)

	got, err := store.Get(ctx, hash)
	require.NoError(t, err)
	got[0] = 'X'

	again, err := store.Get(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, byte('m'), again[0], "caller mutation leaked into the store")
}

func TestBadgerPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	data := []byte("durable block")
	hash := types.HashBytes(data)

	b, err := OpenBadger(BadgerConfig{Path: dir})
	require.NoError(t, err)
	_, err = b.Put(ctx, hash, data)
	require.NoError(t, err)
	require.NoError(t, b.Close())

	b, err = OpenBadger(BadgerConfig{Path: dir})
	require.NoError(t, err)
	defer b.Close()

	got, err := b.Get(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestCachedServesAfterBackendDelete(t *testing.T) {
	// Direct backend mutation bypasses the cache. This documents that the
	// cache layer assumes it sees every Delete.
	ctx := context.Background()
	backend := NewMemory()
	cached, err := NewCached(backend, 16)
	require.NoError(t, err)

	data := []byte("cached block")
	hash := types.HashBytes(data)
	_, err = cached.Put(ctx, hash, data)
	require.NoError(t, err)

	_, err = backend.Delete(ctx, hash)
	require.NoError(t, err)

	got, err := cached.Get(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	_, err = cached.Delete(ctx, hash)
	require.NoError(t, err)
	got, err = cached.Get(ctx, hash)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetVerifiedRejectsCorruptBytes(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	data := []byte("honest block")
	hash := types.HashBytes(data)

	// Plant corrupt bytes under the honest hash.
	store.blocks[hash] = []byte("tampered block")

	_, err := GetVerified(ctx, store, hash)
	require.ErrorIs(t, err, types.ErrReceive)

	// An honest block passes.
	store.blocks[hash] = data
	got, err := GetVerified(ctx, store, hash)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestGetVerifiedAbsent(t *testing.T) {
	got, err := GetVerified(context.Background(), NewMemory(), types.HashBytes([]byte("nope")))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestForEachStopsOnError(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	for i := 0; i < 10; i++ {
		data := []byte{byte(i)}
		_, err := store.Put(ctx, types.HashBytes(data), data)
		require.NoError(t, err)
	}

	sentinel := errors.New("stop here")
	visited := 0
	err := store.ForEach(ctx, func(types.Hash, []byte) error {
		visited++
		if visited == 3 {
			return sentinel
		}
		return nil
	})
	require.ErrorIs(t, err, sentinel)
	assert.Equal(t, 3, visited)
}
