package storage

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdantfs/verdant/pkg/types"
)

func populate(t *testing.T, store BlockStore, n int) map[types.Hash][]byte {
	t.Helper()
	ctx := context.Background()

	blocks := make(map[types.Hash][]byte, n)
	for i := 0; i < n; i++ {
		data := bytes.Repeat([]byte(fmt.Sprintf("block-%d|", i)), i+1)
		hash := types.HashBytes(data)
		_, err := store.Put(ctx, hash, data)
		require.NoError(t, err)
		blocks[hash] = data
	}
	return blocks
}

func TestBackupRestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := NewMemory()
	blocks := populate(t, src, 50)

	var archive bytes.Buffer
	require.NoError(t, Backup(ctx, src, &archive))

	dst := NewMemory()
	restored, err := Restore(ctx, dst, bytes.NewReader(archive.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, len(blocks), restored)

	for hash, data := range blocks {
		got, err := dst.Get(ctx, hash)
		require.NoError(t, err)
		assert.Equal(t, data, got)
	}
}

func TestRestoreSkipsPresentBlocks(t *testing.T) {
	ctx := context.Background()
	src := NewMemory()
	blocks := populate(t, src, 20)

	var archive bytes.Buffer
	require.NoError(t, Backup(ctx, src, &archive))

	// Pre-load half the blocks into the destination.
	dst := NewMemory()
	preloaded := 0
	for hash, data := range blocks {
		if preloaded == 10 {
			break
		}
		_, err := dst.Put(ctx, hash, data)
		require.NoError(t, err)
		preloaded++
	}

	restored, err := Restore(ctx, dst, bytes.NewReader(archive.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, len(blocks)-preloaded, restored)
	assert.Equal(t, len(blocks), dst.Len())
}

func TestRestoreRejectsCorruptArchive(t *testing.T) {
	ctx := context.Background()
	src := NewMemory()
	data := []byte("the only block, long enough to survive compression intact")
	_, err := src.Put(ctx, types.HashBytes(data), data)
	require.NoError(t, err)

	var archive bytes.Buffer
	require.NoError(t, Backup(ctx, src, &archive))

	// Corrupting the compressed stream breaks either the decompressor or
	// the per-block hash check; both must surface as an error.
	raw := archive.Bytes()
	raw[len(raw)-10] ^= 0xff

	_, err = Restore(ctx, NewMemory(), bytes.NewReader(raw))
	require.Error(t, err)
}

func TestRestoreEmptyArchive(t *testing.T) {
	ctx := context.Background()

	var archive bytes.Buffer
	require.NoError(t, Backup(ctx, NewMemory(), &archive))

	restored, err := Restore(ctx, NewMemory(), bytes.NewReader(archive.Bytes()))
	require.NoError(t, err)
	assert.Zero(t, restored)
}

func TestBackupRestoreThroughBadger(t *testing.T) {
	ctx := context.Background()

	src, err := OpenBadger(BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	defer src.Close()
	blocks := populate(t, src, 30)

	var archive bytes.Buffer
	require.NoError(t, Backup(ctx, src, &archive))

	dst, err := OpenBadger(BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	defer dst.Close()

	restored, err := Restore(ctx, dst, bytes.NewReader(archive.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, len(blocks), restored)

	for hash, data := range blocks {
		got, err := dst.Get(ctx, hash)
		require.NoError(t, err)
		assert.Equal(t, data, got)
	}
}
