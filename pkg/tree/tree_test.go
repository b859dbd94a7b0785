package tree

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdantfs/verdant/pkg/storage"
	"github.com/verdantfs/verdant/pkg/types"
)

func newTestEngine(t *testing.T, cfg Config) (*Engine, *storage.Memory) {
	t.Helper()
	store := storage.NewMemory()
	engine, err := New(cfg, store)
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	return engine, store
}

func patternBytes(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i * 7)
	}
	return data
}

func TestPutBlobRoundTrip(t *testing.T) {
	engine, store := newTestEngine(t, Config{})
	ctx := context.Background()

	// Larger than any chunk size: PutBlob never splits.
	content := patternBytes(3 << 20)
	cid, err := engine.PutBlob(ctx, content)
	require.NoError(t, err)
	assert.False(t, cid.Encrypted())
	assert.Equal(t, types.HashBytes(content), cid.Hash)
	assert.Equal(t, 1, store.Len())

	stored, err := store.Get(ctx, cid.Hash)
	require.NoError(t, err)
	assert.Equal(t, content, stored)

	got, err := engine.ReadFile(ctx, cid)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestPutFileSingleChunkNoWrapper(t *testing.T) {
	engine, store := newTestEngine(t, Config{ChunkSize: 1024})
	ctx := context.Background()

	content := []byte("hello world")
	cid, size, err := engine.PutFile(ctx, bytes.NewReader(content))
	require.NoError(t, err)
	assert.Equal(t, uint64(len(content)), size)

	// The CID must be the hash of the bytes themselves: no wrapper node.
	assert.Equal(t, types.HashBytes(content), cid.Hash)
	assert.Equal(t, 1, store.Len())

	got, err := engine.ReadFile(ctx, cid)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestPutFileChunkSizeEquivalence(t *testing.T) {
	content := patternBytes(1000)
	ctx := context.Background()

	for _, chunkSize := range []int{1, len(content) - 1, len(content), len(content) + 1, 1 << 20} {
		engine, _ := newTestEngine(t, Config{ChunkSize: chunkSize})

		cid, size, err := engine.PutFile(ctx, bytes.NewReader(content))
		if err != nil {
			t.Fatalf("chunkSize=%d: put: %v", chunkSize, err)
		}
		if size != uint64(len(content)) {
			t.Fatalf("chunkSize=%d: size %d, want %d", chunkSize, size, len(content))
		}

		got, err := engine.ReadFile(ctx, cid)
		if err != nil {
			t.Fatalf("chunkSize=%d: read: %v", chunkSize, err)
		}
		if !bytes.Equal(got, content) {
			t.Fatalf("chunkSize=%d: round trip mismatch", chunkSize)
		}
		engine.Close()
	}
}

func TestPutFileEmpty(t *testing.T) {
	engine, _ := newTestEngine(t, Config{ChunkSize: 16})
	ctx := context.Background()

	cid, size, err := engine.PutFile(ctx, bytes.NewReader(nil))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), size)

	got, err := engine.ReadFile(ctx, cid)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPutFileEncryptedRoundTrip(t *testing.T) {
	engine, store := newTestEngine(t, Config{ChunkSize: 64})
	ctx := context.Background()

	content := patternBytes(500)
	cid, size, err := engine.PutFileEncrypted(ctx, bytes.NewReader(content))
	require.NoError(t, err)
	assert.Equal(t, uint64(len(content)), size)
	require.True(t, cid.Encrypted())

	got, err := engine.ReadFile(ctx, cid)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	// Stored blocks are ciphertext: none may contain the plaintext chunks.
	for _, h := range store.Hashes() {
		block, err := store.Get(ctx, h)
		require.NoError(t, err)
		assert.False(t, bytes.Contains(block, content[:64]))
	}
}

func TestPutFileEncryptedDeterministic(t *testing.T) {
	// Two independent engines over separate stores simulate separate peers:
	// identical content must produce identical ciphertext blocks.
	ctx := context.Background()
	content := patternBytes(2 << 20)

	engineA, storeA := newTestEngine(t, Config{ChunkSize: 256 * 1024})
	engineB, storeB := newTestEngine(t, Config{ChunkSize: 256 * 1024})

	cidA, _, err := engineA.PutFileEncrypted(ctx, bytes.NewReader(content))
	require.NoError(t, err)
	cidB, _, err := engineB.PutFileEncrypted(ctx, bytes.NewReader(content))
	require.NoError(t, err)

	assert.True(t, cidA.Equal(cidB))
	assert.Equal(t, storeA.Len(), storeB.Len())
	for _, h := range storeA.Hashes() {
		ok, err := storeB.Has(ctx, h)
		require.NoError(t, err)
		assert.True(t, ok, "block %s missing from second store", h)
	}
}

func TestReadFileRangeSkipsChunks(t *testing.T) {
	engine, store := newTestEngine(t, Config{ChunkSize: 10})
	ctx := context.Background()

	content := patternBytes(45)
	cid, _, err := engine.PutFile(ctx, bytes.NewReader(content))
	require.NoError(t, err)

	// Drop the first and last chunks from the store. A range read inside
	// chunks 1..3 must still succeed because it never touches them.
	first := types.HashBytes(content[0:10])
	last := types.HashBytes(content[40:45])
	for _, h := range []types.Hash{first, last} {
		deleted, err := store.Delete(ctx, h)
		require.NoError(t, err)
		require.True(t, deleted)
	}

	got, err := engine.ReadFileRange(ctx, cid, 12, 20)
	require.NoError(t, err)
	assert.Equal(t, content[12:32], got)
}

func TestReadFileRangeClamping(t *testing.T) {
	engine, _ := newTestEngine(t, Config{ChunkSize: 8})
	ctx := context.Background()

	content := patternBytes(30)
	cid, _, err := engine.PutFile(ctx, bytes.NewReader(content))
	require.NoError(t, err)

	tests := []struct {
		name           string
		offset, length int64
		want           []byte
	}{
		{"within", 5, 10, content[5:15]},
		{"past end", 25, 100, content[25:]},
		{"at end", 30, 5, []byte{}},
		{"beyond end", 99, 5, []byte{}},
		{"zero length", 10, 0, []byte{}},
		{"whole file", 0, 30, content},
	}
	for _, tt := range tests {
		got, err := engine.ReadFileRange(ctx, cid, tt.offset, tt.length)
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if !bytes.Equal(got, tt.want) {
			t.Fatalf("%s: got %d bytes, want %d", tt.name, len(got), len(tt.want))
		}
	}

	if _, err := engine.ReadFileRange(ctx, cid, -1, 5); err == nil {
		t.Fatal("negative offset: expected error")
	}
}

func TestReadFileStream(t *testing.T) {
	engine, _ := newTestEngine(t, Config{ChunkSize: 7, MaxLinksPerNode: 3})
	ctx := context.Background()

	content := patternBytes(200)
	cid, _, err := engine.PutFile(ctx, bytes.NewReader(content))
	require.NoError(t, err)

	stream, err := engine.ReadFileStream(ctx, cid)
	require.NoError(t, err)

	got, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	require.NoError(t, stream.Close())
	if _, err := stream.Read(make([]byte, 1)); err == nil {
		t.Fatal("read after close: expected error")
	}
}

func TestPutDirectoryOrderIndependent(t *testing.T) {
	engine, _ := newTestEngine(t, Config{})
	ctx := context.Background()

	a := types.DirEntry{Name: "a", CID: types.NewCID(types.HashBytes([]byte("a"))), Size: 1, Type: types.LinkBlob}
	b := types.DirEntry{Name: "b", CID: types.NewCID(types.HashBytes([]byte("b"))), Size: 1, Type: types.LinkBlob}

	cid1, err := engine.PutDirectory(ctx, []types.DirEntry{b, a})
	require.NoError(t, err)
	cid2, err := engine.PutDirectory(ctx, []types.DirEntry{a, b})
	require.NoError(t, err)
	assert.Equal(t, cid1.Hash, cid2.Hash)
}

func TestPutDirectoryRejectsDuplicates(t *testing.T) {
	engine, _ := newTestEngine(t, Config{})
	ctx := context.Background()

	e := types.DirEntry{Name: "x", CID: types.NewCID(types.HashBytes([]byte("x"))), Type: types.LinkBlob}
	_, err := engine.PutDirectory(ctx, []types.DirEntry{e, e})
	assert.Error(t, err)
}

func TestOversizedDirectoryChunksItsEncoding(t *testing.T) {
	engine, _ := newTestEngine(t, Config{ChunkSize: 256})
	ctx := context.Background()

	// Enough entries that the encoded directory node exceeds one chunk.
	entries := make([]types.DirEntry, 64)
	for i := range entries {
		name := string(rune('a'+i%26)) + string(rune('0'+i/26))
		entries[i] = types.DirEntry{
			Name: name,
			CID:  types.NewCID(types.HashBytes([]byte(name))),
			Size: uint64(i),
			Type: types.LinkBlob,
		}
	}

	cid, err := engine.PutDirectory(ctx, entries)
	require.NoError(t, err)

	listed, err := engine.ListDirectory(ctx, cid)
	require.NoError(t, err)
	assert.Len(t, listed, len(entries))
}

// buildSampleTree stores /docs/readme and /docs/sub/data plus a sibling
// /other/keep, returning the root CID.
func buildSampleTree(t *testing.T, engine *Engine, ctx context.Context) types.CID {
	t.Helper()

	readme, _, err := engine.PutFile(ctx, bytes.NewReader([]byte("readme contents")))
	require.NoError(t, err)
	data, _, err := engine.PutFile(ctx, bytes.NewReader(patternBytes(100)))
	require.NoError(t, err)
	keep, _, err := engine.PutFile(ctx, bytes.NewReader([]byte("keep")))
	require.NoError(t, err)

	sub, err := engine.PutDirectory(ctx, []types.DirEntry{
		{Name: "data", CID: data, Size: 100, Type: types.LinkBlob},
	})
	require.NoError(t, err)
	docs, err := engine.PutDirectory(ctx, []types.DirEntry{
		{Name: "readme", CID: readme, Size: 15, Type: types.LinkBlob},
		{Name: "sub", CID: sub, Size: 100, Type: types.LinkDir},
	})
	require.NoError(t, err)
	other, err := engine.PutDirectory(ctx, []types.DirEntry{
		{Name: "keep", CID: keep, Size: 4, Type: types.LinkBlob},
	})
	require.NoError(t, err)

	root, err := engine.PutDirectory(ctx, []types.DirEntry{
		{Name: "docs", CID: docs, Size: 115, Type: types.LinkDir},
		{Name: "other", CID: other, Size: 4, Type: types.LinkDir},
	})
	require.NoError(t, err)
	return root
}

func TestResolvePath(t *testing.T) {
	engine, _ := newTestEngine(t, Config{})
	ctx := context.Background()
	root := buildSampleTree(t, engine, ctx)

	cid, err := engine.ResolvePath(ctx, root, "docs/sub/data")
	require.NoError(t, err)
	require.NotNil(t, cid)

	got, err := engine.ReadFile(ctx, *cid)
	require.NoError(t, err)
	assert.Equal(t, patternBytes(100), got)

	// Missing segments and descents into files resolve to nil, not error.
	for _, path := range []string{"docs/nope", "nope/deep", "docs/readme/inside"} {
		cid, err := engine.ResolvePath(ctx, root, path)
		require.NoError(t, err, path)
		assert.Nil(t, cid, path)
	}

	self, err := engine.ResolvePath(ctx, root, "")
	require.NoError(t, err)
	require.NotNil(t, self)
	assert.True(t, self.Equal(root))
}

func TestSetEntryCopyOnWriteSharing(t *testing.T) {
	engine, _ := newTestEngine(t, Config{})
	ctx := context.Background()
	root := buildSampleTree(t, engine, ctx)

	otherBefore, err := engine.ResolvePath(ctx, root, "other")
	require.NoError(t, err)

	newFile, _, err := engine.PutFile(ctx, bytes.NewReader([]byte("fresh")))
	require.NoError(t, err)
	newRoot, err := engine.SetEntry(ctx, root, "docs", types.DirEntry{
		Name: "added", CID: newFile, Size: 5, Type: types.LinkBlob,
	})
	require.NoError(t, err)
	assert.NotEqual(t, root.Hash, newRoot.Hash)

	// The untouched sibling subtree keeps its hash.
	otherAfter, err := engine.ResolvePath(ctx, newRoot, "other")
	require.NoError(t, err)
	assert.True(t, otherBefore.Equal(*otherAfter))

	added, err := engine.ResolvePath(ctx, newRoot, "docs/added")
	require.NoError(t, err)
	require.NotNil(t, added)

	// The old root is untouched.
	old, err := engine.ResolvePath(ctx, root, "docs/added")
	require.NoError(t, err)
	assert.Nil(t, old)
}

func TestRemoveEntry(t *testing.T) {
	engine, _ := newTestEngine(t, Config{})
	ctx := context.Background()
	root := buildSampleTree(t, engine, ctx)

	newRoot, err := engine.RemoveEntry(ctx, root, "docs", "readme")
	require.NoError(t, err)

	gone, err := engine.ResolvePath(ctx, newRoot, "docs/readme")
	require.NoError(t, err)
	assert.Nil(t, gone)

	_, err = engine.RemoveEntry(ctx, root, "docs", "absent")
	assert.ErrorIs(t, err, types.ErrPathNotFound)

	_, err = engine.RemoveEntry(ctx, root, "docs/absent", "readme")
	assert.ErrorIs(t, err, types.ErrPathNotFound)
}

func TestRenameEntry(t *testing.T) {
	engine, _ := newTestEngine(t, Config{})
	ctx := context.Background()
	root := buildSampleTree(t, engine, ctx)

	newRoot, err := engine.RenameEntry(ctx, root, "docs", "readme", "manual")
	require.NoError(t, err)

	renamed, err := engine.ResolvePath(ctx, newRoot, "docs/manual")
	require.NoError(t, err)
	require.NotNil(t, renamed)

	old, err := engine.ResolvePath(ctx, newRoot, "docs/readme")
	require.NoError(t, err)
	assert.Nil(t, old)
}

func TestMoveEntryPlainOverwrites(t *testing.T) {
	engine, _ := newTestEngine(t, Config{})
	ctx := context.Background()
	root := buildSampleTree(t, engine, ctx)

	// Place a "keep" entry in docs too, then move other/keep over it. The
	// plain variant overwrites without complaint.
	blocker, _, err := engine.PutFile(ctx, bytes.NewReader([]byte("blocker")))
	require.NoError(t, err)
	root, err = engine.SetEntry(ctx, root, "docs", types.DirEntry{
		Name: "keep", CID: blocker, Size: 7, Type: types.LinkBlob,
	})
	require.NoError(t, err)

	newRoot, err := engine.MoveEntry(ctx, root, "other", "keep", "docs")
	require.NoError(t, err)

	moved, err := engine.ResolvePath(ctx, newRoot, "docs/keep")
	require.NoError(t, err)
	require.NotNil(t, moved)
	got, err := engine.ReadFile(ctx, *moved)
	require.NoError(t, err)
	assert.Equal(t, []byte("keep"), got)

	src, err := engine.ResolvePath(ctx, newRoot, "other/keep")
	require.NoError(t, err)
	assert.Nil(t, src)
}

func TestMoveEntryEncryptedCollision(t *testing.T) {
	engine, _ := newTestEngine(t, Config{})
	ctx := context.Background()

	fileA, _, err := engine.PutFileEncrypted(ctx, bytes.NewReader([]byte("a contents")))
	require.NoError(t, err)
	fileB, _, err := engine.PutFileEncrypted(ctx, bytes.NewReader([]byte("b contents")))
	require.NoError(t, err)

	src, err := engine.PutDirectoryEncrypted(ctx, []types.DirEntry{
		{Name: "item", CID: fileA, Size: 10, Type: types.LinkBlob},
	})
	require.NoError(t, err)
	dst, err := engine.PutDirectoryEncrypted(ctx, []types.DirEntry{
		{Name: "item", CID: fileB, Size: 10, Type: types.LinkBlob},
	})
	require.NoError(t, err)

	root, err := engine.PutDirectoryEncrypted(ctx, []types.DirEntry{
		{Name: "src", CID: src, Size: 10, Type: types.LinkDir},
		{Name: "dst", CID: dst, Size: 10, Type: types.LinkDir},
	})
	require.NoError(t, err)

	_, err = engine.MoveEntry(ctx, root, "src", "item", "dst")
	assert.ErrorIs(t, err, types.ErrNameCollision)

	// Moving to a free name still works on the encrypted root.
	newRoot, err := engine.RenameEntry(ctx, root, "src", "item", "renamed")
	require.NoError(t, err)
	moved, err := engine.ResolvePath(ctx, newRoot, "src/renamed")
	require.NoError(t, err)
	require.NotNil(t, moved)
	got, err := engine.ReadFile(ctx, *moved)
	require.NoError(t, err)
	assert.Equal(t, []byte("a contents"), got)
}

func TestReadFileMissingBlock(t *testing.T) {
	engine, store := newTestEngine(t, Config{ChunkSize: 10})
	ctx := context.Background()

	content := patternBytes(25)
	cid, _, err := engine.PutFile(ctx, bytes.NewReader(content))
	require.NoError(t, err)

	deleted, err := store.Delete(ctx, types.HashBytes(content[10:20]))
	require.NoError(t, err)
	require.True(t, deleted)

	_, err = engine.ReadFile(ctx, cid)
	assert.True(t, errors.Is(err, types.ErrMissingBlock))
}

func TestEncryptedTreeEdits(t *testing.T) {
	engine, _ := newTestEngine(t, Config{ChunkSize: 32})
	ctx := context.Background()

	file, size, err := engine.PutFileEncrypted(ctx, bytes.NewReader(patternBytes(100)))
	require.NoError(t, err)
	root, err := engine.PutDirectoryEncrypted(ctx, []types.DirEntry{
		{Name: "data", CID: file, Size: size, Type: types.LinkBlob},
	})
	require.NoError(t, err)
	require.True(t, root.Encrypted())

	extra, extraSize, err := engine.PutFileEncrypted(ctx, bytes.NewReader([]byte("extra")))
	require.NoError(t, err)
	newRoot, err := engine.SetEntry(ctx, root, "", types.DirEntry{
		Name: "extra", CID: extra, Size: extraSize, Type: types.LinkBlob,
	})
	require.NoError(t, err)
	require.True(t, newRoot.Encrypted())

	entries, err := engine.ListDirectory(ctx, newRoot)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	resolved, err := engine.ResolvePath(ctx, newRoot, "data")
	require.NoError(t, err)
	require.NotNil(t, resolved)
	got, err := engine.ReadFile(ctx, *resolved)
	require.NoError(t, err)
	assert.Equal(t, patternBytes(100), got)
}
