package verdant

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdantfs/verdant/pkg/exchange"
	"github.com/verdantfs/verdant/pkg/refcode"
	"github.com/verdantfs/verdant/pkg/types"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startTestNode(t *testing.T, conf Config) *Node {
	t.Helper()

	if len(conf.Paths) == 0 {
		conf.Paths = []string{t.TempDir()}
	}
	if conf.Logger == nil {
		conf.Logger = quietLogger()
	}

	node, err := New(conf)
	require.NoError(t, err)
	require.NoError(t, node.Start(context.Background()))
	t.Cleanup(func() { node.Close(context.Background()) })
	return node
}

func TestNewRequiresPath(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestOperationsBeforeStart(t *testing.T) {
	node, err := New(Config{Paths: []string{t.TempDir()}, Logger: quietLogger()})
	require.NoError(t, err)

	_, _, err = node.PutFile(context.Background(), bytes.NewReader([]byte("x")), false)
	require.ErrorIs(t, err, ErrNotStarted)
}

func TestPutReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	node := startTestNode(t, Config{})

	content := bytes.Repeat([]byte("round trip through the full node stack. "), 5000)
	cid, size, err := node.PutFile(ctx, bytes.NewReader(content), false)
	require.NoError(t, err)
	assert.Equal(t, uint64(len(content)), size)

	got, err := node.ReadFile(ctx, cid)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestEncryptedPutReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	node := startTestNode(t, Config{})

	content := []byte("secret content")
	cid, _, err := node.PutFile(ctx, bytes.NewReader(content), true)
	require.NoError(t, err)
	require.True(t, cid.Encrypted())

	got, err := node.ReadFile(ctx, cid)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	// Without the key the stored bytes do not decode as the content.
	raw, err := node.ReadFile(ctx, types.CID{Hash: cid.Hash})
	if err == nil {
		assert.NotEqual(t, content, raw)
	}
}

func TestPublishResolveCode(t *testing.T) {
	ctx := context.Background()
	node := startTestNode(t, Config{})

	content := []byte("published content")
	cid, _, err := node.PutFile(ctx, bytes.NewReader(content), false)
	require.NoError(t, err)

	key := types.RefKey{Owner: "alice", Tree: "notes"}
	code, err := node.PublishRef(ctx, key, cid, types.RefPublic)
	require.NoError(t, err)

	kind, err := refcode.Kind(code)
	require.NoError(t, err)
	assert.Equal(t, refcode.PrefixRef, kind)

	resolveCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	resolved, err := node.ResolveCode(resolveCtx, code)
	require.NoError(t, err)
	assert.Equal(t, cid, resolved)

	got, err := node.ReadFile(ctx, resolved)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestResolveCodeWithPath(t *testing.T) {
	ctx := context.Background()
	node := startTestNode(t, Config{})

	fileContent := []byte("nested file")
	fileCID, fileSize, err := node.PutFile(ctx, bytes.NewReader(fileContent), false)
	require.NoError(t, err)

	sub, err := node.Tree().PutDirectory(ctx, []types.DirEntry{
		{Name: "file.txt", CID: fileCID, Size: fileSize, Type: types.LinkBlob},
	})
	require.NoError(t, err)
	subEntries, err := node.Tree().ListDirectory(ctx, sub)
	require.NoError(t, err)
	root, err := node.Tree().PutDirectory(ctx, []types.DirEntry{
		{Name: "docs", CID: sub, Size: subEntries[0].Size, Type: types.LinkDir},
	})
	require.NoError(t, err)

	_, err = node.PublishRef(ctx, types.RefKey{Owner: "alice", Tree: "site"}, root, types.RefPublic)
	require.NoError(t, err)

	code, err := refcode.EncodeRef(refcode.Ref{Owner: "alice", Tree: "site", Path: "docs/file.txt"})
	require.NoError(t, err)

	resolveCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	resolved, err := node.ResolveCode(resolveCtx, code)
	require.NoError(t, err)

	got, err := node.ReadFile(ctx, resolved)
	require.NoError(t, err)
	assert.Equal(t, fileContent, got)
}

func TestRefsPersistAcrossRestart(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	node := startTestNode(t, Config{Paths: []string{dir}})
	content := []byte("survives a restart")
	cid, _, err := node.PutFile(ctx, bytes.NewReader(content), false)
	require.NoError(t, err)
	_, err = node.PublishRef(ctx, types.RefKey{Owner: "alice", Tree: "notes"}, cid, types.RefPublic)
	require.NoError(t, err)
	require.NoError(t, node.Close(ctx))

	node = startTestNode(t, Config{Paths: []string{dir}})
	resolveCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	resolved, err := node.Resolver().Resolve(resolveCtx, types.RefKey{Owner: "alice", Tree: "notes"})
	require.NoError(t, err)
	assert.Equal(t, cid, resolved)

	got, err := node.ReadFile(ctx, resolved)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestBackupRestoreBetweenNodes(t *testing.T) {
	ctx := context.Background()

	src := startTestNode(t, Config{})
	content := bytes.Repeat([]byte("backed up block data. "), 20000)
	cid, _, err := src.PutFile(ctx, bytes.NewReader(content), false)
	require.NoError(t, err)

	var archive bytes.Buffer
	require.NoError(t, src.Backup(ctx, &archive))

	dst := startTestNode(t, Config{})
	restored, err := dst.Restore(ctx, bytes.NewReader(archive.Bytes()))
	require.NoError(t, err)
	assert.Greater(t, restored, 0)

	got, err := dst.ReadFile(ctx, cid)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestTwoNodesExchangeBlocks(t *testing.T) {
	ctx := context.Background()
	network := exchange.NewPipeNetwork()

	provider := startTestNode(t, Config{
		Identity:   "provider",
		ListenAddr: "provider",
		Transport:  network.Transport(),
	})
	consumer := startTestNode(t, Config{
		Identity:  "consumer",
		Transport: network.Transport(),
		Bootstrap: []string{"provider"},
	})

	require.Eventually(t, func() bool {
		follows, other := consumer.Exchange().PeerCount()
		return follows+other > 0
	}, 5*time.Second, 20*time.Millisecond, "consumer never connected to provider")

	content := bytes.Repeat([]byte("replicated over the wire. "), 8000)
	cid, _, err := provider.PutFile(ctx, bytes.NewReader(content), false)
	require.NoError(t, err)

	readCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	got, err := consumer.ReadFile(readCtx, cid)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	// The fetched blocks are now local on the consumer too.
	has, err := consumer.Store().Has(ctx, cid.Hash)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestCloseIdempotent(t *testing.T) {
	node := startTestNode(t, Config{})
	require.NoError(t, node.Close(context.Background()))
	require.NoError(t, node.Close(context.Background()))
}
