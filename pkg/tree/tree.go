// Package tree implements the merkle tree engine: building, reading, and
// editing content-addressed directory/file trees over a BlockStore.
//
// All operations are pure over (Config, store): there is no hidden global
// state, and every edit is copy-on-write — a changed entry produces a new
// node chain up to the root while untouched sibling subtrees keep their
// hashes, preserving deduplication.
package tree

import (
	"fmt"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"

	workerpool "github.com/verdantfs/verdant/pkg/workerPool"

	"github.com/verdantfs/verdant/pkg/storage"
	"github.com/verdantfs/verdant/pkg/types"
)

const (
	// DefaultChunkSize is the fixed chunk size for file splitting (256KB).
	DefaultChunkSize = 256 * 1024

	// DefaultMaxLinksPerNode bounds the fan-out of internal file nodes.
	DefaultMaxLinksPerNode = 128

	// DefaultNodeCacheSize is the number of decoded nodes kept in memory.
	DefaultNodeCacheSize = 4096
)

// Config configures an Engine. Zero values pick the defaults above.
type Config struct {
	ChunkSize       int
	MaxLinksPerNode int
	NodeCacheSize   int
	// Workers bounds the chunk hashing/sealing fan-out. Defaults to 3x CPUs.
	Workers int
	// Logger is an optional structured logger.
	Logger *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.ChunkSize < 1 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.MaxLinksPerNode < 2 {
		c.MaxLinksPerNode = DefaultMaxLinksPerNode
	}
	if c.NodeCacheSize < 1 {
		c.NodeCacheSize = DefaultNodeCacheSize
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Engine builds, reads, and edits merkle trees.
type Engine struct {
	cfg       Config
	store     storage.BlockStore
	pool      *workerpool.Pool
	nodeCache *lru.Cache[types.Hash, *types.TreeNode]
	log       *slog.Logger
}

// New creates an engine over the given store.
func New(cfg Config, store storage.BlockStore) (*Engine, error) {
	cfg.applyDefaults()

	cache, err := lru.New[types.Hash, *types.TreeNode](cfg.NodeCacheSize)
	if err != nil {
		return nil, fmt.Errorf("tree: node cache: %w", err)
	}

	return &Engine{
		cfg:       cfg,
		store:     store,
		pool:      workerpool.New(workerpool.Config{Workers: cfg.Workers}),
		nodeCache: cache,
		log:       cfg.Logger,
	}, nil
}

// Close releases the engine's worker pool. The store is owned by the caller.
func (e *Engine) Close() {
	e.pool.Close()
}
