// Package verdant is the top-level handle of the Verdant node: a
// content-addressed, optionally encrypted, peer-replicated data store. It
// wires together the block store, the merkle tree engine, the peer exchange,
// and the ref resolver.
package verdant

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/verdantfs/verdant/pkg/exchange"
	"github.com/verdantfs/verdant/pkg/refcode"
	"github.com/verdantfs/verdant/pkg/resolver"
	"github.com/verdantfs/verdant/pkg/storage"
	"github.com/verdantfs/verdant/pkg/tree"
	"github.com/verdantfs/verdant/pkg/types"
)

var (
	ErrNotStarted = errors.New("verdant: node not started")
	ErrClosed     = errors.New("verdant: node closed")
)

// Config configures a node. Only Paths[0] is used at the moment; future
// versions may spread data across multiple paths.
type Config struct {
	// Paths contains data directories. Currently only Paths[0] is used.
	Paths []string

	// MinimumFreeGB refuses startup below this free-space threshold.
	MinimumFreeGB uint

	// Identity is the node's public identity on the exchange. Defaults to a
	// value derived from the data directory.
	Identity string

	// ChunkSize and MaxLinksPerNode shape the merkle trees. Zero picks the
	// engine defaults.
	ChunkSize       int
	MaxLinksPerNode int

	// BlockCacheSize is the LRU block cache in front of the persistent
	// store. Zero picks 1024 blocks.
	BlockCacheSize int

	// ListenAddr, when set, accepts peer connections there. Transport must
	// be set for any networking; without it the node runs standalone.
	ListenAddr string
	Transport  exchange.Transport
	Bootstrap  []string

	// Fallbacks are consulted for blocks after peers time out.
	Fallbacks []storage.BlockStore

	// Logger is an optional structured logger. If nil, a stderr logger is
	// used.
	Logger *slog.Logger
}

// Node is the main handle. It owns the lifecycle of all subsystems.
type Node struct {
	log    *slog.Logger
	config Config

	store    *storage.Badger
	cached   storage.BlockStore
	engine   *tree.Engine
	exchange *exchange.Exchange
	refLog   *resolver.BadgerLog
	resolver *resolver.Resolver

	started   atomic.Bool
	startOnce sync.Once
	closeOnce sync.Once
}

func defaultLogger() *slog.Logger {
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	return slog.New(h)
}

// New constructs a node handle. New does no heavy I/O and starts no
// goroutines; call Start.
func New(conf Config) (*Node, error) {
	if len(conf.Paths) == 0 {
		return nil, fmt.Errorf("verdant: at least one path must be provided in config")
	}
	if conf.Logger == nil {
		conf.Logger = defaultLogger()
	}
	if conf.BlockCacheSize < 1 {
		conf.BlockCacheSize = 1024
	}
	if conf.Identity == "" {
		conf.Identity = fmt.Sprintf("node-%s", types.HashBytes([]byte(conf.Paths[0])).String()[:16])
	}
	return &Node{
		log:    conf.Logger,
		config: conf,
	}, nil
}

// Start opens the store and launches the subsystems. Safe to call more than
// once; only the first call has effect.
func (n *Node) Start(ctx context.Context) error {
	var startErr error
	n.startOnce.Do(func() {
		dataRoot := n.config.Paths[0]
		if err := os.MkdirAll(dataRoot, 0o700); err != nil {
			startErr = fmt.Errorf("verdant: mkdir %s: %w", dataRoot, err)
			return
		}

		store, err := storage.OpenBadger(storage.BadgerConfig{
			Path:          filepath.Join(dataRoot, "blocks"),
			MinimumFreeGB: n.config.MinimumFreeGB,
		})
		if err != nil {
			startErr = fmt.Errorf("verdant: open block store: %w", err)
			return
		}
		n.store = store

		cached, err := storage.NewCached(store, n.config.BlockCacheSize)
		if err != nil {
			startErr = fmt.Errorf("verdant: block cache: %w", err)
			return
		}
		n.cached = cached

		// The tree engine reads through the exchange when one is configured,
		// so missing blocks are fetched from peers transparently.
		engineStore := n.cached
		if n.config.Transport != nil {
			x, err := exchange.New(exchange.Config{
				Identity:   n.config.Identity,
				Transport:  n.config.Transport,
				ListenAddr: n.config.ListenAddr,
				Store:      n.cached,
				Fallbacks:  n.config.Fallbacks,
				Bootstrap:  n.config.Bootstrap,
				Logger:     n.log,
			})
			if err != nil {
				startErr = fmt.Errorf("verdant: exchange: %w", err)
				return
			}
			if err := x.Start(ctx); err != nil {
				startErr = fmt.Errorf("verdant: start exchange: %w", err)
				return
			}
			n.exchange = x
			engineStore = x.BlockStore()
		}

		engine, err := tree.New(tree.Config{
			ChunkSize:       n.config.ChunkSize,
			MaxLinksPerNode: n.config.MaxLinksPerNode,
			Logger:          n.log,
		}, engineStore)
		if err != nil {
			startErr = fmt.Errorf("verdant: tree engine: %w", err)
			return
		}
		n.engine = engine

		refLog, err := resolver.NewBadgerLog(store.DB())
		if err != nil {
			startErr = fmt.Errorf("verdant: ref log: %w", err)
			return
		}
		n.refLog = refLog

		res, err := resolver.New(resolver.Config{Log: refLog, Logger: n.log})
		if err != nil {
			startErr = fmt.Errorf("verdant: resolver: %w", err)
			return
		}
		if err := res.Start(); err != nil {
			startErr = fmt.Errorf("verdant: start resolver: %w", err)
			return
		}
		n.resolver = res

		n.started.Store(true)
		n.log.Info("verdant node started", "path", dataRoot, "identity", n.config.Identity)
	})
	return startErr
}

// Run starts the node, blocks until ctx is canceled, then shuts down with a
// bounded grace period. A convenience for services.
func (n *Node) Run(ctx context.Context) error {
	if err := n.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return n.Close(shutdownCtx)
}

// Close tears the subsystems down in reverse dependency order. Idempotent.
func (n *Node) Close(ctx context.Context) error {
	var closeErr error
	n.closeOnce.Do(func() {
		n.started.Store(false)

		if n.resolver != nil {
			if err := n.resolver.Close(); err != nil {
				closeErr = errors.Join(closeErr, fmt.Errorf("close resolver: %w", err))
			}
		}
		if n.refLog != nil {
			if err := n.refLog.Close(); err != nil {
				closeErr = errors.Join(closeErr, fmt.Errorf("close ref log: %w", err))
			}
		}
		if n.exchange != nil {
			if err := n.exchange.Close(); err != nil {
				closeErr = errors.Join(closeErr, fmt.Errorf("close exchange: %w", err))
			}
		}
		if n.engine != nil {
			n.engine.Close()
		}
		if n.store != nil {
			if err := n.store.Close(); err != nil {
				closeErr = errors.Join(closeErr, fmt.Errorf("close store: %w", err))
			}
		}

		n.log.Info("verdant node closed")
	})
	return closeErr
}

func (n *Node) ready() error {
	if !n.started.Load() {
		return ErrNotStarted
	}
	return nil
}

// Tree returns the merkle tree engine.
func (n *Node) Tree() *tree.Engine {
	return n.engine
}

// Resolver returns the ref resolver.
func (n *Node) Resolver() *resolver.Resolver {
	return n.resolver
}

// Exchange returns the peer exchange, or nil when the node runs standalone.
func (n *Node) Exchange() *exchange.Exchange {
	return n.exchange
}

// Store returns the local block store (without the network read path).
func (n *Node) Store() storage.BlockStore {
	return n.cached
}

// PutFile stores a file and returns its CID and size. Encrypted files carry
// their decryption key in the CID.
func (n *Node) PutFile(ctx context.Context, r io.Reader, encrypted bool) (types.CID, uint64, error) {
	if err := n.ready(); err != nil {
		return types.CID{}, 0, err
	}
	if encrypted {
		return n.engine.PutFileEncrypted(ctx, r)
	}
	return n.engine.PutFile(ctx, r)
}

// ReadFile returns the content behind a CID, fetching from peers as needed.
func (n *Node) ReadFile(ctx context.Context, cid types.CID) ([]byte, error) {
	if err := n.ready(); err != nil {
		return nil, err
	}
	return n.engine.ReadFile(ctx, cid)
}

// PublishRef points (owner, tree) at a CID and returns the shareable code.
func (n *Node) PublishRef(ctx context.Context, key types.RefKey, cid types.CID, visibility types.RefVisibility) (string, error) {
	if err := n.ready(); err != nil {
		return "", err
	}
	if err := n.resolver.Publish(ctx, key, cid, visibility); err != nil {
		return "", err
	}
	ref := refcode.Ref{Owner: key.Owner, Tree: key.Tree}
	if visibility == types.RefEncrypted {
		ref.Key = cid.Key
	}
	return refcode.EncodeRef(ref)
}

// ResolveCode resolves a share code (vblob or vref) to a CID. For vref codes
// with a path, the path is walked from the resolved root.
func (n *Node) ResolveCode(ctx context.Context, code string) (types.CID, error) {
	if err := n.ready(); err != nil {
		return types.CID{}, err
	}

	kind, err := refcode.Kind(code)
	if err != nil {
		return types.CID{}, err
	}
	if kind == refcode.PrefixBlob {
		return refcode.DecodeBlob(code)
	}

	ref, err := refcode.DecodeRef(code)
	if err != nil {
		return types.CID{}, err
	}
	root, err := n.resolver.Resolve(ctx, types.RefKey{Owner: ref.Owner, Tree: ref.Tree})
	if err != nil {
		return types.CID{}, err
	}
	if root.Key == nil && ref.Key != nil {
		root.Key = ref.Key
	}
	if ref.Path == "" {
		return root, nil
	}

	resolved, err := n.engine.ResolvePath(ctx, root, ref.Path)
	if err != nil {
		return types.CID{}, err
	}
	if resolved == nil {
		return types.CID{}, fmt.Errorf("%w: %s", types.ErrPathNotFound, ref.Path)
	}
	return *resolved, nil
}

// Backup streams every local block into an lzma archive.
func (n *Node) Backup(ctx context.Context, w io.Writer) error {
	if err := n.ready(); err != nil {
		return err
	}
	return storage.Backup(ctx, n.store, w)
}

// Restore loads an archive produced by Backup, returning the number of
// blocks added.
func (n *Node) Restore(ctx context.Context, r io.Reader) (int, error) {
	if err := n.ready(); err != nil {
		return 0, err
	}
	return storage.Restore(ctx, n.cached, r)
}
