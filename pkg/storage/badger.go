package storage

import (
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/shirou/gopsutil/disk"

	"github.com/verdantfs/verdant/pkg/types"
)

const blockPrefix = "block:"

// BadgerConfig configures the persistent backend.
type BadgerConfig struct {
	// Path is the directory holding the badger value log and LSM tree.
	Path string
	// MinimumFreeGB refuses to open the store when the filesystem has less
	// free space than this, to avoid running the node into a full disk.
	// Zero disables the check.
	MinimumFreeGB uint
}

// Badger is a BlockStore persisted in a badger key-value database, with
// blocks stored under a "block:" key prefix.
type Badger struct {
	db *badger.DB
}

// OpenBadger opens (or creates) the store at cfg.Path.
func OpenBadger(cfg BadgerConfig) (*Badger, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("storage: badger path is required")
	}

	if cfg.MinimumFreeGB > 0 {
		usage, err := disk.Usage(cfg.Path)
		if err == nil && usage.Free < uint64(cfg.MinimumFreeGB)*1024*1024*1024 {
			return nil, fmt.Errorf(
				"storage: %s has %d bytes free, below the %dGB minimum",
				cfg.Path, usage.Free, cfg.MinimumFreeGB,
			)
		}
	}

	opts := badger.DefaultOptions(cfg.Path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("storage: open badger at %s: %w", cfg.Path, err)
	}
	return &Badger{db: db}, nil
}

// Close releases the underlying database.
func (b *Badger) Close() error {
	return b.db.Close()
}

// DB exposes the underlying database so other key-prefixed components (the
// ref log) can share it instead of opening a second one.
func (b *Badger) DB() *badger.DB {
	return b.db
}

func blockKey(hash types.Hash) []byte {
	return append([]byte(blockPrefix), hash[:]...)
}

// Put stores data under hash.
func (b *Badger) Put(ctx context.Context, hash types.Hash, data []byte) (bool, error) {
	exists, err := b.Has(ctx, hash)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(blockKey(hash), data)
	})
	if err != nil {
		return false, fmt.Errorf("storage: persist block %s: %w", hash, err)
	}
	return true, nil
}

// Get returns the block bytes or (nil, nil) when absent.
func (b *Badger) Get(ctx context.Context, hash types.Hash) ([]byte, error) {
	var data []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(blockKey(hash))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read block %s: %w", hash, err)
	}
	return data, nil
}

// Has reports whether the hash is present.
func (b *Badger) Has(ctx context.Context, hash types.Hash) (bool, error) {
	err := b.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(blockKey(hash))
		return err
	})
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("storage: probe block %s: %w", hash, err)
	}
	return true, nil
}

// Delete removes the block.
func (b *Badger) Delete(ctx context.Context, hash types.Hash) (bool, error) {
	exists, err := b.Has(ctx, hash)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}

	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(blockKey(hash))
	})
	if err != nil {
		return false, fmt.Errorf("storage: delete block %s: %w", hash, err)
	}
	return true, nil
}

// ForEach visits every stored block. Used by backup.
func (b *Badger) ForEach(ctx context.Context, fn func(hash types.Hash, data []byte) error) error {
	return b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(blockPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			hash, err := types.HashFromBytes(item.Key()[len(prefix):])
			if err != nil {
				return fmt.Errorf("storage: corrupt block key: %w", err)
			}
			data, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(hash, data); err != nil {
				return err
			}
		}
		return nil
	})
}

var _ BlockStore = (*Badger)(nil)
