// Package storage defines the block store contract and its local backends.
//
// A BlockStore maps 32-byte content hashes to opaque byte blocks. Writes are
// content-addressed and therefore idempotent: concurrent identical puts are
// race-free by construction. Backends are interchangeable; the tree engine
// and the exchange share one store and callers cannot tell which path
// served a Get.
package storage

import (
	"context"
	"fmt"

	"github.com/verdantfs/verdant/pkg/types"
)

// BlockStore is the block storage contract.
type BlockStore interface {
	// Put stores data under hash. It returns false when the block was
	// already present (the write is skipped; identical content implies
	// identical bytes).
	Put(ctx context.Context, hash types.Hash, data []byte) (bool, error)

	// Get returns the block bytes, or (nil, nil) when the hash is absent.
	// Absence is expected, not an error.
	Get(ctx context.Context, hash types.Hash) ([]byte, error)

	// Has reports whether the hash is present.
	Has(ctx context.Context, hash types.Hash) (bool, error)

	// Delete removes the block, reporting whether it was present.
	Delete(ctx context.Context, hash types.Hash) (bool, error)
}

// GetVerified fetches a block and checks that the bytes actually hash to the
// requested hash, guarding against corrupt backends and forged responses.
func GetVerified(ctx context.Context, s BlockStore, hash types.Hash) ([]byte, error) {
	data, err := s.Get(ctx, hash)
	if err != nil || data == nil {
		return data, err
	}
	if types.HashBytes(data) != hash {
		return nil, fmt.Errorf("%w: stored bytes for %s fail verification", types.ErrReceive, hash)
	}
	return data, nil
}
