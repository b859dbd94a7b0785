package storage

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ulikunitz/xz/lzma"

	"github.com/verdantfs/verdant/pkg/types"
)

// Iterable is implemented by backends that can enumerate their blocks.
type Iterable interface {
	ForEach(ctx context.Context, fn func(hash types.Hash, data []byte) error) error
}

// Backup streams every block of src into an lzma-compressed archive.
// Record format inside the stream: 32-byte hash, 8-byte big-endian length,
// then the block bytes.
func Backup(ctx context.Context, src Iterable, w io.Writer) error {
	zw, err := lzma.NewWriter(w)
	if err != nil {
		return fmt.Errorf("storage: backup compressor: %w", err)
	}

	err = src.ForEach(ctx, func(hash types.Hash, data []byte) error {
		if _, err := zw.Write(hash[:]); err != nil {
			return err
		}
		var lenBuf [8]byte
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(data)))
		if _, err := zw.Write(lenBuf[:]); err != nil {
			return err
		}
		_, err := zw.Write(data)
		return err
	})
	if err != nil {
		return fmt.Errorf("storage: backup: %w", err)
	}
	return zw.Close()
}

// Restore reads an archive produced by Backup into dst. Blocks whose bytes
// do not hash to their recorded hash are rejected; blocks already present
// are skipped.
func Restore(ctx context.Context, dst BlockStore, r io.Reader) (int, error) {
	zr, err := lzma.NewReader(r)
	if err != nil {
		return 0, fmt.Errorf("storage: restore decompressor: %w", err)
	}

	restored := 0
	for {
		if err := ctx.Err(); err != nil {
			return restored, err
		}

		var hashBuf [types.HashSize]byte
		if _, err := io.ReadFull(zr, hashBuf[:]); err == io.EOF {
			return restored, nil
		} else if err != nil {
			return restored, fmt.Errorf("storage: restore read hash: %w", err)
		}

		var lenBuf [8]byte
		if _, err := io.ReadFull(zr, lenBuf[:]); err != nil {
			return restored, fmt.Errorf("storage: restore read length: %w", err)
		}
		size := binary.BigEndian.Uint64(lenBuf[:])

		data := make([]byte, size)
		if _, err := io.ReadFull(zr, data); err != nil {
			return restored, fmt.Errorf("storage: restore read block: %w", err)
		}

		hash := types.Hash(hashBuf)
		if types.HashBytes(data) != hash {
			return restored, fmt.Errorf("%w: archived block %s fails verification", types.ErrReceive, hash)
		}

		stored, err := dst.Put(ctx, hash, data)
		if err != nil {
			return restored, err
		}
		if stored {
			restored++
		}
	}
}
