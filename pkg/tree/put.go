package tree

import (
	"bytes"
	"context"
	"fmt"
	"io"

	boxochunker "github.com/ipfs/boxo/chunker"

	"github.com/verdantfs/verdant/pkg/chk"
	"github.com/verdantfs/verdant/pkg/codec"
	"github.com/verdantfs/verdant/pkg/types"
)

// PutBlob stores raw bytes as a single unchunked leaf and returns its CID.
func (e *Engine) PutBlob(ctx context.Context, data []byte) (types.CID, error) {
	hash := types.HashBytes(data)
	if _, err := e.store.Put(ctx, hash, data); err != nil {
		return types.CID{}, err
	}
	return types.NewCID(hash), nil
}

// PutFile chunks the reader's bytes into a merkle tree of plain blocks and
// returns the root CID together with the total byte size.
func (e *Engine) PutFile(ctx context.Context, r io.Reader) (types.CID, uint64, error) {
	return e.putFileReader(ctx, r, false)
}

// PutFileEncrypted is PutFile with every block CHK-sealed. The returned CID
// carries the root decryption key.
func (e *Engine) PutFileEncrypted(ctx context.Context, r io.Reader) (types.CID, uint64, error) {
	return e.putFileReader(ctx, r, true)
}

func (e *Engine) putFileReader(ctx context.Context, r io.Reader, encrypted bool) (types.CID, uint64, error) {
	splitter := boxochunker.NewSizeSplitter(r, int64(e.cfg.ChunkSize))
	room := e.pool.NewRoom()

	// Chunks are independent, so hashing and sealing fan out to the pool.
	// The room returns results in submission order, which is link order.
	for {
		chunk, err := splitter.NextBytes()
		if err == io.EOF {
			break
		}
		if err != nil {
			return types.CID{}, 0, fmt.Errorf("tree: chunk input: %w", err)
		}
		room.Submit(func() (interface{}, error) {
			return e.putChunk(ctx, chunk, encrypted)
		})
	}

	results, err := room.Wait()
	if err != nil {
		return types.CID{}, 0, err
	}

	links := make([]types.Link, len(results))
	var total uint64
	for i, res := range results {
		links[i] = res.(types.Link)
		total += links[i].Size
	}

	// The empty file is one empty chunk.
	if len(links) == 0 {
		link, err := e.putChunk(ctx, nil, encrypted)
		if err != nil {
			return types.CID{}, 0, err
		}
		links = append(links, link)
	}

	root, err := e.foldLinks(ctx, links, encrypted)
	if err != nil {
		return types.CID{}, 0, err
	}
	return root.CID(), total, nil
}

// putChunk stores one leaf chunk, sealed when encrypted, and returns its link.
func (e *Engine) putChunk(ctx context.Context, data []byte, encrypted bool) (types.Link, error) {
	link := types.Link{Size: uint64(len(data)), Type: types.LinkBlob}

	stored := data
	if encrypted {
		ciphertext, key, err := chk.Seal(data)
		if err != nil {
			return types.Link{}, err
		}
		stored = ciphertext
		link.Key = &key
	}

	link.Hash = types.HashBytes(stored)
	if _, err := e.store.Put(ctx, link.Hash, stored); err != nil {
		return types.Link{}, err
	}
	return link, nil
}

// foldLinks folds an ordered link list bottom-up into internal file nodes of
// at most MaxLinksPerNode children each, until a single root link remains.
// A single link is returned as-is: one-chunk files get no wrapper node.
func (e *Engine) foldLinks(ctx context.Context, links []types.Link, encrypted bool) (types.Link, error) {
	for len(links) > 1 {
		next := make([]types.Link, 0, (len(links)+e.cfg.MaxLinksPerNode-1)/e.cfg.MaxLinksPerNode)
		for start := 0; start < len(links); start += e.cfg.MaxLinksPerNode {
			end := start + e.cfg.MaxLinksPerNode
			if end > len(links) {
				end = len(links)
			}
			node := &types.TreeNode{Type: types.LinkFile, Links: links[start:end]}
			link, err := e.putNode(ctx, node, encrypted)
			if err != nil {
				return types.Link{}, err
			}
			next = append(next, link)
		}
		links = next
	}
	return links[0], nil
}

// putNode encodes and stores a TreeNode, returning a link whose Size is the
// logical size of the subtree beneath it.
func (e *Engine) putNode(ctx context.Context, node *types.TreeNode, encrypted bool) (types.Link, error) {
	encoded, err := codec.Encode(node)
	if err != nil {
		return types.Link{}, err
	}

	link := types.Link{Size: sumLinkSizes(node.Links), Type: node.Type}

	stored := encoded
	if encrypted {
		ciphertext, key, err := chk.Seal(encoded)
		if err != nil {
			return types.Link{}, err
		}
		stored = ciphertext
		link.Key = &key
	}

	link.Hash = types.HashBytes(stored)
	if _, err := e.store.Put(ctx, link.Hash, stored); err != nil {
		return types.Link{}, err
	}
	return link, nil
}

func sumLinkSizes(links []types.Link) uint64 {
	var total uint64
	for _, l := range links {
		total += l.Size
	}
	return total
}

// PutDirectory builds a directory node from the given entries and returns its
// CID. Entries are canonically sorted by name during encoding, so entry order
// does not affect the resulting hash.
func (e *Engine) PutDirectory(ctx context.Context, entries []types.DirEntry) (types.CID, error) {
	return e.putDirectory(ctx, entries, false)
}

// PutDirectoryEncrypted is PutDirectory with the node CHK-sealed.
func (e *Engine) PutDirectoryEncrypted(ctx context.Context, entries []types.DirEntry) (types.CID, error) {
	return e.putDirectory(ctx, entries, true)
}

func (e *Engine) putDirectory(ctx context.Context, entries []types.DirEntry, encrypted bool) (types.CID, error) {
	node := &types.TreeNode{Type: types.LinkDir, Links: make([]types.Link, 0, len(entries))}
	seen := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		link, err := linkFromEntry(entry)
		if err != nil {
			return types.CID{}, err
		}
		if _, dup := seen[entry.Name]; dup {
			return types.CID{}, fmt.Errorf("tree: duplicate directory entry %q", entry.Name)
		}
		seen[entry.Name] = struct{}{}
		node.Links = append(node.Links, link)
	}

	link, err := e.storeDirNode(ctx, node, encrypted)
	if err != nil {
		return types.CID{}, err
	}
	return link.CID(), nil
}

// storeDirNode stores a directory node. When its encoding exceeds the chunk
// size the encoded bytes go through the file-chunking machinery instead, so
// oversized directories degrade to chunked blobs of their own encoding.
func (e *Engine) storeDirNode(ctx context.Context, node *types.TreeNode, encrypted bool) (types.Link, error) {
	encoded, err := codec.Encode(node)
	if err != nil {
		return types.Link{}, err
	}

	link := types.Link{Size: sumLinkSizes(node.Links), Type: types.LinkDir}

	if len(encoded) > e.cfg.ChunkSize {
		cid, _, err := e.putFileReader(ctx, bytes.NewReader(encoded), encrypted)
		if err != nil {
			return types.Link{}, err
		}
		link.Hash = cid.Hash
		link.Key = cid.Key
		return link, nil
	}

	stored := encoded
	if encrypted {
		ciphertext, key, err := chk.Seal(encoded)
		if err != nil {
			return types.Link{}, err
		}
		stored = ciphertext
		link.Key = &key
	}

	link.Hash = types.HashBytes(stored)
	if _, err := e.store.Put(ctx, link.Hash, stored); err != nil {
		return types.Link{}, err
	}
	return link, nil
}

func linkFromEntry(entry types.DirEntry) (types.Link, error) {
	if entry.Name == "" {
		return types.Link{}, fmt.Errorf("tree: directory entry with empty name")
	}
	return types.Link{
		Hash: entry.CID.Hash,
		Key:  entry.CID.Key,
		Name: entry.Name,
		Size: entry.Size,
		Type: entry.Type,
		Meta: entry.Meta,
	}, nil
}
