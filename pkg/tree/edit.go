package tree

import (
	"context"
	"fmt"

	"github.com/verdantfs/verdant/pkg/types"
)

// crumb records one visited directory on the way down to an edit target: the
// decoded node and the index of the link that was followed.
type crumb struct {
	node    *types.TreeNode
	linkIdx int
}

// descend walks dirPath from root and returns the target directory node plus
// the trail of ancestor directories above it. Every node in the trail is a
// fresh decode, safe to mutate during rebuild.
func (e *Engine) descend(ctx context.Context, root types.CID, dirPath string) (*types.TreeNode, []crumb, error) {
	cur := root
	node, err := e.dirNode(ctx, cur)
	if err != nil {
		if isNotADir(err) {
			return nil, nil, fmt.Errorf("%w: root is not a directory", types.ErrPathNotFound)
		}
		return nil, nil, err
	}

	var trail []crumb
	for _, seg := range splitPath(dirPath) {
		idx := -1
		for i := range node.Links {
			if node.Links[i].Name == seg {
				idx = i
				break
			}
		}
		if idx < 0 || node.Links[idx].Type != types.LinkDir {
			return nil, nil, fmt.Errorf("%w: %q", types.ErrPathNotFound, seg)
		}

		trail = append(trail, crumb{node: node, linkIdx: idx})
		cur = node.Links[idx].CID()
		node, err = e.dirNode(ctx, cur)
		if err != nil {
			return nil, nil, err
		}
	}
	return node, trail, nil
}

// rebuild stores the edited target node and then walks the trail back up with
// an explicit loop, rewriting each ancestor's child link. Untouched sibling
// links are carried over verbatim, so their subtrees keep identical hashes.
func (e *Engine) rebuild(ctx context.Context, trail []crumb, target *types.TreeNode, encrypted bool) (types.CID, error) {
	link, err := e.storeDirNode(ctx, target, encrypted)
	if err != nil {
		return types.CID{}, err
	}

	for i := len(trail) - 1; i >= 0; i-- {
		parent := trail[i].node
		child := &parent.Links[trail[i].linkIdx]
		child.Hash = link.Hash
		child.Key = link.Key
		child.Size = link.Size

		link, err = e.storeDirNode(ctx, parent, encrypted)
		if err != nil {
			return types.CID{}, err
		}
	}
	return link.CID(), nil
}

// SetEntry inserts or replaces the named entry in the directory at dirPath
// and returns the new root CID. Replacement by name is unconditional.
func (e *Engine) SetEntry(ctx context.Context, root types.CID, dirPath string, entry types.DirEntry) (types.CID, error) {
	link, err := linkFromEntry(entry)
	if err != nil {
		return types.CID{}, err
	}

	node, trail, err := e.descend(ctx, root, dirPath)
	if err != nil {
		return types.CID{}, err
	}

	if idx := indexOf(node, entry.Name); idx >= 0 {
		node.Links[idx] = link
	} else {
		node.Links = append(node.Links, link)
	}
	return e.rebuild(ctx, trail, node, root.Encrypted())
}

// RemoveEntry deletes the named entry from the directory at dirPath and
// returns the new root CID. A missing entry is ErrPathNotFound.
func (e *Engine) RemoveEntry(ctx context.Context, root types.CID, dirPath, name string) (types.CID, error) {
	node, trail, err := e.descend(ctx, root, dirPath)
	if err != nil {
		return types.CID{}, err
	}

	idx := indexOf(node, name)
	if idx < 0 {
		return types.CID{}, fmt.Errorf("%w: %q", types.ErrPathNotFound, name)
	}
	node.Links = append(node.Links[:idx], node.Links[idx+1:]...)
	return e.rebuild(ctx, trail, node, root.Encrypted())
}

// RenameEntry renames oldName to newName within the directory at dirPath.
// On an encrypted root an existing newName is ErrNameCollision; on a plain
// root it is overwritten, matching MoveEntry's semantics.
func (e *Engine) RenameEntry(ctx context.Context, root types.CID, dirPath, oldName, newName string) (types.CID, error) {
	if newName == "" {
		return types.CID{}, fmt.Errorf("tree: empty entry name")
	}

	node, trail, err := e.descend(ctx, root, dirPath)
	if err != nil {
		return types.CID{}, err
	}

	idx := indexOf(node, oldName)
	if idx < 0 {
		return types.CID{}, fmt.Errorf("%w: %q", types.ErrPathNotFound, oldName)
	}

	if dst := indexOf(node, newName); dst >= 0 && dst != idx {
		if root.Encrypted() {
			return types.CID{}, fmt.Errorf("%w: %q", types.ErrNameCollision, newName)
		}
		node.Links = append(node.Links[:dst], node.Links[dst+1:]...)
		if dst < idx {
			idx--
		}
	}

	node.Links[idx].Name = newName
	return e.rebuild(ctx, trail, node, root.Encrypted())
}

// MoveEntry moves the named entry from srcDir to dstDir and returns the new
// root CID. It composes RemoveEntry and SetEntry and is not atomic: a failure
// after the remove leaves the returned error alongside a root that no longer
// holds the entry. On an encrypted root an occupied destination name is
// ErrNameCollision up front; on a plain root it is silently overwritten.
func (e *Engine) MoveEntry(ctx context.Context, root types.CID, srcDir, name, dstDir string) (types.CID, error) {
	srcNode, _, err := e.descend(ctx, root, srcDir)
	if err != nil {
		return types.CID{}, err
	}
	idx := indexOf(srcNode, name)
	if idx < 0 {
		return types.CID{}, fmt.Errorf("%w: %q", types.ErrPathNotFound, name)
	}
	entry := srcNode.Links[idx].Entry()

	if root.Encrypted() {
		dstNode, _, err := e.descend(ctx, root, dstDir)
		if err != nil {
			return types.CID{}, err
		}
		if indexOf(dstNode, name) >= 0 {
			return types.CID{}, fmt.Errorf("%w: %q", types.ErrNameCollision, name)
		}
	}

	removed, err := e.RemoveEntry(ctx, root, srcDir, name)
	if err != nil {
		return types.CID{}, err
	}
	return e.SetEntry(ctx, removed, dstDir, entry)
}

func indexOf(node *types.TreeNode, name string) int {
	for i := range node.Links {
		if node.Links[i].Name == name {
			return i
		}
	}
	return -1
}
