package types

// LinkType discriminates what a Link points at. The type is an explicit
// tagged discriminant; it is never inferred from the shape of the target
// (see the accepted raw-leaf/node encoding ambiguity documented in
// pkg/codec).
type LinkType uint8

const (
	// LinkBlob points at a raw leaf: chunk bytes stored as-is (or CHK
	// ciphertext when encrypted).
	LinkBlob LinkType = iota
	// LinkFile points at an internal node of a chunked file.
	LinkFile
	// LinkDir points at a directory node.
	LinkDir
)

func (t LinkType) String() string {
	switch t {
	case LinkBlob:
		return "Blob"
	case LinkFile:
		return "File"
	case LinkDir:
		return "Dir"
	}
	return "Unknown"
}

// Valid reports whether the link type is one of the known discriminants.
func (t LinkType) Valid() bool {
	return t <= LinkDir
}

// Link is a reference from a TreeNode to a child. Name is present only on
// directory entries. Key is present iff the child is CHK-encrypted. Size is
// the logical (plaintext) size of the referenced subtree, used by range
// reads to skip subtrees without fetching them.
type Link struct {
	Hash Hash              `cbor:"h"`
	Key  *Key              `cbor:"k,omitempty"`
	Name string            `cbor:"n,omitempty"`
	Size uint64            `cbor:"s,omitempty"`
	Type LinkType          `cbor:"t"`
	Meta map[string]string `cbor:"m,omitempty"`
}

// CID returns the content identifier the link points at.
func (l Link) CID() CID {
	return CID{Hash: l.Hash, Key: l.Key}
}

// TreeNode is the only stored structured unit. Files larger than one chunk
// and all directories are graphs of TreeNodes; everything else is a raw
// leaf. Nodes are immutable once hashed: every edit produces a new node.
type TreeNode struct {
	Type  LinkType `cbor:"t"`
	Links []Link   `cbor:"l"`
}

// DirEntry is the listing projection of a directory Link.
type DirEntry struct {
	Name string
	CID  CID
	Size uint64
	Type LinkType
	Meta map[string]string
}

// Entry converts a named directory link to its DirEntry projection.
func (l Link) Entry() DirEntry {
	return DirEntry{
		Name: l.Name,
		CID:  l.CID(),
		Size: l.Size,
		Type: l.Type,
		Meta: l.Meta,
	}
}
