package types

import "time"

// RefKey names a mutable pointer: the owner's public key (hex) plus a
// human-meaningful tree name.
type RefKey struct {
	Owner string
	Tree  string
}

func (k RefKey) String() string {
	return k.Owner + "/" + k.Tree
}

// RefVisibility controls how a ref's key material is published.
type RefVisibility uint8

const (
	// RefPublic publishes the decryption key in the clear.
	RefPublic RefVisibility = iota
	// RefEncrypted publishes key material encrypted for specific readers.
	RefEncrypted
	// RefPrivate publishes key material encrypted only for the owner.
	RefPrivate
)

func (v RefVisibility) String() string {
	switch v {
	case RefPublic:
		return "public"
	case RefEncrypted:
		return "encrypted"
	case RefPrivate:
		return "private"
	}
	return "unknown"
}

// RefEntry is the resolved state of a ref: the current tree root and its key
// material. A zero Hash marks a tombstone; tombstoned entries are retained
// internally and filtered from listings. Entries are never removed, only
// superseded by newer events.
type RefEntry struct {
	Key        RefKey
	Hash       Hash
	DecryptKey *Key
	Visibility RefVisibility
	CreatedAt  time.Time
}

// Deleted reports whether the entry is a tombstone.
func (e RefEntry) Deleted() bool {
	return e.Hash.IsZero()
}

// CID returns the content identifier for the entry's tree root.
func (e RefEntry) CID() CID {
	return CID{Hash: e.Hash, Key: e.DecryptKey}
}
