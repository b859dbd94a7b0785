package types

import "errors"

// Error taxonomy shared across the store, tree engine, exchange, and
// resolver. Read paths prefer returning zero values over errors when
// absence is expected; these sentinels mark true failures.
var (
	// ErrPathNotFound is returned by edit operations when an intermediate
	// path segment does not resolve. Read paths return a nil CID instead.
	ErrPathNotFound = errors.New("verdant: path not found")

	// ErrMalformedEncoding is returned when bytes cannot be decoded as a
	// canonical TreeNode.
	ErrMalformedEncoding = errors.New("verdant: malformed node encoding")

	// ErrMissingBlock is returned when a referenced hash is absent from
	// every reachable store. It signals data loss or an unsynced peer.
	ErrMissingBlock = errors.New("verdant: referenced block missing")

	// ErrDecryptionFailure is returned when CHK decryption fails
	// authentication, meaning a wrong key or corrupted ciphertext.
	ErrDecryptionFailure = errors.New("verdant: decryption failure")

	// ErrNameCollision is returned by encrypted-tree moves when the
	// destination name already exists.
	ErrNameCollision = errors.New("verdant: name collision")

	// ErrReceive is returned when reassembled response bytes do not hash
	// to the requested hash. The fragments are discarded.
	ErrReceive = errors.New("verdant: receive integrity failure")

	// ErrRequestTimeout is returned when no peer answers a block request
	// within the round-trip window.
	ErrRequestTimeout = errors.New("verdant: request timeout")

	// ErrRefDeleted is returned when resolving a ref whose latest accepted
	// event is a tombstone.
	ErrRefDeleted = errors.New("verdant: ref deleted")
)
