// Package types provides the shared data structures for Verdant: hashes,
// content identifiers, tree nodes, and ref entries.
package types

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// HashSize is the size of a content hash in bytes (SHA-256).
const HashSize = 32

// KeySize is the size of a CHK decryption key in bytes.
const KeySize = 32

// Hash is a 32-byte SHA-256 digest. It is the content identity of a stored
// block: a Hash is always the verified digest of the bytes it refers to.
type Hash [HashSize]byte

// HashBytes computes the content hash of the given bytes.
func HashBytes(data []byte) Hash {
	return sha256.Sum256(data)
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

func (h Hash) Bytes() []byte {
	return h[:]
}

// IsZero reports whether the hash is the zero value. A zero hash never
// identifies content; the resolver uses it as a tombstone marker.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// HashFromBytes parses a 32-byte slice into a Hash.
func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashSize {
		return h, fmt.Errorf("invalid byte length for Hash: %d", len(b))
	}
	copy(h[:], b)
	return h, nil
}

// HashFromHex parses a hex-encoded hash string.
func HashFromHex(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("invalid hash hex: %w", err)
	}
	return HashFromBytes(b)
}

// Key is a 32-byte symmetric decryption key. Under CHK the key is derived
// from the plaintext: key = SHA-256(plaintext).
type Key [KeySize]byte

func (k Key) Bytes() []byte {
	return k[:]
}

func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

// IsZero reports whether the key is the zero value.
func (k Key) IsZero() bool {
	return k == Key{}
}

// KeyFromBytes parses a 32-byte slice into a Key.
func KeyFromBytes(b []byte) (Key, error) {
	var k Key
	if len(b) != KeySize {
		return k, fmt.Errorf("invalid byte length for Key: %d", len(b))
	}
	copy(k[:], b)
	return k, nil
}

// CID is a content identifier: the hash of the stored bytes plus, when the
// content is CHK-encrypted, the key needed to decrypt it. For encrypted
// content the hash covers the ciphertext while the key derives from the
// plaintext, so possession of the full CID is both locator and capability.
type CID struct {
	Hash Hash
	Key  *Key
}

// NewCID builds a plain (unencrypted) CID.
func NewCID(h Hash) CID {
	return CID{Hash: h}
}

// NewEncryptedCID builds a CID carrying a decryption key.
func NewEncryptedCID(h Hash, k Key) CID {
	return CID{Hash: h, Key: &k}
}

// Encrypted reports whether the CID carries a decryption key.
func (c CID) Encrypted() bool {
	return c.Key != nil
}

// Equal reports whether two CIDs refer to the same content with the same key.
func (c CID) Equal(other CID) bool {
	if c.Hash != other.Hash {
		return false
	}
	if (c.Key == nil) != (other.Key == nil) {
		return false
	}
	if c.Key != nil && !bytes.Equal(c.Key[:], other.Key[:]) {
		return false
	}
	return true
}

func (c CID) String() string {
	if c.Key != nil {
		return c.Hash.String() + "+key"
	}
	return c.Hash.String()
}
