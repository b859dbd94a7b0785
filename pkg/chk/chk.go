// Package chk implements convergent (content-hash-keyed) encryption.
//
// The key is derived from the plaintext itself: key = SHA-256(plaintext).
// Sealing is fully deterministic, so any two peers encrypting identical
// content at any time produce byte-identical ciphertext — which is what
// makes cross-peer deduplication of encrypted blocks possible.
package chk

import (
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/verdantfs/verdant/pkg/types"
)

// The nonce is fixed at zero. Under CHK every distinct plaintext has a
// distinct key, so the (key, nonce) pair never repeats and the usual
// nonce-reuse hazard does not apply.
var zeroNonce [chacha20poly1305.NonceSizeX]byte

// Seal encrypts plaintext under its own content hash and returns the
// ciphertext together with the derived key.
func Seal(plaintext []byte) ([]byte, types.Key, error) {
	key := types.Key(types.HashBytes(plaintext))

	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, types.Key{}, fmt.Errorf("chk: init cipher: %w", err)
	}

	ciphertext := aead.Seal(nil, zeroNonce[:], plaintext, nil)
	return ciphertext, key, nil
}

// Open decrypts ciphertext with the given key. It returns
// types.ErrDecryptionFailure (wrapped) when authentication fails, meaning
// the key is wrong or the ciphertext was tampered with.
func Open(ciphertext []byte, key types.Key) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, fmt.Errorf("chk: init cipher: %w", err)
	}

	plaintext, err := aead.Open(nil, zeroNonce[:], ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrDecryptionFailure, err)
	}
	return plaintext, nil
}

// Overhead is the ciphertext expansion added by the AEAD tag.
const Overhead = 16
