// Package refcode implements the human-facing share codes: bech32 strings
// wrapping a TLV payload. Two kinds exist, disambiguated by prefix:
//
//	vblob1...  permalink to immutable content: hash plus optional key
//	vref1...   live pointer: owner, tree name, optional path, optional key
//
// Codes survive copy-paste intact thanks to the bech32 checksum and carry
// no length limit on decode, since encrypted ref codes exceed the classic
// 90-character bound.
package refcode

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil/bech32"

	"github.com/verdantfs/verdant/pkg/types"
)

const (
	// PrefixBlob is the human readable part of permalink codes.
	PrefixBlob = "vblob"
	// PrefixRef is the human readable part of live ref codes.
	PrefixRef = "vref"
)

// TLV types inside a code payload.
const (
	tlvHash  = 0x00
	tlvKey   = 0x01
	tlvOwner = 0x02
	tlvTree  = 0x03
	tlvPath  = 0x04
)

// Ref is the decoded form of a vref code.
type Ref struct {
	Owner string
	Tree  string
	// Path optionally points below the tree root.
	Path string
	// Key decrypts the tree when it is CHK-encrypted.
	Key *types.Key
}

func appendTLV(buf []byte, typ byte, value []byte) ([]byte, error) {
	if len(value) > 255 {
		return nil, fmt.Errorf("refcode: field 0x%02x of %d bytes exceeds 255", typ, len(value))
	}
	buf = append(buf, typ, byte(len(value)))
	return append(buf, value...), nil
}

func parseTLV(payload []byte) (map[byte][]byte, error) {
	fields := make(map[byte][]byte)
	for len(payload) > 0 {
		if len(payload) < 2 {
			return nil, fmt.Errorf("refcode: truncated TLV header")
		}
		typ, length := payload[0], int(payload[1])
		payload = payload[2:]
		if len(payload) < length {
			return nil, fmt.Errorf("refcode: truncated TLV value for 0x%02x", typ)
		}
		if _, dup := fields[typ]; dup {
			return nil, fmt.Errorf("refcode: duplicate TLV field 0x%02x", typ)
		}
		fields[typ] = payload[:length]
		payload = payload[length:]
	}
	return fields, nil
}

func encode(hrp string, payload []byte) (string, error) {
	converted, err := bech32.ConvertBits(payload, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("refcode: convert bits: %w", err)
	}
	code, err := bech32.Encode(hrp, converted)
	if err != nil {
		return "", fmt.Errorf("refcode: bech32 encode: %w", err)
	}
	return code, nil
}

func decode(code string) (hrp string, payload []byte, err error) {
	hrp, data, err := bech32.DecodeNoLimit(code)
	if err != nil {
		return "", nil, fmt.Errorf("refcode: bech32 decode: %w", err)
	}
	payload, err = bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return "", nil, fmt.Errorf("refcode: convert bits: %w", err)
	}
	return hrp, payload, nil
}

// EncodeBlob builds a vblob permalink for a CID.
func EncodeBlob(cid types.CID) (string, error) {
	if cid.Hash.IsZero() {
		return "", fmt.Errorf("refcode: zero hash")
	}
	payload, err := appendTLV(nil, tlvHash, cid.Hash.Bytes())
	if err != nil {
		return "", err
	}
	if cid.Key != nil {
		if payload, err = appendTLV(payload, tlvKey, cid.Key.Bytes()); err != nil {
			return "", err
		}
	}
	return encode(PrefixBlob, payload)
}

// DecodeBlob parses a vblob permalink back into a CID.
func DecodeBlob(code string) (types.CID, error) {
	hrp, payload, err := decode(code)
	if err != nil {
		return types.CID{}, err
	}
	if hrp != PrefixBlob {
		return types.CID{}, fmt.Errorf("refcode: expected %s code, got %q", PrefixBlob, hrp)
	}
	fields, err := parseTLV(payload)
	if err != nil {
		return types.CID{}, err
	}

	hashBytes, ok := fields[tlvHash]
	if !ok {
		return types.CID{}, fmt.Errorf("refcode: blob code without hash")
	}
	hash, err := types.HashFromBytes(hashBytes)
	if err != nil {
		return types.CID{}, fmt.Errorf("refcode: %w", err)
	}

	cid := types.NewCID(hash)
	if keyBytes, ok := fields[tlvKey]; ok {
		key, err := types.KeyFromBytes(keyBytes)
		if err != nil {
			return types.CID{}, fmt.Errorf("refcode: %w", err)
		}
		cid = types.NewEncryptedCID(hash, key)
	}
	return cid, nil
}

// EncodeRef builds a vref code for a live pointer.
func EncodeRef(ref Ref) (string, error) {
	if ref.Owner == "" || ref.Tree == "" {
		return "", fmt.Errorf("refcode: owner and tree are required")
	}
	payload, err := appendTLV(nil, tlvOwner, []byte(ref.Owner))
	if err != nil {
		return "", err
	}
	if payload, err = appendTLV(payload, tlvTree, []byte(ref.Tree)); err != nil {
		return "", err
	}
	if ref.Path != "" {
		if payload, err = appendTLV(payload, tlvPath, []byte(ref.Path)); err != nil {
			return "", err
		}
	}
	if ref.Key != nil {
		if payload, err = appendTLV(payload, tlvKey, ref.Key.Bytes()); err != nil {
			return "", err
		}
	}
	return encode(PrefixRef, payload)
}

// DecodeRef parses a vref code.
func DecodeRef(code string) (Ref, error) {
	hrp, payload, err := decode(code)
	if err != nil {
		return Ref{}, err
	}
	if hrp != PrefixRef {
		return Ref{}, fmt.Errorf("refcode: expected %s code, got %q", PrefixRef, hrp)
	}
	fields, err := parseTLV(payload)
	if err != nil {
		return Ref{}, err
	}

	owner, ok := fields[tlvOwner]
	if !ok {
		return Ref{}, fmt.Errorf("refcode: ref code without owner")
	}
	tree, ok := fields[tlvTree]
	if !ok {
		return Ref{}, fmt.Errorf("refcode: ref code without tree")
	}

	ref := Ref{Owner: string(owner), Tree: string(tree)}
	if path, ok := fields[tlvPath]; ok {
		ref.Path = string(path)
	}
	if keyBytes, ok := fields[tlvKey]; ok {
		key, err := types.KeyFromBytes(keyBytes)
		if err != nil {
			return Ref{}, fmt.Errorf("refcode: %w", err)
		}
		ref.Key = &key
	}
	return ref, nil
}

// Kind reports which code family a string belongs to without fully decoding
// it. It returns PrefixBlob, PrefixRef, or an error.
func Kind(code string) (string, error) {
	hrp, _, err := decode(code)
	if err != nil {
		return "", err
	}
	switch hrp {
	case PrefixBlob, PrefixRef:
		return hrp, nil
	default:
		return "", fmt.Errorf("refcode: unknown prefix %q", hrp)
	}
}
