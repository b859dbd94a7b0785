package codec

import (
	"bytes"
	"errors"
	"testing"

	"github.com/verdantfs/verdant/pkg/types"
)

func sampleKey(seed string) *types.Key {
	k := types.Key(types.HashBytes([]byte(seed)))
	return &k
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		node types.TreeNode
	}{
		{
			name: "empty file node",
			node: types.TreeNode{Type: types.LinkFile, Links: []types.Link{}},
		},
		{
			name: "file with chunks",
			node: types.TreeNode{Type: types.LinkFile, Links: []types.Link{
				{Hash: types.HashBytes([]byte("c0")), Size: 1024, Type: types.LinkBlob},
				{Hash: types.HashBytes([]byte("c1")), Size: 512, Type: types.LinkBlob},
			}},
		},
		{
			name: "directory with metadata and keys",
			node: types.TreeNode{Type: types.LinkDir, Links: []types.Link{
				{
					Hash: types.HashBytes([]byte("doc")),
					Key:  sampleKey("doc key"),
					Name: "document.txt",
					Size: 9000,
					Type: types.LinkBlob,
					Meta: map[string]string{"mime": "text/plain", "mode": "0644"},
				},
				{Hash: types.HashBytes([]byte("sub")), Name: "subdir", Type: types.LinkDir},
			}},
		},
		{
			name: "non-ascii names",
			node: types.TreeNode{Type: types.LinkDir, Links: []types.Link{
				{Hash: types.HashBytes([]byte("a")), Name: "日本語.txt", Type: types.LinkBlob},
				{Hash: types.HashBytes([]byte("b")), Name: "ärger.md", Type: types.LinkBlob},
			}},
		},
	}

	for _, tt := range tests {
		encoded, err := Encode(&tt.node)
		if err != nil {
			t.Fatalf("%s: encode: %v", tt.name, err)
		}
		decoded, err := Decode(encoded)
		if err != nil {
			t.Fatalf("%s: decode: %v", tt.name, err)
		}
		if decoded.Type != tt.node.Type {
			t.Fatalf("%s: type %v, want %v", tt.name, decoded.Type, tt.node.Type)
		}
		if len(decoded.Links) != len(tt.node.Links) {
			t.Fatalf("%s: %d links, want %d", tt.name, len(decoded.Links), len(tt.node.Links))
		}
	}
}

func TestDeterministicAcrossEntryOrder(t *testing.T) {
	a := types.Link{Hash: types.HashBytes([]byte("a")), Name: "a", Type: types.LinkBlob}
	b := types.Link{Hash: types.HashBytes([]byte("b")), Name: "b", Type: types.LinkBlob}

	e1, err := Encode(&types.TreeNode{Type: types.LinkDir, Links: []types.Link{a, b}})
	if err != nil {
		t.Fatal(err)
	}
	e2, err := Encode(&types.TreeNode{Type: types.LinkDir, Links: []types.Link{b, a}})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(e1, e2) {
		t.Fatal("directory encoding depends on entry order")
	}
}

func TestEncodeDoesNotMutateInput(t *testing.T) {
	node := types.TreeNode{Type: types.LinkDir, Links: []types.Link{
		{Hash: types.HashBytes([]byte("z")), Name: "z", Type: types.LinkBlob},
		{Hash: types.HashBytes([]byte("a")), Name: "a", Type: types.LinkBlob},
	}}
	if _, err := Encode(&node); err != nil {
		t.Fatal(err)
	}
	if node.Links[0].Name != "z" {
		t.Fatal("encode reordered the caller's links")
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"plain text", []byte("definitely not cbor")},
		{"truncated", func() []byte {
			enc, _ := Encode(&types.TreeNode{Type: types.LinkFile, Links: []types.Link{
				{Hash: types.HashBytes([]byte("x")), Type: types.LinkBlob},
			}})
			return enc[:len(enc)-3]
		}()},
	}
	for _, tt := range tests {
		_, err := Decode(tt.data)
		if !errors.Is(err, types.ErrMalformedEncoding) {
			t.Fatalf("%s: error %v, want ErrMalformedEncoding", tt.name, err)
		}
	}
}

func TestEncodeRejectsInvalidType(t *testing.T) {
	invalid := types.TreeNode{Type: 99}
	if _, err := Encode(&invalid); err == nil {
		t.Fatal("encode accepted an invalid node type")
	}
	if _, err := Encode(nil); err == nil {
		t.Fatal("encode accepted a nil node")
	}
}

func TestRawLeafAmbiguity(t *testing.T) {
	// The accepted ambiguity: a raw leaf whose bytes happen to be a valid
	// node encoding passes IsTreeNode. Build such a leaf deliberately by
	// using a node encoding as leaf content.
	encoded, err := Encode(&types.TreeNode{Type: types.LinkFile, Links: []types.Link{
		{Hash: types.HashBytes([]byte("x")), Size: 3, Type: types.LinkBlob},
	}})
	if err != nil {
		t.Fatal(err)
	}
	if !IsTreeNode(encoded) {
		t.Fatal("node encoding must pass the probe")
	}

	// Ordinary leaf bytes do not.
	if IsTreeNode([]byte("hello world, plain leaf bytes")) {
		t.Fatal("plain text passed the node probe")
	}
}
