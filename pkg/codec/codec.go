// Package codec implements the canonical binary encoding of TreeNodes.
//
// Encoding uses CBOR Core Deterministic Encoding: map keys are sorted and
// integers use their shortest form, so byte-identical logical content always
// encodes — and therefore hashes — identically across platforms and peers.
//
// A known, accepted ambiguity: raw leaf bytes share a namespace with encoded
// nodes, and arbitrary leaf bytes can coincidentally decode as a valid node.
// The explicit LinkType discriminant on the referencing Link is authoritative;
// IsTreeNode is only a probe for contexts that genuinely have no link in hand
// (such as reassembling an oversized directory). This is a compatibility
// property of the wire format, not a defect to patch here.
package codec

import (
	"fmt"
	"sort"

	"github.com/fxamacker/cbor/v2"

	"github.com/verdantfs/verdant/pkg/types"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("codec: init encode mode: %v", err))
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("codec: init decode mode: %v", err))
	}
}

// Encode serializes a TreeNode to its canonical byte form. Directory links
// are sorted by name first, so logically identical directories encode
// identically regardless of the order entries were supplied in.
func Encode(node *types.TreeNode) ([]byte, error) {
	if node == nil {
		return nil, fmt.Errorf("codec: nil node")
	}
	if !node.Type.Valid() {
		return nil, fmt.Errorf("codec: invalid node type %d", node.Type)
	}

	canonical := types.TreeNode{
		Type:  node.Type,
		Links: make([]types.Link, len(node.Links)),
	}
	copy(canonical.Links, node.Links)
	if canonical.Type == types.LinkDir {
		sort.Slice(canonical.Links, func(i, j int) bool {
			return canonical.Links[i].Name < canonical.Links[j].Name
		})
	}

	data, err := encMode.Marshal(&canonical)
	if err != nil {
		return nil, fmt.Errorf("codec: encode node: %w", err)
	}
	return data, nil
}

// Decode parses canonical bytes back into a TreeNode. It returns
// types.ErrMalformedEncoding (wrapped) if the bytes are not a valid node.
func Decode(data []byte) (*types.TreeNode, error) {
	var node types.TreeNode
	if err := decMode.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrMalformedEncoding, err)
	}
	if !node.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown node type %d", types.ErrMalformedEncoding, node.Type)
	}
	for i := range node.Links {
		if !node.Links[i].Type.Valid() {
			return nil, fmt.Errorf("%w: unknown link type %d", types.ErrMalformedEncoding, node.Links[i].Type)
		}
	}
	if node.Links == nil {
		node.Links = []types.Link{}
	}
	return &node, nil
}

// IsTreeNode probes whether bytes parse as a valid node, without returning
// an error. Raw leaf bytes can coincidentally pass this probe; callers that
// hold a typed Link must trust the link's discriminant instead.
func IsTreeNode(data []byte) bool {
	_, err := Decode(data)
	return err == nil
}
