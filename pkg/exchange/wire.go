package exchange

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/verdantfs/verdant/pkg/types"
)

// Request asks for the block behind Hash. HTL (hops-to-live) bounds how far
// the request floods; zero means "do not relay further".
type Request struct {
	Hash types.Hash `cbor:"h"`
	HTL  uint8      `cbor:"htl,omitempty"`
}

// Response carries block bytes. Oversized blocks are split into FragTotal
// fragments delivered as independent responses sharing the same Hash.
// A single-fragment response has FragTotal zero.
type Response struct {
	Hash      types.Hash `cbor:"h"`
	Data      []byte     `cbor:"d"`
	FragIndex uint32     `cbor:"fi,omitempty"`
	FragTotal uint32     `cbor:"ft,omitempty"`
}

// Hello introduces a peer at the start of a handshake.
type Hello struct {
	ID PeerID `cbor:"id"`
}

// Offer carries an opaque session description during signaling.
type Offer struct {
	ID          PeerID `cbor:"id"`
	Description string `cbor:"sdp"`
}

// Answer completes a handshake; Accepted false means the remote refused
// admission (its pool is full).
type Answer struct {
	ID       PeerID `cbor:"id"`
	Accepted bool   `cbor:"ok"`
}

// Candidate advertises an additional address the sender is reachable on.
type Candidate struct {
	ID      PeerID `cbor:"id"`
	Address string `cbor:"addr"`
}

func encodeMessage(msgType MessageType, body interface{}) (Message, error) {
	payload, err := cbor.Marshal(body)
	if err != nil {
		return Message{}, fmt.Errorf("exchange: encode %s: %w", msgType, err)
	}
	return Message{Type: msgType, Payload: payload}, nil
}

// decodeBody parses a message payload into the struct matching its type.
func decodeBody(msg Message) (interface{}, error) {
	var body interface{}
	switch msg.Type {
	case MessageTypeRequest:
		body = new(Request)
	case MessageTypeResponse:
		body = new(Response)
	case MessageTypeHello:
		body = new(Hello)
	case MessageTypeOffer:
		body = new(Offer)
	case MessageTypeAnswer:
		body = new(Answer)
	case MessageTypeCandidate:
		body = new(Candidate)
	default:
		return nil, fmt.Errorf("exchange: unknown message type 0x%02x", uint8(msg.Type))
	}
	if err := cbor.Unmarshal(msg.Payload, body); err != nil {
		return nil, fmt.Errorf("exchange: decode %s: %w", msg.Type, err)
	}
	return body, nil
}
