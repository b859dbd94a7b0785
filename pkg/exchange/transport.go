package exchange

import (
	"context"
)

// MessageType is the leading wire byte discriminating message bodies.
type MessageType uint8

const (
	// MessageTypeRequest asks peers for a block by hash.
	MessageTypeRequest MessageType = 0x00
	// MessageTypeResponse delivers a block, possibly as one fragment of many.
	MessageTypeResponse MessageType = 0x01

	// Signaling types drive the connection state machine before a peer is
	// admitted to a pool.

	// MessageTypeHello opens a handshake and introduces the sender's ID.
	MessageTypeHello MessageType = 0x02
	// MessageTypeOffer carries a session description during signaling.
	MessageTypeOffer MessageType = 0x03
	// MessageTypeAnswer accepts a handshake and completes signaling.
	MessageTypeAnswer MessageType = 0x04
	// MessageTypeCandidate advertises an additional reachable address.
	MessageTypeCandidate MessageType = 0x05
)

var messageTypeNames = map[MessageType]string{
	MessageTypeRequest:   "Request",
	MessageTypeResponse:  "Response",
	MessageTypeHello:     "Hello",
	MessageTypeOffer:     "Offer",
	MessageTypeAnswer:    "Answer",
	MessageTypeCandidate: "Candidate",
}

func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return "Unknown"
}

// Message is one framed unit on a connection: the type byte plus an encoded
// body.
type Message struct {
	Type    MessageType
	Payload []byte
}

// Conn is a bidirectional message channel to one remote peer.
type Conn interface {
	// Send transmits a message. Safe for use by one sender at a time.
	Send(ctx context.Context, msg Message) error

	// Receive waits for and returns the next message.
	Receive(ctx context.Context) (Message, error)

	// RemoteAddr returns the remote endpoint's address.
	RemoteAddr() string

	// Close terminates the connection. Pending Receives unblock with errors.
	Close() error
}

// Listener accepts incoming connections.
type Listener interface {
	Accept(ctx context.Context) (Conn, error)
	Addr() string
	Close() error
}

// Transport abstracts the network layer so the exchange can run over TCP in
// production and over in-process pipes in tests.
type Transport interface {
	Connect(ctx context.Context, address string) (Conn, error)
	Listen(ctx context.Context, address string) (Listener, error)
	Close() error
}
