package exchange

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// PeerState tracks the connection lifecycle of one peer.
type PeerState uint8

const (
	// PeerStateInitial is a freshly created peer before signaling completes.
	PeerStateInitial PeerState = iota
	// PeerStateConnected is a fully admitted peer exchanging blocks.
	PeerStateConnected
	// PeerStateClosed is a terminated peer; the state is terminal.
	PeerStateClosed
)

func (s PeerState) String() string {
	switch s {
	case PeerStateInitial:
		return "Initial"
	case PeerStateConnected:
		return "Connected"
	case PeerStateClosed:
		return "Closed"
	}
	return "Unknown"
}

// PeerID identifies a peer connection: the logical identity (public key) plus
// a per-connection UUID, so one identity can hold several concurrent
// connections without them colliding.
type PeerID struct {
	PubKey string    `cbor:"pk"`
	UUID   uuid.UUID `cbor:"u"`
}

// NewPeerID mints a connection-unique ID for the given identity.
func NewPeerID(pubKey string) PeerID {
	return PeerID{PubKey: pubKey, UUID: uuid.New()}
}

func (id PeerID) String() string {
	return fmt.Sprintf("%s/%s", id.PubKey, id.UUID)
}

// Peer is one live connection. All fields besides conn are owned by the
// exchange event loop and must not be touched elsewhere.
type Peer struct {
	ID    PeerID
	State PeerState
	Pool  PoolClass

	// Candidates are additional addresses learned during signaling.
	Candidates []string

	conn Conn
}

// send encodes and transmits a message. It runs outside the event loop so a
// slow peer cannot stall the exchange.
func (p *Peer) send(ctx context.Context, msgType MessageType, body interface{}) error {
	msg, err := encodeMessage(msgType, body)
	if err != nil {
		return err
	}
	return p.conn.Send(ctx, msg)
}
