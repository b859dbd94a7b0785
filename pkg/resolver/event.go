// Package resolver implements the mutable-pointer layer: named refs mapping
// (owner, tree) keys to tree root CIDs, resolved last-writer-wins over a
// replicated append-only event log.
package resolver

import (
	"context"
	"sync"

	"github.com/verdantfs/verdant/pkg/types"
)

// Event is one entry of the ref log. A zero Hash is a tombstone.
type Event struct {
	Owner string `cbor:"o"`
	Tree  string `cbor:"t"`
	// Timestamp is unix milliseconds. Conflicts resolve on it, not on
	// arrival order.
	Timestamp  int64               `cbor:"ts"`
	Hash       types.Hash          `cbor:"h"`
	EncKey     *types.Key          `cbor:"k,omitempty"`
	Visibility types.RefVisibility `cbor:"v,omitempty"`
}

// Deleted reports whether the event is a tombstone.
func (e Event) Deleted() bool {
	return e.Hash.IsZero()
}

// RefKey returns the (owner, tree) key the event belongs to.
func (e Event) RefKey() types.RefKey {
	return types.RefKey{Owner: e.Owner, Tree: e.Tree}
}

// CID returns the content identifier the event points at. Meaningless for
// tombstones.
func (e Event) CID() types.CID {
	return types.CID{Hash: e.Hash, Key: e.EncKey}
}

// RefLog is an append-only, replicated event log. Append order carries no
// meaning; consumers resolve conflicts by timestamp.
type RefLog interface {
	// Append adds an event to the log.
	Append(ctx context.Context, ev Event) error

	// Replay invokes fn for every event already in the log.
	Replay(fn func(Event) error) error

	// Subscribe returns a channel of future events plus a cancel func.
	// The channel closes after cancel.
	Subscribe() (<-chan Event, func())

	// Close releases the log.
	Close() error
}

// notifier fans events out to subscribers. Shared by the log backends.
type notifier struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
	closed bool
}

func newNotifier() *notifier {
	return &notifier{subs: make(map[int]chan Event)}
}

func (n *notifier) subscribe() (<-chan Event, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextID
	n.nextID++
	ch := make(chan Event, 256)
	if n.closed {
		close(ch)
		return ch, func() {}
	}
	n.subs[id] = ch

	return ch, func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if sub, ok := n.subs[id]; ok {
			delete(n.subs, id)
			close(sub)
		}
	}
}

// publish delivers to every subscriber. A subscriber that stopped draining
// loses events rather than blocking the log.
func (n *notifier) publish(ev Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (n *notifier) close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	for id, ch := range n.subs {
		delete(n.subs, id)
		close(ch)
	}
}
