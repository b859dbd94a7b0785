package resolver

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
)

const (
	refLogPrefix  = "reflog:"
	refLogSeqName = "reflog-seq"
)

// BadgerLog persists the ref log in a badger database, under a "reflog:" key
// prefix so it can share the database with the block store. Events are keyed
// by a monotonically increasing sequence number, preserving append order
// across restarts.
type BadgerLog struct {
	db       *badger.DB
	ownsDB   bool
	seq      *badger.Sequence
	notifier *notifier
	mu       sync.Mutex
}

// OpenBadgerLog opens (or creates) a log at path.
func OpenBadgerLog(path string) (*BadgerLog, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("resolver: open badger log at %s: %w", path, err)
	}
	log, err := NewBadgerLog(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	log.ownsDB = true
	return log, nil
}

// NewBadgerLog wraps an already open database. The caller keeps ownership of
// the database.
func NewBadgerLog(db *badger.DB) (*BadgerLog, error) {
	seq, err := db.GetSequence([]byte(refLogSeqName), 64)
	if err != nil {
		return nil, fmt.Errorf("resolver: log sequence: %w", err)
	}
	return &BadgerLog{db: db, seq: seq, notifier: newNotifier()}, nil
}

func refLogKey(seq uint64) []byte {
	key := make([]byte, len(refLogPrefix)+8)
	copy(key, refLogPrefix)
	binary.BigEndian.PutUint64(key[len(refLogPrefix):], seq)
	return key
}

// Append persists the event and notifies subscribers.
func (l *BadgerLog) Append(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := cbor.Marshal(&ev)
	if err != nil {
		return fmt.Errorf("resolver: encode event: %w", err)
	}

	l.mu.Lock()
	seq, err := l.seq.Next()
	if err != nil {
		l.mu.Unlock()
		return fmt.Errorf("resolver: log sequence: %w", err)
	}
	err = l.db.Update(func(txn *badger.Txn) error {
		return txn.Set(refLogKey(seq), data)
	})
	l.mu.Unlock()
	if err != nil {
		return fmt.Errorf("resolver: persist event: %w", err)
	}

	l.notifier.publish(ev)
	return nil
}

// Replay invokes fn for every persisted event in append order.
func (l *BadgerLog) Replay(fn func(Event) error) error {
	return l.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(refLogPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var ev Event
			err := it.Item().Value(func(data []byte) error {
				return cbor.Unmarshal(data, &ev)
			})
			if err != nil {
				return fmt.Errorf("resolver: decode event: %w", err)
			}
			if err := fn(ev); err != nil {
				return err
			}
		}
		return nil
	})
}

// Subscribe returns future events.
func (l *BadgerLog) Subscribe() (<-chan Event, func()) {
	return l.notifier.subscribe()
}

// Close releases the sequence and, when owned, the database.
func (l *BadgerLog) Close() error {
	l.notifier.close()
	if err := l.seq.Release(); err != nil {
		return err
	}
	if l.ownsDB {
		return l.db.Close()
	}
	return nil
}

var _ RefLog = (*BadgerLog)(nil)
