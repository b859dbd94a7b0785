package resolver

import (
	"context"
	"sync"
)

// MemoryLog is an in-memory RefLog for tests and single-node use.
type MemoryLog struct {
	mu       sync.Mutex
	events   []Event
	notifier *notifier
}

// NewMemoryLog creates an empty log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{notifier: newNotifier()}
}

// Append stores the event and notifies subscribers.
func (l *MemoryLog) Append(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()

	l.notifier.publish(ev)
	return nil
}

// Replay invokes fn for every stored event in append order.
func (l *MemoryLog) Replay(fn func(Event) error) error {
	l.mu.Lock()
	snapshot := make([]Event, len(l.events))
	copy(snapshot, l.events)
	l.mu.Unlock()

	for _, ev := range snapshot {
		if err := fn(ev); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe returns future events.
func (l *MemoryLog) Subscribe() (<-chan Event, func()) {
	return l.notifier.subscribe()
}

// Close shuts down all subscriptions.
func (l *MemoryLog) Close() error {
	l.notifier.close()
	return nil
}

var _ RefLog = (*MemoryLog)(nil)
