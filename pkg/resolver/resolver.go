package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/verdantfs/verdant/pkg/types"
)

// DefaultGraceWindow is the anti-undelete window: a create event timestamped
// within it after a newer tombstone is rejected even when nominally newer,
// which defeats delayed or replayed creates flickering a deleted ref back
// to life.
const DefaultGraceWindow = 30 * time.Second

// Config configures a Resolver.
type Config struct {
	// Log is the replicated event log. Required.
	Log RefLog

	// GraceWindow overrides DefaultGraceWindow.
	GraceWindow time.Duration

	// Clock is injectable for tests. Defaults to time.Now.
	Clock func() time.Time

	Logger *slog.Logger
}

// Resolver derives the current value of every ref key from the
// highest-timestamp accepted event, and keeps local subscribers current.
type Resolver struct {
	log   RefLog
	grace time.Duration
	clock func() time.Time
	logg  *slog.Logger

	startOnce sync.Once
	closeOnce sync.Once
	stop      func()
	done      chan struct{}

	mu         sync.Mutex
	state      map[types.RefKey]Event
	subs       map[types.RefKey]map[int]func(Event)
	prefixSubs map[int]prefixSub
	waiters    map[types.RefKey][]chan Event
	nextSub    int
}

type prefixSub struct {
	prefix string
	cb     func(Event)
}

// New creates a resolver over the given log.
func New(cfg Config) (*Resolver, error) {
	if cfg.Log == nil {
		return nil, fmt.Errorf("resolver: ref log is required")
	}
	if cfg.GraceWindow <= 0 {
		cfg.GraceWindow = DefaultGraceWindow
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Resolver{
		log:     cfg.Log,
		grace:   cfg.GraceWindow,
		clock:   cfg.Clock,
		logg:    cfg.Logger.With("component", "resolver"),
		done:    make(chan struct{}),
		state:   make(map[types.RefKey]Event),
		subs:    make(map[types.RefKey]map[int]func(Event)),
		waiters: make(map[types.RefKey][]chan Event),
	}, nil
}

// Start replays the log into local state and begins consuming new events.
func (r *Resolver) Start() error {
	var startErr error
	r.startOnce.Do(func() {
		if err := r.log.Replay(func(ev Event) error {
			r.apply(ev)
			return nil
		}); err != nil {
			startErr = fmt.Errorf("resolver: replay log: %w", err)
			return
		}

		events, cancel := r.log.Subscribe()
		r.stop = cancel
		go func() {
			defer close(r.done)
			for ev := range events {
				r.apply(ev)
			}
		}()
	})
	return startErr
}

// Close stops consuming the log. The log itself stays open for its owner.
func (r *Resolver) Close() error {
	r.closeOnce.Do(func() {
		if r.stop != nil {
			r.stop()
			<-r.done
		}
	})
	return nil
}

// accepts is the exact conflict rule. cur is the currently accepted event
// for the key, or nil.
//
// A strictly newer event wins, except a create inside the grace window after
// a newer-accepted tombstone. At equal timestamps only a delete may replace
// a create, so either arrival order of a same-timestamp create/delete pair
// converges to deleted.
//
// The final branch deliberately extends "an older event always loses": a
// tombstone arriving late still covers a create inside its grace window.
// Without it, the tombstone-then-create order suppresses the create while
// the create-then-tombstone order keeps it, and replicas that saw different
// orders never converge. The anti-undelete window only works when it is
// applied retroactively too.
func (r *Resolver) accepts(cur *Event, in Event) bool {
	if cur == nil {
		return true
	}
	switch {
	case in.Timestamp > cur.Timestamp:
		if !in.Deleted() && cur.Deleted() && in.Timestamp-cur.Timestamp <= r.grace.Milliseconds() {
			return false
		}
		return true
	case in.Timestamp == cur.Timestamp:
		return in.Deleted() && !cur.Deleted()
	default:
		return in.Deleted() && !cur.Deleted() && cur.Timestamp-in.Timestamp <= r.grace.Milliseconds()
	}
}

// apply runs an event through the conflict rule and, when accepted, updates
// state and notifies subscribers and waiters synchronously.
func (r *Resolver) apply(ev Event) {
	key := ev.RefKey()

	r.mu.Lock()
	var cur *Event
	if existing, ok := r.state[key]; ok {
		cur = &existing
	}
	if !r.accepts(cur, ev) {
		r.mu.Unlock()
		return
	}
	r.state[key] = ev

	callbacks := make([]func(Event), 0, len(r.subs[key]))
	for _, cb := range r.subs[key] {
		callbacks = append(callbacks, cb)
	}
	for _, sub := range r.prefixSubs {
		if strings.HasPrefix(key.Owner, sub.prefix) {
			callbacks = append(callbacks, sub.cb)
		}
	}
	waiting := r.waiters[key]
	delete(r.waiters, key)
	r.mu.Unlock()

	for _, cb := range callbacks {
		cb(ev)
	}
	for _, ch := range waiting {
		ch <- ev
	}
}

// Resolve returns the current CID for key, blocking until the first event
// for the key arrives. It imposes no timeout of its own; bound it through
// ctx. A tombstoned key returns ErrRefDeleted.
func (r *Resolver) Resolve(ctx context.Context, key types.RefKey) (types.CID, error) {
	r.mu.Lock()
	if ev, known := r.state[key]; known {
		r.mu.Unlock()
		return eventCID(ev)
	}
	ch := make(chan Event, 1)
	r.waiters[key] = append(r.waiters[key], ch)
	r.mu.Unlock()

	select {
	case ev := <-ch:
		return eventCID(ev)
	case <-ctx.Done():
		r.removeWaiter(key, ch)
		return types.CID{}, ctx.Err()
	}
}

func (r *Resolver) removeWaiter(key types.RefKey, ch chan Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.waiters[key]
	for i, c := range list {
		if c == ch {
			r.waiters[key] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(r.waiters[key]) == 0 {
		delete(r.waiters, key)
	}
}

func eventCID(ev Event) (types.CID, error) {
	if ev.Deleted() {
		return types.CID{}, fmt.Errorf("%w: %s", types.ErrRefDeleted, ev.RefKey())
	}
	return ev.CID(), nil
}

// Subscribe registers a callback for key. It fires synchronously with the
// best known value first (when one exists), then on every accepted
// strictly-newer event, until the returned unsubscribe runs. All callbacks
// for a key share the resolver's single log subscription.
func (r *Resolver) Subscribe(key types.RefKey, cb func(Event)) func() {
	r.mu.Lock()
	if r.subs[key] == nil {
		r.subs[key] = make(map[int]func(Event))
	}
	id := r.nextSub
	r.nextSub++
	r.subs[key][id] = cb
	known, hasKnown := r.state[key]
	r.mu.Unlock()

	if hasKnown {
		cb(known)
	}

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if callbacks, ok := r.subs[key]; ok {
			delete(callbacks, id)
			if len(callbacks) == 0 {
				delete(r.subs, key)
			}
		}
	}
}

// Publish points key at cid. The local state and subscribers are updated
// synchronously, so the publisher reads its own write; the log append runs
// asynchronously, and a failure there is logged, not rolled back.
func (r *Resolver) Publish(ctx context.Context, key types.RefKey, cid types.CID, visibility types.RefVisibility) error {
	if key.Owner == "" || key.Tree == "" {
		return fmt.Errorf("resolver: owner and tree are required")
	}
	if cid.Hash.IsZero() {
		return fmt.Errorf("resolver: publishing a zero hash; use Delete for tombstones")
	}

	ev := Event{
		Owner:      key.Owner,
		Tree:       key.Tree,
		Timestamp:  r.clock().UnixMilli(),
		Hash:       cid.Hash,
		EncKey:     cid.Key,
		Visibility: visibility,
	}
	r.apply(ev)
	r.appendAsync(ctx, ev)
	return nil
}

// Delete tombstones key. The tombstone is timestamped strictly after now so
// it beats concurrent creates stamped at now.
func (r *Resolver) Delete(ctx context.Context, key types.RefKey) error {
	if key.Owner == "" || key.Tree == "" {
		return fmt.Errorf("resolver: owner and tree are required")
	}

	ev := Event{
		Owner:     key.Owner,
		Tree:      key.Tree,
		Timestamp: r.clock().UnixMilli() + 1,
	}
	r.apply(ev)
	r.appendAsync(ctx, ev)
	return nil
}

func (r *Resolver) appendAsync(ctx context.Context, ev Event) {
	go func() {
		appendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := r.log.Append(appendCtx, ev); err != nil {
			r.logg.Error("log append failed", "key", ev.RefKey(), "error", err)
		}
	}()
}

// List returns the live refs whose owner starts with ownerPrefix, sorted by
// key. Tombstoned refs are filtered from the output but stay in local state,
// where the grace window still needs them.
func (r *Resolver) List(ownerPrefix string) []types.RefEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]types.RefEntry, 0, len(r.state))
	for key, ev := range r.state {
		if ev.Deleted() || !strings.HasPrefix(key.Owner, ownerPrefix) {
			continue
		}
		entries = append(entries, types.RefEntry{
			Key:        key,
			Hash:       ev.Hash,
			DecryptKey: ev.EncKey,
			Visibility: ev.Visibility,
			CreatedAt:  time.UnixMilli(ev.Timestamp),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Key.String() < entries[j].Key.String()
	})
	return entries
}

// WatchPrefix registers a callback for every accepted event whose owner
// starts with ownerPrefix, firing first with all matching known state.
// It returns an unsubscribe func.
func (r *Resolver) WatchPrefix(ownerPrefix string, cb func(Event)) func() {
	r.mu.Lock()
	var known []Event
	for key, ev := range r.state {
		if strings.HasPrefix(key.Owner, ownerPrefix) {
			known = append(known, ev)
		}
	}
	sort.Slice(known, func(i, j int) bool {
		return known[i].RefKey().String() < known[j].RefKey().String()
	})

	// A prefix watch is a per-key subscription applied to current and
	// future keys; implemented as a filter on the shared apply path.
	if r.prefixSubs == nil {
		r.prefixSubs = make(map[int]prefixSub)
	}
	id := r.nextSub
	r.nextSub++
	r.prefixSubs[id] = prefixSub{prefix: ownerPrefix, cb: cb}
	r.mu.Unlock()

	for _, ev := range known {
		cb(ev)
	}

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.prefixSubs, id)
	}
}
