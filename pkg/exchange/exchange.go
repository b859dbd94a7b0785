// Package exchange implements the peer-to-peer block exchange: hop-limited
// probabilistic request flooding, fragmented responses with bounded
// reassembly, admission pools, and fallback stores.
//
// Concurrency model: one event-loop goroutine owns all cross-cutting state
// (pools, pending waiters, relay interest, the reassembly table). Peer
// readers, senders, and store lookups run on their own goroutines and hand
// state changes to the loop, so the shared state needs no locks.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/verdantfs/verdant/pkg/storage"
	"github.com/verdantfs/verdant/pkg/types"
)

// ErrNotStarted is returned by exchange operations before Start.
var ErrNotStarted = errors.New("exchange: not started")

// Config configures an Exchange.
type Config struct {
	// Identity is the node's public identity (hex public key). Every
	// connection derives a fresh PeerID from it.
	Identity string

	// Transport provides the network layer. Required.
	Transport Transport

	// ListenAddr, when set, accepts inbound connections.
	ListenAddr string

	// Store is the local block store, shared with the tree engine. Required.
	Store storage.BlockStore

	// Fallbacks are consulted only after all connected peers failed to
	// answer within RequestTimeout.
	Fallbacks []storage.BlockStore

	// Bootstrap addresses are dialed while the pools want more connections.
	Bootstrap []string

	// Classifier assigns handshaking peers to pools. Defaults to PoolOther
	// for everyone.
	Classifier Classifier

	Follows PoolConfig
	Other   PoolConfig

	// RequestTimeout bounds one request/response round trip. Default 10s.
	RequestTimeout time.Duration

	// FragmentSize splits oversized responses. Default 64KB.
	FragmentSize int

	// StallTimeout cancels a reassembly with no fragment inside the window;
	// TotalTimeout is its worst-case completion bound. Defaults 5s / 30s.
	StallTimeout time.Duration
	TotalTimeout time.Duration

	// MaxPendingReassemblies and MaxReassemblyBytes cap fragment buffers
	// globally. Defaults 256 / 64MB.
	MaxPendingReassemblies int
	MaxReassemblyBytes     int

	// MaxHTL is the hops-to-live on locally originated requests. Default 10.
	MaxHTL uint8

	// Rand supplies the uniform [0,1) samples for HTL decrements.
	// Injectable for tests; defaults to math/rand.
	Rand func() float64

	Logger *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.Classifier == nil {
		c.Classifier = func(PeerID) PoolClass { return PoolOther }
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.FragmentSize < 1 {
		c.FragmentSize = 64 * 1024
	}
	if c.StallTimeout <= 0 {
		c.StallTimeout = 5 * time.Second
	}
	if c.TotalTimeout <= 0 {
		c.TotalTimeout = 30 * time.Second
	}
	if c.MaxPendingReassemblies < 1 {
		c.MaxPendingReassemblies = 256
	}
	if c.MaxReassemblyBytes < 1 {
		c.MaxReassemblyBytes = 64 * 1024 * 1024
	}
	if c.MaxHTL < 1 || c.MaxHTL > DefaultMaxHTL {
		c.MaxHTL = DefaultMaxHTL
	}
	if c.Rand == nil {
		c.Rand = rand.Float64
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

type fetchResult struct {
	data []byte
	err  error
}

type relayEntry struct {
	peers   []PeerID
	created time.Time
}

// Exchange is one node's view of the block exchange.
type Exchange struct {
	cfg   Config
	id    PeerID
	log   *slog.Logger
	stats Stats

	events chan func()

	ctx    context.Context
	cancel context.CancelFunc

	started   atomic.Bool
	startOnce sync.Once
	closeOnce sync.Once

	listener Listener

	// connMu guards the raw connection registry used for shutdown; all
	// richer peer state belongs to the loop.
	connMu sync.Mutex
	conns  map[Conn]struct{}

	// Loop-owned state. Only the run goroutine touches these.
	follows    *pool
	other      *pool
	peers      map[PeerID]*Peer
	waiters    map[types.Hash][]chan fetchResult
	relays     map[types.Hash]*relayEntry
	corrupt    map[types.Hash]struct{}
	reassembly *reassemblyTable
}

// New creates an exchange. Call Start before using it.
func New(cfg Config) (*Exchange, error) {
	if cfg.Transport == nil {
		return nil, fmt.Errorf("exchange: transport is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("exchange: block store is required")
	}
	cfg.applyDefaults()

	e := &Exchange{
		cfg:     cfg,
		id:      NewPeerID(cfg.Identity),
		log:     cfg.Logger.With("component", "exchange"),
		events:  make(chan func(), 256),
		conns:   make(map[Conn]struct{}),
		follows: newPool(PoolFollows, cfg.Follows),
		other:   newPool(PoolOther, cfg.Other),
		peers:   make(map[PeerID]*Peer),
		waiters: make(map[types.Hash][]chan fetchResult),
		relays:  make(map[types.Hash]*relayEntry),
		corrupt: make(map[types.Hash]struct{}),
		reassembly: newReassemblyTable(reassemblyConfig{
			stallTimeout:     cfg.StallTimeout,
			totalTimeout:     cfg.TotalTimeout,
			maxPending:       cfg.MaxPendingReassemblies,
			maxBufferedBytes: cfg.MaxReassemblyBytes,
		}),
	}
	return e, nil
}

// ID returns the node's connection identity.
func (e *Exchange) ID() PeerID {
	return e.id
}

// Stats exposes the exchange counters.
func (e *Exchange) Stats() *Stats {
	return &e.stats
}

// Start launches the event loop, the listener when configured, and the
// initial bootstrap dials.
func (e *Exchange) Start(ctx context.Context) error {
	var startErr error
	e.startOnce.Do(func() {
		e.ctx, e.cancel = context.WithCancel(context.WithoutCancel(ctx))

		if e.cfg.ListenAddr != "" {
			listener, err := e.cfg.Transport.Listen(e.ctx, e.cfg.ListenAddr)
			if err != nil {
				startErr = fmt.Errorf("exchange: listen on %s: %w", e.cfg.ListenAddr, err)
				e.cancel()
				return
			}
			e.listener = listener
			go e.acceptLoop(listener)
		}

		go e.run()
		e.started.Store(true)

		for _, addr := range e.cfg.Bootstrap {
			addr := addr
			go func() {
				if _, err := e.Connect(e.ctx, addr); err != nil {
					e.log.Warn("bootstrap dial failed", "addr", addr, "error", err)
				}
			}()
		}
	})
	return startErr
}

// Close shuts the exchange down: listener, all connections, transport.
func (e *Exchange) Close() error {
	e.closeOnce.Do(func() {
		e.started.Store(false)
		if e.cancel != nil {
			e.cancel()
		}
		if e.listener != nil {
			_ = e.listener.Close()
		}
		e.connMu.Lock()
		for conn := range e.conns {
			_ = conn.Close()
		}
		e.conns = map[Conn]struct{}{}
		e.connMu.Unlock()
		_ = e.cfg.Transport.Close()
	})
	return nil
}

// post hands a closure to the event loop.
func (e *Exchange) post(fn func()) {
	select {
	case e.events <- fn:
	case <-e.ctx.Done():
	}
}

// run is the event loop. All loop-owned state is mutated here only.
func (e *Exchange) run() {
	sweepEvery := e.cfg.StallTimeout / 4
	if sweepEvery < 100*time.Millisecond {
		sweepEvery = 100 * time.Millisecond
	}
	ticker := time.NewTicker(sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case fn := <-e.events:
			fn()
		case now := <-ticker.C:
			expired := e.reassembly.sweep(now)
			for _, hash := range expired {
				e.stats.ReassembliesExpired.Add(1)
				e.log.Debug("reassembly expired", "hash", hash)
			}
			for hash, entry := range e.relays {
				if now.Sub(entry.created) > e.cfg.TotalTimeout {
					delete(e.relays, hash)
				}
			}
		case <-e.ctx.Done():
			return
		}
	}
}

func (e *Exchange) trackConn(conn Conn) {
	e.connMu.Lock()
	e.conns[conn] = struct{}{}
	e.connMu.Unlock()
}

func (e *Exchange) untrackConn(conn Conn) {
	e.connMu.Lock()
	delete(e.conns, conn)
	e.connMu.Unlock()
}

// acceptLoop admits inbound connections until the listener closes.
func (e *Exchange) acceptLoop(listener Listener) {
	for {
		conn, err := listener.Accept(e.ctx)
		if err != nil {
			if e.ctx.Err() == nil {
				e.log.Warn("accept failed", "error", err)
			}
			return
		}
		go e.handleInbound(conn)
	}
}

// handleInbound runs the answering side of the handshake: wait for Hello,
// consult the target pool, then admit or refuse.
func (e *Exchange) handleInbound(conn Conn) {
	e.trackConn(conn)

	hello, err := e.awaitHello(conn)
	if err != nil {
		e.log.Debug("handshake failed", "addr", conn.RemoteAddr(), "error", err)
		e.untrackConn(conn)
		_ = conn.Close()
		return
	}

	peer := &Peer{ID: hello.ID, State: PeerStateInitial, conn: conn}
	class := e.cfg.Classifier(peer.ID)

	admitted := make(chan bool, 1)
	e.post(func() {
		admitted <- e.admit(peer, class)
	})

	var ok bool
	select {
	case ok = <-admitted:
	case <-e.ctx.Done():
		e.untrackConn(conn)
		_ = conn.Close()
		return
	}
	answer := Answer{ID: e.id, Accepted: ok}
	if err := peer.send(e.ctx, MessageTypeAnswer, &answer); err != nil || !ok {
		e.post(func() { e.dropPeer(peer) })
		return
	}
	go e.readLoop(peer)
}

// awaitHello reads signaling until the opening Hello arrives.
func (e *Exchange) awaitHello(conn Conn) (*Hello, error) {
	for {
		msg, err := conn.Receive(e.ctx)
		if err != nil {
			return nil, err
		}
		body, err := decodeBody(msg)
		if err != nil {
			return nil, err
		}
		switch m := body.(type) {
		case *Hello:
			return m, nil
		case *Offer, *Candidate:
			// Pre-hello signaling is tolerated and ignored.
		default:
			return nil, fmt.Errorf("exchange: unexpected %s before hello", msg.Type)
		}
	}
}

// admit moves a peer into its pool. Loop context.
func (e *Exchange) admit(peer *Peer, class PoolClass) bool {
	target := e.poolFor(class)
	if !target.canAccept() {
		e.log.Debug("pool full, refusing peer", "pool", class, "peer", peer.ID)
		return false
	}
	peer.State = PeerStateConnected
	target.add(peer)
	e.peers[peer.ID] = peer
	e.log.Info("peer connected", "peer", peer.ID, "pool", class, "poolSize", target.size())
	return true
}

func (e *Exchange) poolFor(class PoolClass) *pool {
	if class == PoolFollows {
		return e.follows
	}
	return e.other
}

// Connect dials a peer, runs the offering side of the handshake, and admits
// the peer on success.
func (e *Exchange) Connect(ctx context.Context, address string) (PeerID, error) {
	if !e.started.Load() {
		return PeerID{}, ErrNotStarted
	}
	conn, err := e.cfg.Transport.Connect(ctx, address)
	if err != nil {
		return PeerID{}, fmt.Errorf("exchange: connect %s: %w", address, err)
	}
	e.trackConn(conn)

	fail := func(err error) (PeerID, error) {
		e.untrackConn(conn)
		_ = conn.Close()
		return PeerID{}, err
	}

	hello, err := encodeMessage(MessageTypeHello, &Hello{ID: e.id})
	if err != nil {
		return fail(err)
	}
	if err := conn.Send(ctx, hello); err != nil {
		return fail(fmt.Errorf("exchange: hello to %s: %w", address, err))
	}

	peer := &Peer{State: PeerStateInitial, conn: conn}
	for {
		msg, err := conn.Receive(ctx)
		if err != nil {
			return fail(fmt.Errorf("exchange: handshake with %s: %w", address, err))
		}
		body, err := decodeBody(msg)
		if err != nil {
			return fail(err)
		}
		switch m := body.(type) {
		case *Answer:
			if !m.Accepted {
				return fail(fmt.Errorf("exchange: %s refused admission", address))
			}
			peer.ID = m.ID
		case *Candidate:
			peer.Candidates = append(peer.Candidates, m.Address)
			continue
		case *Offer:
			continue
		default:
			return fail(fmt.Errorf("exchange: unexpected %s during handshake", msg.Type))
		}
		break
	}

	class := e.cfg.Classifier(peer.ID)
	admitted := make(chan bool, 1)
	e.post(func() {
		admitted <- e.admit(peer, class)
	})
	select {
	case ok := <-admitted:
		if !ok {
			return fail(fmt.Errorf("exchange: local pool %s full", class))
		}
	case <-e.ctx.Done():
		return fail(e.ctx.Err())
	}

	go e.readLoop(peer)
	return peer.ID, nil
}

// readLoop pumps one peer's inbound messages into the event loop.
func (e *Exchange) readLoop(peer *Peer) {
	for {
		msg, err := peer.conn.Receive(e.ctx)
		if err != nil {
			e.post(func() { e.dropPeer(peer) })
			return
		}
		body, err := decodeBody(msg)
		if err != nil {
			e.log.Debug("undecodable message", "peer", peer.ID, "error", err)
			continue
		}
		switch m := body.(type) {
		case *Request:
			e.post(func() { e.handleRequest(peer, m) })
		case *Response:
			e.post(func() { e.handleResponse(m) })
		case *Candidate:
			e.post(func() { peer.Candidates = append(peer.Candidates, m.Address) })
		default:
			// Signaling after admission is ignored.
		}
	}
}

// dropPeer removes a peer everywhere. Loop context.
func (e *Exchange) dropPeer(peer *Peer) {
	if peer.State == PeerStateClosed {
		return
	}
	peer.State = PeerStateClosed
	e.untrackConn(peer.conn)
	_ = peer.conn.Close()

	if _, known := e.peers[peer.ID]; known {
		delete(e.peers, peer.ID)
		e.poolFor(peer.Pool).remove(peer.ID)
		e.log.Info("peer disconnected", "peer", peer.ID, "pool", peer.Pool)
		e.seekConnections()
	}
}

// seekConnections opportunistically dials bootstrap addresses while a pool
// is below its satisfied watermark. Re-evaluated on pool state changes, not
// on a schedule. Loop context.
func (e *Exchange) seekConnections() {
	if !e.follows.wantsMore() && !e.other.wantsMore() {
		return
	}
	for _, addr := range e.cfg.Bootstrap {
		addr := addr
		go func() {
			if _, err := e.Connect(e.ctx, addr); err != nil {
				e.log.Debug("reconnect attempt failed", "addr", addr, "error", err)
			}
		}()
	}
}

// connectedPeers snapshots the admitted peers, excluding one. Loop context.
func (e *Exchange) connectedPeers(except PeerID) []*Peer {
	out := make([]*Peer, 0, len(e.peers))
	for id, peer := range e.peers {
		if id == except {
			continue
		}
		out = append(out, peer)
	}
	return out
}

// handleRequest serves a block request from a peer: answer from the local
// store, otherwise relay with a decremented hop count. Loop context; the
// store lookup itself runs on its own goroutine.
func (e *Exchange) handleRequest(peer *Peer, req *Request) {
	e.stats.RequestsReceived.Add(1)

	go func() {
		data, err := e.cfg.Store.Get(e.ctx, req.Hash)
		if err != nil {
			e.log.Warn("store read failed", "hash", req.Hash, "error", err)
			return
		}
		if data != nil {
			e.respondTo(peer, req.Hash, data)
			return
		}
		e.post(func() { e.relayRequest(peer, req) })
	}()
}

// relayRequest floods a request onwards with probabilistically decremented
// hops-to-live and records who to route the answer back to. Loop context.
func (e *Exchange) relayRequest(from *Peer, req *Request) {
	next, relay := NextHTL(req.HTL, e.cfg.Rand())
	if !relay {
		return
	}

	entry := e.relays[req.Hash]
	if entry == nil {
		entry = &relayEntry{created: time.Now()}
		e.relays[req.Hash] = entry
	}
	// A peer re-requesting the same hash must not receive the answer twice.
	registered := false
	for _, id := range entry.peers {
		if id == from.ID {
			registered = true
			break
		}
	}
	if !registered {
		entry.peers = append(entry.peers, from.ID)
	}

	out := Request{Hash: req.Hash, HTL: next}
	for _, peer := range e.connectedPeers(from.ID) {
		peer := peer
		go func() {
			if err := peer.send(e.ctx, MessageTypeRequest, &out); err != nil {
				e.log.Debug("relay send failed", "peer", peer.ID, "error", err)
			}
		}()
		e.stats.RequestsRelayed.Add(1)
	}
}

// respondTo sends a block back, fragmenting when it exceeds FragmentSize.
// Runs outside the loop.
func (e *Exchange) respondTo(peer *Peer, hash types.Hash, data []byte) {
	e.stats.ResponsesSent.Add(1)

	if len(data) <= e.cfg.FragmentSize {
		resp := Response{Hash: hash, Data: data}
		if err := peer.send(e.ctx, MessageTypeResponse, &resp); err != nil {
			e.log.Debug("response send failed", "peer", peer.ID, "error", err)
		}
		return
	}

	total := uint32((len(data) + e.cfg.FragmentSize - 1) / e.cfg.FragmentSize)
	for i := uint32(0); i < total; i++ {
		start := int(i) * e.cfg.FragmentSize
		end := start + e.cfg.FragmentSize
		if end > len(data) {
			end = len(data)
		}
		resp := Response{Hash: hash, Data: data[start:end], FragIndex: i, FragTotal: total}
		if err := peer.send(e.ctx, MessageTypeResponse, &resp); err != nil {
			e.log.Debug("fragment send failed", "peer", peer.ID, "fragment", i, "error", err)
			return
		}
		e.stats.FragmentsSent.Add(1)
	}
}

// handleResponse buffers or completes an inbound block. Loop context.
func (e *Exchange) handleResponse(resp *Response) {
	e.stats.ResponsesReceived.Add(1)

	var block []byte
	if resp.FragTotal <= 1 {
		block = resp.Data
	} else {
		e.stats.FragmentsReceived.Add(1)
		complete, ok := e.reassembly.accept(resp.Hash, resp.FragIndex, resp.FragTotal, resp.Data, time.Now())
		if !ok {
			e.stats.ReassembliesRejected.Add(1)
			return
		}
		if complete == nil {
			return
		}
		e.stats.ReassembliesCompleted.Add(1)
		block = complete
	}

	// Never deliver bytes that do not hash to what was asked for. The
	// corrupt response is discarded, not finalized: waiters stay registered
	// so an honest peer can still answer inside the request window, and the
	// timeout path falls through to the fallback stores. The sighting is
	// recorded so a fetch that nothing else can serve reports the integrity
	// failure instead of a plain timeout.
	if types.HashBytes(block) != resp.Hash {
		e.stats.CorruptResponses.Add(1)
		e.log.Warn("discarding corrupt block", "hash", resp.Hash)
		if len(e.waiters[resp.Hash]) > 0 {
			e.corrupt[resp.Hash] = struct{}{}
		}
		return
	}

	go func() {
		if _, err := e.cfg.Store.Put(e.ctx, resp.Hash, block); err != nil {
			e.log.Warn("store write failed", "hash", resp.Hash, "error", err)
		}
	}()

	e.deliver(resp.Hash, fetchResult{data: block})
	e.forwardToRelays(resp.Hash, block)
}

// deliver resolves all local waiters for a hash. Loop context.
func (e *Exchange) deliver(hash types.Hash, res fetchResult) {
	for _, ch := range e.waiters[hash] {
		ch <- res
	}
	delete(e.waiters, hash)
	delete(e.corrupt, hash)
}

// forwardToRelays routes a completed block back to the peers whose requests
// were relayed. Loop context.
func (e *Exchange) forwardToRelays(hash types.Hash, block []byte) {
	entry := e.relays[hash]
	if entry == nil {
		return
	}
	delete(e.relays, hash)
	for _, id := range entry.peers {
		peer, connected := e.peers[id]
		if !connected {
			continue
		}
		go e.respondTo(peer, hash, block)
	}
}

// Get fetches a block: local store, then connected peers, then fallbacks.
// ErrRequestTimeout wraps the hash when nobody can serve it; ErrReceive when
// the only answers received failed verification and no fallback holds it.
func (e *Exchange) Get(ctx context.Context, hash types.Hash) ([]byte, error) {
	if !e.started.Load() {
		return nil, ErrNotStarted
	}
	data, err := e.cfg.Store.Get(ctx, hash)
	if err != nil || data != nil {
		return data, err
	}

	ch := make(chan fetchResult, 1)
	asked := make(chan int, 1)
	e.post(func() {
		peers := e.connectedPeers(PeerID{})
		if len(peers) > 0 {
			e.waiters[hash] = append(e.waiters[hash], ch)
			req := Request{Hash: hash, HTL: e.cfg.MaxHTL}
			for _, peer := range peers {
				peer := peer
				go func() {
					if err := peer.send(e.ctx, MessageTypeRequest, &req); err != nil {
						e.log.Debug("request send failed", "peer", peer.ID, "error", err)
					}
				}()
				e.stats.RequestsSent.Add(1)
			}
		}
		asked <- len(peers)
	})

	peersAsked := 0
	select {
	case peersAsked = <-asked:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.ctx.Done():
		return nil, e.ctx.Err()
	}

	corruptSeen := false
	if peersAsked > 0 {
		timer := time.NewTimer(e.cfg.RequestTimeout)
		defer timer.Stop()

		select {
		case res := <-ch:
			return res.data, res.err
		case <-timer.C:
			e.stats.RequestTimeouts.Add(1)
			seen := make(chan bool, 1)
			e.post(func() {
				_, was := e.corrupt[hash]
				e.removeWaiter(hash, ch)
				seen <- was
			})
			select {
			case corruptSeen = <-seen:
			case <-e.ctx.Done():
				return nil, e.ctx.Err()
			}
		case <-ctx.Done():
			e.post(func() { e.removeWaiter(hash, ch) })
			return nil, ctx.Err()
		case <-e.ctx.Done():
			return nil, e.ctx.Err()
		}
	}

	data, err = e.getFromFallbacks(ctx, hash)
	if err != nil && corruptSeen && errors.Is(err, types.ErrRequestTimeout) {
		return nil, fmt.Errorf("%w: every response for %s failed verification", types.ErrReceive, hash)
	}
	return data, err
}

// removeWaiter unregisters one waiter channel. Loop context.
func (e *Exchange) removeWaiter(hash types.Hash, ch chan fetchResult) {
	list := e.waiters[hash]
	for i, c := range list {
		if c == ch {
			e.waiters[hash] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(e.waiters[hash]) == 0 {
		delete(e.waiters, hash)
		delete(e.corrupt, hash)
	}
}

// getFromFallbacks consults the configured fallback stores in order. Hit
// blocks are verified and cached locally.
func (e *Exchange) getFromFallbacks(ctx context.Context, hash types.Hash) ([]byte, error) {
	for _, fb := range e.cfg.Fallbacks {
		data, err := storage.GetVerified(ctx, fb, hash)
		if err != nil {
			if errors.Is(err, types.ErrReceive) {
				e.log.Warn("fallback served corrupt block", "hash", hash)
				continue
			}
			return nil, err
		}
		if data == nil {
			continue
		}
		e.stats.FallbackHits.Add(1)
		if _, err := e.cfg.Store.Put(ctx, hash, data); err != nil {
			return nil, err
		}
		return data, nil
	}
	return nil, fmt.Errorf("%w: %s", types.ErrRequestTimeout, hash)
}

// PeerCount reports the number of admitted peers per pool. Zero before Start.
func (e *Exchange) PeerCount() (follows, other int) {
	if !e.started.Load() {
		return 0, 0
	}
	done := make(chan struct{})
	e.post(func() {
		follows = e.follows.size()
		other = e.other.size()
		close(done)
	})
	select {
	case <-done:
	case <-e.ctx.Done():
	}
	return follows, other
}

// netStore adapts the exchange to the BlockStore interface. Reads transpar-
// ently fall through local store, peers, and fallbacks; writes stay local.
type netStore struct {
	x *Exchange
}

// BlockStore returns a store whose Get is served by whichever path answers
// first; callers cannot tell local and remote reads apart.
func (e *Exchange) BlockStore() storage.BlockStore {
	return &netStore{x: e}
}

func (s *netStore) Put(ctx context.Context, hash types.Hash, data []byte) (bool, error) {
	return s.x.cfg.Store.Put(ctx, hash, data)
}

func (s *netStore) Get(ctx context.Context, hash types.Hash) ([]byte, error) {
	data, err := s.x.Get(ctx, hash)
	if errors.Is(err, types.ErrRequestTimeout) {
		return nil, nil
	}
	return data, err
}

func (s *netStore) Has(ctx context.Context, hash types.Hash) (bool, error) {
	return s.x.cfg.Store.Has(ctx, hash)
}

func (s *netStore) Delete(ctx context.Context, hash types.Hash) (bool, error) {
	return s.x.cfg.Store.Delete(ctx, hash)
}

var _ storage.BlockStore = (*netStore)(nil)
