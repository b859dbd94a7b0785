package exchange

import (
	"context"
	"fmt"
	"sync"
)

// PipeTransport is an in-process Transport. Listeners register under string
// addresses in a shared network; Connect pairs two channel-backed conns.
// It exists for tests and single-process topologies.
type PipeTransport struct {
	network *PipeNetwork
}

// PipeNetwork is the shared address space of a set of PipeTransports.
type PipeNetwork struct {
	mu        sync.Mutex
	listeners map[string]*pipeListener
}

// NewPipeNetwork creates an empty in-process network.
func NewPipeNetwork() *PipeNetwork {
	return &PipeNetwork{listeners: make(map[string]*pipeListener)}
}

// Transport creates a transport attached to the network.
func (n *PipeNetwork) Transport() *PipeTransport {
	return &PipeTransport{network: n}
}

func (t *PipeTransport) Connect(ctx context.Context, address string) (Conn, error) {
	t.network.mu.Lock()
	listener, ok := t.network.listeners[address]
	t.network.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("pipe: no listener at %s", address)
	}

	local, remote := newPipePair(address)
	select {
	case listener.incoming <- remote:
		return local, nil
	case <-listener.closed:
		return nil, fmt.Errorf("pipe: listener at %s closed", address)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *PipeTransport) Listen(ctx context.Context, address string) (Listener, error) {
	t.network.mu.Lock()
	defer t.network.mu.Unlock()

	if _, taken := t.network.listeners[address]; taken {
		return nil, fmt.Errorf("pipe: address %s already in use", address)
	}
	l := &pipeListener{
		network:  t.network,
		addr:     address,
		incoming: make(chan Conn, 8),
		closed:   make(chan struct{}),
	}
	t.network.listeners[address] = l
	return l, nil
}

func (t *PipeTransport) Close() error {
	return nil
}

type pipeListener struct {
	network   *PipeNetwork
	addr      string
	incoming  chan Conn
	closed    chan struct{}
	closeOnce sync.Once
}

func (l *pipeListener) Accept(ctx context.Context) (Conn, error) {
	select {
	case conn := <-l.incoming:
		return conn, nil
	case <-l.closed:
		return nil, fmt.Errorf("pipe: listener closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *pipeListener) Addr() string {
	return l.addr
}

func (l *pipeListener) Close() error {
	l.closeOnce.Do(func() {
		close(l.closed)
		l.network.mu.Lock()
		delete(l.network.listeners, l.addr)
		l.network.mu.Unlock()
	})
	return nil
}

// pipeConn is one end of a channel pair.
type pipeConn struct {
	addr      string
	out       chan Message
	in        chan Message
	closed    chan struct{}
	peerDone  chan struct{}
	closeOnce sync.Once
}

func newPipePair(addr string) (Conn, Conn) {
	ab := make(chan Message, 64)
	ba := make(chan Message, 64)
	aClosed := make(chan struct{})
	bClosed := make(chan struct{})
	a := &pipeConn{addr: addr, out: ab, in: ba, closed: aClosed, peerDone: bClosed}
	b := &pipeConn{addr: addr, out: ba, in: ab, closed: bClosed, peerDone: aClosed}
	return a, b
}

func (c *pipeConn) Send(ctx context.Context, msg Message) error {
	select {
	case c.out <- msg:
		return nil
	case <-c.closed:
		return fmt.Errorf("pipe: connection closed")
	case <-c.peerDone:
		return fmt.Errorf("pipe: remote closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *pipeConn) Receive(ctx context.Context) (Message, error) {
	select {
	case msg := <-c.in:
		return msg, nil
	case <-c.closed:
		return Message{}, fmt.Errorf("pipe: connection closed")
	case <-c.peerDone:
		// Drain messages already in flight before reporting closure.
		select {
		case msg := <-c.in:
			return msg, nil
		default:
			return Message{}, fmt.Errorf("pipe: remote closed")
		}
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (c *pipeConn) RemoteAddr() string {
	return c.addr
}

func (c *pipeConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
	return nil
}

var _ Transport = (*PipeTransport)(nil)
