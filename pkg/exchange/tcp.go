package exchange

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

const (
	// tcpHeaderSize is one type byte plus a 4-byte big-endian payload length.
	tcpHeaderSize = 5

	// tcpMaxPayload caps a single framed message.
	tcpMaxPayload = 64 * 1024 * 1024
)

// TCPTransport frames exchange messages over plain TCP:
// [1B type][4B payload length big-endian][payload].
type TCPTransport struct {
	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// NewTCPTransport creates a TCP transport.
func NewTCPTransport() *TCPTransport {
	return &TCPTransport{conns: make(map[net.Conn]struct{})}
}

func (t *TCPTransport) Connect(ctx context.Context, address string) (Conn, error) {
	var dialer net.Dialer
	nc, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("tcp: dial %s: %w", address, err)
	}
	t.track(nc)
	return &tcpConn{transport: t, nc: nc}, nil
}

func (t *TCPTransport) Listen(ctx context.Context, address string) (Listener, error) {
	var lc net.ListenConfig
	nl, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("tcp: listen %s: %w", address, err)
	}
	return &tcpListener{transport: t, nl: nl}, nil
}

func (t *TCPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for nc := range t.conns {
		_ = nc.Close()
	}
	t.conns = map[net.Conn]struct{}{}
	return nil
}

func (t *TCPTransport) track(nc net.Conn) {
	t.mu.Lock()
	t.conns[nc] = struct{}{}
	t.mu.Unlock()
}

func (t *TCPTransport) untrack(nc net.Conn) {
	t.mu.Lock()
	delete(t.conns, nc)
	t.mu.Unlock()
}

type tcpListener struct {
	transport *TCPTransport
	nl        net.Listener
}

func (l *tcpListener) Accept(ctx context.Context) (Conn, error) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = l.nl.Close()
		case <-done:
		}
	}()

	nc, err := l.nl.Accept()
	if err != nil {
		return nil, err
	}
	l.transport.track(nc)
	return &tcpConn{transport: l.transport, nc: nc}, nil
}

func (l *tcpListener) Addr() string {
	return l.nl.Addr().String()
}

func (l *tcpListener) Close() error {
	return l.nl.Close()
}

type tcpConn struct {
	transport *TCPTransport
	nc        net.Conn
	sendMu    sync.Mutex
	recvMu    sync.Mutex
	closeOnce sync.Once
}

func (c *tcpConn) Send(ctx context.Context, msg Message) error {
	if len(msg.Payload) > tcpMaxPayload {
		return fmt.Errorf("tcp: payload of %d bytes exceeds %d limit", len(msg.Payload), tcpMaxPayload)
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.nc.SetWriteDeadline(deadline)
		defer c.nc.SetWriteDeadline(noDeadline)
	}

	var hdr [tcpHeaderSize]byte
	hdr[0] = byte(msg.Type)
	binary.BigEndian.PutUint32(hdr[1:], uint32(len(msg.Payload)))
	if _, err := c.nc.Write(hdr[:]); err != nil {
		return fmt.Errorf("tcp: write header: %w", err)
	}
	if len(msg.Payload) > 0 {
		if _, err := c.nc.Write(msg.Payload); err != nil {
			return fmt.Errorf("tcp: write payload: %w", err)
		}
	}
	return nil
}

func (c *tcpConn) Receive(ctx context.Context) (Message, error) {
	c.recvMu.Lock()
	defer c.recvMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.nc.SetReadDeadline(deadline)
		defer c.nc.SetReadDeadline(noDeadline)
	}

	var hdr [tcpHeaderSize]byte
	if _, err := io.ReadFull(c.nc, hdr[:]); err != nil {
		return Message{}, fmt.Errorf("tcp: read header: %w", err)
	}
	length := binary.BigEndian.Uint32(hdr[1:])
	if length > tcpMaxPayload {
		return Message{}, fmt.Errorf("tcp: payload of %d bytes exceeds %d limit", length, tcpMaxPayload)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(c.nc, payload); err != nil {
		return Message{}, fmt.Errorf("tcp: read payload: %w", err)
	}
	return Message{Type: MessageType(hdr[0]), Payload: payload}, nil
}

func (c *tcpConn) RemoteAddr() string {
	return c.nc.RemoteAddr().String()
}

func (c *tcpConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.transport.untrack(c.nc)
		err = c.nc.Close()
	})
	return err
}

var noDeadline = time.Time{}

var _ Transport = (*TCPTransport)(nil)
