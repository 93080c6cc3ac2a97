package netconn

import (
	"context"
	"errors"
	"net"
	"time"
)

// PollMode is the readiness a poll waits for.
type PollMode int

const (
	PollWrite PollMode = iota
	PollRead
)

func (m PollMode) String() string {
	if m == PollRead {
		return "read"
	}

	return "write"
}

// Socket is the handle a Connection owns. The default implementation wraps
// a net.Conn; tests substitute fakes.
type Socket interface {
	// Send writes p and returns how many bytes were accepted.
	Send(p []byte) (int, error)

	// Recv reads at most len(p) bytes into p.
	Recv(p []byte) (int, error)

	// Poll waits up to timeout for the socket to become ready for mode.
	// A socket in error or hung up is not ready for writing; for reading
	// it is, so the following Recv reports the condition.
	Poll(mode PollMode, timeout time.Duration) (bool, error)

	// Shutdown shuts down both directions of the socket.
	Shutdown() error

	// Close releases the socket.
	Close() error
}

// Dialer creates connected sockets.
type Dialer interface {
	Dial(ctx context.Context, network, address string) (Socket, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, network, address string) (Socket, error)

// Dial implements Dialer.
func (f DialerFunc) Dial(ctx context.Context, network, address string) (Socket, error) {
	return f(ctx, network, address)
}

// NetDialer dials sockets with the operating system network stack.
type NetDialer struct {
	Dialer net.Dialer
}

// Dial implements Dialer.
func (d *NetDialer) Dial(ctx context.Context, network, address string) (Socket, error) {
	conn, err := d.Dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		// raw device protocols are mostly small command writes
		_ = tcpConn.SetNoDelay(true)
	}

	return NewNetSocket(conn), nil
}

// NetSocket is a Socket over a net.Conn.
type NetSocket struct {
	conn net.Conn
}

// NewNetSocket wraps conn.
func NewNetSocket(conn net.Conn) *NetSocket {
	return &NetSocket{conn: conn}
}

// Conn returns the wrapped connection.
func (s *NetSocket) Conn() net.Conn {
	return s.conn
}

// Send implements Socket.
func (s *NetSocket) Send(p []byte) (int, error) {
	return s.conn.Write(p)
}

// Recv implements Socket.
func (s *NetSocket) Recv(p []byte) (int, error) {
	return s.conn.Read(p)
}

// Poll implements Socket.
func (s *NetSocket) Poll(mode PollMode, timeout time.Duration) (bool, error) {
	return pollConn(s.conn, mode, timeout)
}

// Shutdown implements Socket. Connections without half-close support
// (e.g. UDP) have nothing to shut down.
func (s *NetSocket) Shutdown() error {
	type halfCloser interface {
		CloseRead() error
		CloseWrite() error
	}

	hc, ok := s.conn.(halfCloser)
	if !ok {
		return nil
	}

	return errors.Join(hc.CloseWrite(), hc.CloseRead())
}

// Close implements Socket.
func (s *NetSocket) Close() error {
	return s.conn.Close()
}
