package netconn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync/atomic"

	"github.com/cyberinferno/netprint/logger"
)

// readinessAttempts is the number of polls per readiness check; a reconnect
// happens between them.
const readinessAttempts = 2

// connIDs numbers connections for log correlation.
var connIDs atomic.Uint32

// Connection is a synchronous client for one raw TCP device. It owns at most
// one socket at a time; a socket being replaced is always shut down and
// closed first.
//
// A Connection is not safe for concurrent use. Callers sharing one between
// goroutines must serialize Connect, Write, Read and Close themselves.
type Connection struct {
	id      uint32
	host    string
	port    int
	config  Config
	socket  Socket
	closed  bool
	log     logger.Logger
	metrics *connMetrics
}

// Create parses a "host:port" endpoint and returns an unconnected
// Connection with DefaultConfig.
//
// Parameters:
//   - endpoint: The device endpoint, e.g. "192.168.0.205:9100"
//
// Returns:
//   - The Connection; call Connect before use
//   - A *ConfigError if the endpoint is malformed
func Create(endpoint string) (*Connection, error) {
	return CreateWithConfig(endpoint, DefaultConfig())
}

// CreateWithConfig is Create with explicit settings.
func CreateWithConfig(endpoint string, config Config) (*Connection, error) {
	host, port, err := ParseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}

	return New(host, port, config)
}

// New returns an unconnected Connection to host:port.
//
// Parameters:
//   - host: Host name or IP address
//   - port: Port number in 1-65535
//   - config: Connection settings, usually derived from DefaultConfig
//
// Returns:
//   - The Connection; call Connect before use
//   - A *ConfigError if host, port or config are invalid
func New(host string, port int, config Config) (*Connection, error) {
	endpoint := net.JoinHostPort(host, strconv.Itoa(port))

	if host == "" {
		return nil, &ConfigError{Input: endpoint, Reason: "missing host"}
	}

	if err := validatePort(port); err != nil {
		err.Input = endpoint
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	if config.Logger == nil {
		config.Logger = logger.NewNopLogger()
	}

	if config.Dialer == nil {
		d := &NetDialer{}
		d.Dialer.Timeout = config.ConnectTimeout
		config.Dialer = d
	}

	id := connIDs.Add(1)
	return &Connection{
		id:      id,
		host:    host,
		port:    port,
		config:  config,
		log:     config.Logger.With(logger.F("conn", id), logger.F("endpoint", endpoint)),
		metrics: newConnMetrics(endpoint),
	}, nil
}

// Host returns the host the Connection dials.
func (c *Connection) Host() string {
	return c.host
}

// Port returns the port the Connection dials.
func (c *Connection) Port() int {
	return c.port
}

// Endpoint returns "host:port", bracketing IPv6 hosts.
func (c *Connection) Endpoint() string {
	return net.JoinHostPort(c.host, strconv.Itoa(c.port))
}

// Config returns the effective settings.
func (c *Connection) Config() Config {
	return c.config
}

// IsConnected reports whether a socket is currently held. It does not probe
// the peer.
func (c *Connection) IsConnected() bool {
	return c.socket != nil
}

func (c *Connection) String() string {
	return fmt.Sprintf("netconn.Connection(%s, %s)", c.Endpoint(), c.config.Network())
}

// Connect dials a new socket to the endpoint. A socket held from an earlier
// Connect is shut down and closed first. Connect also reopens a closed
// Connection.
//
// Parameters:
//   - ctx: Bounds the dial together with Config.ConnectTimeout
//
// Returns:
//   - A *ConnectionError if the host cannot be resolved or reached
func (c *Connection) Connect(ctx context.Context) error {
	c.release()
	c.closed = false

	if c.config.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.ConnectTimeout)
		defer cancel()
	}

	sock, err := c.dial(ctx)
	if err != nil {
		c.metrics.connectErrors.Inc()
		c.log.Error("connect failed", logger.F("error", err.Error()))
		return c.newError("connect", "cannot connect", err)
	}

	c.socket = sock
	c.metrics.connects.Inc()
	c.log.Info("connected", logger.F("network", c.config.Network()))
	return nil
}

// dial opens a socket, going through the resolver when one is configured.
func (c *Connection) dial(ctx context.Context) (Socket, error) {
	network := c.config.Network()
	port := strconv.Itoa(c.port)

	if c.config.Resolver == nil {
		return c.config.Dialer.Dial(ctx, network, net.JoinHostPort(c.host, port))
	}

	addrs, err := c.config.Resolver.Resolve(ctx, c.host)
	if err != nil {
		return nil, err
	}

	var errs []error
	for _, addr := range filterFamily(addrs, c.config.Family) {
		sock, err := c.config.Dialer.Dial(ctx, network, net.JoinHostPort(addr, port))
		if err == nil {
			return sock, nil
		}

		errs = append(errs, err)
	}

	// the cached addresses may be stale; resolve again on the next attempt
	if err := c.config.Resolver.Forget(ctx, c.host); err != nil {
		c.log.Warn("failed to drop cached address", logger.F("error", err.Error()))
	}

	if len(errs) == 0 {
		return nil, fmt.Errorf("no %s address for %s among %v", c.config.Family, c.host, addrs)
	}

	return nil, errors.Join(errs...)
}

// filterFamily keeps the addresses dialable with family.
func filterFamily(addrs []string, family Family) []string {
	if family == FamilyUnspec {
		return addrs
	}

	kept := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		ip := net.ParseIP(addr)
		if ip == nil {
			continue
		}

		if (ip.To4() != nil) == (family == FamilyIPv4) {
			kept = append(kept, addr)
		}
	}

	return kept
}

// Write sends all of data to the device. It first makes sure the socket is
// writable, reconnecting once if it is not, then sends until every byte has
// been handed to the network stack. Delivery to the peer is not confirmed.
//
// A Connection that was never connected is connected by the readiness check.
//
// Parameters:
//   - data: The raw bytes to send
//
// Returns:
//   - A *ConnectionError if the socket never becomes writable, the
//     reconnect fails, a send fails, or a send accepts zero bytes
func (c *Connection) Write(data []byte) error {
	if c.closed {
		return c.newError("write", "cannot write to socket", ErrClosed)
	}

	if err := c.assertReady(PollWrite); err != nil {
		return err
	}

	for total := 0; total < len(data); {
		sent, err := c.socket.Send(data[total:])
		total += sent
		c.metrics.bytesWritten.Add(sent)

		if err != nil {
			return c.newError("write", "socket send failed", err)
		}

		if sent == 0 {
			return c.newError("write", "send accepted zero bytes", ErrConnectionBroken)
		}
	}

	return nil
}

// Read returns the next chunk of at most Config.ReadBufferSize bytes from
// the device.
//
// Read never fails. Every error, including the peer closing the connection
// and a failed reconnect, yields an empty slice; an empty result therefore
// does not tell "nothing to read" from "connection broken". Callers needing
// the difference use ReadErr.
func (c *Connection) Read() []byte {
	data, err := c.ReadErr()
	if err != nil {
		c.metrics.readErrors.Inc()
		c.log.Debug("read failed, returning empty result", logger.F("error", err.Error()))
		return []byte{}
	}

	return data
}

// ReadErr is Read with the error reported.
//
// Returns:
//   - The bytes received, possibly empty
//   - A *ConnectionError if the socket never becomes readable, the
//     reconnect fails, or the receive fails; io.EOF is in the chain when
//     the peer closed the connection
func (c *Connection) ReadErr() ([]byte, error) {
	if c.closed {
		return []byte{}, c.newError("read", "cannot read from socket", ErrClosed)
	}

	if err := c.assertReady(PollRead); err != nil {
		return []byte{}, err
	}

	buf := make([]byte, c.config.ReadBufferSize)
	n, err := c.socket.Recv(buf)
	c.metrics.bytesRead.Add(n)

	// bytes received alongside an error are returned; the error repeats on
	// the next call
	if n > 0 {
		return buf[:n], nil
	}

	if errors.Is(err, io.EOF) {
		return []byte{}, c.newError("read", "peer closed connection", err)
	}

	if err != nil {
		return []byte{}, c.newError("read", "socket receive failed", err)
	}

	return []byte{}, nil
}

// Close shuts down and closes the socket. Later Write and Read calls fail
// with ErrClosed until Connect is called again. Close is idempotent.
func (c *Connection) Close() error {
	c.closed = true

	if err := c.release(); err != nil {
		return fmt.Errorf("close %s: %w", c.Endpoint(), err)
	}

	return nil
}

// assertReady polls the socket for mode. A socket that is missing or not
// ready is replaced once by reconnect before the second and last poll.
func (c *Connection) assertReady(mode PollMode) error {
	for attempt := 1; attempt <= readinessAttempts; attempt++ {
		if attempt > 1 {
			if err := c.reconnect(); err != nil {
				return err
			}
		}

		ready, err := c.poll(mode)
		if ready {
			return nil
		}

		fields := []logger.Field{logger.F("mode", mode.String()), logger.F("attempt", attempt)}
		if err != nil {
			fields = append(fields, logger.F("error", err.Error()))
		}

		c.log.Warn("socket not ready", fields...)
	}

	return c.newError(mode.String(), fmt.Sprintf("cannot %s socket", notReadyVerb(mode)), ErrNotReady)
}

func notReadyVerb(mode PollMode) string {
	if mode == PollRead {
		return "read from"
	}

	return "write to"
}

func (c *Connection) poll(mode PollMode) (bool, error) {
	if c.socket == nil {
		return false, nil
	}

	return c.socket.Poll(mode, c.config.SelectTimeout)
}

// reconnect replaces the socket. The old socket is released before dialing,
// so it is gone even when the dial fails.
func (c *Connection) reconnect() error {
	c.metrics.reconnects.Inc()
	c.log.Warn("reconnecting", logger.F("had_socket", c.socket != nil))

	c.release()
	return c.Connect(context.Background())
}

// release shuts down and closes the held socket, if any, and forgets it.
// Shutdown errors are expected on sockets the peer already dropped and are
// only logged; the close error is returned.
func (c *Connection) release() error {
	if c.socket == nil {
		return nil
	}

	sock := c.socket
	c.socket = nil

	if err := sock.Shutdown(); err != nil {
		c.log.Debug("socket shutdown failed", logger.F("error", err.Error()))
	}

	return sock.Close()
}

func (c *Connection) newError(op, message string, err error) *ConnectionError {
	return &ConnectionError{
		Op:      op,
		Message: message,
		Host:    c.host,
		Port:    c.port,
		Network: c.config.Network(),
		Err:     err,
	}
}
