package netconn

import (
	"fmt"
	"time"

	"github.com/cyberinferno/netprint/addrcache"
	"github.com/cyberinferno/netprint/logger"
)

const (
	// DefaultReadBufferSize is the maximum number of bytes returned by one Read.
	DefaultReadBufferSize = 4096

	// DefaultSelectTimeout bounds each readiness poll.
	DefaultSelectTimeout = time.Second
)

// Family selects the address family of the socket.
type Family int

const (
	FamilyIPv4   Family = iota // IPv4 only (default)
	FamilyIPv6                 // IPv6 only
	FamilyUnspec               // whatever the host resolves to
)

// String returns the family name.
func (f Family) String() string {
	switch f {
	case FamilyIPv4:
		return "ipv4"
	case FamilyIPv6:
		return "ipv6"
	case FamilyUnspec:
		return "unspec"
	default:
		return fmt.Sprintf("Family(%d)", int(f))
	}
}

// ParseFamily converts "ipv4", "ipv6" or "unspec" (also "4", "6", "any")
// into a Family.
func ParseFamily(s string) (Family, error) {
	switch s {
	case "ipv4", "4", "inet":
		return FamilyIPv4, nil
	case "ipv6", "6", "inet6":
		return FamilyIPv6, nil
	case "unspec", "any", "":
		return FamilyUnspec, nil
	default:
		return 0, &ConfigError{Reason: fmt.Sprintf("unknown address family %q", s)}
	}
}

// SocketType selects between stream (TCP) and datagram (UDP) sockets.
type SocketType int

const (
	SocketStream   SocketType = iota // TCP (default)
	SocketDatagram                   // UDP
)

// String returns the socket type name.
func (t SocketType) String() string {
	switch t {
	case SocketStream:
		return "stream"
	case SocketDatagram:
		return "datagram"
	default:
		return fmt.Sprintf("SocketType(%d)", int(t))
	}
}

// Config holds the settings of a Connection.
type Config struct {
	// Family is the address family to dial with.
	Family Family
	// SocketType is the kind of socket to dial.
	SocketType SocketType
	// SelectTimeout bounds every readiness poll; zero polls without waiting.
	SelectTimeout time.Duration
	// ReadBufferSize is the maximum number of bytes returned by one Read.
	ReadBufferSize int
	// ConnectTimeout bounds each dial; zero means no timeout.
	ConnectTimeout time.Duration
	// Logger receives connection lifecycle events; nil discards them.
	Logger logger.Logger
	// Resolver, when set, resolves the host before dialing and caches the
	// result. Nil leaves resolution to the dialer.
	Resolver addrcache.Resolver
	// Dialer creates sockets; nil uses the operating system network stack.
	Dialer Dialer
}

// DefaultConfig returns a Config with default values: IPv4 stream socket,
// 1s select timeout, 4096 byte read buffer and no connect timeout.
//
// Returns:
//   - A Config ready to be adjusted and passed to New or CreateWithConfig
func DefaultConfig() Config {
	return Config{
		Family:         FamilyIPv4,
		SocketType:     SocketStream,
		SelectTimeout:  DefaultSelectTimeout,
		ReadBufferSize: DefaultReadBufferSize,
	}
}

// Validate reports the first invalid setting as a *ConfigError.
func (c Config) Validate() error {
	switch {
	case c.Family < FamilyIPv4 || c.Family > FamilyUnspec:
		return &ConfigError{Reason: fmt.Sprintf("unknown address family %s", c.Family)}
	case c.SocketType < SocketStream || c.SocketType > SocketDatagram:
		return &ConfigError{Reason: fmt.Sprintf("unknown socket type %s", c.SocketType)}
	case c.SelectTimeout < 0:
		return &ConfigError{Reason: "select timeout must not be negative"}
	case c.ConnectTimeout < 0:
		return &ConfigError{Reason: "connect timeout must not be negative"}
	case c.ReadBufferSize <= 0:
		return &ConfigError{Reason: "read buffer size must be positive"}
	}

	return nil
}

// Network returns the Go network name for the family and socket type,
// e.g. "tcp4" or "udp".
func (c Config) Network() string {
	network := "tcp"
	if c.SocketType == SocketDatagram {
		network = "udp"
	}

	switch c.Family {
	case FamilyIPv4:
		return network + "4"
	case FamilyIPv6:
		return network + "6"
	default:
		return network
	}
}
