package netconn

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady is returned (wrapped) when a socket stays not ready for
	// writing or reading after the reconnect attempt.
	ErrNotReady = errors.New("socket not ready")

	// ErrConnectionBroken is returned (wrapped) when a send accepts zero bytes.
	ErrConnectionBroken = errors.New("socket connection broken")

	// ErrClosed is returned (wrapped) when the Connection has been closed.
	ErrClosed = errors.New("connection closed")
)

// ConfigError reports a malformed endpoint string or an invalid Config.
type ConfigError struct {
	// Input is the offending endpoint string; empty for Config errors.
	Input  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	msg := "invalid configuration: " + e.Reason
	if e.Input != "" {
		msg = fmt.Sprintf("invalid endpoint %q: %s", e.Input, e.Reason)
	}

	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ConnectionError reports a failure to connect, to reach readiness, or to
// transfer bytes. It carries the endpoint details the failure happened on.
type ConnectionError struct {
	// Op is one of "connect", "write" or "read".
	Op      string
	Message string
	Host    string
	Port    int
	Network string
	Err     error
}

func (e *ConnectionError) Error() string {
	msg := fmt.Sprintf("%s (host=%q, port=%d, network=%q)", e.Message, e.Host, e.Port, e.Network)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}
