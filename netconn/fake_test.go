package netconn

import (
	"context"
	"errors"
	"time"
)

// fakeSocket is a scripted Socket.
type fakeSocket struct {
	// ready is consumed one value per Poll; the last value repeats. An
	// empty slice means always ready.
	ready   []bool
	pollErr error

	// send overrides the default accept-everything behavior.
	send  func(p []byte) (int, error)
	sends [][]byte

	recvData []byte
	recvErr  error
	recvs    int

	polls     []PollMode
	shutdowns int
	closes    int
}

func (s *fakeSocket) Send(p []byte) (int, error) {
	s.sends = append(s.sends, append([]byte(nil), p...))
	if s.send != nil {
		return s.send(p)
	}

	return len(p), nil
}

func (s *fakeSocket) Recv(p []byte) (int, error) {
	s.recvs++
	if s.recvErr != nil {
		return 0, s.recvErr
	}

	return copy(p, s.recvData), nil
}

func (s *fakeSocket) Poll(mode PollMode, timeout time.Duration) (bool, error) {
	s.polls = append(s.polls, mode)
	if len(s.ready) == 0 {
		return true, s.pollErr
	}

	idx := min(len(s.polls), len(s.ready)) - 1
	return s.ready[idx], s.pollErr
}

func (s *fakeSocket) Shutdown() error {
	s.shutdowns++
	return nil
}

func (s *fakeSocket) Close() error {
	s.closes++
	return nil
}

// fakeDialer hands out scripted sockets in order. A nil entry in sockets
// makes that dial fail with errDial; once the script runs out every dial
// fails.
type fakeDialer struct {
	sockets   []*fakeSocket
	addresses []string
	networks  []string
}

var errDial = errors.New("connection refused")

func (d *fakeDialer) Dial(ctx context.Context, network, address string) (Socket, error) {
	d.addresses = append(d.addresses, address)
	d.networks = append(d.networks, network)

	if len(d.sockets) == 0 {
		return nil, errDial
	}

	next := d.sockets[0]
	d.sockets = d.sockets[1:]
	if next == nil {
		return nil, errDial
	}

	return next, nil
}

func (d *fakeDialer) dials() int {
	return len(d.addresses)
}

// newFakeConnection builds a Connection to 10.0.0.1:9100 whose dials are
// served by the given sockets.
func newFakeConnection(sockets ...*fakeSocket) (*Connection, *fakeDialer) {
	dialer := &fakeDialer{sockets: sockets}

	config := DefaultConfig()
	config.SelectTimeout = 10 * time.Millisecond
	config.Dialer = dialer

	conn, err := New("10.0.0.1", 9100, config)
	if err != nil {
		panic(err)
	}

	return conn, dialer
}
