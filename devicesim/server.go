// Package devicesim runs a fake raw-TCP device, such as a receipt printer
// on port 9100, that records every byte it receives and optionally answers
// each chunk with a canned reply. It backs the integration tests and the
// "netprint serve" command.
package devicesim

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyberinferno/netprint/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

// Server is a fake device. Configure the exported fields, then call Start.
type Server struct {
	// Name identifies the device in log entries.
	Name string
	// Addr is the listen address, e.g. ":9100" or "127.0.0.1:0".
	Addr string
	// Reply is written back after every received chunk when non-empty.
	Reply []byte
	// Logger receives server events; nil discards them.
	Logger logger.Logger

	listener net.Listener
	sessions *xsync.MapOf[uint32, *Session]
	nextID   atomic.Uint32
	running  atomic.Bool
	wg       sync.WaitGroup

	mu       sync.Mutex
	received bytes.Buffer
	notify   chan struct{}
}

// NewServer returns a Server listening on addr once started.
//
// Parameters:
//   - name: Device name used in logs
//   - addr: Listen address; port 0 picks a free port
//   - reply: Bytes answered after each received chunk; nil for a silent device
//
// Returns:
//   - A Server ready to Start
func NewServer(name, addr string, reply []byte) *Server {
	return &Server{
		Name:  name,
		Addr:  addr,
		Reply: reply,
	}
}

// Start binds the listen address and accepts sessions in a goroutine.
//
// Returns:
//   - An error if the server is already running or listening fails
func (s *Server) Start() error {
	if s.Logger == nil {
		s.Logger = logger.NewNopLogger()
	}

	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("device %s already running", s.Name)
	}

	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		s.running.Store(false)
		s.Logger.Error("device failed to start", logger.F("error", err.Error()))
		return fmt.Errorf("device %s failed to start: %w", s.Name, err)
	}

	s.listener = ln
	s.sessions = xsync.NewMapOf[uint32, *Session]()
	s.notify = make(chan struct{}, 1)

	s.Logger.Info(fmt.Sprintf("%s device listening", s.Name), logger.F("addr", ln.Addr().String()))

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// Stop closes the listener and every open session and waits for their
// goroutines. It is a no-op when the server is not running.
func (s *Server) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}

	_ = s.listener.Close()
	s.DropSessions()
	s.wg.Wait()

	s.Logger.Info(fmt.Sprintf("%s device stopped", s.Name))
}

// BoundAddr returns the listening address, which differs from the configured one
// when port 0 was requested. Empty before Start.
func (s *Server) BoundAddr() string {
	if s.listener == nil {
		return ""
	}

	return s.listener.Addr().String()
}

// DropSessions closes every open session while the server keeps accepting,
// like a device that resets its connections.
//
// Returns:
//   - The number of sessions closed
func (s *Server) DropSessions() int {
	if s.sessions == nil {
		return 0
	}

	dropped := 0
	s.sessions.Range(func(id uint32, session *Session) bool {
		_ = session.Close()
		dropped++
		return true
	})

	return dropped
}

// SessionCount returns the number of open sessions.
func (s *Server) SessionCount() int {
	if s.sessions == nil {
		return 0
	}

	return s.sessions.Size()
}

// TotalSessions returns the number of sessions accepted since Start.
func (s *Server) TotalSessions() int {
	return int(s.nextID.Load())
}

// Received returns a copy of every byte received so far, across sessions,
// in arrival order.
func (s *Server) Received() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	return bytes.Clone(s.received.Bytes())
}

// WaitForBytes blocks until at least n bytes were received or timeout passes.
//
// Returns:
//   - The bytes received so far
//   - An error if fewer than n bytes arrived in time
func (s *Server) WaitForBytes(n int, timeout time.Duration) ([]byte, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		got := s.Received()
		if len(got) >= n {
			return got, nil
		}

		select {
		case <-s.notify:
		case <-deadline.C:
			return got, fmt.Errorf("received %d of %d bytes within %s", len(got), n, timeout)
		}
	}
}

// Stream copies received bytes to w as they arrive, until ctx is done.
func (s *Server) Stream(ctx context.Context, w io.Writer) error {
	offset := 0
	for {
		chunk := s.receivedSince(offset)
		if len(chunk) > 0 {
			if _, err := w.Write(chunk); err != nil {
				return err
			}

			offset += len(chunk)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-s.notify:
		}
	}
}

func (s *Server) receivedSince(offset int) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	return bytes.Clone(s.received.Bytes()[offset:])
}

func (s *Server) record(p []byte) {
	s.mu.Lock()
	s.received.Write(p)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for s.running.Load() {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return
			}

			s.Logger.Error(fmt.Sprintf("%s device accept error", s.Name), logger.F("error", err.Error()))
			continue
		}

		session := newSession(s.nextID.Add(1), conn, s)
		s.sessions.Store(session.ID(), session)
		if !s.running.Load() {
			// Stop raced with this accept and may have missed the session
			_ = session.Close()
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			session.Handle()
		}()
	}
}
