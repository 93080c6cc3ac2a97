package devicesim

import (
	"bytes"
	"net"
	"sync"
	"sync/atomic"

	"github.com/cyberinferno/netprint/logger"
)

const sessionReadBufferSize = 4096

// Session is one client connection to the fake device.
type Session struct {
	id     uint32
	conn   net.Conn
	server *Server
	log    logger.Logger
	closed atomic.Bool

	mu       sync.Mutex
	received bytes.Buffer
}

func newSession(id uint32, conn net.Conn, server *Server) *Session {
	return &Session{
		id:     id,
		conn:   conn,
		server: server,
		log:    server.Logger.With(logger.F("session", id), logger.F("remote", conn.RemoteAddr().String())),
	}
}

// ID returns the session's identifier, unique per Server.
func (s *Session) ID() uint32 {
	return s.id
}

// Received returns a copy of the bytes this session received.
func (s *Session) Received() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	return bytes.Clone(s.received.Bytes())
}

// Handle reads until the peer disconnects or the session is closed,
// recording every chunk and answering it with the server's Reply.
func (s *Session) Handle() {
	defer s.Close()

	s.log.Debug("session opened")
	buf := make([]byte, sessionReadBufferSize)

	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			s.mu.Lock()
			s.received.Write(buf[:n])
			s.mu.Unlock()
			s.server.record(buf[:n])

			if len(s.server.Reply) > 0 {
				if err := s.Send(s.server.Reply); err != nil {
					s.log.Debug("reply failed", logger.F("error", err.Error()))
					return
				}
			}
		}

		if err != nil {
			return
		}
	}
}

// Send writes data to the client.
func (s *Session) Send(data []byte) error {
	_, err := s.conn.Write(data)
	return err
}

// Close closes the connection and removes the session from its server.
// It is safe to call multiple times.
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	s.server.sessions.Delete(s.id)
	s.log.Debug("session closed")
	return s.conn.Close()
}
