package signal

import (
	"sync"
	"time"

	"roomcast/internal/core/domain"
	"roomcast/pkg/utils"

	"github.com/gorilla/websocket"
)

// wsSession wraps one gorilla connection as a ports.Session. Writes are
// serialized through a mutex (gorilla permits one concurrent writer) and
// bounded by the write deadline. After close, Send degrades to a no-op
// returning domain.ErrSessionClosed, which callers are expected to swallow.
type wsSession struct {
	id           string
	conn         *websocket.Conn
	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

func newWSSession(conn *websocket.Conn, writeTimeout time.Duration) *wsSession {
	return &wsSession{
		id:           utils.GenerateConnectionID(),
		conn:         conn,
		writeTimeout: writeTimeout,
	}
}

func (s *wsSession) ID() string {
	return s.id
}

func (s *wsSession) Send(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return domain.ErrSessionClosed
	}

	s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	if err := s.conn.WriteJSON(v); err != nil {
		// A failed write leaves the connection in an undefined state; treat
		// the session as gone so later sends are cheap no-ops.
		s.closed = true
		return err
	}
	return nil
}

func (s *wsSession) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return !s.closed
}

func (s *wsSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}

// writeControl sends a control frame outside the JSON write path.
func (s *wsSession) writeControl(messageType int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return domain.ErrSessionClosed
	}
	return s.conn.WriteControl(messageType, nil, time.Now().Add(s.writeTimeout))
}
