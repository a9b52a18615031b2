package http

import (
	"context"
	"sync"

	"github.com/coder/websocket"

	"github.com/undercity-games/presence-server/internal/core"
)

// wsSocket adapts one websocket connection to the hub's Socket
// interface. Send never blocks: payloads land in a buffered queue the
// write loop drains, and a full queue drops the event.
type wsSocket struct {
	conn  *websocket.Conn
	queue chan []byte

	mu     sync.Mutex
	closed bool
}

var _ core.Socket = (*wsSocket)(nil)

func newWSSocket(conn *websocket.Conn, queueSize int) *wsSocket {
	return &wsSocket{conn: conn, queue: make(chan []byte, queueSize)}
}

// Send enqueues a payload for the write loop and reports whether it was
// accepted. A closed socket or a full queue both mean the event is
// dropped, which is the delivery contract everywhere above this.
func (s *wsSocket) Send(payload []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.queue <- payload:
		return true
	default:
		return false
	}
}

// Ping probes the peer and waits for the pong or ctx expiry.
func (s *wsSocket) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// Close shuts the queue and the transport. Later calls no-op, so the
// heartbeat monitor and the connection handler can race safely.
func (s *wsSocket) Close(code int, reason string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	_ = s.conn.Close(websocket.StatusCode(code), reason)
}
