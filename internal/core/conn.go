package core

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/undercity-games/presence-server/internal/store"
)

// Socket is the transport half of a connection as the core sees it. The
// registry is the sole holder of socket handles; nothing else keeps one
// beyond the current call.
type Socket interface {
	// Send queues a serialized event for delivery and reports false when
	// the socket is closed or its queue is full. It never blocks.
	Send(payload []byte) bool

	// Ping probes transport liveness and returns once the peer answers
	// or ctx expires.
	Ping(ctx context.Context) error

	// Close tears the transport down with a WebSocket close code. Safe
	// to call more than once.
	Close(code int, reason string)
}

// Conn is the registry's record of one live connection.
type Conn struct {
	UserID    string
	Username  string
	SessionID string
	Level     int

	// District and crew identity changes mid-session through travel and
	// crew updates; the hub's membership lock guards these fields.
	DistrictID string
	CrewID     string
	CrewTag    string

	sock Socket

	// channels is the connection's side of the membership index, guarded
	// by the hub's membership lock. Always contains global while
	// registered.
	channels map[string]struct{}

	// friends is the session snapshot loaded at connect and discarded
	// with the connection.
	friends []string

	alive        atomic.Bool
	lastActivity atomic.Int64 // unix ms, advisory

	connectedAt time.Time
}

func newConn(sock Socket, p *store.Player, friends []string) *Conn {
	c := &Conn{
		UserID:      p.ID,
		Username:    p.Username,
		SessionID:   uuid.NewString(),
		Level:       p.Level,
		DistrictID:  p.DistrictID,
		CrewID:      p.CrewID,
		CrewTag:     p.CrewTag,
		sock:        sock,
		channels:    make(map[string]struct{}),
		friends:     friends,
		connectedAt: time.Now(),
	}
	c.alive.Store(true)
	c.touch()
	return c
}

// touch records inbound activity.
func (c *Conn) touch() {
	c.lastActivity.Store(time.Now().UnixMilli())
}

// channelList snapshots the membership set. Caller holds the hub lock.
func (c *Conn) channelList() []string {
	list := make([]string, 0, len(c.channels))
	for name := range c.channels {
		list = append(list, name)
	}
	return list
}
