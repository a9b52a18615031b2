package core

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/undercity-games/presence-server/internal/log"
	"github.com/undercity-games/presence-server/internal/proto"
)

// Monitor terminates connections that stop answering pings. Each sweep
// first terminates connections still marked not-alive from the previous
// round, then marks every survivor not-alive and pings it; the pong
// flips the mark back. A dead peer is therefore detected within one to
// two intervals.
type Monitor struct {
	hub      *Hub
	interval time.Duration
	timeout  time.Duration
	clock    clock.Clock
	log      *zerolog.Logger
}

// NewMonitor creates a heartbeat monitor. A nil clk uses the wall
// clock; tests pass clock.NewMock and drive sweeps themselves.
func NewMonitor(hub *Hub, interval, timeout time.Duration, clk clock.Clock, logger *zerolog.Logger) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if timeout <= 0 || timeout > interval {
		timeout = interval / 3
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Monitor{
		hub:      hub,
		interval: interval,
		timeout:  timeout,
		clock:    clk,
		log:      logger,
	}
}

// Run sweeps until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := m.clock.Ticker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep(ctx)
		}
	}
}

// sweep is one mark-and-sweep round over every live connection.
func (m *Monitor) sweep(ctx context.Context) {
	for _, c := range m.hub.connsSnapshot() {
		if !c.alive.Load() {
			m.terminate(c)
			continue
		}
		c.alive.Store(false)
		go m.ping(ctx, c)
	}
}

// terminate force-drops the transport and runs the shared disconnect
// cleanup. Cleanup idempotence covers the race with a close event
// arriving from the transport at the same moment.
func (m *Monitor) terminate(c *Conn) {
	m.log.Warn().
		Str("user", c.UserID).
		Str("session", c.SessionID).
		Msg("heartbeat timeout, terminating connection")

	m.hub.metrics.HeartbeatTermination()
	c.sock.Close(proto.CloseHeartbeatTimeout, "heartbeat timeout")
	m.hub.Disconnect(c)
}

func (m *Monitor) ping(ctx context.Context, c *Conn) {
	pctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if err := c.sock.Ping(pctx); err != nil {
		// Stays marked not-alive; the next sweep terminates it.
		return
	}
	c.alive.Store(true)
	c.touch()
}
