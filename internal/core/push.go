package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/undercity-games/presence-server/internal/proto"
)

// The push API is the delivery layer every other subsystem rides on.
// All of it is best-effort: a missing or closed socket counts as "not
// delivered", never as an error. Events are serialized once per call
// and enqueued; the transport write loops drain the queues.

// SendToUser delivers an event to one user and reports whether it was
// enqueued.
func (h *Hub) SendToUser(userID string, ev *proto.Event) bool {
	h.mu.RLock()
	c, ok := h.registry.get(userID)
	h.mu.RUnlock()
	if !ok {
		return false
	}
	return h.deliverOne(c, ev)
}

// SendToUsers delivers an event to each listed user and returns the
// number of deliveries.
func (h *Hub) SendToUsers(userIDs []string, ev *proto.Event) int {
	conns := make([]*Conn, 0, len(userIDs))
	h.mu.RLock()
	for _, userID := range userIDs {
		if c, ok := h.registry.get(userID); ok {
			conns = append(conns, c)
		}
	}
	h.mu.RUnlock()
	return h.deliver(conns, ev)
}

// SendToChannel delivers an event to a channel's members, optionally
// excluding one user, and returns the number of deliveries.
func (h *Hub) SendToChannel(channel string, ev *proto.Event, excludeUserID string) int {
	h.mu.RLock()
	conns := h.channels.membersExcept(channel, excludeUserID)
	h.mu.RUnlock()
	return h.deliver(conns, ev)
}

// BroadcastAll delivers an event to every open connection and returns
// the number of deliveries.
func (h *Hub) BroadcastAll(ev *proto.Event) int {
	h.mu.RLock()
	conns := h.registry.all()
	h.mu.RUnlock()
	return h.deliver(conns, ev)
}

// Push targets understood by out-of-process producers.
const (
	PushTargetUser    = "user"
	PushTargetUsers   = "users"
	PushTargetChannel = "channel"
	PushTargetAll     = "all"
)

// PushCommand is the delivery envelope shared by the internal HTTP API
// and the Redis bridge. Event rides through unchanged; a zero timestamp
// is stamped at send time like every other event.
type PushCommand struct {
	Target  string      `json:"target"`
	UserID  string      `json:"userId,omitempty"`
	UserIDs []string    `json:"userIds,omitempty"`
	Channel string      `json:"channel,omitempty"`
	Exclude string      `json:"exclude,omitempty"`
	Event   proto.Event `json:"event"`
}

// Push routes a command to the matching delivery entry point and
// returns the delivery count. Delivery itself stays best-effort; the
// error covers malformed commands only.
func (h *Hub) Push(cmd *PushCommand) (int, error) {
	if cmd.Event.Type == "" {
		return 0, errors.New("push: event type required")
	}
	ev := cmd.Event

	switch cmd.Target {
	case PushTargetUser:
		if cmd.UserID == "" {
			return 0, errors.New("push: userId required for user target")
		}
		if h.SendToUser(cmd.UserID, &ev) {
			return 1, nil
		}
		return 0, nil
	case PushTargetUsers:
		return h.SendToUsers(cmd.UserIDs, &ev), nil
	case PushTargetChannel:
		if cmd.Channel == "" {
			return 0, errors.New("push: channel required for channel target")
		}
		return h.SendToChannel(cmd.Channel, &ev, cmd.Exclude), nil
	case PushTargetAll:
		return h.BroadcastAll(&ev), nil
	default:
		return 0, fmt.Errorf("push: unknown target %q", cmd.Target)
	}
}

// deliver serializes the event once and enqueues it to each connection.
func (h *Hub) deliver(conns []*Conn, ev *proto.Event) int {
	if len(conns) == 0 {
		return 0
	}
	payload, ok := h.encode(ev)
	if !ok {
		return 0
	}
	delivered := 0
	for _, c := range conns {
		if c.sock.Send(payload) {
			delivered++
		}
	}
	h.metrics.EventsOut(delivered)
	h.metrics.BroadcastFanout(delivered)
	return delivered
}

func (h *Hub) deliverOne(c *Conn, ev *proto.Event) bool {
	payload, ok := h.encode(ev)
	if !ok {
		return false
	}
	if !c.sock.Send(payload) {
		return false
	}
	h.metrics.EventsOut(1)
	return true
}

// encode stamps the event with the server time when the producer left
// the timestamp zero, then marshals it.
func (h *Hub) encode(ev *proto.Event) ([]byte, bool) {
	if ev.Timestamp == 0 {
		ev.Timestamp = time.Now().UnixMilli()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		h.log.Error().Err(err).Str("type", ev.Type).Msg("event marshal failed")
		return nil, false
	}
	return payload, true
}
