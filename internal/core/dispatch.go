package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/undercity-games/presence-server/internal/proto"
)

// HandleFrame routes one raw inbound frame. Every failure here is
// per-frame: the sender gets an error event and the connection stays
// open.
func (h *Hub) HandleFrame(ctx context.Context, c *Conn, raw []byte) {
	c.touch()

	var f proto.Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		h.metrics.FrameIn("invalid")
		h.sendError(c, proto.ErrCodeInvalidMessage, "malformed frame")
		return
	}

	switch f.Type {
	case proto.FrameChat:
		h.metrics.FrameIn(f.Type)
		h.handleChat(ctx, c, f.Channel, f.Message)
	case proto.FrameSubscribe:
		h.metrics.FrameIn(f.Type)
		h.handleSubscribe(c, f.Channel)
	case proto.FrameUnsubscribe:
		h.metrics.FrameIn(f.Type)
		h.handleUnsubscribe(c, f.Channel)
	case proto.FrameTyping:
		h.metrics.FrameIn(f.Type)
		h.handleTyping(c, f.Channel)
	case proto.FramePresenceRequest:
		h.metrics.FrameIn(f.Type)
		h.handlePresenceRequest(ctx, c, f.DistrictID)
	default:
		h.metrics.FrameIn("unknown")
		h.sendError(c, proto.ErrCodeUnknownType, fmt.Sprintf("unknown frame type %q", f.Type))
	}
}

// handleChat persists then broadcasts. The sender receives their own
// message through the channel broadcast; channel ordering follows
// persistence completion.
func (h *Hub) handleChat(ctx context.Context, c *Conn, channel, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if runes := []rune(text); len(runes) > proto.MaxChatLength {
		text = string(runes[:proto.MaxChatLength])
	}

	h.mu.RLock()
	allowed := canJoin(c, channel)
	h.mu.RUnlock()
	if !allowed {
		h.sendError(c, proto.ErrCodeAccessDenied, "not allowed in "+channel)
		return
	}

	msg, err := h.chats.SaveMessage(ctx, c.UserID, channel, text)
	if err != nil {
		h.log.Error().Err(err).Str("user", c.UserID).Str("channel", channel).Msg("chat save failed")
		h.metrics.ChatSaveFailure()
		h.sendError(c, proto.ErrCodeChatFailed, "message not delivered")
		return
	}

	h.SendToChannel(channel, proto.NewEvent(proto.EventChat, msg), "")
}

func (h *Hub) handleSubscribe(c *Conn, channel string) {
	h.mu.Lock()
	allowed := canJoin(c, channel)
	if allowed {
		h.channels.join(c, channel)
	}
	h.mu.Unlock()

	if !allowed {
		h.sendError(c, proto.ErrCodeAccessDenied, "not allowed in "+channel)
		return
	}
	h.deliverOne(c, proto.NewEvent(proto.EventChatSubscribed, proto.SubscriptionData{Channel: channel}))
}

func (h *Hub) handleUnsubscribe(c *Conn, channel string) {
	// Global membership cannot be dropped while connected.
	if channel == ChannelGlobal {
		return
	}

	h.mu.Lock()
	allowed := canJoin(c, channel)
	if allowed {
		h.channels.leave(c, channel)
	}
	h.mu.Unlock()

	if !allowed {
		h.sendError(c, proto.ErrCodeAccessDenied, "not allowed in "+channel)
		return
	}
	h.deliverOne(c, proto.NewEvent(proto.EventChatUnsubscribed, proto.SubscriptionData{Channel: channel}))
}

// handleTyping relays a composing signal to the channel, excluding the
// sender. Membership is the only gate: non-members produce no
// broadcast and no error.
func (h *Hub) handleTyping(c *Conn, channel string) {
	h.mu.RLock()
	_, member := c.channels[channel]
	var targets []*Conn
	if member {
		targets = h.channels.membersExcept(channel, c.UserID)
	}
	h.mu.RUnlock()

	if !member || len(targets) == 0 {
		return
	}
	h.deliver(targets, proto.NewEvent(proto.EventChatTyping, proto.TypingData{
		Channel:  channel,
		UserID:   c.UserID,
		Username: c.Username,
	}))
}

// handlePresenceRequest answers with the resolved roster of one
// district. An empty district is a normal empty reply.
func (h *Hub) handlePresenceRequest(ctx context.Context, c *Conn, districtID string) {
	h.deliverOne(c, proto.NewEvent(proto.EventDistrictPlayers, proto.DistrictPlayersData{
		DistrictID: districtID,
		Players:    h.DistrictPlayers(ctx, districtID),
	}))
}

// DistrictPlayers resolves a district roster through the player
// directory. Shared by the presence:request frame and the internal
// presence endpoint.
func (h *Hub) DistrictPlayers(ctx context.Context, districtID string) []proto.PlayerSummary {
	return h.resolvePlayers(ctx, h.DistrictRoster(districtID))
}

// CrewPlayers resolves a crew roster through the player directory.
func (h *Hub) CrewPlayers(ctx context.Context, crewID string) []proto.PlayerSummary {
	return h.resolvePlayers(ctx, h.CrewRoster(crewID))
}

// resolvePlayers maps roster ids to directory summaries. Players the
// directory cannot resolve are skipped, never fatal.
func (h *Hub) resolvePlayers(ctx context.Context, ids []string) []proto.PlayerSummary {
	players := make([]proto.PlayerSummary, 0, len(ids))
	for _, id := range ids {
		p, err := h.dir.GetPlayerInfo(ctx, id)
		if err != nil {
			h.log.Warn().Err(err).Str("user", id).Msg("presence lookup failed")
			continue
		}
		players = append(players, proto.PlayerSummary{
			ID:       p.ID,
			Username: p.Username,
			Level:    p.Level,
			CrewTag:  p.CrewTag,
		})
	}
	return players
}

func (h *Hub) sendError(c *Conn, code, message string) {
	h.deliverOne(c, proto.NewEvent(proto.EventError, proto.ErrorData{Code: code, Message: message}))
}
