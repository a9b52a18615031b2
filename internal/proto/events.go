package proto

import "github.com/undercity-games/presence-server/internal/store"

// Event is the envelope for everything sent to the client. Timestamp is
// Unix milliseconds; the push layer stamps it when the producer left it
// zero.
type Event struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
}

// NewEvent builds an unstamped event. The timestamp is attached at send
// time so queued events carry their delivery time, not their build time.
func NewEvent(eventType string, data any) *Event {
	return &Event{Type: eventType, Data: data}
}

const (
	EventConnected = "connected"
	EventError     = "error"

	EventChat             = "chat"
	EventChatHistory      = "chat:history"
	EventChatTyping       = "chat:typing"
	EventChatSubscribed   = "chat:subscribed"
	EventChatUnsubscribed = "chat:unsubscribed"

	EventOnlineCount     = "presence:online_count"
	EventDistrictPlayers = "presence:district_players"

	EventCrewMemberOnline  = "crew:member_online"
	EventCrewMemberOffline = "crew:member_offline"

	EventFriendOnline  = "social:friend_online"
	EventFriendOffline = "social:friend_offline"
)

// WebSocket close codes for fatal connection errors.
const (
	CloseSuperseded       = 4000
	CloseNoCredential     = 4001
	CloseInvalidToken     = 4002
	ClosePlayerNotFound   = 4003
	CloseHeartbeatTimeout = 4004
)

// Error codes carried in error events. The connection survives all of
// them.
const (
	ErrCodeInvalidMessage = "INVALID_MESSAGE"
	ErrCodeUnknownType    = "UNKNOWN_TYPE"
	ErrCodeAccessDenied   = "ACCESS_DENIED"
	ErrCodeChatFailed     = "CHAT_FAILED"
)

// ConnectedData greets a freshly registered connection.
type ConnectedData struct {
	UserID      string   `json:"userId"`
	Username    string   `json:"username"`
	OnlineCount int      `json:"onlineCount"`
	Channels    []string `json:"channels"`
}

// ErrorData describes a recoverable per-frame error.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ChatHistoryData carries the recent-message page for one channel,
// oldest first.
type ChatHistoryData struct {
	Channel  string               `json:"channel"`
	Messages []*store.ChatMessage `json:"messages"`
}

// SubscriptionData echoes a channel membership change back to the
// requester.
type SubscriptionData struct {
	Channel string `json:"channel"`
}

// TypingData tells channel members that a player is composing.
type TypingData struct {
	Channel  string `json:"channel"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// OnlineCountData is the live total broadcast after connects and
// disconnects.
type OnlineCountData struct {
	Count int `json:"count"`
}

// PlayerSummary is the directory-resolved view of a player in presence
// replies.
type PlayerSummary struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Level    int    `json:"level"`
	CrewTag  string `json:"crewTag,omitempty"`
}

// DistrictPlayersData answers a presence:request for one district.
type DistrictPlayersData struct {
	DistrictID string          `json:"districtId"`
	Players    []PlayerSummary `json:"players"`
}

// CrewPresenceData reports a crew member going online or offline.
// OnlineCount is the crew roster size after the change.
type CrewPresenceData struct {
	UserID      string `json:"userId"`
	Username    string `json:"username"`
	CrewID      string `json:"crewId"`
	OnlineCount int    `json:"onlineCount"`
}

// FriendPresenceData reports a cached friend going online or offline.
type FriendPresenceData struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}
