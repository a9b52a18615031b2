package store

import (
	"context"
	"errors"
)

// ErrPlayerNotFound is returned when a player id has no directory record.
var ErrPlayerNotFound = errors.New("player not found")

// Player is the directory record for one player. CrewID is empty when the
// player has no crew.
type Player struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	Level      int    `json:"level"`
	CrewID     string `json:"crewId,omitempty"`
	CrewTag    string `json:"crewTag,omitempty"`
	DistrictID string `json:"districtId"`
}

// ChatAuthor identifies the sender on a persisted chat message.
type ChatAuthor struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Level    int    `json:"level"`
	CrewTag  string `json:"crewTag,omitempty"`
}

// ChatMessage is a persisted channel message. CreatedAt is Unix
// milliseconds.
type ChatMessage struct {
	ID        string     `json:"id"`
	Message   string     `json:"message"`
	CreatedAt int64      `json:"createdAt"`
	Channel   string     `json:"channel"`
	Author    ChatAuthor `json:"author"`
}

// PlayerDirectory resolves player ids to directory records.
type PlayerDirectory interface {
	// GetPlayerInfo retrieves a player record, ErrPlayerNotFound when the
	// id is unknown.
	GetPlayerInfo(ctx context.Context, userID string) (*Player, error)
}

// ChatStore persists channel messages and serves recent-history pages.
type ChatStore interface {
	// SaveMessage persists one message and returns the stored record with
	// id, timestamp, and author metadata filled in.
	SaveMessage(ctx context.Context, userID, channel, text string) (*ChatMessage, error)

	// RecentMessages returns up to limit messages for a channel in
	// chronological order, oldest first.
	RecentMessages(ctx context.Context, channel string, limit int) ([]*ChatMessage, error)
}

// FriendGraph answers friend-list queries.
type FriendGraph interface {
	// FriendsOf lists the ids of the player's friends.
	FriendsOf(ctx context.Context, userID string) ([]string, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	PlayerDirectory
	ChatStore
	FriendGraph

	// Close closes the underlying database connection.
	Close() error
}
