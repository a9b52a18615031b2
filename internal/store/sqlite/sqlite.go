package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/undercity-games/presence-server/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS players (
	id          TEXT PRIMARY KEY,
	username    TEXT NOT NULL UNIQUE,
	level       INTEGER NOT NULL DEFAULT 1,
	crew_id     TEXT,
	crew_tag    TEXT,
	district_id TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS friends (
	user_id   TEXT NOT NULL,
	friend_id TEXT NOT NULL,
	PRIMARY KEY (user_id, friend_id)
);

CREATE TABLE IF NOT EXISTS messages (
	id         TEXT PRIMARY KEY,
	channel    TEXT NOT NULL,
	user_id    TEXT NOT NULL,
	body       TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_channel ON messages (channel, created_at);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, func(db *sql.DB) error {
		_, err := db.Exec(schema)
		return err
	})
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply a custom schema.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== PlayerDirectory implementation ====

// GetPlayerInfo retrieves a player record by id.
func (s *SQLiteStore) GetPlayerInfo(ctx context.Context, userID string) (*store.Player, error) {
	query := `
		SELECT id, username, level, COALESCE(crew_id, ''), COALESCE(crew_tag, ''), district_id
		FROM players
		WHERE id = ?
	`
	var p store.Player
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&p.ID,
		&p.Username,
		&p.Level,
		&p.CrewID,
		&p.CrewTag,
		&p.DistrictID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("player %s: %w", userID, store.ErrPlayerNotFound)
		}
		return nil, fmt.Errorf("query player: %w", err)
	}

	return &p, nil
}

// UpsertPlayer inserts or replaces a player record. Used by the seed
// command and tests; the realtime path never writes the directory.
func (s *SQLiteStore) UpsertPlayer(ctx context.Context, p *store.Player) error {
	query := `
		INSERT INTO players (id, username, level, crew_id, crew_tag, district_id)
		VALUES (?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), ?)
		ON CONFLICT(id) DO UPDATE SET
			username = excluded.username,
			level = excluded.level,
			crew_id = excluded.crew_id,
			crew_tag = excluded.crew_tag,
			district_id = excluded.district_id
	`
	_, err := s.db.ExecContext(ctx, query, p.ID, p.Username, p.Level, p.CrewID, p.CrewTag, p.DistrictID)
	if err != nil {
		return fmt.Errorf("upsert player: %w", err)
	}
	return nil
}

// ==== ChatStore implementation ====

// SaveMessage persists one message and returns the stored record with
// author metadata resolved from the directory.
func (s *SQLiteStore) SaveMessage(ctx context.Context, userID, channel, text string) (*store.ChatMessage, error) {
	author, err := s.GetPlayerInfo(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve author: %w", err)
	}

	msg := &store.ChatMessage{
		ID:        uuid.NewString(),
		Message:   text,
		CreatedAt: time.Now().UnixMilli(),
		Channel:   channel,
		Author: store.ChatAuthor{
			ID:       author.ID,
			Username: author.Username,
			Level:    author.Level,
			CrewTag:  author.CrewTag,
		},
	}

	query := `
		INSERT INTO messages (id, channel, user_id, body, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, msg.ID, msg.Channel, userID, msg.Message, msg.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	return msg, nil
}

// RecentMessages returns up to limit messages for a channel, oldest first.
func (s *SQLiteStore) RecentMessages(ctx context.Context, channel string, limit int) ([]*store.ChatMessage, error) {
	query := `
		SELECT m.id, m.body, m.created_at, m.channel,
		       p.id, p.username, p.level, COALESCE(p.crew_tag, '')
		FROM messages m
		JOIN players p ON p.id = m.user_id
		WHERE m.channel = ?
		ORDER BY m.created_at DESC, m.rowid DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, channel, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*store.ChatMessage
	for rows.Next() {
		var msg store.ChatMessage
		if err := rows.Scan(
			&msg.ID,
			&msg.Message,
			&msg.CreatedAt,
			&msg.Channel,
			&msg.Author.ID,
			&msg.Author.Username,
			&msg.Author.Level,
			&msg.Author.CrewTag,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, &msg)
	}

	// Reverse to get chronological order
	for i := range len(messages) / 2 {
		messages[i], messages[len(messages)-1-i] = messages[len(messages)-1-i], messages[i]
	}

	return messages, rows.Err()
}

// ==== FriendGraph implementation ====

// FriendsOf lists friend ids for a player. Friendships are stored once
// and read in both directions.
func (s *SQLiteStore) FriendsOf(ctx context.Context, userID string) ([]string, error) {
	query := `
		SELECT friend_id FROM friends WHERE user_id = ?
		UNION
		SELECT user_id FROM friends WHERE friend_id = ?
	`
	rows, err := s.db.QueryContext(ctx, query, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("query friends: %w", err)
	}
	defer rows.Close()

	var friends []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan friend: %w", err)
		}
		friends = append(friends, id)
	}

	return friends, rows.Err()
}

// AddFriendship records a friendship between two players. Duplicate pairs
// are ignored.
func (s *SQLiteStore) AddFriendship(ctx context.Context, userID, friendID string) error {
	query := `
		INSERT OR IGNORE INTO friends (user_id, friend_id)
		VALUES (?, ?)
	`
	_, err := s.db.ExecContext(ctx, query, userID, friendID)
	if err != nil {
		return fmt.Errorf("insert friendship: %w", err)
	}
	return nil
}

// Ensure SQLiteStore implements store.Store
var _ store.Store = (*SQLiteStore)(nil)
