// Package presence mirrors live presence state into Redis and bridges
// Redis pub/sub into the hub's push API. Both halves are optional: the
// server runs fully without Redis configured.
package presence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/undercity-games/presence-server/internal/config"
	"github.com/undercity-games/presence-server/internal/core"
	"github.com/undercity-games/presence-server/internal/log"
	"github.com/undercity-games/presence-server/internal/store"
)

// Key layout read by other game services.
const (
	onlineKey         = "presence:online"
	userKeyPrefix     = "presence:user:"
	districtKeyPrefix = "presence:district:"
	crewKeyPrefix     = "presence:crew:"
)

const opTimeout = 2 * time.Second

// userTTL bounds staleness after a crash; live state is rewritten on
// every transition.
const userTTL = 24 * time.Hour

// Dial connects a Redis client and verifies it with a ping.
func Dial(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// Mirror writes presence transitions to Redis: the online set, one hash
// per user, and district/crew roster sets. It remembers the identity it
// last wrote per user, so crew and district moves (and session
// replacement carrying a new identity) relocate roster entries without
// help from the caller. Every failure is absorbed and logged.
type Mirror struct {
	rdb *redis.Client
	log *zerolog.Logger

	mu   sync.Mutex
	last map[string]identity
}

type identity struct {
	district string
	crew     string
}

var _ core.Mirror = (*Mirror)(nil)

func NewMirror(rdb *redis.Client, logger *zerolog.Logger) *Mirror {
	if logger == nil {
		logger = log.Nop()
	}
	return &Mirror{rdb: rdb, log: logger, last: make(map[string]identity)}
}

func (m *Mirror) PlayerOnline(p *store.Player) {
	m.mu.Lock()
	prev := m.last[p.ID]
	m.last[p.ID] = identity{district: p.DistrictID, crew: p.CrewID}
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	pipe := m.rdb.Pipeline()
	pipe.SAdd(ctx, onlineKey, p.ID)
	pipe.HSet(ctx, userKey(p.ID), map[string]any{
		"username": p.Username,
		"level":    p.Level,
		"district": p.DistrictID,
		"crew":     p.CrewID,
		"crew_tag": p.CrewTag,
		"since":    time.Now().UnixMilli(),
	})
	pipe.Expire(ctx, userKey(p.ID), userTTL)
	moveSet(ctx, pipe, districtKeyPrefix, prev.district, p.DistrictID, p.ID)
	moveSet(ctx, pipe, crewKeyPrefix, prev.crew, p.CrewID, p.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		m.log.Warn().Err(err).Str("user", p.ID).Msg("presence mirror: online write failed")
	}
}

func (m *Mirror) PlayerOffline(userID string) {
	m.mu.Lock()
	prev := m.last[userID]
	delete(m.last, userID)
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	pipe := m.rdb.Pipeline()
	pipe.SRem(ctx, onlineKey, userID)
	pipe.Del(ctx, userKey(userID))
	if prev.district != "" {
		pipe.SRem(ctx, districtKeyPrefix+prev.district, userID)
	}
	if prev.crew != "" {
		pipe.SRem(ctx, crewKeyPrefix+prev.crew, userID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		m.log.Warn().Err(err).Str("user", userID).Msg("presence mirror: offline write failed")
	}
}

func (m *Mirror) DistrictChanged(userID, districtID string) {
	m.mu.Lock()
	prev := m.last[userID]
	m.last[userID] = identity{district: districtID, crew: prev.crew}
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	pipe := m.rdb.Pipeline()
	pipe.HSet(ctx, userKey(userID), "district", districtID)
	moveSet(ctx, pipe, districtKeyPrefix, prev.district, districtID, userID)
	if _, err := pipe.Exec(ctx); err != nil {
		m.log.Warn().Err(err).Str("user", userID).Msg("presence mirror: district write failed")
	}
}

func (m *Mirror) CrewChanged(userID, crewID string) {
	m.mu.Lock()
	prev := m.last[userID]
	m.last[userID] = identity{district: prev.district, crew: crewID}
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	pipe := m.rdb.Pipeline()
	pipe.HSet(ctx, userKey(userID), "crew", crewID)
	moveSet(ctx, pipe, crewKeyPrefix, prev.crew, crewID, userID)
	if _, err := pipe.Exec(ctx); err != nil {
		m.log.Warn().Err(err).Str("user", userID).Msg("presence mirror: crew write failed")
	}
}

func userKey(userID string) string { return userKeyPrefix + userID }

// moveSet relocates a roster entry between prefix-keyed sets. Empty ids
// mean "no set on that side".
func moveSet(ctx context.Context, pipe redis.Pipeliner, prefix, from, to, userID string) {
	if from == to {
		return
	}
	if from != "" {
		pipe.SRem(ctx, prefix+from, userID)
	}
	if to != "" {
		pipe.SAdd(ctx, prefix+to, userID)
	}
}
